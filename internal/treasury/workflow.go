// Package treasury gates withdrawals from the treasury pool behind
// categorized monthly budgets, N-of-M approval and a mandatory execution
// delay. A proposal commits its amount against the category budget the
// moment it is filed; rejection and expiry hand the commitment back.
package treasury

import (
	"log"
	"sort"
	"sync"
	"time"

	"SupplySentinel/internal/ledger"
	"SupplySentinel/internal/model"
	"SupplySentinel/internal/notifier"
	"SupplySentinel/internal/oplog"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// Policy configures the approval workflow.
type Policy struct {
	Approvers         []string
	RequiredApprovals int
	ExecutionDelay    time.Duration
	ProposalTTL       time.Duration
}

// Budget utilization levels at which a notification fires, in percent.
const (
	warnThresholdPct     = 70
	criticalThresholdPct = 90
)

// Workflow owns all treasury proposals and the per-category budgets.
type Workflow struct {
	mu        sync.Mutex
	ledger    *ledger.Ledger
	rec       oplog.Recorder
	sink      notifier.EventSink
	policy    Policy
	proposals map[uuid.UUID]*model.TreasuryProposal
	budgets   map[model.Category]*model.Budget
	month     string
	notified  map[model.Category]string // highest level notified this month
}

// New creates a workflow with fresh budgets for the current month.
func New(l *ledger.Ledger, rec oplog.Recorder, sink notifier.EventSink, policy Policy, limits map[model.Category]*uint256.Int, now time.Time) *Workflow {
	w := &Workflow{
		ledger:    l,
		rec:       rec,
		sink:      sink,
		policy:    policy,
		proposals: make(map[uuid.UUID]*model.TreasuryProposal),
		budgets:   make(map[model.Category]*model.Budget, len(limits)),
		month:     now.Format("2006-01"),
		notified:  make(map[model.Category]string),
	}
	for cat, limit := range limits {
		w.budgets[cat] = &model.Budget{
			Category:     cat,
			MonthlyLimit: new(uint256.Int).Set(limit),
			Committed:    new(uint256.Int),
		}
	}
	return w
}

// Restore rebuilds a workflow from persisted proposals and budgets.
func Restore(l *ledger.Ledger, rec oplog.Recorder, sink notifier.EventSink, policy Policy, proposals map[uuid.UUID]*model.TreasuryProposal, budgets map[model.Category]*model.Budget, month string) *Workflow {
	w := &Workflow{
		ledger:    l,
		rec:       rec,
		sink:      sink,
		policy:    policy,
		proposals: make(map[uuid.UUID]*model.TreasuryProposal, len(proposals)),
		budgets:   make(map[model.Category]*model.Budget, len(budgets)),
		month:     month,
		notified:  make(map[model.Category]string),
	}
	for id, p := range proposals {
		w.proposals[id] = copyProposal(p)
	}
	for cat, b := range budgets {
		w.budgets[cat] = &model.Budget{
			Category:     cat,
			MonthlyLimit: new(uint256.Int).Set(b.MonthlyLimit),
			Committed:    new(uint256.Int).Set(b.Committed),
		}
	}
	return w
}

func copyProposal(p *model.TreasuryProposal) *model.TreasuryProposal {
	cp := *p
	cp.Amount = new(uint256.Int).Set(p.Amount)
	cp.Approvals = append([]string(nil), p.Approvals...)
	return &cp
}

func (w *Workflow) authorized(actor string) bool {
	for _, a := range w.policy.Approvers {
		if a == actor {
			return true
		}
	}
	return false
}

// Propose files a withdrawal request and commits its amount against the
// category budget immediately, so concurrent proposals cannot jointly
// overshoot the monthly limit.
func (w *Workflow) Propose(now time.Time, proposer string, category model.Category, amount *uint256.Int, target string) (*model.TreasuryProposal, error) {
	if amount == nil || amount.IsZero() {
		return nil, model.Errf(model.KindInvariant, model.CodeInvariantError, "zero-amount proposal")
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.authorized(proposer) {
		return nil, model.Errf(model.KindPolicy, model.CodeNotAuthorized,
			"%s is not a treasury approver", proposer)
	}
	budget, ok := w.budgets[category]
	if !ok {
		return nil, model.Errf(model.KindConflict, model.CodeNotFound,
			"unknown treasury category %q", category)
	}
	next := new(uint256.Int).Add(budget.Committed, amount)
	if next.Cmp(budget.MonthlyLimit) > 0 {
		return nil, model.Errf(model.KindPolicy, model.CodeBudgetExceeded,
			"category %s: committed %s + %s exceeds monthly limit %s",
			category, budget.Committed.Dec(), amount.Dec(), budget.MonthlyLimit.Dec())
	}
	budget.Committed.Set(next)

	p := &model.TreasuryProposal{
		ID:        uuid.New(),
		Category:  category,
		Amount:    new(uint256.Int).Set(amount),
		Target:    target,
		Proposer:  proposer,
		State:     model.ProposalPending,
		CreatedAt: now,
	}
	w.proposals[p.ID] = p
	w.recordProposal(p, "PROPOSE", proposer)
	w.checkThreshold(budget, now)
	return copyProposal(p), nil
}

// checkThreshold fires at most one notification per level per category per
// month. Callers hold w.mu.
func (w *Workflow) checkThreshold(b *model.Budget, now time.Time) {
	if w.sink == nil {
		return
	}
	util := b.UtilizationPct()
	level := ""
	switch {
	case util >= criticalThresholdPct:
		level = "critical"
	case util >= warnThresholdPct:
		level = "warning"
	}
	if level == "" || w.notified[b.Category] == level ||
		(w.notified[b.Category] == "critical" && level == "warning") {
		return
	}
	w.notified[b.Category] = level
	w.sink.BudgetThreshold(&notifier.BudgetThresholdEvent{
		Category:       b.Category,
		UtilizationPct: util,
		Level:          level,
		Time:           now,
	})
}

// Approve adds a distinct approval. Reaching the required count moves the
// proposal to Approved and starts the execution delay clock.
func (w *Workflow) Approve(now time.Time, approver string, id uuid.UUID) (*model.TreasuryProposal, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.authorized(approver) {
		return nil, model.Errf(model.KindPolicy, model.CodeNotAuthorized,
			"%s is not a treasury approver", approver)
	}
	p, ok := w.proposals[id]
	if !ok {
		return nil, model.Errf(model.KindConflict, model.CodeNotFound, "unknown proposal %s", id)
	}
	// Approvals past the required count change nothing; only Pending
	// proposals accept them.
	if p.State != model.ProposalPending {
		return nil, model.Errf(model.KindConflict, model.CodeAlreadyFinalized,
			"proposal %s is %s", id, p.State)
	}
	if p.HasApproval(approver) {
		return nil, model.Errf(model.KindConflict, model.CodeDuplicateApproval,
			"%s already approved proposal %s", approver, id)
	}

	p.Approvals = append(p.Approvals, approver)
	if len(p.Approvals) >= w.policy.RequiredApprovals {
		p.State = model.ProposalApproved
		p.ApprovedAt = now
	}
	w.recordProposal(p, "APPROVE", approver)
	return copyProposal(p), nil
}

// Reject finalizes a proposal and hands its budget commitment back.
func (w *Workflow) Reject(now time.Time, approver string, id uuid.UUID) (*model.TreasuryProposal, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.authorized(approver) {
		return nil, model.Errf(model.KindPolicy, model.CodeNotAuthorized,
			"%s is not a treasury approver", approver)
	}
	p, ok := w.proposals[id]
	if !ok {
		return nil, model.Errf(model.KindConflict, model.CodeNotFound, "unknown proposal %s", id)
	}
	if p.State.Terminal() {
		return nil, model.Errf(model.KindConflict, model.CodeAlreadyFinalized,
			"proposal %s is %s", id, p.State)
	}

	p.State = model.ProposalRejected
	p.ClosedAt = now
	w.releaseBudget(p)
	w.recordProposal(p, "REJECT", approver)
	return copyProposal(p), nil
}

// Execute moves the funds of an approved proposal once the delay has
// elapsed. A ledger rejection leaves the proposal Approved for a retry.
func (w *Workflow) Execute(now time.Time, actor string, id uuid.UUID) (*model.TreasuryProposal, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.authorized(actor) {
		return nil, model.Errf(model.KindPolicy, model.CodeNotAuthorized,
			"%s is not a treasury approver", actor)
	}
	p, ok := w.proposals[id]
	if !ok {
		return nil, model.Errf(model.KindConflict, model.CodeNotFound, "unknown proposal %s", id)
	}
	if p.State.Terminal() {
		return nil, model.Errf(model.KindConflict, model.CodeAlreadyFinalized,
			"proposal %s is %s", id, p.State)
	}
	if p.State != model.ProposalApproved {
		return nil, model.Errf(model.KindConflict, model.CodeNotAuthorized,
			"proposal %s has %d of %d required approvals",
			id, len(p.Approvals), w.policy.RequiredApprovals)
	}
	if elapsed := now.Sub(p.ApprovedAt); elapsed < w.policy.ExecutionDelay {
		return nil, model.Errf(model.KindPolicy, model.CodeDelayNotElapsed,
			"proposal %s approved %s ago, delay is %s", id, elapsed, w.policy.ExecutionDelay)
	}

	err := w.ledger.Move(now, actor, model.PoolAccount(model.PoolTreasury),
		model.HolderAccount(p.Target), p.Amount, oplog.OpTreasuryExecute,
		"proposal "+p.ID.String())
	if err != nil {
		return nil, err
	}

	p.State = model.ProposalExecuted
	p.ClosedAt = now
	w.recordProposal(p, "EXECUTE", actor)
	return copyProposal(p), nil
}

// ExpireSweep finalizes open proposals older than the TTL and hands their
// budget commitments back. Run periodically.
func (w *Workflow) ExpireSweep(now time.Time) (expired int) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, p := range w.proposals {
		if p.State.Terminal() || now.Sub(p.CreatedAt) < w.policy.ProposalTTL {
			continue
		}
		p.State = model.ProposalExpired
		p.ClosedAt = now
		w.releaseBudget(p)
		w.recordProposal(p, "EXPIRE", "system")
		expired++
	}
	return expired
}

// releaseBudget hands a finalized proposal's commitment back to its
// category. Callers hold w.mu.
func (w *Workflow) releaseBudget(p *model.TreasuryProposal) {
	b, ok := w.budgets[p.Category]
	if !ok {
		return
	}
	if b.Committed.Cmp(p.Amount) < 0 {
		// Committed was reset since the proposal was filed.
		b.Committed.Clear()
		return
	}
	b.Committed.Sub(b.Committed, p.Amount)
}

// ResetBudgets starts a new budget month. Commitments of still-open
// proposals carry over; everything else resets to zero.
func (w *Workflow) ResetBudgets(now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()

	month := now.Format("2006-01")
	if month == w.month {
		return
	}
	for _, b := range w.budgets {
		b.Committed.Clear()
	}
	for _, p := range w.proposals {
		if p.State.Terminal() {
			continue
		}
		if b, ok := w.budgets[p.Category]; ok {
			b.Committed.Add(b.Committed, p.Amount)
		}
	}
	w.month = month
	w.notified = make(map[model.Category]string)
	log.Printf("[INFO] treasury budgets reset for %s", month)
}

// Month returns the current budget month.
func (w *Workflow) Month() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.month
}

// Proposal returns a copy of one proposal.
func (w *Workflow) Proposal(id uuid.UUID) (*model.TreasuryProposal, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	p, ok := w.proposals[id]
	if !ok {
		return nil, model.Errf(model.KindConflict, model.CodeNotFound, "unknown proposal %s", id)
	}
	return copyProposal(p), nil
}

// Proposals returns copies of all proposals, newest first.
func (w *Workflow) Proposals() []*model.TreasuryProposal {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]*model.TreasuryProposal, 0, len(w.proposals))
	for _, p := range w.proposals {
		out = append(out, copyProposal(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (w *Workflow) recordProposal(p *model.TreasuryProposal, event, actor string) {
	if w.rec == nil {
		return
	}
	if err := w.rec.RecordProposal(&oplog.ProposalEvent{
		ProposalID: p.ID.String(),
		Event:      event,
		Actor:      actor,
		Category:   string(p.Category),
		Amount:     p.Amount.Dec(),
		State:      string(p.State),
	}); err != nil {
		log.Printf("[ERROR] record proposal event %s %s: %v", event, p.ID, err)
	}
}

// Snapshot returns deep copies of proposals and budgets for persistence.
func (w *Workflow) Snapshot() (proposals map[uuid.UUID]*model.TreasuryProposal, budgets map[model.Category]*model.Budget, month string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	proposals = make(map[uuid.UUID]*model.TreasuryProposal, len(w.proposals))
	for id, p := range w.proposals {
		proposals[id] = copyProposal(p)
	}
	budgets = make(map[model.Category]*model.Budget, len(w.budgets))
	for cat, b := range w.budgets {
		budgets[cat] = &model.Budget{
			Category:     cat,
			MonthlyLimit: new(uint256.Int).Set(b.MonthlyLimit),
			Committed:    new(uint256.Int).Set(b.Committed),
		}
	}
	return proposals, budgets, w.month
}
