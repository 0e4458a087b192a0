package treasury

import (
	"testing"
	"time"

	"SupplySentinel/internal/ledger"
	"SupplySentinel/internal/model"
	"SupplySentinel/internal/notifier"
	"SupplySentinel/internal/token"

	"github.com/holiman/uint256"
)

type captureSink struct {
	budget []*notifier.BudgetThresholdEvent
}

func (s *captureSink) LargeTransfer(*notifier.LargeTransferEvent)         {}
func (s *captureSink) BudgetThreshold(evt *notifier.BudgetThresholdEvent) { s.budget = append(s.budget, evt) }

func testLimits() map[model.Category]*uint256.Int {
	return map[model.Category]*uint256.Int{
		model.CategoryDevelopment: token.FromWhole(20_000_000),
		model.CategoryMarketing:   token.FromWhole(15_000_000),
		model.CategoryOperations:  token.FromWhole(15_000_000),
		model.CategoryInvestments: token.FromWhole(25_000_000),
		model.CategoryEmergency:   token.FromWhole(15_000_000),
		model.CategoryGovernance:  token.FromWhole(10_000_000),
	}
}

func newTestWorkflow(t *testing.T, sink notifier.EventSink) (*Workflow, *ledger.Ledger) {
	t.Helper()
	l, err := ledger.New(token.FromWhole(200_000_000), map[model.PoolID]*uint256.Int{
		model.PoolTreasury: token.FromWhole(200_000_000),
	}, nil, nil)
	if err != nil {
		t.Fatalf("ledger.New: %v", err)
	}
	w := New(l, nil, sink, Policy{
		Approvers:         []string{"alice", "bob", "carol"},
		RequiredApprovals: 2,
		ExecutionDelay:    48 * time.Hour,
		ProposalTTL:       7 * 24 * time.Hour,
	}, testLimits(), time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	return w, l
}

func TestProposeCommitsBudget(t *testing.T) {
	w, _ := newTestWorkflow(t, nil)
	now := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	if _, err := w.Propose(now, "alice", model.CategoryDevelopment, token.FromWhole(15_000_000), "vendor-1"); err != nil {
		t.Fatalf("Propose: %v", err)
	}

	// The commitment counts even though nothing is approved yet.
	_, err := w.Propose(now, "bob", model.CategoryDevelopment, token.FromWhole(6_000_000), "vendor-2")
	if !model.IsCode(err, model.CodeBudgetExceeded) {
		t.Fatalf("err = %v, want %s", err, model.CodeBudgetExceeded)
	}

	// A different category is unaffected.
	if _, err := w.Propose(now, "bob", model.CategoryMarketing, token.FromWhole(6_000_000), "agency"); err != nil {
		t.Errorf("marketing proposal: %v", err)
	}
}

func TestProposeRequiresApprover(t *testing.T) {
	w, _ := newTestWorkflow(t, nil)
	_, err := w.Propose(time.Now(), "mallory", model.CategoryDevelopment, token.FromWhole(1_000), "x")
	if !model.IsCode(err, model.CodeNotAuthorized) {
		t.Fatalf("err = %v, want %s", err, model.CodeNotAuthorized)
	}
	_, err = w.Propose(time.Now(), "alice", model.Category("slush"), token.FromWhole(1_000), "x")
	if !model.IsCode(err, model.CodeNotFound) {
		t.Fatalf("err = %v, want %s", err, model.CodeNotFound)
	}
}

func TestApprovalLifecycle(t *testing.T) {
	w, l := newTestWorkflow(t, nil)
	now := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	amount := token.FromWhole(5_000_000)

	p, err := w.Propose(now, "alice", model.CategoryOperations, amount, "payroll")
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}

	// Executing an unapproved proposal is refused.
	if _, err := w.Execute(now, "alice", p.ID); !model.IsCode(err, model.CodeNotAuthorized) {
		t.Fatalf("execute pending err = %v, want %s", err, model.CodeNotAuthorized)
	}

	if _, err := w.Approve(now, "alice", p.ID); err != nil {
		t.Fatalf("first approval: %v", err)
	}
	if _, err := w.Approve(now, "alice", p.ID); !model.IsCode(err, model.CodeDuplicateApproval) {
		t.Fatalf("duplicate approval err = %v, want %s", err, model.CodeDuplicateApproval)
	}

	got, err := w.Approve(now.Add(time.Hour), "bob", p.ID)
	if err != nil {
		t.Fatalf("second approval: %v", err)
	}
	if got.State != model.ProposalApproved {
		t.Fatalf("state = %s after 2 of 2 approvals", got.State)
	}

	// Once Approved, further approvals are refused rather than recorded.
	if _, err := w.Approve(now.Add(2*time.Hour), "carol", p.ID); !model.IsCode(err, model.CodeAlreadyFinalized) {
		t.Fatalf("approve past threshold err = %v, want %s", err, model.CodeAlreadyFinalized)
	}
	if cur, err := w.Proposal(p.ID); err != nil || len(cur.Approvals) != 2 {
		t.Fatalf("approvals after refused third approval = %v, %v, want 2", cur, err)
	}

	// The delay runs from the approval instant.
	_, err = w.Execute(now.Add(47*time.Hour), "carol", p.ID)
	if !model.IsCode(err, model.CodeDelayNotElapsed) {
		t.Fatalf("early execute err = %v, want %s", err, model.CodeDelayNotElapsed)
	}

	execAt := now.Add(time.Hour + 48*time.Hour)
	got, err = w.Execute(execAt, "carol", p.ID)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got.State != model.ProposalExecuted {
		t.Errorf("state = %s, want Executed", got.State)
	}
	if bal := l.Balance(model.HolderAccount("payroll")); bal.Cmp(amount) != 0 {
		t.Errorf("target balance = %s, want %s", bal.Dec(), amount.Dec())
	}

	// Terminal states admit nothing further.
	if _, err := w.Execute(execAt, "carol", p.ID); !model.IsCode(err, model.CodeAlreadyFinalized) {
		t.Errorf("re-execute err = %v, want %s", err, model.CodeAlreadyFinalized)
	}
	if _, err := w.Approve(execAt, "carol", p.ID); !model.IsCode(err, model.CodeAlreadyFinalized) {
		t.Errorf("approve after execute err = %v, want %s", err, model.CodeAlreadyFinalized)
	}
	if err := l.CheckConservation(); err != nil {
		t.Errorf("conservation: %v", err)
	}
}

func TestRejectReleasesBudget(t *testing.T) {
	w, _ := newTestWorkflow(t, nil)
	now := time.Now()

	p, err := w.Propose(now, "alice", model.CategoryGovernance, token.FromWhole(10_000_000), "dao")
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
	// Budget fully committed.
	if _, err := w.Propose(now, "bob", model.CategoryGovernance, token.FromWhole(1_000), "dao"); !model.IsCode(err, model.CodeBudgetExceeded) {
		t.Fatalf("err = %v, want %s", err, model.CodeBudgetExceeded)
	}

	if _, err := w.Reject(now, "bob", p.ID); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	// Commitment handed back.
	if _, err := w.Propose(now, "bob", model.CategoryGovernance, token.FromWhole(10_000_000), "dao"); err != nil {
		t.Errorf("propose after reject: %v", err)
	}
}

func TestExpireSweep(t *testing.T) {
	w, _ := newTestWorkflow(t, nil)
	now := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	p, err := w.Propose(now, "alice", model.CategoryEmergency, token.FromWhole(15_000_000), "incident")
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}

	if n := w.ExpireSweep(now.Add(6 * 24 * time.Hour)); n != 0 {
		t.Errorf("expired %d before TTL", n)
	}
	if n := w.ExpireSweep(now.Add(8 * 24 * time.Hour)); n != 1 {
		t.Errorf("expired %d, want 1", n)
	}
	got, _ := w.Proposal(p.ID)
	if got.State != model.ProposalExpired {
		t.Errorf("state = %s, want Expired", got.State)
	}
	// Budget handed back.
	if _, err := w.Propose(now.Add(8*24*time.Hour), "alice", model.CategoryEmergency, token.FromWhole(15_000_000), "incident"); err != nil {
		t.Errorf("propose after expiry: %v", err)
	}
}

func TestBudgetThresholdNotifications(t *testing.T) {
	sink := &captureSink{}
	w, _ := newTestWorkflow(t, sink)
	now := time.Now()

	// 93% of the marketing budget: one critical notification.
	if _, err := w.Propose(now, "alice", model.CategoryMarketing, token.FromWhole(14_000_000), "agency"); err != nil {
		t.Fatalf("Propose: %v", err)
	}
	if len(sink.budget) != 1 || sink.budget[0].Level != "critical" {
		t.Fatalf("events = %+v, want one critical", sink.budget)
	}

	// Further proposals in the same band stay quiet.
	if _, err := w.Propose(now, "alice", model.CategoryMarketing, token.FromWhole(500_000), "agency"); err != nil {
		t.Fatalf("Propose: %v", err)
	}
	if len(sink.budget) != 1 {
		t.Errorf("events = %d after repeat, want 1", len(sink.budget))
	}
}

func TestResetBudgetsCarriesOpenProposals(t *testing.T) {
	w, _ := newTestWorkflow(t, nil)
	now := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)

	open, err := w.Propose(now, "alice", model.CategoryDevelopment, token.FromWhole(8_000_000), "vendor")
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
	closed, err := w.Propose(now, "alice", model.CategoryDevelopment, token.FromWhole(8_000_000), "vendor")
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
	if _, err := w.Reject(now, "bob", closed.ID); err != nil {
		t.Fatalf("Reject: %v", err)
	}

	w.ResetBudgets(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC))
	if w.Month() != "2026-04" {
		t.Errorf("month = %s, want 2026-04", w.Month())
	}

	// The open proposal's 8M carries over; 12M of headroom remains.
	if _, err := w.Propose(now, "alice", model.CategoryDevelopment, token.FromWhole(13_000_000), "vendor"); !model.IsCode(err, model.CodeBudgetExceeded) {
		t.Fatalf("err = %v, want %s", err, model.CodeBudgetExceeded)
	}
	if _, err := w.Propose(now, "alice", model.CategoryDevelopment, token.FromWhole(12_000_000), "vendor"); err != nil {
		t.Errorf("within carried budget: %v", err)
	}
	_ = open
}

func TestHealthScore(t *testing.T) {
	w, _ := newTestWorkflow(t, nil)

	// Untouched budgets, 2 months of runway at full spend (200M / 100M).
	h := w.Health()
	if h.UtilizationPct != 0 {
		t.Errorf("utilization = %.1f, want 0", h.UtilizationPct)
	}
	if h.RunwayMonths != 2 {
		t.Errorf("runway = %.1f, want 2", h.RunwayMonths)
	}
	if h.Score != 60 {
		t.Errorf("score = %d, want 60", h.Score)
	}
	if h.Status != "caution" {
		t.Errorf("status = %s, want caution", h.Status)
	}
	if len(h.Categories) != 6 {
		t.Errorf("categories = %d, want 6", len(h.Categories))
	}

	// Committing most of one budget pushes it critical.
	if _, err := w.Propose(time.Now(), "alice", model.CategoryGovernance, token.FromWhole(9_500_000), "dao"); err != nil {
		t.Fatalf("Propose: %v", err)
	}
	h = w.Health()
	var gov *model.BudgetStatus
	for i := range h.Categories {
		if h.Categories[i].Category == model.CategoryGovernance {
			gov = &h.Categories[i]
		}
	}
	if gov == nil || gov.Status != "critical" {
		t.Errorf("governance status = %+v, want critical", gov)
	}
	if len(h.Recommendations) == 0 {
		t.Error("no recommendations for critical budget")
	}
}
