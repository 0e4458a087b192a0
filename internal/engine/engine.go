// Package engine wires the ledger, vesting scheduler, sale controller,
// treasury workflow and price oracle into one facade and snapshots the
// combined state to disk after every successful mutation.
package engine

import (
	"fmt"
	"log"
	"time"

	"SupplySentinel/internal/config"
	"SupplySentinel/internal/guard"
	"SupplySentinel/internal/ledger"
	"SupplySentinel/internal/model"
	"SupplySentinel/internal/notifier"
	"SupplySentinel/internal/oplog"
	"SupplySentinel/internal/oracle"
	"SupplySentinel/internal/sale"
	"SupplySentinel/internal/token"
	"SupplySentinel/internal/treasury"
	"SupplySentinel/internal/vesting"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// Engine is the top-level coordinator. All mutations go through it so that
// every successful one ends with a fresh state snapshot on disk.
type Engine struct {
	stateFile string

	ledger   *ledger.Ledger
	vesting  *vesting.Scheduler
	sale     *sale.Controller
	treasury *treasury.Workflow
	oracle   *oracle.Oracle
	tguard   *guard.TransferGuard
}

// New builds an engine from config, restoring a prior snapshot when one
// exists. A fresh start applies the configured vesting grants once.
func New(cfg *config.Config, rec oplog.Recorder, sink notifier.EventSink, settler sale.Settler) (*Engine, error) {
	total, err := cfg.TotalSupply()
	if err != nil {
		return nil, err
	}
	dailyCap, err := cfg.Amount("transfer_guard.daily_cap", cfg.TransferGuard.DailyCap)
	if err != nil {
		return nil, err
	}
	largeThreshold, err := cfg.Amount("transfer_guard.large_threshold", cfg.TransferGuard.LargeThreshold)
	if err != nil {
		return nil, err
	}
	maxChange, err := decimal.NewFromString(cfg.PriceGuard.MaxChangePct)
	if err != nil {
		return nil, fmt.Errorf("price_guard.max_change_pct: %w", err)
	}
	minPurchase, err := cfg.Amount("sale.min_purchase", cfg.Sale.MinPurchase)
	if err != nil {
		return nil, err
	}
	whaleLimit, err := cfg.Amount("sale.whale_limit", cfg.Sale.WhaleLimit)
	if err != nil {
		return nil, err
	}
	raiseCap, err := cfg.RaiseCapUSD()
	if err != nil {
		return nil, err
	}
	budgets, err := cfg.Budgets()
	if err != nil {
		return nil, err
	}

	prior, err := LoadState(cfg.Engine.StateFile)
	if err != nil {
		return nil, fmt.Errorf("load engine state: %w", err)
	}

	e := &Engine{stateFile: cfg.Engine.StateFile}

	var priorGuard *model.TransferGuardState
	var priorPrices map[string]*model.PriceRecord
	if prior != nil {
		priorGuard = prior.TransferGuard
		priorPrices = prior.Prices
	}
	e.tguard = guard.NewTransferGuard(guard.TransferPolicy{
		Window:         time.Duration(cfg.TransferGuard.WindowHours) * time.Hour,
		DailyCap:       dailyCap,
		LargeThreshold: largeThreshold,
	}, priorGuard)
	pguard := guard.NewPriceGuard(guard.PricePolicy{
		MinInterval:  time.Duration(cfg.PriceGuard.MinIntervalMinutes) * time.Minute,
		MaxChangePct: maxChange,
	}, priorPrices)
	e.oracle = oracle.New(pguard, cfg.PaymentInstruments(), rec)

	salePolicy := sale.Policy{
		MinPurchaseTokens: minPurchase,
		WhaleLimitTokens:  whaleLimit,
		RaiseCapUSD:       raiseCap,
	}
	treasuryPolicy := treasury.Policy{
		Approvers:         cfg.Treasury.Approvers,
		RequiredApprovals: cfg.Treasury.RequiredApprovals,
		ExecutionDelay:    time.Duration(cfg.Treasury.ExecutionDelayHours) * time.Hour,
		ProposalTTL:       time.Duration(cfg.Treasury.ProposalTTLDays) * 24 * time.Hour,
	}

	if prior != nil {
		e.ledger, err = ledger.Restore(total, prior.Pools, prior.Holders, rec, sink)
		if err != nil {
			return nil, err
		}
		e.ledger.SetGuard(model.PoolOperational, e.tguard)
		e.vesting = vesting.Restore(e.ledger, rec, prior.Schedules, prior.Reserved, prior.VestingPaused)
		e.sale, err = sale.Restore(e.ledger, e.oracle, settler, rec, salePolicy, prior.Tiers, prior.Investments)
		if err != nil {
			return nil, err
		}
		e.treasury = treasury.Restore(e.ledger, rec, sink, treasuryPolicy, prior.Proposals, prior.Budgets, prior.BudgetMonth)
		log.Printf("[INFO] engine state restored from %s (%d schedules, %d proposals)",
			cfg.Engine.StateFile, len(prior.Schedules), len(prior.Proposals))
		return e, nil
	}

	alloc, err := cfg.Allocations()
	if err != nil {
		return nil, err
	}
	e.ledger, err = ledger.New(total, alloc, rec, sink)
	if err != nil {
		return nil, err
	}
	e.ledger.SetGuard(model.PoolOperational, e.tguard)
	e.vesting = vesting.New(e.ledger, rec)
	tiers, err := cfg.Tiers()
	if err != nil {
		return nil, err
	}
	e.sale, err = sale.New(e.ledger, e.oracle, settler, rec, salePolicy, tiers)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	e.treasury = treasury.New(e.ledger, rec, sink, treasuryPolicy, budgets, now)

	for i, g := range cfg.Grants {
		amount, err := cfg.Amount(fmt.Sprintf("grants[%d].amount", i), g.Amount)
		if err != nil {
			return nil, err
		}
		_, err = e.vesting.Register(now, g.Beneficiary, model.PoolAccount(model.PoolID(g.Pool)),
			amount, time.Duration(g.CliffDays)*24*time.Hour,
			time.Duration(g.DurationDays)*24*time.Hour, g.CliffBps)
		if err != nil {
			return nil, fmt.Errorf("apply grant for %s: %w", g.Beneficiary, err)
		}
		log.Printf("[INFO] vesting grant applied: %s tokens to %s from %s",
			token.WholeString(amount), g.Beneficiary, g.Pool)
	}
	e.persist()
	log.Printf("[INFO] engine initialized: supply %s across %d pools",
		token.WholeString(total), len(alloc))
	return e, nil
}

// persist snapshots the full engine state to the state file. Failures are
// logged; the in-memory mutation has already committed.
func (e *Engine) persist() {
	pools, holders := e.ledger.Snapshot()
	schedules, reserved, paused := e.vesting.Snapshot()
	tiers, investments := e.sale.Snapshot()
	proposals, budgets, month := e.treasury.Snapshot()
	st := &model.EngineState{
		Pools:         pools,
		Holders:       holders,
		Schedules:     schedules,
		Reserved:      reserved,
		VestingPaused: paused,
		Tiers:         tiers,
		Investments:   investments,
		TransferGuard: e.tguard.Snapshot(),
		Prices:        e.oracle.Snapshot(),
		Proposals:     proposals,
		Budgets:       budgets,
		BudgetMonth:   month,
	}
	if err := SaveState(e.stateFile, st); err != nil {
		log.Printf("[ERROR] save engine state: %v", err)
	}
}

// Transfer moves tokens between two accounts through the guarded ledger.
func (e *Engine) Transfer(now time.Time, actor string, from, to model.Account, amount *uint256.Int) error {
	if err := e.ledger.Move(now, actor, from, to, amount, oplog.OpMove, ""); err != nil {
		return err
	}
	e.persist()
	return nil
}

// SetTransferGuardEnabled toggles the transfer cap (administrative override).
func (e *Engine) SetTransferGuardEnabled(enabled bool) {
	e.tguard.SetEnabled(enabled)
	log.Printf("[WARN] transfer guard enabled=%v", enabled)
	e.persist()
}

// GuardStatus reports the current window usage.
func (e *Engine) GuardStatus(now time.Time) (moved, limit *uint256.Int, enabled bool) {
	moved, limit = e.tguard.Usage(now)
	return moved, limit, e.tguard.Enabled()
}

// RegisterVesting creates a vesting schedule against a source account.
func (e *Engine) RegisterVesting(now time.Time, beneficiary string, source model.Account, amount *uint256.Int, cliff, duration time.Duration, cliffBps uint32) (*model.VestingSchedule, error) {
	sch, err := e.vesting.Register(now, beneficiary, source, amount, cliff, duration, cliffBps)
	if err != nil {
		return nil, err
	}
	e.persist()
	return sch, nil
}

// ReleaseVested releases the newly vested delta of one schedule.
func (e *Engine) ReleaseVested(id uuid.UUID, now time.Time) (*uint256.Int, error) {
	delta, err := e.vesting.Release(id, now)
	if err != nil {
		return nil, err
	}
	e.persist()
	return delta, nil
}

// ReleaseAllVested sweeps every schedule once.
func (e *Engine) ReleaseAllVested(now time.Time) (released int, total *uint256.Int) {
	released, total = e.vesting.ReleaseAll(now)
	if released > 0 {
		e.persist()
	}
	return released, total
}

// PauseVesting blocks all releases until ResumeVesting.
func (e *Engine) PauseVesting() {
	e.vesting.Pause()
	log.Printf("[WARN] vesting releases paused")
	e.persist()
}

// ResumeVesting re-enables releases.
func (e *Engine) ResumeVesting() {
	e.vesting.Resume()
	log.Printf("[INFO] vesting releases resumed")
	e.persist()
}

// VestingStatus summarizes the scheduler for reporting.
func (e *Engine) VestingStatus() (schedules, active int, total, released *uint256.Int, paused bool) {
	return e.vesting.Status()
}

// SetWhitelisted marks an investor as allowed to purchase.
func (e *Engine) SetWhitelisted(investor string, allowed bool) {
	e.sale.SetWhitelisted(investor, allowed)
	e.persist()
}

// QuoteSale prices a purchase without committing anything.
func (e *Engine) QuoteSale(investor string, tokens *uint256.Int) ([]model.TierFill, decimal.Decimal, error) {
	return e.sale.Quote(investor, tokens)
}

// Purchase executes a sale purchase end to end.
func (e *Engine) Purchase(now time.Time, investor string, tokens *uint256.Int, instrument string, payment *uint256.Int) (*model.Purchase, error) {
	p, err := e.sale.Purchase(now, investor, tokens, instrument, payment)
	if err != nil {
		return nil, err
	}
	e.persist()
	return p, nil
}

// EstablishSaleVesting moves an investor's pending purchased tokens under a
// vesting schedule.
func (e *Engine) EstablishSaleVesting(now time.Time, investor string, cliff, duration time.Duration, cliffBps uint32) (*model.VestingSchedule, error) {
	sch, err := e.sale.EstablishVesting(now, investor, e.vesting, cliff, duration, cliffBps)
	if err != nil {
		return nil, err
	}
	e.persist()
	return sch, nil
}

// SaleReport summarizes sale progress.
func (e *Engine) SaleReport() *model.SaleReport {
	return e.sale.Report()
}

// ProposeWithdrawal files a treasury withdrawal request.
func (e *Engine) ProposeWithdrawal(now time.Time, proposer string, category model.Category, amount *uint256.Int, target string) (*model.TreasuryProposal, error) {
	p, err := e.treasury.Propose(now, proposer, category, amount, target)
	if err != nil {
		return nil, err
	}
	e.persist()
	return p, nil
}

// ApproveWithdrawal adds an approval to a proposal.
func (e *Engine) ApproveWithdrawal(now time.Time, approver string, id uuid.UUID) (*model.TreasuryProposal, error) {
	p, err := e.treasury.Approve(now, approver, id)
	if err != nil {
		return nil, err
	}
	e.persist()
	return p, nil
}

// RejectWithdrawal finalizes a proposal as rejected.
func (e *Engine) RejectWithdrawal(now time.Time, approver string, id uuid.UUID) (*model.TreasuryProposal, error) {
	p, err := e.treasury.Reject(now, approver, id)
	if err != nil {
		return nil, err
	}
	e.persist()
	return p, nil
}

// ExecuteWithdrawal moves the funds of an approved proposal.
func (e *Engine) ExecuteWithdrawal(now time.Time, actor string, id uuid.UUID) (*model.TreasuryProposal, error) {
	p, err := e.treasury.Execute(now, actor, id)
	if err != nil {
		return nil, err
	}
	e.persist()
	return p, nil
}

// ExpireProposals finalizes open proposals past their TTL.
func (e *Engine) ExpireProposals(now time.Time) int {
	n := e.treasury.ExpireSweep(now)
	if n > 0 {
		e.persist()
	}
	return n
}

// ResetBudgets starts a new treasury budget month.
func (e *Engine) ResetBudgets(now time.Time) {
	e.treasury.ResetBudgets(now)
	e.persist()
}

// TreasuryHealth scores the treasury's condition.
func (e *Engine) TreasuryHealth() *model.TreasuryHealth {
	return e.treasury.Health()
}

// TreasuryMonth returns the current budget month.
func (e *Engine) TreasuryMonth() string {
	return e.treasury.Month()
}

// TreasuryProposals lists all proposals, newest first.
func (e *Engine) TreasuryProposals() []*model.TreasuryProposal {
	return e.treasury.Proposals()
}

// SubmitPrice offers a new guarded price for a payment instrument.
func (e *Engine) SubmitPrice(symbol string, price decimal.Decimal, now time.Time) error {
	if err := e.oracle.SubmitPrice(symbol, price, now); err != nil {
		return err
	}
	e.persist()
	return nil
}

// PullPrices refreshes every instrument price from the source.
func (e *Engine) PullPrices(src oracle.Source, now time.Time) {
	e.oracle.PullAll(src, now)
	e.persist()
}

// Pools returns copies of all pools in stable order.
func (e *Engine) Pools() []*model.Pool { return e.ledger.Pools() }

// HoldersTotal returns the sum of all holder balances.
func (e *Engine) HoldersTotal() *uint256.Int { return e.ledger.HoldersTotal() }

// TotalSupply returns the fixed supply.
func (e *Engine) TotalSupply() *uint256.Int { return e.ledger.TotalSupply() }

// Balance returns an account balance.
func (e *Engine) Balance(a model.Account) *uint256.Int { return e.ledger.Balance(a) }

// CheckConservation verifies the supply invariant.
func (e *Engine) CheckConservation() error { return e.ledger.CheckConservation() }
