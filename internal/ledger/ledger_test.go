package ledger

import (
	"testing"
	"time"

	"SupplySentinel/internal/guard"
	"SupplySentinel/internal/model"
	"SupplySentinel/internal/notifier"
	"SupplySentinel/internal/token"

	"github.com/holiman/uint256"
)

type captureSink struct {
	large  []*notifier.LargeTransferEvent
	budget []*notifier.BudgetThresholdEvent
}

func (s *captureSink) LargeTransfer(evt *notifier.LargeTransferEvent) {
	s.large = append(s.large, evt)
}

func (s *captureSink) BudgetThreshold(evt *notifier.BudgetThresholdEvent) {
	s.budget = append(s.budget, evt)
}

func testAllocations() (total *uint256.Int, alloc map[model.PoolID]*uint256.Int) {
	alloc = map[model.PoolID]*uint256.Int{
		model.PoolOperational:       token.FromWhole(250_000_000),
		model.PoolFounder:           token.FromWhole(150_000_000),
		model.PoolTreasury:          token.FromWhole(200_000_000),
		model.PoolEcosystem:         token.FromWhole(150_000_000),
		model.PoolPrivateSale:       token.FromWhole(100_000_000),
		model.PoolAdvisor:           token.FromWhole(50_000_000),
		model.PoolEmergencyOverride: token.FromWhole(100_000_000),
	}
	return token.FromWhole(1_000_000_000), alloc
}

func newTestLedger(t *testing.T, sink notifier.EventSink) *Ledger {
	t.Helper()
	total, alloc := testAllocations()
	l, err := New(total, alloc, nil, sink)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return l
}

func TestNewRejectsAllocationMismatch(t *testing.T) {
	total, alloc := testAllocations()
	alloc[model.PoolAdvisor] = token.FromWhole(49_000_000)
	_, err := New(total, alloc, nil, nil)
	if err == nil {
		t.Fatal("expected allocation mismatch error")
	}
	if model.ErrKind(err) != model.KindInvariant {
		t.Errorf("kind = %s, want %s", model.ErrKind(err), model.KindInvariant)
	}
}

func TestMoveConservesSupply(t *testing.T) {
	l := newTestLedger(t, nil)
	now := time.Now()

	from := model.PoolAccount(model.PoolEcosystem)
	to := model.HolderAccount("alice")
	amount := token.FromWhole(1_000)

	if err := l.Move(now, "ops", from, to, amount, "MOVE", ""); err != nil {
		t.Fatalf("Move: %v", err)
	}
	if got := l.Balance(to); got.Cmp(amount) != 0 {
		t.Errorf("holder balance = %s, want %s", got.Dec(), amount.Dec())
	}
	want := new(uint256.Int).Sub(token.FromWhole(150_000_000), amount)
	if got := l.Balance(from); got.Cmp(want) != 0 {
		t.Errorf("pool balance = %s, want %s", got.Dec(), want.Dec())
	}
	if err := l.CheckConservation(); err != nil {
		t.Errorf("conservation broken after move: %v", err)
	}
}

func TestMoveInsufficientBalanceLeavesState(t *testing.T) {
	l := newTestLedger(t, nil)
	now := time.Now()

	from := model.PoolAccount(model.PoolAdvisor)
	before := l.Balance(from)

	err := l.Move(now, "ops", from, model.HolderAccount("bob"), token.FromWhole(50_000_001), "MOVE", "")
	if !model.IsCode(err, model.CodeInsufficientBalance) {
		t.Fatalf("err = %v, want %s", err, model.CodeInsufficientBalance)
	}
	if got := l.Balance(from); got.Cmp(before) != 0 {
		t.Errorf("pool balance changed on rejection: %s -> %s", before.Dec(), got.Dec())
	}
	if got := l.Balance(model.HolderAccount("bob")); !got.IsZero() {
		t.Errorf("holder credited on rejection: %s", got.Dec())
	}
}

func TestMoveUnknownHolderDebit(t *testing.T) {
	l := newTestLedger(t, nil)
	err := l.Move(time.Now(), "ops", model.HolderAccount("ghost"),
		model.PoolAccount(model.PoolTreasury), token.FromWhole(1), "MOVE", "")
	if !model.IsCode(err, model.CodeInsufficientBalance) {
		t.Fatalf("err = %v, want %s", err, model.CodeInsufficientBalance)
	}
}

func TestMoveRejectsZeroAndSelf(t *testing.T) {
	l := newTestLedger(t, nil)
	now := time.Now()
	pool := model.PoolAccount(model.PoolTreasury)

	if err := l.Move(now, "ops", pool, model.HolderAccount("a"), token.Zero(), "MOVE", ""); err == nil {
		t.Error("zero-amount move accepted")
	}
	if err := l.Move(now, "ops", pool, pool, token.FromWhole(1), "MOVE", ""); err == nil {
		t.Error("self-move accepted")
	}
}

func TestGuardCapSequence(t *testing.T) {
	l := newTestLedger(t, nil)
	l.SetGuard(model.PoolOperational, guard.NewTransferGuard(guard.TransferPolicy{
		Window:   24 * time.Hour,
		DailyCap: token.FromWhole(50_000_000),
	}, nil))

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	from := model.PoolAccount(model.PoolOperational)
	to := model.HolderAccount("market-maker")

	if err := l.Move(now, "ops", from, to, token.FromWhole(30_000_000), "MOVE", ""); err != nil {
		t.Fatalf("first move: %v", err)
	}
	if err := l.Move(now.Add(time.Hour), "ops", from, to, token.FromWhole(20_000_000), "MOVE", ""); err != nil {
		t.Fatalf("second move: %v", err)
	}

	err := l.Move(now.Add(2*time.Hour), "ops", from, to, token.FromWhole(1), "MOVE", "")
	if !model.IsCode(err, model.CodeDailyLimitExceeded) {
		t.Fatalf("over-cap err = %v, want %s", err, model.CodeDailyLimitExceeded)
	}

	// New window resets the cap.
	if err := l.Move(now.Add(25*time.Hour), "ops", from, to, token.FromWhole(1_000), "MOVE", ""); err != nil {
		t.Fatalf("move in next window: %v", err)
	}
	if err := l.CheckConservation(); err != nil {
		t.Errorf("conservation broken: %v", err)
	}
}

func TestGuardRejectionLeavesWindow(t *testing.T) {
	l := newTestLedger(t, nil)
	g := guard.NewTransferGuard(guard.TransferPolicy{
		Window:   24 * time.Hour,
		DailyCap: token.FromWhole(50_000_000),
	}, nil)
	l.SetGuard(model.PoolOperational, g)

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	from := model.PoolAccount(model.PoolOperational)
	to := model.HolderAccount("mm")

	if err := l.Move(now, "ops", from, to, token.FromWhole(40_000_000), "MOVE", ""); err != nil {
		t.Fatalf("first move: %v", err)
	}
	if err := l.Move(now, "ops", from, to, token.FromWhole(20_000_000), "MOVE", ""); err == nil {
		t.Fatal("over-cap move accepted")
	}
	// The remaining headroom must still be usable.
	if err := l.Move(now, "ops", from, to, token.FromWhole(10_000_000), "MOVE", ""); err != nil {
		t.Fatalf("headroom move after rejection: %v", err)
	}
}

func TestGuardScopedToPool(t *testing.T) {
	l := newTestLedger(t, nil)
	l.SetGuard(model.PoolOperational, guard.NewTransferGuard(guard.TransferPolicy{
		Window:   24 * time.Hour,
		DailyCap: token.FromWhole(50_000_000),
	}, nil))

	// Debits from other pools do not consume the operational window.
	err := l.Move(time.Now(), "ops", model.PoolAccount(model.PoolTreasury),
		model.HolderAccount("vendor"), token.FromWhole(80_000_000), "MOVE", "")
	if err != nil {
		t.Fatalf("unguarded pool move: %v", err)
	}
}

func TestLargeTransferNotifiesEvenWhenDisabled(t *testing.T) {
	sink := &captureSink{}
	l := newTestLedger(t, sink)
	g := guard.NewTransferGuard(guard.TransferPolicy{
		Window:         24 * time.Hour,
		DailyCap:       token.FromWhole(50_000_000),
		LargeThreshold: token.FromWhole(1_000_000),
	}, nil)
	g.SetEnabled(false)
	l.SetGuard(model.PoolOperational, g)

	now := time.Now()
	from := model.PoolAccount(model.PoolOperational)
	to := model.HolderAccount("whale")

	// Disabled guard bypasses the cap but the notification still fires.
	if err := l.Move(now, "ops", from, to, token.FromWhole(60_000_000), "MOVE", ""); err != nil {
		t.Fatalf("move with disabled guard: %v", err)
	}
	if len(sink.large) != 1 {
		t.Fatalf("large events = %d, want 1", len(sink.large))
	}
	if sink.large[0].GuardEnabled {
		t.Error("event reports guard enabled")
	}

	// Below the threshold nothing fires.
	if err := l.Move(now, "ops", from, to, token.FromWhole(100), "MOVE", ""); err != nil {
		t.Fatalf("small move: %v", err)
	}
	if len(sink.large) != 1 {
		t.Errorf("large events = %d after small move, want 1", len(sink.large))
	}
}

func TestRestoreRoundTrip(t *testing.T) {
	l := newTestLedger(t, nil)
	now := time.Now()
	if err := l.Move(now, "ops", model.PoolAccount(model.PoolEcosystem),
		model.HolderAccount("alice"), token.FromWhole(5_000), "MOVE", ""); err != nil {
		t.Fatalf("Move: %v", err)
	}

	pools, holders := l.Snapshot()
	restored, err := Restore(l.TotalSupply(), pools, holders, nil, nil)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if got := restored.Balance(model.HolderAccount("alice")); got.Cmp(token.FromWhole(5_000)) != 0 {
		t.Errorf("restored holder balance = %s", got.Dec())
	}
	if err := restored.CheckConservation(); err != nil {
		t.Errorf("restored conservation: %v", err)
	}

	// A corrupted snapshot must be refused.
	holders["alice"] = token.FromWhole(6_000)
	if _, err := Restore(l.TotalSupply(), pools, holders, nil, nil); err == nil {
		t.Error("corrupted snapshot accepted")
	}
}
