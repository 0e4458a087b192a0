package guard

import (
	"testing"
	"time"

	"SupplySentinel/internal/model"

	"github.com/holiman/uint256"
)

func whole(n uint64) *uint256.Int {
	base := new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(18))
	return new(uint256.Int).Mul(uint256.NewInt(n), base)
}

func TestConsumeWindowCap(t *testing.T) {
	g := NewTransferGuard(TransferPolicy{
		Window:   24 * time.Hour,
		DailyCap: whole(50_000_000),
	}, nil)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	steps := []struct {
		name   string
		at     time.Time
		amount *uint256.Int
		wantOK bool
	}{
		{"first fill", now, whole(30_000_000), true},
		{"exactly to the cap", now.Add(time.Hour), whole(20_000_000), true},
		{"one over", now.Add(2 * time.Hour), whole(1), false},
		{"retry same amount still over", now.Add(3 * time.Hour), whole(1), false},
		{"fresh window", now.Add(25 * time.Hour), whole(50_000_000), true},
		{"fresh window exhausted", now.Add(26 * time.Hour), whole(1), false},
	}
	for _, s := range steps {
		_, err := g.Consume(s.at, s.amount)
		if (err == nil) != s.wantOK {
			t.Errorf("%s: err = %v, wantOK = %v", s.name, err, s.wantOK)
		}
		if err != nil && !model.IsCode(err, model.CodeDailyLimitExceeded) {
			t.Errorf("%s: code = %s", s.name, model.ErrCode(err))
		}
	}
}

func TestConsumeLargeFlag(t *testing.T) {
	g := NewTransferGuard(TransferPolicy{
		Window:         24 * time.Hour,
		DailyCap:       whole(50_000_000),
		LargeThreshold: whole(1_000_000),
	}, nil)
	now := time.Now()

	large, err := g.Consume(now, whole(999_999))
	if err != nil || large {
		t.Errorf("below threshold: large=%v err=%v", large, err)
	}
	large, err = g.Consume(now, whole(1_000_000))
	if err != nil || !large {
		t.Errorf("at threshold: large=%v err=%v", large, err)
	}

	// The flag reports even on a rejected transfer.
	large, err = g.Consume(now, whole(60_000_000))
	if err == nil || !large {
		t.Errorf("rejected large: large=%v err=%v", large, err)
	}
}

func TestDisabledBypassesCap(t *testing.T) {
	g := NewTransferGuard(TransferPolicy{
		Window:         24 * time.Hour,
		DailyCap:       whole(50_000_000),
		LargeThreshold: whole(1_000_000),
	}, nil)
	g.SetEnabled(false)

	now := time.Now()
	large, err := g.Consume(now, whole(200_000_000))
	if err != nil {
		t.Fatalf("disabled guard rejected: %v", err)
	}
	if !large {
		t.Error("large flag lost while disabled")
	}

	// Re-enabling starts from the untouched window.
	g.SetEnabled(true)
	if _, err := g.Consume(now, whole(50_000_000)); err != nil {
		t.Errorf("full cap unavailable after re-enable: %v", err)
	}
}

func TestSnapshotRestore(t *testing.T) {
	g := NewTransferGuard(TransferPolicy{
		Window:   24 * time.Hour,
		DailyCap: whole(50_000_000),
	}, nil)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	if _, err := g.Consume(now, whole(49_000_000)); err != nil {
		t.Fatalf("Consume: %v", err)
	}

	g2 := NewTransferGuard(TransferPolicy{
		Window:   24 * time.Hour,
		DailyCap: whole(50_000_000),
	}, g.Snapshot())

	if _, err := g2.Consume(now.Add(time.Minute), whole(2_000_000)); err == nil {
		t.Error("restored guard forgot the window usage")
	}
	if _, err := g2.Consume(now.Add(time.Minute), whole(1_000_000)); err != nil {
		t.Errorf("restored guard lost its headroom: %v", err)
	}
}
