// Package guard implements reusable check-then-update primitives: a rolling
// window cap on transfers and a rate/delta limit on oracle price updates.
// Each guard performs its check and its state update inside one critical
// section, so a passing check can never be invalidated by a concurrent call.
package guard

import (
	"sync"
	"time"

	"SupplySentinel/internal/model"

	"github.com/holiman/uint256"
)

// TransferPolicy configures the transfer guard.
type TransferPolicy struct {
	Window         time.Duration
	DailyCap       *uint256.Int
	LargeThreshold *uint256.Int // notification threshold, never a rejection
}

// TransferGuard enforces a rolling-window cap on debits from a pool.
// While disabled, transfers bypass the cap but are still logged by the
// caller, and large-transfer notifications still fire.
type TransferGuard struct {
	mu     sync.Mutex
	policy TransferPolicy
	state  model.TransferGuardState
}

// NewTransferGuard creates a guard, optionally restoring prior window state.
func NewTransferGuard(policy TransferPolicy, prior *model.TransferGuardState) *TransferGuard {
	g := &TransferGuard{policy: policy}
	if prior != nil {
		g.state = *prior
		g.state.MovedInWindow = new(uint256.Int).Set(prior.MovedInWindow)
	} else {
		g.state = model.TransferGuardState{
			MovedInWindow: new(uint256.Int),
			Enabled:       true,
		}
	}
	return g
}

// Consume applies the cap check and accrues amount into the current window
// as one indivisible step. The returned large flag tells the caller to emit
// a large-transfer notification after commit. Re-invoking after a rejection
// leaves the window untouched.
func (g *TransferGuard) Consume(now time.Time, amount *uint256.Int) (large bool, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	large = g.policy.LargeThreshold != nil &&
		!g.policy.LargeThreshold.IsZero() &&
		amount.Cmp(g.policy.LargeThreshold) >= 0

	if !g.state.Enabled {
		return large, nil
	}

	if now.Sub(g.state.WindowStart) >= g.policy.Window {
		g.state.WindowStart = now
		g.state.MovedInWindow.Clear()
	}

	next := new(uint256.Int).Add(g.state.MovedInWindow, amount)
	if next.Cmp(g.policy.DailyCap) > 0 {
		return large, model.Errf(model.KindPolicy, model.CodeDailyLimitExceeded,
			"window total %s + %s exceeds cap %s",
			g.state.MovedInWindow.Dec(), amount.Dec(), g.policy.DailyCap.Dec())
	}
	g.state.MovedInWindow = next
	return large, nil
}

// SetEnabled toggles the guard (administrative override).
func (g *TransferGuard) SetEnabled(enabled bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state.Enabled = enabled
}

// Enabled reports whether the cap is enforced.
func (g *TransferGuard) Enabled() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state.Enabled
}

// Usage returns the amount moved in the current window and the cap, for
// status reporting. An expired window reads as zero.
func (g *TransferGuard) Usage(now time.Time) (moved, cap *uint256.Int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if now.Sub(g.state.WindowStart) >= g.policy.Window {
		return new(uint256.Int), new(uint256.Int).Set(g.policy.DailyCap)
	}
	return new(uint256.Int).Set(g.state.MovedInWindow), new(uint256.Int).Set(g.policy.DailyCap)
}

// Snapshot returns a copy of the guard state for persistence.
func (g *TransferGuard) Snapshot() *model.TransferGuardState {
	g.mu.Lock()
	defer g.mu.Unlock()
	st := g.state
	st.MovedInWindow = new(uint256.Int).Set(g.state.MovedInWindow)
	return &st
}
