package guard

import (
	"sync"
	"time"

	"SupplySentinel/internal/model"

	"github.com/shopspring/decimal"
)

// PricePolicy configures the price guard. MaxChangePct is a fraction
// (0.10 = 10%).
type PricePolicy struct {
	MinInterval  time.Duration
	MaxChangePct decimal.Decimal
}

// PriceGuard rate- and delta-limits oracle price updates per instrument.
// The first-ever price for an instrument is accepted without checks.
type PriceGuard struct {
	mu     sync.Mutex
	policy PricePolicy
	last   map[string]*model.PriceRecord
}

// NewPriceGuard creates a guard, optionally restoring prior price records.
func NewPriceGuard(policy PricePolicy, prior map[string]*model.PriceRecord) *PriceGuard {
	g := &PriceGuard{policy: policy, last: make(map[string]*model.PriceRecord)}
	for sym, rec := range prior {
		r := *rec
		g.last[sym] = &r
	}
	return g
}

// Accept validates a new price against the policy and records it, as one
// step. A rejection leaves the stored price untouched.
func (g *PriceGuard) Accept(symbol string, price decimal.Decimal, now time.Time) error {
	if !price.IsPositive() {
		return model.Errf(model.KindPolicy, model.CodeDeltaTooLarge,
			"instrument %s: price must be positive, got %s", symbol, price)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if rec, ok := g.last[symbol]; ok {
		if now.Sub(rec.UpdatedAt) < g.policy.MinInterval {
			return model.Errf(model.KindPolicy, model.CodeTooSoon,
				"instrument %s: last update %s ago, minimum interval %s",
				symbol, now.Sub(rec.UpdatedAt), g.policy.MinInterval)
		}
		change := price.Sub(rec.Price).Abs().Div(rec.Price)
		if change.GreaterThan(g.policy.MaxChangePct) {
			return model.Errf(model.KindPolicy, model.CodeDeltaTooLarge,
				"instrument %s: change %s from %s to %s exceeds %s",
				symbol, change, rec.Price, price, g.policy.MaxChangePct)
		}
	}

	g.last[symbol] = &model.PriceRecord{Price: price, UpdatedAt: now}
	return nil
}

// Last returns the last accepted price for an instrument.
func (g *PriceGuard) Last(symbol string) (model.PriceRecord, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	rec, ok := g.last[symbol]
	if !ok {
		return model.PriceRecord{}, false
	}
	return *rec, true
}

// Snapshot returns a copy of all price records for persistence.
func (g *PriceGuard) Snapshot() map[string]*model.PriceRecord {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[string]*model.PriceRecord, len(g.last))
	for sym, rec := range g.last {
		r := *rec
		out[sym] = &r
	}
	return out
}
