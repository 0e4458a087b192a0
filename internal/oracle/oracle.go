// Package oracle maintains guarded USD prices for the accepted payment
// instruments and values payments against them.
package oracle

import (
	"log"
	"sync"
	"time"

	"SupplySentinel/internal/guard"
	"SupplySentinel/internal/model"
	"SupplySentinel/internal/oplog"
	"SupplySentinel/internal/token"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// Oracle holds the instrument registry and the last accepted price per
// instrument. Every submission passes the price guard before it is stored.
type Oracle struct {
	mu          sync.Mutex
	guard       *guard.PriceGuard
	instruments map[string]model.PaymentInstrument
	rec         oplog.Recorder
}

// New creates an oracle for the given payment instruments.
func New(g *guard.PriceGuard, instruments []model.PaymentInstrument, rec oplog.Recorder) *Oracle {
	o := &Oracle{
		guard:       g,
		instruments: make(map[string]model.PaymentInstrument, len(instruments)),
		rec:         rec,
	}
	for _, inst := range instruments {
		o.instruments[inst.Symbol] = inst
	}
	return o
}

// Instrument looks up a registered payment instrument.
func (o *Oracle) Instrument(symbol string) (model.PaymentInstrument, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	inst, ok := o.instruments[symbol]
	if !ok {
		return model.PaymentInstrument{}, model.Errf(model.KindConflict, model.CodeNotFound,
			"unknown payment instrument %q", symbol)
	}
	return inst, nil
}

// SubmitPrice offers a new USD price for an instrument. The guard decides
// acceptance; either way the submission is recorded.
func (o *Oracle) SubmitPrice(symbol string, price decimal.Decimal, now time.Time) error {
	if _, err := o.Instrument(symbol); err != nil {
		return err
	}
	err := o.guard.Accept(symbol, price, now)
	if o.rec != nil {
		reason := ""
		if err != nil {
			reason = err.Error()
		}
		if recErr := o.rec.RecordPrice(&oplog.PriceEvent{
			Symbol:   symbol,
			Price:    price.String(),
			Accepted: err == nil,
			Reason:   reason,
		}); recErr != nil {
			log.Printf("[ERROR] record price update %s: %v", symbol, recErr)
		}
	}
	return err
}

// Price returns the last accepted USD price for an instrument.
func (o *Oracle) Price(symbol string) (decimal.Decimal, error) {
	if _, err := o.Instrument(symbol); err != nil {
		return decimal.Zero, err
	}
	rec, ok := o.guard.Last(symbol)
	if !ok {
		return decimal.Zero, model.Errf(model.KindConflict, model.CodeNotFound,
			"no price on record for %q", symbol)
	}
	return rec.Price, nil
}

// USDValue values a raw payment amount (in the instrument's base units) at
// the last accepted price.
func (o *Oracle) USDValue(symbol string, raw *uint256.Int) (decimal.Decimal, error) {
	inst, err := o.Instrument(symbol)
	if err != nil {
		return decimal.Zero, err
	}
	price, err := o.Price(symbol)
	if err != nil {
		return decimal.Zero, err
	}
	return token.ToDecimal(raw, inst.Decimals).Mul(price), nil
}

// PullAll fetches a fresh price for every instrument from the source and
// submits it. Per-instrument failures are logged and do not stop the pull.
func (o *Oracle) PullAll(src Source, now time.Time) {
	o.mu.Lock()
	symbols := make([]string, 0, len(o.instruments))
	for sym := range o.instruments {
		symbols = append(symbols, sym)
	}
	o.mu.Unlock()

	for _, sym := range symbols {
		price, err := src.FetchPrice(sym)
		if err != nil {
			log.Printf("[WARN] fetch %s price from %s: %v", sym, src.Name(), err)
			continue
		}
		if err := o.SubmitPrice(sym, price, now); err != nil {
			log.Printf("[WARN] price update %s=%s rejected: %v", sym, price, err)
		}
	}
}

// Snapshot returns the guarded price records for persistence.
func (o *Oracle) Snapshot() map[string]*model.PriceRecord {
	return o.guard.Snapshot()
}
