package oracle

import (
	"testing"
	"time"

	"SupplySentinel/internal/guard"
	"SupplySentinel/internal/model"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

func newTestOracle() *Oracle {
	g := guard.NewPriceGuard(guard.PricePolicy{
		MinInterval:  time.Hour,
		MaxChangePct: decimal.NewFromFloat(0.10),
	}, nil)
	return New(g, []model.PaymentInstrument{
		{Symbol: "USDT", Decimals: 6},
		{Symbol: "ETH", Decimals: 18},
	}, nil)
}

func TestSubmitPriceGuarded(t *testing.T) {
	o := newTestOracle()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// First-ever price is accepted unchecked.
	if err := o.SubmitPrice("ETH", decimal.NewFromInt(3000), now); err != nil {
		t.Fatalf("first price: %v", err)
	}

	// Too soon after the last accepted update.
	err := o.SubmitPrice("ETH", decimal.NewFromInt(3010), now.Add(10*time.Minute))
	if !model.IsCode(err, model.CodeTooSoon) {
		t.Fatalf("err = %v, want %s", err, model.CodeTooSoon)
	}

	// Past the interval but moving more than 10%.
	err = o.SubmitPrice("ETH", decimal.NewFromInt(3400), now.Add(2*time.Hour))
	if !model.IsCode(err, model.CodeDeltaTooLarge) {
		t.Fatalf("err = %v, want %s", err, model.CodeDeltaTooLarge)
	}

	// Rejections leave the stored price untouched.
	price, err := o.Price("ETH")
	if err != nil {
		t.Fatalf("Price: %v", err)
	}
	if !price.Equal(decimal.NewFromInt(3000)) {
		t.Errorf("price = %s, want 3000", price)
	}

	// A within-bounds update lands.
	if err := o.SubmitPrice("ETH", decimal.NewFromInt(3200), now.Add(2*time.Hour)); err != nil {
		t.Fatalf("valid update: %v", err)
	}
}

func TestSubmitPriceUnknownInstrument(t *testing.T) {
	o := newTestOracle()
	err := o.SubmitPrice("DOGE", decimal.NewFromFloat(0.1), time.Now())
	if !model.IsCode(err, model.CodeNotFound) {
		t.Fatalf("err = %v, want %s", err, model.CodeNotFound)
	}
}

func TestUSDValue(t *testing.T) {
	o := newTestOracle()
	now := time.Now()
	if err := o.SubmitPrice("USDT", decimal.NewFromInt(1), now); err != nil {
		t.Fatalf("SubmitPrice: %v", err)
	}

	// 1500 USDT in 6-decimal base units.
	raw := new(uint256.Int).Mul(uint256.NewInt(1500), uint256.NewInt(1_000_000))
	value, err := o.USDValue("USDT", raw)
	if err != nil {
		t.Fatalf("USDValue: %v", err)
	}
	if !value.Equal(decimal.NewFromInt(1500)) {
		t.Errorf("value = %s, want 1500", value)
	}

	// Valuing without any price on record fails.
	if _, err := o.USDValue("ETH", raw); !model.IsCode(err, model.CodeNotFound) {
		t.Errorf("err = %v, want %s", err, model.CodeNotFound)
	}
}

func TestPullAll(t *testing.T) {
	o := newTestOracle()
	src := &MockSource{Prices: map[string]decimal.Decimal{
		"USDT": decimal.NewFromInt(1),
		"ETH":  decimal.NewFromInt(2800),
	}}
	o.PullAll(src, time.Now())

	for sym, want := range src.Prices {
		got, err := o.Price(sym)
		if err != nil {
			t.Fatalf("Price(%s): %v", sym, err)
		}
		if !got.Equal(want) {
			t.Errorf("Price(%s) = %s, want %s", sym, got, want)
		}
	}
}
