// Package sale implements the tiered private sale: fixed-price tiers that
// fill strictly in order, per-investor limits, payment valuation through the
// price oracle and a two-phase settlement handshake. Purchased tokens land
// in the investor's holder account and stay flagged as pending until a
// vesting schedule is established over them.
package sale

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"SupplySentinel/internal/ledger"
	"SupplySentinel/internal/model"
	"SupplySentinel/internal/oplog"
	"SupplySentinel/internal/oracle"
	"SupplySentinel/internal/token"
	"SupplySentinel/internal/vesting"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// Settler confirms receipt of the payment leg of a purchase. Confirm is
// called without any controller lock held; implementations may block on
// network I/O.
type Settler interface {
	Confirm(purchaseID uuid.UUID, investor, instrument string, amount *uint256.Int) error
}

// Policy configures per-investor sale limits. A zero RaiseCapUSD means no
// cap on the total raised.
type Policy struct {
	MinPurchaseTokens *uint256.Int
	WhaleLimitTokens  *uint256.Int
	RaiseCapUSD       decimal.Decimal
}

// Controller runs the private sale against the private_sale pool.
type Controller struct {
	mu          sync.Mutex
	ledger      *ledger.Ledger
	oracle      *oracle.Oracle
	settler     Settler
	rec         oplog.Recorder
	policy      Policy
	tiers       []*model.SaleTier
	investments map[string]*model.Investment
	raised      decimal.Decimal
}

// New creates a controller over the given tier table. Tiers must be in
// index order with strictly increasing prices.
func New(l *ledger.Ledger, o *oracle.Oracle, settler Settler, rec oplog.Recorder, policy Policy, tiers []*model.SaleTier) (*Controller, error) {
	if len(tiers) == 0 {
		return nil, model.Errf(model.KindInvariant, model.CodeInvariantError, "no sale tiers")
	}
	c := &Controller{
		ledger:      l,
		oracle:      o,
		settler:     settler,
		rec:         rec,
		policy:      policy,
		tiers:       make([]*model.SaleTier, len(tiers)),
		investments: make(map[string]*model.Investment),
	}
	var prev decimal.Decimal
	for i, t := range tiers {
		if t.Index != i {
			return nil, model.Errf(model.KindInvariant, model.CodeInvariantError,
				"tier %d has index %d", i, t.Index)
		}
		if i > 0 && !t.UnitPriceUSD.GreaterThan(prev) {
			return nil, model.Errf(model.KindInvariant, model.CodeInvariantError,
				"tier %d price %s does not increase over %s", i, t.UnitPriceUSD, prev)
		}
		prev = t.UnitPriceUSD
		c.tiers[i] = copyTier(t)
	}
	return c, nil
}

// Restore rebuilds a controller from persisted tiers and investments.
func Restore(l *ledger.Ledger, o *oracle.Oracle, settler Settler, rec oplog.Recorder, policy Policy, tiers []*model.SaleTier, investments map[string]*model.Investment) (*Controller, error) {
	c, err := New(l, o, settler, rec, policy, tiers)
	if err != nil {
		return nil, err
	}
	for id, inv := range investments {
		c.investments[id] = copyInvestment(inv)
		c.raised = c.raised.Add(inv.TotalPaidUSD)
	}
	return c, nil
}

func copyTier(t *model.SaleTier) *model.SaleTier {
	return &model.SaleTier{
		Index:          t.Index,
		UnitPriceUSD:   t.UnitPriceUSD,
		CapacityTokens: new(uint256.Int).Set(t.CapacityTokens),
		SoldTokens:     new(uint256.Int).Set(t.SoldTokens),
	}
}

func copyInvestment(inv *model.Investment) *model.Investment {
	return &model.Investment{
		Investor:       inv.Investor,
		TotalPurchased: new(uint256.Int).Set(inv.TotalPurchased),
		TotalPaidUSD:   inv.TotalPaidUSD,
		Whitelisted:    inv.Whitelisted,
		PendingVesting: new(uint256.Int).Set(inv.PendingVesting),
	}
}

// SetWhitelisted marks an investor as allowed (or not) to purchase.
func (c *Controller) SetWhitelisted(investor string, allowed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	inv := c.investment(investor)
	inv.Whitelisted = allowed
}

// investment returns the live record for an investor, creating it on first
// touch. Callers hold c.mu.
func (c *Controller) investment(investor string) *model.Investment {
	inv, ok := c.investments[investor]
	if !ok {
		inv = &model.Investment{
			Investor:       investor,
			TotalPurchased: new(uint256.Int),
			PendingVesting: new(uint256.Int),
		}
		c.investments[investor] = inv
	}
	return inv
}

// fills walks the tiers in order and returns the breakdown and total cost
// for a token amount. Callers hold c.mu.
func (c *Controller) fills(tokens *uint256.Int) ([]model.TierFill, decimal.Decimal, error) {
	remaining := new(uint256.Int).Set(tokens)
	var out []model.TierFill
	cost := decimal.Zero
	for _, t := range c.tiers {
		if remaining.IsZero() {
			break
		}
		avail := t.Remaining()
		if avail.IsZero() {
			continue
		}
		take := token.Min(remaining, avail)
		fillCost := token.ToDecimal(take, token.Decimals).Mul(t.UnitPriceUSD)
		out = append(out, model.TierFill{
			Tier:         t.Index,
			Tokens:       take,
			UnitPriceUSD: t.UnitPriceUSD,
			CostUSD:      fillCost,
		})
		cost = cost.Add(fillCost)
		remaining.Sub(remaining, take)
	}
	// The raise cap is the sum of all tier capacities.
	if !remaining.IsZero() {
		return nil, decimal.Zero, model.Errf(model.KindExhaustion, model.CodeRaiseCapExceeded,
			"sale tiers hold %s fewer tokens than requested", remaining.Dec())
	}
	return out, cost, nil
}

// validate runs every purchase precondition and prices the request.
// Callers hold c.mu.
func (c *Controller) validate(investor string, tokens *uint256.Int) ([]model.TierFill, decimal.Decimal, error) {
	if tokens.Cmp(c.policy.MinPurchaseTokens) < 0 {
		return nil, decimal.Zero, model.Errf(model.KindPolicy, model.CodeBelowMinimum,
			"%s tokens is below the %s minimum", tokens.Dec(), c.policy.MinPurchaseTokens.Dec())
	}
	inv := c.investment(investor)
	if !inv.Whitelisted {
		return nil, decimal.Zero, model.Errf(model.KindPolicy, model.CodeNotWhitelisted,
			"investor %s is not whitelisted", investor)
	}
	cumulative := new(uint256.Int).Add(inv.TotalPurchased, tokens)
	if cumulative.Cmp(c.policy.WhaleLimitTokens) > 0 {
		return nil, decimal.Zero, model.Errf(model.KindPolicy, model.CodeWhaleLimitExceeded,
			"investor %s would hold %s, limit is %s",
			investor, cumulative.Dec(), c.policy.WhaleLimitTokens.Dec())
	}
	fills, cost, err := c.fills(tokens)
	if err != nil {
		return nil, decimal.Zero, err
	}
	if c.policy.RaiseCapUSD.IsPositive() && c.raised.Add(cost).GreaterThan(c.policy.RaiseCapUSD) {
		return nil, decimal.Zero, model.Errf(model.KindExhaustion, model.CodeUSDCapExceeded,
			"raise %s + %s exceeds cap %s", c.raised, cost, c.policy.RaiseCapUSD)
	}
	return fills, cost, nil
}

// Quote prices a purchase without committing anything.
func (c *Controller) Quote(investor string, tokens *uint256.Int) ([]model.TierFill, decimal.Decimal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.validate(investor, tokens)
}

// Purchase executes a sale in two phases. Phase one validates and prices
// the request under the lock. The settler then confirms the payment with no
// lock held. Phase two re-validates and re-prices under the lock before
// committing; if the sale moved against the buyer in between, the purchase
// fails closed rather than honoring a stale quote.
func (c *Controller) Purchase(now time.Time, investor string, tokens *uint256.Int, instrument string, payment *uint256.Int) (*model.Purchase, error) {
	id := uuid.New()

	c.mu.Lock()
	_, quotedCost, err := c.validate(investor, tokens)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	paid, err := c.oracle.USDValue(instrument, payment)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	if paid.LessThan(quotedCost) {
		c.mu.Unlock()
		return nil, model.Errf(model.KindPolicy, model.CodeInsufficientPayment,
			"payment worth %s USD, need %s", paid, quotedCost)
	}
	c.mu.Unlock()

	if err := c.settler.Confirm(id, investor, instrument, payment); err != nil {
		return nil, model.Errf(model.KindConflict, model.CodeSettlementFailed,
			"purchase %s: %v", id, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	fills, cost, err := c.validate(investor, tokens)
	if err != nil {
		return nil, err
	}
	if paid.LessThan(cost) {
		return nil, model.Errf(model.KindPolicy, model.CodeInsufficientPayment,
			"price moved during settlement: payment worth %s USD, need %s", paid, cost)
	}

	err = c.ledger.Move(now, investor, model.PoolAccount(model.PoolPrivateSale),
		model.HolderAccount(investor), tokens, oplog.OpSalePurchase, "purchase "+id.String())
	if err != nil {
		return nil, err
	}

	for _, f := range fills {
		c.tiers[f.Tier].SoldTokens.Add(c.tiers[f.Tier].SoldTokens, f.Tokens)
	}
	inv := c.investment(investor)
	inv.TotalPurchased.Add(inv.TotalPurchased, tokens)
	inv.TotalPaidUSD = inv.TotalPaidUSD.Add(cost)
	inv.PendingVesting.Add(inv.PendingVesting, tokens)
	c.raised = c.raised.Add(cost)

	p := &model.Purchase{
		ID:            id,
		Investor:      investor,
		TokenAmount:   new(uint256.Int).Set(tokens),
		CostUSD:       cost,
		Instrument:    instrument,
		PaymentAmount: new(uint256.Int).Set(payment),
		Fills:         fills,
		Time:          now,
	}
	if c.rec != nil {
		if err := c.rec.RecordPurchase(&oplog.PurchaseEvent{
			PurchaseID: id.String(),
			Investor:   investor,
			Tokens:     tokens.Dec(),
			CostUSD:    cost.String(),
			Instrument: instrument,
			Tiers:      tiersNote(fills),
		}); err != nil {
			log.Printf("[ERROR] record purchase %s: %v", id, err)
		}
	}
	return p, nil
}

func tiersNote(fills []model.TierFill) string {
	parts := make([]string, len(fills))
	for i, f := range fills {
		parts[i] = fmt.Sprintf("%d:%s@%s", f.Tier, token.WholeString(f.Tokens), f.UnitPriceUSD)
	}
	return strings.Join(parts, " ")
}

// EstablishVesting moves an investor's pending purchased tokens under a
// vesting schedule sourced from their holder account.
func (c *Controller) EstablishVesting(now time.Time, investor string, sched *vesting.Scheduler, cliff, duration time.Duration, cliffBps uint32) (*model.VestingSchedule, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	inv, ok := c.investments[investor]
	if !ok || inv.PendingVesting.IsZero() {
		return nil, model.Errf(model.KindConflict, model.CodeNothingToRelease,
			"investor %s has no purchased tokens awaiting vesting", investor)
	}
	s, err := sched.Register(now, investor, model.HolderAccount(investor),
		inv.PendingVesting, cliff, duration, cliffBps)
	if err != nil {
		return nil, err
	}
	inv.PendingVesting.Clear()
	return s, nil
}

// Investment returns a copy of one investor's record.
func (c *Controller) Investment(investor string) (*model.Investment, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	inv, ok := c.investments[investor]
	if !ok {
		return nil, model.Errf(model.KindConflict, model.CodeNotFound,
			"no investment record for %s", investor)
	}
	return copyInvestment(inv), nil
}

// Report summarizes sale progress across all tiers.
func (c *Controller) Report() *model.SaleReport {
	c.mu.Lock()
	defer c.mu.Unlock()

	rep := &model.SaleReport{
		TokensSold:      new(uint256.Int),
		TokensRemaining: new(uint256.Int),
		RaisedUSD:       c.raised,
	}
	for _, t := range c.tiers {
		rep.TokensSold.Add(rep.TokensSold, t.SoldTokens)
		rep.TokensRemaining.Add(rep.TokensRemaining, t.Remaining())
		rep.Tiers = append(rep.Tiers, model.TierStatus{
			Index:        t.Index,
			UnitPriceUSD: t.UnitPriceUSD,
			Sold:         new(uint256.Int).Set(t.SoldTokens),
			Remaining:    t.Remaining(),
			SoldOut:      t.Remaining().IsZero(),
		})
	}
	if !rep.TokensSold.IsZero() {
		rep.WeightedAvgPrice = c.raised.Div(token.ToDecimal(rep.TokensSold, token.Decimals))
	}
	for _, inv := range c.investments {
		if !inv.TotalPurchased.IsZero() {
			rep.Investors++
		}
		if inv.Whitelisted {
			rep.Whitelisted++
		}
	}
	return rep
}

// Snapshot returns deep copies of tiers and investments for persistence.
func (c *Controller) Snapshot() (tiers []*model.SaleTier, investments map[string]*model.Investment) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tiers = make([]*model.SaleTier, len(c.tiers))
	for i, t := range c.tiers {
		tiers[i] = copyTier(t)
	}
	investments = make(map[string]*model.Investment, len(c.investments))
	for id, inv := range c.investments {
		investments[id] = copyInvestment(inv)
	}
	return tiers, investments
}
