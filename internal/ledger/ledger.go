// Package ledger tracks the fixed token supply as named pools plus holder
// accounts. Every balance change goes through Move, which checks the source
// balance, consults the pool's transfer guard and applies the debit and credit
// inside one critical section. The conservation invariant holds at all
// times: pool balances plus holder balances always sum to the total supply.
package ledger

import (
	"log"
	"sync"
	"time"

	"SupplySentinel/internal/guard"
	"SupplySentinel/internal/model"
	"SupplySentinel/internal/notifier"
	"SupplySentinel/internal/oplog"

	"github.com/holiman/uint256"
)

// Ledger is the single source of truth for token balances.
type Ledger struct {
	mu          sync.Mutex
	totalSupply *uint256.Int
	pools       map[model.PoolID]*model.Pool
	holders     map[string]*uint256.Int
	guards      map[model.PoolID]*guard.TransferGuard

	rec  oplog.Recorder
	sink notifier.EventSink
}

// New creates a ledger with the given initial pool allocations. The
// allocations must sum exactly to totalSupply.
func New(totalSupply *uint256.Int, allocations map[model.PoolID]*uint256.Int, rec oplog.Recorder, sink notifier.EventSink) (*Ledger, error) {
	sum := new(uint256.Int)
	for _, amount := range allocations {
		sum.Add(sum, amount)
	}
	if sum.Cmp(totalSupply) != 0 {
		return nil, model.Errf(model.KindInvariant, model.CodeInvariantError,
			"pool allocations sum to %s, total supply is %s", sum.Dec(), totalSupply.Dec())
	}

	l := &Ledger{
		totalSupply: new(uint256.Int).Set(totalSupply),
		pools:       make(map[model.PoolID]*model.Pool, len(allocations)),
		holders:     make(map[string]*uint256.Int),
		guards:      make(map[model.PoolID]*guard.TransferGuard),
		rec:         rec,
		sink:        sink,
	}
	now := time.Now()
	for _, id := range model.AllPools() {
		amount, ok := allocations[id]
		if !ok {
			continue
		}
		l.pools[id] = &model.Pool{
			ID:                 id,
			Balance:            new(uint256.Int).Set(amount),
			TotalEverAllocated: new(uint256.Int).Set(amount),
		}
		l.record(&oplog.Operation{
			Time:       now,
			Actor:      "system",
			Type:       oplog.OpInitialize,
			From:       "genesis",
			To:         model.PoolAccount(id).String(),
			Amount:     amount.Dec(),
			ToBefore:   "0",
			ToAfter:    amount.Dec(),
			FromBefore: "0",
			FromAfter:  "0",
		})
	}
	return l, nil
}

// Restore rebuilds a ledger from a persisted snapshot, verifying the
// conservation invariant before accepting it.
func Restore(totalSupply *uint256.Int, pools map[model.PoolID]*model.Pool, holders map[string]*uint256.Int, rec oplog.Recorder, sink notifier.EventSink) (*Ledger, error) {
	sum := new(uint256.Int)
	for _, p := range pools {
		sum.Add(sum, p.Balance)
	}
	for _, b := range holders {
		sum.Add(sum, b)
	}
	if sum.Cmp(totalSupply) != 0 {
		return nil, model.Errf(model.KindInvariant, model.CodeInvariantError,
			"snapshot balances sum to %s, total supply is %s", sum.Dec(), totalSupply.Dec())
	}

	l := &Ledger{
		totalSupply: new(uint256.Int).Set(totalSupply),
		pools:       make(map[model.PoolID]*model.Pool, len(pools)),
		holders:     make(map[string]*uint256.Int, len(holders)),
		guards:      make(map[model.PoolID]*guard.TransferGuard),
		rec:         rec,
		sink:        sink,
	}
	for id, p := range pools {
		l.pools[id] = &model.Pool{
			ID:                 id,
			Balance:            new(uint256.Int).Set(p.Balance),
			TotalEverAllocated: new(uint256.Int).Set(p.TotalEverAllocated),
		}
	}
	for id, b := range holders {
		l.holders[id] = new(uint256.Int).Set(b)
	}
	return l, nil
}

// SetGuard attaches a transfer guard consulted on every debit of the given
// pool. Pools without a guard move freely.
func (l *Ledger) SetGuard(pool model.PoolID, g *guard.TransferGuard) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.guards[pool] = g
}

// Move transfers amount between two accounts atomically. The source balance
// check, the guard check and both balance updates happen under one lock, so
// no interleaving can overdraw a pool or slip past the window cap. A
// rejection leaves every balance and the guard window untouched.
func (l *Ledger) Move(now time.Time, actor string, from, to model.Account, amount *uint256.Int, opType, note string) error {
	large, guarded, err := l.move(now, actor, from, to, amount, opType, note)
	if err != nil {
		return err
	}
	if large && l.sink != nil {
		l.sink.LargeTransfer(&notifier.LargeTransferEvent{
			From:         from.String(),
			To:           to.String(),
			Amount:       new(uint256.Int).Set(amount),
			GuardEnabled: guarded,
			Time:         now,
		})
	}
	return nil
}

func (l *Ledger) move(now time.Time, actor string, from, to model.Account, amount *uint256.Int, opType, note string) (large, guarded bool, err error) {
	if amount == nil || amount.IsZero() {
		return false, false, model.Errf(model.KindInvariant, model.CodeInvariantError,
			"zero-amount move from %s to %s", from, to)
	}
	if from == to {
		return false, false, model.Errf(model.KindInvariant, model.CodeInvariantError,
			"self-move on %s", from)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	fromBal, err := l.balanceRef(from)
	if err != nil {
		return false, false, err
	}
	if fromBal.Cmp(amount) < 0 {
		return false, false, model.Errf(model.KindExhaustion, model.CodeInsufficientBalance,
			"%s holds %s, need %s", from, fromBal.Dec(), amount.Dec())
	}

	if from.IsPool() {
		if g := l.guards[model.PoolID(from.ID)]; g != nil {
			guarded = g.Enabled()
			large, err = g.Consume(now, amount)
			if err != nil {
				return large, guarded, err
			}
		}
	}

	fromBefore := fromBal.Dec()
	toBal := l.creditRef(to)
	toBefore := toBal.Dec()

	fromBal.Sub(fromBal, amount)
	toBal.Add(toBal, amount)
	if to.IsPool() {
		l.pools[model.PoolID(to.ID)].TotalEverAllocated.Add(
			l.pools[model.PoolID(to.ID)].TotalEverAllocated, amount)
	}

	l.record(&oplog.Operation{
		Time:       now,
		Actor:      actor,
		Type:       opType,
		From:       from.String(),
		To:         to.String(),
		Amount:     amount.Dec(),
		FromBefore: fromBefore,
		FromAfter:  fromBal.Dec(),
		ToBefore:   toBefore,
		ToAfter:    toBal.Dec(),
		Note:       note,
	})
	return large, guarded, nil
}

// balanceRef returns the live balance of an account that must already
// exist. Debiting an unknown account is a state conflict, not a zero read.
func (l *Ledger) balanceRef(a model.Account) (*uint256.Int, error) {
	if a.IsPool() {
		p, ok := l.pools[model.PoolID(a.ID)]
		if !ok {
			return nil, model.Errf(model.KindConflict, model.CodeNotFound, "unknown pool %q", a.ID)
		}
		return p.Balance, nil
	}
	b, ok := l.holders[a.ID]
	if !ok {
		return nil, model.Errf(model.KindExhaustion, model.CodeInsufficientBalance,
			"%s holds nothing", a)
	}
	return b, nil
}

// creditRef returns the live balance to credit, creating holder accounts on
// first use. Credits to unknown pools are a programming error surfaced by
// the earlier account resolution in callers; here the pool must exist.
func (l *Ledger) creditRef(a model.Account) *uint256.Int {
	if a.IsPool() {
		return l.pools[model.PoolID(a.ID)].Balance
	}
	b, ok := l.holders[a.ID]
	if !ok {
		b = new(uint256.Int)
		l.holders[a.ID] = b
	}
	return b
}

func (l *Ledger) record(op *oplog.Operation) {
	if l.rec == nil {
		return
	}
	if err := l.rec.RecordOperation(op); err != nil {
		log.Printf("[ERROR] record operation %s %s -> %s: %v", op.Type, op.From, op.To, err)
	}
}

// Balance returns a copy of an account's balance. Unknown accounts read as
// zero.
func (l *Ledger) Balance(a model.Account) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if a.IsPool() {
		if p, ok := l.pools[model.PoolID(a.ID)]; ok {
			return new(uint256.Int).Set(p.Balance)
		}
		return new(uint256.Int)
	}
	if b, ok := l.holders[a.ID]; ok {
		return new(uint256.Int).Set(b)
	}
	return new(uint256.Int)
}

// TotalSupply returns the fixed supply.
func (l *Ledger) TotalSupply() *uint256.Int {
	return new(uint256.Int).Set(l.totalSupply)
}

// Pools returns copies of all pools in stable order.
func (l *Ledger) Pools() []*model.Pool {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*model.Pool, 0, len(l.pools))
	for _, id := range model.AllPools() {
		p, ok := l.pools[id]
		if !ok {
			continue
		}
		out = append(out, &model.Pool{
			ID:                 p.ID,
			Balance:            new(uint256.Int).Set(p.Balance),
			TotalEverAllocated: new(uint256.Int).Set(p.TotalEverAllocated),
		})
	}
	return out
}

// HoldersTotal returns the sum of all holder balances.
func (l *Ledger) HoldersTotal() *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	sum := new(uint256.Int)
	for _, b := range l.holders {
		sum.Add(sum, b)
	}
	return sum
}

// CheckConservation verifies that pools plus holders sum to the total
// supply. A failure means a bug, never a rejected request.
func (l *Ledger) CheckConservation() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	sum := new(uint256.Int)
	for _, p := range l.pools {
		sum.Add(sum, p.Balance)
	}
	for _, b := range l.holders {
		sum.Add(sum, b)
	}
	if sum.Cmp(l.totalSupply) != 0 {
		return model.Errf(model.KindInvariant, model.CodeInvariantError,
			"balances sum to %s, total supply is %s", sum.Dec(), l.totalSupply.Dec())
	}
	return nil
}

// Snapshot returns deep copies of the pool and holder tables for
// persistence.
func (l *Ledger) Snapshot() (map[model.PoolID]*model.Pool, map[string]*uint256.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	pools := make(map[model.PoolID]*model.Pool, len(l.pools))
	for id, p := range l.pools {
		pools[id] = &model.Pool{
			ID:                 p.ID,
			Balance:            new(uint256.Int).Set(p.Balance),
			TotalEverAllocated: new(uint256.Int).Set(p.TotalEverAllocated),
		}
	}
	holders := make(map[string]*uint256.Int, len(l.holders))
	for id, b := range l.holders {
		holders[id] = new(uint256.Int).Set(b)
	}
	return pools, holders
}
