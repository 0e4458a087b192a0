// Package vesting manages time-locked release schedules against ledger
// accounts. A schedule releases nothing before its cliff, a lump fraction at
// the cliff instant, then the remainder linearly until the duration ends.
// Registration reserves source balance so that overlapping schedules can
// never promise more than the source account holds.
package vesting

import (
	"log"
	"sync"
	"time"

	"SupplySentinel/internal/ledger"
	"SupplySentinel/internal/model"
	"SupplySentinel/internal/oplog"
	"SupplySentinel/internal/token"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// Scheduler owns all vesting schedules and the per-source reservation
// counters backing them.
type Scheduler struct {
	mu        sync.Mutex
	ledger    *ledger.Ledger
	rec       oplog.Recorder
	schedules map[uuid.UUID]*model.VestingSchedule
	reserved  map[string]*uint256.Int // keyed by source account string
	paused    bool
}

// New creates an empty scheduler over the given ledger.
func New(l *ledger.Ledger, rec oplog.Recorder) *Scheduler {
	return &Scheduler{
		ledger:    l,
		rec:       rec,
		schedules: make(map[uuid.UUID]*model.VestingSchedule),
		reserved:  make(map[string]*uint256.Int),
	}
}

// Restore rebuilds a scheduler from persisted state.
func Restore(l *ledger.Ledger, rec oplog.Recorder, schedules map[uuid.UUID]*model.VestingSchedule, reserved map[string]*uint256.Int, paused bool) *Scheduler {
	s := New(l, rec)
	for id, sch := range schedules {
		cp := *sch
		cp.TotalAmount = new(uint256.Int).Set(sch.TotalAmount)
		cp.Released = new(uint256.Int).Set(sch.Released)
		s.schedules[id] = &cp
	}
	for src, amount := range reserved {
		s.reserved[src] = new(uint256.Int).Set(amount)
	}
	s.paused = paused
	return s
}

// Register creates a schedule and reserves its total against the source
// account. The reservation counts every live schedule on the same source,
// so the sum of outstanding promises can never exceed the source balance.
func (s *Scheduler) Register(now time.Time, beneficiary string, source model.Account, total *uint256.Int, cliff, duration time.Duration, cliffBps uint32) (*model.VestingSchedule, error) {
	if total == nil || total.IsZero() {
		return nil, model.Errf(model.KindInvariant, model.CodeInvariantError,
			"zero-amount schedule for %s", beneficiary)
	}
	if duration <= 0 || cliff < 0 || cliff > duration {
		return nil, model.Errf(model.KindInvariant, model.CodeInvariantError,
			"bad schedule timing: cliff=%s duration=%s", cliff, duration)
	}
	if cliffBps > 10000 {
		return nil, model.Errf(model.KindInvariant, model.CodeInvariantError,
			"cliff fraction %d bps exceeds 10000", cliffBps)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, ok := s.reserved[source.String()]
	if !ok {
		res = new(uint256.Int)
		s.reserved[source.String()] = res
	}
	next := new(uint256.Int).Add(res, total)
	if next.Cmp(s.ledger.Balance(source)) > 0 {
		return nil, model.Errf(model.KindExhaustion, model.CodePoolExhausted,
			"%s holds %s, %s already reserved, cannot reserve %s more",
			source, s.ledger.Balance(source).Dec(), res.Dec(), total.Dec())
	}
	res.Set(next)

	sch := &model.VestingSchedule{
		ID:              uuid.New(),
		Beneficiary:     beneficiary,
		Source:          source,
		TotalAmount:     new(uint256.Int).Set(total),
		CliffSeconds:    int64(cliff / time.Second),
		DurationSeconds: int64(duration / time.Second),
		CliffBps:        cliffBps,
		Start:           now,
		Released:        new(uint256.Int),
	}
	s.schedules[sch.ID] = sch

	if s.rec != nil {
		bal := s.ledger.Balance(source).Dec()
		if err := s.rec.RecordOperation(&oplog.Operation{
			Time:       now,
			Actor:      beneficiary,
			Type:       oplog.OpVestingRegister,
			From:       source.String(),
			To:         model.HolderAccount(beneficiary).String(),
			Amount:     total.Dec(),
			FromBefore: bal,
			FromAfter:  bal,
			Note:       "schedule " + sch.ID.String(),
		}); err != nil {
			log.Printf("[ERROR] record vesting registration %s: %v", sch.ID, err)
		}
	}

	out := *sch
	out.TotalAmount = new(uint256.Int).Set(sch.TotalAmount)
	out.Released = new(uint256.Int).Set(sch.Released)
	return &out, nil
}

// vested computes the cumulative vested amount at the given instant. It is
// monotonic in time and exactly TotalAmount once the duration has elapsed.
func vested(sch *model.VestingSchedule, now time.Time) *uint256.Int {
	elapsed := int64(now.Sub(sch.Start) / time.Second)
	if elapsed < sch.CliffSeconds {
		return new(uint256.Int)
	}
	if elapsed >= sch.DurationSeconds {
		return new(uint256.Int).Set(sch.TotalAmount)
	}
	cliffAmt := token.MulBps(sch.TotalAmount, sch.CliffBps)
	linearSpan := sch.DurationSeconds - sch.CliffSeconds
	if linearSpan <= 0 {
		// Cliff equals duration; everything vests at the cliff instant,
		// which the elapsed check above already handled.
		return new(uint256.Int).Set(sch.TotalAmount)
	}
	remainder := new(uint256.Int).Sub(sch.TotalAmount, cliffAmt)
	linear := token.MulDiv(remainder, uint64(elapsed-sch.CliffSeconds), uint64(linearSpan))
	return cliffAmt.Add(cliffAmt, linear)
}

// Releasable returns the amount that Release would move right now.
func (s *Scheduler) Releasable(id uuid.UUID, now time.Time) (*uint256.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sch, ok := s.schedules[id]
	if !ok {
		return nil, model.Errf(model.KindConflict, model.CodeNotFound, "unknown schedule %s", id)
	}
	v := vested(sch, now)
	if v.Cmp(sch.Released) <= 0 {
		return new(uint256.Int), nil
	}
	return v.Sub(v, sch.Released), nil
}

// Release moves the newly vested delta from the source account to the
// beneficiary's holder account. Calling it twice at the same instant
// releases once; the second call finds nothing new.
func (s *Scheduler) Release(id uuid.UUID, now time.Time) (*uint256.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.paused {
		return nil, model.Errf(model.KindPolicy, model.CodePaused, "vesting releases are paused")
	}
	sch, ok := s.schedules[id]
	if !ok {
		return nil, model.Errf(model.KindConflict, model.CodeNotFound, "unknown schedule %s", id)
	}
	v := vested(sch, now)
	if v.Cmp(sch.Released) <= 0 {
		return nil, model.Errf(model.KindConflict, model.CodeNothingToRelease,
			"schedule %s: vested %s, already released %s", id, v.Dec(), sch.Released.Dec())
	}
	delta := new(uint256.Int).Sub(v, sch.Released)

	err := s.ledger.Move(now, sch.Beneficiary, sch.Source,
		model.HolderAccount(sch.Beneficiary), delta, oplog.OpVestingRelease,
		"schedule "+sch.ID.String())
	if err != nil {
		return nil, err
	}

	sch.Released.Add(sch.Released, delta)
	if res, ok := s.reserved[sch.Source.String()]; ok {
		res.Sub(res, delta)
	}
	return delta, nil
}

// ReleaseAll sweeps every schedule and releases what has newly vested.
// Individual failures are logged and do not stop the sweep.
func (s *Scheduler) ReleaseAll(now time.Time) (released int, total *uint256.Int) {
	total = new(uint256.Int)
	for _, id := range s.ids() {
		delta, err := s.Release(id, now)
		if err != nil {
			if !model.IsCode(err, model.CodeNothingToRelease) {
				log.Printf("[WARN] release schedule %s: %v", id, err)
			}
			continue
		}
		released++
		total.Add(total, delta)
	}
	return released, total
}

func (s *Scheduler) ids() []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]uuid.UUID, 0, len(s.schedules))
	for id := range s.schedules {
		out = append(out, id)
	}
	return out
}

// Pause stops all releases until Resume. Registration stays open.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
}

// Resume re-enables releases.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = false
}

// Paused reports whether releases are currently blocked.
func (s *Scheduler) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// Schedule returns a copy of one schedule.
func (s *Scheduler) Schedule(id uuid.UUID) (*model.VestingSchedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sch, ok := s.schedules[id]
	if !ok {
		return nil, model.Errf(model.KindConflict, model.CodeNotFound, "unknown schedule %s", id)
	}
	out := *sch
	out.TotalAmount = new(uint256.Int).Set(sch.TotalAmount)
	out.Released = new(uint256.Int).Set(sch.Released)
	return &out, nil
}

// Status summarizes the scheduler for reporting: schedule counts and the
// locked and released totals.
func (s *Scheduler) Status() (schedules, active int, total, released *uint256.Int, paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total = new(uint256.Int)
	released = new(uint256.Int)
	for _, sch := range s.schedules {
		schedules++
		if !sch.Done() {
			active++
		}
		total.Add(total, sch.TotalAmount)
		released.Add(released, sch.Released)
	}
	return schedules, active, total, released, s.paused
}

// Snapshot returns deep copies of the scheduler state for persistence.
func (s *Scheduler) Snapshot() (schedules map[uuid.UUID]*model.VestingSchedule, reserved map[string]*uint256.Int, paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	schedules = make(map[uuid.UUID]*model.VestingSchedule, len(s.schedules))
	for id, sch := range s.schedules {
		cp := *sch
		cp.TotalAmount = new(uint256.Int).Set(sch.TotalAmount)
		cp.Released = new(uint256.Int).Set(sch.Released)
		schedules[id] = &cp
	}
	reserved = make(map[string]*uint256.Int, len(s.reserved))
	for src, amount := range s.reserved {
		reserved[src] = new(uint256.Int).Set(amount)
	}
	return schedules, reserved, s.paused
}
