package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// VestingSchedule locks a total amount for a beneficiary: nothing before the
// cliff, a lump fraction at the cliff instant, then linear release over the
// remaining duration. Schedules are never destroyed; once Released equals
// TotalAmount the schedule is inert.
type VestingSchedule struct {
	ID              uuid.UUID    `json:"id"`
	Beneficiary     string       `json:"beneficiary"`
	Source          Account      `json:"source"`
	TotalAmount     *uint256.Int `json:"total_amount"`
	CliffSeconds    int64        `json:"cliff_seconds"`
	DurationSeconds int64        `json:"duration_seconds"`
	CliffBps        uint32       `json:"cliff_bps"` // lump fraction at the cliff, basis points
	Start           time.Time    `json:"start"`
	Released        *uint256.Int `json:"released"`
}

// Done reports whether the schedule has fully released.
func (s *VestingSchedule) Done() bool {
	return s.Released.Cmp(s.TotalAmount) >= 0
}

// Remaining returns the still-locked amount.
func (s *VestingSchedule) Remaining() *uint256.Int {
	return new(uint256.Int).Sub(s.TotalAmount, s.Released)
}
