package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// EngineState is the full persisted state of the engine: one record per
// pool, holder, vesting schedule, investment, proposal and guard. It is
// snapshotted to a JSON file after every successful mutation.
type EngineState struct {
	Pools   map[PoolID]*Pool        `json:"pools"`
	Holders map[string]*uint256.Int `json:"holders"`

	Schedules     map[uuid.UUID]*VestingSchedule `json:"schedules"`
	Reserved      map[string]*uint256.Int        `json:"reserved"` // keyed by source account string
	VestingPaused bool                           `json:"vesting_paused"`

	Tiers       []*SaleTier            `json:"tiers"`
	Investments map[string]*Investment `json:"investments"`

	TransferGuard *TransferGuardState     `json:"transfer_guard"`
	Prices        map[string]*PriceRecord `json:"prices"`

	Proposals   map[uuid.UUID]*TreasuryProposal `json:"proposals"`
	Budgets     map[Category]*Budget            `json:"budgets"`
	BudgetMonth string                          `json:"budget_month"` // "2006-01"

	UpdatedAt time.Time `json:"updated_at"`
}
