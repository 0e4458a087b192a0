package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// ProposalState is the lifecycle state of a treasury proposal.
// Executed, Rejected and Expired are terminal.
type ProposalState string

const (
	ProposalPending  ProposalState = "Pending"
	ProposalApproved ProposalState = "Approved"
	ProposalExecuted ProposalState = "Executed"
	ProposalRejected ProposalState = "Rejected"
	ProposalExpired  ProposalState = "Expired"
)

// Terminal reports whether the state admits no further transitions.
func (s ProposalState) Terminal() bool {
	return s == ProposalExecuted || s == ProposalRejected || s == ProposalExpired
}

// Category is a treasury spending category with its own monthly budget.
type Category string

const (
	CategoryDevelopment Category = "development"
	CategoryMarketing   Category = "marketing"
	CategoryOperations  Category = "operations"
	CategoryInvestments Category = "investments"
	CategoryEmergency   Category = "emergency"
	CategoryGovernance  Category = "governance"
)

// AllCategories lists every category in a stable order.
func AllCategories() []Category {
	return []Category{
		CategoryDevelopment,
		CategoryMarketing,
		CategoryOperations,
		CategoryInvestments,
		CategoryEmergency,
		CategoryGovernance,
	}
}

// TreasuryProposal is a withdrawal request gated behind N-of-M approvals
// and a mandatory delay between approval and execution.
type TreasuryProposal struct {
	ID         uuid.UUID     `json:"id"`
	Category   Category      `json:"category"`
	Amount     *uint256.Int  `json:"amount"`
	Target     string        `json:"target"`
	Proposer   string        `json:"proposer"`
	Approvals  []string      `json:"approvals"`
	State      ProposalState `json:"state"`
	CreatedAt  time.Time     `json:"created_at"`
	ApprovedAt time.Time     `json:"approved_at,omitempty"`
	ClosedAt   time.Time     `json:"closed_at,omitempty"`
}

// HasApproval reports whether the approver already approved.
func (p *TreasuryProposal) HasApproval(approver string) bool {
	for _, a := range p.Approvals {
		if a == approver {
			return true
		}
	}
	return false
}

// Budget tracks a category's monthly limit and the amount committed to it
// this month (pending + approved + executed proposals).
type Budget struct {
	Category     Category     `json:"category"`
	MonthlyLimit *uint256.Int `json:"monthly_limit"`
	Committed    *uint256.Int `json:"committed"`
}

// UtilizationPct returns committed/limit as a percentage.
func (b *Budget) UtilizationPct() float64 {
	if b.MonthlyLimit.IsZero() {
		return 0
	}
	committed := new(uint256.Int).Mul(b.Committed, uint256.NewInt(10000))
	ratio := new(uint256.Int).Div(committed, b.MonthlyLimit)
	return float64(ratio.Uint64()) / 100
}

// BudgetStatus is one category's line in the treasury health report.
type BudgetStatus struct {
	Category       Category
	MonthlyLimit   *uint256.Int
	Committed      *uint256.Int
	Remaining      *uint256.Int
	UtilizationPct float64
	Status         string // "healthy", "warning", "critical"
}

// TreasuryHealth scores the treasury's overall condition from budget
// utilization and remaining runway.
type TreasuryHealth struct {
	Score           int // 0-100
	Status          string
	UtilizationPct  float64
	RunwayMonths    float64
	Categories      []BudgetStatus
	Recommendations []string
}
