package oplog

import "time"

// Operation types recorded in the append-only log.
const (
	OpInitialize      = "INITIALIZE"
	OpMove            = "MOVE"
	OpVestingRegister = "VESTING_REGISTER"
	OpVestingRelease  = "VESTING_RELEASE"
	OpSalePurchase    = "SALE_PURCHASE"
	OpTreasuryExecute = "TREASURY_EXECUTE"
)

// Operation is one ledger mutation: who moved how much between which
// accounts, with balances before and after on both sides.
type Operation struct {
	Time       time.Time
	Actor      string
	Type       string
	From       string
	To         string
	Amount     string // base units, decimal string
	FromBefore string
	FromAfter  string
	ToBefore   string
	ToAfter    string
	Note       string
}

// PurchaseEvent records a completed sale purchase with its tier breakdown.
type PurchaseEvent struct {
	PurchaseID string
	Investor   string
	Tokens     string
	CostUSD    string
	Instrument string
	Tiers      string // compact breakdown, e.g. "0:10000000@0.1 1:5000000@0.105"
}

// ProposalEvent records a treasury proposal lifecycle transition.
type ProposalEvent struct {
	ProposalID string
	Event      string // "PROPOSE", "APPROVE", "REJECT", "EXECUTE", "EXPIRE"
	Actor      string
	Category   string
	Amount     string
	State      string
}

// PriceEvent records a price submission and whether the guard accepted it.
type PriceEvent struct {
	Symbol   string
	Price    string
	Accepted bool
	Reason   string
}

// Recorder persists the append-only operation history for monitoring.
type Recorder interface {
	RecordOperation(op *Operation) error
	RecordPurchase(evt *PurchaseEvent) error
	RecordProposal(evt *ProposalEvent) error
	RecordPrice(evt *PriceEvent) error
	Close() error
}
