package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// SaleTier is a fixed-capacity, fixed-price slice of the private sale.
// Tiers fill strictly in index order.
type SaleTier struct {
	Index          int             `json:"index"`
	UnitPriceUSD   decimal.Decimal `json:"unit_price_usd"`
	CapacityTokens *uint256.Int    `json:"capacity_tokens"`
	SoldTokens     *uint256.Int    `json:"sold_tokens"`
}

// Remaining returns the unsold capacity of the tier.
func (t *SaleTier) Remaining() *uint256.Int {
	return new(uint256.Int).Sub(t.CapacityTokens, t.SoldTokens)
}

// Investment tracks a single investor across all their purchases.
// PendingVesting holds purchased tokens that are not yet under a vesting
// schedule; a separate step moves them under one.
type Investment struct {
	Investor       string          `json:"investor"`
	TotalPurchased *uint256.Int    `json:"total_purchased"`
	TotalPaidUSD   decimal.Decimal `json:"total_paid_usd"`
	Whitelisted    bool            `json:"whitelisted"`
	PendingVesting *uint256.Int    `json:"pending_vesting"`
}

// TierFill records how much of a purchase one tier supplied.
type TierFill struct {
	Tier         int             `json:"tier"`
	Tokens       *uint256.Int    `json:"tokens"`
	UnitPriceUSD decimal.Decimal `json:"unit_price_usd"`
	CostUSD      decimal.Decimal `json:"cost_usd"`
}

// Purchase is a completed sale transaction.
type Purchase struct {
	ID            uuid.UUID       `json:"id"`
	Investor      string          `json:"investor"`
	TokenAmount   *uint256.Int    `json:"token_amount"`
	CostUSD       decimal.Decimal `json:"cost_usd"`
	Instrument    string          `json:"instrument"`
	PaymentAmount *uint256.Int    `json:"payment_amount"`
	Fills         []TierFill      `json:"fills"`
	Time          time.Time       `json:"time"`
}

// PaymentInstrument describes an accepted payment token and its on-chain
// decimal precision.
type PaymentInstrument struct {
	Symbol   string `json:"symbol"`
	Decimals int32  `json:"decimals"`
}

// TierStatus is one tier's line in the sale report.
type TierStatus struct {
	Index        int
	UnitPriceUSD decimal.Decimal
	Sold         *uint256.Int
	Remaining    *uint256.Int
	SoldOut      bool
}

// SaleReport summarizes sale progress across all tiers.
type SaleReport struct {
	TokensSold       *uint256.Int
	TokensRemaining  *uint256.Int
	RaisedUSD        decimal.Decimal
	WeightedAvgPrice decimal.Decimal
	Tiers            []TierStatus
	Investors        int
	Whitelisted      int
}
