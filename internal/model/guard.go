package model

import (
	"time"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// TransferGuardState is the mutable window state of the transfer guard.
type TransferGuardState struct {
	WindowStart   time.Time    `json:"window_start"`
	MovedInWindow *uint256.Int `json:"moved_in_window"`
	Enabled       bool         `json:"enabled"`
}

// PriceRecord is the last accepted oracle price for a payment instrument.
type PriceRecord struct {
	Price     decimal.Decimal `json:"price"`
	UpdatedAt time.Time       `json:"updated_at"`
}
