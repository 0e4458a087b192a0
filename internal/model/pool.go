package model

import "github.com/holiman/uint256"

// PoolID names an allocation pool of the fixed supply.
type PoolID string

const (
	PoolOperational       PoolID = "operational"
	PoolFounder           PoolID = "founder"
	PoolTreasury          PoolID = "treasury"
	PoolEcosystem         PoolID = "ecosystem"
	PoolPrivateSale       PoolID = "private_sale"
	PoolAdvisor           PoolID = "advisor"
	PoolEmergencyOverride PoolID = "emergency_override"
)

// AllPools lists every pool in a stable order.
func AllPools() []PoolID {
	return []PoolID{
		PoolOperational,
		PoolFounder,
		PoolTreasury,
		PoolEcosystem,
		PoolPrivateSale,
		PoolAdvisor,
		PoolEmergencyOverride,
	}
}

// Pool is a named bucket of the fixed token supply.
type Pool struct {
	ID                 PoolID       `json:"id"`
	Balance            *uint256.Int `json:"balance"`
	TotalEverAllocated *uint256.Int `json:"total_ever_allocated"`
}

// AccountKind distinguishes pools from external holder accounts.
type AccountKind string

const (
	AccountPool   AccountKind = "pool"
	AccountHolder AccountKind = "holder"
)

// Account references either a pool or a holder balance on the ledger.
// Holder accounts carry released-but-not-yet-withdrawn funds.
type Account struct {
	Kind AccountKind `json:"kind"`
	ID   string      `json:"id"`
}

// PoolAccount references a named pool.
func PoolAccount(id PoolID) Account {
	return Account{Kind: AccountPool, ID: string(id)}
}

// HolderAccount references an external holder balance.
func HolderAccount(id string) Account {
	return Account{Kind: AccountHolder, ID: id}
}

func (a Account) String() string {
	return string(a.Kind) + ":" + a.ID
}

// IsPool reports whether the account is a named pool.
func (a Account) IsPool() bool { return a.Kind == AccountPool }
