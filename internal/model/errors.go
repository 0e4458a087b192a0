package model

import (
	"errors"
	"fmt"
)

// Kind classifies an engine failure per the error-handling contract.
type Kind string

const (
	// KindInvariant marks failures that must never occur in correct
	// operation; they indicate a bug and are separately alertable.
	KindInvariant Kind = "InvariantViolation"
	// KindPolicy marks expected rule rejections (caps, limits, windows).
	KindPolicy Kind = "PolicyRejection"
	// KindExhaustion marks failures caused by a depleted pool, tier or cap.
	KindExhaustion Kind = "ResourceExhaustion"
	// KindConflict marks operations invalid for the current state.
	KindConflict Kind = "StateConflict"
)

// Stable failure codes, surfaced verbatim to callers.
const (
	CodeInvariantError      = "InvariantError"
	CodeInsufficientBalance = "InsufficientBalance"
	CodePoolExhausted       = "PoolExhausted"
	CodeNothingToRelease    = "NothingToRelease"
	CodePaused              = "Paused"
	CodeDailyLimitExceeded  = "DailyLimitExceeded"
	CodeTooSoon             = "TooSoon"
	CodeDeltaTooLarge       = "DeltaTooLarge"
	CodeBelowMinimum        = "BelowMinimum"
	CodeNotWhitelisted      = "NotWhitelisted"
	CodeWhaleLimitExceeded  = "WhaleLimitExceeded"
	CodeRaiseCapExceeded    = "RaiseCapExceeded"
	CodeUSDCapExceeded      = "USDCapExceeded"
	CodeInsufficientPayment = "InsufficientPayment"
	CodeBudgetExceeded      = "BudgetExceeded"
	CodeDuplicateApproval   = "DuplicateApproval"
	CodeAlreadyFinalized    = "AlreadyFinalized"
	CodeDelayNotElapsed     = "DelayNotElapsed"
	CodeNotAuthorized       = "NotAuthorized"
	CodeNotFound            = "NotFound"
	CodeSettlementFailed    = "SettlementFailed"
)

// Error is a typed engine failure. Every rejection leaves persisted state
// exactly as it was before the call.
type Error struct {
	Kind Kind
	Code string
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Code
	}
	return e.Code + ": " + e.Msg
}

// Errf builds a typed engine error with a formatted message.
func Errf(kind Kind, code, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Msg: fmt.Sprintf(format, args...)}
}

// ErrCode extracts the failure code from err, or "" if err is not an
// engine error.
func ErrCode(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given failure code.
func IsCode(err error, code string) bool {
	return ErrCode(err) == code
}

// ErrKind extracts the failure kind from err, or "" if err is not an
// engine error.
func ErrKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
