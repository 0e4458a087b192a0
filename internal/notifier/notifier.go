package notifier

import (
	"log"
	"time"

	"SupplySentinel/internal/model"
	"SupplySentinel/internal/token"

	"github.com/holiman/uint256"
)

// LargeTransferEvent is emitted after a transfer at or above the
// large-transfer threshold has committed. It fires even while the transfer
// guard is disabled.
type LargeTransferEvent struct {
	From         string
	To           string
	Amount       *uint256.Int
	GuardEnabled bool
	Time         time.Time
}

// BudgetThresholdEvent is emitted when a treasury category crosses a budget
// utilization threshold.
type BudgetThresholdEvent struct {
	Category       model.Category
	UtilizationPct float64
	Level          string // "warning" or "critical"
	Time           time.Time
}

// EventSink receives engine events after the triggering mutation has
// committed. Implementations are fire-and-forget: delivery failures must be
// swallowed or logged, never propagated to the mutation.
type EventSink interface {
	LargeTransfer(evt *LargeTransferEvent)
	BudgetThreshold(evt *BudgetThresholdEvent)
}

// LogSink writes events to the process log. Used when Telegram is not
// configured.
type LogSink struct{}

func NewLogSink() *LogSink { return &LogSink{} }

func (s *LogSink) LargeTransfer(evt *LargeTransferEvent) {
	log.Printf("[INFO] large transfer: %s -> %s amount=%s guard_enabled=%v",
		evt.From, evt.To, token.WholeString(evt.Amount), evt.GuardEnabled)
}

func (s *LogSink) BudgetThreshold(evt *BudgetThresholdEvent) {
	log.Printf("[INFO] budget threshold: category=%s utilization=%.1f%% level=%s",
		evt.Category, evt.UtilizationPct, evt.Level)
}
