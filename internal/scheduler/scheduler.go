package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"SupplySentinel/internal/engine"
	"SupplySentinel/internal/notifier"
	"SupplySentinel/internal/oracle"
	"SupplySentinel/internal/token"

	"github.com/robfig/cron/v3"
)

// Scheduler manages all cron tasks: the vesting release sweep, the proposal
// expiry sweep, the monthly budget reset and the price feed pull.
type Scheduler struct {
	Cron     *cron.Cron
	Engine   *engine.Engine
	Feed     oracle.Source
	Notifier *notifier.TelegramNotifier
	Ctx      context.Context
}

// NewScheduler creates a new Scheduler. Feed and Notifier may be nil; the
// corresponding tasks then degrade to log-only operation.
func NewScheduler(ctx context.Context, e *engine.Engine, feed oracle.Source, tn *notifier.TelegramNotifier) *Scheduler {
	return &Scheduler{
		Cron:     cron.New(cron.WithSeconds()),
		Engine:   e,
		Feed:     feed,
		Notifier: tn,
		Ctx:      ctx,
	}
}

// RegisterAll registers the release, expiry, monthly and price feed tasks.
func (s *Scheduler) RegisterAll(releaseCron, expiryCron, monthlyCron, priceCron string) error {
	if _, err := s.Cron.AddFunc(releaseCron, s.releaseTask); err != nil {
		return fmt.Errorf("register release task: %w", err)
	}
	if _, err := s.Cron.AddFunc(expiryCron, s.expiryTask); err != nil {
		return fmt.Errorf("register expiry task: %w", err)
	}
	if _, err := s.Cron.AddFunc(monthlyCron, s.monthlyTask); err != nil {
		return fmt.Errorf("register monthly task: %w", err)
	}
	if s.Feed != nil {
		if _, err := s.Cron.AddFunc(priceCron, s.priceTask); err != nil {
			return fmt.Errorf("register price task: %w", err)
		}
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	log.Println("[INFO] scheduler started")
}

// Stop stops the cron scheduler gracefully.
func (s *Scheduler) Stop() {
	s.Cron.Stop()
	log.Println("[INFO] scheduler stopped")
}

// RunReleaseNow executes the release sweep immediately (manual trigger).
func (s *Scheduler) RunReleaseNow() {
	s.releaseTask()
}

func (s *Scheduler) releaseTask() {
	log.Println("[INFO] running vesting release sweep")
	released, total := s.Engine.ReleaseAllVested(time.Now())
	if released == 0 {
		return
	}
	log.Printf("[INFO] released %s tokens across %d schedules", token.WholeString(total), released)
	if err := s.Engine.CheckConservation(); err != nil {
		log.Printf("[ERROR] conservation check after release sweep: %v", err)
		s.trySend(fmt.Sprintf("🚨 <b>Invariant violation</b>\n\n%v", err))
	}
}

func (s *Scheduler) expiryTask() {
	if n := s.Engine.ExpireProposals(time.Now()); n > 0 {
		log.Printf("[INFO] expired %d treasury proposals", n)
	}
}

func (s *Scheduler) monthlyTask() {
	log.Println("[INFO] running monthly budget reset")
	s.Engine.ResetBudgets(time.Now())
	s.trySend(notifier.FormatMonthlySummary(s.Engine.TreasuryHealth(), s.Engine.TreasuryMonth()))
}

func (s *Scheduler) priceTask() {
	s.Engine.PullPrices(s.Feed, time.Now())
}

// HandleCommand processes a user command and returns a reply.
func (s *Scheduler) HandleCommand(command string) string {
	switch command {
	case "/pools":
		return notifier.FormatPoolStatus(s.Engine.Pools(), s.Engine.HoldersTotal(), s.Engine.TotalSupply())
	case "/sale":
		return notifier.FormatSaleReport(s.Engine.SaleReport())
	case "/treasury":
		return notifier.FormatTreasuryHealth(s.Engine.TreasuryHealth())
	case "/vesting":
		schedules, active, total, released, paused := s.Engine.VestingStatus()
		return notifier.FormatVestingStatus(schedules, active, total, released, paused)
	case "/guard":
		moved, limit, enabled := s.Engine.GuardStatus(time.Now())
		return notifier.FormatGuardStatus(moved, limit, enabled)
	case "/release":
		s.releaseTask()
		return ""
	default:
		return "Commands:\n• /pools\n• /sale\n• /treasury\n• /vesting\n• /guard\n• /release"
	}
}

func (s *Scheduler) trySend(text string) {
	if s.Notifier == nil {
		return
	}
	if err := s.Notifier.SendWithRetry(s.Ctx, text, 3); err != nil {
		log.Printf("[ERROR] send notification: %v", err)
	}
}
