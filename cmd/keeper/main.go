package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"SupplySentinel/internal/config"
	"SupplySentinel/internal/engine"
	"SupplySentinel/internal/notifier"
	"SupplySentinel/internal/oplog"
	"SupplySentinel/internal/oracle"
	"SupplySentinel/internal/sale"
	"SupplySentinel/internal/scheduler"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("[INFO] SupplySentinel starting...")

	// Load config
	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("[FATAL] load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[FATAL] config validation: %v", err)
	}

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Init recorder
	var rec oplog.Recorder
	if cfg.Database.SQLitePath != "" {
		sr, err := oplog.NewSQLiteRecorder(cfg.Database.SQLitePath)
		if err != nil {
			log.Printf("[WARN] init sqlite recorder failed, using noop: %v", err)
			rec = oplog.NewNoopRecorder()
		} else {
			rec = sr
			defer sr.Close()
		}
	} else {
		rec = oplog.NewNoopRecorder()
	}

	// Init Telegram notifier and event sink
	var tn *notifier.TelegramNotifier
	var sink notifier.EventSink
	if cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID != "" {
		tn = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy)
		sink = notifier.NewTelegramSink(ctx, tn)
	} else {
		log.Println("[WARN] Telegram not configured, events go to the log")
		sink = notifier.NewLogSink()
	}

	// Init engine
	eng, err := engine.New(cfg, rec, sink, sale.AutoSettler{})
	if err != nil {
		log.Fatalf("[FATAL] init engine: %v", err)
	}
	if err := eng.CheckConservation(); err != nil {
		log.Fatalf("[FATAL] conservation check: %v", err)
	}

	// Init price feed
	var feed oracle.Source
	if cfg.PriceFeed.BaseURL != "" {
		feed = oracle.NewHTTPSource(cfg.PriceFeed.BaseURL, cfg.PriceFeed.APIKey, cfg.Proxy)
		log.Printf("[INFO] price feed: %s", cfg.PriceFeed.BaseURL)
	} else {
		log.Println("[WARN] no price feed configured, prices must be submitted manually")
	}

	// Init scheduler
	sched := scheduler.NewScheduler(ctx, eng, feed, tn)
	if err := sched.RegisterAll(cfg.Schedule.ReleaseCron, cfg.Schedule.ExpiryCron,
		cfg.Schedule.MonthlyCron, cfg.Schedule.PriceCron); err != nil {
		log.Fatalf("[FATAL] register cron tasks: %v", err)
	}
	sched.Start()
	defer sched.Stop()

	// Start Telegram polling
	if tn != nil {
		go tn.StartPolling(ctx, sched.HandleCommand)
		log.Println("[INFO] Telegram polling started")
	}

	// Optional: sweep vesting immediately on start
	if os.Getenv("RUN_ON_START") == "true" {
		log.Println("[INFO] RUN_ON_START enabled, executing release sweep now")
		go sched.RunReleaseNow()
	}

	log.Println("[INFO] SupplySentinel is running. Press Ctrl+C to stop.")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[INFO] shutdown signal received, stopping...")
	cancel()
	log.Println("[INFO] SupplySentinel stopped")
}
