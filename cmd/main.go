package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log15 "github.com/inconshreveable/log15/v3"

	"DailyPulse/activation"
	"DailyPulse/api"
	"DailyPulse/bot"
	"DailyPulse/collector"
	"DailyPulse/config"
	"DailyPulse/db"
	"DailyPulse/gateway"
	"DailyPulse/scheduler"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = os.Stderr.WriteString("config error: " + err.Error() + "\n")
		os.Exit(2)
	}

	log := setupLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store db.Store
	if cfg.DatabaseURL == "" {
		log.Warn("DATABASE_URL not set, using in-memory store; state will not survive a restart")
		store = db.NewMemory()
	} else {
		gormStore, err := db.Open(cfg.DatabaseURL)
		if err != nil {
			log.Crit("database init failed", "err", err)
			os.Exit(1)
		}
		store = gormStore
		log.Info("database ready")
	}

	tg, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		log.Crit("telegram init failed", "err", err)
		os.Exit(1)
	}

	llm, err := gateway.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		log.Crit("gemini init failed", "err", err)
		os.Exit(1)
	}
	gw := gateway.New(llm, log.New("module", "gateway"), cfg.SummaryTimeout, cfg.SummaryRetries)

	act := activation.New(store, log.New("module", "activation"), cfg.TokenTTL, tg.Self.UserName)
	col := collector.New(store, log.New("module", "collector"))

	b := bot.New(tg, log.New("module", "bot"), store, act, col)
	sched := scheduler.New(store, gw, b, log.New("module", "scheduler"), cfg.CollectFor, cfg.SweepEvery)
	b.SetEarlyTrigger(sched)

	handler := api.NewHandler(store, act, log.New("module", "api"),
		cfg.DefaultCollectHour, cfg.DefaultCollectMinute, cfg.DefaultTimezone)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      SetupRouter(handler),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", "err", err)
			stop()
		}
	}()

	go func() {
		if err := sched.Start(ctx); err != nil {
			log.Error("scheduler error", "err", err)
			stop()
		}
	}()

	go b.Run(ctx)

	<-ctx.Done()
	log.Info("shutting down")

	shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shCtx); err != nil {
		log.Warn("http shutdown error", "err", err)
	}
}

func setupLogger(level string) log15.Logger {
	lvl, err := log15.LvlFromString(level)
	if err != nil {
		lvl = log15.LvlInfo
	}
	log := log15.New()
	log.SetHandler(log15.LvlFilterHandler(lvl, log15.StreamHandler(os.Stdout, log15.LogfmtFormat())))
	return log
}
