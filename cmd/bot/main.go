package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/hray3182/CoachLine/internal/ai"
	"github.com/hray3182/CoachLine/internal/bot"
	"github.com/hray3182/CoachLine/internal/bot/handlers"
	"github.com/hray3182/CoachLine/internal/clock"
	"github.com/hray3182/CoachLine/internal/config"
	"github.com/hray3182/CoachLine/internal/httpapi"
	"github.com/hray3182/CoachLine/internal/logger"
	"github.com/hray3182/CoachLine/internal/repository"
	"github.com/hray3182/CoachLine/internal/scheduler"
	"github.com/hray3182/CoachLine/internal/session"
	"github.com/hray3182/CoachLine/internal/templates"
	"go.uber.org/zap"
)

const shutdownGrace = 30 * time.Second

func main() {
	resync := flag.Bool("resync", false, "recompute next execution of every active recurring rule and exit")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zl, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	if err := run(cfg, zl, *resync); err != nil {
		zl.Error("application error", zap.Error(err))
		_ = zl.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, zl *zap.Logger, resyncOnly bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	admins, err := cfg.Admins()
	if err != nil {
		return err
	}
	clk := clock.System(loc)

	// Connect to the rule store
	store, err := repository.Open(ctx, repository.Options{
		Driver:      cfg.StoreDriver,
		DatabaseURI: cfg.DatabaseURI,
		SQLitePath:  cfg.SQLitePath,
	}, zl)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = store.Close() }()
	zl.Info("store ready", zap.String("driver", cfg.StoreDriver))

	if resyncOnly {
		n, err := scheduler.Resync(ctx, store, clk, zl)
		if err != nil {
			return fmt.Errorf("resync: %w", err)
		}
		zl.Info("resync finished", zap.Int("updated", n))
		return nil
	}

	tmpl := templates.Default()
	if cfg.TemplatesPath != "" {
		if tmpl, err = templates.Load(cfg.TemplatesPath); err != nil {
			return fmt.Errorf("load templates: %w", err)
		}
	}

	// AI motivation is optional, the static list covers outages
	var primary ai.Source
	if cfg.AIAPIKey != "" {
		primary = ai.New(cfg.AIAPIKey, cfg.AIBaseURL, cfg.AIModel)
		zl.Info("AI client initialized", zap.String("model", cfg.AIModel))
	} else {
		zl.Info("AI client not configured, using static motivation lines")
	}
	motivator := ai.NewFallback(primary, ai.NewStatic(), zl)

	api, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		return fmt.Errorf("create telegram client: %w", err)
	}
	zl.Info("authorized on telegram", zap.String("account", api.Self.UserName))
	sender := bot.NewSender(api, cfg.SendRatePerSec, zl)

	dispatcher := scheduler.NewDispatcher(scheduler.DispatcherConfig{
		Rules:        store,
		Users:        store,
		Messenger:    sender,
		Templates:    tmpl,
		Motivator:    motivator,
		Clock:        clk,
		AdminChatIDs: admins,
		Logger:       zl,
	})
	sched := scheduler.New(store, dispatcher, clk, scheduler.Config{
		Intervals:   cfg.Intervals(),
		TickTimeout: cfg.TickTimeout,
	}, zl)

	h := handlers.New(handlers.Deps{
		Store:    store,
		Sessions: session.New(store, clk, sched, zl),
		Clock:    clk,
		Replier:  sender,
		Notifier: sched,
		Logger:   zl,
	})
	b := bot.New(api, h, zl)

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	var srv *httpapi.Server
	if cfg.HTTPAddr != "" {
		srv = httpapi.New(cfg.HTTPAddr, sched, zl)
		go func() {
			if err := srv.ListenAndServe(); err != nil {
				zl.Error("http server failed", zap.Error(err))
			}
		}()
	}

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		zl.Warn("sd_notify failed", zap.Error(err))
	} else if ok {
		zl.Debug("notified systemd readiness")
	}

	zl.Info("starting bot")
	botErr := b.Start(ctx)
	zl.Info("shutting down")
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			zl.Warn("http shutdown", zap.Error(err))
		}
	}
	if err := sched.Stop(shutdownCtx); err != nil {
		zl.Warn("scheduler stop", zap.Error(err))
	}

	if botErr != nil && !errors.Is(botErr, context.Canceled) {
		return fmt.Errorf("bot: %w", botErr)
	}
	return nil
}
