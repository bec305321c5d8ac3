package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"github.com/openrouter-tgbot-go/internal/config"
	"github.com/openrouter-tgbot-go/internal/handlers"
	"github.com/openrouter-tgbot-go/internal/i18n"
	"github.com/openrouter-tgbot-go/internal/middleware"
	"github.com/openrouter-tgbot-go/internal/services/ai"
	"github.com/openrouter-tgbot-go/internal/services/cache"
	"github.com/openrouter-tgbot-go/internal/services/persistence"
	"github.com/openrouter-tgbot-go/internal/store"
	"github.com/openrouter-tgbot-go/pkg/logger"
	"github.com/sirupsen/logrus"
)

func main() {
	var (
		configPath = flag.String("config", "configs/config.yaml", "path to configuration file")
		envFile    = flag.String("env", ".env", "path to environment file")
	)
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil {
		logrus.WithError(err).Debug("No environment file loaded")
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	log, err := logger.NewLogger(&cfg.Logging)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize logger")
	}

	bot, err := tgbotapi.NewBotAPI(cfg.Bot.Token)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to Telegram")
	}
	log.WithField("username", bot.Self.UserName).Info("Authorized on Telegram")

	localizer, err := i18n.NewLocalizer(&cfg.I18n)
	if err != nil {
		log.WithError(err).Fatal("Failed to load translations")
	}

	snapshots, err := persistence.NewManager(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize persistence backend")
	}
	defer snapshots.Close()

	clock := store.SystemClock()
	userStore := store.New(store.PolicyFromConfig(cfg), clock, log)

	metrics := middleware.NewMetrics()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if snapshot, err := snapshots.Load(ctx); err != nil {
		log.WithError(err).Error("Failed to load snapshot, starting empty")
		metrics.RecordSnapshotOperation("load", "error")
	} else {
		userStore.Restore(snapshot)
		metrics.RecordSnapshotOperation("load", "success")
		log.WithField("users", userStore.Len()).Info("Restored user snapshot")
	}
	metrics.SetKnownUsers(float64(userStore.Len()))

	handler := handlers.New(
		bot,
		cfg,
		userStore,
		ai.NewOpenRouter(&cfg.OpenRouter, log),
		snapshots,
		cache.NewCache(&cfg.Cache, log),
		middleware.NewRateLimiter(&cfg.RateLimit, log),
		localizer,
		metrics,
		clock,
		log,
	)

	if cfg.Monitoring.Metrics.Enabled {
		go func() {
			log.WithField("port", cfg.Monitoring.Metrics.Port).Info("Starting metrics server")
			if err := middleware.StartMetricsServer(cfg.Monitoring.Metrics.Port, cfg.Monitoring.Metrics.Path); err != nil {
				log.WithError(err).Error("Metrics server stopped")
			}
		}()
	}

	go flushLoop(ctx, cfg.Storage.FlushInterval, userStore, snapshots, metrics, log)

	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = cfg.Bot.UpdateTimeout
	updates := bot.GetUpdatesChan(updateConfig)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	log.Info("Bot started, waiting for updates")
	for {
		select {
		case update := <-updates:
			go func(u tgbotapi.Update) {
				if err := handler.HandleUpdate(ctx, &u); err != nil {
					log.WithError(err).Error("Failed to handle update")
				}
			}(update)
		case sig := <-stop:
			log.WithField("signal", sig.String()).Info("Shutting down")
			bot.StopReceivingUpdates()
			cancel()

			saveCtx, saveCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer saveCancel()
			if err := snapshots.Save(saveCtx, userStore.Snapshot()); err != nil {
				log.WithError(err).Error("Failed to save snapshot on shutdown")
			} else {
				log.WithField("users", userStore.Len()).Info("Snapshot saved")
			}
			return
		}
	}
}

// flushLoop periodically snapshots the store so a crash loses at most one
// interval of state.
func flushLoop(ctx context.Context, interval time.Duration, userStore *store.Store, snapshots *persistence.Manager, metrics *middleware.Metrics, log *logrus.Logger) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := snapshots.Save(ctx, userStore.Snapshot()); err != nil {
				log.WithError(err).Error("Periodic snapshot failed")
				metrics.RecordSnapshotOperation("save", "error")
				continue
			}
			metrics.RecordSnapshotOperation("save", "success")
			metrics.SetKnownUsers(float64(userStore.Len()))
		}
	}
}
