// File: cmd/app/main.go
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nutrition-assistant-bot/internal/application"
	"nutrition-assistant-bot/internal/config"
	"nutrition-assistant-bot/internal/domain/ports/adapter"
	aiAdapters "nutrition-assistant-bot/internal/infra/adapters/ai"
	payAdapters "nutrition-assistant-bot/internal/infra/adapters/payment"
	tele "nutrition-assistant-bot/internal/infra/adapters/telegram"
	pg "nutrition-assistant-bot/internal/infra/db/postgres"
	httpapi "nutrition-assistant-bot/internal/infra/http"
	"nutrition-assistant-bot/internal/infra/logging"
	"nutrition-assistant-bot/internal/infra/metrics"
	red "nutrition-assistant-bot/internal/infra/redis"
	"nutrition-assistant-bot/internal/infra/sched"
	"nutrition-assistant-bot/internal/infra/web"
	"nutrition-assistant-bot/internal/usecase"

	"github.com/jackc/pgx/v4/pgxpool"
)

// Overridden at build time via -ldflags.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("developer mode enabled")
	}

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 10)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connect failed")
	}
	defer pool.Close()
	go reportPoolStats(ctx, pool)

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connect failed")
	}
	defer redisClient.Close()
	rateLimiter := red.NewRateLimiter(redisClient)

	// ---- Repositories ----
	userRepo := pg.NewUserRepo(pool)
	subRepo := pg.NewSubscriptionRepo(pool)
	usageRepo := pg.NewUsageRepo(pool)
	mealRepo := pg.NewMealLogRepo(pool)
	tm := pg.NewTxManager(pool)

	// ---- Payment gateway ----
	var gateway adapter.PaymentGateway
	if cfg.Runtime.Dev {
		gateway = payAdapters.NewNoopPaymentGateway()
		logger.Warn().Msg("payment gateway: noop (dev mode)")
	} else {
		gateway, err = payAdapters.NewYooKassaGateway(
			cfg.Payment.YooKassa.ShopID,
			cfg.Payment.YooKassa.SecretKey,
			cfg.Payment.YooKassa.ReturnURL,
			logger,
		)
		if err != nil {
			logger.Fatal().Err(err).Msg("yookassa gateway init failed")
		}
	}

	// ---- AI adapter ----
	var ai adapter.AIServiceAdapter
	if cfg.AI.OpenAIKey == "" {
		if !cfg.Runtime.Dev {
			logger.Fatal().Msg("ai.openai_key is required outside dev mode")
		}
		ai = aiAdapters.NewNoopAIAdapter()
		logger.Warn().Msg("ai adapter: noop (dev mode)")
	} else {
		ai, err = aiAdapters.NewOpenAIAdapter(cfg.AI.OpenAIKey, cfg.AI.BaseURL, cfg.AI.Model)
		if err != nil {
			logger.Fatal().Err(err).Msg("openai adapter init failed")
		}
	}

	// ---- Use cases ----
	userUC := usecase.NewUserUseCase(userRepo, tm, logger)
	entUC := usecase.NewEntitlementUseCase(subRepo, usageRepo, cfg.Subscription, logger)
	subUC := usecase.NewSubscriptionUseCase(subRepo, userRepo, usageRepo, gateway, cfg, logger)
	renewUC := usecase.NewRenewalUseCase(subRepo, userRepo, usageRepo, gateway, cfg, logger)
	analysisUC := usecase.NewAnalysisUseCase(entUC, ai, usageRepo, mealRepo, logger)
	statsUC := usecase.NewStatsUseCase(userRepo, subRepo, logger)

	// ---- Facade and Telegram ----
	facade := application.NewBotFacade(userUC, entUC, subUC, analysisUC, cfg, logger)
	botAdapter, err := tele.NewRealTelegramBotAdapter(&cfg.Bot, facade, rateLimiter, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("telegram init failed")
	}

	// Payment and renewal notifications go out through the same bot client.
	subUC.SetNotifier(botAdapter)
	renewUC.SetNotifier(botAdapter)

	go func() {
		if err := botAdapter.StartPolling(ctx); err != nil && ctx.Err() == nil {
			logger.Error().Err(err).Msg("telegram polling stopped")
		}
	}()

	// ---- Webhook server (YooKassa callbacks, /metrics, return pages) ----
	webhookSrv := httpapi.NewServer(cfg, gateway, subUC, logger)
	go func() {
		if err := webhookSrv.Start(); err != nil && ctx.Err() == nil {
			logger.Error().Err(err).Msg("webhook server stopped")
		}
	}()

	// ---- Admin stats server ----
	adminSrv := web.NewServer(cfg, statsUC, logger)
	go func() {
		if err := adminSrv.Start(); err != nil && ctx.Err() == nil {
			logger.Error().Err(err).Msg("admin server stopped")
		}
	}()

	// ---- Renewal worker ----
	worker := sched.NewRenewalWorker(cfg.Renewal.Interval, cfg.Renewal.Backoff, renewUC, logger)
	go func() { _ = worker.Run(ctx) }()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")
	cancel()
	botAdapter.StopPolling()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := webhookSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("webhook server shutdown failed")
	}
	if err := adminSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("admin server shutdown failed")
	}
}

func reportPoolStats(ctx context.Context, pool *pgxpool.Pool) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := pool.Stat()
			metrics.SetDBPoolStats(st.TotalConns(), st.IdleConns(), st.AcquiredConns())
		}
	}
}
