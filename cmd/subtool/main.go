// File: cmd/subtool/main.go
//
// Operator tool for the subscription lifecycle: inspect the renewal queue and
// force a renewal cycle without waiting for the scheduler.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"nutrition-assistant-bot/internal/config"
	"nutrition-assistant-bot/internal/domain/ports/adapter"
	"nutrition-assistant-bot/internal/domain/ports/repository"
	payAdapters "nutrition-assistant-bot/internal/infra/adapters/payment"
	tele "nutrition-assistant-bot/internal/infra/adapters/telegram"
	pg "nutrition-assistant-bot/internal/infra/db/postgres"
	"nutrition-assistant-bot/internal/infra/logging"
	"nutrition-assistant-bot/internal/usecase"
)

func main() {
	cmd := flag.String("cmd", "expiring", "expiring | renew")
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 2)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connect failed")
	}
	defer pool.Close()

	subRepo := pg.NewSubscriptionRepo(pool)
	userRepo := pg.NewUserRepo(pool)
	usageRepo := pg.NewUsageRepo(pool)

	switch *cmd {
	case "expiring":
		subs, err := subRepo.FindExpiring(ctx, repository.NoTX, cfg.Renewal.Lookahead)
		if err != nil {
			logger.Fatal().Err(err).Msg("scan failed")
		}
		if len(subs) == 0 {
			fmt.Printf("no subscriptions expire within %s\n", cfg.Renewal.Lookahead)
			return
		}
		for _, s := range subs {
			fmt.Printf("%s  user=%s  payment=%s  ends=%s  attempts=%d\n",
				s.ID, s.UserID, s.PaymentID, s.EndDate.Format(time.RFC3339), s.RenewalAttempts)
		}

	case "renew":
		var gateway adapter.PaymentGateway
		if cfg.Runtime.Dev {
			gateway = payAdapters.NewNoopPaymentGateway()
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

		renewUC := usecase.NewRenewalUseCase(subRepo, userRepo, usageRepo, gateway, cfg, logger)
		// Notifications land in the log, not in user chats.
		renewUC.SetNotifier(tele.NewNoopBotAdapter())

		if err := renewUC.RunCycle(ctx); err != nil {
			logger.Fatal().Err(err).Msg("renewal cycle failed")
		}
		fmt.Println("renewal cycle complete")

	default:
		fmt.Fprintf(os.Stderr, "unknown -cmd %q (want expiring or renew)\n", *cmd)
		os.Exit(2)
	}
}
