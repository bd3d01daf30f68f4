package usecase

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"nutrition-assistant-bot/internal/config"
	"nutrition-assistant-bot/internal/domain/model"
	"nutrition-assistant-bot/internal/domain/ports/adapter"
	"nutrition-assistant-bot/internal/domain/ports/repository"
	"nutrition-assistant-bot/internal/infra/logging"
	"nutrition-assistant-bot/internal/infra/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Compile-time check
var _ RenewalUseCase = (*renewalUC)(nil)

// gatewayTimeout bounds a single recurrent charge call so one stuck provider
// request cannot stall the whole cycle.
const gatewayTimeout = 30 * time.Second

// RenewalUseCase runs the auto-renewal scan: find subscriptions about to
// expire, charge the saved payment method, and keep retry state per row.
type RenewalUseCase interface {
	RunCycle(ctx context.Context) error
	SetNotifier(n adapter.TelegramBotAdapter)
}

type renewalUC struct {
	subs    repository.SubscriptionRepository
	users   repository.UserRepository
	usage   repository.UsageRepository
	gateway adapter.PaymentGateway
	cfg     *config.Config
	log     *zerolog.Logger

	mu       sync.RWMutex
	notifier adapter.TelegramBotAdapter
}

func NewRenewalUseCase(
	subs repository.SubscriptionRepository,
	users repository.UserRepository,
	usage repository.UsageRepository,
	gateway adapter.PaymentGateway,
	cfg *config.Config,
	logger *zerolog.Logger,
) *renewalUC {
	ucLog := logger.With().Str("component", "RenewalUC").Logger()
	return &renewalUC{subs: subs, users: users, usage: usage, gateway: gateway, cfg: cfg, log: &ucLog}
}

// SetNotifier installs the bot adapter after construction; the bot is built
// later in the wiring, so the reference is bound late.
func (r *renewalUC) SetNotifier(n adapter.TelegramBotAdapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifier = n
}

func (r *renewalUC) getNotifier() adapter.TelegramBotAdapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.notifier
}

// RunCycle processes every expiring subscription independently. A failure on
// one row is logged and recorded on that row only; the scan keeps going.
func (r *renewalUC) RunCycle(ctx context.Context) error {
	defer logging.TraceDuration(r.log, "RenewalUC.RunCycle")()

	expiring, err := r.subs.FindExpiring(ctx, repository.NoTX, r.cfg.Renewal.Lookahead)
	if err != nil {
		return err
	}
	r.log.Info().Int("count", len(expiring)).Msg("expiring subscriptions found")

	for _, sub := range expiring {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.processOne(ctx, sub); err != nil {
			r.log.Error().Err(err).Str("subscription_id", sub.ID).Msg("renewal failed")
			r.recordFailure(ctx, sub)
		}
	}
	return nil
}

func (r *renewalUC) processOne(ctx context.Context, sub *model.Subscription) error {
	if !sub.AutoRenewal {
		return nil
	}
	// Rows past the retry cap were already announced when the cap was hit;
	// they stay silent until the user renews by hand.
	if sub.RenewalAttempts >= r.cfg.Renewal.MaxAttempts {
		return nil
	}
	if sub.LastAttemptAt != nil && time.Since(*sub.LastAttemptAt) < r.cfg.Renewal.Cooldown {
		r.log.Debug().Str("subscription_id", sub.ID).Msg("within retry cooldown, skipping")
		return nil
	}

	user, err := r.users.FindByID(ctx, repository.NoTX, sub.UserID)
	if err != nil {
		return err
	}

	metrics.IncRenewalAttempt()
	chargeCtx, cancel := context.WithTimeout(ctx, gatewayTimeout)
	defer cancel()
	intent, err := r.gateway.CreateRecurrentPayment(chargeCtx, sub.Amount, sub.Currency,
		"Продление подписки на ИИ Нутрициолог",
		sub.PaymentID,
		map[string]string{
			"user_id":     sub.UserID,
			"telegram_id": strconv.FormatInt(user.TelegramID, 10),
			"is_renewal":  "true",
		})
	if err != nil {
		return err
	}

	renewal, err := model.NewSubscription(uuid.NewString(), sub.UserID, intent.ID, sub.Amount, sub.Currency)
	if err != nil {
		return err
	}
	renewal.ParentPaymentID = sub.PaymentID
	if err := r.subs.Create(ctx, repository.NoTX, renewal); err != nil {
		return err
	}

	if intent.Status == adapter.PaymentStatusSucceeded {
		active, _, err := r.subs.Activate(ctx, repository.NoTX, intent.ID, r.cfg.SubscriptionDuration())
		if err != nil {
			return err
		}
		if err := r.usage.Reset(ctx, repository.NoTX, sub.UserID); err != nil {
			r.log.Error().Err(err).Str("user_id", sub.UserID).Msg("failed to reset usage counters")
		}
		metrics.IncSubscriptionActivated(true)
		metrics.IncRenewalOutcome("renewed")
		r.notifySuccess(ctx, user, active)
		return nil
	}

	// The provider wants the payer to confirm by hand, typically a step-up
	// check on the saved card. Hand the decision to the user.
	metrics.IncRenewalOutcome("pending")
	r.notifyPending(ctx, user, sub, intent)
	return nil
}

// recordFailure bumps the attempt counter and fires the final-failure notice
// exactly once, on the call that crosses the cap.
func (r *renewalUC) recordFailure(ctx context.Context, sub *model.Subscription) {
	count, err := r.subs.RecordAttempt(ctx, repository.NoTX, sub.ID)
	if err != nil {
		r.log.Error().Err(err).Str("subscription_id", sub.ID).Msg("failed to record renewal attempt")
		return
	}
	if count == r.cfg.Renewal.MaxAttempts {
		metrics.IncRenewalOutcome("failed_final")
		r.notifyFailed(ctx, sub)
		return
	}
	metrics.IncRenewalOutcome("failed")
}

func (r *renewalUC) notifySuccess(ctx context.Context, user *model.User, renewed *model.Subscription) {
	bot := r.getNotifier()
	if bot == nil {
		return
	}
	text := "✅ Ваша подписка автоматически продлена!\n\nСпасибо, что остаётесь с нами! 🙏\n\nУправлять автопродлением можно в /subscription"
	if renewed != nil && renewed.EndDate != nil {
		text = fmt.Sprintf("✅ Ваша подписка автоматически продлена до %s!\n\nСпасибо, что остаётесь с нами! 🙏\n\nУправлять автопродлением можно в /subscription",
			renewed.EndDate.Format("02.01.2006"))
	}
	if err := bot.SendMessage(ctx, user.TelegramID, text); err != nil {
		r.log.Error().Err(err).Int64("tg_id", user.TelegramID).Msg("failed to send renewal notification")
	}
}

func (r *renewalUC) notifyPending(ctx context.Context, user *model.User, sub *model.Subscription, intent *adapter.PaymentIntent) {
	bot := r.getNotifier()
	if bot == nil || intent.ConfirmationURL == "" {
		return
	}
	text := fmt.Sprintf("📅 Ваша подписка истекает %s\n\nДля продления необходимо подтвердить платеж.\nСтоимость: %d ₽",
		sub.EndDate.Format("02.01.2006"), sub.Amount/100)
	rows := [][]adapter.InlineButton{
		{{Text: "💳 Подтвердить оплату", URL: intent.ConfirmationURL}},
		{{Text: "❌ Отменить продление", Data: "cancel_renewal_" + intent.ID}},
	}
	if err := bot.SendButtons(ctx, user.TelegramID, text, rows); err != nil {
		r.log.Error().Err(err).Int64("tg_id", user.TelegramID).Msg("failed to send renewal notification")
	}
}

func (r *renewalUC) notifyFailed(ctx context.Context, sub *model.Subscription) {
	bot := r.getNotifier()
	if bot == nil {
		return
	}
	user, err := r.users.FindByID(ctx, repository.NoTX, sub.UserID)
	if err != nil {
		r.log.Error().Err(err).Str("user_id", sub.UserID).Msg("cannot resolve user for notification")
		return
	}
	text := "❌ Не удалось автоматически продлить вашу подписку.\n\nПожалуйста, продлите подписку вручную через /subscription"
	if sub.EndDate != nil {
		text = fmt.Sprintf("❌ Не удалось автоматически продлить вашу подписку.\n\nПодписка истекает %s\n\nПожалуйста, продлите подписку вручную через /subscription",
			sub.EndDate.Format("02.01.2006"))
	}
	if err := bot.SendMessage(ctx, user.TelegramID, text); err != nil {
		r.log.Error().Err(err).Int64("tg_id", user.TelegramID).Msg("failed to send renewal notification")
	}
}
