package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"nutrition-assistant-bot/internal/config"
	"nutrition-assistant-bot/internal/domain"
	"nutrition-assistant-bot/internal/domain/model"
	"nutrition-assistant-bot/internal/domain/ports/adapter"
	"nutrition-assistant-bot/internal/domain/ports/repository"
	"nutrition-assistant-bot/internal/infra/logging"
	"nutrition-assistant-bot/internal/infra/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Compile-time check
var _ SubscriptionUseCase = (*subscriptionUC)(nil)

// SubscriptionUseCase drives the payment attempt lifecycle: checkout, the
// pending-to-succeeded transition, and everything the user can do to a
// subscription afterwards.
type SubscriptionUseCase interface {
	// InitiatePayment creates a gateway payment and the matching pending row,
	// returning the row and the URL the payer must visit.
	InitiatePayment(ctx context.Context, userID string, tgID int64) (*model.Subscription, string, error)

	// ConfirmPayment activates the pending row for this payment id. The bool
	// reports whether this call performed the activation; a duplicate
	// confirmation returns the already-active row with false and leaves the
	// usage counters alone.
	ConfirmPayment(ctx context.Context, paymentID string) (*model.Subscription, bool, error)

	// CheckPayment polls the gateway and settles the local row accordingly.
	CheckPayment(ctx context.Context, paymentID string) (*model.Subscription, bool, error)

	// HandleGatewayEvent settles a row from a provider webhook and notifies
	// the payer.
	HandleGatewayEvent(ctx context.Context, n *adapter.Notification) error

	CancelPendingPayment(ctx context.Context, paymentID string) (*model.Subscription, error)

	// CancelRenewal cancels a pending renewal charge and switches the user's
	// auto-renewal off so the scheduler stops retrying.
	CancelRenewal(ctx context.Context, paymentID string) error

	// ToggleAutoRenewal flips auto-renewal on the active subscription and
	// returns the new state.
	ToggleAutoRenewal(ctx context.Context, userID string) (bool, error)

	// CancelSubscription revokes the user's active subscription: the row goes
	// to canceled with auto-renewal off and stops granting access at once,
	// even before its end date. Returns the row as it was before the cancel
	// so callers can still show the paid-until date.
	CancelSubscription(ctx context.Context, userID string) (*model.Subscription, error)

	ActiveSubscription(ctx context.Context, userID string) (*model.Subscription, error)
	LatestSubscription(ctx context.Context, userID string) (*model.Subscription, error)
}

type subscriptionUC struct {
	subs    repository.SubscriptionRepository
	users   repository.UserRepository
	usage   repository.UsageRepository
	gateway adapter.PaymentGateway
	cfg     *config.Config
	log     *zerolog.Logger

	mu       sync.RWMutex
	notifier adapter.TelegramBotAdapter
}

func NewSubscriptionUseCase(
	subs repository.SubscriptionRepository,
	users repository.UserRepository,
	usage repository.UsageRepository,
	gateway adapter.PaymentGateway,
	cfg *config.Config,
	logger *zerolog.Logger,
) *subscriptionUC {
	ucLog := logger.With().Str("component", "SubscriptionUC").Logger()
	return &subscriptionUC{subs: subs, users: users, usage: usage, gateway: gateway, cfg: cfg, log: &ucLog}
}

// SetNotifier installs the bot adapter after construction. The bot depends on
// this usecase, so the reference is bound late to break the cycle.
func (s *subscriptionUC) SetNotifier(n adapter.TelegramBotAdapter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifier = n
}

func (s *subscriptionUC) getNotifier() adapter.TelegramBotAdapter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.notifier
}

func (s *subscriptionUC) InitiatePayment(ctx context.Context, userID string, tgID int64) (*model.Subscription, string, error) {
	defer logging.TraceDuration(s.log, "SubscriptionUC.InitiatePayment")()

	price := s.cfg.Subscription.PriceKopecks
	currency := s.cfg.Subscription.Currency
	intent, err := s.gateway.CreatePayment(ctx, price, currency,
		"Подписка на ИИ Нутрициолог",
		"", // gateway default return URL
		map[string]string{
			"user_id":     userID,
			"telegram_id": strconv.FormatInt(tgID, 10),
		})
	if err != nil {
		metrics.IncPayment("create_failed")
		return nil, "", err
	}

	sub, err := model.NewSubscription(uuid.NewString(), userID, intent.ID, price, currency)
	if err != nil {
		return nil, "", err
	}
	if err := s.subs.Create(ctx, repository.NoTX, sub); err != nil {
		return nil, "", err
	}
	metrics.IncPayment("created")
	s.log.Info().Str("user_id", userID).Str("payment_id", intent.ID).Msg("payment initiated")
	return sub, intent.ConfirmationURL, nil
}

func (s *subscriptionUC) ConfirmPayment(ctx context.Context, paymentID string) (*model.Subscription, bool, error) {
	defer logging.TraceDuration(s.log, "SubscriptionUC.ConfirmPayment")()

	sub, activated, err := s.subs.Activate(ctx, repository.NoTX, paymentID, s.cfg.SubscriptionDuration())
	if err != nil {
		return nil, false, err
	}
	if !activated {
		// Duplicate confirmation (webhook plus manual check). The counters
		// were already reset by whoever won; resetting again would hand out
		// a second free window.
		s.log.Debug().Str("payment_id", paymentID).Msg("payment already confirmed")
		return sub, false, nil
	}

	if err := s.usage.Reset(ctx, repository.NoTX, sub.UserID); err != nil {
		s.log.Error().Err(err).Str("user_id", sub.UserID).Msg("failed to reset usage counters")
	}
	metrics.IncPayment("succeeded")
	metrics.IncSubscriptionActivated(sub.IsRenewal())
	s.log.Info().Str("payment_id", paymentID).Str("user_id", sub.UserID).Bool("renewal", sub.IsRenewal()).Msg("subscription activated")
	return sub, true, nil
}

func (s *subscriptionUC) CheckPayment(ctx context.Context, paymentID string) (*model.Subscription, bool, error) {
	defer logging.TraceDuration(s.log, "SubscriptionUC.CheckPayment")()

	intent, err := s.gateway.CheckStatus(ctx, paymentID)
	if err != nil {
		return nil, false, err
	}

	switch intent.Status {
	case adapter.PaymentStatusSucceeded:
		return s.ConfirmPayment(ctx, paymentID)
	case adapter.PaymentStatusCanceled:
		sub, err := s.CancelPendingPayment(ctx, paymentID)
		if err != nil && !errors.Is(err, domain.ErrNotPending) {
			return nil, false, err
		}
		if sub == nil {
			sub, err = s.subs.FindByPaymentID(ctx, repository.NoTX, paymentID)
			if err != nil {
				return nil, false, err
			}
		}
		return sub, false, nil
	default:
		sub, err := s.subs.FindByPaymentID(ctx, repository.NoTX, paymentID)
		return sub, false, err
	}
}

func (s *subscriptionUC) HandleGatewayEvent(ctx context.Context, n *adapter.Notification) error {
	defer logging.TraceDuration(s.log, "SubscriptionUC.HandleGatewayEvent")()

	switch n.Event {
	case "payment.succeeded":
		sub, activated, err := s.ConfirmPayment(ctx, n.PaymentID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				s.log.Warn().Str("payment_id", n.PaymentID).Msg("webhook for unknown payment")
				return nil
			}
			return err
		}
		if activated {
			s.notifyActivated(ctx, sub)
		}
		return nil

	case "payment.canceled":
		sub, err := s.CancelPendingPayment(ctx, n.PaymentID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrNotPending) {
				return nil
			}
			return err
		}
		metrics.IncPayment("canceled")
		s.notifyTg(ctx, sub.UserID, "❌ Платеж отменен. Вы можете оформить подписку заново через /subscription")
		return nil

	default:
		s.log.Debug().Str("event", n.Event).Msg("ignoring gateway event")
		return nil
	}
}

func (s *subscriptionUC) CancelPendingPayment(ctx context.Context, paymentID string) (*model.Subscription, error) {
	defer logging.TraceDuration(s.log, "SubscriptionUC.CancelPendingPayment")()
	return s.subs.CancelPendingByPaymentID(ctx, repository.NoTX, paymentID)
}

func (s *subscriptionUC) CancelRenewal(ctx context.Context, paymentID string) error {
	defer logging.TraceDuration(s.log, "SubscriptionUC.CancelRenewal")()

	sub, err := s.subs.CancelPendingByPaymentID(ctx, repository.NoTX, paymentID)
	if err != nil {
		return err
	}
	// Cancelling one charge without turning auto-renewal off would just make
	// the scheduler try again next cycle.
	if err := s.subs.SetAutoRenewal(ctx, repository.NoTX, sub.UserID, false); err != nil && !errors.Is(err, domain.ErrNoActiveSubscription) {
		return err
	}
	s.log.Info().Str("payment_id", paymentID).Str("user_id", sub.UserID).Msg("renewal canceled by user")
	return nil
}

func (s *subscriptionUC) ToggleAutoRenewal(ctx context.Context, userID string) (bool, error) {
	defer logging.TraceDuration(s.log, "SubscriptionUC.ToggleAutoRenewal")()

	sub, err := s.subs.FindActiveByUser(ctx, repository.NoTX, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, domain.ErrNoActiveSubscription
		}
		return false, err
	}
	next := !sub.AutoRenewal
	if err := s.subs.SetAutoRenewal(ctx, repository.NoTX, userID, next); err != nil {
		return false, err
	}
	return next, nil
}

func (s *subscriptionUC) CancelSubscription(ctx context.Context, userID string) (*model.Subscription, error) {
	defer logging.TraceDuration(s.log, "SubscriptionUC.CancelSubscription")()

	sub, err := s.subs.FindActiveByUser(ctx, repository.NoTX, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNoActiveSubscription
		}
		return nil, err
	}
	if err := s.subs.Cancel(ctx, repository.NoTX, sub.ID); err != nil {
		return nil, err
	}
	s.log.Info().Str("user_id", userID).Str("subscription_id", sub.ID).Msg("subscription canceled by user")
	return sub, nil
}

func (s *subscriptionUC) ActiveSubscription(ctx context.Context, userID string) (*model.Subscription, error) {
	defer logging.TraceDuration(s.log, "SubscriptionUC.ActiveSubscription")()
	return s.subs.FindActiveByUser(ctx, repository.NoTX, userID)
}

func (s *subscriptionUC) LatestSubscription(ctx context.Context, userID string) (*model.Subscription, error) {
	defer logging.TraceDuration(s.log, "SubscriptionUC.LatestSubscription")()
	return s.subs.FindLatestByUser(ctx, repository.NoTX, userID)
}

func (s *subscriptionUC) notifyActivated(ctx context.Context, sub *model.Subscription) {
	text := "✅ Подписка успешно оформлена!"
	if sub.EndDate != nil {
		text = fmt.Sprintf("✅ Подписка успешно оформлена!\n\nДействует до %s", sub.EndDate.Format("02.01.2006"))
	}
	s.notifyTg(ctx, sub.UserID, text)
}

func (s *subscriptionUC) notifyTg(ctx context.Context, userID, text string) {
	bot := s.getNotifier()
	if bot == nil {
		return
	}
	user, err := s.users.FindByID(ctx, repository.NoTX, userID)
	if err != nil {
		s.log.Error().Err(err).Str("user_id", userID).Msg("cannot resolve user for notification")
		return
	}
	if err := bot.SendMessage(ctx, user.TelegramID, text); err != nil {
		s.log.Error().Err(err).Int64("tg_id", user.TelegramID).Msg("failed to send notification")
	}
}
