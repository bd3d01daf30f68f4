package usecase

import (
	"context"
	"errors"

	"nutrition-assistant-bot/internal/config"
	"nutrition-assistant-bot/internal/domain"
	"nutrition-assistant-bot/internal/domain/model"
	"nutrition-assistant-bot/internal/domain/ports/repository"
	"nutrition-assistant-bot/internal/infra/logging"
	"nutrition-assistant-bot/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ EntitlementUseCase = (*entitlementUC)(nil)

// Entitlements is a point-in-time view of what a user may do. Subscription is
// nil for free-tier users.
type Entitlements struct {
	Subscription   *model.Subscription
	PhotosUsed     int
	PhotosLimit    int
	QuestionsUsed  int
	QuestionsLimit int
}

// EntitlementUseCase decides whether a metered action may proceed. Every call
// re-reads storage; verdicts are never cached, so an activation or an expiry
// is visible on the very next check.
type EntitlementUseCase interface {
	CanUsePhoto(ctx context.Context, userID string) (bool, error)
	CanAskQuestion(ctx context.Context, userID string) (bool, error)
	Snapshot(ctx context.Context, userID string) (*Entitlements, error)
}

type entitlementUC struct {
	subs  repository.SubscriptionRepository
	usage repository.UsageRepository
	cfg   config.SubscriptionConfig
	log   *zerolog.Logger
}

func NewEntitlementUseCase(subs repository.SubscriptionRepository, usage repository.UsageRepository, cfg config.SubscriptionConfig, logger *zerolog.Logger) *entitlementUC {
	ucLog := logger.With().Str("component", "EntitlementUC").Logger()
	return &entitlementUC{subs: subs, usage: usage, cfg: cfg, log: &ucLog}
}

func (e *entitlementUC) CanUsePhoto(ctx context.Context, userID string) (bool, error) {
	defer logging.TraceDuration(e.log, "EntitlementUC.CanUsePhoto")()
	return e.allow(ctx, userID, "photo", func(u *model.UsageRecord) bool {
		return u.PhotosUsed < e.cfg.FreePhotoLimit
	})
}

func (e *entitlementUC) CanAskQuestion(ctx context.Context, userID string) (bool, error) {
	defer logging.TraceDuration(e.log, "EntitlementUC.CanAskQuestion")()
	return e.allow(ctx, userID, "question", func(u *model.UsageRecord) bool {
		return u.QuestionsUsed < e.cfg.FreeQuestionLimit
	})
}

// allow applies the gate order: an active subscription always wins, only then
// the free counters are consulted. A storage error denies with the error so a
// flaky database never turns into free unlimited access.
func (e *entitlementUC) allow(ctx context.Context, userID, kind string, underLimit func(*model.UsageRecord) bool) (bool, error) {
	_, err := e.subs.FindActiveByUser(ctx, repository.NoTX, userID)
	if err == nil {
		metrics.IncMeteredAction(kind, true)
		return true, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return false, err
	}

	usage, err := e.usage.GetOrCreate(ctx, repository.NoTX, userID)
	if err != nil {
		return false, err
	}
	if !underLimit(usage) {
		metrics.IncGateDenial(kind)
		return false, nil
	}
	metrics.IncMeteredAction(kind, false)
	return true, nil
}

func (e *entitlementUC) Snapshot(ctx context.Context, userID string) (*Entitlements, error) {
	defer logging.TraceDuration(e.log, "EntitlementUC.Snapshot")()

	out := &Entitlements{
		PhotosLimit:    e.cfg.FreePhotoLimit,
		QuestionsLimit: e.cfg.FreeQuestionLimit,
	}

	sub, err := e.subs.FindActiveByUser(ctx, repository.NoTX, userID)
	if err == nil {
		out.Subscription = sub
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	usage, err := e.usage.GetOrCreate(ctx, repository.NoTX, userID)
	if err != nil {
		return nil, err
	}
	out.PhotosUsed = usage.PhotosUsed
	out.QuestionsUsed = usage.QuestionsUsed
	return out, nil
}
