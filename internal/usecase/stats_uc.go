package usecase

import (
	"context"
	"time"

	"nutrition-assistant-bot/internal/domain/model"
	"nutrition-assistant-bot/internal/domain/ports/repository"
	"nutrition-assistant-bot/internal/infra/logging"
	"nutrition-assistant-bot/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ StatsUseCase = (*statsUC)(nil)

type StatsUseCase interface {
	Totals(ctx context.Context) (users int, byStatus map[model.SubscriptionStatus]int, err error)
	// Revenue sums succeeded payment amounts in minor units over the trailing
	// week, month and year.
	Revenue(ctx context.Context) (week int64, month int64, year int64, err error)
}

type statsUC struct {
	users repository.UserRepository
	subs  repository.SubscriptionRepository
	log   *zerolog.Logger
}

func NewStatsUseCase(users repository.UserRepository, subs repository.SubscriptionRepository, logger *zerolog.Logger) *statsUC {
	ucLog := logger.With().Str("component", "StatsUC").Logger()
	return &statsUC{users: users, subs: subs, log: &ucLog}
}

func (s *statsUC) Totals(ctx context.Context) (int, map[model.SubscriptionStatus]int, error) {
	defer logging.TraceDuration(s.log, "StatsUC.Totals")()

	users, err := s.users.CountUsers(ctx, repository.NoTX)
	if err != nil {
		return 0, nil, err
	}
	byStatus, err := s.subs.CountByStatus(ctx, repository.NoTX)
	if err != nil {
		return 0, nil, err
	}
	metrics.SetSubscriptionsTotal(byStatus)
	return users, byStatus, nil
}

func (s *statsUC) Revenue(ctx context.Context) (int64, int64, int64, error) {
	defer logging.TraceDuration(s.log, "StatsUC.Revenue")()

	now := time.Now()
	w, err := s.subs.SumSucceededSince(ctx, repository.NoTX, now.AddDate(0, 0, -7))
	if err != nil {
		return 0, 0, 0, err
	}
	m, err := s.subs.SumSucceededSince(ctx, repository.NoTX, now.AddDate(0, -1, 0))
	if err != nil {
		return 0, 0, 0, err
	}
	y, err := s.subs.SumSucceededSince(ctx, repository.NoTX, now.AddDate(-1, 0, 0))
	if err != nil {
		return 0, 0, 0, err
	}
	return w, m, y, nil
}
