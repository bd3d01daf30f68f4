package sched

import (
	"context"
	"time"

	"nutrition-assistant-bot/internal/usecase"

	"github.com/rs/zerolog"
)

// RenewalWorker drives the renewal scan on a fixed period. After a cycle
// error it waits the shorter backoff instead of a full interval, so a
// transient database or gateway outage is retried quickly.
type RenewalWorker struct {
	interval time.Duration
	backoff  time.Duration
	renewUC  usecase.RenewalUseCase
	log      *zerolog.Logger
}

func NewRenewalWorker(interval, backoff time.Duration, renewUC usecase.RenewalUseCase, logger *zerolog.Logger) *RenewalWorker {
	wLog := logger.With().Str("component", "RenewalWorker").Logger()
	return &RenewalWorker{
		interval: interval,
		backoff:  backoff,
		renewUC:  renewUC,
		log:      &wLog,
	}
}

func (w *RenewalWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting renewal worker")

	timer := time.NewTimer(w.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping renewal worker")
			return ctx.Err()
		case <-timer.C:
			next := w.interval
			if err := w.renewUC.RunCycle(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				w.log.Error().Err(err).Msg("renewal cycle error")
				next = w.backoff
			}
			timer.Reset(next)
		}
	}
}
