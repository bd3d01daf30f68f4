package repository

import (
	"context"
	"time"

	"nutrition-assistant-bot/internal/domain/model"
)

// SubscriptionRepository is the port for subscription payment-attempt rows.
type SubscriptionRepository interface {
	Create(ctx context.Context, tx Tx, s *model.Subscription) error

	FindByPaymentID(ctx context.Context, tx Tx, paymentID string) (*model.Subscription, error)

	// FindActiveByUser returns the subscription that currently grants access:
	// status succeeded and end_date in the future, latest end_date winning
	// when several overlap. domain.ErrNotFound when the user has none.
	FindActiveByUser(ctx context.Context, tx Tx, userID string) (*model.Subscription, error)

	// FindLatestByUser returns the most recently created row regardless of
	// status, used to distinguish first-time buyers from lapsed subscribers.
	FindLatestByUser(ctx context.Context, tx Tx, userID string) (*model.Subscription, error)

	// Activate flips a pending row with this payment id to succeeded and
	// stamps the start, end and next-payment dates (the next charge is due
	// when the window ends). The update is guarded on status='pending', so a
	// duplicate confirmation leaves the row untouched; the returned bool
	// reports whether this call performed the transition.
	Activate(ctx context.Context, tx Tx, paymentID string, duration time.Duration) (*model.Subscription, bool, error)

	// Cancel flips a row to canceled and switches auto-renewal off. Works on
	// pending and succeeded rows alike; a canceled subscription stops
	// granting access immediately, even before its end date.
	// domain.ErrNotFound when no row has this id.
	Cancel(ctx context.Context, tx Tx, id string) error
	CancelPendingByPaymentID(ctx context.Context, tx Tx, paymentID string) (*model.Subscription, error)

	SetAutoRenewal(ctx context.Context, tx Tx, userID string, enabled bool) error

	// FindExpiring lists auto-renewing active subscriptions whose end_date
	// falls within the window from now.
	FindExpiring(ctx context.Context, tx Tx, within time.Duration) ([]*model.Subscription, error)

	// RecordAttempt increments the renewal attempt counter and stamps the
	// attempt time, returning the new count so the caller can detect the
	// moment the retry cap is crossed.
	RecordAttempt(ctx context.Context, tx Tx, id string) (int, error)

	// --- Statistics read-only methods ---
	CountByStatus(ctx context.Context, tx Tx) (map[model.SubscriptionStatus]int, error)
	SumSucceededSince(ctx context.Context, tx Tx, since time.Time) (int64, error)
}
