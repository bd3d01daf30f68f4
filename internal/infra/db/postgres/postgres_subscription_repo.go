package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"nutrition-assistant-bot/internal/domain"
	"nutrition-assistant-bot/internal/domain/model"
	"nutrition-assistant-bot/internal/domain/ports/repository"
)

// Ensure subscriptionRepo implements repository.SubscriptionRepository
var _ repository.SubscriptionRepository = (*subscriptionRepo)(nil)

const subColumns = `id, user_id, payment_id, parent_payment_id, status, amount, currency,
  start_date, end_date, next_payment_date, auto_renewal, renewal_attempts, last_attempt_at, created_at`

type subscriptionRepo struct {
	pool *pgxpool.Pool
}

func NewSubscriptionRepo(pool *pgxpool.Pool) *subscriptionRepo {
	return &subscriptionRepo{pool: pool}
}

func (r *subscriptionRepo) Create(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	const q = `
INSERT INTO user_subscriptions (
  id, user_id, payment_id, parent_payment_id, status, amount, currency,
  start_date, end_date, next_payment_date, auto_renewal, renewal_attempts, last_attempt_at, created_at
) VALUES ($1,$2,$3,NULLIF($4,''),$5,$6,$7,$8,$9,$10,$11,$12,$13,$14);`

	_, err := execSQL(ctx, r.pool, tx, q,
		s.ID, s.UserID, s.PaymentID, s.ParentPaymentID, s.Status, s.Amount, s.Currency,
		s.StartDate, s.EndDate, s.NextPaymentDate, s.AutoRenewal, s.RenewalAttempts, s.LastAttemptAt, s.CreatedAt)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrInvalidExecContext):
			return err
		default:
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return domain.ErrAlreadyExists
			}
			return domain.ErrOperationFailed
		}
	}
	return nil
}

func (r *subscriptionRepo) FindByPaymentID(ctx context.Context, tx repository.Tx, paymentID string) (*model.Subscription, error) {
	const q = `
SELECT ` + subColumns + `
  FROM user_subscriptions
 WHERE payment_id=$1;`
	return r.queryOne(ctx, tx, q, paymentID)
}

func (r *subscriptionRepo) FindActiveByUser(ctx context.Context, tx repository.Tx, userID string) (*model.Subscription, error) {
	const q = `
SELECT ` + subColumns + `
  FROM user_subscriptions
 WHERE user_id=$1 AND status='succeeded' AND end_date > NOW()
 ORDER BY end_date DESC
 LIMIT 1;`
	return r.queryOne(ctx, tx, q, userID)
}

func (r *subscriptionRepo) FindLatestByUser(ctx context.Context, tx repository.Tx, userID string) (*model.Subscription, error) {
	const q = `
SELECT ` + subColumns + `
  FROM user_subscriptions
 WHERE user_id=$1
 ORDER BY created_at DESC
 LIMIT 1;`
	return r.queryOne(ctx, tx, q, userID)
}

// Activate is guarded on status='pending' so duplicate confirmations are a
// no-op: the second caller gets the already-succeeded row and activated=false.
func (r *subscriptionRepo) Activate(ctx context.Context, tx repository.Tx, paymentID string, duration time.Duration) (*model.Subscription, bool, error) {
	const q = `
UPDATE user_subscriptions
   SET status='succeeded',
       start_date=NOW(),
       end_date=NOW() + make_interval(secs => $2),
       next_payment_date=NOW() + make_interval(secs => $2)
 WHERE payment_id=$1 AND status='pending'
RETURNING ` + subColumns + `;`

	sub, err := r.queryOne(ctx, tx, q, paymentID, duration.Seconds())
	if err == nil {
		return sub, true, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, false, err
	}

	// No pending row transitioned; surface the existing row if there is one.
	existing, err := r.FindByPaymentID(ctx, tx, paymentID)
	if err != nil {
		return nil, false, err
	}
	if existing.Status == model.SubscriptionStatusCanceled {
		return nil, false, domain.ErrNotPending
	}
	return existing, false, nil
}

// Cancel revokes a row regardless of status: the subscription stops granting
// access the moment the status flips, whatever end_date says, and the
// scheduler never picks a canceled row up again.
func (r *subscriptionRepo) Cancel(ctx context.Context, tx repository.Tx, id string) error {
	const q = `UPDATE user_subscriptions SET status='canceled', auto_renewal=false WHERE id=$1;`
	tag, err := execSQL(ctx, r.pool, tx, q, id)
	if err != nil {
		return domain.ErrOperationFailed
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *subscriptionRepo) CancelPendingByPaymentID(ctx context.Context, tx repository.Tx, paymentID string) (*model.Subscription, error) {
	const q = `
UPDATE user_subscriptions
   SET status='canceled'
 WHERE payment_id=$1 AND status='pending'
RETURNING ` + subColumns + `;`
	return r.queryOne(ctx, tx, q, paymentID)
}

func (r *subscriptionRepo) SetAutoRenewal(ctx context.Context, tx repository.Tx, userID string, enabled bool) error {
	const q = `
UPDATE user_subscriptions
   SET auto_renewal=$2
 WHERE user_id=$1 AND status='succeeded' AND end_date > NOW();`
	tag, err := execSQL(ctx, r.pool, tx, q, userID, enabled)
	if err != nil {
		return domain.ErrOperationFailed
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNoActiveSubscription
	}
	return nil
}

func (r *subscriptionRepo) FindExpiring(ctx context.Context, tx repository.Tx, within time.Duration) ([]*model.Subscription, error) {
	const q = `
SELECT ` + subColumns + `
  FROM user_subscriptions
 WHERE status='succeeded'
   AND auto_renewal
   AND end_date > NOW()
   AND end_date <= NOW() + make_interval(secs => $1)
 ORDER BY end_date ASC;`
	rows, err := queryRows(ctx, r.pool, tx, q, within.Seconds())
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrInvalidExecContext):
			return nil, err
		default:
			return nil, domain.ErrOperationFailed
		}
	}
	defer rows.Close()
	var out []*model.Subscription
	for rows.Next() {
		s, err := scanSub(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func (r *subscriptionRepo) RecordAttempt(ctx context.Context, tx repository.Tx, id string) (int, error) {
	const q = `
UPDATE user_subscriptions
   SET renewal_attempts = renewal_attempts + 1,
       last_attempt_at = NOW()
 WHERE id=$1
RETURNING renewal_attempts;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrNotFound
		}
		return 0, domain.ErrReadDatabaseRow
	}
	return n, nil
}

func (r *subscriptionRepo) CountByStatus(ctx context.Context, tx repository.Tx) (map[model.SubscriptionStatus]int, error) {
	const q = `SELECT status, COUNT(*) FROM user_subscriptions GROUP BY status;`
	rows, err := queryRows(ctx, r.pool, tx, q)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	counts := make(map[model.SubscriptionStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		counts[model.SubscriptionStatus(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return counts, nil
}

func (r *subscriptionRepo) SumSucceededSince(ctx context.Context, tx repository.Tx, since time.Time) (int64, error) {
	const q = `
SELECT COALESCE(SUM(amount),0)
  FROM user_subscriptions
 WHERE status='succeeded' AND created_at >= $1;`
	row, err := pickRow(ctx, r.pool, tx, q, since)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := row.Scan(&n); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return n, nil
}

func (r *subscriptionRepo) queryOne(ctx context.Context, tx repository.Tx, sql string, args ...any) (*model.Subscription, error) {
	row, err := pickRow(ctx, r.pool, tx, sql, args...)
	if err != nil {
		return nil, err
	}
	return scanSubRow(row)
}

func scanSubRow(row pgx.Row) (*model.Subscription, error) {
	s := &model.Subscription{}
	var status string
	var parent *string
	if err := row.Scan(&s.ID, &s.UserID, &s.PaymentID, &parent, &status, &s.Amount, &s.Currency,
		&s.StartDate, &s.EndDate, &s.NextPaymentDate, &s.AutoRenewal, &s.RenewalAttempts, &s.LastAttemptAt, &s.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	if parent != nil {
		s.ParentPaymentID = *parent
	}
	s.Status = model.SubscriptionStatus(status)
	return s, nil
}

func scanSub(rows pgx.Rows) (*model.Subscription, error) {
	return scanSubRow(rows)
}
