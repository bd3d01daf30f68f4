package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"nutrition-assistant-bot/internal/domain"
	"nutrition-assistant-bot/internal/domain/model"
	"nutrition-assistant-bot/internal/domain/ports/repository"
)

// Ensure usageRepo implements repository.UsageRepository
var _ repository.UsageRepository = (*usageRepo)(nil)

type usageRepo struct {
	pool *pgxpool.Pool
}

func NewUsageRepo(pool *pgxpool.Pool) *usageRepo {
	return &usageRepo{pool: pool}
}

func (r *usageRepo) GetOrCreate(ctx context.Context, tx repository.Tx, userID string) (*model.UsageRecord, error) {
	const q = `
INSERT INTO user_usage (user_id, photos_used, questions_used, updated_at)
VALUES ($1, 0, 0, NOW())
ON CONFLICT (user_id) DO UPDATE SET user_id=user_usage.user_id
RETURNING user_id, photos_used, questions_used, updated_at;`
	return r.queryOne(ctx, tx, q, userID)
}

// IncrementPhotos bumps the photo counter in a single upsert so concurrent
// increments serialize on the row and none are lost.
func (r *usageRepo) IncrementPhotos(ctx context.Context, tx repository.Tx, userID string) (*model.UsageRecord, error) {
	const q = `
INSERT INTO user_usage (user_id, photos_used, questions_used, updated_at)
VALUES ($1, 1, 0, NOW())
ON CONFLICT (user_id) DO UPDATE SET
  photos_used = user_usage.photos_used + 1,
  updated_at = NOW()
RETURNING user_id, photos_used, questions_used, updated_at;`
	return r.queryOne(ctx, tx, q, userID)
}

func (r *usageRepo) IncrementQuestions(ctx context.Context, tx repository.Tx, userID string) (*model.UsageRecord, error) {
	const q = `
INSERT INTO user_usage (user_id, photos_used, questions_used, updated_at)
VALUES ($1, 0, 1, NOW())
ON CONFLICT (user_id) DO UPDATE SET
  questions_used = user_usage.questions_used + 1,
  updated_at = NOW()
RETURNING user_id, photos_used, questions_used, updated_at;`
	return r.queryOne(ctx, tx, q, userID)
}

func (r *usageRepo) Reset(ctx context.Context, tx repository.Tx, userID string) error {
	const q = `
INSERT INTO user_usage (user_id, photos_used, questions_used, updated_at)
VALUES ($1, 0, 0, NOW())
ON CONFLICT (user_id) DO UPDATE SET
  photos_used = 0,
  questions_used = 0,
  updated_at = NOW();`
	if _, err := execSQL(ctx, r.pool, tx, q, userID); err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrInvalidExecContext):
			return err
		default:
			return domain.ErrOperationFailed
		}
	}
	return nil
}

func (r *usageRepo) queryOne(ctx context.Context, tx repository.Tx, sql string, args ...any) (*model.UsageRecord, error) {
	row, err := pickRow(ctx, r.pool, tx, sql, args...)
	if err != nil {
		return nil, err
	}
	rec := &model.UsageRecord{}
	if err := row.Scan(&rec.UserID, &rec.PhotosUsed, &rec.QuestionsUsed, &rec.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return rec, nil
}
