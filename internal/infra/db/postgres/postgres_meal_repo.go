package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"nutrition-assistant-bot/internal/domain"
	"nutrition-assistant-bot/internal/domain/model"
	"nutrition-assistant-bot/internal/domain/ports/repository"
)

// Ensure mealLogRepo implements repository.MealLogRepository
var _ repository.MealLogRepository = (*mealLogRepo)(nil)

type mealLogRepo struct {
	pool *pgxpool.Pool
}

func NewMealLogRepo(pool *pgxpool.Pool) *mealLogRepo {
	return &mealLogRepo{pool: pool}
}

func (r *mealLogRepo) Save(ctx context.Context, tx repository.Tx, m *model.MealLog) error {
	const q = `
INSERT INTO meal_logs (id, user_id, description, calories, created_at)
VALUES ($1,$2,$3,$4,$5);`
	if _, err := execSQL(ctx, r.pool, tx, q, m.ID, m.UserID, m.Description, m.Calories, m.CreatedAt); err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrInvalidExecContext):
			return err
		default:
			return domain.ErrOperationFailed
		}
	}
	return nil
}

func (r *mealLogRepo) ListByUserSince(ctx context.Context, tx repository.Tx, userID string, since time.Time) ([]*model.MealLog, error) {
	const q = `
SELECT id, user_id, description, calories, created_at
  FROM meal_logs
 WHERE user_id=$1 AND created_at >= $2
 ORDER BY created_at ASC;`
	rows, err := queryRows(ctx, r.pool, tx, q, userID, since)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrInvalidExecContext):
			return nil, err
		default:
			return nil, domain.ErrOperationFailed
		}
	}
	defer rows.Close()
	var out []*model.MealLog
	for rows.Next() {
		m := &model.MealLog{}
		if err := rows.Scan(&m.ID, &m.UserID, &m.Description, &m.Calories, &m.CreatedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}
