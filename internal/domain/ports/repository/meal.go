package repository

import (
	"context"
	"time"

	"nutrition-assistant-bot/internal/domain/model"
)

// -----------------------------
// Meal log
// -----------------------------

type MealLogRepository interface {
	Save(ctx context.Context, tx Tx, m *model.MealLog) error
	ListByUserSince(ctx context.Context, tx Tx, userID string, since time.Time) ([]*model.MealLog, error)
}
