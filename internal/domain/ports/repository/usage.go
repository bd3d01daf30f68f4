package repository

import (
	"context"

	"nutrition-assistant-bot/internal/domain/model"
)

// -----------------------------
// Usage ledger
// -----------------------------

// UsageRepository tracks free-tier consumption per user. Increments must be
// atomic upserts so concurrent metered actions never lose updates.
type UsageRepository interface {
	GetOrCreate(ctx context.Context, tx Tx, userID string) (*model.UsageRecord, error)
	IncrementPhotos(ctx context.Context, tx Tx, userID string) (*model.UsageRecord, error)
	IncrementQuestions(ctx context.Context, tx Tx, userID string) (*model.UsageRecord, error)
	Reset(ctx context.Context, tx Tx, userID string) error
}
