package model

import (
	"time"

	"nutrition-assistant-bot/internal/domain"

	"github.com/google/uuid"
)

// MealLog is one analyzed food photo: the assistant's nutrition breakdown
// plus the calorie estimate it extracted, kept for daily summaries.
type MealLog struct {
	ID          string
	UserID      string
	Description string
	Calories    int // kcal, 0 when the estimate could not be parsed
	CreatedAt   time.Time
}

func NewMealLog(userID, description string, calories int) (*MealLog, error) {
	if userID == "" || description == "" {
		return nil, domain.ErrInvalidArgument
	}
	if calories < 0 {
		calories = 0
	}
	return &MealLog{
		ID:          uuid.NewString(),
		UserID:      userID,
		Description: description,
		Calories:    calories,
		CreatedAt:   time.Now(),
	}, nil
}
