//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"nutrition-assistant-bot/internal/domain/model"
)

func TestMealLogRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}

	ctx := context.Background()
	repo := NewMealLogRepo(testPool)
	userRepo := NewUserRepo(testPool)

	cleanup(t)
	user, _ := model.NewUser("", 111, "user1")
	if err := userRepo.Save(ctx, nil, user); err != nil {
		t.Fatalf("save user: %v", err)
	}

	old, _ := model.NewMealLog(user.ID, "Вчерашний ужин. Калорийность: примерно 600 ккал.", 600)
	old.CreatedAt = time.Now().Add(-26 * time.Hour)
	fresh, _ := model.NewMealLog(user.ID, "Овсяная каша. Калорийность: примерно 350 ккал.", 350)

	for _, m := range []*model.MealLog{old, fresh} {
		if err := repo.Save(ctx, nil, m); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	meals, err := repo.ListByUserSince(ctx, nil, user.ID, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("ListByUserSince: %v", err)
	}
	if len(meals) != 1 || meals[0].ID != fresh.ID || meals[0].Calories != 350 {
		t.Fatalf("meals = %+v", meals)
	}

	all, err := repo.ListByUserSince(ctx, nil, user.ID, time.Now().Add(-48*time.Hour))
	if err != nil {
		t.Fatalf("ListByUserSince: %v", err)
	}
	if len(all) != 2 || !all[0].CreatedAt.Before(all[1].CreatedAt) {
		t.Fatalf("all = %+v", all)
	}
}
