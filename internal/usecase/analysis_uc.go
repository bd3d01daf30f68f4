package usecase

import (
	"context"
	"regexp"
	"strconv"
	"time"

	"nutrition-assistant-bot/internal/domain"
	"nutrition-assistant-bot/internal/domain/model"
	"nutrition-assistant-bot/internal/domain/ports/adapter"
	"nutrition-assistant-bot/internal/domain/ports/repository"
	"nutrition-assistant-bot/internal/infra/logging"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ AnalysisUseCase = (*analysisUC)(nil)

// AnalysisUseCase is the metered core of the bot: photo analysis and
// free-form nutrition questions, both gated by entitlements.
type AnalysisUseCase interface {
	// AnalyzeFoodPhoto runs the gate, asks the model for a nutrition
	// breakdown, stores a meal log entry and counts the action.
	// domain.ErrUsageLimitReached when the free quota is exhausted.
	AnalyzeFoodPhoto(ctx context.Context, userID, photoURL string) (string, error)

	// AnswerQuestion answers a nutrition question under the question quota.
	AnswerQuestion(ctx context.Context, userID, question string) (string, error)

	// TodaySummary lists today's analyzed meals and their calorie total.
	TodaySummary(ctx context.Context, userID string) ([]*model.MealLog, int, error)
}

type analysisUC struct {
	ent   EntitlementUseCase
	ai    adapter.AIServiceAdapter
	usage repository.UsageRepository
	meals repository.MealLogRepository
	log   *zerolog.Logger
}

func NewAnalysisUseCase(
	ent EntitlementUseCase,
	ai adapter.AIServiceAdapter,
	usage repository.UsageRepository,
	meals repository.MealLogRepository,
	logger *zerolog.Logger,
) *analysisUC {
	ucLog := logger.With().Str("component", "AnalysisUC").Logger()
	return &analysisUC{ent: ent, ai: ai, usage: usage, meals: meals, log: &ucLog}
}

var kcalRe = regexp.MustCompile(`(\d{2,5})\s*(?:ккал|калори)`)

// parseCalories pulls the first calorie figure out of the model's answer.
// Zero when the answer carries none; the meal log entry is still kept.
func parseCalories(answer string) int {
	m := kcalRe.FindStringSubmatch(answer)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}

func (a *analysisUC) AnalyzeFoodPhoto(ctx context.Context, userID, photoURL string) (string, error) {
	defer logging.TraceDuration(a.log, "AnalysisUC.AnalyzeFoodPhoto")()

	ok, err := a.ent.CanUsePhoto(ctx, userID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", domain.ErrUsageLimitReached
	}

	answer, err := a.ai.AnalyzeFoodPhoto(ctx, photoURL)
	if err != nil {
		return "", err
	}

	meal, err := model.NewMealLog(userID, answer, parseCalories(answer))
	if err == nil {
		if err := a.meals.Save(ctx, repository.NoTX, meal); err != nil {
			a.log.Error().Err(err).Str("user_id", userID).Msg("failed to save meal log")
		}
	}

	// The counter moves only after a delivered answer, so a model failure
	// never costs the user part of the quota.
	if _, err := a.usage.IncrementPhotos(ctx, repository.NoTX, userID); err != nil {
		a.log.Error().Err(err).Str("user_id", userID).Msg("failed to increment photo counter")
	}
	return answer, nil
}

func (a *analysisUC) AnswerQuestion(ctx context.Context, userID, question string) (string, error) {
	defer logging.TraceDuration(a.log, "AnalysisUC.AnswerQuestion")()

	ok, err := a.ent.CanAskQuestion(ctx, userID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", domain.ErrUsageLimitReached
	}

	answer, err := a.ai.AnswerQuestion(ctx, question)
	if err != nil {
		return "", err
	}

	if _, err := a.usage.IncrementQuestions(ctx, repository.NoTX, userID); err != nil {
		a.log.Error().Err(err).Str("user_id", userID).Msg("failed to increment question counter")
	}
	return answer, nil
}

func (a *analysisUC) TodaySummary(ctx context.Context, userID string) ([]*model.MealLog, int, error) {
	defer logging.TraceDuration(a.log, "AnalysisUC.TodaySummary")()

	now := time.Now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	meals, err := a.meals.ListByUserSince(ctx, repository.NoTX, userID, midnight)
	if err != nil {
		return nil, 0, err
	}
	total := 0
	for _, m := range meals {
		total += m.Calories
	}
	return meals, total, nil
}
