package ai

import (
	"context"

	"nutrition-assistant-bot/internal/domain/ports/adapter"
)

var _ adapter.AIServiceAdapter = (*NoopAIAdapter)(nil)

// NoopAIAdapter returns canned answers; used in dev mode and tests.
type NoopAIAdapter struct{}

func NewNoopAIAdapter() *NoopAIAdapter { return &NoopAIAdapter{} }

func (n *NoopAIAdapter) AnalyzeFoodPhoto(ctx context.Context, photoURL string) (string, error) {
	return "Блюдо: тестовое. Калорийность: примерно 500 ккал.", nil
}

func (n *NoopAIAdapter) AnswerQuestion(ctx context.Context, question string) (string, error) {
	return "Это тестовый ответ на вопрос о питании.", nil
}
