package adapter

import "context"

// AIServiceAdapter is the port for the nutrition model.
type AIServiceAdapter interface {
	// AnalyzeFoodPhoto identifies the dish on the photo and returns a
	// human-readable nutrition breakdown.
	AnalyzeFoodPhoto(ctx context.Context, photoURL string) (string, error)

	// AnswerQuestion answers a free-form nutrition question.
	AnswerQuestion(ctx context.Context, question string) (string, error)
}
