package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"nutrition-assistant-bot/internal/domain/ports/adapter"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.AIServiceAdapter = (*OpenAIAdapter)(nil)

const systemPromptFood = `Ты опытный нутрициолог и эксперт по питанию. Твоя задача - анализировать фотографии блюд.

Когда анализируешь блюдо на фотографии, предоставь следующую информацию:
1. Общее описание блюда и его ингредиентов
2. Примерное количество калорий и БЖУ (белки, жиры, углеводы) на порцию
3. Микроэлементы и витамины
4. Плюсы и минусы блюда с точки зрения здорового питания
5. Советы по улучшению или альтернативы

Отвечай на русском языке. Используй научно обоснованную информацию. Если ты не уверен в точных значениях, укажи приблизительные, но отметь, что это оценка.`

const systemPromptNutrition = `Ты опытный нутрициолог и эксперт по питанию. Твоя задача - отвечать на вопросы о питании, диетах и здоровом образе жизни.

Придерживайся следующих принципов:
1. Используй только научно обоснованную информацию
2. Если информация противоречива или недостаточно изучена, укажи на это
3. Не давай категоричных медицинских рекомендаций
4. Учитывай, что каждый человек индивидуален
5. Когда это уместно, предлагай обратиться к врачу или диетологу

Отвечай на русском языке.`

// OpenAIAdapter implements adapter.AIServiceAdapter using the Chat
// Completions API. Photos go through vision content parts on the same
// endpoint.
type OpenAIAdapter struct {
	apiKey string
	base   string // e.g., https://api.openai.com/v1
	model  string
	client *http.Client
}

func NewOpenAIAdapter(apiKey, baseURL, model string) (*OpenAIAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key empty")
	}
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIAdapter{
		apiKey: apiKey,
		base:   baseURL,
		model:  model,
		client: &http.Client{Timeout: 60 * time.Second},
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"` // string or []contentPart
}

type contentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL *struct {
		URL string `json:"url"`
	} `json:"image_url,omitempty"`
}

func (o *OpenAIAdapter) AnalyzeFoodPhoto(ctx context.Context, photoURL string) (string, error) {
	imagePart := contentPart{Type: "image_url"}
	imagePart.ImageURL = &struct {
		URL string `json:"url"`
	}{URL: photoURL}

	return o.chat(ctx, []chatMessage{
		{Role: "system", Content: systemPromptFood},
		{Role: "user", Content: []contentPart{
			{Type: "text", Text: "Проанализируй это блюдо."},
			imagePart,
		}},
	})
}

func (o *OpenAIAdapter) AnswerQuestion(ctx context.Context, question string) (string, error) {
	return o.chat(ctx, []chatMessage{
		{Role: "system", Content: systemPromptNutrition},
		{Role: "user", Content: question},
	})
}

func (o *OpenAIAdapter) chat(ctx context.Context, messages []chatMessage) (string, error) {
	reqBody := struct {
		Model     string        `json:"model"`
		Messages  []chatMessage `json:"messages"`
		MaxTokens int           `json:"max_tokens"`
	}{Model: o.model, Messages: messages, MaxTokens: 2000}

	b, _ := json.Marshal(reqBody)
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, o.base+"/chat/completions", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("openai http %d", resp.StatusCode)
	}

	var payload struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", err
	}
	for _, c := range payload.Choices {
		if c.Message.Content != "" {
			return c.Message.Content, nil
		}
	}
	return "", errors.New("no choice content")
}
