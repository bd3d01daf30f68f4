package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"nutrition-assistant-bot/internal/domain"
	"nutrition-assistant-bot/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*NoopPaymentGateway)(nil)

// NoopPaymentGateway is a simple in-memory gateway for dev mode and tests.
// Created payments start pending; tests flip them with SetStatus.
type NoopPaymentGateway struct {
	mu      sync.Mutex
	seq     int64
	intents map[string]*adapter.PaymentIntent
}

func NewNoopPaymentGateway() *NoopPaymentGateway {
	return &NoopPaymentGateway{intents: make(map[string]*adapter.PaymentIntent)}
}

func (g *NoopPaymentGateway) Name() string { return "noop" }

func (g *NoopPaymentGateway) next() string {
	g.seq++
	return fmt.Sprintf("noop-%d", g.seq)
}

func (g *NoopPaymentGateway) CreatePayment(ctx context.Context, amount int64, currency, description, returnURL string, meta map[string]string) (*adapter.PaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.next()
	intent := &adapter.PaymentIntent{
		ID:              id,
		Status:          adapter.PaymentStatusPending,
		ConfirmationURL: "https://example.test/pay/" + id,
		PaymentMethodID: "pm-" + id,
	}
	g.intents[id] = intent
	cp := *intent
	return &cp, nil
}

func (g *NoopPaymentGateway) CreateRecurrentPayment(ctx context.Context, amount int64, currency, description, parentPaymentID string, meta map[string]string) (*adapter.PaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.intents[parentPaymentID]; !ok {
		return nil, domain.ErrNotFound
	}
	id := g.next()
	intent := &adapter.PaymentIntent{ID: id, Status: adapter.PaymentStatusSucceeded}
	g.intents[id] = intent
	cp := *intent
	return &cp, nil
}

func (g *NoopPaymentGateway) CheckStatus(ctx context.Context, paymentID string) (*adapter.PaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	intent, ok := g.intents[paymentID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *intent
	return &cp, nil
}

func (g *NoopPaymentGateway) ParseNotification(body []byte) (*adapter.Notification, error) {
	var in struct {
		Event  string `json:"event"`
		Object struct {
			ID       string            `json:"id"`
			Status   string            `json:"status"`
			Metadata map[string]string `json:"metadata"`
		} `json:"object"`
	}
	if err := json.Unmarshal(body, &in); err != nil {
		return nil, err
	}
	return &adapter.Notification{Event: in.Event, PaymentID: in.Object.ID, Status: in.Object.Status, Metadata: in.Object.Metadata}, nil
}

// SetStatus forces a payment into a given status.
func (g *NoopPaymentGateway) SetStatus(paymentID, status string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if intent, ok := g.intents[paymentID]; ok {
		intent.Status = status
	}
}
