// File: internal/infra/adapters/payment/yookassa_gateway.go
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"nutrition-assistant-bot/internal/domain"
	"nutrition-assistant-bot/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*YooKassaGateway)(nil)

// YooKassaGateway implements adapter.PaymentGateway against the YooKassa REST
// v3 API. Writes carry a ULID Idempotence-Key so a retried request cannot
// create a second payment.
type YooKassaGateway struct {
	shopID    string
	secretKey string
	returnURL string
	base      string
	client    *http.Client
	log       *zerolog.Logger
}

func NewYooKassaGateway(shopID, secretKey, returnURL string, logger *zerolog.Logger) (*YooKassaGateway, error) {
	if shopID == "" || secretKey == "" {
		return nil, errors.New("yookassa credentials empty")
	}
	gwLog := logger.With().Str("component", "YooKassaGateway").Logger()
	return &YooKassaGateway{
		shopID:    shopID,
		secretKey: secretKey,
		returnURL: returnURL,
		base:      "https://api.yookassa.ru/v3",
		client:    &http.Client{Timeout: 30 * time.Second},
		log:       &gwLog,
	}, nil
}

func (y *YooKassaGateway) Name() string { return "yookassa" }

// formatAmount renders minor units as the "399.00" wire format.
func formatAmount(minor int64) string {
	return fmt.Sprintf("%d.%02d", minor/100, minor%100)
}

type wireAmount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type wirePayment struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	Confirmation *struct {
		Type            string `json:"type"`
		ConfirmationURL string `json:"confirmation_url"`
	} `json:"confirmation"`
	PaymentMethod *struct {
		ID    string `json:"id"`
		Saved bool   `json:"saved"`
	} `json:"payment_method"`
	CancellationDetails *struct {
		Party  string `json:"party"`
		Reason string `json:"reason"`
	} `json:"cancellation_details"`
}

func (p *wirePayment) intent() *adapter.PaymentIntent {
	out := &adapter.PaymentIntent{ID: p.ID, Status: p.Status}
	if p.Confirmation != nil {
		out.ConfirmationURL = p.Confirmation.ConfirmationURL
	}
	if p.PaymentMethod != nil && p.PaymentMethod.Saved {
		out.PaymentMethodID = p.PaymentMethod.ID
	}
	return out
}

func (y *YooKassaGateway) CreatePayment(ctx context.Context, amount int64, currency, description, returnURL string, meta map[string]string) (*adapter.PaymentIntent, error) {
	if returnURL == "" {
		returnURL = y.returnURL
	}
	payload := map[string]any{
		"amount":  wireAmount{Value: formatAmount(amount), Currency: currency},
		"capture": true,
		"confirmation": map[string]string{
			"type":       "redirect",
			"return_url": returnURL,
		},
		"description":         description,
		"save_payment_method": true,
	}
	if meta != nil {
		payload["metadata"] = meta
	}
	return y.post(ctx, "/payments", payload)
}

// CreateRecurrentPayment charges the method saved on the parent payment. When
// the parent carries no saved method the charge degrades to a regular
// redirect payment so the user can still pay by hand.
func (y *YooKassaGateway) CreateRecurrentPayment(ctx context.Context, amount int64, currency, description, parentPaymentID string, meta map[string]string) (*adapter.PaymentIntent, error) {
	parent, err := y.CheckStatus(ctx, parentPaymentID)
	if err != nil {
		return nil, err
	}
	if parent.PaymentMethodID == "" {
		y.log.Warn().Str("parent_payment", parentPaymentID).Msg("no saved payment method, falling back to redirect payment")
		return y.CreatePayment(ctx, amount, currency, description, "", meta)
	}

	payload := map[string]any{
		"amount":            wireAmount{Value: formatAmount(amount), Currency: currency},
		"capture":           true,
		"payment_method_id": parent.PaymentMethodID,
		"description":       description,
	}
	if meta != nil {
		payload["metadata"] = meta
	}
	return y.post(ctx, "/payments", payload)
}

func (y *YooKassaGateway) CheckStatus(ctx context.Context, paymentID string) (*adapter.PaymentIntent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, y.base+"/payments/"+paymentID, nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(y.shopID, y.secretKey)

	resp, err := y.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.ErrNotFound
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("yookassa http %d", resp.StatusCode)
	}

	var p wirePayment
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, err
	}
	if p.Status == adapter.PaymentStatusCanceled && p.CancellationDetails != nil {
		y.log.Info().
			Str("payment_id", p.ID).
			Str("party", p.CancellationDetails.Party).
			Str("reason", p.CancellationDetails.Reason).
			Msg("payment canceled by provider")
	}
	return p.intent(), nil
}

// ParseNotification decodes a webhook body of the form
// {"event":"payment.succeeded","object":{"id":...,"status":...,"metadata":{...}}}.
func (y *YooKassaGateway) ParseNotification(body []byte) (*adapter.Notification, error) {
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
	if in.Event == "" || in.Object.ID == "" {
		return nil, domain.ErrInvalidArgument
	}
	return &adapter.Notification{
		Event:     in.Event,
		PaymentID: in.Object.ID,
		Status:    in.Object.Status,
		Metadata:  in.Object.Metadata,
	}, nil
}

func (y *YooKassaGateway) post(ctx context.Context, path string, payload any) (*adapter.PaymentIntent, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, y.base+path, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(y.shopID, y.secretKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotence-Key", ulid.Make().String())

	resp, err := y.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		var apiErr struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		y.log.Error().Int("http", resp.StatusCode).Str("code", apiErr.Code).Str("description", apiErr.Description).Msg("yookassa request failed")
		return nil, fmt.Errorf("yookassa http %d: %s", resp.StatusCode, apiErr.Code)
	}

	var p wirePayment
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, err
	}
	if p.ID == "" {
		return nil, errors.New("yookassa: empty payment id")
	}
	return p.intent(), nil
}
