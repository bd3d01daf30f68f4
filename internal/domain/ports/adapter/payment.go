package adapter

import "context"

// Payment statuses as reported by the provider.
const (
	PaymentStatusPending           = "pending"
	PaymentStatusWaitingForCapture = "waiting_for_capture"
	PaymentStatusSucceeded         = "succeeded"
	PaymentStatusCanceled          = "canceled"
)

// PaymentIntent is a minimal, provider-agnostic view of a payment object.
type PaymentIntent struct {
	ID              string
	Status          string
	ConfirmationURL string // redirect URL the payer must visit, "" when not required
	PaymentMethodID string // saved method id usable for recurrent charges, "" when none
}

// Notification is a parsed provider webhook event.
type Notification struct {
	Event     string // e.g. "payment.succeeded", "payment.canceled"
	PaymentID string
	Status    string
	Metadata  map[string]string
}

// PaymentGateway is the hex port for payment providers.
type PaymentGateway interface {
	Name() string

	// CreatePayment initiates a redirect-confirmed payment and asks the
	// provider to save the payment method for later recurrent charges.
	// Amount is in minor units.
	CreatePayment(ctx context.Context, amount int64, currency, description, returnURL string, meta map[string]string) (*PaymentIntent, error)

	// CreateRecurrentPayment charges the method saved on a previous payment
	// without payer interaction. Implementations fall back to a regular
	// redirect payment when the parent has no stored method.
	CreateRecurrentPayment(ctx context.Context, amount int64, currency, description, parentPaymentID string, meta map[string]string) (*PaymentIntent, error)

	// CheckStatus fetches the current state of a payment.
	CheckStatus(ctx context.Context, paymentID string) (*PaymentIntent, error)

	// ParseNotification decodes a provider webhook body.
	ParseNotification(body []byte) (*Notification, error)
}
