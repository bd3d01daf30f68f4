package model

import (
	"time"

	"nutrition-assistant-bot/internal/domain"
)

type SubscriptionStatus string

const (
	SubscriptionStatusPending   SubscriptionStatus = "pending"
	SubscriptionStatusSucceeded SubscriptionStatus = "succeeded"
	SubscriptionStatusCanceled  SubscriptionStatus = "canceled"
)

// Subscription is one payment attempt and the access window it buys.
// Every checkout and every renewal charge creates its own row; the row is
// pending until the gateway confirms the charge.
//
// Expiry is never stored as a status: a subscription grants access while
// Status is succeeded AND EndDate is in the future. Readers that need the
// current entitlement must evaluate that predicate against now.
type Subscription struct {
	ID              string
	UserID          string
	PaymentID       string // gateway payment id for this attempt
	ParentPaymentID string // payment id of the subscription being renewed, "" for first purchase
	Status          SubscriptionStatus
	Amount          int64 // minor units (kopecks)
	Currency        string
	StartDate       *time.Time // nil until activated
	EndDate         *time.Time // nil until activated
	NextPaymentDate *time.Time // when the next renewal charge is due; stamped to EndDate on activation
	AutoRenewal     bool
	RenewalAttempts int
	LastAttemptAt   *time.Time
	CreatedAt       time.Time
}

// NewSubscription creates a pending row for a fresh payment attempt.
func NewSubscription(id, userID, paymentID string, amount int64, currency string) (*Subscription, error) {
	if id == "" || userID == "" || paymentID == "" || amount <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	return &Subscription{
		ID:          id,
		UserID:      userID,
		PaymentID:   paymentID,
		Status:      SubscriptionStatusPending,
		Amount:      amount,
		Currency:    currency,
		AutoRenewal: true,
		CreatedAt:   time.Now(),
	}, nil
}

// IsActive reports whether the subscription grants access right now.
func (s *Subscription) IsActive(now time.Time) bool {
	return s != nil &&
		s.Status == SubscriptionStatusSucceeded &&
		s.EndDate != nil && s.EndDate.After(now)
}

// IsRenewal reports whether this row was created by the renewal scheduler.
func (s *Subscription) IsRenewal() bool { return s != nil && s.ParentPaymentID != "" }
