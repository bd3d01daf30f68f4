package model

import "time"

// UsageRecord is the per-user counter row for metered free-tier actions.
// Counters only grow through atomic repository increments and drop back to
// zero when a payment activates a subscription.
type UsageRecord struct {
	UserID        string
	PhotosUsed    int
	QuestionsUsed int
	UpdatedAt     time.Time
}

func NewUsageRecord(userID string) *UsageRecord {
	return &UsageRecord{UserID: userID, UpdatedAt: time.Now()}
}
