//go:build !integration

package usecase_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"nutrition-assistant-bot/internal/config"
	"nutrition-assistant-bot/internal/domain"
	"nutrition-assistant-bot/internal/domain/model"
	"nutrition-assistant-bot/internal/domain/ports/adapter"
	"nutrition-assistant-bot/internal/domain/ports/repository"
)

// newTestLogger creates a silent zerolog.Logger for use in tests.
// It writes to io.Discard to prevent logs from cluttering test output.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

// testConfig returns a config with production defaults applied.
func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.ApplyDefaults()
	return cfg
}

// =============================
// Transaction manager
// =============================

type MockTxManager struct {
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	return fn(ctx, repository.NoTX)
}

// =============================
// Repositories
// =============================

// ---- Mock UserRepository ----

type MockUserRepo struct {
	mu   sync.Mutex
	byID map[string]*model.User
	byTG map[int64]*model.User

	SaveFunc             func(ctx context.Context, tx repository.Tx, u *model.User) error
	FindByTelegramIDFunc func(ctx context.Context, tx repository.Tx, tgID int64) (*model.User, error)
	FindByIDFunc         func(ctx context.Context, tx repository.Tx, id string) (*model.User, error)
	CountUsersFunc       func(ctx context.Context, tx repository.Tx) (int, error)
}

var _ repository.UserRepository = (*MockUserRepo)(nil)

func NewMockUserRepo() *MockUserRepo {
	return &MockUserRepo{byID: map[string]*model.User{}, byTG: map[int64]*model.User{}}
}

func (r *MockUserRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	if r.SaveFunc != nil {
		return r.SaveFunc(ctx, tx, u)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *u
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	r.byID[cp.ID] = &cp
	r.byTG[cp.TelegramID] = &cp
	return nil
}

func (r *MockUserRepo) FindByTelegramID(ctx context.Context, tx repository.Tx, tgID int64) (*model.User, error) {
	if r.FindByTelegramIDFunc != nil {
		return r.FindByTelegramIDFunc(ctx, tx, tgID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.byTG[tgID]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (r *MockUserRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	if r.FindByIDFunc != nil {
		return r.FindByIDFunc(ctx, tx, id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.byID[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (r *MockUserRepo) CountUsers(ctx context.Context, tx repository.Tx) (int, error) {
	if r.CountUsersFunc != nil {
		return r.CountUsersFunc(ctx, tx)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID), nil
}

// ---- Mock SubscriptionRepository ----

// MockSubscriptionRepo keeps rows in memory and reproduces the repository
// contract, including the status-guarded Activate transition.
type MockSubscriptionRepo struct {
	mu        sync.Mutex
	byID      map[string]*model.Subscription
	byPayment map[string]*model.Subscription

	ActivateFunc      func(ctx context.Context, tx repository.Tx, paymentID string, duration time.Duration) (*model.Subscription, bool, error)
	FindExpiringFunc  func(ctx context.Context, tx repository.Tx, within time.Duration) ([]*model.Subscription, error)
	RecordAttemptFunc func(ctx context.Context, tx repository.Tx, id string) (int, error)
}

var _ repository.SubscriptionRepository = (*MockSubscriptionRepo)(nil)

func NewMockSubscriptionRepo() *MockSubscriptionRepo {
	return &MockSubscriptionRepo{
		byID:      map[string]*model.Subscription{},
		byPayment: map[string]*model.Subscription{},
	}
}

// Seed inserts a row bypassing validation, for test arrangement.
func (r *MockSubscriptionRepo) Seed(s *model.Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.byID[cp.ID] = &cp
	r.byPayment[cp.PaymentID] = &cp
}

// Get returns a copy of the stored row for assertions.
func (r *MockSubscriptionRepo) Get(id string) *model.Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.byID[id]; ok {
		cp := *s
		return &cp
	}
	return nil
}

func (r *MockSubscriptionRepo) All() []*model.Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.Subscription, 0, len(r.byID))
	for _, s := range r.byID {
		cp := *s
		out = append(out, &cp)
	}
	return out
}

func (r *MockSubscriptionRepo) Create(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byPayment[s.PaymentID]; ok {
		return domain.ErrAlreadyExists
	}
	cp := *s
	r.byID[cp.ID] = &cp
	r.byPayment[cp.PaymentID] = &cp
	return nil
}

func (r *MockSubscriptionRepo) FindByPaymentID(ctx context.Context, tx repository.Tx, paymentID string) (*model.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.byPayment[paymentID]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (r *MockSubscriptionRepo) FindActiveByUser(ctx context.Context, tx repository.Tx, userID string) (*model.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	var best *model.Subscription
	for _, s := range r.byID {
		if s.UserID != userID || !s.IsActive(now) {
			continue
		}
		if best == nil || s.EndDate.After(*best.EndDate) {
			best = s
		}
	}
	if best == nil {
		return nil, domain.ErrNotFound
	}
	cp := *best
	return &cp, nil
}

func (r *MockSubscriptionRepo) FindLatestByUser(ctx context.Context, tx repository.Tx, userID string) (*model.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *model.Subscription
	for _, s := range r.byID {
		if s.UserID != userID {
			continue
		}
		if latest == nil || s.CreatedAt.After(latest.CreatedAt) {
			latest = s
		}
	}
	if latest == nil {
		return nil, domain.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (r *MockSubscriptionRepo) Activate(ctx context.Context, tx repository.Tx, paymentID string, duration time.Duration) (*model.Subscription, bool, error) {
	if r.ActivateFunc != nil {
		return r.ActivateFunc(ctx, tx, paymentID, duration)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byPayment[paymentID]
	if !ok {
		return nil, false, domain.ErrNotFound
	}
	if s.Status != model.SubscriptionStatusPending {
		if s.Status == model.SubscriptionStatusCanceled {
			return nil, false, domain.ErrNotPending
		}
		cp := *s
		return &cp, false, nil
	}
	now := time.Now()
	end := now.Add(duration)
	s.Status = model.SubscriptionStatusSucceeded
	s.StartDate = &now
	s.EndDate = &end
	s.NextPaymentDate = &end
	cp := *s
	return &cp, true, nil
}

func (r *MockSubscriptionRepo) Cancel(ctx context.Context, tx repository.Tx, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	s.Status = model.SubscriptionStatusCanceled
	s.AutoRenewal = false
	return nil
}

func (r *MockSubscriptionRepo) CancelPendingByPaymentID(ctx context.Context, tx repository.Tx, paymentID string) (*model.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byPayment[paymentID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if s.Status != model.SubscriptionStatusPending {
		return nil, domain.ErrNotPending
	}
	s.Status = model.SubscriptionStatusCanceled
	cp := *s
	return &cp, nil
}

func (r *MockSubscriptionRepo) SetAutoRenewal(ctx context.Context, tx repository.Tx, userID string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	touched := false
	for _, s := range r.byID {
		if s.UserID == userID && s.IsActive(now) {
			s.AutoRenewal = enabled
			touched = true
		}
	}
	if !touched {
		return domain.ErrNoActiveSubscription
	}
	return nil
}

func (r *MockSubscriptionRepo) FindExpiring(ctx context.Context, tx repository.Tx, within time.Duration) ([]*model.Subscription, error) {
	if r.FindExpiringFunc != nil {
		return r.FindExpiringFunc(ctx, tx, within)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	deadline := now.Add(within)
	var out []*model.Subscription
	for _, s := range r.byID {
		if s.IsActive(now) && s.AutoRenewal && s.EndDate.Before(deadline) {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *MockSubscriptionRepo) RecordAttempt(ctx context.Context, tx repository.Tx, id string) (int, error) {
	if r.RecordAttemptFunc != nil {
		return r.RecordAttemptFunc(ctx, tx, id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	if !ok {
		return 0, domain.ErrNotFound
	}
	s.RenewalAttempts++
	now := time.Now()
	s.LastAttemptAt = &now
	return s.RenewalAttempts, nil
}

func (r *MockSubscriptionRepo) CountByStatus(ctx context.Context, tx repository.Tx) (map[model.SubscriptionStatus]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[model.SubscriptionStatus]int{}
	for _, s := range r.byID {
		out[s.Status]++
	}
	return out, nil
}

func (r *MockSubscriptionRepo) SumSucceededSince(ctx context.Context, tx repository.Tx, since time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var sum int64
	for _, s := range r.byID {
		if s.Status == model.SubscriptionStatusSucceeded && s.StartDate != nil && s.StartDate.After(since) {
			sum += s.Amount
		}
	}
	return sum, nil
}

// ---- Mock UsageRepository ----

type MockUsageRepo struct {
	mu     sync.Mutex
	byUser map[string]*model.UsageRecord

	Resets int // count of Reset calls, for double-credit assertions

	GetOrCreateFunc        func(ctx context.Context, tx repository.Tx, userID string) (*model.UsageRecord, error)
	IncrementPhotosFunc    func(ctx context.Context, tx repository.Tx, userID string) (*model.UsageRecord, error)
	IncrementQuestionsFunc func(ctx context.Context, tx repository.Tx, userID string) (*model.UsageRecord, error)
}

var _ repository.UsageRepository = (*MockUsageRepo)(nil)

func NewMockUsageRepo() *MockUsageRepo {
	return &MockUsageRepo{byUser: map[string]*model.UsageRecord{}}
}

// SetCounters arranges the counters for a user.
func (r *MockUsageRepo) SetCounters(userID string, photos, questions int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byUser[userID] = &model.UsageRecord{UserID: userID, PhotosUsed: photos, QuestionsUsed: questions, UpdatedAt: time.Now()}
}

func (r *MockUsageRepo) getLocked(userID string) *model.UsageRecord {
	u, ok := r.byUser[userID]
	if !ok {
		u = model.NewUsageRecord(userID)
		r.byUser[userID] = u
	}
	return u
}

func (r *MockUsageRepo) GetOrCreate(ctx context.Context, tx repository.Tx, userID string) (*model.UsageRecord, error) {
	if r.GetOrCreateFunc != nil {
		return r.GetOrCreateFunc(ctx, tx, userID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *r.getLocked(userID)
	return &cp, nil
}

func (r *MockUsageRepo) IncrementPhotos(ctx context.Context, tx repository.Tx, userID string) (*model.UsageRecord, error) {
	if r.IncrementPhotosFunc != nil {
		return r.IncrementPhotosFunc(ctx, tx, userID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	u := r.getLocked(userID)
	u.PhotosUsed++
	u.UpdatedAt = time.Now()
	cp := *u
	return &cp, nil
}

func (r *MockUsageRepo) IncrementQuestions(ctx context.Context, tx repository.Tx, userID string) (*model.UsageRecord, error) {
	if r.IncrementQuestionsFunc != nil {
		return r.IncrementQuestionsFunc(ctx, tx, userID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	u := r.getLocked(userID)
	u.QuestionsUsed++
	u.UpdatedAt = time.Now()
	cp := *u
	return &cp, nil
}

func (r *MockUsageRepo) Reset(ctx context.Context, tx repository.Tx, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u := r.getLocked(userID)
	u.PhotosUsed = 0
	u.QuestionsUsed = 0
	u.UpdatedAt = time.Now()
	r.Resets++
	return nil
}

// ---- Mock MealLogRepository ----

type MockMealRepo struct {
	mu    sync.Mutex
	meals []*model.MealLog

	SaveFunc func(ctx context.Context, tx repository.Tx, m *model.MealLog) error
}

var _ repository.MealLogRepository = (*MockMealRepo)(nil)

func NewMockMealRepo() *MockMealRepo { return &MockMealRepo{} }

func (r *MockMealRepo) Save(ctx context.Context, tx repository.Tx, m *model.MealLog) error {
	if r.SaveFunc != nil {
		return r.SaveFunc(ctx, tx, m)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *m
	r.meals = append(r.meals, &cp)
	return nil
}

func (r *MockMealRepo) ListByUserSince(ctx context.Context, tx repository.Tx, userID string, since time.Time) ([]*model.MealLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.MealLog
	for _, m := range r.meals {
		if m.UserID == userID && m.CreatedAt.After(since) {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *MockMealRepo) Saved() []*model.MealLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.MealLog, len(r.meals))
	copy(out, r.meals)
	return out
}

// =============================
// Adapters
// =============================

// ---- Mock PaymentGateway ----

type MockPaymentGateway struct {
	mu      sync.Mutex
	seq     int
	intents map[string]*adapter.PaymentIntent

	CreatePaymentFunc          func(ctx context.Context, amount int64, currency, description, returnURL string, meta map[string]string) (*adapter.PaymentIntent, error)
	CreateRecurrentPaymentFunc func(ctx context.Context, amount int64, currency, description, parentPaymentID string, meta map[string]string) (*adapter.PaymentIntent, error)
	CheckStatusFunc            func(ctx context.Context, paymentID string) (*adapter.PaymentIntent, error)

	Calls struct {
		Create    int
		Recurrent int
		Check     int
	}
}

var _ adapter.PaymentGateway = (*MockPaymentGateway)(nil)

func NewMockPaymentGateway() *MockPaymentGateway {
	return &MockPaymentGateway{intents: map[string]*adapter.PaymentIntent{}}
}

func (g *MockPaymentGateway) Name() string { return "mock" }

func (g *MockPaymentGateway) nextLocked() string {
	g.seq++
	return fmt.Sprintf("pay-%d", g.seq)
}

func (g *MockPaymentGateway) CreatePayment(ctx context.Context, amount int64, currency, description, returnURL string, meta map[string]string) (*adapter.PaymentIntent, error) {
	g.mu.Lock()
	g.Calls.Create++
	g.mu.Unlock()
	if g.CreatePaymentFunc != nil {
		return g.CreatePaymentFunc(ctx, amount, currency, description, returnURL, meta)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.nextLocked()
	intent := &adapter.PaymentIntent{
		ID:              id,
		Status:          adapter.PaymentStatusPending,
		ConfirmationURL: "https://pay.example/" + id,
		PaymentMethodID: "pm-" + id,
	}
	g.intents[id] = intent
	cp := *intent
	return &cp, nil
}

func (g *MockPaymentGateway) CreateRecurrentPayment(ctx context.Context, amount int64, currency, description, parentPaymentID string, meta map[string]string) (*adapter.PaymentIntent, error) {
	g.mu.Lock()
	g.Calls.Recurrent++
	g.mu.Unlock()
	if g.CreateRecurrentPaymentFunc != nil {
		return g.CreateRecurrentPaymentFunc(ctx, amount, currency, description, parentPaymentID, meta)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.nextLocked()
	intent := &adapter.PaymentIntent{ID: id, Status: adapter.PaymentStatusSucceeded}
	g.intents[id] = intent
	cp := *intent
	return &cp, nil
}

func (g *MockPaymentGateway) CheckStatus(ctx context.Context, paymentID string) (*adapter.PaymentIntent, error) {
	g.mu.Lock()
	g.Calls.Check++
	g.mu.Unlock()
	if g.CheckStatusFunc != nil {
		return g.CheckStatusFunc(ctx, paymentID)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	intent, ok := g.intents[paymentID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *intent
	return &cp, nil
}

func (g *MockPaymentGateway) ParseNotification(body []byte) (*adapter.Notification, error) {
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

func (g *MockPaymentGateway) SetStatus(paymentID, status string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if intent, ok := g.intents[paymentID]; ok {
		intent.Status = status
	}
}

// ---- Mock TelegramBotAdapter ----

type SentMessage struct {
	TelegramID int64
	Text       string
	Rows       [][]adapter.InlineButton
}

type MockTelegramBot struct {
	mu   sync.Mutex
	Sent []SentMessage

	SendMessageFunc func(ctx context.Context, telegramID int64, text string) error
	SendButtonsFunc func(ctx context.Context, telegramID int64, text string, rows [][]adapter.InlineButton) error
}

var _ adapter.TelegramBotAdapter = (*MockTelegramBot)(nil)

func (m *MockTelegramBot) SendMessage(ctx context.Context, telegramID int64, text string) error {
	if m.SendMessageFunc != nil {
		return m.SendMessageFunc(ctx, telegramID, text)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, SentMessage{TelegramID: telegramID, Text: text})
	return nil
}

func (m *MockTelegramBot) SendButtons(ctx context.Context, telegramID int64, text string, rows [][]adapter.InlineButton) error {
	if m.SendButtonsFunc != nil {
		return m.SendButtonsFunc(ctx, telegramID, text, rows)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, SentMessage{TelegramID: telegramID, Text: text, Rows: rows})
	return nil
}

func (m *MockTelegramBot) Messages() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentMessage, len(m.Sent))
	copy(out, m.Sent)
	return out
}

// ---- Mock AIServiceAdapter ----

type MockAI struct {
	mu sync.Mutex

	AnalyzeFoodPhotoFunc func(ctx context.Context, photoURL string) (string, error)
	AnswerQuestionFunc   func(ctx context.Context, question string) (string, error)

	Calls struct {
		Analyze int
		Answer  int
	}
}

var _ adapter.AIServiceAdapter = (*MockAI)(nil)

func (m *MockAI) AnalyzeFoodPhoto(ctx context.Context, photoURL string) (string, error) {
	m.mu.Lock()
	m.Calls.Analyze++
	m.mu.Unlock()
	if m.AnalyzeFoodPhotoFunc != nil {
		return m.AnalyzeFoodPhotoFunc(ctx, photoURL)
	}
	return "Овсяная каша с ягодами. Калорийность: примерно 350 ккал на порцию.", nil
}

func (m *MockAI) AnswerQuestion(ctx context.Context, question string) (string, error) {
	m.mu.Lock()
	m.Calls.Answer++
	m.mu.Unlock()
	if m.AnswerQuestionFunc != nil {
		return m.AnswerQuestionFunc(ctx, question)
	}
	return "Белки, жиры и углеводы важно держать в балансе.", nil
}
