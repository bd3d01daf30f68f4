//go:build !integration

package web_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"nutrition-assistant-bot/internal/config"
	"nutrition-assistant-bot/internal/domain/model"
	"nutrition-assistant-bot/internal/infra/web"
)

type stubStatsUC struct{}

func (stubStatsUC) Totals(ctx context.Context) (int, map[model.SubscriptionStatus]int, error) {
	return 42, map[model.SubscriptionStatus]int{
		model.SubscriptionStatusSucceeded: 7,
		model.SubscriptionStatusPending:   2,
	}, nil
}

func (stubStatsUC) Revenue(ctx context.Context) (int64, int64, int64, error) {
	return 39900, 119700, 478800, nil
}

func testServer() http.Handler {
	cfg := &config.Config{}
	cfg.ApplyDefaults()
	cfg.Admin.Password = "s3cret"
	cfg.Admin.JWTSecret = "test-signing-key"
	cfg.Admin.SessionTTL = time.Minute
	cfg.Runtime.Dev = true

	logger := zerolog.New(io.Discard)
	return web.NewServer(cfg, stubStatsUC{}, &logger).Handler()
}

func login(t *testing.T, h http.Handler, password string) *http.Response {
	t.Helper()
	form := url.Values{"password": {password}}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Result()
}

func TestAdminServer_Login(t *testing.T) {
	h := testServer()

	t.Run("wrong password is rejected", func(t *testing.T) {
		resp := login(t, h, "nope")
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("status = %d; want 401", resp.StatusCode)
		}
	})

	t.Run("correct password mints a session cookie", func(t *testing.T) {
		resp := login(t, h, "s3cret")
		if resp.StatusCode != http.StatusNoContent {
			t.Fatalf("status = %d; want 204", resp.StatusCode)
		}
		var session *http.Cookie
		for _, c := range resp.Cookies() {
			if c.Name == "admin_session" {
				session = c
			}
		}
		if session == nil || session.Value == "" || !session.HttpOnly {
			t.Fatalf("session cookie = %+v", session)
		}
	})
}

func TestAdminServer_Stats(t *testing.T) {
	h := testServer()

	t.Run("requires a session", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d; want 401", rec.Code)
		}
	})

	t.Run("serves totals and revenue with a valid session", func(t *testing.T) {
		resp := login(t, h, "s3cret")
		req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
		for _, c := range resp.Cookies() {
			req.AddCookie(c)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d; want 200", rec.Code)
		}

		var body struct {
			TotalUsers          int            `json:"total_users"`
			SubscriptionsByStat map[string]int `json:"subscriptions_by_status"`
			RevenueKopecks      struct {
				Week int64 `json:"week"`
			} `json:"revenue_kopecks"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.TotalUsers != 42 || body.SubscriptionsByStat["succeeded"] != 7 {
			t.Fatalf("body = %+v", body)
		}
		if body.RevenueKopecks.Week != 39900 {
			t.Fatalf("week revenue = %d", body.RevenueKopecks.Week)
		}
	})
}
