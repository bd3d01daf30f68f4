//go:build integration

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"nutrition-assistant-bot/internal/domain"
	"nutrition-assistant-bot/internal/domain/model"
)

func TestSubscriptionRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}

	ctx := context.Background()
	repo := NewSubscriptionRepo(testPool)
	userRepo := NewUserRepo(testPool)

	user1, _ := model.NewUser("", 111, "user1")
	user2, _ := model.NewUser("", 222, "user2")

	setupPrerequisites := func(t *testing.T) {
		cleanup(t)
		if err := userRepo.Save(ctx, nil, user1); err != nil {
			t.Fatalf("failed to save user1: %v", err)
		}
		if err := userRepo.Save(ctx, nil, user2); err != nil {
			t.Fatalf("failed to save user2: %v", err)
		}
	}

	newPending := func(t *testing.T, userID, paymentID string) *model.Subscription {
		t.Helper()
		sub, err := model.NewSubscription(uuid.NewString(), userID, paymentID, 39900, "RUB")
		if err != nil {
			t.Fatalf("NewSubscription: %v", err)
		}
		if err := repo.Create(ctx, nil, sub); err != nil {
			t.Fatalf("Create: %v", err)
		}
		return sub
	}

	t.Run("create and find by payment id", func(t *testing.T) {
		setupPrerequisites(t)
		sub := newPending(t, user1.ID, "pay-100")

		found, err := repo.FindByPaymentID(ctx, nil, "pay-100")
		if err != nil {
			t.Fatalf("FindByPaymentID: %v", err)
		}
		if found.ID != sub.ID || found.Status != model.SubscriptionStatusPending {
			t.Fatalf("found = %+v", found)
		}
		if found.StartDate != nil || found.EndDate != nil || found.NextPaymentDate != nil {
			t.Fatal("pending row must not carry an access window")
		}

		if err := repo.Create(ctx, nil, sub); !errors.Is(err, domain.ErrAlreadyExists) {
			t.Fatalf("duplicate Create err = %v; want ErrAlreadyExists", err)
		}
	})

	t.Run("activation is guarded on the pending status", func(t *testing.T) {
		setupPrerequisites(t)
		newPending(t, user1.ID, "pay-200")

		active, activated, err := repo.Activate(ctx, nil, "pay-200", 30*24*time.Hour)
		if err != nil {
			t.Fatalf("Activate: %v", err)
		}
		if !activated {
			t.Fatal("first Activate should transition the row")
		}
		if active.EndDate == nil || !active.EndDate.After(time.Now().Add(29*24*time.Hour)) {
			t.Fatalf("EndDate = %v", active.EndDate)
		}
		if active.NextPaymentDate == nil || !active.NextPaymentDate.Equal(*active.EndDate) {
			t.Fatalf("NextPaymentDate = %v; want the end date %v", active.NextPaymentDate, active.EndDate)
		}

		again, activated, err := repo.Activate(ctx, nil, "pay-200", 30*24*time.Hour)
		if err != nil {
			t.Fatalf("second Activate: %v", err)
		}
		if activated {
			t.Fatal("duplicate Activate must not transition again")
		}
		if !again.EndDate.Equal(*active.EndDate) {
			t.Fatal("duplicate Activate must not move the end date")
		}

		canceled := newPending(t, user1.ID, "pay-201")
		if err := repo.Cancel(ctx, nil, canceled.ID); err != nil {
			t.Fatalf("Cancel: %v", err)
		}
		if _, _, err := repo.Activate(ctx, nil, "pay-201", 30*24*time.Hour); !errors.Is(err, domain.ErrNotPending) {
			t.Fatalf("Activate on canceled err = %v; want ErrNotPending", err)
		}
	})

	t.Run("active lookup derives expiry from the end date", func(t *testing.T) {
		setupPrerequisites(t)
		newPending(t, user1.ID, "pay-300")
		if _, _, err := repo.Activate(ctx, nil, "pay-300", time.Second); err != nil {
			t.Fatalf("Activate: %v", err)
		}

		if _, err := repo.FindActiveByUser(ctx, nil, user1.ID); err != nil {
			t.Fatalf("FindActiveByUser while valid: %v", err)
		}

		time.Sleep(1100 * time.Millisecond)
		if _, err := repo.FindActiveByUser(ctx, nil, user1.ID); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("FindActiveByUser after expiry err = %v; want ErrNotFound", err)
		}
		// The row itself is untouched.
		latest, err := repo.FindLatestByUser(ctx, nil, user1.ID)
		if err != nil || latest.Status != model.SubscriptionStatusSucceeded {
			t.Fatalf("latest = %+v, err = %v", latest, err)
		}
	})

	t.Run("cancel pending by payment id", func(t *testing.T) {
		setupPrerequisites(t)
		newPending(t, user1.ID, "pay-400")

		sub, err := repo.CancelPendingByPaymentID(ctx, nil, "pay-400")
		if err != nil {
			t.Fatalf("CancelPendingByPaymentID: %v", err)
		}
		if sub.Status != model.SubscriptionStatusCanceled {
			t.Fatalf("status = %s", sub.Status)
		}
		if _, err := repo.CancelPendingByPaymentID(ctx, nil, "pay-400"); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("second cancel err = %v; want ErrNotFound", err)
		}
	})

	t.Run("canceling a paid subscription revokes access immediately", func(t *testing.T) {
		setupPrerequisites(t)
		sub := newPending(t, user1.ID, "pay-450")
		if _, _, err := repo.Activate(ctx, nil, "pay-450", 30*24*time.Hour); err != nil {
			t.Fatalf("Activate: %v", err)
		}

		if err := repo.Cancel(ctx, nil, sub.ID); err != nil {
			t.Fatalf("Cancel: %v", err)
		}
		// The end date is a month away; the status alone must revoke access.
		if _, err := repo.FindActiveByUser(ctx, nil, user1.ID); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("FindActiveByUser after cancel err = %v; want ErrNotFound", err)
		}
		found, err := repo.FindByPaymentID(ctx, nil, "pay-450")
		if err != nil {
			t.Fatalf("FindByPaymentID: %v", err)
		}
		if found.Status != model.SubscriptionStatusCanceled || found.AutoRenewal {
			t.Fatalf("found = %+v; want canceled with auto-renewal off", found)
		}

		if err := repo.Cancel(ctx, nil, uuid.NewString()); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("Cancel on missing row err = %v; want ErrNotFound", err)
		}
	})

	t.Run("auto renewal toggles only active rows", func(t *testing.T) {
		setupPrerequisites(t)
		if err := repo.SetAutoRenewal(ctx, nil, user1.ID, false); !errors.Is(err, domain.ErrNoActiveSubscription) {
			t.Fatalf("SetAutoRenewal without sub err = %v; want ErrNoActiveSubscription", err)
		}

		newPending(t, user1.ID, "pay-500")
		if _, _, err := repo.Activate(ctx, nil, "pay-500", 30*24*time.Hour); err != nil {
			t.Fatalf("Activate: %v", err)
		}
		if err := repo.SetAutoRenewal(ctx, nil, user1.ID, false); err != nil {
			t.Fatalf("SetAutoRenewal: %v", err)
		}
		active, err := repo.FindActiveByUser(ctx, nil, user1.ID)
		if err != nil || active.AutoRenewal {
			t.Fatalf("active = %+v, err = %v", active, err)
		}
	})

	t.Run("expiring scan picks auto-renewing rows inside the window", func(t *testing.T) {
		setupPrerequisites(t)

		// Ends within the lookahead, auto-renewal on.
		newPending(t, user1.ID, "pay-600")
		if _, _, err := repo.Activate(ctx, nil, "pay-600", 12*time.Hour); err != nil {
			t.Fatalf("Activate: %v", err)
		}
		// Ends far in the future.
		newPending(t, user2.ID, "pay-601")
		if _, _, err := repo.Activate(ctx, nil, "pay-601", 60*24*time.Hour); err != nil {
			t.Fatalf("Activate: %v", err)
		}

		subs, err := repo.FindExpiring(ctx, nil, 24*time.Hour)
		if err != nil {
			t.Fatalf("FindExpiring: %v", err)
		}
		if len(subs) != 1 || subs[0].PaymentID != "pay-600" {
			t.Fatalf("expiring = %+v", subs)
		}

		if err := repo.SetAutoRenewal(ctx, nil, user1.ID, false); err != nil {
			t.Fatalf("SetAutoRenewal: %v", err)
		}
		subs, err = repo.FindExpiring(ctx, nil, 24*time.Hour)
		if err != nil {
			t.Fatalf("FindExpiring: %v", err)
		}
		if len(subs) != 0 {
			t.Fatalf("opted-out row still scanned: %+v", subs)
		}
	})

	t.Run("attempt counter increments and stamps", func(t *testing.T) {
		setupPrerequisites(t)
		sub := newPending(t, user1.ID, "pay-700")

		for want := 1; want <= 3; want++ {
			n, err := repo.RecordAttempt(ctx, nil, sub.ID)
			if err != nil {
				t.Fatalf("RecordAttempt: %v", err)
			}
			if n != want {
				t.Fatalf("attempts = %d; want %d", n, want)
			}
		}
		found, err := repo.FindByPaymentID(ctx, nil, "pay-700")
		if err != nil || found.LastAttemptAt == nil {
			t.Fatalf("found = %+v, err = %v", found, err)
		}

		if _, err := repo.RecordAttempt(ctx, nil, uuid.NewString()); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("RecordAttempt on missing row err = %v; want ErrNotFound", err)
		}
	})

	t.Run("status counts and revenue", func(t *testing.T) {
		setupPrerequisites(t)
		newPending(t, user1.ID, "pay-800")
		if _, _, err := repo.Activate(ctx, nil, "pay-800", 30*24*time.Hour); err != nil {
			t.Fatalf("Activate: %v", err)
		}
		newPending(t, user2.ID, "pay-801")

		counts, err := repo.CountByStatus(ctx, nil)
		if err != nil {
			t.Fatalf("CountByStatus: %v", err)
		}
		if counts[model.SubscriptionStatusSucceeded] != 1 || counts[model.SubscriptionStatusPending] != 1 {
			t.Fatalf("counts = %+v", counts)
		}

		sum, err := repo.SumSucceededSince(ctx, nil, time.Now().Add(-time.Hour))
		if err != nil {
			t.Fatalf("SumSucceededSince: %v", err)
		}
		if sum != 39900 {
			t.Fatalf("sum = %d; want 39900", sum)
		}
	})
}
