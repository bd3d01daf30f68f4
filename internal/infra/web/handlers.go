package web

import (
	"encoding/json"
	"net/http"

	"nutrition-assistant-bot/internal/usecase"
)

// statsHandler serves the operator dashboard numbers.
func statsHandler(statsUC usecase.StatsUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		users, byStatus, err := statsUC.Totals(ctx)
		if err != nil {
			http.Error(w, "Failed to get totals", http.StatusInternalServerError)
			return
		}
		week, month, year, err := statsUC.Revenue(ctx)
		if err != nil {
			http.Error(w, "Failed to get revenue", http.StatusInternalServerError)
			return
		}

		subs := map[string]int{}
		for status, n := range byStatus {
			subs[string(status)] = n
		}

		response := struct {
			TotalUsers          int            `json:"total_users"`
			SubscriptionsByStat map[string]int `json:"subscriptions_by_status"`
			RevenueKopecks      struct {
				Week  int64 `json:"week"`
				Month int64 `json:"month"`
				Year  int64 `json:"year"`
			} `json:"revenue_kopecks"`
		}{
			TotalUsers:          users,
			SubscriptionsByStat: subs,
		}
		response.RevenueKopecks.Week = week
		response.RevenueKopecks.Month = month
		response.RevenueKopecks.Year = year

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	}
}
