package http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"nutrition-assistant-bot/internal/config"
	"nutrition-assistant-bot/internal/domain/ports/adapter"
	"nutrition-assistant-bot/internal/usecase"
)

const maxWebhookBody = 1 << 20 // providers send small JSON objects

// Server receives YooKassa webhooks and serves the payment return pages.
type Server struct {
	cfg     *config.Config
	gateway adapter.PaymentGateway
	subUC   usecase.SubscriptionUseCase
	log     *zerolog.Logger
	server  *http.Server
}

func NewServer(cfg *config.Config, gateway adapter.PaymentGateway, subUC usecase.SubscriptionUseCase, logger *zerolog.Logger) *Server {
	srvLog := logger.With().Str("component", "WebhookServer").Logger()
	return &Server{
		cfg:     cfg,
		gateway: gateway,
		subUC:   subUC,
		log:     &srvLog,
	}
}

// Handler builds the router. Exposed so tests can drive it without a listener.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Post("/webhook/yookassa", s.handleWebhook)
	r.Get("/health", s.handleHealthCheck)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/payment/success", s.handlePaymentSuccess)
	r.Get("/payment/failed", s.handlePaymentFailed)
	return r
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Payment.YooKassa.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Info().Str("addr", s.server.Addr).Msg("webhook server listening")
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

// handleWebhook settles local state from a provider notification. The payload
// is authenticated by replay: whatever the body claims, CheckPayment style
// confirmation goes through the guarded Activate, so a forged or duplicated
// event cannot double-credit anyone.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	n, err := s.gateway.ParseNotification(body)
	if err != nil {
		s.log.Warn().Err(err).Msg("unparseable webhook body")
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	s.log.Info().Str("event", n.Event).Str("payment_id", n.PaymentID).Msg("webhook received")

	if err := s.subUC.HandleGatewayEvent(r.Context(), n); err != nil {
		s.log.Error().Err(err).Str("payment_id", n.PaymentID).Msg("webhook processing failed")
		// Non-2xx makes the provider retry later.
		http.Error(w, "processing failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handlePaymentSuccess(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `
        <!DOCTYPE html>
        <html>
        <head>
            <title>Оплата прошла успешно</title>
            <meta charset="utf-8">
            <meta name="viewport" content="width=device-width, initial-scale=1">
            <style>
                body { font-family: Arial, sans-serif; text-align: center; padding: 50px; }
                .success { color: #4CAF50; }
            </style>
        </head>
        <body>
            <h1 class="success">Оплата прошла успешно!</h1>
            <p>Подписка активируется в течение минуты. Можно возвращаться в Telegram.</p>
            <p><a href="https://t.me/%s">Вернуться к боту</a></p>
        </body>
        </html>
    `, s.cfg.Bot.Username)
}

func (s *Server) handlePaymentFailed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `
        <!DOCTYPE html>
        <html>
        <head>
            <title>Оплата не прошла</title>
            <meta charset="utf-8">
            <meta name="viewport" content="width=device-width, initial-scale=1">
            <style>
                body { font-family: Arial, sans-serif; text-align: center; padding: 50px; }
                .error { color: #F44336; }
            </style>
        </head>
        <body>
            <h1 class="error">Оплата не прошла</h1>
            <p>Платеж не был завершен. Попробуйте оформить подписку снова через бота.</p>
            <p><a href="https://t.me/%s">Вернуться к боту</a></p>
        </body>
        </html>
    `, s.cfg.Bot.Username)
}
