package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stripe/stripe-go/v82"

	"eventsnow/internal/logger"
	"eventsnow/internal/models"
	"eventsnow/internal/payment"
	"eventsnow/internal/payment/yookassa"
)

const maxWebhookBody = 64 << 10

type PaymentChecker interface {
	CheckByExternalID(ctx context.Context, externalID string) (int64, payment.CheckResult, error)
}

type StripeWebhooks interface {
	ParseWebhook(payload []byte, signature string) (string, stripe.EventType, error)
}

type Pinger interface {
	PingContext(ctx context.Context) error
}

// Handler serves health, metrics and payment provider webhooks.
type Handler struct {
	Payments PaymentChecker
	Stripe   StripeWebhooks
	DB       Pinger
	Logger   *logger.Logger
}

func NewHandler(payments PaymentChecker, stripeHooks StripeWebhooks, db Pinger, log *logger.Logger) *Handler {
	return &Handler{Payments: payments, Stripe: stripeHooks, DB: db, Logger: log}
}

func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Use(h.logRequests)
	r.Get("/healthz", h.Health)
	r.Handle("/metrics", promhttp.Handler())
	r.Route("/webhooks", func(r chi.Router) {
		r.Post("/yookassa", h.YooKassaWebhook)
		r.Post("/stripe", h.StripeWebhook)
	})
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		if r.URL.Path == "/metrics" || r.URL.Path == "/healthz" {
			return
		}
		h.Logger.LogAPI(r.Method, r.URL.Path, fmt.Sprint(rec.status), time.Since(start).String())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if h.DB != nil {
		if err := h.DB.PingContext(ctx); err != nil {
			h.Logger.Error("API", fmt.Sprintf("Health check failed: %v", err))
			sendJSONResponse(w, http.StatusServiceUnavailable, ErrorResponse("unhealthy", "database unreachable"))
			return
		}
	}
	sendJSONResponse(w, http.StatusOK, SuccessResponse("ok", nil))
}

// YooKassaWebhook treats the notification as a hint only: the payment id is
// re-fetched from the provider before anything changes.
func (h *Handler) YooKassaWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		sendJSONResponse(w, http.StatusBadRequest, ErrorResponse("Invalid webhook payload", err.Error()))
		return
	}
	paymentID, event, err := yookassa.ParseNotification(body)
	if err != nil {
		h.Logger.Warn("WEBHOOK", fmt.Sprintf("YooKassa notification rejected: %v", err))
		sendJSONResponse(w, http.StatusBadRequest, ErrorResponse("Invalid webhook payload", "malformed notification"))
		return
	}
	h.Logger.Info("WEBHOOK", fmt.Sprintf("YooKassa %s for payment %s", event, paymentID))
	h.check(r.Context(), w, paymentID)
}

func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	if h.Stripe == nil {
		sendJSONResponse(w, http.StatusNotFound, ErrorResponse("Stripe is not enabled", ""))
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		sendJSONResponse(w, http.StatusBadRequest, ErrorResponse("Invalid webhook payload", err.Error()))
		return
	}

	sessionID, eventType, err := h.Stripe.ParseWebhook(body, r.Header.Get("Stripe-Signature"))
	if err != nil {
		var werr *payment.WebhookError
		if errors.As(err, &werr) {
			h.Logger.Error("WEBHOOK", werr.InternalError)
			sendJSONResponse(w, werr.StatusCode, ErrorResponse(werr.PublicError, ""))
			return
		}
		h.Logger.Error("WEBHOOK", fmt.Sprintf("Stripe webhook failed: %v", err))
		sendJSONResponse(w, http.StatusBadRequest, ErrorResponse("Invalid webhook", ""))
		return
	}
	if sessionID == "" {
		h.Logger.Debug("WEBHOOK", fmt.Sprintf("Ignoring Stripe event %s", eventType))
		sendJSONResponse(w, http.StatusOK, SuccessResponse("ignored", nil))
		return
	}
	h.Logger.Info("WEBHOOK", fmt.Sprintf("Stripe %s for session %s", eventType, sessionID))
	h.check(r.Context(), w, sessionID)
}

// check answers 200 for anything the provider should not retry and 500 otherwise.
func (h *Handler) check(ctx context.Context, w http.ResponseWriter, externalID string) {
	if h.Payments == nil {
		sendJSONResponse(w, http.StatusNotFound, ErrorResponse("Payments are not enabled", ""))
		return
	}
	orderID, res, err := h.Payments.CheckByExternalID(ctx, externalID)
	switch {
	case errors.Is(err, models.ErrNotFound):
		h.Logger.Warn("WEBHOOK", fmt.Sprintf("No order for payment %s", externalID))
		sendJSONResponse(w, http.StatusOK, SuccessResponse("unknown payment", nil))
	case errors.Is(err, payment.ErrPaymentInProgress):
		sendJSONResponse(w, http.StatusOK, SuccessResponse("check in progress", map[string]any{"order_id": orderID}))
	case err != nil:
		h.Logger.Error("WEBHOOK", fmt.Sprintf("Payment %s check failed: %v", externalID, err))
		sendJSONResponse(w, http.StatusInternalServerError, ErrorResponse("Failed to process payment", ""))
	default:
		sendJSONResponse(w, http.StatusOK, SuccessResponse(string(res), map[string]any{"order_id": orderID}))
	}
}
