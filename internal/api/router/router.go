package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	httpmiddleware "github.com/Vuuar/rescall/internal/http/middleware"
	"github.com/Vuuar/rescall/pkg/logging"
)

// WebhookPath is where Twilio posts inbound WhatsApp messages.
const WebhookPath = "/webhooks/whatsapp"

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds router configuration
type Config struct {
	Logger          *logging.Logger
	WhatsAppInbound http.HandlerFunc
	MetricsHandler  http.Handler
	// Database is pinged by /health when set.
	Database Pinger
	// WebhookLimiter throttles the webhook per client IP; nil disables it.
	WebhookLimiter *httpmiddleware.RateLimiter
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", healthCheck(cfg.Database))
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}
	if cfg.WhatsAppInbound != nil {
		// The handler answers non-POST verbs with 405 itself.
		r.With(httpmiddleware.RateLimit(cfg.WebhookLimiter)).HandleFunc(WebhookPath, cfg.WhatsAppInbound)
	}
	return r
}

func healthCheck(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, code := "ok", http.StatusOK
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.Ping(ctx); err != nil {
				status, code = "degraded", http.StatusServiceUnavailable
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
	}
}
