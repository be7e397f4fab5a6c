package webhook

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Vuuar/rescall/internal/assistant"
	"github.com/Vuuar/rescall/internal/dedup"
	"github.com/Vuuar/rescall/internal/messaging"
	"github.com/Vuuar/rescall/internal/observability/metrics"
	"github.com/Vuuar/rescall/internal/store"
	"github.com/Vuuar/rescall/internal/transcription"
	"github.com/Vuuar/rescall/pkg/logging"
)

var tracer = otel.Tracer("rescall.internal.webhook")

const providerTwilio = "twilio"

// ReplyGenerator produces the assistant's reply; it always returns sendable text.
type ReplyGenerator interface {
	Generate(ctx context.Context, in assistant.ReplyInput) assistant.ReplyResult
}

// DetailExtractor mines booking fields from the transcript.
type DetailExtractor interface {
	Extract(ctx context.Context, transcript []string, ref time.Time) assistant.ExtractionResult
}

// MediaArchiver persists fetched voice notes and returns a reference.
type MediaArchiver interface {
	Store(ctx context.Context, professionalID, conversationID uuid.UUID, m *messaging.Media, at time.Time) (string, error)
}

// BookingNotifier tells the professional about an automatic booking.
type BookingNotifier interface {
	NotifyBooking(ctx context.Context, settings store.Settings, pro store.Professional, appt store.Appointment) error
}

// Deps wires the handler. Store, Sender, Generator and Extractor are required.
type Deps struct {
	Store       store.Store
	Sender      messaging.Sender
	Generator   ReplyGenerator
	Extractor   DetailExtractor
	Transcriber transcription.Transcriber
	Dedup       dedup.Store
	Archive     MediaArchiver
	Notifier    BookingNotifier
	Metrics     *metrics.WebhookMetrics
	Logger      *logging.Logger

	// TwilioAuthToken enables signature validation when non-empty.
	TwilioAuthToken string
	// PublicURL is the URL Twilio signs against; derived from the request when empty.
	PublicURL       string
	DispatchTimeout time.Duration
	Now             func() time.Time
}

// Handler receives Twilio WhatsApp webhooks and runs the booking pipeline.
type Handler struct {
	deps Deps
}

func NewHandler(deps Deps) *Handler {
	if deps.Store == nil {
		panic("webhook: store cannot be nil")
	}
	if deps.Sender == nil {
		panic("webhook: sender cannot be nil")
	}
	if deps.Generator == nil || deps.Extractor == nil {
		panic("webhook: generator and extractor are required")
	}
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.DispatchTimeout <= 0 {
		deps.DispatchTimeout = 10 * time.Second
	}
	return &Handler{deps: deps}
}

// outcome labels for metrics and logs.
const (
	outcomeReplied      = "replied"
	outcomeRecorded     = "recorded"
	outcomeDuplicate    = "duplicate"
	outcomeIgnored      = "ignored"
	outcomeNotFound     = "not_found"
	outcomeBadRequest   = "bad_request"
	outcomeUnauthorized = "unauthorized"
	outcomeError        = "error"
)

// request carries per-call state through the pipeline steps.
type request struct {
	span    trace.Span
	logger  *logging.Logger
	inbound *messaging.InboundMessage
	from    string
	to      string
	msgType store.MessageType
	outcome string

	// persisted is set once the inbound message is stored; dedup marks are
	// only released before that point.
	persisted bool
}

// Inbound handles POST /webhooks/whatsapp.
func (h *Handler) Inbound(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, span := tracer.Start(r.Context(), "webhook.whatsapp.inbound")
	defer span.End()
	started := h.deps.Now()

	req := &request{span: span, logger: h.deps.Logger, msgType: store.MessageText}
	defer func() {
		h.deps.Metrics.ObserveInbound(string(req.msgType), req.outcome)
		h.deps.Metrics.ObserveWebhookLatency(string(req.msgType), h.deps.Now().Sub(started).Seconds())
	}()

	if h.deps.TwilioAuthToken != "" {
		url := h.deps.PublicURL
		if url == "" {
			url = messaging.BuildAbsoluteURL(r)
		}
		if !messaging.ValidateTwilioSignature(r, h.deps.TwilioAuthToken, url) {
			req.outcome = outcomeUnauthorized
			h.fail(w, req, http.StatusUnauthorized, "Unauthorized", errors.New("invalid twilio signature"))
			return
		}
	}

	inbound, err := messaging.ParseInboundMessage(r)
	if err != nil {
		req.outcome = outcomeBadRequest
		h.fail(w, req, http.StatusBadRequest, "Bad Request", err)
		return
	}
	req.inbound = inbound
	req.from = messaging.NormalizePhone(inbound.From)
	req.to = messaging.NormalizePhone(inbound.To)
	if inbound.HasAudio() {
		req.msgType = store.MessageVoice
	}
	req.logger = h.deps.Logger.With("message_sid", inbound.MessageSid, "from", logging.RedactPhone(req.from))
	span.SetAttributes(
		attribute.String("rescall.twilio.message_sid", inbound.MessageSid),
		attribute.String("rescall.message_type", string(req.msgType)),
	)

	if req.from == "" || req.to == "" {
		req.outcome = outcomeBadRequest
		h.fail(w, req, http.StatusBadRequest, "Bad Request", errors.New("missing sender or recipient"))
		return
	}
	if strings.TrimSpace(inbound.Body) == "" && !inbound.HasAudio() {
		req.outcome = outcomeIgnored
		req.logger.Info("ignoring inbound message without text or audio", "num_media", inbound.NumMedia)
		h.ack(w)
		return
	}

	if !h.markFirstDelivery(ctx, req) {
		req.outcome = outcomeDuplicate
		req.logger.Info("duplicate webhook delivery acknowledged")
		h.ack(w)
		return
	}

	status, err := h.process(ctx, req)
	if err != nil {
		if !req.persisted {
			h.releaseDelivery(ctx, req)
		}
		switch status {
		case http.StatusNotFound:
			req.outcome = outcomeNotFound
			h.fail(w, req, status, "Not Found", err)
		default:
			req.outcome = outcomeError
			h.fail(w, req, http.StatusInternalServerError, "Internal Server Error", err)
		}
		return
	}
	h.ack(w)
}

func (h *Handler) markFirstDelivery(ctx context.Context, req *request) bool {
	if h.deps.Dedup == nil || req.inbound.MessageSid == "" {
		return true
	}
	first, err := h.deps.Dedup.MarkProcessed(ctx, providerTwilio, req.inbound.MessageSid)
	if err != nil {
		req.logger.Warn("dedup check failed, processing anyway", "error", err)
		return true
	}
	return first
}

func (h *Handler) releaseDelivery(ctx context.Context, req *request) {
	if h.deps.Dedup == nil || req.inbound == nil || req.inbound.MessageSid == "" {
		return
	}
	if err := h.deps.Dedup.Release(context.WithoutCancel(ctx), providerTwilio, req.inbound.MessageSid); err != nil {
		req.logger.Warn("failed to release dedup mark", "error", err)
	}
}

func (h *Handler) ack(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(messaging.EmptyTwiML))
}

func (h *Handler) fail(w http.ResponseWriter, req *request, status int, body string, err error) {
	req.span.RecordError(err)
	if status >= http.StatusInternalServerError {
		req.logger.Error("whatsapp webhook failed", "status", status, "error", err)
	} else {
		req.logger.Warn("whatsapp webhook rejected", "status", status, "error", err)
	}
	http.Error(w, body, status)
}
