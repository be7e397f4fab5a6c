package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Vuuar/rescall/pkg/logging"
)

var twilioSendTracer = otel.Tracer("rescall.internal.messaging.twilio_send")

const defaultTwilioBaseURL = "https://api.twilio.com"

// OutboundMessage is a WhatsApp text sent from a professional to a client.
// From and To are digits-only phone numbers.
type OutboundMessage struct {
	ProfessionalID string
	From           string
	To             string
	Body           string
}

// SendResult carries what the provider reported back.
type SendResult struct {
	ProviderMessageID string
	Status            string
}

// Sender dispatches replies over the messaging channel.
type Sender interface {
	Send(ctx context.Context, msg OutboundMessage) (SendResult, error)
}

// TwilioSender posts WhatsApp messages using Twilio's REST API.
type TwilioSender struct {
	accountSID string
	authToken  string
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
	backoff    func(attempt int) time.Duration
}

// NewTwilioSender builds a sender with sane defaults. An empty baseURL
// targets the public Twilio API.
func NewTwilioSender(accountSID, authToken, baseURL string, logger *logging.Logger) *TwilioSender {
	if logger == nil {
		logger = logging.Default()
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultTwilioBaseURL
	}
	return &TwilioSender{
		accountSID: accountSID,
		authToken:  authToken,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
		backoff: func(int) time.Duration {
			return time.Duration(200+rand.Intn(300)) * time.Millisecond
		},
	}
}

var _ Sender = (*TwilioSender)(nil)

// Send dispatches a single WhatsApp message, retrying transient failures.
func (s *TwilioSender) Send(ctx context.Context, msg OutboundMessage) (SendResult, error) {
	if s.accountSID == "" || s.authToken == "" {
		return SendResult{}, errors.New("messaging: twilio credentials missing")
	}
	to := WhatsAppAddress(msg.To)
	from := WhatsAppAddress(msg.From)
	if to == "" {
		return SendResult{}, errors.New("messaging: to required")
	}
	if from == "" {
		return SendResult{}, errors.New("messaging: from required")
	}
	if strings.TrimSpace(msg.Body) == "" {
		return SendResult{}, errors.New("messaging: body required")
	}

	ctx, span := twilioSendTracer.Start(ctx, "messaging.twilio.send")
	defer span.End()
	span.SetAttributes(
		attribute.String("rescall.professional_id", msg.ProfessionalID),
		attribute.String("rescall.to", logging.RedactPhone(msg.To)),
	)

	payload := url.Values{}
	payload.Set("To", to)
	payload.Set("From", from)
	payload.Set("Body", msg.Body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", s.baseURL, s.accountSID)

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(payload.Encode()))
		if err != nil {
			lastErr = err
			break
		}
		req.SetBasicAuth(s.accountSID, s.authToken)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := s.httpClient.Do(req)
		if err != nil {
			lastErr = err
		} else {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				var parsed struct {
					SID    string `json:"sid"`
					Status string `json:"status"`
				}
				_ = json.Unmarshal(body, &parsed)
				s.logger.Info("twilio whatsapp sent",
					"professional_id", msg.ProfessionalID,
					"to", logging.RedactPhone(msg.To),
					"sid", parsed.SID,
				)
				return SendResult{ProviderMessageID: parsed.SID, Status: parsed.Status}, nil
			}
			lastErr = fmt.Errorf("twilio send failed: %s", formatTwilioError(resp.StatusCode, body))
			// Don't retry non-rate-limit 4xx errors.
			if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				break
			}
		}

		if attempt < 3 {
			if err := s.wait(ctx, attempt); err != nil {
				lastErr = err
				break
			}
		}
	}

	if lastErr != nil {
		span.RecordError(lastErr)
	}
	return SendResult{}, lastErr
}

func (s *TwilioSender) wait(ctx context.Context, attempt int) error {
	timer := time.NewTimer(s.backoff(attempt))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type twilioAPIError struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	MoreInfo string `json:"more_info"`
	Status   int    `json:"status"`
}

func formatTwilioError(status int, body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return fmt.Sprintf("status %d", status)
	}
	var parsed twilioAPIError
	if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil && parsed.Message != "" {
		if parsed.Code != 0 {
			return fmt.Sprintf("status %d code %d: %s", status, parsed.Code, parsed.Message)
		}
		return fmt.Sprintf("status %d: %s", status, parsed.Message)
	}
	// Fallback: return raw body (truncated by ReadAll limit).
	return fmt.Sprintf("status %d: %s", status, trimmed)
}

// LogSender logs replies instead of sending them. Used when Twilio is not configured.
type LogSender struct {
	logger *logging.Logger
}

// NewLogSender creates a sender that only logs.
func NewLogSender(logger *logging.Logger) *LogSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, msg OutboundMessage) (SendResult, error) {
	s.logger.Info("log sender: would send whatsapp message",
		"professional_id", msg.ProfessionalID,
		"to", logging.RedactPhone(msg.To),
		"body_length", len(msg.Body),
	)
	return SendResult{Status: "logged"}, nil
}
