package assistant

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Vuuar/rescall/internal/llm"
	"github.com/Vuuar/rescall/internal/store"
	"github.com/Vuuar/rescall/pkg/logging"
)

var tracer = otel.Tracer("rescall.internal.assistant")

// Options tune a single kind of model call.
type Options struct {
	Model       string
	Temperature float32
	MaxTokens   int32
	Timeout     time.Duration
}

// ReplyInput is everything the assistant knows when answering a client.
// History holds prior turns only, oldest first; Message is the new client text.
type ReplyInput struct {
	Message      string
	Settings     store.Settings
	Availability []store.AvailabilityRule
	Appointments []store.Appointment
	Services     []store.Service
	History      []store.Message
	Now          time.Time
}

// ReplyResult always carries a sendable Text. Fallback is set when the model
// failed and Text is the canned apology.
type ReplyResult struct {
	Text     string
	Fallback bool
	Err      error
}

// ResponseGenerator writes the assistant's next WhatsApp reply.
type ResponseGenerator struct {
	client llm.Client
	opts   Options
	logger *logging.Logger
}

func NewResponseGenerator(client llm.Client, opts Options, logger *logging.Logger) *ResponseGenerator {
	if logger == nil {
		logger = logging.Default()
	}
	return &ResponseGenerator{client: client, opts: opts, logger: logger}
}

func (g *ResponseGenerator) Generate(ctx context.Context, in ReplyInput) ReplyResult {
	ctx, span := tracer.Start(ctx, "assistant.generate_reply")
	defer span.End()
	span.SetAttributes(attribute.Int("rescall.history_len", len(in.History)))

	if g.client == nil {
		return g.fallback(in.Settings.Language, fmt.Errorf("assistant: no llm client configured"))
	}
	if g.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.opts.Timeout)
		defer cancel()
	}

	messages := make([]llm.Message, 0, len(in.History)+1)
	for _, m := range in.History {
		role := llm.RoleAssistant
		if m.FromClient {
			role = llm.RoleUser
		}
		messages = append(messages, llm.Message{Role: role, Content: m.Content})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: in.Message})

	resp, err := g.client.Complete(ctx, llm.Request{
		Model:       g.opts.Model,
		System:      []string{BuildSystemPrompt(in)},
		Messages:    messages,
		MaxTokens:   g.opts.MaxTokens,
		Temperature: g.opts.Temperature,
	})
	if err == nil && strings.TrimSpace(resp.Text) == "" {
		err = fmt.Errorf("assistant: empty reply")
	}
	if err != nil {
		span.RecordError(err)
		return g.fallback(in.Settings.Language, err)
	}
	return ReplyResult{Text: strings.TrimSpace(resp.Text)}
}

func (g *ResponseGenerator) fallback(lang string, err error) ReplyResult {
	g.logger.Warn("reply generation failed, sending apology", "error", err)
	return ReplyResult{Text: ApologyText(lang), Fallback: true, Err: err}
}

var apologies = map[string]string{
	"fr": "Désolé, je rencontre un petit problème technique. Pouvez-vous réessayer dans quelques instants ?",
	"en": "Sorry, I'm having a technical issue right now. Could you try again in a moment?",
	"es": "Lo siento, tengo un problema técnico. ¿Puede intentarlo de nuevo en unos momentos?",
}

// ApologyText is the reply sent when the model is unavailable, in the
// operator's language (French by default).
func ApologyText(lang string) string {
	if text, ok := apologies[strings.ToLower(strings.TrimSpace(lang))]; ok {
		return text
	}
	return apologies[store.DefaultLanguage]
}

// VoicePlaceholder is stored as message content when a voice note cannot be transcribed.
func VoicePlaceholder(lang string, transcriptionAttempted bool) string {
	texts, ok := voicePlaceholders[strings.ToLower(strings.TrimSpace(lang))]
	if !ok {
		texts = voicePlaceholders[store.DefaultLanguage]
	}
	if transcriptionAttempted {
		return texts[1]
	}
	return texts[0]
}

// voicePlaceholders holds {received, transcription unavailable} per language.
var voicePlaceholders = map[string][2]string{
	"fr": {"[Message vocal reçu]", "[Message vocal - transcription indisponible]"},
	"en": {"[Voice message received]", "[Voice message - transcription unavailable]"},
	"es": {"[Mensaje de voz recibido]", "[Mensaje de voz - transcripción no disponible]"},
}

const upcomingWindow = 14 * 24 * time.Hour

// BuildSystemPrompt renders the business context given to the model.
func BuildSystemPrompt(in ReplyInput) string {
	loc := in.Settings.Location()
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.In(loc)

	var b strings.Builder
	name := strings.TrimSpace(in.Settings.BusinessName)
	if name == "" {
		name = "the business"
	}
	fmt.Fprintf(&b, "You are the WhatsApp booking assistant of %s.\n", name)
	b.WriteString("Help the client find a free slot and book an appointment, and answer questions about the services.\n")
	b.WriteString("Always reply in the same language the client uses. Keep replies short and friendly, suitable for WhatsApp.\n")
	b.WriteString("To book you need the client's name, the service, the date and the time. Ask for whatever is missing.\n")
	b.WriteString("Never propose a slot that overlaps an already booked slot or falls outside working hours.\n")
	fmt.Fprintf(&b, "Current date and time: %s (%s).\n", now.Format("Monday 2006-01-02 15:04"), loc.String())
	if w := strings.TrimSpace(in.Settings.WelcomeMessage); w != "" {
		fmt.Fprintf(&b, "Greeting used by the business: %s\n", w)
	}

	b.WriteString("\nServices:\n")
	if len(in.Services) == 0 {
		b.WriteString("- (no services configured)\n")
	}
	for _, svc := range in.Services {
		fmt.Fprintf(&b, "- %s: %d min, %s\n", svc.Name, svc.DurationMinutes, formatPrice(svc.PriceCents))
	}

	b.WriteString("\nWorking hours:\n")
	if len(in.Availability) == 0 {
		b.WriteString("- (not configured)\n")
	}
	for _, rule := range in.Availability {
		if rule.Closed {
			fmt.Fprintf(&b, "- %s: closed\n", rule.Weekday)
			continue
		}
		fmt.Fprintf(&b, "- %s: %s - %s\n", rule.Weekday, clock(rule.OpenTime), clock(rule.CloseTime))
	}

	var booked []string
	for _, appt := range in.Appointments {
		if !appt.Status.Active() || appt.EndAt.Before(now) || appt.StartAt.After(now.Add(upcomingWindow)) {
			continue
		}
		start := appt.StartAt.In(loc)
		booked = append(booked, fmt.Sprintf("- %s %s-%s", start.Format("Mon 2006-01-02"), start.Format("15:04"), appt.EndAt.In(loc).Format("15:04")))
	}
	if len(booked) > 0 {
		b.WriteString("\nAlready booked (unavailable):\n")
		b.WriteString(strings.Join(booked, "\n"))
		b.WriteString("\n")
	}
	return b.String()
}

func formatPrice(cents int64) string {
	if cents <= 0 {
		return "price on request"
	}
	if cents%100 == 0 {
		return fmt.Sprintf("%d EUR", cents/100)
	}
	return fmt.Sprintf("%d.%02d EUR", cents/100, cents%100)
}

// clock trims seconds from "HH:MM:SS" values coming from Postgres time columns.
func clock(v string) string {
	if len(v) > 5 && v[2] == ':' {
		return v[:5]
	}
	return v
}
