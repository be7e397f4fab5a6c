package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Vuuar/rescall/internal/llm"
	"github.com/Vuuar/rescall/internal/messaging"
	"github.com/Vuuar/rescall/pkg/logging"
)

// ErrMalformedExtraction is reported when the model output is not a JSON object.
var ErrMalformedExtraction = errors.New("assistant: malformed extraction output")

// Details holds booking fields explicitly stated in a conversation. Empty
// strings mean "not stated".
type Details struct {
	ClientName  string `json:"clientName,omitempty"`
	ClientPhone string `json:"clientPhone,omitempty"`
	Date        string `json:"date,omitempty"`
	Time        string `json:"time,omitempty"`
	ServiceType string `json:"serviceType,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

// Empty reports whether no field was extracted.
func (d Details) Empty() bool {
	return d == Details{}
}

// Bookable reports whether every field needed to create an appointment is present.
func (d Details) Bookable() bool {
	return d.ClientName != "" && d.Date != "" && d.Time != "" && d.ServiceType != ""
}

// ExtractionResult carries the extracted details; on failure Details is empty
// and Err explains why.
type ExtractionResult struct {
	Details Details
	Err     error
}

// DetailExtractor mines booking fields from a conversation transcript.
type DetailExtractor struct {
	client llm.Client
	opts   Options
	logger *logging.Logger
}

func NewDetailExtractor(client llm.Client, opts Options, logger *logging.Logger) *DetailExtractor {
	if logger == nil {
		logger = logging.Default()
	}
	return &DetailExtractor{client: client, opts: opts, logger: logger}
}

const extractionPrompt = `You extract appointment booking details from a WhatsApp conversation between a client and a business assistant.
Return a JSON object with only the fields that are explicitly stated in the conversation:
- "clientName": the client's name as they gave it
- "clientPhone": a phone number the client wrote
- "date": the appointment date as YYYY-MM-DD
- "time": the appointment start time as 24-hour HH:MM
- "serviceType": the service requested, using the business's service name when it is clear
- "notes": any other explicit request about the appointment
Do not guess or infer missing values. Omit every field that is not stated. If nothing is stated, return {}.
Relative dates such as "tomorrow" or "demain" are resolved against today's date: %s (%s).`

// Extract sends the whole transcript to the model. ref is "now" in the
// professional's timezone and anchors relative dates.
func (e *DetailExtractor) Extract(ctx context.Context, transcript []string, ref time.Time) ExtractionResult {
	ctx, span := tracer.Start(ctx, "assistant.extract_details")
	defer span.End()

	lines := make([]string, 0, len(transcript))
	for _, line := range transcript {
		if s := strings.TrimSpace(line); s != "" {
			lines = append(lines, s)
		}
	}
	if len(lines) == 0 {
		return ExtractionResult{}
	}
	if e.client == nil {
		return ExtractionResult{Err: errors.New("assistant: no llm client configured")}
	}
	if ref.IsZero() {
		ref = time.Now()
	}
	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}

	resp, err := e.client.Complete(ctx, llm.Request{
		Model:       e.opts.Model,
		System:      []string{fmt.Sprintf(extractionPrompt, ref.Format("2006-01-02 (Monday)"), ref.Location().String())},
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: strings.Join(lines, "\n")}},
		MaxTokens:   e.opts.MaxTokens,
		Temperature: e.opts.Temperature,
		JSON:        true,
	})
	if err != nil {
		span.RecordError(err)
		e.logger.Warn("detail extraction failed", "error", err)
		return ExtractionResult{Err: err}
	}
	details, err := ParseDetails(resp.Text)
	if err != nil {
		span.RecordError(err)
		e.logger.Warn("detail extraction output rejected", "error", err)
		return ExtractionResult{Err: err}
	}
	return ExtractionResult{Details: details}
}

var (
	isoDate = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	hhmm    = regexp.MustCompile(`^([01]?\d|2[0-3])[:hH]([0-5]\d)$`)
)

// ParseDetails decodes model output into Details. Code fences and prose
// around the object are tolerated; values in the wrong shape are dropped.
func ParseDetails(raw string) (Details, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end < start {
		return Details{}, ErrMalformedExtraction
	}
	var fields map[string]any
	if err := json.Unmarshal([]byte(raw[start:end+1]), &fields); err != nil {
		return Details{}, fmt.Errorf("%w: %v", ErrMalformedExtraction, err)
	}

	d := Details{
		ClientName:  stringField(fields, "clientName"),
		ClientPhone: messaging.NormalizePhone(stringField(fields, "clientPhone")),
		ServiceType: stringField(fields, "serviceType"),
		Notes:       stringField(fields, "notes"),
	}
	if date := stringField(fields, "date"); isoDate.MatchString(date) {
		if _, err := time.Parse("2006-01-02", date); err == nil {
			d.Date = date
		}
	}
	if m := hhmm.FindStringSubmatch(stringField(fields, "time")); m != nil {
		hour, _ := strconv.Atoi(m[1])
		d.Time = fmt.Sprintf("%02d:%s", hour, m[2])
	}
	return d, nil
}

func stringField(fields map[string]any, key string) string {
	v, ok := fields[key].(string)
	if !ok {
		return ""
	}
	v = strings.TrimSpace(v)
	switch strings.ToLower(v) {
	case "null", "none", "n/a", "unknown":
		return ""
	}
	return v
}
