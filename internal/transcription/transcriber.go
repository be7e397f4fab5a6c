package transcription

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Vuuar/rescall/internal/llm"
	"github.com/Vuuar/rescall/internal/messaging"
	"github.com/Vuuar/rescall/pkg/logging"
)

var tracer = otel.Tracer("rescall.internal.transcription")

// ErrEmptyTranscript is reported when the service returns no usable text.
var ErrEmptyTranscript = errors.New("transcription: empty transcript")

// Result is the outcome of a best-effort transcription. Media is set whenever
// the audio was downloaded, even if transcription itself failed.
type Result struct {
	Text  string
	Media *messaging.Media
	Err   error
}

// OK reports whether a transcript is available.
func (r Result) OK() bool {
	return r.Err == nil && strings.TrimSpace(r.Text) != ""
}

// Transcriber turns a voice note into text. It never returns an error value
// on its own: failures are carried in Result.Err.
type Transcriber interface {
	Transcribe(ctx context.Context, mediaURL string) Result
}

// ContentGenerator is satisfied by *genai.GenerativeModel.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

const transcribePrompt = "Transcribe this voice message verbatim in its original language. " +
	"Return only the transcript text. If no speech is audible, return an empty response."

// GeminiTranscriber downloads audio and sends it inline to a Gemini model.
type GeminiTranscriber struct {
	fetcher messaging.MediaFetcher
	model   ContentGenerator
	timeout time.Duration
	logger  *logging.Logger
}

func NewGeminiTranscriber(fetcher messaging.MediaFetcher, model ContentGenerator, timeout time.Duration, logger *logging.Logger) *GeminiTranscriber {
	if logger == nil {
		logger = logging.Default()
	}
	return &GeminiTranscriber{fetcher: fetcher, model: model, timeout: timeout, logger: logger}
}

var _ Transcriber = (*GeminiTranscriber)(nil)

func (t *GeminiTranscriber) Transcribe(ctx context.Context, mediaURL string) Result {
	ctx, span := tracer.Start(ctx, "transcription.gemini")
	defer span.End()

	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	res := t.transcribe(ctx, mediaURL)
	if res.Err != nil {
		span.RecordError(res.Err)
		t.logger.Warn("voice transcription failed", "error", res.Err)
	}
	if res.Media != nil {
		span.SetAttributes(attribute.Int("rescall.audio_bytes", len(res.Media.Data)))
	}
	return res
}

func (t *GeminiTranscriber) transcribe(ctx context.Context, mediaURL string) Result {
	if t.fetcher == nil || t.model == nil {
		return Result{Err: errors.New("transcription: not configured")}
	}
	media, err := t.fetcher.Fetch(ctx, mediaURL)
	if err != nil {
		return Result{Err: fmt.Errorf("transcription: fetch audio: %w", err)}
	}
	mimeType := media.ContentType
	if !strings.HasPrefix(mimeType, "audio/") {
		mimeType = "audio/ogg"
	}

	resp, err := t.model.GenerateContent(ctx,
		genai.Blob{MIMEType: mimeType, Data: media.Data},
		genai.Text(transcribePrompt),
	)
	if err != nil {
		return Result{Media: media, Err: fmt.Errorf("transcription: gemini: %w", err)}
	}
	out, err := llm.GeminiResponse(resp)
	if err != nil || strings.TrimSpace(out.Text) == "" {
		return Result{Media: media, Err: ErrEmptyTranscript}
	}
	return Result{Text: out.Text, Media: media}
}
