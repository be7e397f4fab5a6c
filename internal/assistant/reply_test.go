package assistant

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vuuar/rescall/internal/llm"
	"github.com/Vuuar/rescall/internal/llm/llmtest"
	"github.com/Vuuar/rescall/internal/store"
	"github.com/Vuuar/rescall/pkg/logging"
)

func replyInput() ReplyInput {
	settings := store.DefaultSettings(uuid.New())
	settings.BusinessName = "Salon Léa"
	loc := settings.Location()
	now := time.Date(2026, 5, 4, 10, 0, 0, 0, loc)
	return ReplyInput{
		Message:  "Vous avez de la place demain ?",
		Settings: settings,
		Services: []store.Service{
			{Name: "Coupe de cheveux", DurationMinutes: 30, PriceCents: 2500, Active: true},
			{Name: "Couleur", DurationMinutes: 90, PriceCents: 6550, Active: true},
		},
		Availability: []store.AvailabilityRule{
			{Weekday: time.Tuesday, OpenTime: "09:00:00", CloseTime: "18:00:00"},
			{Weekday: time.Sunday, Closed: true},
		},
		Appointments: []store.Appointment{
			{StartAt: now.Add(28 * time.Hour), EndAt: now.Add(28*time.Hour + 30*time.Minute), Status: store.StatusScheduled},
			{StartAt: now.Add(30 * time.Hour), EndAt: now.Add(31 * time.Hour), Status: store.StatusCancelled},
		},
		History: []store.Message{
			{Content: "Bonjour", FromClient: true},
			{Content: "Bonjour ! Que puis-je faire pour vous ?", FromClient: false},
		},
		Now: now,
	}
}

func TestResponseGenerator_Generate(t *testing.T) {
	client := &llmtest.Client{Responses: []llm.Response{{Text: " Oui, à 14h ou 15h. "}}}
	gen := NewResponseGenerator(client, Options{Model: "m", Temperature: 0.7, MaxTokens: 500}, logging.Discard())

	res := gen.Generate(context.Background(), replyInput())
	require.NoError(t, res.Err)
	assert.False(t, res.Fallback)
	assert.Equal(t, "Oui, à 14h ou 15h.", res.Text)

	req := client.LastRequest()
	assert.Equal(t, float32(0.7), req.Temperature)
	assert.Equal(t, int32(500), req.MaxTokens)
	assert.False(t, req.JSON)
	require.Len(t, req.Messages, 3)
	assert.Equal(t, llm.RoleUser, req.Messages[0].Role)
	assert.Equal(t, llm.RoleAssistant, req.Messages[1].Role)
	assert.Equal(t, "Vous avez de la place demain ?", req.Messages[2].Content)
}

func TestResponseGenerator_FallsBackToApology(t *testing.T) {
	for name, client := range map[string]*llmtest.Client{
		"error": {Errs: []error{errors.New("throttled")}},
		"empty": {Responses: []llm.Response{{Text: "  "}}},
	} {
		res := NewResponseGenerator(client, Options{}, logging.Discard()).Generate(context.Background(), replyInput())
		assert.True(t, res.Fallback, name)
		assert.Error(t, res.Err, name)
		assert.Equal(t, ApologyText("fr"), res.Text, name)
	}

	res := NewResponseGenerator(nil, Options{}, logging.Discard()).Generate(context.Background(), replyInput())
	assert.True(t, res.Fallback)
	assert.NotEmpty(t, res.Text)
}

func TestResponseGenerator_TimeoutIsAFallback(t *testing.T) {
	client := &llmtest.Client{Respond: func(llm.Request) (llm.Response, error) {
		time.Sleep(50 * time.Millisecond)
		return llm.Response{}, context.DeadlineExceeded
	}}
	res := NewResponseGenerator(client, Options{Timeout: 10 * time.Millisecond}, logging.Discard()).Generate(context.Background(), replyInput())
	assert.True(t, res.Fallback)
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
}

func TestBuildSystemPrompt(t *testing.T) {
	prompt := BuildSystemPrompt(replyInput())

	assert.Contains(t, prompt, "Salon Léa")
	assert.Contains(t, prompt, "- Coupe de cheveux: 30 min, 25 EUR")
	assert.Contains(t, prompt, "- Couleur: 90 min, 65.50 EUR")
	assert.Contains(t, prompt, "- Tuesday: 09:00 - 18:00")
	assert.Contains(t, prompt, "- Sunday: closed")
	assert.Contains(t, prompt, "same language")
	assert.Contains(t, prompt, "Tue 2026-05-05 14:00-14:30")
	assert.Equal(t, 1, strings.Count(prompt, "2026-05-05 "), "cancelled appointments are not listed")
}

func TestApologyAndPlaceholders(t *testing.T) {
	assert.Equal(t, ApologyText("fr"), ApologyText("xx"))
	assert.NotEqual(t, ApologyText("fr"), ApologyText("EN"))
	assert.NotEqual(t, VoicePlaceholder("fr", true), VoicePlaceholder("fr", false))
	assert.Contains(t, VoicePlaceholder("en", false), "Voice message")
}

func TestVoicePlaceholderFollowsApologyLanguages(t *testing.T) {
	for _, lang := range []string{"en", "es"} {
		assert.NotEqual(t, ApologyText("fr"), ApologyText(lang), lang)
		assert.NotEqual(t, VoicePlaceholder("fr", true), VoicePlaceholder(lang, true), lang)
		assert.NotEqual(t, VoicePlaceholder("fr", false), VoicePlaceholder(lang, false), lang)
	}
	assert.Equal(t, "[Mensaje de voz recibido]", VoicePlaceholder(" ES ", false))
	assert.Equal(t, "[Mensaje de voz - transcripción no disponible]", VoicePlaceholder("es", true))
	assert.Equal(t, VoicePlaceholder("fr", true), VoicePlaceholder("de", true))
}
