package assistant

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vuuar/rescall/internal/llm"
	"github.com/Vuuar/rescall/internal/llm/llmtest"
	"github.com/Vuuar/rescall/pkg/logging"
)

var refTime = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func TestDetailExtractor_GreetingOnlyYieldsEmptyRecord(t *testing.T) {
	client := &llmtest.Client{Responses: []llm.Response{{Text: "{}"}}}
	ext := NewDetailExtractor(client, Options{MaxTokens: 300}, logging.Discard())

	res := ext.Extract(context.Background(), []string{"Bonjour", "Bonjour ! Que puis-je faire pour vous ?"}, refTime)
	require.NoError(t, res.Err)
	assert.True(t, res.Details.Empty())

	req := client.LastRequest()
	assert.True(t, req.JSON)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, "Bonjour\nBonjour ! Que puis-je faire pour vous ?", req.Messages[0].Content)
	assert.Contains(t, req.System[0], "2026-05-04")
}

func TestDetailExtractor_ExtractsStatedFields(t *testing.T) {
	client := &llmtest.Client{Responses: []llm.Response{{Text: "```json\n" +
		`{"clientName":"Alice","clientPhone":"06 01 02 03 04","date":"2026-05-05","time":"14:00","serviceType":"coupe de cheveux","notes":null}` +
		"\n```"}}}
	ext := NewDetailExtractor(client, Options{}, logging.Discard())

	res := ext.Extract(context.Background(), []string{"Je voudrais un rendez-vous coupe de cheveux demain à 14h, je m'appelle Alice, 0601020304"}, refTime)
	require.NoError(t, res.Err)
	assert.Equal(t, Details{
		ClientName:  "Alice",
		ClientPhone: "0601020304",
		Date:        "2026-05-05",
		Time:        "14:00",
		ServiceType: "coupe de cheveux",
	}, res.Details)
	assert.True(t, res.Details.Bookable())
}

func TestDetailExtractor_FailuresYieldEmptyRecord(t *testing.T) {
	cases := map[string]*llmtest.Client{
		"model error": {Errs: []error{errors.New("bedrock down")}},
		"prose":       {Responses: []llm.Response{{Text: "I could not find anything."}}},
		"broken json": {Responses: []llm.Response{{Text: `{"clientName": "Alice"`}}},
	}
	for name, client := range cases {
		res := NewDetailExtractor(client, Options{}, logging.Discard()).Extract(context.Background(), []string{"Bonjour"}, refTime)
		assert.Error(t, res.Err, name)
		assert.True(t, res.Details.Empty(), name)
	}
}

func TestDetailExtractor_EmptyTranscriptSkipsModel(t *testing.T) {
	client := &llmtest.Client{}
	res := NewDetailExtractor(client, Options{}, logging.Discard()).Extract(context.Background(), []string{" ", ""}, refTime)
	assert.NoError(t, res.Err)
	assert.True(t, res.Details.Empty())
	assert.Equal(t, 0, client.Calls())
}

func TestDetailExtractor_Idempotent(t *testing.T) {
	out := llm.Response{Text: `{"clientName":"Alice"}`}
	client := &llmtest.Client{Responses: []llm.Response{out, out}}
	ext := NewDetailExtractor(client, Options{}, logging.Discard())
	transcript := []string{"je m'appelle Alice"}

	first := ext.Extract(context.Background(), transcript, refTime)
	second := ext.Extract(context.Background(), transcript, refTime)
	assert.Equal(t, first, second)
	assert.Equal(t, client.Requests[0], client.Requests[1])
}

func TestParseDetails_DropsMalformedValues(t *testing.T) {
	d, err := ParseDetails(`{"date":"demain","time":"9h30","clientName":"  ","serviceType":"unknown","clientPhone":12}`)
	require.NoError(t, err)
	assert.Equal(t, Details{Time: "09:30"}, d)

	d, err = ParseDetails(`{"date":"2026-02-30","time":"25:00"}`)
	require.NoError(t, err)
	assert.True(t, d.Empty())
}
