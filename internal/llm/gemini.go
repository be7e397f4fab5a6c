package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const DefaultGeminiModel = "gemini-2.5-flash"

// GeminiClient implements Client using Google's Gemini API.
type GeminiClient struct {
	client  *genai.Client
	modelID string
}

// NewGeminiClient dials the Gemini API with an API key.
func NewGeminiClient(ctx context.Context, apiKey, modelID string) (*GeminiClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("llm: gemini api key is required")
	}
	if strings.TrimSpace(modelID) == "" {
		modelID = DefaultGeminiModel
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("llm: failed to create gemini client: %w", err)
	}
	return &GeminiClient{client: client, modelID: modelID}, nil
}

var _ Client = (*GeminiClient)(nil)

// Model exposes a configured model handle, shared with the audio transcriber.
func (c *GeminiClient) Model(modelID string) *genai.GenerativeModel {
	if strings.TrimSpace(modelID) == "" {
		modelID = c.modelID
	}
	return c.client.GenerativeModel(modelID)
}

// Complete ignores req.Model: Bedrock model ids do not translate to Gemini.
func (c *GeminiClient) Complete(ctx context.Context, req Request) (Response, error) {
	model := c.client.GenerativeModel(c.modelID)
	configureGemini(model, req)

	history, last, err := geminiTurns(req.Messages)
	if err != nil {
		return Response{}, err
	}
	cs := model.StartChat()
	cs.History = history

	resp, err := cs.SendMessage(ctx, genai.Text(last))
	if err != nil {
		return Response{}, fmt.Errorf("llm: gemini completion failed: %w", err)
	}
	return GeminiResponse(resp)
}

// Close releases resources held by the Gemini client.
func (c *GeminiClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

func configureGemini(model *genai.GenerativeModel, req Request) {
	if req.Temperature >= 0 {
		model.SetTemperature(req.Temperature)
	}
	if req.TopP > 0 {
		model.SetTopP(req.TopP)
	}
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(req.MaxTokens)
	}
	system := make([]string, 0, len(req.System)+len(req.Messages))
	for _, s := range req.System {
		if strings.TrimSpace(s) != "" {
			system = append(system, s)
		}
	}
	for _, m := range req.Messages {
		if m.Role == RoleSystem && strings.TrimSpace(m.Content) != "" {
			system = append(system, m.Content)
		}
	}
	if len(system) > 0 {
		model.SystemInstruction = genai.NewUserContent(genai.Text(strings.Join(system, "\n\n")))
	}
	if req.JSON {
		model.ResponseMIMEType = "application/json"
	}
}

// geminiTurns splits messages into chat history and the final user prompt.
func geminiTurns(messages []Message) ([]*genai.Content, string, error) {
	var turns []*genai.Content
	for _, msg := range messages {
		content := strings.TrimSpace(msg.Content)
		if content == "" || msg.Role == RoleSystem {
			continue
		}
		role := "user"
		switch msg.Role {
		case RoleUser:
		case RoleAssistant:
			role = "model"
		default:
			return nil, "", fmt.Errorf("llm: unsupported role %q", msg.Role)
		}
		turns = append(turns, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(content)}})
	}
	if len(turns) == 0 {
		return nil, "", errors.New("llm: gemini requires at least one message")
	}
	last := turns[len(turns)-1]
	if last.Role != "user" {
		return nil, "", errors.New("llm: gemini prompt must end with a user message")
	}
	return turns[:len(turns)-1], string(last.Parts[0].(genai.Text)), nil
}

// GeminiResponse extracts the text and usage of the first candidate.
func GeminiResponse(resp *genai.GenerateContentResponse) (Response, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return Response{}, errors.New("llm: gemini returned no candidates")
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return Response{}, errors.New("llm: gemini returned empty content")
	}
	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}
	out := Response{
		Text:       strings.TrimSpace(text.String()),
		StopReason: candidate.FinishReason.String(),
	}
	if out.Text == "" {
		return Response{}, errors.New("llm: gemini returned no text")
	}
	if resp.UsageMetadata != nil {
		out.Usage = Usage{
			InputTokens:  resp.UsageMetadata.PromptTokenCount,
			OutputTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:  resp.UsageMetadata.TotalTokenCount,
		}
	}
	return out, nil
}
