package llm

import "context"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single turn sent to a model. System turns are folded into the
// provider's system prompt.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Usage struct {
	InputTokens  int32
	OutputTokens int32
	TotalTokens  int32
}

type Request struct {
	Model    string
	System   []string
	Messages []Message
	// MaxTokens bounds the completion; zero leaves the provider default.
	MaxTokens int32
	// Temperature is omitted when negative.
	Temperature float32
	TopP        float32
	// JSON asks the provider for a single JSON object as the whole completion.
	JSON bool
}

type Response struct {
	Text       string
	Usage      Usage
	StopReason string
}

// Client completes chat requests against a text-generation backend.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

const jsonOnlyInstruction = "Respond with a single JSON object and nothing else: no prose, no markdown fences."
