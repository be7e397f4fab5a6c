// Package llmtest provides a scripted llm.Client for tests.
package llmtest

import (
	"context"
	"errors"
	"sync"

	"github.com/Vuuar/rescall/internal/llm"
)

// ErrNoScriptedResponse is returned once the script is exhausted.
var ErrNoScriptedResponse = errors.New("llmtest: no scripted response")

// Client replays Responses in order. A non-nil entry in Errs at the same
// position fails that call instead. Respond, when set, takes precedence.
type Client struct {
	mu        sync.Mutex
	Responses []llm.Response
	Errs      []error
	Respond   func(req llm.Request) (llm.Response, error)
	Requests  []llm.Request
	calls     int
}

func (c *Client) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Requests = append(c.Requests, req)
	i := c.calls
	c.calls++

	if err := ctx.Err(); err != nil {
		return llm.Response{}, err
	}
	if c.Respond != nil {
		return c.Respond(req)
	}
	if i < len(c.Errs) && c.Errs[i] != nil {
		return llm.Response{}, c.Errs[i]
	}
	if i >= len(c.Responses) {
		return llm.Response{}, ErrNoScriptedResponse
	}
	return c.Responses[i], nil
}

// Calls reports how many requests were received.
func (c *Client) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// LastRequest returns the most recent request, or the zero value.
func (c *Client) LastRequest() llm.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.Requests) == 0 {
		return llm.Request{}
	}
	return c.Requests[len(c.Requests)-1]
}
