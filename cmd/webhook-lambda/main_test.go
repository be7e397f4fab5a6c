package main

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"github.com/Vuuar/rescall/pkg/logging"
)

func testRelay(upstream string, client *http.Client) *relay {
	if client == nil {
		client = &http.Client{Timeout: time.Second}
	}
	return &relay{upstream: upstream, timeout: time.Second, client: client, logger: logging.Discard()}
}

func event(method, path string) events.APIGatewayV2HTTPRequest {
	return events.APIGatewayV2HTTPRequest{
		RawPath: path,
		RequestContext: events.APIGatewayV2HTTPRequestContext{
			HTTP: events.APIGatewayV2HTTPRequestContextHTTPDescription{Method: method, Path: path},
		},
	}
}

func TestHandleHealth(t *testing.T) {
	resp, err := testRelay("http://example.com", nil).Handle(context.Background(), event(http.MethodGet, "/health"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK || resp.Body != `{"status":"ok"}` {
		t.Fatalf("unexpected health response %d %q", resp.StatusCode, resp.Body)
	}
}

func TestHandleRejectsNonPost(t *testing.T) {
	resp, _ := testRelay("http://example.com", nil).Handle(context.Background(), event(http.MethodGet, "/webhooks/whatsapp"))
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected status %d, got %d", http.StatusMethodNotAllowed, resp.StatusCode)
	}
	if resp.Headers["allow"] != http.MethodPost {
		t.Fatalf("expected Allow header, got %q", resp.Headers["allow"])
	}
}

func TestHandleRejectsUnknownPath(t *testing.T) {
	resp, _ := testRelay("http://example.com", nil).Handle(context.Background(), event(http.MethodPost, "/webhooks/sms"))
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, resp.StatusCode)
	}
}

func TestHandleInvalidBase64Body(t *testing.T) {
	evt := event(http.MethodPost, "/webhooks/whatsapp")
	evt.Body = "not-base64"
	evt.IsBase64Encoded = true

	resp, _ := testRelay("http://example.com", nil).Handle(context.Background(), evt)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.StatusCode)
	}
}

func TestHandleUpstreamDown(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	url := upstream.URL
	upstream.Close()

	resp, _ := testRelay(url, nil).Handle(context.Background(), event(http.MethodPost, "/webhooks/whatsapp"))
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected status %d, got %d", http.StatusBadGateway, resp.StatusCode)
	}
}

func TestHandleForwardsWhatsAppWebhook(t *testing.T) {
	var got *http.Request
	var gotBody string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got, gotBody = r.Clone(context.Background()), string(body)
		w.Header().Set("Content-Type", "text/xml")
		_, _ = w.Write([]byte("<Response></Response>"))
	}))
	defer upstream.Close()

	evt := event(http.MethodPost, "/webhooks/whatsapp")
	evt.Body = base64.StdEncoding.EncodeToString([]byte("MessageSid=SM1&Body=bonjour"))
	evt.IsBase64Encoded = true
	evt.Headers = map[string]string{
		"Content-Type":       "application/x-www-form-urlencoded",
		"X-Twilio-Signature": "sig",
	}
	evt.RequestContext.DomainName = "hooks.example.com"

	resp, err := testRelay(upstream.URL, upstream.Client()).Handle(context.Background(), evt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK || resp.Body != "<Response></Response>" {
		t.Fatalf("unexpected relay response %d %q", resp.StatusCode, resp.Body)
	}
	if resp.Headers["content-type"] != "text/xml" {
		t.Fatalf("expected content type to be relayed, got %q", resp.Headers["content-type"])
	}

	if got == nil {
		t.Fatalf("upstream was not called")
	}
	if got.URL.Path != "/webhooks/whatsapp" || gotBody != "MessageSid=SM1&Body=bonjour" {
		t.Fatalf("unexpected upstream request %s %q", got.URL.Path, gotBody)
	}
	if got.Header.Get("X-Twilio-Signature") != "sig" {
		t.Fatalf("expected twilio signature to be forwarded")
	}
	if got.Header.Get("X-Forwarded-Host") != "hooks.example.com" || got.Header.Get("X-Forwarded-Proto") != "https" {
		t.Fatalf("expected public host headers, got %q %q", got.Header.Get("X-Forwarded-Host"), got.Header.Get("X-Forwarded-Proto"))
	}
}

func TestNewRelayFromEnv(t *testing.T) {
	t.Setenv("UPSTREAM_BASE_URL", "")
	if _, err := newRelayFromEnv(logging.Discard()); err == nil {
		t.Fatalf("expected error without upstream")
	}

	t.Setenv("UPSTREAM_BASE_URL", "https://api.example.com/")
	t.Setenv("UPSTREAM_TIMEOUT", "3s")
	r, err := newRelayFromEnv(logging.Discard())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.upstream != "https://api.example.com" || r.timeout != 3*time.Second {
		t.Fatalf("unexpected relay config %+v", r)
	}
}
