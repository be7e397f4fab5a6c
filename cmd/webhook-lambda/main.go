// Command webhook-lambda fronts the WhatsApp webhook with an API Gateway HTTP
// API. It relays Twilio deliveries to the API service and keeps the public
// host and signature headers so the service can validate them.
package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/Vuuar/rescall/internal/api/router"
	"github.com/Vuuar/rescall/pkg/logging"
)

type relay struct {
	upstream string
	timeout  time.Duration
	client   *http.Client
	logger   *logging.Logger
}

func newRelayFromEnv(logger *logging.Logger) (*relay, error) {
	upstream := strings.TrimRight(strings.TrimSpace(os.Getenv("UPSTREAM_BASE_URL")), "/")
	if upstream == "" {
		return nil, errors.New("UPSTREAM_BASE_URL is required")
	}
	timeout := 25 * time.Second
	if raw := strings.TrimSpace(os.Getenv("UPSTREAM_TIMEOUT")); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid UPSTREAM_TIMEOUT: %w", err)
		}
		timeout = parsed
	}
	return &relay{
		upstream: upstream,
		timeout:  timeout,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}, nil
}

func main() {
	logger := logging.New(os.Getenv("LOG_LEVEL"))
	r, err := newRelayFromEnv(logger)
	if err != nil {
		logger.Error("webhook relay misconfigured", "error", err)
		os.Exit(1)
	}
	lambda.Start(r.Handle)
}

// Handle relays one API Gateway event. Errors are mapped to HTTP statuses;
// the returned error is always nil so API Gateway never sees a 502 from Lambda.
func (r *relay) Handle(ctx context.Context, evt events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	method := strings.ToUpper(strings.TrimSpace(evt.RequestContext.HTTP.Method))
	path := strings.TrimSpace(evt.RawPath)
	if path == "" {
		path = strings.TrimSpace(evt.RequestContext.HTTP.Path)
	}

	switch {
	case path == "/health":
		return respond(http.StatusOK, "application/json", `{"status":"ok"}`), nil
	case path != router.WebhookPath:
		return respond(http.StatusNotFound, "", ""), nil
	case method != http.MethodPost:
		resp := respond(http.StatusMethodNotAllowed, "", "")
		resp.Headers["allow"] = http.MethodPost
		return resp, nil
	}

	body, err := eventBody(evt)
	if err != nil {
		return respond(http.StatusBadRequest, "text/plain", "invalid body"), nil
	}

	req, cancel, err := r.upstreamRequest(ctx, evt, path, body)
	if err != nil {
		return respond(http.StatusInternalServerError, "", ""), nil
	}
	defer cancel()

	resp, err := r.client.Do(req)
	if err != nil {
		// A 5xx makes Twilio retry; the API dedups by MessageSid.
		r.logger.Warn("webhook relay upstream failed", "error", err)
		return respond(http.StatusBadGateway, "text/plain", "upstream error"), nil
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	return respond(resp.StatusCode, resp.Header.Get("Content-Type"), string(respBody)), nil
}

func (r *relay) upstreamRequest(ctx context.Context, evt events.APIGatewayV2HTTPRequest, path string, body []byte) (*http.Request, context.CancelFunc, error) {
	target := r.upstream + path
	if qs := strings.TrimSpace(evt.RawQueryString); qs != "" {
		target += "?" + qs
	}

	reqCtx, cancel := context.WithTimeout(ctx, r.timeout)
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, nil, err
	}

	for _, h := range []string{"content-type", "x-twilio-signature"} {
		if v := strings.TrimSpace(headerValue(evt.Headers, h)); v != "" {
			req.Header.Set(h, v)
		}
	}

	// Twilio signs the public URL, so the API rebuilds it from these.
	host := strings.TrimSpace(evt.RequestContext.DomainName)
	if host == "" {
		host = strings.TrimSpace(headerValue(evt.Headers, "host"))
	}
	proto := strings.TrimSpace(headerValue(evt.Headers, "x-forwarded-proto"))
	if proto == "" {
		proto = "https"
	}
	if host != "" {
		req.Header.Set("X-Forwarded-Host", host)
	}
	req.Header.Set("X-Forwarded-Proto", proto)
	return req, cancel, nil
}

func respond(status int, contentType, body string) events.APIGatewayV2HTTPResponse {
	resp := events.APIGatewayV2HTTPResponse{StatusCode: status, Body: body, Headers: map[string]string{}}
	if contentType != "" {
		resp.Headers["content-type"] = contentType
	}
	return resp
}

func eventBody(evt events.APIGatewayV2HTTPRequest) ([]byte, error) {
	if !evt.IsBase64Encoded {
		return []byte(evt.Body), nil
	}
	return base64.StdEncoding.DecodeString(evt.Body)
}

func headerValue(headers map[string]string, key string) string {
	for k, v := range headers {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}
