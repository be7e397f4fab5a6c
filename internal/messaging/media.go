package messaging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrMediaTooLarge is returned when a media payload exceeds the fetcher limit.
var ErrMediaTooLarge = errors.New("messaging: media exceeds size limit")

// Media is a downloaded attachment.
type Media struct {
	URL         string
	ContentType string
	Data        []byte
}

// MediaFetcher downloads inbound media referenced by a webhook.
type MediaFetcher interface {
	Fetch(ctx context.Context, mediaURL string) (*Media, error)
}

// TwilioMediaFetcher downloads media URLs, authenticating with the Twilio
// account when credentials are configured.
type TwilioMediaFetcher struct {
	accountSID string
	authToken  string
	maxBytes   int64
	httpClient *http.Client
}

// NewTwilioMediaFetcher builds a fetcher. maxBytes <= 0 disables the limit.
func NewTwilioMediaFetcher(accountSID, authToken string, maxBytes int64, timeout time.Duration) *TwilioMediaFetcher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &TwilioMediaFetcher{
		accountSID: accountSID,
		authToken:  authToken,
		maxBytes:   maxBytes,
		httpClient: &http.Client{Timeout: timeout},
	}
}

var _ MediaFetcher = (*TwilioMediaFetcher)(nil)

func (f *TwilioMediaFetcher) Fetch(ctx context.Context, mediaURL string) (*Media, error) {
	if strings.TrimSpace(mediaURL) == "" {
		return nil, errors.New("messaging: media url required")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, fmt.Errorf("messaging: build media request: %w", err)
	}
	if f.accountSID != "" && f.authToken != "" {
		req.SetBasicAuth(f.accountSID, f.authToken)
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("messaging: fetch media: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("messaging: fetch media: status %d", resp.StatusCode)
	}

	reader := io.Reader(resp.Body)
	if f.maxBytes > 0 {
		reader = io.LimitReader(resp.Body, f.maxBytes+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("messaging: read media: %w", err)
	}
	if f.maxBytes > 0 && int64(len(data)) > f.maxBytes {
		return nil, ErrMediaTooLarge
	}
	if len(data) == 0 {
		return nil, errors.New("messaging: media body empty")
	}
	contentType := resp.Header.Get("Content-Type")
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = contentType[:i]
	}
	return &Media{URL: mediaURL, ContentType: strings.TrimSpace(contentType), Data: data}, nil
}
