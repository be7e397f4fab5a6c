package messaging

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// ValidateTwilioSignature validates that a request came from Twilio
func ValidateTwilioSignature(r *http.Request, authToken, webhookURL string) bool {
	signature := r.Header.Get("X-Twilio-Signature")
	if signature == "" {
		return false
	}

	if err := r.ParseForm(); err != nil {
		return false
	}

	payload := buildSignaturePayload(webhookURL, r.PostForm)
	expectedSignature := computeSignature(payload, authToken)

	return hmac.Equal([]byte(signature), []byte(expectedSignature))
}

// buildSignaturePayload creates the payload string for signature verification:
// the URL followed by every POST param, keys sorted.
func buildSignaturePayload(url string, params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var payload strings.Builder
	payload.WriteString(url)

	for _, key := range keys {
		for _, value := range params[key] {
			payload.WriteString(key)
			payload.WriteString(value)
		}
	}

	return payload.String()
}

// computeSignature computes the HMAC-SHA1 signature
func computeSignature(data, key string) string {
	h := hmac.New(sha1.New, []byte(key))
	h.Write([]byte(data))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// InboundMessage is an incoming WhatsApp message as posted by Twilio.
type InboundMessage struct {
	MessageSid       string
	From             string
	To               string
	Body             string
	ProfileName      string
	NumMedia         int
	MediaURL         string
	MediaContentType string
}

// HasAudio reports whether the first attached media is an audio payload.
func (m InboundMessage) HasAudio() bool {
	return m.MediaURL != "" && strings.HasPrefix(strings.ToLower(m.MediaContentType), "audio/")
}

// ParseInboundMessage parses a Twilio WhatsApp webhook form. Only the first
// media attachment is considered.
func ParseInboundMessage(r *http.Request) (*InboundMessage, error) {
	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("failed to parse form: %w", err)
	}

	msg := &InboundMessage{
		MessageSid:       strings.TrimSpace(r.FormValue("MessageSid")),
		From:             strings.TrimSpace(r.FormValue("From")),
		To:               strings.TrimSpace(r.FormValue("To")),
		Body:             r.FormValue("Body"),
		ProfileName:      strings.TrimSpace(r.FormValue("ProfileName")),
		MediaURL:         strings.TrimSpace(r.FormValue("MediaUrl0")),
		MediaContentType: strings.TrimSpace(r.FormValue("MediaContentType0")),
	}
	if n, err := strconv.Atoi(strings.TrimSpace(r.FormValue("NumMedia"))); err == nil {
		msg.NumMedia = n
	} else if msg.MediaURL != "" {
		msg.NumMedia = 1
	}
	return msg, nil
}

// BuildAbsoluteURL reconstructs the public URL Twilio signed, honoring proxy headers.
func BuildAbsoluteURL(r *http.Request) string {
	if r.URL == nil {
		return ""
	}
	if r.URL.Scheme != "" {
		return r.URL.String()
	}
	scheme := r.Header.Get("X-Forwarded-Proto")
	if scheme == "" {
		scheme = "https"
		if r.TLS == nil {
			scheme = "http"
		}
	}
	host := r.Header.Get("X-Forwarded-Host")
	if host == "" {
		host = r.Host
	}
	return fmt.Sprintf("%s://%s%s", scheme, host, r.URL.RequestURI())
}

// EmptyTwiML acknowledges a webhook without an inline reply.
const EmptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`
