package notify

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
)

func TestNewSendGridSender_NilWithoutAPIKey(t *testing.T) {
	if sender := NewSendGridSender(SendGridConfig{FromEmail: "test@example.com"}, nil); sender != nil {
		t.Error("expected nil sender when API key is empty")
	}
}

func TestNewSendGridSender_DefaultFromName(t *testing.T) {
	sender := NewSendGridSender(SendGridConfig{APIKey: "test-key", FromEmail: "test@example.com"}, nil)
	if sender == nil {
		t.Fatal("expected non-nil sender")
	}
	if sender.fromName != "ResCall" {
		t.Errorf("expected default from name 'ResCall', got %q", sender.fromName)
	}
}

func TestSendGridSender_Send(t *testing.T) {
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing bearer token")
		}
		raw, _ := io.ReadAll(r.Body)
		body = string(raw)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	sender := NewSendGridSender(SendGridConfig{APIKey: "test-key", FromEmail: "noreply@rescall.app"}, nil)
	sender.client.Request.BaseURL = srv.URL + "/v3/mail/send"

	err := sender.Send(context.Background(), EmailMessage{
		To: "lea@example.com", ReplyTo: "salon@example.com",
		Subject: "Nouveau rendez-vous", Body: "Bonjour", Category: "booking",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	for _, want := range []string{"lea@example.com", "Nouveau rendez-vous", "salon@example.com", `"categories":["booking"]`, "text/plain"} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected payload to contain %q, got %s", want, body)
		}
	}
}

func TestSendGridSender_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	sender := NewSendGridSender(SendGridConfig{APIKey: "bad", FromEmail: "noreply@rescall.app"}, nil)
	sender.client.Request.BaseURL = srv.URL + "/v3/mail/send"
	if err := sender.Send(context.Background(), EmailMessage{To: "x@example.com"}); err == nil {
		t.Fatal("expected error for 401")
	}
}

func TestSendGridSender_Send_NilClient(t *testing.T) {
	sender := &SendGridSender{}
	if err := sender.Send(context.Background(), EmailMessage{To: "recipient@example.com"}); err == nil {
		t.Error("expected error when client is nil")
	}
}

type stubSES struct {
	input *sesv2.SendEmailInput
	err   error
}

func (s *stubSES) SendEmail(_ context.Context, params *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	s.input = params
	if s.err != nil {
		return nil, s.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("ses-1")}, nil
}

func TestSESSender_Send(t *testing.T) {
	api := &stubSES{}
	sender := NewSESSender(api, SESConfig{FromEmail: "noreply@rescall.app"}, nil)
	if err := sender.Send(context.Background(), EmailMessage{To: "lea@example.com", Subject: "Sujet", Body: "Texte", ReplyTo: "salon@example.com", Category: "booking"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(api.input.ReplyToAddresses) != 1 || api.input.ReplyToAddresses[0] != "salon@example.com" {
		t.Fatalf("expected reply-to, got %v", api.input.ReplyToAddresses)
	}
	if len(api.input.EmailTags) != 1 || aws.ToString(api.input.EmailTags[0].Value) != "booking" {
		t.Fatalf("expected category tag, got %+v", api.input.EmailTags)
	}
	if got := aws.ToString(api.input.FromEmailAddress); got != "ResCall <noreply@rescall.app>" {
		t.Fatalf("unexpected from %q", got)
	}
	if api.input.Content.Simple.Body.Html != nil || aws.ToString(api.input.Content.Simple.Body.Text.Data) != "Texte" {
		t.Fatalf("expected text-only body")
	}

	failing := NewSESSender(&stubSES{err: errors.New("throttled")}, SESConfig{FromEmail: "noreply@rescall.app"}, nil)
	if err := failing.Send(context.Background(), EmailMessage{To: "x@example.com"}); err == nil {
		t.Fatal("expected SES error")
	}
	if NewSESSender(nil, SESConfig{FromEmail: "a@b.c"}, nil) != nil || NewSESSender(api, SESConfig{}, nil) != nil {
		t.Fatal("expected nil sender without client or from address")
	}
}

func TestStubEmailSender_Send(t *testing.T) {
	if err := NewStubEmailSender(nil).Send(context.Background(), EmailMessage{To: "recipient@example.com"}); err != nil {
		t.Errorf("stub sender should not return error, got: %v", err)
	}
}

func TestMaskEmail(t *testing.T) {
	cases := map[string]string{
		"lea@example.com": "l***@example.com",
		"not-an-address":  "***",
		"@example.com":    "***",
	}
	for in, want := range cases {
		if got := maskEmail(in); got != want {
			t.Errorf("maskEmail(%q) = %q, want %q", in, got, want)
		}
	}
}
