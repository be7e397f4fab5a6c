package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("BEDROCK_MODEL_ID", "")
	t.Setenv("LLM_TIMEOUT", "")
	t.Setenv("LLM_REPLY_TEMPERATURE", "")
	t.Setenv("WEBHOOK_RATE_PER_SECOND", "")
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.BedrockModelID != "" {
		t.Fatalf("expected default bedrock model empty, got %s", cfg.BedrockModelID)
	}
	if cfg.LLMTimeout != 25*time.Second {
		t.Fatalf("expected default llm timeout, got %s", cfg.LLMTimeout)
	}
	if cfg.LLMReplyTemperature != 0.7 {
		t.Fatalf("expected default temperature 0.7, got %v", cfg.LLMReplyTemperature)
	}
	if cfg.DedupTTL != 24*time.Hour {
		t.Fatalf("expected default dedup ttl, got %s", cfg.DedupTTL)
	}
	if cfg.WebhookRatePerSecond != 0 {
		t.Fatalf("expected webhook throttling disabled by default, got %v", cfg.WebhookRatePerSecond)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DATABASE_URL", "postgres://user@host/db")
	t.Setenv("TWILIO_VALIDATE_SIGNATURE", "true")
	t.Setenv("LLM_REPLY_TEMPERATURE", "0.3")
	t.Setenv("LLM_REPLY_MAX_TOKENS", "256")
	t.Setenv("TRANSCRIPTION_TIMEOUT", "5s")
	t.Setenv("EMAIL_PROVIDER", " SES ")
	t.Setenv("PUBLIC_BASE_URL", "https://rescall.example/")
	t.Setenv("WEBHOOK_RATE_PER_SECOND", "5")
	t.Setenv("WEBHOOK_RATE_BURST", "10")
	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	if cfg.Env != "production" {
		t.Fatalf("expected env override, got %s", cfg.Env)
	}
	if cfg.DatabaseURL != "postgres://user@host/db" {
		t.Fatalf("expected database url override, got %s", cfg.DatabaseURL)
	}
	if !cfg.TwilioValidateSignature {
		t.Fatalf("expected signature validation enabled")
	}
	if cfg.LLMReplyTemperature < 0.29 || cfg.LLMReplyTemperature > 0.31 {
		t.Fatalf("expected temperature override, got %v", cfg.LLMReplyTemperature)
	}
	if cfg.LLMReplyMaxTokens != 256 {
		t.Fatalf("expected max tokens override, got %d", cfg.LLMReplyMaxTokens)
	}
	if cfg.TranscriptionTimeout != 5*time.Second {
		t.Fatalf("expected transcription timeout override, got %s", cfg.TranscriptionTimeout)
	}
	if cfg.EmailProvider != "ses" {
		t.Fatalf("expected normalized email provider, got %q", cfg.EmailProvider)
	}
	if cfg.WebhookRatePerSecond != 5 || cfg.WebhookRateBurst != 10 {
		t.Fatalf("expected webhook rate override, got %v/%d", cfg.WebhookRatePerSecond, cfg.WebhookRateBurst)
	}
	if got := cfg.WebhookURL("/webhooks/whatsapp"); got != "https://rescall.example/webhooks/whatsapp" {
		t.Fatalf("unexpected webhook url %q", got)
	}
}

func TestLoadInvalidValuesFallBack(t *testing.T) {
	t.Setenv("LLM_REPLY_MAX_TOKENS", "lots")
	t.Setenv("DISPATCH_TIMEOUT", "soon")
	t.Setenv("REDIS_TLS", "maybe")
	cfg := Load()
	if cfg.LLMReplyMaxTokens != 500 {
		t.Fatalf("expected fallback max tokens, got %d", cfg.LLMReplyMaxTokens)
	}
	if cfg.DispatchTimeout != 10*time.Second {
		t.Fatalf("expected fallback dispatch timeout, got %s", cfg.DispatchTimeout)
	}
	if cfg.RedisTLS {
		t.Fatalf("expected redis tls false on invalid value")
	}
}
