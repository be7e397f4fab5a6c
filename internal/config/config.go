package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string
	DatabaseURL   string

	// Twilio WhatsApp channel
	TwilioAccountSID        string
	TwilioAuthToken         string
	TwilioValidateSignature bool
	TwilioAPIBaseURL        string

	// LLM providers
	AWSRegion            string
	AWSAccessKeyID       string
	AWSSecretAccessKey   string
	AWSEndpointOverride  string
	BedrockModelID       string
	GeminiAPIKey         string
	GeminiModelID        string
	GeminiSTTModelID     string
	LLMReplyTemperature  float32
	LLMReplyMaxTokens    int
	LLMExtractMaxTokens  int
	LLMTimeout           time.Duration
	TranscriptionTimeout time.Duration
	DispatchTimeout      time.Duration
	MediaFetchTimeout    time.Duration
	MediaMaxBytes        int64

	// Voice-note archive
	MediaBucket string

	// Webhook throttling per client IP; zero disables it
	WebhookRatePerSecond float64
	WebhookRateBurst     int

	// Webhook idempotency
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool
	DedupTTL      time.Duration

	// Booking notifications
	EmailProvider     string
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	SESFromEmail      string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: strings.TrimRight(getEnv("PUBLIC_BASE_URL", ""), "/"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),

		TwilioAccountSID:        getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:         getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioValidateSignature: getEnvAsBool("TWILIO_VALIDATE_SIGNATURE", false),
		TwilioAPIBaseURL:        getEnv("TWILIO_API_BASE_URL", "https://api.twilio.com"),

		AWSRegion:            getEnv("AWS_REGION", "eu-west-3"),
		AWSAccessKeyID:       getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride:  getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		BedrockModelID:       getEnv("BEDROCK_MODEL_ID", ""),
		GeminiAPIKey:         getEnv("GEMINI_API_KEY", ""),
		GeminiModelID:        getEnv("GEMINI_MODEL_ID", "gemini-2.5-flash"),
		GeminiSTTModelID:     getEnv("GEMINI_STT_MODEL_ID", "gemini-2.5-flash"),
		LLMReplyTemperature:  getEnvAsFloat32("LLM_REPLY_TEMPERATURE", 0.7),
		LLMReplyMaxTokens:    getEnvAsInt("LLM_REPLY_MAX_TOKENS", 500),
		LLMExtractMaxTokens:  getEnvAsInt("LLM_EXTRACT_MAX_TOKENS", 300),
		LLMTimeout:           getEnvAsDuration("LLM_TIMEOUT", 25*time.Second),
		TranscriptionTimeout: getEnvAsDuration("TRANSCRIPTION_TIMEOUT", 20*time.Second),
		DispatchTimeout:      getEnvAsDuration("DISPATCH_TIMEOUT", 10*time.Second),
		MediaFetchTimeout:    getEnvAsDuration("MEDIA_FETCH_TIMEOUT", 15*time.Second),
		MediaMaxBytes:        int64(getEnvAsInt("MEDIA_MAX_BYTES", 16<<20)),

		MediaBucket: getEnv("MEDIA_BUCKET", ""),

		WebhookRatePerSecond: float64(getEnvAsFloat32("WEBHOOK_RATE_PER_SECOND", 0)),
		WebhookRateBurst:     getEnvAsInt("WEBHOOK_RATE_BURST", 20),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),
		DedupTTL:      getEnvAsDuration("DEDUP_TTL", 24*time.Hour),

		EmailProvider:     strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "sendgrid"))),
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "ResCall"),
		SESFromEmail:      getEnv("SES_FROM_EMAIL", ""),
	}
}

// WebhookURL is the absolute URL Twilio signs requests against.
func (c *Config) WebhookURL(path string) string {
	if c.PublicBaseURL == "" {
		return ""
	}
	return c.PublicBaseURL + path
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 32); err == nil {
		return float32(value)
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
