package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/Vuuar/rescall/cmd/mainconfig"
	"github.com/Vuuar/rescall/internal/api/router"
	"github.com/Vuuar/rescall/internal/assistant"
	appconfig "github.com/Vuuar/rescall/internal/config"
	"github.com/Vuuar/rescall/internal/dedup"
	httpmiddleware "github.com/Vuuar/rescall/internal/http/middleware"
	"github.com/Vuuar/rescall/internal/llm"
	"github.com/Vuuar/rescall/internal/media"
	"github.com/Vuuar/rescall/internal/messaging"
	"github.com/Vuuar/rescall/internal/notify"
	"github.com/Vuuar/rescall/internal/observability/metrics"
	"github.com/Vuuar/rescall/internal/store"
	"github.com/Vuuar/rescall/internal/transcription"
	"github.com/Vuuar/rescall/internal/webhook"
	"github.com/Vuuar/rescall/pkg/logging"
)

// app is the fully wired HTTP surface plus the resources to release on exit.
type app struct {
	handler http.Handler
	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func build(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*app, error) {
	a := &app{}

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	pool, err := connectPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	var st store.Store
	var db router.Pinger
	if pool != nil {
		a.closers = append(a.closers, pool.Close)
		st = store.NewPostgresStore(pool)
		db = pool
	} else {
		logger.Warn("DATABASE_URL not set; using in-memory store")
		st = store.NewMemoryStore()
	}

	client, gemini, err := setupLLM(ctx, cfg, awsCfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	if gemini != nil {
		a.closers = append(a.closers, func() { _ = gemini.Close() })
	}

	metricsHandler, webhookMetrics := setupMetrics()

	deps := webhook.Deps{
		Store:  st,
		Sender: setupSender(cfg, logger),
		Generator: assistant.NewResponseGenerator(client, assistant.Options{
			Model:       cfg.BedrockModelID,
			Temperature: cfg.LLMReplyTemperature,
			MaxTokens:   int32(cfg.LLMReplyMaxTokens),
			Timeout:     cfg.LLMTimeout,
		}, logger),
		Extractor: assistant.NewDetailExtractor(client, assistant.Options{
			Model:       cfg.BedrockModelID,
			Temperature: 0,
			MaxTokens:   int32(cfg.LLMExtractMaxTokens),
			Timeout:     cfg.LLMTimeout,
		}, logger),
		Metrics:         webhookMetrics,
		Logger:          logger,
		PublicURL:       cfg.WebhookURL(router.WebhookPath),
		DispatchTimeout: cfg.DispatchTimeout,
	}
	if cfg.TwilioValidateSignature {
		deps.TwilioAuthToken = cfg.TwilioAuthToken
	}

	fetcher := messaging.NewTwilioMediaFetcher(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.MediaMaxBytes, cfg.MediaFetchTimeout)
	if gemini != nil {
		deps.Transcriber = transcription.NewGeminiTranscriber(fetcher, gemini.Model(cfg.GeminiSTTModelID), cfg.TranscriptionTimeout, logger)
	} else {
		logger.Warn("voice transcription disabled: GEMINI_API_KEY not set")
	}

	dd, closeDedup := setupDedup(cfg, logger)
	deps.Dedup = dd
	if closeDedup != nil {
		a.closers = append(a.closers, closeDedup)
	}

	if archive := setupArchive(cfg, awsCfg, logger); archive != nil {
		deps.Archive = archive
	}
	if sender := setupEmail(cfg, awsCfg, logger); sender != nil {
		deps.Notifier = notify.NewBookingNotifier(sender, logger)
	}

	a.handler = router.New(&router.Config{
		Logger:          logger,
		WhatsAppInbound: webhook.NewHandler(deps).Inbound,
		MetricsHandler:  metricsHandler,
		Database:        db,
		WebhookLimiter:  httpmiddleware.NewRateLimiter(cfg.WebhookRatePerSecond, cfg.WebhookRateBurst),
	})
	return a, nil
}

// connectPostgresPool returns a nil pool for an empty URL. A configured
// database that cannot be reached is an error; the service never falls back
// to memory once DATABASE_URL is set.
func connectPostgresPool(ctx context.Context, url string) (*pgxpool.Pool, error) {
	if url == "" {
		return nil, nil
	}
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// setupLLM wires Bedrock as primary and Gemini as fallback. Either may be
// absent; with neither configured the assistant answers with its apology.
func setupLLM(ctx context.Context, cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) (llm.Client, *llm.GeminiClient, error) {
	var primary, fallback llm.Client
	if cfg.BedrockModelID != "" {
		primary = llm.NewBedrockClient(bedrockruntime.NewFromConfig(awsCfg), cfg.BedrockModelID)
	}

	var gemini *llm.GeminiClient
	if cfg.GeminiAPIKey != "" {
		var err error
		gemini, err = llm.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			return nil, nil, fmt.Errorf("gemini client: %w", err)
		}
		fallback = gemini
	}

	client := llm.NewFallbackClient(primary, fallback, logger)
	if client == nil {
		logger.Warn("no LLM provider configured; replies will use the apology text")
	}
	return client, gemini, nil
}

func setupSender(cfg *appconfig.Config, logger *logging.Logger) messaging.Sender {
	if cfg.TwilioAccountSID == "" || cfg.TwilioAuthToken == "" {
		logger.Warn("twilio credentials missing; outbound messages are only logged")
		return messaging.NewLogSender(logger)
	}
	return messaging.NewTwilioSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioAPIBaseURL, logger)
}

func setupDedup(cfg *appconfig.Config, logger *logging.Logger) (dedup.Store, func()) {
	if cfg.RedisAddr == "" {
		logger.Warn("REDIS_ADDR not set; webhook dedup is process-local")
		return dedup.NewMemoryStore(cfg.DedupTTL), nil
	}
	opts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
	if cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(opts)
	return dedup.NewRedisStore(client, cfg.DedupTTL), func() { _ = client.Close() }
}

func setupArchive(cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) *media.Archive {
	if cfg.MediaBucket == "" {
		return nil
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.AWSEndpointOverride != ""
	})
	return media.NewArchive(client, cfg.MediaBucket, logger)
}

func setupEmail(cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) notify.EmailSender {
	switch cfg.EmailProvider {
	case "ses":
		if s := notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger); s != nil {
			return s
		}
	case "sendgrid":
		if s := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger); s != nil {
			return s
		}
	case "none":
		return nil
	}
	logger.Warn("email provider not configured; booking notifications are only logged", "provider", cfg.EmailProvider)
	return notify.NewStubEmailSender(logger)
}

func setupMetrics() (http.Handler, *metrics.WebhookMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), metrics.NewWebhookMetrics(reg)
}
