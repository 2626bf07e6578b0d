// Package main wires high-level dependencies, exposes the HTTP router, and
// keeps the server lifecycle small. Business logic lives in internal
// services packages.
package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"veridoc/internal/anchor"
	"veridoc/internal/biometric"
	"veridoc/internal/document/store"
	"veridoc/internal/identity"
	"veridoc/internal/issuance"
	issuancemetrics "veridoc/internal/issuance/metrics"
	"veridoc/internal/issuance/tracer"
	"veridoc/internal/platform/config"
	"veridoc/internal/platform/health"
	"veridoc/internal/platform/kafka"
	"veridoc/internal/platform/kafka/producer"
	"veridoc/internal/platform/logger"
	"veridoc/internal/platform/redis"
	"veridoc/internal/secfeature"
	httptransport "veridoc/internal/transport/http"
	"veridoc/internal/verification"
	audit "veridoc/pkg/platform/audit"
	auditkafka "veridoc/pkg/platform/audit/kafka"
	auditpublisher "veridoc/pkg/platform/audit/publisher"
)

// Dev keys used when the environment is test and no key is configured.
// Production refuses to start without real keys.
const (
	devReceiptKey = "dev-receipt-key-change-in-production"
	devFeatureKey = "dev-feature-key-change-in-production"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	log.Info("initializing veridoc",
		"addr", cfg.Addr,
		"environment", string(cfg.Environment),
	)

	// Audit pipeline: Kafka sink when brokers are configured, memory
	// otherwise. The async publisher drains on shutdown.
	var auditStore audit.Store
	var kafkaProducer *producer.Producer
	if cfg.Kafka.Brokers != "" {
		p, err := producer.New(producer.Config{Brokers: cfg.Kafka.Brokers}, log)
		if err != nil {
			log.Error("kafka producer init failed", "error", err)
			os.Exit(1)
		}
		kafkaProducer = p
		auditStore = auditkafka.NewStore(p, cfg.Kafka.AuditTopic)
	} else {
		auditStore = audit.NewMemoryStore()
	}
	publisher := auditpublisher.New(auditStore,
		auditpublisher.WithAsyncBuffer(256),
		auditpublisher.WithLogger(log),
	)
	defer publisher.Close()

	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		log.Error("redis init failed", "error", err)
		os.Exit(1)
	}

	identityClient, err := buildIdentityClient(cfg)
	if err != nil {
		log.Error("identity client init failed", "error", err)
		os.Exit(1)
	}
	matcher, err := buildMatcher(cfg)
	if err != nil {
		log.Error("biometric matcher init failed", "error", err)
		os.Exit(1)
	}
	anchorClient, err := buildAnchorClient(cfg, redisClient)
	if err != nil {
		log.Error("anchor client init failed", "error", err)
		os.Exit(1)
	}

	var db *sql.DB
	var docStore store.Store
	if cfg.PostgresDSN != "" {
		db, err = sql.Open("pgx", cfg.PostgresDSN)
		if err != nil {
			log.Error("postgres open failed", "error", err)
			os.Exit(1)
		}
		docStore = store.NewPostgres(db)
	} else {
		docStore = store.New()
	}

	applier, err := secfeature.NewApplier([]byte(featureKey(cfg)))
	if err != nil {
		log.Error("feature applier init failed", "error", err)
		os.Exit(1)
	}
	verifier, err := secfeature.NewVerifier([]byte(featureKey(cfg)))
	if err != nil {
		log.Error("feature verifier init failed", "error", err)
		os.Exit(1)
	}
	receipts, err := issuance.NewReceiptSigner([]byte(receiptKey(cfg)))
	if err != nil {
		log.Error("receipt signer init failed", "error", err)
		os.Exit(1)
	}

	pipelineMetrics := issuancemetrics.New()
	pipelineTracer := tracer.NewOTel()

	identityService := identity.NewService(identityClient, publisher, identity.WithLogger(log))
	biometricService := biometric.NewService(matcher,
		cfg.Thresholds.BiometricQuality,
		cfg.Thresholds.BiometricMatch,
		publisher,
		biometric.WithLogger(log),
	)

	orchestrator, err := issuance.New(issuance.Config{
		Identity:  identityService,
		Biometric: biometricService,
		Applier:   applier,
		Verifier:  verifier,
		Anchor:    anchorClient,
		Store:     docStore,
		Receipts:  receipts,
		Retry:     issuance.RetryPolicy{MaxAttempts: cfg.Retry.MaxAttempts, Backoff: cfg.Retry.Backoff},
		Validity:  cfg.Validity,
		Audit:     publisher,
		Metrics:   pipelineMetrics,
		Tracer:    pipelineTracer,
		Logger:    log,
	})
	if err != nil {
		log.Error("orchestrator init failed", "error", err)
		os.Exit(1)
	}

	aggregator, err := verification.New(verification.Config{
		Identity: identityService,
		Verifier: verifier,
		Anchor:   anchorClient,
		Store:    docStore,
		Receipts: receipts,
		Audit:    publisher,
		Metrics:  pipelineMetrics,
		Tracer:   pipelineTracer,
		Logger:   log,
	})
	if err != nil {
		log.Error("aggregator init failed", "error", err)
		os.Exit(1)
	}

	healthHandler := health.New(string(cfg.Environment))
	healthHandler.RegisterCheck("anchor", anchorClient.Health)
	if redisClient != nil {
		healthHandler.RegisterCheck("redis", redisClient.Health)
	}
	if db != nil {
		healthHandler.RegisterCheck("postgres", db.PingContext)
	}
	if cfg.Kafka.Brokers != "" {
		healthHandler.RegisterCheck("kafka", kafka.NewHealthChecker(cfg.Kafka.Brokers).Check)
	}

	docHandler := httptransport.NewDocumentHandler(orchestrator, aggregator, docStore, log)
	router := httptransport.NewRouter(docHandler, healthHandler, log)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("starting http server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server gracefully")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}

	if db != nil {
		_ = db.Close()
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
	if kafkaProducer != nil {
		_ = kafkaProducer.Close()
	}

	log.Info("server stopped")
}

// buildIdentityClient selects the real registry client in production and the
// fixture otherwise. The fixture constructor refuses production, so the
// selection cannot silently invert.
func buildIdentityClient(cfg config.Config) (identity.Client, error) {
	if cfg.Environment.IsProduction() {
		return identity.NewHTTPClient(cfg.Registry), nil
	}
	if cfg.Registry.BaseURL != "" {
		return identity.NewHTTPClient(cfg.Registry), nil
	}
	return identity.NewFixtureClient(cfg.Environment)
}

func buildMatcher(cfg config.Config) (biometric.Matcher, error) {
	if cfg.Environment.IsProduction() {
		return biometric.NewHTTPMatcher(cfg.Matcher), nil
	}
	if cfg.Matcher.BaseURL != "" {
		return biometric.NewHTTPMatcher(cfg.Matcher), nil
	}
	return biometric.NewFixtureMatcher(cfg.Environment)
}

func buildAnchorClient(cfg config.Config, redisClient *redis.Client) (anchor.Client, error) {
	if cfg.Environment.IsProduction() {
		return anchor.NewHTTPClient(cfg.Anchor), nil
	}
	if cfg.Anchor.BaseURL != "" {
		return anchor.NewHTTPClient(cfg.Anchor), nil
	}
	var records anchor.RecordStore
	if redisClient != nil {
		records = anchor.NewRedisRecordStore(redisClient, 0)
	} else {
		records = anchor.NewInMemoryRecordStore()
	}
	return anchor.NewLocalSigner(cfg.Environment, records)
}

func receiptKey(cfg config.Config) string {
	if cfg.ReceiptKey != "" {
		return cfg.ReceiptKey
	}
	return devReceiptKey
}

func featureKey(cfg config.Config) string {
	if cfg.FeatureKey != "" {
		return cfg.FeatureKey
	}
	return devFeatureKey
}
