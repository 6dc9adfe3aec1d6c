// cmd/worker-manager/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"listing-workers/internal/common/aws"
	"listing-workers/internal/common/camunda"
	"listing-workers/internal/common/completion"
	"listing-workers/internal/common/config"
	"listing-workers/internal/common/database"
	"listing-workers/internal/common/kvstore"
	"listing-workers/internal/common/logger"
	"listing-workers/internal/common/observability"
	"listing-workers/internal/listing/consensus"
	"listing-workers/internal/listing/equivalence"
	"listing-workers/internal/listing/ledger"
	"listing-workers/internal/listing/mandatory"
	"listing-workers/internal/listing/pipeline"
	"listing-workers/internal/listing/resolver"
	"listing-workers/internal/listing/sizing"
	"listing-workers/pkg/registry"

	cm "listing-workers/internal/workers/listing/classify-mandatory"
	ft "listing-workers/internal/workers/listing/fill-template"
)

var connectRetry = &camunda.RetryConfig{MaxRetries: 15, BaseDelay: 2 * time.Second, MaxDelay: 30 * time.Second}

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logger.New("info", "console")
		boot.Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()

	// Wrap zap logger with our logger interface
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting worker manager...",
		zap.String("app", cfg.App.Name),
		zap.String("version", cfg.App.Version),
	)

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init Zeebe Client with retry ---
	zeebe, err := camunda.Connect(ctx, camunda.ConfigFrom(cfg.Camunda), log)
	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	zapLog.Info("Zeebe client connected successfully")

	// --- Init Redis with retry ---
	redis, err := database.NewRedis(cfg.Database.Redis)
	if err != nil {
		zapLog.Fatal("redis client failed", zap.Error(err))
	}
	if err := camunda.Retry(ctx, connectRetry, log, "Redis connection", redis.Ping); err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redis.Close()
	zapLog.Info("Redis connected successfully")

	kv := kvstore.NewRedisStore(redis.Client, cfg.Database.Redis.KeyPrefix)

	// --- Completion Service ---
	svc, err := newCompletionService(ctx, cfg)
	if err != nil {
		zapLog.Fatal("completion service init failed", zap.Error(err))
	}
	model := cfg.APIs.GenAI.Model

	runner := consensus.NewRunner(svc, log, consensus.WithCache(consensus.NewCache(kv, log)))
	dispatcher := consensus.NewDispatcher(runner, cfg.Consensus.Concurrency)
	budget := consensus.PhaseBudget{
		Phase1Replies:    cfg.Consensus.Phase1Replies,
		Phase1MaxRetries: cfg.Consensus.Phase1MaxRetries,
		Phase2Replies:    cfg.Consensus.Phase2Replies,
		Phase2MaxRetries: cfg.Consensus.Phase2MaxRetries,
	}

	// --- Attribute registry ---
	reg, err := registry.LoadRegistry(cfg.Registry.Path)
	if err != nil {
		if !os.IsNotExist(err) {
			zapLog.Fatal("attribute registry load failed", zap.String("path", cfg.Registry.Path), zap.Error(err))
		}
		zapLog.Warn("attribute registry not found, using built-in aliases only", zap.String("path", cfg.Registry.Path))
		reg = registry.New()
	}
	zapLog.Info("Attribute registry loaded",
		zap.Int("attributes", len(reg.Attributes)),
		zap.Int("aliasVersion", reg.AliasTable().Version),
	)

	classifier := mandatory.NewClassifier(mandatory.NewStore(kv), dispatcher, budget, model, log)

	deps := resolver.Deps{
		Dispatcher:  dispatcher,
		Sizes:       sizing.NewEngine(nil),
		Categories:  sizing.NewCategoryClassifier(kv, runner, model, log),
		Equivalence: equivalence.New(kv, runner, budget, model, log),
		Budget:      budget,
		Text:        resolver.TextBudget{Replies: cfg.Consensus.TextReplies, MaxRetries: cfg.Consensus.TextMaxRetries},
		Pricing:     resolver.Pricing{Rates: cfg.Pricing.Rates, Suffix: cfg.Pricing.Suffix},
		Model:       model,
		Logger:      log,
	}

	opts := []pipeline.Option{
		pipeline.WithClassifier(classifier),
		pipeline.WithObservability(obs),
	}

	// --- Failure ledger: PostgreSQL + SNS ---
	if cfg.Ledger.Enabled {
		pg, err := database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			zapLog.Fatal("postgres client failed", zap.Error(err))
		}
		if err := camunda.Retry(ctx, connectRetry, log, "PostgreSQL connection", pg.Ping); err != nil {
			zapLog.Fatal("postgres failed after retries", zap.Error(err))
		}
		defer pg.Close()
		zapLog.Info("PostgreSQL connected successfully")

		var notifier ledger.Notifier
		if cfg.Ledger.TopicARN != "" {
			sns, err := aws.NewSNSClient(ctx, cfg.Ledger.Region, cfg.Ledger.TopicARN)
			if err != nil {
				zapLog.Fatal("sns client failed", zap.Error(err))
			}
			notifier = ledger.NewSNSNotifier(sns)
		}
		store := ledger.NewPostgresStore(pg.DB)
		if err := store.Migrate(ctx); err != nil {
			zapLog.Fatal("ledger schema migration failed", zap.Error(err))
		}
		opts = append(opts, pipeline.WithLedger(store, notifier))
	}

	p := pipeline.New(resolver.DefaultRegistry(deps), log, opts...)

	// --- Register workers ---
	workers := camunda.NewWorkers(zeebe.Zeebe(), log)

	ftCfg := config.GetWorkerConfig(cfg, ft.TaskType)
	workers.Start(ft.TaskType, ftCfg, ft.NewHandler(
		&ft.Config{
			Timeout:      config.GetDuration(ftCfg.Timeout),
			DefaultSheet: ft.LoadConfig().DefaultSheet,
		},
		p, reg, log,
	))

	cmCfg := config.GetWorkerConfig(cfg, cm.TaskType)
	workers.Start(cm.TaskType, cmCfg, cm.NewHandler(
		&cm.Config{Timeout: config.GetDuration(cmCfg.Timeout)},
		classifier, log,
	))
	zapLog.Info("Workers registered", zap.Strings("taskTypes", workers.Running()))

	// --- Health & Metrics Server ---
	mux := http.NewServeMux()
	mux.Handle("/debug/pprof/", http.DefaultServeMux)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, "healthy")
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := zeebe.HealthCheck(ctx); err != nil {
			writeStatus(w, http.StatusServiceUnavailable, "zeebe unavailable")
			return
		}
		if err := redis.Ping(ctx); err != nil {
			writeStatus(w, http.StatusServiceUnavailable, "redis unavailable")
			return
		}
		writeStatus(w, http.StatusOK, "ready")
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{Addr: cfg.App.MetricsAddr, Handler: mux}
	go func() {
		zapLog.Info("Health/Metrics server listening", zap.String("addr", cfg.App.MetricsAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping workers...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	workers.Close()
	if err := kv.Sync(shutdownCtx); err != nil {
		zapLog.Error("Error syncing store", zap.Error(err))
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping metrics server", zap.Error(err))
	}
	if err := zeebe.Close(); err != nil {
		zapLog.Error("Error closing Zeebe client", zap.Error(err))
	}
}

func newCompletionService(ctx context.Context, cfg *config.Config) (completion.Service, error) {
	g := cfg.APIs.GenAI
	switch g.Provider {
	case "gemini":
		return completion.NewGeminiService(ctx, g.APIKey, g.Model)
	case "http":
		return completion.NewHTTPService(g.BaseURL, g.Model, config.GetDuration(g.Timeout)), nil
	default:
		return nil, fmt.Errorf("unsupported completion provider %q", g.Provider)
	}
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{
		"status": status,
		"time":   time.Now().Format(time.RFC3339),
	})
}
