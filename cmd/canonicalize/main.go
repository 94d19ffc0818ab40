// Command canonicalize is the batch entry point for the collector-attribution
// canonicalization pipeline: it reads an NDJSON file of raw specimen
// collector text, runs it through classification, atomization,
// normalization, optional NER correction, and canonical-entity matching, and
// writes the resulting entities out as CSV.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/herbarium-data/collector-canon/internal/canonstore"
	"github.com/herbarium-data/collector-canon/internal/canonstore/memstore"
	"github.com/herbarium-data/collector-canon/internal/canonstore/postgres"
	"github.com/herbarium-data/collector-canon/internal/classify"
	"github.com/herbarium-data/collector-canon/internal/config"
	"github.com/herbarium-data/collector-canon/internal/export"
	"github.com/herbarium-data/collector-canon/internal/health"
	"github.com/herbarium-data/collector-canon/internal/nerfallback"
	"github.com/herbarium-data/collector-canon/internal/observe"
	"github.com/herbarium-data/collector-canon/internal/pipeline"
	"github.com/herbarium-data/collector-canon/internal/resilience"
	"github.com/herbarium-data/collector-canon/internal/similarity"
	"github.com/herbarium-data/collector-canon/internal/source/ndjson"
	"github.com/herbarium-data/collector-canon/pkg/provider/llm/openai"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	inputPath := flag.String("input", "", "path to the NDJSON input file (required)")
	outputPath := flag.String("output", "", "path to write the canonicalized CSV output (required)")
	flag.Parse()

	if *inputPath == "" || *outputPath == "" {
		fmt.Fprintln(os.Stderr, "canonicalize: both -input and -output are required")
		return 1
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "canonicalize: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "canonicalize: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	slog.Info("canonicalize starting",
		"config", *configPath,
		"input", *inputPath,
		"output", *outputPath,
		"log_level", cfg.LogLevel,
		"store_backend", cfg.Store.Backend,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Observability ─────────────────────────────────────────────────────────
	shutdownProvider, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "collector-canon"})
	if err != nil {
		slog.Error("failed to initialise observability providers", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownProvider(shutdownCtx); err != nil {
			slog.Error("observability shutdown error", "err", err)
		}
	}()

	metrics := observe.DefaultMetrics()

	// ── Canonical store ───────────────────────────────────────────────────────
	weights := similarity.Weights{
		Edit:        cfg.SimilarityWeights.Edit,
		JaroWinkler: cfg.SimilarityWeights.JaroWinkler,
		Phonetic:    cfg.SimilarityWeights.Phonetic,
	}

	store, closeStore, err := buildStore(ctx, cfg, weights)
	if err != nil {
		slog.Error("failed to build canonical store", "err", err)
		return 1
	}
	defer closeStore()

	if err := store.CreateSchema(ctx); err != nil {
		slog.Error("failed to prepare store schema", "err", err)
		return 1
	}

	// ── NER fallback adapter ──────────────────────────────────────────────────
	nerAdapter, err := buildNERAdapter(cfg)
	if err != nil {
		slog.Error("failed to build NER adapter", "err", err)
		return 1
	}

	// ── Health server ─────────────────────────────────────────────────────────
	var httpServer *http.Server
	if cfg.ListenAddr != "" {
		httpServer = startHealthServer(cfg.ListenAddr, metrics, store)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				slog.Error("health server shutdown error", "err", err)
			}
		}()
	}

	// ── Pipeline ──────────────────────────────────────────────────────────────
	classifier := classify.New(classify.Config{ClassifyAllCapsAsInstitution: cfg.ClassifyAllCapsAsInstitution})
	driver := pipeline.New(classifier, nerAdapter, store, metrics, pipeline.Config{
		ConfidenceThreshold: cfg.ConfidenceThreshold,
		NERTriggerThreshold: cfg.NERTriggerThreshold,
		NERTimeout:          time.Duration(cfg.NERTimeoutSeconds * float64(time.Second)),
		BatchSize:           cfg.BatchSize,
	})

	src, err := ndjson.Open(*inputPath)
	if err != nil {
		slog.Error("failed to open input", "err", err)
		return 1
	}
	defer src.Close()

	slog.Info("pipeline run starting")
	stats, err := driver.Run(ctx, src)
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("pipeline run failed", "err", err)
		return 1
	}
	slog.Info("pipeline run complete",
		"records_processed", stats.RecordsProcessed,
		"atoms_produced", stats.AtomsProduced,
		"entities_created", stats.EntitiesCreated,
		"entities_matched", stats.EntitiesMatched,
		"records_discarded", stats.RecordsDiscarded,
		"ner_invocations", stats.NERInvocations,
		"store_errors", stats.StoreErrors,
	)

	// ── Export ────────────────────────────────────────────────────────────────
	entities, err := store.All(ctx)
	if err != nil {
		slog.Error("failed to load entities for export", "err", err)
		return 1
	}

	out, err := os.Create(*outputPath)
	if err != nil {
		slog.Error("failed to create output file", "err", err)
		return 1
	}
	defer out.Close()

	if err := export.WriteCSV(out, entities); err != nil {
		slog.Error("failed to write CSV export", "err", err)
		return 1
	}

	slog.Info("export complete", "entities", len(entities), "output", *outputPath)
	return 0
}

// buildStore constructs the canonstore.Store backend named by cfg.Store.Backend.
// The returned close func releases any held resources (a no-op for memstore).
func buildStore(ctx context.Context, cfg *config.Config, weights similarity.Weights) (canonstore.Store, func(), error) {
	switch cfg.Store.Backend {
	case config.StoreBackendPostgres:
		st, err := postgres.NewStore(ctx, cfg.Store.PostgresDSN, weights)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres store: %w", err)
		}
		return st, st.Close, nil
	default:
		return memstore.New(weights), func() {}, nil
	}
}

// buildNERAdapter constructs the nerfallback.Adapter named by cfg.NER. When
// the fallback is disabled, nerfallback.NullAdapter is used and low-confidence
// records keep their rule-based classification. When cfg.NER.FallbackModel is
// also set, the returned adapter is a nerfallback.FallbackAdapter chaining
// the primary model to the fallback model, each behind its own circuit
// breaker, so a rate-limited or down primary fails over automatically
// instead of immediately degrading to "rule result stands".
func buildNERAdapter(cfg *config.Config) (nerfallback.Adapter, error) {
	if !cfg.NER.Enabled {
		slog.Debug("NER fallback disabled, using NullAdapter")
		return nerfallback.NullAdapter{}, nil
	}

	primary, err := buildLLMAdapter(cfg.NER.Backend, cfg.NER.APIKey, cfg.NER.Model, cfg.NER.BaseURL)
	if err != nil {
		return nil, err
	}

	if cfg.NER.FallbackModel == "" {
		var adapter nerfallback.Adapter = primary
		if cfg.NER.CircuitBreaker {
			adapter = nerfallback.NewCircuitBreakerAdapter(primary, resilience.CircuitBreakerConfig{
				Name: "ner-" + cfg.NER.Backend + "-" + cfg.NER.Model,
			})
			slog.Debug("NER adapter wrapped with circuit breaker", "backend", cfg.NER.Backend, "model", cfg.NER.Model)
		}
		slog.Info("NER fallback enabled", "backend", cfg.NER.Backend, "model", cfg.NER.Model)
		return adapter, nil
	}

	fallbackBaseURL := cfg.NER.FallbackBaseURL
	if fallbackBaseURL == "" {
		fallbackBaseURL = cfg.NER.BaseURL
	}
	secondary, err := buildLLMAdapter(cfg.NER.Backend, cfg.NER.APIKey, cfg.NER.FallbackModel, fallbackBaseURL)
	if err != nil {
		return nil, fmt.Errorf("fallback model: %w", err)
	}

	// FallbackAdapter gives each entry its own breaker regardless of
	// cfg.NER.CircuitBreaker: a chain with no per-entry breaker would retry a
	// genuinely down primary on every record before ever reaching the
	// fallback, defeating the point of configuring one.
	chain := nerfallback.NewFallbackAdapter(primary, cfg.NER.Model, resilience.CircuitBreakerConfig{
		Name: "ner-" + cfg.NER.Backend + "-" + cfg.NER.Model,
	})
	chain.AddFallback(cfg.NER.FallbackModel, secondary, resilience.CircuitBreakerConfig{
		Name: "ner-" + cfg.NER.Backend + "-" + cfg.NER.FallbackModel,
	})

	slog.Info("NER fallback enabled with fallback chain",
		"backend", cfg.NER.Backend, "model", cfg.NER.Model, "fallback_model", cfg.NER.FallbackModel)
	return chain, nil
}

// buildLLMAdapter constructs a single nerfallback.LLMAdapter backed by the
// named provider backend and model.
func buildLLMAdapter(backend, apiKey, model, baseURL string) (*nerfallback.LLMAdapter, error) {
	switch backend {
	case "openai", "":
		provider, err := openai.New(apiKey, model, openai.WithBaseURL(baseURL))
		if err != nil {
			return nil, fmt.Errorf("openai provider: %w", err)
		}
		return nerfallback.NewLLMAdapter(provider), nil
	default:
		return nil, fmt.Errorf("unsupported NER backend %q", backend)
	}
}

// startHealthServer registers /healthz and /readyz and starts
// serving them in the background. A store readiness checker is registered
// so /readyz reflects whether the canonical store is reachable.
func startHealthServer(addr string, metrics *observe.Metrics, store canonstore.Store) *http.Server {
	mux := http.NewServeMux()

	h := health.New(health.Checker{
		Name: "store",
		Check: func(ctx context.Context) error {
			_, err := store.All(ctx)
			return err
		},
	})
	h.Register(mux)

	handler := observe.Middleware(metrics)(mux)
	srv := &http.Server{Addr: addr, Handler: handler}

	go func() {
		slog.Info("health server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("health server error", "err", err)
		}
	}()

	return srv
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
