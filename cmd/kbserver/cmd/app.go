package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/kbserver/kbserver/internal/config"
	"github.com/kbserver/kbserver/internal/embed"
	"github.com/kbserver/kbserver/internal/jobqueue"
	"github.com/kbserver/kbserver/internal/kbstore"
	"github.com/kbserver/kbserver/internal/logging"
	"github.com/kbserver/kbserver/internal/orchestrator"
	"github.com/kbserver/kbserver/internal/parser"
	"github.com/kbserver/kbserver/internal/registry"
	"github.com/kbserver/kbserver/internal/scanner"
	"github.com/kbserver/kbserver/internal/search"
	"github.com/kbserver/kbserver/internal/telemetry"
)

// app bundles the composition-root dependencies every subcommand needs:
// config, metadata store, index registry, embedder, and the hybrid query
// engine. Close tears everything down in reverse order.
type app struct {
	cfg      *config.Config
	metadata kbstore.MetadataStore
	registry *registry.Registry
	embedder embed.Embedder
	engine   *search.Engine
	queue    *jobqueue.Queue
	metrics  *telemetry.QueryMetrics
}

// newApp loads Config (applying --data-dir if set), opens the metadata
// store, and wires the index registry + embedder + query engine used by
// every subcommand (spec.md §4.11: one process, one data root, many KBs).
func newApp() (*app, error) {
	dir := dataDirFlag
	if dir == "" {
		dir, _ = os.Getwd()
	}

	cfg, err := config.Load(dir)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if dataDirFlag != "" {
		cfg.DataDir = dataDirFlag
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	metadata, err := kbstore.NewSQLiteStore(filepath.Join(cfg.DataDir, "metadata.db"))
	if err != nil {
		return nil, fmt.Errorf("open metadata store: %w", err)
	}

	embedder, err := embed.NewEmbedder(context.Background(), embed.ProviderType(cfg.Embeddings.Provider), cfg.Embeddings.Model)
	if err != nil {
		_ = metadata.Close()
		return nil, fmt.Errorf("create embedder: %w", err)
	}

	reg := registry.New(cfg.DataDir, metadata, cfg.Search.BM25Backend)
	queue := jobqueue.New(metadata, cfg.Performance.IndexWorkers)

	// Query telemetry is local-only observability (spec.md's ambient stack),
	// not a feature surface: failures to init it shouldn't block startup.
	var metrics *telemetry.QueryMetrics
	if err := telemetry.InitTelemetrySchema(metadata.DB()); err == nil {
		if metricsStore, err := telemetry.NewSQLiteMetricsStore(metadata.DB()); err == nil {
			metrics = telemetry.NewQueryMetrics(metricsStore)
		}
	}

	engine := search.NewEngine(metadata, reg, embedder, &search.NoOpReranker{})
	if metrics != nil {
		engine = engine.WithMetrics(metrics)
	}

	return &app{
		cfg:      cfg,
		metadata: metadata,
		registry: reg,
		embedder: embedder,
		engine:   engine,
		queue:    queue,
		metrics:  metrics,
	}, nil
}

// Close flushes the registry and closes the metadata store. Safe to call
// even if the app failed to fully initialize.
func (a *app) Close() error {
	var firstErr error
	if a.metrics != nil {
		if err := a.metrics.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.registry != nil {
		if err := a.registry.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.embedder != nil {
		if err := a.embedder.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.metadata != nil {
		if err := a.metadata.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// setupLogging wires file-based structured logging per Config.Server.LogLevel,
// matching the teacher's file-first (stderr-silent unless debug) convention
// so stdio MCP transport framing is never polluted by log lines.
func setupLogging(level string, debug bool) (func(), error) {
	logCfg := logging.DefaultConfig()
	if debug {
		logCfg = logging.DebugConfig()
	} else if level != "" {
		logCfg.Level = level
	}
	logCfg.WriteToStderr = debug

	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return nil, fmt.Errorf("setup logging: %w", err)
	}
	slog.SetDefault(logger)
	return cleanup, nil
}

// waitForJob polls store for job's terminal state, since one-shot CLI
// commands (unlike serve's long-running queue) must block until the
// submitted job finishes before the process exits.
func waitForJob(ctx context.Context, store kbstore.MetadataStore, jobID string) (*kbstore.Job, error) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		job, err := store.GetJob(ctx, jobID)
		if err != nil {
			return nil, fmt.Errorf("get job: %w", err)
		}
		if job == nil {
			return nil, fmt.Errorf("job %s disappeared", jobID)
		}
		switch job.State {
		case kbstore.JobCompleted, kbstore.JobFailed, kbstore.JobCancelled:
			return job, nil
		}

		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}

// buildOrchestrator constructs a one-shot Orchestrator for kbID, for CLI
// commands (import, reindex) that don't keep a long-lived kbRuntimes cache
// the way serve does.
func buildOrchestrator(a *app, kbID string) (*orchestrator.Orchestrator, error) {
	bm25, err := a.registry.BM25(kbID)
	if err != nil {
		return nil, fmt.Errorf("open bm25 index: %w", err)
	}
	vector, err := a.registry.Vector(kbID)
	if err != nil {
		return nil, fmt.Errorf("open vector store: %w", err)
	}
	sc, err := scanner.New()
	if err != nil {
		return nil, fmt.Errorf("create scanner: %w", err)
	}

	semantic := orchestrator.NewSemanticIndexer(a.metadata, bm25, vector, a.embedder, sc)
	structural := orchestrator.NewStructuralIndexer(a.metadata, parser.New(parser.Config{}), sc)
	return orchestrator.New(a.queue, structural, semantic), nil
}
