package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kbserver/kbserver/internal/api"
	kberrors "github.com/kbserver/kbserver/internal/errors"
	"github.com/kbserver/kbserver/internal/kbstore"
	"github.com/kbserver/kbserver/internal/mcp"
	"github.com/kbserver/kbserver/internal/orchestrator"
	"github.com/kbserver/kbserver/internal/parser"
	"github.com/kbserver/kbserver/internal/preflight"
	"github.com/kbserver/kbserver/internal/profiling"
	"github.com/kbserver/kbserver/internal/scanner"
	"github.com/kbserver/kbserver/internal/watcher"
)

var (
	serveDebug       bool
	serveTransport   string
	serveCPUProfile  string
	serveTrace       string
	serveNoPreflight bool
)

// newServeCmd builds the `serve` command: kbserver's long-running process,
// exposing every knowledge base through the MCP Tool API (stdio/SSE) and the
// HTTP Resource API, and keeping watched projects' semantic index in sync
// (spec.md §4.6, §4.11).
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the kbserver process",
		Long: `serve loads Config.DataDir's knowledge bases and runs until
interrupted, serving hybrid search over the MCP Tool API and the HTTP
Resource API, and re-indexing watched projects as their files change.`,
		RunE: runServe,
	}
	cmd.Flags().BoolVar(&serveDebug, "debug", false, "Enable debug logging to stderr in addition to the log file")
	cmd.Flags().StringVar(&serveTransport, "transport", "", "Override Config.Server.Transport (stdio)")
	cmd.Flags().StringVar(&serveCPUProfile, "cpu-profile", "", "Write a CPU profile to this path for the life of the process")
	cmd.Flags().StringVar(&serveTrace, "trace", "", "Write an execution trace to this path for the life of the process")
	cmd.Flags().BoolVar(&serveNoPreflight, "skip-preflight", false, "Skip the disk/memory/embedder preflight checks")
	return cmd
}

// kbRuntimes lazily builds and caches the per-KB indexing pipeline: a KB's
// BM25Index/VectorStore are fixed at open time (internal/registry), so its
// SemanticIndexer and Orchestrator are cached alongside them rather than
// rebuilt per job.
type kbRuntimes struct {
	app *app

	mu    sync.Mutex
	orchs map[string]*orchestrator.Orchestrator
}

func newKBRuntimes(a *app) *kbRuntimes {
	return &kbRuntimes{app: a, orchs: make(map[string]*orchestrator.Orchestrator)}
}

func (k *kbRuntimes) For(kbID string) (*orchestrator.Orchestrator, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if o, ok := k.orchs[kbID]; ok {
		return o, nil
	}

	bm25, err := k.app.registry.BM25(kbID)
	if err != nil {
		return nil, fmt.Errorf("open bm25 index: %w", err)
	}
	vector, err := k.app.registry.Vector(kbID)
	if err != nil {
		return nil, fmt.Errorf("open vector store: %w", err)
	}
	sc, err := scanner.New()
	if err != nil {
		return nil, fmt.Errorf("create scanner: %w", err)
	}

	semantic := orchestrator.NewSemanticIndexer(k.app.metadata, bm25, vector, k.app.embedder, sc)
	structural := orchestrator.NewStructuralIndexer(k.app.metadata, parser.New(parser.Config{}), sc)
	o := orchestrator.New(k.app.queue, structural, semantic)

	k.orchs[kbID] = o
	return o, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	cleanupLog, err := setupLogging(a.cfg.Server.LogLevel, serveDebug)
	if err != nil {
		return err
	}
	defer cleanupLog()

	stopProfiling, err := startProfiling(serveCPUProfile, serveTrace)
	if err != nil {
		return err
	}
	defer stopProfiling()

	if !serveNoPreflight {
		if err := runPreflight(a.cfg.DataDir); err != nil {
			return err
		}
	}

	transport := a.cfg.Server.Transport
	if serveTransport != "" {
		transport = serveTransport
	}
	if transport == "" {
		transport = "stdio"
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runtimes := newKBRuntimes(a)

	var wg sync.WaitGroup

	stopWatchers, err := startProjectWatchers(ctx, a, runtimes)
	if err != nil {
		return fmt.Errorf("start watchers: %w", err)
	}
	defer stopWatchers()

	resourceAPI := api.NewServer(a.metadata, a.engine, a.registry, runtimes)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := resourceAPI.ListenAndServe(ctx, a.cfg.Server.ResourcePort); err != nil {
			slog.Error("resource API server stopped", slog.String("error", err.Error()))
		}
	}()

	mcpServer, err := mcp.NewServer(a.metadata, a.engine, nil)
	if err != nil {
		return fmt.Errorf("create mcp server: %w", err)
	}

	err = mcpServer.Serve(ctx, transport)
	stop()
	wg.Wait()
	return err
}

// startProjectWatchers starts one HybridWatcher per bound project, wiring
// file events to the owning KB's semantic re-index (spec.md §4.6). Returns
// a function that stops every started watcher.
func startProjectWatchers(ctx context.Context, a *app, runtimes *kbRuntimes) (func(), error) {
	projects, err := a.metadata.ListProjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}

	debounce, err := time.ParseDuration(a.cfg.Watcher.DebounceWindow)
	if err != nil {
		debounce = 2 * time.Second
	}
	var watchers []*watcher.HybridWatcher
	var wg sync.WaitGroup

	for _, project := range projects {
		kbs, err := a.metadata.ListProjectKBs(ctx, project.ID)
		if err != nil {
			slog.Warn("serve: list project kbs failed", slog.String("project", project.Name), slog.String("error", err.Error()))
			continue
		}
		semanticKB, ok := kbs[kbstore.RoleIndex]
		if !ok {
			continue
		}

		w, err := watcher.NewHybridWatcher(watcher.Options{DebounceWindow: debounce}.WithDefaults())
		if err != nil {
			slog.Warn("serve: create watcher failed", slog.String("project", project.Name), slog.String("error", err.Error()))
			continue
		}
		if err := w.Start(ctx, project.Path); err != nil {
			slog.Warn("serve: start watcher failed", slog.String("project", project.Name), slog.String("error", err.Error()))
			continue
		}
		watchers = append(watchers, w)

		wg.Add(1)
		go func(kbID, projectPath string) {
			defer wg.Done()
			watchProjectEvents(ctx, w, runtimes, kbID, projectPath)
		}(semanticKB.ID, project.Path)
	}

	stop := func() {
		for _, w := range watchers {
			_ = w.Stop()
		}
		wg.Wait()
	}
	return stop, nil
}

func watchProjectEvents(ctx context.Context, w *watcher.HybridWatcher, runtimes *kbRuntimes, kbID, projectPath string) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events():
			if !ok {
				return
			}
			o, err := runtimes.For(kbID)
			if err != nil {
				slog.Warn("serve: orchestrator unavailable", slog.String("kb", kbID), slog.String("error", err.Error()))
				continue
			}
			if _, err := o.ReindexFile(ctx, kbID, projectPath, ev.Path, nil); err != nil {
				slog.Warn("serve: reindex submit failed", slog.String("path", ev.Path), slog.String("error", err.Error()))
			}
		case err, ok := <-w.Errors():
			if !ok {
				return
			}
			slog.Warn("serve: watcher error", slog.String("error", err.Error()))
		}
	}
}

// runPreflight runs disk/memory/file-descriptor/embedder checks against
// dataDir before serve starts accepting traffic (spec.md's ambient startup
// contract). Results are cached behind preflight's marker file so a restart
// within the same data directory doesn't re-check every time; a failed required
// check (disk space, memory, write permissions, file descriptors) aborts
// startup. Every failed check is logged; the embedder checks are not required
// and report only warnings, which are neither logged nor fatal.
func runPreflight(dataDir string) error {
	if !preflight.NeedsCheck(dataDir) {
		return nil
	}

	checker := preflight.New()
	results := checker.RunAll(context.Background(), dataDir)

	for _, r := range results {
		if r.Status == preflight.StatusFail {
			slog.Warn("preflight check failed", slog.String("check", r.Name), slog.String("message", r.Message))
		}
	}

	if checker.HasCriticalFailures(results) {
		return kberrors.FatalError(kberrors.ErrCodeDiskFull, "preflight checks failed: "+checker.SummaryStatus(results), nil)
	}

	return preflight.MarkPassed(dataDir)
}

// startProfiling wires --cpu-profile/--trace to internal/profiling for the
// life of the serve process. Either or both may be empty, in which case
// the returned cleanup is a no-op.
func startProfiling(cpuProfilePath, tracePath string) (cleanup func(), err error) {
	if cpuProfilePath == "" && tracePath == "" {
		return func() {}, nil
	}

	p := profiling.NewProfiler()
	var stops []func()

	if cpuProfilePath != "" {
		stopCPU, err := p.StartCPU(cpuProfilePath)
		if err != nil {
			return nil, fmt.Errorf("start cpu profile: %w", err)
		}
		stops = append(stops, stopCPU)
	}

	if tracePath != "" {
		stopTrace, err := p.StartTrace(tracePath)
		if err != nil {
			for _, s := range stops {
				s()
			}
			return nil, fmt.Errorf("start trace: %w", err)
		}
		stops = append(stops, stopTrace)
	}

	return func() {
		for _, s := range stops {
			s()
		}
	}, nil
}
