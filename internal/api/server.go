// Package api implements the HTTP Resource API (spec.md §4.11/§6): thin
// JSON/echo adapters over the same core operations the MCP Tool API
// exposes. It must not contain business logic — every handler delegates to
// kbstore.MetadataStore, search.Querier, internal/registry, or an
// orchestrator.Orchestrator obtained through Orchestrators.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	kberrors "github.com/kbserver/kbserver/internal/errors"
	"github.com/kbserver/kbserver/internal/kbstore"
	"github.com/kbserver/kbserver/internal/orchestrator"
	"github.com/kbserver/kbserver/internal/registry"
	"github.com/kbserver/kbserver/internal/search"
)

// Orchestrators resolves the indexing pipeline bound to a knowledge base,
// lazily constructed and cached by the composition root (cmd/kbserver/cmd).
type Orchestrators interface {
	For(kbID string) (*orchestrator.Orchestrator, error)
}

// Server hosts the Resource API's echo instance and its core dependencies.
type Server struct {
	metadata kbstore.MetadataStore
	querier  search.Querier
	registry *registry.Registry
	orchs    Orchestrators

	echo *echo.Echo
}

// NewServer wires the Resource API routes (spec.md §6's representative
// table) against the shared core. orchs may be nil: routes that submit
// indexing jobs then respond 503 rather than panic.
func NewServer(metadata kbstore.MetadataStore, querier search.Querier, reg *registry.Registry, orchs Orchestrators) *Server {
	s := &Server{metadata: metadata, querier: querier, registry: reg, orchs: orchs}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.Logger())
	e.HTTPErrorHandler = s.handleError

	e.GET("/health", s.health)

	kb := e.Group("/api/kb")
	kb.POST("", s.createKB)
	kb.GET("", s.listKBs)
	kb.DELETE("/:name", s.deleteKB)
	kb.GET("/:name/stats", s.kbStats)
	kb.POST("/:name/upload", s.uploadDocument)
	kb.POST("/:name/import", s.importDirectory)
	kb.POST("/:name/index-structural", s.indexStructural)
	kb.POST("/:name/index-semantic", s.indexSemantic)
	kb.GET("/:name/repo-map", s.repoMap)
	kb.POST("/:name/query", s.handleQuery)
	kb.POST("/:name/chat", s.chat)

	projects := e.Group("/api/projects")
	projects.POST("", s.createProject)
	projects.POST("/:id/hooks/:role/enable", s.enableHook)

	jobs := e.Group("/api/jobs")
	jobs.GET("", s.listJobs)
	jobs.GET("/:id", s.getJob)

	s.echo = e
	return s
}

// ListenAndServe runs the Resource API until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.echo.Start(addr)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.echo.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// resolveKB looks up a knowledge base by slug (the {name} path param, per
// spec.md §6's /api/kb/{name} routes).
func (s *Server) resolveKB(ctx context.Context, slug string) (*kbstore.KnowledgeBase, error) {
	kb, err := s.metadata.GetKBBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if kb == nil {
		return nil, kberrors.NotFoundError(kberrors.ErrCodeKBNotFound, "knowledge base not found: "+slug, nil)
	}
	return kb, nil
}

// handleError maps the core error taxonomy (spec.md §7) to the
// {"detail": "<message>"} HTTP failure surface.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	msg := err.Error()

	var kerr *kberrors.KBError
	if errors.As(err, &kerr) {
		msg = kerr.Message
		switch kerr.Category {
		case kberrors.CategoryValidation:
			status = http.StatusBadRequest
		case kberrors.CategoryNotFound:
			status = http.StatusNotFound
		case kberrors.CategoryConflict:
			status = http.StatusConflict
		case kberrors.CategoryDependency:
			status = http.StatusServiceUnavailable
		case kberrors.CategoryIntegrity, kberrors.CategoryFatal:
			status = http.StatusInternalServerError
		}
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		if m, ok := he.Message.(string); ok {
			msg = m
		}
	}

	_ = c.JSON(status, map[string]string{"detail": msg})
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
