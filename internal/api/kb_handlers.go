package api

import (
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	kberrors "github.com/kbserver/kbserver/internal/errors"
	"github.com/kbserver/kbserver/internal/kbstore"
	"github.com/kbserver/kbserver/internal/orchestrator"
	"github.com/kbserver/kbserver/internal/search"
)

// createKBRequest is POST /api/kb's body: `{name, kb_type, description}`.
type createKBRequest struct {
	Name        string `json:"name"`
	KBType      string `json:"kb_type"`
	Description string `json:"description"`
	Dimension   int    `json:"dimension"`
}

func (s *Server) createKB(c echo.Context) error {
	var req createKBRequest
	if err := c.Bind(&req); err != nil {
		return kberrors.ValidationError("invalid request body", err)
	}
	if req.Name == "" {
		return kberrors.ValidationError("name is required", nil)
	}

	if existing, err := s.metadata.GetKBByName(c.Request().Context(), req.Name); err == nil && existing != nil {
		return kberrors.ConflictError(kberrors.ErrCodeDuplicateKBName, "a knowledge base named "+req.Name+" already exists", nil)
	}

	kbType := kbstore.KBTypeGeneric
	if req.KBType != "" {
		kbType = kbstore.KBType(req.KBType)
	}

	kb := &kbstore.KnowledgeBase{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Slug:        kbstore.Slugify(req.Name),
		Type:        kbType,
		Description: req.Description,
		Dimension:   req.Dimension,
	}
	if err := s.metadata.CreateKB(c.Request().Context(), kb); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, map[string]string{"slug": kb.Slug})
}

func (s *Server) listKBs(c echo.Context) error {
	kbs, err := s.metadata.ListKBs(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, kbs)
}

func (s *Server) deleteKB(c echo.Context) error {
	kb, err := s.resolveKB(c.Request().Context(), c.Param("name"))
	if err != nil {
		return err
	}
	if err := s.metadata.DeleteKB(c.Request().Context(), kb.ID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) kbStats(c echo.Context) error {
	kb, err := s.resolveKB(c.Request().Context(), c.Param("name"))
	if err != nil {
		return err
	}
	stats, err := s.registry.Stats(kb.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stats)
}

// uploadDocument handles a multipart file upload, ingesting it through the
// same path the `ingest_document` MCP tool uses.
func (s *Server) uploadDocument(c echo.Context) error {
	kb, err := s.resolveKB(c.Request().Context(), c.Param("name"))
	if err != nil {
		return err
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return kberrors.ValidationError("file field is required", err)
	}
	f, err := fileHeader.Open()
	if err != nil {
		return err
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		return err
	}

	o, err := s.orchestratorFor(kb.ID)
	if err != nil {
		return err
	}
	contentType := kbstore.ContentTypeText
	if err := o.Semantic.IndexDocument(c.Request().Context(), kb.ID, fileHeader.Filename, content, contentType, "", fileHeader.Filename); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, map[string]string{"filename": fileHeader.Filename})
}

// importDirectoryRequest is POST /api/kb/{name}/import's body.
type importDirectoryRequest struct {
	DirectoryPath string   `json:"directory_path"`
	FileTypes     []string `json:"file_types"`
}

func (s *Server) importDirectory(c echo.Context) error {
	kb, err := s.resolveKB(c.Request().Context(), c.Param("name"))
	if err != nil {
		return err
	}
	var req importDirectoryRequest
	if err := c.Bind(&req); err != nil {
		return kberrors.ValidationError("invalid request body", err)
	}
	if req.DirectoryPath == "" {
		return kberrors.ValidationError("directory_path is required", nil)
	}

	o, err := s.orchestratorFor(kb.ID)
	if err != nil {
		return err
	}
	job, err := o.SubmitSemantic(c.Request().Context(), kb.ID, req.DirectoryPath, orchestrator.SelectiveParams{Selective: false}, nil)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, job)
}

// indexStructuralRequest is POST /api/kb/{name}/index-structural's body.
type indexStructuralRequest struct {
	ProjectPath string `json:"project_path"`
	TokenBudget int    `json:"token_budget"`
}

func (s *Server) indexStructural(c echo.Context) error {
	kb, err := s.resolveKB(c.Request().Context(), c.Param("name"))
	if err != nil {
		return err
	}
	var req indexStructuralRequest
	if err := c.Bind(&req); err != nil {
		return kberrors.ValidationError("invalid request body", err)
	}

	o, err := s.orchestratorFor(kb.ID)
	if err != nil {
		return err
	}
	job, err := o.SubmitStructural(c.Request().Context(), kb.ID, req.ProjectPath, req.TokenBudget)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, job)
}

// indexSemanticRequest is POST /api/kb/{name}/index-semantic's body.
type indexSemanticRequest struct {
	ProjectPath      string `json:"project_path"`
	Selective        bool   `json:"selective"`
	CodeStructureKB  string `json:"code_structure_kb"`
}

func (s *Server) indexSemantic(c echo.Context) error {
	kb, err := s.resolveKB(c.Request().Context(), c.Param("name"))
	if err != nil {
		return err
	}
	var req indexSemanticRequest
	if err := c.Bind(&req); err != nil {
		return kberrors.ValidationError("invalid request body", err)
	}

	params := orchestrator.SelectiveParams{Selective: req.Selective, CodeStructureKBID: req.CodeStructureKB}

	o, err := s.orchestratorFor(kb.ID)
	if err != nil {
		return err
	}
	job, err := o.SubmitSemantic(c.Request().Context(), kb.ID, req.ProjectPath, params, nil)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, job)
}

func (s *Server) repoMap(c echo.Context) error {
	kb, err := s.resolveKB(c.Request().Context(), c.Param("name"))
	if err != nil {
		return err
	}
	rm, err := s.metadata.GetRepoMap(c.Request().Context(), kb.ID)
	if err != nil {
		return err
	}
	if rm == nil {
		return c.JSON(http.StatusOK, map[string]any{"text": "", "token_count": 0})
	}
	return c.JSON(http.StatusOK, rm)
}

// queryRequest is POST /api/kb/{name}/query's body, mirroring
// search_knowledge_base's MCP parameters.
type queryRequest struct {
	Query     string `json:"query"`
	K         int    `json:"k"`
	UseVector *bool  `json:"use_vector"`
	UseBM25   bool   `json:"use_bm25"`
	UseRerank bool   `json:"use_rerank"`
}

func (s *Server) handleQuery(c echo.Context) error {
	kb, err := s.resolveKB(c.Request().Context(), c.Param("name"))
	if err != nil {
		return err
	}
	var req queryRequest
	if err := c.Bind(&req); err != nil {
		return kberrors.ValidationError("invalid request body", err)
	}

	results, err := s.querier.Query(c.Request().Context(), kb.ID, req.Query, search.Options{
		UseVector: req.UseVector,
		UseBM25:   req.UseBM25,
		UseRerank: req.UseRerank,
		K:         req.K,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, results)
}

// chatRequest is POST /api/kb/{name}/chat's body: retrieval only, the
// answer itself is delegated to the caller's own LLM (spec.md §6).
type chatRequest struct {
	Message     string `json:"message"`
	ContextSize int    `json:"context_size"`
}

func (s *Server) chat(c echo.Context) error {
	kb, err := s.resolveKB(c.Request().Context(), c.Param("name"))
	if err != nil {
		return err
	}
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return kberrors.ValidationError("invalid request body", err)
	}
	k := req.ContextSize
	if k <= 0 {
		k = 5
	}

	results, err := s.querier.Query(c.Request().Context(), kb.ID, req.Message, search.Options{K: k})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"context": results, "sources": sourcesOf(results)})
}

func sourcesOf(results []*search.Result) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		if r.Document != nil {
			out = append(out, r.Document.SourcePath)
		}
	}
	return out
}

func (s *Server) orchestratorFor(kbID string) (*orchestrator.Orchestrator, error) {
	if s.orchs == nil {
		return nil, echo.NewHTTPError(http.StatusServiceUnavailable, "indexing is not available")
	}
	return s.orchs.For(kbID)
}
