// Package mcp implements the Model Context Protocol (MCP) tool server for kbserver.
package mcp

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/kbserver/kbserver/internal/kbstore"
	"github.com/kbserver/kbserver/internal/orchestrator"
	"github.com/kbserver/kbserver/internal/search"
	"github.com/kbserver/kbserver/pkg/version"
)

// Server is the MCP tool server bridging agent hosts (Claude Code, Cursor,
// etc.) to kbserver's knowledge bases (spec.md §4.11/§6): a global endpoint
// serves every KB, and a path-scoped endpoint narrows the catalog to one.
type Server struct {
	mcp      *mcp.Server
	metadata kbstore.MetadataStore
	search   search.Querier
	semantic *orchestrator.SemanticIndexer

	// scopedKB, when non-empty, is the slug this server instance narrows
	// its catalog to: KB-scoped tool calls omit the kb argument and this
	// value is used instead.
	scopedKB string

	logger *slog.Logger
	mu     sync.RWMutex
}

// ResourceInfo describes one MCP resource (a document within a KB).
type ResourceInfo struct {
	URI      string
	Name     string
	MIMEType string
}

// ResourceContent is the content of a single resource read.
type ResourceContent struct {
	URI      string
	Content  string
	MIMEType string
}

// NewServer creates a global (all-KB) MCP server.
func NewServer(metadata kbstore.MetadataStore, querier search.Querier, semantic *orchestrator.SemanticIndexer) (*Server, error) {
	if metadata == nil {
		return nil, errors.New("metadata store is required")
	}
	if querier == nil {
		return nil, errors.New("search querier is required")
	}

	s := &Server{
		metadata: metadata,
		search:   querier,
		semantic: semantic,
		logger:   slog.Default(),
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{Name: "kbserver", Version: version.Version},
		nil,
	)
	s.registerTools()
	return s, nil
}

// NewScopedServer creates a KB-scoped MCP server (the `/{slug}` path),
// narrowing every tool's catalog to kbSlug and omitting the kb argument.
func NewScopedServer(metadata kbstore.MetadataStore, querier search.Querier, semantic *orchestrator.SemanticIndexer, kbSlug string) (*Server, error) {
	s, err := NewServer(metadata, querier, semantic)
	if err != nil {
		return nil, err
	}
	s.scopedKB = kbSlug
	return s, nil
}

// MCPServer returns the underlying MCP SDK server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Info returns the server name and version.
func (s *Server) Info() (name, ver string) {
	return "kbserver", version.Version
}

// Serve starts the server with the specified transport.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("starting MCP server", slog.String("transport", transport))

	switch transport {
	case "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
		} else {
			s.logger.Info("MCP server stopped gracefully")
		}
		return err
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

// Close releases server resources. The MCP SDK server has no explicit
// teardown; it stops when its context is canceled.
func (s *Server) Close() error { return nil }

// registerTools registers the KB tool catalog (spec.md §6). KB-scoped
// servers register the same handlers; resolveKB falls back to scopedKB
// when the caller omits kb.
func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "list_knowledge_bases",
		Description: "List all knowledge bases.",
	}, s.listKnowledgeBases)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "create_knowledge_base",
		Description: "Create a new, empty knowledge base.",
	}, s.createKnowledgeBase)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "delete_knowledge_base",
		Description: "Delete a knowledge base and every document, chunk, and embedding it owns.",
	}, s.deleteKnowledgeBase)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_knowledge_base",
		Description: "Hybrid vector/BM25 search over a knowledge base's chunks. Faster and more relevant than grep for finding code and documentation by meaning.",
	}, s.searchKnowledgeBase)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_kb_stats",
		Description: "Document and chunk counts for a knowledge base.",
	}, s.getKBStats)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "list_documents",
		Description: "List every document stored in a knowledge base.",
	}, s.listDocuments)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "ingest_document",
		Description: "Chunk, embed, and persist a single document into a knowledge base.",
	}, s.ingestDocument)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "ingest_directory",
		Description: "Recursively chunk, embed, and persist every file under a server-local directory into a knowledge base.",
	}, s.ingestDirectory)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_repo_map",
		Description: "Fetch the token-budgeted repo map last rendered for a structural knowledge base.",
	}, s.getRepoMap)

	s.logger.Info("MCP tools registered", slog.Int("count", 9))
}

// resolveKB resolves a kb argument (name or slug) to a KnowledgeBase,
// falling back to the server's scopedKB when the caller omits it.
func (s *Server) resolveKB(ctx context.Context, kb string) (*kbstore.KnowledgeBase, error) {
	if kb == "" {
		kb = s.scopedKB
	}
	if kb == "" {
		return nil, NewInvalidParamsError("kb parameter is required")
	}

	if found, err := s.metadata.GetKBBySlug(ctx, kb); err == nil && found != nil {
		return found, nil
	}
	found, err := s.metadata.GetKBByName(ctx, kb)
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, ErrKBNotFound
	}
	return found, nil
}

func (s *Server) listKnowledgeBases(ctx context.Context, _ *mcp.CallToolRequest, _ ListKnowledgeBasesInput) (*mcp.CallToolResult, ListKnowledgeBasesOutput, error) {
	kbs, err := s.metadata.ListKBs(ctx)
	if err != nil {
		return nil, ListKnowledgeBasesOutput{}, MapError(err)
	}
	out := ListKnowledgeBasesOutput{KnowledgeBases: make([]KnowledgeBaseInfo, 0, len(kbs))}
	for _, kb := range kbs {
		out.KnowledgeBases = append(out.KnowledgeBases, toKBInfo(kb))
	}
	return nil, out, nil
}

func (s *Server) createKnowledgeBase(ctx context.Context, _ *mcp.CallToolRequest, input CreateKnowledgeBaseInput) (*mcp.CallToolResult, CreateKnowledgeBaseOutput, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, CreateKnowledgeBaseOutput{}, NewInvalidParamsError("name parameter is required and must be non-empty")
	}

	kbType := kbstore.KBTypeGeneric
	if input.KBType != "" {
		kbType = kbstore.KBType(input.KBType)
	}

	if existing, err := s.metadata.GetKBByName(ctx, input.Name); err == nil && existing != nil {
		return nil, CreateKnowledgeBaseOutput{}, NewConflictError(fmt.Sprintf("a knowledge base named %q already exists", input.Name))
	}

	kb := &kbstore.KnowledgeBase{
		ID:          uuid.NewString(),
		Name:        input.Name,
		Slug:        kbstore.Slugify(input.Name),
		Type:        kbType,
		Description: input.Description,
	}
	if err := s.metadata.CreateKB(ctx, kb); err != nil {
		return nil, CreateKnowledgeBaseOutput{}, MapError(err)
	}

	return nil, CreateKnowledgeBaseOutput{KnowledgeBase: toKBInfo(kb)}, nil
}

func (s *Server) deleteKnowledgeBase(ctx context.Context, _ *mcp.CallToolRequest, input DeleteKnowledgeBaseInput) (*mcp.CallToolResult, DeleteKnowledgeBaseOutput, error) {
	kb, err := s.resolveKB(ctx, input.KB)
	if err != nil {
		return nil, DeleteKnowledgeBaseOutput{}, MapError(err)
	}
	if err := s.metadata.DeleteKB(ctx, kb.ID); err != nil {
		return nil, DeleteKnowledgeBaseOutput{}, MapError(err)
	}
	return nil, DeleteKnowledgeBaseOutput{Deleted: true}, nil
}

func (s *Server) searchKnowledgeBase(ctx context.Context, _ *mcp.CallToolRequest, input SearchKnowledgeBaseInput) (*mcp.CallToolResult, SearchKnowledgeBaseOutput, error) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, SearchKnowledgeBaseOutput{}, NewInvalidParamsError("query parameter is required and must be non-empty")
	}
	kb, err := s.resolveKB(ctx, input.KB)
	if err != nil {
		return nil, SearchKnowledgeBaseOutput{}, MapError(err)
	}

	start := time.Now()
	requestID := generateRequestID()

	opts := search.Options{
		UseVector: input.UseVector,
		UseBM25:   input.UseBM25,
		UseRerank: input.UseRerank,
		Filter:    kbstore.ContentType(input.Filter),
		K:         input.K,
	}

	results, err := s.search.Query(ctx, kb.ID, input.Query, opts)
	duration := time.Since(start)
	if err != nil {
		s.logger.Error("search_knowledge_base failed",
			slog.String("request_id", requestID), slog.Duration("duration", duration), slog.String("error", err.Error()))
		return nil, SearchKnowledgeBaseOutput{}, MapError(err)
	}
	s.logger.Info("search_knowledge_base completed",
		slog.String("request_id", requestID), slog.Duration("duration", duration), slog.Int("result_count", len(results)))

	out := SearchKnowledgeBaseOutput{Results: make([]SearchResultOutput, 0, len(results))}
	for _, r := range results {
		out.Results = append(out.Results, toSearchResultOutput(r))
	}
	return nil, out, nil
}

func (s *Server) getKBStats(ctx context.Context, _ *mcp.CallToolRequest, input GetKBStatsInput) (*mcp.CallToolResult, GetKBStatsOutput, error) {
	kb, err := s.resolveKB(ctx, input.KB)
	if err != nil {
		return nil, GetKBStatsOutput{}, MapError(err)
	}

	docs, err := s.metadata.ListDocuments(ctx, kb.ID)
	if err != nil {
		return nil, GetKBStatsOutput{}, MapError(err)
	}
	chunks, err := s.metadata.GetAllChunks(ctx, kb.ID)
	if err != nil {
		return nil, GetKBStatsOutput{}, MapError(err)
	}

	out := GetKBStatsOutput{DocumentCount: len(docs), ChunkCount: len(chunks)}
	var latest time.Time
	for _, d := range docs {
		if d.UpdatedAt.After(latest) {
			latest = d.UpdatedAt
		}
	}
	if !latest.IsZero() {
		out.LastUpdated = latest.Format(time.RFC3339)
	}
	return nil, out, nil
}

func (s *Server) listDocuments(ctx context.Context, _ *mcp.CallToolRequest, input ListDocumentsInput) (*mcp.CallToolResult, ListDocumentsOutput, error) {
	kb, err := s.resolveKB(ctx, input.KB)
	if err != nil {
		return nil, ListDocumentsOutput{}, MapError(err)
	}
	docs, err := s.metadata.ListDocuments(ctx, kb.ID)
	if err != nil {
		return nil, ListDocumentsOutput{}, MapError(err)
	}

	out := ListDocumentsOutput{Documents: make([]DocumentInfo, 0, len(docs))}
	for _, d := range docs {
		out.Documents = append(out.Documents, DocumentInfo{
			Filename:    d.Filename,
			ContentType: string(d.ContentType),
			Size:        d.Size,
			UpdatedAt:   d.UpdatedAt.Format(time.RFC3339),
		})
	}
	return nil, out, nil
}

func (s *Server) ingestDocument(ctx context.Context, _ *mcp.CallToolRequest, input IngestDocumentInput) (*mcp.CallToolResult, IngestDocumentOutput, error) {
	if s.semantic == nil {
		return nil, IngestDocumentOutput{}, NewInvalidParamsError("document ingestion is not configured on this server")
	}
	if strings.TrimSpace(input.Filename) == "" {
		return nil, IngestDocumentOutput{}, NewInvalidParamsError("filename parameter is required")
	}
	if (input.Bytes == "") == (input.Path == "") {
		return nil, IngestDocumentOutput{}, NewInvalidParamsError("exactly one of bytes or path must be set")
	}

	kb, err := s.resolveKB(ctx, input.KB)
	if err != nil {
		return nil, IngestDocumentOutput{}, MapError(err)
	}

	var content []byte
	sourcePath := input.Path
	if input.Bytes != "" {
		content, err = base64.StdEncoding.DecodeString(input.Bytes)
		if err != nil {
			return nil, IngestDocumentOutput{}, NewInvalidParamsError("bytes parameter is not valid base64")
		}
	} else {
		content, err = os.ReadFile(input.Path)
		if err != nil {
			return nil, IngestDocumentOutput{}, MapError(err)
		}
	}

	contentType, language := detectContentType(input.Filename)
	if err := s.semantic.IndexDocument(ctx, kb.ID, input.Filename, content, contentType, language, sourcePath); err != nil {
		return nil, IngestDocumentOutput{}, MapError(err)
	}
	return nil, IngestDocumentOutput{Filename: input.Filename, Indexed: true}, nil
}

func (s *Server) ingestDirectory(ctx context.Context, _ *mcp.CallToolRequest, input IngestDirectoryInput) (*mcp.CallToolResult, IngestDirectoryOutput, error) {
	if s.semantic == nil {
		return nil, IngestDirectoryOutput{}, NewInvalidParamsError("directory ingestion is not configured on this server")
	}
	if strings.TrimSpace(input.Path) == "" {
		return nil, IngestDirectoryOutput{}, NewInvalidParamsError("path parameter is required")
	}
	kb, err := s.resolveKB(ctx, input.KB)
	if err != nil {
		return nil, IngestDirectoryOutput{}, MapError(err)
	}

	indexed, err := s.semantic.Run(ctx, kb.ID, input.Path, orchestrator.SelectiveParams{Selective: false}, nil, nil)
	if err != nil {
		return nil, IngestDirectoryOutput{}, MapError(err)
	}
	return nil, IngestDirectoryOutput{FilesIndexed: indexed}, nil
}

func (s *Server) getRepoMap(ctx context.Context, _ *mcp.CallToolRequest, input GetRepoMapInput) (*mcp.CallToolResult, GetRepoMapOutput, error) {
	kb, err := s.resolveKB(ctx, input.KB)
	if err != nil {
		return nil, GetRepoMapOutput{}, MapError(err)
	}
	rm, err := s.metadata.GetRepoMap(ctx, kb.ID)
	if err != nil {
		return nil, GetRepoMapOutput{}, MapError(err)
	}
	if rm == nil {
		return nil, GetRepoMapOutput{}, nil
	}
	return nil, GetRepoMapOutput{Text: rm.Text, TokenCount: rm.TokenCount, Overflow: rm.Overflow}, nil
}

func toKBInfo(kb *kbstore.KnowledgeBase) KnowledgeBaseInfo {
	return KnowledgeBaseInfo{
		ID:          kb.ID,
		Name:        kb.Name,
		Slug:        kb.Slug,
		Type:        string(kb.Type),
		Description: kb.Description,
		Dimension:   kb.Dimension,
	}
}

func toSearchResultOutput(r *search.Result) SearchResultOutput {
	if r == nil || r.Chunk == nil {
		return SearchResultOutput{}
	}
	out := SearchResultOutput{
		ChunkOrdinal: r.Chunk.Ordinal,
		Text:         r.Chunk.Text,
		Score:        r.Score,
		VectorScore:  r.VectorScore,
		BM25Score:    r.BM25Score,
	}
	if r.Document != nil {
		out.DocumentFilename = r.Document.Filename
	}
	return out
}

// detectContentType infers a kbstore.ContentType and language hint from a
// filename's extension, for content uploaded without a scanner.FileInfo.
func detectContentType(filename string) (kbstore.ContentType, string) {
	switch {
	case strings.HasSuffix(filename, ".md") || strings.HasSuffix(filename, ".mdx"):
		return kbstore.ContentTypeMarkdown, ""
	case strings.HasSuffix(filename, ".txt") || strings.HasSuffix(filename, ".rst"):
		return kbstore.ContentTypeText, ""
	default:
		return kbstore.ContentTypeCode, languageForFilename(filename)
	}
}

func languageForFilename(filename string) string {
	switch {
	case strings.HasSuffix(filename, ".go"):
		return "go"
	case strings.HasSuffix(filename, ".py"):
		return "python"
	case strings.HasSuffix(filename, ".ts") || strings.HasSuffix(filename, ".tsx"):
		return "typescript"
	case strings.HasSuffix(filename, ".js") || strings.HasSuffix(filename, ".jsx"):
		return "javascript"
	case strings.HasSuffix(filename, ".rs"):
		return "rust"
	case strings.HasSuffix(filename, ".java"):
		return "java"
	default:
		return ""
	}
}

// generateRequestID creates a short unique request ID for log correlation.
func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
