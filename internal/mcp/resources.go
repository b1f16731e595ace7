package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/kbserver/kbserver/internal/kbstore"
)

// MaxResourceSize bounds how much chunk text a single resource read returns.
const MaxResourceSize = 1024 * 1024

// RegisterResources exposes every document in every knowledge base as an
// MCP resource, addressed by kbserver://<kb-slug>/<filename> (spec.md §4.11).
// Call this after NewServer/NewScopedServer and before Serve.
func (s *Server) RegisterResources(ctx context.Context) error {
	kbs, err := s.metadata.ListKBs(ctx)
	if err != nil {
		return fmt.Errorf("list knowledge bases: %w", err)
	}

	count := 0
	for _, kb := range kbs {
		if s.scopedKB != "" && kb.Slug != s.scopedKB {
			continue
		}
		docs, err := s.metadata.ListDocuments(ctx, kb.ID)
		if err != nil {
			return fmt.Errorf("list documents for kb %s: %w", kb.Slug, err)
		}
		for _, doc := range docs {
			s.registerDocumentResource(kb, doc)
			count++
		}
	}

	s.logger.Info("registered resources", slog.Int("count", count))
	return nil
}

// documentResourceURI builds the kbserver:// URI for a document.
func documentResourceURI(kbSlug, filename string) string {
	return fmt.Sprintf("kbserver://%s/%s", kbSlug, filename)
}

// registerDocumentResource registers a single document as an MCP resource.
func (s *Server) registerDocumentResource(kb *kbstore.KnowledgeBase, doc *kbstore.Document) {
	uri := documentResourceURI(kb.Slug, doc.Filename)
	s.mcp.AddResource(
		&mcp.Resource{
			Name:        doc.Filename,
			URI:         uri,
			Description: fmt.Sprintf("%s (%s, %d bytes)", doc.Filename, doc.ContentType, doc.Size),
			MIMEType:    MimeTypeForPath(doc.Filename),
		},
		s.makeDocumentHandler(kb.ID, kb.Slug, doc.Filename),
	)
}

// makeDocumentHandler creates a read handler for one (kbID, filename) pair.
func (s *Server) makeDocumentHandler(kbID, kbSlug, filename string) mcp.ResourceHandler {
	return func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		return s.handleReadResource(ctx, kbID, kbSlug, filename)
	}
}

// handleReadResource reassembles a document's chunks in order and returns
// the concatenated text, truncating at MaxResourceSize.
func (s *Server) handleReadResource(ctx context.Context, kbID, kbSlug, filename string) (*mcp.ReadResourceResult, error) {
	doc, err := s.metadata.GetDocument(ctx, kbID, filename)
	if err != nil {
		return nil, MapError(err)
	}
	if doc == nil {
		return nil, NewResourceNotFoundError(filename)
	}

	chunks, err := s.metadata.GetChunksByDocument(ctx, doc.ID)
	if err != nil {
		return nil, MapError(err)
	}

	var sb strings.Builder
	for _, c := range chunks {
		if sb.Len()+len(c.Text) > MaxResourceSize {
			break
		}
		sb.WriteString(c.Text)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{
				URI:      documentResourceURI(kbSlug, doc.Filename),
				MIMEType: MimeTypeForPath(doc.Filename),
				Text:     sb.String(),
			},
		},
	}, nil
}
