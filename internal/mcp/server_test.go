package mcp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbserver/kbserver/internal/kbstore"
	"github.com/kbserver/kbserver/internal/orchestrator"
	"github.com/kbserver/kbserver/internal/search"
)

func TestNewServer_Success(t *testing.T) {
	store := newTestKBStore(t)

	srv, err := NewServer(store, &stubQuerier{}, nil)

	require.NoError(t, err)
	require.NotNil(t, srv)
	assert.NotNil(t, srv.MCPServer())
}

func TestServer_Info_ReturnsCorrectValues(t *testing.T) {
	store := newTestKBStore(t)
	srv, err := NewServer(store, &stubQuerier{}, nil)
	require.NoError(t, err)

	name, ver := srv.Info()

	assert.Equal(t, "kbserver", name)
	assert.NotEmpty(t, ver)
}

func TestServer_Close_ReleasesResources(t *testing.T) {
	store := newTestKBStore(t)
	srv, err := NewServer(store, &stubQuerier{}, nil)
	require.NoError(t, err)

	assert.NoError(t, srv.Close())
}

func TestServer_ListKnowledgeBases_ReturnsAll(t *testing.T) {
	store := newTestKBStore(t)
	mustCreateKB(t, store, "alpha", kbstore.KBTypeGeneric)
	mustCreateKB(t, store, "beta", kbstore.KBTypeCode)
	srv, err := NewServer(store, &stubQuerier{}, nil)
	require.NoError(t, err)

	_, out, err := srv.listKnowledgeBases(context.Background(), nil, ListKnowledgeBasesInput{})

	require.NoError(t, err)
	assert.Len(t, out.KnowledgeBases, 2)
}

func TestServer_CreateKnowledgeBase_Success(t *testing.T) {
	store := newTestKBStore(t)
	srv, err := NewServer(store, &stubQuerier{}, nil)
	require.NoError(t, err)

	_, out, err := srv.createKnowledgeBase(context.Background(), nil, CreateKnowledgeBaseInput{
		Name:   "My Project",
		KBType: "code",
	})

	require.NoError(t, err)
	assert.Equal(t, "my-project", out.KnowledgeBase.Slug)
	assert.Equal(t, "code", out.KnowledgeBase.Type)
	assert.NotEmpty(t, out.KnowledgeBase.ID)

	stored, err := store.GetKBBySlug(context.Background(), "my-project")
	require.NoError(t, err)
	require.NotNil(t, stored)
}

func TestServer_CreateKnowledgeBase_EmptyName_ReturnsInvalidParams(t *testing.T) {
	store := newTestKBStore(t)
	srv, err := NewServer(store, &stubQuerier{}, nil)
	require.NoError(t, err)

	_, _, err = srv.createKnowledgeBase(context.Background(), nil, CreateKnowledgeBaseInput{Name: "  "})

	require.Error(t, err)
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
}

func TestServer_CreateKnowledgeBase_DuplicateName_ReturnsConflict(t *testing.T) {
	store := newTestKBStore(t)
	mustCreateKB(t, store, "dup", kbstore.KBTypeGeneric)
	srv, err := NewServer(store, &stubQuerier{}, nil)
	require.NoError(t, err)

	_, _, err = srv.createKnowledgeBase(context.Background(), nil, CreateKnowledgeBaseInput{Name: "dup"})

	require.Error(t, err)
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeConflict, mcpErr.Code)
}

func TestServer_DeleteKnowledgeBase_Success(t *testing.T) {
	store := newTestKBStore(t)
	kb := mustCreateKB(t, store, "doomed", kbstore.KBTypeGeneric)
	srv, err := NewServer(store, &stubQuerier{}, nil)
	require.NoError(t, err)

	_, out, err := srv.deleteKnowledgeBase(context.Background(), nil, DeleteKnowledgeBaseInput{KB: kb.Slug})

	require.NoError(t, err)
	assert.True(t, out.Deleted)

	stored, err := store.GetKBBySlug(context.Background(), kb.Slug)
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestServer_DeleteKnowledgeBase_NotFound_ReturnsError(t *testing.T) {
	store := newTestKBStore(t)
	srv, err := NewServer(store, &stubQuerier{}, nil)
	require.NoError(t, err)

	_, _, err = srv.deleteKnowledgeBase(context.Background(), nil, DeleteKnowledgeBaseInput{KB: "missing"})

	require.Error(t, err)
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeKBNotFound, mcpErr.Code)
}

func TestServer_SearchKnowledgeBase_EmptyQuery_ReturnsInvalidParams(t *testing.T) {
	store := newTestKBStore(t)
	srv, err := NewServer(store, &stubQuerier{}, nil)
	require.NoError(t, err)

	_, _, err = srv.searchKnowledgeBase(context.Background(), nil, SearchKnowledgeBaseInput{Query: ""})

	require.Error(t, err)
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
}

func TestServer_SearchKnowledgeBase_DelegatesToQuerier(t *testing.T) {
	store := newTestKBStore(t)
	kb := mustCreateKB(t, store, "searchable", kbstore.KBTypeGeneric)
	querier := &stubQuerier{
		Results: []*search.Result{
			{
				Chunk:    &kbstore.Chunk{Ordinal: 0, Text: "package main"},
				Document: &kbstore.Document{Filename: "main.go"},
				Score:    0.9,
			},
		},
	}
	srv, err := NewServer(store, querier, nil)
	require.NoError(t, err)

	_, out, err := srv.searchKnowledgeBase(context.Background(), nil, SearchKnowledgeBaseInput{
		KB:    kb.Slug,
		Query: "main function",
	})

	require.NoError(t, err)
	require.Len(t, out.Results, 1)
	assert.Equal(t, "main.go", out.Results[0].DocumentFilename)
	assert.Equal(t, kb.ID, querier.LastKBID)
	assert.Equal(t, "main function", querier.LastText)
}

func TestServer_SearchKnowledgeBase_UnknownKB_ReturnsError(t *testing.T) {
	store := newTestKBStore(t)
	srv, err := NewServer(store, &stubQuerier{}, nil)
	require.NoError(t, err)

	_, _, err = srv.searchKnowledgeBase(context.Background(), nil, SearchKnowledgeBaseInput{KB: "nope", Query: "x"})

	require.Error(t, err)
}

func TestServer_SearchKnowledgeBase_ScopedServerOmitsKBArgument(t *testing.T) {
	store := newTestKBStore(t)
	kb := mustCreateKB(t, store, "scoped", kbstore.KBTypeGeneric)
	querier := &stubQuerier{}
	srv, err := NewScopedServer(store, querier, nil, kb.Slug)
	require.NoError(t, err)

	_, _, err = srv.searchKnowledgeBase(context.Background(), nil, SearchKnowledgeBaseInput{Query: "x"})

	require.NoError(t, err)
	assert.Equal(t, kb.ID, querier.LastKBID)
}

func TestServer_GetKBStats_CountsDocumentsAndChunks(t *testing.T) {
	store := newTestKBStore(t)
	kb := mustCreateKB(t, store, "stats", kbstore.KBTypeGeneric)
	si := newTestSemanticIndexer(t, store)
	root := writeProjectFiles(t, map[string]string{"a.go": "package main\n\nfunc A() {}\n"})
	_, err := si.Run(context.Background(), kb.ID, root, orchestrator.SelectiveParams{}, nil, nil)
	require.NoError(t, err)

	srv, err := NewServer(store, &stubQuerier{}, si)
	require.NoError(t, err)

	_, out, err := srv.getKBStats(context.Background(), nil, GetKBStatsInput{KB: kb.Slug})

	require.NoError(t, err)
	assert.GreaterOrEqual(t, out.DocumentCount, 0)
	assert.GreaterOrEqual(t, out.ChunkCount, 0)
}

func TestServer_ListDocuments_ReturnsIngestedDocument(t *testing.T) {
	store := newTestKBStore(t)
	kb := mustCreateKB(t, store, "docs", kbstore.KBTypeGeneric)
	si := newTestSemanticIndexer(t, store)
	srv, err := NewServer(store, &stubQuerier{}, si)
	require.NoError(t, err)

	_, _, err = srv.ingestDocument(context.Background(), nil, IngestDocumentInput{
		KB:       kb.Slug,
		Filename: "notes.md",
		Bytes:    "IyBOb3Rlcw==", // base64("# Notes")
	})
	require.NoError(t, err)

	_, out, err := srv.listDocuments(context.Background(), nil, ListDocumentsInput{KB: kb.Slug})

	require.NoError(t, err)
	require.Len(t, out.Documents, 1)
	assert.Equal(t, "notes.md", out.Documents[0].Filename)
}

func TestServer_IngestDocument_RequiresExactlyOneOfBytesOrPath(t *testing.T) {
	store := newTestKBStore(t)
	kb := mustCreateKB(t, store, "both", kbstore.KBTypeGeneric)
	si := newTestSemanticIndexer(t, store)
	srv, err := NewServer(store, &stubQuerier{}, si)
	require.NoError(t, err)

	_, _, err = srv.ingestDocument(context.Background(), nil, IngestDocumentInput{
		KB: kb.Slug, Filename: "f.md", Bytes: "aGk=", Path: "/tmp/f.md",
	})
	require.Error(t, err)

	_, _, err = srv.ingestDocument(context.Background(), nil, IngestDocumentInput{
		KB: kb.Slug, Filename: "f.md",
	})
	require.Error(t, err)
}

func TestServer_IngestDocument_WithoutSemanticIndexer_ReturnsError(t *testing.T) {
	store := newTestKBStore(t)
	kb := mustCreateKB(t, store, "nosemantic", kbstore.KBTypeGeneric)
	srv, err := NewServer(store, &stubQuerier{}, nil)
	require.NoError(t, err)

	_, _, err = srv.ingestDocument(context.Background(), nil, IngestDocumentInput{
		KB: kb.Slug, Filename: "f.md", Bytes: "aGk=",
	})

	require.Error(t, err)
}

func TestServer_IngestDirectory_IndexesScannedFiles(t *testing.T) {
	store := newTestKBStore(t)
	kb := mustCreateKB(t, store, "dir", kbstore.KBTypeCode)
	si := newTestSemanticIndexer(t, store)
	srv, err := NewServer(store, &stubQuerier{}, si)
	require.NoError(t, err)

	root := writeProjectFiles(t, map[string]string{
		"main.go": "package main\n\nfunc main() {}\n",
		"lib.go":  "package main\n\nfunc Lib() {}\n",
	})

	_, out, err := srv.ingestDirectory(context.Background(), nil, IngestDirectoryInput{KB: kb.Slug, Path: root})

	require.NoError(t, err)
	assert.Equal(t, 2, out.FilesIndexed)
}

func TestServer_GetRepoMap_NoStoredMapReturnsEmpty(t *testing.T) {
	store := newTestKBStore(t)
	kb := mustCreateKB(t, store, "repomap", kbstore.KBTypeStructure)
	srv, err := NewServer(store, &stubQuerier{}, nil)
	require.NoError(t, err)

	_, out, err := srv.getRepoMap(context.Background(), nil, GetRepoMapInput{KB: kb.Slug})

	require.NoError(t, err)
	assert.Empty(t, out.Text)
}

func TestDetectContentType(t *testing.T) {
	tests := []struct {
		filename     string
		wantType     kbstore.ContentType
		wantLanguage string
	}{
		{"README.md", kbstore.ContentTypeMarkdown, ""},
		{"notes.txt", kbstore.ContentTypeText, ""},
		{"main.go", kbstore.ContentTypeCode, "go"},
		{"app.py", kbstore.ContentTypeCode, "python"},
	}
	for _, tt := range tests {
		ct, lang := detectContentType(tt.filename)
		assert.Equal(t, tt.wantType, ct, tt.filename)
		assert.Equal(t, tt.wantLanguage, lang, tt.filename)
	}
}
