package mcp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbserver/kbserver/internal/kbstore"
	"github.com/kbserver/kbserver/internal/orchestrator"
)

func TestDocumentResourceURI(t *testing.T) {
	assert.Equal(t, "kbserver://my-kb/src/main.go", documentResourceURI("my-kb", "src/main.go"))
}

func TestRegisterResources_RegistersOneResourcePerDocument(t *testing.T) {
	store := newTestKBStore(t)
	kb := mustCreateKB(t, store, "reslib", kbstore.KBTypeGeneric)
	si := newTestSemanticIndexer(t, store)
	root := writeProjectFiles(t, map[string]string{
		"a.go":     "package main\n\nfunc A() {}\n",
		"notes.md": "# Notes\n",
	})
	ctx := context.Background()
	_, err := si.Run(ctx, kb.ID, root, orchestrator.SelectiveParams{}, nil, nil)
	require.NoError(t, err)

	srv, err := NewServer(store, &stubQuerier{}, si)
	require.NoError(t, err)

	require.NoError(t, srv.RegisterResources(ctx))
}

func TestHandleReadResource_ReturnsConcatenatedChunkText(t *testing.T) {
	store := newTestKBStore(t)
	kb := mustCreateKB(t, store, "readable", kbstore.KBTypeGeneric)
	si := newTestSemanticIndexer(t, store)
	ctx := context.Background()
	require.NoError(t, si.IndexDocument(ctx, kb.ID, "notes.md", []byte("# Title\n\nbody text\n"), kbstore.ContentTypeMarkdown, "", ""))

	srv, err := NewServer(store, &stubQuerier{}, si)
	require.NoError(t, err)

	result, err := srv.handleReadResource(ctx, kb.ID, kb.Slug, "notes.md")

	require.NoError(t, err)
	require.Len(t, result.Contents, 1)
	assert.Contains(t, result.Contents[0].Text, "Title")
	assert.Equal(t, documentResourceURI(kb.Slug, "notes.md"), result.Contents[0].URI)
}

func TestHandleReadResource_UnknownDocument_ReturnsNotFound(t *testing.T) {
	store := newTestKBStore(t)
	kb := mustCreateKB(t, store, "empty", kbstore.KBTypeGeneric)
	srv, err := NewServer(store, &stubQuerier{}, nil)
	require.NoError(t, err)

	_, err = srv.handleReadResource(context.Background(), kb.ID, kb.Slug, "missing.go")

	require.Error(t, err)
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeMethodNotFound, mcpErr.Code)
}
