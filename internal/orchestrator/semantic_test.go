package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbserver/kbserver/internal/embed"
	"github.com/kbserver/kbserver/internal/kbstore"
	"github.com/kbserver/kbserver/internal/scanner"
)

func newTestSemanticIndexer(t *testing.T, store *kbstore.SQLiteStore) *SemanticIndexer {
	t.Helper()
	sc, err := scanner.New()
	require.NoError(t, err)
	return NewSemanticIndexer(store, nil, nil, embed.NewStaticEmbedder768(), sc)
}

func TestSemanticIndexer_Run_NonSelectiveIndexesEveryFile(t *testing.T) {
	root := writeProjectFiles(t, map[string]string{
		"main.go":   "package main\n\nfunc main() {}\n",
		"README.md": "# Title\n\nSome docs.\n",
	})

	store := newTestKBStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateKB(ctx, &kbstore.KnowledgeBase{ID: "kb-sem", Name: "sem", Slug: "sem", Type: kbstore.KBTypeCode, Dimension: embed.Static768Dimensions}))

	si := newTestSemanticIndexer(t, store)

	_, err := si.Run(ctx, "kb-sem", root, SelectiveParams{Selective: false}, nil, nil)
	require.NoError(t, err)

	docs, err := store.ListDocuments(ctx, "kb-sem")
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestSemanticIndexer_Run_IsIdempotentOnUnchangedContent(t *testing.T) {
	root := writeProjectFiles(t, map[string]string{
		"a.go": "package main\n\nfunc A() {}\n",
	})

	store := newTestKBStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateKB(ctx, &kbstore.KnowledgeBase{ID: "kb-idem", Name: "n", Slug: "n", Type: kbstore.KBTypeCode, Dimension: embed.Static768Dimensions}))

	si := newTestSemanticIndexer(t, store)

	_, err := si.Run(ctx, "kb-idem", root, SelectiveParams{}, nil, nil)
	require.NoError(t, err)
	docsBefore, err := store.ListDocuments(ctx, "kb-idem")
	require.NoError(t, err)
	require.Len(t, docsBefore, 1)
	firstUpdatedAt := docsBefore[0].UpdatedAt

	// When: re-running against unchanged content
	_, err = si.Run(ctx, "kb-idem", root, SelectiveParams{}, nil, nil)
	require.NoError(t, err)

	// Then: the document is untouched (re-run is a no-op per spec.md §4.3)
	docsAfter, err := store.ListDocuments(ctx, "kb-idem")
	require.NoError(t, err)
	require.Len(t, docsAfter, 1)
	assert.Equal(t, firstUpdatedAt, docsAfter[0].UpdatedAt)
}

func TestSemanticIndexer_Run_SelectiveIncludesDocFilesRegardlessOfImportance(t *testing.T) {
	root := writeProjectFiles(t, map[string]string{
		"GUIDE.md": "# Guide\n\nDocs always count.\n",
	})

	store := newTestKBStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateKB(ctx, &kbstore.KnowledgeBase{ID: "kb-docs", Name: "n", Slug: "n", Type: kbstore.KBTypeDocumentation, Dimension: embed.Static768Dimensions}))

	si := newTestSemanticIndexer(t, store)

	_, err := si.Run(ctx, "kb-docs", root, SelectiveParams{Selective: true, CodeStructureKBID: "does-not-exist"}, nil, nil)
	require.NoError(t, err)

	docs, err := store.ListDocuments(ctx, "kb-docs")
	require.NoError(t, err)
	assert.Len(t, docs, 1)
	assert.Equal(t, "GUIDE.md", docs[0].Filename)
}

func TestSemanticIndexer_Run_UpdatesHookSyncedFiles(t *testing.T) {
	root := writeProjectFiles(t, map[string]string{
		"a.go": "package main\n\nfunc A() {}\n",
	})

	store := newTestKBStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateKB(ctx, &kbstore.KnowledgeBase{ID: "kb-hook", Name: "n", Slug: "n", Type: kbstore.KBTypeCode, Dimension: embed.Static768Dimensions}))

	si := newTestSemanticIndexer(t, store)
	hook := &kbstore.Hook{ProjectID: "proj-1", Role: kbstore.RoleIndex, FolderPath: root}

	_, err := si.Run(ctx, "kb-hook", root, SelectiveParams{}, hook, nil)
	require.NoError(t, err)

	assert.NotEmpty(t, hook.SyncedFiles["a.go"])
	assert.False(t, hook.LastSyncAt.IsZero())

	saved, err := store.GetHook(ctx, "proj-1", kbstore.RoleIndex)
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, hook.SyncedFiles["a.go"], saved.SyncedFiles["a.go"])
}

func TestSemanticIndexer_indexSinglePath_DeletesDocumentWhenFileRemoved(t *testing.T) {
	root := writeProjectFiles(t, map[string]string{
		"a.go": "package main\n\nfunc A() {}\n",
	})

	store := newTestKBStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateKB(ctx, &kbstore.KnowledgeBase{ID: "kb-del", Name: "n", Slug: "n", Type: kbstore.KBTypeCode, Dimension: embed.Static768Dimensions}))

	si := newTestSemanticIndexer(t, store)
	_, err := si.Run(ctx, "kb-del", root, SelectiveParams{}, nil, nil)
	require.NoError(t, err)

	docsBefore, err := store.ListDocuments(ctx, "kb-del")
	require.NoError(t, err)
	require.Len(t, docsBefore, 1)

	require.NoError(t, os.Remove(filepath.Join(root, "a.go")))

	require.NoError(t, si.indexSinglePath(ctx, "kb-del", root, "a.go", nil, nil))

	docsAfter, err := store.ListDocuments(ctx, "kb-del")
	require.NoError(t, err)
	assert.Empty(t, docsAfter)
}
