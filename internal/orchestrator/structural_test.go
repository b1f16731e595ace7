package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbserver/kbserver/internal/kbstore"
	"github.com/kbserver/kbserver/internal/parser"
	"github.com/kbserver/kbserver/internal/scanner"
)

func newTestKBStore(t *testing.T) *kbstore.SQLiteStore {
	t.Helper()
	store, err := kbstore.NewSQLiteStore(filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func writeProjectFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		full := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
	return root
}

func TestStructuralIndexer_Run_PersistsSymbolsEdgesAndRepoMap(t *testing.T) {
	// Given: a small Go project with a caller and a callee
	root := writeProjectFiles(t, map[string]string{
		"main.go": "package main\n\nfunc main() {\n\tHelper()\n}\n",
		"lib.go":  "package main\n\nfunc Helper() int {\n\treturn 42\n}\n",
	})

	store := newTestKBStore(t)
	ctx := context.Background()
	kb := &kbstore.KnowledgeBase{ID: "kb-struct", Name: "structure", Slug: "structure", Type: kbstore.KBTypeStructure}
	require.NoError(t, store.CreateKB(ctx, kb))

	sc, err := scanner.New()
	require.NoError(t, err)
	p := parser.New(parser.Config{})
	t.Cleanup(p.Close)

	si := NewStructuralIndexer(store, p, sc)

	// When: running the structural pipeline
	err = si.Run(ctx, "kb-struct", root, 0, nil)
	require.NoError(t, err)

	// Then: symbols, edges, and a repo map are all persisted
	symbols, err := store.GetSymbols(ctx, "kb-struct")
	require.NoError(t, err)
	assert.NotEmpty(t, symbols)

	rm, err := store.GetRepoMap(ctx, "kb-struct")
	require.NoError(t, err)
	require.NotNil(t, rm)
	assert.NotEmpty(t, rm.Text)
	assert.Greater(t, rm.TokenCount, 0)
}

func TestStructuralIndexer_Run_UsesDefaultTokenBudgetWhenUnset(t *testing.T) {
	root := writeProjectFiles(t, map[string]string{
		"a.go": "package main\n\nfunc A() {}\n",
	})

	store := newTestKBStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateKB(ctx, &kbstore.KnowledgeBase{ID: "kb-1", Name: "n", Slug: "n", Type: kbstore.KBTypeStructure}))

	sc, err := scanner.New()
	require.NoError(t, err)
	p := parser.New(parser.Config{})
	t.Cleanup(p.Close)

	si := NewStructuralIndexer(store, p, sc)
	require.NoError(t, si.Run(ctx, "kb-1", root, 0, nil))

	rm, err := store.GetRepoMap(ctx, "kb-1")
	require.NoError(t, err)
	require.NotNil(t, rm)
	assert.Equal(t, "4096", rm.Params["token_budget"])
}
