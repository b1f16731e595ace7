package mcp

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kbserver/kbserver/internal/embed"
	"github.com/kbserver/kbserver/internal/kbstore"
	"github.com/kbserver/kbserver/internal/orchestrator"
	"github.com/kbserver/kbserver/internal/scanner"
	"github.com/kbserver/kbserver/internal/search"
)

func newTestKBStore(t *testing.T) *kbstore.SQLiteStore {
	t.Helper()
	store, err := kbstore.NewSQLiteStore(filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newTestSemanticIndexer(t *testing.T, store *kbstore.SQLiteStore) *orchestrator.SemanticIndexer {
	t.Helper()
	sc, err := scanner.New()
	require.NoError(t, err)
	return orchestrator.NewSemanticIndexer(store, nil, nil, embed.NewStaticEmbedder768(), sc)
}

// stubQuerier is a minimal search.Querier double: it returns whatever
// Results is set to, or QueryErr if non-nil.
type stubQuerier struct {
	Results []*search.Result
	QueryErr error
	LastKBID string
	LastText string
	LastOpts search.Options
}

func (s *stubQuerier) Query(_ context.Context, kbID, text string, opts search.Options) ([]*search.Result, error) {
	s.LastKBID = kbID
	s.LastText = text
	s.LastOpts = opts
	if s.QueryErr != nil {
		return nil, s.QueryErr
	}
	return s.Results, nil
}

var _ search.Querier = (*stubQuerier)(nil)

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

func mustCreateKB(t *testing.T, store *kbstore.SQLiteStore, name string, kbType kbstore.KBType) *kbstore.KnowledgeBase {
	t.Helper()
	kb := &kbstore.KnowledgeBase{
		ID:        name + "-id",
		Name:      name,
		Slug:      kbstore.Slugify(name),
		Type:      kbType,
		Dimension: embed.Static768Dimensions,
	}
	require.NoError(t, store.CreateKB(context.Background(), kb))
	return kb
}
