package kbexport

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbserver/kbserver/internal/kbstore"
)

func TestRestore_RoundTripsExportedProject(t *testing.T) {
	ctx := context.Background()

	source, err := kbstore.NewSQLiteStore(filepath.Join(t.TempDir(), "source.db"))
	require.NoError(t, err)
	defer source.Close()

	original := newTestProject(t, source)
	outDir := t.TempDir()
	dbPath, manifestPath, err := Export(ctx, source, original, outDir)
	require.NoError(t, err)

	dest, err := kbstore.NewSQLiteStore(filepath.Join(t.TempDir(), "dest.db"))
	require.NoError(t, err)
	defer dest.Close()

	restored, err := Restore(ctx, dest, dbPath, manifestPath)
	require.NoError(t, err)
	assert.Equal(t, original.Name, restored.Name)
	assert.NotEqual(t, original.ID, restored.ID, "restore should assign a fresh project id")

	kbs, err := dest.ListProjectKBs(ctx, restored.ID)
	require.NoError(t, err)
	require.Len(t, kbs, 1)

	var restoredKB *kbstore.KnowledgeBase
	for _, kb := range kbs {
		restoredKB = kb
	}
	require.NotNil(t, restoredKB)
	assert.Equal(t, "widgets-docs", restoredKB.Name)

	docs, err := dest.ListDocuments(ctx, restoredKB.ID)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "readme.md", docs[0].Filename)
}

func TestRestore_MissingDatabaseFails(t *testing.T) {
	dest, err := kbstore.NewSQLiteStore(filepath.Join(t.TempDir(), "dest.db"))
	require.NoError(t, err)
	defer dest.Close()

	_, err = Restore(context.Background(), dest, "/nonexistent/backup.db", "/nonexistent/backup.manifest.json")
	require.Error(t, err)
}
