package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbserver/kbserver/internal/kbstore"
)

func TestReindexCmd_RequiresArg(t *testing.T) {
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"reindex"})

	assert.Error(t, cmd.Execute())
}

func TestRunReindex_ProjectNotFound(t *testing.T) {
	tmpDir := t.TempDir()
	dataDir := filepath.Join(tmpDir, "data")
	require.NoError(t, os.MkdirAll(dataDir, 0o755))

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--data-dir", dataDir, "reindex", "nonexistent"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestRunReindex_ProjectMissingIndexKB(t *testing.T) {
	tmpDir := t.TempDir()
	dataDir := filepath.Join(tmpDir, "data")
	require.NoError(t, os.MkdirAll(dataDir, 0o755))

	meta, err := kbstore.NewSQLiteStore(filepath.Join(dataDir, "metadata.db"))
	require.NoError(t, err)
	require.NoError(t, meta.CreateProject(context.Background(), &kbstore.Project{ID: "proj-1", Name: "widgets", Path: tmpDir}))
	require.NoError(t, meta.Close())

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--data-dir", dataDir, "reindex", "widgets"})

	err = cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no index knowledge base")
}
