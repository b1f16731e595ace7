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

func TestImportCmd_RequiresTwoArgs(t *testing.T) {
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"import", "docs"})

	err := cmd.Execute()
	assert.Error(t, err)
}

func TestImportCmd_HasTypeFlag(t *testing.T) {
	cmd := NewRootCmd()
	importCmd, _, err := cmd.Find([]string{"import"})
	require.NoError(t, err)
	assert.NotNil(t, importCmd.Flags().Lookup("type"))
}

func TestRunImport_CreatesKBAndIndexes(t *testing.T) {
	tmpDir := t.TempDir()
	dataDir := filepath.Join(tmpDir, "data")
	require.NoError(t, os.MkdirAll(dataDir, 0o755))

	srcDir := filepath.Join(tmpDir, "src")
	require.NoError(t, os.MkdirAll(srcDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "readme.md"), []byte("# hello world"), 0o644))

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--data-dir", dataDir, "import", "docs", srcDir})

	err := cmd.Execute()
	require.NoError(t, err)

	meta, err := kbstore.NewSQLiteStore(filepath.Join(dataDir, "metadata.db"))
	require.NoError(t, err)
	defer meta.Close()

	kb, err := meta.GetKBByName(context.Background(), "docs")
	require.NoError(t, err)
	require.NotNil(t, kb)
}
