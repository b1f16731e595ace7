package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kbserver/kbserver/internal/kbexport"
	"github.com/kbserver/kbserver/internal/output"
)

// newRestoreCmd builds `kbserver restore <backup-id>` (spec.md §6): loads an
// export database + manifest pair written by 'kbserver export' back into a
// fresh project and knowledge bases.
func newRestoreCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "restore <backup-id>",
		Short: "Restore a project from an exported backup",
		Long: `restore loads <backup-id>.db and <backup-id>.manifest.json (written by
'kbserver export') and re-creates their project, knowledge bases, and
documents under fresh ids.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRestore(cmd, args[0], dir)
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "exports", "Directory containing the backup's .db and .manifest.json files")
	return cmd
}

func runRestore(cmd *cobra.Command, backupID, dir string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	dbPath := filepath.Join(dir, backupID+".db")
	manifestPath := filepath.Join(dir, backupID+".manifest.json")

	project, err := kbexport.Restore(cmd.Context(), a.metadata, dbPath, manifestPath)
	if err != nil {
		return fmt.Errorf("restore: %w", err)
	}

	output.New(cmd.OutOrStdout()).Successf("Restored project %q (%s)", project.Name, project.ID)
	return nil
}
