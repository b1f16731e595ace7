package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	kberrors "github.com/kbserver/kbserver/internal/errors"
	"github.com/kbserver/kbserver/internal/kbexport"
	"github.com/kbserver/kbserver/internal/output"
)

// newExportCmd builds `kbserver export <project> --output <dir>` (spec.md
// §6), writing a bit-stable export database + manifest for every knowledge
// base bound to project.
func newExportCmd() *cobra.Command {
	var outputDir string

	cmd := &cobra.Command{
		Use:   "export <project> --output <dir>",
		Short: "Export a project's knowledge bases to a backup file",
		Long: `export writes project's bound knowledge bases (documents and
embeddings) to a self-contained SQLite file under --output, plus a sidecar
manifest describing it. The pair can later be loaded with 'kbserver restore'.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, args[0], outputDir)
		},
	}
	cmd.Flags().StringVar(&outputDir, "output", "exports", "Directory to write the export database and manifest to")
	return cmd
}

func runExport(cmd *cobra.Command, projectName, outputDir string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	project, err := findProjectByName(ctx, a.metadata, projectName)
	if err != nil {
		return err
	}
	if project == nil {
		return kberrors.NotFoundError(kberrors.ErrCodeProjectNotFound, "project not found: "+projectName, nil)
	}

	dbPath, manifestPath, err := kbexport.Export(ctx, a.metadata, project, outputDir)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}

	w := output.New(cmd.OutOrStdout())
	w.Successf("Exported %s", dbPath)
	w.Status("", "Manifest "+manifestPath)
	return nil
}
