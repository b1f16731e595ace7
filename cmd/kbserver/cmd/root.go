// Package cmd provides the CLI commands for kbserver.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/kbserver/kbserver/pkg/version"
)

// NewRootCmd creates the root command for the kbserver CLI (spec.md §6: CLI
// surface is serve/import/stats/reindex/export/restore/version, exit codes
// 0/1/2/3 mapped by internal/errors.Category in main's exitCode).
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kbserver",
		Short: "Local-first multi-tenant knowledge base server",
		Long: `kbserver indexes one or more knowledge bases (codebases, docs, notes) and
serves hybrid BM25+semantic search over them to AI coding assistants via an
MCP Tool API (stdio/SSE) and an HTTP Resource API.

Run 'kbserver serve' to start the server once knowledge bases are populated
with 'kbserver import'.`,
		Version:      version.Version,
		SilenceUsage: true,
	}

	cmd.SetVersionTemplate("kbserver version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&dataDirFlag, "data-dir", "", "Override the kbserver data root (default: Config.DataDir)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newImportCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newReindexCmd())
	cmd.AddCommand(newExportCmd())
	cmd.AddCommand(newRestoreCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// dataDirFlag overrides Config.DataDir across every subcommand when set.
var dataDirFlag string

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
