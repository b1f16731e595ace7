package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	kberrors "github.com/kbserver/kbserver/internal/errors"
)

// newStatsCmd builds `kbserver stats <kb>` (spec.md §6), reporting a
// knowledge base's index health via internal/registry.
func newStatsCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats <kb>",
		Short: "Show index statistics for a knowledge base",
		Long: `stats reports a knowledge base's document count, BM25 term count,
vector index size, and orphan ratio (vector ids with no graph node).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(cmd, args[0], jsonOutput)
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func runStats(cmd *cobra.Command, kbName string, jsonOutput bool) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	kb, err := a.metadata.GetKBByName(ctx, kbName)
	if err != nil {
		return err
	}
	if kb == nil {
		return kberrors.NotFoundError(kberrors.ErrCodeKBNotFound, "knowledge base not found: "+kbName, nil)
	}

	stats, err := a.registry.Stats(kb.ID)
	if err != nil {
		return fmt.Errorf("compute stats: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Knowledge base: %s (%s)\n", kb.Name, kb.ID)
	fmt.Fprintf(w, "  Documents:       %d\n", stats.DocumentCount)
	fmt.Fprintf(w, "  BM25 terms:      %d\n", stats.TermCount)
	fmt.Fprintf(w, "  Avg doc length:  %.1f\n", stats.AvgDocLength)
	fmt.Fprintf(w, "  Vector ids:      %d\n", stats.VectorValidIDs)
	fmt.Fprintf(w, "  Vector nodes:    %d\n", stats.VectorGraphNodes)
	fmt.Fprintf(w, "  Vector orphans:  %d\n", stats.VectorOrphans)
	fmt.Fprintf(w, "  Orphan ratio:    %.2f%%\n", stats.OrphanRatio*100)
	return nil
}
