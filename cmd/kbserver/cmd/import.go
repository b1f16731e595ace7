package cmd

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kbserver/kbserver/internal/kbstore"
	"github.com/kbserver/kbserver/internal/orchestrator"
	"github.com/kbserver/kbserver/internal/output"
)

// newImportCmd builds `kbserver import <kb> <path>` (spec.md §6): runs a
// one-shot structural + semantic index of path into kb, creating kb if it
// doesn't already exist, and blocks until both jobs finish.
func newImportCmd() *cobra.Command {
	var kbType string

	cmd := &cobra.Command{
		Use:   "import <kb> <path>",
		Short: "Import a directory into a knowledge base",
		Long: `import indexes every file under path into kb, running the structural
parser (for code) and the semantic embedder, creating kb if it does not
already exist.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, args[0], args[1], kbType)
		},
	}
	cmd.Flags().StringVar(&kbType, "type", string(kbstore.KBTypeGeneric), "KB type when creating a new knowledge base")
	return cmd
}

func runImport(cmd *cobra.Command, kbName, path, kbTypeFlag string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	w := output.New(cmd.OutOrStdout())

	kb, err := a.metadata.GetKBByName(ctx, kbName)
	if err != nil {
		return err
	}
	if kb == nil {
		kb = &kbstore.KnowledgeBase{
			ID:        uuid.NewString(),
			Name:      kbName,
			Slug:      kbstore.Slugify(kbName),
			Type:      kbstore.KBType(kbTypeFlag),
			Dimension: a.embedder.Dimensions(),
		}
		if err := a.metadata.CreateKB(ctx, kb); err != nil {
			return fmt.Errorf("create knowledge base: %w", err)
		}
		w.Successf("Created knowledge base %q", kbName)
	}

	o, err := buildOrchestrator(a, kb.ID)
	if err != nil {
		return err
	}

	structJob, err := o.SubmitStructural(ctx, kb.ID, path, a.cfg.Search.ChunkSize)
	if err != nil {
		return fmt.Errorf("submit structural index: %w", err)
	}
	if _, err := waitForJob(ctx, a.metadata, structJob.ID); err != nil {
		return fmt.Errorf("structural index: %w", err)
	}
	w.Success("Structural index complete")

	semJob, err := o.SubmitSemantic(ctx, kb.ID, path, orchestrator.SelectiveParams{}, nil)
	if err != nil {
		return fmt.Errorf("submit semantic index: %w", err)
	}
	finished, err := waitForJob(ctx, a.metadata, semJob.ID)
	if err != nil {
		return fmt.Errorf("semantic index: %w", err)
	}
	if finished.State == kbstore.JobFailed {
		return fmt.Errorf("semantic index failed: %s", finished.Error)
	}
	w.Successf("Semantic index complete: %s", finished.Message)

	return nil
}
