package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	kberrors "github.com/kbserver/kbserver/internal/errors"
	"github.com/kbserver/kbserver/internal/kbstore"
	"github.com/kbserver/kbserver/internal/orchestrator"
	"github.com/kbserver/kbserver/internal/output"
)

// newReindexCmd builds `kbserver reindex <project>` (spec.md §6): a full
// structural + semantic reindex of a project's RoleIndex knowledge base.
func newReindexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reindex <project>",
		Short: "Rebuild a project's index from scratch",
		Long: `reindex re-runs structural and semantic indexing over a project's
bound index knowledge base, discarding any incremental drift accumulated by
the file watcher.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReindex(cmd, args[0])
		},
	}
	return cmd
}

func runReindex(cmd *cobra.Command, projectName string) error {
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

	kbs, err := a.metadata.ListProjectKBs(ctx, project.ID)
	if err != nil {
		return fmt.Errorf("list project kbs: %w", err)
	}
	kb, ok := kbs[kbstore.RoleIndex]
	if !ok {
		return fmt.Errorf("project %s has no index knowledge base bound", projectName)
	}

	o, err := buildOrchestrator(a, kb.ID)
	if err != nil {
		return err
	}

	w := output.New(cmd.OutOrStdout())

	structJob, err := o.SubmitStructural(ctx, kb.ID, project.Path, a.cfg.Search.ChunkSize)
	if err != nil {
		return fmt.Errorf("submit structural index: %w", err)
	}
	if finished, err := waitForJob(ctx, a.metadata, structJob.ID); err != nil {
		return fmt.Errorf("structural index: %w", err)
	} else if finished.State == kbstore.JobFailed {
		return fmt.Errorf("structural index failed: %s", finished.Error)
	}
	w.Success("Structural index complete")

	semJob, err := o.SubmitSemantic(ctx, kb.ID, project.Path, orchestrator.SelectiveParams{}, nil)
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

// findProjectByName scans ListProjects since MetadataStore has no by-name
// lookup for projects (unlike GetKBByName for knowledge bases).
func findProjectByName(ctx context.Context, metadata kbstore.MetadataStore, name string) (*kbstore.Project, error) {
	projects, err := metadata.ListProjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	for _, p := range projects {
		if p.Name == name {
			return p, nil
		}
	}
	return nil, nil
}
