package orchestrator

import (
	"context"
	"fmt"

	"github.com/kbserver/kbserver/internal/jobqueue"
	"github.com/kbserver/kbserver/internal/kbstore"
)

// Orchestrator submits structural and semantic indexing runs to a job
// queue, satisfying spec.md §4.10: the orchestrator drives both pipelines
// end to end and emits progress events consumed by the job queue.
type Orchestrator struct {
	Queue      *jobqueue.Queue
	Structural *StructuralIndexer
	Semantic   *SemanticIndexer
}

// New wires an Orchestrator from its already-constructed indexers and queue.
func New(queue *jobqueue.Queue, structural *StructuralIndexer, semantic *SemanticIndexer) *Orchestrator {
	return &Orchestrator{Queue: queue, Structural: structural, Semantic: semantic}
}

// structuralCoalesceKey and semanticCoalesceKey scope serialization to one
// run per (kind, kb) pair: two structural reindex requests for the same KB
// must not race, but a structural and a semantic run for the same KB may.
func structuralCoalesceKey(kbID string) string { return "structural:" + kbID }
func semanticCoalesceKey(kbID string) string   { return "semantic:" + kbID }

// SubmitStructural enqueues a structural indexing run for kbID and returns
// the queued Job immediately.
func (o *Orchestrator) SubmitStructural(ctx context.Context, kbID, projectPath string, tokenBudget int) (*kbstore.Job, error) {
	params := map[string]string{"kb_id": kbID, "project_path": projectPath}
	return o.Queue.Submit(ctx, kbstore.JobKindStructuralIndex, params, structuralCoalesceKey(kbID),
		func(jobCtx context.Context, progress *jobqueue.Progress) error {
			return o.Structural.Run(jobCtx, kbID, projectPath, tokenBudget, progress)
		})
}

// SubmitSemantic enqueues a semantic indexing run for kbID, optionally
// scoped to hook (whose synced-files map is updated on completion).
func (o *Orchestrator) SubmitSemantic(ctx context.Context, kbID, projectPath string, selective SelectiveParams, hook *kbstore.Hook) (*kbstore.Job, error) {
	params := map[string]string{"kb_id": kbID, "project_path": projectPath}
	return o.Queue.Submit(ctx, kbstore.JobKindSemanticIndex, params, semanticCoalesceKey(kbID),
		func(jobCtx context.Context, progress *jobqueue.Progress) error {
			_, err := o.Semantic.Run(jobCtx, kbID, projectPath, selective, hook, progress)
			return err
		})
}

// ReindexFile runs a single-file semantic reindex, as dispatched by the
// watcher's sync tasks (spec.md §4.6): coalescing key is per (kb, path) so
// repeated events for the same file serialize and the final event wins.
func (o *Orchestrator) ReindexFile(ctx context.Context, kbID, projectPath, relPath string, hook *kbstore.Hook) (*kbstore.Job, error) {
	params := map[string]string{"kb_id": kbID, "project_path": projectPath, "path": relPath}
	key := fmt.Sprintf("reindex_file:%s:%s", kbID, relPath)
	return o.Queue.Submit(ctx, kbstore.JobKindReindexFile, params, key,
		func(jobCtx context.Context, progress *jobqueue.Progress) error {
			return o.Semantic.indexSinglePath(jobCtx, kbID, projectPath, relPath, hook, progress)
		})
}
