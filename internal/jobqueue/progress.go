package jobqueue

import (
	"context"
	"log/slog"
	"sync"

	"github.com/kbserver/kbserver/internal/kbstore"
)

// Progress is handed to a running job's Func so it can report percent/message
// updates for a single kbstore.Job; every update is persisted through the job
// store.
type Progress struct {
	ctx   context.Context
	store kbstore.MetadataStore
	job   *kbstore.Job

	mu sync.Mutex
}

// Update sets the job's percent complete (0-100, clamped) and status message,
// persisting the change immediately.
func (p *Progress) Update(percent int, message string) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	p.mu.Lock()
	p.job.Percent = percent
	p.job.Message = message
	job := *p.job
	p.mu.Unlock()

	if err := p.store.SaveJob(p.ctx, &job); err != nil {
		slog.Warn("jobqueue: failed to persist progress update",
			slog.String("job_id", p.job.ID), slog.String("error", err.Error()))
	}
}

// JobID returns the ID of the job this Progress reports for.
func (p *Progress) JobID() string {
	return p.job.ID
}
