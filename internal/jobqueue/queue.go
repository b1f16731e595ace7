// Package jobqueue generalizes the teacher's single-purpose background
// indexer into a polymorphic job queue: any kbstore.JobKind can be
// submitted, a bounded worker pool runs them concurrently, and jobs sharing
// a coalescing key are serialized against each other.
package jobqueue

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/kbserver/kbserver/internal/kbstore"
)

// Func is the work a submitted job performs. It receives a Progress handle
// for reporting percent/message updates back through the job store.
type Func func(ctx context.Context, progress *Progress) error

// DefaultWorkers is the default worker pool size: min(4, NumCPU).
func DefaultWorkers() int {
	if n := runtime.NumCPU(); n < 4 {
		return n
	}
	return 4
}

// Queue runs submitted jobs on a bounded worker pool, persisting job state
// to a kbstore.MetadataStore and serializing jobs that share a coalescing key.
type Queue struct {
	store kbstore.MetadataStore
	sem   *semaphore.Weighted
	genID func() string

	mu        sync.Mutex
	keyLocks  map[string]*sync.Mutex
	cancelFns map[string]context.CancelFunc
}

// New creates a Queue backed by store, running up to workers jobs
// concurrently (workers <= 0 uses DefaultWorkers()).
func New(store kbstore.MetadataStore, workers int) *Queue {
	if workers <= 0 {
		workers = DefaultWorkers()
	}
	return &Queue{
		store:     store,
		sem:       semaphore.NewWeighted(int64(workers)),
		genID:     newJobID,
		keyLocks:  make(map[string]*sync.Mutex),
		cancelFns: make(map[string]context.CancelFunc),
	}
}

// Submit creates a queued Job row and schedules fn to run. It returns
// immediately with the Job in state "queued"; fn runs asynchronously once a
// worker slot is free and any job sharing coalesceKey has finished.
// coalesceKey may be empty, meaning no serialization against other jobs.
func (q *Queue) Submit(ctx context.Context, kind kbstore.JobKind, params map[string]string, coalesceKey string, fn Func) (*kbstore.Job, error) {
	job := &kbstore.Job{
		ID:          q.genID(),
		Kind:        kind,
		State:       kbstore.JobQueued,
		Params:      params,
		CoalesceKey: coalesceKey,
	}
	if err := q.store.SaveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("save queued job: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	q.mu.Lock()
	q.cancelFns[job.ID] = cancel
	q.mu.Unlock()

	go q.run(runCtx, job, coalesceKey, fn)

	return job, nil
}

// Cancel requests cancellation of a running or queued job. Returns false if
// the job is unknown to this queue instance (e.g. already completed).
func (q *Queue) Cancel(jobID string) bool {
	q.mu.Lock()
	cancel, ok := q.cancelFns[jobID]
	q.mu.Unlock()
	if !ok {
		return false
	}
	cancel()
	return true
}

// run waits for the coalescing lock and a worker slot, then executes fn,
// persisting state transitions to the job store throughout.
func (q *Queue) run(ctx context.Context, job *kbstore.Job, coalesceKey string, fn Func) {
	defer func() {
		q.mu.Lock()
		delete(q.cancelFns, job.ID)
		q.mu.Unlock()
	}()

	unlock := q.lockCoalesceKey(coalesceKey)
	defer unlock()

	if err := q.sem.Acquire(ctx, 1); err != nil {
		q.finish(ctx, job, kbstore.JobCancelled, "", ctx.Err())
		return
	}
	defer q.sem.Release(1)

	job.State = kbstore.JobRunning
	job.StartedAt = time.Now()
	if err := q.store.SaveJob(ctx, job); err != nil {
		slog.Warn("jobqueue: failed to persist running state",
			slog.String("job_id", job.ID), slog.String("error", err.Error()))
	}

	progress := &Progress{ctx: ctx, store: q.store, job: job}
	err := fn(ctx, progress)

	switch {
	case err != nil && ctx.Err() != nil:
		q.finish(ctx, job, kbstore.JobCancelled, "", ctx.Err())
	case err != nil:
		q.finish(ctx, job, kbstore.JobFailed, "", err)
	default:
		q.finish(ctx, job, kbstore.JobCompleted, "", nil)
	}
}

func (q *Queue) finish(ctx context.Context, job *kbstore.Job, state kbstore.JobState, message string, err error) {
	job.State = state
	job.CompletedAt = time.Now()
	if message != "" {
		job.Message = message
	}
	if err != nil {
		job.Error = err.Error()
	}
	if state == kbstore.JobCompleted {
		job.Percent = 100
	}
	if saveErr := q.store.SaveJob(context.WithoutCancel(ctx), job); saveErr != nil {
		slog.Warn("jobqueue: failed to persist terminal state",
			slog.String("job_id", job.ID), slog.String("error", saveErr.Error()))
	}
}

// lockCoalesceKey acquires the mutex for coalesceKey (a no-op lock if
// coalesceKey is empty), blocking until any job sharing the key finishes.
func (q *Queue) lockCoalesceKey(coalesceKey string) func() {
	if coalesceKey == "" {
		return func() {}
	}

	q.mu.Lock()
	l, ok := q.keyLocks[coalesceKey]
	if !ok {
		l = &sync.Mutex{}
		q.keyLocks[coalesceKey] = l
	}
	q.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func newJobID() string {
	return fmt.Sprintf("job-%d-%d", time.Now().UnixNano(), nextSeq())
}

var seqMu sync.Mutex
var seq int

func nextSeq() int {
	seqMu.Lock()
	defer seqMu.Unlock()
	seq++
	return seq
}
