package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/time/rate"

	"github.com/kbserver/kbserver/internal/gitignore"
	"github.com/kbserver/kbserver/internal/kbstore"
)

// MaxSyncTasksPerSecond bounds the rate of sync tasks dispatched for a single
// project, so a burst across many files (e.g. a branch checkout) can't
// overwhelm the indexing pipeline.
const MaxSyncTasksPerSecond = 200

// SyncTask is a single coalesced file-change notification scoped to the
// (project, role) pair a Hook watches.
type SyncTask struct {
	ProjectID string
	Role      kbstore.ProjectRole
	Event     FileEvent
}

// HookWatcher binds a kbstore.Hook to a HybridWatcher: it watches Hook.FolderPath,
// restricts events to Hook.Patterns (glob filtering beyond .gitignore), and
// rate-limits dispatched tasks to MaxSyncTasksPerSecond per project.
type HookWatcher struct {
	hook    *kbstore.Hook
	watcher *HybridWatcher
	limiter *rate.Limiter
	tasks   chan SyncTask
	errs    chan error

	mu      sync.Mutex
	stopped bool
}

// NewHookWatcher creates a watcher scoped to a single Hook's watched folder.
func NewHookWatcher(hook *kbstore.Hook, opts Options) (*HookWatcher, error) {
	if hook == nil {
		return nil, fmt.Errorf("hook is required")
	}
	if hook.FolderPath == "" {
		return nil, fmt.Errorf("hook %s/%s has no folder path", hook.ProjectID, hook.Role)
	}

	w, err := NewHybridWatcher(opts.WithDefaults())
	if err != nil {
		return nil, fmt.Errorf("create watcher for hook %s/%s: %w", hook.ProjectID, hook.Role, err)
	}

	return &HookWatcher{
		hook:    hook,
		watcher: w,
		limiter: rate.NewLimiter(rate.Limit(MaxSyncTasksPerSecond), MaxSyncTasksPerSecond),
		tasks:   make(chan SyncTask, opts.WithDefaults().EventBufferSize),
		errs:    make(chan error, 10),
	}, nil
}

// Start begins watching the hook's folder and dispatching rate-limited sync
// tasks. Blocks until ctx is cancelled or Stop is called, mirroring Watcher.Start.
func (hw *HookWatcher) Start(ctx context.Context) error {
	startErr := make(chan error, 1)
	go func() { startErr <- hw.watcher.Start(ctx, hw.hook.FolderPath) }()

	go hw.pump(ctx)

	select {
	case err := <-startErr:
		return err
	case <-ctx.Done():
		return hw.Stop()
	}
}

// pump drains debounced batches from the underlying watcher, applies the
// hook's pattern filter, and enforces the per-project task rate limit before
// handing sync tasks to callers via Tasks().
func (hw *HookWatcher) pump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-hw.watcher.Events():
			if !ok {
				close(hw.tasks)
				return
			}
			for _, ev := range batch {
				if len(hw.hook.Patterns) > 0 && !gitignore.MatchesAnyPattern(ev.Path, hw.hook.Patterns) {
					continue
				}
				if err := hw.limiter.Wait(ctx); err != nil {
					return
				}
				task := SyncTask{ProjectID: hw.hook.ProjectID, Role: hw.hook.Role, Event: ev}
				select {
				case hw.tasks <- task:
				default:
					slog.Warn("hook sync task buffer full, dropping",
						slog.String("project_id", hw.hook.ProjectID),
						slog.String("path", ev.Path))
				}
			}
		case err, ok := <-hw.watcher.Errors():
			if !ok {
				continue
			}
			select {
			case hw.errs <- err:
			default:
			}
		}
	}
}

// Tasks returns the channel of rate-limited, pattern-filtered sync tasks.
func (hw *HookWatcher) Tasks() <-chan SyncTask {
	return hw.tasks
}

// Errors returns the channel of non-fatal watcher errors.
func (hw *HookWatcher) Errors() <-chan error {
	return hw.errs
}

// Stop stops the underlying watcher. Safe to call multiple times.
func (hw *HookWatcher) Stop() error {
	hw.mu.Lock()
	defer hw.mu.Unlock()
	if hw.stopped {
		return nil
	}
	hw.stopped = true
	return hw.watcher.Stop()
}
