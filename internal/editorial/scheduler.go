package editorial

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"git.home.luguber.info/inful/blogsync/internal/export"
	"git.home.luguber.info/inful/blogsync/internal/logfields"
)

// Runner exports one post.
type Runner interface {
	Export(ctx context.Context, postID int64) (export.Result, error)
}

// Scheduler runs exports in the background. It tracks its goroutines so
// shutdown never calls WaitGroup.Add concurrently with Wait.
type Scheduler struct {
	runner  Runner
	timeout time.Duration

	mu       sync.Mutex
	wg       sync.WaitGroup
	stopping bool
}

// NewScheduler returns a Scheduler. A zero timeout leaves exports unbounded.
func NewScheduler(runner Runner, timeout time.Duration) *Scheduler {
	return &Scheduler{runner: runner, timeout: timeout}
}

// Schedule starts an export of postID and returns without waiting. It reports
// false once the scheduler is stopping.
func (s *Scheduler) Schedule(postID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopping {
		return false
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx := context.Background()
		if s.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.timeout)
			defer cancel()
		}
		res, err := s.runner.Export(WithoutExport(ctx), postID)
		if err != nil {
			slog.Error("Background export failed", logfields.PostID(postID), logfields.Error(err))
			return
		}
		slog.Debug("Background export finished",
			logfields.PostID(postID), logfields.Path(res.Path), slog.Bool("changed", res.Changed()))
	}()
	return true
}

// StopAndWait refuses new work and waits for running exports, bounded by ctx.
func (s *Scheduler) StopAndWait(ctx context.Context) error {
	s.mu.Lock()
	s.stopping = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
