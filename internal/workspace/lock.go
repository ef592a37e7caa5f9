package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	foundationerrors "git.home.luguber.info/inful/blogsync/internal/foundation/errors"
	"git.home.luguber.info/inful/blogsync/internal/logfields"
)

// LockFileName is created inside the working copy's .git directory.
const LockFileName = "blogsync.lock"

// Locker hands out exclusive access to working copies.
type Locker struct {
	mu         sync.Mutex
	held       map[string]chan struct{}
	poll       time.Duration
	staleAfter time.Duration
}

// NewLocker returns a Locker. Lock files older than staleAfter are treated
// as left behind by a crashed process and removed; zero disables that.
func NewLocker(staleAfter time.Duration) *Locker {
	return &Locker{held: make(map[string]chan struct{}), poll: 50 * time.Millisecond, staleAfter: staleAfter}
}

// Acquire blocks until dir is free or ctx ends. The returned release func
// must be called exactly once.
func (l *Locker) Acquire(ctx context.Context, dir string) (func(), error) {
	key, err := filepath.Abs(dir)
	if err != nil {
		key = filepath.Clean(dir)
	}
	if err := l.acquireLocal(ctx, key); err != nil {
		return nil, err
	}
	lockPath := lockFilePath(key)
	if err := l.acquireFile(ctx, lockPath); err != nil {
		l.releaseLocal(key)
		return nil, err
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			if rerr := os.Remove(lockPath); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
				slog.Warn("Failed to remove working copy lock", logfields.Path(lockPath), logfields.Error(rerr))
			}
			l.releaseLocal(key)
		})
	}, nil
}

func (l *Locker) acquireLocal(ctx context.Context, key string) error {
	for {
		l.mu.Lock()
		ch, busy := l.held[key]
		if !busy {
			l.held[key] = make(chan struct{})
			l.mu.Unlock()
			return nil
		}
		l.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return lockTimeout(key, ctx.Err())
		}
	}
}

func (l *Locker) releaseLocal(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ch, ok := l.held[key]; ok {
		close(ch)
		delete(l.held, key)
	}
}

func (l *Locker) acquireFile(ctx context.Context, lockPath string) error {
	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()
	for {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			_, _ = fmt.Fprintf(f, "%d %s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
			return f.Close()
		}
		if !errors.Is(err, os.ErrExist) {
			return foundationerrors.FileSystemError("cannot create working copy lock").
				WithCause(err).
				WithContext("path", lockPath).
				Build()
		}
		if l.removeStale(lockPath) {
			continue
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return lockTimeout(lockPath, ctx.Err())
		}
	}
}

func (l *Locker) removeStale(lockPath string) bool {
	if l.staleAfter <= 0 {
		return false
	}
	fi, err := os.Stat(lockPath)
	if err != nil || time.Since(fi.ModTime()) < l.staleAfter {
		return false
	}
	slog.Warn("Removing stale working copy lock", logfields.Path(lockPath), slog.Time("modified", fi.ModTime()))
	return os.Remove(lockPath) == nil
}

func lockFilePath(dir string) string {
	gitDir := filepath.Join(dir, ".git")
	if fi, err := os.Stat(gitDir); err == nil && fi.IsDir() {
		return filepath.Join(gitDir, LockFileName)
	}
	return filepath.Join(dir, "."+LockFileName)
}

func lockTimeout(path string, cause error) error {
	return foundationerrors.NewError(foundationerrors.CategoryConflict, "working copy is busy").
		WithCause(cause).
		WithContext("path", path).
		Build()
}
