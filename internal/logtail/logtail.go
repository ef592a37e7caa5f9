// Package logtail follows a growing logfile, such as the live log of a sync
// run, and copies appended bytes to a writer.
package logtail

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	foundationerrors "git.home.luguber.info/inful/blogsync/internal/foundation/errors"
	"git.home.luguber.info/inful/blogsync/internal/logfields"
	"github.com/fsnotify/fsnotify"
)

// Tailer watches the directory holding one file (more reliable than watching
// the file directly across truncation and recreation).
type Tailer struct {
	path    string
	out     io.Writer
	watcher *fsnotify.Watcher
	file    *os.File
	offset  int64
}

// New returns a Tailer for path writing to out.
func New(path string, out io.Writer) *Tailer {
	return &Tailer{path: path, out: out}
}

// Follow opens path and streams appended content to out until ctx is done.
func Follow(ctx context.Context, path string, out io.Writer, fromStart bool) error {
	t := New(path, out)
	if err := t.Open(fromStart); err != nil {
		return err
	}
	return t.Run(ctx)
}

// Open starts watching and, when the file already exists, emits its current
// content if fromStart is set. A missing file is picked up once created.
func (t *Tailer) Open(fromStart bool) error {
	abs, err := filepath.Abs(t.path)
	if err != nil {
		return foundationerrors.WrapError(err, foundationerrors.CategoryFileSystem, "resolve log path").
			WithContext("path", t.path).
			Build()
	}
	t.path = abs

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return foundationerrors.WrapError(err, foundationerrors.CategoryFileSystem, "create file watcher").Build()
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		_ = watcher.Close()
		return foundationerrors.WrapError(err, foundationerrors.CategoryFileSystem, "watch log directory").
			WithContext("dir", filepath.Dir(abs)).
			Build()
	}
	t.watcher = watcher

	if err := t.open(!fromStart); err != nil {
		return err
	}
	return t.drain()
}

// Run processes watcher events until ctx is done. It closes the watcher and
// the file on return.
func (t *Tailer) Run(ctx context.Context) error {
	defer t.Close()
	base := filepath.Base(t.path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-t.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if err := t.handle(event); err != nil {
				return err
			}
		case err, ok := <-t.watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("Log watcher error", logfields.Path(t.path), logfields.Error(err))
		}
	}
}

// Close releases the watcher and the file.
func (t *Tailer) Close() {
	t.closeFile()
	if t.watcher != nil {
		_ = t.watcher.Close()
		t.watcher = nil
	}
}

func (t *Tailer) handle(event fsnotify.Event) error {
	switch {
	case event.Op&fsnotify.Create == fsnotify.Create:
		// A recreated file is read from the beginning.
		t.closeFile()
		if err := t.open(false); err != nil {
			return err
		}
		return t.drain()
	case event.Op&fsnotify.Write == fsnotify.Write:
		if t.file == nil {
			if err := t.open(false); err != nil {
				return err
			}
		}
		return t.drain()
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		slog.Debug("Log file went away", logfields.Path(t.path))
		t.closeFile()
	}
	return nil
}

// open opens the file, positioned at its end when seekEnd is set. A missing
// file is not an error.
func (t *Tailer) open(seekEnd bool) error {
	f, err := os.Open(t.path) // #nosec G304 -- operator supplied log path
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return foundationerrors.WrapError(err, foundationerrors.CategoryFileSystem, "open log file").
			WithContext("path", t.path).
			Build()
	}
	t.file, t.offset = f, 0
	if seekEnd {
		if t.offset, err = f.Seek(0, io.SeekEnd); err != nil {
			t.closeFile()
			return foundationerrors.WrapError(err, foundationerrors.CategoryFileSystem, "seek log file").Build()
		}
	}
	return nil
}

// drain copies everything past offset. A file shorter than offset was
// truncated and is read again from the start.
func (t *Tailer) drain() error {
	if t.file == nil {
		return nil
	}
	info, err := t.file.Stat()
	if err != nil {
		return foundationerrors.WrapError(err, foundationerrors.CategoryFileSystem, "stat log file").Build()
	}
	if info.Size() < t.offset {
		t.offset = 0
	}
	if _, err := t.file.Seek(t.offset, io.SeekStart); err != nil {
		return foundationerrors.WrapError(err, foundationerrors.CategoryFileSystem, "seek log file").Build()
	}
	n, err := io.Copy(t.out, t.file)
	t.offset += n
	if err != nil {
		return foundationerrors.WrapError(err, foundationerrors.CategoryFileSystem, "copy log output").Build()
	}
	return nil
}

func (t *Tailer) closeFile() {
	if t.file != nil {
		_ = t.file.Close()
		t.file = nil
	}
}
