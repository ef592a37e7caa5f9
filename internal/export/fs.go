package export

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	foundationerrors "git.home.luguber.info/inful/blogsync/internal/foundation/errors"
)

func exists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

// writeAtomic writes content to p through a temp file in the same directory.
func writeAtomic(p, content string) error {
	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fsError("create directory", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".blogsync-*.tmp")
	if err != nil {
		return fsError("create temp file", dir, err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.WriteString(content); err != nil {
		_ = tmp.Close()
		return fsError("write temp file", tmpName, err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		return fsError("chmod temp file", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fsError("close temp file", tmpName, err)
	}
	if err := os.Rename(tmpName, p); err != nil {
		return fsError("rename temp file", p, err)
	}
	return nil
}

// moveFile renames src to dst, creating dst's parent.
func moveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return fsError("create directory", filepath.Dir(dst), err)
	}
	if err := os.Rename(src, dst); err != nil {
		return fsError("move file", src, err)
	}
	return nil
}

// pruneEmptyDirs removes empty directories from dir upwards, stopping before stop.
func pruneEmptyDirs(dir, stop string) {
	stop = filepath.Clean(stop)
	for {
		dir = filepath.Clean(dir)
		if dir == stop || !strings.HasPrefix(dir, stop+string(filepath.Separator)) {
			return
		}
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return
		}
		if err := os.Remove(dir); err != nil && !errors.Is(err, os.ErrNotExist) {
			return
		}
		dir = filepath.Dir(dir)
	}
}

func fsError(op, path string, err error) error {
	return foundationerrors.FileSystemError(op+" failed").
		WithCause(err).
		WithContext("path", path).
		Build()
}
