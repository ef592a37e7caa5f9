package logtail

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func appendLine(t *testing.T, path, line string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(line)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func startTailer(t *testing.T, path string, fromStart bool) *syncBuffer {
	t.Helper()
	out := &syncBuffer{}
	tl := New(path, out)
	require.NoError(t, tl.Open(fromStart))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tl.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
	return out
}

func TestTailer_FollowsAppendedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync.log")
	appendLine(t, path, "old\n")

	out := startTailer(t, path, false)
	require.Empty(t, out.String())

	appendLine(t, path, "level=INFO msg=\"Sync started\"\n")
	require.Eventually(t, func() bool {
		return out.String() == "level=INFO msg=\"Sync started\"\n"
	}, 5*time.Second, 20*time.Millisecond)
}

func TestTailer_FromStart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync.log")
	appendLine(t, path, "first\n")

	out := startTailer(t, path, true)
	require.Equal(t, "first\n", out.String())

	appendLine(t, path, "second\n")
	require.Eventually(t, func() bool { return out.String() == "first\nsecond\n" }, 5*time.Second, 20*time.Millisecond)
}

func TestTailer_WaitsForMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "later.log")

	out := startTailer(t, path, false)
	appendLine(t, path, "created\n")
	require.Eventually(t, func() bool { return out.String() == "created\n" }, 5*time.Second, 20*time.Millisecond)
}

func TestTailer_ContextEndsRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync.log")
	appendLine(t, path, "x\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, Follow(ctx, path, &syncBuffer{}, true))
}
