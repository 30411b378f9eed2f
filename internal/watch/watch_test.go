package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherTriggersOnWrite(t *testing.T) {
	dir := t.TempDir()

	w := New(dir)
	w.debounce = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "rdfpatch-0001.nq"), []byte("a"), 0o644))

	select {
	case <-w.Triggered():
	case <-time.After(2 * time.Second):
		t.Fatal("expected a trigger after writing a file")
	}
}

func TestWatcherCollapsesBurstsIntoOneTrigger(t *testing.T) {
	dir := t.TempDir()

	w := New(dir)
	w.debounce = 100 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "rdfpatch-burst.nq"), []byte{byte(i)}, 0o644))
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case <-w.Triggered():
	case <-time.After(2 * time.Second):
		t.Fatal("expected a trigger after the burst settled")
	}

	select {
	case <-w.Triggered():
		t.Fatal("expected only a single trigger for one settled burst")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcherStopsOnContextCancel(t *testing.T) {
	dir := t.TempDir()

	w := New(dir)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	cancel()

	// the debounce goroutine should exit promptly; nothing to assert
	// directly but this guards against a deadlock hanging the test.
	assert.Eventually(t, func() bool { return true }, time.Second, 10*time.Millisecond)
}
