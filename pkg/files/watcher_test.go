package files

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherReportsModification(t *testing.T) {
	path := filepath.Join(t.TempDir(), "harbormaster.yml")
	require.NoError(t, os.WriteFile(path, []byte("apps: {}\n"), 0o644))

	changed := make(chan string, 1)
	w := NewWatcher(path, 5*time.Millisecond, func(p string) {
		select {
		case changed <- p:
		default:
		}
	})
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	// A strictly newer mtime, without depending on filesystem resolution.
	future := time.Now().Add(10 * time.Second)
	require.NoError(t, os.Chtimes(path, future, future))

	select {
	case p := <-changed:
		assert.Equal(t, path, p)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not report the change")
	}
}

func TestWatcherIgnoresUnchangedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "harbormaster.yml")
	require.NoError(t, os.WriteFile(path, []byte("apps: {}\n"), 0o644))

	changed := make(chan string, 1)
	w := NewWatcher(path, 5*time.Millisecond, func(p string) {
		select {
		case changed <- p:
		default:
		}
	})
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	select {
	case <-changed:
		t.Fatal("watcher reported a change for an untouched file")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWatcherRequiresExistingFile(t *testing.T) {
	w := NewWatcher(filepath.Join(t.TempDir(), "missing.yml"), time.Millisecond, nil)
	assert.Error(t, w.Start(context.Background()))
}

func TestWatcherStopIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "harbormaster.yml")
	require.NoError(t, os.WriteFile(path, []byte("apps: {}\n"), 0o644))

	w := NewWatcher(path, time.Millisecond, nil)
	require.NoError(t, w.Start(context.Background()))
	w.Stop()
	w.Stop()
}
