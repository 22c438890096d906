package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_ReloadKeepsLastValidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("window:\n  length: 30\n"), 0o644))

	w, err := newWatcher(path)
	require.NoError(t, err)
	snap := w.Snapshot()
	assert.Equal(t, 1, snap.Version)
	assert.Equal(t, 30, snap.Config.Window.Length)

	var got []int
	w.Subscribe(func(s Snapshot) { got = append(got, s.Config.Window.Length) })

	require.NoError(t, os.WriteFile(path, []byte("window:\n  length: 45\n"), 0o644))
	require.NoError(t, w.reload())
	w.notify()
	assert.Equal(t, 45, w.Current().Window.Length)
	assert.Equal(t, []int{45}, got)

	require.NoError(t, os.WriteFile(path, []byte("window:\n  mode: rolling\n"), 0o644))
	assert.Error(t, w.reload())
	assert.Equal(t, 45, w.Current().Window.Length)
	assert.Equal(t, 2, w.Snapshot().Version)
}

func TestWatcher_SnapshotIsACopy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("decision:\n  init_boundary: [1, 2]\n"), 0o644))
	w, err := newWatcher(path)
	require.NoError(t, err)

	cfg := w.Current()
	cfg.Decision.InitBoundary[0] = 99
	assert.Equal(t, 1.0, w.Current().Decision.InitBoundary[0])
}

func TestNewWatcher_RequiresPath(t *testing.T) {
	_, err := NewWatcher("")
	assert.Error(t, err)
	_, err = NewWatcher(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
