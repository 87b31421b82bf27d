package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const watcherTestProject = `
name: demo
media_path: /media/demo.mp4
fps: 30
duration_secs: 60
`

func TestProjectWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "project.yaml")
	require.NoError(t, os.WriteFile(path, []byte(watcherTestProject), 0o644))

	reloaded := make(chan *ProjectConfig, 4)
	watcher, err := NewProjectWatcher(hclog.NewNullLogger(), path, func(p *ProjectConfig) {
		reloaded <- p
	})
	require.NoError(t, err)
	defer watcher.Close()

	updated := watcherTestProject + "segments:\n  - recording_clip: 0\n    start: 0\n    end: 30\n"
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	select {
	case project := <-reloaded:
		assert.Equal(t, "demo", project.Name)
		assert.Len(t, project.Segments, 1)
	case <-time.After(3 * time.Second):
		t.Fatal("reload callback never fired")
	}
}

func TestProjectWatcher_IgnoresInvalidRevision(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "project.yaml")
	require.NoError(t, os.WriteFile(path, []byte(watcherTestProject), 0o644))

	reloaded := make(chan *ProjectConfig, 4)
	watcher, err := NewProjectWatcher(hclog.NewNullLogger(), path, func(p *ProjectConfig) {
		reloaded <- p
	})
	require.NoError(t, err)
	defer watcher.Close()

	// A half-saved revision that fails validation must not reach the callback.
	require.NoError(t, os.WriteFile(path, []byte("fps: 0\n"), 0o644))

	select {
	case <-reloaded:
		t.Fatal("invalid project revision should not trigger a reload")
	case <-time.After(600 * time.Millisecond):
	}
}

func TestProjectWatcher_IgnoresSiblingFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "project.yaml")
	require.NoError(t, os.WriteFile(path, []byte(watcherTestProject), 0o644))

	reloaded := make(chan *ProjectConfig, 4)
	watcher, err := NewProjectWatcher(hclog.NewNullLogger(), path, func(p *ProjectConfig) {
		reloaded <- p
	})
	require.NoError(t, err)
	defer watcher.Close()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x: 1\n"), 0o644))

	select {
	case <-reloaded:
		t.Fatal("writes to sibling files should not trigger a reload")
	case <-time.After(600 * time.Millisecond):
	}
}

func TestProjectWatcher_CloseIsClean(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "project.yaml")
	require.NoError(t, os.WriteFile(path, []byte(watcherTestProject), 0o644))

	watcher, err := NewProjectWatcher(hclog.NewNullLogger(), path, nil)
	require.NoError(t, err)
	assert.NoError(t, watcher.Close())
}
