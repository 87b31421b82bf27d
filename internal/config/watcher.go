package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hashicorp/go-hclog"
)

// ProjectWatcher watches a project file and reloads it on change, so a
// running playback session picks up timeline edits without a restart.
type ProjectWatcher struct {
	logger      hclog.Logger
	watcher     *fsnotify.Watcher
	projectPath string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	debounceDelay time.Duration
	reloadTimer   *time.Timer
	timerMu       sync.Mutex

	onReload func(*ProjectConfig)
}

// NewProjectWatcher creates a watcher for the given project file.
// onReload is invoked with each successfully parsed new revision.
func NewProjectWatcher(logger hclog.Logger, projectPath string, onReload func(*ProjectConfig)) (*ProjectWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	pw := &ProjectWatcher{
		logger:        logger.Named("project-watcher"),
		watcher:       watcher,
		projectPath:   projectPath,
		ctx:           ctx,
		cancel:        cancel,
		debounceDelay: 250 * time.Millisecond,
		onReload:      onReload,
	}

	// Watch the directory: editors replace files with rename+create, which
	// drops a watch held on the file itself.
	if err := watcher.Add(filepath.Dir(projectPath)); err != nil {
		watcher.Close()
		cancel()
		return nil, fmt.Errorf("failed to watch project directory: %w", err)
	}

	pw.wg.Add(1)
	go pw.watchLoop()

	pw.logger.Info("watching project file", "path", projectPath)
	return pw, nil
}

func (pw *ProjectWatcher) watchLoop() {
	defer pw.wg.Done()

	for {
		select {
		case <-pw.ctx.Done():
			return

		case event, ok := <-pw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(pw.projectPath) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			pw.scheduleReload()

		case err, ok := <-pw.watcher.Errors:
			if !ok {
				return
			}
			pw.logger.Warn("file watcher error", "error", err)
		}
	}
}

// scheduleReload debounces bursts of write events into one reload
func (pw *ProjectWatcher) scheduleReload() {
	pw.timerMu.Lock()
	defer pw.timerMu.Unlock()

	if pw.reloadTimer != nil {
		pw.reloadTimer.Stop()
	}
	pw.reloadTimer = time.AfterFunc(pw.debounceDelay, pw.reload)
}

func (pw *ProjectWatcher) reload() {
	project, err := LoadProject(pw.projectPath)
	if err != nil {
		pw.logger.Error("failed to reload project file", "path", pw.projectPath, "error", err)
		return
	}

	pw.logger.Info("project file reloaded", "path", pw.projectPath, "segments", len(project.Segments))
	if pw.onReload != nil {
		pw.onReload(project)
	}
}

// Close stops watching and releases resources
func (pw *ProjectWatcher) Close() error {
	pw.cancel()
	err := pw.watcher.Close()
	pw.wg.Wait()

	pw.timerMu.Lock()
	if pw.reloadTimer != nil {
		pw.reloadTimer.Stop()
	}
	pw.timerMu.Unlock()

	return err
}
