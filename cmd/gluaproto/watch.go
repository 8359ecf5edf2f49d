package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// watchAndRerun re-executes the script whenever it or a loaded schema
// file changes, and blocks until interrupted. A failing run keeps the
// watch alive so the next edit gets another attempt.
func (a *app) watchAndRerun() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	names := make(map[string]struct{})
	dirs := make(map[string]struct{})
	for _, f := range a.watchedFiles() {
		abs, err := filepath.Abs(f)
		if err != nil {
			return fmt.Errorf("absolute path: %w", err)
		}
		names[abs] = struct{}{}
		dirs[filepath.Dir(abs)] = struct{}{}
	}

	// Watch directories rather than files, which survives editors
	// that save atomically.
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	a.log.Info("watching for changes", zap.Int("files", len(names)))

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			abs, err := filepath.Abs(event.Name)
			if err != nil {
				continue
			}
			if _, watched := names[abs]; !watched {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			a.log.Info("file changed", zap.String("file", event.Name))
			if err := a.runOnce(); err != nil {
				a.log.Error("run failed", zap.Error(err))
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			a.log.Error("watcher error", zap.Error(err))

		case <-sigCh:
			a.log.Info("shutting down")
			return nil
		}
	}
}

// watchedFiles lists every file whose change should trigger a rerun.
func (a *app) watchedFiles() []string {
	var files []string
	if a.cfg.Script != "" {
		files = append(files, a.cfg.Script)
	}
	files = append(files, a.cfg.SchemaSets...)
	for _, p := range a.cfg.ProtoFiles {
		// Proto names are import-path relative.
		resolved := p
		for _, dir := range a.cfg.ImportPaths {
			full := filepath.Join(dir, p)
			if _, err := os.Stat(full); err == nil {
				resolved = full
				break
			}
		}
		files = append(files, resolved)
	}
	return files
}
