package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tristendillon/delombok/core/logger"
)

// FileWatcher reruns OnChange after file activity under RootDir settles for
// Debounce. Runs never overlap.
type FileWatcher struct {
	Watcher      *fsnotify.Watcher
	RootDir      string
	ExcludePaths []string
	Debounce     time.Duration
	OnStart      func() error
	OnChange     func() error

	mu            sync.Mutex
	debounceTimer *time.Timer
	runMu         sync.Mutex
}

func NewFileWatcher(rootDir string, excludePaths []string, debounce time.Duration) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	exclude := make([]string, 0, len(excludePaths))
	for _, p := range excludePaths {
		if p != "" {
			exclude = append(exclude, filepath.Clean(p))
		}
	}

	return &FileWatcher{
		Watcher:      watcher,
		RootDir:      filepath.Clean(rootDir),
		ExcludePaths: exclude,
		Debounce:     debounce,
		OnStart:      func() error { return nil },
		OnChange:     func() error { return fmt.Errorf("OnChange not set") },
	}, nil
}

// Watch blocks until ctx is done or the underlying watcher fails.
func (fw *FileWatcher) Watch(ctx context.Context) error {
	if err := fw.addWatchersRecursively(fw.RootDir); err != nil {
		return fmt.Errorf("failed to add watchers: %w", err)
	}

	fw.run(fw.OnStart, "OnStart")

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}

			if fw.shouldExcludePath(event.Name) {
				continue
			}

			logger.Debug("File event: %s %s", event.Op, event.Name)

			if event.Has(fsnotify.Create) {
				if stat, err := os.Stat(event.Name); err == nil && stat.IsDir() {
					if err := fw.addWatchersRecursively(event.Name); err != nil {
						logger.Warn("Failed to watch new directory %s: %v", event.Name, err)
					}
				}
			}

			fw.debounceChange()

		case err, ok := <-fw.Watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			logger.Error("Watcher error: %v", err)
		}
	}
}

func (fw *FileWatcher) debounceChange() {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.debounceTimer != nil {
		fw.debounceTimer.Stop()
	}

	fw.debounceTimer = time.AfterFunc(fw.Debounce, func() {
		logger.Info("Source changes detected, rerunning delombok...")
		fw.run(fw.OnChange, "OnChange")
	})
}

func (fw *FileWatcher) run(fn func() error, name string) {
	fw.runMu.Lock()
	defer fw.runMu.Unlock()

	if err := fn(); err != nil {
		logger.Error("Watcher.%s failed: %v", name, err)
	}
}

// Close stops pending reruns and waits for a running one to finish.
func (fw *FileWatcher) Close() error {
	fw.mu.Lock()
	if fw.debounceTimer != nil {
		fw.debounceTimer.Stop()
	}
	fw.mu.Unlock()

	fw.runMu.Lock()
	defer fw.runMu.Unlock()
	return fw.Watcher.Close()
}

func (fw *FileWatcher) shouldExcludePath(path string) bool {
	path = filepath.Clean(path)

	for _, excludePath := range fw.ExcludePaths {
		if path == excludePath {
			return true
		}
		if strings.HasPrefix(path, excludePath+string(filepath.Separator)) {
			return true
		}
	}

	return false
}

func (fw *FileWatcher) addWatchersRecursively(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if !info.IsDir() {
			return nil
		}

		if fw.shouldExcludePath(path) {
			logger.Debug("Excluding directory: %s", path)
			return filepath.SkipDir
		}

		logger.Debug("Adding watcher for: %s", path)
		if err := fw.Watcher.Add(path); err != nil {
			return fmt.Errorf("failed to add watcher for %s: %w", path, err)
		}

		return nil
	})
}
