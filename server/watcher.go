package server

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/sambeau/sorrel/config"
)

// stopDetachTimeout bounds how long Stop waits for the watch loop.
// Past it the watcher is abandoned rather than blocking shutdown.
const stopDetachTimeout = 2 * time.Second

// ChangeHandler receives a debounced file-change notification.
type ChangeHandler func(path string)

// Watcher monitors the served folders for changes and delivers one
// debounced callback per distinct path. It runs in one of two modes:
// OS notifications over a capped set of directories, or mtime polling.
type Watcher struct {
	cfg      config.WatcherConfig
	allowed  map[string]bool
	log      *Logger
	onChange ChangeHandler

	fsw      *fsnotify.Watcher
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once

	mu        sync.Mutex
	lastEvent map[string]time.Time
	lastPrune time.Time
}

func NewWatcher(cfg config.WatcherConfig, allowedExts []string, log *Logger, onChange ChangeHandler) *Watcher {
	allowed := make(map[string]bool, len(allowedExts))
	for _, ext := range allowedExts {
		allowed[strings.ToLower(ext)] = true
	}
	return &Watcher{
		cfg:       cfg,
		allowed:   allowed,
		log:       log,
		onChange:  onChange,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
		lastEvent: make(map[string]time.Time),
		lastPrune: time.Now(),
	}
}

// Start begins observation of the folders. It returns once the
// background loop is running.
func (w *Watcher) Start(folders []string) error {
	switch w.cfg.Mode {
	case "poll":
		go w.pollLoop(folders)
		return nil
	case "", "notify":
		fsw, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("starting file watcher: %w", err)
		}
		w.fsw = fsw

		dirs, truncated := w.collectWatchDirs(folders)
		for _, dir := range dirs {
			if err := fsw.Add(dir); err != nil {
				w.log.Warnf("cannot watch %s: %v", dir, err)
			}
		}
		if truncated {
			w.log.Warnf("watched directory cap (%d) reached; some directories are not watched", w.cfg.MaxWatchedDirs)
		}
		go w.eventLoop()
		return nil
	default:
		return fmt.Errorf("unknown watcher mode %q", w.cfg.Mode)
	}
}

// Stop terminates observation with a bounded wait. The watcher
// detaches rather than hang if the loop does not exit in time; the
// process is short-lived so a leaked OS watch is acceptable.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		if w.fsw != nil {
			w.fsw.Close()
		}
		select {
		case <-w.doneCh:
		case <-time.After(stopDetachTimeout):
			w.log.Warnf("file watcher did not stop within %s, detaching", stopDetachTimeout)
		}
	})
}

// collectWatchDirs walks the folders gathering directories that hold
// at least one watchable file, up to the configured cap.
func (w *Watcher) collectWatchDirs(folders []string) (dirs []string, truncated bool) {
	seen := make(map[string]bool)
	for _, folder := range folders {
		filepath.WalkDir(folder, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() {
				if w.ignoredDir(d.Name()) && path != folder {
					return filepath.SkipDir
				}
				return nil
			}
			if !w.watchableFile(path) {
				return nil
			}
			dir := filepath.Dir(path)
			if seen[dir] {
				return nil
			}
			if len(dirs) >= w.cfg.MaxWatchedDirs {
				truncated = true
				return filepath.SkipAll
			}
			seen[dir] = true
			dirs = append(dirs, dir)
			return nil
		})
		if truncated {
			break
		}
	}
	return dirs, truncated
}

func (w *Watcher) ignoredDir(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	for _, ignored := range w.cfg.IgnoreDirs {
		if name == ignored {
			return true
		}
	}
	return false
}

// watchableFile applies the extension allow-list and ignore patterns.
func (w *Watcher) watchableFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if len(w.allowed) > 0 && !w.allowed[ext] {
		return false
	}
	slashed := filepath.ToSlash(path)
	for _, part := range strings.Split(slashed, "/") {
		if w.ignoredDir(part) && part != "." && part != ".." {
			return false
		}
	}
	base := filepath.Base(path)
	for _, pattern := range w.cfg.IgnoreFiles {
		if matchIgnorePattern(pattern, slashed, base) {
			return false
		}
	}
	return true
}

// matchIgnorePattern supports plain globs against the base name plus
// the common "**/name/**" directory form.
func matchIgnorePattern(pattern, slashedPath, base string) bool {
	if strings.Contains(pattern, "**") {
		inner := strings.TrimSuffix(strings.TrimPrefix(pattern, "**/"), "/**")
		for _, part := range strings.Split(slashedPath, "/") {
			if ok, _ := filepath.Match(inner, part); ok {
				return true
			}
		}
		return false
	}
	ok, _ := filepath.Match(pattern, base)
	return ok
}

// debounced records an event for path and reports whether it falls
// inside the suppression window of a previously delivered one.
func (w *Watcher) debounced(path string, now time.Time) bool {
	window := w.cfg.DebounceWindow()

	w.mu.Lock()
	defer w.mu.Unlock()

	if last, ok := w.lastEvent[path]; ok && now.Sub(last) < window {
		return true
	}
	w.lastEvent[path] = now

	// Bound the bookkeeping map
	if len(w.lastEvent) > w.cfg.MaxTrackedPaths && now.Sub(w.lastPrune) > window {
		for p, t := range w.lastEvent {
			if now.Sub(t) >= window {
				delete(w.lastEvent, p)
			}
		}
		w.lastPrune = now
	}
	return false
}

func (w *Watcher) deliver(path string) {
	if !w.watchableFile(path) {
		return
	}
	if w.debounced(path, time.Now()) {
		return
	}
	w.log.Debugf("file changed: %s", path)
	w.onChange(path)
}

func (w *Watcher) eventLoop() {
	defer close(w.doneCh)
	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			w.deliver(event.Name)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Errorf("watcher error: %v", err)
		}
	}
}

// pollLoop scans the folders comparing modification times.
func (w *Watcher) pollLoop(folders []string) {
	defer close(w.doneCh)

	mtimes := w.scan(folders, nil)
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			mtimes = w.scan(folders, mtimes)
		}
	}
}

// scan walks the folders once. A nil previous map primes the state
// without delivering events; otherwise new, modified and removed
// paths are delivered.
func (w *Watcher) scan(folders []string, previous map[string]time.Time) map[string]time.Time {
	current := make(map[string]time.Time, len(previous))
	for _, folder := range folders {
		filepath.WalkDir(folder, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() {
				if w.ignoredDir(d.Name()) && path != folder {
					return filepath.SkipDir
				}
				return nil
			}
			if !w.watchableFile(path) {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return nil
			}
			current[path] = info.ModTime()
			if previous != nil {
				if prev, ok := previous[path]; !ok || !prev.Equal(info.ModTime()) {
					w.deliver(path)
				}
			}
			return nil
		})
	}
	if previous != nil {
		for path := range previous {
			if _, ok := current[path]; !ok {
				w.deliver(path)
			}
		}
	}
	return current
}
