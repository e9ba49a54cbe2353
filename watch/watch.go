// Package watch re-runs a callback when eligible source files change.
package watch

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"wrapret/filter"
)

const defaultDebounce = 250 * time.Millisecond

// Directories that never contain transform inputs.
var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
}

// Config holds the parameters for a Watcher.
type Config struct {
	// BaseDir is the root directory to watch. Empty defaults to the
	// current working directory. Changed paths keep this prefix, so a
	// relative BaseDir yields invocation-relative paths matching what an
	// initial walk over the same directory would produce.
	BaseDir string

	// Filter selects which changed files trigger the callback. It is
	// matched against the BaseDir-joined path, the same shape OnChange
	// receives. nil triggers on every file.
	Filter *filter.Filter

	// Exts limits triggering to files with these lowercase extensions
	// (e.g. ".js"). Empty allows any extension.
	Exts map[string]bool

	// Debounce is the quiet period after the last event before OnChange
	// fires. Zero or negative falls back to the default.
	Debounce time.Duration

	// OnChange receives the deduplicated list of changed paths, joined
	// onto BaseDir. nil is a no-op.
	OnChange func(ctx context.Context, changed []string) error

	// Stderr receives diagnostics. nil defaults to os.Stderr.
	Stderr io.Writer
}

// Watcher monitors a directory tree and fires a debounced callback when
// eligible files change.
type Watcher struct {
	cfg      Config
	fsw      *fsnotify.Watcher
	baseDir  string
	debounce time.Duration
	stderr   io.Writer
}

// New creates a Watcher and registers every directory under BaseDir.
func New(cfg Config) (*Watcher, error) {
	baseDir := cfg.BaseDir
	if baseDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("watch: determine working directory: %w", err)
		}
		baseDir = wd
	}
	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("watch: resolve base directory: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create fsnotify watcher: %w", err)
	}

	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	stderr := cfg.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	w := &Watcher{
		cfg:      cfg,
		fsw:      fsw,
		baseDir:  absBase,
		debounce: debounce,
		stderr:   stderr,
	}

	if err := w.addDirectories(); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// Run blocks until ctx is cancelled, collecting filesystem events and
// dispatching debounced OnChange callbacks. Returns nil on cancellation.
func (w *Watcher) Run(ctx context.Context) error {
	var (
		mu      sync.Mutex
		pending = make(map[string]struct{})
		timer   *time.Timer
	)

	fire := func() {
		if ctx.Err() != nil {
			return
		}
		mu.Lock()
		if len(pending) == 0 {
			mu.Unlock()
			return
		}
		changed := make([]string, 0, len(pending))
		for p := range pending {
			changed = append(changed, p)
		}
		clear(pending)
		mu.Unlock()

		if w.cfg.OnChange != nil {
			if err := w.cfg.OnChange(ctx, changed); err != nil {
				fmt.Fprintf(w.stderr, "watch: callback error: %v\n", err)
			}
		}
	}

	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
		if err := w.fsw.Close(); err != nil {
			fmt.Fprintf(w.stderr, "watch: close fsnotify: %v\n", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case evt, ok := <-w.fsw.Events:
			if !ok {
				return fmt.Errorf("watch: fsnotify event channel closed unexpectedly")
			}

			// Watch new directories as they appear.
			if evt.Has(fsnotify.Create) {
				w.maybeAddDir(evt.Name)
			}
			if !evt.Has(fsnotify.Write) && !evt.Has(fsnotify.Create) {
				continue
			}
			// Directories and vanished paths never trigger; only files
			// reach the callback.
			if info, err := os.Stat(evt.Name); err != nil || info.IsDir() {
				continue
			}
			if len(w.cfg.Exts) > 0 && !w.cfg.Exts[strings.ToLower(filepath.Ext(evt.Name))] {
				continue
			}

			rel, err := filepath.Rel(w.baseDir, evt.Name)
			if err != nil {
				rel = evt.Name
			}
			// Report the path in the same shape an initial walk over
			// BaseDir produces, so filter patterns anchored at the
			// invocation directory keep matching during watch.
			path := filepath.Join(w.cfg.BaseDir, rel)
			if !w.cfg.Filter.Match(path) {
				continue
			}

			mu.Lock()
			pending[path] = struct{}{}
			if timer == nil {
				timer = time.AfterFunc(w.debounce, fire)
			} else {
				timer.Reset(w.debounce)
			}
			mu.Unlock()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return fmt.Errorf("watch: fsnotify error channel closed unexpectedly")
			}
			fmt.Fprintf(w.stderr, "watch: fsnotify error: %v\n", err)
		}
	}
}

// addDirectories registers every directory under baseDir. Filtering is
// applied per event, not per directory, so includes like "**/*.js" still
// see files in any subdirectory.
func (w *Watcher) addDirectories() error {
	return filepath.WalkDir(w.baseDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			// Skip inaccessible paths rather than aborting the walk.
			fmt.Fprintf(w.stderr, "watch: skipping inaccessible path %q: %v\n", path, walkErr)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if skipDirs[d.Name()] && path != w.baseDir {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watch: add directory %q: %w", path, err)
		}
		return nil
	})
}

func (w *Watcher) maybeAddDir(path string) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() || skipDirs[info.Name()] {
		return
	}
	if err := w.fsw.Add(path); err != nil {
		fmt.Fprintf(w.stderr, "watch: add new directory %q: %v\n", path, err)
	}
}
