// Package pipeline drives the wrap transform over files: eligibility
// filtering, region splitting, the post-boundary import check, and body
// wrapping, plus the file I/O around them.
package pipeline

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"wrapret/filter"
	"wrapret/preprocess"
)

// Options configures a Pipeline.
type Options struct {
	// Filter decides which files are eligible. nil transforms everything.
	Filter *filter.Filter
	// Logger receives skip/transform diagnostics. nil defaults to a
	// warn-level stderr logger.
	Logger *log.Logger
}

// Pipeline applies the wrap transform per file. A Pipeline holds no
// mutable state; its methods are safe for concurrent use.
type Pipeline struct {
	filter *filter.Filter
	logger *log.Logger
}

// WriteOptions controls where TransformFile puts its output.
type WriteOptions struct {
	// OutDir mirrors each input path under this directory. Absolute
	// inputs and inputs whose .. segments would escape the directory are
	// flattened to their base name.
	OutDir string
	// InPlace overwrites the input file.
	InPlace bool
	// Stdout receives the output when neither OutDir nor InPlace is set.
	// nil defaults to os.Stdout.
	Stdout io.Writer
}

// Result describes the outcome of one file's transform.
type Result struct {
	Path    string
	Changed bool
	Err     error
}

// New creates a Pipeline from opts.
func New(opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewWithOptions(os.Stderr, log.Options{Prefix: "wrapret"})
		logger.SetLevel(log.WarnLevel)
	}
	return &Pipeline{filter: opts.Filter, logger: logger}
}

// Transform is the per-file entry point. It returns the transformed text
// and changed=true, or changed=false when path is not eligible (the input
// passes through untouched). An import statement found past the import
// region aborts the transform with the file path prefixed to the error.
//
// The transform keeps the leading import region verbatim and wraps
// everything after it in an immediately-invoked function so bare early
// `return` statements parse as top-level code.
func (p *Pipeline) Transform(src, path string) (out string, changed bool, err error) {
	if !p.filter.Match(path) {
		p.logger.Debug("skipping ineligible file", "path", path)
		return "", false, nil
	}

	importLines, bodyLines := preprocess.SplitImportRegion(src)
	if err := preprocess.CheckBodyImports(bodyLines, len(importLines)); err != nil {
		return "", false, fmt.Errorf("%s: %w", path, err)
	}

	wrapped := preprocess.WrapBody(strings.Join(bodyLines, "\n"))
	p.logger.Debug("wrapped body", "path", path, "importLines", len(importLines), "bodyLines", len(bodyLines))
	return strings.Join(importLines, "\n") + "\n" + wrapped, true, nil
}

// Check runs eligibility and the post-boundary import check without
// producing output. It returns eligible=false for filtered-out files and
// a non-nil error for violations.
func (p *Pipeline) Check(src, path string) (eligible bool, err error) {
	if !p.filter.Match(path) {
		return false, nil
	}
	importLines, bodyLines := preprocess.SplitImportRegion(src)
	if err := preprocess.CheckBodyImports(bodyLines, len(importLines)); err != nil {
		return true, fmt.Errorf("%s: %w", path, err)
	}
	return true, nil
}

// TransformFile reads path, transforms it, and writes the result per w.
// Ineligible files are left untouched and reported with Changed=false.
func (p *Pipeline) TransformFile(path string, w WriteOptions) Result {
	src, err := os.ReadFile(path)
	if err != nil {
		return Result{Path: path, Err: fmt.Errorf("reading %s: %w", path, err)}
	}

	out, changed, err := p.Transform(string(src), path)
	if err != nil {
		return Result{Path: path, Err: err}
	}
	if !changed {
		return Result{Path: path}
	}

	switch {
	case w.InPlace:
		info, err := os.Stat(path)
		if err != nil {
			return Result{Path: path, Err: fmt.Errorf("stat %s: %w", path, err)}
		}
		if err := os.WriteFile(path, []byte(out), info.Mode().Perm()); err != nil {
			return Result{Path: path, Err: fmt.Errorf("writing %s: %w", path, err)}
		}
	case w.OutDir != "":
		// Paths that would land outside OutDir (absolute, or escaping
		// via ..) are flattened to their base name.
		dest := filepath.Join(w.OutDir, path)
		if filepath.IsAbs(path) || !filepath.IsLocal(path) {
			dest = filepath.Join(w.OutDir, filepath.Base(path))
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return Result{Path: path, Err: fmt.Errorf("creating %s: %w", filepath.Dir(dest), err)}
		}
		if err := os.WriteFile(dest, []byte(out), 0o644); err != nil {
			return Result{Path: path, Err: fmt.Errorf("writing %s: %w", dest, err)}
		}
	default:
		stdout := w.Stdout
		if stdout == nil {
			stdout = os.Stdout
		}
		if _, err := io.WriteString(stdout, out); err != nil {
			return Result{Path: path, Err: fmt.Errorf("writing output for %s: %w", path, err)}
		}
	}
	return Result{Path: path, Changed: true}
}

// Run transforms paths with up to jobs parallel workers and returns the
// per-file results in input order. Each file is an independent transform,
// so no coordination beyond the work queue is needed.
func (p *Pipeline) Run(paths []string, jobs int, w WriteOptions) []Result {
	if jobs < 1 {
		jobs = 1
	}
	if jobs > len(paths) {
		jobs = len(paths)
	}

	results := make([]Result, len(paths))
	work := make(chan int, len(paths))
	for i := range paths {
		work <- i
	}
	close(work)

	var wg sync.WaitGroup
	for range jobs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range work {
				results[i] = p.TransformFile(paths[i], w)
			}
		}()
	}
	wg.Wait()

	for _, r := range results {
		switch {
		case r.Err != nil:
			p.logger.Error("transform failed", "path", r.Path, "err", r.Err)
		case r.Changed:
			p.logger.Debug("transformed", "path", r.Path)
		}
	}
	return results
}

// FailedCount returns how many results carry an error.
func FailedCount(results []Result) int {
	n := 0
	for _, r := range results {
		if r.Err != nil {
			n++
		}
	}
	return n
}
