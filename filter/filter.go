// Package filter decides which files are eligible for transformation based
// on include and exclude glob patterns.
package filter

import (
	"fmt"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
)

// Filter is an eligibility predicate over file paths, built from
// doublestar-compatible include and exclude glob patterns. A nil *Filter
// matches every path.
type Filter struct {
	include []string
	exclude []string
}

// New builds a Filter. An empty include list matches every path; exclude
// patterns always win over include patterns. Every pattern is validated
// eagerly so invalid globs fail at construction time rather than silently
// failing to match at runtime.
func New(include, exclude []string) (*Filter, error) {
	if err := validatePatterns(include, "include"); err != nil {
		return nil, err
	}
	if err := validatePatterns(exclude, "exclude"); err != nil {
		return nil, err
	}
	return &Filter{include: include, exclude: exclude}, nil
}

// Match reports whether path is eligible for transformation.
func (f *Filter) Match(path string) bool {
	if f == nil {
		return true
	}
	// Normalise to forward slashes for consistent glob matching.
	normalized := filepath.ToSlash(path)
	for _, pat := range f.exclude {
		if matched, err := doublestar.Match(pat, normalized); err == nil && matched {
			return false
		}
	}
	if len(f.include) == 0 {
		return true
	}
	for _, pat := range f.include {
		if matched, err := doublestar.Match(pat, normalized); err == nil && matched {
			return true
		}
	}
	return false
}

func validatePatterns(patterns []string, label string) error {
	for _, pat := range patterns {
		if _, err := doublestar.Match(pat, ""); err != nil {
			return fmt.Errorf("invalid %s pattern %q: %w", label, pat, err)
		}
	}
	return nil
}
