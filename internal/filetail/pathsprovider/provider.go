// Package pathsprovider resolves include/exclude glob patterns to a live
// set of file paths, per spec.md §4.3's paths-provider responsibility.
// Two implementations share the Provider interface: a periodic-rescan
// implementation (Glob) and a filesystem-notification-driven one with
// periodic reconcile (Notify).
package pathsprovider

import (
	"path/filepath"
	"sort"
)

// Provider produces the current set of paths matching its configured
// patterns. It does not track changes itself; Diff compares the results of
// two Paths calls to find added and removed paths.
type Provider interface {
	// Paths returns the current matching path set, sorted.
	Paths() ([]string, error)
	// Close releases any resources (e.g. an fsnotify watch).
	Close() error
}

// Config is shared by every Provider implementation.
type Config struct {
	Include []string // glob patterns of paths to watch
	Exclude []string // glob patterns of paths to ignore, evaluated after Include
}

// resolve expands every include pattern, filters out anything matching an
// exclude pattern, and returns a sorted, de-duplicated path list.
func resolve(cfg Config) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	for _, pattern := range cfg.Include {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			if excluded(cfg.Exclude, m) {
				continue
			}
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out, nil
}

func excluded(patterns []string, path string) bool {
	base := filepath.Base(path)
	for _, p := range patterns {
		if ok, _ := filepath.Match(p, path); ok {
			return true
		}
		if ok, _ := filepath.Match(p, base); ok {
			return true
		}
	}
	return false
}

// Diff computes which paths in next are new relative to prev and which
// paths in prev are gone in next. Both slices must be sorted, as returned
// by Paths.
func Diff(prev, next []string) (added, removed []string) {
	i, j := 0, 0
	for i < len(prev) && j < len(next) {
		switch {
		case prev[i] == next[j]:
			i++
			j++
		case prev[i] < next[j]:
			removed = append(removed, prev[i])
			i++
		default:
			added = append(added, next[j])
			j++
		}
	}
	removed = append(removed, prev[i:]...)
	added = append(added, next[j:]...)
	return added, removed
}
