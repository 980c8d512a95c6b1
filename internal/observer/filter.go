package observer

import (
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"

	gitwatchErrors "github.com/bashhack/gitwatch/internal/errors"
)

// Filter decides which root-relative paths are surfaced.
type Filter struct {
	metadataDir string
	patterns    []glob.Glob
}

// NewFilter compiles the exclude patterns. An invalid pattern is a configuration error.
func NewFilter(metadataDir string, exclude []string) (*Filter, error) {
	f := &Filter{metadataDir: metadataDir}
	for _, pattern := range exclude {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, gitwatchErrors.NewConfigError("exclude", pattern, err)
		}
		f.patterns = append(f.patterns, g)
	}
	return f, nil
}

// Ignored reports whether rel must not reach the coordinator.
func (f *Filter) Ignored(rel string) bool {
	rel = filepath.ToSlash(rel)
	if rel == "." || rel == "" {
		return false
	}

	parts := strings.Split(rel, "/")
	if f.metadataDir != "" && parts[0] == f.metadataDir {
		return true
	}

	for _, g := range f.patterns {
		if g.Match(rel) {
			return true
		}
		for _, part := range parts {
			if g.Match(part) {
				return true
			}
		}
	}
	return false
}
