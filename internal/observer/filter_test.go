package observer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gitwatchErrors "github.com/bashhack/gitwatch/internal/errors"
)

func TestFilterIgnored(t *testing.T) {
	filter, err := NewFilter(".git", []string{"*.swp", "node_modules", "build/**", "  "})
	require.NoError(t, err)

	tests := map[string]struct {
		path    string
		ignored bool
	}{
		"root":                  {path: ".", ignored: false},
		"plain file":            {path: "a.txt", ignored: false},
		"metadata dir":          {path: ".git", ignored: true},
		"metadata index lock":   {path: ".git/index.lock", ignored: true},
		"nested metadata-like":  {path: "sub/.git/config", ignored: false},
		"similar name":          {path: ".gitignore", ignored: false},
		"swap file":             {path: "src/.main.go.swp", ignored: true},
		"node_modules nested":   {path: "web/node_modules/react/index.js", ignored: true},
		"build tree":            {path: "build/out/bin", ignored: true},
		"build prefix filename": {path: "buildinfo.txt", ignored: false},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.ignored, filter.Ignored(tc.path))
		})
	}
}

func TestFilterCustomMetadataDir(t *testing.T) {
	filter, err := NewFilter(".vcs", nil)
	require.NoError(t, err)

	assert.True(t, filter.Ignored(".vcs/index.lock"))
	assert.False(t, filter.Ignored(".git/index.lock"))
}

func TestFilterInvalidPattern(t *testing.T) {
	_, err := NewFilter(".git", []string{"[unterminated"})
	require.Error(t, err)
	assert.ErrorIs(t, err, gitwatchErrors.ErrInvalidConfiguration)
}
