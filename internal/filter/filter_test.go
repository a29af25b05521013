package filter

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test Plan for Filter:
// - Include globs admit matching paths, reject everything else
// - Excluded directory names reject any path containing that segment
// - Exclude globs beat include globs
// - Bare patterns like "*.log" match in any directory
// - ShouldWatch is pure (no filesystem access needed)
// - ShouldInclude rejects missing and oversized files
// - Paths outside the root still evaluate deterministically

func newTestFilter(t *testing.T, root string, maxSize int64) *Filter {
	t.Helper()
	f, err := New(root,
		[]string{"**/*.go", "**/*.md", "*.go", "*.md"},
		[]string{"node_modules", ".git", "vendor"},
		[]string{"*.log", "**/generated_*.go"},
		maxSize,
	)
	require.NoError(t, err)
	return f
}

func TestFilter_IncludePatterns(t *testing.T) {
	t.Parallel()

	f := newTestFilter(t, "/project", 0)

	assert.True(t, f.ShouldWatch("/project/main.go"))
	assert.True(t, f.ShouldWatch("/project/pkg/util/helper.go"))
	assert.True(t, f.ShouldWatch("/project/docs/README.md"))

	assert.False(t, f.ShouldWatch("/project/image.png"))
	assert.False(t, f.ShouldWatch("/project/binary"))
}

func TestFilter_ExcludedDirectories(t *testing.T) {
	t.Parallel()

	f := newTestFilter(t, "/project", 0)

	assert.False(t, f.ShouldWatch("/project/node_modules/lib/index.go"))
	assert.False(t, f.ShouldWatch("/project/vendor/github.com/pkg/errors/errors.go"))
	assert.False(t, f.ShouldWatch("/project/a/node_modules/b/deep.go"))
	assert.False(t, f.ShouldWatch("/project/.git/hooks/notes.md"))

	// Directory name as file prefix is not an excluded segment.
	assert.True(t, f.ShouldWatch("/project/node_modules_doc.md"))
}

func TestFilter_ExcludeBeatsInclude(t *testing.T) {
	t.Parallel()

	f := newTestFilter(t, "/project", 0)

	assert.False(t, f.ShouldWatch("/project/pkg/generated_types.go"))
	assert.True(t, f.ShouldWatch("/project/pkg/types.go"))
}

func TestFilter_BarePatternMatchesAnyDirectory(t *testing.T) {
	t.Parallel()

	f := newTestFilter(t, "/project", 0)

	assert.False(t, f.ShouldWatch("/project/debug.log"))
	assert.False(t, f.ShouldWatch("/project/src/deep/nested/debug.log"))
}

func TestFilter_ExcludedDir(t *testing.T) {
	t.Parallel()

	f := newTestFilter(t, "/project", 0)

	assert.True(t, f.ExcludedDir("node_modules"))
	assert.True(t, f.ExcludedDir(".git"))
	assert.False(t, f.ExcludedDir("src"))
}

func TestFilter_ShouldInclude_MissingFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	f := newTestFilter(t, dir, 0)

	assert.False(t, f.ShouldInclude(filepath.Join(dir, "missing.go")))
}

func TestFilter_ShouldInclude_SizeCap(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	small := filepath.Join(dir, "small.go")
	large := filepath.Join(dir, "large.go")
	require.NoError(t, os.WriteFile(small, []byte("package main\n"), 0o644))
	require.NoError(t, os.WriteFile(large, make([]byte, 2048), 0o644))

	f := newTestFilter(t, dir, 1024)

	assert.True(t, f.ShouldInclude(small))
	assert.False(t, f.ShouldInclude(large))
}

func TestFilter_ShouldInclude_RejectsDirectory(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	sub := filepath.Join(dir, "pkg.go")
	require.NoError(t, os.Mkdir(sub, 0o755))

	f := newTestFilter(t, dir, 0)

	assert.False(t, f.ShouldInclude(sub))
}

func TestFilter_InvalidPattern(t *testing.T) {
	t.Parallel()

	_, err := New("/project", []string{"[invalid"}, nil, nil, 0)
	assert.Error(t, err)
}
