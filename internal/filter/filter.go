package filter

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

// compiledPattern holds both the pattern string and compiled glob.
type compiledPattern struct {
	pattern string
	glob    glob.Glob
}

// Filter decides which paths participate in indexing. It is pure with respect
// to ShouldWatch; ShouldInclude additionally consults the filesystem for
// existence and size.
type Filter struct {
	root         string
	includes     []compiledPattern
	excludeFiles []compiledPattern
	excludeDirs  map[string]bool
	maxFileSize  int64
}

// New compiles the configured patterns into a Filter.
// includePatterns and excludeFiles are glob patterns matched against the
// path relative to root (and against the base name for bare patterns like
// "*.py"). excludeDirs are literal directory names rejected on any path
// segment. maxFileSize of zero or less disables the size check.
func New(root string, includePatterns, excludeDirs, excludeFiles []string, maxFileSize int64) (*Filter, error) {
	f := &Filter{
		root:        root,
		excludeDirs: make(map[string]bool, len(excludeDirs)),
		maxFileSize: maxFileSize,
	}

	for _, dir := range excludeDirs {
		f.excludeDirs[dir] = true
	}

	for _, pattern := range includePatterns {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, err
		}
		f.includes = append(f.includes, compiledPattern{pattern: pattern, glob: g})
	}

	for _, pattern := range excludeFiles {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, err
		}
		f.excludeFiles = append(f.excludeFiles, compiledPattern{pattern: pattern, glob: g})
	}

	return f, nil
}

// ShouldWatch reports whether a path is eligible for indexing based purely on
// its name. Order: excluded directory segment, excluded file glob, include
// glob. Deterministic, no filesystem access.
func (f *Filter) ShouldWatch(path string) bool {
	rel := f.relative(path)

	for _, segment := range strings.Split(filepath.ToSlash(filepath.Dir(rel)), "/") {
		if f.excludeDirs[segment] {
			return false
		}
	}

	if matchesAnyPattern(rel, f.excludeFiles) {
		return false
	}

	return matchesAnyPattern(rel, f.includes)
}

// ShouldInclude applies ShouldWatch plus existence and size checks. A file
// that vanished between enqueue and processing is excluded rather than an
// error.
func (f *Filter) ShouldInclude(path string) bool {
	if !f.ShouldWatch(path) {
		return false
	}

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}

	if f.maxFileSize > 0 && info.Size() > f.maxFileSize {
		return false
	}

	return true
}

// ExcludedDir reports whether a directory name is excluded. Used to prune
// directory walks and filesystem watches before descending.
func (f *Filter) ExcludedDir(name string) bool {
	return f.excludeDirs[name]
}

// relative returns path relative to the filter root with forward slashes,
// falling back to the cleaned input when path is outside the root.
func (f *Filter) relative(path string) string {
	rel, err := filepath.Rel(f.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(filepath.Clean(path))
	}
	return filepath.ToSlash(rel)
}

// matchesAnyPattern checks if a path matches any of the given patterns.
// Bare patterns like "*.log" are also tried against the base name so that
// "src/debug.log" matches as users expect.
func matchesAnyPattern(path string, patterns []compiledPattern) bool {
	base := filepath.Base(path)
	for _, cp := range patterns {
		if cp.glob.Match(path) {
			return true
		}
		if !strings.Contains(cp.pattern, "/") && cp.glob.Match(base) {
			return true
		}
	}
	return false
}
