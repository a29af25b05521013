package document

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test Plan for document Builder:
// - IDs are slash-separated paths relative to the root
// - Content, size, line count, and metadata are populated
// - Identical content yields identical content hashes
// - Missing files are a skip, not an error
// - Empty and whitespace-only files are skipped
// - An Includer veto skips the file
// - Invalid UTF-8 is dropped rather than failing the document
// - Language detection follows the extension

type allowAll struct{}

func (allowAll) ShouldInclude(string) bool { return true }

type denyAll struct{}

func (denyAll) ShouldInclude(string) bool { return false }

func writeFile(t *testing.T, dir, rel, content string) string {
	t.Helper()
	path := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestBuilder_BuildsDocument(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeFile(t, dir, "pkg/util/math.go", "package util\n\nfunc Add(a, b int) int { return a + b }\n")

	b := NewBuilder(dir, allowAll{})
	doc, err := b.Build(path)

	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "pkg/util/math.go", doc.ID)
	assert.Equal(t, "go", doc.Language)
	assert.Equal(t, 4, doc.Lines)
	assert.Equal(t, len(doc.Content), doc.Size)
	assert.Equal(t, ".go", doc.Metadata["extension"])
	assert.Equal(t, "pkg/util", doc.Metadata["parent_dir"])
	assert.NotEmpty(t, doc.ContentHash())
	assert.NotEmpty(t, doc.Metadata["indexed_at"])
}

func TestBuilder_ContentHashStable(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	a := writeFile(t, dir, "a.py", "print('hello')\n")
	b := writeFile(t, dir, "b.py", "print('hello')\n")
	c := writeFile(t, dir, "c.py", "print('bye')\n")

	builder := NewBuilder(dir, nil)
	docA, err := builder.Build(a)
	require.NoError(t, err)
	docB, err := builder.Build(b)
	require.NoError(t, err)
	docC, err := builder.Build(c)
	require.NoError(t, err)

	assert.Equal(t, docA.ContentHash(), docB.ContentHash())
	assert.NotEqual(t, docA.ContentHash(), docC.ContentHash())
}

func TestBuilder_MissingFileIsSkip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	b := NewBuilder(dir, nil)

	doc, err := b.Build(filepath.Join(dir, "vanished.go"))

	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestBuilder_EmptyFileIsSkip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	empty := writeFile(t, dir, "empty.go", "")
	blank := writeFile(t, dir, "blank.go", " \n\t\n")

	b := NewBuilder(dir, nil)

	doc, err := b.Build(empty)
	require.NoError(t, err)
	assert.Nil(t, doc)

	doc, err = b.Build(blank)
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestBuilder_IncluderVeto(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeFile(t, dir, "app.go", "package main\n")

	b := NewBuilder(dir, denyAll{})
	doc, err := b.Build(path)

	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestBuilder_InvalidUTF8Dropped(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "mixed.txt")
	require.NoError(t, os.WriteFile(path, []byte("valid \xff\xfe text\n"), 0o644))

	b := NewBuilder(dir, nil)
	doc, err := b.Build(path)

	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "valid  text\n", doc.Content)
}

func TestDetectLanguage(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "go", DetectLanguage("main.go"))
	assert.Equal(t, "python", DetectLanguage("script.py"))
	assert.Equal(t, "typescript", DetectLanguage("src/app.ts"))
	assert.Equal(t, "markdown", DetectLanguage("README.md"))
	assert.Equal(t, "text", DetectLanguage("LICENSE"))
}
