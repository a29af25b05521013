// Package document builds normalized Document records from files on disk.
package document

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"
)

// Document is a normalized snapshot of one file, built per indexing pass and
// discarded after chunking.
type Document struct {
	ID       string            // relative path, stable document identity
	AbsPath  string            // absolute path on disk
	Content  string            // decoded text content
	Language string            // detected from extension
	Size     int               // content length in bytes
	Lines    int               // line count
	Metadata map[string]string // extension, parent dir, content hash, timestamps
}

// Includer re-validates that a path is still eligible at build time. The
// change filter satisfies this.
type Includer interface {
	ShouldInclude(path string) bool
}

// Builder reads files into Document records.
type Builder struct {
	root    string
	include Includer
}

// NewBuilder creates a builder rooted at root. Document IDs are paths
// relative to root.
func NewBuilder(root string, include Includer) *Builder {
	return &Builder{root: root, include: include}
}

// Build reads the file at path into a Document. It returns (nil, nil) when
// the file is no longer eligible or has no indexable content: vanished since
// enqueue, grew past the size cap, or is empty. That is a skip, not an error.
func (b *Builder) Build(path string) (*Document, error) {
	if b.include != nil && !b.include.ShouldInclude(path) {
		return nil, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	content := decodeBestEffort(raw)
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}

	relPath, err := filepath.Rel(b.root, path)
	if err != nil {
		return nil, fmt.Errorf("failed to relativize %s: %w", path, err)
	}
	relPath = filepath.ToSlash(relPath)

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	hash := sha256.Sum256([]byte(content))

	return &Document{
		ID:       relPath,
		AbsPath:  absPath,
		Content:  content,
		Language: DetectLanguage(path),
		Size:     len(content),
		Lines:    strings.Count(content, "\n") + 1,
		Metadata: map[string]string{
			"extension":    strings.ToLower(filepath.Ext(path)),
			"parent_dir":   filepath.ToSlash(filepath.Dir(relPath)),
			"content_hash": hex.EncodeToString(hash[:]),
			"indexed_at":   time.Now().UTC().Format(time.RFC3339),
		},
	}, nil
}

// ContentHash returns the document's content hash from metadata, or empty.
func (d *Document) ContentHash() string {
	return d.Metadata["content_hash"]
}

// decodeBestEffort interprets raw bytes as UTF-8, dropping invalid sequences
// rather than failing the document.
func decodeBestEffort(raw []byte) string {
	if utf8.Valid(raw) {
		return string(raw)
	}

	var sb strings.Builder
	sb.Grow(len(raw))
	for len(raw) > 0 {
		r, size := utf8.DecodeRune(raw)
		if r != utf8.RuneError || size > 1 {
			sb.WriteRune(r)
		}
		raw = raw[size:]
	}
	return sb.String()
}
