package document

import (
	"path/filepath"
	"strings"
)

// languageByExtension maps file extensions to language identifiers stored in
// chunk metadata. Unknown extensions fall back to "text".
var languageByExtension = map[string]string{
	".go":    "go",
	".py":    "python",
	".ts":    "typescript",
	".tsx":   "typescript",
	".js":    "javascript",
	".jsx":   "javascript",
	".rs":    "rust",
	".java":  "java",
	".c":     "c",
	".h":     "c",
	".cpp":   "cpp",
	".cc":    "cpp",
	".hpp":   "cpp",
	".rb":    "ruby",
	".php":   "php",
	".sh":    "shell",
	".bash":  "shell",
	".md":    "markdown",
	".rst":   "markdown",
	".json":  "json",
	".yml":   "yaml",
	".yaml":  "yaml",
	".toml":  "toml",
	".sql":   "sql",
	".html":  "html",
	".css":   "css",
	".scss":  "css",
	".xml":   "xml",
	".proto": "protobuf",
}

// DetectLanguage returns the language identifier for a file path.
func DetectLanguage(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if lang, ok := languageByExtension[ext]; ok {
		return lang
	}
	return "text"
}
