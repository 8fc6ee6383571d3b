// Package workspace finds JS/TS source files on disk and feeds changes to
// the learning controller as they are saved.
package workspace

import (
	"io/fs"
	"path/filepath"
	"slices"
	"strings"
)

// IgnoredDirs are directory names never descended into.
var IgnoredDirs = []string{"node_modules", ".git", "dist", "build", ".next", "coverage"}

// LanguageForPath maps a file extension to its editor language tag, or ""
// for files the engine does not handle. Declaration files are skipped.
func LanguageForPath(path string) string {
	base := strings.ToLower(filepath.Base(path))
	if strings.HasSuffix(base, ".d.ts") {
		return ""
	}
	switch filepath.Ext(base) {
	case ".js", ".mjs", ".cjs":
		return "javascript"
	case ".jsx":
		return "javascriptreact"
	case ".ts", ".mts", ".cts":
		return "typescript"
	case ".tsx":
		return "typescriptreact"
	}
	return ""
}

// Ignored reports whether any element of path is an ignored directory.
func Ignored(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if slices.Contains(IgnoredDirs, part) {
			return true
		}
	}
	return false
}

// Scan lists supported source files under root in lexical order.
// Unreadable entries are skipped.
func Scan(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if d.IsDir() {
			if path != root && slices.Contains(IgnoredDirs, d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if LanguageForPath(path) != "" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}
