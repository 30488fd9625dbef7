// Package util provides shared helpers for safe file-path validation and
// log-body truncation.
package util

import (
	"path/filepath"
	"strings"
)

// MaxLogBodySize is the default maximum body size retained for diagnostics
// (10KB).
const MaxLogBodySize = 10 * 1024

// TruncateBody truncates a string to maxSize bytes, appending
// "...(truncated)" if truncated. If maxSize <= 0, uses MaxLogBodySize.
func TruncateBody(data string, maxSize int) string {
	if maxSize <= 0 {
		maxSize = MaxLogBodySize
	}
	if len(data) > maxSize {
		return data[:maxSize] + "...(truncated)"
	}
	return data
}

// SafeFilePath cleans a relative path and rejects traversal outside the
// base directory. Returns the cleaned path and whether it is safe.
func SafeFilePath(path string) (string, bool) {
	if path == "" {
		return "", false
	}
	if strings.Contains(path, `\`) {
		return "", false
	}
	cleaned := filepath.Clean(path)
	if filepath.IsAbs(cleaned) {
		return "", false
	}
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", false
	}
	return cleaned, true
}
