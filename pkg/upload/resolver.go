// Package upload resolves file-kind response bodies from a directory of
// operator-provided files.
package upload

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"

	"github.com/mockgate/mockgate/pkg/util"
)

// Resolver errors.
var (
	ErrNotFound  = errors.New("upload: file not found")
	ErrForbidden = errors.New("upload: path outside upload directory")
)

// File is an opened upload ready to stream to a client.
type File struct {
	io.ReadCloser

	// ContentType is derived from the file extension, falling back to
	// application/octet-stream.
	ContentType string

	// Size is the file size in bytes.
	Size int64
}

// Resolver opens files beneath a fixed base directory. Paths that escape
// the base directory are rejected before touching the filesystem.
type Resolver struct {
	baseDir string
}

// NewResolver creates a resolver rooted at baseDir.
func NewResolver(baseDir string) *Resolver {
	return &Resolver{baseDir: baseDir}
}

// Resolve opens the named file. It returns ErrForbidden for unsafe paths
// and ErrNotFound when the file does not exist.
func (r *Resolver) Resolve(path string) (*File, error) {
	cleaned, ok := util.SafeFilePath(path)
	if !ok {
		return nil, ErrForbidden
	}

	full := filepath.Join(r.baseDir, cleaned)

	info, err := os.Stat(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("stat %s: %w", cleaned, err)
	}
	if info.IsDir() {
		return nil, ErrNotFound
	}

	f, err := os.Open(full)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cleaned, err)
	}

	ct := mime.TypeByExtension(filepath.Ext(full))
	if ct == "" {
		ct = "application/octet-stream"
	}

	return &File{ReadCloser: f, ContentType: ct, Size: info.Size()}, nil
}
