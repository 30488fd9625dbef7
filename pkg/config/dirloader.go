package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mockgate/mockgate/pkg/rule"
)

// LoadError records a file that failed to load during a directory scan.
type LoadError struct {
	Path    string
	Message string
	Err     error
}

func (e *LoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Path, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// LoadResult is the outcome of loading a rule directory.
type LoadResult struct {
	Routes    []*rule.RouteRule
	FileCount int

	// Errors are per-file failures; they do not abort the load.
	Errors []LoadError
}

// DirectoryLoader merges every rule collection file in a directory.
type DirectoryLoader struct {
	// Path is the directory to load from.
	Path string

	// Recursive scans subdirectories when true.
	Recursive bool
}

// NewDirectoryLoader creates a recursive loader for the given directory.
func NewDirectoryLoader(path string) *DirectoryLoader {
	return &DirectoryLoader{Path: path, Recursive: true}
}

// Load reads all .json/.yaml/.yml files beneath the directory and merges
// their routes. A malformed file is recorded and skipped, never fatal.
func (d *DirectoryLoader) Load() (*LoadResult, error) {
	info, err := os.Stat(d.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("directory not found: %s", d.Path)
		}
		return nil, fmt.Errorf("failed to access directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("path is not a directory: %s", d.Path)
	}

	files, err := d.findConfigFiles()
	if err != nil {
		return nil, fmt.Errorf("failed to scan directory: %w", err)
	}

	result := &LoadResult{}
	for _, file := range files {
		col, err := LoadCollection(file)
		if err != nil {
			result.Errors = append(result.Errors, LoadError{Path: file, Message: "failed to load", Err: err})
			continue
		}
		result.FileCount++
		result.Routes = append(result.Routes, col.Routes...)
	}
	return result, nil
}

func (d *DirectoryLoader) findConfigFiles() ([]string, error) {
	var files []string

	walk := func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			if path != d.Path && !d.Recursive {
				return filepath.SkipDir
			}
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".json", ".yaml", ".yml":
			files = append(files, path)
		}
		return nil
	}

	if err := filepath.WalkDir(d.Path, walk); err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}
