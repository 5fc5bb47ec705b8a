// Package storage is the filesystem collaborator of the viewing engine.
// It is backed by afero so tests can run against an in-memory filesystem.
package storage

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"zipview/pkg/viewer"
)

// Storage opens sources and answers cheap metadata queries about them.
type Storage struct {
	fs afero.Fs
}

// New wraps fs as the engine's storage collaborator.
func New(fs afero.Fs) *Storage {
	return &Storage{fs: fs}
}

// Fs exposes the underlying filesystem (used by persistence wiring).
func (s *Storage) Fs() afero.Fs {
	return s.fs
}

// Open returns a readable stream for the source. The caller owns the stream
// and must close it. The returned stream usually also implements io.ReaderAt;
// callers that need random access probe for it.
func (s *Storage) Open(source string) (io.ReadCloser, error) {
	f, err := s.fs.Open(source)
	if err != nil {
		return nil, fmt.Errorf("open source %s: %w", source, err)
	}
	return f, nil
}

// Signature returns the modification signature (size + mtime) of the source.
func (s *Storage) Signature(source string) (viewer.Signature, error) {
	info, err := s.fs.Stat(source)
	if err != nil {
		return viewer.Signature{}, fmt.Errorf("stat source %s: %w", source, err)
	}
	return viewer.Signature{
		Size:    info.Size(),
		ModTime: info.ModTime().UnixNano(),
	}, nil
}

// Siblings returns the archive paths in the source's directory, name-sorted.
// Used for previous/next archive navigation.
func (s *Storage) Siblings(source string) ([]string, error) {
	dir := filepath.Dir(source)
	infos, err := afero.ReadDir(s.fs, dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}

	var archives []string
	for _, info := range infos {
		if info.IsDir() || !viewer.IsArchive(info.Name()) {
			continue
		}
		archives = append(archives, filepath.Join(dir, info.Name()))
	}
	sort.Slice(archives, func(i, j int) bool {
		return strings.ToLower(archives[i]) < strings.ToLower(archives[j])
	})
	return archives, nil
}

// Normalize returns the canonical identifier used to namespace persisted
// records for a source.
func Normalize(source string) string {
	return filepath.ToSlash(filepath.Clean(source))
}
