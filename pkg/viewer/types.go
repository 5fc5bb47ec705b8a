// Package viewer holds the shared types of the ZIP image viewing engine.
package viewer

import (
	"path"
	"strings"
)

// Signature is a cheap fingerprint of a source (size + modify time) used to
// detect that an archive may have changed on disk.
type Signature struct {
	Size    int64 `json:"size"`
	ModTime int64 `json:"mtime"`
}

// Equal reports whether two signatures match.
func (s Signature) Equal(other Signature) bool {
	return s.Size == other.Size && s.ModTime == other.ModTime
}

// ImageEntry is one image file packed inside a source archive.
// Identity is (Source, Path) and is immutable.
type ImageEntry struct {
	Source  string // archive path or opaque locator
	Path    string // entry path inside the archive
	Name    string // display name (base name of Path)
	Size    int64  // uncompressed size
	Ordinal int    // position in scan order, prior to name-sort
}

// Key returns the entry's cache identity.
func (e ImageEntry) Key() string {
	return e.Source + "\x00" + e.Path
}

var supportedExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".gif":  {},
	".webp": {},
	".bmp":  {},
}

// IsSupportedImage reports whether name has a supported image extension
// (case-insensitive).
func IsSupportedImage(name string) bool {
	ext := strings.ToLower(path.Ext(name))
	_, ok := supportedExtensions[ext]
	return ok
}

// IsArchive reports whether name looks like a ZIP source the engine can open.
func IsArchive(name string) bool {
	ext := strings.ToLower(path.Ext(name))
	return ext == ".zip" || ext == ".cbz"
}

// DisplayName returns the display name for an entry path inside an archive.
func DisplayName(entryPath string) string {
	return path.Base(entryPath)
}
