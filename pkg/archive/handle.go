// Package archive provides random-access reads of single entries out of ZIP
// sources without extracting the archive.
package archive

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zip"

	"zipview/pkg/logger"
	"zipview/pkg/metrics"
	"zipview/pkg/viewer"
)

var (
	// ErrEntryNotFound is returned when the requested entry is absent.
	ErrEntryNotFound = errors.New("entry not found in archive")

	// ErrArchiveUnreadable is returned when the source cannot be parsed as ZIP.
	ErrArchiveUnreadable = errors.New("archive unreadable")
)

// Opener abstracts the storage collaborator the handle reads sources through.
type Opener interface {
	Open(source string) (io.ReadCloser, error)
	Signature(source string) (viewer.Signature, error)
}

// Handle keeps one source open for repeated random-access entry reads.
//
// When the opened stream supports io.ReaderAt, the handle parses the central
// directory once and serves each read by seeking straight to the entry (fast
// path). Otherwise it degrades to a sequential local-header walk per read,
// which is O(entries) and only used when random access is unavailable. The
// chosen path is observable through the fast/sequential read counters.
type Handle struct {
	opener Opener
	mets   *metrics.Collector

	mu     sync.Mutex
	source string
	stream io.Closer            // held open only on the fast path
	index  map[string]*zip.File // fast-path name -> metadata, supported images only
	fast   bool
}

// NewHandle creates a handle reading through opener.
func NewHandle(opener Opener, mets *metrics.Collector) *Handle {
	return &Handle{opener: opener, mets: mets}
}

// Source returns the currently open source, or "" when closed.
func (h *Handle) Source() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.source
}

// FastPath reports whether the current source is served by random access.
func (h *Handle) FastPath() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.fast
}

// ReadEntry returns the decompressed bytes of entryPath inside source.
// Requesting a different source than the one currently open closes the old
// handle and opens the new one first.
func (h *Handle) ReadEntry(source, entryPath string) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.source != source {
		h.closeLocked()
		if err := h.openLocked(source); err != nil {
			return nil, err
		}
	}

	if h.fast {
		h.mets.FastReads.Add(1)
		return h.readFastLocked(entryPath)
	}
	h.mets.SequentialReads.Add(1)
	return h.readSequentialLocked(entryPath)
}

// Close releases the held source. Safe to call repeatedly.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closeLocked()
	return nil
}

func (h *Handle) closeLocked() {
	if h.stream != nil {
		if err := h.stream.Close(); err != nil {
			logger.Warn("Closing archive handle failed", "source", h.source, "err", err)
		}
	}
	h.stream = nil
	h.index = nil
	h.source = ""
	h.fast = false
}

// openLocked probes the source for random-access capability and sets up the
// matching read strategy.
func (h *Handle) openLocked(source string) error {
	f, err := h.opener.Open(source)
	if err != nil {
		return err
	}

	ra, ok := f.(io.ReaderAt)
	if !ok {
		// Sequential mode holds nothing open; each read re-streams the source.
		f.Close()
		h.source = source
		h.fast = false
		logger.Info("Source is not seekable, using sequential reads", "source", source)
		return nil
	}

	sig, err := h.opener.Signature(source)
	if err != nil {
		f.Close()
		return err
	}

	r, err := zip.NewReader(ra, sig.Size)
	if err != nil {
		f.Close()
		return fmt.Errorf("%w: %s: %v", ErrArchiveUnreadable, source, err)
	}

	index := make(map[string]*zip.File)
	for _, zf := range r.File {
		if zf.FileInfo().IsDir() || !viewer.IsSupportedImage(zf.Name) {
			continue
		}
		index[zf.Name] = zf
	}

	h.stream = f
	h.index = index
	h.source = source
	h.fast = true
	logger.Debug("Opened source for random access", "source", source, "images", len(index))
	return nil
}

func (h *Handle) readFastLocked(entryPath string) ([]byte, error) {
	zf, ok := h.index[entryPath]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, entryPath)
	}

	rc, err := zf.Open()
	if err != nil {
		return nil, fmt.Errorf("open entry %s: %w", entryPath, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read entry %s: %w", entryPath, err)
	}
	return data, nil
}

func (h *Handle) readSequentialLocked(entryPath string) ([]byte, error) {
	f, err := h.opener.Open(h.source)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := scanForEntry(f, entryPath)
	if err != nil {
		return nil, err
	}
	return data, nil
}
