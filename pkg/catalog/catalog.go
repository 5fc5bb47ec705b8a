// Package catalog scans ZIP sources for image entries and caches the result
// per source until its modification signature changes.
package catalog

import (
	"bytes"
	"io"
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/klauspost/compress/zip"

	"zipview/pkg/logger"
	"zipview/pkg/metrics"
	"zipview/pkg/storage"
	"zipview/pkg/viewer"
)

type cachedEntries struct {
	sig     viewer.Signature
	entries []viewer.ImageEntry
}

// Catalog answers entry listings for ZIP sources.
type Catalog struct {
	store *storage.Storage
	mets  *metrics.Collector
	cache *lru.Cache[string, *cachedEntries]
}

// New creates a catalog keeping up to size scanned sources cached.
func New(store *storage.Storage, mets *metrics.Collector, size int) (*Catalog, error) {
	if size < 1 {
		size = 1
	}
	cache, err := lru.New[string, *cachedEntries](size)
	if err != nil {
		return nil, err
	}
	return &Catalog{store: store, mets: mets, cache: cache}, nil
}

// Entries returns the supported image entries of source, sorted by display
// name. A cached listing is reused while the source signature is unchanged.
// An unreadable or corrupt archive yields an empty listing, never an error;
// failures are visible through the scan-failure counter.
func (c *Catalog) Entries(source string) []viewer.ImageEntry {
	sig, err := c.store.Signature(source)
	if err != nil {
		logger.Warn("Catalog stat failed", "source", source, "err", err)
		c.mets.CatalogScanFailures.Add(1)
		return nil
	}

	key := storage.Normalize(source)
	if cached, ok := c.cache.Get(key); ok && cached.sig.Equal(sig) {
		c.mets.CatalogCacheHits.Add(1)
		return copyEntries(cached.entries)
	}

	entries, err := c.scan(source, sig.Size)
	if err != nil {
		logger.Warn("Catalog scan failed", "source", source, "err", err)
		c.mets.CatalogScanFailures.Add(1)
		// Not cached so a later request can retry the scan.
		return nil
	}

	c.cache.Add(key, &cachedEntries{sig: sig, entries: entries})
	return copyEntries(entries)
}

// copyEntries detaches the returned listing from the cached one, so a caller
// mutating its slice cannot corrupt later hits.
func copyEntries(entries []viewer.ImageEntry) []viewer.ImageEntry {
	out := make([]viewer.ImageEntry, len(entries))
	copy(out, entries)
	return out
}

// scan does one pass over the archive directory. Ordinals are assigned in
// scan order before the name sort so position persistence survives renames
// of unrelated entries.
func (c *Catalog) scan(source string, size int64) ([]viewer.ImageEntry, error) {
	c.mets.CatalogScans.Add(1)

	f, err := c.store.Open(source)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ra, ok := f.(io.ReaderAt)
	if !ok {
		// Non-seekable source: buffer it for this one-shot scan.
		data, err := io.ReadAll(f)
		if err != nil {
			return nil, err
		}
		ra = bytes.NewReader(data)
		size = int64(len(data))
	}

	r, err := zip.NewReader(ra, size)
	if err != nil {
		return nil, err
	}

	entries := make([]viewer.ImageEntry, 0, len(r.File))
	ordinal := 0
	for _, zf := range r.File {
		if zf.FileInfo().IsDir() {
			continue
		}
		if !viewer.IsSupportedImage(zf.Name) {
			continue
		}
		entries = append(entries, viewer.ImageEntry{
			Source:  source,
			Path:    zf.Name,
			Name:    viewer.DisplayName(zf.Name),
			Size:    int64(zf.UncompressedSize64),
			Ordinal: ordinal,
		})
		ordinal++
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Name != entries[j].Name {
			return entries[i].Name < entries[j].Name
		}
		return entries[i].Path < entries[j].Path
	})

	logger.Debug("Scanned source", "source", source, "entries", len(entries))
	return entries, nil
}

// Invalidate drops the cached listing for source.
func (c *Catalog) Invalidate(source string) {
	c.cache.Remove(storage.Normalize(source))
}

// Reset drops all cached listings.
func (c *Catalog) Reset() {
	c.cache.Purge()
}
