package archive

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/spf13/afero"

	"zipview/pkg/metrics"
	"zipview/pkg/storage"
	"zipview/pkg/viewer"
)

type zipEntry struct {
	name string
	data []byte
}

func writeArchive(t *testing.T, fs afero.Fs, path string, entries []zipEntry) {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, e := range entries {
		fw, err := w.Create(e.name)
		if err != nil {
			t.Fatalf("create %s: %v", e.name, err)
		}
		if _, err := fw.Write(e.data); err != nil {
			t.Fatalf("write %s: %v", e.name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close archive: %v", err)
	}
	if err := afero.WriteFile(fs, path, buf.Bytes(), 0644); err != nil {
		t.Fatalf("write archive file: %v", err)
	}
}

// streamOpener hides io.ReaderAt from the handle, forcing the sequential
// read strategy.
type streamOpener struct {
	store *storage.Storage
}

type readOnlyStream struct {
	rc io.ReadCloser
}

func (s readOnlyStream) Read(p []byte) (int, error) { return s.rc.Read(p) }
func (s readOnlyStream) Close() error               { return s.rc.Close() }

func (o streamOpener) Open(source string) (io.ReadCloser, error) {
	rc, err := o.store.Open(source)
	if err != nil {
		return nil, err
	}
	return readOnlyStream{rc: rc}, nil
}

func (o streamOpener) Signature(source string) (viewer.Signature, error) {
	return o.store.Signature(source)
}

func TestReadEntryFastPath(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeArchive(t, fs, "/vol.zip", []zipEntry{
		{"a.jpg", []byte("alpha")},
		{"b.png", []byte("beta")},
	})

	mets := metrics.NewCollector()
	h := NewHandle(storage.New(fs), mets)
	defer h.Close()

	data, err := h.ReadEntry("/vol.zip", "b.png")
	if err != nil {
		t.Fatalf("read entry: %v", err)
	}
	if string(data) != "beta" {
		t.Fatalf("got %q, want %q", data, "beta")
	}
	if !h.FastPath() {
		t.Fatal("expected fast path for seekable source")
	}
	if mets.FastReads.Load() != 1 || mets.SequentialReads.Load() != 0 {
		t.Fatalf("fast=%d sequential=%d, want 1/0", mets.FastReads.Load(), mets.SequentialReads.Load())
	}
}

func TestReadEntrySequentialFallback(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeArchive(t, fs, "/vol.zip", []zipEntry{
		{"a.jpg", []byte("alpha")},
		{"b.png", []byte("beta")},
		{"c.gif", []byte("gamma")},
	})

	mets := metrics.NewCollector()
	h := NewHandle(streamOpener{store: storage.New(fs)}, mets)
	defer h.Close()

	data, err := h.ReadEntry("/vol.zip", "c.gif")
	if err != nil {
		t.Fatalf("read entry: %v", err)
	}
	if string(data) != "gamma" {
		t.Fatalf("got %q, want %q", data, "gamma")
	}
	if h.FastPath() {
		t.Fatal("expected sequential path for non-seekable source")
	}
	if mets.SequentialReads.Load() != 1 {
		t.Fatalf("sequential reads = %d, want 1", mets.SequentialReads.Load())
	}

	if _, err := h.ReadEntry("/vol.zip", "nope.jpg"); !errors.Is(err, ErrEntryNotFound) {
		t.Fatalf("missing entry err = %v, want ErrEntryNotFound", err)
	}
}

func TestReadEntryNotFound(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeArchive(t, fs, "/vol.zip", []zipEntry{{"a.jpg", []byte("alpha")}})

	h := NewHandle(storage.New(fs), metrics.NewCollector())
	defer h.Close()

	if _, err := h.ReadEntry("/vol.zip", "missing.png"); !errors.Is(err, ErrEntryNotFound) {
		t.Fatalf("err = %v, want ErrEntryNotFound", err)
	}
}

func TestReadEntrySwitchesSources(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeArchive(t, fs, "/one.zip", []zipEntry{{"a.jpg", []byte("one-a")}})
	writeArchive(t, fs, "/two.zip", []zipEntry{{"a.jpg", []byte("two-a")}})

	h := NewHandle(storage.New(fs), metrics.NewCollector())
	defer h.Close()

	if _, err := h.ReadEntry("/one.zip", "a.jpg"); err != nil {
		t.Fatalf("read one: %v", err)
	}
	if h.Source() != "/one.zip" {
		t.Fatalf("source = %s, want /one.zip", h.Source())
	}

	data, err := h.ReadEntry("/two.zip", "a.jpg")
	if err != nil {
		t.Fatalf("read two: %v", err)
	}
	if string(data) != "two-a" {
		t.Fatalf("got %q, want %q", data, "two-a")
	}
	if h.Source() != "/two.zip" {
		t.Fatalf("source after switch = %s, want /two.zip", h.Source())
	}
}

func TestReadEntryUnreadableArchive(t *testing.T) {
	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "/bad.zip", []byte("not a zip at all"), 0644)

	h := NewHandle(storage.New(fs), metrics.NewCollector())
	defer h.Close()

	if _, err := h.ReadEntry("/bad.zip", "a.jpg"); !errors.Is(err, ErrArchiveUnreadable) {
		t.Fatalf("err = %v, want ErrArchiveUnreadable", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeArchive(t, fs, "/vol.zip", []zipEntry{{"a.jpg", []byte("alpha")}})

	h := NewHandle(storage.New(fs), metrics.NewCollector())
	if _, err := h.ReadEntry("/vol.zip", "a.jpg"); err != nil {
		t.Fatalf("read: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := h.Close(); err != nil {
			t.Fatalf("close %d: %v", i, err)
		}
	}
	if h.Source() != "" {
		t.Fatalf("source after close = %q, want empty", h.Source())
	}

	// The handle reopens transparently after a close.
	if _, err := h.ReadEntry("/vol.zip", "a.jpg"); err != nil {
		t.Fatalf("read after close: %v", err)
	}
	h.Close()
}
