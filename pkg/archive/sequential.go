package archive

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
)

// ZIP record signatures and the local-header layout offsets we care about.
const (
	sigLocalFile      = 0x04034b50
	sigCentralDir     = 0x02014b50
	sigDataDescriptor = 0x08074b50

	flagDataDescriptor = 0x0008

	methodStore   = 0
	methodDeflate = 8

	localHeaderLen = 26 // after the 4-byte signature
)

// scanForEntry walks the stream's local file headers in order until it finds
// entryPath, then decompresses just that entry. Reaching the central
// directory means the entry does not exist.
//
// Streamed entries (data-descriptor flag set) are supported for deflate,
// where the compressed stream delimits itself. A streamed stored entry has
// no discoverable length on a forward-only reader and is unreadable here.
func scanForEntry(r io.Reader, entryPath string) ([]byte, error) {
	// bufio gives flate an io.ByteReader so it never reads past the end of
	// an entry's compressed data.
	br := bufio.NewReader(r)

	for {
		var sig [4]byte
		if _, err := io.ReadFull(br, sig[:]); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, entryPath)
			}
			return nil, fmt.Errorf("%w: %v", ErrArchiveUnreadable, err)
		}

		switch binary.LittleEndian.Uint32(sig[:]) {
		case sigLocalFile:
			// fall through to header parsing below
		case sigCentralDir:
			return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, entryPath)
		default:
			return nil, fmt.Errorf("%w: unexpected record signature", ErrArchiveUnreadable)
		}

		var hdr [localHeaderLen]byte
		if _, err := io.ReadFull(br, hdr[:]); err != nil {
			return nil, fmt.Errorf("%w: truncated local header: %v", ErrArchiveUnreadable, err)
		}

		flags := binary.LittleEndian.Uint16(hdr[2:4])
		method := binary.LittleEndian.Uint16(hdr[4:6])
		compSize := int64(binary.LittleEndian.Uint32(hdr[14:18]))
		nameLen := int(binary.LittleEndian.Uint16(hdr[22:24]))
		extraLen := int(binary.LittleEndian.Uint16(hdr[24:26]))

		nameBuf := make([]byte, nameLen)
		if _, err := io.ReadFull(br, nameBuf); err != nil {
			return nil, fmt.Errorf("%w: truncated entry name: %v", ErrArchiveUnreadable, err)
		}
		if _, err := io.CopyN(io.Discard, br, int64(extraLen)); err != nil {
			return nil, fmt.Errorf("%w: truncated extra field: %v", ErrArchiveUnreadable, err)
		}

		streamed := flags&flagDataDescriptor != 0
		isTarget := string(nameBuf) == entryPath

		data, err := readEntryData(br, method, compSize, streamed, isTarget)
		if err != nil {
			return nil, fmt.Errorf("entry %s: %w", string(nameBuf), err)
		}
		if isTarget {
			return data, nil
		}
	}
}

// readEntryData consumes exactly one entry's data (and trailing data
// descriptor when present), returning the decompressed bytes when keep is
// set.
func readEntryData(br *bufio.Reader, method uint16, compSize int64, streamed, keep bool) ([]byte, error) {
	var data []byte

	switch {
	case !streamed && method == methodStore:
		if keep {
			data = make([]byte, compSize)
			if _, err := io.ReadFull(br, data); err != nil {
				return nil, fmt.Errorf("%w: truncated entry data: %v", ErrArchiveUnreadable, err)
			}
		} else if _, err := io.CopyN(io.Discard, br, compSize); err != nil {
			return nil, fmt.Errorf("%w: truncated entry data: %v", ErrArchiveUnreadable, err)
		}
		return data, nil

	case !streamed && method == methodDeflate:
		if keep {
			// Buffer the exact compressed span so the reader position stays
			// aligned with the next local header.
			comp := make([]byte, compSize)
			if _, err := io.ReadFull(br, comp); err != nil {
				return nil, fmt.Errorf("%w: truncated entry data: %v", ErrArchiveUnreadable, err)
			}
			return inflate(bytes.NewReader(comp))
		}
		if _, err := io.CopyN(io.Discard, br, compSize); err != nil {
			return nil, fmt.Errorf("%w: truncated entry data: %v", ErrArchiveUnreadable, err)
		}
		return nil, nil

	case streamed && method == methodDeflate:
		// The deflate stream delimits itself; the descriptor follows.
		var err error
		data, err = inflate(br)
		if err != nil {
			return nil, err
		}
		if err := skipDataDescriptor(br); err != nil {
			return nil, err
		}
		if !keep {
			data = nil
		}
		return data, nil

	case streamed:
		return nil, fmt.Errorf("%w: streamed stored entry unsupported in sequential mode", ErrArchiveUnreadable)

	default:
		return nil, fmt.Errorf("%w: unsupported compression method %d", ErrArchiveUnreadable, method)
	}
}

func inflate(r io.Reader) ([]byte, error) {
	fr := flate.NewReader(r)
	defer fr.Close()
	data, err := io.ReadAll(fr)
	if err != nil {
		return nil, fmt.Errorf("%w: inflate: %v", ErrArchiveUnreadable, err)
	}
	return data, nil
}

// skipDataDescriptor consumes the 12-byte descriptor (crc + sizes), with or
// without its optional leading signature.
func skipDataDescriptor(br *bufio.Reader) error {
	head, err := br.Peek(4)
	if err != nil {
		return fmt.Errorf("%w: truncated data descriptor: %v", ErrArchiveUnreadable, err)
	}

	n := int64(12)
	if binary.LittleEndian.Uint32(head) == sigDataDescriptor {
		n = 16
	}
	if _, err := io.CopyN(io.Discard, br, n); err != nil {
		return fmt.Errorf("%w: truncated data descriptor: %v", ErrArchiveUnreadable, err)
	}
	return nil
}
