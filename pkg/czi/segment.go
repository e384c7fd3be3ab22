// Package czi reads mosaic planes from Carl Zeiss CZI files.
//
// Only the subset of the container needed for plane extraction is handled:
// the file header, the subblock directory, the XML metadata segment and
// pyramid level 0 subblocks stored uncompressed or zstd compressed.
// Gray8, Gray16 and Gray32Float pixels are supported.
package czi

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// Segment identifiers
const (
	SegmentFile      = "ZISRAWFILE"
	SegmentDirectory = "ZISRAWDIRECTORY"
	SegmentSubBlock  = "ZISRAWSUBBLOCK"
	SegmentMetadata  = "ZISRAWMETADATA"
	SegmentDeleted   = "DELETED"
)

const (
	// SegmentHeaderSize is the length of Id + AllocatedSize + UsedSize
	SegmentHeaderSize = 32

	// FileHeaderSize is the allocated data size of the ZISRAWFILE segment
	FileHeaderSize = 512

	// DirectoryHeaderSize is EntryCount plus the reserved block
	DirectoryHeaderSize = 128

	// MetadataHeaderSize is XmlSize, AttachmentSize and the reserved block
	MetadataHeaderSize = 256

	// SubBlockMinHeaderSize is the minimum size of the subblock fixed part
	SubBlockMinHeaderSize = 256

	// DimensionEntrySize is the length of one DimensionEntryDV
	DimensionEntrySize = 20

	// DirectoryEntryFixedSize is DirectoryEntryDV without dimension entries
	DirectoryEntryFixedSize = 32
)

var (
	// ErrNotCZI is returned when the file does not start with a ZISRAWFILE segment
	ErrNotCZI = errors.New("not a CZI file")

	// ErrUnsupportedPixelType is returned for pixel types other than Gray8, Gray16, Gray32Float
	ErrUnsupportedPixelType = errors.New("unsupported CZI pixel type")

	// ErrUnsupportedCompression is returned for JPEG, LZW and JPEG-XR subblocks
	ErrUnsupportedCompression = errors.New("unsupported CZI compression")
)

// segmentHeader precedes every segment in the file
type segmentHeader struct {
	ID            string
	AllocatedSize int64
	UsedSize      int64
}

// DataSize returns the number of meaningful bytes after the header.
// Some writers leave UsedSize at zero, in which case the allocation counts.
func (h segmentHeader) DataSize() int64 {
	if h.UsedSize > 0 {
		return h.UsedSize
	}
	return h.AllocatedSize
}

// readSegmentHeader reads the 32 byte header at off
func readSegmentHeader(r io.ReaderAt, off int64) (segmentHeader, error) {
	buf := make([]byte, SegmentHeaderSize)
	if _, err := r.ReadAt(buf, off); err != nil {
		return segmentHeader{}, errors.Wrapf(err, "failed to read segment header at %d", off)
	}

	id := buf[:16]
	if i := bytes.IndexByte(id, 0); i >= 0 {
		id = id[:i]
	}

	return segmentHeader{
		ID:            string(id),
		AllocatedSize: int64(binary.LittleEndian.Uint64(buf[16:])),
		UsedSize:      int64(binary.LittleEndian.Uint64(buf[24:])),
	}, nil
}

// expectSegment reads the header at off and checks its identifier
func expectSegment(r io.ReaderAt, off int64, id string) (segmentHeader, error) {
	hdr, err := readSegmentHeader(r, off)
	if err != nil {
		return hdr, err
	}
	if hdr.ID != id {
		return hdr, errors.Errorf("expected %s segment at %d, found %q", id, off, hdr.ID)
	}
	return hdr, nil
}

// PutSegmentHeader encodes a segment header into buf, which must be at least 32 bytes
func PutSegmentHeader(buf []byte, id string, allocated, used int64) {
	for i := 0; i < 16; i++ {
		buf[i] = 0
	}
	copy(buf[:16], id)
	binary.LittleEndian.PutUint64(buf[16:], uint64(allocated))
	binary.LittleEndian.PutUint64(buf[24:], uint64(used))
}
