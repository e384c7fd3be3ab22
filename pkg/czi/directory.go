package czi

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"

	"github.com/pkg/errors"

	"github.com/georgkislinger/CZI-to-TIF-or-Imaris-GUI/internal/models"
)

// PixelType is the CZI pixel type code of a subblock
type PixelType int32

const (
	PixelGray8       PixelType = 0
	PixelGray16      PixelType = 1
	PixelGray32Float PixelType = 2
	PixelBgr24       PixelType = 3
	PixelBgr48       PixelType = 4
	PixelBgr96Float  PixelType = 8
	PixelBgra32      PixelType = 9
	PixelGray32      PixelType = 12
)

// DType maps a pixel type onto the sample dtype it decodes to
func (p PixelType) DType() (models.DType, error) {
	switch p {
	case PixelGray8:
		return models.Uint8, nil
	case PixelGray16:
		return models.Uint16, nil
	case PixelGray32Float:
		return models.Float32, nil
	}
	return models.Invalid, errors.Wrapf(ErrUnsupportedPixelType, "pixel type %d", int32(p))
}

// Compression is the CZI subblock compression code
type Compression int32

const (
	CompressionNone  Compression = 0
	CompressionJpg   Compression = 1
	CompressionLZW   Compression = 2
	CompressionJpgXR Compression = 4
	CompressionZstd0 Compression = 5
	CompressionZstd1 Compression = 6
)

// DimensionEntry is one DimensionEntryDV of a directory entry
type DimensionEntry struct {
	Dimension       string
	Start           int32
	Size            int32
	StartCoordinate float32
	StoredSize      int32
}

// DirectoryEntry describes one subblock as listed in the subblock directory
type DirectoryEntry struct {
	PixelType    PixelType
	FilePosition int64
	FilePart     int32
	Compression  Compression
	PyramidType  uint8
	Dimensions   []DimensionEntry
}

// Dimension returns the entry for the named dimension
func (e *DirectoryEntry) Dimension(name string) (DimensionEntry, bool) {
	for _, d := range e.Dimensions {
		if d.Dimension == name {
			return d, true
		}
	}
	return DimensionEntry{}, false
}

// Size returns the encoded length of the entry in bytes
func (e *DirectoryEntry) Size() int {
	return DirectoryEntryFixedSize + DimensionEntrySize*len(e.Dimensions)
}

// IsLevelZero reports whether the entry holds full resolution pixels
func (e *DirectoryEntry) IsLevelZero() bool {
	if e.PyramidType != 0 {
		return false
	}
	for _, name := range []string{"X", "Y"} {
		d, ok := e.Dimension(name)
		if !ok || d.Size != d.StoredSize {
			return false
		}
	}
	return true
}

// parseDirectoryEntry decodes one DirectoryEntryDV from buf and returns the bytes consumed
func parseDirectoryEntry(buf []byte) (DirectoryEntry, int, error) {
	if len(buf) < DirectoryEntryFixedSize {
		return DirectoryEntry{}, 0, errors.New("truncated directory entry")
	}
	if string(buf[:2]) != "DV" {
		return DirectoryEntry{}, 0, errors.Errorf("unexpected directory entry schema %q", buf[:2])
	}

	e := DirectoryEntry{
		PixelType:    PixelType(int32(binary.LittleEndian.Uint32(buf[2:]))),
		FilePosition: int64(binary.LittleEndian.Uint64(buf[6:])),
		FilePart:     int32(binary.LittleEndian.Uint32(buf[14:])),
		Compression:  Compression(int32(binary.LittleEndian.Uint32(buf[18:]))),
		PyramidType:  buf[22],
	}
	count := int(int32(binary.LittleEndian.Uint32(buf[28:])))
	if count < 0 || len(buf) < DirectoryEntryFixedSize+count*DimensionEntrySize {
		return DirectoryEntry{}, 0, errors.Errorf("truncated directory entry with %d dimensions", count)
	}

	e.Dimensions = make([]DimensionEntry, count)
	for i := range e.Dimensions {
		d := buf[DirectoryEntryFixedSize+i*DimensionEntrySize:]
		name := d[:4]
		if j := bytes.IndexByte(name, 0); j >= 0 {
			name = name[:j]
		}
		e.Dimensions[i] = DimensionEntry{
			Dimension:       string(name),
			Start:           int32(binary.LittleEndian.Uint32(d[4:])),
			Size:            int32(binary.LittleEndian.Uint32(d[8:])),
			StartCoordinate: math.Float32frombits(binary.LittleEndian.Uint32(d[12:])),
			StoredSize:      int32(binary.LittleEndian.Uint32(d[16:])),
		}
	}

	return e, e.Size(), nil
}

// AppendDirectoryEntry encodes e in DirectoryEntryDV layout and appends it to buf
func AppendDirectoryEntry(buf []byte, e DirectoryEntry) []byte {
	out := make([]byte, e.Size())
	copy(out, "DV")
	binary.LittleEndian.PutUint32(out[2:], uint32(e.PixelType))
	binary.LittleEndian.PutUint64(out[6:], uint64(e.FilePosition))
	binary.LittleEndian.PutUint32(out[14:], uint32(e.FilePart))
	binary.LittleEndian.PutUint32(out[18:], uint32(e.Compression))
	out[22] = e.PyramidType
	binary.LittleEndian.PutUint32(out[28:], uint32(len(e.Dimensions)))

	for i, d := range e.Dimensions {
		o := out[DirectoryEntryFixedSize+i*DimensionEntrySize:]
		copy(o[:4], d.Dimension)
		binary.LittleEndian.PutUint32(o[4:], uint32(d.Start))
		binary.LittleEndian.PutUint32(o[8:], uint32(d.Size))
		binary.LittleEndian.PutUint32(o[12:], math.Float32bits(d.StartCoordinate))
		binary.LittleEndian.PutUint32(o[16:], uint32(d.StoredSize))
	}

	return append(buf, out...)
}

// readDirectory loads every entry of the ZISRAWDIRECTORY segment at off
func readDirectory(r io.ReaderAt, off int64) ([]DirectoryEntry, error) {
	hdr, err := expectSegment(r, off, SegmentDirectory)
	if err != nil {
		return nil, err
	}
	if hdr.DataSize() < DirectoryHeaderSize {
		return nil, errors.Errorf("directory segment too small: %d bytes", hdr.DataSize())
	}

	buf := make([]byte, hdr.DataSize())
	n, err := r.ReadAt(buf, off+SegmentHeaderSize)
	if err != nil && !(err == io.EOF && n >= DirectoryHeaderSize) {
		return nil, errors.Wrap(err, "failed to read subblock directory")
	}
	buf = buf[:n]

	count := int(int32(binary.LittleEndian.Uint32(buf)))
	entries := make([]DirectoryEntry, 0, count)
	pos := DirectoryHeaderSize
	for i := 0; i < count; i++ {
		e, n, err := parseDirectoryEntry(buf[pos:])
		if err != nil {
			return nil, errors.Wrapf(err, "directory entry %d", i)
		}
		entries = append(entries, e)
		pos += n
	}

	return entries, nil
}
