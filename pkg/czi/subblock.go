package czi

import (
	"encoding/binary"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
)

// Zstd1 header chunk types
const (
	zstd1ChunkPacking = 1
	zstd1HiLoFlag     = 0x01
)

// subBlockLayout holds the offsets of the parts of a ZISRAWSUBBLOCK segment
type subBlockLayout struct {
	metadataSize   int64
	dataSize       int64
	attachmentSize int64
	dataOffset     int64
}

// readSubBlockLayout locates the pixel data of the subblock segment at off
func readSubBlockLayout(r io.ReaderAt, off int64) (subBlockLayout, error) {
	if _, err := expectSegment(r, off, SegmentSubBlock); err != nil {
		return subBlockLayout{}, err
	}

	fixed := make([]byte, 16+DirectoryEntryFixedSize)
	if _, err := r.ReadAt(fixed, off+SegmentHeaderSize); err != nil {
		return subBlockLayout{}, errors.Wrap(err, "failed to read subblock header")
	}

	l := subBlockLayout{
		metadataSize:   int64(int32(binary.LittleEndian.Uint32(fixed[0:]))),
		attachmentSize: int64(int32(binary.LittleEndian.Uint32(fixed[4:]))),
		dataSize:       int64(binary.LittleEndian.Uint64(fixed[8:])),
	}
	dims := int64(int32(binary.LittleEndian.Uint32(fixed[16+28:])))

	header := 16 + DirectoryEntryFixedSize + dims*DimensionEntrySize
	if header < SubBlockMinHeaderSize {
		header = SubBlockMinHeaderSize
	}
	l.dataOffset = off + SegmentHeaderSize + header + l.metadataSize

	return l, nil
}

// SubBlockHeaderSize returns the fixed part length for an entry, including padding
func SubBlockHeaderSize(e DirectoryEntry) int {
	n := 16 + e.Size()
	if n < SubBlockMinHeaderSize {
		n = SubBlockMinHeaderSize
	}
	return n
}

// decoder turns stored subblock payloads into raw pixel bytes
type decoder struct {
	zstd *zstd.Decoder
}

func newDecoder() (*decoder, error) {
	zd, err := zstd.NewReader(nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create zstd decoder")
	}
	return &decoder{zstd: zd}, nil
}

func (d *decoder) Close() {
	d.zstd.Close()
}

// decode expands payload according to the subblock compression.
// bytesPerPixel is needed to undo Zstd1 hi/lo byte packing.
func (d *decoder) decode(payload []byte, c Compression, bytesPerPixel int) ([]byte, error) {
	switch c {
	case CompressionNone:
		return payload, nil

	case CompressionZstd0:
		out, err := d.zstd.DecodeAll(payload, nil)
		if err != nil {
			return nil, errors.Wrap(err, "zstd0 subblock")
		}
		return out, nil

	case CompressionZstd1:
		if len(payload) == 0 {
			return nil, errors.New("empty zstd1 subblock")
		}
		headerSize := int(payload[0])
		if headerSize < 1 || headerSize > len(payload) {
			return nil, errors.Errorf("invalid zstd1 header size %d", headerSize)
		}

		hiLo := false
		for pos := 1; pos < headerSize; {
			switch payload[pos] {
			case zstd1ChunkPacking:
				if pos+1 >= headerSize {
					return nil, errors.New("truncated zstd1 packing chunk")
				}
				hiLo = payload[pos+1]&zstd1HiLoFlag != 0
				pos += 2
			default:
				return nil, errors.Errorf("unknown zstd1 header chunk %d", payload[pos])
			}
		}

		out, err := d.zstd.DecodeAll(payload[headerSize:], nil)
		if err != nil {
			return nil, errors.Wrap(err, "zstd1 subblock")
		}
		if hiLo && bytesPerPixel == 2 {
			out = UnpackHiLo(out)
		}
		return out, nil
	}

	return nil, errors.Wrapf(ErrUnsupportedCompression, "compression %d", int32(c))
}

// UnpackHiLo interleaves a buffer holding all low bytes followed by all
// high bytes back into little-endian 16-bit samples.
func UnpackHiLo(packed []byte) []byte {
	half := len(packed) / 2
	out := make([]byte, 2*half)
	for i := 0; i < half; i++ {
		out[2*i] = packed[i]
		out[2*i+1] = packed[half+i]
	}
	return out
}

// PackHiLo is the inverse of UnpackHiLo
func PackHiLo(samples []byte) []byte {
	half := len(samples) / 2
	out := make([]byte, 2*half)
	for i := 0; i < half; i++ {
		out[i] = samples[2*i]
		out[half+i] = samples[2*i+1]
	}
	return out
}
