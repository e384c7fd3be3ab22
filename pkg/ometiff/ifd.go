package ometiff

import (
	"encoding/binary"
	"sort"
)

// TIFF tags written per page
const (
	tagNewSubfileType   = 254
	tagImageWidth       = 256
	tagImageLength      = 257
	tagBitsPerSample    = 258
	tagCompression      = 259
	tagPhotometric      = 262
	tagImageDescription = 270
	tagStripOffsets     = 273
	tagSamplesPerPixel  = 277
	tagRowsPerStrip     = 278
	tagStripByteCounts  = 279
	tagPlanarConfig     = 284
	tagSoftware         = 305
	tagSampleFormat     = 339
)

// TIFF field types
const (
	typeASCII = 2
	typeShort = 3
	typeLong  = 4
	typeLong8 = 16
)

// Sample formats of tag 339
const (
	sampleFormatUint  = 1
	sampleFormatFloat = 3
)

var typeSizes = map[uint16]int{typeASCII: 1, typeShort: 2, typeLong: 4, typeLong8: 8}

// layout captures the differences between classic TIFF and BigTIFF
type layout struct {
	big bool
}

func (l layout) headerSize() int {
	if l.big {
		return 16
	}
	return 8
}

// offsetSize is the width of IFD offsets and inline value slots
func (l layout) offsetSize() int {
	if l.big {
		return 8
	}
	return 4
}

func (l layout) countSize() int {
	if l.big {
		return 8
	}
	return 2
}

func (l layout) entrySize() int {
	if l.big {
		return 20
	}
	return 12
}

// offsetType is the field type used for strip offsets and byte counts
func (l layout) offsetType() uint16 {
	if l.big {
		return typeLong8
	}
	return typeLong
}

// entry is one IFD field with its value already encoded little-endian
type entry struct {
	tag   uint16
	typ   uint16
	count uint64
	value []byte
}

func shortEntry(tag uint16, v uint16) entry {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, v)
	return entry{tag: tag, typ: typeShort, count: 1, value: b}
}

func longEntry(tag uint16, v uint32) entry {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return entry{tag: tag, typ: typeLong, count: 1, value: b}
}

func asciiEntry(tag uint16, s string) entry {
	b := append([]byte(s), 0)
	return entry{tag: tag, typ: typeASCII, count: uint64(len(b)), value: b}
}

// offsetEntry holds one offset-sized value: LONG in classic TIFF, LONG8 in BigTIFF
func (l layout) offsetEntry(tag uint16, v uint64) entry {
	if l.big {
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, v)
		return entry{tag: tag, typ: typeLong8, count: 1, value: b}
	}
	return longEntry(tag, uint32(v))
}

// outOfLine returns the bytes an entry needs after the IFD, word aligned
func (l layout) outOfLine(e entry) int {
	if len(e.value) <= l.offsetSize() {
		return 0
	}
	return len(e.value) + len(e.value)%2
}

// ifdSize returns the encoded size of an IFD including its out-of-line values
func (l layout) ifdSize(entries []entry) int {
	n := l.countSize() + len(entries)*l.entrySize() + l.offsetSize()
	for _, e := range entries {
		n += l.outOfLine(e)
	}
	return n
}

// encodeIFD serializes entries for an IFD located at offset, linking to next (0 ends the chain)
func (l layout) encodeIFD(entries []entry, offset, next uint64) []byte {
	sorted := append([]entry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].tag < sorted[j].tag })

	buf := make([]byte, l.ifdSize(sorted))
	pos := 0
	if l.big {
		binary.LittleEndian.PutUint64(buf, uint64(len(sorted)))
	} else {
		binary.LittleEndian.PutUint16(buf, uint16(len(sorted)))
	}
	pos += l.countSize()

	extra := pos + len(sorted)*l.entrySize() + l.offsetSize()
	for _, e := range sorted {
		binary.LittleEndian.PutUint16(buf[pos:], e.tag)
		binary.LittleEndian.PutUint16(buf[pos+2:], e.typ)
		slot := pos + 4
		if l.big {
			binary.LittleEndian.PutUint64(buf[slot:], e.count)
			slot += 8
		} else {
			binary.LittleEndian.PutUint32(buf[slot:], uint32(e.count))
			slot += 4
		}

		if l.outOfLine(e) == 0 {
			copy(buf[slot:], e.value)
		} else {
			l.putOffset(buf[slot:], offset+uint64(extra))
			copy(buf[extra:], e.value)
			extra += l.outOfLine(e)
		}
		pos += l.entrySize()
	}
	l.putOffset(buf[pos:], next)
	return buf
}

func (l layout) putOffset(b []byte, v uint64) {
	if l.big {
		binary.LittleEndian.PutUint64(b, v)
	} else {
		binary.LittleEndian.PutUint32(b, uint32(v))
	}
}

func (l layout) getOffset(b []byte) uint64 {
	if l.big {
		return binary.LittleEndian.Uint64(b)
	}
	return uint64(binary.LittleEndian.Uint32(b))
}

// header returns the file header pointing at the first IFD
func (l layout) header(firstIFD uint64) []byte {
	buf := make([]byte, l.headerSize())
	buf[0], buf[1] = 'I', 'I'
	if l.big {
		binary.LittleEndian.PutUint16(buf[2:], 43)
		binary.LittleEndian.PutUint16(buf[4:], 8)
		binary.LittleEndian.PutUint64(buf[8:], firstIFD)
	} else {
		binary.LittleEndian.PutUint16(buf[2:], 42)
		binary.LittleEndian.PutUint32(buf[4:], uint32(firstIFD))
	}
	return buf
}
