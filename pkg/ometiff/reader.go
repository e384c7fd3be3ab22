package ometiff

import (
	"encoding/binary"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/georgkislinger/CZI-to-TIF-or-Imaris-GUI/internal/models"
)

// Image is an OME-TIFF read back into memory. Volume is always laid out
// TCZYX; Axes is the file's axis order, slowest first, from its DimensionOrder.
type Image struct {
	Volume       *models.Volume
	Axes         string
	PhysicalSize models.VoxelSize
}

// page is the subset of an IFD needed to locate uncompressed strips
type page struct {
	width, height int
	bits          int
	compression   int
	description   string
	stripOffsets  []uint64
	stripCounts   []uint64
}

// Read loads an uncompressed, single-sample OME-TIFF whose DimensionOrder
// starts with XY, placing each page at its (t, c, z) position
func Read(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	defer f.Close()

	l, first, err := readHeader(f)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}

	var pages []page
	for off := first; off != 0; {
		p, next, err := readPage(f, l, off)
		if err != nil {
			return nil, errors.Wrapf(err, "IFD %d of %s", len(pages), path)
		}
		pages = append(pages, p)
		off = next
	}
	if len(pages) == 0 {
		return nil, errors.Errorf("%s has no pages", path)
	}

	px, err := parseOMEXML(pages[0].description)
	if err != nil {
		return nil, err
	}
	axes, err := axesOf(px.DimensionOrder)
	if err != nil {
		return nil, err
	}
	dtype, err := parseOMEType(px.Type)
	if err != nil {
		return nil, err
	}

	vol, err := models.NewVolume([5]int{px.SizeT, px.SizeC, px.SizeZ, px.SizeY, px.SizeX}, dtype)
	if err != nil {
		return nil, err
	}
	if len(pages) != vol.PlaneCount() {
		return nil, errors.Errorf("%s has %d pages, OME-XML declares %d planes", path, len(pages), vol.PlaneCount())
	}

	for i, p := range pages {
		if p.width != px.SizeX || p.height != px.SizeY || p.bits != 8*dtype.Size() {
			return nil, errors.Errorf("page %d is %dx%d at %d bits, expected %dx%d at %d bits",
				i, p.width, p.height, p.bits, px.SizeX, px.SizeY, 8*dtype.Size())
		}
		if p.compression != 1 {
			return nil, errors.Errorf("page %d uses compression %d", i, p.compression)
		}
		if len(p.stripOffsets) != len(p.stripCounts) {
			return nil, errors.Errorf("page %d has mismatched strip tables", i)
		}

		dst := vol.Plane(planeOf(px.DimensionOrder, i, px))
		pos := 0
		for s, off := range p.stripOffsets {
			n := int(p.stripCounts[s])
			if pos+n > len(dst) {
				return nil, errors.Errorf("page %d strips overrun the plane", i)
			}
			if _, err := f.ReadAt(dst[pos:pos+n], int64(off)); err != nil {
				return nil, errors.Wrapf(err, "failed to read strip %d of page %d", s, i)
			}
			pos += n
		}
		if pos != len(dst) {
			return nil, errors.Errorf("page %d holds %d bytes, expected %d", i, pos, len(dst))
		}
	}

	return &Image{
		Volume:       vol,
		Axes:         axes,
		PhysicalSize: models.VoxelSize{X: px.PhysicalSizeX, Y: px.PhysicalSizeY, Z: px.PhysicalSizeZ},
	}, nil
}

func readHeader(r io.ReaderAt) (layout, uint64, error) {
	buf := make([]byte, 16)
	n, err := r.ReadAt(buf, 0)
	if n < 8 {
		return layout{}, 0, errors.Wrap(err, "file too short for a TIFF header")
	}
	if buf[0] != 'I' || buf[1] != 'I' {
		return layout{}, 0, errors.New("only little-endian TIFF is supported")
	}
	switch binary.LittleEndian.Uint16(buf[2:]) {
	case 42:
		return layout{}, uint64(binary.LittleEndian.Uint32(buf[4:])), nil
	case 43:
		if n < 16 {
			return layout{}, 0, errors.New("file too short for a BigTIFF header")
		}
		return layout{big: true}, binary.LittleEndian.Uint64(buf[8:]), nil
	}
	return layout{}, 0, errors.New("not a TIFF file")
}

func readPage(r io.ReaderAt, l layout, off uint64) (page, uint64, error) {
	countBuf := make([]byte, l.countSize())
	if _, err := r.ReadAt(countBuf, int64(off)); err != nil {
		return page{}, 0, errors.Wrap(err, "failed to read entry count")
	}
	var count uint64
	if l.big {
		count = binary.LittleEndian.Uint64(countBuf)
	} else {
		count = uint64(binary.LittleEndian.Uint16(countBuf))
	}

	body := make([]byte, int(count)*l.entrySize()+l.offsetSize())
	if _, err := r.ReadAt(body, int64(off)+int64(l.countSize())); err != nil {
		return page{}, 0, errors.Wrap(err, "failed to read entries")
	}

	p := page{compression: 1}
	for i := 0; i < int(count); i++ {
		e := body[i*l.entrySize():]
		tag := binary.LittleEndian.Uint16(e)
		typ := binary.LittleEndian.Uint16(e[2:])
		var n uint64
		slot := e[4:]
		if l.big {
			n = binary.LittleEndian.Uint64(slot)
			slot = slot[8 : 8+8]
		} else {
			n = uint64(binary.LittleEndian.Uint32(slot))
			slot = slot[4 : 4+4]
		}

		size, ok := typeSizes[typ]
		if !ok {
			continue
		}
		var raw []byte
		if total := int(n) * size; total > l.offsetSize() {
			raw = make([]byte, total)
			if _, err := r.ReadAt(raw, int64(l.getOffset(slot))); err != nil {
				return page{}, 0, errors.Wrapf(err, "failed to read tag %d", tag)
			}
		} else {
			raw = slot[:total]
		}

		switch tag {
		case tagImageWidth:
			p.width = int(firstValue(typ, raw))
		case tagImageLength:
			p.height = int(firstValue(typ, raw))
		case tagBitsPerSample:
			p.bits = int(firstValue(typ, raw))
		case tagCompression:
			p.compression = int(firstValue(typ, raw))
		case tagImageDescription:
			if len(raw) > 0 && raw[len(raw)-1] == 0 {
				raw = raw[:len(raw)-1]
			}
			p.description = string(raw)
		case tagStripOffsets:
			p.stripOffsets = values(typ, raw, int(n))
		case tagStripByteCounts:
			p.stripCounts = values(typ, raw, int(n))
		}
	}

	return p, l.getOffset(body[int(count)*l.entrySize():]), nil
}

func values(typ uint16, raw []byte, n int) []uint64 {
	size := typeSizes[typ]
	out := make([]uint64, n)
	for i := range out {
		out[i] = firstValue(typ, raw[i*size:])
	}
	return out
}

func firstValue(typ uint16, raw []byte) uint64 {
	switch typ {
	case typeShort:
		return uint64(binary.LittleEndian.Uint16(raw))
	case typeLong:
		return uint64(binary.LittleEndian.Uint32(raw))
	case typeLong8:
		return binary.LittleEndian.Uint64(raw)
	}
	if len(raw) > 0 {
		return uint64(raw[0])
	}
	return 0
}
