package czi

import (
	"encoding/binary"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/georgkislinger/CZI-to-TIF-or-Imaris-GUI/internal/models"
)

// dimensionOrder is the order used to report dimension labels, outermost first
const dimensionOrder = "VHRIBSTCZMYX"

// File is an open CZI file. It is not safe for concurrent use.
type File struct {
	f        *os.File
	dec      *decoder
	entries  []DirectoryEntry
	level0   []DirectoryEntry
	minStart map[string]int32
	sizes    map[string]int
	dims     string
	bounds   struct{ x0, y0, x1, y1 int }
	physical PhysicalSize
	xml      []byte
}

// Open reads the header, subblock directory and metadata of a CZI file
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open CZI file")
	}

	cz := &File{f: f}
	if err := cz.load(); err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "failed to load %s", path)
	}

	cz.dec, err = newDecoder()
	if err != nil {
		f.Close()
		return nil, err
	}

	return cz, nil
}

// load parses the ZISRAWFILE header and everything it points to
func (cz *File) load() error {
	hdr, err := readSegmentHeader(cz.f, 0)
	if err != nil {
		return errors.Wrap(ErrNotCZI, err.Error())
	}
	if hdr.ID != SegmentFile {
		return errors.Wrapf(ErrNotCZI, "first segment is %q", hdr.ID)
	}

	fh := make([]byte, 80)
	if _, err := cz.f.ReadAt(fh, SegmentHeaderSize); err != nil {
		return errors.Wrap(err, "failed to read file header")
	}
	directoryPos := int64(binary.LittleEndian.Uint64(fh[52:]))
	metadataPos := int64(binary.LittleEndian.Uint64(fh[60:]))

	if directoryPos <= 0 {
		return errors.New("file has no subblock directory")
	}
	cz.entries, err = readDirectory(cz.f, directoryPos)
	if err != nil {
		return err
	}

	if metadataPos > 0 {
		cz.xml, err = readMetadataXML(cz.f, metadataPos)
		if err != nil {
			return err
		}
		if len(cz.xml) > 0 {
			cz.physical, err = parsePhysicalSize(cz.xml)
			if err != nil {
				return err
			}
		}
	}

	cz.index()
	if len(cz.level0) == 0 {
		return errors.New("file contains no full resolution subblocks")
	}

	return nil
}

// index derives dimension extents and the mosaic bounding box from level 0 entries
func (cz *File) index() {
	cz.minStart = make(map[string]int32)
	maxEnd := make(map[string]int32)
	mValues := make(map[int32]bool)
	first := true

	for _, e := range cz.entries {
		if !e.IsLevelZero() {
			continue
		}
		cz.level0 = append(cz.level0, e)

		x, _ := e.Dimension("X")
		y, _ := e.Dimension("Y")
		if first {
			cz.bounds.x0, cz.bounds.y0 = int(x.Start), int(y.Start)
			cz.bounds.x1, cz.bounds.y1 = int(x.Start+x.Size), int(y.Start+y.Size)
			first = false
		} else {
			cz.bounds.x0 = min(cz.bounds.x0, int(x.Start))
			cz.bounds.y0 = min(cz.bounds.y0, int(y.Start))
			cz.bounds.x1 = max(cz.bounds.x1, int(x.Start+x.Size))
			cz.bounds.y1 = max(cz.bounds.y1, int(y.Start+y.Size))
		}

		for _, d := range e.Dimensions {
			if d.Dimension == "X" || d.Dimension == "Y" {
				continue
			}
			if d.Dimension == "M" {
				mValues[d.Start] = true
				continue
			}
			size := d.Size
			if size < 1 {
				size = 1
			}
			if s, ok := cz.minStart[d.Dimension]; !ok || d.Start < s {
				cz.minStart[d.Dimension] = d.Start
			}
			if end, ok := maxEnd[d.Dimension]; !ok || d.Start+size > end {
				maxEnd[d.Dimension] = d.Start + size
			}
		}
	}

	cz.sizes = make(map[string]int)
	for name, end := range maxEnd {
		cz.sizes[name] = int(end - cz.minStart[name])
	}
	if len(mValues) > 0 {
		cz.sizes["M"] = len(mValues)
	}
	cz.sizes["Y"] = cz.bounds.y1 - cz.bounds.y0
	cz.sizes["X"] = cz.bounds.x1 - cz.bounds.x0

	var labels []byte
	for i := 0; i < len(dimensionOrder); i++ {
		if _, ok := cz.sizes[dimensionOrder[i:i+1]]; ok {
			labels = append(labels, dimensionOrder[i])
		}
	}
	// Dimensions outside the canonical order go before Y and X
	var extra []string
	for name := range cz.sizes {
		if !strings.Contains(dimensionOrder, name) {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	cz.dims = strings.Join(extra, "") + string(labels)
}

// Dims returns the dimension labels, outermost first, e.g. "TCZMYX"
func (cz *File) Dims() string {
	return cz.dims
}

// Sizes returns the extent of every dimension label. Y and X are the mosaic size.
func (cz *File) Sizes() map[string]int {
	out := make(map[string]int, len(cz.sizes))
	for k, v := range cz.sizes {
		out[k] = v
	}
	return out
}

// PhysicalSize returns the pixel pitch recorded in the file metadata
func (cz *File) PhysicalSize() PhysicalSize {
	return cz.physical
}

// MetadataXML returns the raw XML metadata document, if any
func (cz *File) MetadataXML() []byte {
	return cz.xml
}

// Close releases the file handle and decoder
func (cz *File) Close() error {
	if cz.dec != nil {
		cz.dec.Close()
	}
	return cz.f.Close()
}

// matches reports whether entry e belongs to plane (t, c, z)
func (cz *File) matches(e DirectoryEntry, t, c, z int) bool {
	for name, want := range map[string]int{"T": t, "C": c, "Z": z} {
		d, ok := e.Dimension(name)
		if !ok {
			if want != 0 {
				return false
			}
			continue
		}
		if int(d.Start-cz.minStart[name]) != want {
			return false
		}
	}
	return true
}

// ReadMosaic composes the full resolution tiles of plane (t, c, z) over the
// whole mosaic bounding box and resamples it by scale, which must be in (0, 1].
// The returned plane has shape (1, Y, X).
func (cz *File) ReadMosaic(t, c, z int, scale float64) (*models.Plane, error) {
	if !(scale > 0) || scale > 1 {
		return nil, errors.Errorf("scale factor must be in (0, 1], got %g", scale)
	}

	var tiles []DirectoryEntry
	for _, e := range cz.level0 {
		if cz.matches(e, t, c, z) {
			tiles = append(tiles, e)
		}
	}
	if len(tiles) == 0 {
		return nil, errors.Errorf("no subblocks for T=%d,C=%d,Z=%d", t, c, z)
	}

	// Higher M indices are drawn over lower ones
	sort.SliceStable(tiles, func(i, j int) bool {
		mi, _ := tiles[i].Dimension("M")
		mj, _ := tiles[j].Dimension("M")
		return mi.Start < mj.Start
	})

	dtype, err := tiles[0].PixelType.DType()
	if err != nil {
		return nil, err
	}
	bpp := dtype.Size()
	width := cz.bounds.x1 - cz.bounds.x0
	height := cz.bounds.y1 - cz.bounds.y0
	canvas := make([]byte, width*height*bpp)

	for _, e := range tiles {
		if e.PixelType != tiles[0].PixelType {
			return nil, errors.Errorf("mixed pixel types in plane T=%d,C=%d,Z=%d", t, c, z)
		}
		if err := cz.drawTile(canvas, width, bpp, e); err != nil {
			return nil, errors.Wrapf(err, "subblock at %d", e.FilePosition)
		}
	}

	plane := &models.Plane{Shape: []int{1, height, width}, DType: dtype, Data: canvas}
	if scale < 1 {
		plane = resample(plane, scale)
	}
	return plane, nil
}

// ReadPlane is ReadMosaic under the name used by the conversion pipeline
func (cz *File) ReadPlane(t, c, z int, scale float64) (*models.Plane, error) {
	return cz.ReadMosaic(t, c, z, scale)
}

// drawTile decodes one subblock and copies it into the canvas at its mosaic position
func (cz *File) drawTile(canvas []byte, width, bpp int, e DirectoryEntry) error {
	layout, err := readSubBlockLayout(cz.f, e.FilePosition)
	if err != nil {
		return err
	}

	payload := make([]byte, layout.dataSize)
	if _, err := cz.f.ReadAt(payload, layout.dataOffset); err != nil {
		return errors.Wrap(err, "failed to read subblock data")
	}

	pixels, err := cz.dec.decode(payload, e.Compression, bpp)
	if err != nil {
		return err
	}

	x, _ := e.Dimension("X")
	y, _ := e.Dimension("Y")
	tw, th := int(x.StoredSize), int(y.StoredSize)
	if len(pixels) < tw*th*bpp {
		return errors.Errorf("subblock holds %d bytes, expected %d", len(pixels), tw*th*bpp)
	}

	ox := int(x.Start) - cz.bounds.x0
	oy := int(y.Start) - cz.bounds.y0
	row := tw * bpp
	for r := 0; r < th; r++ {
		dst := ((oy+r)*width + ox) * bpp
		copy(canvas[dst:dst+row], pixels[r*row:(r+1)*row])
	}
	return nil
}

// resample scales a (1, Y, X) plane by nearest neighbour sampling
func resample(p *models.Plane, scale float64) *models.Plane {
	h, w := p.Height(), p.Width()
	nh := max(1, int(math.Round(float64(h)*scale)))
	nw := max(1, int(math.Round(float64(w)*scale)))
	bpp := p.DType.Size()

	out := make([]byte, nh*nw*bpp)
	for y := 0; y < nh; y++ {
		sy := min(h-1, int(float64(y)/scale))
		for x := 0; x < nw; x++ {
			sx := min(w-1, int(float64(x)/scale))
			src := (sy*w + sx) * bpp
			dst := (y*nw + x) * bpp
			copy(out[dst:dst+bpp], p.Data[src:src+bpp])
		}
	}

	return &models.Plane{Shape: []int{1, nh, nw}, DType: p.DType, Data: out}
}
