// Package ometiff writes and reads the uncompressed OME-TIFF layout produced
// by the converter: one grayscale page per (t, c, z) plane in T, C, Z order
// with an OME-XML ImageDescription on the first page.
package ometiff

import (
	"bufio"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/georgkislinger/CZI-to-TIF-or-Imaris-GUI/internal/models"
)

// Options controls the written file
type Options struct {
	// Software is stored in tag 305 and as the OME Creator
	Software string
	// ForceBigTIFF writes 64-bit offsets even for small files
	ForceBigTIFF bool
	// PhysicalSize in micrometers; left out of the OME-XML when not all positive
	PhysicalSize models.VoxelSize
	// Name of the OME image, defaults to the file name
	Name string
	// Log receives per-page debug messages
	Log logrus.FieldLogger
}

// Write stores vol at path. A failed write may leave a truncated file behind.
func Write(path string, vol *models.Volume, opts Options) error {
	if vol == nil || vol.PlaneCount() == 0 || vol.PlaneBytes() == 0 {
		return errors.New("cannot write an empty volume")
	}
	if len(vol.Data) != vol.Len()*vol.DType.Size() {
		return errors.Errorf("volume holds %d bytes, shape %v needs %d", len(vol.Data), vol.Shape, vol.Len()*vol.DType.Size())
	}
	if opts.Name == "" {
		opts.Name = strings.TrimSuffix(filepath.Base(path), ".ome.tif")
	}
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}

	desc, err := buildOMEXML(vol, opts.Name, opts.Software, opts.PhysicalSize)
	if err != nil {
		return err
	}

	l := layout{big: opts.ForceBigTIFF}
	if !l.big && fileSize(layout{}, vol, desc, opts.Software) > math.MaxUint32 {
		l.big = true
	}
	opts.Log.Debugf("Writing %d pages to %s (bigtiff=%v)", vol.PlaneCount(), path, l.big)

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", path)
	}
	defer f.Close()

	w := bufio.NewWriterSize(f, 1<<20)
	dataStart := uint64(l.headerSize())
	planeBytes := uint64(vol.PlaneBytes())
	dataEnd := dataStart + uint64(len(vol.Data))
	ifdStart := dataEnd + dataEnd%2

	if _, err := w.Write(l.header(ifdStart)); err != nil {
		return errors.Wrap(err, "failed to write TIFF header")
	}
	// Planes are stored back to back in page order, so the volume buffer is already the strip data
	if _, err := w.Write(vol.Data); err != nil {
		return errors.Wrap(err, "failed to write pixel data")
	}
	if dataEnd%2 == 1 {
		if err := w.WriteByte(0); err != nil {
			return errors.Wrap(err, "failed to pad pixel data")
		}
	}

	offset := ifdStart
	pages := vol.PlaneCount()
	for i := 0; i < pages; i++ {
		entries := pageEntries(l, vol, i, dataStart+uint64(i)*planeBytes, desc, opts.Software)
		size := uint64(l.ifdSize(entries))
		next := uint64(0)
		if i < pages-1 {
			next = offset + size
		}
		if _, err := w.Write(l.encodeIFD(entries, offset, next)); err != nil {
			return errors.Wrapf(err, "failed to write IFD %d", i)
		}
		offset += size
	}

	if err := w.Flush(); err != nil {
		return errors.Wrapf(err, "failed to flush %s", path)
	}
	return errors.Wrapf(f.Close(), "failed to close %s", path)
}

// pageEntries returns the tags of page i whose single strip starts at stripOffset
func pageEntries(l layout, vol *models.Volume, i int, stripOffset uint64, desc, software string) []entry {
	format := uint16(sampleFormatUint)
	if vol.DType == models.Float32 {
		format = sampleFormatFloat
	}

	entries := []entry{
		longEntry(tagNewSubfileType, 0),
		longEntry(tagImageWidth, uint32(vol.Shape[models.AxisX])),
		longEntry(tagImageLength, uint32(vol.Shape[models.AxisY])),
		shortEntry(tagBitsPerSample, uint16(8*vol.DType.Size())),
		shortEntry(tagCompression, 1),
		shortEntry(tagPhotometric, 1),
		l.offsetEntry(tagStripOffsets, stripOffset),
		shortEntry(tagSamplesPerPixel, 1),
		longEntry(tagRowsPerStrip, uint32(vol.Shape[models.AxisY])),
		l.offsetEntry(tagStripByteCounts, uint64(vol.PlaneBytes())),
		shortEntry(tagPlanarConfig, 1),
		shortEntry(tagSampleFormat, format),
	}
	if i == 0 {
		entries = append(entries, asciiEntry(tagImageDescription, desc))
	}
	if software != "" {
		entries = append(entries, asciiEntry(tagSoftware, software))
	}
	return entries
}

// fileSize computes the final size of the file under layout l
func fileSize(l layout, vol *models.Volume, desc, software string) uint64 {
	size := uint64(l.headerSize()) + uint64(len(vol.Data))
	size += size % 2
	for i := 0; i < vol.PlaneCount(); i++ {
		// Offsets do not change entry sizes, so zero stands in for them
		size += uint64(l.ifdSize(pageEntries(l, vol, i, 0, desc, software)))
	}
	return size
}
