// Package czitest builds small synthetic CZI files for tests.
package czitest

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"

	"github.com/georgkislinger/CZI-to-TIF-or-Imaris-GUI/pkg/czi"
)

// Tile is one subblock placed in the mosaic
type Tile struct {
	T, C, Z, M    int
	X, Y          int
	Width, Height int

	// Data holds Width*Height little-endian samples of the builder's pixel type
	Data []byte

	Compression czi.Compression

	// HiLo packs 16-bit samples before Zstd1 compression
	HiLo bool
}

// Builder accumulates tiles and writes them as a CZI file
type Builder struct {
	PixelType czi.PixelType
	Tiles     []Tile

	// PhysicalSize, in micrometers, is written to the Scaling metadata when non-zero
	PhysicalSize czi.PhysicalSize
}

// BytesPerPixel returns the sample size of the builder's pixel type
func (b *Builder) BytesPerPixel() int {
	switch b.PixelType {
	case czi.PixelGray16:
		return 2
	case czi.PixelGray32Float:
		return 4
	}
	return 1
}

// AddTile appends a tile and returns the builder for chaining
func (b *Builder) AddTile(t Tile) *Builder {
	b.Tiles = append(b.Tiles, t)
	return b
}

// Bytes encodes the file in memory
func (b *Builder) Bytes() ([]byte, error) {
	out := make([]byte, czi.SegmentHeaderSize+czi.FileHeaderSize)
	czi.PutSegmentHeader(out, czi.SegmentFile, czi.FileHeaderSize, czi.FileHeaderSize)
	binary.LittleEndian.PutUint32(out[czi.SegmentHeaderSize:], 1)
	binary.LittleEndian.PutUint32(out[czi.SegmentHeaderSize+4:], 0)

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	defer enc.Close()

	entries := make([]czi.DirectoryEntry, 0, len(b.Tiles))
	for i, t := range b.Tiles {
		want := t.Width * t.Height * b.BytesPerPixel()
		if len(t.Data) != want {
			return nil, errors.Errorf("tile %d holds %d bytes, expected %d", i, len(t.Data), want)
		}

		payload := t.Data
		switch t.Compression {
		case czi.CompressionZstd0:
			payload = enc.EncodeAll(t.Data, nil)
		case czi.CompressionZstd1:
			src := t.Data
			flag := byte(0)
			if t.HiLo {
				src = czi.PackHiLo(t.Data)
				flag = 1
			}
			payload = append([]byte{3, 1, flag}, enc.EncodeAll(src, nil)...)
		}

		e := czi.DirectoryEntry{
			PixelType:    b.PixelType,
			FilePosition: int64(len(out)),
			Compression:  t.Compression,
			Dimensions: []czi.DimensionEntry{
				{Dimension: "X", Start: int32(t.X), Size: int32(t.Width), StoredSize: int32(t.Width)},
				{Dimension: "Y", Start: int32(t.Y), Size: int32(t.Height), StoredSize: int32(t.Height)},
				{Dimension: "C", Start: int32(t.C), Size: 1},
				{Dimension: "Z", Start: int32(t.Z), Size: 1},
				{Dimension: "T", Start: int32(t.T), Size: 1},
				{Dimension: "M", Start: int32(t.M), Size: 1},
			},
		}
		entries = append(entries, e)

		header := czi.SubBlockHeaderSize(e)
		used := int64(header + len(payload))
		seg := make([]byte, czi.SegmentHeaderSize+header)
		czi.PutSegmentHeader(seg, czi.SegmentSubBlock, used, used)
		binary.LittleEndian.PutUint64(seg[czi.SegmentHeaderSize+8:], uint64(len(payload)))
		copy(seg[czi.SegmentHeaderSize+16:], czi.AppendDirectoryEntry(nil, e))

		out = append(out, seg...)
		out = append(out, payload...)
	}

	// Subblock directory
	directoryPos := int64(len(out))
	dir := make([]byte, czi.DirectoryHeaderSize)
	binary.LittleEndian.PutUint32(dir, uint32(len(entries)))
	for _, e := range entries {
		dir = czi.AppendDirectoryEntry(dir, e)
	}
	seg := make([]byte, czi.SegmentHeaderSize)
	czi.PutSegmentHeader(seg, czi.SegmentDirectory, int64(len(dir)), int64(len(dir)))
	out = append(out, seg...)
	out = append(out, dir...)

	// Metadata
	metadataPos := int64(len(out))
	doc := []byte(b.metadataXML())
	meta := make([]byte, czi.MetadataHeaderSize)
	binary.LittleEndian.PutUint32(meta, uint32(len(doc)))
	meta = append(meta, doc...)
	seg = make([]byte, czi.SegmentHeaderSize)
	czi.PutSegmentHeader(seg, czi.SegmentMetadata, int64(len(meta)), int64(len(meta)))
	out = append(out, seg...)
	out = append(out, meta...)

	binary.LittleEndian.PutUint64(out[czi.SegmentHeaderSize+52:], uint64(directoryPos))
	binary.LittleEndian.PutUint64(out[czi.SegmentHeaderSize+60:], uint64(metadataPos))

	return out, nil
}

// WriteFile encodes the file and writes it to path
func (b *Builder) WriteFile(path string) error {
	data, err := b.Bytes()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (b *Builder) metadataXML() string {
	doc := `<?xml version="1.0" encoding="utf-8"?><ImageDocument><Metadata><Scaling><Items>`
	for _, d := range []struct {
		id string
		um float64
	}{{"X", b.PhysicalSize.X}, {"Y", b.PhysicalSize.Y}, {"Z", b.PhysicalSize.Z}} {
		if d.um > 0 {
			doc += fmt.Sprintf(`<Distance Id="%s"><Value>%g</Value></Distance>`, d.id, d.um*1e-6)
		}
	}
	return doc + `</Items></Scaling></Metadata></ImageDocument>`
}

// Gray16Tile returns a Width×Height tile whose samples are produced by fn
func Gray16Tile(t Tile, fn func(x, y int) uint16) Tile {
	t.Data = make([]byte, t.Width*t.Height*2)
	for y := 0; y < t.Height; y++ {
		for x := 0; x < t.Width; x++ {
			binary.LittleEndian.PutUint16(t.Data[2*(y*t.Width+x):], fn(x, y))
		}
	}
	return t
}

// Gray8Tile returns a Width×Height tile whose samples are produced by fn
func Gray8Tile(t Tile, fn func(x, y int) uint8) Tile {
	t.Data = make([]byte, t.Width*t.Height)
	for y := 0; y < t.Height; y++ {
		for x := 0; x < t.Width; x++ {
			t.Data[y*t.Width+x] = fn(x, y)
		}
	}
	return t
}
