// Package imaris writes single-resolution Imaris 5.5 (.ims) volumes.
//
// The API mirrors a block converter: describe the image geometry, copy
// blocks in, then Finish with display parameters and Destroy. Only the
// layout where the block size equals the image size is supported, so the
// whole volume arrives as block index zero.
package imaris

import (
	"time"

	"github.com/pkg/errors"
)

// ErrGeometry is returned when sizes, block indices or data lengths are inconsistent
var ErrGeometry = errors.New("invalid Imaris geometry")

// ImageSize is an extent in each of the five axes
type ImageSize struct {
	X, Y, Z, C, T int
}

// Count returns the number of samples covered
func (s ImageSize) Count() int {
	return s.X * s.Y * s.Z * s.C * s.T
}

// Valid reports whether every extent is positive
func (s ImageSize) Valid() bool {
	return s.X > 0 && s.Y > 0 && s.Z > 0 && s.C > 0 && s.T > 0
}

// Dimension names an axis in a DimensionSequence
type Dimension byte

const (
	DimX Dimension = 'x'
	DimY Dimension = 'y'
	DimZ Dimension = 'z'
	DimC Dimension = 'c'
	DimT Dimension = 't'
)

// DimensionSequence lists axes from fastest to slowest varying in copied blocks
type DimensionSequence [5]Dimension

// DefaultSequence is x, y, z, c, t: a C-order [T, C, Z, Y, X] buffer
var DefaultSequence = DimensionSequence{DimX, DimY, DimZ, DimC, DimT}

// Valid reports whether each axis appears exactly once
func (d DimensionSequence) Valid() bool {
	seen := map[Dimension]bool{}
	for _, a := range d {
		switch a {
		case DimX, DimY, DimZ, DimC, DimT:
		default:
			return false
		}
		if seen[a] {
			return false
		}
		seen[a] = true
	}
	return true
}

// Options tunes the writer
type Options struct {
	// HistogramBins is the number of bins stored per channel
	HistogramBins int
}

// DefaultOptions returns the options used when none are given
func DefaultOptions() Options {
	return Options{HistogramBins: 256}
}

// Color is an RGBA color with components in [0, 1]
type Color struct {
	R, G, B, A float64
}

// ColorInfo holds the display settings of one channel
type ColorInfo struct {
	BaseColor  Color
	Opacity    float64
	RangeMin   float64
	RangeMax   float64
	GammaValue float64
}

// NewColorInfo returns display settings with the given base color and defaults elsewhere
func NewColorInfo(base Color) ColorInfo {
	return ColorInfo{BaseColor: base, Opacity: 1, RangeMin: 0, RangeMax: 255, GammaValue: 1}
}

// ImageExtents is the physical bounding box of the image in micrometers
type ImageExtents struct {
	MinX, MinY, MinZ float64
	MaxX, MaxY, MaxZ float64
}

// Parameters carries free-form per-section metadata; channel names live here
type Parameters struct {
	sections map[string]map[string]string
}

// NewParameters returns an empty parameter set
func NewParameters() *Parameters {
	return &Parameters{sections: map[string]map[string]string{}}
}

// Set stores a value in a section, e.g. Set("Channel 0", "Name", "DAPI")
func (p *Parameters) Set(section, name, value string) {
	if p.sections[section] == nil {
		p.sections[section] = map[string]string{}
	}
	p.sections[section][name] = value
}

// Get returns a value and whether it was set
func (p *Parameters) Get(section, name string) (string, bool) {
	v, ok := p.sections[section][name]
	return v, ok
}

// SetChannelName stores the display name of channel c
func (p *Parameters) SetChannelName(c int, name string) {
	p.Set(channelSection(c), "Name", name)
}

// TimeInfo is the acquisition time of one time point
type TimeInfo = time.Time

// ProgressSink receives write progress. fraction is in [0, 1] and
// bytesWritten is the cumulative payload written so far.
type ProgressSink interface {
	Report(fraction float64, bytesWritten int64)
}

// NopProgress discards progress reports
type NopProgress struct{}

// Report implements ProgressSink
func (NopProgress) Report(float64, int64) {}
