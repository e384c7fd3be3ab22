// Package conversion turns a multi-dimensional plane source into a dense
// [T, C, Z, Y, X] volume and hands it to exactly one exporter.
package conversion

import (
	"github.com/pkg/errors"

	"github.com/georgkislinger/CZI-to-TIF-or-Imaris-GUI/internal/models"
	"github.com/georgkislinger/CZI-to-TIF-or-Imaris-GUI/pkg/czi"
)

var (
	// ErrUnsupported is returned when the requested output writer is not available
	ErrUnsupported = errors.New("output format not supported in this environment")

	// ErrCancelled is returned when the user dismisses a required prompt
	ErrCancelled = errors.New("cancelled by user")
)

// PlaneSource is an opened image that yields one 2D plane per (t, c, z) index.
// ReadPlane may return leading singleton dimensions, e.g. (1, Y, X).
type PlaneSource interface {
	Dims() string
	Sizes() map[string]int
	ReadPlane(t, c, z int, scale float64) (*models.Plane, error)
	Close() error
}

// physicalSizer is implemented by sources that know their pixel pitch
type physicalSizer interface {
	PhysicalSize() czi.PhysicalSize
}

// Opener opens a source by path
type Opener func(path string) (PlaneSource, error)

// OpenCZI opens a CZI file as a PlaneSource
func OpenCZI(path string) (PlaneSource, error) {
	f, err := czi.Open(path)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// physicalSize returns the source pixel pitch in micrometers, zero when unknown
func physicalSize(src PlaneSource) models.VoxelSize {
	ps, ok := src.(physicalSizer)
	if !ok {
		return models.VoxelSize{}
	}
	p := ps.PhysicalSize()
	return models.VoxelSize{X: p.X, Y: p.Y, Z: p.Z}
}

// extent returns the size of a dimension, or 1 when the source does not have it
func extent(sizes map[string]int, dim string) int {
	if n, ok := sizes[dim]; ok && n > 0 {
		return n
	}
	return 1
}
