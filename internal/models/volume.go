package models

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

// DType identifies the native sample type of a plane or volume.
// The string form follows the numpy names used by microscopy tooling.
type DType int

const (
	// Invalid is the zero value and never describes real data
	Invalid DType = iota

	// Uint8 is an unsigned 8-bit gray sample
	Uint8

	// Uint16 is an unsigned 16-bit gray sample
	Uint16

	// Float32 is an IEEE-754 32-bit gray sample
	Float32
)

// String returns the dtype name, e.g. "uint16"
func (d DType) String() string {
	switch d {
	case Uint8:
		return "uint8"
	case Uint16:
		return "uint16"
	case Float32:
		return "float32"
	}
	return "invalid"
}

// Size returns the number of bytes per sample
func (d DType) Size() int {
	switch d {
	case Uint8:
		return 1
	case Uint16:
		return 2
	case Float32:
		return 4
	}
	return 0
}

// ParseDType converts a dtype name back to a DType
func ParseDType(name string) (DType, error) {
	switch name {
	case "uint8":
		return Uint8, nil
	case "uint16":
		return Uint16, nil
	case "float32":
		return Float32, nil
	}
	return Invalid, errors.Errorf("unknown dtype %q", name)
}

// Plane is a single 2D image returned by a source reader.
// Shape may carry leading singleton dimensions, e.g. (1, Y, X).
type Plane struct {
	// Shape lists the dimension extents, outermost first; the last two are Y and X
	Shape []int

	// DType is the sample type of Data
	DType DType

	// Data holds the samples in little-endian row-major order
	Data []byte
}

// Squeeze drops leading singleton dimensions so that a (1, Y, X) mosaic
// read becomes a (Y, X) plane. Y and X themselves are never dropped.
func (p *Plane) Squeeze() {
	for len(p.Shape) > 2 && p.Shape[0] == 1 {
		p.Shape = p.Shape[1:]
	}
}

// Height returns the Y extent
func (p *Plane) Height() int {
	if len(p.Shape) < 2 {
		return 0
	}
	return p.Shape[len(p.Shape)-2]
}

// Width returns the X extent
func (p *Plane) Width() int {
	if len(p.Shape) < 1 {
		return 0
	}
	return p.Shape[len(p.Shape)-1]
}

// Volume is the dense 5D array assembled from a source, indexed [T, C, Z, Y, X].
type Volume struct {
	// Shape holds the extents in T, C, Z, Y, X order
	Shape [5]int

	// DType is the sample type shared by every plane
	DType DType

	// Data is the row-major little-endian sample buffer
	Data []byte
}

// Axis indices into Volume.Shape
const (
	AxisT = iota
	AxisC
	AxisZ
	AxisY
	AxisX
)

// NewVolume allocates a zero-initialized volume of the given shape and dtype
func NewVolume(shape [5]int, dtype DType) (*Volume, error) {
	n := 1
	for i, s := range shape {
		if s <= 0 {
			return nil, errors.Errorf("volume extent %d on axis %d must be positive", s, i)
		}
		n *= s
	}
	if dtype.Size() == 0 {
		return nil, errors.Errorf("invalid volume dtype %v", dtype)
	}

	return &Volume{
		Shape: shape,
		DType: dtype,
		Data:  make([]byte, n*dtype.Size()),
	}, nil
}

// Len returns the number of samples
func (v *Volume) Len() int {
	return len(v.Data) / v.DType.Size()
}

// PlaneBytes returns the byte length of one Y×X plane
func (v *Volume) PlaneBytes() int {
	return v.Shape[AxisY] * v.Shape[AxisX] * v.DType.Size()
}

// PlaneIndex returns the linear plane number of (t, c, z) in T→C→Z order
func (v *Volume) PlaneIndex(t, c, z int) int {
	return (t*v.Shape[AxisC]+c)*v.Shape[AxisZ] + z
}

// PlaneCount returns T*C*Z
func (v *Volume) PlaneCount() int {
	return v.Shape[AxisT] * v.Shape[AxisC] * v.Shape[AxisZ]
}

// Plane returns the bytes of the (t, c, z) plane. The slice aliases Data.
func (v *Volume) Plane(t, c, z int) []byte {
	off := v.PlaneIndex(t, c, z) * v.PlaneBytes()
	return v.Data[off : off+v.PlaneBytes()]
}

// Stack returns the contiguous Z×Y×X bytes of the (t, c) stack. The slice aliases Data.
func (v *Volume) Stack(t, c int) []byte {
	size := v.Shape[AxisZ] * v.PlaneBytes()
	off := (t*v.Shape[AxisC] + c) * size
	return v.Data[off : off+size]
}

// SetPlane copies a squeezed plane into the (t, c, z) slot
func (v *Volume) SetPlane(t, c, z int, p *Plane) error {
	if p.DType != v.DType {
		return errors.Errorf("plane dtype %v does not match volume dtype %v", p.DType, v.DType)
	}
	if len(p.Shape) != 2 || p.Height() != v.Shape[AxisY] || p.Width() != v.Shape[AxisX] {
		return errors.Errorf("plane shape %v does not match volume plane (%d, %d)",
			p.Shape, v.Shape[AxisY], v.Shape[AxisX])
	}
	if t < 0 || t >= v.Shape[AxisT] || c < 0 || c >= v.Shape[AxisC] || z < 0 || z >= v.Shape[AxisZ] {
		return errors.Errorf("plane index T=%d,C=%d,Z=%d outside volume %v", t, c, z, v.Shape)
	}

	copy(v.Plane(t, c, z), p.Data)
	return nil
}

// Float64s decodes raw sample bytes into float64 values
func Float64s(dtype DType, data []byte) []float64 {
	n := len(data) / dtype.Size()
	out := make([]float64, n)
	for i := range out {
		out[i] = SampleAt(dtype, data, i)
	}
	return out
}

// SampleAt decodes the i-th sample of data as float64
func SampleAt(dtype DType, data []byte, i int) float64 {
	switch dtype {
	case Uint8:
		return float64(data[i])
	case Uint16:
		return float64(binary.LittleEndian.Uint16(data[2*i:]))
	case Float32:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:])))
	}
	return 0
}

// VoxelSize is the physical size of one voxel step per axis, in micrometers
type VoxelSize struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
	Z float64 `yaml:"z"`
}

// Validate checks that all three sizes are strictly positive
func (s VoxelSize) Validate() error {
	if !(s.X > 0) || !(s.Y > 0) || !(s.Z > 0) {
		return errors.Errorf("voxel sizes must be positive, got %g,%g,%g", s.X, s.Y, s.Z)
	}
	return nil
}
