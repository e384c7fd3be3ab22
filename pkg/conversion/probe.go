package conversion

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/georgkislinger/CZI-to-TIF-or-Imaris-GUI/internal/models"
)

// Metadata describes a source as probed from its dimension table and one representative plane
type Metadata struct {
	// Dims lists the dimension labels, outermost first
	Dims string

	// Sizes maps each label to its extent
	Sizes map[string]int

	T, C, Z, Y, X int

	// DType is the sample type of the probe plane
	DType models.DType

	// PhysicalSize is the pixel pitch in micrometers, zero where unknown
	PhysicalSize models.VoxelSize

	// Intensity statistics of the probe plane
	Min, Max, Mean float64
}

// Shape returns the assembled volume shape (T, C, Z, Y, X)
func (m *Metadata) Shape() [5]int {
	return [5]int{m.T, m.C, m.Z, m.Y, m.X}
}

// Probe reads the dimension table and the plane at T=0, C=0, Z=0 at the given scale
func Probe(src PlaneSource, scale float64) (*Metadata, error) {
	sizes := src.Sizes()
	m := &Metadata{
		Dims:         src.Dims(),
		Sizes:        sizes,
		T:            extent(sizes, "T"),
		C:            extent(sizes, "C"),
		Z:            extent(sizes, "Z"),
		PhysicalSize: physicalSize(src),
	}

	plane, err := src.ReadPlane(0, 0, 0, scale)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read probe plane")
	}
	plane.Squeeze()
	if len(plane.Shape) != 2 || plane.Height() == 0 || plane.Width() == 0 {
		return nil, errors.Errorf("probe plane has unusable shape %v", plane.Shape)
	}
	m.Y, m.X, m.DType = plane.Height(), plane.Width(), plane.DType

	values := models.Float64s(plane.DType, plane.Data)
	if len(values) > 0 {
		m.Min = floats.Min(values)
		m.Max = floats.Max(values)
		m.Mean = stat.Mean(values, nil)
	}
	return m, nil
}

// Summary renders the metadata for the information dialog
func (m *Metadata) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Dimensions: %s\n", m.Dims)

	labels := make([]string, 0, len(m.Sizes))
	for l := range m.Sizes {
		labels = append(labels, l)
	}
	sort.Slice(labels, func(i, j int) bool {
		return strings.Index(m.Dims, labels[i]) < strings.Index(m.Dims, labels[j])
	})
	for _, l := range labels {
		fmt.Fprintf(&b, "  %s: %d\n", l, m.Sizes[l])
	}

	fmt.Fprintf(&b, "Plane: %d x %d %s\n", m.X, m.Y, m.DType)
	if m.PhysicalSize.X > 0 && m.PhysicalSize.Y > 0 {
		fmt.Fprintf(&b, "Physical size: %.4g x %.4g", m.PhysicalSize.X, m.PhysicalSize.Y)
		if m.PhysicalSize.Z > 0 {
			fmt.Fprintf(&b, " x %.4g", m.PhysicalSize.Z)
		}
		b.WriteString(" um\n")
	} else {
		b.WriteString("Physical size: unknown\n")
	}
	fmt.Fprintf(&b, "Intensity (T0 C0 Z0): min %g, max %g, mean %.2f", m.Min, m.Max, m.Mean)
	return b.String()
}
