// Package visualization renders quick-look previews of an assembled volume.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"golang.org/x/image/draw"

	"github.com/georgkislinger/CZI-to-TIF-or-Imaris-GUI/internal/models"
)

// Viewer renders planes and projections of one time point of a volume
type Viewer struct {
	vol *models.Volume

	// timePoint is the T index every view is taken from
	timePoint int
}

// NewViewer creates a viewer over time point t of vol
func NewViewer(vol *models.Volume, t int) (*Viewer, error) {
	if vol == nil || vol.Len() == 0 {
		return nil, errors.New("empty volume")
	}
	if t < 0 || t >= vol.Shape[models.AxisT] {
		return nil, errors.Errorf("time point %d outside [0, %d)", t, vol.Shape[models.AxisT])
	}
	return &Viewer{vol: vol, timePoint: t}, nil
}

// ExtractSlice returns plane z of channel c, contrast stretched to 16 bits
func (v *Viewer) ExtractSlice(c, z int) (*image.Gray16, error) {
	if c < 0 || c >= v.vol.Shape[models.AxisC] {
		return nil, errors.Errorf("channel %d outside [0, %d)", c, v.vol.Shape[models.AxisC])
	}
	if z < 0 || z >= v.vol.Shape[models.AxisZ] {
		return nil, errors.Errorf("z %d outside [0, %d)", z, v.vol.Shape[models.AxisZ])
	}
	return v.render(models.Float64s(v.vol.DType, v.vol.Plane(v.timePoint, c, z))), nil
}

// Projection returns the maximum-intensity projection of channel c along Z
func (v *Viewer) Projection(c int) (*image.Gray16, error) {
	if c < 0 || c >= v.vol.Shape[models.AxisC] {
		return nil, errors.Errorf("channel %d outside [0, %d)", c, v.vol.Shape[models.AxisC])
	}

	n := v.vol.Shape[models.AxisY] * v.vol.Shape[models.AxisX]
	mip := make([]float64, n)
	for i := range mip {
		mip[i] = math.Inf(-1)
	}
	for z := 0; z < v.vol.Shape[models.AxisZ]; z++ {
		plane := v.vol.Plane(v.timePoint, c, z)
		for i := 0; i < n; i++ {
			if s := models.SampleAt(v.vol.DType, plane, i); s > mip[i] {
				mip[i] = s
			}
		}
	}
	return v.render(mip), nil
}

// render maps values linearly from their own range onto 0..65535
func (v *Viewer) render(values []float64) *image.Gray16 {
	width, height := v.vol.Shape[models.AxisX], v.vol.Shape[models.AxisY]
	img := image.NewGray16(image.Rect(0, 0, width, height))

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, s := range values {
		lo = math.Min(lo, s)
		hi = math.Max(hi, s)
	}
	span := hi - lo

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			var value uint16
			if span > 0 {
				value = uint16(math.Round((values[y*width+x] - lo) / span * 65535))
			}
			img.SetGray16(x, y, color.Gray16{Y: value})
		}
	}
	return img
}

// SaveSlice saves img as a JPEG, downscaled so that its longest edge is at most maxSize
func (v *Viewer) SaveSlice(img image.Image, filename string, maxSize int) error {
	file, err := os.Create(filename)
	if err != nil {
		return errors.Wrap(err, "failed to create preview")
	}
	defer file.Close()

	if err := jpeg.Encode(file, downscale(img, maxSize), &jpeg.Options{Quality: 90}); err != nil {
		return errors.Wrapf(err, "failed to encode %s", filename)
	}
	return file.Close()
}

// SaveProjections writes one MIP JPEG per channel named <base>_C<c>_mip.jpg
// and returns their paths
func (v *Viewer) SaveProjections(outputDir, base string, maxSize int) ([]string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create preview directory")
	}

	var paths []string
	for c := 0; c < v.vol.Shape[models.AxisC]; c++ {
		img, err := v.Projection(c)
		if err != nil {
			return paths, err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("%s_C%d_mip.jpg", base, c))
		if err := v.SaveSlice(img, filename, maxSize); err != nil {
			return paths, err
		}
		paths = append(paths, filename)
	}
	return paths, nil
}

// downscale shrinks img with bilinear sampling when it exceeds maxSize
func downscale(img image.Image, maxSize int) image.Image {
	b := img.Bounds()
	longest := max(b.Dx(), b.Dy())
	if maxSize <= 0 || longest <= maxSize {
		return img
	}

	ratio := float64(maxSize) / float64(longest)
	w := max(1, int(math.Round(float64(b.Dx())*ratio)))
	h := max(1, int(math.Round(float64(b.Dy())*ratio)))

	dst := image.NewGray16(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
