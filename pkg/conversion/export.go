package conversion

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/georgkislinger/CZI-to-TIF-or-Imaris-GUI/internal/models"
	"github.com/georgkislinger/CZI-to-TIF-or-Imaris-GUI/pkg/imaris"
	"github.com/georgkislinger/CZI-to-TIF-or-Imaris-GUI/pkg/ometiff"
)

// Palette holds the base colors assigned to channels in order: red, green, blue, yellow
var Palette = [4]imaris.Color{
	{R: 1, G: 0, B: 0, A: 1},
	{R: 0, G: 1, B: 0, A: 1},
	{R: 0, G: 0, B: 1, A: 1},
	{R: 1, G: 1, B: 0, A: 1},
}

// ChannelColors returns the display settings of n channels, cycling through Palette
func ChannelColors(n int) []imaris.ColorInfo {
	colors := make([]imaris.ColorInfo, n)
	for i := range colors {
		colors[i] = imaris.NewColorInfo(Palette[i%len(Palette)])
	}
	return colors
}

// ChannelName is the display name of channel i
func ChannelName(i int) string {
	return fmt.Sprintf("Channel %d", i)
}

// ExportOMETIFF writes vol as a TCZYX OME-TIFF
func ExportOMETIFF(vol *models.Volume, path string, opts ometiff.Options) error {
	if err := ometiff.Write(path, vol, opts); err != nil {
		return errors.Wrap(err, "OME-TIFF export failed")
	}
	return nil
}

// ImarisOptions configures ExportImaris
type ImarisOptions struct {
	Backend          imaris.Backend
	AppName          string
	AppVersion       string
	Progress         imaris.ProgressSink
	AdjustColorRange bool
	Log              logrus.FieldLogger

	// Now stamps the completed file, time.Now when nil
	Now func() time.Time
}

// ExportImaris writes vol as a single block .ims file with per-channel names
// and colors and physical extents derived from voxel. The converter is
// destroyed on every return path.
func ExportImaris(vol *models.Volume, path string, voxel models.VoxelSize, caps Capabilities, opts ImarisOptions) error {
	if !caps.Imaris {
		return errors.Wrap(ErrUnsupported, caps.ImarisReason)
	}
	if err := voxel.Validate(); err != nil {
		return err
	}
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	size := imaris.ImageSize{
		X: vol.Shape[models.AxisX],
		Y: vol.Shape[models.AxisY],
		Z: vol.Shape[models.AxisZ],
		C: vol.Shape[models.AxisC],
		T: vol.Shape[models.AxisT],
	}
	unit := imaris.ImageSize{X: 1, Y: 1, Z: 1, C: 1, T: 1}

	conv, err := imaris.NewConverter(opts.Backend, vol.DType.String(), size, unit, imaris.DefaultSequence, size,
		path, imaris.DefaultOptions(), opts.AppName, opts.AppVersion, opts.Progress)
	if err != nil {
		return errors.Wrap(err, "failed to initialize Imaris converter")
	}
	defer conv.Destroy()
	conv.SetLogger(opts.Log)

	if err := conv.CopyBlock(vol.Data, imaris.ImageSize{}); err != nil {
		return errors.Wrap(err, "failed to copy volume block")
	}

	params := imaris.NewParameters()
	for c := 0; c < size.C; c++ {
		params.SetChannelName(c, ChannelName(c))
	}

	extents := imaris.ImageExtents{
		MaxX: voxel.X * float64(size.X),
		MaxY: voxel.Y * float64(size.Y),
		MaxZ: voxel.Z * float64(size.Z),
	}

	err = conv.Finish(extents, params, []time.Time{opts.Now()}, ChannelColors(size.C), opts.AdjustColorRange)
	if err != nil {
		return errors.Wrap(err, "failed to finish Imaris file")
	}
	return nil
}
