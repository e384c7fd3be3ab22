package conversion

import (
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/georgkislinger/CZI-to-TIF-or-Imaris-GUI/internal/models"
	"github.com/georgkislinger/CZI-to-TIF-or-Imaris-GUI/pkg/config"
	"github.com/georgkislinger/CZI-to-TIF-or-Imaris-GUI/pkg/imaris"
	"github.com/georgkislinger/CZI-to-TIF-or-Imaris-GUI/pkg/ometiff"
	"github.com/georgkislinger/CZI-to-TIF-or-Imaris-GUI/pkg/visualization"
)

// Params holds the choices made for one conversion
type Params struct {
	// OutputFile is the target path including its extension
	OutputFile string

	// Format is config.FormatImaris or config.FormatOMETIFF
	Format string

	// VoxelSize in micrometers, required for Imaris output
	VoxelSize models.VoxelSize
}

// Converter runs one conversion: open and probe the source, then assemble
// the volume and export it. A Converter is used for a single input file.
type Converter struct {
	cfg     *config.Config
	caps    Capabilities
	opener  Opener
	backend imaris.Backend
	log     logrus.FieldLogger

	src      PlaneSource
	input    string
	metadata *Metadata
}

// NewConverter creates a converter reading CZI files and writing through the HDF5 backend
func NewConverter(cfg *config.Config, caps Capabilities) *Converter {
	return &Converter{
		cfg:     cfg,
		caps:    caps,
		opener:  OpenCZI,
		backend: imaris.HDF5Backend{},
		log:     logrus.StandardLogger(),
	}
}

// SetOpener replaces the source opener
func (c *Converter) SetOpener(opener Opener) {
	c.opener = opener
}

// SetBackend replaces the Imaris storage backend
func (c *Converter) SetBackend(backend imaris.Backend) {
	c.backend = backend
}

// SetLogger replaces the logger
func (c *Converter) SetLogger(log logrus.FieldLogger) {
	c.log = log
}

// Capabilities returns the writer capabilities the converter was created with
func (c *Converter) Capabilities() Capabilities {
	return c.caps
}

// Open opens the input and probes its metadata
func (c *Converter) Open(path string) (*Metadata, error) {
	if c.src != nil {
		return nil, errors.New("converter already has an open source")
	}

	c.log.WithField("path", path).Info("Step 1: Probing input metadata...")
	src, err := c.opener(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}

	meta, err := Probe(src, c.cfg.Conversion.ScaleFactor)
	if err != nil {
		src.Close()
		return nil, err
	}

	c.src, c.input, c.metadata = src, path, meta
	c.log.WithFields(logrus.Fields{
		"dims":  meta.Dims,
		"shape": meta.Shape(),
		"dtype": meta.DType.String(),
	}).Info("Probed input")
	return meta, nil
}

// Metadata returns the probe result of the open source
func (c *Converter) Metadata() *Metadata {
	return c.metadata
}

// Process assembles the open source and writes it in the requested format.
// An unavailable format fails before any plane is read.
func (c *Converter) Process(params *Params) error {
	if c.src == nil {
		return errors.New("no source opened")
	}

	switch params.Format {
	case config.FormatImaris:
		if !c.caps.Imaris {
			return errors.Wrap(ErrUnsupported, c.caps.ImarisReason)
		}
		if err := params.VoxelSize.Validate(); err != nil {
			return err
		}
	case config.FormatOMETIFF:
	default:
		return errors.Wrapf(ErrUnsupported, "unknown output format %q", params.Format)
	}

	m := c.metadata
	c.log.WithFields(logrus.Fields{"t": m.T, "c": m.C, "z": m.Z}).Info("Step 2: Assembling volume...")
	vol, err := Assemble(c.src, m.T, m.C, m.Z, c.cfg.Conversion.ScaleFactor, c.log)
	if err != nil {
		return errors.Wrap(err, "failed to assemble volume")
	}

	c.log.WithField("path", params.OutputFile).Infof("Step 3: Writing %s...", params.Format)
	switch params.Format {
	case config.FormatImaris:
		err = ExportImaris(vol, params.OutputFile, params.VoxelSize, c.caps, ImarisOptions{
			Backend:          c.backend,
			AppName:          c.cfg.Imaris.ApplicationName,
			AppVersion:       c.cfg.Imaris.ApplicationVersion,
			Progress:         imaris.NewLogProgress(c.cfg.Imaris.ProgressStep, c.log),
			AdjustColorRange: c.cfg.Imaris.AdjustColorRange,
			Log:              c.log,
		})
	case config.FormatOMETIFF:
		err = ExportOMETIFF(vol, params.OutputFile, ometiff.Options{
			Software:     c.cfg.OMETIFF.Software,
			ForceBigTIFF: c.cfg.OMETIFF.ForceBigTIFF,
			PhysicalSize: c.outputPixelSize(),
			Log:          c.log,
		})
	}
	if err != nil {
		return err
	}

	if c.cfg.Output.Verify && params.Format == config.FormatOMETIFF {
		c.log.Info("Step 4: Verifying written file...")
		if err := verifyOMETIFF(params.OutputFile, vol); err != nil {
			return err
		}
	}

	if c.cfg.Output.PreviewDir != "" {
		c.log.WithField("path", c.cfg.Output.PreviewDir).Info("Step 5: Saving previews...")
		viewer, err := visualization.NewViewer(vol, 0)
		if err == nil {
			_, err = viewer.SaveProjections(c.cfg.Output.PreviewDir, baseName(c.input), c.cfg.Output.PreviewMaxSize)
		}
		if err != nil {
			c.log.Warnf("Warning: Failed to save previews: %v", err)
		}
	}

	c.log.WithField("path", params.OutputFile).Info("Conversion complete")
	return nil
}

// Close releases the source
func (c *Converter) Close() error {
	if c.src == nil {
		return nil
	}
	err := c.src.Close()
	c.src = nil
	return err
}

// outputPixelSize scales the source pixel pitch by the read scale factor
func (c *Converter) outputPixelSize() models.VoxelSize {
	px := c.metadata.PhysicalSize
	scale := c.cfg.Conversion.ScaleFactor
	return models.VoxelSize{X: px.X / scale, Y: px.Y / scale, Z: px.Z}
}

// verifyOMETIFF re-reads path and compares axes, shape and dtype with vol
func verifyOMETIFF(path string, vol *models.Volume) error {
	img, err := ometiff.Read(path)
	if err != nil {
		return errors.Wrap(err, "verification read failed")
	}
	if img.Volume.Shape != vol.Shape || img.Volume.DType != vol.DType {
		return errors.Errorf("verification failed: wrote %v %s, read back %v %s",
			vol.Shape, vol.DType, img.Volume.Shape, img.Volume.DType)
	}
	if img.Axes != "TCZYX" {
		return errors.Errorf("verification failed: read back axes %s", img.Axes)
	}
	return nil
}

func baseName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}
