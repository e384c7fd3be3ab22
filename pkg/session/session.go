// Package session drives one interactive conversion: pick the input, show its
// metadata, choose format and output path, ask for voxel sizes when writing
// Imaris, then convert and report the result.
package session

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/georgkislinger/CZI-to-TIF-or-Imaris-GUI/internal/models"
	"github.com/georgkislinger/CZI-to-TIF-or-Imaris-GUI/pkg/config"
	"github.com/georgkislinger/CZI-to-TIF-or-Imaris-GUI/pkg/conversion"
	"github.com/georgkislinger/CZI-to-TIF-or-Imaris-GUI/pkg/dialog"
)

// Dialog titles, also used to pre-answer questions
const (
	TitleInput    = "Select CZI file"
	TitleMetadata = "CZI metadata"
	TitleFormat   = "Output format"
	TitleOutput   = "Save output as"
	TitleVoxel    = "Voxel size"
	TitleDone     = "Conversion finished"
	TitleCancel   = "Cancelled"
	TitleError    = "Conversion failed"
)

// Default extensions per format
const (
	ExtImaris  = ".ims"
	ExtOMETIFF = ".ome.tif"
)

// Outcome is how a session ended
type Outcome int

const (
	Completed Outcome = iota
	Cancelled
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	}
	return "failed"
}

// Result summarizes a session. Err wraps conversion.ErrCancelled for cancellations.
type Result struct {
	Outcome Outcome
	Output  string
	Format  string
	Err     error
}

// Run performs one session. It never returns an error to the caller: failures
// are logged and shown in an error dialog, cancellations in an info dialog.
func Run(d dialog.Dialogs, conv *conversion.Converter, cfg *config.Config, log logrus.FieldLogger) Result {
	if log == nil {
		log = logrus.StandardLogger()
	}

	cancel := func(what string) Result {
		log.Infof("Cancelled: %s", what)
		d.ShowInfo(TitleCancel, fmt.Sprintf("No %s selected, nothing was written.", what))
		return Result{Outcome: Cancelled, Err: errors.Wrap(conversion.ErrCancelled, what)}
	}
	fail := func(err error) Result {
		log.WithError(err).Error("Conversion failed")
		d.ShowError(TitleError, err.Error())
		return Result{Outcome: Failed, Err: err}
	}

	input, ok := d.SelectInputFile(TitleInput)
	if !ok {
		return cancel("input file")
	}

	meta, err := conv.Open(input)
	if err != nil {
		return fail(err)
	}
	defer conv.Close()

	d.ShowInfo(TitleMetadata, meta.Summary())

	caps := conv.Capabilities()
	format := chooseFormat(d, caps, cfg)
	if format == config.FormatImaris && !caps.Imaris {
		return fail(errors.Wrapf(conversion.ErrUnsupported, "Imaris output is unavailable: %s", caps.ImarisReason))
	}
	ext := ExtOMETIFF
	if format == config.FormatImaris {
		ext = ExtImaris
	}

	output, ok := d.SelectOutputFile(TitleOutput, ext)
	if !ok {
		return cancel("output file")
	}

	params := &conversion.Params{OutputFile: output, Format: format}
	if format == config.FormatImaris {
		voxel, ok := askVoxelSize(d, cfg.Imaris.DefaultVoxelSize)
		if !ok {
			return cancel("voxel size")
		}
		params.VoxelSize = voxel
	}

	if err := conv.Process(params); err != nil {
		return fail(err)
	}

	d.ShowInfo(TitleDone, fmt.Sprintf("Saved %s", output))
	return Result{Outcome: Completed, Output: output, Format: format}
}

// presetAnswers is implemented by dialogs answered up front, e.g. from flags
type presetAnswers interface {
	Answer(title string) (yes bool, ok bool)
}

// chooseFormat asks Imaris vs OME-TIFF when Imaris is available; the question
// is phrased so that "yes" keeps the configured default format. Without Imaris
// the answer is only taken from presets, so an explicit Imaris request is not
// silently turned into OME-TIFF.
func chooseFormat(d dialog.Dialogs, caps conversion.Capabilities, cfg *config.Config) string {
	def := cfg.Conversion.DefaultFormat
	if !caps.Imaris {
		if p, ok := d.(presetAnswers); ok {
			if yes, set := p.Answer(TitleFormat); set {
				return answeredFormat(yes, def)
			}
		}
		return config.FormatOMETIFF
	}
	question := "Save as Imaris (.ims)? Choose No for OME-TIFF."
	if def == config.FormatOMETIFF {
		question = "Save as OME-TIFF? Choose No for Imaris (.ims)."
	}
	return answeredFormat(d.AskYesNo(TitleFormat, question), def)
}

// answeredFormat maps a yes/no answer to the format question onto a format
func answeredFormat(yes bool, def string) string {
	if yes == (def == config.FormatOMETIFF) {
		return config.FormatOMETIFF
	}
	return config.FormatImaris
}

// askVoxelSize asks X, Y and Z in turn; any dismissed prompt cancels
func askVoxelSize(d dialog.Dialogs, defaults models.VoxelSize) (models.VoxelSize, bool) {
	var v models.VoxelSize
	axes := []struct {
		name    string
		dst     *float64
		initial float64
	}{
		{"X", &v.X, defaults.X},
		{"Y", &v.Y, defaults.Y},
		{"Z", &v.Z, defaults.Z},
	}
	for _, a := range axes {
		value, ok := d.AskFloat(TitleVoxel, fmt.Sprintf("Voxel size %s (um)", a.name), a.initial)
		if !ok || !(value > 0) {
			return v, false
		}
		*a.dst = value
	}
	return v, true
}
