package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/georgkislinger/CZI-to-TIF-or-Imaris-GUI/pkg/config"
	"github.com/georgkislinger/CZI-to-TIF-or-Imaris-GUI/pkg/conversion"
	"github.com/georgkislinger/CZI-to-TIF-or-Imaris-GUI/pkg/dialog"
	"github.com/georgkislinger/CZI-to-TIF-or-Imaris-GUI/pkg/imaris"
	"github.com/georgkislinger/CZI-to-TIF-or-Imaris-GUI/pkg/session"
)

func main() {
	// Parse command line arguments
	configPath := flag.String("config", "czi2ims.yaml", "Path to the YAML configuration file")
	input := flag.String("input", "", "CZI file to convert (asked when empty)")
	output := flag.String("output", "", "Output file (asked when empty)")
	format := flag.String("format", "", "Output format: ims or ometiff (asked when empty)")
	voxel := flag.String("voxel", "", "Voxel size x,y,z in micrometers for Imaris output (asked when empty)")
	scale := flag.Float64("scale", 0, "Mosaic scale factor in (0, 1], overrides the configuration")
	uiMode := flag.String("ui", "", "Dialog mode: tui or console, overrides the configuration")
	previewDir := flag.String("preview-dir", "", "Directory for per-channel projection previews")
	verify := flag.Bool("verify", false, "Re-read a written OME-TIFF and check its shape")
	writeConfig := flag.Bool("write-config", false, "Write the default configuration to -config and exit")
	verbose := flag.Bool("v", false, "Enable debug logging")
	flag.Parse()

	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if *writeConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			logrus.Fatalf("Failed to write configuration: %v", err)
		}
		fmt.Printf("Default configuration written to %s\n", *configPath)
		return
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	// Flags override the configuration file
	if *scale != 0 {
		cfg.Conversion.ScaleFactor = *scale
	}
	if *uiMode != "" {
		cfg.UI.Mode = *uiMode
	}
	if *previewDir != "" {
		cfg.Output.PreviewDir = *previewDir
	}
	if *verify {
		cfg.Output.Verify = true
	}
	if err := cfg.Validate(); err != nil {
		logrus.Fatalf("Invalid settings: %v", err)
	}

	level, err := logrus.ParseLevel(cfg.Output.LogLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level %q: %v", cfg.Output.LogLevel, err)
	}
	if *verbose {
		level = logrus.DebugLevel
	}
	logrus.SetLevel(level)

	answers, err := flagAnswers(cfg, *input, *output, *format, *voxel)
	if err != nil {
		logrus.Fatalf("Invalid flag: %v", err)
	}

	logrus.Info("czi2ims: CZI mosaic to OME-TIFF / Imaris converter")

	backend := imaris.HDF5Backend{}
	caps := conversion.DetectCapabilities(cfg.Imaris.Enabled, backend, "", logrus.StandardLogger())

	dialogs := dialog.WithAnswers(newDialogs(cfg.UI.Mode), answers)

	conv := conversion.NewConverter(cfg, caps)
	conv.SetBackend(backend)

	result := session.Run(dialogs, conv, cfg, logrus.StandardLogger())
	logrus.WithField("outcome", result.Outcome.String()).Debug("Session ended")
}

// newDialogs returns the dialogs for mode, falling back to the console when no terminal UI is possible
func newDialogs(mode string) dialog.Dialogs {
	if mode == config.UIModeTUI {
		tui, err := dialog.NewTUI(logrus.StandardLogger())
		if err == nil {
			return tui
		}
		logrus.Warnf("No terminal user interface available, falling back to console prompts: %v", err)
	}
	return dialog.NewConsole(os.Stdin, os.Stdout)
}

// flagAnswers turns command line flags into pre-filled dialog answers
func flagAnswers(cfg *config.Config, input, output, format, voxel string) (dialog.Answers, error) {
	a := dialog.Answers{InputFile: input, OutputFile: output, YesNo: map[string]bool{}}

	switch format {
	case "":
	case config.FormatImaris, config.FormatOMETIFF:
		// The format question is phrased so that yes keeps the configured default
		a.YesNo[session.TitleFormat] = format == cfg.Conversion.DefaultFormat
	default:
		return a, errors.Errorf("-format must be %q or %q, got %q", config.FormatImaris, config.FormatOMETIFF, format)
	}

	if voxel != "" {
		parts := strings.Split(voxel, ",")
		if len(parts) != 3 {
			return a, errors.Errorf("-voxel needs three comma separated values, got %q", voxel)
		}
		for _, p := range parts {
			v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
			if err != nil || !(v > 0) {
				return a, errors.Errorf("-voxel value %q is not a positive number", p)
			}
			a.Floats = append(a.Floats, v)
		}
	}
	return a, nil
}
