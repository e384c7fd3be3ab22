package conversion

import (
	"os"

	"github.com/sirupsen/logrus"

	"github.com/georgkislinger/CZI-to-TIF-or-Imaris-GUI/pkg/imaris"
)

// Capabilities records which writers work in this environment. It is
// computed once at start-up and passed by value.
type Capabilities struct {
	Imaris bool

	// ImarisReason explains why Imaris output is unavailable
	ImarisReason string
}

// DetectCapabilities probes the Imaris backend by writing a scratch file in
// scratchDir (the system temp dir when empty). enabled=false skips the probe.
func DetectCapabilities(enabled bool, backend imaris.Backend, scratchDir string, log logrus.FieldLogger) Capabilities {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if !enabled {
		log.Info("Imaris output disabled by configuration")
		return Capabilities{ImarisReason: "Imaris output is disabled in the configuration"}
	}
	if backend == nil {
		backend = imaris.HDF5Backend{}
	}
	if scratchDir == "" {
		scratchDir = os.TempDir()
	}

	if err := imaris.Probe(backend, scratchDir); err != nil {
		log.WithError(err).Warn("Imaris writer unavailable, only OME-TIFF output will be offered")
		return Capabilities{ImarisReason: "HDF5 writer failed its start-up check: " + err.Error()}
	}
	log.Debug("Imaris writer available")
	return Capabilities{Imaris: true}
}
