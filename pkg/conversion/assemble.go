package conversion

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/georgkislinger/CZI-to-TIF-or-Imaris-GUI/internal/models"
)

// Assemble reads every (t, c, z) plane in T, C, Z nested order and copies it
// into a zero-initialized volume. The first plane fixes dtype and (Y, X); any
// later plane that differs, or any failed read, aborts without a volume.
func Assemble(src PlaneSource, sizeT, sizeC, sizeZ int, scale float64, log logrus.FieldLogger) (*models.Volume, error) {
	if sizeT < 1 || sizeC < 1 || sizeZ < 1 {
		return nil, errors.Errorf("invalid extents T=%d C=%d Z=%d", sizeT, sizeC, sizeZ)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	var vol *models.Volume
	for t := 0; t < sizeT; t++ {
		for c := 0; c < sizeC; c++ {
			for z := 0; z < sizeZ; z++ {
				log.WithFields(logrus.Fields{"t": t, "c": c, "z": z}).Debugf("reading T=%d,C=%d,Z=%d", t, c, z)

				plane, err := src.ReadPlane(t, c, z, scale)
				if err != nil {
					return nil, errors.Wrapf(err, "failed to read plane T=%d,C=%d,Z=%d", t, c, z)
				}
				plane.Squeeze()

				if vol == nil {
					vol, err = models.NewVolume([5]int{sizeT, sizeC, sizeZ, plane.Height(), plane.Width()}, plane.DType)
					if err != nil {
						return nil, errors.Wrap(err, "failed to allocate volume")
					}
				}
				if err := vol.SetPlane(t, c, z, plane); err != nil {
					return nil, errors.Wrapf(err, "plane T=%d,C=%d,Z=%d", t, c, z)
				}
			}
		}
	}
	return vol, nil
}
