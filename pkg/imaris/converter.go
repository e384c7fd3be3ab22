package imaris

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/georgkislinger/CZI-to-TIF-or-Imaris-GUI/internal/models"
)

// Converter accepts the volume as blocks and writes the .ims file on Finish.
// A Converter must always be released with Destroy.
type Converter struct {
	backend    Backend
	path       string
	dtype      models.DType
	imageSize  ImageSize
	blockSize  ImageSize
	sequence   DimensionSequence
	options    Options
	appName    string
	appVersion string
	progress   ProgressSink
	log        logrus.FieldLogger

	data      []byte
	store     Store
	finished  bool
	destroyed bool
}

// NewConverter validates the image description and prepares a converter.
// Only a single block covering the whole image, unit sample size and the
// x,y,z,c,t dimension sequence are supported.
func NewConverter(
	backend Backend,
	dtype string,
	imageSize ImageSize,
	sampleSize ImageSize,
	sequence DimensionSequence,
	blockSize ImageSize,
	path string,
	options Options,
	appName, appVersion string,
	progress ProgressSink,
) (*Converter, error) {
	dt, err := models.ParseDType(dtype)
	if err != nil {
		return nil, errors.Wrap(ErrGeometry, err.Error())
	}
	if !imageSize.Valid() {
		return nil, errors.Wrapf(ErrGeometry, "image size %+v", imageSize)
	}
	if sampleSize != (ImageSize{X: 1, Y: 1, Z: 1, C: 1, T: 1}) {
		return nil, errors.Wrapf(ErrGeometry, "sample size %+v, only 1 per axis is supported", sampleSize)
	}
	if blockSize != imageSize {
		return nil, errors.Wrapf(ErrGeometry, "block size %+v must equal image size %+v", blockSize, imageSize)
	}
	if !sequence.Valid() || sequence != DefaultSequence {
		return nil, errors.Wrapf(ErrGeometry, "dimension sequence %q, only %q is supported", sequence[:], DefaultSequence[:])
	}
	if options.HistogramBins < 1 {
		options.HistogramBins = DefaultOptions().HistogramBins
	}
	if progress == nil {
		progress = NopProgress{}
	}
	if backend == nil {
		backend = HDF5Backend{}
	}

	return &Converter{
		backend:    backend,
		path:       path,
		dtype:      dt,
		imageSize:  imageSize,
		blockSize:  blockSize,
		sequence:   sequence,
		options:    options,
		appName:    appName,
		appVersion: appVersion,
		progress:   progress,
		log:        logrus.StandardLogger(),
	}, nil
}

// SetLogger replaces the logger used for write steps
func (c *Converter) SetLogger(log logrus.FieldLogger) {
	c.log = log
}

// CopyBlock hands over the samples of one block in x,y,z,c,t order (C-order
// [T, C, Z, Y, X] buffer). The slice is retained, not copied, until Destroy.
func (c *Converter) CopyBlock(data []byte, blockIndex ImageSize) error {
	if c.destroyed || c.finished {
		return errors.New("converter is no longer accepting blocks")
	}
	if blockIndex != (ImageSize{}) {
		return errors.Wrapf(ErrGeometry, "block index %+v outside the single block", blockIndex)
	}
	if want := c.blockSize.Count() * c.dtype.Size(); len(data) != want {
		return errors.Wrapf(ErrGeometry, "block holds %d bytes, expected %d", len(data), want)
	}

	c.data = data
	return nil
}

// Finish writes the file: data, histograms, channel display settings,
// physical extents and time points. adjustColorRange replaces each channel's
// range with the minimum and maximum of its samples.
func (c *Converter) Finish(
	extents ImageExtents,
	params *Parameters,
	timeInfos []time.Time,
	colorInfos []ColorInfo,
	adjustColorRange bool,
) error {
	if c.destroyed || c.finished {
		return errors.New("converter already finished")
	}
	if c.data == nil {
		return errors.Wrap(ErrGeometry, "no block was copied")
	}
	if len(colorInfos) != c.imageSize.C {
		return errors.Wrapf(ErrGeometry, "%d color infos for %d channels", len(colorInfos), c.imageSize.C)
	}
	if len(timeInfos) == 0 {
		return errors.Wrap(ErrGeometry, "at least one time info is required")
	}
	if !(extents.MaxX > extents.MinX) || !(extents.MaxY > extents.MinY) || !(extents.MaxZ > extents.MinZ) {
		return errors.Wrapf(ErrGeometry, "empty extents %+v", extents)
	}
	if params == nil {
		params = NewParameters()
	}

	colors := append([]ColorInfo(nil), colorInfos...)

	store, err := c.backend.Create(c.path)
	if err != nil {
		return err
	}
	c.store = store

	w := &layoutWriter{
		store:      store,
		imageSize:  c.imageSize,
		appName:    c.appName,
		appVersion: c.appVersion,
	}
	if err := w.writeHeader(); err != nil {
		return err
	}

	stackBytes := c.imageSize.X * c.imageSize.Y * c.imageSize.Z * c.dtype.Size()
	total := c.imageSize.T * c.imageSize.C
	var written int64
	channelMin := make([]float64, c.imageSize.C)
	channelMax := make([]float64, c.imageSize.C)

	for t := 0; t < c.imageSize.T; t++ {
		for ch := 0; ch < c.imageSize.C; ch++ {
			off := (t*c.imageSize.C + ch) * stackBytes
			stack := c.data[off : off+stackBytes]

			samples, err := typedSamples(c.dtype, stack)
			if err != nil {
				return err
			}
			hist := histogram(models.Float64s(c.dtype, stack), c.options.HistogramBins)
			if t == 0 || hist.min < channelMin[ch] {
				channelMin[ch] = hist.min
			}
			if t == 0 || hist.max > channelMax[ch] {
				channelMax[ch] = hist.max
			}

			c.log.Debugf("Writing time point %d channel %d", t, ch)
			if err := w.writeStack(t, ch, samples, hist); err != nil {
				return err
			}

			written += int64(stackBytes)
			c.progress.Report(float64(t*c.imageSize.C+ch+1)/float64(total), written)
		}
	}

	if adjustColorRange {
		for ch := range colors {
			colors[ch].RangeMin = channelMin[ch]
			colors[ch].RangeMax = channelMax[ch]
		}
	}

	if err := w.writeInfo(extents, params, timeInfos, colors); err != nil {
		return err
	}

	c.store = nil
	if err := store.Close(); err != nil {
		return errors.Wrapf(err, "failed to close %s", c.path)
	}
	c.finished = true
	return nil
}

// Destroy releases the retained block and any store left open by a failed Finish.
// It is safe to call more than once.
func (c *Converter) Destroy() {
	if c.destroyed {
		return
	}
	c.destroyed = true
	c.data = nil
	if c.store != nil {
		if err := c.store.Close(); err != nil {
			c.log.Warnf("Closing %s after failed write: %v", c.path, err)
		}
		c.store = nil
	}
}

// Destroyed reports whether Destroy has run
func (c *Converter) Destroyed() bool {
	return c.destroyed
}

// stackHistogram summarises the samples of one (t, c) stack
type stackHistogram struct {
	min, max float64
	counts   []uint64
}

// histogram bins the finite values evenly between their minimum and maximum.
// Infinities are counted in the end bins, NaNs are skipped.
func histogram(values []float64, bins int) stackHistogram {
	h := stackHistogram{counts: make([]uint64, bins)}

	finite := make([]float64, 0, len(values))
	for _, v := range values {
		switch {
		case math.IsNaN(v):
		case math.IsInf(v, -1):
			h.counts[0]++
		case math.IsInf(v, 1):
			h.counts[bins-1]++
		default:
			finite = append(finite, v)
		}
	}
	if len(finite) == 0 {
		return h
	}

	h.min = floats.Min(finite)
	h.max = floats.Max(finite)

	// The top divider must lie above the maximum for it to be counted
	upper := h.max + 1
	if h.max > h.min {
		upper = h.max + (h.max-h.min)/float64(bins)
	}
	if !(upper > h.max) {
		upper = math.Nextafter(h.max, math.Inf(1))
	}
	dividers := make([]float64, bins+1)
	floats.Span(dividers, h.min, upper)

	sort.Float64s(finite)
	for i, n := range stat.Histogram(nil, dividers, finite, nil) {
		h.counts[i] += uint64(n)
	}
	return h
}

// formatFloat renders attribute numbers the way Imaris writes them
func formatFloat(v float64) string {
	return fmt.Sprintf("%.3f", v)
}
