package conversion

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/georgkislinger/CZI-to-TIF-or-Imaris-GUI/internal/models"
	"github.com/georgkislinger/CZI-to-TIF-or-Imaris-GUI/pkg/config"
	"github.com/georgkislinger/CZI-to-TIF-or-Imaris-GUI/pkg/czi"
	"github.com/georgkislinger/CZI-to-TIF-or-Imaris-GUI/pkg/czi/czitest"
	"github.com/georgkislinger/CZI-to-TIF-or-Imaris-GUI/pkg/imaris"
	"github.com/georgkislinger/CZI-to-TIF-or-Imaris-GUI/pkg/imaris/imaristest"
	"github.com/georgkislinger/CZI-to-TIF-or-Imaris-GUI/pkg/ometiff"
)

// fakeSource serves uint16 planes whose samples encode their position
type fakeSource struct {
	sizes    map[string]int
	y, x     int
	leading  bool
	failAt   *[3]int
	badShape *[3]int
	reads    int
	closed   bool
}

func newFakeSource(t, c, z, y, x int) *fakeSource {
	return &fakeSource{
		sizes: map[string]int{"T": t, "C": c, "Z": z, "Y": y, "X": x},
		y:     y,
		x:     x,
	}
}

func sampleValue(t, c, z, y, x int) uint16 {
	return uint16(1 + t*10000 + c*1000 + z*100 + y*10 + x)
}

func (f *fakeSource) Dims() string          { return "TCZYX" }
func (f *fakeSource) Sizes() map[string]int { return f.sizes }
func (f *fakeSource) Close() error          { f.closed = true; return nil }

func (f *fakeSource) ReadPlane(t, c, z int, scale float64) (*models.Plane, error) {
	f.reads++
	if f.failAt != nil && *f.failAt == [3]int{t, c, z} {
		return nil, errors.New("decode error")
	}
	h, w := f.y, f.x
	if f.badShape != nil && *f.badShape == [3]int{t, c, z} {
		w++
	}

	data := make([]byte, h*w*2)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			binary.LittleEndian.PutUint16(data[2*(y*w+x):], sampleValue(t, c, z, y, x))
		}
	}
	shape := []int{h, w}
	if f.leading {
		shape = []int{1, h, w}
	}
	return &models.Plane{Shape: shape, DType: models.Uint16, Data: data}, nil
}

func quietLogger() logrus.FieldLogger {
	log, _ := test.NewNullLogger()
	return log
}

func TestAssembleShapeAndValues(t *testing.T) {
	src := newFakeSource(2, 2, 3, 4, 5)
	vol, err := Assemble(src, 2, 2, 3, 1.0, quietLogger())
	if err != nil {
		t.Fatalf("Failed to assemble: %v", err)
	}

	if vol.Shape != [5]int{2, 2, 3, 4, 5} {
		t.Errorf("Expected shape (2,2,3,4,5), got %v", vol.Shape)
	}
	if vol.DType != models.Uint16 {
		t.Errorf("Expected uint16, got %v", vol.DType)
	}
	if src.reads != 12 {
		t.Errorf("Expected 12 plane reads, got %d", src.reads)
	}

	i := 0
	for tt := 0; tt < 2; tt++ {
		for c := 0; c < 2; c++ {
			for z := 0; z < 3; z++ {
				for y := 0; y < 4; y++ {
					for x := 0; x < 5; x++ {
						got := uint16(models.SampleAt(vol.DType, vol.Data, i))
						if want := sampleValue(tt, c, z, y, x); got != want {
							t.Fatalf("Expected %d at (%d,%d,%d,%d,%d), got %d", want, tt, c, z, y, x, got)
						}
						if got == 0 {
							t.Fatalf("Element (%d,%d,%d,%d,%d) was left unfilled", tt, c, z, y, x)
						}
						i++
					}
				}
			}
		}
	}
}

func TestAssembleDeterministic(t *testing.T) {
	a, err := Assemble(newFakeSource(1, 3, 2, 3, 3), 1, 3, 2, 1.0, quietLogger())
	if err != nil {
		t.Fatalf("Failed to assemble: %v", err)
	}
	b, err := Assemble(newFakeSource(1, 3, 2, 3, 3), 1, 3, 2, 1.0, quietLogger())
	if err != nil {
		t.Fatalf("Failed to assemble: %v", err)
	}
	if !bytes.Equal(a.Data, b.Data) {
		t.Errorf("Expected bit-identical volumes")
	}
}

func TestAssembleCollapsesLeadingSingleton(t *testing.T) {
	src := newFakeSource(1, 1, 2, 3, 4)
	src.leading = true

	vol, err := Assemble(src, 1, 1, 2, 1.0, quietLogger())
	if err != nil {
		t.Fatalf("Failed to assemble: %v", err)
	}
	if vol.Shape != [5]int{1, 1, 2, 3, 4} {
		t.Errorf("Expected shape (1,1,2,3,4), got %v", vol.Shape)
	}
}

func TestAssembleAbortsOnFailure(t *testing.T) {
	src := newFakeSource(1, 2, 2, 2, 2)
	src.failAt = &[3]int{0, 1, 0}
	vol, err := Assemble(src, 1, 2, 2, 1.0, quietLogger())
	if err == nil || vol != nil {
		t.Fatalf("Expected failure without a volume, got %v, %v", vol, err)
	}
	if src.reads != 3 {
		t.Errorf("Expected assembly to stop at the third read, got %d reads", src.reads)
	}

	src = newFakeSource(1, 1, 3, 2, 2)
	src.badShape = &[3]int{0, 0, 2}
	if _, err := Assemble(src, 1, 1, 3, 1.0, quietLogger()); err == nil {
		t.Errorf("Expected failure for a plane with a different shape")
	}
}

func TestChannelColors(t *testing.T) {
	colors := ChannelColors(6)
	want := []imaris.Color{Palette[0], Palette[1], Palette[2], Palette[3], Palette[0], Palette[1]}
	for i, c := range colors {
		if c.BaseColor != want[i] {
			t.Errorf("Expected channel %d color %+v, got %+v", i, want[i], c.BaseColor)
		}
		if c.BaseColor.A != 1 {
			t.Errorf("Expected alpha 1 for channel %d, got %f", i, c.BaseColor.A)
		}
	}
	if Palette[0] != (imaris.Color{R: 1, A: 1}) || Palette[3] != (imaris.Color{R: 1, G: 1, A: 1}) {
		t.Errorf("Expected palette to start red and end yellow, got %+v", Palette)
	}
	if ChannelName(3) != "Channel 3" {
		t.Errorf("Expected 'Channel 3', got %q", ChannelName(3))
	}
}

func TestProbe(t *testing.T) {
	src := newFakeSource(1, 2, 3, 4, 5)
	src.leading = true
	delete(src.sizes, "T")

	meta, err := Probe(src, 1.0)
	if err != nil {
		t.Fatalf("Failed to probe: %v", err)
	}
	if meta.Shape() != [5]int{1, 2, 3, 4, 5} {
		t.Errorf("Expected shape (1,2,3,4,5), got %v", meta.Shape())
	}
	if meta.Min != 1 || meta.Max != float64(sampleValue(0, 0, 0, 3, 4)) {
		t.Errorf("Expected min 1 and max %d, got %g and %g", sampleValue(0, 0, 0, 3, 4), meta.Min, meta.Max)
	}
	if src.reads != 1 {
		t.Errorf("Expected a single probe read, got %d", src.reads)
	}
}

func newTestConverter(t *testing.T, src *fakeSource, caps Capabilities, backend imaris.Backend) (*Converter, *config.Config) {
	t.Helper()
	cfg := config.DefaultConfig()
	conv := NewConverter(cfg, caps)
	conv.SetLogger(quietLogger())
	conv.SetOpener(func(string) (PlaneSource, error) { return src, nil })
	if backend != nil {
		conv.SetBackend(backend)
	}
	if _, err := conv.Open("sample.czi"); err != nil {
		t.Fatalf("Failed to open: %v", err)
	}
	return conv, cfg
}

func TestProcessImarisUnsupportedFailsFast(t *testing.T) {
	src := newFakeSource(1, 2, 3, 4, 4)
	conv, _ := newTestConverter(t, src, Capabilities{ImarisReason: "no HDF5"}, nil)
	defer conv.Close()

	out := filepath.Join(t.TempDir(), "out.ims")
	err := conv.Process(&Params{OutputFile: out, Format: config.FormatImaris, VoxelSize: models.VoxelSize{X: 1, Y: 1, Z: 1}})
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("Expected ErrUnsupported, got %v", err)
	}
	if src.reads != 1 {
		t.Errorf("Expected no reads after the probe, got %d", src.reads-1)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Errorf("Expected no output file")
	}

	if err := ExportImaris(&models.Volume{}, out, models.VoxelSize{X: 1, Y: 1, Z: 1}, Capabilities{}, ImarisOptions{}); !errors.Is(err, ErrUnsupported) {
		t.Errorf("Expected ErrUnsupported from ExportImaris, got %v", err)
	}
}

func TestProcessOMETIFF(t *testing.T) {
	src := newFakeSource(1, 2, 3, 6, 7)
	conv, cfg := newTestConverter(t, src, Capabilities{}, nil)
	dir := t.TempDir()
	cfg.Output.Verify = true
	cfg.Output.PreviewDir = filepath.Join(dir, "preview")

	out := filepath.Join(dir, "out.ome.tif")
	if err := conv.Process(&Params{OutputFile: out, Format: config.FormatOMETIFF}); err != nil {
		t.Fatalf("Failed to convert: %v", err)
	}
	conv.Close()
	if !src.closed {
		t.Errorf("Expected source to be closed")
	}

	img, err := ometiff.Read(out)
	if err != nil {
		t.Fatalf("Failed to read output: %v", err)
	}
	if img.Volume.Shape != [5]int{1, 2, 3, 6, 7} || img.Axes != "TCZYX" {
		t.Errorf("Expected (1,2,3,6,7) TCZYX, got %v %s", img.Volume.Shape, img.Axes)
	}
	plane := img.Volume.Plane(0, 1, 2)
	if got := binary.LittleEndian.Uint16(plane[2*(5*7+6):]); got != sampleValue(0, 1, 2, 5, 6) {
		t.Errorf("Expected %d at (0,1,2,5,6), got %d", sampleValue(0, 1, 2, 5, 6), got)
	}

	for c := 0; c < 2; c++ {
		preview := filepath.Join(cfg.Output.PreviewDir, "sample_C"+string(rune('0'+c))+"_mip.jpg")
		if _, err := os.Stat(preview); err != nil {
			t.Errorf("Expected preview %s: %v", preview, err)
		}
	}
}

func TestProcessImaris(t *testing.T) {
	src := newFakeSource(2, 5, 2, 3, 4)
	backend := &imaristest.Backend{}
	conv, _ := newTestConverter(t, src, Capabilities{Imaris: true}, backend)
	defer conv.Close()

	voxel := models.VoxelSize{X: 0.5, Y: 0.25, Z: 2}
	if err := conv.Process(&Params{OutputFile: "out.ims", Format: config.FormatImaris, VoxelSize: voxel}); err != nil {
		t.Fatalf("Failed to convert: %v", err)
	}

	s := backend.Last()
	if s == nil || s.Path != "out.ims" {
		t.Fatalf("Expected a store for out.ims")
	}
	if s.Closed != 1 {
		t.Errorf("Expected store closed once, got %d", s.Closed)
	}
	if got := s.Attr("/DataSetInfo/Image", "ExtMax0"); got != "2.000" {
		t.Errorf("Expected ExtMax0 2.000, got %s", got)
	}
	if got := s.Attr("/DataSetInfo/Image", "ExtMax2"); got != "4.000" {
		t.Errorf("Expected ExtMax2 4.000, got %s", got)
	}
	if got := s.Attr(imaris.ChannelInfoPath(4), "Color"); got != "1.000 0.000 0.000" {
		t.Errorf("Expected channel 4 to wrap to red, got %s", got)
	}
	if got := s.Attr(imaris.ChannelInfoPath(3), "Name"); got != "Channel 3" {
		t.Errorf("Expected 'Channel 3', got %s", got)
	}
	data := s.Datasets[imaris.ChannelPath(1, 4)+"/Data"].Data.([]uint16)
	if data[0] != sampleValue(1, 4, 0, 0, 0) {
		t.Errorf("Expected first sample %d, got %d", sampleValue(1, 4, 0, 0, 0), data[0])
	}
}

func TestProcessRejectsBadVoxelSize(t *testing.T) {
	src := newFakeSource(1, 1, 1, 2, 2)
	conv, _ := newTestConverter(t, src, Capabilities{Imaris: true}, &imaristest.Backend{})
	defer conv.Close()

	err := conv.Process(&Params{OutputFile: "x.ims", Format: config.FormatImaris, VoxelSize: models.VoxelSize{X: 1, Y: 0, Z: 1}})
	if err == nil {
		t.Errorf("Expected error for zero voxel size")
	}
	if src.reads != 1 {
		t.Errorf("Expected no assembly reads, got %d", src.reads-1)
	}
}

func TestExportImarisDestroysOnFailure(t *testing.T) {
	vol, _ := models.NewVolume([5]int{1, 1, 1, 2, 2}, models.Uint16)
	backend := &imaristest.Backend{FailOn: "Channel 0"}

	err := ExportImaris(vol, "x.ims", models.VoxelSize{X: 1, Y: 1, Z: 1}, Capabilities{Imaris: true}, ImarisOptions{
		Backend: backend,
		Log:     quietLogger(),
		Now:     func() time.Time { return time.Unix(0, 0) },
	})
	if err == nil {
		t.Fatalf("Expected injected failure")
	}
	if backend.Last().Closed != 1 {
		t.Errorf("Expected the store to be released after failure, got %d closes", backend.Last().Closed)
	}
}

func TestExportImarisHDF5(t *testing.T) {
	log := quietLogger()
	dir := t.TempDir()

	caps := DetectCapabilities(true, imaris.HDF5Backend{}, dir, log)
	if !caps.Imaris {
		t.Fatalf("Expected the HDF5 backend to be available, got %q", caps.ImarisReason)
	}

	vol, err := Assemble(newFakeSource(2, 2, 2, 3, 4), 2, 2, 2, 1, log)
	if err != nil {
		t.Fatalf("Failed to assemble: %v", err)
	}
	out := filepath.Join(dir, "out.ims")
	err = ExportImaris(vol, out, models.VoxelSize{X: 0.5, Y: 0.5, Z: 2}, caps, ImarisOptions{
		Backend:          imaris.HDF5Backend{},
		AppName:          "CZI2IMS",
		AppVersion:       "1.0",
		AdjustColorRange: true,
		Log:              log,
	})
	if err != nil {
		t.Fatalf("Expected Imaris export to succeed, got %v", err)
	}
	if info, err := os.Stat(out); err != nil || info.Size() == 0 {
		t.Errorf("Expected a non-empty .ims file, got %v", err)
	}
}

func TestDetectCapabilities(t *testing.T) {
	log := quietLogger()
	dir := t.TempDir()

	if caps := DetectCapabilities(true, &imaristest.Backend{}, dir, log); !caps.Imaris {
		t.Errorf("Expected Imaris available, got reason %q", caps.ImarisReason)
	}
	caps := DetectCapabilities(true, &imaristest.Backend{CreateErr: errors.New("no hdf5")}, dir, log)
	if caps.Imaris || caps.ImarisReason == "" {
		t.Errorf("Expected Imaris unavailable with a reason, got %+v", caps)
	}
	if caps := DetectCapabilities(false, &imaristest.Backend{}, dir, log); caps.Imaris {
		t.Errorf("Expected Imaris disabled by configuration")
	}
}

// TestConvertCZIFile runs a synthetic CZI mosaic through the whole pipeline
func TestConvertCZIFile(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "mosaic.czi")

	b := &czitest.Builder{PixelType: czi.PixelGray16, PhysicalSize: czi.PhysicalSize{X: 0.2, Y: 0.2, Z: 1}}
	for c := 0; c < 2; c++ {
		for m := 0; m < 2; m++ {
			b.AddTile(czitest.Gray16Tile(czitest.Tile{C: c, M: m, X: m * 4, Width: 4, Height: 3}, func(x, y int) uint16 {
				return uint16(1 + c*100 + m*10 + y*4 + x)
			}))
		}
	}
	if err := b.WriteFile(input); err != nil {
		t.Fatalf("Failed to write CZI fixture: %v", err)
	}

	conv := NewConverter(config.DefaultConfig(), Capabilities{})
	conv.SetLogger(quietLogger())
	meta, err := conv.Open(input)
	if err != nil {
		t.Fatalf("Failed to open CZI: %v", err)
	}
	defer conv.Close()

	if meta.Shape() != [5]int{1, 2, 1, 3, 8} {
		t.Errorf("Expected shape (1,2,1,3,8), got %v", meta.Shape())
	}
	if meta.PhysicalSize.X != 0.2 {
		t.Errorf("Expected physical size 0.2, got %g", meta.PhysicalSize.X)
	}

	out := filepath.Join(dir, "mosaic.ome.tif")
	if err := conv.Process(&Params{OutputFile: out, Format: config.FormatOMETIFF}); err != nil {
		t.Fatalf("Failed to convert: %v", err)
	}
	img, err := ometiff.Read(out)
	if err != nil {
		t.Fatalf("Failed to read output: %v", err)
	}
	// Second tile of channel 1 starts at x=4
	plane := img.Volume.Plane(0, 1, 0)
	if got := binary.LittleEndian.Uint16(plane[2*4:]); got != 111 {
		t.Errorf("Expected 111 at (c=1, x=4, y=0), got %d", got)
	}
}
