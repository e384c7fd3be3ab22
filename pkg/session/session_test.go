package session

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/georgkislinger/CZI-to-TIF-or-Imaris-GUI/pkg/config"
	"github.com/georgkislinger/CZI-to-TIF-or-Imaris-GUI/pkg/conversion"
	"github.com/georgkislinger/CZI-to-TIF-or-Imaris-GUI/pkg/czi"
	"github.com/georgkislinger/CZI-to-TIF-or-Imaris-GUI/pkg/czi/czitest"
	"github.com/georgkislinger/CZI-to-TIF-or-Imaris-GUI/pkg/dialog"
	"github.com/georgkislinger/CZI-to-TIF-or-Imaris-GUI/pkg/imaris"
	"github.com/georgkislinger/CZI-to-TIF-or-Imaris-GUI/pkg/imaris/imaristest"
)

// scriptedDialogs answers prompts from fields and records what was shown
type scriptedDialogs struct {
	input     string
	imaris    bool
	output    string
	floats    []float64
	cancelAt  int // AskFloat call that is dismissed, 0 for none
	floatCall int

	asked  []string
	infos  []string
	errors []string
}

func (s *scriptedDialogs) SelectInputFile(title string) (string, bool) {
	s.asked = append(s.asked, title)
	return s.input, s.input != ""
}

func (s *scriptedDialogs) ShowInfo(title, message string) {
	s.infos = append(s.infos, title+": "+message)
}

func (s *scriptedDialogs) AskYesNo(title, question string) bool {
	s.asked = append(s.asked, title)
	return s.imaris
}

func (s *scriptedDialogs) SelectOutputFile(title, defaultExt string) (string, bool) {
	s.asked = append(s.asked, title+" "+defaultExt)
	if s.output == "" {
		return "", false
	}
	return s.output + defaultExt, true
}

func (s *scriptedDialogs) AskFloat(title, prompt string, initial float64) (float64, bool) {
	s.asked = append(s.asked, prompt)
	s.floatCall++
	if s.floatCall == s.cancelAt {
		return 0, false
	}
	return s.floats[s.floatCall-1], true
}

func (s *scriptedDialogs) ShowError(title, message string) {
	s.errors = append(s.errors, title+": "+message)
}

// writeSample writes a 2 channel, 2 slice single-tile CZI file
func writeSample(t *testing.T, dir string) string {
	t.Helper()
	b := &czitest.Builder{PixelType: czi.PixelGray8}
	for c := 0; c < 2; c++ {
		for z := 0; z < 2; z++ {
			b.AddTile(czitest.Gray8Tile(czitest.Tile{C: c, Z: z, Width: 6, Height: 4}, func(x, y int) uint8 {
				return uint8(1 + c*50 + z*20 + y*4 + x)
			}))
		}
	}
	path := filepath.Join(dir, "sample.czi")
	if err := b.WriteFile(path); err != nil {
		t.Fatalf("Failed to write CZI fixture: %v", err)
	}
	return path
}

func newSession(caps conversion.Capabilities) (*conversion.Converter, *config.Config, *imaristest.Backend) {
	cfg := config.DefaultConfig()
	log, _ := test.NewNullLogger()
	backend := &imaristest.Backend{}
	conv := conversion.NewConverter(cfg, caps)
	conv.SetLogger(log)
	conv.SetBackend(backend)
	return conv, cfg, backend
}

func TestRunOMETIFF(t *testing.T) {
	dir := t.TempDir()
	conv, cfg, _ := newSession(conversion.Capabilities{ImarisReason: "no HDF5"})
	d := &scriptedDialogs{input: writeSample(t, dir), output: filepath.Join(dir, "out")}

	res := Run(d, conv, cfg, nil)
	if res.Outcome != Completed {
		t.Fatalf("Expected completed, got %s (%v)", res.Outcome, res.Err)
	}
	if res.Output != filepath.Join(dir, "out.ome.tif") {
		t.Errorf("Expected out.ome.tif, got %s", res.Output)
	}
	if _, err := os.Stat(res.Output); err != nil {
		t.Errorf("Expected output file: %v", err)
	}

	// Without Imaris there is no format question and no voxel prompt
	want := []string{TitleInput, TitleOutput + " .ome.tif"}
	if strings.Join(d.asked, "|") != strings.Join(want, "|") {
		t.Errorf("Expected prompts %v, got %v", want, d.asked)
	}
	if len(d.infos) != 2 || !strings.HasPrefix(d.infos[0], TitleMetadata+": Dimensions:") {
		t.Errorf("Expected metadata and done dialogs, got %v", d.infos)
	}
}

func TestRunImaris(t *testing.T) {
	dir := t.TempDir()
	conv, cfg, backend := newSession(conversion.Capabilities{Imaris: true})
	d := &scriptedDialogs{
		input:  writeSample(t, dir),
		imaris: true,
		output: filepath.Join(dir, "out"),
		floats: []float64{0.5, 0.5, 2},
	}

	res := Run(d, conv, cfg, nil)
	if res.Outcome != Completed || res.Format != config.FormatImaris {
		t.Fatalf("Expected completed Imaris export, got %s %s (%v)", res.Outcome, res.Format, res.Err)
	}

	s := backend.Last()
	if s == nil || s.Path != filepath.Join(dir, "out.ims") {
		t.Fatalf("Expected an .ims store at out.ims")
	}
	if got := s.Attr("/DataSetInfo/Image", "ExtMax0"); got != "3.000" {
		t.Errorf("Expected ExtMax0 3.000, got %s", got)
	}
	if got := s.Attr("/DataSetInfo/Image", "ExtMax2"); got != "4.000" {
		t.Errorf("Expected ExtMax2 4.000, got %s", got)
	}
	if _, ok := s.Datasets[imaris.ChannelPath(0, 1)+"/Data"]; !ok {
		t.Errorf("Expected data for channel 1")
	}
	if len(d.asked) != 6 {
		t.Errorf("Expected input, format, output and three voxel prompts, got %v", d.asked)
	}
}

func TestRunCancellations(t *testing.T) {
	tests := []struct {
		name     string
		noInput  bool
		noOutput bool
		cancelAt int
	}{
		{"input", true, false, 0},
		{"output", false, true, 0},
		{"voxel x", false, false, 1},
		{"voxel y", false, false, 2},
		{"voxel z", false, false, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			conv, cfg, backend := newSession(conversion.Capabilities{Imaris: true})
			d := &scriptedDialogs{
				input:    writeSample(t, dir),
				imaris:   true,
				output:   filepath.Join(dir, "out"),
				floats:   []float64{1, 1, 1},
				cancelAt: tt.cancelAt,
			}
			if tt.noInput {
				d.input = ""
			}
			if tt.noOutput {
				d.output = ""
			}

			res := Run(d, conv, cfg, nil)
			if res.Outcome != Cancelled {
				t.Errorf("Expected cancelled, got %s", res.Outcome)
			}
			if !errors.Is(res.Err, conversion.ErrCancelled) {
				t.Errorf("Expected ErrCancelled, got %v", res.Err)
			}
			if len(d.errors) != 0 {
				t.Errorf("Expected no error dialog, got %v", d.errors)
			}
			if len(backend.Stores) != 0 {
				t.Errorf("Expected no Imaris store to be created")
			}
			if _, err := os.Stat(filepath.Join(dir, "out.ims")); !os.IsNotExist(err) {
				t.Errorf("Expected no output file")
			}
			if last := d.infos[len(d.infos)-1]; !strings.HasPrefix(last, TitleCancel) {
				t.Errorf("Expected a cancellation dialog, got %q", last)
			}
		})
	}
}

func TestRunReportsFailures(t *testing.T) {
	dir := t.TempDir()
	notCZI := filepath.Join(dir, "notes.czi")
	os.WriteFile(notCZI, []byte("plain text, not a CZI container at all......"), 0644)

	conv, cfg, _ := newSession(conversion.Capabilities{})
	d := &scriptedDialogs{input: notCZI, output: filepath.Join(dir, "out")}

	res := Run(d, conv, cfg, nil)
	if res.Outcome != Failed {
		t.Fatalf("Expected failure, got %s", res.Outcome)
	}
	if !errors.Is(res.Err, czi.ErrNotCZI) {
		t.Errorf("Expected ErrNotCZI, got %v", res.Err)
	}
	if len(d.errors) != 1 || !strings.HasPrefix(d.errors[0], TitleError) {
		t.Errorf("Expected one error dialog, got %v", d.errors)
	}
}

func TestRunRequestedImarisUnavailable(t *testing.T) {
	dir := t.TempDir()
	conv, cfg, backend := newSession(conversion.Capabilities{ImarisReason: "no HDF5"})
	scripted := &scriptedDialogs{input: writeSample(t, dir)}
	out := filepath.Join(dir, "out.ims")
	d := dialog.WithAnswers(scripted, dialog.Answers{
		OutputFile: out,
		YesNo:      map[string]bool{TitleFormat: true},
	})

	res := Run(d, conv, cfg, nil)
	if res.Outcome != Failed {
		t.Fatalf("Expected failure, got %s (format %q)", res.Outcome, res.Format)
	}
	if !errors.Is(res.Err, conversion.ErrUnsupported) {
		t.Errorf("Expected ErrUnsupported, got %v", res.Err)
	}
	if len(scripted.errors) != 1 || !strings.Contains(scripted.errors[0], "no HDF5") {
		t.Errorf("Expected one error dialog with the reason, got %v", scripted.errors)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Errorf("Expected nothing written to %s", out)
	}
	if len(backend.Stores) != 0 {
		t.Errorf("Expected no Imaris store to be created")
	}
}

func TestChooseFormatFollowsDefault(t *testing.T) {
	cfg := config.DefaultConfig()
	caps := conversion.Capabilities{Imaris: true}

	if got := chooseFormat(&scriptedDialogs{imaris: true}, caps, cfg); got != config.FormatImaris {
		t.Errorf("Expected yes to pick Imaris by default, got %s", got)
	}
	cfg.Conversion.DefaultFormat = config.FormatOMETIFF
	if got := chooseFormat(&scriptedDialogs{imaris: true}, caps, cfg); got != config.FormatOMETIFF {
		t.Errorf("Expected yes to keep OME-TIFF default, got %s", got)
	}
	if got := chooseFormat(&scriptedDialogs{imaris: true}, conversion.Capabilities{}, cfg); got != config.FormatOMETIFF {
		t.Errorf("Expected OME-TIFF without Imaris, got %s", got)
	}

	// A preset answer is honoured even when Imaris is unavailable
	preset := dialog.WithAnswers(&scriptedDialogs{}, dialog.Answers{YesNo: map[string]bool{TitleFormat: false}})
	if got := chooseFormat(preset, conversion.Capabilities{}, cfg); got != config.FormatImaris {
		t.Errorf("Expected the preset Imaris request to be kept, got %s", got)
	}
}
