package dialog

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gdamore/tcell/v2"
	"github.com/pkg/errors"
)

func newTestConsole(input string) (*Console, *bytes.Buffer) {
	out := &bytes.Buffer{}
	return NewConsole(strings.NewReader(input), out), out
}

func TestConsoleSelectInputFile(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "sample.czi")
	os.WriteFile(existing, []byte("x"), 0644)

	d, out := newTestConsole(filepath.Join(dir, "missing.czi") + "\n" + existing + "\n")
	path, ok := d.SelectInputFile("Select CZI file")
	if !ok || path != existing {
		t.Errorf("Expected %s, got %q (ok=%v)", existing, path, ok)
	}
	if !strings.Contains(out.String(), "File not found") {
		t.Errorf("Expected a not found message for the missing file")
	}

	for _, input := range []string{"\n", "", "cancel\n"} {
		d, _ := newTestConsole(input)
		if _, ok := d.SelectInputFile("Select CZI file"); ok {
			t.Errorf("Expected cancellation for input %q", input)
		}
	}
}

func TestConsoleSelectOutputFile(t *testing.T) {
	tests := []struct {
		input string
		ext   string
		want  string
	}{
		{"out\n", ".ims", "out.ims"},
		{"out.ims\n", ".ims", "out.ims"},
		{"stack\n", ".ome.tif", "stack.ome.tif"},
		{"stack.OME.TIF\n", ".ome.tif", "stack.OME.TIF"},
		{"stack.tiff\n", ".ome.tif", "stack.tiff"},
	}

	for _, tt := range tests {
		d, _ := newTestConsole(tt.input)
		got, ok := d.SelectOutputFile("Save as", tt.ext)
		if !ok || got != tt.want {
			t.Errorf("Expected %q for input %q, got %q (ok=%v)", tt.want, tt.input, got, ok)
		}
	}

	d, _ := newTestConsole("\n")
	if _, ok := d.SelectOutputFile("Save as", ".ims"); ok {
		t.Errorf("Expected empty answer to cancel")
	}
}

func TestConsoleAskFloat(t *testing.T) {
	tests := []struct {
		input string
		want  float64
		ok    bool
	}{
		{"\n", 1.0, true},
		{"0.25\n", 0.25, true},
		{"-1\n0\nabc\n2.5\n", 2.5, true},
		{"c\n", 0, false},
		{"", 0, false},
		{"-3\n", 0, false},
	}

	for _, tt := range tests {
		d, _ := newTestConsole(tt.input)
		got, ok := d.AskFloat("Voxel size", "X (um)", 1.0)
		if ok != tt.ok || got != tt.want {
			t.Errorf("Expected (%g, %v) for input %q, got (%g, %v)", tt.want, tt.ok, tt.input, got, ok)
		}
	}
}

func TestConsoleAskYesNo(t *testing.T) {
	d, _ := newTestConsole("maybe\nY\n")
	if !d.AskYesNo("Output format", "Save as Imaris?") {
		t.Errorf("Expected yes")
	}
	d, _ = newTestConsole("no\n")
	if d.AskYesNo("Output format", "Save as Imaris?") {
		t.Errorf("Expected no")
	}
	d, _ = newTestConsole("")
	if d.AskYesNo("Output format", "Save as Imaris?") {
		t.Errorf("Expected end of input to answer no")
	}
}

func TestConsoleMessages(t *testing.T) {
	d, out := newTestConsole("")
	d.ShowInfo("Done", "Saved out.ims")
	d.ShowError("Error", "boom")
	if !strings.Contains(out.String(), "== Done ==\nSaved out.ims") {
		t.Errorf("Expected info message, got %q", out.String())
	}
	if !strings.Contains(out.String(), "!! Error !!\nboom") {
		t.Errorf("Expected error message, got %q", out.String())
	}
}

func TestWithAnswers(t *testing.T) {
	console, _ := newTestConsole("3\n")
	d := WithAnswers(console, Answers{
		OutputFile: "flagged",
		YesNo:      map[string]bool{"Output format": false},
		Floats:     []float64{0.5},
	})

	if d.AskYesNo("Output format", "Save as Imaris?") {
		t.Errorf("Expected preset answer no")
	}
	if path, ok := d.SelectOutputFile("Save as", ".ome.tif"); !ok || path != "flagged.ome.tif" {
		t.Errorf("Expected flagged.ome.tif, got %q", path)
	}
	if v, ok := d.AskFloat("Voxel size", "X", 1); !ok || v != 0.5 {
		t.Errorf("Expected preset 0.5, got %g", v)
	}
	// Presets are used once, later prompts fall through to the console
	if v, ok := d.AskFloat("Voxel size", "Y", 1); !ok || v != 3 {
		t.Errorf("Expected typed 3, got %g", v)
	}
	if _, ok := d.SelectOutputFile("Save as", ".ims"); ok {
		t.Errorf("Expected fall through to console, which has no more input")
	}
}

func TestCompletePath(t *testing.T) {
	dir := t.TempDir()
	os.Mkdir(filepath.Join(dir, "scans"), 0755)
	os.WriteFile(filepath.Join(dir, "scan.czi"), []byte("x"), 0644)

	got := completePath(filepath.Join(dir, "sc"))
	if len(got) != 2 {
		t.Fatalf("Expected 2 completions, got %v", got)
	}
	if got[1] != filepath.Join(dir, "scans")+string(filepath.Separator) {
		t.Errorf("Expected directory completion with separator, got %q", got[1])
	}
	if completePath("") != nil {
		t.Errorf("Expected no completions for empty input")
	}
}

// closedTerminal is a screen that cannot be opened, like stdin from a pipe
type closedTerminal struct {
	tcell.Screen
}

func (closedTerminal) Init() error {
	return errors.New("not a terminal")
}

func TestNewTUIOpensScreen(t *testing.T) {
	defer func(f func() (tcell.Screen, error)) { newScreen = f }(newScreen)

	newScreen = func() (tcell.Screen, error) {
		return closedTerminal{tcell.NewSimulationScreen("")}, nil
	}
	if _, err := NewTUI(nil); err == nil {
		t.Errorf("Expected an error when the terminal cannot be opened")
	}

	newScreen = func() (tcell.Screen, error) {
		return tcell.NewSimulationScreen(""), nil
	}
	if _, err := NewTUI(nil); err != nil {
		t.Errorf("Expected a usable screen, got %v", err)
	}
}
