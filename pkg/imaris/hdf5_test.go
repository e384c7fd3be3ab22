package imaris_test

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/scigolib/hdf5"

	"github.com/georgkislinger/CZI-to-TIF-or-Imaris-GUI/pkg/imaris"
)

// TestHDF5BackendAvailable verifies the real backend passes the start-up check
func TestHDF5BackendAvailable(t *testing.T) {
	if err := imaris.Probe(imaris.HDF5Backend{}, t.TempDir()); err != nil {
		t.Fatalf("Expected the HDF5 backend to be usable, got %v", err)
	}
}

// TestHDF5BackendWritesFile writes a two channel, two time point file and reopens it
func TestHDF5BackendWritesFile(t *testing.T) {
	size := imaris.ImageSize{X: 4, Y: 3, Z: 2, C: 2, T: 2}
	path := filepath.Join(t.TempDir(), "out.ims")

	conv, err := imaris.NewConverter(imaris.HDF5Backend{}, "uint16", size, unit, imaris.DefaultSequence, size,
		path, imaris.DefaultOptions(), "CZI2IMS", "1.0", nil)
	if err != nil {
		t.Fatalf("Failed to create converter: %v", err)
	}
	defer conv.Destroy()

	if err := conv.CopyBlock(uint16Volume(size), imaris.ImageSize{}); err != nil {
		t.Fatalf("Failed to copy block: %v", err)
	}
	params := imaris.NewParameters()
	params.SetChannelName(0, "Channel 0")
	params.SetChannelName(1, "Channel 1")
	err = conv.Finish(imaris.ImageExtents{MaxX: 4, MaxY: 3, MaxZ: 2}, params, []time.Time{time.Now()}, colors(2), true)
	if err != nil {
		t.Fatalf("Failed to finish HDF5 file: %v", err)
	}

	f, err := hdf5.Open(path)
	if err != nil {
		t.Fatalf("Failed to reopen %s: %v", path, err)
	}
	defer f.Close()

	found := map[string]bool{}
	f.Walk(func(p string, obj hdf5.Object) {
		found[strings.TrimSuffix(p, "/")] = true
	})
	for _, want := range []string{
		imaris.ChannelPath(0, 0) + "/Data",
		imaris.ChannelPath(1, 1) + "/Data",
		imaris.ChannelPath(1, 1) + "/Histogram",
		imaris.ChannelInfoPath(1),
		"/DataSetInfo/Image",
		imaris.RootAttributeGroup,
	} {
		if !found[want] {
			t.Errorf("Expected %s in the file", want)
		}
	}

	var root *hdf5.Group
	for _, child := range f.Root().Children() {
		if g, ok := child.(*hdf5.Group); ok && "/"+g.Name() == imaris.RootAttributeGroup {
			root = g
		}
	}
	if root == nil {
		t.Fatalf("Expected group %s", imaris.RootAttributeGroup)
	}
	attrs, err := root.Attributes()
	if err != nil {
		t.Fatalf("Failed to read root attributes: %v", err)
	}
	names := map[string]bool{}
	for _, a := range attrs {
		names[a.Name] = true
	}
	if !names["ImarisVersion"] || !names["DataSetDirectoryName"] {
		t.Errorf("Expected Imaris root attributes, got %v", names)
	}
}
