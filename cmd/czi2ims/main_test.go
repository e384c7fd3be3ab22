package main

import (
	"testing"

	"github.com/georgkislinger/CZI-to-TIF-or-Imaris-GUI/pkg/config"
	"github.com/georgkislinger/CZI-to-TIF-or-Imaris-GUI/pkg/session"
)

func TestFlagAnswers(t *testing.T) {
	cfg := config.DefaultConfig()

	a, err := flagAnswers(cfg, "in.czi", "out", config.FormatOMETIFF, "0.5, 0.5,2")
	if err != nil {
		t.Fatalf("Expected valid flags, got %v", err)
	}
	if a.InputFile != "in.czi" || a.OutputFile != "out" {
		t.Errorf("Expected input and output to be carried, got %+v", a)
	}
	if yes, ok := a.YesNo[session.TitleFormat]; !ok || yes {
		t.Errorf("Expected OME-TIFF to answer no to the Imaris question, got %v (set=%v)", yes, ok)
	}
	if len(a.Floats) != 3 || a.Floats[2] != 2 {
		t.Errorf("Expected voxel sizes [0.5 0.5 2], got %v", a.Floats)
	}

	a, _ = flagAnswers(cfg, "", "", "", "")
	if _, ok := a.YesNo[session.TitleFormat]; ok {
		t.Errorf("Expected the format question to stay open")
	}

	for _, bad := range [][2]string{{"tiff", ""}, {"", "1,2"}, {"", "1,0,1"}, {"", "a,b,c"}} {
		if _, err := flagAnswers(cfg, "", "", bad[0], bad[1]); err == nil {
			t.Errorf("Expected error for format %q voxel %q", bad[0], bad[1])
		}
	}
}
