package config

import (
	"os"
	"path/filepath"
	"testing"
)

// TestDefaultConfigIsValid verifies that the defaults pass validation
func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Expected default config to be valid, got %v", err)
	}

	if cfg.Conversion.ScaleFactor != 1.0 {
		t.Errorf("Expected scale factor 1.0, got %f", cfg.Conversion.ScaleFactor)
	}
	if cfg.Imaris.DefaultVoxelSize.X != 1.0 || cfg.Imaris.DefaultVoxelSize.Y != 1.0 || cfg.Imaris.DefaultVoxelSize.Z != 1.0 {
		t.Errorf("Expected default voxel size 1,1,1, got %+v", cfg.Imaris.DefaultVoxelSize)
	}
	if cfg.Imaris.ProgressStep != 5 {
		t.Errorf("Expected progress step 5, got %d", cfg.Imaris.ProgressStep)
	}
}

// TestLoadConfigMissingFile verifies that a missing file yields defaults
func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Expected no error for missing file, got %v", err)
	}
	if cfg.UI.Mode != UIModeTUI {
		t.Errorf("Expected ui mode %q, got %q", UIModeTUI, cfg.UI.Mode)
	}
}

// TestSaveAndLoadConfig verifies that saved values are read back
func TestSaveAndLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "czi2ims.yaml")

	cfg := DefaultConfig()
	cfg.Conversion.ScaleFactor = 0.5
	cfg.Imaris.DefaultVoxelSize.Z = 2.5
	cfg.UI.Mode = UIModeConsole

	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if loaded.Conversion.ScaleFactor != 0.5 {
		t.Errorf("Expected scale factor 0.5, got %f", loaded.Conversion.ScaleFactor)
	}
	if loaded.Imaris.DefaultVoxelSize.Z != 2.5 {
		t.Errorf("Expected voxel Z 2.5, got %f", loaded.Imaris.DefaultVoxelSize.Z)
	}
	if loaded.UI.Mode != UIModeConsole {
		t.Errorf("Expected ui mode %q, got %q", UIModeConsole, loaded.UI.Mode)
	}
}

// TestLoadConfigRejectsInvalidValues verifies validation runs on load
func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"scale":  "conversion:\n  scaleFactor: 1.5\n",
		"format": "conversion:\n  defaultFormat: png\n",
		"voxel":  "imaris:\n  defaultVoxelSize:\n    x: 0\n    y: 1\n    z: 1\n",
		"ui":     "ui:\n  mode: gtk\n",
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "bad.yaml")
			if err := os.WriteFile(path, []byte(body), 0644); err != nil {
				t.Fatalf("Failed to write config: %v", err)
			}
			if _, err := LoadConfig(path); err == nil {
				t.Errorf("Expected error for invalid %s config", name)
			}
		})
	}
}
