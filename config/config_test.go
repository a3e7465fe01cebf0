package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cwbudde/algo-spatial/frame"
	"github.com/cwbudde/algo-spatial/hrtf"
	"github.com/cwbudde/algo-spatial/internal/testutil"
	"github.com/cwbudde/algo-spatial/room"
)

const fullConfig = `
array:
  positions:
    - {x: 0.05, y: 0, z: 0}
    - {x: -0.05, y: 0, z: 0}
room:
  dimensions: [6, 3, 8]
  materials:
    floor:
      absorption: [0.1, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7]
    ceiling:
      absorption: [0.05]
pose:
  azimuth: 30
  elevation: 10
  distance: 2
  yaw: -15
dataset: synthetic
interpolation: spherical
frame:
  channels: 2
  length: 1024
  sample_rate: 48000
budget_ms: 8
`

func TestLoadFromReaderFullConfig(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(fullConfig))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if got := cfg.Shape(); got != (frame.Shape{Channels: 2, Length: 1024}) {
		t.Errorf("Shape = %+v", got)
	}
	if cfg.Budget() != 8*time.Millisecond {
		t.Errorf("Budget = %s", cfg.Budget())
	}

	positions := cfg.Positions()
	if len(positions) != 2 || positions[0].X != 0.05 || positions[1].X != -0.05 {
		t.Errorf("Positions = %+v", positions)
	}

	dims, ok := cfg.RoomDimensions()
	if !ok || dims != [3]float64{6, 3, 8} {
		t.Errorf("RoomDimensions = %v (ok %v)", dims, ok)
	}

	materials := cfg.RoomMaterials()
	floor, ok := materials[room.SurfaceFloor]
	if !ok {
		t.Fatal("floor material missing")
	}
	testutil.RequireNearlyEqual(t, floor.Absorption[7], 0.7, 1e-12)

	// A single configured band keeps the default for the rest.
	ceiling := materials[room.SurfaceCeiling]
	testutil.RequireNearlyEqual(t, ceiling.Absorption[0], 0.05, 1e-12)
	testutil.RequireNearlyEqual(t, ceiling.Absorption[1], 0.1, 1e-12)

	mode, err := cfg.InterpolationMode()
	if err != nil {
		t.Fatalf("InterpolationMode: %v", err)
	}
	if mode != hrtf.InterpolationSpherical {
		t.Errorf("mode = %v", mode)
	}

	pose := cfg.PoseValue()
	if pose.Direction.Azimuth != 30 || pose.Orientation.Yaw != -15 {
		t.Errorf("pose = %+v", pose)
	}
}

func TestLoadFromReaderDefaults(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(`
frame: {channels: 1, length: 256, sample_rate: 44100}
`))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Dataset != DefaultDataset {
		t.Errorf("Dataset = %q", cfg.Dataset)
	}
	if mode, _ := cfg.InterpolationMode(); mode != hrtf.InterpolationBilinear {
		t.Errorf("default interpolation = %v", mode)
	}
	if cfg.Budget() != frame.DefaultLatencyBudget {
		t.Errorf("default budget = %s", cfg.Budget())
	}
	if cfg.PoseValue().Direction.Distance != 1 {
		t.Errorf("default distance = %f", cfg.PoseValue().Direction.Distance)
	}
	if cfg.Positions() != nil {
		t.Errorf("Positions = %+v, want nil", cfg.Positions())
	}
	if _, ok := cfg.RoomDimensions(); ok {
		t.Error("RoomDimensions reported configured for an empty room block")
	}
}

func TestLoadFromReaderRejectsUnknownFields(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader(`
frame: {channels: 1, length: 256, sample_rate: 48000}
typo_field: true
`))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestValidateCollectsAllFailures(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader(`
array:
  positions: [{x: 0, y: 0, z: 0}]
room:
  dimensions: [5, -3]
  materials:
    lava: {absorption: [2]}
pose: {distance: -1}
interpolation: cubic
frame: {channels: 4, length: 0, sample_rate: 0}
budget_ms: -5
`))
	if err == nil {
		t.Fatal("expected validation failure")
	}

	for _, want := range []string{
		"frame.length",
		"frame.sample_rate",
		"array.positions has 1 entries for 4 channels",
		"room.dimensions needs exactly 3",
		"lava",
		"pose",
		"interpolation",
		"budget_ms",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error does not mention %q:\n%v", want, err)
		}
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	if err := os.WriteFile(path, []byte(fullConfig), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Dataset != "synthetic" {
		t.Errorf("Dataset = %q", cfg.Dataset)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
