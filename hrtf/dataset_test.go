package hrtf

import (
	"errors"
	"testing"
)

// fieldDataset builds a dataset whose first response sample carries a
// direction-dependent scalar field, with the remaining samples zero. The
// right ear carries twice the field value so channel mixups show up.
func fieldDataset(t *testing.T, azCount, elCount, irLength int, field func(az, el float64) float64) *Dataset {
	t.Helper()

	azimuths := gridRange(0, 360/float64(azCount), azCount)
	elevations := gridRange(-45, 15, elCount)
	distances := []float64{1}

	pairs := make([]IRPair, 0, azCount*elCount)
	for _, az := range azimuths {
		for _, el := range elevations {
			pair := IRPair{
				Left:  make([]float64, irLength),
				Right: make([]float64, irLength),
			}
			pair.Left[0] = field(az, el)
			pair.Right[0] = 2 * field(az, el)
			pairs = append(pairs, pair)
		}
	}

	ds, err := newDataset("field", 48000, azimuths, elevations, distances, pairs)
	if err != nil {
		t.Fatalf("newDataset: %v", err)
	}
	return ds
}

func TestLoadDatasetUnknownName(t *testing.T) {
	_, err := LoadDataset("nonexistent", 48000)
	if !errors.Is(err, ErrDataset) {
		t.Fatalf("expected ErrDataset, got %v", err)
	}
}

func TestSyntheticDatasetGrid(t *testing.T) {
	ds, err := LoadDataset(SyntheticDatasetName, 48000)
	if err != nil {
		t.Fatalf("LoadDataset: %v", err)
	}

	if ds.Name() != SyntheticDatasetName {
		t.Errorf("name = %q", ds.Name())
	}
	if ds.SampleRate() != 48000 {
		t.Errorf("sample rate = %g", ds.SampleRate())
	}

	wantDirs := 24 * 10 * 4 // 15 degree az/el grid, four distance rings
	if ds.Len() != wantDirs {
		t.Errorf("dataset holds %d responses, want %d", ds.Len(), wantDirs)
	}

	if ds.IRLength() < 64 || ds.IRLength()&(ds.IRLength()-1) != 0 {
		t.Errorf("response length %d is not a power of two >= 64", ds.IRLength())
	}
}

func TestNewDatasetRejectsPartialAzimuthCircle(t *testing.T) {
	pairs := make([]IRPair, 2)
	for i := range pairs {
		pairs[i] = IRPair{Left: make([]float64, 4), Right: make([]float64, 4)}
	}

	// Two azimuths 90 degrees apart cover only half the circle.
	_, err := newDataset("partial", 48000, []float64{0, 90}, []float64{0}, []float64{1}, pairs)
	if !errors.Is(err, ErrDataset) {
		t.Fatalf("expected ErrDataset for partial azimuth coverage, got %v", err)
	}
}

func TestNewDatasetRejectsRaggedResponses(t *testing.T) {
	pairs := []IRPair{
		{Left: make([]float64, 4), Right: make([]float64, 4)},
		{Left: make([]float64, 8), Right: make([]float64, 8)},
	}

	_, err := newDataset("ragged", 48000, []float64{0, 180}, []float64{0}, []float64{1}, pairs)
	if !errors.Is(err, ErrDataset) {
		t.Fatalf("expected ErrDataset for ragged responses, got %v", err)
	}
}

func TestClampWrapsAzimuthWithoutFlagging(t *testing.T) {
	ds := fieldDataset(t, 4, 3, 2, func(az, el float64) float64 { return 1 })

	az, _, _, clamped := ds.clamp(-90, 0, 1)
	if az != 270 {
		t.Errorf("azimuth -90 wrapped to %g, want 270", az)
	}
	if clamped {
		t.Error("azimuth wrap must not count as clamping")
	}

	_, el, _, clamped := ds.clamp(0, 120, 1)
	if el != ds.elevations[len(ds.elevations)-1] {
		t.Errorf("elevation 120 clamped to %g, want %g", el, ds.elevations[len(ds.elevations)-1])
	}
	if !clamped {
		t.Error("out-of-range elevation must be flagged")
	}

	_, _, dist, clamped := ds.clamp(0, 0, 50)
	if dist != 1 || !clamped {
		t.Errorf("distance 50 clamped to %g (flagged %v), want 1 flagged", dist, clamped)
	}
}
