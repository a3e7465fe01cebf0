package hrtf

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
)

// Errors returned by dataset loading and rendering.
var (
	ErrDataset        = errors.New("hrtf: dataset unavailable or incompatible")
	ErrNotInitialized = errors.New("hrtf: dataset not loaded")
)

// SyntheticDatasetName selects the built-in spherical-head dataset.
const SyntheticDatasetName = "synthetic"

// filePrefix selects a directory of measured WAV responses.
const filePrefix = "file:"

// IRPair is one stereo impulse response: the left and right ear filters for
// a single discretized source direction.
type IRPair struct {
	Left  []float64
	Right []float64
}

// Dataset is a named, immutable mapping from discretized (azimuth,
// elevation, distance) keys to impulse-response pairs. All responses share
// one length and sample rate. A loaded Dataset is never mutated and may be
// read concurrently by any number of spatializers.
type Dataset struct {
	name       string
	sampleRate float64
	irLength   int

	azimuths   []float64 // uniform grid over [0, 360), ascending
	elevations []float64 // uniform grid, ascending
	distances  []float64 // ascending rings in meters

	pairs []IRPair // indexed (az * len(elevations) + el) * len(distances) + dist

	shOnce sync.Once
	sh     *shExpansion
	shErr  error
}

// LoadDataset resolves a dataset by name: "synthetic" builds the built-in
// spherical-head dataset at the given sample rate, and "file:<dir>" loads a
// directory of measured stereo WAV responses whose sample rate must match.
func LoadDataset(name string, sampleRate float64) (*Dataset, error) {
	switch {
	case name == SyntheticDatasetName:
		return NewSyntheticDataset(sampleRate)
	case strings.HasPrefix(name, filePrefix):
		return LoadDirectory(strings.TrimPrefix(name, filePrefix), sampleRate)
	default:
		return nil, fmt.Errorf("%w: unknown dataset %q", ErrDataset, name)
	}
}

// newDataset validates the grid and responses and assembles a Dataset.
// pairs must hold one entry per (azimuth, elevation, distance) combination
// in azimuth-major order.
func newDataset(name string, sampleRate float64, azimuths, elevations, distances []float64, pairs []IRPair) (*Dataset, error) {
	if sampleRate <= 0 || math.IsNaN(sampleRate) || math.IsInf(sampleRate, 0) {
		return nil, fmt.Errorf("%w: sample rate must be > 0 and finite: %f", ErrDataset, sampleRate)
	}
	if len(azimuths) == 0 || len(elevations) == 0 || len(distances) == 0 {
		return nil, fmt.Errorf("%w: empty grid (%d azimuths, %d elevations, %d distances)",
			ErrDataset, len(azimuths), len(elevations), len(distances))
	}
	if want := len(azimuths) * len(elevations) * len(distances); len(pairs) != want {
		return nil, fmt.Errorf("%w: %d responses for a %d-point grid", ErrDataset, len(pairs), want)
	}

	if err := checkUniform("azimuth", azimuths); err != nil {
		return nil, err
	}
	// Azimuth wraps, so the grid must cover the full circle starting at 0.
	if azimuths[0] != 0 {
		return nil, fmt.Errorf("%w: azimuth grid must start at 0, got %f", ErrDataset, azimuths[0])
	}
	if n := len(azimuths); n > 1 {
		step := azimuths[1] - azimuths[0]
		if math.Abs(step*float64(n)-360) > 1e-6 {
			return nil, fmt.Errorf("%w: azimuth grid must span the full circle, %d steps of %f cover %f degrees",
				ErrDataset, n, step, step*float64(n))
		}
	}
	if err := checkUniform("elevation", elevations); err != nil {
		return nil, err
	}
	for i := 1; i < len(distances); i++ {
		if distances[i] <= distances[i-1] {
			return nil, fmt.Errorf("%w: distances must be strictly ascending", ErrDataset)
		}
	}

	irLength := len(pairs[0].Left)
	if irLength == 0 {
		return nil, fmt.Errorf("%w: empty impulse response", ErrDataset)
	}
	for i, p := range pairs {
		if len(p.Left) != irLength || len(p.Right) != irLength {
			return nil, fmt.Errorf("%w: response %d has lengths %d/%d, want %d",
				ErrDataset, i, len(p.Left), len(p.Right), irLength)
		}
	}

	return &Dataset{
		name:       name,
		sampleRate: sampleRate,
		irLength:   irLength,
		azimuths:   azimuths,
		elevations: elevations,
		distances:  distances,
		pairs:      pairs,
	}, nil
}

func checkUniform(what string, grid []float64) error {
	if len(grid) < 2 {
		return nil
	}
	step := grid[1] - grid[0]
	if step <= 0 {
		return fmt.Errorf("%w: %s grid must be ascending", ErrDataset, what)
	}
	for i := 2; i < len(grid); i++ {
		if math.Abs(grid[i]-grid[i-1]-step) > 1e-6 {
			return fmt.Errorf("%w: %s grid spacing is not uniform", ErrDataset, what)
		}
	}
	return nil
}

// Name returns the dataset name.
func (d *Dataset) Name() string { return d.name }

// SampleRate returns the sample rate the responses were built for.
func (d *Dataset) SampleRate() float64 { return d.sampleRate }

// IRLength returns the shared impulse-response length in samples.
func (d *Dataset) IRLength() int { return d.irLength }

// Len returns the number of discretized directions in the dataset.
func (d *Dataset) Len() int { return len(d.pairs) }

func (d *Dataset) at(az, el, dist int) IRPair {
	return d.pairs[(az*len(d.elevations)+el)*len(d.distances)+dist]
}

// clamp limits pos to the supported elevation and distance ranges and wraps
// azimuth into [0, 360). It reports whether any component was out of range.
func (d *Dataset) clamp(azimuth, elevation, distance float64) (az, el, dist float64, clamped bool) {
	az = math.Mod(azimuth, 360)
	if az < 0 {
		az += 360
	}

	el = elevation
	if lo := d.elevations[0]; el < lo {
		el, clamped = lo, true
	}
	if hi := d.elevations[len(d.elevations)-1]; el > hi {
		el, clamped = hi, true
	}

	dist = distance
	if lo := d.distances[0]; dist < lo {
		dist, clamped = lo, true
	}
	if hi := d.distances[len(d.distances)-1]; dist > hi {
		dist, clamped = hi, true
	}

	return az, el, dist, clamped
}

// nearestDistance returns the index of the ring closest to dist.
func (d *Dataset) nearestDistance(dist float64) int {
	best, bestDiff := 0, math.Inf(1)
	for i, r := range d.distances {
		if diff := math.Abs(r - dist); diff < bestDiff {
			best, bestDiff = i, diff
		}
	}
	return best
}
