package hrtf

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-spatial/geom"
)

// Interpolation selects how responses between dataset grid points are
// reconstructed.
type Interpolation int

const (
	// InterpolationNearest snaps to the closest grid key. An exact key
	// returns the stored response unmodified.
	InterpolationNearest Interpolation = iota

	// InterpolationBilinear blends the four nearest azimuth/elevation
	// neighbors by angular-distance weight.
	InterpolationBilinear

	// InterpolationSpherical reconstructs from a spherical-harmonic
	// expansion fitted over the whole grid. Highest accuracy and cost.
	InterpolationSpherical
)

var interpolationNames = map[Interpolation]string{
	InterpolationNearest:   "nearest",
	InterpolationBilinear:  "bilinear",
	InterpolationSpherical: "spherical",
}

// String returns the configuration name of the mode.
func (m Interpolation) String() string {
	if n, ok := interpolationNames[m]; ok {
		return n
	}
	return fmt.Sprintf("interpolation(%d)", int(m))
}

// ParseInterpolation resolves a configuration mode name.
func ParseInterpolation(name string) (Interpolation, error) {
	for m, n := range interpolationNames {
		if n == name {
			return m, nil
		}
	}
	return 0, fmt.Errorf("hrtf: unknown interpolation mode %q", name)
}

// Valid reports whether m is a recognized mode.
func (m Interpolation) Valid() bool {
	_, ok := interpolationNames[m]
	return ok
}

// Interpolate reconstructs the stereo response for the given direction
// using the selected mode. Out-of-range positions are clamped to the
// dataset boundary. The returned pair is a copy owned by the caller.
func (d *Dataset) Interpolate(pos geom.Direction, mode Interpolation) (IRPair, error) {
	if !mode.Valid() {
		return IRPair{}, fmt.Errorf("hrtf: unknown interpolation mode %d", int(mode))
	}

	pair := IRPair{
		Left:  make([]float64, d.irLength),
		Right: make([]float64, d.irLength),
	}
	if err := d.interpolateInto(pair.Left, pair.Right, pos, mode, nil); err != nil {
		return IRPair{}, err
	}
	return pair, nil
}

// interpolateInto writes the reconstructed response into left and right,
// which must both have the dataset's response length. basis is optional
// caller-owned scratch for the spherical mode.
func (d *Dataset) interpolateInto(left, right []float64, pos geom.Direction, mode Interpolation, basis []float64) error {
	if len(left) != d.irLength || len(right) != d.irLength {
		return fmt.Errorf("hrtf: interpolation buffers have %d/%d samples, want %d",
			len(left), len(right), d.irLength)
	}

	az, el, dist, _ := d.clamp(pos.Azimuth, pos.Elevation, pos.Distance)

	switch mode {
	case InterpolationBilinear:
		d.bilinearInto(left, right, az, el, dist)
	case InterpolationSpherical:
		if err := d.sphericalInto(left, right, az, el, dist, basis); err != nil {
			return err
		}
	default:
		d.nearestInto(left, right, az, el, dist)
	}
	return nil
}

// nearestInto copies the response of the closest grid key. No arithmetic
// touches the samples, so an exact key round-trips bit for bit.
func (d *Dataset) nearestInto(left, right []float64, az, el, dist float64) {
	azIdx := int(math.Round(az/d.azStep())) % len(d.azimuths)
	elIdx := d.nearestElevation(el)
	pair := d.at(azIdx, elIdx, d.nearestDistance(dist))
	copy(left, pair.Left)
	copy(right, pair.Right)
}

// bilinearInto blends the four surrounding azimuth/elevation grid points at
// the nearest distance ring, weighting by angular distance.
func (d *Dataset) bilinearInto(left, right []float64, az, el, dist float64) {
	distIdx := d.nearestDistance(dist)

	azPos := az / d.azStep()
	az0 := int(azPos) % len(d.azimuths)
	az1 := (az0 + 1) % len(d.azimuths)
	fa := azPos - math.Floor(azPos)

	el0, el1, fe := d.elevationSpan(el)

	w00 := (1 - fa) * (1 - fe)
	w10 := fa * (1 - fe)
	w01 := (1 - fa) * fe
	w11 := fa * fe

	p00 := d.at(az0, el0, distIdx)
	p10 := d.at(az1, el0, distIdx)
	p01 := d.at(az0, el1, distIdx)
	p11 := d.at(az1, el1, distIdx)

	for i := range left {
		left[i] = w00*p00.Left[i] + w10*p10.Left[i] + w01*p01.Left[i] + w11*p11.Left[i]
		right[i] = w00*p00.Right[i] + w10*p10.Right[i] + w01*p01.Right[i] + w11*p11.Right[i]
	}
}

func (d *Dataset) azStep() float64 {
	return 360 / float64(len(d.azimuths))
}

func (d *Dataset) nearestElevation(el float64) int {
	if len(d.elevations) == 1 {
		return 0
	}
	step := d.elevations[1] - d.elevations[0]
	idx := int(math.Round((el - d.elevations[0]) / step))
	if idx < 0 {
		return 0
	}
	if idx >= len(d.elevations) {
		return len(d.elevations) - 1
	}
	return idx
}

// elevationSpan returns the two bracketing elevation indices and the
// fractional position between them.
func (d *Dataset) elevationSpan(el float64) (lo, hi int, frac float64) {
	if len(d.elevations) == 1 {
		return 0, 0, 0
	}
	step := d.elevations[1] - d.elevations[0]
	pos := (el - d.elevations[0]) / step
	lo = int(math.Floor(pos))
	if lo < 0 {
		return 0, 0, 0
	}
	if lo >= len(d.elevations)-1 {
		last := len(d.elevations) - 1
		return last, last, 0
	}
	return lo, lo + 1, pos - math.Floor(pos)
}
