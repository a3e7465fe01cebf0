package room

import (
	"fmt"
	"math"
)

// BandCount is the number of octave bands a material spectrum covers.
const BandCount = 8

// BandFrequencies lists the octave-band center frequencies in Hz that
// material absorption and scattering spectra are specified at.
var BandFrequencies = [BandCount]float64{62.5, 125, 250, 500, 1000, 2000, 4000, 8000}

// Surface names one of the six boundaries of a rectangular room.
type Surface int

const (
	SurfaceFloor Surface = iota
	SurfaceCeiling
	SurfaceWallFront
	SurfaceWallBack
	SurfaceWallLeft
	SurfaceWallRight
	surfaceCount
)

var surfaceNames = [surfaceCount]string{
	"floor", "ceiling", "wall_front", "wall_back", "wall_left", "wall_right",
}

// String returns the lowercase surface name used in configuration files.
func (s Surface) String() string {
	if s < 0 || s >= surfaceCount {
		return fmt.Sprintf("surface(%d)", int(s))
	}
	return surfaceNames[s]
}

// ParseSurface resolves a configuration surface name.
func ParseSurface(name string) (Surface, error) {
	for s, n := range surfaceNames {
		if n == name {
			return Surface(s), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown surface %q", ErrParameters, name)
}

// Surfaces returns all six surfaces in declaration order.
func Surfaces() []Surface {
	out := make([]Surface, surfaceCount)
	for i := range out {
		out[i] = Surface(i)
	}
	return out
}

// Material holds octave-band absorption and scattering coefficients for one
// surface, each in [0, 1] across the BandFrequencies bands.
type Material struct {
	Absorption [BandCount]float64
	Scattering [BandCount]float64
}

const defaultCoefficient = 0.1

// DefaultMaterial returns the flat 0.1 absorption / 0.1 scattering material
// assigned to every surface that has no explicit material.
func DefaultMaterial() Material {
	var m Material
	for b := range BandCount {
		m.Absorption[b] = defaultCoefficient
		m.Scattering[b] = defaultCoefficient
	}
	return m
}

// FlatMaterial returns a material with the same absorption and scattering
// coefficient in every band.
func FlatMaterial(absorption, scattering float64) (Material, error) {
	var m Material
	for b := range BandCount {
		m.Absorption[b] = absorption
		m.Scattering[b] = scattering
	}
	if err := m.Validate(); err != nil {
		return Material{}, err
	}
	return m, nil
}

// Validate checks that every coefficient is finite and within [0, 1].
func (m Material) Validate() error {
	for b := range BandCount {
		a, s := m.Absorption[b], m.Scattering[b]
		if a < 0 || a > 1 || math.IsNaN(a) {
			return fmt.Errorf("%w: absorption band %d must be in [0, 1]: %f", ErrParameters, b, a)
		}
		if s < 0 || s > 1 || math.IsNaN(s) {
			return fmt.Errorf("%w: scattering band %d must be in [0, 1]: %f", ErrParameters, b, s)
		}
	}
	return nil
}

// absorptionAt linearly interpolates the band absorption spectrum at an
// arbitrary frequency, clamping outside the specified band range.
func (m Material) absorptionAt(freqHz float64) float64 {
	return interpolateBands(m.Absorption, freqHz)
}

func interpolateBands(bands [BandCount]float64, freqHz float64) float64 {
	if freqHz <= BandFrequencies[0] {
		return bands[0]
	}
	if freqHz >= BandFrequencies[BandCount-1] {
		return bands[BandCount-1]
	}
	for b := 1; b < BandCount; b++ {
		lo, hi := BandFrequencies[b-1], BandFrequencies[b]
		if freqHz <= hi {
			t := (freqHz - lo) / (hi - lo)
			return bands[b-1] + t*(bands[b]-bands[b-1])
		}
	}
	return bands[BandCount-1]
}
