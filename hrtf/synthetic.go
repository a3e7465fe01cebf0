package hrtf

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-spatial/frame"
	"github.com/cwbudde/algo-spatial/geom"
)

// Spherical-head model parameters for the built-in dataset.
const (
	syntheticHeadRadius = 0.0875 // meters, half the common 17.5 cm head model
	syntheticAzStep     = 15.0
	syntheticElStep     = 15.0
	syntheticElMin      = -45.0
	syntheticElMax      = 90.0

	// Bulk propagation delay is removed from the responses; this lead keeps
	// the earlier ear's arrival safely inside the buffer.
	syntheticLeadSamples = 16

	// One-pole head-shadow lowpass cutoff at full occlusion.
	syntheticShadowCutoffHz = 800.0

	syntheticMinPath = 0.1
)

var syntheticDistances = []float64{0.5, 1, 2, 4}

// NewSyntheticDataset builds the deterministic spherical-head dataset at
// the given sample rate: interaural time differences from the Woodworth
// path around a rigid sphere, head shadowing as a one-pole lowpass scaled
// by incidence angle, and 1/distance gain.
func NewSyntheticDataset(sampleRate float64) (*Dataset, error) {
	if sampleRate <= 0 || math.IsNaN(sampleRate) || math.IsInf(sampleRate, 0) {
		return nil, fmt.Errorf("%w: sample rate must be > 0 and finite: %f", ErrDataset, sampleRate)
	}

	azimuths := gridRange(0, syntheticAzStep, int(360/syntheticAzStep))
	elevations := gridRange(syntheticElMin, syntheticElStep,
		int((syntheticElMax-syntheticElMin)/syntheticElStep)+1)

	// The response must hold the worst-case interaural spread plus the
	// lead and a margin for the shadow filter tail.
	span := syntheticHeadRadius * (2 + math.Pi) / frame.SpeedOfSound * sampleRate
	irLength := frame.NextPowerOfTwo(int(span) + syntheticLeadSamples + 32)
	if irLength < 64 {
		irLength = 64
	}

	pairs := make([]IRPair, 0, len(azimuths)*len(elevations)*len(syntheticDistances))
	for _, az := range azimuths {
		for _, el := range elevations {
			for _, dist := range syntheticDistances {
				pairs = append(pairs, synthesizePair(az, el, dist, sampleRate, irLength))
			}
		}
	}

	return newDataset(SyntheticDatasetName, sampleRate, azimuths, elevations, syntheticDistances, pairs)
}

func gridRange(start, step float64, count int) []float64 {
	out := make([]float64, count)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

func synthesizePair(az, el, dist float64, sampleRate float64, irLength int) IRPair {
	src := geom.Direction{Azimuth: az, Elevation: el, Distance: dist}.Cartesian()
	u := src.Scale(1 / src.Norm())

	// The ear axes point along +Y (left) and -Y (right); the cosine of the
	// incidence angle selects between the direct and wrapped path.
	left := synthesizeEar(dist, u.Y, sampleRate, irLength)
	right := synthesizeEar(dist, -u.Y, sampleRate, irLength)
	return IRPair{Left: left, Right: right}
}

// synthesizeEar builds one ear's response: a fractionally delayed impulse
// at the Woodworth path length, attenuated by 1/path, then smoothed by the
// head-shadow lowpass.
func synthesizeEar(dist, cosTheta float64, sampleRate float64, irLength int) []float64 {
	path := woodworthPath(dist, cosTheta)

	relDelay := (path - dist) / frame.SpeedOfSound * sampleRate
	pos := relDelay + syntheticLeadSamples
	amplitude := 1 / math.Max(path, syntheticMinPath)

	out := make([]float64, irLength)
	idx := int(pos)
	if idx >= 0 && idx < irLength-1 {
		frac := pos - float64(idx)
		out[idx] = amplitude * (1 - frac)
		out[idx+1] = amplitude * frac
	}

	// Shadow amount grows from the ipsilateral pole (no filtering beyond
	// the pole cutoff) to the contralateral pole (full occlusion).
	shadow := (1 - cosTheta) / 2
	cutoff := syntheticShadowCutoffHz + (sampleRate/2-syntheticShadowCutoffHz)*(1-shadow)
	a := math.Exp(-2 * math.Pi * cutoff / sampleRate)
	prev := 0.0
	for i := range out {
		prev = (1-a)*out[i] + a*prev
		out[i] = prev
	}

	return out
}

// woodworthPath returns the acoustic path length from a source at distance
// dist to an ear on a rigid sphere, given the cosine of the angle between
// the source direction and the ear axis. Sources past the shadow tangent
// travel the straight segment to the tangent point plus the arc around the
// sphere.
func woodworthPath(dist, cosTheta float64) float64 {
	r := syntheticHeadRadius
	if dist <= r {
		dist = r * 1.5
	}

	theta := math.Acos(frame.Clamp(cosTheta, -1, 1))
	tangent := math.Acos(r / dist)
	if theta <= tangent {
		return math.Sqrt(dist*dist + r*r - 2*dist*r*cosTheta)
	}
	return math.Sqrt(dist*dist-r*r) + r*(theta-tangent)
}
