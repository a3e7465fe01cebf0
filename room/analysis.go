package room

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/stat"
)

// Errors returned by impulse-response analysis.
var (
	ErrEmptyImpulse = errors.New("room: impulse response is empty")
	ErrNoDecay      = errors.New("room: insufficient decay for reverberation estimate")
)

const decayFloorDB = -200.0

// SchroederDecay computes the Schroeder backward integral of the squared
// impulse response, normalized and expressed in dB:
//
//	S(t) = 10*log10( sum_{i>=t} h²(i) / sum_i h²(i) )
//
// The backward integration smooths the noisy sample-level energy into a
// monotone decay curve suitable for reverberation-time regression.
func SchroederDecay(ir []float64) ([]float64, error) {
	if len(ir) == 0 {
		return nil, ErrEmptyImpulse
	}

	decay := make([]float64, len(ir))

	cum := 0.0
	for i := len(ir) - 1; i >= 0; i-- {
		cum += ir[i] * ir[i]
		decay[i] = cum
	}

	total := decay[0]
	if total <= 0 {
		return nil, ErrNoDecay
	}

	for i, e := range decay {
		ratio := e / total
		if ratio <= 0 {
			decay[i] = decayFloorDB
		} else {
			decay[i] = 10 * math.Log10(ratio)
		}
	}

	return decay, nil
}

// DecayTime extrapolates the reverberation time from the slope of the
// Schroeder curve between startDB and endDB (both negative, startDB above
// endDB) to the -60 dB point. It returns 0 when the curve never reaches the
// requested range or shows no decay.
func DecayTime(decay []float64, sampleRate, startDB, endDB float64) float64 {
	if len(decay) == 0 || sampleRate <= 0 {
		return 0
	}

	start, end := -1, -1
	for i, v := range decay {
		if start < 0 && v <= startDB {
			start = i
		}
		if start >= 0 && v <= endDB {
			end = i
			break
		}
	}
	if start < 0 || end <= start {
		return 0
	}

	// Least-squares slope of the curve over [start, end] in dB per sample.
	xs := make([]float64, end-start+1)
	ys := make([]float64, end-start+1)
	for i := range xs {
		xs[i] = float64(i)
		ys[i] = decay[start+i]
	}
	_, slope := stat.LinearRegression(xs, ys, nil, false)
	if slope >= 0 || math.IsNaN(slope) {
		return 0
	}

	rt := -60.0 / (slope * sampleRate)
	if rt < 0 || math.IsNaN(rt) || math.IsInf(rt, 0) {
		return 0
	}
	return rt
}

// MeasureRT60 estimates the reverberation time of an impulse response from
// its Schroeder curve, preferring the T30 range (-5 to -35 dB) and falling
// back to T20 (-5 to -25 dB) when the curve is too short.
func MeasureRT60(ir []float64, sampleRate float64) (float64, error) {
	decay, err := SchroederDecay(ir)
	if err != nil {
		return 0, err
	}

	if rt := DecayTime(decay, sampleRate, -5, -35); rt > 0 {
		return rt, nil
	}
	if rt := DecayTime(decay, sampleRate, -5, -25); rt > 0 {
		return rt, nil
	}

	return 0, ErrNoDecay
}

// EarlyDecayTime estimates the early decay time: the 0 to -10 dB slope of
// the Schroeder curve extrapolated to -60 dB.
func EarlyDecayTime(ir []float64, sampleRate float64) (float64, error) {
	decay, err := SchroederDecay(ir)
	if err != nil {
		return 0, err
	}

	rt := DecayTime(decay, sampleRate, 0, -10)
	if rt <= 0 {
		return 0, ErrNoDecay
	}
	return rt, nil
}
