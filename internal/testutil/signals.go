package testutil

import (
	"math"
	"math/rand"
)

// DeterministicSine generates a deterministic sine wave.
func DeterministicSine(freqHz, sampleRate, amplitude float64, length int) []float64 {
	out := make([]float64, length)
	step := 2 * math.Pi * freqHz / sampleRate
	for i := range out {
		out[i] = amplitude * math.Sin(step*float64(i))
	}
	return out
}

// DeterministicNoise generates white noise with a fixed seed for reproducibility.
func DeterministicNoise(seed int64, amplitude float64, length int) []float64 {
	out := make([]float64, length)
	rng := rand.New(rand.NewSource(seed))
	for i := range out {
		out[i] = (rng.Float64()*2 - 1) * amplitude
	}
	return out
}

// Impulse generates a unit impulse at the given position.
func Impulse(length, pos int) []float64 {
	out := make([]float64, length)
	if pos >= 0 && pos < length {
		out[pos] = 1
	}
	return out
}

// DelayedSines generates one sine per channel, each delayed by the matching
// entry of delaysSeconds. This models a far-field tone arriving at an array
// with per-microphone propagation delays.
func DelayedSines(freqHz, sampleRate, amplitude float64, delaysSeconds []float64, length int) [][]float64 {
	out := make([][]float64, len(delaysSeconds))
	for ch, d := range delaysSeconds {
		out[ch] = make([]float64, length)
		step := 2 * math.Pi * freqHz / sampleRate
		phase := -2 * math.Pi * freqHz * d
		for i := range out[ch] {
			out[ch][i] = amplitude * math.Sin(step*float64(i)+phase)
		}
	}
	return out
}

// MultichannelNoise generates independent deterministic noise per channel.
func MultichannelNoise(seed int64, amplitude float64, channels, length int) [][]float64 {
	out := make([][]float64, channels)
	for ch := range out {
		out[ch] = DeterministicNoise(seed+int64(ch), amplitude, length)
	}
	return out
}
