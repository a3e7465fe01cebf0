package room

import (
	"math"
	"testing"

	"github.com/cwbudde/algo-spatial/frame"
)

func TestImageSourceDirectSound(t *testing.T) {
	dst := make([]float64, 4096)
	imageSourceInto(dst, [3]float64{3, 3, 3}, 2, 48000)

	if dst[0] != 1 {
		t.Fatalf("direct sound: got %v, want unit impulse at t=0", dst[0])
	}
}

func TestImageSourceFirstOrderArrivals(t *testing.T) {
	const sampleRate = 48000.0
	dims := [3]float64{3, 4, 5}
	dst := make([]float64, 4096)
	imageSourceInto(dst, dims, 1, sampleRate)

	// First order contributes two images per axis at distance = dimension,
	// each with amplitude 1/(d+1) split across two neighboring samples.
	for axis, d := range dims {
		pos := d / frame.SpeedOfSound * sampleRate
		idx := int(pos)
		got := dst[idx] + dst[idx+1]
		want := 2 / (d + 1)
		if math.Abs(got-want) > 1e-9 {
			t.Fatalf("axis %d arrival at sample %d: got %v, want %v", axis, idx, got, want)
		}
	}
}

func TestImageSourceEnergyGrowsWithOrder(t *testing.T) {
	low := make([]float64, 16384)
	high := make([]float64, 16384)
	imageSourceInto(low, [3]float64{2, 2, 2}, 2, 48000)
	imageSourceInto(high, [3]float64{2, 2, 2}, 6, 48000)

	if energy(high) <= energy(low) {
		t.Fatalf("order 6 energy %v must exceed order 2 energy %v", energy(high), energy(low))
	}
}

func TestImageSourceSkipsOutOfBufferArrivals(t *testing.T) {
	// A 64-sample buffer covers about 0.46 m of travel; a 10 m room keeps
	// every reflection outside, leaving only the direct impulse.
	dst := make([]float64, 64)
	imageSourceInto(dst, [3]float64{10, 10, 10}, 8, 48000)

	if dst[0] != 1 {
		t.Fatalf("direct sound: got %v, want 1", dst[0])
	}
	for i := 1; i < len(dst); i++ {
		if dst[i] != 0 {
			t.Fatalf("sample %d: got %v, want skipped contribution", i, dst[i])
		}
	}
}

func energy(ir []float64) float64 {
	sum := 0.0
	for _, v := range ir {
		sum += v * v
	}
	return sum
}
