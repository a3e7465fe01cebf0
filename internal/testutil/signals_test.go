package testutil

import (
	"math"
	"testing"
)

func TestDeterministicSine(t *testing.T) {
	s := DeterministicSine(1000, 48000, 1.0, 48)
	if len(s) != 48 {
		t.Fatalf("len = %d, want 48", len(s))
	}
	// First sample of a sine at phase 0 should be 0.
	if math.Abs(s[0]) > 1e-15 {
		t.Fatalf("s[0] = %v, want 0", s[0])
	}
	// All values in [-1, 1].
	for i, v := range s {
		if v < -1 || v > 1 {
			t.Fatalf("s[%d] = %v out of range", i, v)
		}
	}
}

func TestDeterministicNoise(t *testing.T) {
	a := DeterministicNoise(42, 1.0, 64)
	b := DeterministicNoise(42, 1.0, 64)
	if len(a) != 64 {
		t.Fatalf("len = %d, want 64", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("noise not deterministic at index %d", i)
		}
	}
}

func TestImpulse(t *testing.T) {
	imp := Impulse(8, 3)
	for i, v := range imp {
		if i == 3 {
			if v != 1 {
				t.Fatalf("imp[3] = %v, want 1", v)
			}
		} else if v != 0 {
			t.Fatalf("imp[%d] = %v, want 0", i, v)
		}
	}
	for i, v := range Impulse(4, 10) {
		if v != 0 {
			t.Fatalf("imp[%d] = %v, want all zeros for out-of-bounds pos", i, v)
		}
	}
}

func TestDelayedSinesPhase(t *testing.T) {
	const (
		freq       = 1000.0
		sampleRate = 48000.0
	)
	// A delay of one full period reproduces the undelayed channel.
	period := 1 / freq
	chans := DelayedSines(freq, sampleRate, 1.0, []float64{0, period}, 96)
	RequireSliceNearlyEqual(t, chans[1], chans[0], 1e-12)

	// A quarter-period delay turns sin into -cos at sample 0.
	quarter := DelayedSines(freq, sampleRate, 1.0, []float64{period / 4}, 8)
	RequireNearlyEqual(t, quarter[0][0], -1, 1e-12)
}

func TestMultichannelNoiseIndependentChannels(t *testing.T) {
	chans := MultichannelNoise(7, 1.0, 2, 32)
	same := true
	for i := range chans[0] {
		if chans[0][i] != chans[1][i] {
			same = false
			break
		}
	}
	if same {
		t.Fatal("channels share the same noise sequence")
	}
}
