package beamform

import (
	"errors"
	"math"
	"testing"

	"github.com/cwbudde/algo-spatial/frame"
	"github.com/cwbudde/algo-spatial/geom"
	"github.com/cwbudde/algo-spatial/internal/testutil"
	"github.com/cwbudde/algo-spatial/spectral"
)

func referenceArray(t *testing.T) ArrayGeometry {
	t.Helper()
	g, err := CircularArray(8, 0.05)
	if err != nil {
		t.Fatalf("CircularArray: %v", err)
	}
	return g
}

func micDelays(g ArrayGeometry, dir geom.Direction) []float64 {
	src := dir.Cartesian()
	ref := src.Norm()
	delays := make([]float64, g.Len())
	for m := range delays {
		delays[m] = (src.Sub(g.Position(m)).Norm() - ref) / frame.SpeedOfSound
	}
	return delays
}

func fillFrame(f *frame.Frame, channels [][]float64) {
	for ch := range f.Data {
		copy(f.Data[ch], channels[ch])
	}
}

func TestNewEngineValidation(t *testing.T) {
	g := referenceArray(t)
	shape := frame.Shape{Channels: 8, Length: 512}

	if _, err := NewEngine(0, shape, g); err == nil {
		t.Fatal("zero sample rate accepted")
	}
	if _, err := NewEngine(48000, frame.Shape{Channels: 0, Length: 512}, g); !errors.Is(err, frame.ErrInvalidShape) {
		t.Fatalf("invalid shape: got %v, want ErrInvalidShape", err)
	}
	if _, err := NewEngine(48000, frame.Shape{Channels: 4, Length: 512}, g); !errors.Is(err, ErrChannelMismatch) {
		t.Fatalf("channel mismatch: got %v, want ErrChannelMismatch", err)
	}
	if _, err := NewEngine(48000, shape, g, WithAdaptationRate(0)); err == nil {
		t.Fatal("zero adaptation rate accepted")
	}
	if _, err := NewEngine(48000, shape, g, WithPreEmphasis(1)); err == nil {
		t.Fatal("pre-emphasis of 1 accepted")
	}
	if _, err := NewEngine(48000, shape, g, WithNoiseSmoothing(1)); err == nil {
		t.Fatal("noise smoothing of 1 accepted")
	}
	if _, err := NewEngine(48000, shape, g, WithDiagonalLoading(0)); err == nil {
		t.Fatal("zero diagonal loading accepted")
	}

	w, err := spectral.NewWorkers(1024, 2)
	if err != nil {
		t.Fatalf("NewWorkers: %v", err)
	}
	defer w.Close()
	if _, err := NewEngine(48000, shape, g, WithWorkers(w)); err == nil {
		t.Fatal("workers with mismatched transform size accepted")
	}
}

func TestProcessFrameShapeContract(t *testing.T) {
	g := referenceArray(t)
	shape := frame.Shape{Channels: 8, Length: 256}
	e, err := NewEngine(48000, shape, g)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	dir := geom.Direction{Distance: 1}
	dst := frame.New(frame.Shape{Channels: 1, Length: 256}, 48000)

	wrong := frame.New(frame.Shape{Channels: 4, Length: 256}, 48000)
	if err := e.ProcessFrame(dst, wrong, dir); !errors.Is(err, frame.ErrShapeMismatch) {
		t.Fatalf("wrong input shape: got %v, want ErrShapeMismatch", err)
	}

	src := frame.New(shape, 48000)
	stereo := frame.New(frame.Shape{Channels: 2, Length: 256}, 48000)
	if err := e.ProcessFrame(stereo, src, dir); !errors.Is(err, frame.ErrShapeMismatch) {
		t.Fatalf("wrong output shape: got %v, want ErrShapeMismatch", err)
	}

	if err := e.ProcessFrame(dst, src, geom.Direction{}); err == nil {
		t.Fatal("zero-distance steering direction accepted")
	}

	// Valid input: output length equals input length by construction.
	if err := e.ProcessFrame(dst, src, dir); err != nil {
		t.Fatalf("ProcessFrame: %v", err)
	}
	if dst.Shape() != (frame.Shape{Channels: 1, Length: 256}) {
		t.Fatalf("output shape = %+v", dst.Shape())
	}
}

func TestSilenceKeepsUniformWeights(t *testing.T) {
	g := referenceArray(t)
	shape := frame.Shape{Channels: 8, Length: 256}
	e, err := NewEngine(48000, shape, g)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	src := frame.New(shape, 48000)
	dst := frame.New(frame.Shape{Channels: 1, Length: 256}, 48000)
	dir := geom.Direction{Distance: 1}

	for range 1000 {
		if err := e.ProcessFrame(dst, src, dir); err != nil {
			t.Fatalf("ProcessFrame: %v", err)
		}
	}

	testutil.RequireFinite(t, dst.Data[0])
	for i, v := range dst.Data[0] {
		if math.Abs(v) > 1e-12 {
			t.Fatalf("silence produced output %v at sample %d", v, i)
		}
	}

	uniform := complex(1.0/8, 0)
	for i, w := range e.WeightsSnapshot() {
		if d := w - uniform; math.Hypot(real(d), imag(d)) > 1e-9 {
			t.Fatalf("weight %d drifted from uniform: %v", i, w)
		}
	}
	if e.FallbackCount() == 0 {
		t.Fatal("silence frames recorded no uniform fallbacks")
	}
}

// binSNR measures the ratio of power at the tone bin to the mean power of
// all bins at least guard bins away from it, in dB.
func binSNR(t *testing.T, plan *spectral.Plan, signal []float64, toneBin, guard int) float64 {
	t.Helper()
	spec := make([]complex128, plan.Size())
	if err := plan.ForwardReal(spec, signal); err != nil {
		t.Fatalf("ForwardReal: %v", err)
	}
	power := spectral.Power(spec[:plan.Bins()])

	tone := power[toneBin]
	noise := 0.0
	count := 0
	for bin := 1; bin < len(power)-1; bin++ {
		if bin >= toneBin-guard && bin <= toneBin+guard {
			continue
		}
		noise += power[bin]
		count++
	}
	return spectral.PowerToDB(tone / (noise / float64(count)))
}

func TestOnAxisToneImprovesSNR(t *testing.T) {
	const (
		sampleRate = 48000.0
		length     = 2048
		toneBin    = 42
		frames     = 30
	)
	g := referenceArray(t)
	shape := frame.Shape{Channels: 8, Length: length}
	e, err := NewEngine(sampleRate, shape, g)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	dir := geom.Direction{Azimuth: 0, Elevation: 0, Distance: 1}
	toneFreq := float64(toneBin) * sampleRate / length
	delays := micDelays(g, dir)

	src := frame.New(shape, sampleRate)
	dst := frame.New(frame.Shape{Channels: 1, Length: length}, sampleRate)

	tone := testutil.DelayedSines(toneFreq, sampleRate, 1.0, delays, length)
	for fr := range frames {
		noise := testutil.MultichannelNoise(int64(fr), 1e-3, 8, length)
		for ch := range src.Data {
			for i := range src.Data[ch] {
				src.Data[ch][i] = tone[ch][i] + noise[ch][i]
			}
		}
		if err := e.ProcessFrame(dst, src, dir); err != nil {
			t.Fatalf("ProcessFrame: %v", err)
		}
	}

	plan, err := spectral.NewPlan(length)
	if err != nil {
		t.Fatalf("NewPlan: %v", err)
	}

	meanChannelSNR := 0.0
	for ch := range src.Data {
		meanChannelSNR += binSNR(t, plan, src.Data[ch], toneBin, 2)
	}
	meanChannelSNR /= 8

	outputSNR := binSNR(t, plan, dst.Data[0], toneBin, 2)

	if outputSNR <= meanChannelSNR+3 {
		t.Fatalf("beamformed SNR %.1f dB does not improve on mean channel SNR %.1f dB",
			outputSNR, meanChannelSNR)
	}
	testutil.RequireFinite(t, dst.Data[0])
}

func TestNonFiniteInputRecovers(t *testing.T) {
	g := referenceArray(t)
	shape := frame.Shape{Channels: 8, Length: 256}
	e, err := NewEngine(48000, shape, g)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	dir := geom.Direction{Distance: 1}
	dst := frame.New(frame.Shape{Channels: 1, Length: 256}, 48000)

	bad := frame.New(shape, 48000)
	bad.Data[3][17] = math.NaN()
	if err := e.ProcessFrame(dst, bad, dir); err != nil {
		t.Fatalf("ProcessFrame with NaN input: %v", err)
	}

	// The weight bank must stay finite no matter what arrived.
	for i, w := range e.WeightsSnapshot() {
		if !isFiniteComplex(w) {
			t.Fatalf("weight %d not finite after NaN input: %v", i, w)
		}
	}

	// Clean frames afterwards must produce finite output again.
	clean := frame.New(shape, 48000)
	tone := testutil.DeterministicSine(1000, 48000, 0.5, 256)
	for ch := range clean.Data {
		copy(clean.Data[ch], tone)
	}
	for range 3 {
		if err := e.ProcessFrame(dst, clean, dir); err != nil {
			t.Fatalf("ProcessFrame: %v", err)
		}
	}
	testutil.RequireFinite(t, dst.Data[0])
}

func TestSetGeometryResetsWeights(t *testing.T) {
	const length = 512
	g := referenceArray(t)
	shape := frame.Shape{Channels: 8, Length: length}
	e, err := NewEngine(48000, shape, g, WithAdaptationRate(0.5))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	dir := geom.Direction{Azimuth: 20, Distance: 1}
	delays := micDelays(g, dir)
	chans := testutil.DelayedSines(984.375, 48000, 0.8, delays, length)

	src := frame.New(shape, 48000)
	fillFrame(src, chans)
	dst := frame.New(frame.Shape{Channels: 1, Length: length}, 48000)

	for range 10 {
		if err := e.ProcessFrame(dst, src, dir); err != nil {
			t.Fatalf("ProcessFrame: %v", err)
		}
	}

	uniform := complex(1.0/8, 0)
	moved := false
	for _, w := range e.WeightsSnapshot() {
		if d := w - uniform; math.Hypot(real(d), imag(d)) > 1e-6 {
			moved = true
			break
		}
	}
	if !moved {
		t.Fatal("weights never adapted away from uniform")
	}

	if err := e.SetGeometry(g); err != nil {
		t.Fatalf("SetGeometry: %v", err)
	}
	for i, w := range e.WeightsSnapshot() {
		if w != uniform {
			t.Fatalf("weight %d not reset after geometry update: %v", i, w)
		}
	}

	wrong, err := CircularArray(4, 0.05)
	if err != nil {
		t.Fatalf("CircularArray: %v", err)
	}
	if err := e.SetGeometry(wrong); !errors.Is(err, ErrChannelMismatch) {
		t.Fatalf("mic count change: got %v, want ErrChannelMismatch", err)
	}
}

func TestBeamPatternShape(t *testing.T) {
	g := referenceArray(t)
	shape := frame.Shape{Channels: 8, Length: 256}
	e, err := NewEngine(48000, shape, g)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	pattern := e.BeamPattern(1000)
	if len(pattern) != 360 {
		t.Fatalf("pattern length = %d, want 360", len(pattern))
	}
	testutil.RequireFinite(t, pattern)
	for deg, v := range pattern {
		if v < 0 || v > 1.0001 {
			t.Fatalf("pattern[%d] = %v outside [0, 1]", deg, v)
		}
	}

	// At DC the uniform bank sums every unit phase to exactly one.
	dc := e.BeamPattern(0)
	for deg, v := range dc {
		if math.Abs(v-1) > 1e-9 {
			t.Fatalf("DC pattern[%d] = %v, want 1", deg, v)
		}
	}
}

func TestWorkersMatchSerialEngine(t *testing.T) {
	const length = 512
	g := referenceArray(t)
	shape := frame.Shape{Channels: 8, Length: length}

	serial, err := NewEngine(48000, shape, g)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	pool, err := spectral.NewWorkers(frame.NextPowerOfTwo(length), 4)
	if err != nil {
		t.Fatalf("NewWorkers: %v", err)
	}
	defer pool.Close()

	parallel, err := NewEngine(48000, shape, g, WithWorkers(pool))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	dir := geom.Direction{Azimuth: 15, Distance: 1.5}
	delays := micDelays(g, dir)
	chans := testutil.DelayedSines(750, 48000, 0.7, delays, length)

	src := frame.New(shape, 48000)
	fillFrame(src, chans)
	a := frame.New(frame.Shape{Channels: 1, Length: length}, 48000)
	b := frame.New(frame.Shape{Channels: 1, Length: length}, 48000)

	for range 5 {
		if err := serial.ProcessFrame(a, src, dir); err != nil {
			t.Fatalf("serial ProcessFrame: %v", err)
		}
		if err := parallel.ProcessFrame(b, src, dir); err != nil {
			t.Fatalf("parallel ProcessFrame: %v", err)
		}
	}

	testutil.RequireSliceNearlyEqual(t, b.Data[0], a.Data[0], 1e-9)
}

func BenchmarkProcessFrame8x2048(b *testing.B) {
	g, err := CircularArray(8, 0.05)
	if err != nil {
		b.Fatalf("CircularArray: %v", err)
	}
	shape := frame.Shape{Channels: 8, Length: 2048}
	e, err := NewEngine(48000, shape, g)
	if err != nil {
		b.Fatalf("NewEngine: %v", err)
	}

	dir := geom.Direction{Distance: 1}
	src := frame.New(shape, 48000)
	for ch := range src.Data {
		copy(src.Data[ch], testutil.DeterministicNoise(int64(ch), 0.5, 2048))
	}
	dst := frame.New(frame.Shape{Channels: 1, Length: 2048}, 48000)

	b.ReportAllocs()
	for range b.N {
		if err := e.ProcessFrame(dst, src, dir); err != nil {
			b.Fatal(err)
		}
	}
}
