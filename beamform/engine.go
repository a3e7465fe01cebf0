package beamform

import (
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/cwbudde/algo-spatial/frame"
	"github.com/cwbudde/algo-spatial/geom"
	"github.com/cwbudde/algo-spatial/spectral"
)

const (
	defaultPreEmphasis     = 0.97
	defaultNoiseSmoothing  = 0.7
	defaultAdaptationRate  = 0.01
	defaultDiagonalLoading = 1e-4

	// Bins whose instantaneous power falls below this trace are treated
	// as silence and relax toward the uniform prior.
	minSignalTrace = 1e-20

	beamPatternPoints = 360
	patternDistance   = 100.0

	warnInterval = time.Second
)

// EngineOption mutates construction-time parameters.
type EngineOption func(*engineConfig) error

type engineConfig struct {
	preEmphasis     float64
	noiseSmoothing  float64
	adaptationRate  float64
	diagonalLoading float64
	workers         *spectral.Workers
	logger          *slog.Logger
}

func defaultEngineConfig() engineConfig {
	return engineConfig{
		preEmphasis:     defaultPreEmphasis,
		noiseSmoothing:  defaultNoiseSmoothing,
		adaptationRate:  defaultAdaptationRate,
		diagonalLoading: defaultDiagonalLoading,
	}
}

// WithPreEmphasis sets the first-order pre-emphasis coefficient in [0, 1).
// Zero disables emphasis.
func WithPreEmphasis(alpha float64) EngineOption {
	return func(cfg *engineConfig) error {
		if alpha < 0 || alpha >= 1 || math.IsNaN(alpha) {
			return fmt.Errorf("beamform pre-emphasis must be in [0, 1): %f", alpha)
		}

		cfg.preEmphasis = alpha

		return nil
	}
}

// WithNoiseSmoothing sets the recursive noise-floor smoothing factor in (0, 1).
func WithNoiseSmoothing(smoothing float64) EngineOption {
	return func(cfg *engineConfig) error {
		if smoothing <= 0 || smoothing >= 1 || math.IsNaN(smoothing) {
			return fmt.Errorf("beamform noise smoothing must be in (0, 1): %f", smoothing)
		}

		cfg.noiseSmoothing = smoothing

		return nil
	}
}

// WithAdaptationRate sets the weight-bank blend rate in (0, 1].
func WithAdaptationRate(rate float64) EngineOption {
	return func(cfg *engineConfig) error {
		if rate <= 0 || rate > 1 || math.IsNaN(rate) {
			return fmt.Errorf("beamform adaptation rate must be in (0, 1]: %f", rate)
		}

		cfg.adaptationRate = rate

		return nil
	}
}

// WithDiagonalLoading sets the trace-relative diagonal loading in (0, 1].
func WithDiagonalLoading(loading float64) EngineOption {
	return func(cfg *engineConfig) error {
		if loading <= 0 || loading > 1 || math.IsNaN(loading) {
			return fmt.Errorf("beamform diagonal loading must be in (0, 1]: %f", loading)
		}

		cfg.diagonalLoading = loading

		return nil
	}
}

// WithWorkers runs per-channel forward transforms on the given pool instead
// of serially. The pool's transform size must match the engine's.
func WithWorkers(w *spectral.Workers) EngineOption {
	return func(cfg *engineConfig) error {
		cfg.workers = w
		return nil
	}
}

// WithLogger sets the logger for non-fatal quality warnings.
func WithLogger(l *slog.Logger) EngineOption {
	return func(cfg *engineConfig) error {
		cfg.logger = l
		return nil
	}
}

// Engine combines N synchronized microphone channels into one steered,
// noise-suppressed channel using adaptive MVDR weights.
//
// ProcessFrame runs on a single goroutine and is the only writer of the
// adaptive weight bank. SetGeometry and Reset must not be called
// concurrently with ProcessFrame; the orchestrator applies reconfiguration
// between frame boundaries. Diagnostic readers (BeamPattern, metrics
// getters) may run concurrently and can observe stale weights.
type Engine struct {
	sampleRate float64
	shape      frame.Shape
	fftSize    int
	half       int

	preEmphasis     float64
	noiseSmoothing  float64
	adaptationRate  float64
	diagonalLoading float64

	logger  *slog.Logger
	workers *spectral.Workers
	plan    *spectral.Plan

	geometry ArrayGeometry
	n        int

	steering []complex128 // (half+1)*n phases toward steerDir
	steerDir geom.Direction
	steerOK  bool

	weights    []complex128 // (half+1)*n adaptive bank, combine-ready
	noiseFloor []float64    // (half+1) smoothed per-bin power

	solver *MVDRSolver

	emphasized [][]float64
	spectra    [][]complex128
	outSpec    []complex128
	xvec       []complex128
	rmat       []complex128
	wnew       []complex128

	preState []float64
	deState  float64

	fallbackBins atomic.Uint64
	weightResets atomic.Uint64
	lastWarn     time.Time
}

// NewEngine creates a beamforming engine for the given frame shape and
// array geometry. The geometry's microphone count must equal the shape's
// channel count.
func NewEngine(sampleRate float64, shape frame.Shape, geometry ArrayGeometry, opts ...EngineOption) (*Engine, error) {
	if sampleRate <= 0 || math.IsNaN(sampleRate) || math.IsInf(sampleRate, 0) {
		return nil, fmt.Errorf("beamform sample rate must be > 0 and finite: %f", sampleRate)
	}

	if err := shape.Validate(); err != nil {
		return nil, err
	}

	if geometry.Len() < minMicrophones {
		return nil, fmt.Errorf("%w: need at least %d microphones, got %d",
			ErrGeometry, minMicrophones, geometry.Len())
	}

	if geometry.Len() != shape.Channels {
		return nil, fmt.Errorf("%w: %d microphones for %d channels",
			ErrChannelMismatch, geometry.Len(), shape.Channels)
	}

	cfg := defaultEngineConfig()

	for _, opt := range opts {
		if opt == nil {
			continue
		}

		err := opt(&cfg)
		if err != nil {
			return nil, err
		}
	}

	fftSize := shape.TransformSize()
	if cfg.workers != nil && cfg.workers.Size() != fftSize {
		return nil, fmt.Errorf("beamform workers transform size %d does not match frame transform size %d",
			cfg.workers.Size(), fftSize)
	}

	plan, err := spectral.NewPlan(fftSize)
	if err != nil {
		return nil, err
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	n := shape.Channels
	half := fftSize / 2

	e := &Engine{
		sampleRate:      sampleRate,
		shape:           shape,
		fftSize:         fftSize,
		half:            half,
		preEmphasis:     cfg.preEmphasis,
		noiseSmoothing:  cfg.noiseSmoothing,
		adaptationRate:  cfg.adaptationRate,
		diagonalLoading: cfg.diagonalLoading,
		logger:          logger,
		workers:         cfg.workers,
		plan:            plan,
		geometry:        geometry,
		n:               n,
		steering:        make([]complex128, (half+1)*n),
		weights:         make([]complex128, (half+1)*n),
		noiseFloor:      make([]float64, half+1),
		solver:          NewMVDRSolver(n),
		emphasized:      make([][]float64, n),
		spectra:         make([][]complex128, n),
		outSpec:         make([]complex128, fftSize),
		xvec:            make([]complex128, n),
		rmat:            make([]complex128, n*n),
		wnew:            make([]complex128, n),
		preState:        make([]float64, n),
	}
	for ch := range n {
		e.emphasized[ch] = make([]float64, shape.Length)
		e.spectra[ch] = make([]complex128, fftSize)
	}
	e.resetWeights()

	return e, nil
}

// ProcessFrame beamforms one multichannel frame toward dir into dst, which
// must be a mono frame of the configured length. Numerical edge cases
// (silence, ill-conditioned correlation) degrade to uniform weights and
// never fail the call.
func (e *Engine) ProcessFrame(dst, src *frame.Frame, dir geom.Direction) error {
	if err := src.Match(e.shape); err != nil {
		return fmt.Errorf("beamform: input %w", err)
	}

	if err := dst.Match(frame.Shape{Channels: 1, Length: e.shape.Length}); err != nil {
		return fmt.Errorf("beamform: output %w", err)
	}

	if err := dir.Validate(); err != nil {
		return fmt.Errorf("beamform: steering %w", err)
	}

	e.emphasize(src)

	if e.workers != nil {
		if err := e.workers.ForwardReal(e.spectra, e.emphasized); err != nil {
			return fmt.Errorf("beamform: forward transform: %w", err)
		}
	} else {
		for ch := range e.n {
			if err := e.plan.ForwardReal(e.spectra[ch], e.emphasized[ch]); err != nil {
				return fmt.Errorf("beamform: forward transform: %w", err)
			}
		}
	}

	e.ensureSteering(dir)
	fallbacks, resets := e.adaptAndCombine()

	spectral.MirrorHermitian(e.outSpec)
	if err := e.plan.InverseReal(dst.Data[0], e.outSpec); err != nil {
		return fmt.Errorf("beamform: inverse transform: %w", err)
	}

	e.deEmphasize(dst.Data[0])

	if peak := spectral.PeakAbs(dst.Data[0]); peak > 1 {
		spectral.Scale(dst.Data[0], 1/peak)
	}

	dst.SampleRate = src.SampleRate
	dst.Timestamp = src.Timestamp

	if resets > 0 {
		e.weightResets.Add(uint64(resets))
	}
	if fallbacks > 0 {
		e.fallbackBins.Add(uint64(fallbacks))
	}
	if resets > 0 && time.Since(e.lastWarn) >= warnInterval {
		e.lastWarn = time.Now()
		e.logger.Warn("beamform weights reset to uniform after non-finite solve",
			"bins", resets, "fallbackBins", fallbacks)
	}

	e.sanitizeState()

	return nil
}

// sanitizeState flushes non-finite carried filter state so one corrupt
// input frame cannot poison every following frame through the recursive
// emphasis and noise-floor filters.
func (e *Engine) sanitizeState() {
	for ch, v := range e.preState {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			e.preState[ch] = 0
		}
	}
	if math.IsNaN(e.deState) || math.IsInf(e.deState, 0) {
		e.deState = 0
	}
	for bin, v := range e.noiseFloor {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			e.noiseFloor[bin] = 0
		}
	}
}

// SetGeometry atomically replaces the microphone geometry, rebuilds the
// steering cache on next use, and resets the weight bank to the uniform
// prior. The microphone count cannot change once configured.
func (e *Engine) SetGeometry(geometry ArrayGeometry) error {
	if geometry.Len() != e.n {
		return fmt.Errorf("%w: %d microphones for %d channels", ErrChannelMismatch, geometry.Len(), e.n)
	}

	for i := range geometry.positions {
		if !geometry.positions[i].IsFinite() {
			return fmt.Errorf("%w: position %d is not finite", ErrGeometry, i)
		}
	}

	e.geometry = geometry
	e.steerOK = false
	e.resetWeights()

	return nil
}

// Reset restores the uniform weight prior and clears all filter state.
func (e *Engine) Reset() {
	e.resetWeights()

	for bin := range e.noiseFloor {
		e.noiseFloor[bin] = 0
	}

	for ch := range e.preState {
		e.preState[ch] = 0
	}
	e.deState = 0
}

// Geometry returns the active geometry snapshot.
func (e *Engine) Geometry() ArrayGeometry { return e.geometry }

// TransformSize returns the engine's FFT size.
func (e *Engine) TransformSize() int { return e.fftSize }

// NoiseFloor returns the mean smoothed per-bin noise power in dB.
// Returns -Inf before any frame has been processed.
func (e *Engine) NoiseFloor() float64 {
	sum := 0.0
	for _, p := range e.noiseFloor {
		sum += p
	}
	return spectral.PowerToDB(sum / float64(len(e.noiseFloor)))
}

// FallbackCount returns the total number of bins that relaxed to the
// uniform prior because of silence or an ill-conditioned correlation.
func (e *Engine) FallbackCount() uint64 { return e.fallbackBins.Load() }

// WeightResetCount returns the total number of bins hard-reset after a
// non-finite weight solve.
func (e *Engine) WeightResetCount() uint64 { return e.weightResets.Load() }

// WeightsSnapshot returns a copy of the adaptive weight bank, laid out as
// (fftSize/2+1) rows of one weight per microphone. Diagnostic only; it may
// observe a frame's update in progress.
func (e *Engine) WeightsSnapshot() []complex128 {
	out := make([]complex128, len(e.weights))
	copy(out, e.weights)
	return out
}

// BeamPattern returns the 360-point directivity magnitude of the current
// weight bank at the bin closest to freqHz, sampled per degree of azimuth
// in the horizontal plane. Diagnostic only, not on the processing path.
func (e *Engine) BeamPattern(freqHz float64) []float64 {
	bin := int(math.Round(freqHz * float64(e.fftSize) / e.sampleRate))
	bin = int(frame.Clamp(float64(bin), 0, float64(e.half)))
	binFreq := e.plan.BinFrequency(bin, e.sampleRate)

	pattern := make([]float64, beamPatternPoints)
	a := make([]complex128, e.n)
	w := e.weights[bin*e.n : (bin+1)*e.n]

	for deg := range beamPatternPoints {
		dir := geom.Direction{Azimuth: float64(deg), Distance: patternDistance}
		e.geometry.SteeringVector(a, dir, binFreq, frame.SpeedOfSound)

		sum := complex(0, 0)
		for m := range e.n {
			sum += w[m] * a[m]
		}
		re, im := real(sum), imag(sum)
		pattern[deg] = math.Sqrt(re*re + im*im)
	}

	return pattern
}

func (e *Engine) resetWeights() {
	uniform := complex(1/float64(e.n), 0)
	for i := range e.weights {
		e.weights[i] = uniform
	}
}

// emphasize applies first-order pre-emphasis per channel into scratch,
// carrying the last input sample of each channel across frames.
func (e *Engine) emphasize(src *frame.Frame) {
	alpha := e.preEmphasis
	for ch := range e.n {
		in := src.Data[ch]
		out := e.emphasized[ch]
		prev := e.preState[ch]
		for i := range in {
			out[i] = in[i] - alpha*prev
			prev = in[i]
		}
		e.preState[ch] = prev
	}
}

// deEmphasize inverts the pre-emphasis on the combined output, carrying
// the last output sample across frames.
func (e *Engine) deEmphasize(out []float64) {
	alpha := e.preEmphasis
	prev := e.deState
	for i := range out {
		out[i] += alpha * prev
		prev = out[i]
	}
	e.deState = prev
}

func (e *Engine) ensureSteering(dir geom.Direction) {
	if e.steerOK && dir == e.steerDir {
		return
	}
	for bin := 0; bin <= e.half; bin++ {
		freq := e.plan.BinFrequency(bin, e.sampleRate)
		e.geometry.SteeringVector(e.steering[bin*e.n:(bin+1)*e.n], dir, freq, frame.SpeedOfSound)
	}
	e.steerDir = dir
	e.steerOK = true
}

// adaptAndCombine runs the per-bin MVDR update and combine over the lower
// spectrum half, writing the beamformed bins into outSpec. It returns the
// number of uniform fallbacks and hard weight resets in this frame.
func (e *Engine) adaptAndCombine() (fallbacks, resets int) {
	n := e.n
	rate := e.adaptationRate
	uniform := complex(1/float64(n), 0)

	for bin := 0; bin <= e.half; bin++ {
		trace := 0.0
		for m := range n {
			x := e.spectra[m][bin]
			e.xvec[m] = x
			re, im := real(x), imag(x)
			trace += re*re + im*im
		}

		e.noiseFloor[bin] = e.noiseSmoothing*e.noiseFloor[bin] +
			(1-e.noiseSmoothing)*trace/float64(n)

		solved := false
		if trace > minSignalTrace {
			correlationInto(e.rmat, e.xvec, e.diagonalLoading)
			a := e.steering[bin*n : (bin+1)*n]
			solved = e.solver.Solve(e.wnew, e.rmat, a)
		}

		w := e.weights[bin*n : (bin+1)*n]
		switch {
		case solved && finiteWeights(e.wnew):
			// Store the conjugate so the combine below is a plain
			// multiply-accumulate while keeping wᴴa = 1.
			for m := range n {
				conj := complex(real(e.wnew[m]), -imag(e.wnew[m]))
				w[m] += complex(rate, 0) * (conj - w[m])
			}
		case solved:
			for m := range n {
				w[m] = uniform
			}
			resets++
		default:
			for m := range n {
				w[m] += complex(rate, 0) * (uniform - w[m])
			}
			fallbacks++
		}

		sum := complex(0, 0)
		for m := range n {
			sum += w[m] * e.xvec[m]
		}
		e.outSpec[bin] = sum
	}

	return fallbacks, resets
}

func finiteWeights(w []complex128) bool {
	for _, c := range w {
		if !isFiniteComplex(c) {
			return false
		}
	}
	return true
}
