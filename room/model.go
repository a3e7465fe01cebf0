package room

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/cwbudde/algo-spatial/frame"
	"github.com/cwbudde/algo-spatial/spectral"
)

// Errors returned by room configuration.
var ErrParameters = errors.New("room: invalid room parameters")

const (
	defaultMaxOrder = 8
	maxMaxOrder     = 12

	sabineConstant = 0.161
	decayConstant  = 13.82

	// Floor for the mean absorption so a perfectly reflective room yields a
	// large finite reverberation time instead of dividing by zero.
	minMeanAbsorption = 1e-4

	defaultWidth  = 5.0
	defaultHeight = 3.0
	defaultDepth  = 4.0
)

// Option mutates construction-time parameters.
type Option func(*modelConfig) error

type modelConfig struct {
	maxOrder int
	logger   *slog.Logger
}

func defaultModelConfig() modelConfig {
	return modelConfig{maxOrder: defaultMaxOrder}
}

// WithMaxReflectionOrder sets the highest image-source reflection order in
// [1, 12]. Higher orders trade longer recomputation for a denser tail.
func WithMaxReflectionOrder(order int) Option {
	return func(cfg *modelConfig) error {
		if order < 1 || order > maxMaxOrder {
			return fmt.Errorf("room max reflection order must be in [1, %d]: %d", maxMaxOrder, order)
		}

		cfg.maxOrder = order

		return nil
	}
}

// WithLogger sets the logger used for recompute diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(cfg *modelConfig) error {
		cfg.logger = l
		return nil
	}
}

// Model synthesizes and applies the reverberant response of a rectangular
// room. Dimensions are width (x), height (z), and depth (y) in meters.
//
// ProcessFrame only multiplies the cached transfer function; all derivation
// runs inside SetRoomParameters. A Model is used by a single processing
// goroutine; the orchestrator swaps in a freshly derived Model when room
// parameters change.
type Model struct {
	sampleRate float64
	length     int
	fftSize    int
	half       int
	plan       *spectral.Plan
	maxOrder   int
	logger     *slog.Logger

	dims      [3]float64
	materials [surfaceCount]Material

	volume      float64
	surfaceArea float64
	rt60        []float64 // half+1 per-bin Sabine reverberation times
	airAbs      []float64 // half+1 per-bin air absorption, nepers/m
	reflection  []float64 // half+1 per-bin reflection-decay coefficients
	impulse     []float64 // fftSize shaped impulse response
	transfer    []complex128
	gain        float64

	spec []complex128
}

// NewModel creates a room model for mono or stereo frames of the given
// shape, starting from the default 5 m x 3 m x 4 m room with the default
// material on every surface.
func NewModel(sampleRate float64, shape frame.Shape, opts ...Option) (*Model, error) {
	if sampleRate <= 0 || math.IsNaN(sampleRate) || math.IsInf(sampleRate, 0) {
		return nil, fmt.Errorf("room sample rate must be > 0 and finite: %f", sampleRate)
	}

	if err := shape.Validate(); err != nil {
		return nil, err
	}

	if shape.Channels > 2 {
		return nil, fmt.Errorf("%w: room input must be mono or stereo, got %d channels",
			ErrParameters, shape.Channels)
	}

	cfg := defaultModelConfig()

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

	plan, err := spectral.NewPlan(fftSize)
	if err != nil {
		return nil, err
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	half := fftSize / 2

	m := &Model{
		sampleRate: sampleRate,
		length:     shape.Length,
		fftSize:    fftSize,
		half:       half,
		plan:       plan,
		maxOrder:   cfg.maxOrder,
		logger:     logger,
		rt60:       make([]float64, half+1),
		airAbs:     make([]float64, half+1),
		reflection: make([]float64, half+1),
		impulse:    make([]float64, fftSize),
		transfer:   make([]complex128, fftSize),
		gain:       1 / float64(cfg.maxOrder),
		spec:       make([]complex128, fftSize),
	}

	defaults := [3]float64{defaultWidth, defaultHeight, defaultDepth}
	if err := m.SetRoomParameters(defaults, nil); err != nil {
		return nil, err
	}

	return m, nil
}

// SetRoomParameters validates the dimensions and per-surface materials,
// then rederives the reverberation model. Surfaces absent from materials
// keep the default material. A failed call leaves the previous valid
// parameters active; this method is not on the per-frame path.
func (m *Model) SetRoomParameters(dims [3]float64, materials map[Surface]Material) error {
	for axis, d := range dims {
		if d <= 0 || math.IsNaN(d) || math.IsInf(d, 0) {
			return fmt.Errorf("%w: dimension %d must be positive and finite: %f", ErrParameters, axis, d)
		}
	}

	var staged [surfaceCount]Material
	for s := range surfaceCount {
		staged[s] = DefaultMaterial()
	}
	for s, mat := range materials {
		if s < 0 || s >= surfaceCount {
			return fmt.Errorf("%w: unknown surface %d", ErrParameters, int(s))
		}
		if err := mat.Validate(); err != nil {
			return fmt.Errorf("%s material: %w", s, err)
		}
		staged[s] = mat
	}

	m.dims = dims
	m.materials = staged
	m.recompute()

	return nil
}

// recompute rederives every cached quantity from the current parameters:
// volume and surface area, per-bin mean absorption and Sabine RT60, air
// absorption, the reflection-decay spectrum, the image-source impulse
// response, and the transfer function the frame path multiplies with.
func (m *Model) recompute() {
	w, h, d := m.dims[0], m.dims[1], m.dims[2]
	m.volume = w * h * d

	areas := [surfaceCount]float64{
		SurfaceFloor:     w * d,
		SurfaceCeiling:   w * d,
		SurfaceWallFront: w * h,
		SurfaceWallBack:  w * h,
		SurfaceWallLeft:  d * h,
		SurfaceWallRight: d * h,
	}
	m.surfaceArea = 0
	for _, a := range areas {
		m.surfaceArea += a
	}

	for bin := 0; bin <= m.half; bin++ {
		freq := m.plan.BinFrequency(bin, m.sampleRate)

		weighted := 0.0
		for s := range surfaceCount {
			weighted += areas[s] * m.materials[s].absorptionAt(freq)
		}
		mean := weighted / m.surfaceArea
		if mean < minMeanAbsorption {
			mean = minMeanAbsorption
		}

		m.rt60[bin] = sabineConstant * m.volume / (m.surfaceArea * mean)
		m.airAbs[bin] = AirAbsorption(freq)
		m.reflection[bin] = math.Exp(-decayConstant * m.airAbs[bin] * m.rt60[bin])
	}

	imageSourceInto(m.impulse, m.dims, m.maxOrder, m.sampleRate)

	// Shape the raw image-source spectrum by the reflection-decay
	// coefficients; the result is the cached room transfer function.
	if err := m.plan.ForwardReal(m.spec, m.impulse); err != nil {
		m.logger.Error("room transfer derivation failed", "err", err)
		return
	}
	for bin := 0; bin <= m.half; bin++ {
		m.transfer[bin] = m.spec[bin] * complex(m.reflection[bin], 0)
	}
	for bin := m.half + 1; bin < m.fftSize; bin++ {
		m.transfer[bin] = m.spec[bin] * complex(m.reflection[m.fftSize-bin], 0)
	}

	// Keep the shaped time-domain response for analysis and diagnostics.
	if err := m.plan.InverseReal(m.impulse, m.transfer); err != nil {
		m.logger.Error("room impulse derivation failed", "err", err)
		return
	}

	m.logger.Debug("room model recomputed",
		"volume", m.volume,
		"surface", m.surfaceArea,
		"rt60_1k", m.ReverbTime(1000),
		"maxOrder", m.maxOrder)
}

// ProcessFrame applies the cached room transfer function to src into dst.
// Both frames must share the configured shape; the input is zero-padded to
// the transform size internally and truncated back on exit. The fixed gain
// compensation 1/maxOrder bounds reflection buildup.
func (m *Model) ProcessFrame(dst, src *frame.Frame) error {
	shape := src.Shape()
	if shape.Length != m.length || shape.Channels < 1 || shape.Channels > 2 {
		return fmt.Errorf("room: input %w: got %dx%d, want 1..2x%d",
			frame.ErrShapeMismatch, shape.Channels, shape.Length, m.length)
	}

	if err := dst.Match(shape); err != nil {
		return fmt.Errorf("room: output %w", err)
	}

	for ch := range shape.Channels {
		if err := m.plan.ForwardReal(m.spec, src.Data[ch]); err != nil {
			return fmt.Errorf("room: forward transform: %w", err)
		}
		for i := range m.spec {
			m.spec[i] *= m.transfer[i]
		}
		if err := m.plan.InverseReal(dst.Data[ch], m.spec); err != nil {
			return fmt.Errorf("room: inverse transform: %w", err)
		}
		spectral.Scale(dst.Data[ch], m.gain)
	}

	dst.SampleRate = src.SampleRate
	dst.Timestamp = src.Timestamp

	return nil
}

// Dimensions returns the active room dimensions.
func (m *Model) Dimensions() [3]float64 { return m.dims }

// MaterialFor returns the material assigned to the given surface.
func (m *Model) MaterialFor(s Surface) Material {
	if s < 0 || s >= surfaceCount {
		return DefaultMaterial()
	}
	return m.materials[s]
}

// Volume returns the room volume in cubic meters.
func (m *Model) Volume() float64 { return m.volume }

// SurfaceArea returns the total boundary area in square meters.
func (m *Model) SurfaceArea() float64 { return m.surfaceArea }

// MaxOrder returns the highest image-source reflection order.
func (m *Model) MaxOrder() int { return m.maxOrder }

// ReverbTime returns the Sabine reverberation time in seconds at the bin
// closest to freqHz.
func (m *Model) ReverbTime(freqHz float64) float64 {
	return m.rt60[m.binFor(freqHz)]
}

// AirAbsorptionAt returns the derived air-absorption coefficient in
// nepers per meter at the bin closest to freqHz.
func (m *Model) AirAbsorptionAt(freqHz float64) float64 {
	return m.airAbs[m.binFor(freqHz)]
}

// ReflectionCoefficient returns the derived reflection-decay coefficient at
// the bin closest to freqHz.
func (m *Model) ReflectionCoefficient(freqHz float64) float64 {
	return m.reflection[m.binFor(freqHz)]
}

// ImpulseResponse returns a copy of the shaped room impulse response at the
// transform size. Diagnostic only.
func (m *Model) ImpulseResponse() []float64 {
	out := make([]float64, len(m.impulse))
	copy(out, m.impulse)
	return out
}

func (m *Model) binFor(freqHz float64) int {
	bin := int(math.Round(freqHz * float64(m.fftSize) / m.sampleRate))
	return int(frame.Clamp(float64(bin), 0, float64(m.half)))
}
