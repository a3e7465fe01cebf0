package hrtf

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

const warnInterval = time.Second

// SpatializerOption mutates construction-time parameters.
type SpatializerOption func(*spatializerConfig) error

type spatializerConfig struct {
	mode   Interpolation
	logger *slog.Logger
}

func defaultSpatializerConfig() spatializerConfig {
	return spatializerConfig{mode: InterpolationBilinear}
}

// WithInterpolation sets the reconstruction mode used for directions
// between dataset grid points.
func WithInterpolation(mode Interpolation) SpatializerOption {
	return func(cfg *spatializerConfig) error {
		if !mode.Valid() {
			return fmt.Errorf("hrtf: unknown interpolation mode %d", int(mode))
		}

		cfg.mode = mode

		return nil
	}
}

// WithLogger sets the logger for non-fatal quality warnings.
func WithLogger(l *slog.Logger) SpatializerOption {
	return func(cfg *spatializerConfig) error {
		cfg.logger = l
		return nil
	}
}

// Spatializer renders mono frames as binaural stereo by convolving the
// input with the interpolated dataset response for the listener-relative
// source direction.
//
// Convolution runs in the frequency domain at twice the pipeline transform
// size, which leaves headroom for linear convolution; the inter-frame tail
// is carried by overlap-add so output frames keep the input length. Render
// runs on a single goroutine; the pose passed to each call is a snapshot,
// so pose updates take effect only at frame boundaries.
type Spatializer struct {
	sampleRate float64
	shape      frame.Shape
	renderSize int
	plan       *spectral.Plan
	mode       Interpolation
	logger     *slog.Logger

	dataset *Dataset

	irLeft  []float64
	irRight []float64
	basis   []float64
	inSpec  []complex128
	irSpec  []complex128
	work    []complex128
	conv    []float64
	tail    [2][]float64
	tailLen int

	clampedPositions atomic.Uint64
	lastWarn         time.Time
}

// NewSpatializer creates a spatializer for mono frames of the given shape.
// A dataset must be attached with LoadDataset or UseDataset before Render.
func NewSpatializer(sampleRate float64, shape frame.Shape, opts ...SpatializerOption) (*Spatializer, error) {
	if sampleRate <= 0 || math.IsNaN(sampleRate) || math.IsInf(sampleRate, 0) {
		return nil, fmt.Errorf("hrtf sample rate must be > 0 and finite: %f", sampleRate)
	}

	if err := shape.Validate(); err != nil {
		return nil, err
	}

	if shape.Channels != 1 {
		return nil, fmt.Errorf("hrtf input must be mono, got %d channels", shape.Channels)
	}

	cfg := defaultSpatializerConfig()

	for _, opt := range opts {
		if opt == nil {
			continue
		}

		err := opt(&cfg)
		if err != nil {
			return nil, err
		}
	}

	renderSize := 2 * shape.TransformSize()

	plan, err := spectral.NewPlan(renderSize)
	if err != nil {
		return nil, err
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Spatializer{
		sampleRate: sampleRate,
		shape:      shape,
		renderSize: renderSize,
		plan:       plan,
		mode:       cfg.mode,
		logger:     logger,
		basis:      make([]float64, shCoefficients()),
		inSpec:     make([]complex128, renderSize),
		irSpec:     make([]complex128, renderSize),
		work:       make([]complex128, renderSize),
		conv:       make([]float64, renderSize),
	}, nil
}

// LoadDataset resolves the named dataset at the spatializer's sample rate
// and attaches it.
func (s *Spatializer) LoadDataset(name string) error {
	ds, err := LoadDataset(name, s.sampleRate)
	if err != nil {
		return err
	}
	return s.UseDataset(ds)
}

// UseDataset attaches an already loaded dataset, sharing it read-only with
// any other spatializer holding the same pointer. The dataset sample rate
// must match and its responses must fit the render headroom.
func (s *Spatializer) UseDataset(ds *Dataset) error {
	if ds == nil {
		return fmt.Errorf("%w: nil dataset", ErrDataset)
	}
	if ds.SampleRate() != s.sampleRate {
		return fmt.Errorf("%w: dataset rate %g does not match pipeline rate %g",
			ErrDataset, ds.SampleRate(), s.sampleRate)
	}
	if maxIR := s.renderSize - s.shape.Length + 1; ds.IRLength() > maxIR {
		return fmt.Errorf("%w: response length %d exceeds render headroom %d",
			ErrDataset, ds.IRLength(), maxIR)
	}

	s.dataset = ds
	s.irLeft = make([]float64, ds.IRLength())
	s.irRight = make([]float64, ds.IRLength())
	s.tailLen = ds.IRLength() - 1
	for ear := range s.tail {
		s.tail[ear] = make([]float64, s.tailLen)
	}

	return nil
}

// Dataset returns the attached dataset, nil before loading.
func (s *Spatializer) Dataset() *Dataset { return s.dataset }

// Mode returns the active interpolation mode.
func (s *Spatializer) Mode() Interpolation { return s.mode }

// SetInterpolation switches the reconstruction mode. Applied between
// frames by the orchestrator; not safe concurrently with Render.
func (s *Spatializer) SetInterpolation(mode Interpolation) error {
	if !mode.Valid() {
		return fmt.Errorf("hrtf: unknown interpolation mode %d", int(mode))
	}
	s.mode = mode
	return nil
}

// ClampCount returns how many rendered frames had their position clamped
// to the dataset boundary.
func (s *Spatializer) ClampCount() uint64 { return s.clampedPositions.Load() }

// Reset clears the carried convolution tails.
func (s *Spatializer) Reset() {
	for ear := range s.tail {
		for i := range s.tail[ear] {
			s.tail[ear][i] = 0
		}
	}
}

// Render spatializes one mono frame at the posed source direction into
// dst, which must be a stereo frame of the configured length. Out-of-range
// positions clamp to the dataset boundary with a throttled warning; only a
// missing dataset or a shape violation fails the call.
func (s *Spatializer) Render(dst, src *frame.Frame, pose geom.Pose) error {
	if s.dataset == nil {
		return ErrNotInitialized
	}

	if err := src.Match(s.shape); err != nil {
		return fmt.Errorf("hrtf: input %w", err)
	}

	if err := dst.Match(frame.Shape{Channels: 2, Length: s.shape.Length}); err != nil {
		return fmt.Errorf("hrtf: output %w", err)
	}

	if err := pose.Validate(); err != nil {
		return fmt.Errorf("hrtf: pose %w", err)
	}

	rel := pose.Relative()
	if _, _, _, clamped := s.dataset.clamp(rel.Azimuth, rel.Elevation, rel.Distance); clamped {
		s.clampedPositions.Add(1)
		if time.Since(s.lastWarn) >= warnInterval {
			s.lastWarn = time.Now()
			s.logger.Warn("hrtf position clamped to dataset boundary",
				"azimuth", rel.Azimuth, "elevation", rel.Elevation, "distance", rel.Distance)
		}
	}

	if err := s.dataset.interpolateInto(s.irLeft, s.irRight, rel, s.mode, s.basis); err != nil {
		return err
	}

	if err := s.plan.ForwardReal(s.inSpec, src.Data[0]); err != nil {
		return fmt.Errorf("hrtf: forward transform: %w", err)
	}

	if err := s.renderEar(dst.Data[0], s.irLeft, 0); err != nil {
		return err
	}
	if err := s.renderEar(dst.Data[1], s.irRight, 1); err != nil {
		return err
	}

	dst.SampleRate = src.SampleRate
	dst.Timestamp = src.Timestamp

	return nil
}

// renderEar convolves the transformed input with one ear's response and
// overlap-adds the carried tail so successive frames join seamlessly.
func (s *Spatializer) renderEar(out, ir []float64, ear int) error {
	if err := s.plan.ForwardReal(s.irSpec, ir); err != nil {
		return fmt.Errorf("hrtf: response transform: %w", err)
	}

	for i := range s.work {
		s.work[i] = s.inSpec[i] * s.irSpec[i]
	}

	if err := s.plan.InverseReal(s.conv, s.work); err != nil {
		return fmt.Errorf("hrtf: inverse transform: %w", err)
	}

	length := s.shape.Length
	tail := s.tail[ear]
	for i := range tail {
		s.conv[i] += tail[i]
	}
	copy(out, s.conv[:length])
	copy(tail, s.conv[length:length+s.tailLen])

	return nil
}
