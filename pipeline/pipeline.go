package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/cwbudde/algo-spatial/beamform"
	"github.com/cwbudde/algo-spatial/frame"
	"github.com/cwbudde/algo-spatial/geom"
	"github.com/cwbudde/algo-spatial/hrtf"
	"github.com/cwbudde/algo-spatial/internal/observe"
	"github.com/cwbudde/algo-spatial/room"
)

// Errors returned by lifecycle and configuration operations.
var (
	ErrConfiguration = errors.New("pipeline: invalid configuration")
	ErrLifecycle     = errors.New("pipeline: operation not allowed in current state")
)

const warnInterval = time.Second

// State is the pipeline lifecycle state.
type State int32

const (
	StateUninitialized State = iota
	StateConfigured
	StateRunning
	StateReconfiguring
	StateShutdown
)

var stateNames = map[State]string{
	StateUninitialized: "uninitialized",
	StateConfigured:    "configured",
	StateRunning:       "running",
	StateReconfiguring: "reconfiguring",
	StateShutdown:      "shutdown",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Config carries the construction-time parameters of a pipeline.
type Config struct {
	// SampleRate in Hz, shared by every stage.
	SampleRate float64

	// Shape is the input frame geometry. One channel bypasses the
	// beamformer; more channels require matching array geometry at
	// Configure time.
	Shape frame.Shape

	// LatencyBudget is the soft per-frame deadline. Zero selects
	// frame.DefaultLatencyBudget.
	LatencyBudget time.Duration

	// Interpolation selects the HRTF reconstruction mode.
	Interpolation hrtf.Interpolation

	// MaxReflectionOrder bounds the image-source model. Zero selects the
	// room package default.
	MaxReflectionOrder int
}

// Option mutates construction-time parameters.
type Option func(*pipelineConfig) error

type pipelineConfig struct {
	logger  *slog.Logger
	metrics *observe.Metrics
	window  int
}

func defaultPipelineConfig() pipelineConfig {
	return pipelineConfig{window: defaultLatencyWindow}
}

// WithLogger sets the logger for lifecycle events and quality warnings.
func WithLogger(l *slog.Logger) Option {
	return func(cfg *pipelineConfig) error {
		cfg.logger = l
		return nil
	}
}

// WithMetrics records OTel instruments on the given set instead of the
// process-wide default.
func WithMetrics(m *observe.Metrics) Option {
	return func(cfg *pipelineConfig) error {
		cfg.metrics = m
		return nil
	}
}

// WithLatencyWindow sets how many recent frames feed the latency
// percentiles.
func WithLatencyWindow(n int) Option {
	return func(cfg *pipelineConfig) error {
		if n < 2 {
			return fmt.Errorf("%w: latency window must hold at least 2 frames, got %d", ErrConfiguration, n)
		}
		cfg.window = n
		return nil
	}
}

// roomUpdate is a validated room-parameter snapshot awaiting application.
type roomUpdate struct {
	dims      [3]float64
	materials map[room.Surface]room.Material
}

// Pipeline chains beamforming, room acoustics, and binaural rendering over
// frames of one fixed shape.
type Pipeline struct {
	id     string
	cfg    Config
	budget time.Duration

	logger  *slog.Logger
	metrics *observe.Metrics

	state      atomic.Int32
	processing atomic.Bool

	engine      *beamform.Engine
	model       *room.Model
	spatializer *hrtf.Spatializer

	// Control-path snapshots, applied by the processing goroutine at the
	// next frame boundary.
	pose            atomic.Pointer[geom.Pose]
	pendingGeometry atomic.Pointer[beamform.ArrayGeometry]
	pendingRoom     atomic.Pointer[roomUpdate]

	beamOut *frame.Frame
	roomOut *frame.Frame

	stats    *latencyWindow
	snapshot atomic.Pointer[Snapshot]

	lastFallbacks uint64
	lastClamps    uint64
	overruns      uint64
	lastWarn      time.Time
}

// New creates an unconfigured pipeline. Configure must be called before
// the first frame.
func New(cfg Config, opts ...Option) (*Pipeline, error) {
	if cfg.SampleRate <= 0 || math.IsNaN(cfg.SampleRate) || math.IsInf(cfg.SampleRate, 0) {
		return nil, fmt.Errorf("%w: sample rate must be > 0 and finite: %f", ErrConfiguration, cfg.SampleRate)
	}
	if err := cfg.Shape.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	if !cfg.Interpolation.Valid() {
		return nil, fmt.Errorf("%w: unknown interpolation mode %d", ErrConfiguration, int(cfg.Interpolation))
	}
	if cfg.LatencyBudget < 0 {
		return nil, fmt.Errorf("%w: latency budget must not be negative: %s", ErrConfiguration, cfg.LatencyBudget)
	}

	pcfg := defaultPipelineConfig()
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&pcfg); err != nil {
			return nil, err
		}
	}

	budget := cfg.LatencyBudget
	if budget == 0 {
		budget = frame.DefaultLatencyBudget
	}

	logger := pcfg.logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := pcfg.metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}

	id := uuid.NewString()
	p := &Pipeline{
		id:      id,
		cfg:     cfg,
		budget:  budget,
		logger:  logger.With("pipeline", id),
		metrics: metrics,
		stats:   newLatencyWindow(pcfg.window),
	}
	p.state.Store(int32(StateUninitialized))

	defaultPose := geom.Pose{Direction: geom.Direction{Azimuth: 0, Elevation: 0, Distance: 1}}
	p.pose.Store(&defaultPose)

	return p, nil
}

// ID returns the pipeline's unique instance identifier.
func (p *Pipeline) ID() string { return p.id }

// State returns the current lifecycle state.
func (p *Pipeline) State() State { return State(p.state.Load()) }

// Configure builds the processing stages: microphone positions for the
// beamformer (ignored for mono input, required otherwise) and the HRTF
// dataset name. Allowed once, from the uninitialized state.
func (p *Pipeline) Configure(positions []geom.Vec3, datasetName string) error {
	if s := p.State(); s != StateUninitialized {
		return fmt.Errorf("%w: configure in state %s", ErrLifecycle, s)
	}

	mono := frame.Shape{Channels: 1, Length: p.cfg.Shape.Length}

	if p.cfg.Shape.Channels > 1 {
		geometry, err := beamform.NewArrayGeometry(positions)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrConfiguration, err)
		}
		engine, err := beamform.NewEngine(p.cfg.SampleRate, p.cfg.Shape, geometry,
			beamform.WithLogger(p.logger))
		if err != nil {
			return fmt.Errorf("%w: %v", ErrConfiguration, err)
		}
		p.engine = engine
		p.beamOut = frame.New(mono, p.cfg.SampleRate)
	} else if len(positions) > 0 {
		return fmt.Errorf("%w: array geometry given for mono input", ErrConfiguration)
	}

	var roomOpts []room.Option
	if p.cfg.MaxReflectionOrder > 0 {
		roomOpts = append(roomOpts, room.WithMaxReflectionOrder(p.cfg.MaxReflectionOrder))
	}
	roomOpts = append(roomOpts, room.WithLogger(p.logger))
	model, err := room.NewModel(p.cfg.SampleRate, mono, roomOpts...)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	p.model = model
	p.roomOut = frame.New(mono, p.cfg.SampleRate)

	sp, err := hrtf.NewSpatializer(p.cfg.SampleRate, mono,
		hrtf.WithInterpolation(p.cfg.Interpolation),
		hrtf.WithLogger(p.logger))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	if err := sp.LoadDataset(datasetName); err != nil {
		return err
	}
	p.spatializer = sp

	p.state.Store(int32(StateConfigured))
	p.logger.Info("pipeline configured",
		"channels", p.cfg.Shape.Channels,
		"frameLength", p.cfg.Shape.Length,
		"sampleRate", p.cfg.SampleRate,
		"dataset", datasetName)

	return nil
}

// UpdatePose publishes a new source/listener pose. Takes effect at the
// next frame boundary.
func (p *Pipeline) UpdatePose(pose geom.Pose) error {
	if s := p.State(); s == StateUninitialized || s == StateShutdown {
		return fmt.Errorf("%w: update pose in state %s", ErrLifecycle, s)
	}
	if err := pose.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	p.pose.Store(&pose)
	return nil
}

// Pose returns the most recently published pose.
func (p *Pipeline) Pose() geom.Pose { return *p.pose.Load() }

// UpdateRoomParameters validates new room dimensions and materials and
// publishes them for application at the next frame boundary. On validation
// failure the previous room state is retained.
func (p *Pipeline) UpdateRoomParameters(dims [3]float64, materials map[room.Surface]room.Material) error {
	if s := p.State(); s == StateUninitialized || s == StateShutdown {
		return fmt.Errorf("%w: update room in state %s", ErrLifecycle, s)
	}

	for axis, d := range dims {
		if d <= 0 || math.IsNaN(d) || math.IsInf(d, 0) {
			return fmt.Errorf("%w: room dimension %d must be positive and finite: %f", ErrConfiguration, axis, d)
		}
	}
	staged := make(map[room.Surface]room.Material, len(materials))
	for surface, material := range materials {
		if err := material.Validate(); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrConfiguration, surface, err)
		}
		staged[surface] = material
	}

	p.pendingRoom.Store(&roomUpdate{dims: dims, materials: staged})
	return nil
}

// UpdateArrayGeometry validates a new microphone layout and publishes it
// for application at the next frame boundary. The microphone count cannot
// change. Fails for mono pipelines, which carry no beamformer.
func (p *Pipeline) UpdateArrayGeometry(positions []geom.Vec3) error {
	if s := p.State(); s == StateUninitialized || s == StateShutdown {
		return fmt.Errorf("%w: update geometry in state %s", ErrLifecycle, s)
	}
	if p.engine == nil {
		return fmt.Errorf("%w: mono pipeline has no array geometry", ErrConfiguration)
	}
	if len(positions) != p.cfg.Shape.Channels {
		return fmt.Errorf("%w: %d positions for %d channels", ErrConfiguration, len(positions), p.cfg.Shape.Channels)
	}

	geometry, err := beamform.NewArrayGeometry(positions)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	p.pendingGeometry.Store(&geometry)
	return nil
}

// ProcessFrame runs one frame through the full chain into dst, a stereo
// frame of the configured length. Quality degradations (budget overrun,
// solver fallback, clamped position) surface as metrics and throttled
// warnings, never as errors; only contract violations fail the call.
func (p *Pipeline) ProcessFrame(dst, src *frame.Frame) error {
	switch s := p.State(); s {
	case StateUninitialized:
		return fmt.Errorf("%w: process in state %s", ErrLifecycle, s)
	case StateShutdown:
		return fmt.Errorf("%w: process after shutdown", ErrLifecycle)
	}

	p.processing.Store(true)
	defer p.processing.Store(false)

	// Shutdown may have won the race before the flag was visible.
	if p.State() == StateShutdown {
		return fmt.Errorf("%w: process after shutdown", ErrLifecycle)
	}

	if err := src.Match(p.cfg.Shape); err != nil {
		return fmt.Errorf("pipeline: input %w", err)
	}
	if err := dst.Match(frame.Shape{Channels: 2, Length: p.cfg.Shape.Length}); err != nil {
		return fmt.Errorf("pipeline: output %w", err)
	}

	p.applyPending()
	if p.state.CompareAndSwap(int32(StateConfigured), int32(StateRunning)) {
		p.metrics.ActivePipelines.Add(context.Background(), 1)
	}

	start := time.Now()
	pose := *p.pose.Load()

	mono := src
	if p.engine != nil {
		if err := p.engine.ProcessFrame(p.beamOut, src, pose.Direction); err != nil {
			return err
		}
		mono = p.beamOut
	}

	if err := p.model.ProcessFrame(p.roomOut, mono); err != nil {
		return err
	}

	if err := p.spatializer.Render(dst, p.roomOut, pose); err != nil {
		return err
	}

	p.observeFrame(time.Since(start), dst)

	return nil
}

// applyPending applies published configuration snapshots on the processing
// goroutine, passing through the reconfiguring state so observers can see
// the transition.
func (p *Pipeline) applyPending() {
	geometry := p.pendingGeometry.Swap(nil)
	update := p.pendingRoom.Swap(nil)
	if geometry == nil && update == nil {
		return
	}

	prev := p.state.Swap(int32(StateReconfiguring))

	if geometry != nil {
		if err := p.engine.SetGeometry(*geometry); err != nil {
			// Already validated on the control path; a failure here means
			// the snapshot was corrupted, keep the previous geometry.
			p.logger.Warn("geometry update rejected", "err", err)
		}
	}
	if update != nil {
		if err := p.model.SetRoomParameters(update.dims, update.materials); err != nil {
			p.logger.Warn("room update rejected", "err", err)
		}
	}

	p.endReconfigure(prev)
}

// endReconfigure returns the pipeline to the state that preceded the
// reconfiguration. A shutdown that landed during the reconfiguration wins:
// the terminal state is never overwritten.
func (p *Pipeline) endReconfigure(prev int32) {
	p.state.CompareAndSwap(int32(StateReconfiguring), prev)
}

// observeFrame records instruments and republishes the metrics snapshot
// after a completed frame.
func (p *Pipeline) observeFrame(elapsed time.Duration, dst *frame.Frame) {
	ctx := context.Background()
	over := elapsed > p.budget
	p.metrics.RecordFrame(ctx, p.id, elapsed.Seconds(), over)

	if p.engine != nil {
		if fallbacks := p.engine.FallbackCount() + p.engine.WeightResetCount(); fallbacks > p.lastFallbacks {
			p.metrics.WeightFallbacks.Add(ctx, int64(fallbacks-p.lastFallbacks))
			p.lastFallbacks = fallbacks
		}
	}
	if clamps := p.spatializer.ClampCount(); clamps > p.lastClamps {
		p.metrics.ClampedPositions.Add(ctx, int64(clamps-p.lastClamps))
		p.lastClamps = clamps
	}

	if over && time.Since(p.lastWarn) >= warnInterval {
		p.lastWarn = time.Now()
		p.logger.Warn("frame exceeded latency budget",
			"elapsed", elapsed, "budget", p.budget)
	}

	p.publishSnapshot(elapsed, dst)
}

// Shutdown moves the pipeline to its terminal state. It returns after the
// in-flight frame, if any, has completed; every later call on the pipeline
// fails with a lifecycle error. Shutdown is idempotent.
func (p *Pipeline) Shutdown() error {
	prev := State(p.state.Swap(int32(StateShutdown)))
	if prev == StateShutdown {
		return nil
	}

	for p.processing.Load() {
		runtime.Gosched()
	}

	if prev == StateRunning || prev == StateReconfiguring {
		p.metrics.ActivePipelines.Add(context.Background(), -1)
	}

	p.logger.Info("pipeline shut down", "frames", p.stats.Count())
	return nil
}
