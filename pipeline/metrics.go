package pipeline

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/cwbudde/algo-spatial/frame"
)

const defaultLatencyWindow = 256

// Snapshot is a consistent view of the pipeline's quality metrics,
// recomputed after every frame and read wait-free.
type Snapshot struct {
	// Frames is the total number of frames processed.
	Frames uint64

	// LastLatency is the wall-clock processing time of the most recent
	// frame; AvgLatency and the percentiles cover the bounded window.
	LastLatency time.Duration
	AvgLatency  time.Duration
	P50Latency  time.Duration
	P95Latency  time.Duration

	// BudgetOverruns counts frames that exceeded the latency budget.
	BudgetOverruns uint64

	// NoiseFloor is the beamformer's smoothed noise estimate in dB.
	// Negative infinity for mono pipelines, which carry no beamformer.
	NoiseFloor float64

	// ChannelSeparation is the absolute interaural level difference of the
	// last output frame in dB.
	ChannelSeparation float64

	// ReverbTime is the room's Sabine RT60 at 1 kHz in seconds.
	ReverbTime float64

	// WeightFallbacks and ClampedPositions mirror the quality counters.
	WeightFallbacks  uint64
	ClampedPositions uint64
}

// Metrics returns the most recently published snapshot. Wait-free; safe
// from any goroutine.
func (p *Pipeline) Metrics() Snapshot {
	if snap := p.snapshot.Load(); snap != nil {
		return *snap
	}
	return Snapshot{NoiseFloor: math.Inf(-1)}
}

// publishSnapshot recomputes and atomically publishes the metrics view.
// Runs on the processing goroutine after each frame.
func (p *Pipeline) publishSnapshot(elapsed time.Duration, dst *frame.Frame) {
	p.stats.Add(elapsed.Seconds())
	if elapsed > p.budget {
		p.overruns++
	}

	noise := math.Inf(-1)
	if p.engine != nil {
		noise = p.engine.NoiseFloor()
	}

	snap := Snapshot{
		Frames:            p.stats.Count(),
		LastLatency:       elapsed,
		AvgLatency:        secondsToDuration(p.stats.Mean()),
		P50Latency:        secondsToDuration(p.stats.Quantile(0.5)),
		P95Latency:        secondsToDuration(p.stats.Quantile(0.95)),
		BudgetOverruns:    p.overruns,
		NoiseFloor:        noise,
		ChannelSeparation: channelSeparation(dst),
		ReverbTime:        p.model.ReverbTime(1000),
		WeightFallbacks:   p.lastFallbacks,
		ClampedPositions:  p.lastClamps,
	}
	p.snapshot.Store(&snap)
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// channelSeparation returns the absolute level difference between the two
// output channels in dB, 0 when either channel is silent.
func channelSeparation(f *frame.Frame) float64 {
	if len(f.Data) < 2 {
		return 0
	}
	left := rms(f.Data[0])
	right := rms(f.Data[1])
	if left == 0 || right == 0 {
		return 0
	}
	return math.Abs(20 * math.Log10(left/right))
}

func rms(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range data {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(data)))
}

// latencyWindow keeps the most recent per-frame latencies for percentile
// estimation. Single writer, read through published snapshots only.
type latencyWindow struct {
	samples []float64
	scratch []float64
	next    int
	filled  int
	count   uint64
}

func newLatencyWindow(size int) *latencyWindow {
	return &latencyWindow{
		samples: make([]float64, size),
		scratch: make([]float64, 0, size),
	}
}

func (w *latencyWindow) Add(seconds float64) {
	w.samples[w.next] = seconds
	w.next = (w.next + 1) % len(w.samples)
	if w.filled < len(w.samples) {
		w.filled++
	}
	w.count++
}

// Count returns the total number of samples ever added.
func (w *latencyWindow) Count() uint64 { return w.count }

// Mean returns the average latency over the window.
func (w *latencyWindow) Mean() float64 {
	if w.filled == 0 {
		return 0
	}
	return stat.Mean(w.samples[:w.filled], nil)
}

// Quantile returns the q-quantile of the window.
func (w *latencyWindow) Quantile(q float64) float64 {
	if w.filled == 0 {
		return 0
	}
	w.scratch = append(w.scratch[:0], w.samples[:w.filled]...)
	sort.Float64s(w.scratch)
	return stat.Quantile(q, stat.Empirical, w.scratch, nil)
}
