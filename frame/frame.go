// Package frame defines the multichannel audio frame contract shared by
// every stage of the spatial pipeline: fixed shape, pooled allocation, and
// the common transform size derived from the frame length.
package frame

import (
	"errors"
	"fmt"
	"time"
)

// Physical and scheduling constants shared across the pipeline.
const (
	// SpeedOfSound is the propagation speed used for all delay and
	// distance computations, in meters per second.
	SpeedOfSound = 343.0

	// DefaultLatencyBudget is the soft per-frame processing deadline.
	// Exceeding it degrades quality (a warning), never correctness.
	DefaultLatencyBudget = 10 * time.Millisecond
)

// Errors returned by frame operations.
var (
	ErrInvalidShape  = errors.New("frame: invalid shape")
	ErrShapeMismatch = errors.New("frame: shape mismatch")
)

// Shape describes the fixed geometry of frames flowing through a pipeline:
// the channel count and the per-channel sample count. A pipeline's shape is
// set once at configuration time and never changes mid-stream.
type Shape struct {
	Channels int
	Length   int
}

// Validate reports whether the shape can describe a processable frame.
func (s Shape) Validate() error {
	if s.Channels <= 0 {
		return fmt.Errorf("%w: channels must be positive, got %d", ErrInvalidShape, s.Channels)
	}
	if s.Length <= 0 {
		return fmt.Errorf("%w: length must be positive, got %d", ErrInvalidShape, s.Length)
	}
	return nil
}

// TransformSize returns the FFT size all stages of a pipeline with this
// shape share: the next power of two at or above the frame length.
func (s Shape) TransformSize() int {
	return NextPowerOfTwo(s.Length)
}

// Frame is one block of multichannel audio. Data holds Channels slices of
// Length samples each. A frame is owned by exactly one stage at a time;
// stages hand frames over rather than sharing them.
type Frame struct {
	Data       [][]float64
	SampleRate float64
	Timestamp  time.Time
}

// New returns a zero-filled frame with the given shape. The channel slices
// share one backing array so a frame is a single allocation per field.
func New(shape Shape, sampleRate float64) *Frame {
	f := &Frame{SampleRate: sampleRate}
	f.alloc(shape)
	return f
}

func (f *Frame) alloc(shape Shape) {
	backing := make([]float64, shape.Channels*shape.Length)
	f.Data = make([][]float64, shape.Channels)
	for ch := range shape.Channels {
		f.Data[ch] = backing[ch*shape.Length : (ch+1)*shape.Length : (ch+1)*shape.Length]
	}
}

// Shape returns the frame's current channel and length geometry.
func (f *Frame) Shape() Shape {
	if len(f.Data) == 0 {
		return Shape{}
	}
	return Shape{Channels: len(f.Data), Length: len(f.Data[0])}
}

// Match reports an error unless the frame has exactly the wanted shape.
// Mismatches are contract violations; callers fail fast rather than
// truncate or pad.
func (f *Frame) Match(want Shape) error {
	got := f.Shape()
	if got != want {
		return fmt.Errorf("%w: got %dx%d, want %dx%d",
			ErrShapeMismatch, got.Channels, got.Length, want.Channels, want.Length)
	}
	for ch := 1; ch < len(f.Data); ch++ {
		if len(f.Data[ch]) != got.Length {
			return fmt.Errorf("%w: channel %d has %d samples, want %d",
				ErrShapeMismatch, ch, len(f.Data[ch]), got.Length)
		}
	}
	return nil
}

// Zero sets every sample in the frame to 0.
func (f *Frame) Zero() {
	for ch := range f.Data {
		s := f.Data[ch]
		for i := range s {
			s[i] = 0
		}
	}
}

// CopyFrom copies src's samples, sample rate, and timestamp into f.
// Both frames must share the same shape.
func (f *Frame) CopyFrom(src *Frame) error {
	if err := src.Match(f.Shape()); err != nil {
		return err
	}
	for ch := range f.Data {
		copy(f.Data[ch], src.Data[ch])
	}
	f.SampleRate = src.SampleRate
	f.Timestamp = src.Timestamp
	return nil
}

// Clone returns a deep copy of the frame.
func (f *Frame) Clone() *Frame {
	out := New(f.Shape(), f.SampleRate)
	for ch := range f.Data {
		copy(out.Data[ch], f.Data[ch])
	}
	out.Timestamp = f.Timestamp
	return out
}

// NextPowerOfTwo returns the smallest power of two >= n, with a minimum
// of 1 for non-positive inputs.
func NextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// Clamp limits value to the inclusive range [min, max].
func Clamp(value, min, max float64) float64 {
	if min > max {
		min, max = max, min
	}

	if value < min {
		return min
	}

	if value > max {
		return max
	}

	return value
}
