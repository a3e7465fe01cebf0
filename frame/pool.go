package frame

import "sync"

// Pool provides sync.Pool-based frame reuse to keep the per-frame
// processing path free of heap allocation. A pool hands out frames of
// one fixed shape; mixing shapes is a contract violation.
type Pool struct {
	shape      Shape
	sampleRate float64
	pool       sync.Pool
}

// NewPool returns a Pool producing zeroed frames of the given shape.
func NewPool(shape Shape, sampleRate float64) (*Pool, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	p := &Pool{shape: shape, sampleRate: sampleRate}
	p.pool.New = func() any {
		return New(shape, sampleRate)
	}
	return p, nil
}

// Shape returns the fixed shape of frames this pool produces.
func (p *Pool) Shape() Shape { return p.shape }

// Get returns a zeroed frame of the pool's shape.
// Callers must return it via Put when done.
func (p *Pool) Get() *Frame {
	f := p.pool.Get().(*Frame)
	f.Zero()
	f.SampleRate = p.sampleRate
	return f
}

// Put returns a frame to the pool for reuse. Frames of a different shape
// are dropped so a stray frame cannot poison the pool.
// The caller must not use the frame after calling Put.
func (p *Pool) Put(f *Frame) {
	if f == nil || f.Shape() != p.shape {
		return
	}
	p.pool.Put(f)
}
