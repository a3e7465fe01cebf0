package spectral

import (
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// transformTask is one per-channel forward transform handed to a worker.
// Task values travel by a buffered channel, so dispatching a frame's
// channels does not allocate.
type transformTask struct {
	dst []complex128
	src []float64
	wg  *sync.WaitGroup
	err *atomic.Pointer[error]
}

// Workers runs per-channel forward transforms on a fixed set of goroutines.
// The pool is created once at pipeline configuration and shut down with the
// pipeline; per-frame dispatch never spawns goroutines or allocates.
//
// Each worker owns a private Plan, so transforms of different channels run
// concurrently without sharing scratch memory.
type Workers struct {
	size   int
	tasks  chan transformTask
	group  *errgroup.Group
	closed atomic.Bool
}

// NewWorkers starts count worker goroutines for transforms of the given
// power-of-two size. A count below 1 is raised to 1.
func NewWorkers(size, count int) (*Workers, error) {
	if count < 1 {
		count = 1
	}
	plans := make([]*Plan, count)
	for i := range count {
		p, err := NewPlan(size)
		if err != nil {
			return nil, err
		}
		plans[i] = p
	}

	w := &Workers{
		size:  size,
		tasks: make(chan transformTask, count),
		group: &errgroup.Group{},
	}
	for i := range count {
		plan := plans[i]
		w.group.Go(func() error {
			for task := range w.tasks {
				if err := plan.ForwardReal(task.dst, task.src); err != nil {
					task.err.CompareAndSwap(nil, &err)
				}
				task.wg.Done()
			}
			return nil
		})
	}
	return w, nil
}

// Size returns the transform size the workers operate at.
func (w *Workers) Size() int { return w.size }

// ForwardReal transforms every channel of src into the matching spectrum of
// dst concurrently and waits for all of them. dst and src must have equal
// channel counts; each dst spectrum must have the transform size.
func (w *Workers) ForwardReal(dst [][]complex128, src [][]float64) error {
	if w.closed.Load() {
		return ErrClosed
	}
	if len(dst) != len(src) {
		return fmt.Errorf("%w: %d spectra for %d channels", ErrLengthMismatch, len(dst), len(src))
	}

	var wg sync.WaitGroup
	var firstErr atomic.Pointer[error]
	wg.Add(len(src))
	for ch := range src {
		w.tasks <- transformTask{dst: dst[ch], src: src[ch], wg: &wg, err: &firstErr}
	}
	wg.Wait()

	if errp := firstErr.Load(); errp != nil {
		return *errp
	}
	return nil
}

// Close stops the workers and waits for them to exit. Close is idempotent;
// ForwardReal must not be called concurrently with or after Close.
func (w *Workers) Close() error {
	if w.closed.Swap(true) {
		return nil
	}
	close(w.tasks)
	return w.group.Wait()
}
