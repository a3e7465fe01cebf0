// Package spectral provides the shared frequency-domain machinery of the
// pipeline: FFT plans at the common transform size, real-signal pack and
// unpack helpers, and a fixed worker pool for per-channel transforms.
package spectral

import (
	"errors"
	"fmt"

	algofft "github.com/MeKo-Christian/algo-fft"
)

// Errors returned by spectral operations.
var (
	ErrInvalidSize    = errors.New("spectral: transform size must be a power of two")
	ErrLengthMismatch = errors.New("spectral: buffer length mismatch")
	ErrClosed         = errors.New("spectral: workers already closed")
)

// Plan wraps an FFT plan at one fixed transform size together with the
// real-signal conversions the pipeline needs. A Plan is not safe for
// concurrent use; Workers holds one plan per worker goroutine.
type Plan struct {
	size    int
	fft     *algofft.Plan[complex128]
	scratch []complex128
}

// NewPlan creates a plan for the given power-of-two transform size.
func NewPlan(size int) (*Plan, error) {
	if size <= 0 || size&(size-1) != 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}
	fft, err := algofft.NewPlan64(size)
	if err != nil {
		return nil, fmt.Errorf("spectral: create FFT plan: %w", err)
	}
	return &Plan{
		size:    size,
		fft:     fft,
		scratch: make([]complex128, size),
	}, nil
}

// Size returns the transform size.
func (p *Plan) Size() int { return p.size }

// Bins returns the number of independent bins for a real input signal,
// size/2 + 1. The remaining bins are conjugate mirrors.
func (p *Plan) Bins() int { return p.size/2 + 1 }

// Forward computes the forward transform of src into dst.
// Both must have the plan's transform size; in-place (dst == src) is allowed.
func (p *Plan) Forward(dst, src []complex128) error {
	return p.fft.Forward(dst, src)
}

// Inverse computes the normalized inverse transform of src into dst.
func (p *Plan) Inverse(dst, src []complex128) error {
	return p.fft.Inverse(dst, src)
}

// ForwardReal packs a real signal into dst, zero-padding to the transform
// size, and transforms in place. src must not be longer than the size.
func (p *Plan) ForwardReal(dst []complex128, src []float64) error {
	if len(dst) != p.size {
		return fmt.Errorf("%w: dst has %d bins, want %d", ErrLengthMismatch, len(dst), p.size)
	}
	if len(src) > p.size {
		return fmt.Errorf("%w: src has %d samples, transform size is %d", ErrLengthMismatch, len(src), p.size)
	}
	for i, v := range src {
		dst[i] = complex(v, 0)
	}
	for i := len(src); i < p.size; i++ {
		dst[i] = 0
	}
	return p.fft.Forward(dst, dst)
}

// InverseReal transforms src back to the time domain and writes the real
// parts of the first len(dst) samples into dst. The imaginary residue of a
// Hermitian spectrum is numerical noise and is discarded.
func (p *Plan) InverseReal(dst []float64, src []complex128) error {
	if len(src) != p.size {
		return fmt.Errorf("%w: src has %d bins, want %d", ErrLengthMismatch, len(src), p.size)
	}
	if len(dst) > p.size {
		return fmt.Errorf("%w: dst has %d samples, transform size is %d", ErrLengthMismatch, len(dst), p.size)
	}
	if err := p.fft.Inverse(p.scratch, src); err != nil {
		return err
	}
	for i := range dst {
		dst[i] = real(p.scratch[i])
	}
	return nil
}

// BinFrequency returns the center frequency in Hz of the given bin at the
// plan's transform size.
func (p *Plan) BinFrequency(bin int, sampleRate float64) float64 {
	return float64(bin) * sampleRate / float64(p.size)
}

// MirrorHermitian overwrites the upper half of spec with the conjugate
// mirror of the lower half so the inverse transform is purely real. Bin 0
// and the Nyquist bin keep only their real parts.
func MirrorHermitian(spec []complex128) {
	n := len(spec)
	if n < 2 {
		return
	}
	spec[0] = complex(real(spec[0]), 0)
	half := n / 2
	spec[half] = complex(real(spec[half]), 0)
	for k := 1; k < half; k++ {
		re := real(spec[k])
		im := imag(spec[k])
		spec[n-k] = complex(re, -im)
	}
}
