package beamform

import (
	"math"
	"math/cmplx"
)

// MVDRSolver computes minimum-variance distortionless-response weights
//
//	w = R⁻¹a / (aᴴ R⁻¹ a)
//
// for one fixed matrix order using pre-allocated scratch, so solving on the
// per-frame path does not allocate. A solver is not safe for concurrent use.
//
// Near-singular correlation matrices are an expected condition (silence,
// perfectly correlated channels), not an error: Solve reports false and
// leaves dst untouched, and the caller falls back to uniform weights.
type MVDRSolver struct {
	n   int
	aug []complex128 // n x 2n augmented matrix for gauss-jordan elimination
	ra  []complex128 // R⁻¹a
}

// NewMVDRSolver returns a solver for n x n correlation matrices.
func NewMVDRSolver(n int) *MVDRSolver {
	return &MVDRSolver{
		n:   n,
		aug: make([]complex128, n*2*n),
		ra:  make([]complex128, n),
	}
}

// Solve computes the MVDR weight vector for correlation matrix r (row-major
// n*n) and steering vector a (length n) into dst. It reports false without
// touching dst when r is too close to singular or the distortionless
// denominator vanishes.
func (s *MVDRSolver) Solve(dst, r, a []complex128) bool {
	n := s.n
	if !s.invert(r) {
		return false
	}

	// ra = R⁻¹a, reading the inverse out of the augmented right half.
	for i := range n {
		row := s.aug[i*2*n+n : i*2*n+2*n]
		sum := complex(0, 0)
		for j := range n {
			sum += row[j] * a[j]
		}
		s.ra[i] = sum
	}

	// denom = aᴴ R⁻¹ a. For Hermitian positive semi-definite R this is
	// real and non-negative up to rounding.
	denom := complex(0, 0)
	for i := range n {
		denom += cmplx.Conj(a[i]) * s.ra[i]
	}
	mag := cmplx.Abs(denom)
	if mag < minDenominator || math.IsNaN(mag) || math.IsInf(mag, 0) {
		return false
	}

	for i := range n {
		dst[i] = s.ra[i] / denom
	}
	return true
}

const (
	minDenominator = 1e-18
	pivotRelTol    = 1e-12
)

// invert runs gauss-jordan elimination with partial pivoting on [r | I].
// On success the right half of s.aug holds R⁻¹.
func (s *MVDRSolver) invert(r []complex128) bool {
	n := s.n
	w := 2 * n

	scale := 0.0
	for i := range n {
		d := cmplx.Abs(r[i*n+i])
		if d > scale {
			scale = d
		}
	}
	if scale == 0 || math.IsNaN(scale) || math.IsInf(scale, 0) {
		return false
	}
	tol := scale * pivotRelTol

	for i := range n {
		for j := range n {
			s.aug[i*w+j] = r[i*n+j]
			if i == j {
				s.aug[i*w+n+j] = 1
			} else {
				s.aug[i*w+n+j] = 0
			}
		}
	}

	for col := range n {
		pivotRow := col
		pivotMag := cmplx.Abs(s.aug[col*w+col])
		for row := col + 1; row < n; row++ {
			if m := cmplx.Abs(s.aug[row*w+col]); m > pivotMag {
				pivotMag = m
				pivotRow = row
			}
		}
		if pivotMag < tol {
			return false
		}
		if pivotRow != col {
			for j := range w {
				s.aug[col*w+j], s.aug[pivotRow*w+j] = s.aug[pivotRow*w+j], s.aug[col*w+j]
			}
		}

		inv := 1 / s.aug[col*w+col]
		for j := range w {
			s.aug[col*w+j] *= inv
		}

		for row := range n {
			if row == col {
				continue
			}
			factor := s.aug[row*w+col]
			if factor == 0 {
				continue
			}
			for j := range w {
				s.aug[row*w+j] -= factor * s.aug[col*w+j]
			}
		}
	}
	return true
}

// correlationInto builds the instantaneous correlation matrix R = x·xᴴ with
// trace-relative diagonal loading into r (row-major n*n). Loading keeps the
// rank-one instantaneous estimate invertible.
func correlationInto(r []complex128, x []complex128, loading float64) {
	n := len(x)
	trace := 0.0
	for _, v := range x {
		re, im := real(v), imag(v)
		trace += re*re + im*im
	}
	load := complex(loading*trace/float64(n), 0)
	for i := range n {
		for j := range n {
			r[i*n+j] = x[i] * cmplx.Conj(x[j])
		}
		r[i*n+i] += load
	}
}

func isFiniteComplex(c complex128) bool {
	return !math.IsNaN(real(c)) && !math.IsInf(real(c), 0) &&
		!math.IsNaN(imag(c)) && !math.IsInf(imag(c), 0)
}
