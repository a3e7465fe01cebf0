package hrtf

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// shOrder is the spherical-harmonic truncation order of the expansion.
// Order 4 gives 25 basis functions, well below the grid sizes datasets
// carry, so the least-squares fit stays overdetermined.
const shOrder = 4

func shCoefficients() int { return (shOrder + 1) * (shOrder + 1) }

// shExpansion holds per-distance-ring spherical-harmonic coefficient
// matrices for the left and right responses. One matrix row per basis
// function, one column per impulse-response sample.
type shExpansion struct {
	left  []*mat.Dense
	right []*mat.Dense
}

// shFit performs the least-squares fit of the dataset's responses onto the
// harmonic basis, one fit per distance ring. Called once per dataset on
// first spherical interpolation.
func (d *Dataset) shFit() (*shExpansion, error) {
	nDirs := len(d.azimuths) * len(d.elevations)
	nCoeff := shCoefficients()
	if nDirs < nCoeff {
		return nil, fmt.Errorf("%w: %d grid directions cannot support an order-%d harmonic fit (%d coefficients)",
			ErrDataset, nDirs, shOrder, nCoeff)
	}

	basis := mat.NewDense(nDirs, nCoeff, nil)
	row := make([]float64, nCoeff)
	for a := range d.azimuths {
		for e := range d.elevations {
			shBasisInto(row, d.azimuths[a], d.elevations[e])
			basis.SetRow(a*len(d.elevations)+e, row)
		}
	}

	exp := &shExpansion{
		left:  make([]*mat.Dense, len(d.distances)),
		right: make([]*mat.Dense, len(d.distances)),
	}

	for ring := range d.distances {
		leftSamples := mat.NewDense(nDirs, d.irLength, nil)
		rightSamples := mat.NewDense(nDirs, d.irLength, nil)
		for a := range d.azimuths {
			for e := range d.elevations {
				pair := d.at(a, e, ring)
				leftSamples.SetRow(a*len(d.elevations)+e, pair.Left)
				rightSamples.SetRow(a*len(d.elevations)+e, pair.Right)
			}
		}

		var cl, cr mat.Dense
		if err := cl.Solve(basis, leftSamples); err != nil {
			return nil, fmt.Errorf("%w: harmonic fit failed for ring %d: %v", ErrDataset, ring, err)
		}
		if err := cr.Solve(basis, rightSamples); err != nil {
			return nil, fmt.Errorf("%w: harmonic fit failed for ring %d: %v", ErrDataset, ring, err)
		}
		exp.left[ring] = &cl
		exp.right[ring] = &cr
	}

	return exp, nil
}

// sphericalInto reconstructs the response at (az, el) from the harmonic
// expansion of the nearest distance ring. basis is caller-owned scratch of
// shCoefficients() length; nil allocates.
func (d *Dataset) sphericalInto(left, right []float64, az, el, dist float64, basis []float64) error {
	d.shOnce.Do(func() {
		d.sh, d.shErr = d.shFit()
	})
	if d.shErr != nil {
		return d.shErr
	}

	ring := d.nearestDistance(dist)
	if len(basis) != shCoefficients() {
		basis = make([]float64, shCoefficients())
	}
	shBasisInto(basis, az, el)

	cl, cr := d.sh.left[ring], d.sh.right[ring]
	for s := range left {
		var l, r float64
		for c, y := range basis {
			l += y * cl.At(c, s)
			r += y * cr.At(c, s)
		}
		left[s] = l
		right[s] = r
	}
	return nil
}

// shBasisInto evaluates the real spherical-harmonic basis up to shOrder at
// the given direction. Azimuth maps to the harmonic longitude and
// elevation to latitude (colatitude = 90 degrees - elevation).
func shBasisInto(dst []float64, azimuthDeg, elevationDeg float64) {
	phi := azimuthDeg * math.Pi / 180
	theta := (90 - elevationDeg) * math.Pi / 180
	x := math.Cos(theta)

	idx := 0
	for l := 0; l <= shOrder; l++ {
		for m := -l; m <= l; m++ {
			am := m
			if am < 0 {
				am = -am
			}
			p := legendre(l, am, x)
			norm := math.Sqrt((2*float64(l) + 1) / (4 * math.Pi) *
				factorial(l-am) / factorial(l+am))

			switch {
			case m > 0:
				dst[idx] = math.Sqrt2 * norm * p * math.Cos(float64(m)*phi)
			case m < 0:
				dst[idx] = math.Sqrt2 * norm * p * math.Sin(float64(am)*phi)
			default:
				dst[idx] = norm * p
			}
			idx++
		}
	}
}

// legendre evaluates the associated Legendre function P_l^m(x) for m >= 0
// by the standard three-term recurrence, without the Condon-Shortley phase
// folded into the normalization (the phase itself is kept, matching the
// usual real-harmonic convention).
func legendre(l, m int, x float64) float64 {
	// P_m^m
	pmm := 1.0
	if m > 0 {
		somx2 := math.Sqrt((1 - x) * (1 + x))
		fact := 1.0
		for i := 1; i <= m; i++ {
			pmm *= -fact * somx2
			fact += 2
		}
	}
	if l == m {
		return pmm
	}

	// P_{m+1}^m
	pmmp1 := x * float64(2*m+1) * pmm
	if l == m+1 {
		return pmmp1
	}

	for ll := m + 2; ll <= l; ll++ {
		p := (x*float64(2*ll-1)*pmmp1 - float64(ll+m-1)*pmm) / float64(ll-m)
		pmm = pmmp1
		pmmp1 = p
	}
	return pmmp1
}

func factorial(n int) float64 {
	out := 1.0
	for i := 2; i <= n; i++ {
		out *= float64(i)
	}
	return out
}
