package beamform

import (
	"errors"
	"fmt"
	"math"

	"github.com/cwbudde/algo-spatial/geom"
)

// Errors returned by geometry validation.
var (
	ErrGeometry        = errors.New("beamform: invalid array geometry")
	ErrChannelMismatch = errors.New("beamform: geometry does not match channel count")
)

const minMicrophones = 2

// ArrayGeometry is an immutable snapshot of microphone positions in the
// listener frame. Geometry changes go through the engine, which atomically
// replaces the snapshot; a snapshot itself is never mutated.
type ArrayGeometry struct {
	positions []geom.Vec3
}

// NewArrayGeometry validates and copies the given microphone positions.
func NewArrayGeometry(positions []geom.Vec3) (ArrayGeometry, error) {
	if len(positions) < minMicrophones {
		return ArrayGeometry{}, fmt.Errorf("%w: need at least %d microphones, got %d",
			ErrGeometry, minMicrophones, len(positions))
	}
	for i, p := range positions {
		if !p.IsFinite() {
			return ArrayGeometry{}, fmt.Errorf("%w: position %d is not finite", ErrGeometry, i)
		}
	}
	snapshot := make([]geom.Vec3, len(positions))
	copy(snapshot, positions)
	return ArrayGeometry{positions: snapshot}, nil
}

// CircularArray returns a horizontal circular array of n microphones with
// the given radius, centered on the origin, first microphone on +X.
func CircularArray(n int, radius float64) (ArrayGeometry, error) {
	if n < minMicrophones {
		return ArrayGeometry{}, fmt.Errorf("%w: need at least %d microphones, got %d",
			ErrGeometry, minMicrophones, n)
	}
	if radius <= 0 || math.IsNaN(radius) || math.IsInf(radius, 0) {
		return ArrayGeometry{}, fmt.Errorf("%w: radius must be positive and finite: %f", ErrGeometry, radius)
	}
	positions := make([]geom.Vec3, n)
	for i := range n {
		angle := 2 * math.Pi * float64(i) / float64(n)
		positions[i] = geom.Vec3{X: radius * math.Cos(angle), Y: radius * math.Sin(angle)}
	}
	return ArrayGeometry{positions: positions}, nil
}

// Len returns the microphone count, 0 for the zero value.
func (g ArrayGeometry) Len() int { return len(g.positions) }

// Position returns the i-th microphone position.
func (g ArrayGeometry) Position(i int) geom.Vec3 { return g.positions[i] }

// Positions returns a copy of all microphone positions.
func (g ArrayGeometry) Positions() []geom.Vec3 {
	out := make([]geom.Vec3, len(g.positions))
	copy(out, g.positions)
	return out
}

// SteeringVector fills dst with the free-field steering phases of the
// array toward dir at the given frequency: one unit-magnitude complex
// value per microphone, exp(-j*2*pi*f*tau), where tau is the propagation
// delay of microphone m relative to the array origin.
func (g ArrayGeometry) SteeringVector(dst []complex128, dir geom.Direction, freqHz, speedOfSound float64) {
	src := dir.Cartesian()
	ref := src.Norm()
	for m := range g.positions {
		delay := (src.Sub(g.positions[m]).Norm() - ref) / speedOfSound
		phase := -2 * math.Pi * freqHz * delay
		dst[m] = complex(math.Cos(phase), math.Sin(phase))
	}
}
