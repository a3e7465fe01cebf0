package beamform

import (
	"errors"
	"math"
	"math/cmplx"
	"testing"

	"github.com/cwbudde/algo-spatial/frame"
	"github.com/cwbudde/algo-spatial/geom"
)

func TestNewArrayGeometryValidation(t *testing.T) {
	if _, err := NewArrayGeometry(nil); !errors.Is(err, ErrGeometry) {
		t.Fatalf("empty geometry: got %v, want ErrGeometry", err)
	}
	if _, err := NewArrayGeometry([]geom.Vec3{{}}); !errors.Is(err, ErrGeometry) {
		t.Fatalf("single microphone: got %v, want ErrGeometry", err)
	}
	if _, err := NewArrayGeometry([]geom.Vec3{{}, {X: math.NaN()}}); !errors.Is(err, ErrGeometry) {
		t.Fatalf("NaN position: got %v, want ErrGeometry", err)
	}

	g, err := NewArrayGeometry([]geom.Vec3{{X: 0.05}, {X: -0.05}})
	if err != nil {
		t.Fatalf("valid geometry rejected: %v", err)
	}
	if g.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", g.Len())
	}
}

func TestNewArrayGeometryCopiesInput(t *testing.T) {
	positions := []geom.Vec3{{X: 1}, {X: -1}}
	g, err := NewArrayGeometry(positions)
	if err != nil {
		t.Fatalf("NewArrayGeometry: %v", err)
	}
	positions[0].X = 99
	if g.Position(0).X != 1 {
		t.Fatal("geometry shares memory with caller slice")
	}
}

func TestCircularArrayReferenceDesign(t *testing.T) {
	g, err := CircularArray(8, 0.05)
	if err != nil {
		t.Fatalf("CircularArray: %v", err)
	}
	if g.Len() != 8 {
		t.Fatalf("Len() = %d, want 8", g.Len())
	}
	// First microphone on +X at the radius.
	p0 := g.Position(0)
	if math.Abs(p0.X-0.05) > 1e-12 || math.Abs(p0.Y) > 1e-12 {
		t.Fatalf("Position(0) = %+v, want (0.05, 0, 0)", p0)
	}
	// All microphones on the radius.
	for i := range 8 {
		if r := g.Position(i).Norm(); math.Abs(r-0.05) > 1e-12 {
			t.Fatalf("microphone %d radius = %v, want 0.05", i, r)
		}
	}

	if _, err := CircularArray(1, 0.05); !errors.Is(err, ErrGeometry) {
		t.Fatalf("single-mic circle: got %v, want ErrGeometry", err)
	}
	if _, err := CircularArray(8, 0); !errors.Is(err, ErrGeometry) {
		t.Fatalf("zero radius: got %v, want ErrGeometry", err)
	}
}

func TestSteeringVectorProperties(t *testing.T) {
	g, err := CircularArray(8, 0.05)
	if err != nil {
		t.Fatalf("CircularArray: %v", err)
	}
	dst := make([]complex128, 8)

	// At DC every phase is zero.
	g.SteeringVector(dst, geom.Direction{Azimuth: 30, Distance: 1}, 0, frame.SpeedOfSound)
	for m, c := range dst {
		if cmplx.Abs(c-1) > 1e-12 {
			t.Fatalf("DC steering[%d] = %v, want 1", m, c)
		}
	}

	// All entries are unit magnitude at any frequency.
	g.SteeringVector(dst, geom.Direction{Azimuth: 45, Elevation: 10, Distance: 2}, 1000, frame.SpeedOfSound)
	for m, c := range dst {
		if math.Abs(cmplx.Abs(c)-1) > 1e-12 {
			t.Fatalf("steering[%d] magnitude = %v, want 1", m, cmplx.Abs(c))
		}
	}

	// A source on +X sees mirror-symmetric delays for mirror microphones.
	g.SteeringVector(dst, geom.Direction{Azimuth: 0, Distance: 1}, 1000, frame.SpeedOfSound)
	for _, pair := range [][2]int{{1, 7}, {2, 6}, {3, 5}} {
		if cmplx.Abs(dst[pair[0]]-dst[pair[1]]) > 1e-12 {
			t.Fatalf("mics %d/%d not symmetric: %v vs %v", pair[0], pair[1], dst[pair[0]], dst[pair[1]])
		}
	}

	// The nearest microphone (on +X) leads the array origin, so its
	// relative delay is negative and the phase positive.
	if imag(dst[0]) < 0 {
		t.Fatalf("nearest microphone phase = %v, want positive imaginary part", dst[0])
	}
}
