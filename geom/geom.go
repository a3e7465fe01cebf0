// Package geom provides the spatial vocabulary shared by the beamformer,
// the room model, and the spatializer: cartesian vectors, spherical
// directions, and listener poses.
//
// The coordinate frame is right-handed with +X forward, +Y left, and +Z up.
// Azimuth is measured counterclockwise from +X in the horizontal plane, so
// positive azimuth is to the listener's left. Elevation is measured from
// the horizontal plane toward +Z. Angles are degrees, distances meters.
package geom

import (
	"fmt"
	"math"
)

// Vec3 is a cartesian point or direction in meters.
type Vec3 struct {
	X, Y, Z float64
}

// Add returns v + w.
func (v Vec3) Add(w Vec3) Vec3 { return Vec3{v.X + w.X, v.Y + w.Y, v.Z + w.Z} }

// Sub returns v - w.
func (v Vec3) Sub(w Vec3) Vec3 { return Vec3{v.X - w.X, v.Y - w.Y, v.Z - w.Z} }

// Scale returns v scaled by s.
func (v Vec3) Scale(s float64) Vec3 { return Vec3{v.X * s, v.Y * s, v.Z * s} }

// Dot returns the dot product of v and w.
func (v Vec3) Dot(w Vec3) float64 { return v.X*w.X + v.Y*w.Y + v.Z*w.Z }

// Norm returns the euclidean length of v.
func (v Vec3) Norm() float64 { return math.Sqrt(v.Dot(v)) }

// IsFinite reports whether all components are finite.
func (v Vec3) IsFinite() bool {
	return !math.IsNaN(v.X) && !math.IsInf(v.X, 0) &&
		!math.IsNaN(v.Y) && !math.IsInf(v.Y, 0) &&
		!math.IsNaN(v.Z) && !math.IsInf(v.Z, 0)
}

// Direction locates a source relative to the listener in spherical
// coordinates: azimuth and elevation in degrees, distance in meters.
type Direction struct {
	Azimuth   float64
	Elevation float64
	Distance  float64
}

// Validate reports whether the direction is finite with positive distance.
func (d Direction) Validate() error {
	if math.IsNaN(d.Azimuth) || math.IsInf(d.Azimuth, 0) ||
		math.IsNaN(d.Elevation) || math.IsInf(d.Elevation, 0) {
		return fmt.Errorf("geom: direction angles must be finite: az=%f el=%f", d.Azimuth, d.Elevation)
	}
	if d.Distance <= 0 || math.IsNaN(d.Distance) || math.IsInf(d.Distance, 0) {
		return fmt.Errorf("geom: direction distance must be positive and finite: %f", d.Distance)
	}
	return nil
}

// Cartesian returns the source position in the listener frame.
func (d Direction) Cartesian() Vec3 {
	az := d.Azimuth * math.Pi / 180
	el := d.Elevation * math.Pi / 180
	ce := math.Cos(el)
	return Vec3{
		X: d.Distance * ce * math.Cos(az),
		Y: d.Distance * ce * math.Sin(az),
		Z: d.Distance * math.Sin(el),
	}
}

// FromCartesian converts a listener-frame position back to spherical
// coordinates. The zero vector maps to a zero direction.
func FromCartesian(v Vec3) Direction {
	dist := v.Norm()
	if dist == 0 {
		return Direction{}
	}
	return Direction{
		Azimuth:   math.Atan2(v.Y, v.X) * 180 / math.Pi,
		Elevation: math.Asin(v.Z/dist) * 180 / math.Pi,
		Distance:  dist,
	}
}

// Orientation is the listener head attitude: yaw turns left (about +Z),
// pitch tilts up (about -Y), both in degrees. Roll is not modeled.
type Orientation struct {
	Yaw   float64
	Pitch float64
}

// Validate reports whether both angles are finite.
func (o Orientation) Validate() error {
	if math.IsNaN(o.Yaw) || math.IsInf(o.Yaw, 0) ||
		math.IsNaN(o.Pitch) || math.IsInf(o.Pitch, 0) {
		return fmt.Errorf("geom: orientation angles must be finite: yaw=%f pitch=%f", o.Yaw, o.Pitch)
	}
	return nil
}

// Pose combines a source direction with the listener head orientation.
type Pose struct {
	Direction   Direction
	Orientation Orientation
}

// Validate checks both parts of the pose.
func (p Pose) Validate() error {
	if err := p.Direction.Validate(); err != nil {
		return err
	}
	return p.Orientation.Validate()
}

// Relative returns the source direction in the head frame: the world
// direction counter-rotated by the head yaw, then by the head pitch.
func (p Pose) Relative() Direction {
	v := p.Direction.Cartesian()

	yaw := -p.Orientation.Yaw * math.Pi / 180
	cy, sy := math.Cos(yaw), math.Sin(yaw)
	v = Vec3{
		X: cy*v.X - sy*v.Y,
		Y: sy*v.X + cy*v.Y,
		Z: v.Z,
	}

	pitch := p.Orientation.Pitch * math.Pi / 180
	cp, sp := math.Cos(pitch), math.Sin(pitch)
	v = Vec3{
		X: cp*v.X + sp*v.Z,
		Y: v.Y,
		Z: -sp*v.X + cp*v.Z,
	}

	return FromCartesian(v)
}
