// Package config provides the YAML configuration schema and loader for the
// spatial pipeline, plus conversions into the domain types the pipeline
// stages consume. All validation happens at load time; a Config that
// passed Validate converts without further errors.
package config

import (
	"time"

	"github.com/cwbudde/algo-spatial/frame"
	"github.com/cwbudde/algo-spatial/geom"
	"github.com/cwbudde/algo-spatial/hrtf"
	"github.com/cwbudde/algo-spatial/room"
)

// DefaultDataset is used when the config names no HRTF dataset.
const DefaultDataset = hrtf.SyntheticDatasetName

// Config is the root configuration structure, typically loaded from a YAML
// file using [Load] or [LoadFromReader].
type Config struct {
	Array         ArrayConfig `yaml:"array"`
	Room          RoomConfig  `yaml:"room"`
	Pose          PoseConfig  `yaml:"pose"`
	Dataset       string      `yaml:"dataset"`
	Interpolation string      `yaml:"interpolation"`
	Frame         FrameConfig `yaml:"frame"`

	// BudgetMS is the soft per-frame latency budget in milliseconds.
	// Zero selects the default 10 ms budget.
	BudgetMS float64 `yaml:"budget_ms"`
}

// ArrayConfig describes the microphone array geometry.
type ArrayConfig struct {
	// Positions are microphone coordinates in meters, one per input
	// channel. Empty for mono input.
	Positions []Position `yaml:"positions"`
}

// Position is one cartesian point in meters.
type Position struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
	Z float64 `yaml:"z"`
}

// RoomConfig describes the simulated room.
type RoomConfig struct {
	// Dimensions is width, height, depth in meters. Empty keeps the room
	// model's defaults.
	Dimensions []float64 `yaml:"dimensions"`

	// Materials maps surface names (floor, ceiling, wall_front, wall_back,
	// wall_left, wall_right) to their acoustic properties. Missing
	// surfaces keep the default material.
	Materials map[string]MaterialConfig `yaml:"materials"`
}

// MaterialConfig holds per-band acoustic coefficients for one surface.
type MaterialConfig struct {
	// Absorption holds one coefficient in [0, 1] per octave band
	// (62.5 Hz .. 8 kHz).
	Absorption []float64 `yaml:"absorption"`

	// Scattering holds one coefficient in [0, 1] per octave band.
	Scattering []float64 `yaml:"scattering"`
}

// PoseConfig is the initial source position and listener orientation.
type PoseConfig struct {
	Azimuth   float64 `yaml:"azimuth"`
	Elevation float64 `yaml:"elevation"`
	Distance  float64 `yaml:"distance"`
	Yaw       float64 `yaml:"yaw"`
	Pitch     float64 `yaml:"pitch"`
}

// FrameConfig fixes the input frame geometry.
type FrameConfig struct {
	Channels   int     `yaml:"channels"`
	Length     int     `yaml:"length"`
	SampleRate float64 `yaml:"sample_rate"`
}

// applyDefaults fills optional fields a minimal config omits.
func (c *Config) applyDefaults() {
	if c.Dataset == "" {
		c.Dataset = DefaultDataset
	}
	if c.Interpolation == "" {
		c.Interpolation = hrtf.InterpolationBilinear.String()
	}
	if c.Pose.Distance == 0 {
		c.Pose.Distance = 1
	}
}

// Positions converts the array geometry to domain vectors.
func (c *Config) Positions() []geom.Vec3 {
	if len(c.Array.Positions) == 0 {
		return nil
	}
	out := make([]geom.Vec3, len(c.Array.Positions))
	for i, p := range c.Array.Positions {
		out[i] = geom.Vec3{X: p.X, Y: p.Y, Z: p.Z}
	}
	return out
}

// RoomDimensions returns the configured dimensions and whether any were
// given.
func (c *Config) RoomDimensions() ([3]float64, bool) {
	if len(c.Room.Dimensions) != 3 {
		return [3]float64{}, false
	}
	return [3]float64{c.Room.Dimensions[0], c.Room.Dimensions[1], c.Room.Dimensions[2]}, true
}

// RoomMaterials converts the material table to domain types. Assumes the
// config has passed Validate.
func (c *Config) RoomMaterials() map[room.Surface]room.Material {
	if len(c.Room.Materials) == 0 {
		return nil
	}
	out := make(map[room.Surface]room.Material, len(c.Room.Materials))
	for name, mc := range c.Room.Materials {
		surface, err := room.ParseSurface(name)
		if err != nil {
			continue
		}
		out[surface] = mc.material()
	}
	return out
}

// material expands the per-band slices into a domain Material, repeating
// the defaults where a band list is empty.
func (mc MaterialConfig) material() room.Material {
	m := room.DefaultMaterial()
	for i := 0; i < len(mc.Absorption) && i < room.BandCount; i++ {
		m.Absorption[i] = mc.Absorption[i]
	}
	for i := 0; i < len(mc.Scattering) && i < room.BandCount; i++ {
		m.Scattering[i] = mc.Scattering[i]
	}
	return m
}

// PoseValue converts the initial pose.
func (c *Config) PoseValue() geom.Pose {
	return geom.Pose{
		Direction: geom.Direction{
			Azimuth:   c.Pose.Azimuth,
			Elevation: c.Pose.Elevation,
			Distance:  c.Pose.Distance,
		},
		Orientation: geom.Orientation{
			Yaw:   c.Pose.Yaw,
			Pitch: c.Pose.Pitch,
		},
	}
}

// InterpolationMode parses the configured interpolation name.
func (c *Config) InterpolationMode() (hrtf.Interpolation, error) {
	return hrtf.ParseInterpolation(c.Interpolation)
}

// Shape returns the input frame geometry.
func (c *Config) Shape() frame.Shape {
	return frame.Shape{Channels: c.Frame.Channels, Length: c.Frame.Length}
}

// Budget returns the latency budget as a duration, defaulting when unset.
func (c *Config) Budget() time.Duration {
	if c.BudgetMS == 0 {
		return frame.DefaultLatencyBudget
	}
	return time.Duration(c.BudgetMS * float64(time.Millisecond))
}
