package config

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cwbudde/algo-spatial/hrtf"
	"github.com/cwbudde/algo-spatial/room"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Unknown fields are rejected. Useful in tests where
// configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.applyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Frame.Channels < 1 {
		errs = append(errs, fmt.Errorf("frame.channels must be at least 1, got %d", cfg.Frame.Channels))
	}
	if cfg.Frame.Length < 1 {
		errs = append(errs, fmt.Errorf("frame.length must be at least 1, got %d", cfg.Frame.Length))
	}
	if cfg.Frame.SampleRate <= 0 || math.IsNaN(cfg.Frame.SampleRate) || math.IsInf(cfg.Frame.SampleRate, 0) {
		errs = append(errs, fmt.Errorf("frame.sample_rate must be positive and finite, got %f", cfg.Frame.SampleRate))
	}

	switch {
	case cfg.Frame.Channels > 1 && len(cfg.Array.Positions) != cfg.Frame.Channels:
		errs = append(errs, fmt.Errorf("array.positions has %d entries for %d channels",
			len(cfg.Array.Positions), cfg.Frame.Channels))
	case cfg.Frame.Channels == 1 && len(cfg.Array.Positions) > 0:
		errs = append(errs, errors.New("array.positions given for mono input"))
	}
	for i, p := range cfg.Array.Positions {
		if !finite(p.X) || !finite(p.Y) || !finite(p.Z) {
			errs = append(errs, fmt.Errorf("array.positions[%d] is not finite", i))
		}
	}

	if n := len(cfg.Room.Dimensions); n != 0 && n != 3 {
		errs = append(errs, fmt.Errorf("room.dimensions needs exactly 3 values (width, height, depth), got %d", n))
	}
	for i, d := range cfg.Room.Dimensions {
		if d <= 0 || !finite(d) {
			errs = append(errs, fmt.Errorf("room.dimensions[%d] must be positive and finite, got %f", i, d))
		}
	}
	for name, mc := range cfg.Room.Materials {
		if _, err := room.ParseSurface(name); err != nil {
			errs = append(errs, fmt.Errorf("room.materials: %v", err))
			continue
		}
		if len(mc.Absorption) > room.BandCount {
			errs = append(errs, fmt.Errorf("room.materials.%s.absorption has %d bands, at most %d allowed",
				name, len(mc.Absorption), room.BandCount))
		}
		if len(mc.Scattering) > room.BandCount {
			errs = append(errs, fmt.Errorf("room.materials.%s.scattering has %d bands, at most %d allowed",
				name, len(mc.Scattering), room.BandCount))
		}
		if err := mc.material().Validate(); err != nil {
			errs = append(errs, fmt.Errorf("room.materials.%s: %v", name, err))
		}
	}

	if err := cfg.PoseValue().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("pose: %v", err))
	}

	if _, err := hrtf.ParseInterpolation(cfg.Interpolation); err != nil {
		errs = append(errs, fmt.Errorf("interpolation %q is invalid; valid values: nearest, bilinear, spherical",
			cfg.Interpolation))
	}

	if cfg.Dataset == "" {
		errs = append(errs, errors.New("dataset is required"))
	}

	if cfg.BudgetMS < 0 || !finite(cfg.BudgetMS) {
		errs = append(errs, fmt.Errorf("budget_ms must not be negative, got %f", cfg.BudgetMS))
	}

	return errors.Join(errs...)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
