// Package config loads staging belt and device configuration from TOML.
//
// A configuration file names the device backend and the staging belts a
// renderer registers at startup:
//
//	[device]
//	backend = "software"
//
//	[staging]
//	alignment = 8
//	label = "frame"
//
//	[[belt]]
//	name = "camera"
//	chunk_size = 64
//
//	[[belt]]
//	name = "instances"
//	chunk_size = 8192
//
// Unknown keys are rejected so typos do not silently fall back to
// defaults.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/gogpu/gpubuf"
	"github.com/gogpu/gpubuf/backend"
	"github.com/gogpu/gputypes"
	"github.com/pelletier/go-toml/v2"
)

// ErrInvalid is returned for configurations that fail validation.
var ErrInvalid = errors.New("config: invalid configuration")

// Config is the top-level configuration.
type Config struct {
	Device  Device  `toml:"device"`
	Staging Staging `toml:"staging"`
	Belts   []Belt  `toml:"belt"`
	Demo    Demo    `toml:"demo"`
}

// Device selects the device backend.
type Device struct {
	// Backend is a registered backend name: "software", "noop", or
	// "vulkan".
	Backend string `toml:"backend"`

	// ValidateShaders compiles a vertex shader for every layout the
	// renderer uses before the first frame (native backends only).
	ValidateShaders bool `toml:"validate_shaders"`
}

// Staging configures the staging factory.
type Staging struct {
	// Alignment is the alignment of staging areas within a chunk.
	Alignment uint64 `toml:"alignment"`

	// Label prefixes chunk buffer labels.
	Label string `toml:"label"`
}

// Belt registers one staging belt.
type Belt struct {
	Name      string `toml:"name"`
	ChunkSize uint64 `toml:"chunk_size"`
}

// Demo configures the bufdemo render loop.
type Demo struct {
	// Frames is the number of frames to render. Zero renders none.
	Frames int `toml:"frames"`

	// Instances is the number of instances per grid row. It must be
	// positive.
	Instances int `toml:"instances"`
}

// Default returns the built-in configuration: the software backend and
// the camera and instance belts the demo scene writes through.
func Default() *Config {
	return &Config{
		Device: Device{Backend: backend.BackendSoftware},
		Staging: Staging{
			Alignment: gpubuf.DefaultChunkAlignment,
			Label:     "staging",
		},
		Belts: []Belt{
			{Name: "camera", ChunkSize: 64},
			{Name: "instances", ChunkSize: 128 * 64},
		},
		Demo: Demo{Frames: 120, Instances: 10},
	}
}

// Load reads and parses the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// file mirrors Config with pointers where zero is a meaningful value, so
// an explicit zero in the file is kept rather than replaced by a default.
type file struct {
	Device  Device      `toml:"device"`
	Staging fileStaging `toml:"staging"`
	Belts   []Belt      `toml:"belt"`
	Demo    fileDemo    `toml:"demo"`
}

type fileStaging struct {
	Alignment *uint64 `toml:"alignment"`
	Label     string  `toml:"label"`
}

type fileDemo struct {
	Frames    *int `toml:"frames"`
	Instances *int `toml:"instances"`
}

// Parse decodes TOML data, fills keys the data leaves out from Default,
// and validates the result. A file that lists belts replaces the default
// belts. Keys set to zero keep the zero and are checked by Validate.
func Parse(data []byte) (*Config, error) {
	var f file
	if err := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields().Decode(&f); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return nil, fmt.Errorf("config: line %d, column %d: %w", row, col, err)
		}
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg := f.resolve()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (f *file) resolve() *Config {
	cfg := Default()
	if f.Device.Backend != "" {
		cfg.Device.Backend = f.Device.Backend
	}
	cfg.Device.ValidateShaders = f.Device.ValidateShaders
	if f.Staging.Alignment != nil {
		cfg.Staging.Alignment = *f.Staging.Alignment
	}
	if f.Staging.Label != "" {
		cfg.Staging.Label = f.Staging.Label
	}
	if len(f.Belts) > 0 {
		cfg.Belts = f.Belts
	}
	if f.Demo.Frames != nil {
		cfg.Demo.Frames = *f.Demo.Frames
	}
	if f.Demo.Instances != nil {
		cfg.Demo.Instances = *f.Demo.Instances
	}
	return cfg
}

// Validate checks the configuration. Every problem found is reported.
func (c *Config) Validate() error {
	var errs []error
	switch c.Device.Backend {
	case backend.BackendSoftware, backend.BackendNoop, backend.BackendVulkan:
	default:
		errs = append(errs, fmt.Errorf("%w: unknown backend %q", ErrInvalid, c.Device.Backend))
	}
	if a := c.Staging.Alignment; a < 4 || a&(a-1) != 0 {
		errs = append(errs, fmt.Errorf("%w: staging alignment %d is not a power of two >= 4", ErrInvalid, a))
	}
	seen := make(map[string]bool, len(c.Belts))
	for i, b := range c.Belts {
		switch {
		case b.Name == "":
			errs = append(errs, fmt.Errorf("%w: belt %d has no name", ErrInvalid, i))
		case seen[b.Name]:
			errs = append(errs, fmt.Errorf("%w: belt %q listed twice", ErrInvalid, b.Name))
		}
		seen[b.Name] = true
		switch {
		case b.ChunkSize == 0:
			errs = append(errs, fmt.Errorf("%w: belt %q has zero chunk_size", ErrInvalid, b.Name))
		case b.ChunkSize > maxChunkSize():
			errs = append(errs, fmt.Errorf("%w: belt %q chunk_size %d exceeds %d", ErrInvalid, b.Name, b.ChunkSize, maxChunkSize()))
		}
	}
	if c.Demo.Frames < 0 {
		errs = append(errs, fmt.Errorf("%w: demo frames %d is negative", ErrInvalid, c.Demo.Frames))
	}
	if c.Demo.Instances <= 0 {
		errs = append(errs, fmt.Errorf("%w: demo instances %d must be positive", ErrInvalid, c.Demo.Instances))
	}
	return errors.Join(errs...)
}

// maxChunkSize is the chunk limit of a factory built with the default
// options.
func maxChunkSize() uint64 {
	return gputypes.DefaultLimits().MaxBufferSize
}

// FactoryOptions returns the staging factory options of the configuration.
func (c *Config) FactoryOptions() []gpubuf.FactoryOption {
	return []gpubuf.FactoryOption{
		gpubuf.WithChunkAlignment(c.Staging.Alignment),
		gpubuf.WithFactoryLabel(c.Staging.Label),
	}
}

// NewFactory creates a staging factory for dev with every configured belt
// registered.
func (c *Config) NewFactory(dev gpubuf.Device) *gpubuf.StagingFactory {
	f := gpubuf.NewStagingFactory(dev, c.FactoryOptions()...)
	c.Apply(f)
	return f
}

// Apply registers every configured belt on f. Belts already registered
// on f are skipped.
func (c *Config) Apply(f *gpubuf.StagingFactory) {
	for _, b := range c.Belts {
		if f.Registered(b.Name) {
			continue
		}
		f.Register(b.Name, b.ChunkSize)
	}
}

// Belt returns the configured belt named name.
func (c *Config) Belt(name string) (Belt, bool) {
	for _, b := range c.Belts {
		if b.Name == name {
			return b, true
		}
	}
	return Belt{}, false
}
