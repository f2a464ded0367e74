package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gogpu/gpubuf"
	"github.com/gogpu/gpubuf/backend/software"
	"github.com/gogpu/gputypes"
)

const sample = `
[device]
backend = "noop"
validate_shaders = true

[staging]
alignment = 16
label = "frame"

[[belt]]
name = "camera"
chunk_size = 64

[[belt]]
name = "lights"
chunk_size = 512

[demo]
frames = 3
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Device.Backend != "noop" || !cfg.Device.ValidateShaders {
		t.Errorf("Device = %+v", cfg.Device)
	}
	if cfg.Staging.Alignment != 16 || cfg.Staging.Label != "frame" {
		t.Errorf("Staging = %+v", cfg.Staging)
	}
	if len(cfg.Belts) != 2 {
		t.Fatalf("len(Belts) = %d, want 2", len(cfg.Belts))
	}
	if b, ok := cfg.Belt("lights"); !ok || b.ChunkSize != 512 {
		t.Errorf("Belt(lights) = %+v, %v", b, ok)
	}
	if cfg.Demo.Frames != 3 {
		t.Errorf("Demo.Frames = %d, want 3", cfg.Demo.Frames)
	}
	// Unset fields come from Default.
	if cfg.Demo.Instances != Default().Demo.Instances {
		t.Errorf("Demo.Instances = %d, want default %d", cfg.Demo.Instances, Default().Demo.Instances)
	}
}

func TestParseEmptyUsesDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse(nil) error = %v", err)
	}
	def := Default()
	if cfg.Device.Backend != def.Device.Backend {
		t.Errorf("Backend = %q, want %q", cfg.Device.Backend, def.Device.Backend)
	}
	if len(cfg.Belts) != len(def.Belts) {
		t.Errorf("len(Belts) = %d, want %d", len(cfg.Belts), len(def.Belts))
	}
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("[[belt]]\nname = \"a\"\nchunk_sise = 64\n"))
	if err == nil {
		t.Fatal("Parse() error = nil, want unknown key error")
	}
}

func TestParseSyntaxError(t *testing.T) {
	_, err := Parse([]byte("[device\nbackend = 1\n"))
	if err == nil || !strings.Contains(err.Error(), "line") {
		t.Errorf("Parse() error = %v, want a positioned error", err)
	}
}

func TestParseKeepsExplicitZero(t *testing.T) {
	cfg, err := Parse([]byte("[demo]\nframes = 0\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Demo.Frames != 0 {
		t.Errorf("Demo.Frames = %d, want 0", cfg.Demo.Frames)
	}
	if cfg.Demo.Instances != Default().Demo.Instances {
		t.Errorf("Demo.Instances = %d, want default %d", cfg.Demo.Instances, Default().Demo.Instances)
	}
}

func TestParseRejectsExplicitZero(t *testing.T) {
	for _, data := range []string{
		"[demo]\ninstances = 0\n",
		"[staging]\nalignment = 0\n",
		"[[belt]]\nname = \"a\"\nchunk_size = 0\n",
	} {
		if _, err := Parse([]byte(data)); !errors.Is(err, ErrInvalid) {
			t.Errorf("Parse(%q) error = %v, want ErrInvalid", data, err)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown backend", func(c *Config) { c.Device.Backend = "metal" }},
		{"bad alignment", func(c *Config) { c.Staging.Alignment = 6 }},
		{"unnamed belt", func(c *Config) { c.Belts = append(c.Belts, Belt{ChunkSize: 8}) }},
		{"duplicate belt", func(c *Config) { c.Belts = append(c.Belts, Belt{Name: "camera", ChunkSize: 8}) }},
		{"zero chunk", func(c *Config) { c.Belts[0].ChunkSize = 0 }},
		{"huge chunk", func(c *Config) { c.Belts[0].ChunkSize = gputypes.DefaultLimits().MaxBufferSize + 1 }},
		{"negative frames", func(c *Config) { c.Demo.Frames = -1 }},
		{"zero instances", func(c *Config) { c.Demo.Instances = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
				t.Errorf("Validate() error = %v, want ErrInvalid", err)
			}
		})
	}
	if err := Default().Validate(); err != nil {
		t.Errorf("Default().Validate() error = %v", err)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "belts.toml")
	if err := os.WriteFile(path, []byte(sample), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.Belts) != 2 {
		t.Errorf("len(Belts) = %d, want 2", len(cfg.Belts))
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Load(missing) error = %v, want os.ErrNotExist", err)
	}
}

func TestNewFactoryRegistersBelts(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	dev := software.New()
	f := cfg.NewFactory(dev)
	defer f.Destroy()

	for _, name := range []string{"camera", "lights"} {
		if !f.Registered(name) {
			t.Errorf("belt %q not registered", name)
		}
	}
	// Applying twice is harmless.
	cfg.Apply(f)

	target, err := dev.CreateBuffer(&gpubuf.BufferDescriptor{Label: "t", Size: 64, Usage: gputypes.BufferUsageCopyDst})
	if err != nil {
		t.Fatalf("CreateBuffer() error = %v", err)
	}
	enc := dev.CreateCommandEncoder("frame")
	f.With("lights", func(s *gpubuf.Stager) {
		for i := range 2 {
			if err := s.WriteBuffer(enc, target, uint64(i)*4, []byte{1, 2, 3, 4}); err != nil {
				t.Fatalf("WriteBuffer() error = %v", err)
			}
		}
	})
	if got := f.Stats("lights"); got.Active != 1 || got.Created != 1 {
		t.Errorf("Stats = %+v, want one active chunk", got)
	}
	if got := enc.Copies(); got != 2 {
		t.Errorf("Copies() = %d, want 2", got)
	}
}
