// Command bufdemo drives an instanced quad grid through staging belts.
//
// Every frame the camera uniform and all instance matrices are rewritten
// through the "camera" and "instances" belts, submitted, and the belts are
// recalled once the device reports the frame's copies complete.
//
// Usage:
//
//	bufdemo -config belts.toml -backend software -frames 60 -verbose
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/charmbracelet/log"

	"github.com/gogpu/gpubuf"
	"github.com/gogpu/gpubuf/backend"
	"github.com/gogpu/gpubuf/backend/native"
	_ "github.com/gogpu/gpubuf/backend/software"
	"github.com/gogpu/gpubuf/config"
)

func main() {
	var (
		configPath  = flag.String("config", "", "TOML configuration file")
		backendName = flag.String("backend", "", "device backend (overrides the configuration)")
		frames      = flag.Int("frames", 0, "frames to render (overrides the configuration)")
		verbose     = flag.Bool("verbose", false, "log at debug level")
		validate    = flag.Bool("validate", false, "compile a vertex shader for the scene layouts")
	)
	flag.Parse()

	logger := newLogger(*verbose)
	gpubuf.SetLogger(logger)

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			logger.Error("load configuration", "err", err)
			os.Exit(1)
		}
	}
	if *backendName != "" {
		cfg.Device.Backend = *backendName
	}
	if *frames > 0 {
		cfg.Demo.Frames = *frames
	}
	if *validate {
		cfg.Device.ValidateShaders = true
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("bufdemo failed", "err", err)
		os.Exit(1)
	}
}

func newLogger(verbose bool) *slog.Logger {
	handler := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Prefix:          "bufdemo",
	})
	if verbose {
		handler.SetLevel(log.DebugLevel)
	}
	return slog.New(handler)
}

func run(cfg *config.Config, logger *slog.Logger) error {
	dev, err := backend.Open(cfg.Device.Backend)
	if err != nil {
		return err
	}
	defer dev.Close()

	scene, err := NewScene(dev, cfg.Demo.Instances)
	if err != nil {
		return err
	}
	defer scene.Destroy()

	if cfg.Device.ValidateShaders {
		if err := validateLayouts(dev, scene); err != nil {
			return err
		}
		logger.Info("vertex layouts validated", "backend", dev.Name())
	}

	factory := cfg.NewFactory(dev)
	defer factory.Destroy()
	for _, name := range []string{cameraBelt, instanceBelt} {
		if !factory.Registered(name) {
			return fmt.Errorf("bufdemo: configuration has no %q belt", name)
		}
	}

	start := time.Now()
	for t := range cfg.Demo.Frames {
		scene.Update(t)
		if err := renderFrame(dev, factory, scene, t); err != nil {
			return fmt.Errorf("frame %d: %w", t, err)
		}
	}
	elapsed := time.Since(start)

	for _, name := range []string{cameraBelt, instanceBelt} {
		st := factory.Stats(name)
		logger.Info("belt stats", "belt", st.Name, "chunk_size", st.ChunkSize,
			"created", st.Created, "free", st.Free, "pending", st.Pending)
	}
	logger.Info("done", "frames", cfg.Demo.Frames, "instances", len(scene.instances), "elapsed", elapsed)

	if z, ok := readFirstZ(dev, scene); ok {
		logger.Debug("first instance height", "z", z, "want", scene.instances[0].Z)
	}
	return nil
}

// renderFrame runs one frame of the staging protocol: stage, flush the
// belts, submit, then recall.
func renderFrame(dev backend.RenderDevice, factory *gpubuf.StagingFactory, scene *Scene, t int) error {
	frame, err := dev.BeginFrame(fmt.Sprintf("frame %d", t))
	if err != nil {
		return err
	}
	if err := scene.Stage(factory, frame); err != nil {
		frame.Discard()
		return err
	}
	if err := factory.SubmitAll(); err != nil {
		frame.Discard()
		return err
	}
	if err := frame.Submit(); err != nil {
		return err
	}
	return factory.RecallAll()
}

func validateLayouts(dev backend.RenderDevice, scene *Scene) error {
	if nd, ok := dev.(*native.Device); ok {
		return nd.CheckVertexInput("bufdemo vertex input", scene.Layouts()...)
	}
	_, err := native.ValidateVertexInput(scene.Layouts()...)
	return err
}

type bufferReader interface {
	ReadBuffer(buf gpubuf.DeviceBuffer, offset, size uint64) ([]byte, error)
}

// readFirstZ reads the translation z of instance 0 back from the device.
func readFirstZ(dev backend.RenderDevice, scene *Scene) (float32, bool) {
	r, ok := dev.(bufferReader)
	if !ok {
		return 0, false
	}
	data, err := r.ReadBuffer(scene.grid.Raw(), 14*4, 4)
	if err != nil {
		gpubuf.Logger().Debug("read back instance", "err", err)
		return 0, false
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(data)), true
}
