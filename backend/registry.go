package backend

import (
	"fmt"
	"slices"
	"sync"

	"github.com/gogpu/gpubuf"
)

// Factory opens a new device.
type Factory func() (RenderDevice, error)

var (
	registryMu sync.RWMutex
	backends   = make(map[string]Factory)

	// OpenDefault tries these in order. A real GPU wins over software.
	backendPriority = []string{BackendVulkan, BackendSoftware}
)

// Register makes a backend available under name, replacing any previous
// registration. Backend packages call it from init.
func Register(name string, factory Factory) {
	registryMu.Lock()
	backends[name] = factory
	registryMu.Unlock()
}

// Unregister removes the backend registered under name.
func Unregister(name string) {
	registryMu.Lock()
	delete(backends, name)
	registryMu.Unlock()
}

// Available returns the sorted names of all registered backends.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// IsRegistered reports whether a backend is registered under name.
func IsRegistered(name string) bool {
	_, ok := lookup(name)
	return ok
}

func lookup(name string) (Factory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := backends[name]
	return f, ok
}

// Open opens a device from the backend registered under name.
func Open(name string) (RenderDevice, error) {
	open, ok := lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q (registered: %v)", ErrBackendNotAvailable, name, Available())
	}
	dev, err := open()
	if err != nil {
		return nil, fmt.Errorf("open %s backend: %w", name, err)
	}
	gpubuf.Logger().Info("backend: device opened", "backend", name)
	return dev, nil
}

// OpenDefault opens the first registered backend in priority order that
// opens successfully. Preferred backends that fail are logged at warn
// level and skipped.
func OpenDefault() (RenderDevice, error) {
	for _, name := range backendPriority {
		if !IsRegistered(name) {
			continue
		}
		dev, err := Open(name)
		if err == nil {
			return dev, nil
		}
		gpubuf.Logger().Warn("backend: falling back", "backend", name, "err", err)
	}
	return nil, ErrBackendNotAvailable
}
