// Package backend provides a registry of device backends.
//
// Backends register a factory under a name from an init() function and are
// opened at runtime by name, typically from configuration:
//
//	import (
//	    "github.com/gogpu/gpubuf/backend"
//	    _ "github.com/gogpu/gpubuf/backend/native"
//	    _ "github.com/gogpu/gpubuf/backend/software"
//	)
//
//	dev, err := backend.Open("software")
//	if err != nil {
//	    return err
//	}
//	defer dev.Close()
//
// # Available Backends
//
//   - software: in-memory device with readback (backend/software)
//   - noop: gogpu/wgpu HAL no-op device (backend/native)
//   - vulkan: gogpu/wgpu HAL Vulkan device (backend/native)
//
// Open returns a RenderDevice: a gpubuf.Device that can also record and
// submit the per-frame command buffer holding staging copies.
package backend
