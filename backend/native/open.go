// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"fmt"

	"github.com/gogpu/gpubuf"
	"github.com/gogpu/gpubuf/backend"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
)

func init() {
	backend.Register(backend.BackendNoop, factory(OpenNoop))
	backend.Register(backend.BackendVulkan, factory(OpenVulkan))
}

// factory adapts an opener to backend.Factory without leaking a typed nil.
func factory(open func() (*Device, error)) backend.Factory {
	return func() (backend.RenderDevice, error) {
		d, err := open()
		if err != nil {
			return nil, err
		}
		return d, nil
	}
}

// OpenNoop opens a device on the HAL no-op backend. Commands are accepted
// and validated but nothing executes; fences signal immediately.
func OpenNoop() (*Device, error) {
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		return nil, fmt.Errorf("create noop instance: %w", err)
	}
	return openInstance(instance, backend.BackendNoop)
}

// OpenVulkan opens a device on the first discrete or integrated GPU of the
// Vulkan backend, falling back to the first adapter found.
func OpenVulkan() (*Device, error) {
	api, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return nil, fmt.Errorf("%w: vulkan", ErrBackendUnavailable)
	}
	instance, err := api.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("create instance: %w", err)
	}
	return openInstance(instance, backend.BackendVulkan)
}

// openInstance opens the preferred adapter of instance. The returned
// device owns instance.
func openInstance(instance hal.Instance, name string) (*Device, error) {
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, ErrNoGPU
	}
	var selected *hal.ExposedAdapter
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	if selected == nil {
		selected = &adapters[0]
	}
	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("open device: %w", err)
	}
	d, err := newDevice(openDev.Device, openDev.Queue, name)
	if err != nil {
		openDev.Device.Destroy()
		instance.Destroy()
		return nil, err
	}
	d.instance = instance
	d.owned = true
	gpubuf.Logger().Info("native: device opened", "backend", name, "adapter", selected.Info.Name)
	return d, nil
}
