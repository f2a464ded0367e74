// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/gogpu/gpubuf"
	"github.com/gogpu/gpubuf/internal/shadercache"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"
)

// spirvCache holds vertex input shaders compiled by ValidateVertexInput.
var spirvCache = shadercache.New(64)

// CompileShaderToSPIRV compiles WGSL source with naga and returns the
// SPIR-V module as little-endian 32-bit words.
func CompileShaderToSPIRV(wgslSource string) ([]uint32, error) {
	code, err := naga.Compile(wgslSource)
	if err != nil {
		return nil, fmt.Errorf("native: compile WGSL: %w", err)
	}
	if len(code)%4 != 0 {
		return nil, fmt.Errorf("native: SPIR-V length %d is not a multiple of 4", len(code))
	}
	words := make([]uint32, len(code)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(code[i*4:])
	}
	return words, nil
}

// VertexInputShader returns a minimal WGSL vertex shader that consumes
// every attribute of layouts.
func VertexInputShader(layouts ...gputypes.VertexBufferLayout) (string, error) {
	input, err := gpubuf.WGSLVertexInput("VertexInput", layouts...)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString(input)
	b.WriteString("\n@vertex\nfn vs_main(v: VertexInput) -> @builtin(position) vec4<f32> {\n")
	b.WriteString("    return vec4<f32>(0.0, 0.0, 0.0, 1.0);\n}\n")
	return b.String(), nil
}

// ValidateVertexInput compiles a vertex shader reading layouts, checking
// that the layouts map to a WGSL input a pipeline can consume. Results are
// cached by shader source; the returned words must not be modified.
func ValidateVertexInput(layouts ...gputypes.VertexBufferLayout) ([]uint32, error) {
	src, err := VertexInputShader(layouts...)
	if err != nil {
		return nil, err
	}
	return spirvCache.Compile(src, CompileShaderToSPIRV)
}

// ShaderCacheStats reports usage of the vertex input shader cache.
func ShaderCacheStats() shadercache.Stats {
	return spirvCache.Stats()
}

// CheckVertexInput compiles a vertex shader reading layouts and creates a
// shader module from it on the device, then releases the module.
func (d *Device) CheckVertexInput(label string, layouts ...gputypes.VertexBufferLayout) error {
	spirv, err := ValidateVertexInput(layouts...)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	module, err := d.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label: label,
		Source: hal.ShaderSource{
			SPIRV: spirv,
		},
	})
	if err != nil {
		return fmt.Errorf("create shader module %q: %w", label, err)
	}
	d.device.DestroyShaderModule(module)
	return nil
}
