// Package gpubuf provides typed GPU buffers and frame-batched staging belts.
//
// # Overview
//
// gpubuf sits between a renderer's domain types and device memory. Vertex,
// index, instance, and uniform data are described as ordinary Go structs;
// the package sizes, lays out, and uploads them, and batches per-frame
// updates through named staging belts.
//
// # Typed Buffers
//
// Element types implement [Vertex] to describe their own layout:
//
//	type Vertex struct {
//	    Position [3]float32
//	    Color    [3]float32
//	}
//
//	func (Vertex) VertexLayout() gputypes.VertexBufferLayout {
//	    return gpubuf.NewLayout[Vertex](gputypes.VertexStepModeVertex, 0,
//	        gputypes.VertexFormatFloat32x3, gputypes.VertexFormatFloat32x3)
//	}
//
//	quad, err := gpubuf.NewIndexedBuffer(dev, vertices, indices, "quad", "quad-indices")
//
// [InstanceBuffer] converts domain objects into per-instance records and
// supports overwriting single slots afterwards. [Uniform] converts domain
// objects into uniform payloads.
//
// # Staging Belts
//
// A [StagingFactory] owns named belts of reusable chunks. Each frame:
//
//  1. Fetch a [Stager] per belt, write through it, release it.
//  2. Call [StagingFactory.SubmitAll].
//  3. Submit the command buffer holding the recorded copies.
//  4. Call [StagingFactory.RecallAll].
//
// Chunks return to their belt once the GPU work reading them completes, so
// steady-state frames allocate nothing.
//
// # Devices
//
// The package consumes the narrow [Device] and [CommandEncoder]
// interfaces. backend/software implements them in memory for tests and
// headless runs; backend/native adapts a gogpu/wgpu HAL device.
//
// # Logging
//
// gpubuf logs through [log/slog] and is silent by default; see [SetLogger].
package gpubuf
