package main

import (
	"fmt"
	"math"

	"github.com/gogpu/gpubuf"
	"github.com/gogpu/gputypes"
)

// Belt names used by the scene.
const (
	cameraBelt   = "camera"
	instanceBelt = "instances"
)

// Vertex is a colored quad corner.
type Vertex struct {
	Pos   [3]float32
	Color [3]float32
}

func (Vertex) VertexLayout() gputypes.VertexBufferLayout {
	return gpubuf.NewLayout[Vertex](gputypes.VertexStepModeVertex, 0,
		gputypes.VertexFormatFloat32x3, gputypes.VertexFormatFloat32x3)
}

// InstanceRaw is the per-instance model matrix, column-major.
type InstanceRaw struct {
	Model [16]float32
}

func (InstanceRaw) VertexLayout() gputypes.VertexBufferLayout {
	return gpubuf.NewLayout[InstanceRaw](gputypes.VertexStepModeInstance, 5,
		gputypes.VertexFormatFloat32x4, gputypes.VertexFormatFloat32x4,
		gputypes.VertexFormatFloat32x4, gputypes.VertexFormatFloat32x4)
}

// Instance is a grid cell in world space.
type Instance struct {
	X, Y, Z float32
}

func (i Instance) raw() InstanceRaw {
	return InstanceRaw{Model: [16]float32{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		i.X, i.Y, i.Z, 1,
	}}
}

// CameraUniform is the view-projection matrix as the shader sees it.
type CameraUniform struct {
	ViewProj [16]float32
}

// Camera is an orthographic camera centered on the grid.
type Camera struct {
	HalfWidth, HalfHeight float32
	Near, Far             float32
}

func (c Camera) Uniform() CameraUniform {
	sx := 1 / c.HalfWidth
	sy := 1 / c.HalfHeight
	sz := 1 / (c.Far - c.Near)
	return CameraUniform{ViewProj: [16]float32{
		sx, 0, 0, 0,
		0, sy, 0, 0,
		0, 0, sz, 0,
		0, 0, -c.Near * sz, 1,
	}}
}

var quadVertices = []Vertex{
	{Pos: [3]float32{-0.4, -0.4, 0}, Color: [3]float32{1, 0, 0}},
	{Pos: [3]float32{0.4, -0.4, 0}, Color: [3]float32{0, 1, 0}},
	{Pos: [3]float32{0.4, 0.4, 0}, Color: [3]float32{0, 0, 1}},
	{Pos: [3]float32{-0.4, 0.4, 0}, Color: [3]float32{1, 1, 0}},
}

var quadIndices = []uint16{0, 1, 2, 2, 3, 0}

// wave is the grid height of cell (x, y) at frame t.
func wave(t, x, y int) float32 {
	return float32(math.Sin(float64(t)/120 + float64(x+y+2)/4))
}

// Scene owns the device buffers of the instanced quad grid.
type Scene struct {
	perRow    int
	instances []Instance
	camera    Camera

	quad    *gpubuf.IndexedBuffer[Vertex]
	grid    *gpubuf.InstanceBuffer[InstanceRaw]
	uniform *gpubuf.UniformBuffer[CameraUniform]
}

// NewScene uploads a perRow x perRow grid of quads.
func NewScene(dev gpubuf.Device, perRow int) (*Scene, error) {
	if perRow <= 0 {
		return nil, fmt.Errorf("bufdemo: %d instances per row", perRow)
	}
	s := &Scene{
		perRow: perRow,
		camera: Camera{
			HalfWidth:  float32(perRow) / 2,
			HalfHeight: float32(perRow) / 2,
			Near:       -2,
			Far:        2,
		},
	}
	s.instances = make([]Instance, 0, perRow*perRow)
	half := float32(perRow-1) / 2
	for y := range perRow {
		for x := range perRow {
			s.instances = append(s.instances, Instance{X: float32(x) - half, Y: float32(y) - half, Z: wave(0, x, y)})
		}
	}

	var err error
	if s.quad, err = gpubuf.NewIndexedBuffer(dev, quadVertices, quadIndices, "quad", "quad-indices"); err != nil {
		return nil, err
	}
	if s.grid, err = gpubuf.NewInstanceBuffer(dev, s.instances, Instance.raw, "instances"); err != nil {
		s.Destroy()
		return nil, err
	}
	if s.uniform, err = gpubuf.NewUniformBuffer[CameraUniform](dev, s.camera, "camera"); err != nil {
		s.Destroy()
		return nil, err
	}
	return s, nil
}

// Layouts returns the vertex buffer layouts of the scene's pipeline.
func (s *Scene) Layouts() []gputypes.VertexBufferLayout {
	return []gputypes.VertexBufferLayout{s.quad.Layout(), s.grid.Layout()}
}

// Update advances the grid to frame t.
func (s *Scene) Update(t int) {
	for i := range s.instances {
		s.instances[i].Z = wave(t, i%s.perRow, i/s.perRow)
	}
}

// Stage records the frame's camera and instance uploads on enc.
func (s *Scene) Stage(f *gpubuf.StagingFactory, enc gpubuf.CommandEncoder) error {
	var err error
	f.With(cameraBelt, func(st *gpubuf.Stager) {
		err = s.uniform.Stage(enc, st, s.camera)
	})
	if err != nil {
		return err
	}
	f.With(instanceBelt, func(st *gpubuf.Stager) {
		var view []byte
		view, err = st.StagingArea(enc, s.grid.Raw(), 0, s.grid.Raw().Size())
		if err != nil {
			return
		}
		for i, inst := range s.instances {
			gpubuf.OverwriteSingleInView(view, s.grid, inst, i, Instance.raw)
		}
	})
	return err
}

// Destroy releases the scene's buffers.
func (s *Scene) Destroy() {
	if s.quad != nil {
		s.quad.Destroy()
	}
	if s.grid != nil {
		s.grid.Destroy()
	}
	if s.uniform != nil {
		s.uniform.Destroy()
	}
}
