package scene

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Geometry packs the meshes of every model into the shared vertex, uv, index and
// normal buffers.
type Geometry struct {
	Vertices [][4]float32
	UVs      [][2]float32
	Indices  []Triangle
	Normals  [][4]float32
	Models   []Model
}

// Add appends mesh as a new model and returns its index.
func (g *Geometry) Add(mesh *Mesh, m Model) int {
	m.VertexStart = uint32(len(g.Vertices))
	m.IndicesStart = uint32(len(g.Indices))

	for i := range mesh.Vertices {
		v, n := mesh.Vertices[i], mesh.Normals[i]
		g.Vertices = append(g.Vertices, [4]float32{v[0], v[1], v[2], 0})
		g.Normals = append(g.Normals, [4]float32{n[0], n[1], n[2], 0})
		g.UVs = append(g.UVs, [2]float32(mesh.UVs[i]))
	}
	for t := 0; t < mesh.Triangles(); t++ {
		base := m.VertexStart + uint32(3*t)
		g.Indices = append(g.Indices, Triangle{base, base + 1, base + 2, 0})
	}

	m.VertexEnd = uint32(len(g.Vertices))
	m.IndicesEnd = uint32(len(g.Indices))
	g.Models = append(g.Models, m)
	return len(g.Models) - 1
}

// Range is the vertex range of model i.
func (g *Geometry) Range(i int) (int, int) {
	return int(g.Models[i].VertexStart), int(g.Models[i].VertexEnd)
}

// padded returns the geometry with one inert element in every empty array, since
// buffers cannot be empty. The padding model has an empty triangle range.
func (g *Geometry) padded() Geometry {
	p := *g
	if len(p.Vertices) == 0 {
		p.Vertices = [][4]float32{{}}
		p.Normals = [][4]float32{{}}
		p.UVs = [][2]float32{{}}
	}
	if len(p.Indices) == 0 {
		p.Indices = []Triangle{{}}
	}
	if len(p.Models) == 0 {
		p.Models = []Model{{}}
	}
	return p
}

// RotateY rotates the xyz part of vecs about the y axis by angle radians.
func RotateY(vecs [][4]float32, angle float32) {
	q := mgl32.QuatRotate(angle, mgl32.Vec3{0, 1, 0})
	for i, v := range vecs {
		r := q.Rotate(mgl32.Vec3{v[0], v[1], v[2]})
		vecs[i] = [4]float32{r[0], r[1], r[2], v[3]}
	}
}
