package scene

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/hschendel/stl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const quadOBJ = `o quad
v 0 0 0
v 1 0 0
v 1 1 0
v 0 1 0
vt 0 0
vt 1 0
vt 1 1
vt 0 1
vn 0 0 2
f 1/1/1 2/2/1 3/3/1 4/4/1
`

func writeAsset(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadOBJFansPolygons(t *testing.T) {
	mesh, err := LoadMesh(writeAsset(t, "quad.obj", quadOBJ))
	require.NoError(t, err)

	require.Equal(t, 2, mesh.Triangles())
	assert.Equal(t, []mgl32.Vec3{
		{0, 0, 0}, {1, 0, 0}, {1, 1, 0},
		{0, 0, 0}, {1, 1, 0}, {0, 1, 0},
	}, mesh.Vertices)

	// V is flipped.
	assert.Equal(t, mgl32.Vec2{0, 1}, mesh.UVs[0])
	assert.Equal(t, mgl32.Vec2{1, 0}, mesh.UVs[2])

	for _, n := range mesh.Normals {
		assert.Equal(t, mgl32.Vec3{0, 0, 1}, n)
	}
}

func TestLoadOBJComputesMissingNormals(t *testing.T) {
	mesh, err := LoadOBJ(writeAsset(t, "tri.obj", "o tri\nv 0 0 0\nv 1 0 0\nv 1 1 0\nf 1 2 3\n"))
	require.NoError(t, err)

	require.Equal(t, 1, mesh.Triangles())
	for i := 0; i < 3; i++ {
		assert.InDeltaSlice(t, []float32{0, 0, 1}, mesh.Normals[i][:], 1e-6)
		assert.Equal(t, mgl32.Vec2{}, mesh.UVs[i])
	}
}

func TestLoadOBJWithoutFaces(t *testing.T) {
	_, err := LoadOBJ(writeAsset(t, "empty.obj", "o nothing\nv 0 0 0\n"))
	assert.Error(t, err)
}

func TestLoadSTL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tri.stl")
	solid := &stl.Solid{
		Name: "tri",
		Triangles: []stl.Triangle{
			{
				Vertices: [3]stl.Vec3{{0, 0, 0}, {0, 1, 0}, {1, 0, 0}},
			},
			{
				Normal:   stl.Vec3{0, 3, 0},
				Vertices: [3]stl.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 0, 1}},
			},
		},
	}
	require.NoError(t, solid.WriteFile(path))

	mesh, err := LoadMesh(path)
	require.NoError(t, err)
	require.Equal(t, 2, mesh.Triangles())

	// The first facet has no stored normal.
	assert.InDeltaSlice(t, []float32{0, 0, -1}, mesh.Normals[0][:], 1e-6)
	assert.InDeltaSlice(t, []float32{0, 1, 0}, mesh.Normals[3][:], 1e-6)
	assert.Equal(t, mgl32.Vec3{0, 1, 0}, mesh.Vertices[1])
	assert.Equal(t, mgl32.Vec2{}, mesh.UVs[5])
}

func TestLoadMeshUnknownFormat(t *testing.T) {
	_, err := LoadMesh(writeAsset(t, "mesh.ply", "ply\n"))
	assert.Error(t, err)

	_, err = LoadMesh(filepath.Join(t.TempDir(), "missing.obj"))
	assert.Error(t, err)
}

func TestGeometryAdd(t *testing.T) {
	tri := &Mesh{
		Vertices: []mgl32.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}},
		UVs:      []mgl32.Vec2{{0, 0}, {1, 0}, {0, 1}},
		Normals:  []mgl32.Vec3{{0, 0, 1}, {0, 0, 1}, {0, 0, 1}},
	}

	var g Geometry
	assert.Equal(t, 0, g.Add(tri, Model{Pos: [4]float32{1, 2, 3, 0}}))
	assert.Equal(t, 1, g.Add(tri, Model{Texture: 1}))

	assert.Len(t, g.Vertices, 6)
	assert.Len(t, g.UVs, 6)
	assert.Len(t, g.Normals, 6)
	assert.Equal(t, []Triangle{{0, 1, 2, 0}, {3, 4, 5, 0}}, g.Indices)

	second := g.Models[1]
	assert.Equal(t, uint32(3), second.VertexStart)
	assert.Equal(t, uint32(6), second.VertexEnd)
	assert.Equal(t, uint32(1), second.IndicesStart)
	assert.Equal(t, uint32(2), second.IndicesEnd)
	assert.Equal(t, int32(1), second.Texture)
	assert.Equal(t, [4]float32{1, 2, 3, 0}, g.Models[0].Pos)

	start, end := g.Range(1)
	assert.Equal(t, 3, start)
	assert.Equal(t, 6, end)
}

func TestGeometryPadded(t *testing.T) {
	var g Geometry
	p := g.padded()
	assert.Len(t, p.Vertices, 1)
	assert.Len(t, p.UVs, 1)
	assert.Len(t, p.Normals, 1)
	assert.Len(t, p.Indices, 1)
	require.Len(t, p.Models, 1)
	assert.Equal(t, p.Models[0].IndicesStart, p.Models[0].IndicesEnd)

	// The geometry itself is unchanged.
	assert.Empty(t, g.Models)
}

func TestRotateY(t *testing.T) {
	vecs := [][4]float32{{0, 0, 1, 0}, {0, 5, 0, 7}}
	RotateY(vecs, float32(mgl32.DegToRad(90)))

	assert.InDeltaSlice(t, []float32{1, 0, 0, 0}, vecs[0][:], 1e-6)
	assert.InDeltaSlice(t, []float32{0, 5, 0, 7}, vecs[1][:], 1e-6)
}

func TestLoadShippedCube(t *testing.T) {
	mesh, err := LoadMesh(filepath.Join("..", "meshes", "cube.obj"))
	require.NoError(t, err)
	assert.Equal(t, 12, mesh.Triangles())

	// Every face normal points away from the center.
	for i, v := range mesh.Vertices {
		assert.Greater(t, v.Dot(mesh.Normals[i]), float32(0))
	}
}
