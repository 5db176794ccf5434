package scene

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/g3n/engine/loader/obj"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/hschendel/stl"
)

// Mesh is a triangle list without shared vertices: triangle i uses vertices 3i,
// 3i+1 and 3i+2, so every corner carries its own uv and normal.
type Mesh struct {
	Vertices []mgl32.Vec3
	UVs      []mgl32.Vec2
	Normals  []mgl32.Vec3
}

// Triangles is the number of triangles.
func (m *Mesh) Triangles() int {
	return len(m.Vertices) / 3
}

func (m *Mesh) addTriangle(v [3]mgl32.Vec3, uv [3]mgl32.Vec2, n [3]mgl32.Vec3) {
	face := faceNormal(v)
	for i := 0; i < 3; i++ {
		normal := n[i]
		if normal.Len() == 0 {
			normal = face
		} else {
			normal = normal.Normalize()
		}
		m.Vertices = append(m.Vertices, v[i])
		m.UVs = append(m.UVs, uv[i])
		m.Normals = append(m.Normals, normal)
	}
}

func faceNormal(v [3]mgl32.Vec3) mgl32.Vec3 {
	n := v[1].Sub(v[0]).Cross(v[2].Sub(v[0]))
	if n.Len() == 0 {
		return n
	}
	return n.Normalize()
}

// LoadMesh reads an OBJ or STL file, chosen by extension.
func LoadMesh(path string) (*Mesh, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".obj":
		return LoadOBJ(path)
	case ".stl":
		return LoadSTL(path)
	default:
		return nil, errors.Newf("unsupported mesh format %q", filepath.Ext(path))
	}
}

// LoadOBJ reads a Wavefront OBJ file. Polygons are fanned into triangles, V is
// flipped to the top-left texture origin and missing normals are replaced by the
// face normal. A material library next to the file is read when present.
func LoadOBJ(path string) (*Mesh, error) {
	meshFile, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer meshFile.Close()

	var matReader io.Reader = strings.NewReader("")
	matFile, err := os.Open(strings.TrimSuffix(path, filepath.Ext(path)) + ".mtl")
	if err == nil {
		defer matFile.Close()
		matReader = matFile
	}

	decoder, err := obj.DecodeReader(meshFile, matReader)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode %s", path)
	}

	mesh := &Mesh{}
	for _, decodedObj := range decoder.Objects {
		for _, face := range decodedObj.Faces {
			for i := 2; i < len(face.Vertices); i++ {
				corners := [3]int{0, i - 1, i}

				var v [3]mgl32.Vec3
				var uv [3]mgl32.Vec2
				var n [3]mgl32.Vec3
				for c, corner := range corners {
					vertInd := face.Vertices[corner]
					if vertInd < 0 || vertInd*3+2 >= len(decoder.Vertices) {
						return nil, errors.Newf("%s: vertex index %d out of range", path, vertInd)
					}
					v[c] = mgl32.Vec3{
						decoder.Vertices[vertInd*3],
						decoder.Vertices[vertInd*3+1],
						decoder.Vertices[vertInd*3+2],
					}

					if corner < len(face.Uvs) {
						uvInd := face.Uvs[corner]
						if uvInd >= 0 && uvInd*2+1 < len(decoder.Uvs) {
							uv[c] = mgl32.Vec2{
								decoder.Uvs[uvInd*2],
								1.0 - decoder.Uvs[uvInd*2+1],
							}
						}
					}

					if corner < len(face.Normals) {
						normInd := face.Normals[corner]
						if normInd >= 0 && normInd*3+2 < len(decoder.Normals) {
							n[c] = mgl32.Vec3{
								decoder.Normals[normInd*3],
								decoder.Normals[normInd*3+1],
								decoder.Normals[normInd*3+2],
							}
						}
					}
				}
				mesh.addTriangle(v, uv, n)
			}
		}
	}

	if mesh.Triangles() == 0 {
		return nil, errors.Newf("%s contains no faces", path)
	}
	return mesh, nil
}

// LoadSTL reads an ASCII or binary STL file. STL has no texture coordinates, so
// every uv is zero.
func LoadSTL(path string) (*Mesh, error) {
	solid, err := stl.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode %s", path)
	}

	mesh := &Mesh{}
	for _, t := range solid.Triangles {
		var v [3]mgl32.Vec3
		for i, vertex := range t.Vertices {
			v[i] = mgl32.Vec3(vertex)
		}
		normal := mgl32.Vec3(t.Normal)
		mesh.addTriangle(v, [3]mgl32.Vec2{}, [3]mgl32.Vec3{normal, normal, normal})
	}

	if mesh.Triangles() == 0 {
		return nil, errors.Newf("%s contains no faces", path)
	}
	return mesh, nil
}
