package scene

// The types below are copied verbatim into storage buffers and must match the
// std430 structs in shaders/include/types.glsl, padding included.

// Ray is the primary ray of one output pixel, in camera space.
type Ray struct {
	Origin [4]float32
	Dir    [4]float32
}

// Sphere is an analytic sphere. Texture indexes the sampled image array, -1 for none.
// A sphere with a zero radius is never hit.
type Sphere struct {
	Pos           [4]float32
	Col           [4]float32
	R             float32
	Reflexivity   float32
	DiffuseFactor float32
	Texture       int32
}

// Model is a triangle mesh stored in the shared geometry buffers. Its triangles are
// Indices[IndicesStart:IndicesEnd] and its vertices, normals and uvs are
// [VertexStart:VertexEnd] of their buffers, in model space. Pos translates the model.
type Model struct {
	Pos           [4]float32
	Col           [4]float32
	IndicesStart  uint32
	IndicesEnd    uint32
	VertexStart   uint32
	VertexEnd     uint32
	Reflexivity   float32
	DiffuseFactor float32
	Texture       int32
	_             uint32
}

// PointLight radiates from Pos with an intensity falling off with distance.
type PointLight struct {
	Pos       [4]float32
	Col       [3]float32
	Intensity float32
}

// DirectionalLight shines along Dir, which is normalized.
type DirectionalLight struct {
	Dir       [4]float32
	Col       [3]float32
	Intensity float32
}

// Triangle holds three absolute vertex indices. The fourth is padding.
type Triangle [4]uint32
