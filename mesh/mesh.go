// Package mesh provides the triangle mesh container produced by surface
// reconstruction, with PLY persistence and density-based trimming.
package mesh

import (
	"github.com/golang/geo/r3"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
)

// Triangle references three vertices by index.
type Triangle [3]int

// Mesh is a vertex and triangle container. Densities, when present, are
// vertex-parallel reconstruction confidence values.
type Mesh struct {
	vertices  []r3.Vector
	triangles []Triangle
	densities []float64
}

// New returns an empty mesh.
func New() *Mesh {
	return &Mesh{}
}

// NewFromData builds a mesh and validates that every triangle references
// existing vertices and that densities, when given, are vertex-parallel.
func NewFromData(vertices []r3.Vector, triangles []Triangle, densities []float64) (*Mesh, error) {
	if densities != nil && len(densities) != len(vertices) {
		return nil, errors.Errorf("have %d densities for %d vertices", len(densities), len(vertices))
	}
	for ti, tri := range triangles {
		for _, vi := range tri {
			if vi < 0 || vi >= len(vertices) {
				return nil, errors.Errorf("triangle %d references vertex %d of %d", ti, vi, len(vertices))
			}
		}
	}
	return &Mesh{vertices: vertices, triangles: triangles, densities: densities}, nil
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int {
	return len(m.vertices)
}

// TriangleCount returns the number of triangles.
func (m *Mesh) TriangleCount() int {
	return len(m.triangles)
}

// Vertex returns the i-th vertex.
func (m *Mesh) Vertex(i int) r3.Vector {
	return m.vertices[i]
}

// Triangle returns the i-th triangle.
func (m *Mesh) Triangle(i int) Triangle {
	return m.triangles[i]
}

// HasDensities reports whether per-vertex densities are present.
func (m *Mesh) HasDensities() bool {
	return m.densities != nil
}

// Density returns the reconstruction density of the i-th vertex.
func (m *Mesh) Density(i int) float64 {
	return m.densities[i]
}

// AddVertex appends a vertex and returns its index.
func (m *Mesh) AddVertex(v r3.Vector) int {
	m.vertices = append(m.vertices, v)
	return len(m.vertices) - 1
}

// SetDensities attaches a vertex-parallel density channel.
func (m *Mesh) SetDensities(densities []float64) error {
	if len(densities) != len(m.vertices) {
		return errors.Errorf("have %d densities for %d vertices", len(densities), len(m.vertices))
	}
	m.densities = densities
	return nil
}

// AddTriangle appends a triangle referencing existing vertices.
func (m *Mesh) AddTriangle(a, b, c int) error {
	for _, vi := range []int{a, b, c} {
		if vi < 0 || vi >= len(m.vertices) {
			return errors.Errorf("triangle references vertex %d of %d", vi, len(m.vertices))
		}
	}
	m.triangles = append(m.triangles, Triangle{a, b, c})
	return nil
}

// TrimByDensityQuantile returns a new mesh without the vertices whose
// reconstruction density falls below the q quantile (q in [0,1]), dropping
// any triangle that references a removed vertex. This is the usual cleanup
// for the low-confidence fringe a Poisson reconstruction grows over sparse
// regions.
func (m *Mesh) TrimByDensityQuantile(q float64) (*Mesh, error) {
	if m.densities == nil {
		return nil, errors.New("mesh has no densities to trim by")
	}
	if q < 0 || q > 1 {
		return nil, errors.Errorf("quantile must be in [0,1], got %f", q)
	}
	if q == 0 || len(m.vertices) == 0 {
		return m.clone(), nil
	}
	cutoff, err := stats.Percentile(stats.Float64Data(m.densities), q*100)
	if err != nil {
		return nil, errors.Wrap(err, "cannot compute density quantile")
	}

	remap := make([]int, len(m.vertices))
	out := New()
	keptDensities := make([]float64, 0, len(m.vertices))
	for i, v := range m.vertices {
		if m.densities[i] < cutoff {
			remap[i] = -1
			continue
		}
		remap[i] = out.AddVertex(v)
		keptDensities = append(keptDensities, m.densities[i])
	}
	if err := out.SetDensities(keptDensities); err != nil {
		return nil, err
	}
	for _, tri := range m.triangles {
		a, b, c := remap[tri[0]], remap[tri[1]], remap[tri[2]]
		if a < 0 || b < 0 || c < 0 {
			continue
		}
		if err := out.AddTriangle(a, b, c); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (m *Mesh) clone() *Mesh {
	out := &Mesh{
		vertices:  append([]r3.Vector(nil), m.vertices...),
		triangles: append([]Triangle(nil), m.triangles...),
	}
	if m.densities != nil {
		out.densities = append([]float64(nil), m.densities...)
	}
	return out
}
