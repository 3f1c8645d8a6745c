package mesh

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// WritePLY writes the mesh as ASCII PLY. Densities, when present, are
// emitted as the conventional per-vertex "quality" property.
func WritePLY(m *Mesh, out io.Writer) error {
	w := bufio.NewWriter(out)
	if _, err := fmt.Fprintf(w, "ply\nformat ascii 1.0\nelement vertex %d\n"+
		"property double x\nproperty double y\nproperty double z\n", m.VertexCount()); err != nil {
		return err
	}
	if m.HasDensities() {
		if _, err := fmt.Fprintf(w, "property double quality\n"); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "element face %d\nproperty list uchar int vertex_indices\nend_header\n",
		m.TriangleCount()); err != nil {
		return err
	}
	for i := 0; i < m.VertexCount(); i++ {
		v := m.Vertex(i)
		var err error
		if m.HasDensities() {
			_, err = fmt.Fprintf(w, "%g %g %g %g\n", v.X, v.Y, v.Z, m.Density(i))
		} else {
			_, err = fmt.Fprintf(w, "%g %g %g\n", v.X, v.Y, v.Z)
		}
		if err != nil {
			return err
		}
	}
	for i := 0; i < m.TriangleCount(); i++ {
		t := m.Triangle(i)
		if _, err := fmt.Fprintf(w, "3 %d %d %d\n", t[0], t[1], t[2]); err != nil {
			return err
		}
	}
	return w.Flush()
}

// WritePLYFile writes the mesh to the named file.
func WritePLYFile(m *Mesh, fn string) (err error) {
	//nolint:gosec
	f, err := os.Create(fn)
	if err != nil {
		return errors.Wrapf(err, "cannot create PLY file %q", fn)
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	return WritePLY(m, f)
}

// ReadPLY reads an ASCII PLY mesh of the shape WritePLY produces: double
// x/y/z vertex properties, an optional trailing quality property, and
// integer-list faces.
func ReadPLY(in io.Reader) (*Mesh, error) {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var numVertices, numFaces int
	vertexProps := 0
	hasQuality := false
	inVertex := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		fields := strings.Fields(line)
		switch {
		case line == "ply" || len(fields) == 0 || fields[0] == "comment":
		case fields[0] == "format":
			if len(fields) < 2 || fields[1] != "ascii" {
				return nil, errors.Errorf("unsupported PLY format %q", line)
			}
		case fields[0] == "element" && len(fields) == 3:
			n, err := strconv.Atoi(fields[2])
			if err != nil {
				return nil, errors.Wrapf(err, "bad element line %q", line)
			}
			switch fields[1] {
			case "vertex":
				numVertices = n
				inVertex = true
			case "face":
				numFaces = n
				inVertex = false
			default:
				inVertex = false
			}
		case fields[0] == "property":
			if inVertex && len(fields) == 3 {
				vertexProps++
				if fields[2] == "quality" {
					hasQuality = true
				}
			}
		case line == "end_header":
			return readPLYBody(scanner, numVertices, numFaces, vertexProps, hasQuality)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return nil, errors.New("PLY header has no end_header")
}

func readPLYBody(scanner *bufio.Scanner, numVertices, numFaces, vertexProps int, hasQuality bool) (*Mesh, error) {
	if vertexProps < 3 {
		return nil, errors.Errorf("PLY vertex element has %d properties, need at least x y z", vertexProps)
	}
	m := New()
	var densities []float64
	for i := 0; i < numVertices; i++ {
		if !scanner.Scan() {
			return nil, errors.Errorf("PLY ends after %d of %d vertices", i, numVertices)
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) < vertexProps {
			return nil, errors.Errorf("vertex %d has %d values, want %d", i, len(fields), vertexProps)
		}
		var coords [3]float64
		for j := 0; j < 3; j++ {
			v, err := strconv.ParseFloat(fields[j], 64)
			if err != nil {
				return nil, errors.Wrapf(err, "bad vertex %d", i)
			}
			coords[j] = v
		}
		m.AddVertex(r3.Vector{X: coords[0], Y: coords[1], Z: coords[2]})
		if hasQuality {
			q, err := strconv.ParseFloat(fields[vertexProps-1], 64)
			if err != nil {
				return nil, errors.Wrapf(err, "bad quality on vertex %d", i)
			}
			densities = append(densities, q)
		}
	}
	if hasQuality {
		if err := m.SetDensities(densities); err != nil {
			return nil, err
		}
	}
	for i := 0; i < numFaces; i++ {
		if !scanner.Scan() {
			return nil, errors.Errorf("PLY ends after %d of %d faces", i, numFaces)
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) < 1 {
			return nil, errors.Errorf("empty face %d", i)
		}
		n, err := strconv.Atoi(fields[0])
		if err != nil || n != 3 || len(fields) < 4 {
			return nil, errors.Errorf("face %d is not a triangle: %q", i, scanner.Text())
		}
		var idx [3]int
		for j := 0; j < 3; j++ {
			v, err := strconv.Atoi(fields[j+1])
			if err != nil {
				return nil, errors.Wrapf(err, "bad face %d", i)
			}
			idx[j] = v
		}
		if err := m.AddTriangle(idx[0], idx[1], idx[2]); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ReadPLYFile reads a mesh from the named file.
func ReadPLYFile(fn string) (*Mesh, error) {
	//nolint:gosec
	f, err := os.Open(fn)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open PLY file %q", fn)
	}
	defer f.Close() //nolint:errcheck
	return ReadPLY(f)
}
