// Package pointcloud defines an index-addressable 3D point cloud and the
// spatial operations the rock extraction pipeline is built on: kd-tree
// nearest-neighbor indexing, voxel downsampling, normal estimation, and LAS
// persistence.
//
// The point index is the stable identity used by seeds, labels and masks.
// Optional color and normal arrays are parallel to the position array; they
// are either nil or exactly as long as the position array.
package pointcloud

import (
	"image/color"
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// ErrEmptyInput is returned by operations that cannot work with zero points.
var ErrEmptyInput = errors.New("point cloud has no points")

// defaultGray is the color backfilled onto points appended before any color
// was set, matching the neutral paint used for unlabeled points.
var defaultGray = color.NRGBA{128, 128, 128, 255}

// MetaData is data about what's stored in the point cloud.
type MetaData struct {
	HasColor  bool
	HasNormal bool

	MinX, MaxX float64
	MinY, MaxY float64
	MinZ, MaxZ float64
}

// NewMetaData creates a new MetaData.
func NewMetaData() MetaData {
	return MetaData{
		MinX: math.MaxFloat64,
		MinY: math.MaxFloat64,
		MinZ: math.MaxFloat64,
		MaxX: -math.MaxFloat64,
		MaxY: -math.MaxFloat64,
		MaxZ: -math.MaxFloat64,
	}
}

// Merge updates the meta data with the new point.
func (meta *MetaData) Merge(v r3.Vector) {
	if v.X > meta.MaxX {
		meta.MaxX = v.X
	}
	if v.Y > meta.MaxY {
		meta.MaxY = v.Y
	}
	if v.Z > meta.MaxZ {
		meta.MaxZ = v.Z
	}
	if v.X < meta.MinX {
		meta.MinX = v.X
	}
	if v.Y < meta.MinY {
		meta.MinY = v.Y
	}
	if v.Z < meta.MinZ {
		meta.MinZ = v.Z
	}
}

// Center returns the center of the bounding box.
func (meta *MetaData) Center() r3.Vector {
	return r3.Vector{
		X: (meta.MinX + meta.MaxX) / 2,
		Y: (meta.MinY + meta.MaxY) / 2,
		Z: (meta.MinZ + meta.MaxZ) / 2,
	}
}

// Cloud is a dense, index-addressable point cloud. Growth is append-only so
// indices handed out by one stage stay valid for every later consumer of the
// same cloud value.
type Cloud struct {
	positions []r3.Vector
	colors    []color.NRGBA
	normals   []r3.Vector

	// offset is the recentering translation subtracted from every point at
	// load time; export adds it back.
	offset r3.Vector

	meta MetaData
}

// New returns an empty point cloud.
func New() *Cloud {
	return NewWithPrealloc(0)
}

// NewWithPrealloc returns an empty point cloud with capacity for size points.
func NewWithPrealloc(size int) *Cloud {
	return &Cloud{
		positions: make([]r3.Vector, 0, size),
		meta:      NewMetaData(),
	}
}

// Size returns the number of points in the cloud.
func (cloud *Cloud) Size() int {
	return len(cloud.positions)
}

// MetaData returns the cloud's running bounds and channel info.
func (cloud *Cloud) MetaData() MetaData {
	return cloud.meta
}

// At returns the position of the i-th point.
func (cloud *Cloud) At(i int) r3.Vector {
	return cloud.positions[i]
}

// Append adds a point to the end of the cloud, backfilling parallel arrays
// if they are in use.
func (cloud *Cloud) Append(p r3.Vector) {
	cloud.positions = append(cloud.positions, p)
	if cloud.colors != nil {
		cloud.colors = append(cloud.colors, defaultGray)
	}
	if cloud.normals != nil {
		cloud.normals = append(cloud.normals, r3.Vector{})
	}
	cloud.meta.Merge(p)
}

// AppendColored adds a point with a color to the end of the cloud.
func (cloud *Cloud) AppendColored(p r3.Vector, c color.NRGBA) {
	cloud.Append(p)
	cloud.SetColor(cloud.Size()-1, c)
}

// HasColors reports whether the color array is in use.
func (cloud *Cloud) HasColors() bool {
	return cloud.colors != nil
}

// Color returns the color of the i-th point, defaulting to gray when the
// color array is not in use.
func (cloud *Cloud) Color(i int) color.NRGBA {
	if cloud.colors == nil {
		return defaultGray
	}
	return cloud.colors[i]
}

// SetColor sets the color of the i-th point, allocating the color array on
// first use.
func (cloud *Cloud) SetColor(i int, c color.NRGBA) {
	cloud.ensureColors()
	cloud.colors[i] = c
}

// PaintUniform sets every point to the same color.
func (cloud *Cloud) PaintUniform(c color.NRGBA) {
	cloud.ensureColors()
	for i := range cloud.colors {
		cloud.colors[i] = c
	}
}

func (cloud *Cloud) ensureColors() {
	if cloud.colors == nil {
		cloud.colors = make([]color.NRGBA, len(cloud.positions))
		for i := range cloud.colors {
			cloud.colors[i] = defaultGray
		}
		cloud.meta.HasColor = true
	}
}

// HasNormals reports whether the normal array is in use.
func (cloud *Cloud) HasNormals() bool {
	return cloud.normals != nil
}

// Normal returns the normal of the i-th point. The zero vector means no
// normal has been estimated.
func (cloud *Cloud) Normal(i int) r3.Vector {
	if cloud.normals == nil {
		return r3.Vector{}
	}
	return cloud.normals[i]
}

// SetNormal sets the normal of the i-th point, allocating the normal array
// on first use.
func (cloud *Cloud) SetNormal(i int, n r3.Vector) {
	if cloud.normals == nil {
		cloud.normals = make([]r3.Vector, len(cloud.positions))
		cloud.meta.HasNormal = true
	}
	cloud.normals[i] = n
}

// Offset is the recentering translation subtracted from the persisted frame
// at load time.
func (cloud *Cloud) Offset() r3.Vector {
	return cloud.offset
}

// SetOffset records the recentering translation for later export.
func (cloud *Cloud) SetOffset(o r3.Vector) {
	cloud.offset = o
}

// Clone returns a deep copy of the cloud.
func (cloud *Cloud) Clone() *Cloud {
	out := &Cloud{
		positions: append([]r3.Vector(nil), cloud.positions...),
		offset:    cloud.offset,
		meta:      cloud.meta,
	}
	if cloud.colors != nil {
		out.colors = append([]color.NRGBA(nil), cloud.colors...)
	}
	if cloud.normals != nil {
		out.normals = append([]r3.Vector(nil), cloud.normals...)
	}
	return out
}

// Select returns a new cloud holding the points where keep is true, along
// with the original index of every kept point. keep must be exactly as long
// as the cloud.
func (cloud *Cloud) Select(keep []bool) (*Cloud, []int, error) {
	if len(keep) != cloud.Size() {
		return nil, nil, errors.Errorf("selection mask has %d entries for %d points", len(keep), cloud.Size())
	}
	out := NewWithPrealloc(cloud.Size())
	out.offset = cloud.offset
	indices := make([]int, 0, cloud.Size())
	for i, k := range keep {
		if !k {
			continue
		}
		out.Append(cloud.positions[i])
		if cloud.colors != nil {
			out.SetColor(out.Size()-1, cloud.colors[i])
		}
		if cloud.normals != nil {
			out.SetNormal(out.Size()-1, cloud.normals[i])
		}
		indices = append(indices, i)
	}
	return out, indices, nil
}
