package pointcloud

import (
	"image/color"
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// VoxelCoords stores voxel coordinates in voxel grid axes.
type VoxelCoords struct {
	I, J, K int64
}

// IsEqual tests if two VoxelCoords are the same.
func (c VoxelCoords) IsEqual(c2 VoxelCoords) bool {
	return c.I == c2.I && c.J == c2.J && c.K == c2.K
}

// GetVoxelCoordinates computes the voxel coordinates of a point in a grid
// anchored at ptMin with cubic voxels of the given size.
func GetVoxelCoordinates(pt, ptMin r3.Vector, voxelSize float64) VoxelCoords {
	return VoxelCoords{
		I: int64(math.Floor((pt.X - ptMin.X) / voxelSize)),
		J: int64(math.Floor((pt.Y - ptMin.Y) / voxelSize)),
		K: int64(math.Floor((pt.Z - ptMin.Z) / voxelSize)),
	}
}

// voxelAccumulator gathers the points that fall into one voxel.
type voxelAccumulator struct {
	sum      r3.Vector
	colorSum [3]int
	count    int
}

// VoxelDownsample returns a new cloud with one point per occupied voxel, each
// the centroid of the points that fell in it. Colors, when present, average
// the same way. Output order follows first occupancy, so the result is
// deterministic for a given input order. The recentering offset carries over.
func VoxelDownsample(cloud *Cloud, voxelSize float64) (*Cloud, error) {
	if cloud == nil || cloud.Size() == 0 {
		return nil, errors.Wrap(ErrEmptyInput, "cannot downsample")
	}
	if voxelSize <= 0 {
		return nil, errors.Errorf("voxel size must be positive, got %f", voxelSize)
	}

	meta := cloud.MetaData()
	ptMin := r3.Vector{X: meta.MinX, Y: meta.MinY, Z: meta.MinZ}

	occupied := make(map[VoxelCoords]*voxelAccumulator)
	order := make([]VoxelCoords, 0, cloud.Size())
	for i := 0; i < cloud.Size(); i++ {
		p := cloud.At(i)
		coords := GetVoxelCoordinates(p, ptMin, voxelSize)
		acc, ok := occupied[coords]
		if !ok {
			acc = &voxelAccumulator{}
			occupied[coords] = acc
			order = append(order, coords)
		}
		acc.sum = acc.sum.Add(p)
		if cloud.HasColors() {
			c := cloud.Color(i)
			acc.colorSum[0] += int(c.R)
			acc.colorSum[1] += int(c.G)
			acc.colorSum[2] += int(c.B)
		}
		acc.count++
	}

	out := NewWithPrealloc(len(order))
	out.SetOffset(cloud.Offset())
	for _, coords := range order {
		acc := occupied[coords]
		n := float64(acc.count)
		out.Append(acc.sum.Mul(1 / n))
		if cloud.HasColors() {
			out.SetColor(out.Size()-1, color.NRGBA{
				R: uint8(acc.colorSum[0] / acc.count),
				G: uint8(acc.colorSum[1] / acc.count),
				B: uint8(acc.colorSum[2] / acc.count),
				A: 255,
			})
		}
	}
	return out, nil
}
