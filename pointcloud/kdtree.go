package pointcloud

import (
	"context"
	"math"
	"sort"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/spatial/kdtree"

	"github.com/deeprodge/rock-detection-3d/utils"
)

// Neighbor is a single nearest-neighbor query result. Distance is Euclidean.
type Neighbor struct {
	Index    int
	Distance float64
}

// kdPoint satisfies kdtree.Comparable over a cloud position while carrying
// the original cloud index through queries.
type kdPoint struct {
	pos   r3.Vector
	index int
}

func (p kdPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(kdPoint)
	switch d {
	case 0:
		return p.pos.X - q.pos.X
	case 1:
		return p.pos.Y - q.pos.Y
	default:
		return p.pos.Z - q.pos.Z
	}
}

func (p kdPoint) Dims() int { return 3 }

// Distance returns the squared Euclidean distance, per the kdtree contract.
func (p kdPoint) Distance(c kdtree.Comparable) float64 {
	q := c.(kdPoint)
	return p.pos.Sub(q.pos).Norm2()
}

// kdPoints implements kdtree.Interface.
type kdPoints []kdPoint

func (p kdPoints) Index(i int) kdtree.Comparable         { return p[i] }
func (p kdPoints) Len() int                              { return len(p) }
func (p kdPoints) Pivot(d kdtree.Dim) int                { return kdPlane{Dim: d, kdPoints: p}.Pivot() }
func (p kdPoints) Slice(start, end int) kdtree.Interface { return p[start:end] }

// kdPlane helps kdPoints sort along a single dimension.
type kdPlane struct {
	kdtree.Dim
	kdPoints
}

func (p kdPlane) Less(i, j int) bool {
	switch p.Dim {
	case 0:
		return p.kdPoints[i].pos.X < p.kdPoints[j].pos.X
	case 1:
		return p.kdPoints[i].pos.Y < p.kdPoints[j].pos.Y
	default:
		return p.kdPoints[i].pos.Z < p.kdPoints[j].pos.Z
	}
}

func (p kdPlane) Pivot() int { return kdtree.Partition(p, kdtree.MedianOfMedians(p)) }

func (p kdPlane) Slice(start, end int) kdtree.SortSlicer {
	p.kdPoints = p.kdPoints[start:end]
	return p
}

func (p kdPlane) Swap(i, j int) {
	p.kdPoints[i], p.kdPoints[j] = p.kdPoints[j], p.kdPoints[i]
}

// KDTree is an immutable nearest-neighbor index over a snapshot of a cloud's
// positions. It is safe for concurrent queries; it must be rebuilt whenever
// the underlying point set changes.
type KDTree struct {
	tree *kdtree.Tree
	size int
}

// NewKDTree indexes every position of the given cloud.
func NewKDTree(cloud *Cloud) (*KDTree, error) {
	if cloud == nil || cloud.Size() == 0 {
		return nil, errors.Wrap(ErrEmptyInput, "cannot build kd-tree")
	}
	pts := make(kdPoints, cloud.Size())
	for i := range pts {
		pts[i] = kdPoint{pos: cloud.At(i), index: i}
	}
	return &KDTree{tree: kdtree.New(pts, false), size: len(pts)}, nil
}

// Size returns the number of indexed points.
func (kd *KDTree) Size() int {
	return kd.size
}

// NearestNeighbor returns the closest indexed point to p. Zero distance is a
// valid result for coincident points.
func (kd *KDTree) NearestNeighbor(p r3.Vector) Neighbor {
	c, dist := kd.tree.Nearest(kdPoint{pos: p, index: -1})
	return Neighbor{Index: c.(kdPoint).index, Distance: math.Sqrt(dist)}
}

// KNearestNeighbors returns up to k indexed points closest to p, sorted
// ascending by distance. Requesting more neighbors than the index holds
// returns the whole index.
func (kd *KDTree) KNearestNeighbors(p r3.Vector, k int) []Neighbor {
	if k <= 0 {
		return nil
	}
	if k > kd.size {
		k = kd.size
	}
	keep := kdtree.NewNKeeper(k)
	kd.tree.NearestSet(keep, kdPoint{pos: p, index: -1})
	return collectNeighbors(keep.Heap)
}

// RadiusNearestNeighbors returns all indexed points within radius of p,
// sorted ascending by distance.
func (kd *KDTree) RadiusNearestNeighbors(p r3.Vector, radius float64) []Neighbor {
	if radius < 0 {
		return nil
	}
	keep := kdtree.NewDistKeeper(radius * radius)
	kd.tree.NearestSet(keep, kdPoint{pos: p, index: -1})
	return collectNeighbors(keep.Heap)
}

// KNearestNeighborsBatch runs KNearestNeighbors for every query point,
// fanned out across bounded worker groups. Result i corresponds to pts[i].
func (kd *KDTree) KNearestNeighborsBatch(ctx context.Context, pts []r3.Vector, k int) ([][]Neighbor, error) {
	out := make([][]Neighbor, len(pts))
	err := utils.GroupWorkParallel(ctx, len(pts),
		func(numGroups int) {},
		func(groupNum, groupSize, from, to int) (utils.MemberWorkFunc, utils.GroupWorkDoneFunc) {
			return func(memberNum, workNum int) {
				out[workNum] = kd.KNearestNeighbors(pts[workNum], k)
			}, nil
		})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// collectNeighbors drops the keeper's sentinel entries and sorts ascending.
func collectNeighbors(heap kdtree.Heap) []Neighbor {
	nbrs := make([]Neighbor, 0, len(heap))
	for _, c := range heap {
		if c.Comparable == nil || math.IsInf(c.Dist, 1) {
			continue
		}
		nbrs = append(nbrs, Neighbor{Index: c.Comparable.(kdPoint).index, Distance: math.Sqrt(c.Dist)})
	}
	sort.Slice(nbrs, func(i, j int) bool {
		if nbrs[i].Distance == nbrs[j].Distance {
			return nbrs[i].Index < nbrs[j].Index
		}
		return nbrs[i].Distance < nbrs[j].Distance
	})
	return nbrs
}
