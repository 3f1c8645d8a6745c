package pointcloud

import (
	"context"
	"math"
	"sort"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/traverse"
	"gonum.org/v1/gonum/mat"

	"github.com/deeprodge/rock-detection-3d/utils"
)

// NormalEstimationParams tunes PCA normal estimation. The hybrid rule
// considers up to MaxNeighbors nearest points but only those within Radius.
type NormalEstimationParams struct {
	Radius               float64
	MaxNeighbors         int
	OrientationNeighbors int
}

// DefaultNormalEstimationParams are the values the reconstruction
// preprocessor ships with.
func DefaultNormalEstimationParams() NormalEstimationParams {
	return NormalEstimationParams{
		Radius:               0.1,
		MaxNeighbors:         30,
		OrientationNeighbors: 30,
	}
}

// Validate checks the parameters for usability.
func (p NormalEstimationParams) Validate() error {
	if p.Radius <= 0 {
		return errors.Errorf("normal estimation radius must be positive, got %f", p.Radius)
	}
	if p.MaxNeighbors < 3 {
		return errors.Errorf("normal estimation needs at least 3 neighbors, got %d", p.MaxNeighbors)
	}
	if p.OrientationNeighbors < 1 {
		return errors.Errorf("orientation needs at least 1 neighbor, got %d", p.OrientationNeighbors)
	}
	return nil
}

// EstimateNormals computes a PCA normal per point using the hybrid
// radius/max-neighbor rule and stores it on the cloud. Points whose
// neighborhood is too small or degenerate get the zero normal; callers
// filter those with FilterDegenerateNormals.
func EstimateNormals(ctx context.Context, cloud *Cloud, params NormalEstimationParams) error {
	if err := params.Validate(); err != nil {
		return err
	}
	kd, err := NewKDTree(cloud)
	if err != nil {
		return err
	}
	normals := make([]r3.Vector, cloud.Size())
	err = utils.GroupWorkParallel(ctx, cloud.Size(),
		func(numGroups int) {},
		func(groupNum, groupSize, from, to int) (utils.MemberWorkFunc, utils.GroupWorkDoneFunc) {
			return func(memberNum, workNum int) {
				normals[workNum] = estimateNormal(cloud, kd, workNum, params)
			}, nil
		})
	if err != nil {
		return err
	}
	for i, n := range normals {
		cloud.SetNormal(i, n)
	}
	return nil
}

// estimateNormal fits a tangent plane to the hybrid neighborhood of point i
// and returns its unit normal, or the zero vector when the neighborhood is
// degenerate.
func estimateNormal(cloud *Cloud, kd *KDTree, i int, params NormalEstimationParams) r3.Vector {
	nbrs := kd.KNearestNeighbors(cloud.At(i), params.MaxNeighbors)
	pts := make([]r3.Vector, 0, len(nbrs))
	for _, nb := range nbrs {
		if nb.Distance > params.Radius {
			break
		}
		pts = append(pts, cloud.At(nb.Index))
	}
	if len(pts) < 3 {
		return r3.Vector{}
	}

	var centroid r3.Vector
	for _, p := range pts {
		centroid = centroid.Add(p)
	}
	centroid = centroid.Mul(1 / float64(len(pts)))

	var xx, xy, xz, yy, yz, zz float64
	for _, p := range pts {
		d := p.Sub(centroid)
		xx += d.X * d.X
		xy += d.X * d.Y
		xz += d.X * d.Z
		yy += d.Y * d.Y
		yz += d.Y * d.Z
		zz += d.Z * d.Z
	}
	cov := mat.NewSymDense(3, []float64{
		xx, xy, xz,
		xy, yy, yz,
		xz, yz, zz,
	})

	var eig mat.EigenSym
	if !eig.Factorize(cov, true) {
		return r3.Vector{}
	}
	var vecs mat.Dense
	eig.VectorsTo(&vecs)
	// eigenvalues come back ascending, so column 0 spans the direction of
	// least variance.
	n := r3.Vector{X: vecs.At(0, 0), Y: vecs.At(1, 0), Z: vecs.At(2, 0)}
	norm := n.Norm()
	if norm < 1e-12 || math.IsNaN(norm) {
		return r3.Vector{}
	}
	return n.Mul(1 / norm)
}

// OrientNormalsConsistentTangentPlane makes normal signs globally consistent
// by propagating orientation over the minimum spanning tree of the k-NN
// Riemannian graph, seeded from the highest point of each connected
// component (whose normal is made to point up).
func OrientNormalsConsistentTangentPlane(ctx context.Context, cloud *Cloud, k int) error {
	if cloud == nil || cloud.Size() == 0 {
		return errors.Wrap(ErrEmptyInput, "cannot orient normals")
	}
	if !cloud.HasNormals() {
		return errors.New("cloud has no normals to orient")
	}
	if k < 1 {
		return errors.Errorf("orientation needs at least 1 neighbor, got %d", k)
	}
	kd, err := NewKDTree(cloud)
	if err != nil {
		return err
	}

	n := cloud.Size()
	g := simple.NewWeightedUndirectedGraph(0, math.Inf(1))
	for i := 0; i < n; i++ {
		g.AddNode(simple.Node(i))
	}
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, nb := range kd.KNearestNeighbors(cloud.At(i), k+1) {
			if nb.Index == i {
				continue
			}
			// Riemannian weight: coplanar neighbors connect cheaply.
			w := 1 - math.Abs(cloud.Normal(i).Dot(cloud.Normal(nb.Index)))
			g.SetWeightedEdge(g.NewWeightedEdge(simple.Node(i), simple.Node(nb.Index), w))
		}
	}

	mst := simple.NewWeightedUndirectedGraph(0, math.Inf(1))
	path.Kruskal(mst, g)

	// Visit components from their highest point downward.
	roots := make([]int, n)
	for i := range roots {
		roots[i] = i
	}
	sort.Slice(roots, func(a, b int) bool { return cloud.At(roots[a]).Z > cloud.At(roots[b]).Z })

	visited := make([]bool, n)
	bf := traverse.BreadthFirst{
		Traverse: func(e graph.Edge) bool {
			u, v := int(e.From().ID()), int(e.To().ID())
			if cloud.Normal(u).Dot(cloud.Normal(v)) < 0 {
				cloud.SetNormal(v, cloud.Normal(v).Mul(-1))
			}
			return true
		},
	}
	for _, root := range roots {
		if visited[root] {
			continue
		}
		if cloud.Normal(root).Z < 0 {
			cloud.SetNormal(root, cloud.Normal(root).Mul(-1))
		}
		node := mst.Node(int64(root))
		if node == nil {
			visited[root] = true
			continue
		}
		bf.Reset()
		bf.Walk(mst, node, func(nd graph.Node, d int) bool {
			visited[int(nd.ID())] = true
			return false
		})
	}
	return nil
}

// FilterDegenerateNormals returns a new cloud without the points whose
// normal magnitude falls below minLength, keeping point/normal/color index
// correspondence intact, plus the number of points removed.
func FilterDegenerateNormals(cloud *Cloud, minLength float64) (*Cloud, int, error) {
	if cloud == nil || cloud.Size() == 0 {
		return nil, 0, errors.Wrap(ErrEmptyInput, "cannot filter normals")
	}
	if !cloud.HasNormals() {
		return nil, 0, errors.New("cloud has no normals to filter")
	}
	keep := make([]bool, cloud.Size())
	removed := 0
	for i := range keep {
		if cloud.Normal(i).Norm() >= minLength {
			keep[i] = true
		} else {
			removed++
		}
	}
	out, _, err := cloud.Select(keep)
	if err != nil {
		return nil, 0, err
	}
	return out, removed, nil
}

// InvertNormals flips the sign of every normal in place.
func InvertNormals(cloud *Cloud) {
	if !cloud.HasNormals() {
		return
	}
	for i := 0; i < cloud.Size(); i++ {
		cloud.SetNormal(i, cloud.Normal(i).Mul(-1))
	}
}
