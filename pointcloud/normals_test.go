package pointcloud

import (
	"context"
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func makePlaneCloud(n int, spacing float64) *Cloud {
	cloud := NewWithPrealloc(n * n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			cloud.Append(r3.Vector{X: float64(i) * spacing, Y: float64(j) * spacing})
		}
	}
	return cloud
}

func TestEstimateNormalsPlane(t *testing.T) {
	cloud := makePlaneCloud(10, 0.1)
	params := NormalEstimationParams{Radius: 0.5, MaxNeighbors: 10, OrientationNeighbors: 8}
	err := EstimateNormals(context.Background(), cloud, params)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cloud.HasNormals(), test.ShouldBeTrue)

	// every point of a plane gets a unit normal along +-z
	for i := 0; i < cloud.Size(); i++ {
		n := cloud.Normal(i)
		test.That(t, n.Norm(), test.ShouldAlmostEqual, 1, 1e-9)
		test.That(t, math.Abs(n.Z), test.ShouldAlmostEqual, 1, 1e-6)
	}
}

func TestEstimateNormalsSparseNeighborhoods(t *testing.T) {
	cloud := New()
	cloud.Append(r3.Vector{})
	cloud.Append(r3.Vector{X: 10})
	cloud.Append(r3.Vector{X: 20})
	params := NormalEstimationParams{Radius: 0.1, MaxNeighbors: 3, OrientationNeighbors: 1}
	err := EstimateNormals(context.Background(), cloud, params)
	test.That(t, err, test.ShouldBeNil)
	// nothing else lands within the radius, so every normal is degenerate
	for i := 0; i < cloud.Size(); i++ {
		test.That(t, cloud.Normal(i), test.ShouldResemble, r3.Vector{})
	}

	filtered, removed, err := FilterDegenerateNormals(cloud, 1e-6)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, removed, test.ShouldEqual, 3)
	test.That(t, filtered.Size(), test.ShouldEqual, 0)
}

func TestEstimateNormalsValidation(t *testing.T) {
	cloud := makePlaneCloud(3, 0.1)
	err := EstimateNormals(context.Background(), cloud, NormalEstimationParams{Radius: 0, MaxNeighbors: 5, OrientationNeighbors: 5})
	test.That(t, err, test.ShouldNotBeNil)
	err = EstimateNormals(context.Background(), cloud, NormalEstimationParams{Radius: 1, MaxNeighbors: 2, OrientationNeighbors: 5})
	test.That(t, err, test.ShouldNotBeNil)
	err = EstimateNormals(context.Background(), New(), DefaultNormalEstimationParams())
	test.That(t, err, test.ShouldWrap, ErrEmptyInput)
}

func TestOrientNormalsConsistentTangentPlane(t *testing.T) {
	cloud := makePlaneCloud(10, 0.1)
	params := NormalEstimationParams{Radius: 0.5, MaxNeighbors: 10, OrientationNeighbors: 8}
	err := EstimateNormals(context.Background(), cloud, params)
	test.That(t, err, test.ShouldBeNil)

	// scramble the signs so propagation has real work to do
	for i := 0; i < cloud.Size(); i += 2 {
		cloud.SetNormal(i, cloud.Normal(i).Mul(-1))
	}

	err = OrientNormalsConsistentTangentPlane(context.Background(), cloud, params.OrientationNeighbors)
	test.That(t, err, test.ShouldBeNil)
	for i := 0; i < cloud.Size(); i++ {
		test.That(t, cloud.Normal(i).Z, test.ShouldBeGreaterThan, 0.9)
	}
}

func TestOrientNormalsErrors(t *testing.T) {
	err := OrientNormalsConsistentTangentPlane(context.Background(), New(), 5)
	test.That(t, err, test.ShouldWrap, ErrEmptyInput)

	cloud := makePlaneCloud(3, 0.1)
	err = OrientNormalsConsistentTangentPlane(context.Background(), cloud, 5)
	test.That(t, err, test.ShouldNotBeNil)

	cloud.SetNormal(0, r3.Vector{Z: 1})
	err = OrientNormalsConsistentTangentPlane(context.Background(), cloud, 0)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestFilterDegenerateNormals(t *testing.T) {
	cloud := makePlaneCloud(10, 0.1)
	params := NormalEstimationParams{Radius: 0.5, MaxNeighbors: 10, OrientationNeighbors: 8}
	err := EstimateNormals(context.Background(), cloud, params)
	test.That(t, err, test.ShouldBeNil)

	cloud.SetNormal(0, r3.Vector{})
	cloud.SetNormal(57, r3.Vector{})

	filtered, removed, err := FilterDegenerateNormals(cloud, 1e-6)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, removed, test.ShouldEqual, 2)
	test.That(t, filtered.Size(), test.ShouldEqual, cloud.Size()-2)
	for i := 0; i < filtered.Size(); i++ {
		test.That(t, filtered.Normal(i).Norm(), test.ShouldBeGreaterThan, 1e-6)
	}

	_, _, err = FilterDegenerateNormals(New(), 1e-6)
	test.That(t, err, test.ShouldWrap, ErrEmptyInput)
	noNormals := makePlaneCloud(2, 0.1)
	_, _, err = FilterDegenerateNormals(noNormals, 1e-6)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestInvertNormals(t *testing.T) {
	cloud := New()
	cloud.Append(r3.Vector{})
	cloud.SetNormal(0, r3.Vector{X: 0.5, Z: 1})
	InvertNormals(cloud)
	test.That(t, cloud.Normal(0), test.ShouldResemble, r3.Vector{X: -0.5, Z: -1})

	// no normal array means nothing to do
	bare := New()
	bare.Append(r3.Vector{})
	InvertNormals(bare)
	test.That(t, bare.HasNormals(), test.ShouldBeFalse)
}
