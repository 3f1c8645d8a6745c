package pointcloud

import (
	"image/color"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func TestGetVoxelCoordinates(t *testing.T) {
	ptMin := r3.Vector{}
	c := GetVoxelCoordinates(r3.Vector{X: 0.25, Y: 0.99, Z: 1.0}, ptMin, 0.5)
	test.That(t, c.IsEqual(VoxelCoords{I: 0, J: 1, K: 2}), test.ShouldBeTrue)

	// anchored grids shift with ptMin
	c = GetVoxelCoordinates(r3.Vector{X: 0.25}, r3.Vector{X: -1}, 0.5)
	test.That(t, c.IsEqual(VoxelCoords{I: 2}), test.ShouldBeTrue)
}

func TestVoxelDownsampleCentroids(t *testing.T) {
	cloud := New()
	// two tight clusters far apart
	cloud.Append(r3.Vector{X: 0, Y: 0, Z: 0})
	cloud.Append(r3.Vector{X: 0.01, Y: 0, Z: 0})
	cloud.Append(r3.Vector{X: 1, Y: 1, Z: 1})
	cloud.Append(r3.Vector{X: 1.01, Y: 1, Z: 1})
	cloud.SetOffset(r3.Vector{X: 42})

	down, err := VoxelDownsample(cloud, 0.1)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, down.Size(), test.ShouldEqual, 2)
	test.That(t, down.Offset(), test.ShouldResemble, cloud.Offset())

	// first-occupancy order keeps the clusters in input order
	test.That(t, down.At(0).X, test.ShouldAlmostEqual, 0.005, 1e-12)
	test.That(t, down.At(0).Y, test.ShouldEqual, 0)
	test.That(t, down.At(1).X, test.ShouldAlmostEqual, 1.005, 1e-12)
	test.That(t, down.At(1).Z, test.ShouldEqual, 1)
}

func TestVoxelDownsampleColors(t *testing.T) {
	cloud := New()
	cloud.AppendColored(r3.Vector{}, color.NRGBA{100, 0, 0, 255})
	cloud.AppendColored(r3.Vector{X: 0.01}, color.NRGBA{200, 0, 0, 255})

	down, err := VoxelDownsample(cloud, 0.1)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, down.Size(), test.ShouldEqual, 1)
	test.That(t, down.HasColors(), test.ShouldBeTrue)
	test.That(t, down.Color(0), test.ShouldResemble, color.NRGBA{150, 0, 0, 255})
}

func TestVoxelDownsampleVoxelSizeLargerThanExtent(t *testing.T) {
	cloud := New()
	for i := 0; i < 10; i++ {
		cloud.Append(r3.Vector{X: float64(i) * 0.001})
	}
	down, err := VoxelDownsample(cloud, 10)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, down.Size(), test.ShouldEqual, 1)
	test.That(t, down.At(0).X, test.ShouldAlmostEqual, 0.0045, 1e-12)
}

func TestVoxelDownsampleErrors(t *testing.T) {
	_, err := VoxelDownsample(New(), 0.1)
	test.That(t, err, test.ShouldWrap, ErrEmptyInput)
	_, err = VoxelDownsample(nil, 0.1)
	test.That(t, err, test.ShouldWrap, ErrEmptyInput)

	cloud := New()
	cloud.Append(r3.Vector{})
	_, err = VoxelDownsample(cloud, 0)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = VoxelDownsample(cloud, -1)
	test.That(t, err, test.ShouldNotBeNil)
}
