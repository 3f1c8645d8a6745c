package segmentation

import (
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/deeprodge/rock-detection-3d/pointcloud"
)

func TestSuggestSeedsPyramid(t *testing.T) {
	cloud := pointcloud.New()
	cloud.Append(r3.Vector{X: -1, Y: -1, Z: 0})
	cloud.Append(r3.Vector{X: 1, Y: -1, Z: 0})
	cloud.Append(r3.Vector{X: -1, Y: 1, Z: 0})
	cloud.Append(r3.Vector{X: 1, Y: 1, Z: 0})
	cloud.Append(r3.Vector{X: 0, Y: 0, Z: 2})         // apex: high and central
	cloud.Append(r3.Vector{X: 0.5, Y: 0.5, Z: -1})    // bottom
	cloud.Append(r3.Vector{X: 0.9, Y: 0.9, Z: 1.9})   // high but off-center

	seeds, err := SuggestSeeds(cloud)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, seeds.Rock, test.ShouldResemble, []int{4})
	test.That(t, seeds.Pedestal, test.ShouldResemble, []int{5})
	test.That(t, seeds.Validate(cloud.Size()), test.ShouldBeNil)
}

func TestSuggestSeedsTieBreaksToFirstIndex(t *testing.T) {
	cloud := pointcloud.New()
	cloud.Append(r3.Vector{X: 1, Z: 5})
	cloud.Append(r3.Vector{X: -1, Z: 5})
	cloud.Append(r3.Vector{Y: 1, Z: -5})
	cloud.Append(r3.Vector{Y: -1, Z: -5})

	seeds, err := SuggestSeeds(cloud)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, seeds.Rock, test.ShouldResemble, []int{0})
	test.That(t, seeds.Pedestal, test.ShouldResemble, []int{2})
}

func TestSuggestSeedsDegenerateCloud(t *testing.T) {
	cloud := pointcloud.New()
	for i := 0; i < 3; i++ {
		cloud.Append(r3.Vector{X: 1, Y: 2, Z: 3})
	}
	seeds, err := SuggestSeeds(cloud)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, seeds.Rock, test.ShouldResemble, []int{0})
	test.That(t, seeds.Pedestal, test.ShouldResemble, []int{0})
}

func TestSuggestSeedsEmpty(t *testing.T) {
	_, err := SuggestSeeds(pointcloud.New())
	test.That(t, err, test.ShouldWrap, pointcloud.ErrEmptyInput)
	_, err = SuggestSeeds(nil)
	test.That(t, err, test.ShouldWrap, pointcloud.ErrEmptyInput)
}

func TestSeedsValidate(t *testing.T) {
	test.That(t, Seeds{Rock: []int{0}, Pedestal: []int{1}}.Validate(2), test.ShouldBeNil)
	test.That(t, Seeds{Pedestal: []int{0}}.Validate(2), test.ShouldWrap, ErrInvalidSeed)
	test.That(t, Seeds{Rock: []int{0}}.Validate(2), test.ShouldWrap, ErrInvalidSeed)
	test.That(t, Seeds{Rock: []int{2}, Pedestal: []int{0}}.Validate(2), test.ShouldWrap, ErrInvalidSeed)
	test.That(t, Seeds{Rock: []int{0}, Pedestal: []int{-1}}.Validate(2), test.ShouldWrap, ErrInvalidSeed)
}
