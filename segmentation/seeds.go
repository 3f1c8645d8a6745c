package segmentation

import (
	"math"

	"github.com/pkg/errors"

	"github.com/deeprodge/rock-detection-3d/pointcloud"
)

// SuggestSeeds computes one rock seed and one pedestal seed from geometry
// alone. The rock seed maximizes z minus xy-distance to the bounding-box
// centroid, favoring points that are both high and central (an apex
// approximation); the pedestal seed is the lowest point. Ties break to the
// first index, so the result is deterministic.
func SuggestSeeds(cloud *pointcloud.Cloud) (Seeds, error) {
	if cloud == nil || cloud.Size() == 0 {
		return Seeds{}, errors.Wrap(pointcloud.ErrEmptyInput, "cannot suggest seeds")
	}
	center := cloud.MetaData().Center()

	rockIdx := 0
	bestScore := math.Inf(-1)
	pedestalIdx := 0
	lowest := math.Inf(1)
	for i := 0; i < cloud.Size(); i++ {
		p := cloud.At(i)
		dx, dy := p.X-center.X, p.Y-center.Y
		score := p.Z - math.Hypot(dx, dy)
		if score > bestScore {
			bestScore = score
			rockIdx = i
		}
		if p.Z < lowest {
			lowest = p.Z
			pedestalIdx = i
		}
	}
	return Seeds{Rock: []int{rockIdx}, Pedestal: []int{pedestalIdx}}, nil
}
