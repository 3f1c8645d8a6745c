package segmentation

import (
	"context"

	"github.com/pkg/errors"

	"github.com/deeprodge/rock-detection-3d/pointcloud"
)

// NearestSeedSegmenter is a geometric baseline that stands in where the real
// region-growing collaborator is not wired: every point takes the class of
// its nearest seed point. It honors the Segmenter contract but ignores the
// smoothness and curvature thresholds, which only region growing consumes.
type NearestSeedSegmenter struct{}

// Segment labels every point by its nearest seed's class.
func (s *NearestSeedSegmenter) Segment(
	ctx context.Context,
	cloud *pointcloud.Cloud,
	seeds Seeds,
	thresholds Thresholds,
) (Labels, error) {
	if err := thresholds.Validate(); err != nil {
		return nil, err
	}
	if err := seeds.Validate(cloud.Size()); err != nil {
		return nil, err
	}
	labels := make(Labels, cloud.Size())
	for i := range labels {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p := cloud.At(i)
		best := Unlabeled
		bestDist := 0.0
		for _, idx := range seeds.Rock {
			if d := p.Sub(cloud.At(idx)).Norm2(); best == Unlabeled || d < bestDist {
				best, bestDist = Rock, d
			}
		}
		for _, idx := range seeds.Pedestal {
			if d := p.Sub(cloud.At(idx)).Norm2(); d < bestDist {
				best, bestDist = Pedestal, d
			}
		}
		labels[i] = best
	}
	return labels, nil
}

// PropagateLabels backfills unlabeled points as rock, matching how the
// region grower finalizes unreached points before export.
func (s *NearestSeedSegmenter) PropagateLabels(ctx context.Context, labels Labels) (Labels, error) {
	if labels == nil {
		return nil, errors.New("no labels to propagate")
	}
	out := make(Labels, len(labels))
	for i, l := range labels {
		if l == Unlabeled {
			l = Rock
		}
		out[i] = l
	}
	return out, nil
}
