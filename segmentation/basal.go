package segmentation

import (
	"context"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/deeprodge/rock-detection-3d/pointcloud"
)

// BasalParams tunes basal-point detection.
type BasalParams struct {
	// Neighborhood is the k of the k-NN query, the queried point included.
	Neighborhood int
	// MixtureThreshold is tau: a point is basal iff its rock ratio lies in
	// [tau, 1-tau]. Must be in [0, 0.5]; 0 marks everything, 0.5 nothing.
	MixtureThreshold float64
}

// DefaultBasalParams are the values the tool ships with.
func DefaultBasalParams() BasalParams {
	return BasalParams{Neighborhood: 30, MixtureThreshold: 0.35}
}

// Validate checks the parameter ranges.
func (p BasalParams) Validate() error {
	if p.Neighborhood < 1 {
		return errors.Errorf("basal neighborhood must be at least 1, got %d", p.Neighborhood)
	}
	if p.MixtureThreshold < 0 || p.MixtureThreshold > 0.5 {
		return errors.Errorf("mixture threshold must be in [0,0.5], got %f", p.MixtureThreshold)
	}
	return nil
}

// DetectBasalPoints marks the points whose k-neighborhood is a genuine
// mixture of rock and pedestal labels, i.e. the transitional ring where the
// rock meets the pedestal. Labels are read-only; the returned mask is
// point-index-parallel.
func DetectBasalPoints(ctx context.Context, cloud *pointcloud.Cloud, labels Labels, params BasalParams) ([]bool, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if len(labels) != cloud.Size() {
		return nil, errors.Errorf("have %d labels for %d points", len(labels), cloud.Size())
	}
	kd, err := pointcloud.NewKDTree(cloud)
	if err != nil {
		return nil, errors.Wrap(err, "cannot detect basal points")
	}

	queries := make([]r3.Vector, cloud.Size())
	for i := range queries {
		queries[i] = cloud.At(i)
	}
	neighborhoods, err := kd.KNearestNeighborsBatch(ctx, queries, params.Neighborhood)
	if err != nil {
		return nil, err
	}

	tau := params.MixtureThreshold
	mask := make([]bool, cloud.Size())
	if tau == 0.5 {
		// the band collapses; an exact 50/50 neighborhood still does not
		// count as a mixture at the degenerate threshold
		return mask, nil
	}
	for i, nbrs := range neighborhoods {
		if len(nbrs) == 0 {
			continue
		}
		rock := 0
		for _, nb := range nbrs {
			if labels[nb.Index] == Rock {
				rock++
			}
		}
		ratio := float64(rock) / float64(len(nbrs))
		mask[i] = tau <= ratio && ratio <= 1-tau
	}
	return mask, nil
}
