package segmentation

import (
	"context"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/deeprodge/rock-detection-3d/pointcloud"
	"github.com/deeprodge/rock-detection-3d/utils"
)

// BoundaryFillParams configures boundary-filling point synthesis.
type BoundaryFillParams struct {
	// Count is the number of points interpolated per basal point, both
	// endpoints included.
	Count int
	// Samples candidates are placed along the ray between MinStep and
	// MaxStep away from the basal point.
	Samples int
	MinStep float64
	MaxStep float64
	// A candidate is a valid intersection iff its nearest-neighbor distance
	// lies in the open band (MinHit, MaxHit): on existing geometry, but not
	// the coincident basal point itself.
	MinHit float64
	MaxHit float64
	// Fraction of the basal list (from the head) to process. 1 processes
	// every basal point; 0.5 reproduces the legacy half-list cutoff.
	Fraction float64
}

// DefaultBoundaryFillParams are the values the tool ships with.
func DefaultBoundaryFillParams() BoundaryFillParams {
	return BoundaryFillParams{
		Count:    10,
		Samples:  100,
		MinStep:  0.5,
		MaxStep:  2.0,
		MinHit:   1e-6,
		MaxHit:   0.05,
		Fraction: 1.0,
	}
}

// Validate checks the parameter ranges.
func (p BoundaryFillParams) Validate() error {
	if p.Count < 2 {
		return errors.Errorf("interpolation count must be at least 2 to include both endpoints, got %d", p.Count)
	}
	if p.Samples < 1 {
		return errors.Errorf("need at least 1 ray sample, got %d", p.Samples)
	}
	if p.MinStep <= 0 || p.MaxStep <= p.MinStep {
		return errors.Errorf("step range [%f,%f] is not usable", p.MinStep, p.MaxStep)
	}
	if p.MinHit < 0 || p.MaxHit <= p.MinHit {
		return errors.Errorf("hit band (%g,%g) is not usable", p.MinHit, p.MaxHit)
	}
	if p.Fraction < 0 || p.Fraction > 1 {
		return errors.Errorf("fraction must be in [0,1], got %f", p.Fraction)
	}
	return nil
}

// BoundaryFillResult carries the augmented cloud and where the synthesized
// points start within it.
type BoundaryFillResult struct {
	// Cloud is the filtered input plus the synthesized points, colored for
	// diagnostics: originals red, ray-origin basal points cyan, synthesized
	// points blue.
	Cloud *pointcloud.Cloud
	// NewStart is the index of the first synthesized point in Cloud; every
	// index below it maps one-to-one onto the input cloud.
	NewStart int
	// Synthesized is the number of points added.
	Synthesized int
	// Skipped counts basal points that produced nothing: no valid
	// intersection, or a degenerate direction to the centroid.
	Skipped int
}

// FillBoundary synthesizes points that close the open bottom surface of the
// rock. For every basal point it casts a ray toward the centroid of all
// basal points, finds the first candidate whose nearest neighbor lies in the
// acceptance band, and interpolates Count points from the basal point to
// that hit. Basal points are processed independently across bounded worker
// groups; tasks only read the shared kd-tree and centroid, and results join
// into the output once, so the content is deterministic.
//
// The input cloud is not mutated; basalIndices index into it.
func FillBoundary(
	ctx context.Context,
	cloud *pointcloud.Cloud,
	basalIndices []int,
	params BoundaryFillParams,
	logger golog.Logger,
) (*BoundaryFillResult, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if cloud == nil || cloud.Size() == 0 {
		return nil, errors.Wrap(pointcloud.ErrEmptyInput, "cannot fill boundary")
	}
	for _, idx := range basalIndices {
		if idx < 0 || idx >= cloud.Size() {
			return nil, errors.Errorf("basal index %d out of range [0,%d)", idx, cloud.Size())
		}
	}

	out := cloud.Clone()
	out.PaintUniform(colorRock)
	for _, idx := range basalIndices {
		out.SetColor(idx, colorBasal)
	}
	result := &BoundaryFillResult{Cloud: out, NewStart: out.Size()}
	if len(basalIndices) == 0 {
		return result, nil
	}

	var centroid r3.Vector
	for _, idx := range basalIndices {
		centroid = centroid.Add(cloud.At(idx))
	}
	centroid = centroid.Mul(1 / float64(len(basalIndices)))

	kd, err := pointcloud.NewKDTree(cloud)
	if err != nil {
		return nil, err
	}

	limit := int(params.Fraction * float64(len(basalIndices)))
	if limit > len(basalIndices) {
		limit = len(basalIndices)
	}

	// one result slot per task; no cross-task mutation
	filled := make([][]r3.Vector, limit)
	err = utils.GroupWorkParallel(ctx, limit,
		func(numGroups int) {},
		func(groupNum, groupSize, from, to int) (utils.MemberWorkFunc, utils.GroupWorkDoneFunc) {
			return func(memberNum, workNum int) {
				filled[workNum] = fillFromBasalPoint(cloud, kd, cloud.At(basalIndices[workNum]), centroid, params)
			}, nil
		})
	if err != nil {
		return nil, err
	}

	for _, pts := range filled {
		if pts == nil {
			result.Skipped++
			continue
		}
		for _, p := range pts {
			out.AppendColored(p, colorNew)
		}
		result.Synthesized += len(pts)
	}
	logger.Debugw("boundary filling done",
		"basal", len(basalIndices), "processed", limit,
		"synthesized", result.Synthesized, "skipped", result.Skipped)
	return result, nil
}

// fillFromBasalPoint walks candidates along the ray from b toward the basal
// centroid and interpolates up to the first valid surface hit. A nil return
// means b contributed nothing.
func fillFromBasalPoint(
	cloud *pointcloud.Cloud,
	kd *pointcloud.KDTree,
	b, centroid r3.Vector,
	params BoundaryFillParams,
) []r3.Vector {
	dir := centroid.Sub(b)
	norm := dir.Norm()
	if norm < 1e-12 {
		// basal point sits on the centroid; no usable direction
		return nil
	}
	dir = dir.Mul(1 / norm)

	var opposite r3.Vector
	found := false
	for i := 0; i < params.Samples; i++ {
		s := params.MinStep
		if params.Samples > 1 {
			s += (params.MaxStep - params.MinStep) * float64(i) / float64(params.Samples-1)
		}
		nb := kd.NearestNeighbor(b.Add(dir.Mul(s)))
		if nb.Distance > params.MinHit && nb.Distance < params.MaxHit {
			opposite = cloud.At(nb.Index)
			found = true
			break
		}
	}
	if !found {
		return nil
	}

	pts := make([]r3.Vector, params.Count)
	span := opposite.Sub(b)
	for j := 0; j < params.Count; j++ {
		t := float64(j) / float64(params.Count-1)
		pts[j] = b.Add(span.Mul(t))
	}
	return pts
}
