// Package pipeline sequences the rock extraction stages of a single run over
// immutable stage outputs: load, seeding, external segmentation, basal
// detection, boundary filling, and surface reconstruction. Re-entering a
// stage invalidates everything downstream of it; nothing is patched
// incrementally.
package pipeline

import (
	"context"
	"fmt"

	"github.com/edaniels/golog"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/deeprodge/rock-detection-3d/mesh"
	"github.com/deeprodge/rock-detection-3d/pointcloud"
	"github.com/deeprodge/rock-detection-3d/reconstruction"
	"github.com/deeprodge/rock-detection-3d/segmentation"
)

// Stage identifies progress through a run.
type Stage int

const (
	// StageLoaded means the working cloud is ready.
	StageLoaded Stage = iota
	// StageSeedsReady means rock and pedestal seeds are chosen.
	StageSeedsReady
	// StageSegmented means the external segmenter labeled the cloud.
	StageSegmented
	// StageBasalReady means the basal mask and the filtered rock+basal cloud exist.
	StageBasalReady
	// StageBoundaryFilled means synthesized boundary points are merged in.
	StageBoundaryFilled
	// StageReconstructed means the mesh exists.
	StageReconstructed
)

func (s Stage) String() string {
	switch s {
	case StageLoaded:
		return "Loaded"
	case StageSeedsReady:
		return "SeedsReady"
	case StageSegmented:
		return "Segmented"
	case StageBasalReady:
		return "BasalReady"
	case StageBoundaryFilled:
		return "BoundaryFilled"
	case StageReconstructed:
		return "Reconstructed"
	default:
		return fmt.Sprintf("Stage(%d)", int(s))
	}
}

// ErrStageOrder is returned when a stage is invoked before its prerequisite
// stage has completed.
var ErrStageOrder = errors.New("pipeline stage invoked out of order")

// Params collects every operator-tunable value with the defaults the tool
// ships with.
type Params struct {
	// VoxelSize downsamples the working cloud before seeding; 0 disables.
	VoxelSize    float64
	Thresholds   segmentation.Thresholds
	Basal        segmentation.BasalParams
	BoundaryFill segmentation.BoundaryFillParams
	Preprocess   reconstruction.PreprocessParams
	Poisson      reconstruction.PoissonParams
}

// DefaultParams returns the shipped defaults.
func DefaultParams() Params {
	return Params{
		VoxelSize:    0.01,
		Thresholds:   segmentation.DefaultThresholds(),
		Basal:        segmentation.DefaultBasalParams(),
		BoundaryFill: segmentation.DefaultBoundaryFillParams(),
		Preprocess:   reconstruction.DefaultPreprocessParams(),
		Poisson:      reconstruction.DefaultPoissonParams(),
	}
}

// Validate checks every parameter group.
func (p Params) Validate() error {
	if p.VoxelSize < 0 {
		return errors.Errorf("voxel size must be non-negative, got %f", p.VoxelSize)
	}
	if err := p.Thresholds.Validate(); err != nil {
		return err
	}
	if err := p.Basal.Validate(); err != nil {
		return err
	}
	if err := p.BoundaryFill.Validate(); err != nil {
		return err
	}
	if err := p.Preprocess.Normals.Validate(); err != nil {
		return err
	}
	return p.Poisson.Validate()
}

// StageEvent notifies observers that a stage produced an artifact.
type StageEvent struct {
	RunID  uuid.UUID
	Stage  Stage
	Detail string
}

// Observer receives stage events after each transition. Implementations must
// not block; the core never renders anything itself.
type Observer func(StageEvent)

// Run holds the outputs of each completed stage of one extraction run. The
// input cloud is never mutated; every stage output is a fresh value.
type Run struct {
	id        uuid.UUID
	logger    golog.Logger
	observers []Observer
	params    Params

	stage Stage

	input   *pointcloud.Cloud
	working *pointcloud.Cloud

	seeds         segmentation.Seeds
	labels        segmentation.Labels
	basal         []bool
	filtered      *pointcloud.Cloud
	filteredIdx   []int
	filteredBasal []int
	fill          *segmentation.BoundaryFillResult
	reconstructed *mesh.Mesh
}

// NewRun starts a run over the given cloud, applying the voxel downsample if
// configured. The input cloud is retained untouched for export.
func NewRun(cloud *pointcloud.Cloud, params Params, logger golog.Logger, observers ...Observer) (*Run, error) {
	if cloud == nil || cloud.Size() == 0 {
		return nil, errors.Wrap(pointcloud.ErrEmptyInput, "cannot start run")
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	working := cloud
	if params.VoxelSize > 0 {
		var err error
		working, err = pointcloud.VoxelDownsample(cloud, params.VoxelSize)
		if err != nil {
			return nil, errors.Wrap(err, "downsampling failed")
		}
	} else {
		working = cloud.Clone()
	}
	r := &Run{
		id:        uuid.New(),
		logger:    logger,
		observers: observers,
		params:    params,
		stage:     StageLoaded,
		input:     cloud,
		working:   working,
	}
	r.notify(StageLoaded, fmt.Sprintf("%d points (from %d)", working.Size(), cloud.Size()))
	return r, nil
}

// ID returns the run's unique identifier.
func (r *Run) ID() uuid.UUID { return r.id }

// Stage returns the last completed stage.
func (r *Run) Stage() Stage { return r.stage }

// Cloud returns the working (downsampled) cloud the stages operate on.
func (r *Run) Cloud() *pointcloud.Cloud { return r.working }

// Seeds returns the chosen seeds.
func (r *Run) Seeds() segmentation.Seeds { return r.seeds }

// Labels returns the segmentation labels.
func (r *Run) Labels() segmentation.Labels { return r.labels }

// BasalMask returns the basal mask over the working cloud.
func (r *Run) BasalMask() []bool { return r.basal }

// FillResult returns the boundary filling output.
func (r *Run) FillResult() *segmentation.BoundaryFillResult { return r.fill }

// Mesh returns the reconstructed mesh.
func (r *Run) Mesh() *mesh.Mesh { return r.reconstructed }

// SuggestSeeds computes seeds from geometry and moves the run to SeedsReady,
// discarding any downstream stage outputs.
func (r *Run) SuggestSeeds() (segmentation.Seeds, error) {
	seeds, err := segmentation.SuggestSeeds(r.working)
	if err != nil {
		return segmentation.Seeds{}, err
	}
	r.seeds = seeds
	r.invalidateAfter(StageSeedsReady)
	r.advance(StageSeedsReady, fmt.Sprintf("rock seed %d, pedestal seed %d", seeds.Rock[0], seeds.Pedestal[0]))
	return seeds, nil
}

// SetSeeds installs operator-picked seeds and moves the run to SeedsReady,
// discarding any downstream stage outputs.
func (r *Run) SetSeeds(seeds segmentation.Seeds) error {
	if err := seeds.Validate(r.working.Size()); err != nil {
		return err
	}
	r.seeds = seeds
	r.invalidateAfter(StageSeedsReady)
	r.advance(StageSeedsReady, fmt.Sprintf("%d rock and %d pedestal seeds", len(seeds.Rock), len(seeds.Pedestal)))
	return nil
}

// Segment runs the external segmenter and its label propagation pass.
func (r *Run) Segment(ctx context.Context, segmenter segmentation.Segmenter) error {
	if err := r.require(StageSeedsReady, "segment"); err != nil {
		return err
	}
	if segmenter == nil {
		return errors.New("no segmenter provided")
	}
	labels, err := segmenter.Segment(ctx, r.working, r.seeds, r.params.Thresholds)
	if err != nil {
		return &reconstruction.ExternalComponentError{Component: "segmenter", Err: err}
	}
	labels, err = segmenter.PropagateLabels(ctx, labels)
	if err != nil {
		return &reconstruction.ExternalComponentError{Component: "segmenter", Err: err}
	}
	if len(labels) != r.working.Size() {
		return errors.Errorf("segmenter returned %d labels for %d points", len(labels), r.working.Size())
	}
	r.labels = labels
	r.invalidateAfter(StageSegmented)
	rock := 0
	for _, l := range labels {
		if l == segmentation.Rock {
			rock++
		}
	}
	r.advance(StageSegmented, fmt.Sprintf("%d rock / %d total", rock, len(labels)))
	return nil
}

// DetectBasal computes the basal mask and the filtered rock+basal cloud.
// Calling it again after later stages discards their outputs.
func (r *Run) DetectBasal(ctx context.Context) error {
	if err := r.require(StageSegmented, "detect basal points"); err != nil {
		return err
	}
	basal, err := segmentation.DetectBasalPoints(ctx, r.working, r.labels, r.params.Basal)
	if err != nil {
		return err
	}

	keep := make([]bool, r.working.Size())
	for i := range keep {
		keep[i] = basal[i] || r.labels[i] == segmentation.Rock
	}
	filtered, origIdx, err := r.working.Select(keep)
	if err != nil {
		return err
	}
	filteredBasal := make([]int, 0, len(origIdx))
	for fi, oi := range origIdx {
		if basal[oi] {
			filteredBasal = append(filteredBasal, fi)
		}
	}

	r.basal = basal
	r.filtered = filtered
	r.filteredIdx = origIdx
	r.filteredBasal = filteredBasal
	r.invalidateAfter(StageBasalReady)
	r.advance(StageBasalReady, fmt.Sprintf("%d basal points, %d kept for reconstruction", len(filteredBasal), filtered.Size()))
	return nil
}

// FillBoundary synthesizes boundary points over the filtered cloud.
func (r *Run) FillBoundary(ctx context.Context) error {
	if err := r.require(StageBasalReady, "fill boundary"); err != nil {
		return err
	}
	fill, err := segmentation.FillBoundary(ctx, r.filtered, r.filteredBasal, r.params.BoundaryFill, r.logger)
	if err != nil {
		return err
	}
	r.fill = fill
	r.invalidateAfter(StageBoundaryFilled)
	r.advance(StageBoundaryFilled, fmt.Sprintf("%d synthesized points", fill.Synthesized))
	return nil
}

// Reconstruct preprocesses the boundary-filled cloud and invokes the
// external reconstructor. The boundary fill join has already completed by
// construction: FillBoundary returns only after every worker finished.
func (r *Run) Reconstruct(ctx context.Context, rec reconstruction.Reconstructor) error {
	if err := r.require(StageBoundaryFilled, "reconstruct"); err != nil {
		return err
	}
	m, err := reconstruction.Reconstruct(ctx, rec, r.fill.Cloud, r.params.Preprocess, r.params.Poisson, r.logger)
	if err != nil {
		return err
	}
	r.reconstructed = m
	r.advance(StageReconstructed, fmt.Sprintf("%d vertices, %d triangles", m.VertexCount(), m.TriangleCount()))
	return nil
}

// ExportLAS writes the labeled working cloud, plus any synthesized boundary
// points, to a LAS file in the original (un-recentered) frame. Requires at
// least segmentation; basal and synthesized points are written when their
// stages have run.
func (r *Run) ExportLAS(path string) error {
	if err := r.require(StageSegmented, "export LAS"); err != nil {
		return err
	}
	intensity, err := segmentation.EncodeClassification(r.labels, r.basal)
	if err != nil {
		return err
	}
	cloud := r.working
	if r.fill != nil && r.fill.Synthesized > 0 {
		cloud = r.working.Clone()
		for i := r.fill.NewStart; i < r.fill.Cloud.Size(); i++ {
			cloud.AppendColored(r.fill.Cloud.At(i), r.fill.Cloud.Color(i))
			intensity = append(intensity, 2)
		}
	}
	return pointcloud.WriteToLASFile(cloud, intensity, path)
}

// ExportMesh writes the reconstructed mesh as PLY.
func (r *Run) ExportMesh(path string) error {
	if err := r.require(StageReconstructed, "export mesh"); err != nil {
		return err
	}
	return mesh.WritePLYFile(r.reconstructed, path)
}

// require checks that the run has completed at least the given stage.
func (r *Run) require(least Stage, op string) error {
	if r.stage < least {
		return errors.Wrapf(ErrStageOrder, "cannot %s at stage %s (requires %s)", op, r.stage, least)
	}
	return nil
}

// invalidateAfter discards every stage output strictly downstream of s.
func (r *Run) invalidateAfter(s Stage) {
	if s < StageSeedsReady {
		r.seeds = segmentation.Seeds{}
	}
	if s < StageSegmented {
		r.labels = nil
	}
	if s < StageBasalReady {
		r.basal = nil
		r.filtered = nil
		r.filteredIdx = nil
		r.filteredBasal = nil
	}
	if s < StageBoundaryFilled {
		r.fill = nil
	}
	if s < StageReconstructed {
		r.reconstructed = nil
	}
}

// advance records the completed stage and tells the observers.
func (r *Run) advance(s Stage, detail string) {
	r.stage = s
	r.notify(s, detail)
}

func (r *Run) notify(s Stage, detail string) {
	r.logger.Infow("stage complete", "run", r.id.String(), "stage", s.String(), "detail", detail)
	for _, obs := range r.observers {
		obs(StageEvent{RunID: r.id, Stage: s, Detail: detail})
	}
}
