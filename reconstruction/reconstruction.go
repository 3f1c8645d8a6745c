// Package reconstruction prepares an oriented point set and drives the
// external Poisson-style surface reconstructor.
package reconstruction

import (
	"context"
	"fmt"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"

	"github.com/deeprodge/rock-detection-3d/mesh"
	"github.com/deeprodge/rock-detection-3d/pointcloud"
)

// PoissonParams are handed through to the external reconstructor.
type PoissonParams struct {
	// Depth is the reconstruction octree depth.
	Depth int
	// LinearFit selects linear interpolation of the implicit function; the
	// pipeline runs with non-linear interpolation.
	LinearFit bool
}

// DefaultPoissonParams are the values the tool ships with.
func DefaultPoissonParams() PoissonParams {
	return PoissonParams{Depth: 8, LinearFit: false}
}

// Validate checks the parameter ranges.
func (p PoissonParams) Validate() error {
	if p.Depth < 1 {
		return errors.Errorf("octree depth must be at least 1, got %d", p.Depth)
	}
	return nil
}

// Reconstructor is the external collaborator converting an oriented point
// cloud into a triangle mesh with per-vertex densities.
type Reconstructor interface {
	Reconstruct(ctx context.Context, cloud *pointcloud.Cloud, params PoissonParams) (*mesh.Mesh, error)
}

// ExternalComponentError wraps a collaborator failure without masking it.
type ExternalComponentError struct {
	Component string
	Err       error
}

func (e *ExternalComponentError) Error() string {
	return fmt.Sprintf("external component %q failed: %v", e.Component, e.Err)
}

func (e *ExternalComponentError) Unwrap() error {
	return e.Err
}

// PreprocessParams tunes reconstruction preprocessing.
type PreprocessParams struct {
	Normals pointcloud.NormalEstimationParams
	// MinNormalLength is the magnitude below which an estimated normal
	// counts as degenerate and its point is dropped.
	MinNormalLength float64
}

// DefaultPreprocessParams are the values the tool ships with.
func DefaultPreprocessParams() PreprocessParams {
	return PreprocessParams{
		Normals:         pointcloud.DefaultNormalEstimationParams(),
		MinNormalLength: 1e-6,
	}
}

// Preprocess estimates and orients normals on a working copy of the cloud,
// drops the points whose normals could not be estimated, and inverts the
// survivors to the reconstructor's sign convention (its outward is this
// pipeline's inward). The returned cloud is ready to submit for
// reconstruction; an error wrapping pointcloud.ErrEmptyInput means every
// normal was degenerate.
func Preprocess(
	ctx context.Context,
	cloud *pointcloud.Cloud,
	params PreprocessParams,
	logger golog.Logger,
) (*pointcloud.Cloud, error) {
	if cloud == nil || cloud.Size() == 0 {
		return nil, errors.Wrap(pointcloud.ErrEmptyInput, "cannot preprocess for reconstruction")
	}
	working := cloud.Clone()
	if err := pointcloud.EstimateNormals(ctx, working, params.Normals); err != nil {
		return nil, errors.Wrap(err, "normal estimation failed")
	}
	if err := pointcloud.OrientNormalsConsistentTangentPlane(ctx, working, params.Normals.OrientationNeighbors); err != nil {
		return nil, errors.Wrap(err, "normal orientation failed")
	}
	valid, removed, err := pointcloud.FilterDegenerateNormals(working, params.MinNormalLength)
	if err != nil {
		return nil, err
	}
	if valid.Size() == 0 {
		return nil, errors.Wrapf(pointcloud.ErrEmptyInput,
			"all %d normals were degenerate (magnitude < %g); nothing to reconstruct",
			working.Size(), params.MinNormalLength)
	}
	if removed > 0 {
		logger.Debugw("dropped points with degenerate normals", "removed", removed, "kept", valid.Size())
	}
	pointcloud.InvertNormals(valid)
	return valid, nil
}

// Reconstruct preprocesses the cloud and invokes the external reconstructor,
// never on empty input. Collaborator failures surface verbatim, wrapped as
// an ExternalComponentError.
func Reconstruct(
	ctx context.Context,
	rec Reconstructor,
	cloud *pointcloud.Cloud,
	preprocess PreprocessParams,
	poisson PoissonParams,
	logger golog.Logger,
) (*mesh.Mesh, error) {
	if rec == nil {
		return nil, errors.New("no reconstructor provided")
	}
	if err := poisson.Validate(); err != nil {
		return nil, err
	}
	prepared, err := Preprocess(ctx, cloud, preprocess, logger)
	if err != nil {
		return nil, err
	}
	m, err := rec.Reconstruct(ctx, prepared, poisson)
	if err != nil {
		return nil, &ExternalComponentError{Component: "poisson reconstructor", Err: err}
	}
	if m == nil || m.VertexCount() == 0 {
		return nil, &ExternalComponentError{
			Component: "poisson reconstructor",
			Err:       errors.New("returned an empty mesh"),
		}
	}
	logger.Debugw("reconstruction done",
		"input points", prepared.Size(), "vertices", m.VertexCount(), "triangles", m.TriangleCount())
	return m, nil
}
