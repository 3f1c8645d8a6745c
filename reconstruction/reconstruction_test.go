package reconstruction

import (
	"context"
	"testing"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/deeprodge/rock-detection-3d/mesh"
	"github.com/deeprodge/rock-detection-3d/pointcloud"
)

func planeCloud(n int, spacing float64) *pointcloud.Cloud {
	cloud := pointcloud.NewWithPrealloc(n * n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			cloud.Append(r3.Vector{X: float64(i) * spacing, Y: float64(j) * spacing})
		}
	}
	return cloud
}

func planeParams() PreprocessParams {
	params := DefaultPreprocessParams()
	params.Normals = pointcloud.NormalEstimationParams{
		Radius:               0.5,
		MaxNeighbors:         10,
		OrientationNeighbors: 8,
	}
	return params
}

// fakeReconstructor fabricates a single triangle, recording what it was
// handed.
type fakeReconstructor struct {
	got    *pointcloud.Cloud
	params PoissonParams
	err    error
	empty  bool
}

func (f *fakeReconstructor) Reconstruct(
	ctx context.Context,
	cloud *pointcloud.Cloud,
	params PoissonParams,
) (*mesh.Mesh, error) {
	f.got = cloud
	f.params = params
	if f.err != nil {
		return nil, f.err
	}
	if f.empty {
		return mesh.New(), nil
	}
	m := mesh.New()
	m.AddVertex(cloud.At(0))
	m.AddVertex(cloud.At(1))
	m.AddVertex(cloud.At(2))
	if err := m.SetDensities([]float64{1, 2, 3}); err != nil {
		return nil, err
	}
	if err := m.AddTriangle(0, 1, 2); err != nil {
		return nil, err
	}
	return m, nil
}

func TestPreprocessPlane(t *testing.T) {
	logger := golog.NewTestLogger(t)
	cloud := planeCloud(10, 0.1)

	prepared, err := Preprocess(context.Background(), cloud, planeParams(), logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, prepared.Size(), test.ShouldEqual, cloud.Size())
	test.That(t, prepared.HasNormals(), test.ShouldBeTrue)
	// orientation points every normal up, inversion flips it down
	for i := 0; i < prepared.Size(); i++ {
		test.That(t, prepared.Normal(i).Z, test.ShouldBeLessThan, -0.9)
	}
	// the input cloud is untouched
	test.That(t, cloud.HasNormals(), test.ShouldBeFalse)
}

func TestPreprocessAllDegenerate(t *testing.T) {
	logger := golog.NewTestLogger(t)
	cloud := pointcloud.New()
	cloud.Append(r3.Vector{})
	cloud.Append(r3.Vector{X: 100})

	params := planeParams()
	params.Normals.Radius = 0.01
	_, err := Preprocess(context.Background(), cloud, params, logger)
	test.That(t, err, test.ShouldWrap, pointcloud.ErrEmptyInput)
}

func TestPreprocessEmpty(t *testing.T) {
	logger := golog.NewTestLogger(t)
	_, err := Preprocess(context.Background(), pointcloud.New(), DefaultPreprocessParams(), logger)
	test.That(t, err, test.ShouldWrap, pointcloud.ErrEmptyInput)
	_, err = Preprocess(context.Background(), nil, DefaultPreprocessParams(), logger)
	test.That(t, err, test.ShouldWrap, pointcloud.ErrEmptyInput)
}

func TestReconstruct(t *testing.T) {
	logger := golog.NewTestLogger(t)
	cloud := planeCloud(10, 0.1)
	rec := &fakeReconstructor{}

	m, err := Reconstruct(context.Background(), rec, cloud, planeParams(), DefaultPoissonParams(), logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, m.VertexCount(), test.ShouldEqual, 3)
	test.That(t, m.TriangleCount(), test.ShouldEqual, 1)
	test.That(t, m.HasDensities(), test.ShouldBeTrue)

	// the collaborator received a preprocessed cloud with oriented normals
	test.That(t, rec.got, test.ShouldNotBeNil)
	test.That(t, rec.got.HasNormals(), test.ShouldBeTrue)
	test.That(t, rec.params, test.ShouldResemble, DefaultPoissonParams())
}

func TestReconstructWrapsCollaboratorError(t *testing.T) {
	logger := golog.NewTestLogger(t)
	cloud := planeCloud(10, 0.1)
	boom := errors.New("solver diverged")
	rec := &fakeReconstructor{err: boom}

	_, err := Reconstruct(context.Background(), rec, cloud, planeParams(), DefaultPoissonParams(), logger)
	test.That(t, err, test.ShouldNotBeNil)
	var extErr *ExternalComponentError
	test.That(t, errors.As(err, &extErr), test.ShouldBeTrue)
	test.That(t, extErr.Component, test.ShouldEqual, "poisson reconstructor")
	test.That(t, errors.Is(err, boom), test.ShouldBeTrue)
}

func TestReconstructRejectsEmptyMesh(t *testing.T) {
	logger := golog.NewTestLogger(t)
	cloud := planeCloud(10, 0.1)
	rec := &fakeReconstructor{empty: true}

	_, err := Reconstruct(context.Background(), rec, cloud, planeParams(), DefaultPoissonParams(), logger)
	test.That(t, err, test.ShouldNotBeNil)
	var extErr *ExternalComponentError
	test.That(t, errors.As(err, &extErr), test.ShouldBeTrue)
}

func TestReconstructValidation(t *testing.T) {
	logger := golog.NewTestLogger(t)
	cloud := planeCloud(4, 0.1)

	_, err := Reconstruct(context.Background(), nil, cloud, planeParams(), DefaultPoissonParams(), logger)
	test.That(t, err, test.ShouldNotBeNil)

	_, err = Reconstruct(context.Background(), &fakeReconstructor{}, cloud, planeParams(), PoissonParams{Depth: 0}, logger)
	test.That(t, err, test.ShouldNotBeNil)
}
