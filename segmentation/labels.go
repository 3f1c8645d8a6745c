// Package segmentation classifies a rock-on-pedestal point cloud: seed
// suggestion, the external region-growing contract, basal-point detection,
// and boundary filling ahead of surface reconstruction.
package segmentation

import (
	"context"
	"image/color"

	"github.com/pkg/errors"

	"github.com/deeprodge/rock-detection-3d/pointcloud"
)

// Label classifies a single point.
type Label int8

const (
	// Unlabeled marks points no region reached.
	Unlabeled Label = -1
	// Pedestal marks points grown from the pedestal seeds.
	Pedestal Label = 0
	// Rock marks points grown from the rock seeds.
	Rock Label = 1
)

// Labels is a point-index-parallel label array.
type Labels []Label

// ErrInvalidSeed is returned for empty seed sets or out-of-range seed indices.
var ErrInvalidSeed = errors.New("invalid seed")

// Seeds holds the operator- or heuristic-chosen seed indices per class.
type Seeds struct {
	Rock     []int
	Pedestal []int
}

// Validate checks that both seed sets are non-empty and within [0, size).
func (s Seeds) Validate(size int) error {
	if len(s.Rock) == 0 {
		return errors.Wrap(ErrInvalidSeed, "no rock seeds")
	}
	if len(s.Pedestal) == 0 {
		return errors.Wrap(ErrInvalidSeed, "no pedestal seeds")
	}
	for _, set := range [][]int{s.Rock, s.Pedestal} {
		for _, idx := range set {
			if idx < 0 || idx >= size {
				return errors.Wrapf(ErrInvalidSeed, "seed index %d out of range [0,%d)", idx, size)
			}
		}
	}
	return nil
}

// Thresholds are the parameters handed to the external region-growing
// segmenter.
type Thresholds struct {
	Smoothness     float64
	Curvature      float64
	Distance       float64
	BasalProximity float64
}

// DefaultThresholds are the values the tool ships with.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Smoothness:     0.99,
		Curvature:      0.15,
		Distance:       0.05,
		BasalProximity: 0.05,
	}
}

// Validate checks the threshold ranges.
func (t Thresholds) Validate() error {
	if t.Smoothness < 0 || t.Smoothness > 1 {
		return errors.Errorf("smoothness threshold must be in [0,1], got %f", t.Smoothness)
	}
	if t.Curvature < 0 || t.Curvature > 1 {
		return errors.Errorf("curvature threshold must be in [0,1], got %f", t.Curvature)
	}
	if t.Distance <= 0 {
		return errors.Errorf("distance threshold must be positive, got %f", t.Distance)
	}
	if t.BasalProximity < 0 || t.BasalProximity > 1 {
		return errors.Errorf("basal proximity threshold must be in [0,1], got %f", t.BasalProximity)
	}
	return nil
}

// Segmenter is the external region-growing collaborator. Implementations
// label every point of the cloud from the given seeds.
type Segmenter interface {
	// Segment labels the cloud; the result is point-index-parallel.
	Segment(ctx context.Context, cloud *pointcloud.Cloud, seeds Seeds, thresholds Thresholds) (Labels, error)
	// PropagateLabels performs the segmenter's conditional label propagation
	// pass over an existing label array.
	PropagateLabels(ctx context.Context, labels Labels) (Labels, error)
}

// Diagnostic palette. Basal and synthesized coloring reuses these in the
// boundary filler.
var (
	colorRock     = color.NRGBA{255, 0, 0, 255}
	colorPedestal = color.NRGBA{0, 0, 255, 255}
	colorNeutral  = color.NRGBA{128, 128, 128, 255}
	colorBasal    = color.NRGBA{0, 255, 255, 255}
	colorNew      = color.NRGBA{0, 0, 255, 255}
)

// ColorByLabel returns a clone of the cloud colored by class: rock red,
// pedestal blue, unlabeled gray.
func ColorByLabel(cloud *pointcloud.Cloud, labels Labels) (*pointcloud.Cloud, error) {
	if len(labels) != cloud.Size() {
		return nil, errors.Errorf("have %d labels for %d points", len(labels), cloud.Size())
	}
	out := cloud.Clone()
	for i, l := range labels {
		switch l {
		case Rock:
			out.SetColor(i, colorRock)
		case Pedestal:
			out.SetColor(i, colorPedestal)
		default:
			out.SetColor(i, colorNeutral)
		}
	}
	return out, nil
}

// EncodeClassification maps labels onto the LAS intensity channel: pedestal
// 0, rock 1, basal 2. Unlabeled points encode as rock, matching how the
// segmenter backfills unreached points before export.
func EncodeClassification(labels Labels, basal []bool) ([]uint16, error) {
	if basal != nil && len(basal) != len(labels) {
		return nil, errors.Errorf("basal mask has %d entries for %d labels", len(basal), len(labels))
	}
	out := make([]uint16, len(labels))
	for i, l := range labels {
		switch {
		case basal != nil && basal[i]:
			out[i] = 2
		case l == Pedestal:
			out[i] = 0
		default:
			out[i] = 1
		}
	}
	return out, nil
}
