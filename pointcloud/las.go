package pointcloud

import (
	"image/color"

	"github.com/edaniels/golog"
	"github.com/edaniels/lidario"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"
)

// NewFromLASFile returns a point cloud read from a LAS file along with the
// per-point intensity channel (nil when the file carries none). Coordinates
// are recentered about their per-axis mean; the subtracted offset is
// recorded on the cloud so export can restore the original frame.
func NewFromLASFile(fn string, logger golog.Logger) (*Cloud, []uint16, error) {
	lf, err := lidario.NewLasFile(fn, "r")
	if err != nil {
		return nil, nil, errors.Wrapf(err, "cannot open LAS file %q", fn)
	}
	defer goutils.UncheckedErrorFunc(lf.Close)

	numPoints := lf.Header.NumberPoints
	if numPoints == 0 {
		return nil, nil, errors.Wrapf(ErrEmptyInput, "LAS file %q", fn)
	}

	positions := make([]r3.Vector, 0, numPoints)
	colors := make([]color.NRGBA, 0, numPoints)
	intensities := make([]uint16, 0, numPoints)
	hasColor := false
	hasIntensity := false
	var mean r3.Vector
	for i := 0; i < numPoints; i++ {
		p, err := lf.LasPoint(i)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "cannot read point %d of %q", i, fn)
		}
		data := p.PointData()
		pos := r3.Vector{X: data.X, Y: data.Y, Z: data.Z}
		positions = append(positions, pos)
		mean = mean.Add(pos)

		if rgb := p.RgbData(); rgb != nil {
			hasColor = true
			colors = append(colors, color.NRGBA{
				R: uint8(rgb.Red / 256),
				G: uint8(rgb.Green / 256),
				B: uint8(rgb.Blue / 256),
				A: 255,
			})
		} else {
			colors = append(colors, defaultGray)
		}
		if data.Intensity != 0 {
			hasIntensity = true
		}
		intensities = append(intensities, data.Intensity)
	}
	mean = mean.Mul(1 / float64(numPoints))

	cloud := NewWithPrealloc(numPoints)
	cloud.SetOffset(mean)
	for i, pos := range positions {
		cloud.Append(pos.Sub(mean))
		if hasColor {
			cloud.SetColor(i, colors[i])
		}
	}
	logger.Debugw("loaded LAS point cloud",
		"path", fn, "points", numPoints, "color", hasColor, "recenter", mean)
	if !hasIntensity {
		return cloud, nil, nil
	}
	return cloud, intensities, nil
}

// WriteToLASFile writes the cloud to a LAS file. intensity, when non-nil,
// must be point-parallel and carries the classification channel (pedestal 0,
// rock 1, basal and synthesized 2). The recentering offset recorded at load
// is added back so persisted coordinates land in the original frame.
func WriteToLASFile(cloud *Cloud, intensity []uint16, fn string) (err error) {
	if cloud == nil || cloud.Size() == 0 {
		return errors.Wrapf(ErrEmptyInput, "cannot write LAS file %q", fn)
	}
	if intensity != nil && len(intensity) != cloud.Size() {
		return errors.Errorf("intensity has %d entries for %d points", len(intensity), cloud.Size())
	}
	lf, err := lidario.NewLasFile(fn, "w")
	if err != nil {
		return errors.Wrapf(err, "cannot create LAS file %q", fn)
	}
	defer func() {
		cerr := lf.Close()
		err = multierr.Combine(err, cerr)
	}()

	pointFormatID := 0
	if cloud.HasColors() {
		pointFormatID = 2
	}
	if err = lf.AddHeader(lidario.LasHeader{
		PointFormatID: byte(pointFormatID),
	}); err != nil {
		return err
	}

	offset := cloud.Offset()
	for i := 0; i < cloud.Size(); i++ {
		pos := cloud.At(i).Add(offset)
		pr0 := &lidario.PointRecord0{
			X: pos.X,
			Y: pos.Y,
			Z: pos.Z,
			BitField: lidario.PointBitField{
				Value: (1) | (1 << 3) | (0 << 6) | (0 << 7),
			},
			ClassBitField: lidario.ClassificationBitField{
				Value: 0,
			},
			ScanAngle:     0,
			UserData:      0,
			PointSourceID: 1,
		}
		if intensity != nil {
			pr0.Intensity = intensity[i]
		}
		var lp lidario.LasPointer = pr0
		if cloud.HasColors() {
			c := cloud.Color(i)
			lp = &lidario.PointRecord2{
				PointRecord0: pr0,
				RGB: &lidario.RgbData{
					Red:   uint16(int(c.R) * 256),
					Green: uint16(int(c.G) * 256),
					Blue:  uint16(int(c.B) * 256),
				},
			}
		}
		if err = lf.AddLasPoint(lp); err != nil {
			return err
		}
	}
	return nil
}
