// Package main is the rockseg command: it segments a rock-on-pedestal LAS
// point cloud, detects the basal ring, synthesizes boundary-filling points,
// and exports the labeled cloud. The region-growing and Poisson collaborators
// plug in externally; the built-in nearest-seed baseline stands in for the
// former so the pipeline can run end to end from the command line.
package main

import (
	"fmt"
	"os"

	"github.com/edaniels/golog"
	"github.com/urfave/cli/v2"

	"github.com/deeprodge/rock-detection-3d/mesh"
	"github.com/deeprodge/rock-detection-3d/pipeline"
	"github.com/deeprodge/rock-detection-3d/pointcloud"
	"github.com/deeprodge/rock-detection-3d/segmentation"
)

func main() {
	var logger golog.Logger

	app := &cli.App{
		Name:  "rockseg",
		Usage: "segment rocks from their pedestals and close the basal surface",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "enable debug logging",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("debug") {
				logger = golog.NewDebugLogger("rockseg")
			} else {
				logger = golog.NewDevelopmentLogger("rockseg")
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:      "segment",
				Usage:     "run the pipeline on a LAS file up to boundary filling and export the labeled cloud",
				ArgsUsage: "<input.las>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "out",
						Aliases:  []string{"o"},
						Usage:    "output LAS path",
						Required: true,
					},
					&cli.Float64Flag{
						Name:  "voxel-size",
						Value: pipeline.DefaultParams().VoxelSize,
						Usage: "downsampling voxel size (0 disables)",
					},
					&cli.IntFlag{
						Name:  "basal-k",
						Value: segmentation.DefaultBasalParams().Neighborhood,
						Usage: "basal neighborhood size",
					},
					&cli.Float64Flag{
						Name:  "basal-tau",
						Value: segmentation.DefaultBasalParams().MixtureThreshold,
						Usage: "basal mixture threshold in [0,0.5]",
					},
					&cli.IntFlag{
						Name:  "fill-count",
						Value: segmentation.DefaultBoundaryFillParams().Count,
						Usage: "interpolated points per basal point",
					},
					&cli.Float64Flag{
						Name:  "fill-fraction",
						Value: segmentation.DefaultBoundaryFillParams().Fraction,
						Usage: "leading fraction of the basal list to process",
					},
				},
				Action: func(c *cli.Context) error {
					return runSegment(c, logger)
				},
			},
			{
				Name:      "trim-mesh",
				Usage:     "drop low-density vertices from a reconstructed PLY mesh",
				ArgsUsage: "<input.ply>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "out",
						Aliases:  []string{"o"},
						Usage:    "output PLY path",
						Required: true,
					},
					&cli.Float64Flag{
						Name:  "quantile",
						Value: 0.05,
						Usage: "density quantile below which vertices are removed",
					},
				},
				Action: func(c *cli.Context) error {
					return runTrimMesh(c, logger)
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runSegment(c *cli.Context, logger golog.Logger) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one input LAS file, got %d args", c.NArg())
	}
	cloud, _, err := pointcloud.NewFromLASFile(c.Args().First(), logger)
	if err != nil {
		return err
	}

	params := pipeline.DefaultParams()
	params.VoxelSize = c.Float64("voxel-size")
	params.Basal.Neighborhood = c.Int("basal-k")
	params.Basal.MixtureThreshold = c.Float64("basal-tau")
	params.BoundaryFill.Count = c.Int("fill-count")
	params.BoundaryFill.Fraction = c.Float64("fill-fraction")

	run, err := pipeline.NewRun(cloud, params, logger)
	if err != nil {
		return err
	}
	if _, err := run.SuggestSeeds(); err != nil {
		return err
	}
	if err := run.Segment(c.Context, &segmentation.NearestSeedSegmenter{}); err != nil {
		return err
	}
	if err := run.DetectBasal(c.Context); err != nil {
		return err
	}
	if err := run.FillBoundary(c.Context); err != nil {
		return err
	}
	if err := run.ExportLAS(c.String("out")); err != nil {
		return err
	}
	logger.Infow("wrote labeled cloud", "path", c.String("out"))
	return nil
}

func runTrimMesh(c *cli.Context, logger golog.Logger) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one input PLY file, got %d args", c.NArg())
	}
	m, err := mesh.ReadPLYFile(c.Args().First())
	if err != nil {
		return err
	}
	trimmed, err := m.TrimByDensityQuantile(c.Float64("quantile"))
	if err != nil {
		return err
	}
	if err := mesh.WritePLYFile(trimmed, c.String("out")); err != nil {
		return err
	}
	logger.Infow("trimmed mesh",
		"vertices", fmt.Sprintf("%d -> %d", m.VertexCount(), trimmed.VertexCount()),
		"path", c.String("out"))
	return nil
}
