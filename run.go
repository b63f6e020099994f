package main

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"os"
	"os/signal"
	"sort"

	"mvs-depth/internal/camera"
	"mvs-depth/internal/depthio"
	"mvs-depth/internal/image"
	"mvs-depth/internal/logging"
	"mvs-depth/internal/match"
	"mvs-depth/internal/project"
	"mvs-depth/internal/sgm"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/stat"
)

func runDepth(cmd *cobra.Command, args []string) error {
	level, err := logging.ParseLevel(logLevel)
	if err != nil {
		return err
	}
	logger := logging.NewConsole(level)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	job, err := newJob(projectPath, configPath, logger)
	if err != nil {
		return err
	}
	views := viewIDs
	if len(views) == 0 {
		views = job.rig.IDs()
	}
	dir := outDir
	if dir == "" {
		dir = job.proj.DepthMapFolder(projectPath)
	}
	writer := depthio.NewWriter(
		depthio.NewLayout(dir, job.params.OutDirName, job.params.TmpDirName),
		job.params, logging.Component(logger, "depthio"))

	for _, rc := range views {
		if err := job.run(ctx, rc, job.targets(rc, targetIDs), writer); err != nil {
			return err
		}
	}
	return nil
}

// job holds everything shared by the reference views of one invocation.
type job struct {
	proj     *project.File
	projPath string
	rig      *camera.Rig
	params   sgm.Params
	images   map[int]*image.Gray
	log      zerolog.Logger
}

func newJob(projPath, paramsPath string, log zerolog.Logger) (*job, error) {
	proj, err := project.Load(projPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load project: %w", err)
	}
	rig, err := proj.Rig()
	if err != nil {
		return nil, fmt.Errorf("invalid cameras in %s: %w", projPath, err)
	}
	params, err := loadParams(proj, projPath, paramsPath)
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("project", proj.Name).
		Int("views", len(proj.Views)).
		Int("seeds", len(proj.Seeds)).
		Int("scale", params.Scale).
		Int("step", params.Step).
		Msg("project loaded")
	return &job{
		proj:     proj,
		projPath: projPath,
		rig:      rig,
		params:   params,
		images:   make(map[int]*image.Gray),
		log:      log,
	}, nil
}

// loadParams prefers an explicit file, then the project's, then the defaults.
func loadParams(proj *project.File, projPath, explicit string) (sgm.Params, error) {
	path := explicit
	if path == "" {
		path = proj.ParamsFile(projPath)
	}
	if path == "" {
		return sgm.DefaultParams(), nil
	}
	return sgm.LoadParams(path)
}

// viewImage returns the view image at the working scale, loading it once.
func (j *job) viewImage(view int) (*image.Gray, error) {
	if img, ok := j.images[view]; ok {
		return img, nil
	}
	path, err := j.proj.ImagePath(j.projPath, view)
	if err != nil {
		return nil, err
	}
	img, err := image.Load(path)
	if err != nil {
		return nil, err
	}
	img = img.Downsample(j.params.Scale)
	j.images[view] = img
	return img, nil
}

// silhouette masks the full-resolution pixels of view painted in the mask colour.
func (j *job) silhouette(view int) (*image.Mask, error) {
	path, err := j.proj.ImagePath(j.projPath, view)
	if err != nil {
		return nil, err
	}
	c := j.params.SilhouetteMaskColor
	return image.LoadColorMask(path, color.RGBA{R: uint8(c[0]), G: uint8(c[1]), B: uint8(c[2]), A: 0xff})
}

// targets returns the explicit target ids other than rc, or the selected
// neighbours of rc when none are given.
func (j *job) targets(rc int, explicit []int) []int {
	if len(explicit) == 0 {
		return j.selectTargets(rc)
	}
	tcs := make([]int, 0, len(explicit))
	for _, tc := range explicit {
		if tc != rc {
			tcs = append(tcs, tc)
		}
	}
	return tcs
}

// selectTargets picks the nearest views within maxAngle that overlap rc by at
// least minOverlap at the median seed depth. Without seeds only the angle applies.
func (j *job) selectTargets(rc int) []int {
	cands := j.rig.Neighbors(rc, len(j.proj.Views), maxAngle)
	seeds := j.proj.SeedsFor(rc)
	if len(seeds) == 0 || minOverlap <= 0 {
		return cands[:min(numTargets, len(cands))]
	}

	center, axis := j.rig.OpticalCenter(rc), j.rig.ViewAxis(rc)
	depths := make([]float64, 0, len(seeds))
	for _, s := range seeds {
		if d := s.Sub(center).Dot(axis); d > 0 {
			depths = append(depths, d)
		}
	}
	if len(depths) == 0 {
		return cands[:min(numTargets, len(cands))]
	}
	sort.Float64s(depths)
	depth := stat.Quantile(0.5, stat.Empirical, depths, nil)

	var tcs []int
	for _, tc := range cands {
		if len(tcs) == numTargets {
			break
		}
		if ov := j.rig.Overlap(rc, tc, depth); ov >= minOverlap {
			tcs = append(tcs, tc)
		} else {
			j.log.Debug().Int("rc", rc).Int("tc", tc).Float64("overlap", ov).Msg("target rejected")
		}
	}
	return tcs
}

func (j *job) run(ctx context.Context, rc int, tcs []int, writer *depthio.Writer) error {
	log := j.log.With().Int("rc", rc).Logger()
	if len(tcs) == 0 {
		log.Warn().Msg("no target views, skipping")
		return nil
	}

	images := make(map[int]*image.Gray, len(tcs)+1)
	for _, v := range append([]int{rc}, tcs...) {
		img, err := j.viewImage(v)
		if err != nil {
			return fmt.Errorf("view %d: %w", v, err)
		}
		images[v] = img
	}
	opts := j.proj.Match
	opts.Scale = j.params.Scale
	matcher, err := match.NewZNCC(j.rig, images, opts)
	if err != nil {
		return err
	}

	pipeline, err := sgm.NewPipeline(j.rig, matcher, j.params, log)
	if err != nil {
		return err
	}
	if j.params.UseSilhouetteMaskCodedByColor {
		mask, err := j.silhouette(rc)
		if err != nil {
			return fmt.Errorf("view %d: %w", rc, err)
		}
		log.Debug().Int("masked", mask.Count()).Msg("silhouette mask loaded")
		pipeline = pipeline.WithMask(mask)
	}
	res, err := pipeline.Run(ctx, rc, tcs, j.proj.SeedsFor(rc))
	var tooLarge *sgm.VolumeTooLargeError
	if errors.As(err, &tooLarge) {
		log.Error().
			Int("depths", tooLarge.Depths).
			Int64("bytes", tooLarge.Bytes).
			Msg("volume too large, retry with a larger scale or step, or fewer depths")
	}
	if err != nil {
		return fmt.Errorf("view %d: %w", rc, err)
	}
	return writer.Write(res)
}
