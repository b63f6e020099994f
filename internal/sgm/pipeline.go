package sgm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang/geo/r3"
	"github.com/rs/zerolog"
)

// Result holds the artifacts of one run for a reference view.
type Result struct {
	Rc         int
	Tcs        []int
	Hypotheses Hypotheses
	BestIndex  *BestIndexMap

	SGM         *DepthSimMap
	RefinePhoto *DepthSimMap // nil unless DoRefine
	RefineOpt   *DepthSimMap // nil unless DoRefineRc
}

// Final returns the most refined map produced.
func (r *Result) Final() *DepthSimMap {
	switch {
	case r.RefineOpt != nil:
		return r.RefineOpt
	case r.RefinePhoto != nil:
		return r.RefinePhoto
	default:
		return r.SGM
	}
}

// Pipeline runs the staged depth estimation for one reference view at a time.
// Volumes belong to a single Run call and are released before it returns.
// A Pipeline is safe for concurrent Run calls when its collaborators are.
type Pipeline struct {
	params  Params
	cams    Cameras
	log     zerolog.Logger
	hyps    *HypothesisBuilder
	volumes *VolumeBuilder
	agg     *Aggregator
	sel     *Selector
	recon   *Reconstructor
	refiner *Refiner
	mask    Mask
}

// NewPipeline validates params and builds every stage. Configuration errors are
// reported here, before any volume exists.
func NewPipeline(cams Cameras, matcher Matcher, params Params, log zerolog.Logger) (*Pipeline, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	log = log.With().Str("component", "sgm").Logger()

	p := &Pipeline{params: params, cams: cams, log: log}
	var err error
	if p.hyps, err = NewHypothesisBuilder(cams, params); err != nil {
		return nil, err
	}
	if p.volumes, err = NewVolumeBuilder(matcher, params, log); err != nil {
		return nil, err
	}
	if p.agg, err = NewAggregator(params); err != nil {
		return nil, err
	}
	if p.sel, err = NewSelector(params); err != nil {
		return nil, err
	}
	if p.recon, err = NewReconstructor(cams, params, log); err != nil {
		return nil, err
	}
	if p.refiner, err = NewRefiner(cams, matcher, params, log); err != nil {
		return nil, err
	}
	return p, nil
}

// WithMask returns a copy of the pipeline that leaves the masked reference pixels
// without depth. The receiver is not modified.
func (p *Pipeline) WithMask(mask Mask) *Pipeline {
	c := *p
	c.mask = mask
	return &c
}

// Params returns the configuration the pipeline runs with.
func (p *Pipeline) Params() Params {
	return p.params
}

// VolumeSize returns the volume width and height for a reference view.
func (p *Pipeline) VolumeSize(rc int) (int, int) {
	w, h := p.cams.ImageSize(rc)
	stride := p.params.pixelStride()
	return w / stride, h / stride
}

// Run builds the hypotheses of rc from tcs and seeds, then runs every stage. When
// no target yields a usable range the result holds an all-invalid map.
func (p *Pipeline) Run(ctx context.Context, rc int, tcs []int, seeds []r3.Vector) (*Result, error) {
	if err := p.checkViews(rc, tcs); err != nil {
		return nil, err
	}
	hyps, usedTcs, err := p.hyps.Build(rc, tcs, seeds)
	if errors.Is(err, ErrNoUsableRange) {
		w, h := p.VolumeSize(rc)
		p.log.Warn().Int("rc", rc).Ints("tcs", tcs).Msg("no depth computable for view")
		return &Result{Rc: rc, SGM: NewDepthSimMap(rc, w, h, p.params.Scale, p.params.Step)}, nil
	}
	if err != nil {
		return nil, err
	}
	p.log.Info().
		Int("rc", rc).
		Ints("tcs", usedTcs).
		Int("depths", hyps.Len()).
		Float64("min_depth", hyps.At(0)).
		Float64("max_depth", hyps.At(hyps.Len()-1)).
		Msg("hypotheses built")
	return p.run(ctx, rc, usedTcs, hyps)
}

// RunWithHypotheses runs every stage with a precomputed hypothesis set.
func (p *Pipeline) RunWithHypotheses(ctx context.Context, rc int, tcs []int, hyps Hypotheses) (*Result, error) {
	if err := p.checkViews(rc, tcs); err != nil {
		return nil, err
	}
	return p.run(ctx, rc, tcs, hyps)
}

func (p *Pipeline) checkViews(rc int, tcs []int) error {
	if !p.cams.HasView(rc) {
		return fmt.Errorf("%w: reference %d", ErrUnknownView, rc)
	}
	if len(tcs) == 0 {
		return fmt.Errorf("%w: no target views for %d", ErrInvalidConfig, rc)
	}
	for _, tc := range tcs {
		if !p.cams.HasView(tc) {
			return fmt.Errorf("%w: target %d", ErrUnknownView, tc)
		}
		if tc == rc {
			return fmt.Errorf("%w: view %d is both reference and target", ErrInvalidConfig, rc)
		}
	}
	return nil
}

func (p *Pipeline) run(ctx context.Context, rc int, tcs []int, hyps Hypotheses) (*Result, error) {
	w, h := p.VolumeSize(rc)
	res := &Result{Rc: rc, Tcs: append([]int(nil), tcs...), Hypotheses: hyps}

	start := time.Now()
	best, err := p.bestIndex(ctx, rc, tcs, hyps, w, h)
	if err != nil {
		return nil, err
	}
	if p.params.UseModalFilter {
		best = p.sel.ModalFilter(best)
	}
	res.BestIndex = best

	if res.SGM, err = p.recon.Reconstruct(ctx, rc, best, hyps); err != nil {
		return nil, fmt.Errorf("reconstruction of view %d: %w", rc, err)
	}
	p.log.Info().
		Int("rc", rc).
		Int("valid", res.SGM.ValidCount()).
		Int("pixels", len(res.SGM.Cells)).
		Dur("elapsed", time.Since(start)).
		Msg("SGM depth map computed")

	if p.params.DoRefine {
		start = time.Now()
		if res.RefinePhoto, err = p.refiner.Refine(ctx, res.SGM, tcs); err != nil {
			return nil, fmt.Errorf("refinement of view %d: %w", rc, err)
		}
		p.log.Info().Int("rc", rc).Dur("elapsed", time.Since(start)).Msg("photometric refinement done")
	}
	if p.params.DoRefineRc {
		start = time.Now()
		src := res.Final()
		if res.RefineOpt, err = p.refiner.Smooth(ctx, src); err != nil {
			return nil, fmt.Errorf("smoothing of view %d: %w", rc, err)
		}
		p.log.Info().Int("rc", rc).Dur("elapsed", time.Since(start)).Msg("depth map smoothing done")
	}
	return res, nil
}

// bestIndex builds, aggregates and reduces the cost volumes of rc. Both volumes are
// unreachable once it returns.
func (p *Pipeline) bestIndex(ctx context.Context, rc int, tcs []int, hyps Hypotheses, w, h int) (*BestIndexMap, error) {
	agg, err := p.aggregated(ctx, rc, tcs, hyps, w, h)
	if err != nil {
		return nil, err
	}
	best, err := p.sel.Select(ctx, agg)
	if err != nil {
		return nil, fmt.Errorf("selection of view %d: %w", rc, err)
	}
	return best, nil
}

// aggregated returns the aggregated volume of rc. The similarity volume does not
// outlive the call.
func (p *Pipeline) aggregated(ctx context.Context, rc int, tcs []int, hyps Hypotheses, w, h int) (*AggregatedVolume, error) {
	sim, err := p.volumes.BuildMasked(ctx, rc, tcs, hyps, w, h, p.mask)
	if err != nil {
		return nil, fmt.Errorf("similarity volume of view %d: %w", rc, err)
	}
	if !p.params.DoSGMOptimizeVolume {
		return Passthrough(sim), nil
	}
	agg, err := p.agg.Aggregate(ctx, sim)
	if err != nil {
		return nil, fmt.Errorf("aggregation of view %d: %w", rc, err)
	}
	return agg, nil
}
