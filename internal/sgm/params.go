package sgm

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Fusion selects how costs from several target views combine.
type Fusion string

const (
	FusionMean Fusion = "mean"
	FusionMin  Fusion = "min"
)

// Sampling selects how hypotheses are spread over the depth interval.
type Sampling string

const (
	SamplingDepth        Sampling = "depth"
	SamplingInverseDepth Sampling = "inverse_depth"
)

// Params holds the semi-global matching configuration.
// It is a plain value: load or build it once, validate it, and hand copies to the
// stage constructors.
type Params struct {
	// Aggregation penalties: P1 for one-hypothesis steps, P2 for larger jumps,
	// P3 (when > 0) for two-hypothesis steps, capped at P2.
	P1 int `json:"p1" yaml:"p1"`
	P2 int `json:"p2" yaml:"p2"`
	P3 int `json:"p3" yaml:"p3"`

	NumDirections       int  `json:"num_directions" yaml:"num_directions"`
	DoSGMOptimizeVolume bool `json:"do_sgm_optimize_volume" yaml:"do_sgm_optimize_volume"`

	// Hypothesis space
	MaxDepthsToStore            int      `json:"max_depths_to_store" yaml:"max_depths_to_store"`
	MaxDepthsToSweep            int      `json:"max_depths_to_sweep" yaml:"max_depths_to_sweep"`
	RcTcDepthsHalfLimit         int      `json:"rc_tc_depths_half_limit" yaml:"rc_tc_depths_half_limit"`
	RcDepthsCompStep            int      `json:"rc_depths_comp_step" yaml:"rc_depths_comp_step"`
	UseSeedsToCompDepthsToSweep bool     `json:"use_seeds_to_comp_depths_to_sweep" yaml:"use_seeds_to_comp_depths_to_sweep"`
	SeedsRangePercentile        float64  `json:"seeds_range_percentile" yaml:"seeds_range_percentile"`
	SeedsRangeInflate           float64  `json:"seeds_range_inflate" yaml:"seeds_range_inflate"`
	MinDepth                    float64  `json:"min_depth" yaml:"min_depth"`
	MaxDepth                    float64  `json:"max_depth" yaml:"max_depth"`
	DepthSampling               Sampling `json:"depth_sampling" yaml:"depth_sampling"`

	// Targets whose pixel footprint exceeds the reference one by more than this
	// ratio at the centre of their range are dropped. 0 keeps every target.
	MaxTcRcPixSizeInVoxRatio float64 `json:"max_tc_rc_pix_size_in_vox_ratio" yaml:"max_tc_rc_pix_size_in_vox_ratio"`

	// Volume construction
	Scale                  int    `json:"scale" yaml:"scale"`
	Step                   int    `json:"step" yaml:"step"`
	CostFusion             Fusion `json:"cost_fusion" yaml:"cost_fusion"`
	MinNumOfConsistentCams int    `json:"min_num_of_consistent_cams" yaml:"min_num_of_consistent_cams"`
	MaxVolumeBytes         int64  `json:"max_volume_bytes" yaml:"max_volume_bytes"`

	// Reference pixels painted in SilhouetteMaskColor (RGB) are background.
	UseSilhouetteMaskCodedByColor bool   `json:"use_silhouette_mask_coded_by_color" yaml:"use_silhouette_mask_coded_by_color"`
	SilhouetteMaskColor           [3]int `json:"silhouette_mask_color" yaml:"silhouette_mask_color,flow"`

	// Selection and reconstruction
	ZBorder            int  `json:"zborder" yaml:"zborder"`
	UseModalFilter     bool `json:"use_modal_filter" yaml:"use_modal_filter"`
	ModalsMapDistLimit int  `json:"modals_map_dist_limit" yaml:"modals_map_dist_limit"`
	MinModalSupport    int  `json:"min_modal_support" yaml:"min_modal_support"`

	// Refinement
	DoRefine                bool    `json:"do_refine" yaml:"do_refine"`
	DoRefineRc              bool    `json:"do_refine_rc" yaml:"do_refine_rc"`
	NDepthsToRefine         int     `json:"ndepths_to_refine" yaml:"ndepths_to_refine"`
	RefineUseTcOrPixSize    bool    `json:"refine_use_tc_or_pix_size" yaml:"refine_use_tc_or_pix_size"`
	RefineOptDepthTolerance float64 `json:"refine_opt_depth_tolerance" yaml:"refine_opt_depth_tolerance"`

	// Output
	OutDirName                   string `json:"out_dir_name" yaml:"out_dir_name"`
	TmpDirName                   string `json:"tmp_dir_name" yaml:"tmp_dir_name"`
	SaveDepthsToSweepToTxtForVis bool   `json:"save_depths_to_sweep_to_txt_for_vis" yaml:"save_depths_to_sweep_to_txt_for_vis"`
	VisualizeDepthMaps           bool   `json:"visualize_depth_maps" yaml:"visualize_depth_maps"`
}

// DefaultParams returns the default matching parameters.
func DefaultParams() Params {
	return Params{
		P1:                  10,
		P2:                  125,
		P3:                  0,
		NumDirections:       8,
		DoSGMOptimizeVolume: true,

		MaxDepthsToStore:            3000,
		MaxDepthsToSweep:            1500,
		RcTcDepthsHalfLimit:         2048,
		RcDepthsCompStep:            6,
		UseSeedsToCompDepthsToSweep: true,
		SeedsRangePercentile:        0.001,
		SeedsRangeInflate:           0.2,
		MinDepth:                    0.1,
		MaxDepth:                    100,
		DepthSampling:               SamplingInverseDepth,
		MaxTcRcPixSizeInVoxRatio:    2,

		Scale:                  1,
		Step:                   1,
		CostFusion:             FusionMean,
		MinNumOfConsistentCams: 2,
		MaxVolumeBytes:         2 << 30,

		ZBorder:            2,
		UseModalFilter:     false,
		ModalsMapDistLimit: 2,
		MinModalSupport:    2,

		DoRefine:                true,
		DoRefineRc:              true,
		NDepthsToRefine:         15,
		RefineUseTcOrPixSize:    true,
		RefineOptDepthTolerance: 0.02,

		OutDirName: "SGM",
		TmpDirName: "_tmp",
	}
}

// LoadParams reads a YAML file on top of the defaults.
func LoadParams(path string) (Params, error) {
	p := DefaultParams()
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("failed to read params: %w", err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("failed to parse params %s: %w", path, err)
	}
	return p, p.Validate()
}

// Validate checks the parameters for consistency.
func (p Params) Validate() error {
	for i, v := range []int{p.P1, p.P2, p.P3} {
		if v < 0 || v > 255 {
			return fmt.Errorf("%w: P%d=%d outside 0..255", ErrInvalidConfig, i+1, v)
		}
	}
	if p.P2 < p.P1 {
		return fmt.Errorf("%w: P2 (%d) must not be smaller than P1 (%d)", ErrInvalidConfig, p.P2, p.P1)
	}
	if p.NumDirections != 4 && p.NumDirections != 8 {
		return fmt.Errorf("%w: num_directions must be 4 or 8, got %d", ErrInvalidConfig, p.NumDirections)
	}
	if p.MaxDepthsToSweep < 1 || p.MaxDepthsToStore < 1 {
		return fmt.Errorf("%w: depth caps must be positive (sweep=%d store=%d)",
			ErrInvalidConfig, p.MaxDepthsToSweep, p.MaxDepthsToStore)
	}
	if p.RcTcDepthsHalfLimit < 1 || p.RcDepthsCompStep < 1 {
		return fmt.Errorf("%w: rc_tc_depths_half_limit and rc_depths_comp_step must be positive", ErrInvalidConfig)
	}
	if p.SeedsRangePercentile < 0 || p.SeedsRangePercentile >= 0.5 {
		return fmt.Errorf("%w: seeds_range_percentile %.4f outside [0, 0.5)", ErrInvalidConfig, p.SeedsRangePercentile)
	}
	if p.SeedsRangeInflate < 0 {
		return fmt.Errorf("%w: seeds_range_inflate must not be negative", ErrInvalidConfig)
	}
	if !(p.MinDepth > 0) || !(p.MaxDepth > p.MinDepth) {
		return fmt.Errorf("%w: need 0 < min_depth < max_depth, got %g..%g", ErrInvalidConfig, p.MinDepth, p.MaxDepth)
	}
	if p.MaxTcRcPixSizeInVoxRatio < 0 {
		return fmt.Errorf("%w: max_tc_rc_pix_size_in_vox_ratio must not be negative", ErrInvalidConfig)
	}
	switch p.DepthSampling {
	case SamplingDepth, SamplingInverseDepth:
	default:
		return fmt.Errorf("%w: unsupported depth_sampling %q", ErrInvalidConfig, p.DepthSampling)
	}
	switch p.CostFusion {
	case FusionMean, FusionMin:
	default:
		return fmt.Errorf("%w: unsupported cost_fusion %q", ErrInvalidConfig, p.CostFusion)
	}
	if p.Scale < 1 || p.Step < 1 {
		return fmt.Errorf("%w: scale and step must be >= 1 (scale=%d step=%d)", ErrInvalidConfig, p.Scale, p.Step)
	}
	if p.MinNumOfConsistentCams < 1 {
		return fmt.Errorf("%w: min_num_of_consistent_cams must be >= 1", ErrInvalidConfig)
	}
	if p.MaxVolumeBytes <= 0 {
		return fmt.Errorf("%w: max_volume_bytes must be positive", ErrInvalidConfig)
	}
	for _, c := range p.SilhouetteMaskColor {
		if c < 0 || c > 255 {
			return fmt.Errorf("%w: silhouette_mask_color %v outside 0..255", ErrInvalidConfig, p.SilhouetteMaskColor)
		}
	}
	if p.ZBorder < 0 {
		return fmt.Errorf("%w: zborder must not be negative", ErrInvalidConfig)
	}
	if p.UseModalFilter && (p.ModalsMapDistLimit < 0 || p.MinModalSupport < 1 || p.MinModalSupport > 8) {
		return fmt.Errorf("%w: modal filter needs modals_map_dist_limit >= 0 and min_modal_support in 1..8", ErrInvalidConfig)
	}
	if p.DoRefine && p.NDepthsToRefine < 1 {
		return fmt.Errorf("%w: ndepths_to_refine must be >= 1", ErrInvalidConfig)
	}
	if p.RefineOptDepthTolerance < 0 {
		return fmt.Errorf("%w: refine_opt_depth_tolerance must not be negative", ErrInvalidConfig)
	}
	return nil
}

// WithPenalties returns a copy of params with the given aggregation penalties.
func (p Params) WithPenalties(p1, p2, p3 int) Params {
	p.P1 = p1
	p.P2 = p2
	p.P3 = p3
	return p
}

// WithScaleStep returns a copy of params working at the given scale and step.
func (p Params) WithScaleStep(scale, step int) Params {
	p.Scale = scale
	p.Step = step
	return p
}

// WithDepthRange returns a copy of params with global search bounds.
func (p Params) WithDepthRange(minDepth, maxDepth float64) Params {
	p.MinDepth = minDepth
	p.MaxDepth = maxDepth
	return p
}

// WithoutRefinement returns a copy of params with both refinement passes disabled.
func (p Params) WithoutRefinement() Params {
	p.DoRefine = false
	p.DoRefineRc = false
	return p
}

// pixelStride is the distance in full-resolution pixels between volume samples.
func (p Params) pixelStride() int {
	return p.Scale * p.Step
}
