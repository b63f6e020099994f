package sgm

import (
	"fmt"
	"math"
	"sort"

	"mvs-depth/pkg/geometry"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/stat"
)

// rangeSamples is the number of depths probed along the reference principal ray
// when measuring the range a target view can observe.
const rangeSamples = 2048

// Hypotheses is an immutable, strictly increasing sequence of plane depths.
type Hypotheses struct {
	depths []float64
}

// NewHypotheses validates and copies a depth sequence.
func NewHypotheses(depths []float64) (Hypotheses, error) {
	if len(depths) == 0 {
		return Hypotheses{}, fmt.Errorf("%w: empty hypothesis set", ErrInvalidConfig)
	}
	for i, d := range depths {
		if !(d > 0) || math.IsInf(d, 0) {
			return Hypotheses{}, fmt.Errorf("%w: hypothesis %d has depth %g", ErrInvalidConfig, i, d)
		}
		if i > 0 && !(d > depths[i-1]) {
			return Hypotheses{}, fmt.Errorf("%w: hypotheses not strictly increasing at %d", ErrInvalidConfig, i)
		}
	}
	return Hypotheses{depths: append([]float64(nil), depths...)}, nil
}

// Len returns the number of hypotheses.
func (h Hypotheses) Len() int { return len(h.depths) }

// At returns the depth of hypothesis i.
func (h Hypotheses) At(i int) float64 { return h.depths[i] }

// Depths returns a copy of the depth sequence.
func (h Hypotheses) Depths() []float64 { return append([]float64(nil), h.depths...) }

// Valid reports whether index i is far enough from both ends to be trusted.
func (h Hypotheses) Valid(i, zborder int) bool {
	return i >= zborder && i < len(h.depths)-zborder
}

// DepthRange is a closed depth interval.
type DepthRange struct {
	Min, Max float64
}

func (r DepthRange) union(o DepthRange) DepthRange {
	return DepthRange{Min: math.Min(r.Min, o.Min), Max: math.Max(r.Max, o.Max)}
}

// HypothesisBuilder discretizes the search range along each reference ray.
type HypothesisBuilder struct {
	cams   Cameras
	params Params
}

// NewHypothesisBuilder creates a builder after validating params.
func NewHypothesisBuilder(cams Cameras, params Params) (*HypothesisBuilder, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &HypothesisBuilder{cams: cams, params: params}, nil
}

// Build returns the hypotheses for rc and the subset of tcs that contributed a
// usable range. Seeds are optional world points used to narrow the search.
func (b *HypothesisBuilder) Build(rc int, tcs []int, seeds []r3.Vector) (Hypotheses, []int, error) {
	search := DepthRange{Min: b.params.MinDepth, Max: b.params.MaxDepth}
	if b.params.UseSeedsToCompDepthsToSweep && len(seeds) > 0 {
		if r, ok := b.seedRange(rc, seeds); ok {
			search = r
		}
	}

	var (
		total   DepthRange
		maxPix  float64
		usedTcs []int
	)
	for _, tc := range tcs {
		if tc == rc {
			continue
		}
		r, pix, ok := b.tcRange(rc, tc, search)
		if !ok {
			continue
		}
		if len(usedTcs) == 0 {
			total = r
		} else {
			total = total.union(r)
		}
		maxPix = math.Max(maxPix, pix)
		usedTcs = append(usedTcs, tc)
	}
	if len(usedTcs) == 0 {
		return Hypotheses{}, nil, ErrNoUsableRange
	}

	n := int(math.Ceil(maxPix/float64(b.params.RcDepthsCompStep))) + 1
	n = max(1, min(n, b.params.MaxDepthsToSweep))
	return sampleRange(total, n, b.params.DepthSampling), usedTcs, nil
}

// seedRange returns the percentile-trimmed, inflated depth interval of the seeds in
// front of rc, clamped to the global bounds.
func (b *HypothesisBuilder) seedRange(rc int, seeds []r3.Vector) (DepthRange, bool) {
	c := b.cams.OpticalCenter(rc)
	axis := b.cams.ViewAxis(rc)
	depths := make([]float64, 0, len(seeds))
	for _, s := range seeds {
		if d := s.Sub(c).Dot(axis); d > 0 {
			depths = append(depths, d)
		}
	}
	if len(depths) == 0 {
		return DepthRange{}, false
	}
	sort.Float64s(depths)

	p := b.params.SeedsRangePercentile
	lo := stat.Quantile(p, stat.Empirical, depths, nil)
	hi := stat.Quantile(1-p, stat.Empirical, depths, nil)
	if span := hi - lo; span > 0 {
		lo -= span * b.params.SeedsRangeInflate
		hi += span * b.params.SeedsRangeInflate
	} else {
		lo *= 1 - b.params.SeedsRangeInflate
		hi *= 1 + b.params.SeedsRangeInflate
	}
	lo = math.Max(lo, b.params.MinDepth)
	hi = math.Min(hi, b.params.MaxDepth)
	if !(hi > lo) {
		return DepthRange{}, false
	}
	return DepthRange{Min: lo, Max: hi}, true
}

// tcRange measures which part of the search interval along the principal ray of rc
// is observed by tc. It returns the interval clipped to RcTcDepthsHalfLimit
// epipolar pixels either side of the depth where both principal rays come closest,
// and the epipolar length of that interval in tc pixels. A tc that sees the middle
// of that interval much coarser than rc is not usable.
func (b *HypothesisBuilder) tcRange(rc, tc int, search DepthRange) (DepthRange, float64, bool) {
	w, h := b.cams.ImageSize(rc)
	center := geometry.Point2D{X: float64(w) / 2, Y: float64(h) / 2}
	origin := b.cams.OpticalCenter(rc)
	ray := b.cams.RayThroughPixel(rc, center)
	cosAxis := ray.Dot(b.cams.ViewAxis(rc))
	if cosAxis <= 0 {
		return DepthRange{}, 0, false
	}

	depths := make([]float64, rangeSamples)
	proj := make([]geometry.Point2D, rangeSamples)
	visible := make([]bool, rangeSamples)
	ratio := search.Max / search.Min
	for i := range depths {
		d := search.Min * math.Pow(ratio, float64(i)/float64(rangeSamples-1))
		depths[i] = d
		p, ok := b.cams.Project(tc, origin.Add(ray.Mul(d/cosAxis)))
		proj[i] = p
		visible[i] = ok && inImage(b.cams, tc, p)
	}

	// Longest run of consecutive visible samples.
	first, last := -1, -1
	for i := 0; i < rangeSamples; {
		if !visible[i] {
			i++
			continue
		}
		j := i
		for j+1 < rangeSamples && visible[j+1] {
			j++
		}
		if first < 0 || j-i > last-first {
			first, last = i, j
		}
		i = j + 1
	}
	if first < 0 || last == first {
		return DepthRange{}, 0, false
	}

	mid := (first + last) / 2
	tcAxis := b.cams.RayThroughPixel(tc, centerOf(b.cams, tc))
	if s, ok := geometry.ClosestApproach(origin, ray, b.cams.OpticalCenter(tc), tcAxis); ok && s > 0 {
		md := s * cosAxis
		k := sort.SearchFloat64s(depths[first:last+1], md) + first
		mid = max(first, min(k, last))
	}

	limit := float64(b.params.RcTcDepthsHalfLimit)
	lo, hi := mid, mid
	for dist := 0.0; lo > first; lo-- {
		dist += proj[lo].Distance(proj[lo-1])
		if dist > limit {
			break
		}
	}
	for dist := 0.0; hi < last; hi++ {
		dist += proj[hi].Distance(proj[hi+1])
		if dist > limit {
			break
		}
	}
	if hi == lo {
		return DepthRange{}, 0, false
	}
	if maxRatio := b.params.MaxTcRcPixSizeInVoxRatio; maxRatio > 0 {
		x := origin.Add(ray.Mul(depths[(lo+hi)/2] / cosAxis))
		if rcSize := b.cams.PixelSize(rc, x); rcSize > 0 && b.cams.PixelSize(tc, x)/rcSize > maxRatio {
			return DepthRange{}, 0, false
		}
	}

	var pix float64
	for i := lo; i < hi; i++ {
		pix += proj[i].Distance(proj[i+1])
	}
	return DepthRange{Min: depths[lo], Max: depths[hi]}, pix, true
}

func centerOf(cams Cameras, view int) geometry.Point2D {
	w, h := cams.ImageSize(view)
	return geometry.Point2D{X: float64(w) / 2, Y: float64(h) / 2}
}

// sampleRange spreads n hypotheses over r, uniformly in depth or inverse depth.
func sampleRange(r DepthRange, n int, sampling Sampling) Hypotheses {
	if n <= 1 || !(r.Max > r.Min) {
		return Hypotheses{depths: []float64{(r.Min + r.Max) / 2}}
	}
	depths := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		t := float64(i) / float64(n-1)
		var d float64
		if sampling == SamplingInverseDepth {
			inv := 1/r.Min + t*(1/r.Max-1/r.Min)
			d = 1 / inv
		} else {
			d = r.Min + t*(r.Max-r.Min)
		}
		if len(depths) > 0 && !(d > depths[len(depths)-1]) {
			continue
		}
		depths = append(depths, d)
	}
	return Hypotheses{depths: depths}
}
