package sgm

import (
	"context"
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"github.com/rs/zerolog"
)

// Refiner sharpens a coarse depth map by re-sampling a narrow set of planes around
// each pixel's estimate.
type Refiner struct {
	cams    Cameras
	builder *VolumeBuilder
	params  Params
	log     zerolog.Logger
}

// NewRefiner creates a refiner after validating params.
func NewRefiner(cams Cameras, matcher Matcher, params Params, log zerolog.Logger) (*Refiner, error) {
	b, err := NewVolumeBuilder(matcher, params, log)
	if err != nil {
		return nil, err
	}
	return &Refiner{cams: cams, builder: b, params: params, log: log}, nil
}

// Refine returns a new map where every valid pixel of coarse is re-estimated from
// NDepthsToRefine planes centred on its depth. Pixels without any supported
// candidate keep their coarse value; invalid pixels stay invalid.
func (r *Refiner) Refine(ctx context.Context, coarse *DepthSimMap, tcs []int) (*DepthSimMap, error) {
	rc := coarse.Rc
	if !r.cams.HasView(rc) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownView, rc)
	}
	if len(tcs) == 0 {
		return nil, fmt.Errorf("%w: no target views", ErrInvalidConfig)
	}
	out := coarse.Clone()
	axis := r.cams.ViewAxis(rc)
	n := r.params.NDepthsToRefine

	err := forEachStripe(ctx, coarse.Height, func(ctx context.Context, y0, y1 int) error {
		scratch := make([]float64, len(tcs))
		for y := y0; y < y1; y++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			for x := 0; x < coarse.Width; x++ {
				cur := coarse.At(x, y)
				if !cur.Valid() {
					continue
				}
				pix := coarse.Pixel(x, y)
				ray := r.cams.RayThroughPixel(rc, pix)
				cosAxis := ray.Dot(axis)
				if cosAxis <= 0 {
					continue
				}
				planeDepth := float64(cur.Depth) * cosAxis
				x3, ok := pointOnPlane(r.cams, rc, pix, planeDepth)
				if !ok {
					continue
				}
				spacing := r.spacing(rc, tcs, x3, planeDepth, ray, cosAxis)
				if !(spacing > 0) {
					continue
				}

				bestDepth, bestCost := 0.0, math.Inf(1)
				for i := 0; i < n; i++ {
					d := planeDepth + float64(i-n/2)*spacing
					if d <= 0 {
						continue
					}
					c, ok := r.builder.fusedCost(rc, pix, tcs, d, scratch)
					if !ok || c >= bestCost {
						continue
					}
					bestDepth, bestCost = d, c
				}
				if math.IsInf(bestCost, 1) {
					continue
				}
				out.Set(x, y, DepthSim{Depth: float32(bestDepth / cosAxis), Sim: float32(bestCost)})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// spacing returns the plane depth step between refinement candidates at point x.
// With RefineUseTcOrPixSize it is the depth change moving the projection by one
// pixel in the most sensitive target view; otherwise, or when no target sees x, it
// is the reference pixel footprint.
func (r *Refiner) spacing(rc int, tcs []int, x r3.Vector, planeDepth float64, ray r3.Vector, cosAxis float64) float64 {
	footprint := r.cams.PixelSize(rc, x)
	if !r.params.RefineUseTcOrPixSize {
		return footprint
	}
	center := r.cams.OpticalCenter(rc)
	delta := footprint
	if !(delta > 0) {
		return 0
	}
	near := center.Add(ray.Mul((planeDepth - delta/2) / cosAxis))
	far := center.Add(ray.Mul((planeDepth + delta/2) / cosAxis))

	maxRate := 0.0
	for _, tc := range tcs {
		p0, ok0 := r.cams.Project(tc, near)
		p1, ok1 := r.cams.Project(tc, far)
		if !ok0 || !ok1 || !inImage(r.cams, tc, p0) {
			continue
		}
		maxRate = math.Max(maxRate, p0.Distance(p1)/delta)
	}
	if maxRate == 0 {
		return footprint
	}
	return 1 / maxRate
}

// Smooth returns a new map where every valid pixel is replaced by the
// similarity-weighted mean of the valid pixels of its 3x3 neighbourhood whose depth
// lies within RefineOptDepthTolerance (relative) of it.
func (r *Refiner) Smooth(ctx context.Context, m *DepthSimMap) (*DepthSimMap, error) {
	out := m.Clone()
	tol := r.params.RefineOptDepthTolerance

	err := forEachStripe(ctx, m.Height, func(ctx context.Context, y0, y1 int) error {
		for y := y0; y < y1; y++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			for x := 0; x < m.Width; x++ {
				c := m.At(x, y)
				if !c.Valid() {
					continue
				}
				var sum, wsum float64
				for dy := -1; dy <= 1; dy++ {
					for dx := -1; dx <= 1; dx++ {
						nx, ny := x+dx, y+dy
						if nx < 0 || ny < 0 || nx >= m.Width || ny >= m.Height {
							continue
						}
						n := m.At(nx, ny)
						if !n.Valid() || math.Abs(float64(n.Depth-c.Depth)) > tol*float64(c.Depth) {
							continue
						}
						w := math.Max(1e-3, 1-float64(n.Sim))
						sum += w * float64(n.Depth)
						wsum += w
					}
				}
				if wsum > 0 {
					out.Set(x, y, DepthSim{Depth: float32(sum / wsum), Sim: c.Sim})
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
