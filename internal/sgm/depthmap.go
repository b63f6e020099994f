package sgm

import (
	"context"
	"fmt"
	"math"
	"time"

	"mvs-depth/pkg/geometry"

	"github.com/rs/zerolog"
)

// InvalidDepth marks a pixel without a depth estimate. It can never be mistaken
// for a real depth, which is always positive.
const InvalidDepth float32 = -1

// DepthSim is the depth of a pixel and its similarity (lower is better, 0..1).
type DepthSim struct {
	Depth float32
	Sim   float32
}

// Valid reports whether the entry holds a depth.
func (d DepthSim) Valid() bool {
	return d.Depth > 0
}

// DepthSimMap is a dense depth/similarity map of a reference view sampled every
// Scale*Step pixels.
type DepthSimMap struct {
	Rc            int
	Width, Height int
	Scale, Step   int
	Cells         []DepthSim
}

// NewDepthSimMap returns a map with every pixel invalid.
func NewDepthSimMap(rc, width, height, scale, step int) *DepthSimMap {
	m := &DepthSimMap{
		Rc:     rc,
		Width:  width,
		Height: height,
		Scale:  scale,
		Step:   step,
		Cells:  make([]DepthSim, width*height),
	}
	for i := range m.Cells {
		m.Cells[i] = DepthSim{Depth: InvalidDepth, Sim: 1}
	}
	return m
}

// At returns the entry of pixel (x, y).
func (m *DepthSimMap) At(x, y int) DepthSim {
	return m.Cells[y*m.Width+x]
}

// Set stores the entry of pixel (x, y).
func (m *DepthSimMap) Set(x, y int, v DepthSim) {
	m.Cells[y*m.Width+x] = v
}

// Pixel returns the full-resolution reference pixel sampled by map pixel (x, y).
func (m *DepthSimMap) Pixel(x, y int) geometry.Point2D {
	s := float64(m.Scale * m.Step)
	return geometry.Point2D{X: float64(x) * s, Y: float64(y) * s}
}

// ValidCount returns the number of pixels holding a depth.
func (m *DepthSimMap) ValidCount() int {
	n := 0
	for _, c := range m.Cells {
		if c.Valid() {
			n++
		}
	}
	return n
}

// Clone returns a deep copy.
func (m *DepthSimMap) Clone() *DepthSimMap {
	c := *m
	c.Cells = append([]DepthSim(nil), m.Cells...)
	return &c
}

// Reconstructor converts best hypothesis indices into metric depths.
type Reconstructor struct {
	cams   Cameras
	params Params
	log    zerolog.Logger
}

// NewReconstructor creates a reconstructor after validating params.
func NewReconstructor(cams Cameras, params Params, log zerolog.Logger) (*Reconstructor, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Reconstructor{cams: cams, params: params, log: log}, nil
}

// Reconstruct intersects, for every pixel, the reference ray with the
// fronto-parallel plane of its best hypothesis and stores the distance of the
// intersection to the optical center. Picks within ZBorder of either end of the
// hypotheses, missing picks and rays missing the plane stay InvalidDepth.
func (r *Reconstructor) Reconstruct(ctx context.Context, rc int, best *BestIndexMap, hyps Hypotheses) (*DepthSimMap, error) {
	if !r.cams.HasView(rc) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownView, rc)
	}
	start := time.Now()
	out := NewDepthSimMap(rc, best.Width, best.Height, r.params.Scale, r.params.Step)
	center := r.cams.OpticalCenter(rc)
	axis := r.cams.ViewAxis(rc)

	err := forEachStripe(ctx, best.Height, func(ctx context.Context, y0, y1 int) error {
		for y := y0; y < y1; y++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			for x := 0; x < best.Width; x++ {
				iv := best.At(x, y)
				if iv.ID == NoHypothesis || !hyps.Valid(int(iv.ID), r.params.ZBorder) {
					continue
				}
				plane := geometry.FrontoParallelPlane(center, axis, hyps.At(int(iv.ID)))
				ray := r.cams.RayThroughPixel(rc, out.Pixel(x, y))
				p, ok := geometry.LinePlaneIntersect(center, ray, plane)
				if !ok {
					continue
				}
				depth := center.Distance(p)
				if !(depth > 0) || math.IsInf(depth, 0) {
					continue
				}
				out.Set(x, y, DepthSim{Depth: float32(depth), Sim: iv.Value})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.log.Debug().
		Int("rc", rc).
		Int("valid", out.ValidCount()).
		Int("pixels", len(out.Cells)).
		Dur("elapsed", time.Since(start)).
		Msg("depth map reconstructed")
	return out, nil
}
