// Package match scores reference pixels against target views for plane hypotheses.
package match

import (
	"fmt"
	"sync"

	"mvs-depth/internal/image"
	"mvs-depth/internal/sgm"
	"mvs-depth/pkg/geometry"

	"gonum.org/v1/gonum/stat"
)

// Options configures the ZNCC matcher.
type Options struct {
	// Radius of the square patch, in image pixels at Scale.
	Radius int `json:"radius" yaml:"radius"`
	// Patches whose variance is below MinVariance are not matched.
	MinVariance float64 `json:"min_variance" yaml:"min_variance"`
	// Scale is the downsampling factor of the images relative to the cameras.
	Scale int `json:"scale" yaml:"scale"`
}

// DefaultOptions returns a 5x5 patch at full resolution.
func DefaultOptions() Options {
	return Options{Radius: 2, MinVariance: 1e-5, Scale: 1}
}

// ZNCC compares patches by zero-mean normalized cross-correlation. Every patch pixel
// is transferred to the target through the hypothesis plane, so slanted views
// sample a warped patch. The cost is (1 - zncc) / 2.
type ZNCC struct {
	cams   sgm.Cameras
	images map[int]*image.Gray
	opts   Options
	pool   sync.Pool
}

type patchBuf struct {
	ref, tgt []float64
}

// NewZNCC creates a matcher. Images are indexed by view id and must have the camera
// size divided by opts.Scale.
func NewZNCC(cams sgm.Cameras, images map[int]*image.Gray, opts Options) (*ZNCC, error) {
	if opts.Radius < 1 {
		return nil, fmt.Errorf("patch radius must be >= 1, got %d", opts.Radius)
	}
	if opts.Scale < 1 {
		return nil, fmt.Errorf("scale must be >= 1, got %d", opts.Scale)
	}
	for view, img := range images {
		if !cams.HasView(view) {
			return nil, fmt.Errorf("%w: image for view %d", sgm.ErrUnknownView, view)
		}
		w, h := cams.ImageSize(view)
		if img.Width != max(1, w/opts.Scale) || img.Height != max(1, h/opts.Scale) {
			return nil, fmt.Errorf("image of view %d is %dx%d, expected %dx%d",
				view, img.Width, img.Height, w/opts.Scale, h/opts.Scale)
		}
	}
	n := (2*opts.Radius + 1) * (2*opts.Radius + 1)
	z := &ZNCC{cams: cams, images: images, opts: opts}
	z.pool.New = func() any {
		return &patchBuf{ref: make([]float64, n), tgt: make([]float64, n)}
	}
	return z, nil
}

// Score implements sgm.Matcher.
func (z *ZNCC) Score(rc int, pix geometry.Point2D, tc int, depth float64) (float64, bool) {
	refImg, tgtImg := z.images[rc], z.images[tc]
	if refImg == nil || tgtImg == nil || !(depth > 0) {
		return 0, false
	}
	buf := z.pool.Get().(*patchBuf)
	defer z.pool.Put(buf)

	s := float64(z.opts.Scale)
	center := z.cams.OpticalCenter(rc)
	axis := z.cams.ViewAxis(rc)
	plane := geometry.FrontoParallelPlane(center, axis, depth)

	i := 0
	for dy := -z.opts.Radius; dy <= z.opts.Radius; dy++ {
		for dx := -z.opts.Radius; dx <= z.opts.Radius; dx++ {
			q := geometry.Point2D{X: pix.X + float64(dx)*s, Y: pix.Y + float64(dy)*s}
			rv, ok := refImg.Bilinear(q.X/s, q.Y/s)
			if !ok {
				return 0, false
			}
			x, ok := geometry.LinePlaneIntersect(center, z.cams.RayThroughPixel(rc, q), plane)
			if !ok {
				return 0, false
			}
			p, ok := z.cams.Project(tc, x)
			if !ok {
				return 0, false
			}
			tv, ok := tgtImg.Bilinear(p.X/s, p.Y/s)
			if !ok {
				return 0, false
			}
			buf.ref[i], buf.tgt[i] = rv, tv
			i++
		}
	}

	if stat.Variance(buf.ref, nil) < z.opts.MinVariance || stat.Variance(buf.tgt, nil) < z.opts.MinVariance {
		return 0, false
	}
	ncc := stat.Correlation(buf.ref, buf.tgt, nil)
	return (1 - max(-1, min(1, ncc))) / 2, true
}
