// Package sgm estimates depth and similarity maps for a reference view with a
// plane-sweep cost volume smoothed by semi-global aggregation.
//
// A run for one reference view goes through HypothesisBuilder, VolumeBuilder,
// Aggregator, Selector and Reconstructor, then optionally Refiner. Pipeline wires
// them together.
package sgm

import (
	"mvs-depth/pkg/geometry"

	"github.com/golang/geo/r3"
)

// Cameras is the read-only camera geometry shared by all stages.
// Implementations must be safe for concurrent use.
type Cameras interface {
	HasView(view int) bool
	OpticalCenter(view int) r3.Vector
	ViewAxis(view int) r3.Vector
	RayThroughPixel(view int, pix geometry.Point2D) r3.Vector
	Project(view int, x r3.Vector) (geometry.Point2D, bool)
	ImageSize(view int) (width, height int)
	PixelSize(view int, x r3.Vector) float64
}

// Matcher scores a reference pixel against a target view for the fronto-parallel
// plane of the reference view at the given depth. Costs lie in [0, 1], lower is a
// better match; ok is false when the target cannot observe the point.
// Implementations must be safe for concurrent use.
type Matcher interface {
	Score(rc int, pix geometry.Point2D, tc int, depth float64) (cost float64, ok bool)
}

// Mask excludes reference pixels, given in full-resolution coordinates, from
// matching. Masked pixels end up invalid in every map.
type Mask interface {
	Masked(x, y int) bool
}

// pointOnPlane returns where the ray of rc through pix meets the fronto-parallel
// plane at depth.
func pointOnPlane(cams Cameras, rc int, pix geometry.Point2D, depth float64) (r3.Vector, bool) {
	c := cams.OpticalCenter(rc)
	plane := geometry.FrontoParallelPlane(c, cams.ViewAxis(rc), depth)
	return geometry.LinePlaneIntersect(c, cams.RayThroughPixel(rc, pix), plane)
}

func inImage(cams Cameras, view int, p geometry.Point2D) bool {
	w, h := cams.ImageSize(view)
	return p.X >= 0 && p.Y >= 0 && p.X <= float64(w-1) && p.Y <= float64(h-1)
}
