package sgm

import (
	"math"
	"testing"

	"mvs-depth/internal/camera"
	"mvs-depth/pkg/geometry"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

const (
	testWidth  = 32
	testHeight = 24
	testFocal  = 400.0
)

// testRig returns a reference camera 0 at the origin looking down +Z and one target
// camera per baseline, shifted along +X with the same orientation. Target ids
// start at 1.
func testRig(t *testing.T, baselines ...float64) *camera.Rig {
	t.Helper()
	k := camera.Intrinsics(testFocal, testWidth/2, testHeight/2)
	eye := mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})

	cams := make([]*camera.Camera, 0, len(baselines)+1)
	rc, err := camera.New(0, testWidth, testHeight, k, eye, r3.Vector{})
	require.NoError(t, err)
	cams = append(cams, rc)
	for i, b := range baselines {
		tc, err := camera.New(i+1, testWidth, testHeight, k, eye, r3.Vector{X: b})
		require.NoError(t, err)
		cams = append(cams, tc)
	}
	rig, err := camera.NewRig(cams...)
	require.NoError(t, err)
	return rig
}

// matcherFunc adapts a function to the Matcher interface.
type matcherFunc func(rc int, pix geometry.Point2D, tc int, depth float64) (float64, bool)

func (f matcherFunc) Score(rc int, pix geometry.Point2D, tc int, depth float64) (float64, bool) {
	return f(rc, pix, tc, depth)
}

// maskFunc adapts a function to the Mask interface.
type maskFunc func(x, y int) bool

func (f maskFunc) Masked(x, y int) bool { return f(x, y) }

// planeMatcher scores a fronto-parallel plane at depth d0 as a perfect match, with
// cost growing linearly away from it.
func planeMatcher(d0 float64) Matcher {
	return matcherFunc(func(_ int, _ geometry.Point2D, _ int, depth float64) (float64, bool) {
		return math.Abs(depth-d0) / 4.5, true
	})
}

// testParams returns valid params for the small test scenes.
func testParams() Params {
	p := DefaultParams().WithDepthRange(0.5, 5)
	p.RcDepthsCompStep = 1
	p.MinNumOfConsistentCams = 1
	return p
}

func linspace(lo, hi float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = lo + (hi-lo)*float64(i)/float64(n-1)
	}
	return out
}

func mustHypotheses(t *testing.T, depths []float64) Hypotheses {
	t.Helper()
	h, err := NewHypotheses(depths)
	require.NoError(t, err)
	return h
}

// planeDepthOf returns the depth along the view axis of a map entry.
func planeDepthOf(rig *camera.Rig, m *DepthSimMap, x, y int) float64 {
	ray := rig.RayThroughPixel(m.Rc, m.Pixel(x, y))
	return float64(m.At(x, y).Depth) * ray.Dot(rig.ViewAxis(m.Rc))
}
