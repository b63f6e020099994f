package sgm

import (
	"bytes"
	"context"
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPipeline(t *testing.T, p Params, m Matcher, baselines ...float64) *Pipeline {
	t.Helper()
	pl, err := NewPipeline(testRig(t, baselines...), m, p, zerolog.Nop())
	require.NoError(t, err)
	return pl
}

func TestPipeline_RecoversPlane(t *testing.T) {
	rig := testRig(t, 0.2)
	pl, err := NewPipeline(rig, planeMatcher(2), testParams(), zerolog.Nop())
	require.NoError(t, err)

	// Hypothesis 33 lies exactly on the plane.
	hyps := mustHypotheses(t, linspace(0.5, 5, 100))
	res, err := pl.RunWithHypotheses(context.Background(), 0, []int{1}, hyps)
	require.NoError(t, err)

	require.NotNil(t, res.SGM)
	require.NotNil(t, res.RefinePhoto)
	require.NotNil(t, res.RefineOpt)
	assert.Same(t, res.RefineOpt, res.Final())
	assert.Equal(t, testWidth*testHeight, res.SGM.ValidCount())

	for y := 0; y < testHeight; y++ {
		for x := 0; x < testWidth; x++ {
			require.Equal(t, int32(33), res.BestIndex.At(x, y).ID)
			require.InDelta(t, 2.0, planeDepthOf(rig, res.SGM, x, y), 1e-5)
			require.InDelta(t, 2.0, planeDepthOf(rig, res.Final(), x, y), 1e-3)
		}
	}
}

func TestPipeline_Run(t *testing.T) {
	rig := testRig(t, 0.02)
	pl, err := NewPipeline(rig, planeMatcher(2), testParams(), zerolog.Nop())
	require.NoError(t, err)

	res, err := pl.Run(context.Background(), 0, []int{1}, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, res.Tcs)
	assert.Equal(t, 16, res.Hypotheses.Len())

	// Inverse-depth spacing around d = 2 is about 0.5, so the closest hypothesis
	// is within that of the plane; refinement never moves away from it.
	require.Equal(t, testWidth*testHeight, res.SGM.ValidCount())
	for y := 0; y < testHeight; y++ {
		for x := 0; x < testWidth; x++ {
			sgmErr := math.Abs(planeDepthOf(rig, res.SGM, x, y) - 2)
			photoErr := math.Abs(planeDepthOf(rig, res.RefinePhoto, x, y) - 2)
			require.Less(t, sgmErr, 0.25)
			require.LessOrEqual(t, photoErr, sgmErr+1e-6)
		}
	}
}

func TestPipeline_Toggles(t *testing.T) {
	p := testParams().WithoutRefinement()
	p.DoSGMOptimizeVolume = false
	p.UseModalFilter = true
	pl := newTestPipeline(t, p, planeMatcher(2), 0.2)

	res, err := pl.RunWithHypotheses(context.Background(), 0, []int{1}, mustHypotheses(t, linspace(0.5, 5, 100)))
	require.NoError(t, err)
	assert.Nil(t, res.RefinePhoto)
	assert.Nil(t, res.RefineOpt)
	assert.Same(t, res.SGM, res.Final())
	assert.Equal(t, int32(33), res.BestIndex.At(4, 4).ID)
	assert.Equal(t, testWidth*testHeight, res.SGM.ValidCount())
}

func TestPipeline_WithMask(t *testing.T) {
	pl := newTestPipeline(t, testParams(), planeMatcher(2), 0.2)
	left := maskFunc(func(x, _ int) bool { return x < testWidth/2 })
	masked := pl.WithMask(left)

	hyps := mustHypotheses(t, linspace(0.5, 5, 100))
	res, err := masked.RunWithHypotheses(context.Background(), 0, []int{1}, hyps)
	require.NoError(t, err)
	for _, m := range []*DepthSimMap{res.SGM, res.RefinePhoto, res.RefineOpt} {
		assert.Equal(t, testWidth*testHeight/2, m.ValidCount())
		assert.False(t, m.At(0, 5).Valid())
		assert.True(t, m.At(testWidth-1, 5).Valid())
	}
	assert.Equal(t, NoHypothesis, res.BestIndex.At(3, 3).ID)

	res, err = pl.RunWithHypotheses(context.Background(), 0, []int{1}, hyps)
	require.NoError(t, err)
	assert.Equal(t, testWidth*testHeight, res.SGM.ValidCount(), "the original pipeline is unmasked")
}

func TestPipeline_ScaleStep(t *testing.T) {
	p := testParams().WithScaleStep(2, 1).WithoutRefinement()
	pl := newTestPipeline(t, p, planeMatcher(2), 0.2)

	w, h := pl.VolumeSize(0)
	assert.Equal(t, testWidth/2, w)
	assert.Equal(t, testHeight/2, h)

	res, err := pl.RunWithHypotheses(context.Background(), 0, []int{1}, mustHypotheses(t, linspace(0.5, 5, 100)))
	require.NoError(t, err)
	assert.Equal(t, testWidth/2, res.SGM.Width)
	assert.Equal(t, 2, res.SGM.Scale)
	assert.Equal(t, 1, res.SGM.Step)
}

func TestPipeline_SingleHypothesis(t *testing.T) {
	p := testParams().WithoutRefinement()
	p.ZBorder = 0
	pl := newTestPipeline(t, p, planeMatcher(2), 0.2)
	hyps := mustHypotheses(t, []float64{2})

	res, err := pl.RunWithHypotheses(context.Background(), 0, []int{1}, hyps)
	require.NoError(t, err)
	assert.Equal(t, testWidth*testHeight, res.SGM.ValidCount())

	p.ZBorder = 1
	pl = newTestPipeline(t, p, planeMatcher(2), 0.2)
	res, err = pl.RunWithHypotheses(context.Background(), 0, []int{1}, hyps)
	require.NoError(t, err)
	assert.Equal(t, 0, res.SGM.ValidCount())
}

func TestPipeline_NoUsableRange(t *testing.T) {
	var buf bytes.Buffer
	pl, err := NewPipeline(testRig(t, 100), planeMatcher(2), testParams(), zerolog.New(&buf))
	require.NoError(t, err)

	res, err := pl.Run(context.Background(), 0, []int{1}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, res.SGM.ValidCount())
	assert.Equal(t, testWidth*testHeight, len(res.SGM.Cells))
	assert.Same(t, res.SGM, res.Final())
	assert.Contains(t, buf.String(), "no depth computable")
}

func TestPipeline_Errors(t *testing.T) {
	_, err := NewPipeline(testRig(t, 0.2), planeMatcher(2), DefaultParams().WithPenalties(50, 10, 0), zerolog.Nop())
	assert.ErrorIs(t, err, ErrInvalidConfig)

	pl := newTestPipeline(t, testParams(), planeMatcher(2), 0.2)
	hyps := mustHypotheses(t, linspace(0.5, 5, 10))

	_, err = pl.RunWithHypotheses(context.Background(), 7, []int{1}, hyps)
	assert.ErrorIs(t, err, ErrUnknownView)
	_, err = pl.RunWithHypotheses(context.Background(), 0, []int{4}, hyps)
	assert.ErrorIs(t, err, ErrUnknownView)
	_, err = pl.RunWithHypotheses(context.Background(), 0, []int{0}, hyps)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	_, err = pl.Run(context.Background(), 0, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	p := testParams()
	p.MaxVolumeBytes = 1024
	pl = newTestPipeline(t, p, planeMatcher(2), 0.2)
	_, err = pl.RunWithHypotheses(context.Background(), 0, []int{1}, hyps)
	assert.ErrorIs(t, err, ErrVolumeTooLarge)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pl = newTestPipeline(t, testParams(), planeMatcher(2), 0.2)
	_, err = pl.RunWithHypotheses(ctx, 0, []int{1}, hyps)
	assert.ErrorIs(t, err, context.Canceled)
}
