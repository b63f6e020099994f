package sgm

import (
	"context"
	"errors"
	"sync"
	"testing"

	"mvs-depth/pkg/geometry"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVolume_Layout(t *testing.T) {
	v := NewVolume[uint8](4, 3, 5)
	v.Set(2, 1, 3, 42)
	assert.Equal(t, uint8(42), v.At(2, 1, 3))
	assert.Equal(t, uint8(42), v.Cell(2, 1)[3])
	assert.Len(t, v.Cell(0, 0), 5)
	assert.True(t, v.Supported(3, 2))
	v.SetSupported(3, 2, false)
	assert.False(t, v.Supported(3, 2))

	assert.True(t, SameShape(v, NewVolume[uint16](4, 3, 5)))
	assert.False(t, SameShape(v, NewVolume[uint16](4, 3, 6)))
}

func TestCheckVolumeSize(t *testing.T) {
	p := DefaultParams()
	require.NoError(t, checkVolumeSize(p, 100, 100, 100))

	p.MaxVolumeBytes = 1000
	err := checkVolumeSize(p, 10, 10, 10)
	require.ErrorIs(t, err, ErrVolumeTooLarge)
	var tooLarge *VolumeTooLargeError
	require.True(t, errors.As(err, &tooLarge))
	assert.Equal(t, int64(3000), tooLarge.Bytes)
	assert.Equal(t, int64(1000), tooLarge.LimitBytes)

	p = DefaultParams()
	p.MaxDepthsToStore = 8
	err = checkVolumeSize(p, 2, 2, 9)
	assert.ErrorIs(t, err, ErrVolumeTooLarge)
	assert.Contains(t, err.Error(), "exceed max 8")
}

func twoTargetMatcher(c1, c2 float64, ok2 bool) Matcher {
	return matcherFunc(func(_ int, _ geometry.Point2D, tc int, _ float64) (float64, bool) {
		if tc == 1 {
			return c1, true
		}
		return c2, ok2
	})
}

func TestVolumeBuilder_Fusion(t *testing.T) {
	hyps := mustHypotheses(t, []float64{1, 2})
	tests := []struct {
		name   string
		fusion Fusion
		want   uint8
	}{
		{"mean", FusionMean, 102}, // 0.4 * 254 = 101.6
		{"min", FusionMin, 51},    // 0.2 * 254 = 50.8
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testParams()
			p.CostFusion = tt.fusion
			b, err := NewVolumeBuilder(twoTargetMatcher(0.2, 0.6, true), p, zerolog.Nop())
			require.NoError(t, err)

			vol, err := b.Build(context.Background(), 0, []int{1, 2}, hyps, 3, 2)
			require.NoError(t, err)
			assert.Equal(t, float64(MaxMatchCost), vol.Norm)
			assert.Equal(t, tt.want, vol.At(2, 1, 1))
			assert.True(t, vol.Supported(2, 1))
		})
	}
}

func TestVolumeBuilder_ConsistentCams(t *testing.T) {
	hyps := mustHypotheses(t, []float64{1, 2})
	p := testParams()
	p.MinNumOfConsistentCams = 2
	b, err := NewVolumeBuilder(twoTargetMatcher(0.2, 0.6, false), p, zerolog.Nop())
	require.NoError(t, err)

	vol, err := b.Build(context.Background(), 0, []int{1, 2}, hyps, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, uint8(InvalidCost), vol.At(0, 0, 0))
	assert.False(t, vol.Supported(0, 0))

	// Requiring more views than there are targets asks for all of them.
	vol, err = b.Build(context.Background(), 0, []int{1}, hyps, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, uint8(51), vol.At(1, 1, 1))
	assert.True(t, vol.Supported(1, 1))
}

func TestVolumeBuilder_ClampsCosts(t *testing.T) {
	hyps := mustHypotheses(t, []float64{1})
	b, err := NewVolumeBuilder(twoTargetMatcher(3, 0, true), testParams(), zerolog.Nop())
	require.NoError(t, err)

	vol, err := b.Build(context.Background(), 0, []int{1}, hyps, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, uint8(MaxMatchCost), vol.At(0, 0, 0))
}

func TestVolumeBuilder_SamplesEveryStridePixel(t *testing.T) {
	var (
		mu   sync.Mutex
		seen = map[geometry.Point2D]bool{}
	)
	m := matcherFunc(func(_ int, pix geometry.Point2D, _ int, _ float64) (float64, bool) {
		mu.Lock()
		seen[pix] = true
		mu.Unlock()
		return 0, true
	})
	b, err := NewVolumeBuilder(m, testParams().WithScaleStep(2, 2), zerolog.Nop())
	require.NoError(t, err)

	_, err = b.Build(context.Background(), 0, []int{1}, mustHypotheses(t, []float64{1}), 3, 2)
	require.NoError(t, err)
	assert.Len(t, seen, 6)
	assert.True(t, seen[geometry.Point2D{X: 8, Y: 4}])
}

func TestVolumeBuilder_Mask(t *testing.T) {
	var (
		mu   sync.Mutex
		seen = map[geometry.Point2D]bool{}
	)
	m := matcherFunc(func(_ int, pix geometry.Point2D, _ int, _ float64) (float64, bool) {
		mu.Lock()
		seen[pix] = true
		mu.Unlock()
		return 0.5, true
	})
	b, err := NewVolumeBuilder(m, testParams().WithScaleStep(2, 1), zerolog.Nop())
	require.NoError(t, err)

	// Full-resolution column 2 is volume column 1.
	mask := maskFunc(func(x, _ int) bool { return x == 2 })
	vol, err := b.BuildMasked(context.Background(), 0, []int{1}, mustHypotheses(t, []float64{1, 2}), 3, 2, mask)
	require.NoError(t, err)
	for y := 0; y < 2; y++ {
		assert.False(t, vol.Supported(1, y))
		assert.Equal(t, []uint8{InvalidCost, InvalidCost}, vol.Cell(1, y))
		assert.True(t, vol.Supported(0, y))
		assert.Equal(t, uint8(127), vol.At(2, y, 0))
	}
	assert.Len(t, seen, 4, "masked pixels never reach the matcher")
	assert.False(t, seen[geometry.Point2D{X: 2, Y: 0}])
}

func TestVolumeBuilder_Errors(t *testing.T) {
	p := testParams()
	p.MaxVolumeBytes = 10
	b, err := NewVolumeBuilder(planeMatcher(2), p, zerolog.Nop())
	require.NoError(t, err)
	hyps := mustHypotheses(t, []float64{1, 2})

	_, err = b.Build(context.Background(), 0, []int{1}, hyps, 4, 4)
	assert.ErrorIs(t, err, ErrVolumeTooLarge)

	_, err = b.Build(context.Background(), 0, nil, hyps, 1, 1)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = b.Build(context.Background(), 0, []int{1}, Hypotheses{}, 1, 1)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = b.Build(ctx, 0, []int{1}, hyps, 1, 1)
	assert.ErrorIs(t, err, context.Canceled)
}
