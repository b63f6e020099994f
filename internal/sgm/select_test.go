package sgm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func aggFromCells(width, height int, norm float64, cells [][]uint16) *AggregatedVolume {
	v := NewVolume[uint16](width, height, len(cells[0]))
	v.Norm = norm
	for i, cell := range cells {
		copy(v.Cell(i%width, i/width), cell)
	}
	return v
}

func TestSelect(t *testing.T) {
	vol := aggFromCells(3, 1, 100, [][]uint16{
		{30, 10, 50},
		{7, 7, 9}, // tie goes to the nearest hypothesis
		{400, 300, 200},
	})
	vol.SetSupported(2, 0, false)

	sel, err := NewSelector(DefaultParams())
	require.NoError(t, err)
	best, err := sel.Select(context.Background(), vol)
	require.NoError(t, err)

	assert.Equal(t, IdValue{ID: 1, Value: 0.1}, best.At(0, 0))
	assert.Equal(t, IdValue{ID: 0, Value: 0.07}, best.At(1, 0))
	assert.Equal(t, NoHypothesis, best.At(2, 0).ID)
	assert.Equal(t, float32(1), best.At(2, 0).Value)
}

func TestSelect_ValueSaturates(t *testing.T) {
	vol := aggFromCells(1, 1, 100, [][]uint16{{250, 300}})
	sel, err := NewSelector(DefaultParams())
	require.NoError(t, err)
	best, err := sel.Select(context.Background(), vol)
	require.NoError(t, err)
	assert.Equal(t, IdValue{ID: 0, Value: 1}, best.At(0, 0))
}

func TestSelect_SingleHypothesis(t *testing.T) {
	vol := aggFromCells(2, 2, 254, [][]uint16{{5}, {0}, {254}, {100}})
	sel, err := NewSelector(DefaultParams())
	require.NoError(t, err)
	best, err := sel.Select(context.Background(), vol)
	require.NoError(t, err)
	for _, c := range best.Cells {
		assert.Equal(t, int32(0), c.ID)
	}
}

func TestModalFilter(t *testing.T) {
	p := DefaultParams()
	p.UseModalFilter = true
	p.ModalsMapDistLimit = 1
	p.MinModalSupport = 2
	sel, err := NewSelector(p)
	require.NoError(t, err)

	best := newBestIndexMap(3, 3)
	for i := range best.Cells {
		best.Cells[i] = IdValue{ID: 10, Value: 0.2}
	}
	best.Cells[4] = IdValue{ID: 30, Value: 0.1} // center disagrees with everything
	best.Cells[0] = IdValue{ID: 11, Value: 0.3} // corner within the limit
	best.Cells[8] = IdValue{ID: NoHypothesis, Value: 1}

	out := sel.ModalFilter(best)
	assert.Equal(t, NoHypothesis, out.At(1, 1).ID)
	assert.Equal(t, int32(11), out.At(0, 0).ID)
	assert.Equal(t, int32(10), out.At(2, 0).ID)
	assert.Equal(t, NoHypothesis, out.At(2, 2).ID)
	assert.Equal(t, int32(30), best.At(1, 1).ID, "input is untouched")
}
