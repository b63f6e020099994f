package sgm

import (
	"context"
	"math"
)

// NoHypothesis marks a pixel without a usable pick.
const NoHypothesis int32 = -1

// IdValue is the best hypothesis of a pixel and its normalized cost.
type IdValue struct {
	ID    int32
	Value float32
}

// BestIndexMap holds one IdValue per volume pixel.
type BestIndexMap struct {
	Width, Height int
	Cells         []IdValue
}

func newBestIndexMap(width, height int) *BestIndexMap {
	return &BestIndexMap{Width: width, Height: height, Cells: make([]IdValue, width*height)}
}

// At returns the pick of pixel (x, y).
func (m *BestIndexMap) At(x, y int) IdValue {
	return m.Cells[y*m.Width+x]
}

// Selector reduces an aggregated volume to its best hypothesis per pixel.
type Selector struct {
	params Params
}

// NewSelector creates a selector after validating params.
func NewSelector(params Params) (*Selector, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Selector{params: params}, nil
}

// Select picks the arg-min hypothesis of every pixel. Ties go to the lowest index,
// the one closest to the camera. Unsupported pixels get NoHypothesis.
func (s *Selector) Select(ctx context.Context, vol *AggregatedVolume) (*BestIndexMap, error) {
	best := newBestIndexMap(vol.Width, vol.Height)
	norm := vol.Norm
	if norm <= 0 {
		norm = math.MaxUint16
	}

	err := forEachStripe(ctx, vol.Height, func(ctx context.Context, y0, y1 int) error {
		for y := y0; y < y1; y++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			for x := 0; x < vol.Width; x++ {
				i := y*vol.Width + x
				if !vol.Supported(x, y) {
					best.Cells[i] = IdValue{ID: NoHypothesis, Value: 1}
					continue
				}
				cell := vol.Cell(x, y)
				id := 0
				for d := 1; d < len(cell); d++ {
					if cell[d] < cell[id] {
						id = d
					}
				}
				best.Cells[i] = IdValue{
					ID:    int32(id),
					Value: float32(math.Min(1, float64(cell[id])/norm)),
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return best, nil
}

// ModalFilter drops picks that disagree with their 8-neighbourhood: a pick
// survives when at least MinModalSupport valid neighbours lie within
// ModalsMapDistLimit hypotheses of it. The input is left untouched.
func (s *Selector) ModalFilter(best *BestIndexMap) *BestIndexMap {
	out := newBestIndexMap(best.Width, best.Height)
	limit := int32(s.params.ModalsMapDistLimit)

	for y := 0; y < best.Height; y++ {
		for x := 0; x < best.Width; x++ {
			c := best.At(x, y)
			out.Cells[y*best.Width+x] = c
			if c.ID == NoHypothesis {
				continue
			}
			support := 0
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := x+dx, y+dy
					if (dx == 0 && dy == 0) || nx < 0 || ny < 0 || nx >= best.Width || ny >= best.Height {
						continue
					}
					n := best.At(nx, ny)
					if n.ID != NoHypothesis && abs32(n.ID-c.ID) <= limit {
						support++
					}
				}
			}
			if support < s.params.MinModalSupport {
				out.Cells[y*best.Width+x] = IdValue{ID: NoHypothesis, Value: 1}
			}
		}
	}
	return out
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
