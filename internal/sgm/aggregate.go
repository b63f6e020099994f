package sgm

import (
	"context"
	"fmt"
	"math"
)

// direction is a unit step of an aggregation path across the pixel grid.
type direction struct{ dx, dy int }

// The first four are the axis-aligned directions.
var directions = [8]direction{
	{1, 0}, {-1, 0}, {0, 1}, {0, -1},
	{1, 1}, {-1, -1}, {1, -1}, {-1, 1},
}

// Aggregator performs semi-global path aggregation over a similarity volume.
type Aggregator struct {
	p1, p2, p3 int
	ndirs      int
}

// NewAggregator creates an aggregator. Penalty orderings other than P1 <= P2 are
// rejected here, before any volume is built.
func NewAggregator(params Params) (*Aggregator, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Aggregator{
		p1:    params.P1,
		p2:    params.P2,
		p3:    params.P3,
		ndirs: params.NumDirections,
	}, nil
}

// Aggregate returns the sum over all path directions of the recurrence
//
//	L(p,d) = C(p,d) + min(L(p-r,d), L(p-r,d±1)+P1, min_k L(p-r,k)+P2) - min_k L(p-r,k)
//
// where the first pixel of every path uses C alone. Directions are processed one
// after another; the disjoint paths of one direction run in parallel.
func (a *Aggregator) Aggregate(ctx context.Context, sim *SimilarityVolume) (*AggregatedVolume, error) {
	if sim.Depth == 0 {
		return nil, fmt.Errorf("%w: volume without hypotheses", ErrInvalidConfig)
	}
	out := NewVolume[uint16](sim.Width, sim.Height, sim.Depth)
	copy(out.supported, sim.supported)
	out.Norm = float64(a.ndirs) * MaxMatchCost

	for _, dir := range directions[:a.ndirs] {
		starts := pathStarts(sim.Width, sim.Height, dir)
		err := forEachStripe(ctx, len(starts), func(ctx context.Context, i0, i1 int) error {
			prev := make([]int, sim.Depth)
			cur := make([]int, sim.Depth)
			for i := i0; i < i1; i++ {
				if i%64 == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				a.aggregatePath(sim, out, starts[i], dir, prev, cur)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Passthrough widens the raw costs without aggregation.
func Passthrough(sim *SimilarityVolume) *AggregatedVolume {
	out := NewVolume[uint16](sim.Width, sim.Height, sim.Depth)
	copy(out.supported, sim.supported)
	out.Norm = sim.Norm
	for i, c := range sim.data {
		out.data[i] = uint16(c)
	}
	return out
}

// pathStarts lists the pixels whose predecessor along dir lies outside the grid.
func pathStarts(width, height int, dir direction) [][2]int {
	var starts [][2]int
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			px, py := x-dir.dx, y-dir.dy
			if px < 0 || py < 0 || px >= width || py >= height {
				starts = append(starts, [2]int{x, y})
			}
		}
	}
	return starts
}

// aggregatePath runs the recurrence along one path and adds it into out.
// prev and cur are scratch buffers of length Depth.
func (a *Aggregator) aggregatePath(sim *SimilarityVolume, out *AggregatedVolume, start [2]int, dir direction, prev, cur []int) {
	depth := sim.Depth
	x, y := start[0], start[1]

	c := sim.Cell(x, y)
	o := out.Cell(x, y)
	prevMin := math.MaxInt
	for d := 0; d < depth; d++ {
		prev[d] = int(c[d])
		o[d] += uint16(prev[d])
		prevMin = min(prevMin, prev[d])
	}

	twoStep := a.p2
	if a.p3 > 0 {
		twoStep = min(a.p1+a.p3, a.p2)
	}

	for x, y = x+dir.dx, y+dir.dy; x >= 0 && y >= 0 && x < sim.Width && y < sim.Height; x, y = x+dir.dx, y+dir.dy {
		c = sim.Cell(x, y)
		o = out.Cell(x, y)
		jump := prevMin + a.p2
		curMin := math.MaxInt
		for d := 0; d < depth; d++ {
			best := min(prev[d], jump)
			if d > 0 {
				best = min(best, prev[d-1]+a.p1)
			}
			if d+1 < depth {
				best = min(best, prev[d+1]+a.p1)
			}
			if twoStep < a.p2 {
				if d > 1 {
					best = min(best, prev[d-2]+twoStep)
				}
				if d+2 < depth {
					best = min(best, prev[d+2]+twoStep)
				}
			}
			v := int(c[d]) + best - prevMin
			cur[d] = v
			o[d] += uint16(v)
			curMin = min(curMin, v)
		}
		prev, cur = cur, prev
		prevMin = curMin
	}
}
