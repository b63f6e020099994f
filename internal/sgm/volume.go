package sgm

import (
	"context"
	"fmt"
	"math"
	"time"
	"unsafe"

	"mvs-depth/pkg/geometry"

	"github.com/rs/zerolog"
)

const (
	// MaxMatchCost is the largest quantized cost of a supported match.
	MaxMatchCost = 254
	// InvalidCost marks a (pixel, hypothesis) without enough target support.
	InvalidCost = 255
)

// Cost is the element type of a cost volume.
type Cost interface {
	~uint8 | ~uint16
}

// Volume is a dense width x height x depth cost array. The hypothesis vector of a
// pixel is contiguous.
type Volume[T Cost] struct {
	Width, Height, Depth int
	// Norm is the cost that maps to similarity 1.
	Norm float64

	data      []T
	supported []bool
}

// SimilarityVolume holds quantized matching costs.
type SimilarityVolume = Volume[uint8]

// AggregatedVolume holds costs summed over aggregation paths.
type AggregatedVolume = Volume[uint16]

// NewVolume allocates a volume with every pixel marked supported.
func NewVolume[T Cost](width, height, depth int) *Volume[T] {
	supported := make([]bool, width*height)
	for i := range supported {
		supported[i] = true
	}
	return &Volume[T]{
		Width:     width,
		Height:    height,
		Depth:     depth,
		data:      make([]T, width*height*depth),
		supported: supported,
	}
}

// Cell returns the hypothesis vector of pixel (x, y). Writes go to the volume.
func (v *Volume[T]) Cell(x, y int) []T {
	i := (y*v.Width + x) * v.Depth
	return v.data[i : i+v.Depth : i+v.Depth]
}

// At returns the cost of hypothesis d at pixel (x, y).
func (v *Volume[T]) At(x, y, d int) T {
	return v.data[(y*v.Width+x)*v.Depth+d]
}

// Set stores the cost of hypothesis d at pixel (x, y).
func (v *Volume[T]) Set(x, y, d int, c T) {
	v.data[(y*v.Width+x)*v.Depth+d] = c
}

// Supported reports whether any hypothesis of pixel (x, y) had enough target views.
func (v *Volume[T]) Supported(x, y int) bool {
	return v.supported[y*v.Width+x]
}

// SetSupported marks pixel (x, y).
func (v *Volume[T]) SetSupported(x, y int, ok bool) {
	v.supported[y*v.Width+x] = ok
}

// SameShape reports whether two volumes have identical dimensions.
func SameShape[A, B Cost](a *Volume[A], b *Volume[B]) bool {
	return a.Width == b.Width && a.Height == b.Height && a.Depth == b.Depth
}

// checkVolumeSize rejects volumes exceeding the configured caps before allocation.
// Both the similarity and the aggregated volume are alive during aggregation.
func checkVolumeSize(p Params, width, height, depths int) error {
	bytesPerVoxel := int64(unsafe.Sizeof(uint8(0)) + unsafe.Sizeof(uint16(0)))
	need := int64(width) * int64(height) * int64(depths) * bytesPerVoxel
	if depths > p.MaxDepthsToStore || need > p.MaxVolumeBytes {
		return &VolumeTooLargeError{
			Width:      width,
			Height:     height,
			Depths:     depths,
			Bytes:      need,
			LimitBytes: p.MaxVolumeBytes,
			MaxDepths:  p.MaxDepthsToStore,
		}
	}
	return nil
}

// VolumeBuilder fills similarity volumes from a photometric matcher.
type VolumeBuilder struct {
	matcher Matcher
	params  Params
	log     zerolog.Logger
}

// NewVolumeBuilder creates a builder after validating params.
func NewVolumeBuilder(matcher Matcher, params Params, log zerolog.Logger) (*VolumeBuilder, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &VolumeBuilder{matcher: matcher, params: params, log: log}, nil
}

// Build computes the similarity volume of rc against tcs for width x height volume
// pixels. Volume pixel (x, y) samples reference pixel (x, y) * Scale * Step.
func (b *VolumeBuilder) Build(ctx context.Context, rc int, tcs []int, hyps Hypotheses, width, height int) (*SimilarityVolume, error) {
	return b.BuildMasked(ctx, rc, tcs, hyps, width, height, nil)
}

// BuildMasked is Build with the pixels of mask left unsupported without calling the
// matcher. A nil mask keeps every pixel.
func (b *VolumeBuilder) BuildMasked(ctx context.Context, rc int, tcs []int, hyps Hypotheses, width, height int, mask Mask) (*SimilarityVolume, error) {
	if hyps.Len() == 0 {
		return nil, fmt.Errorf("%w: empty hypothesis set", ErrInvalidConfig)
	}
	if len(tcs) == 0 {
		return nil, fmt.Errorf("%w: no target views", ErrInvalidConfig)
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: volume size %dx%d", ErrInvalidConfig, width, height)
	}
	if err := checkVolumeSize(b.params, width, height, hyps.Len()); err != nil {
		return nil, err
	}

	start := time.Now()
	vol := NewVolume[uint8](width, height, hyps.Len())
	vol.Norm = MaxMatchCost
	stride := float64(b.params.pixelStride())

	err := forEachStripe(ctx, height, func(ctx context.Context, y0, y1 int) error {
		costs := make([]float64, len(tcs))
		for y := y0; y < y1; y++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			for x := 0; x < width; x++ {
				pix := geometry.Point2D{X: float64(x) * stride, Y: float64(y) * stride}
				cell := vol.Cell(x, y)
				if mask != nil && mask.Masked(int(pix.X), int(pix.Y)) {
					for d := range cell {
						cell[d] = InvalidCost
					}
					vol.SetSupported(x, y, false)
					continue
				}
				supported := false
				for d := range cell {
					c, ok := b.fusedCost(rc, pix, tcs, hyps.At(d), costs)
					if !ok {
						cell[d] = InvalidCost
						continue
					}
					cell[d] = quantize(c)
					supported = true
				}
				vol.SetSupported(x, y, supported)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if e := b.log.Debug(); e.Enabled() {
		unsupported := 0
		for _, s := range vol.supported {
			if !s {
				unsupported++
			}
		}
		e.Int("rc", rc).
			Ints("tcs", tcs).
			Str("dims", fmt.Sprintf("%dx%dx%d", width, height, hyps.Len())).
			Int("unsupported_pixels", unsupported).
			Dur("elapsed", time.Since(start)).
			Msg("similarity volume built")
	}
	return vol, nil
}

// fusedCost combines the matcher costs of every tc for one pixel and depth.
// scratch must hold len(tcs) values.
func (b *VolumeBuilder) fusedCost(rc int, pix geometry.Point2D, tcs []int, depth float64, scratch []float64) (float64, bool) {
	n := 0
	for _, tc := range tcs {
		c, ok := b.matcher.Score(rc, pix, tc, depth)
		if !ok || math.IsNaN(c) {
			continue
		}
		scratch[n] = math.Max(0, math.Min(1, c))
		n++
	}
	if n < min(b.params.MinNumOfConsistentCams, len(tcs)) || n == 0 {
		return 0, false
	}

	switch b.params.CostFusion {
	case FusionMin:
		best := scratch[0]
		for _, c := range scratch[1:n] {
			best = math.Min(best, c)
		}
		return best, true
	default:
		var sum float64
		for _, c := range scratch[:n] {
			sum += c
		}
		return sum / float64(n), true
	}
}

func quantize(c float64) uint8 {
	return uint8(math.Round(c * MaxMatchCost))
}
