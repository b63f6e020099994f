// Package image loads view images into single-channel float planes for matching.
package image

import (
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"math"
	"os"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
)

// Gray is a row-major luminance plane with values in [0, 1].
type Gray struct {
	Width, Height int
	Pix           []float32
}

// NewGray allocates a black plane.
func NewGray(width, height int) *Gray {
	return &Gray{Width: width, Height: height, Pix: make([]float32, width*height)}
}

// Load decodes a PNG, JPEG or TIFF file into a luminance plane.
func Load(path string) (*Gray, error) {
	img, err := decodeFile(path)
	if err != nil {
		return nil, err
	}
	return FromImage(img), nil
}

func decodeFile(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", path, err)
	}
	return img, nil
}

// FromImage converts any image to luminance.
func FromImage(img image.Image) *Gray {
	b := img.Bounds()
	g := NewGray(b.Dx(), b.Dy())
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			c := color.Gray16Model.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray16)
			g.Pix[y*g.Width+x] = float32(c.Y) / math.MaxUint16
		}
	}
	return g
}

// Image returns the plane as a 16-bit grayscale image.
func (g *Gray) Image() *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, g.Width, g.Height))
	for i, v := range g.Pix {
		v = min(1, max(0, v))
		img.SetGray16(i%g.Width, i/g.Width, color.Gray16{Y: uint16(math.Round(float64(v) * math.MaxUint16))})
	}
	return img
}

// SavePNG writes the plane as a 16-bit PNG.
func (g *Gray) SavePNG(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create image: %w", err)
	}
	if err := png.Encode(file, g.Image()); err != nil {
		file.Close()
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return file.Close()
}

// At returns the value of pixel (x, y). Out of range pixels are black.
func (g *Gray) At(x, y int) float32 {
	if x < 0 || y < 0 || x >= g.Width || y >= g.Height {
		return 0
	}
	return g.Pix[y*g.Width+x]
}

// Set stores the value of pixel (x, y).
func (g *Gray) Set(x, y int, v float32) {
	g.Pix[y*g.Width+x] = v
}

// Bilinear samples the plane at a sub-pixel position. ok is false when the
// position is outside the image.
func (g *Gray) Bilinear(x, y float64) (float64, bool) {
	if x < 0 || y < 0 || x > float64(g.Width-1) || y > float64(g.Height-1) {
		return 0, false
	}
	x0, y0 := int(x), int(y)
	x1, y1 := min(x0+1, g.Width-1), min(y0+1, g.Height-1)
	fx, fy := x-float64(x0), y-float64(y0)

	top := float64(g.Pix[y0*g.Width+x0])*(1-fx) + float64(g.Pix[y0*g.Width+x1])*fx
	bottom := float64(g.Pix[y1*g.Width+x0])*(1-fx) + float64(g.Pix[y1*g.Width+x1])*fx
	return top*(1-fy) + bottom*fy, true
}

// Downsample returns the plane reduced by an integer factor. A factor of 1
// returns g itself.
func (g *Gray) Downsample(factor int) *Gray {
	if factor <= 1 {
		return g
	}
	dst := image.NewGray16(image.Rect(0, 0, max(1, g.Width/factor), max(1, g.Height/factor)))
	draw.BiLinear.Scale(dst, dst.Bounds(), g.Image(), image.Rect(0, 0, g.Width, g.Height), draw.Src, nil)
	return FromImage(dst)
}
