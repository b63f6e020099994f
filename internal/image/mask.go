package image

import (
	"image"
	"image/color"
)

// Mask marks the pixels of a view painted in the silhouette colour. Masked pixels
// are background and get no depth.
type Mask struct {
	Width, Height int
	bits          []bool
}

// LoadColorMask decodes an image file and masks every pixel whose 8-bit RGB value
// equals c.
func LoadColorMask(path string, c color.RGBA) (*Mask, error) {
	img, err := decodeFile(path)
	if err != nil {
		return nil, err
	}
	return ColorMask(img, c), nil
}

// ColorMask masks the pixels of img whose 8-bit RGB value equals c. Alpha is ignored.
func ColorMask(img image.Image, c color.RGBA) *Mask {
	b := img.Bounds()
	m := &Mask{Width: b.Dx(), Height: b.Dy(), bits: make([]bool, b.Dx()*b.Dy())}
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			p := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			m.bits[y*m.Width+x] = p.R == c.R && p.G == c.G && p.B == c.B
		}
	}
	return m
}

// Masked reports whether pixel (x, y) is background. Pixels outside the image are not.
func (m *Mask) Masked(x, y int) bool {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return false
	}
	return m.bits[y*m.Width+x]
}

// Count returns the number of masked pixels.
func (m *Mask) Count() int {
	n := 0
	for _, b := range m.bits {
		if b {
			n++
		}
	}
	return n
}
