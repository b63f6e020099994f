// Package synth renders synthetic views of a textured fronto-parallel plane.
package synth

import (
	"fmt"
	"math"

	"mvs-depth/internal/camera"
	"mvs-depth/internal/image"
	"mvs-depth/pkg/geometry"

	"github.com/golang/geo/r3"
)

// Scene is a textured plane z = Depth in world coordinates.
type Scene struct {
	Depth   float64
	Texture func(x, y float64) float64
}

// NewScene returns a plane at depth with the default texture.
func NewScene(depth float64) Scene {
	return Scene{Depth: depth, Texture: Texture}
}

// Texture is a band-limited pattern with a period of a few pixels at depth 2 and
// focal length 400.
func Texture(x, y float64) float64 {
	return 0.5 + 0.2*math.Sin(150*x) + 0.2*math.Cos(110*y) + 0.1*math.Sin(90*(x+y))
}

// Rig returns n cameras spread along +X by baseline, all looking at the plane
// point in front of the first one. View ids are 0..n-1.
func (s Scene) Rig(n int, baseline, focal float64, width, height int) ([]*camera.Camera, error) {
	k := camera.Intrinsics(focal, float64(width)/2, float64(height)/2)
	target := r3.Vector{Z: s.Depth}
	cams := make([]*camera.Camera, 0, n)
	for i := 0; i < n; i++ {
		center := r3.Vector{X: float64(i) * baseline}
		r, err := camera.LookAt(center, target, r3.Vector{Y: -1})
		if err != nil {
			return nil, fmt.Errorf("camera %d: %w", i, err)
		}
		cam, err := camera.New(i, width, height, k, r, center)
		if err != nil {
			return nil, fmt.Errorf("camera %d: %w", i, err)
		}
		cams = append(cams, cam)
	}
	return cams, nil
}

// Render images the plane from cam. Pixels whose ray misses the plane are black.
func (s Scene) Render(cam *camera.Camera) *image.Gray {
	w, h := cam.Width, cam.Height
	g := image.NewGray(w, h)
	plane := geometry.FrontoParallelPlane(r3.Vector{}, r3.Vector{Z: 1}, s.Depth)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			p, ok := geometry.LinePlaneIntersect(cam.Center(), cam.Ray(geometry.Point2D{X: float64(x), Y: float64(y)}), plane)
			if !ok {
				continue
			}
			g.Set(x, y, float32(min(1, max(0, s.Texture(p.X, p.Y)))))
		}
	}
	return g
}
