package synth

import (
	"fmt"
	"os"
	"path/filepath"

	"mvs-depth/internal/camera"
	"mvs-depth/internal/project"
	"mvs-depth/pkg/geometry"

	"github.com/golang/geo/r3"
)

// Seeds returns an n x n grid of plane points covering the interior of cam's
// image.
func (s Scene) Seeds(cam *camera.Camera, n int) []r3.Vector {
	if n <= 0 {
		return nil
	}
	plane := geometry.FrontoParallelPlane(r3.Vector{}, r3.Vector{Z: 1}, s.Depth)
	var out []r3.Vector
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			pix := geometry.Point2D{
				X: float64(cam.Width) * (float64(i) + 0.5) / float64(n),
				Y: float64(cam.Height) * (float64(j) + 0.5) / float64(n),
			}
			if p, ok := geometry.LinePlaneIntersect(cam.Center(), cam.Ray(pix), plane); ok {
				out = append(out, p)
			}
		}
	}
	return out
}

// WriteProject renders every camera into dir/images and writes dir/<name>.yaml
// with the views and an n x n seed grid seen from the first camera. It returns the
// project path.
func (s Scene) WriteProject(dir, name string, cams []*camera.Camera, seeds int) (string, error) {
	if len(cams) == 0 {
		return "", fmt.Errorf("no cameras")
	}
	imgDir := filepath.Join(dir, "images")
	if err := os.MkdirAll(imgDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create image folder: %w", err)
	}
	path := filepath.Join(dir, name+".yaml")

	proj := project.New(name)
	proj.Description = fmt.Sprintf("textured plane at depth %g seen by %d views", s.Depth, len(cams))
	for _, c := range cams {
		imgPath := filepath.Join(imgDir, fmt.Sprintf("view_%03d.png", c.ID))
		if err := s.Render(c).SavePNG(imgPath); err != nil {
			return "", err
		}
		proj.AddView(path, project.ViewFromCamera(c, imgPath))
	}

	for _, p := range s.Seeds(cams[0], seeds) {
		seed := project.Seed{Position: [3]float64{p.X, p.Y, p.Z}}
		for _, c := range cams {
			if pix, ok := c.Project(p); ok && c.Inside(pix) {
				seed.Views = append(seed.Views, c.ID)
			}
		}
		proj.Seeds = append(proj.Seeds, seed)
	}

	if err := proj.Save(path); err != nil {
		return "", fmt.Errorf("failed to save project: %w", err)
	}
	return path, nil
}
