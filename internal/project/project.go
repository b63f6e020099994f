// Package project provides the scene file listing calibrated views, their images
// and sparse seed points.
package project

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"mvs-depth/internal/camera"
	"mvs-depth/internal/match"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"
)

// View is one calibrated image. K and R are row-major 3x3 matrices, R rotates
// world into camera coordinates, C is the optical center in world coordinates.
type View struct {
	ID        int        `json:"id" yaml:"id"`
	ImagePath string     `json:"image" yaml:"image"` // relative to the project file
	Width     int        `json:"width" yaml:"width"`
	Height    int        `json:"height" yaml:"height"`
	K         [9]float64 `json:"k" yaml:"k"`
	R         [9]float64 `json:"r" yaml:"r"`
	C         [3]float64 `json:"c" yaml:"c"`
}

// Seed is a sparse reconstructed point and the views that observed it.
type Seed struct {
	Position [3]float64 `json:"position" yaml:"position"`
	Views    []int      `json:"views" yaml:"views,flow"`
}

// File represents a depth estimation project (.yaml, .yml or .json).
type File struct {
	Version     int       `json:"version" yaml:"version"`
	Name        string    `json:"name" yaml:"name"`
	Created     time.Time `json:"created" yaml:"created"`
	Modified    time.Time `json:"modified" yaml:"modified"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`

	Views []View `json:"views" yaml:"views"`
	Seeds []Seed `json:"seeds,omitempty" yaml:"seeds,omitempty"`

	// Paths relative to the project file
	DepthMapFolderPath string `json:"depth_map_folder,omitempty" yaml:"depth_map_folder,omitempty"`
	ParamsPath         string `json:"params,omitempty" yaml:"params,omitempty"`

	Match match.Options `json:"match" yaml:"match"`
}

// New creates an empty project with default matching settings.
func New(name string) *File {
	now := time.Now()
	return &File{
		Version:  1,
		Name:     name,
		Created:  now,
		Modified: now,
		Match:    match.DefaultOptions(),
	}
}

func isJSON(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}

// Load loads a project; the format follows the file extension.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	proj := File{Match: match.DefaultOptions()}
	if isJSON(path) {
		err = json.Unmarshal(data, &proj)
	} else {
		err = yaml.Unmarshal(data, &proj)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse project %s: %w", path, err)
	}
	return &proj, nil
}

// Save saves the project to a file.
func (p *File) Save(path string) error {
	p.Modified = time.Now()

	var (
		data []byte
		err  error
	)
	if isJSON(path) {
		data, err = json.MarshalIndent(p, "", "  ")
	} else {
		data, err = yaml.Marshal(p)
	}
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// AddView appends a view, storing its image path relative to the project.
func (p *File) AddView(projectPath string, v View) {
	rel, err := filepath.Rel(filepath.Dir(projectPath), v.ImagePath)
	if err == nil {
		v.ImagePath = rel
	}
	p.Views = append(p.Views, v)
	p.Modified = time.Now()
}

// View returns the view with the given id.
func (p *File) View(id int) (View, bool) {
	for _, v := range p.Views {
		if v.ID == id {
			return v, true
		}
	}
	return View{}, false
}

func resolve(projectPath, rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(filepath.Dir(projectPath), rel)
}

// ImagePath returns the absolute path to the image of a view.
func (p *File) ImagePath(projectPath string, id int) (string, error) {
	v, ok := p.View(id)
	if !ok {
		return "", fmt.Errorf("project has no view %d", id)
	}
	return resolve(projectPath, v.ImagePath), nil
}

// DepthMapFolder returns the absolute output folder for depth maps.
func (p *File) DepthMapFolder(projectPath string) string {
	if p.DepthMapFolderPath == "" {
		// Default: <project name>_depth next to the project file
		base := projectPath[:len(projectPath)-len(filepath.Ext(projectPath))]
		return base + "_depth"
	}
	return resolve(projectPath, p.DepthMapFolderPath)
}

// ParamsFile returns the absolute path of the matching parameters, or "" when the
// project does not name one.
func (p *File) ParamsFile(projectPath string) string {
	if p.ParamsPath == "" {
		return ""
	}
	return resolve(projectPath, p.ParamsPath)
}

// Rig builds the cameras of all views.
func (p *File) Rig() (*camera.Rig, error) {
	cams := make([]*camera.Camera, 0, len(p.Views))
	for _, v := range p.Views {
		c, err := camera.New(v.ID, v.Width, v.Height,
			mat.NewDense(3, 3, v.K[:]), mat.NewDense(3, 3, v.R[:]),
			r3.Vector{X: v.C[0], Y: v.C[1], Z: v.C[2]})
		if err != nil {
			return nil, fmt.Errorf("view %d: %w", v.ID, err)
		}
		cams = append(cams, c)
	}
	return camera.NewRig(cams...)
}

// SeedsFor returns the positions of the seeds observed by a view.
func (p *File) SeedsFor(view int) []r3.Vector {
	var out []r3.Vector
	for _, s := range p.Seeds {
		for _, v := range s.Views {
			if v == view {
				out = append(out, r3.Vector{X: s.Position[0], Y: s.Position[1], Z: s.Position[2]})
				break
			}
		}
	}
	return out
}

// ViewFromCamera converts a camera into a project view.
func ViewFromCamera(c *camera.Camera, imagePath string) View {
	v := View{ID: c.ID, ImagePath: imagePath, Width: c.Width, Height: c.Height}
	copy(v.K[:], c.K().RawMatrix().Data)
	copy(v.R[:], c.R().RawMatrix().Data)
	center := c.Center()
	v.C = [3]float64{center.X, center.Y, center.Z}
	return v
}
