package camera

import (
	"fmt"
	"math"
	"sort"

	"mvs-depth/pkg/geometry"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// Rig is a read-only set of calibrated views addressed by view id.
// Safe for concurrent use once built.
type Rig struct {
	cams map[int]*Camera
	ids  []int
}

// NewRig builds a rig from cameras with unique ids.
func NewRig(cams ...*Camera) (*Rig, error) {
	rig := &Rig{cams: make(map[int]*Camera, len(cams))}
	for _, c := range cams {
		if _, dup := rig.cams[c.ID]; dup {
			return nil, fmt.Errorf("duplicate camera id %d", c.ID)
		}
		rig.cams[c.ID] = c
		rig.ids = append(rig.ids, c.ID)
	}
	sort.Ints(rig.ids)
	return rig, nil
}

// IDs returns the view ids in ascending order.
func (r *Rig) IDs() []int {
	return append([]int(nil), r.ids...)
}

// Camera returns the camera for a view.
func (r *Rig) Camera(view int) (*Camera, bool) {
	c, ok := r.cams[view]
	return c, ok
}

func (r *Rig) mustCamera(view int) *Camera {
	c, ok := r.cams[view]
	if !ok {
		panic(fmt.Sprintf("camera: unknown view %d", view))
	}
	return c
}

// HasView reports whether the rig holds the view.
func (r *Rig) HasView(view int) bool {
	_, ok := r.cams[view]
	return ok
}

// OpticalCenter returns the center of the view.
func (r *Rig) OpticalCenter(view int) r3.Vector {
	return r.mustCamera(view).Center()
}

// ViewAxis returns the unit viewing axis of the view.
func (r *Rig) ViewAxis(view int) r3.Vector {
	return r.mustCamera(view).Axis()
}

// RayThroughPixel returns the unit ray direction through pix.
func (r *Rig) RayThroughPixel(view int, pix geometry.Point2D) r3.Vector {
	return r.mustCamera(view).Ray(pix)
}

// Project maps x into the view; false when x is behind it.
func (r *Rig) Project(view int, x r3.Vector) (geometry.Point2D, bool) {
	return r.mustCamera(view).Project(x)
}

// ImageSize returns the image dimensions of the view.
func (r *Rig) ImageSize(view int) (int, int) {
	c := r.mustCamera(view)
	return c.Width, c.Height
}

// PixelSize returns the world footprint of one pixel of the view at x.
func (r *Rig) PixelSize(view int, x r3.Vector) float64 {
	return r.mustCamera(view).PixelSize(x)
}

// ProjectionMatrix returns a copy of the 3x4 projection matrix of the view.
func (r *Rig) ProjectionMatrix(view int) *mat.Dense {
	return r.mustCamera(view).ProjectionMatrix()
}

// Neighbors returns up to n views sharing the field of view of rc, closest first.
// Views whose axis deviates from rc's by more than maxAngleDeg or that share its
// center are skipped.
func (r *Rig) Neighbors(rc, n int, maxAngleDeg float64) []int {
	ref, ok := r.cams[rc]
	if !ok || n <= 0 {
		return nil
	}

	type candidate struct {
		id       int
		baseline float64
	}
	var cands []candidate
	for _, id := range r.ids {
		if id == rc {
			continue
		}
		c := r.cams[id]
		baseline := c.Center().Distance(ref.Center())
		if baseline < 1e-9 {
			continue
		}
		cos := math.Max(-1, math.Min(1, c.Axis().Dot(ref.Axis())))
		if math.Acos(cos)*180/math.Pi > maxAngleDeg {
			continue
		}
		cands = append(cands, candidate{id: id, baseline: baseline})
	}
	sort.SliceStable(cands, func(i, j int) bool {
		return cands[i].baseline < cands[j].baseline
	})

	if len(cands) > n {
		cands = cands[:n]
	}
	out := make([]int, len(cands))
	for i, c := range cands {
		out[i] = c.id
	}
	return out
}

// Overlap returns the fraction of the tc image covered by the rc image when both
// look at the fronto-parallel plane of rc at depth. It is 0 when any rc corner
// does not project into tc.
func (r *Rig) Overlap(rc, tc int, depth float64) float64 {
	ref, tgt := r.mustCamera(rc), r.mustCamera(tc)
	plane := geometry.FrontoParallelPlane(ref.Center(), ref.Axis(), depth)

	corners := geometry.Rect(ref.Width, ref.Height)
	footprint := make([]geometry.Point2D, 0, len(corners))
	for _, c := range corners {
		x, ok := geometry.LinePlaneIntersect(ref.Center(), ref.Ray(c), plane)
		if !ok {
			return 0
		}
		p, ok := tgt.Project(x)
		if !ok {
			return 0
		}
		footprint = append(footprint, p)
	}

	image := geometry.Rect(tgt.Width, tgt.Height)
	total := geometry.Area(image)
	if total == 0 {
		return 0
	}
	return geometry.Area(geometry.ClipConvex(footprint, image)) / total
}
