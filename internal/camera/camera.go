// Package camera provides calibrated pinhole camera geometry for the views of a scene.
package camera

import (
	"fmt"
	"math"

	"mvs-depth/pkg/geometry"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// Camera is a calibrated pinhole view.
// R rotates world coordinates into the camera frame; C is the optical center.
// The camera looks down +Z with image Y pointing down.
type Camera struct {
	ID     int
	Width  int
	Height int

	k *mat.Dense
	r *mat.Dense
	c r3.Vector
	p *mat.Dense

	// Row caches of K*R and (K*R)^-1 for per-pixel work.
	kr   [3]r3.Vector
	iCam [3]r3.Vector
	axis r3.Vector
	fx   float64
}

// New builds a camera from intrinsics k (3x3), rotation r (3x3) and center c.
func New(id, width, height int, k, r *mat.Dense, c r3.Vector) (*Camera, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("camera %d: invalid image size %dx%d", id, width, height)
	}
	if kr, kc := k.Dims(); kr != 3 || kc != 3 {
		return nil, fmt.Errorf("camera %d: K must be 3x3, got %dx%d", id, kr, kc)
	}
	if rr, rc := r.Dims(); rr != 3 || rc != 3 {
		return nil, fmt.Errorf("camera %d: R must be 3x3, got %dx%d", id, rr, rc)
	}
	if det := mat.Det(r); math.Abs(det-1) > 1e-6 {
		return nil, fmt.Errorf("camera %d: R is not a rotation (det=%.6f)", id, det)
	}

	var kr mat.Dense
	kr.Mul(k, r)

	var iCam mat.Dense
	if err := iCam.Inverse(&kr); err != nil {
		return nil, fmt.Errorf("camera %d: K*R is singular: %w", id, err)
	}

	// P = K [R | -R C]
	rt := mat.NewDense(3, 4, nil)
	rt.Slice(0, 3, 0, 3).(*mat.Dense).Copy(r)
	cv := mat.NewVecDense(3, []float64{c.X, c.Y, c.Z})
	var t mat.VecDense
	t.MulVec(r, cv)
	for i := 0; i < 3; i++ {
		rt.Set(i, 3, -t.AtVec(i))
	}
	p := mat.NewDense(3, 4, nil)
	p.Mul(k, rt)

	cam := &Camera{
		ID:     id,
		Width:  width,
		Height: height,
		k:      mat.DenseCopyOf(k),
		r:      mat.DenseCopyOf(r),
		c:      c,
		p:      p,
		kr:     rows(&kr),
		iCam:   rows(&iCam),
		fx:     k.At(0, 0),
	}
	// Third row of R is the viewing axis expressed in world coordinates.
	cam.axis = r3.Vector{X: r.At(2, 0), Y: r.At(2, 1), Z: r.At(2, 2)}.Normalize()
	return cam, nil
}

func rows(m *mat.Dense) [3]r3.Vector {
	var out [3]r3.Vector
	for i := 0; i < 3; i++ {
		out[i] = r3.Vector{X: m.At(i, 0), Y: m.At(i, 1), Z: m.At(i, 2)}
	}
	return out
}

func mulRows(m [3]r3.Vector, v r3.Vector) r3.Vector {
	return r3.Vector{X: m[0].Dot(v), Y: m[1].Dot(v), Z: m[2].Dot(v)}
}

// Center returns the optical center in world coordinates.
func (c *Camera) Center() r3.Vector {
	return c.c
}

// Axis returns the unit viewing axis in world coordinates.
func (c *Camera) Axis() r3.Vector {
	return c.axis
}

// K returns a copy of the intrinsic matrix.
func (c *Camera) K() *mat.Dense {
	return mat.DenseCopyOf(c.k)
}

// R returns a copy of the world-to-camera rotation.
func (c *Camera) R() *mat.Dense {
	return mat.DenseCopyOf(c.r)
}

// ProjectionMatrix returns a copy of the 3x4 matrix K[R|-RC].
func (c *Camera) ProjectionMatrix() *mat.Dense {
	return mat.DenseCopyOf(c.p)
}

// Ray returns the unit direction from the center through image position pix.
func (c *Camera) Ray(pix geometry.Point2D) r3.Vector {
	return mulRows(c.iCam, r3.Vector{X: pix.X, Y: pix.Y, Z: 1}).Normalize()
}

// Project maps a world point to image coordinates. It reports false for points
// on or behind the image plane.
func (c *Camera) Project(x r3.Vector) (geometry.Point2D, bool) {
	h := mulRows(c.kr, x.Sub(c.c))
	if h.Z <= 1e-12 {
		return geometry.Point2D{}, false
	}
	return geometry.Point2D{X: h.X / h.Z, Y: h.Y / h.Z}, true
}

// Inside reports whether pix lies within the image.
func (c *Camera) Inside(pix geometry.Point2D) bool {
	return pix.X >= 0 && pix.Y >= 0 &&
		pix.X <= float64(c.Width-1) && pix.Y <= float64(c.Height-1)
}

// Depth returns the distance of x along the viewing axis.
func (c *Camera) Depth(x r3.Vector) float64 {
	return x.Sub(c.c).Dot(c.axis)
}

// PixelSize returns the world size covered by one pixel at the depth of x.
func (c *Camera) PixelSize(x r3.Vector) float64 {
	return math.Abs(c.Depth(x)) / c.fx
}

// Intrinsics returns a pinhole intrinsic matrix with square pixels.
func Intrinsics(f, cx, cy float64) *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		f, 0, cx,
		0, f, cy,
		0, 0, 1,
	})
}

// LookAt returns the world-to-camera rotation for a camera at center looking at
// target. up is the world direction that should appear upward in the image.
func LookAt(center, target, up r3.Vector) (*mat.Dense, error) {
	z := target.Sub(center)
	if z.Norm() < 1e-12 {
		return nil, fmt.Errorf("look-at target coincides with center")
	}
	z = z.Normalize()
	down := up.Mul(-1)
	y := down.Sub(z.Mul(down.Dot(z)))
	if y.Norm() < 1e-12 {
		return nil, fmt.Errorf("up vector is parallel to the viewing direction")
	}
	y = y.Normalize()
	x := y.Cross(z)
	return mat.NewDense(3, 3, []float64{
		x.X, x.Y, x.Z,
		y.X, y.Y, y.Z,
		z.X, z.Y, z.Z,
	}), nil
}
