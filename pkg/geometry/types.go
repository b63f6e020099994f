// Package geometry provides basic geometric types used throughout the application.
package geometry

import (
	"math"

	"github.com/golang/geo/r3"
)

// Point2D represents an image position with floating-point coordinates.
type Point2D struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Distance returns the Euclidean distance to another point.
func (p Point2D) Distance(other Point2D) float64 {
	dx := p.X - other.X
	dy := p.Y - other.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// Plane is an oriented plane through Point with unit Normal.
type Plane struct {
	Point  r3.Vector
	Normal r3.Vector
}

// FrontoParallelPlane returns the plane orthogonal to axis at the given distance
// from center along it.
func FrontoParallelPlane(center, axis r3.Vector, depth float64) Plane {
	n := axis.Normalize()
	return Plane{Point: center.Add(n.Mul(depth)), Normal: n}
}

// SignedDistance returns the distance of x to the plane, positive on the normal side.
func (pl Plane) SignedDistance(x r3.Vector) float64 {
	return x.Sub(pl.Point).Dot(pl.Normal)
}

// LinePlaneIntersect intersects the ray origin + t*dir (t > 0) with the plane.
// It reports false when the ray is parallel to the plane or points away from it.
func LinePlaneIntersect(origin, dir r3.Vector, pl Plane) (r3.Vector, bool) {
	denom := dir.Dot(pl.Normal)
	if math.Abs(denom) < 1e-12 {
		return r3.Vector{}, false
	}
	t := -pl.SignedDistance(origin) / denom
	if t <= 0 || math.IsNaN(t) || math.IsInf(t, 0) {
		return r3.Vector{}, false
	}
	return origin.Add(dir.Mul(t)), true
}

// ClosestApproach returns the parameter s along the first line o1 + s*u at which it
// comes closest to the line o2 + t*v. It reports false for parallel lines.
func ClosestApproach(o1, u, o2, v r3.Vector) (float64, bool) {
	w0 := o1.Sub(o2)
	a := u.Dot(u)
	b := u.Dot(v)
	c := v.Dot(v)
	d := u.Dot(w0)
	e := v.Dot(w0)
	den := a*c - b*b
	if math.Abs(den) < 1e-12 {
		return 0, false
	}
	return (b*e - c*d) / den, true
}
