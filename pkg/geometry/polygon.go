package geometry

import "math"

// Rect returns the corners of the image area [0,w-1] x [0,h-1].
func Rect(width, height int) []Point2D {
	w, h := float64(width-1), float64(height-1)
	return []Point2D{{X: 0, Y: 0}, {X: w, Y: 0}, {X: w, Y: h}, {X: 0, Y: h}}
}

// ClipConvex intersects a polygon with a convex clip polygon (Sutherland-Hodgman).
// The clip winding may be either way. Returns nil when nothing remains.
func ClipConvex(subject, clip []Point2D) []Point2D {
	if len(subject) < 3 || len(clip) < 3 {
		return nil
	}
	sign := 1.0
	if SignedArea(clip) < 0 {
		sign = -1
	}

	out := append([]Point2D(nil), subject...)
	for i := range clip {
		a, b := clip[i], clip[(i+1)%len(clip)]
		in := out
		out = nil
		for j := range in {
			cur, next := in[j], in[(j+1)%len(in)]
			curIn := sign*cross(a, b, cur) >= 0
			nextIn := sign*cross(a, b, next) >= 0
			if curIn {
				out = append(out, cur)
			}
			if curIn != nextIn {
				if p, ok := segmentLineIntersection(cur, next, a, b); ok {
					out = append(out, p)
				}
			}
		}
		if len(out) == 0 {
			return nil
		}
	}
	if len(out) < 3 {
		return nil
	}
	return out
}

// SignedArea returns the shoelace area; its sign gives the winding.
func SignedArea(poly []Point2D) float64 {
	var a float64
	for i := range poly {
		p, q := poly[i], poly[(i+1)%len(poly)]
		a += p.X*q.Y - q.X*p.Y
	}
	return a / 2
}

// Area returns the absolute area of a simple polygon.
func Area(poly []Point2D) float64 {
	return math.Abs(SignedArea(poly))
}

func cross(o, a, b Point2D) float64 {
	return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
}

// segmentLineIntersection returns where segment p1-p2 crosses the line e1-e2.
func segmentLineIntersection(p1, p2, e1, e2 Point2D) (Point2D, bool) {
	denom := (p1.X-p2.X)*(e1.Y-e2.Y) - (p1.Y-p2.Y)*(e1.X-e2.X)
	if math.Abs(denom) < 1e-12 {
		return Point2D{}, false
	}
	t := ((p1.X-e1.X)*(e1.Y-e2.Y) - (p1.Y-e1.Y)*(e1.X-e2.X)) / denom
	return Point2D{X: p1.X + t*(p2.X-p1.X), Y: p1.Y + t*(p2.Y-p1.Y)}, true
}
