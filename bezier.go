// Copyright © 2013-2015 Galvanized Logic Inc.
// Use is governed by a BSD-style license found in the LICENSE file.

package mmd

import "math"

// bezier.go is the Bezier Sampler (C2): Newton-bisection solve of MMD's
// cubic bezier easing curves. Grounded on
// original_source/.../bezier_interpolation.rs: a bisection of at most 15
// iterations on the curve parameter t, stopping early once x(t) is within
// bezierEpsilon of the target, not a general bezier root finder,
// since MMD control points are always in [0,1] and the curve is monotonic
// by construction.

const (
	bezierIterations = 15
	bezierEpsilon    = 1e-5
)

// cubicBezier evaluates the single-axis cubic bezier with control points
// 0, p1, p2, 1 at parameter t.
func cubicBezier(p1, p2, t float64) float64 {
	u := 1 - t
	// B(t) = 3u²t*p1 + 3u t² p2 + t³  (endpoints are 0 and 1)
	return 3*u*u*t*p1 + 3*u*t*t*p2 + t*t*t
}

// evalBezier returns the interpolation factor y for abscissa x given
// control points (x1,y1),(x2,y2), solving x(t) = x by binary subdivision
// and returning y(t). x is expected in [0,1]; the curve is the identity
// when the controls describe a linear easing (0.5,0.5,0.5,0.5).
func evalBezier(c BezierControl, x float64) float64 {
	t := 0.5
	step := 0.25
	for i := 0; i < bezierIterations; i++ {
		cx := cubicBezier(c.X1, c.X2, t)
		diff := cx - x
		if math.Abs(diff) < bezierEpsilon {
			break
		}
		if diff < 0 {
			t += step
		} else {
			t -= step
		}
		step *= 0.5
	}
	return cubicBezier(c.Y1, c.Y2, t)
}
