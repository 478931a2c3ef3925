// Copyright © 2013-2015 Galvanized Logic Inc.
// Use is governed by a BSD-style license found in the LICENSE file.

package mmd

import (
	"math"
	"testing"
)

// The linear control tuple must reproduce y == x over the whole domain.
func TestBezierLinearIdentity(t *testing.T) {
	c := BezierControl{X1: 0.5, Y1: 0.5, X2: 0.5, Y2: 0.5}
	for i := 0; i <= 100; i++ {
		x := float64(i) / 100
		y := evalBezier(c, x)
		if math.Abs(y-x) > 1e-4 {
			t.Errorf("linear curve at %f : wanted %f got %f", x, x, y)
		}
	}
}

func TestBezierEndpoints(t *testing.T) {
	c := BezierControl{X1: 0.1, Y1: 0.9, X2: 0.2, Y2: 0.8}
	if y := evalBezier(c, 0); math.Abs(y) > 1e-4 {
		t.Errorf("curve start : wanted 0 got %f", y)
	}
	if y := evalBezier(c, 1); math.Abs(y-1) > 1e-4 {
		t.Errorf("curve end : wanted 1 got %f", y)
	}
}

// An ease-in curve stays below the diagonal, an ease-out above it.
func TestBezierEasing(t *testing.T) {
	easeIn := BezierControl{X1: 0.8, Y1: 0.1, X2: 0.9, Y2: 0.2}
	easeOut := BezierControl{X1: 0.1, Y1: 0.8, X2: 0.2, Y2: 0.9}
	for i := 1; i < 100; i++ {
		x := float64(i) / 100
		if y := evalBezier(easeIn, x); y > x+1e-4 {
			t.Errorf("ease-in at %f : got %f above diagonal", x, y)
		}
		if y := evalBezier(easeOut, x); y < x-1e-4 {
			t.Errorf("ease-out at %f : got %f below diagonal", x, y)
		}
	}
}

// The solved ordinate must not step backwards as x advances.
func TestBezierMonotonic(t *testing.T) {
	c := BezierControl{X1: 0.9, Y1: 0.05, X2: 0.05, Y2: 0.9}
	prev := -1.0
	for i := 0; i <= 200; i++ {
		x := float64(i) / 200
		y := evalBezier(c, x)
		if y < prev-1e-4 {
			t.Errorf("curve not monotonic at %f : %f < %f", x, y, prev)
		}
		prev = y
	}
}
