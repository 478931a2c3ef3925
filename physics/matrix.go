// Copyright © 2013-2015 Galvanized Logic Inc.
// Use is governed by a BSD-style license found in the LICENSE file.

package physics

import (
	"log/slog"

	"github.com/gazed/mmdrt/math/lin"
)

// matrix.go holds small conversions between the engine-facing Transform
// (rotation + position, no scale) and the bone evaluator's lin.M4, the
// same column-vector, translation-in-Xw/Yw/Zw convention bone.go's
// localMatrix uses.

func transformToM4(t Transform) lin.M4 {
	var m lin.M4
	rot := t.Rotation
	m.SetQ(&rot)
	m.Xw, m.Yw, m.Zw = t.Position.X, t.Position.Y, t.Position.Z
	return m
}

func m4ToTransform(m lin.M4) Transform {
	var m3 lin.M3
	m3.Xx, m3.Xy, m3.Xz = m.Xx, m.Xy, m.Xz
	m3.Yx, m3.Yy, m3.Yz = m.Yx, m.Yy, m.Yz
	m3.Zx, m3.Zy, m3.Zz = m.Zx, m.Zy, m.Zz
	var q lin.Q
	q.SetM3(&m3)
	return Transform{
		Position: lin.V3{X: m.Xw, Y: m.Yw, Z: m.Zw},
		Rotation: q,
	}
}

func mulM4(l, r lin.M4) lin.M4 {
	var out lin.M4
	out.Mult(&l, &r)
	return out
}

// invertRigid inverts a rotation+translation matrix (no scale assumed,
// matching every matrix this package composes). Falls back to identity
// when the rotation block is degenerate, per spec.md §7's "degenerate
// world matrices fall back to identity" runtime-error policy.
func invertRigid(m lin.M4) lin.M4 {
	var rot, inv lin.M3
	rot.Xx, rot.Xy, rot.Xz = m.Xx, m.Xy, m.Xz
	rot.Yx, rot.Yy, rot.Yz = m.Yx, m.Yy, m.Yz
	rot.Zx, rot.Zy, rot.Zz = m.Zx, m.Zy, m.Zz
	if rot.Det() == 0 {
		slog.Warn("physics: degenerate world matrix, substituting identity")
		return *lin.NewM4I()
	}
	inv.Inv(&rot)

	tx, ty, tz := -m.Xw, -m.Yw, -m.Zw
	var out lin.M4
	out.Xx, out.Xy, out.Xz = inv.Xx, inv.Xy, inv.Xz
	out.Yx, out.Yy, out.Yz = inv.Yx, inv.Yy, inv.Yz
	out.Zx, out.Zy, out.Zz = inv.Zx, inv.Zy, inv.Zz
	out.Ww = 1
	out.Xw = inv.Xx*tx + inv.Xy*ty + inv.Xz*tz
	out.Yw = inv.Yx*tx + inv.Yy*ty + inv.Yz*tz
	out.Zw = inv.Zx*tx + inv.Zy*ty + inv.Zz*tz
	return out
}
