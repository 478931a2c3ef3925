// Copyright © 2013-2015 Galvanized Logic Inc.
// Use is governed by a BSD-style license found in the LICENSE file.

package mmd

import (
	"math"
	"testing"

	"github.com/gazed/mmdrt/math/lin"
)

// appendMeta is a target bone plus a dependent bone whose append
// transform inherits from it at the given ratio.
func appendMeta(ratio float64, affectRotation, affectPosition bool) *Metadata {
	return &Metadata{Bones: []BoneMetadata{
		{Name: "target", ParentBone: NoIndex},
		{Name: "dependent", RestPosition: lin.V3{Z: 2}, ParentBone: NoIndex,
			AppendTransform: &AppendTransformMetadata{
				AffectRotation: affectRotation,
				AffectPosition: affectPosition,
				Ratio:          ratio,
				TargetBone:     0,
			}},
	}}
}

// The append solver at ratio 0.5 halves the target's rotation: with the
// target at Ry(90) the dependent lands on Ry(45).
func TestAppendRotationRatio(t *testing.T) {
	m := buildModel(t, appendMeta(0.5, true, false))
	m.arena.SetBoneRotation(0, *lin.NewQ().SetAa(0, 1, 0, lin.Rad(90)))
	m.BeforePhysics(nil)

	want := lin.NewM4().SetQ(lin.NewQ().SetAa(0, 1, 0, lin.Rad(45)))
	world := m.WorldMatrix(1)
	if math.Abs(world.Xx-want.Xx) > 1e-6 || math.Abs(world.Xz-want.Xz) > 1e-6 ||
		math.Abs(world.Zx-want.Zx) > 1e-6 || math.Abs(world.Zz-want.Zz) > 1e-6 {
		t.Errorf("append ratio 0.5 : wanted Ry(45) rotation block, got %v", world)
	}
}

// Ratio 0 emits identity regardless of the source rotation.
func TestAppendRatioZero(t *testing.T) {
	m := buildModel(t, appendMeta(0, true, true))
	m.arena.SetBoneRotation(0, *lin.NewQ().SetAa(0, 1, 0, lin.Rad(90)))
	m.arena.SetBonePosition(0, lin.V3{X: 5})
	m.BeforePhysics(nil)

	world := m.WorldMatrix(1)
	if math.Abs(world.Xx-1) > 1e-6 || math.Abs(world.Yy-1) > 1e-6 || math.Abs(world.Zz-1) > 1e-6 {
		t.Errorf("append ratio 0 rotation : wanted identity got %v", world)
	}
	if math.Abs(world.Xw) > 1e-6 || math.Abs(world.Zw-2) > 1e-6 {
		t.Errorf("append ratio 0 position : wanted rest (0,0,2) got (%f,%f,%f)", world.Xw, world.Yw, world.Zw)
	}
}

// Position inheritance scales the target's animated displacement.
func TestAppendPositionRatio(t *testing.T) {
	m := buildModel(t, appendMeta(0.5, false, true))
	m.arena.SetBonePosition(0, lin.V3{X: 4})
	m.BeforePhysics(nil)

	// half of the target's displacement (4,0,0) on top of rest (0,0,2).
	world := m.WorldMatrix(1)
	if math.Abs(world.Xw-2) > 1e-6 || math.Abs(world.Zw-2) > 1e-6 {
		t.Errorf("append position ratio : wanted (2,0,2) got (%f,%f,%f)", world.Xw, world.Yw, world.Zw)
	}
}

// An append solver chained onto another append solver reads the already
// computed offset, not the target's raw animation.
func TestAppendChained(t *testing.T) {
	meta := appendMeta(0.5, true, false)
	meta.Bones = append(meta.Bones, BoneMetadata{
		Name: "chained", ParentBone: NoIndex,
		AppendTransform: &AppendTransformMetadata{
			AffectRotation: true,
			Ratio:          0.5,
			TargetBone:     1, // the dependent bone, which itself appends.
		},
	})
	m := buildModel(t, meta)
	m.arena.SetBoneRotation(0, *lin.NewQ().SetAa(0, 1, 0, lin.Rad(90)))
	m.BeforePhysics(nil)

	// half of the dependent's Ry(45) offset.
	want := lin.NewM4().SetQ(lin.NewQ().SetAa(0, 1, 0, lin.Rad(22.5)))
	world := m.WorldMatrix(2)
	if math.Abs(world.Xx-want.Xx) > 1e-6 || math.Abs(world.Xz-want.Xz) > 1e-6 {
		t.Errorf("chained append : wanted Ry(22.5) got Xx=%f Xz=%f", world.Xx, world.Xz)
	}
}
