// Copyright © 2013-2015 Galvanized Logic Inc.
// Use is governed by a BSD-style license found in the LICENSE file.

package mmd

import (
	"math"
	"testing"

	"github.com/gazed/mmdrt/math/lin"
)

// Two bones at rest produce identity world matrices.
func TestRestPose(t *testing.T) {
	meta := &Metadata{Bones: []BoneMetadata{
		{Name: "root", ParentBone: NoIndex},
		{Name: "child", ParentBone: 0},
	}}
	m := buildModel(t, meta)
	m.BeforePhysics(nil)

	if world := m.WorldMatrix(0); !world.Aeq(lin.M4I) {
		t.Errorf("root world : wanted identity got %v", world)
	}
	if world := m.WorldMatrix(1); !world.Aeq(lin.M4I) {
		t.Errorf("child world : wanted identity got %v", world)
	}
}

// A parent rotation of 90 degrees about +Y carries a child at rest (1,0,0)
// to (0,0,-1): right-handed, Y up.
func TestRotationPropagation(t *testing.T) {
	m := buildModel(t, twoBoneMeta())
	m.arena.SetBoneRotation(0, *lin.NewQ().SetAa(0, 1, 0, lin.Rad(90)))
	m.BeforePhysics(nil)

	world := m.WorldMatrix(1)
	if math.Abs(world.Xw) > 1e-6 || math.Abs(world.Yw) > 1e-6 || math.Abs(world.Zw+1) > 1e-6 {
		t.Errorf("child world translation : wanted (0,0,-1) got (%f,%f,%f)", world.Xw, world.Yw, world.Zw)
	}
}

// Every bone's world matrix is its parent's world matrix times its local
// matrix after the before-physics pass (spec property 2).
func TestWorldIsParentTimesLocal(t *testing.T) {
	meta := &Metadata{Bones: []BoneMetadata{
		{Name: "root", ParentBone: NoIndex},
		{Name: "mid", RestPosition: lin.V3{X: 1}, ParentBone: 0},
		{Name: "tip", RestPosition: lin.V3{X: 2, Y: 1}, ParentBone: 1},
	}}
	m := buildModel(t, meta)
	m.arena.SetBoneRotation(0, *lin.NewQ().SetAa(0, 0, 1, lin.Rad(30)))
	m.arena.SetBoneRotation(1, *lin.NewQ().SetAa(1, 0, 0, lin.Rad(45)))
	m.BeforePhysics(nil)

	for i := 1; i < 3; i++ {
		bone := &m.bones[i]
		rotation := m.arena.BoneRotation(int32(i))
		local := localMatrix(rotation, bone.RestPosition, lin.V3{X: 1, Y: 1, Z: 1})
		parent := m.WorldMatrix(bone.ParentBone)
		var want lin.M4
		want.Mult(&parent, &local)
		if world := m.WorldMatrix(int32(i)); !world.Aeq(&want) {
			t.Errorf("bone %d world : wanted parent*local %v got %v", i, want, world)
		}
	}
}

// A zero axis limit forces the effective rotation to identity no matter
// what the animation supplies.
func TestAxisLimitZero(t *testing.T) {
	meta := &Metadata{Bones: []BoneMetadata{
		{Name: "locked", ParentBone: NoIndex, Flags: BoneHasAxisLimit},
	}}
	m := buildModel(t, meta)
	m.arena.SetBoneRotation(0, *lin.NewQ().SetAa(1, 0, 0, lin.Rad(45)))
	m.BeforePhysics(nil)

	if world := m.WorldMatrix(0); !world.Aeq(lin.M4I) {
		t.Errorf("zero axis limit : wanted identity got %v", world)
	}
}

// A nonzero axis limit rebuilds the animated rotation about the limit
// axis, keeping the angle (flipped when the axes oppose).
func TestAxisLimitProjection(t *testing.T) {
	meta := &Metadata{Bones: []BoneMetadata{
		{Name: "limited", ParentBone: NoIndex, Flags: BoneHasAxisLimit, AxisLimit: lin.V3{Y: 1}},
	}}
	m := buildModel(t, meta)
	m.arena.SetBoneRotation(0, *lin.NewQ().SetAa(1, 0, 0, lin.Rad(45)))
	m.BeforePhysics(nil)

	want := lin.NewM4().SetQ(lin.NewQ().SetAa(0, 1, 0, lin.Rad(45)))
	if world := m.WorldMatrix(0); !world.Aeq(want) {
		t.Errorf("axis limit projection : wanted Ry(45) got %v", world)
	}

	// opposing axis flips the angle.
	m.arena.SetBoneRotation(0, *lin.NewQ().SetAa(0, -1, 0, lin.Rad(45)))
	m.BeforePhysics(nil)
	want = lin.NewM4().SetQ(lin.NewQ().SetAa(0, 1, 0, lin.Rad(-45)))
	if world := m.WorldMatrix(0); !world.Aeq(want) {
		t.Errorf("axis limit flip : wanted Ry(-45) got %v", world)
	}
}

// Bones are evaluated in ascending transform order, not index order: a
// dependent bone with a lower index still sees its append target's
// already-updated state when the target sorts first.
func TestTransformOrder(t *testing.T) {
	meta := &Metadata{Bones: []BoneMetadata{
		{Name: "dependent", ParentBone: NoIndex, TransformOrder: 1,
			AppendTransform: &AppendTransformMetadata{AffectRotation: true, Ratio: 1, TargetBone: 1}},
		{Name: "target", ParentBone: NoIndex, TransformOrder: 0},
	}}
	m := buildModel(t, meta)
	m.arena.SetBoneRotation(1, *lin.NewQ().SetAa(0, 1, 0, lin.Rad(90)))
	m.BeforePhysics(nil)

	want := lin.NewM4().SetQ(lin.NewQ().SetAa(0, 1, 0, lin.Rad(90)))
	world := m.WorldMatrix(0)
	if math.Abs(world.Xx-want.Xx) > 1e-6 || math.Abs(world.Xz-want.Xz) > 1e-6 {
		t.Errorf("transform order : wanted Ry(90) got Xx=%f Xz=%f", world.Xx, world.Xz)
	}
}

// Bones flagged transform-after-physics are skipped by the before pass
// and written only by the after pass (spec property 3).
func TestAfterPhysicsPass(t *testing.T) {
	meta := &Metadata{Bones: []BoneMetadata{
		{Name: "root", ParentBone: NoIndex},
		{Name: "late", RestPosition: lin.V3{X: 1}, ParentBone: 0, Flags: BoneTransformAfterPhysics},
	}}
	m := buildModel(t, meta)
	m.arena.SetBoneRotation(0, *lin.NewQ().SetAa(0, 1, 0, lin.Rad(90)))
	m.BeforePhysics(nil)

	// the late bone's world matrix is still the reset identity.
	if world := m.WorldMatrix(1); !world.Aeq(lin.M4I) {
		t.Errorf("before pass touched after-physics bone : %v", world)
	}

	m.AfterPhysics()
	world := m.WorldMatrix(1)
	if math.Abs(world.Xw) > 1e-6 || math.Abs(world.Zw+1) > 1e-6 {
		t.Errorf("after pass : wanted (0,0,-1) got (%f,%f,%f)", world.Xw, world.Yw, world.Zw)
	}

	// running both passes again reproduces the same result.
	m.BeforePhysics(nil)
	m.AfterPhysics()
	again := m.WorldMatrix(1)
	if !world.Aeq(&again) {
		t.Errorf("two-pass split not idempotent : %v vs %v", world, again)
	}
}

// Nonuniform scale in the animation arena shows up in the local matrix.
func TestBoneScale(t *testing.T) {
	m := buildModel(t, twoBoneMeta())
	m.arena.SetBoneScale(0, lin.V3{X: 2, Y: 3, Z: 4})
	m.BeforePhysics(nil)

	world := m.WorldMatrix(0)
	if math.Abs(world.Xx-2) > 1e-6 || math.Abs(world.Yy-3) > 1e-6 || math.Abs(world.Zz-4) > 1e-6 {
		t.Errorf("bone scale : got diagonal (%f,%f,%f)", world.Xx, world.Yy, world.Zz)
	}
	// the scaled parent frame scales the child's offset.
	child := m.WorldMatrix(1)
	if math.Abs(child.Xw-2) > 1e-6 {
		t.Errorf("scaled child offset : wanted x=2 got %f", child.Xw)
	}
}
