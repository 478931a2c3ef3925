// Copyright © 2013-2015 Galvanized Logic Inc.
// Use is governed by a BSD-style license found in the LICENSE file.

package mmd

import (
	"math"
	"testing"

	"github.com/gazed/mmdrt/math/lin"
)

// ikMeta is a one-link chain: a chain bone at the origin, a target bone
// at (1,0,0) hanging off it, and a root-level ik bone carrying the solver.
func ikMeta(iteration int) *Metadata {
	return &Metadata{Bones: []BoneMetadata{
		{Name: "chain", ParentBone: NoIndex},
		{Name: "target", RestPosition: lin.V3{X: 1}, ParentBone: 0},
		{Name: "ik", RestPosition: lin.V3{X: 1}, ParentBone: NoIndex,
			Ik: &IkMetadata{
				TargetBone: 1,
				Iteration:  iteration,
				LimitAngle: lin.PI,
				Links:      []IkLinkMetadata{{Bone: 0}},
			}},
	}}
}

// With the chain bone animated 90 degrees off axis, CCD pulls the target
// back onto the ik bone's position.
func TestIKSingleChain(t *testing.T) {
	m := buildModel(t, ikMeta(10))
	m.arena.SetBoneRotation(0, *lin.NewQ().SetAa(0, 0, 1, lin.Rad(90)))
	m.BeforePhysics(nil)

	world := m.WorldMatrix(1)
	dx, dy, dz := world.Xw-1, world.Yw, world.Zw
	if math.Sqrt(dx*dx+dy*dy+dz*dz) > 1e-3 {
		t.Errorf("ik solve : target at (%f,%f,%f), wanted (1,0,0)", world.Xw, world.Yw, world.Zw)
	}
}

// iteration <= 0 leaves every chain rotation at identity (spec property 5).
func TestIKZeroIterations(t *testing.T) {
	m := buildModel(t, ikMeta(0))
	m.arena.SetBoneRotation(0, *lin.NewQ().SetAa(0, 0, 1, lin.Rad(90)))
	m.BeforePhysics(nil)

	if got := m.states[0].ikChain.IkRotation; !got.Aeq(lin.QI) {
		t.Errorf("zero iterations : ik rotation %v, wanted identity", got)
	}
	// the chain bone keeps its animated pose.
	world := m.WorldMatrix(1)
	if math.Abs(world.Xw) > 1e-6 || math.Abs(world.Yw-1) > 1e-6 {
		t.Errorf("zero iterations : target at (%f,%f,%f), wanted (0,1,0)", world.Xw, world.Yw, world.Zw)
	}
}

// Disabling the solver through the property arena skips the solve.
func TestIKDisabled(t *testing.T) {
	m := buildModel(t, ikMeta(10))
	m.SetIKEnabled(0, false)
	m.arena.SetBoneRotation(0, *lin.NewQ().SetAa(0, 0, 1, lin.Rad(90)))
	m.BeforePhysics(nil)

	world := m.WorldMatrix(1)
	if math.Abs(world.Yw-1) > 1e-6 {
		t.Errorf("disabled solver still ran : target at (%f,%f,%f)", world.Xw, world.Yw, world.Zw)
	}
}

// An already-satisfied chain returns without touching ik rotations.
func TestIKEarlyOut(t *testing.T) {
	m := buildModel(t, ikMeta(10))
	m.BeforePhysics(nil)

	if got := m.states[0].ikChain.IkRotation; !got.Aeq(lin.QI) {
		t.Errorf("early out : ik rotation %v, wanted identity", got)
	}
}

// A chain link whose limits are all zero is pinned and never rotates.
func TestIKFixedAxis(t *testing.T) {
	meta := ikMeta(10)
	meta.Bones[2].Ik.Links[0].HasAngleLimit = true // min == max == zero.
	m := buildModel(t, meta)
	m.arena.SetBoneRotation(0, *lin.NewQ().SetAa(0, 0, 1, lin.Rad(90)))
	m.BeforePhysics(nil)

	if got := m.states[0].ikChain.IkRotation; !got.Aeq(lin.QI) {
		t.Errorf("fixed chain rotated : %v", got)
	}
}

// Angle limits clamp the solved rotation: a knee-style chain limited to
// bend about X cannot satisfy a target demanding a Z bend.
func TestIKAngleLimit(t *testing.T) {
	meta := ikMeta(20)
	meta.Bones[2].Ik.Links[0].HasAngleLimit = true
	meta.Bones[2].Ik.Links[0].MinAngle = lin.V3{X: -lin.PI}
	meta.Bones[2].Ik.Links[0].MaxAngle = lin.V3{}
	m := buildModel(t, meta)
	m.arena.SetBoneRotation(0, *lin.NewQ().SetAa(0, 0, 1, lin.Rad(90)))
	m.BeforePhysics(nil)

	// whatever the solver did, the chain's effective rotation (the one the
	// world matrix applies) must respect the limits: only a (negative) X
	// component, no Y or Z bend.
	var chainRot lin.Q
	chainRot.Mult(&m.states[0].ikChain.LocalRotation, &m.states[0].ikChain.IkRotation)
	var mat lin.M3
	mat.SetQ(&chainRot)
	rx, ry, rz := decomposeEuler(EulerZyx, &mat)
	if rx > 1e-6 || rx < -lin.PI-1e-6 {
		t.Errorf("x angle outside limits : %f", rx)
	}
	if math.Abs(ry) > 1e-6 || math.Abs(rz) > 1e-6 {
		t.Errorf("limited chain bent off axis : ry=%f rz=%f", ry, rz)
	}
}

func TestIKChainDerivation(t *testing.T) {
	cases := []struct {
		min, max lin.V3
		order    EulerRotationOrder
		axis     SolveAxis
	}{
		{lin.V3{}, lin.V3{}, EulerYxz, SolveAxisFixed},
		{lin.V3{X: -1}, lin.V3{}, EulerYxz, SolveAxisX},
		{lin.V3{Y: -1}, lin.V3{Y: 1}, EulerYxz, SolveAxisY},
		{lin.V3{Z: -1}, lin.V3{Z: 1}, EulerYxz, SolveAxisZ},
		{lin.V3{X: -3, Y: -1}, lin.V3{X: 3, Y: 1}, EulerZyx, SolveAxisNone},
		{lin.V3{X: -3, Y: -3, Z: -1}, lin.V3{X: 3, Y: 3, Z: 1}, EulerXzy, SolveAxisNone},
	}
	for i, c := range cases {
		chain := NewIkChain(0, true, c.min, c.max)
		if chain.rotationOrder != c.order {
			t.Errorf("case %d rotation order : wanted %v got %v", i, c.order, chain.rotationOrder)
		}
		if chain.solveAxis != c.axis {
			t.Errorf("case %d solve axis : wanted %v got %v", i, c.axis, chain.solveAxis)
		}
	}
}

// Reversed metadata limits normalize so Min <= Max component-wise.
func TestIKChainLimitNormalize(t *testing.T) {
	chain := NewIkChain(0, true, lin.V3{X: 1}, lin.V3{X: -2})
	if chain.MinAngle.X != -2 || chain.MaxAngle.X != 1 {
		t.Errorf("limits not normalized : min=%v max=%v", chain.MinAngle, chain.MaxAngle)
	}
}

func TestIKLimitAngleReflection(t *testing.T) {
	// undershoot reflects back inside when the reflection fits and the
	// solver is still in its axis-respecting first half.
	if got := ikLimitAngle(-0.5, -0.2, 1.0, true); math.Abs(got-0.1) > 1e-9 {
		t.Errorf("reflected undershoot : wanted 0.1 got %f", got)
	}
	// reflection out of range snaps to the boundary.
	if got := ikLimitAngle(-3, -0.2, 1.0, true); got != -0.2 {
		t.Errorf("snapped undershoot : wanted -0.2 got %f", got)
	}
	// second-half iterations always snap.
	if got := ikLimitAngle(-0.5, -0.2, 1.0, false); got != -0.2 {
		t.Errorf("late undershoot : wanted -0.2 got %f", got)
	}
	// overshoot mirrors the rule.
	if got := ikLimitAngle(1.4, -1.0, 1.0, true); math.Abs(got-0.6) > 1e-9 {
		t.Errorf("reflected overshoot : wanted 0.6 got %f", got)
	}
	if got := ikLimitAngle(0.3, -1.0, 1.0, true); got != 0.3 {
		t.Errorf("in-range angle changed : got %f", got)
	}
}

// recomposeEuler and decomposeEuler invert each other for every rotation
// order when the angles stay clear of the gimbal threshold.
func TestEulerRoundTrip(t *testing.T) {
	orders := []EulerRotationOrder{EulerYxz, EulerZyx, EulerXzy}
	angles := [][3]float64{
		{0.3, -0.4, 0.2},
		{-1.0, 0.7, -0.6},
		{0.0, 1.2, 0.0},
	}
	for _, order := range orders {
		for _, a := range angles {
			q := recomposeEuler(order, a[0], a[1], a[2])
			var mat lin.M3
			mat.SetQ(&q)
			rx, ry, rz := decomposeEuler(order, &mat)
			if math.Abs(rx-a[0]) > 1e-6 || math.Abs(ry-a[1]) > 1e-6 || math.Abs(rz-a[2]) > 1e-6 {
				t.Errorf("order %v round trip : wanted %v got (%f,%f,%f)", order, a, rx, ry, rz)
			}
		}
	}
}
