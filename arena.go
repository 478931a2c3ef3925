// Copyright © 2013-2015 Galvanized Logic Inc.
// Use is governed by a BSD-style license found in the LICENSE file.

package mmd

import "github.com/gazed/mmdrt/math/lin"

// arena.go is the Animation Arena (C4): the mutable per-frame pose that
// the Animation Sampler writes into and the Bone Evaluator reads from.
// Grounded on original_source/.../mmd_model/animation_arena.rs.

// bonePose is one bone's sampled animation-space pose: position, rotation,
// and scale, before any morph offset, append transform, or IK override is
// applied.
type bonePose struct {
	Position lin.V3
	Rotation lin.Q
	Scale    lin.V3
}

// AnimationArena is the mutable per-frame pose store: one bonePose per
// bone, one IK-enable flag per IK solver, one weight per morph. It is
// allocated once per model and overwritten in place every tick; the
// evaluator never re-samples mid-evaluation (invariant 1 of SPEC_FULL.md
// §8), it only reads this arena.
type AnimationArena struct {
	bones    []bonePose
	ikStates []bool
	morphs   []float64
}

// NewAnimationArena allocates an arena sized for the given bone/ik/morph
// counts, with every cell at its rest value. Rigid-body teleport state
// lives in the Physics Bridge (physics.ModelContext), not here: this
// arena only holds the sampler's output.
func NewAnimationArena(restPositions []lin.V3, ikCount, morphCount int) *AnimationArena {
	a := &AnimationArena{
		bones:    make([]bonePose, len(restPositions)),
		ikStates: make([]bool, ikCount),
		morphs:   make([]float64, morphCount),
	}
	a.Reset(restPositions)
	for i := range a.ikStates {
		a.ikStates[i] = true
	}
	return a
}

// Reset restores every bone pose to (restPosition, identity, (1,1,1)).
// Ik-enable flags and morph weights are left untouched: they are host-
// controlled state, not per-tick sampler output.
func (a *AnimationArena) Reset(restPositions []lin.V3) {
	for i := range a.bones {
		a.bones[i].Position = restPositions[i]
		a.bones[i].Rotation = *lin.NewQI()
		a.bones[i].Scale = lin.V3{X: 1, Y: 1, Z: 1}
	}
}

// NormalizeRotations renormalizes every bone's stored quaternion, guarding
// against drift accumulated from repeated slerp/nlerp composition
// (before_physics step 2 of SPEC_FULL.md §4.7).
func (a *AnimationArena) NormalizeRotations() {
	for i := range a.bones {
		a.bones[i].Rotation.Unit()
	}
}

func (a *AnimationArena) BonePosition(i int32) lin.V3 { return a.bones[i].Position }
func (a *AnimationArena) BoneRotation(i int32) lin.Q  { return a.bones[i].Rotation }
func (a *AnimationArena) BoneScale(i int32) lin.V3    { return a.bones[i].Scale }

func (a *AnimationArena) SetBonePosition(i int32, p lin.V3) { a.bones[i].Position = p }
func (a *AnimationArena) SetBoneRotation(i int32, r lin.Q)  { a.bones[i].Rotation = r }
func (a *AnimationArena) SetBoneScale(i int32, s lin.V3)    { a.bones[i].Scale = s }

// IKEnabled reports whether the IK solver at the given index is enabled.
func (a *AnimationArena) IKEnabled(ik int32) bool {
	if ik < 0 || int(ik) >= len(a.ikStates) {
		return false
	}
	return a.ikStates[ik]
}

// SetIKEnabled writes the iksolver_state_arena cell (set_ik_enabled).
func (a *AnimationArena) SetIKEnabled(ik int32, enabled bool) {
	if ik >= 0 && int(ik) < len(a.ikStates) {
		a.ikStates[ik] = enabled
	}
}

// MorphWeight returns the weight of the morph at the given index.
func (a *AnimationArena) MorphWeight(m int32) float64 {
	if m < 0 || int(m) >= len(a.morphs) {
		return 0
	}
	return a.morphs[m]
}

// SetMorphWeight writes the morph_arena cell (set_morph_weight).
func (a *AnimationArena) SetMorphWeight(m int32, weight float64) {
	if m >= 0 && int(m) < len(a.morphs) {
		a.morphs[m] = weight
	}
}
