// Copyright © 2013-2015 Galvanized Logic Inc.
// Use is governed by a BSD-style license found in the LICENSE file.

package mmd

import "github.com/gazed/mmdrt/math/lin"

// bone.go is the Bone Evaluator (C8): ordered world-matrix update honoring
// append transforms, morphs, axis limits, and IK chains. Grounded on
// original_source/.../mmd_model/mmd_runtime_bone.rs.

// Bone holds a bone's immutable construction-time attributes. Mutable
// per-tick state (world matrix, morph offsets, IK chain info) lives in
// boneState, arena-indexed in parallel with the Bones slice (SPEC_FULL.md
// §9: "fixed-size plain-data value", no bone subtypes).
type Bone struct {
	RestPosition          lin.V3
	InverseBindMatrix     lin.M4
	ParentBone            int32 // NoIndex if root
	ChildBones            []int32
	TransformOrder        int32
	TransformAfterPhysics bool
	AppendTransformSolver int32   // NoIndex if none
	AxisLimit             *lin.V3 // nil if unconstrained
	IKSolver              int32   // NoIndex if none
	HasIKChainInfo        bool
	RigidbodyIndices      []int32
}

// boneState is the mutable per-tick state associated with a Bone.
type boneState struct {
	worldMatrix lin.M4

	hasMorphPosition bool
	morphPosition    lin.V3
	hasMorphRotation bool
	morphRotation    lin.Q

	ikChain IkChainInfo
}

// IkChainInfo is the per-chained-bone solver scratch state: the rotation
// and position captured from animation before IK override, and the
// solver's additive rotation. Grounded on
// original_source/.../mmd_model/ik_chain_info.rs.
type IkChainInfo struct {
	LocalRotation lin.Q
	LocalPosition lin.V3
	IkRotation    lin.Q
}

// reset clears the solver's additive rotation back to identity; local
// rotation/position are overwritten every tick by updateWorldMatrix
// before they are read, so they are not reset here.
func (c *IkChainInfo) reset() { c.IkRotation = *lin.NewQI() }

// animatedRotation returns bone i's rotation for this tick: the sampled
// animation rotation, projected onto AxisLimit if present (identity when
// AxisLimit is the zero vector), then left-multiplied by any morph
// rotation offset.
func (m *Model) animatedRotation(i int32) lin.Q {
	rotation := m.arena.BoneRotation(i)
	bone := &m.bones[i]
	if bone.AxisLimit != nil {
		axisLimit := *bone.AxisLimit
		if axisLimit.X == 0 && axisLimit.Y == 0 && axisLimit.Z == 0 {
			return *lin.NewQI()
		}
		ax, ay, az, angle := rotation.Aa()
		if ax*axisLimit.X+ay*axisLimit.Y+az*axisLimit.Z < 0 {
			angle = -angle
		}
		rotation.SetAa(axisLimit.X, axisLimit.Y, axisLimit.Z, angle)
	}
	st := &m.states[i]
	if st.hasMorphRotation {
		// morph offset is applied on top of the sampled rotation.
		rotation.Mult(&rotation, &st.morphRotation)
	}
	return rotation
}

// animatedPosition returns bone i's sampled animation position plus any
// morph position offset.
func (m *Model) animatedPosition(i int32) lin.V3 {
	position := m.arena.BonePosition(i)
	st := &m.states[i]
	if st.hasMorphPosition {
		position.Add(&position, &st.morphPosition)
	}
	return position
}

// animationPositionOffset is animatedPosition minus rest_position, the
// displacement a local transform needs to apply.
func (m *Model) animationPositionOffset(i int32) lin.V3 {
	pos := m.animatedPosition(i)
	rest := m.bones[i].RestPosition
	var out lin.V3
	out.Sub(&pos, &rest)
	return out
}

// localMatrix builds T(position) * R(rotation) * S(scale) in this
// package's column-vector convention: rotation from SetQ, translation in
// the Xw/Yw/Zw column, so world = parent * local composes parent-first.
func localMatrix(rotation lin.Q, position lin.V3, scale lin.V3) lin.M4 {
	var m lin.M4
	m.SetQ(&rotation)
	if scale.X != 1 || scale.Y != 1 || scale.Z != 1 {
		m.ScaleMS(scale.X, scale.Y, scale.Z)
	}
	m.Xw, m.Yw, m.Zw = position.X, position.Y, position.Z
	return m
}

// updateWorldMatrix recomputes bone boneIndex's world matrix for this
// pass, invoking the append-transform solver and (when requested) the IK
// solver. Grounded line-for-line on
// original_source/.../mmd_model/mmd_runtime_bone.rs `update_world_matrix`.
func (m *Model) updateWorldMatrix(boneIndex int32, usePhysics, computeIK bool) {
	bone := &m.bones[boneIndex]

	rotation := m.animatedRotation(boneIndex)
	position := m.animationPositionOffset(boneIndex)

	if bone.AppendTransformSolver != NoIndex {
		m.updateAppendTransform(bone.AppendTransformSolver)
		solver := &m.appendSolvers[bone.AppendTransformSolver]
		if solver.AffectRotation {
			rotation = solver.appendRotation
		}
		if solver.AffectPosition {
			position = solver.appendPosition
		}
	}

	st := &m.states[boneIndex]
	if bone.HasIKChainInfo {
		st.ikChain.LocalRotation = rotation
		st.ikChain.LocalPosition = position
		rotation.Mult(&rotation, &st.ikChain.IkRotation)
	}

	scale := m.arena.BoneScale(boneIndex)
	local := localMatrix(rotation, lin.V3{X: position.X + bone.RestPosition.X, Y: position.Y + bone.RestPosition.Y, Z: position.Z + bone.RestPosition.Z}, scale)

	if bone.ParentBone != NoIndex {
		st.worldMatrix.Mult(&m.states[bone.ParentBone].worldMatrix, &local)
	} else {
		st.worldMatrix = local
	}

	if computeIK && bone.IKSolver != NoIndex && m.arena.IKEnabled(bone.IKSolver) {
		solver := &m.ikSolvers[bone.IKSolver]
		if !(usePhysics && solver.canSkipWhenPhysicsEnabled) {
			m.solveIK(bone.IKSolver, usePhysics)
		}
	}
}

// updateIKChainWorldMatrix recomputes bone boneIndex's world matrix from
// its stored IkChainInfo locals (used mid-solve, before the chain's normal
// pass position is known), then re-propagates every descendant via an
// explicit work stack.
func (m *Model) updateIKChainWorldMatrix(boneIndex int32) {
	bone := &m.bones[boneIndex]
	st := &m.states[boneIndex]

	var rotation lin.Q
	rotation.Mult(&st.ikChain.LocalRotation, &st.ikChain.IkRotation)

	scale := m.arena.BoneScale(boneIndex)
	local := localMatrix(rotation, lin.V3{
		X: st.ikChain.LocalPosition.X + bone.RestPosition.X,
		Y: st.ikChain.LocalPosition.Y + bone.RestPosition.Y,
		Z: st.ikChain.LocalPosition.Z + bone.RestPosition.Z,
	}, scale)

	if bone.ParentBone != NoIndex {
		st.worldMatrix.Mult(&m.states[bone.ParentBone].worldMatrix, &local)
	} else {
		st.worldMatrix = local
	}

	for _, child := range bone.ChildBones {
		m.updateWorldMatrixRecursive(child)
	}
}

// updateWorldMatrixRecursive re-propagates boneIndex and every descendant
// using an explicit stack (boneStack, reused across calls) instead of
// runtime recursion, per SPEC_FULL.md §9.
func (m *Model) updateWorldMatrixRecursive(boneIndex int32) {
	m.boneStack = m.boneStack[:0]
	m.boneStack = append(m.boneStack, boneIndex)
	for len(m.boneStack) > 0 {
		n := len(m.boneStack) - 1
		bi := m.boneStack[n]
		m.boneStack = m.boneStack[:n]

		m.updateWorldMatrix(bi, false, false)

		m.boneStack = append(m.boneStack, m.bones[bi].ChildBones...)
	}
}

// WorldMatrix returns the current world matrix of bone i.
func (m *Model) WorldMatrix(i int32) lin.M4 { return m.states[i].worldMatrix }
