// Copyright © 2013-2015 Galvanized Logic Inc.
// Use is governed by a BSD-style license found in the LICENSE file.

package mmd

import "github.com/gazed/mmdrt/math/lin"

// append.go is the Append-Transform Solver (C6): inherited rotation/
// position offsets from another bone, scaled by a ratio. Grounded on
// original_source/.../append_transform_solver.rs.

// AppendTransformSolver computes an inherited rotation/position offset
// from TargetBone, scaled by Ratio.
type AppendTransformSolver struct {
	IsLocal        bool
	AffectRotation bool
	AffectPosition bool
	Ratio          float64
	TargetBone     int32

	// appendRotation/appendPosition are the solver's last computed
	// output offsets, mutable per-tick state.
	appendRotation lin.Q
	appendPosition lin.V3
}

// reset restores the solver's output offsets to identity/zero, the
// before_physics step 5 pass (SPEC_FULL.md §4.7).
func (s *AppendTransformSolver) reset() {
	s.appendRotation = *lin.NewQI()
	s.appendPosition = lin.V3{}
}

// updateAppendTransform recomputes solver solverIndex's output offsets
// from its target bone's already-updated state. The target always precedes
// the owner in transform order, so its values for this pass are final.
// Grounded on append_transform_solver.rs's `update`.
func (m *Model) updateAppendTransform(solverIndex int32) {
	solver := &m.appendSolvers[solverIndex]
	target := solver.TargetBone

	if solver.AffectRotation {
		var sourceRotation lin.Q
		switch {
		case solver.IsLocal:
			sourceRotation = m.animatedRotation(target)
		case m.bones[target].AppendTransformSolver != NoIndex:
			sourceRotation = m.appendSolvers[m.bones[target].AppendTransformSolver].appendRotation
		default:
			sourceRotation = m.animatedRotation(target)
		}
		if m.bones[target].HasIKChainInfo {
			ikRot := m.states[target].ikChain.IkRotation
			sourceRotation.Mult(&sourceRotation, &ikRot)
		}
		solver.appendRotation.Slerp(lin.NewQI(), &sourceRotation, solver.Ratio)
	}

	if solver.AffectPosition {
		var sourcePosition lin.V3
		if solver.IsLocal {
			sourcePosition = m.animationPositionOffset(target)
		} else if m.bones[target].AppendTransformSolver != NoIndex {
			sourcePosition = m.appendSolvers[m.bones[target].AppendTransformSolver].appendPosition
		} else {
			sourcePosition = m.animationPositionOffset(target)
		}
		solver.appendPosition = lin.V3{X: sourcePosition.X * solver.Ratio, Y: sourcePosition.Y * solver.Ratio, Z: sourcePosition.Z * solver.Ratio}
	}
}
