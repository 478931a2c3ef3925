// Copyright © 2013-2015 Galvanized Logic Inc.
// Use is governed by a BSD-style license found in the LICENSE file.

package mmd

import (
	"math"

	"github.com/gazed/mmdrt/math/lin"
)

// ik.go is the IK Solver (C7): a CCD-style iterative solver with
// per-chain Euler-axis decomposition and angle limits. Grounded
// line-for-line on original_source/.../mmd_model/ik_solver.rs.

// EulerRotationOrder is the axis-decomposition order chosen per chain at
// construction, used only when the chain has angle limits.
type EulerRotationOrder int

const (
	EulerYxz EulerRotationOrder = iota
	EulerZyx
	EulerXzy
)

// SolveAxis restricts a chain link's rotation axis during the first half
// of the solver's iterations.
type SolveAxis int

const (
	SolveAxisNone  SolveAxis = iota // unrestricted
	SolveAxisFixed                  // chain link does not rotate at all
	SolveAxisX
	SolveAxisY
	SolveAxisZ
)

// gimbalThreshold is 88 degrees in radians, the clamp applied to the
// first extracted Euler angle to avoid a gimbal-lock singularity in the
// subsequent atan2 calls.
var gimbalThreshold = 88.0 * lin.PI / 180.0

// IkChain is one link of an IK chain: the bone it drives, and optionally
// a per-axis angle limit.
type IkChain struct {
	Bone          int32
	HasAngleLimit bool
	MinAngle      lin.V3
	MaxAngle      lin.V3

	rotationOrder EulerRotationOrder
	solveAxis     SolveAxis
}

// NewIkChain derives RotationOrder and SolveAxis from the given limits
// (ignored if hasLimit is false) and returns the chain link. Grounded on
// ik_solver.rs::IkChain::new.
func NewIkChain(bone int32, hasLimit bool, min, max lin.V3) IkChain {
	c := IkChain{Bone: bone, HasAngleLimit: hasLimit}
	if !hasLimit {
		c.solveAxis = SolveAxisNone
		return c
	}
	// normalize so Min/Max compare component-wise regardless of metadata order.
	lo := lin.V3{X: math.Min(min.X, max.X), Y: math.Min(min.Y, max.Y), Z: math.Min(min.Z, max.Z)}
	hi := lin.V3{X: math.Max(min.X, max.X), Y: math.Max(min.Y, max.Y), Z: math.Max(min.Z, max.Z)}
	c.MinAngle, c.MaxAngle = lo, hi

	switch {
	case lo.X > -lin.HalfPi && hi.X < lin.HalfPi:
		c.rotationOrder = EulerYxz
	case lo.Y > -lin.HalfPi && hi.Y < lin.HalfPi:
		c.rotationOrder = EulerZyx
	default:
		c.rotationOrder = EulerXzy
	}

	switch {
	case lo == (lin.V3{}) && hi == (lin.V3{}):
		c.solveAxis = SolveAxisFixed
	case lo.X == 0 && hi.X == 0 && lo.Z == 0 && hi.Z == 0 && (lo.Y != 0 || hi.Y != 0):
		c.solveAxis = SolveAxisY
	case lo.Y == 0 && hi.Y == 0 && lo.Z == 0 && hi.Z == 0 && (lo.X != 0 || hi.X != 0):
		c.solveAxis = SolveAxisX
	case lo.X == 0 && hi.X == 0 && lo.Y == 0 && hi.Y == 0 && (lo.Z != 0 || hi.Z != 0):
		c.solveAxis = SolveAxisZ
	default:
		c.solveAxis = SolveAxisNone
	}
	return c
}

// IkSolver drives a chain of bones to bring TargetBone onto IkBone's
// world position.
type IkSolver struct {
	Iteration  int
	LimitAngle float64 // radians
	IkBone     int32
	TargetBone int32
	Chains     []IkChain // ordered effector-adjacent to root-adjacent

	canSkipWhenPhysicsEnabled bool
}

// maxIkIteration is the hard cap applied at construction (ik_solver.rs:
// `iteration.min(256)`).
const maxIkIteration = 256

// NewIkSolver clamps iteration and returns a solver with no chains yet;
// call AddChain to append links, then InitializeSkipFlag once all chain
// bones are known.
func NewIkSolver(ikBone, targetBone int32, iteration int, limitAngle float64) *IkSolver {
	if iteration > maxIkIteration {
		iteration = maxIkIteration
	}
	return &IkSolver{Iteration: iteration, LimitAngle: limitAngle, IkBone: ikBone, TargetBone: targetBone}
}

// AddChain appends a chain link, effector-adjacent first.
func (s *IkSolver) AddChain(c IkChain) { s.Chains = append(s.Chains, c) }

// InitializeSkipFlag computes canSkipWhenPhysicsEnabled: true unless any
// chain bone is not physics-driven. isPhysicsBone reports whether a bone
// index has a rigid body in Physics/PhysicsWithBone mode.
func (s *IkSolver) InitializeSkipFlag(isPhysicsBone func(bone int32) bool) {
	s.canSkipWhenPhysicsEnabled = true
	for _, c := range s.Chains {
		if !isPhysicsBone(c.Bone) {
			s.canSkipWhenPhysicsEnabled = false
			return
		}
	}
}

// solveIK runs CCD for ikSolverIndex. Grounded on
// ik_solver.rs::MmdModel::solve_ik.
func (m *Model) solveIK(ikSolverIndex int32, usePhysics bool) {
	solver := &m.ikSolvers[ikSolverIndex]

	for i := range solver.Chains {
		m.states[solver.Chains[i].Bone].ikChain.reset()
	}

	ikWorld := translationOf(m.states[solver.IkBone].worldMatrix)

	m.updateWorldMatrix(solver.TargetBone, usePhysics, true)
	solver = &m.ikSolvers[ikSolverIndex]
	targetWorld := translationOf(m.states[solver.TargetBone].worldMatrix)
	if distSqr(ikWorld, targetWorld) < 1e-8 {
		return
	}

	for i := len(solver.Chains) - 1; i >= 0; i-- {
		m.updateWorldMatrix(solver.Chains[i].Bone, usePhysics, false)
		solver = &m.ikSolvers[ikSolverIndex]
	}
	m.updateWorldMatrix(solver.TargetBone, false, false)
	targetWorld = translationOf(m.states[solver.TargetBone].worldMatrix)
	if distSqr(ikWorld, targetWorld) < 1e-8 {
		return
	}

	half := solver.Iteration >> 1
	for i := 0; i < solver.Iteration; i++ {
		useAxis := i < half
		for chainIndex := 0; chainIndex < len(solver.Chains); chainIndex++ {
			if solver.Chains[chainIndex].solveAxis == SolveAxisFixed {
				continue
			}
			targetWorld = m.solveIKChain(ikSolverIndex, chainIndex, ikWorld, targetWorld, useAxis)
		}
		if distSqr(ikWorld, targetWorld) < 1e-8 {
			break
		}
	}
}

// solveIKChain solves one chain link and returns the target bone's new
// world position. Grounded on ik_solver.rs::solve_ik_chain.
func (m *Model) solveIKChain(ikSolverIndex int32, chainIndex int, ikWorld, targetWorld lin.V3, useAxis bool) lin.V3 {
	solver := &m.ikSolvers[ikSolverIndex]
	chain := &solver.Chains[chainIndex]

	chainWorld := translationOf(m.states[chain.Bone].worldMatrix)

	var vTarget, vIk lin.V3
	vTarget.Sub(&chainWorld, &targetWorld)
	vTarget.Unit()
	vIk.Sub(&chainWorld, &ikWorld)
	vIk.Unit()

	var axisWs lin.V3
	axisWs.Cross(&vTarget, &vIk)
	if axisWs.LenSqr() < 1e-8 {
		return targetWorld
	}

	var parentRot lin.M3
	parentRot = *lin.M3I
	if m.bones[chain.Bone].ParentBone != NoIndex {
		parentRot.SetQ(quatOf(m.states[m.bones[chain.Bone].ParentBone].worldMatrix))
	}

	var axis lin.V3
	if chain.HasAngleLimit && useAxis {
		// col is the parent frame's solve axis in world space, the matrix
		// column that axis maps to under the column-vector convention.
		switch chain.solveAxis {
		case SolveAxisX:
			col := lin.V3{X: parentRot.Xx, Y: parentRot.Yx, Z: parentRot.Zx}
			sign := 1.0
			if axisWs.Dot(&col) < 0 {
				sign = -1.0
			}
			axis = lin.V3{X: sign}
		case SolveAxisY:
			col := lin.V3{X: parentRot.Xy, Y: parentRot.Yy, Z: parentRot.Zy}
			sign := 1.0
			if axisWs.Dot(&col) < 0 {
				sign = -1.0
			}
			axis = lin.V3{Y: sign}
		case SolveAxisZ:
			col := lin.V3{X: parentRot.Xz, Y: parentRot.Yz, Z: parentRot.Zz}
			sign := 1.0
			if axisWs.Dot(&col) < 0 {
				sign = -1.0
			}
			axis = lin.V3{Z: sign}
		default:
			axis = transformByInverse(parentRot, axisWs)
		}
	} else {
		axis = transformByInverse(parentRot, axisWs)
	}

	dot := lin.Clamp(vTarget.Dot(&vIk), -1, 1)
	angle := math.Min(solver.LimitAngle*float64(chainIndex+1), math.Acos(dot))

	st := &m.states[chain.Bone]
	var step lin.Q
	step.SetAa(axis.X, axis.Y, axis.Z, angle)
	st.ikChain.IkRotation.Mult(&st.ikChain.IkRotation, &step)
	st.ikChain.IkRotation.Unit()

	if chain.HasAngleLimit {
		var chainRotMat lin.M3
		var chainRotQ lin.Q
		chainRotQ.Mult(&st.ikChain.IkRotation, &st.ikChain.LocalRotation)
		chainRotMat.SetQ(&chainRotQ)

		rx, ry, rz := decomposeEuler(chain.rotationOrder, &chainRotMat)
		rx = ikLimitAngle(rx, chain.MinAngle.X, chain.MaxAngle.X, useAxis)
		ry = ikLimitAngle(ry, chain.MinAngle.Y, chain.MaxAngle.Y, useAxis)
		rz = ikLimitAngle(rz, chain.MinAngle.Z, chain.MaxAngle.Z, useAxis)
		newRotation := recomposeEuler(chain.rotationOrder, rx, ry, rz)

		var invLocal lin.Q
		invLocal.Inv(&st.ikChain.LocalRotation)
		st.ikChain.IkRotation.Mult(&invLocal, &newRotation)
	}

	for i := chainIndex; i >= 0; i-- {
		m.updateIKChainWorldMatrix(solver.Chains[i].Bone)
	}
	m.updateWorldMatrix(solver.TargetBone, false, false)
	return translationOf(m.states[solver.TargetBone].worldMatrix)
}

// ikLimitAngle clamps angle to [min,max] using the reflection rule:
// undershoot is first reflected back inside the range, and accepted only
// when the reflection itself lands within range and useAxis is true;
// otherwise it snaps to the boundary. Grounded on
// ik_solver.rs::ik_limit_angle.
func ikLimitAngle(angle, min, max float64, useAxis bool) float64 {
	switch {
	case angle < min:
		diff := 2*min - angle
		if diff <= max && useAxis {
			return diff
		}
		return min
	case angle > max:
		diff := 2*max - angle
		if diff >= min && useAxis {
			return diff
		}
		return max
	default:
		return angle
	}
}

// decomposeEuler extracts (rx,ry,rz) from rotation matrix m in the given
// order, clamping the first extracted angle at gimbalThreshold. Grounded
// element-for-element on ik_solver.rs lines 296-372. glam's Mat3 axes are
// columns, so glam's `m.z_axis.y` (row y of column z) is this package's
// m.Yz, `m.x_axis.y` is m.Yx, and so on.
func decomposeEuler(order EulerRotationOrder, m *lin.M3) (rx, ry, rz float64) {
	switch order {
	case EulerYxz:
		rx = clampGimbal(math.Asin(-m.Yz))
		cx := invCos(rx)
		ry = math.Atan2(m.Xz*cx, m.Zz*cx)
		rz = math.Atan2(m.Yx*cx, m.Yy*cx)
	case EulerZyx:
		ry = clampGimbal(math.Asin(-m.Zx))
		cy := invCos(ry)
		rx = math.Atan2(m.Zy*cy, m.Zz*cy)
		rz = math.Atan2(m.Yx*cy, m.Xx*cy)
	default: // EulerXzy
		rz = clampGimbal(math.Asin(-m.Xy))
		cz := invCos(rz)
		rx = math.Atan2(m.Zy*cz, m.Yy*cz)
		ry = math.Atan2(m.Xz*cz, m.Xx*cz)
	}
	return rx, ry, rz
}

// recomposeEuler rebuilds a quaternion from Euler angles in the given
// order. Q.Mult composes in application order (first argument applied
// first), so YXZ applies z, then x, then y.
func recomposeEuler(order EulerRotationOrder, rx, ry, rz float64) lin.Q {
	qx, qy, qz := lin.NewQ(), lin.NewQ(), lin.NewQ()
	qx.SetAa(1, 0, 0, rx)
	qy.SetAa(0, 1, 0, ry)
	qz.SetAa(0, 0, 1, rz)
	out := lin.NewQ()
	switch order {
	case EulerYxz:
		out.Mult(qz, qx)
		out.Mult(out, qy)
	case EulerZyx:
		out.Mult(qx, qy)
		out.Mult(out, qz)
	default: // EulerXzy
		out.Mult(qy, qz)
		out.Mult(out, qx)
	}
	return *out
}

func clampGimbal(a float64) float64 {
	if math.Abs(a) > gimbalThreshold {
		if a < 0 {
			return -gimbalThreshold
		}
		return gimbalThreshold
	}
	return a
}

func invCos(a float64) float64 {
	c := math.Cos(a)
	if c != 0 {
		return 1 / c
	}
	return c
}

// translationOf reads the translation column of a world matrix (this
// package's column-vector convention keeps translation in Xw,Yw,Zw).
func translationOf(m lin.M4) lin.V3 { return lin.V3{X: m.Xw, Y: m.Yw, Z: m.Zw} }

// quatOf extracts the rotation part of a world matrix as an M3 source.
func quatOf(m lin.M4) *lin.Q {
	var mm lin.M3
	mm.Xx, mm.Xy, mm.Xz = m.Xx, m.Xy, m.Xz
	mm.Yx, mm.Yy, mm.Yz = m.Yx, m.Yy, m.Yz
	mm.Zx, mm.Zy, mm.Zz = m.Zx, m.Zy, m.Zz
	var q lin.Q
	q.SetM3(&mm)
	return &q
}

func distSqr(a, b lin.V3) float64 {
	var d lin.V3
	d.Sub(&a, &b)
	return d.LenSqr()
}

// transformByInverse rotates v by the inverse (transpose) of rotation
// matrix m, normalizing the result (or returning the zero vector when the
// input is degenerate).
func transformByInverse(m lin.M3, v lin.V3) lin.V3 {
	out := lin.V3{
		X: m.Xx*v.X + m.Yx*v.Y + m.Zx*v.Z,
		Y: m.Xy*v.X + m.Yy*v.Y + m.Zy*v.Z,
		Z: m.Xz*v.X + m.Yz*v.Y + m.Zz*v.Z,
	}
	if out.LenSqr() < 1e-12 {
		return lin.V3{}
	}
	return *out.Unit()
}
