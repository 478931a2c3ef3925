// Copyright © 2013-2015 Galvanized Logic Inc.
// Use is governed by a BSD-style license found in the LICENSE file.

package mmd

import (
	"errors"
	"sort"

	"github.com/gazed/mmdrt/math/lin"
	"github.com/gazed/mmdrt/physics"
)

// model.go is the Model Orchestrator (C9): owns every per-model arena and
// drives the before-physics/after-physics passes. Grounded on
// original_source/.../mmd_model/mod.rs.

// Model is one built MMD character: its bone hierarchy, solver arenas, and
// (if enabled) its rigid-body bundle. A Model is built once from Metadata
// by NewModel and is not safe for concurrent use across goroutines (§5:
// bone evaluation is strictly single-threaded).
type Model struct {
	bones  []Bone
	states []boneState
	arena  *AnimationArena

	appendSolvers []AppendTransformSolver
	ikSolvers     []IkSolver
	morphCtl      *MorphController

	sortedRuntimeBones []int32
	boneStack          []int32

	runtimeAnimation *RuntimeAnimation

	config Config

	bridge *physics.Bridge
	proxy  *physics.RigidBodyBundleProxy
	joints []*physics.Joint
}

// NewModel builds a Model from metadata, applying any construction
// attributes. It returns a Diagnostic recording every metadata problem
// found (bad indices, unsupported shape/mode/joint kinds); construction
// still completes and the offending record is dropped or disabled. err is
// non-nil only for calling-convention misuse (nil metadata, no bones) —
// never for a metadata content problem, matching spec.md §7's "a model
// that fails to build partially is still usable".
func NewModel(meta *Metadata, attrs ...Attr) (*Model, *Diagnostic, error) {
	if meta == nil {
		return nil, nil, errors.New("mmd: NewModel: metadata is nil")
	}
	if len(meta.Bones) == 0 {
		return nil, nil, errors.New("mmd: NewModel: metadata has no bones")
	}

	config := configDefaults
	for _, attr := range attrs {
		attr(&config)
	}

	diag := NewDiagnostic()
	m := &Model{config: config}

	m.buildBones(meta, diag)
	m.sortedRuntimeBones = sortedByTransformOrder(m.bones)
	m.boneStack = make([]int32, 0, boneStackCapacity(m.bones))

	morphs := buildMorphs(meta.Morphs, len(m.bones), diag)
	m.morphCtl = NewMorphController(morphs)

	bodies, proxyData := m.buildRigidBodies(meta.Rigidbodies, diag)
	for i := range m.ikSolvers {
		m.ikSolvers[i].InitializeSkipFlag(func(bone int32) bool {
			return boneHasDynamicRigidbody(bone, bodies, proxyData)
		})
	}

	restPositions := make([]lin.V3, len(m.bones))
	for i := range m.bones {
		restPositions[i] = m.bones[i].RestPosition
	}
	m.arena = NewAnimationArena(restPositions, len(m.ikSolvers), len(morphs))
	m.states = make([]boneState, len(m.bones))

	if config.physicsEnabled && len(bodies) > 0 {
		m.proxy = physics.NewRigidBodyBundleProxy(bodies, proxyData)
		m.bridge = physics.NewBridge(m.proxy)
		m.joints = buildJoints(meta.Joints, len(bodies), diag)
	}

	return m, diag, nil
}

// buildBones converts metadata bones into runtime Bone/AppendTransformSolver/
// IkSolver records, validating every cross-reference and recording a
// diagnostic entry (instead of failing) for anything out of range.
func (m *Model) buildBones(meta *Metadata, diag *Diagnostic) {
	n := len(meta.Bones)
	m.bones = make([]Bone, n)

	for i, bm := range meta.Bones {
		parent := bm.ParentBone
		if parent != NoIndex && (parent < 0 || int(parent) >= n) {
			diag.Error("bone %d: parent_bone %d out of range, treating as root", i, parent)
			parent = NoIndex
		}

		b := Bone{
			RestPosition:          bm.RestPosition,
			InverseBindMatrix:     bm.InverseBindMatrix,
			ParentBone:            parent,
			TransformOrder:        bm.TransformOrder,
			TransformAfterPhysics: bm.Flags&BoneTransformAfterPhysics != 0,
			AppendTransformSolver: NoIndex,
			IKSolver:              NoIndex,
			RigidbodyIndices:      bm.RigidbodyIndices,
		}

		if bm.Flags&BoneHasAxisLimit != 0 {
			axis := bm.AxisLimit
			b.AxisLimit = &axis
		}

		if bm.AppendTransform != nil {
			at := bm.AppendTransform
			target := at.TargetBone
			if target < 0 || int(target) >= n {
				diag.Error("bone %d: append transform target %d out of range, disabling", i, target)
			} else {
				b.AppendTransformSolver = int32(len(m.appendSolvers))
				m.appendSolvers = append(m.appendSolvers, AppendTransformSolver{
					IsLocal:        at.IsLocal,
					AffectRotation: at.AffectRotation,
					AffectPosition: at.AffectPosition,
					Ratio:          at.Ratio,
					TargetBone:     target,
				})
			}
		}

		m.bones[i] = b
	}

	for i := range m.bones {
		if p := m.bones[i].ParentBone; p != NoIndex {
			m.bones[p].ChildBones = append(m.bones[p].ChildBones, int32(i))
		}
	}

	for i, bm := range meta.Bones {
		if bm.Ik == nil {
			continue
		}
		ik := bm.Ik
		if ik.TargetBone < 0 || int(ik.TargetBone) >= n {
			diag.Error("bone %d: ik target_bone %d out of range, disabling ik solver", i, ik.TargetBone)
			continue
		}
		solver := NewIkSolver(int32(i), ik.TargetBone, ik.Iteration, ik.LimitAngle)
		valid := true
		for _, link := range ik.Links {
			if link.Bone < 0 || int(link.Bone) >= n {
				diag.Error("bone %d: ik chain link %d out of range, disabling ik solver", i, link.Bone)
				valid = false
				break
			}
			solver.AddChain(NewIkChain(link.Bone, link.HasAngleLimit, link.MinAngle, link.MaxAngle))
		}
		if !valid {
			continue
		}
		solverIndex := int32(len(m.ikSolvers))
		m.ikSolvers = append(m.ikSolvers, *solver)
		m.bones[i].IKSolver = solverIndex
		for _, link := range ik.Links {
			m.bones[link.Bone].HasIKChainInfo = true
		}
	}
}

// sortedByTransformOrder returns bone indices stable-sorted ascending by
// TransformOrder (invariant: "sorted_runtime_bones is stable-sorted
// ascending by transform_order").
func sortedByTransformOrder(bones []Bone) []int32 {
	order := make([]int32, len(bones))
	for i := range order {
		order[i] = int32(i)
	}
	sort.SliceStable(order, func(a, b int) bool {
		return bones[order[a]].TransformOrder < bones[order[b]].TransformOrder
	})
	return order
}

// boneStackCapacity returns the skeleton's maximum root-to-leaf depth, the
// upper bound updateWorldMatrixRecursive's explicit work stack is
// pre-sized to (SPEC_FULL.md §9: "no general recursive traversal at
// runtime").
func boneStackCapacity(bones []Bone) int {
	type frame struct {
		bone  int32
		depth int
	}
	var stack []frame
	for i := range bones {
		if bones[i].ParentBone == NoIndex {
			stack = append(stack, frame{int32(i), 1})
		}
	}
	max := 0
	for len(stack) > 0 {
		n := len(stack) - 1
		f := stack[n]
		stack = stack[:n]
		if f.depth > max {
			max = f.depth
		}
		for _, c := range bones[f.bone].ChildBones {
			stack = append(stack, frame{c, f.depth + 1})
		}
	}
	if max == 0 {
		max = 1
	}
	return max
}

// buildMorphs validates bone-morph target indices against the bone count,
// dropping out-of-range targets with a diagnostic rather than the whole
// morph.
func buildMorphs(metaMorphs []Morph, boneCount int, diag *Diagnostic) []Morph {
	morphs := make([]Morph, len(metaMorphs))
	for i, src := range metaMorphs {
		morphs[i] = src
		if src.Kind != MorphBone {
			continue
		}
		targets := make([]BoneMorphTarget, 0, len(src.BoneTargets))
		for _, t := range src.BoneTargets {
			if t.Bone < 0 || int(t.Bone) >= boneCount {
				diag.Error("morph %d: bone target %d out of range, dropping", i, t.Bone)
				continue
			}
			targets = append(targets, t)
		}
		morphs[i].BoneTargets = targets
	}
	return morphs
}

// buildRigidBodies converts rigid-body metadata into physics bodies and
// their proxy linkage data. Grounded on
// original_source/.../physics/mmd/mod.rs::create_rb_info (the offset
// matrix is the bone's inverse bind matrix composed with the body's own
// rest pose) and rigidbody_bundle_proxy.rs.
func (m *Model) buildRigidBodies(metas []RigidbodyMetadata, diag *Diagnostic) ([]*physics.Body, []physics.ProxyData) {
	bodies := make([]*physics.Body, 0, len(metas))
	data := make([]physics.ProxyData, 0, len(metas))

	for i, rb := range metas {
		shape, ok := rigidbodyShape(rb)
		if !ok {
			diag.Error("rigidbody %d: unsupported shape type %v, skipping", i, rb.ShapeType)
			continue
		}

		mode, ok := rigidbodyMode(rb.PhysicsMode)
		if !ok {
			diag.Error("rigidbody %d: unsupported physics mode %v, treating as Static", i, rb.PhysicsMode)
			mode = physics.Static
		}

		linkedBone := rb.BoneIndex
		if linkedBone != NoIndex && (linkedBone < 0 || int(linkedBone) >= len(m.bones)) {
			diag.Error("rigidbody %d: bone index %d out of range, detaching from any bone", i, linkedBone)
			linkedBone = NoIndex
		}

		poseRotation := eulerYXZ(rb.Rotation)
		pose := localMatrix(poseRotation, rb.Position, lin.V3{X: 1, Y: 1, Z: 1})

		offset := *lin.NewM4I()
		if linkedBone != NoIndex {
			// a bone whose InverseBindMatrix was never set (the zero matrix)
			// gets the identity default LoadMetadata and DecodeMetadata give.
			ibm := m.bones[linkedBone].InverseBindMatrix
			if ibm == (lin.M4{}) {
				ibm = *lin.NewM4I()
			}
			offset = mulM4Local(ibm, pose)
		} else {
			offset = pose
		}

		body := physics.NewBody(shape, mode, physics.Transform{Position: rb.Position, Rotation: poseRotation})
		body.Mass = rb.Mass
		body.LinearDamp = rb.LinearDamping
		body.AngularDamp = rb.AngularDamping
		body.Friction = rb.Friction
		body.Restitution = rb.Restitution

		bodies = append(bodies, body)
		data = append(data, physics.ProxyData{
			LinkedBone:        linkedBone,
			BodyOffset:        offset,
			BodyOffsetInverse: rigidInverseM4(offset),
		})
	}
	return bodies, data
}

// buildJoints converts constraint metadata into physics joints, skipping
// any record with an unsupported kind or an out-of-range body index with a
// diagnostic rather than failing the load.
func buildJoints(metas []JointMetadata, bodyCount int, diag *Diagnostic) []*physics.Joint {
	joints := make([]*physics.Joint, 0, len(metas))
	for i, jm := range metas {
		if jm.Kind < physics.JointSpring6Dof || jm.Kind > physics.JointHinge {
			diag.Error("joint %d: unsupported joint kind %d, skipping", i, jm.Kind)
			continue
		}
		if jm.BodyA < 0 || int(jm.BodyA) >= bodyCount || jm.BodyB < 0 || int(jm.BodyB) >= bodyCount {
			diag.Error("joint %d: body index out of range (%d, %d), skipping", i, jm.BodyA, jm.BodyB)
			continue
		}
		joints = append(joints, &physics.Joint{
			Kind:           jm.Kind,
			BodyA:          int(jm.BodyA),
			BodyB:          int(jm.BodyB),
			Position:       jm.Position,
			Rotation:       jm.Rotation,
			PositionMin:    jm.PositionMin,
			PositionMax:    jm.PositionMax,
			RotationMin:    jm.RotationMin,
			RotationMax:    jm.RotationMax,
			SpringPosition: jm.SpringPosition,
			SpringRotation: jm.SpringRotation,
		})
	}
	return joints
}

func rigidbodyShape(rb RigidbodyMetadata) (physics.Shape, bool) {
	switch rb.ShapeType {
	case ShapeTypeSphere:
		return physics.NewSphereShape(rb.ShapeSize.X), true
	case ShapeTypeBox:
		return physics.NewBoxShape(rb.ShapeSize.X, rb.ShapeSize.Y, rb.ShapeSize.Z), true
	case ShapeTypeCapsule:
		return physics.NewCapsuleShape(rb.ShapeSize.X, rb.ShapeSize.Y), true
	case ShapeTypeStaticPlane:
		return physics.NewStaticPlaneShape(lin.V3{X: 0, Y: 1, Z: 0}, rb.ShapeSize.X), true
	default:
		return physics.Shape{}, false
	}
}

func rigidbodyMode(mode RigidbodyPhysicsMode) (physics.Mode, bool) {
	switch mode {
	case RigidbodyFollowBone:
		return physics.FollowBone, true
	case RigidbodyPhysics:
		return physics.Physics, true
	case RigidbodyPhysicsWithBone:
		return physics.PhysicsWithBone, true
	case RigidbodyStatic:
		return physics.Static, true
	default:
		return physics.Static, false
	}
}

// boneHasDynamicRigidbody reports whether any rigid body linked to bone is
// in Physics or PhysicsWithBone mode, feeding IkSolver.InitializeSkipFlag.
func boneHasDynamicRigidbody(bone int32, bodies []*physics.Body, data []physics.ProxyData) bool {
	for i := range data {
		if data[i].LinkedBone != bone {
			continue
		}
		if bodies[i].Mode == physics.Physics || bodies[i].Mode == physics.PhysicsWithBone {
			return true
		}
	}
	return false
}

// eulerYXZ builds a rotation quaternion from Euler angles (radians) in
// MMD's YXZ order (z applied first, then x, then y), the convention every
// rigid body and joint pose in the metadata uses.
func eulerYXZ(v lin.V3) lin.Q {
	qx, qy, qz := lin.NewQ(), lin.NewQ(), lin.NewQ()
	qx.SetAa(1, 0, 0, v.X)
	qy.SetAa(0, 1, 0, v.Y)
	qz.SetAa(0, 0, 1, v.Z)
	out := lin.NewQ()
	out.Mult(qz, qx)
	out.Mult(out, qy)
	return *out
}

// mulM4Local multiplies two world matrices, duplicating physics'
// unexported mulM4 so model.go does not need an exported cross-package
// matrix-multiply surface for one call site.
func mulM4Local(l, r lin.M4) lin.M4 {
	var out lin.M4
	out.Mult(&l, &r)
	return out
}

// rigidInverseM4 inverts a rotation+translation matrix, falling back to
// identity when the rotation block is degenerate (spec.md §7: "degenerate
// world matrices fall back to identity"). Mirrors physics/matrix.go's
// invertRigid; kept local since offset-matrix construction happens here,
// before any physics.Body exists to delegate to.
func rigidInverseM4(m lin.M4) lin.M4 {
	var rot, inv lin.M3
	rot.Xx, rot.Xy, rot.Xz = m.Xx, m.Xy, m.Xz
	rot.Yx, rot.Yy, rot.Yz = m.Yx, m.Yy, m.Yz
	rot.Zx, rot.Zy, rot.Zz = m.Zx, m.Zy, m.Zz
	if rot.Det() == 0 {
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

// BindAnimation attaches anim to this model via maps (create_runtime_animation).
func (m *Model) BindAnimation(anim *Animation, maps IndexMaps) *RuntimeAnimation {
	m.runtimeAnimation = BindAnimation(anim, maps)
	return m.runtimeAnimation
}

// BeforePhysics advances the sampler (if frameTime is non-nil and an
// animation is bound), resolves morphs, and runs the before-physics bone
// pass, then (if physics is enabled) drives bone-linked rigid bodies from
// the resulting world matrices. Grounded on mmd_model/mod.rs::before_physics.
func (m *Model) BeforePhysics(frameTime *float64) {
	if frameTime != nil && m.runtimeAnimation != nil {
		m.runtimeAnimation.Sample(*frameTime, m.arena)
	}
	m.arena.NormalizeRotations()
	m.updateMorphs()

	identity := *lin.NewM4I()
	for i := range m.states {
		m.states[i].worldMatrix = identity
		m.states[i].ikChain.reset()
	}
	for i := range m.appendSolvers {
		m.appendSolvers[i].reset()
	}

	m.update(false)

	if m.bridge != nil {
		m.bridge.PreStep(m)
	}
}

// AfterPhysics reads dynamic rigid-body poses back into their linked bones
// (if physics is enabled), then runs the after-physics bone pass. Grounded
// on mmd_model/mod.rs::after_physics.
func (m *Model) AfterPhysics() {
	if m.bridge != nil {
		m.bridge.PostStep(m)
	}
	m.update(true)
}

// update runs one Bone Evaluator pass over sorted_runtime_bones, touching
// only bones whose TransformAfterPhysics matches stage. Grounded on
// mmd_model/mod.rs::update: one filtered scan, run twice by the two
// exported passes above, never two separate bone lists.
func (m *Model) update(afterPhysicsStage bool) {
	usePhysics := m.bridge != nil
	for _, bi := range m.sortedRuntimeBones {
		if m.bones[bi].TransformAfterPhysics != afterPhysicsStage {
			continue
		}
		m.updateWorldMatrix(bi, usePhysics, true)
	}
}

// BoneWorldMatrices returns a copy of every bone's current world matrix, in
// bone index order (read_bone_world_matrices). The slice is not a view into
// the model: later passes do not update it.
func (m *Model) BoneWorldMatrices() []lin.M4 {
	out := make([]lin.M4, len(m.states))
	for i := range m.states {
		out[i] = m.states[i].worldMatrix
	}
	return out
}

// SetBoneWorldMatrix overwrites bone i's world matrix directly, the
// physics.BoneSource write-back the Physics Bridge uses in PostStep.
func (m *Model) SetBoneWorldMatrix(i int32, worldMatrix lin.M4) { m.states[i].worldMatrix = worldMatrix }

// SetIKEnabled writes the iksolver_state_arena cell for ikIndex
// (set_ik_enabled).
func (m *Model) SetIKEnabled(ikIndex int, enabled bool) { m.arena.SetIKEnabled(int32(ikIndex), enabled) }

// SetMorphWeight writes the morph_arena cell for morphIndex
// (set_morph_weight).
func (m *Model) SetMorphWeight(morphIndex int, weight float64) {
	m.arena.SetMorphWeight(int32(morphIndex), weight)
}

// SetRigidBodyPhysicsMode overwrites rigid body bodyIndex's physics mode
// (rigidbody_bundle_proxy.rs::set_physics_mode). Switching a body into
// Physics or PhysicsWithBone flags it for a one-shot kinematic teleport on
// the next BeforePhysics, the same treatment a freshly constructed body
// gets (spec.md §4.8: "newly initialized").
func (m *Model) SetRigidBodyPhysicsMode(bodyIndex int, mode physics.Mode) {
	if m.proxy == nil {
		return
	}
	m.proxy.SetPhysicsMode(bodyIndex, mode)
	if mode == physics.Physics || mode == physics.PhysicsWithBone {
		m.bridge.Context().MarkNeedInit(bodyIndex)
	}
}

// NewDispatcher builds a Multi-World Dispatcher configured from this
// model's construction attributes (FixedTimestep, MaxSubSteps,
// ParallelWorlds). The dispatcher is per runtime instance, not per
// model: a host creates one and routes every model's bodies through it.
func (m *Model) NewDispatcher() *physics.Dispatcher {
	return physics.NewDispatcher(m.config.fixedTimestep, m.config.maxSubSteps, m.config.parallelWorlds)
}

// RigidBodies returns the model's rigid-body bundle proxy, or nil if
// physics was not enabled at construction (Physics() attribute) or the
// metadata carried no rigid bodies. A host registers these bodies into a
// physics.World (via a physics.Dispatcher) to actually step them.
func (m *Model) RigidBodies() *physics.RigidBodyBundleProxy { return m.proxy }

// Joints returns the model's constraints, or nil when physics is disabled.
// Like rigid bodies they are routed into a physics.World through a
// physics.Dispatcher; the core only carries them (spec.md §1: constraint
// solving belongs to the external engine).
func (m *Model) Joints() []*physics.Joint { return m.joints }
