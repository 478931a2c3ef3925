// Copyright © 2013-2015 Galvanized Logic Inc.
// Use is governed by a BSD-style license found in the LICENSE file.

package physics

import (
	"sync"

	"github.com/gazed/mmdrt/math/lin"
)

// BoneSource is the bone evaluator side of the Physics Bridge (C10): the
// bridge reads a bone's current model-space world matrix to drive
// kinematic bodies, and writes back the matrix physics produced so the
// bone evaluator can treat it like any other bone transform on the next
// pass. mmd.Model satisfies this directly; the physics package never
// imports mmd so the dependency only runs one way.
type BoneSource interface {
	WorldMatrix(boneIndex int32) lin.M4
	SetBoneWorldMatrix(boneIndex int32, worldMatrix lin.M4)
}

// ModelContext is one model's placement in the physics world plus the
// per-body "needs a first-init teleport" flag, both buffered so the
// evaluator thread can publish a new placement (e.g. the model was
// moved by the application) without racing a concurrent Step. Grounded
// on original_source/.../physics_model_context.rs.
type ModelContext struct {
	mu sync.Mutex

	worldMatrix        lin.M4
	worldMatrixInverse lin.M4
	pendingWorldMatrix *lin.M4

	needInit        []bool
	pendingNeedInit []bool
}

// NewModelContext returns a context for a model with bodyCount rigid
// bodies, all of them flagged to need first-init teleporting (a freshly
// constructed model has never been stepped).
func NewModelContext(bodyCount int) *ModelContext {
	needInit := make([]bool, bodyCount)
	pending := make([]bool, bodyCount)
	for i := range needInit {
		needInit[i] = true
		pending[i] = true
	}
	return &ModelContext{
		worldMatrix:        *lin.NewM4I(),
		worldMatrixInverse: *lin.NewM4I(),
		needInit:           needInit,
		pendingNeedInit:    pending,
	}
}

// SetWorldMatrix buffers a new model-to-world placement; it takes effect
// on the next ApplyWorldMatrix (the start of PreStep), never mid-step.
func (c *ModelContext) SetWorldMatrix(m lin.M4) {
	c.mu.Lock()
	defer c.mu.Unlock()
	mm := m
	c.pendingWorldMatrix = &mm
}

// ApplyWorldMatrix flushes a pending SetWorldMatrix into the active
// matrix and recomputes its inverse, falling back to identity if the
// placement is degenerate (spec.md §7's runtime-error policy: never
// abort, substitute identity and continue).
func (c *ModelContext) ApplyWorldMatrix() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pendingWorldMatrix == nil {
		return
	}
	c.worldMatrix = *c.pendingWorldMatrix
	c.pendingWorldMatrix = nil
	c.worldMatrixInverse = invertRigid(c.worldMatrix)
}

// WorldMatrix returns the model's active world placement.
func (c *ModelContext) WorldMatrix() lin.M4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.worldMatrix
}

// WorldMatrixInverse returns the inverse of the active world placement.
func (c *ModelContext) WorldMatrixInverse() lin.M4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.worldMatrixInverse
}

// MarkNeedInit flags body i for a first-init teleport on the next
// PreStep, e.g. because its physics mode just switched to Physics.
func (c *ModelContext) MarkNeedInit(i int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pendingNeedInit[i] = true
}

// FlushNeedInit copies pending need-init flags into the active set,
// called once at the start of PreStep.
func (c *ModelContext) FlushNeedInit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	copy(c.needInit, c.pendingNeedInit)
	for i := range c.pendingNeedInit {
		c.pendingNeedInit[i] = false
	}
}

func (c *ModelContext) needsInit(i int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.needInit[i]
}

func (c *ModelContext) clearNeedInit(i int) {
	c.mu.Lock()
	c.needInit[i] = false
	c.mu.Unlock()
}

// Bridge is the Physics Bridge (C10): it drives a model's rigid bodies
// from its bones before a physics step and writes the result back after
// one, through a RigidBodyBundleProxy. Grounded on
// original_source/.../physics/mmd/mod.rs's step_simulation.
type Bridge struct {
	proxy *RigidBodyBundleProxy
	ctx   *ModelContext
}

// NewBridge returns a bridge over proxy, with a fresh ModelContext sized
// to the proxy's body count.
func NewBridge(proxy *RigidBodyBundleProxy) *Bridge {
	return &Bridge{proxy: proxy, ctx: NewModelContext(proxy.Len())}
}

// Context returns the bridge's model placement/need-init state, so the
// owning Model can call SetWorldMatrix or MarkNeedInit on it.
func (br *Bridge) Context() *ModelContext { return br.ctx }

// PreStep drives every bone-linked body from its bone's current world
// matrix: FollowBone bodies are kinematically driven every call;
// Physics/PhysicsWithBone bodies are teleported once, on the call after
// they were flagged for first-init, and left to gravity/integration
// afterward. Bodies with no linked bone and Static bodies are untouched.
func (br *Bridge) PreStep(bones BoneSource) {
	br.ctx.ApplyWorldMatrix()
	br.ctx.FlushNeedInit()
	worldMatrix := br.ctx.WorldMatrix()

	for i := 0; i < br.proxy.Len(); i++ {
		if !br.proxy.HasLinkedBone(i) {
			continue
		}
		bone := br.proxy.LinkedBone(i)
		switch mode := br.proxy.PhysicsMode(i); {
		case mode == FollowBone:
			br.proxy.SetBodyWorldMatrix(i, mulM4(worldMatrix, bones.WorldMatrix(bone)))
		case (mode == Physics || mode == PhysicsWithBone) && br.ctx.needsInit(i):
			br.proxy.SetBodyWorldMatrix(i, mulM4(worldMatrix, bones.WorldMatrix(bone)))
			br.ctx.clearNeedInit(i)
		}
	}
}

// PostStep writes each dynamic body's resulting world matrix back to its
// linked bone, converting from world space into the model's local space
// through the context's inverse placement. PhysicsWithBone bones keep
// their own translation and take only the physics rotation, matching
// "physics drives orientation, the animation keeps driving position".
func (br *Bridge) PostStep(bones BoneSource) {
	worldMatrixInverse := br.ctx.WorldMatrixInverse()

	for i := 0; i < br.proxy.Len(); i++ {
		if !br.proxy.HasLinkedBone(i) {
			continue
		}
		mode := br.proxy.PhysicsMode(i)
		if mode != Physics && mode != PhysicsWithBone {
			continue
		}
		bone := br.proxy.LinkedBone(i)
		local := mulM4(worldMatrixInverse, br.proxy.BodyWorldMatrix(i))
		if mode == PhysicsWithBone {
			prev := bones.WorldMatrix(bone)
			local.Xw, local.Yw, local.Zw = prev.Xw, prev.Yw, prev.Zw
		}
		bones.SetBoneWorldMatrix(bone, local)
	}
}
