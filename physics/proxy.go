// Copyright © 2013-2015 Galvanized Logic Inc.
// Use is governed by a BSD-style license found in the LICENSE file.

package physics

import "github.com/gazed/mmdrt/math/lin"

// noLinkedBone is the sentinel for ProxyData.LinkedBone, matching
// mmd.NoIndex's role for bone/morph/solver indices.
const noLinkedBone int32 = -1

// ProxyData is one rigid body's bone-linkage metadata: which bone (if
// any) drives or is driven by the body, the offset between the bone's
// space and the body's shape space, and the body's physics mode.
// Grounded on rigidbody_bundle_proxy.rs's RigidBodyProxyData.
type ProxyData struct {
	LinkedBone        int32
	BodyOffset        lin.M4
	BodyOffsetInverse lin.M4
}

// HasLinkedBone reports whether this body participates in bone sync at
// all (rigidbody_bundle_proxy.rs: bodies with no bone are decorative and
// skipped by the bridge entirely).
func (d ProxyData) HasLinkedBone() bool { return d.LinkedBone != noLinkedBone }

// RigidBodyBundleProxy owns the body data and the bone-linkage metadata
// that lets the Physics Bridge translate between bone-space and
// body-space transforms (C11). Grounded on
// rigidbody_bundle_proxy.rs::RigidBodyBundleProxy: get_transform/
// set_transform always compose through the offset matrices, never
// handing out or accepting a bare body-space transform.
type RigidBodyBundleProxy struct {
	bodies []*Body
	data   []ProxyData
}

// NewRigidBodyBundleProxy pairs bodies one-to-one with their proxy data.
// len(bodies) and len(data) must match; construction does not validate
// this (the caller, Model construction, already guarantees it per body
// from metadata).
func NewRigidBodyBundleProxy(bodies []*Body, data []ProxyData) *RigidBodyBundleProxy {
	return &RigidBodyBundleProxy{bodies: bodies, data: data}
}

// Len returns the number of bodies in the bundle.
func (p *RigidBodyBundleProxy) Len() int { return len(p.bodies) }

// Body returns the body at index i.
func (p *RigidBodyBundleProxy) Body(i int) *Body { return p.bodies[i] }

// LinkedBone returns the bone index body i is linked to, or noLinkedBone.
func (p *RigidBodyBundleProxy) LinkedBone(i int) int32 { return p.data[i].LinkedBone }

// HasLinkedBone reports whether body i participates in bone sync.
func (p *RigidBodyBundleProxy) HasLinkedBone(i int) bool { return p.data[i].HasLinkedBone() }

// PhysicsMode returns body i's current physics mode.
func (p *RigidBodyBundleProxy) PhysicsMode(i int) Mode { return p.bodies[i].Mode }

// SetPhysicsMode overwrites body i's physics mode (mutable post-
// construction per SPEC_FULL.md §4.8, exercised by
// Model.SetRigidBodyPhysicsMode).
func (p *RigidBodyBundleProxy) SetPhysicsMode(i int, mode Mode) {
	p.bodies[i].Mode = mode
	p.bodies[i].MotionType = motionTypeFor(mode)
}

// BodyWorldMatrix returns body i's transform composed with its inverse
// offset matrix, converting from the bone-anchored body frame back to
// plain world space. Grounded on RigidBodyBundleProxy::get_transform.
func (p *RigidBodyBundleProxy) BodyWorldMatrix(i int) lin.M4 {
	t := p.bodies[i].Transform()
	return mulM4(transformToM4(t), p.data[i].BodyOffsetInverse)
}

// SetBodyWorldMatrix composes worldMatrix with body i's offset matrix
// and writes the result as the body's transform. Grounded on
// RigidBodyBundleProxy::set_transform.
func (p *RigidBodyBundleProxy) SetBodyWorldMatrix(i int, worldMatrix lin.M4) {
	composed := mulM4(worldMatrix, p.data[i].BodyOffset)
	p.bodies[i].SetTransform(m4ToTransform(composed))
}
