// Copyright © 2013-2015 Galvanized Logic Inc.
// Use is governed by a BSD-style license found in the LICENSE file.

package physics

import (
	"math"
	"testing"

	"github.com/gazed/mmdrt/math/lin"
)

// stubBones is a minimal BoneSource for bridge tests.
type stubBones struct {
	matrices []lin.M4
}

func newStubBones(n int) *stubBones {
	s := &stubBones{matrices: make([]lin.M4, n)}
	for i := range s.matrices {
		s.matrices[i] = *lin.NewM4I()
	}
	return s
}

func (s *stubBones) WorldMatrix(i int32) lin.M4              { return s.matrices[i] }
func (s *stubBones) SetBoneWorldMatrix(i int32, m lin.M4)    { s.matrices[i] = m }

func translationM4(x, y, z float64) lin.M4 {
	m := *lin.NewM4I()
	m.Xw, m.Yw, m.Zw = x, y, z
	return m
}

func newBridge(mode Mode) (*Bridge, *RigidBodyBundleProxy, *Body) {
	body := NewBody(NewSphereShape(1), mode, IdentityTransform())
	body.Mass = 1
	proxy := NewRigidBodyBundleProxy(
		[]*Body{body},
		[]ProxyData{{LinkedBone: 0, BodyOffset: *lin.NewM4I(), BodyOffsetInverse: *lin.NewM4I()}},
	)
	return NewBridge(proxy), proxy, body
}

// FollowBone bodies are kinematically driven from their bone every
// pre-step.
func TestBridgePreStepFollowBone(t *testing.T) {
	br, _, body := newBridge(FollowBone)
	bones := newStubBones(1)
	bones.matrices[0] = translationM4(1, 2, 3)

	br.PreStep(bones)
	pos := body.Transform().Position
	if pos.X != 1 || pos.Y != 2 || pos.Z != 3 {
		t.Errorf("kinematic drive : body at (%f,%f,%f)", pos.X, pos.Y, pos.Z)
	}

	// the drive repeats every pre-step.
	bones.matrices[0] = translationM4(4, 0, 0)
	br.PreStep(bones)
	if pos := body.Transform().Position; pos.X != 4 {
		t.Errorf("kinematic drive not repeated : x=%f", pos.X)
	}
}

// Dynamic bodies teleport to their bone exactly once, on the first
// pre-step after construction.
func TestBridgePreStepNeedInit(t *testing.T) {
	br, _, body := newBridge(Physics)
	bones := newStubBones(1)
	bones.matrices[0] = translationM4(5, 0, 0)

	br.PreStep(bones)
	if pos := body.Transform().Position; pos.X != 5 {
		t.Errorf("first-init teleport missing : x=%f", pos.X)
	}

	// later pre-steps leave the dynamic body to the engine.
	bones.matrices[0] = translationM4(9, 9, 9)
	br.PreStep(bones)
	if pos := body.Transform().Position; pos.X != 5 {
		t.Errorf("dynamic body still driven : x=%f", pos.X)
	}

	// a fresh MarkNeedInit rearms the teleport.
	br.Context().MarkNeedInit(0)
	br.PreStep(bones)
	if pos := body.Transform().Position; pos.X != 9 {
		t.Errorf("rearmed teleport missing : x=%f", pos.X)
	}
}

// Physics bodies write their pose back into the bone after a step.
func TestBridgePostStepPhysics(t *testing.T) {
	br, _, body := newBridge(Physics)
	bones := newStubBones(1)

	body.SetTransform(Transform{Position: lin.V3{X: 2, Y: -1}, Rotation: *lin.NewQI()})
	br.PostStep(bones)

	got := bones.matrices[0]
	if got.Xw != 2 || got.Yw != -1 {
		t.Errorf("post-step writeback : bone at (%f,%f,%f)", got.Xw, got.Yw, got.Zw)
	}
}

// PhysicsWithBone keeps the bone's own translation and takes only the
// body's rotation.
func TestBridgePostStepPhysicsWithBone(t *testing.T) {
	br, _, body := newBridge(PhysicsWithBone)
	bones := newStubBones(1)
	bones.matrices[0] = translationM4(7, 8, 9)

	rot := *lin.NewQ().SetAa(0, 1, 0, lin.Rad(90))
	body.SetTransform(Transform{Position: lin.V3{X: 2}, Rotation: rot})
	br.PostStep(bones)

	got := bones.matrices[0]
	if got.Xw != 7 || got.Yw != 8 || got.Zw != 9 {
		t.Errorf("bone translation lost : (%f,%f,%f)", got.Xw, got.Yw, got.Zw)
	}
	want := lin.NewM4().SetQ(&rot)
	if math.Abs(got.Xx-want.Xx) > 1e-6 || math.Abs(got.Xz-want.Xz) > 1e-6 {
		t.Errorf("body rotation missing : Xx=%f Xz=%f", got.Xx, got.Xz)
	}
}

// FollowBone and unlinked bodies are ignored by the post-step.
func TestBridgePostStepSkips(t *testing.T) {
	br, _, body := newBridge(FollowBone)
	bones := newStubBones(1)
	body.SetTransform(Transform{Position: lin.V3{X: 5}, Rotation: *lin.NewQI()})

	br.PostStep(bones)
	if !bones.matrices[0].Aeq(lin.M4I) {
		t.Errorf("follow-bone body wrote back : %v", bones.matrices[0])
	}
}

// The model placement maps between bone space and world space in both
// directions.
func TestBridgeModelPlacement(t *testing.T) {
	br, _, body := newBridge(FollowBone)
	bones := newStubBones(1)
	bones.matrices[0] = translationM4(1, 0, 0)

	br.Context().SetWorldMatrix(translationM4(10, 0, 0))
	br.PreStep(bones)
	if pos := body.Transform().Position; pos.X != 11 {
		t.Errorf("placement not applied : x=%f", pos.X)
	}
}

// The offset matrix places the body away from its bone; the inverse
// brings the body pose back into bone space on the way out.
func TestProxyOffsets(t *testing.T) {
	body := NewBody(NewCapsuleShape(0.5, 1), Physics, IdentityTransform())
	offset := translationM4(0, 2, 0)
	inverse := translationM4(0, -2, 0)
	proxy := NewRigidBodyBundleProxy(
		[]*Body{body},
		[]ProxyData{{LinkedBone: 0, BodyOffset: offset, BodyOffsetInverse: inverse}},
	)

	proxy.SetBodyWorldMatrix(0, translationM4(3, 0, 0))
	if pos := body.Transform().Position; pos.X != 3 || pos.Y != 2 {
		t.Errorf("offset not applied : (%f,%f,%f)", pos.X, pos.Y, pos.Z)
	}
	back := proxy.BodyWorldMatrix(0)
	if back.Xw != 3 || back.Yw != 0 {
		t.Errorf("inverse offset not applied : (%f,%f,%f)", back.Xw, back.Yw, back.Zw)
	}
}

func TestMotionStateBuffering(t *testing.T) {
	s := NewMotionState(IdentityTransform())
	s.SetTransform(Transform{Position: lin.V3{X: 1}, Rotation: *lin.NewQI()})

	// the worker sees nothing until the buffered sync.
	if got := s.ShadowTransform(); got.Position.X != 0 {
		t.Errorf("shadow updated before sync : %f", got.Position.X)
	}
	s.SyncBuffered()
	if got := s.ShadowTransform(); got.Position.X != 1 {
		t.Errorf("sync missed : %f", got.Position.X)
	}

	// the worker's result reaches the foreground only after the flip.
	s.SetShadowTransform(Transform{Position: lin.V3{X: 2}, Rotation: *lin.NewQI()})
	if got := s.Transform(); got.Position.X != 1 {
		t.Errorf("primary updated before flip : %f", got.Position.X)
	}
	s.Flip()
	if got := s.Transform(); got.Position.X != 2 {
		t.Errorf("flip missed : %f", got.Position.X)
	}
}
