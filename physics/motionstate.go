// Copyright © 2013-2015 Galvanized Logic Inc.
// Use is governed by a BSD-style license found in the LICENSE file.

package physics

import (
	"sync"

	"github.com/gazed/mmdrt/math/lin"
)

// Transform is a rigid body's position and orientation. It is the
// physics-package equivalent of lin.T, using plain value fields instead
// of lin.T's pointer fields so MotionState can copy it by value without
// two states ending up aliasing the same underlying vector/quaternion.
type Transform struct {
	Position lin.V3
	Rotation lin.Q
}

// IdentityTransform is the origin with no rotation.
func IdentityTransform() Transform { return Transform{Rotation: *lin.NewQI()} }

// MotionState is the per-body transform storage the physics engine reads
// and writes, double-buffered so the foreground evaluator and an optional
// worker goroutine never race (spec.md §5, §8.4 "Motion state"). Grounded
// on original_source/.../physics/bullet/bind/motion_state.rs.
//
// The evaluator writes Primary every tick (kinematic drive); a worker
// stepping the body reads Shadow, writes Shadow back after the step, and
// the evaluator reads Shadow once Flip is called. A single-threaded
// runtime may call Flip immediately after SyncBuffered and never touch
// the worker-facing methods at all (spec.md §9: "single-threaded runtime
// may elide the buffer entirely").
type MotionState struct {
	mu      sync.Mutex
	primary Transform
	shadow  Transform
}

// NewMotionState returns a motion state initialized to transform t.
func NewMotionState(t Transform) *MotionState {
	return &MotionState{primary: t, shadow: t}
}

// Transform returns the foreground-visible transform.
func (s *MotionState) Transform() Transform {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.primary
}

// SetTransform writes the foreground-visible transform (the evaluator's
// kinematic drive write, pre-step).
func (s *MotionState) SetTransform(t Transform) {
	s.mu.Lock()
	s.primary = t
	s.mu.Unlock()
}

// SyncBuffered copies Primary into Shadow, the "single atomic flip plus a
// sync_buffered_motion_state memcpy" step spec.md §5 requires immediately
// before a step begins, so the worker's read of Shadow reflects every
// kinematic write the evaluator made this tick.
func (s *MotionState) SyncBuffered() {
	s.mu.Lock()
	s.shadow = s.primary
	s.mu.Unlock()
}

// ShadowTransform returns the worker-visible transform.
func (s *MotionState) ShadowTransform() Transform {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shadow
}

// SetShadowTransform is the worker's write after stepping a dynamic body.
func (s *MotionState) SetShadowTransform(t Transform) {
	s.mu.Lock()
	s.shadow = t
	s.mu.Unlock()
}

// Flip publishes Shadow as the new Primary, handing the worker's result
// back to the foreground evaluator.
func (s *MotionState) Flip() {
	s.mu.Lock()
	s.primary = s.shadow
	s.mu.Unlock()
}
