// Copyright © 2013-2015 Galvanized Logic Inc.
// Use is governed by a BSD-style license found in the LICENSE file.

package physics

import (
	"math"

	"github.com/gazed/mmdrt/math/lin"
)

// Mode is a rigid body's relationship to its linked bone, matching
// RigidbodyPhysicsMode (mmd_model_metadata.rs).
type Mode int

const (
	FollowBone      Mode = iota // kinematic: driven entirely by the bone.
	Physics                     // dynamic: drives the bone entirely.
	PhysicsWithBone             // dynamic, but the bone's translation wins.
	Static                      // immovable; neither drives nor is driven.
)

func (m Mode) String() string {
	switch m {
	case FollowBone:
		return "follow_bone"
	case Physics:
		return "physics"
	case PhysicsWithBone:
		return "physics_with_bone"
	case Static:
		return "static"
	default:
		return "unknown"
	}
}

// MotionType is the engine-facing classification derived from Mode
// (physics/mmd/mod.rs create_rb_info): FollowBone bodies are Kinematic,
// Physics/PhysicsWithBone are Dynamic, Static is Static.
type MotionType int

const (
	MotionStatic MotionType = iota
	MotionKinematic
	MotionDynamic
)

// motionTypeFor derives the engine motion type for a physics mode.
func motionTypeFor(mode Mode) MotionType {
	switch mode {
	case FollowBone:
		return MotionKinematic
	case Static:
		return MotionStatic
	default:
		return MotionDynamic
	}
}

// Body is one rigid body tracked by a World. Bodies with MotionType
// MotionDynamic are integrated each Step; Kinematic and Static bodies are
// moved only by explicit SetTransform calls (the Physics Bridge's
// pre-step kinematic drive).
type Body struct {
	Shape       Shape
	Mode        Mode
	MotionType  MotionType
	Mass        float64
	LinearDamp  float64
	AngularDamp float64
	Friction    float64
	Restitution float64

	state       *MotionState
	linVelocity [3]float64
	angVelocity [3]float64
}

// NewBody returns a body of the given mode at the given initial
// transform. Mass 0 bodies never fall under gravity, matching a
// Static/FollowBone construction from metadata with no mass set.
func NewBody(shape Shape, mode Mode, transform Transform) *Body {
	return &Body{
		Shape:      shape,
		Mode:       mode,
		MotionType: motionTypeFor(mode),
		state:      NewMotionState(transform),
	}
}

// Transform returns the body's current world transform.
func (b *Body) Transform() Transform { return b.state.Transform() }

// SetTransform overwrites the body's world transform (kinematic drive,
// or a temporal-kinematic teleport) and clears velocity, matching a
// teleported body having no carried momentum.
func (b *Body) SetTransform(t Transform) {
	b.state.SetTransform(t)
	b.linVelocity = [3]float64{}
	b.angVelocity = [3]float64{}
}

// integrate advances a dynamic body by dt under the given gravity,
// applying damping and writing the result through the shadow motion
// state (the worker-side write of the double-buffer contract). The
// rotation update is the same exponential-map step vu/math/lin's
// T.Integrate uses, since the real collision/constraint solver behind
// this bridge is out of scope (spec.md §1) and a minimal stand-in only
// needs to move dynamic bodies plausibly.
func (b *Body) integrate(dt float64, gx, gy, gz float64) {
	if b.MotionType != MotionDynamic || b.Mass <= 0 {
		return
	}
	b.linVelocity[0] = (b.linVelocity[0] + gx*dt) * (1 - b.LinearDamp*dt)
	b.linVelocity[1] = (b.linVelocity[1] + gy*dt) * (1 - b.LinearDamp*dt)
	b.linVelocity[2] = (b.linVelocity[2] + gz*dt) * (1 - b.LinearDamp*dt)
	b.angVelocity[0] *= 1 - b.AngularDamp*dt
	b.angVelocity[1] *= 1 - b.AngularDamp*dt
	b.angVelocity[2] *= 1 - b.AngularDamp*dt

	prev := b.state.ShadowTransform()
	next := prev
	next.Position.X = prev.Position.X + b.linVelocity[0]*dt
	next.Position.Y = prev.Position.Y + b.linVelocity[1]*dt
	next.Position.Z = prev.Position.Z + b.linVelocity[2]*dt
	next.Rotation = integrateRotation(prev.Rotation, b.angVelocity, dt)
	b.state.SetShadowTransform(next)
}

// integrateRotation advances rotation by angular velocity (ax,ay,az) over
// dt using the exponential-map small-angle update, matching
// lin.T.Integrate's rotation step.
func integrateRotation(rotation lin.Q, angVel [3]float64, dt float64) lin.Q {
	angLen := math.Sqrt(angVel[0]*angVel[0] + angVel[1]*angVel[1] + angVel[2]*angVel[2])
	var fac float64
	if angLen < 0.001 {
		fac = 0.5*dt - dt*dt*dt*0.020833333333*angLen*angLen
	} else {
		fac = math.Sin(0.5*angLen*dt) / angLen
	}
	sx, sy, sz, sw := angVel[0]*fac, angVel[1]*fac, angVel[2]*fac, math.Cos(angLen*dt*0.5)
	rx, ry, rz, rw := rotation.X, rotation.Y, rotation.Z, rotation.W
	out := lin.Q{
		X: rw*sx + rx*sw - ry*sz + rz*sy,
		Y: rw*sy + rx*sz + ry*sw - rz*sx,
		Z: rw*sz - rx*sy + ry*sx + rz*sw,
		W: rw*sw - rx*sx - ry*sy - rz*sz,
	}
	return *out.Unit()
}
