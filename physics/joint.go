// Copyright © 2013-2015 Galvanized Logic Inc.
// Use is governed by a BSD-style license found in the LICENSE file.

package physics

import "github.com/gazed/mmdrt/math/lin"

// JointKind enumerates the constraint types carried by MMD model
// metadata (JointMetadata/JointKind, mmd_model_metadata.rs). The core
// does not solve constraints itself (spec.md §1: the rigid-body engine
// is an external collaborator) so Joint is bookkeeping data the Multi-
// World Dispatcher routes alongside bodies, not a solved constraint.
type JointKind int

const (
	JointSpring6Dof JointKind = iota
	JointSixDof
	JointP2p
	JointConeTwist
	JointSlider
	JointHinge
)

// Joint links two bodies (by RigidBodyBundleProxy index) with a pose and
// optional limits/spring parameters, matching JointMetadata.
type Joint struct {
	Kind JointKind

	BodyA, BodyB int

	Position lin.V3
	Rotation lin.V3 // Euler angles, radians; matches metadata's raw form.

	PositionMin, PositionMax lin.V3
	RotationMin, RotationMax lin.V3

	SpringPosition lin.V3
	SpringRotation lin.V3
}
