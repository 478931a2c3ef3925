// Copyright © 2013-2015 Galvanized Logic Inc.
// Use is governed by a BSD-style license found in the LICENSE file.

// Package physics implements the Rigid-Body Bundle Proxy (C11), the
// Physics Bridge (C10), and the Multi-World Dispatcher (C12): the
// synchronization contract between the bone evaluator and an external
// rigid-body engine. Per spec.md §1, the rigid-body engine's actual
// collision/constraint solving is an external collaborator; this package
// supplies the bridge plus a minimal stand-in integrator so the contract
// is independently testable without that engine (DESIGN.md: "physics
// engine is external" entry).
//
// Grounded on original_source/.../physics/mmd/mod.rs and
// original_source/.../physics/mmd/rigidbody_bundle_proxy.rs, adapted to
// gazed/vu's physics package naming (Shape, Body, World) without vu's
// cgo-bound collision solver, which is the part spec.md places out of
// scope.
package physics

import "github.com/gazed/mmdrt/math/lin"

// ShapeKind identifies a collision primitive's geometry, mirroring
// RigidbodyMetadata's shape_type field (mmd_model_metadata.rs).
type ShapeKind int

const (
	ShapeSphere ShapeKind = iota
	ShapeBox
	ShapeCapsule
	ShapeStaticPlane
)

func (k ShapeKind) String() string {
	switch k {
	case ShapeSphere:
		return "sphere"
	case ShapeBox:
		return "box"
	case ShapeCapsule:
		return "capsule"
	case ShapeStaticPlane:
		return "static_plane"
	default:
		return "unknown"
	}
}

// Shape is a rigid body's collision geometry. Interpretation of Size
// depends on Kind:
//   - ShapeSphere: Size.X is the radius.
//   - ShapeBox: Size is the half-extents.
//   - ShapeCapsule: Size.X is the radius, Size.Y is the half-height.
//   - ShapeStaticPlane: Size is the plane normal, PlaneDistance the
//     offset along that normal.
type Shape struct {
	Kind          ShapeKind
	Size          lin.V3
	PlaneDistance float64
}

// NewSphereShape returns a sphere of the given radius.
func NewSphereShape(radius float64) Shape {
	return Shape{Kind: ShapeSphere, Size: lin.V3{X: radius}}
}

// NewBoxShape returns a box with the given half-extents.
func NewBoxShape(hx, hy, hz float64) Shape {
	return Shape{Kind: ShapeBox, Size: lin.V3{X: hx, Y: hy, Z: hz}}
}

// NewCapsuleShape returns a capsule of the given radius and half-height.
func NewCapsuleShape(radius, halfHeight float64) Shape {
	return Shape{Kind: ShapeCapsule, Size: lin.V3{X: radius, Y: halfHeight}}
}

// NewStaticPlaneShape returns an infinite plane with the given normal and
// distance from the origin along that normal.
func NewStaticPlaneShape(normal lin.V3, distance float64) Shape {
	return Shape{Kind: ShapeStaticPlane, Size: normal, PlaneDistance: distance}
}

// IsZeroVolume reports whether the shape has no physical extent along
// some dimension, grounded on create_shape's is_zero_volume computation
// (physics/mmd/mod.rs): zero-volume shapes get no_contact_response set
// when they're built by a loader.
func (s Shape) IsZeroVolume() bool {
	switch s.Kind {
	case ShapeSphere:
		return s.Size.X == 0
	case ShapeBox:
		return s.Size.X == 0 || s.Size.Y == 0 || s.Size.Z == 0
	case ShapeCapsule:
		return s.Size.X == 0 || s.Size.Y == 0
	case ShapeStaticPlane:
		return s.Size.X == 0 && s.Size.Y == 0 && s.Size.Z == 0
	default:
		return true
	}
}
