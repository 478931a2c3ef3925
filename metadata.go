// Copyright © 2013-2015 Galvanized Logic Inc.
// Use is governed by a BSD-style license found in the LICENSE file.

package mmd

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"gopkg.in/yaml.v3"

	"github.com/gazed/mmdrt/math/lin"
	"github.com/gazed/mmdrt/physics"
)

// metadata.go is the construction-time Metadata loader: it produces the
// Metadata value NewModel consumes, either from a human-editable YAML
// document or from a minimal binary encoding. Grounded on
// original_source/.../mmd_model_metadata.rs for the field set; byte-for-
// byte parsing of the real MMD/PMX formats is explicitly out of scope
// (spec.md §1), so the binary loader here is this module's own compact
// encoding, not a PMX reader.

// BoneFlag bits mirror mmd_model_metadata.rs's BoneFlag bitset.
type BoneFlag uint32

const (
	BoneUseBoneIndexAsTailPosition BoneFlag = 1 << iota
	BoneIsRotatable
	BoneIsMovable
	BoneIsVisible
	BoneIsControllable
	BoneIsIkEnabled
	BoneLocalAppendTransform
	BoneHasAppendRotate
	BoneHasAppendMove
	BoneHasAxisLimit
	BoneHasLocalVector
	BoneTransformAfterPhysics
	BoneIsExternalParentTransformed
)

// AppendTransformMetadata is the construction-time form of append.go's
// AppendTransformSolver, before TargetBone has been validated.
type AppendTransformMetadata struct {
	IsLocal        bool    `yaml:"is_local"`
	AffectRotation bool    `yaml:"affect_rotation"`
	AffectPosition bool    `yaml:"affect_position"`
	Ratio          float64 `yaml:"ratio"`
	TargetBone     int32   `yaml:"target_bone"`
}

// IkLinkMetadata is one chain link of IkMetadata, before validation.
type IkLinkMetadata struct {
	Bone          int32   `yaml:"bone"`
	HasAngleLimit bool    `yaml:"has_angle_limit"`
	MinAngle      lin.V3  `yaml:"min_angle"`
	MaxAngle      lin.V3  `yaml:"max_angle"`
}

// IkMetadata is the construction-time form of an IK solver attached to a
// bone (the bone carrying this metadata is the IkSolver's IkBone).
type IkMetadata struct {
	TargetBone int32            `yaml:"target_bone"`
	Iteration  int              `yaml:"iteration"`
	LimitAngle float64          `yaml:"limit_angle"`
	Links      []IkLinkMetadata `yaml:"links"`
}

// BoneMetadata is one bone's construction-time record.
type BoneMetadata struct {
	Name              string                    `yaml:"name"`
	RestPosition      lin.V3                    `yaml:"rest_position"`
	InverseBindMatrix lin.M4                    `yaml:"-"`
	ParentBone        int32                     `yaml:"parent_bone"`
	TransformOrder    int32                     `yaml:"transform_order"`
	Flags             BoneFlag                  `yaml:"flags"`
	AxisLimit         lin.V3                    `yaml:"axis_limit"`
	AppendTransform   *AppendTransformMetadata  `yaml:"append_transform"`
	Ik                *IkMetadata               `yaml:"ik"`
	RigidbodyIndices  []int32                   `yaml:"rigidbody_indices"`
}

// RigidbodyShapeType mirrors mmd_model_metadata.rs's RigidbodyShapeType,
// with StaticPlane added per physics/mmd/mod.rs (the original metadata
// type only lists the first three; the physics runtime it feeds supports
// a fourth).
type RigidbodyShapeType int

const (
	ShapeTypeSphere RigidbodyShapeType = iota
	ShapeTypeBox
	ShapeTypeCapsule
	ShapeTypeStaticPlane
)

func (t RigidbodyShapeType) String() string {
	switch t {
	case ShapeTypeSphere:
		return "sphere"
	case ShapeTypeBox:
		return "box"
	case ShapeTypeCapsule:
		return "capsule"
	case ShapeTypeStaticPlane:
		return "static_plane"
	default:
		return "unknown"
	}
}

// RigidbodyPhysicsMode mirrors mmd_model_metadata.rs's RigidbodyPhysicsMode,
// with Static added the same way the runtime's physics.Mode does.
type RigidbodyPhysicsMode int

const (
	RigidbodyFollowBone RigidbodyPhysicsMode = iota
	RigidbodyPhysics
	RigidbodyPhysicsWithBone
	RigidbodyStatic
)

func (m RigidbodyPhysicsMode) String() string {
	switch m {
	case RigidbodyFollowBone:
		return "follow_bone"
	case RigidbodyPhysics:
		return "physics"
	case RigidbodyPhysicsWithBone:
		return "physics_with_bone"
	case RigidbodyStatic:
		return "static"
	default:
		return "unknown"
	}
}

// RigidbodyMetadata is one rigid body's construction-time record.
type RigidbodyMetadata struct {
	Name           string               `yaml:"name"`
	BoneIndex      int32                `yaml:"bone_index"`
	ShapeType      RigidbodyShapeType   `yaml:"shape_type"`
	ShapeSize      lin.V3               `yaml:"shape_size"`
	Position       lin.V3               `yaml:"position"`
	Rotation       lin.V3               `yaml:"rotation"`
	Mass           float64              `yaml:"mass"`
	LinearDamping  float64              `yaml:"linear_damping"`
	AngularDamping float64              `yaml:"angular_damping"`
	Friction       float64              `yaml:"friction"`
	Restitution    float64              `yaml:"restitution"`
	PhysicsMode    RigidbodyPhysicsMode `yaml:"physics_mode"`
}

// JointMetadata is one constraint's construction-time record. Kind reuses
// physics.JointKind directly rather than a parallel metadata-side enum,
// since the two are otherwise identical.
type JointMetadata struct {
	Name string            `yaml:"name"`
	Kind physics.JointKind `yaml:"kind"`

	BodyA int32 `yaml:"body_a"`
	BodyB int32 `yaml:"body_b"`

	Position lin.V3 `yaml:"position"`
	Rotation lin.V3 `yaml:"rotation"`

	PositionMin lin.V3 `yaml:"position_min"`
	PositionMax lin.V3 `yaml:"position_max"`
	RotationMin lin.V3 `yaml:"rotation_min"`
	RotationMax lin.V3 `yaml:"rotation_max"`

	SpringPosition lin.V3 `yaml:"spring_position"`
	SpringRotation lin.V3 `yaml:"spring_rotation"`
}

// Metadata is the fully decoded, construction-time description of a
// model, consumed by NewModel. Morphs reuses morph.go's Morph type
// directly: a construction-time Morph and a runtime Morph are structurally
// identical (only MorphController.active is genuinely per-tick state, and
// that lives outside Morph itself).
type Metadata struct {
	Bones       []BoneMetadata      `yaml:"bones"`
	Morphs      []Morph             `yaml:"morphs"`
	Rigidbodies []RigidbodyMetadata `yaml:"rigidbodies"`
	Joints      []JointMetadata     `yaml:"joints"`
}

// yamlMetadata shadows Metadata for decoding: Morph carries no yaml tags
// of its own (it is also the runtime type morph.go uses directly), so its
// fields are re-declared here with tags and copied into a Morph after decode.
type yamlMetadata struct {
	Bones []BoneMetadata `yaml:"bones"`
	Morphs []struct {
		Kind          MorphKind         `yaml:"kind"`
		BoneTargets   []BoneMorphTarget `yaml:"bone_targets"`
		GroupChildren []GroupMorphChild `yaml:"group_children"`
	} `yaml:"morphs"`
	Rigidbodies []RigidbodyMetadata `yaml:"rigidbodies"`
	Joints      []JointMetadata     `yaml:"joints"`
}

// LoadMetadata decodes a YAML-encoded model description. YAML is the
// human-editable alternative to DecodeMetadata's binary form.
// TestLoadMetadataYAML decodes an inline document this way; the other test
// fixtures are Go literals.
func LoadMetadata(r io.Reader) (*Metadata, error) {
	var doc yamlMetadata
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("mmd: LoadMetadata: %w", err)
	}

	meta := &Metadata{
		Bones:       doc.Bones,
		Rigidbodies: doc.Rigidbodies,
		Joints:      doc.Joints,
	}
	for i := range meta.Bones {
		// InverseBindMatrix is not a YAML field (fixture files describe a
		// bind pose, not a precomputed inverse); an identity default keeps
		// rigid-body offset construction well-defined for fixtures that
		// never set one explicitly.
		meta.Bones[i].InverseBindMatrix = *lin.NewM4I()
	}
	meta.Morphs = make([]Morph, len(doc.Morphs))
	for i, m := range doc.Morphs {
		for j := range m.BoneTargets {
			// a target with no rotation key decodes to the zero quaternion,
			// which is degenerate under slerp; it means "no rotation".
			if m.BoneTargets[j].Rotation == (lin.Q{}) {
				m.BoneTargets[j].Rotation = *lin.NewQI()
			}
		}
		meta.Morphs[i] = Morph{Kind: m.Kind, BoneTargets: m.BoneTargets, GroupChildren: m.GroupChildren}
	}
	return meta, nil
}

// DecodeMetadata reads this module's own compact binary encoding of a
// Metadata value: a bone count and fixed-size bone records (rest position,
// parent, transform order, flags; append/ik/morph/rigidbody/joint blocks
// are left empty in this minimal form). It exists to satisfy the external
// interface's binary-loading path (SPEC_FULL.md §6); decoding the real
// MMD/PMX byte layout is out of scope, so callers with real MMD assets are
// expected to convert through an external collaborator into this format or
// into YAML.
func DecodeMetadata(buf []byte) (*Metadata, *Diagnostic) {
	diag := NewDiagnostic()
	r := &byteReader{buf: buf}

	boneCount, ok := r.u32()
	if !ok {
		diag.Error("metadata buffer truncated reading bone count")
		return &Metadata{}, diag
	}

	meta := &Metadata{Bones: make([]BoneMetadata, 0, boneCount)}
	for i := uint32(0); i < boneCount; i++ {
		rest, ok1 := r.v3()
		parent, ok2 := r.i32()
		order, ok3 := r.i32()
		flags, ok4 := r.u32()
		if !ok1 || !ok2 || !ok3 || !ok4 {
			diag.Error("metadata buffer truncated at bone %d, stopping bone block decode", i)
			break
		}
		meta.Bones = append(meta.Bones, BoneMetadata{
			RestPosition:      rest,
			InverseBindMatrix: *lin.NewM4I(),
			ParentBone:        parent,
			TransformOrder:    order,
			Flags:             BoneFlag(flags),
		})
	}
	return meta, diag
}

// byteReader is a minimal little-endian cursor over a decode buffer.
type byteReader struct {
	buf []byte
	pos int
}

func (r *byteReader) u32() (uint32, bool) {
	if r.pos+4 > len(r.buf) {
		return 0, false
	}
	v := binary.LittleEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, true
}

func (r *byteReader) i32() (int32, bool) {
	v, ok := r.u32()
	return int32(v), ok
}

func (r *byteReader) f64() (float64, bool) {
	if r.pos+8 > len(r.buf) {
		return 0, false
	}
	bits := binary.LittleEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return math.Float64frombits(bits), true
}

func (r *byteReader) v3() (lin.V3, bool) {
	x, ok1 := r.f64()
	y, ok2 := r.f64()
	z, ok3 := r.f64()
	return lin.V3{X: x, Y: y, Z: z}, ok1 && ok2 && ok3
}
