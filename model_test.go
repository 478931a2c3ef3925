// Copyright © 2013-2015 Galvanized Logic Inc.
// Use is governed by a BSD-style license found in the LICENSE file.

package mmd

import (
	"encoding/binary"
	"log/slog"
	"math"
	"os"
	"strings"
	"testing"

	"github.com/gazed/mmdrt/math/lin"
	"github.com/gazed/mmdrt/physics"
)

func appendU32(buf []byte, v uint32) []byte {
	return binary.LittleEndian.AppendUint32(buf, v)
}

func appendF64(buf []byte, v float64) []byte {
	return binary.LittleEndian.AppendUint64(buf, math.Float64bits(v))
}

// TestMain is called by "go test" instead of running the tests individually.
// It is used to setup and teardown state for all tests.
func TestMain(m *testing.M) {

	// configure the default logger to log everything during tests.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	m.Run() // run individual tests
}

func TestNewModelArgs(t *testing.T) {
	if _, _, err := NewModel(nil); err == nil {
		t.Errorf("nil metadata : wanted error")
	}
	if _, _, err := NewModel(&Metadata{}); err == nil {
		t.Errorf("no bones : wanted error")
	}
}

// Bad metadata references are diagnosed and dropped; the model still builds.
func TestNewModelDiagnostics(t *testing.T) {
	meta := &Metadata{
		Bones: []BoneMetadata{
			{Name: "root", ParentBone: 99}, // out of range parent.
			{Name: "appender", ParentBone: NoIndex,
				AppendTransform: &AppendTransformMetadata{TargetBone: 42, Ratio: 1}},
			{Name: "ik", ParentBone: NoIndex,
				Ik: &IkMetadata{TargetBone: 0, Iteration: 4, LimitAngle: 1,
					Links: []IkLinkMetadata{{Bone: 77}}}},
		},
		Morphs: []Morph{
			{Kind: MorphBone, BoneTargets: []BoneMorphTarget{{Bone: 55}}},
		},
		Rigidbodies: []RigidbodyMetadata{
			{Name: "loose", BoneIndex: 66, ShapeType: ShapeTypeSphere, ShapeSize: lin.V3{X: 1}},
		},
	}
	m, diag, err := NewModel(meta, Physics())
	if err != nil {
		t.Fatalf("NewModel : %v", err)
	}
	if len(diag.Entries()) != 5 {
		t.Errorf("diagnostics : wanted 5 entries got %d : %v", len(diag.Entries()), diag.Entries())
	}
	if !diag.HasErrors() {
		t.Errorf("diagnostics : wanted errors")
	}

	// the offending features were disabled, not the model.
	if m.bones[0].ParentBone != NoIndex {
		t.Errorf("bad parent not cleared : %d", m.bones[0].ParentBone)
	}
	if m.bones[1].AppendTransformSolver != NoIndex {
		t.Errorf("bad append target not disabled")
	}
	if m.bones[2].IKSolver != NoIndex {
		t.Errorf("bad ik link not disabled")
	}
	if len(m.morphCtl.morphs[0].BoneTargets) != 0 {
		t.Errorf("bad morph target not dropped")
	}
	m.BeforePhysics(nil) // and it still evaluates.
	m.AfterPhysics()
}

func TestSetters(t *testing.T) {
	meta := ikMeta(10)
	meta.Morphs = []Morph{{Kind: MorphBone}}
	m := buildModel(t, meta)

	m.SetMorphWeight(0, 0.75)
	if got := m.arena.MorphWeight(0); got != 0.75 {
		t.Errorf("morph weight : wanted 0.75 got %f", got)
	}
	m.SetIKEnabled(0, false)
	if m.arena.IKEnabled(0) {
		t.Errorf("ik enable : wanted false")
	}

	// out of range indices are ignored, not panics.
	m.SetMorphWeight(9, 1)
	m.SetIKEnabled(9, true)
}

// Binding an animation and advancing frame time drives the skeleton.
func TestModelAnimation(t *testing.T) {
	m := buildModel(t, twoBoneMeta())
	anim := NewAnimation([]Track{NewBoneTrack(
		[]float64{0, 30},
		[]lin.Q{*lin.NewQI(), *lin.NewQ().SetAa(0, 1, 0, lin.Rad(90))},
		nil, // no easing data: linear.
	)}, nil, nil, nil)
	m.BindAnimation(anim, IndexMaps{BoneTargets: []int32{0}})

	frame := 30.0
	m.BeforePhysics(&frame)
	world := m.WorldMatrix(1)
	if math.Abs(world.Zw+1) > 1e-4 {
		t.Errorf("animated child : wanted z=-1 got (%f,%f,%f)", world.Xw, world.Yw, world.Zw)
	}

	// nil frame time keeps the last sampled pose.
	m.BeforePhysics(nil)
	again := m.WorldMatrix(1)
	if !world.Aeq(&again) {
		t.Errorf("nil frame time resampled : %v vs %v", world, again)
	}
}

func TestBoneWorldMatrices(t *testing.T) {
	m := buildModel(t, twoBoneMeta())
	m.BeforePhysics(nil)
	mats := m.BoneWorldMatrices()
	if len(mats) != 2 {
		t.Fatalf("wanted 2 matrices got %d", len(mats))
	}
	// the child rests at (1,0,0) under an identity root.
	child := *lin.NewM4I()
	child.Xw = 1
	if !mats[0].Aeq(lin.M4I) || !mats[1].Aeq(&child) {
		t.Errorf("rest pose matrices : %v", mats)
	}
}

// A model built without the Physics attribute carries no bridge even when
// the metadata has rigid bodies.
func TestPhysicsDisabled(t *testing.T) {
	meta := twoBoneMeta()
	meta.Rigidbodies = []RigidbodyMetadata{
		{Name: "rb", BoneIndex: 0, ShapeType: ShapeTypeSphere, ShapeSize: lin.V3{X: 1}, PhysicsMode: RigidbodyFollowBone},
	}
	m := buildModel(t, meta)
	if m.RigidBodies() != nil {
		t.Errorf("physics bridge built without Physics()")
	}

	m = buildModel(t, meta, Physics())
	if m.RigidBodies() == nil {
		t.Errorf("physics bridge missing with Physics()")
	}
	if m.RigidBodies().Len() != 1 {
		t.Errorf("wanted 1 body got %d", m.RigidBodies().Len())
	}
}

// A full tick: before-physics drive, dispatcher step, after-physics
// writeback, with the dispatcher built from the model's own attributes.
func TestModelPhysicsTick(t *testing.T) {
	meta := twoBoneMeta()
	meta.Rigidbodies = []RigidbodyMetadata{
		{Name: "rb", BoneIndex: 1, ShapeType: ShapeTypeSphere, ShapeSize: lin.V3{X: 1},
			PhysicsMode: RigidbodyPhysics, Mass: 1},
	}
	m := buildModel(t, meta, Physics(), FixedTimestep(0.1), MaxSubSteps(4))

	d := m.NewDispatcher()
	proxy := m.RigidBodies()
	for i := 0; i < proxy.Len(); i++ {
		d.AddManaged("stage", proxy.Body(i))
	}

	m.BeforePhysics(nil) // teleports the fresh dynamic body to its bone.
	if err := d.Step(0.1); err != nil {
		t.Fatalf("Step : %v", err)
	}
	m.AfterPhysics()

	// gravity pulled the dynamic body, and the bone followed it down.
	world := m.WorldMatrix(1)
	if world.Yw >= 0 {
		t.Errorf("physics bone did not fall : y=%f", world.Yw)
	}
	if math.Abs(world.Xw-1) > 1e-6 {
		t.Errorf("physics bone drifted sideways : x=%f", world.Xw)
	}
}

func TestSetRigidBodyPhysicsMode(t *testing.T) {
	meta := twoBoneMeta()
	meta.Rigidbodies = []RigidbodyMetadata{
		{Name: "rb", BoneIndex: 0, ShapeType: ShapeTypeBox, ShapeSize: lin.V3{X: 1, Y: 1, Z: 1},
			PhysicsMode: RigidbodyFollowBone},
	}
	m := buildModel(t, meta, Physics())
	m.SetRigidBodyPhysicsMode(0, physics.Physics)
	if got := m.RigidBodies().PhysicsMode(0); got != physics.Physics {
		t.Errorf("physics mode : wanted %v got %v", physics.Physics, got)
	}
}

// Joint metadata becomes routable physics joints; bad records are
// diagnosed and skipped.
func TestModelJoints(t *testing.T) {
	meta := twoBoneMeta()
	meta.Rigidbodies = []RigidbodyMetadata{
		{Name: "a", BoneIndex: 0, ShapeType: ShapeTypeSphere, ShapeSize: lin.V3{X: 1}, PhysicsMode: RigidbodyPhysics, Mass: 1},
		{Name: "b", BoneIndex: 1, ShapeType: ShapeTypeSphere, ShapeSize: lin.V3{X: 1}, PhysicsMode: RigidbodyPhysics, Mass: 1},
	}
	meta.Joints = []JointMetadata{
		{Name: "good", Kind: physics.JointSpring6Dof, BodyA: 0, BodyB: 1},
		{Name: "bad-kind", Kind: physics.JointKind(99), BodyA: 0, BodyB: 1},
		{Name: "bad-body", Kind: physics.JointHinge, BodyA: 0, BodyB: 7},
	}
	m, diag, err := NewModel(meta, Physics())
	if err != nil {
		t.Fatalf("NewModel : %v", err)
	}
	if len(m.Joints()) != 1 {
		t.Fatalf("joints : wanted 1 got %d", len(m.Joints()))
	}
	if len(diag.Entries()) != 2 {
		t.Errorf("joint diagnostics : wanted 2 got %v", diag.Entries())
	}

	d := m.NewDispatcher()
	d.AddConstraint("stage", m.Joints()[0])
	if !d.HasWorld("stage") {
		t.Errorf("joint not routed")
	}
}

func TestLoadMetadataYAML(t *testing.T) {
	doc := `
bones:
  - name: root
    parent_bone: -1
    transform_order: 0
  - name: arm
    rest_position: {x: 1, y: 2, z: 3}
    parent_bone: 0
    flags: 512 # axis limit
    axis_limit: {x: 0, y: 1, z: 0}
morphs:
  - kind: 0
    bone_targets:
      - bone: 1
        position: {x: 0.5}
rigidbodies:
  - name: rb
    bone_index: 0
    shape_type: 0
    shape_size: {x: 1}
    physics_mode: 1
    mass: 2
joints:
  - name: j
    kind: 0
    body_a: 0
    body_b: 0
`
	meta, err := LoadMetadata(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("LoadMetadata : %v", err)
	}
	if len(meta.Bones) != 2 || len(meta.Morphs) != 1 || len(meta.Rigidbodies) != 1 || len(meta.Joints) != 1 {
		t.Fatalf("decoded counts : %d bones %d morphs %d bodies %d joints",
			len(meta.Bones), len(meta.Morphs), len(meta.Rigidbodies), len(meta.Joints))
	}
	if meta.Bones[1].RestPosition != (lin.V3{X: 1, Y: 2, Z: 3}) {
		t.Errorf("rest position : got %v", meta.Bones[1].RestPosition)
	}
	if meta.Bones[1].Flags&BoneHasAxisLimit == 0 {
		t.Errorf("axis limit flag not decoded")
	}
	if meta.Rigidbodies[0].PhysicsMode != RigidbodyPhysics {
		t.Errorf("physics mode : got %v", meta.Rigidbodies[0].PhysicsMode)
	}

	// the decoded metadata builds and runs.
	m := buildModel(t, meta, Physics())
	m.BeforePhysics(nil)
	m.AfterPhysics()
}

func TestLoadMetadataBadYAML(t *testing.T) {
	if _, err := LoadMetadata(strings.NewReader(": not yaml")); err == nil {
		t.Errorf("bad yaml : wanted error")
	}
}

func TestDecodeMetadata(t *testing.T) {
	// one bone: rest (1,2,3), no parent, order 0, no flags.
	buf := make([]byte, 0, 64)
	buf = appendU32(buf, 1)
	for _, f := range []float64{1, 2, 3} {
		buf = appendF64(buf, f)
	}
	buf = appendU32(buf, 0xffffffff) // parent -1
	buf = appendU32(buf, 0)          // transform order
	buf = appendU32(buf, 0)          // flags

	meta, diag := DecodeMetadata(buf)
	if len(diag.Entries()) != 0 {
		t.Fatalf("diagnostics : %v", diag.Entries())
	}
	if len(meta.Bones) != 1 || meta.Bones[0].RestPosition != (lin.V3{X: 1, Y: 2, Z: 3}) {
		t.Fatalf("decoded bones : %v", meta.Bones)
	}
	if meta.Bones[0].ParentBone != NoIndex {
		t.Errorf("parent : wanted -1 got %d", meta.Bones[0].ParentBone)
	}

	// a truncated buffer diagnoses and returns what it could decode.
	_, diag = DecodeMetadata(buf[:10])
	if len(diag.Entries()) == 0 {
		t.Errorf("truncated buffer : wanted a diagnostic")
	}
}
