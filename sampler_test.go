// Copyright © 2013-2015 Galvanized Logic Inc.
// Use is governed by a BSD-style license found in the LICENSE file.

package mmd

import (
	"math"
	"testing"

	"github.com/gazed/mmdrt/math/lin"
)

func linearControls(n int) []BezierControl {
	cs := make([]BezierControl, n)
	for i := range cs {
		cs[i] = linearControl
	}
	return cs
}

func linearAxisControls(n int) [3][]BezierControl {
	return [3][]BezierControl{linearControls(n), linearControls(n), linearControls(n)}
}

// newTestAnimation is a two-bone, one-morph, one-property animation used
// by the sampler tests: bone 0 rotates 0..90 degrees about Y over frames
// 0..30, bone 1 moves from the origin to (2,4,6) over the same range.
func newTestAnimation() *Animation {
	rot := NewBoneTrack(
		[]float64{0, 30},
		[]lin.Q{*lin.NewQI(), *lin.NewQ().SetAa(0, 1, 0, lin.Rad(90))},
		linearControls(2),
	)
	move := NewMovableBoneTrack(
		[]float64{0, 30},
		[]lin.V3{{}, {X: 2, Y: 4, Z: 6}},
		[]lin.Q{*lin.NewQI(), *lin.NewQI()},
		linearControls(2),
		linearAxisControls(2),
	)
	morph := NewMorphTrack([]float64{0, 10, 20}, []float64{0, 1, 0.5})
	prop := NewPropertyTrack([]float64{0, 15}, []bool{true, false})
	return NewAnimation([]Track{rot}, []Track{move}, []Track{morph}, []Track{prop})
}

func newTestRuntime() (*RuntimeAnimation, *AnimationArena) {
	anim := newTestAnimation()
	runtime := BindAnimation(anim, IndexMaps{
		BoneTargets:        []int32{0},
		MovableBoneTargets: []int32{1},
		MorphTargets:       []int32{0},
		PropertyTargets:    []int32{0},
	})
	arena := NewAnimationArena([]lin.V3{{}, {}}, 1, 1)
	return runtime, arena
}

func TestSampleAtKeyframe(t *testing.T) {
	runtime, arena := newTestRuntime()
	runtime.Sample(30, arena)

	want := lin.NewQ().SetAa(0, 1, 0, lin.Rad(90))
	if got := arena.BoneRotation(0); !got.Aeq(want) {
		t.Errorf("rotation at keyframe : wanted %v got %v", *want, got)
	}
	if got := arena.BonePosition(1); !got.Aeq(&lin.V3{X: 2, Y: 4, Z: 6}) {
		t.Errorf("position at keyframe : got %v", got)
	}
}

// Sampling exactly on an interior keyframe must return the stored value.
func TestSampleInteriorKeyframe(t *testing.T) {
	runtime, arena := newTestRuntime()
	runtime.Sample(10, arena)
	if got := arena.MorphWeight(0); math.Abs(got-1) > 1e-4 {
		t.Errorf("morph at keyframe 10 : wanted 1 got %f", got)
	}
}

func TestSampleBeforeFirstAndAfterLast(t *testing.T) {
	runtime, arena := newTestRuntime()
	runtime.Sample(-5, arena)
	if got := arena.BoneRotation(0); !got.Aeq(lin.QI) {
		t.Errorf("rotation before first keyframe : got %v", got)
	}
	runtime.Sample(100, arena)
	want := lin.NewQ().SetAa(0, 1, 0, lin.Rad(90))
	if got := arena.BoneRotation(0); !got.Aeq(want) {
		t.Errorf("rotation after last keyframe : got %v", got)
	}
	if got := arena.MorphWeight(0); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("morph after last keyframe : wanted 0.5 got %f", got)
	}
}

func TestSampleInterpolates(t *testing.T) {
	runtime, arena := newTestRuntime()
	runtime.Sample(15, arena)

	want := lin.NewQ().SetAa(0, 1, 0, lin.Rad(45))
	got := arena.BoneRotation(0)
	if math.Abs(got.X-want.X) > 1e-4 || math.Abs(got.Y-want.Y) > 1e-4 ||
		math.Abs(got.Z-want.Z) > 1e-4 || math.Abs(got.W-want.W) > 1e-4 {
		t.Errorf("rotation midway : wanted %v got %v", *want, got)
	}
	pos := arena.BonePosition(1)
	if math.Abs(pos.X-1) > 1e-4 || math.Abs(pos.Y-2) > 1e-4 || math.Abs(pos.Z-3) > 1e-4 {
		t.Errorf("position midway : got %v", pos)
	}
	if math.Abs(arena.MorphWeight(0)-0.75) > 1e-9 {
		t.Errorf("morph midway : wanted 0.75 got %f", arena.MorphWeight(0))
	}
}

// The property track is a step function: the value holds until the next
// keyframe, it never interpolates.
func TestSampleStepTrack(t *testing.T) {
	runtime, arena := newTestRuntime()
	runtime.Sample(14, arena)
	if !arena.IKEnabled(0) {
		t.Errorf("ik enable before step : wanted true")
	}
	runtime.Sample(15, arena)
	if arena.IKEnabled(0) {
		t.Errorf("ik enable at step : wanted false")
	}
}

// The cursor is a hint, never state: sampling times in any order must
// produce identical arena contents for the same time (spec property 1).
func TestSampleOrderIndependent(t *testing.T) {
	forward, fa := newTestRuntime()
	backward, ba := newTestRuntime()

	times := []float64{0, 3, 5, 8, 12, 14.5, 21, 29, 30}
	for _, tm := range times {
		forward.Sample(tm, fa)
	}
	for i := len(times) - 1; i >= 0; i-- {
		backward.Sample(times[i], ba)
	}
	// both end at times[0] == 0 in the backward pass; resample forward at 0.
	forward.Sample(0, fa)

	if got, want := fa.BoneRotation(0), ba.BoneRotation(0); !got.Aeq(&want) {
		t.Errorf("rotation depends on sampling order : %v vs %v", got, want)
	}
	if got, want := fa.BonePosition(1), ba.BonePosition(1); !got.Aeq(&want) {
		t.Errorf("position depends on sampling order : %v vs %v", got, want)
	}
	if fa.MorphWeight(0) != ba.MorphWeight(0) {
		t.Errorf("morph depends on sampling order : %f vs %f", fa.MorphWeight(0), ba.MorphWeight(0))
	}
}

// Small steps inside the coherence window must agree with a fresh binary
// search from a cold cursor.
func TestSampleCursorCoherence(t *testing.T) {
	warm, wa := newTestRuntime()
	for tm := 0.0; tm <= 30; tm += 0.5 {
		warm.Sample(tm, wa)

		cold, ca := newTestRuntime()
		cold.Sample(tm, ca)

		if got, want := wa.BoneRotation(0), ca.BoneRotation(0); !got.Aeq(&want) {
			t.Errorf("cursor drift at %f : %v vs %v", tm, got, want)
		}
	}
}

// Tracks mapped to NoIndex are sampled but write nothing; empty tracks
// contribute nothing.
func TestSampleUnmappedAndEmpty(t *testing.T) {
	anim := newTestAnimation()
	runtime := BindAnimation(anim, IndexMaps{
		BoneTargets: []int32{NoIndex},
	})
	arena := NewAnimationArena([]lin.V3{{}, {}}, 1, 1)
	runtime.Sample(30, arena)
	if got := arena.BoneRotation(0); !got.Aeq(lin.QI) {
		t.Errorf("unmapped track wrote the arena : %v", got)
	}

	empty := NewAnimation([]Track{NewBoneTrack(nil, nil, nil)}, nil, nil, nil)
	runtime = BindAnimation(empty, IndexMaps{BoneTargets: []int32{0}})
	runtime.Sample(10, arena)
	if got := arena.BoneRotation(0); !got.Aeq(lin.QI) {
		t.Errorf("empty track wrote the arena : %v", got)
	}
}
