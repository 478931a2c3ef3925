// Copyright © 2013-2015 Galvanized Logic Inc.
// Use is governed by a BSD-style license found in the LICENSE file.

package mmd

import (
	"sort"

	"github.com/gazed/mmdrt/math/lin"
)

// sampler.go is the Animation Sampler (C3): per-track keyframe search with
// bezier interpolation, writing sampled values into an AnimationArena.
// Grounded on original_source/.../animation/mmd_runtime_animation.rs and
// vu's animation.go (the same bracket-two-frames-and-interpolate shape,
// generalized to per-channel bezier remap and a temporal-coherence cursor).

// coherenceWindow is the frame-time delta under which the cursor steps
// linearly instead of re-searching (SPEC_FULL.md §4.2: "6 frames").
const coherenceWindow = 6.0

// trackCursor is the per-track temporal-coherence hint. It never affects
// the sampled result (invariant 1, §8): sampling order-independence holds
// because the cursor is only ever used to choose a search strategy, and
// both strategies return the identical upper-bound index for the same t.
type trackCursor struct {
	lastFrameTime  float64
	lastFrameIndex int
	primed         bool
}

// upperBound returns the index of the first frame_numbers entry strictly
// greater than t (an upper_bound search), using the cursor as a starting
// hint when t is close to the last sampled time.
func (c *trackCursor) upperBound(frames []float64, t float64) int {
	n := len(frames)
	if n == 0 {
		return 0
	}
	if c.primed && abs64(t-c.lastFrameTime) < coherenceWindow {
		i := c.lastFrameIndex
		if i > n {
			i = n
		}
		if i < 0 {
			i = 0
		}
		for i > 0 && frames[i-1] > t {
			i--
		}
		for i < n && frames[i] <= t {
			i++
		}
		c.lastFrameTime, c.lastFrameIndex, c.primed = t, i, true
		return i
	}
	i := sort.Search(n, func(k int) bool { return frames[k] > t })
	c.lastFrameTime, c.lastFrameIndex, c.primed = t, i, true
	return i
}

func abs64(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// sampleFraction returns the bracketing lower index and interpolation
// fraction u for upper-bound index i. ok is false when i is at either
// end of the track (the caller should use the boundary value directly,
// with no interpolation).
func sampleFraction(frames []float64, i int, t float64) (lo int, u float64, ok bool) {
	n := len(frames)
	if i <= 0 || i >= n {
		return 0, 0, false
	}
	span := frames[i] - frames[i-1]
	if span <= 0 {
		return i - 1, 0, true
	}
	return i - 1, (t - frames[i-1]) / span, true
}

// IndexMaps binds a RuntimeAnimation's tracks to arena slots. Index i of
// each slice names the arena target for tracks[i] of the matching kind;
// a NoIndex entry means that track is sampled but its result discarded
// (SPEC_FULL.md §6: "missing mappings are silently skipped").
type IndexMaps struct {
	BoneTargets        []int32 // -> bone index, for Animation.BoneTracks
	MovableBoneTargets []int32 // -> bone index, for Animation.MovableBoneTracks
	MorphTargets       []int32 // -> morph index, for Animation.MorphTracks
	PropertyTargets    []int32 // -> ik solver index, for Animation.PropertyTracks
}

// RuntimeAnimation is a sampler binding: an Animation plus the index maps
// needed to write into one model's arena, plus per-track cursor state.
// create_runtime_animation produces one of these; it is destroyed simply
// by dropping the reference (no explicit destroy, see track.go).
type RuntimeAnimation struct {
	anim *Animation
	maps IndexMaps

	boneCursors        []trackCursor
	movableCursors     []trackCursor
	morphCursors       []trackCursor
	propertyCursors    []trackCursor
}

// BindAnimation creates a RuntimeAnimation attaching anim to a model via
// the given index maps (create_runtime_animation).
func BindAnimation(anim *Animation, maps IndexMaps) *RuntimeAnimation {
	return &RuntimeAnimation{
		anim:            anim,
		maps:            maps,
		boneCursors:     make([]trackCursor, len(anim.BoneTracks)),
		movableCursors:  make([]trackCursor, len(anim.MovableBoneTracks)),
		morphCursors:    make([]trackCursor, len(anim.MorphTracks)),
		propertyCursors: make([]trackCursor, len(anim.PropertyTracks)),
	}
}

// Sample advances every track to frame_time t, writing results into arena.
func (r *RuntimeAnimation) Sample(t float64, arena *AnimationArena) {
	for i := range r.anim.BoneTracks {
		target := int32(NoIndex)
		if i < len(r.maps.BoneTargets) {
			target = r.maps.BoneTargets[i]
		}
		rot, ok := sampleRotation(&r.anim.BoneTracks[i], &r.boneCursors[i], t)
		if ok && target != NoIndex {
			arena.SetBoneRotation(target, rot)
		}
	}
	for i := range r.anim.MovableBoneTracks {
		target := int32(NoIndex)
		if i < len(r.maps.MovableBoneTargets) {
			target = r.maps.MovableBoneTargets[i]
		}
		track := &r.anim.MovableBoneTracks[i]
		cursor := &r.movableCursors[i]
		rot, rok := sampleRotation(track, cursor, t)
		pos, pok := samplePosition(track, cursor, t)
		if target == NoIndex {
			continue
		}
		if rok {
			arena.SetBoneRotation(target, rot)
		}
		if pok {
			arena.SetBonePosition(target, pos)
		}
	}
	for i := range r.anim.MorphTracks {
		target := int32(NoIndex)
		if i < len(r.maps.MorphTargets) {
			target = r.maps.MorphTargets[i]
		}
		w, ok := sampleScalar(&r.anim.MorphTracks[i], &r.morphCursors[i], t)
		if ok && target != NoIndex {
			arena.SetMorphWeight(target, w)
		}
	}
	for i := range r.anim.PropertyTracks {
		target := int32(NoIndex)
		if i < len(r.maps.PropertyTargets) {
			target = r.maps.PropertyTargets[i]
		}
		on, ok := sampleStep(&r.anim.PropertyTracks[i], &r.propertyCursors[i], t)
		if ok && target != NoIndex {
			arena.SetIKEnabled(target, on)
		}
	}
}

// sampleRotation returns the spherically-interpolated, bezier-remapped
// rotation for a Bone/MovableBone track at t. ok is false for an empty
// track.
func sampleRotation(track *Track, cursor *trackCursor, t float64) (lin.Q, bool) {
	n := track.len()
	if n == 0 {
		return lin.Q{}, false
	}
	i := cursor.upperBound(track.FrameNumbers, t)
	if i <= 0 {
		return track.Rotations[0], true
	}
	if i >= n {
		return track.Rotations[n-1], true
	}
	lo, u, _ := sampleFraction(track.FrameNumbers, i, t)
	u = evalBezier(track.rotationControlAt(i), u)
	var out lin.Q
	out.Slerp(&track.Rotations[lo], &track.Rotations[i], u)
	return out, true
}

// samplePosition returns the per-axis bezier-remapped linearly
// interpolated position for a MovableBone track at t.
func samplePosition(track *Track, cursor *trackCursor, t float64) (lin.V3, bool) {
	n := track.len()
	if n == 0 {
		return lin.V3{}, false
	}
	i := cursor.upperBound(track.FrameNumbers, t)
	if i <= 0 {
		return track.Positions[0], true
	}
	if i >= n {
		return track.Positions[n-1], true
	}
	lo, u, _ := sampleFraction(track.FrameNumbers, i, t)
	p0, p1 := track.Positions[lo], track.Positions[i]
	ux := evalBezier(track.positionControlAt(i, 0), u)
	uy := evalBezier(track.positionControlAt(i, 1), u)
	uz := evalBezier(track.positionControlAt(i, 2), u)
	return lin.V3{
		X: lin.Lerp(p0.X, p1.X, ux),
		Y: lin.Lerp(p0.Y, p1.Y, uy),
		Z: lin.Lerp(p0.Z, p1.Z, uz),
	}, true
}

// sampleScalar returns the linearly interpolated weight for a Morph
// track at t (no bezier remap, per SPEC_FULL.md §4.2).
func sampleScalar(track *Track, cursor *trackCursor, t float64) (float64, bool) {
	n := track.len()
	if n == 0 {
		return 0, false
	}
	i := cursor.upperBound(track.FrameNumbers, t)
	if i <= 0 {
		return track.Weights[0], true
	}
	if i >= n {
		return track.Weights[n-1], true
	}
	lo, u, _ := sampleFraction(track.FrameNumbers, i, t)
	return lin.Lerp(track.Weights[lo], track.Weights[i], u), true
}

// sampleStep returns the step-function IK-enable value for a Property
// track at t: the value at keyframe i-1 (the last keyframe at or before t).
func sampleStep(track *Track, cursor *trackCursor, t float64) (bool, bool) {
	n := track.len()
	if n == 0 {
		return false, false
	}
	i := cursor.upperBound(track.FrameNumbers, t)
	if i <= 0 {
		return track.IKEnabled[0], true
	}
	return track.IKEnabled[i-1], true
}
