// Copyright © 2013-2015 Galvanized Logic Inc.
// Use is governed by a BSD-style license found in the LICENSE file.

package mmd

import "github.com/gazed/mmdrt/math/lin"

// track.go is the Animation Track Store (C1): immutable keyframe arrays for
// one animated channel. Tracks are owned by an Animation and are safe to
// share across any number of models bound to that Animation, the same
// cache-by-reference contract vu's animation asset uses.

// NoIndex is the sentinel for "absent" across every index field in this
// module: bone parents, append/IK solver links, morph targets.
const NoIndex int32 = -1

// BezierControl is one keyframe's cubic-bezier easing control tuple,
// normalized to [0,1]x[0,1]. MMD stores these as bytes in 0..127; decoding
// (metadata.go) rescales to this range.
type BezierControl struct {
	X1, Y1 float64
	X2, Y2 float64
}

// linearControl is the identity easing curve: y == x for all x.
var linearControl = BezierControl{X1: 0.5, Y1: 0.5, X2: 0.5, Y2: 0.5}

// TrackKind distinguishes the four Animation Track variants of the data model.
type TrackKind int

const (
	TrackBone         TrackKind = iota // rotation only
	TrackMovableBone                   // position + rotation
	TrackMorph                         // scalar weight
	TrackProperty                      // IK enable, one bool per keyframe
)

// Track holds one channel's keyframes. Which fields are populated depends
// on Kind; unused fields for a given Kind are left nil.
type Track struct {
	Kind TrackKind

	// FrameNumbers is strictly ascending. Frame units are whatever the
	// host uses for frame_time (see SPEC_FULL.md §9 open-question
	// resolution in DESIGN.md): MMD frames, not seconds.
	FrameNumbers []float64

	Rotations []lin.Q // TrackBone, TrackMovableBone
	Positions []lin.V3 // TrackMovableBone

	// RotationControls is one bezier tuple per keyframe, applied to the
	// rotation channel. PositionControls holds one tuple per keyframe
	// per axis (index 0=X,1=Y,2=Z), matching MMD's asymmetric per-axis
	// interpolators.
	RotationControls []BezierControl
	PositionControls [3][]BezierControl

	Weights []float64 // TrackMorph

	IKEnabled []bool // TrackProperty
}

// NewBoneTrack builds a rotation-only track.
func NewBoneTrack(frames []float64, rotations []lin.Q, controls []BezierControl) Track {
	return Track{Kind: TrackBone, FrameNumbers: frames, Rotations: rotations, RotationControls: controls}
}

// NewMovableBoneTrack builds a position+rotation track.
func NewMovableBoneTrack(frames []float64, positions []lin.V3, rotations []lin.Q,
	rotControls []BezierControl, posControls [3][]BezierControl) Track {
	return Track{
		Kind: TrackMovableBone, FrameNumbers: frames,
		Positions: positions, Rotations: rotations,
		RotationControls: rotControls, PositionControls: posControls,
	}
}

// NewMorphTrack builds a scalar weight track.
func NewMorphTrack(frames []float64, weights []float64) Track {
	return Track{Kind: TrackMorph, FrameNumbers: frames, Weights: weights}
}

// NewPropertyTrack builds an IK-enable step track.
func NewPropertyTrack(frames []float64, enabled []bool) Track {
	return Track{Kind: TrackProperty, FrameNumbers: frames, IKEnabled: enabled}
}

// len returns the number of keyframes in the track.
func (t *Track) len() int { return len(t.FrameNumbers) }

// rotationControlAt returns the bezier control for keyframe i, defaulting
// to the identity curve if the track carries none (e.g. was decoded
// without easing data).
func (t *Track) rotationControlAt(i int) BezierControl {
	if i < len(t.RotationControls) {
		return t.RotationControls[i]
	}
	return linearControl
}

// positionControlAt returns the bezier control for keyframe i, axis a
// (0=X,1=Y,2=Z).
func (t *Track) positionControlAt(i int, axis int) BezierControl {
	cs := t.PositionControls[axis]
	if i < len(cs) {
		return cs[i]
	}
	return linearControl
}

// Animation is an immutable, shareable collection of tracks, the
// create_animation / destroy_animation unit of the external interface.
// There is no explicit destroy operation: an Animation with no remaining
// RuntimeAnimation bindings is reclaimed by the garbage collector, the
// idiomatic Go replacement for an explicit refcounted destroy call.
type Animation struct {
	BoneTracks        []Track
	MovableBoneTracks []Track
	MorphTracks       []Track
	PropertyTracks    []Track
}

// NewAnimation groups tracks of every kind into one Animation.
func NewAnimation(boneTracks, movableBoneTracks, morphTracks, propertyTracks []Track) *Animation {
	return &Animation{
		BoneTracks:        boneTracks,
		MovableBoneTracks: movableBoneTracks,
		MorphTracks:       morphTracks,
		PropertyTracks:    propertyTracks,
	}
}
