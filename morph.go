// Copyright © 2013-2015 Galvanized Logic Inc.
// Use is governed by a BSD-style license found in the LICENSE file.

package mmd

import "github.com/gazed/mmdrt/math/lin"

// morph.go is the Morph Controller (C5): resolves active morphs,
// including group morphs, into bone position/rotation offsets. Grounded
// on original_source/.../mmd_morph_controller.rs.

// MorphKind distinguishes the two Morph Metadata variants.
type MorphKind int

const (
	MorphBone  MorphKind = iota // bone offsets
	MorphGroup                  // weighted combination of other morphs
)

// BoneMorphTarget is one (bone, position, rotation) entry of a bone morph.
type BoneMorphTarget struct {
	Bone     int32
	Position lin.V3
	Rotation lin.Q
}

// GroupMorphChild is one (morph, ratio) entry of a group morph.
type GroupMorphChild struct {
	Morph int32
	Ratio float64
}

// Morph is the construction-time metadata for one morph: either a list of
// bone offset targets, or a list of other morphs it recombines.
type Morph struct {
	Kind          MorphKind
	BoneTargets   []BoneMorphTarget // MorphBone
	GroupChildren []GroupMorphChild // MorphGroup
}

// MorphController owns construction-fixed morph metadata and per-tick
// active-morph tracking.
type MorphController struct {
	morphs []Morph
	active []bool
}

// NewMorphController builds a controller from morph metadata, breaking
// group-morph cycles in place so the result is guaranteed acyclic
// (SPEC_FULL.md §3 invariant). Grounded on
// mmd_morph_controller.rs::new / fix_looping_group_morphs.
func NewMorphController(morphs []Morph) *MorphController {
	c := &MorphController{morphs: morphs, active: make([]bool, len(morphs))}
	onStack := make([]bool, len(morphs))
	for i := range c.morphs {
		c.fixLoopingGroupMorphs(int32(i), onStack)
	}
	return c
}

// fixLoopingGroupMorphs recurses into morph index's group children,
// rewriting any child index already on the visitation stack to NoIndex.
func (c *MorphController) fixLoopingGroupMorphs(index int32, onStack []bool) {
	if index < 0 || int(index) >= len(c.morphs) {
		return
	}
	onStack[index] = true
	m := &c.morphs[index]
	if m.Kind == MorphGroup {
		for i := range m.GroupChildren {
			child := m.GroupChildren[i].Morph
			if child == NoIndex {
				continue
			}
			if onStack[child] {
				m.GroupChildren[i].Morph = NoIndex
				continue
			}
			c.fixLoopingGroupMorphs(child, onStack)
		}
	}
	onStack[index] = false
}

// groupMorphFlatForeach iteratively visits every leaf (non-group) morph
// reachable from rootIndex, invoking f with the accumulated ratio, without
// runtime recursion (SPEC_FULL.md §9).
func (c *MorphController) groupMorphFlatForeach(rootIndex int32, rootRatio float64, f func(index int32, ratio float64)) {
	type frame struct {
		index int32
		ratio float64
	}
	stack := []frame{{rootIndex, rootRatio}}
	for len(stack) > 0 {
		n := len(stack) - 1
		top := stack[n]
		stack = stack[:n]
		if top.index == NoIndex || int(top.index) >= len(c.morphs) {
			continue
		}
		m := &c.morphs[top.index]
		if m.Kind == MorphGroup {
			for _, child := range m.GroupChildren {
				if child.Morph == NoIndex {
					continue
				}
				stack = append(stack, frame{child.Morph, top.ratio * child.Ratio})
			}
			continue
		}
		f(top.index, top.ratio)
	}
}

// updateMorphs is the per-tick morph pass: clear the offsets every
// previously-active morph applied last tick, then re-apply every morph
// with nonzero weight. Offsets never accumulate across ticks. Grounded on
// mmd_morph_controller.rs::update.
func (m *Model) updateMorphs() {
	c := m.morphCtl
	for i := range c.morphs {
		if c.active[i] {
			m.resetMorph(int32(i))
		}
	}
	for i := range c.morphs {
		weight := m.arena.MorphWeight(int32(i))
		if weight == 0 {
			c.active[i] = false
			continue
		}
		c.active[i] = true
		m.applyMorph(int32(i), weight)
	}
}

// resetMorph clears the offsets a morph (or its reachable subtree, for a
// group morph) previously applied.
func (m *Model) resetMorph(index int32) {
	morph := &m.morphCtl.morphs[index]
	switch morph.Kind {
	case MorphBone:
		for _, t := range morph.BoneTargets {
			st := &m.states[t.Bone]
			st.hasMorphPosition = false
			st.morphPosition = lin.V3{}
			st.hasMorphRotation = false
			st.morphRotation = lin.Q{}
		}
	case MorphGroup:
		m.morphCtl.groupMorphFlatForeach(index, 1, func(leaf int32, _ float64) {
			m.resetMorph(leaf)
		})
	}
}

// applyMorph accumulates morph index's offsets at the given weight into
// the target bones' morph_position_offset / morph_rotation_offset.
func (m *Model) applyMorph(index int32, weight float64) {
	morph := &m.morphCtl.morphs[index]
	switch morph.Kind {
	case MorphBone:
		for _, t := range morph.BoneTargets {
			st := &m.states[t.Bone]
			scaled := lin.V3{X: t.Position.X * weight, Y: t.Position.Y * weight, Z: t.Position.Z * weight}
			if st.hasMorphPosition {
				st.morphPosition.Add(&st.morphPosition, &scaled)
			} else {
				st.morphPosition = scaled
				st.hasMorphPosition = true
			}
			base := lin.QI
			if st.hasMorphRotation {
				base = &st.morphRotation
			}
			var out lin.Q
			out.Slerp(base, &t.Rotation, weight)
			st.morphRotation = out
			st.hasMorphRotation = true
		}
	case MorphGroup:
		m.morphCtl.groupMorphFlatForeach(index, weight, func(leaf int32, ratio float64) {
			m.applyMorph(leaf, ratio)
		})
	}
}
