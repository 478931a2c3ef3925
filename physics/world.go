// Copyright © 2013-2015 Galvanized Logic Inc.
// Use is governed by a BSD-style license found in the LICENSE file.

package physics

import (
	"log/slog"

	"github.com/gazed/mmdrt/math/lin"
)

// World is one physics simulation: a set of bodies and constraints
// stepped together at a fixed timestep, with accumulated leftover time
// carried to the next Step call (spec.md §6, "fixed-timestep
// accumulator with a capped number of sub-steps per frame").
//
// A World never appears bare to a model; the Multi-World Dispatcher
// (dispatcher.go) owns the map of named worlds a body can be routed
// into, since MMD scenes frequently share a handful of worlds across
// many models (shared accessories, stage props).
type World struct {
	id          string
	bodies      []*Body
	constraints []*Joint

	gravity       lin.V3
	fixedTimeStep float64
	maxSubSteps   int
	accumulator   float64
}

// NewWorld returns an empty world stepped at fixedTimeStep with at most
// maxSubSteps sub-steps per Step call.
func NewWorld(id string, fixedTimeStep float64, maxSubSteps int) *World {
	if maxSubSteps <= 0 {
		maxSubSteps = 1
	}
	return &World{
		id:            id,
		gravity:       lin.V3{X: 0, Y: -9.8, Z: 0},
		fixedTimeStep: fixedTimeStep,
		maxSubSteps:   maxSubSteps,
	}
}

// ID returns the world's dispatcher key.
func (w *World) ID() string { return w.id }

// SetGravity overrides the world's gravity vector (default 0,-9.8,0).
func (w *World) SetGravity(g lin.V3) { w.gravity = g }

// AddBody adds a body to the world's step set. The dispatcher guards
// against adding the same body twice.
func (w *World) AddBody(b *Body) { w.bodies = append(w.bodies, b) }

// RemoveBody removes b from the world, reporting whether it was found.
func (w *World) RemoveBody(b *Body) bool {
	for i, have := range w.bodies {
		if have == b {
			w.bodies = append(w.bodies[:i], w.bodies[i+1:]...)
			return true
		}
	}
	return false
}

// BodyCount returns the number of bodies currently routed into the world.
func (w *World) BodyCount() int { return len(w.bodies) }

// AddConstraint adds a joint to the world. Joints are bookkeeping data
// only (joint.go); nothing in Step solves them.
func (w *World) AddConstraint(j *Joint) { w.constraints = append(w.constraints, j) }

// RemoveConstraint removes j from the world, reporting whether it was found.
func (w *World) RemoveConstraint(j *Joint) bool {
	for i, have := range w.constraints {
		if have == j {
			w.constraints = append(w.constraints[:i], w.constraints[i+1:]...)
			return true
		}
	}
	return false
}

// ConstraintCount returns the number of joints currently routed into the world.
func (w *World) ConstraintCount() int { return len(w.constraints) }

// Step advances the world by dt real seconds, running zero or more
// fixedTimeStep sub-steps (capped at maxSubSteps) and carrying any
// remainder into the next call. Grounded on physics/mmd/mod.rs's
// step_simulation driving Bullet through the same fixed-step/substep
// pattern.
func (w *World) Step(dt float64) error {
	for _, b := range w.bodies {
		b.state.SyncBuffered()
	}

	w.accumulator += dt
	steps := 0
	for w.accumulator >= w.fixedTimeStep && steps < w.maxSubSteps {
		for _, b := range w.bodies {
			b.integrate(w.fixedTimeStep, w.gravity.X, w.gravity.Y, w.gravity.Z)
		}
		w.accumulator -= w.fixedTimeStep
		steps++
	}
	if steps == w.maxSubSteps && w.accumulator >= w.fixedTimeStep {
		// Dropped time past the sub-step cap rather than spiral further
		// behind; matches Bullet's stepSimulation behavior under the same cap.
		slog.Warn("physics: step budget exceeded, dropping accumulated time",
			"world", w.id, "dropped_seconds", w.accumulator, "max_sub_steps", w.maxSubSteps)
		w.accumulator = 0
	}

	for _, b := range w.bodies {
		b.state.Flip()
	}
	return nil
}
