// Copyright © 2013-2015 Galvanized Logic Inc.
// Use is governed by a BSD-style license found in the LICENSE file.

package physics

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gazed/mmdrt/math/lin"
	"golang.org/x/sys/cpu"
)

// Dispatcher is the Multi-World Dispatcher (spec.md §6): it routes
// bodies into named worlds, supports a body being a managed member of
// one world, a shadow (read-only replica) member of any number of
// others, or a global member shadowed into every world past and
// future, and steps every live world once per call.
//
// Worlds are created the first time a body is routed into them and
// destroyed once their last member leaves, so a scene's accessory
// models sharing a world never leak an empty one behind after they are
// torn down (spec.md §6, "worlds are created on demand").
type Dispatcher struct {
	mu sync.Mutex
	_  cpu.CacheLinePad

	// stepping guards against re-entrant Step calls from two goroutines;
	// padded onto its own cache line so the frequent CompareAndSwap does
	// not false-share with mu or the maps below, which a foreground
	// evaluator thread may be reading concurrently via WorldCount/HasWorld.
	stepping atomic.Bool
	_        cpu.CacheLinePad

	worlds map[string]*World

	members      map[*Body]*membership
	constraints  map[*Joint]string
	globalBodies []*Body

	fixedTimeStep float64
	maxSubSteps   int
	gravity       lin.V3
	parallel      bool
}

type membership struct {
	owner   string
	shadows map[string]int
}

// NewDispatcher returns a dispatcher with no worlds yet. Worlds it
// creates step at fixedTimeStep with at most maxSubSteps sub-steps;
// parallel enables stepping independent worlds concurrently (config's
// ParallelWorlds option).
func NewDispatcher(fixedTimeStep float64, maxSubSteps int, parallel bool) *Dispatcher {
	return &Dispatcher{
		worlds:        make(map[string]*World),
		members:       make(map[*Body]*membership),
		constraints:   make(map[*Joint]string),
		fixedTimeStep: fixedTimeStep,
		maxSubSteps:   maxSubSteps,
		gravity:       lin.V3{X: 0, Y: -9.8, Z: 0},
		parallel:      parallel,
	}
}

// SetGravity overrides the gravity every world the dispatcher creates
// from now on starts with; existing worlds are updated too.
func (d *Dispatcher) SetGravity(g lin.V3) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gravity = g
	for _, w := range d.worlds {
		w.SetGravity(g)
	}
}

// HasWorld reports whether a world with this id currently exists.
func (d *Dispatcher) HasWorld(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.worlds[id]
	return ok
}

// WorldCount returns the number of live worlds.
func (d *Dispatcher) WorldCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.worlds)
}

func (d *Dispatcher) getOrCreateWorld(id string) *World {
	w, ok := d.worlds[id]
	if !ok {
		w = NewWorld(id, d.fixedTimeStep, d.maxSubSteps)
		w.SetGravity(d.gravity)
		for _, g := range d.globalBodies {
			w.AddBody(g)
		}
		d.worlds[id] = w
	}
	return w
}

func (d *Dispatcher) memberOf(b *Body) *membership {
	m, ok := d.members[b]
	if !ok {
		m = &membership{shadows: make(map[string]int)}
		d.members[b] = m
	}
	return m
}

func (d *Dispatcher) pruneMember(b *Body, m *membership) {
	if m.owner == "" && len(m.shadows) == 0 {
		delete(d.members, b)
	}
}

// refCount counts the managed memberships, shadow memberships, and
// constraints a world currently holds. Global bodies are deliberately
// excluded: they ride along in every world but never keep one alive,
// otherwise a single global floor body would leak every world ever
// created.
func (d *Dispatcher) refCount(id string) int {
	n := 0
	for _, m := range d.members {
		if m.owner == id {
			n++
		}
		if m.shadows[id] > 0 {
			n++
		}
	}
	for _, home := range d.constraints {
		if home == id {
			n++
		}
	}
	return n
}

func (d *Dispatcher) destroyIfEmpty(id string) {
	if _, ok := d.worlds[id]; ok && d.refCount(id) == 0 {
		delete(d.worlds, id)
	}
}

// AddManaged makes b a managed (owning) member of world worldID,
// creating the world if needed. A body already managed elsewhere is
// first removed from its prior world.
func (d *Dispatcher) AddManaged(worldID string, b *Body) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if m, ok := d.members[b]; ok && m.owner != "" && m.owner != worldID {
		d.removeManagedLocked(b)
	}
	w := d.getOrCreateWorld(worldID)
	m := d.memberOf(b)
	m.owner = worldID
	w.AddBody(b)
}

// RemoveManaged drops b's managed membership, destroying its world if
// that was the world's last member.
func (d *Dispatcher) RemoveManaged(b *Body) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.removeManagedLocked(b)
}

func (d *Dispatcher) removeManagedLocked(b *Body) {
	m, ok := d.members[b]
	if !ok || m.owner == "" {
		return
	}
	id := m.owner
	if w, ok := d.worlds[id]; ok {
		w.RemoveBody(b)
	}
	m.owner = ""
	d.destroyIfEmpty(id)
	d.pruneMember(b, m)
}

// AddShadow adds b as a read-only replica of world worldID, refcounted
// so repeated AddShadow calls from independent callers (two models
// sharing a stage prop) each need a matching RemoveShadow.
func (d *Dispatcher) AddShadow(worldID string, b *Body) {
	d.mu.Lock()
	defer d.mu.Unlock()
	w := d.getOrCreateWorld(worldID)
	m := d.memberOf(b)
	m.shadows[worldID]++
	if m.shadows[worldID] == 1 {
		w.AddBody(b)
	}
}

// RemoveShadow drops one shadow reference to worldID for b.
func (d *Dispatcher) RemoveShadow(worldID string, b *Body) {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.members[b]
	if !ok || m.shadows[worldID] <= 0 {
		return
	}
	m.shadows[worldID]--
	if m.shadows[worldID] == 0 {
		delete(m.shadows, worldID)
		if w, ok := d.worlds[worldID]; ok {
			w.RemoveBody(b)
		}
		d.destroyIfEmpty(worldID)
	}
	d.pruneMember(b, m)
}

// AddConstraint routes joint j into world worldID, creating the world if
// needed. A joint already routed elsewhere is moved.
func (d *Dispatcher) AddConstraint(worldID string, j *Joint) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if home, ok := d.constraints[j]; ok && home != worldID {
		d.removeConstraintLocked(j)
	}
	w := d.getOrCreateWorld(worldID)
	d.constraints[j] = worldID
	w.AddConstraint(j)
}

// RemoveConstraint drops joint j from its world, destroying the world if
// that was its last membership.
func (d *Dispatcher) RemoveConstraint(j *Joint) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.removeConstraintLocked(j)
}

func (d *Dispatcher) removeConstraintLocked(j *Joint) {
	home, ok := d.constraints[j]
	if !ok {
		return
	}
	if w, ok := d.worlds[home]; ok {
		w.RemoveConstraint(j)
	}
	delete(d.constraints, j)
	d.destroyIfEmpty(home)
}

// AddGlobal shadows b into every world that exists now or is created
// later (e.g. the stage floor every model's feet collide against).
func (d *Dispatcher) AddGlobal(b *Body) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, g := range d.globalBodies {
		if g == b {
			return
		}
	}
	d.globalBodies = append(d.globalBodies, b)
	for _, w := range d.worlds {
		w.AddBody(b)
	}
}

// RemoveGlobal removes b's global membership from every world.
func (d *Dispatcher) RemoveGlobal(b *Body) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, g := range d.globalBodies {
		if g == b {
			d.globalBodies = append(d.globalBodies[:i], d.globalBodies[i+1:]...)
			break
		}
	}
	for id, w := range d.worlds {
		w.RemoveBody(b)
		d.destroyIfEmpty(id)
	}
}

// Step advances every live world by dt. When the dispatcher was built
// with parallel stepping enabled and holds more than one world, worlds
// step concurrently; a single world, or parallel disabled, steps
// sequentially on the caller's goroutine. Either way a single World's
// own bodies are always integrated sequentially within that world.
func (d *Dispatcher) Step(dt float64) error {
	if !d.stepping.CompareAndSwap(false, true) {
		slog.Error("physics: rejected re-entrant Step call", "world_count", d.WorldCount())
		return errors.New("physics: Step called while a previous Step is still in progress")
	}
	defer d.stepping.Store(false)

	d.mu.Lock()
	worlds := make([]*World, 0, len(d.worlds))
	for _, w := range d.worlds {
		worlds = append(worlds, w)
	}
	parallel := d.parallel
	d.mu.Unlock()

	if !parallel || len(worlds) <= 1 {
		for _, w := range worlds {
			if err := w.Step(dt); err != nil {
				return err
			}
		}
		return nil
	}

	var wg sync.WaitGroup
	errs := make([]error, len(worlds))
	for i, w := range worlds {
		wg.Add(1)
		go func(i int, w *World) {
			defer wg.Done()
			errs[i] = w.Step(dt)
		}(i, w)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
