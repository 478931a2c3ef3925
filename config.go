// SPDX-FileCopyrightText : © 2022 Galvanized Logic Inc.
// SPDX-License-Identifier: BSD-2-Clause

package mmd

// config.go reduces the NewModel API footprint using functional options.
// See: http://dave.cheney.net/2014/10/17/functional-options-for-friendly-apis
//      https://commandcenter.blogspot.ca/2014/01/self-referential-functions-and-design.html

// Config contains construction-time attributes that can be set when
// building a Model.
type Config struct {
	physicsEnabled bool    // true if rigid bodies drive any bones.
	fixedTimestep  float64 // seconds per physics sub-step.
	maxSubSteps    int     // clamp on sub-steps performed in one Step call.
	parallelWorlds bool    // true to step worlds in the Multi-World Dispatcher concurrently.
}

// configDefaults provides reasonable defaults so a model is usable
// even if no configuration attributes are set.
var configDefaults = Config{
	physicsEnabled: false,
	fixedTimestep:  1.0 / 60.0,
	maxSubSteps:    5,
	parallelWorlds: false,
}

// Attr defines optional construction attributes used to configure a Model.
//
//	m, diag, err := mmd.NewModel(meta,
//	   mmd.Physics(),
//	   mmd.FixedTimestep(1.0/120.0),
//	   mmd.MaxSubSteps(8),
//	)
type Attr func(*Config) // type for attribute overrides

// Physics enables the physics bridge: rigid-body-driven bones are
// synchronized against an external physics.World each tick instead of
// being left purely animation-driven.
func Physics() Attr {
	return func(c *Config) { c.physicsEnabled = true }
}

// FixedTimestep sets the physics sub-step duration in seconds.
func FixedTimestep(dt float64) Attr {
	return func(c *Config) {
		if dt > 0 {
			c.fixedTimestep = dt
		}
	}
}

// MaxSubSteps bounds the number of physics sub-steps a single Step call
// may perform when catching up after a long frame.
func MaxSubSteps(n int) Attr {
	return func(c *Config) {
		if n > 0 {
			c.maxSubSteps = n
		}
	}
}

// ParallelWorlds enables concurrent stepping of independent physics
// worlds in the Multi-World Dispatcher.
func ParallelWorlds() Attr {
	return func(c *Config) { c.parallelWorlds = true }
}
