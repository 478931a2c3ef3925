// Copyright © 2013-2015 Galvanized Logic Inc.
// Use is governed by a BSD-style license found in the LICENSE file.

package mmd

import "fmt"

// diagnostic.go accumulates construction-time problems found while building
// a Model from Metadata. A model with bad references (an append-transform
// target that doesn't exist, an IK link bone that is missing) is still
// built and still runs — the bad reference is dropped and the problem is
// recorded here instead of aborting construction or returning an error.
// Grounded on original_source/.../diagnostic.rs's accumulate-don't-abort
// policy.

// Severity classifies a DiagnosticEntry.
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
)

func (s Severity) String() string {
	if s == SeverityError {
		return "error"
	}
	return "warning"
}

// DiagnosticEntry is one recorded construction-time problem.
type DiagnosticEntry struct {
	Severity Severity
	Message  string
}

// Diagnostic is a per-model-build accumulator of warnings and errors.
// It is never consulted to decide whether construction should fail;
// callers inspect Entries() after NewModel returns to decide whether
// the result is acceptable for their purposes.
type Diagnostic struct {
	entries []DiagnosticEntry
}

// NewDiagnostic returns an empty diagnostic sink.
func NewDiagnostic() *Diagnostic { return &Diagnostic{} }

// Warning records a non-fatal construction problem.
func (d *Diagnostic) Warning(format string, args ...any) {
	d.entries = append(d.entries, DiagnosticEntry{Severity: SeverityWarning, Message: fmt.Sprintf(format, args...)})
}

// Error records a construction problem serious enough that the
// referencing feature was disabled, but not serious enough to abort
// building the rest of the model.
func (d *Diagnostic) Error(format string, args ...any) {
	d.entries = append(d.entries, DiagnosticEntry{Severity: SeverityError, Message: fmt.Sprintf(format, args...)})
}

// Entries returns all recorded diagnostics in the order they occurred.
func (d *Diagnostic) Entries() []DiagnosticEntry { return d.entries }

// HasErrors returns true if any entry has Severity SeverityError.
func (d *Diagnostic) HasErrors() bool {
	for _, e := range d.entries {
		if e.Severity == SeverityError {
			return true
		}
	}
	return false
}
