// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

package eval

// Scope is an immutable snapshot of name-to-value bindings.
// The zero Scope is empty and safe to use.
type Scope struct {
	vars map[string]float64
}

// ScopeOf creates a Scope holding a copy of m.
func ScopeOf(m map[string]float64) Scope {
	vars := make(map[string]float64, len(m))
	for k, v := range m {
		vars[k] = v
	}
	return Scope{vars: vars}
}

// Lookup retrieves a binding by name.
func (s Scope) Lookup(name string) (float64, bool) {
	v, ok := s.vars[name]
	return v, ok
}

// Map returns a copy of the bindings.
func (s Scope) Map() map[string]float64 {
	m := make(map[string]float64, len(s.vars))
	for k, v := range s.vars {
		m[k] = v
	}
	return m
}

// Builder accumulates bindings during a single top-down pass.
// It is not safe for concurrent use; every pass constructs its own.
type Builder struct {
	vars map[string]float64
}

// NewBuilder creates an empty Builder.
func NewBuilder() *Builder {
	return &Builder{vars: make(map[string]float64)}
}

// Set binds name to v, replacing any earlier binding.
func (b *Builder) Set(name string, v float64) {
	b.vars[name] = v
}

// Snapshot returns an immutable copy of the current bindings.
func (b *Builder) Snapshot() Scope {
	return ScopeOf(b.vars)
}
