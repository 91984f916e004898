// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

type memoState int8

const (
	memoPending memoState = iota
	memoComputing
	memoComputed
)

// memo caches a value computed once per pass. A re-entrant computation (a cycle in the graph)
// panics with a contract violation.
type memo[T any] struct {
	state memoState
	value T
}

// get returns the cached value, computing it with fn if needed. owner and what are used in the
// error message if a cycle is detected.
func (m *memo[T]) get(owner, what string, fn func() T) T {
	switch m.state {
	case memoComputed:
		return m.value
	case memoComputing:
		contractViolationf("cycle detected while computing the %s of %q", what, owner)
	}
	m.state = memoComputing
	defer func() {
		if m.state == memoComputing {
			// fn panicked.
			m.state = memoPending
		}
	}()
	m.value = fn()
	m.state = memoComputed
	return m.value
}

// peek returns the cached value, if it was already computed.
func (m *memo[T]) peek() (value T, found bool) {
	if m.state != memoComputed {
		return
	}
	return m.value, true
}
