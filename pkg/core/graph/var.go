// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"fmt"
	"slices"

	"github.com/gomlx/nnfunctor/pkg/core/arrays"
)

// Var holds a value flowing through the computation.
//
// A detached Var (created with Detached) is a raw input or target: it has no producer, and
// registering consumers on it is a no-op. A linked Var belongs to a Graph, which records its
// producer (Origin) and its consumers (Destinations).
type Var struct {
	value arrays.Array
	graph *Graph
}

// Detached creates a Var that is not linked to any graph. The value is converted with arrays.FromValue.
func Detached(value any) *Var {
	return &Var{value: arrays.FromValue(value)}
}

// NewVar creates a Var linked to g, with no producer. It can be consumed by operators in g, and
// it will collect their consumer edges, but backward traversal stops at it.
func NewVar(g *Graph, value any) *Var {
	g.AssertValid()
	g.building = true
	return &Var{value: arrays.FromValue(value), graph: g}
}

// Value held by the Var.
func (v *Var) Value() arrays.Array { return v.value }

// Shape returns the dimensions of the value.
func (v *Var) Shape() []int { return v.value.Dims() }

// HasLinkInfo returns whether the Var is linked to a graph.
func (v *Var) HasLinkInfo() bool { return v.graph != nil }

// Graph the Var is linked to, or nil for a detached Var.
func (v *Var) Graph() *Graph { return v.graph }

// Origin returns the operator that produced the Var, or nil if it is detached, has no producer,
// or if its producer has already been reset.
func (v *Var) Origin() Operator {
	if !v.graph.IsValid() {
		return nil
	}
	return v.graph.producers[v]
}

// Consumers returns the consumer edges of the Var, in the order they were registered.
// It returns nil for a detached Var.
func (v *Var) Consumers() []Edge {
	if !v.graph.IsValid() {
		return nil
	}
	return slices.Clone(v.graph.consumers[v])
}

// Destinations returns the operators that consumed the Var, in the order they were registered.
// An operator that consumed the Var in more than one position is listed once per position.
func (v *Var) Destinations() []Operator {
	edges := v.Consumers()
	if len(edges) == 0 {
		return nil
	}
	ops := make([]Operator, len(edges))
	for ii, edge := range edges {
		ops[ii] = edge.Operator
	}
	return ops
}

// RegisterConsumer records that op consumed the Var as its input number position.
// It is a no-op for a detached Var.
func (v *Var) RegisterConsumer(op Operator, position int) {
	if v.graph == nil {
		return
	}
	v.graph.AssertValid()
	v.graph.addConsumer(v, op, position)
}

// String implements fmt.Stringer.
func (v *Var) String() string {
	if v == nil {
		return "Var(nil)"
	}
	if v.graph == nil {
		return fmt.Sprintf("Var(detached, %s)", v.value)
	}
	return fmt.Sprintf("Var(%s, %s)", v.graph.name, v.value)
}

// assertInGraph panics with a contract violation if v is linked to a graph other than g.
func (v *Var) assertInGraph(g *Graph, who string, position int) {
	if v == nil {
		contractViolationf("%s: input #%d is nil", who, position)
	}
	if v.graph != nil && v.graph != g {
		contractViolationf("%s: input #%d is linked to %s, but it is being used in %s", who, position, v.graph, g)
	}
}

// values returns the values of the vars.
func values(vars []*Var) []arrays.Array {
	results := make([]arrays.Array, len(vars))
	for ii, v := range vars {
		results[ii] = v.value
	}
	return results
}
