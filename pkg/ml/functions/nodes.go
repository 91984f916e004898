// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package functions

import (
	"github.com/gomlx/nnfunctor/pkg/core/arrays"
	"github.com/gomlx/nnfunctor/pkg/core/graph"
)

// NewAffineNode creates a node with the Affine strategy, and parameters "w" and "b" initialized with
// the given values, which must have the same shape as the inputs the node will be called with.
func NewAffineNode(name string, learn graph.Learn, w, b arrays.Array) *graph.Node {
	arrays.AssertSameShape("NewAffineNode", w, b)
	return graph.NewNode(name, Affine{Learn: learn}).
		WithParam("w", w).
		WithParam("b", b)
}

// NewLinearNode creates a node with the Linear strategy, and parameters "w" (dimensions [out, in])
// and "b" (dimension [out]) initialized with the given values.
func NewLinearNode(name string, learn graph.Learn, w, b arrays.Array) *graph.Node {
	if w.Rank() != 2 || b.Rank() != 1 || w.Dims()[0] != b.Dims()[0] {
		panic(shapeErrorf("NewLinearNode(%q): w must have dimensions [out, in] and b [out], got w=%v, b=%v",
			name, w.Dims(), b.Dims()))
	}
	return graph.NewNode(name, Linear{Learn: learn}).
		WithParam("w", w).
		WithParam("b", b)
}

// NewSigmoidNode creates a node with the Sigmoid strategy.
func NewSigmoidNode(name string) *graph.Node {
	return graph.NewNode(name, Sigmoid{})
}

// NewMulNode creates a node with the Mul strategy, and parameter "p" initialized with the given value.
func NewMulNode(name string, learn graph.Learn, p arrays.Array) *graph.Node {
	return graph.NewNode(name, Mul{Learn: learn}).WithParam("p", p)
}

// NewProductNode creates a node with the Product strategy.
func NewProductNode(name string) *graph.Node {
	return graph.NewNode(name, Product{})
}

// NewMeanSquaredErrorNode creates an error node with the MeanSquaredError function.
func NewMeanSquaredErrorNode(name string) *graph.ErrorNode {
	return graph.NewErrorNode(name, MeanSquaredError{})
}
