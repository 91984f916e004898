// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package functions implements the built-in strategies (the formulas of a graph.Node) and error
// functions (of a graph.ErrorNode), and a registry of strategies by name.
//
// Every strategy hand-derives its update and request rules. The request r is the value the node
// would like its output y to have had, and the strategies with parameters do gradient descent on
// 0.5*(y-r)^2 with learning rate eps:
//
//	Affine:  y = w*x + b     w' = w - eps*(y-r)*x      b' = b - eps*(y-r)   request: x - w*(y-r)
//	Linear:  y = w·x + b     w' = w - eps*(y-r)⊗x      b' = b - eps*(y-r)   request: x - wᵀ·(y-r)
//	Sigmoid: y = σ(x)        (no parameters)                                request: x - (σ(x)-r)*σ'(x)
//	Tanh:    y = tanh(x)     (no parameters)                                request: x - (y-r)*(1-y²)
//	Mul:     y = p*x         p' = p - eps*(y-r)*x                           request: x - (y-r)*p
//	Product: y = x0*x1       (no parameters)                                request: x_i - (y-r)*x_other
//
// Here * is the elementwise product, · the matrix-vector product and ⊗ the outer product.
package functions

import (
	"math"

	"github.com/gomlx/nnfunctor/pkg/core/arrays"
	"github.com/gomlx/nnfunctor/pkg/core/graph"
	"github.com/pkg/errors"
)

// assertNumInputs panics with a contract violation if the number of inputs is not n.
func assertNumInputs(strategy string, inputs []arrays.Array, n int) {
	if len(inputs) != n {
		panic(errors.Wrapf(graph.ErrContractViolation, "%s strategy takes %d input(s), got %d", strategy, n, len(inputs)))
	}
}

// assertNumParams panics with a contract violation if the number of parameters is not n.
func assertNumParams(strategy string, params []arrays.Array, n int) {
	if len(params) != n {
		panic(errors.Wrapf(graph.ErrContractViolation, "%s strategy takes %d parameter(s), got %d", strategy, n, len(params)))
	}
}

// shapeErrorf returns an error wrapping arrays.ErrShapeMismatch.
func shapeErrorf(format string, args ...any) error {
	return errors.Wrapf(arrays.ErrShapeMismatch, format, args...)
}

// Affine is the elementwise affine transformation y = w*x + b, with parameters w and b of the same
// shape as the input x.
type Affine struct {
	graph.Learn
}

var _ graph.Strategy = Affine{}

// Implement returns w*x + b.
func (s Affine) Implement(inputs, params []arrays.Array) arrays.Array {
	assertNumInputs("Affine", inputs, 1)
	assertNumParams("Affine", params, 2)
	return arrays.Add(arrays.Mul(params[0], inputs[0]), params[1])
}

// Update returns w - eps*(y-r)*x and b - eps*(y-r).
func (s Affine) Update(inputs []arrays.Array, request arrays.Array, params []arrays.Array) ([]arrays.Array, error) {
	diff := arrays.Sub(s.Implement(inputs, params), request)
	w := arrays.Sub(params[0], arrays.Scale(arrays.Mul(diff, inputs[0]), s.Eps))
	b := arrays.Sub(params[1], arrays.Scale(diff, s.Eps))
	return []arrays.Array{w, b}, nil
}

// Request returns x - w*(y-r).
func (s Affine) Request(inputs []arrays.Array, request arrays.Array, params []arrays.Array) []arrays.Array {
	diff := arrays.Sub(s.Implement(inputs, params), request)
	return []arrays.Array{arrays.Sub(inputs[0], arrays.Mul(params[0], diff))}
}

// Linear is the fully connected transformation y = w·x + b, for an input vector x of dimension [in],
// with parameters w of dimensions [out, in] and b of dimension [out].
type Linear struct {
	graph.Learn
}

var _ graph.Strategy = Linear{}

// Implement returns w·x + b.
func (s Linear) Implement(inputs, params []arrays.Array) arrays.Array {
	assertNumInputs("Linear", inputs, 1)
	assertNumParams("Linear", params, 2)
	return arrays.Add(arrays.MatVec(params[0], inputs[0]), params[1])
}

// Update returns w - eps*outer(y-r, x) and b - eps*(y-r).
func (s Linear) Update(inputs []arrays.Array, request arrays.Array, params []arrays.Array) ([]arrays.Array, error) {
	diff := arrays.Sub(s.Implement(inputs, params), request)
	w := arrays.Sub(params[0], arrays.Scale(arrays.Outer(diff, inputs[0]), s.Eps))
	b := arrays.Sub(params[1], arrays.Scale(diff, s.Eps))
	return []arrays.Array{w, b}, nil
}

// Request returns x - wᵀ·(y-r).
func (s Linear) Request(inputs []arrays.Array, request arrays.Array, params []arrays.Array) []arrays.Array {
	diff := arrays.Sub(s.Implement(inputs, params), request)
	return []arrays.Array{arrays.Sub(inputs[0], arrays.MatTVec(params[0], diff))}
}

// sigmoid returns 1/(1+e^-x).
func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

// sigmoidDerivative returns σ(x)*(1-σ(x)).
func sigmoidDerivative(x float64) float64 {
	y := sigmoid(x)
	return (1.0 - y) * y
}

// Sigmoid is the elementwise logistic function y = 1/(1+e^-x). It has no parameters.
type Sigmoid struct{}

var _ graph.Strategy = Sigmoid{}

// Implement returns σ(x).
func (Sigmoid) Implement(inputs, params []arrays.Array) arrays.Array {
	assertNumInputs("Sigmoid", inputs, 1)
	assertNumParams("Sigmoid", params, 0)
	return arrays.Map(inputs[0], sigmoid)
}

// Update always returns graph.ErrNoUpdate.
func (Sigmoid) Update([]arrays.Array, arrays.Array, []arrays.Array) ([]arrays.Array, error) {
	return nil, graph.ErrNoUpdate
}

// Request returns x - (σ(x)-r)*σ'(x).
func (s Sigmoid) Request(inputs []arrays.Array, request arrays.Array, params []arrays.Array) []arrays.Array {
	x := inputs[0]
	diff := arrays.Sub(s.Implement(inputs, params), request)
	return []arrays.Array{arrays.Sub(x, arrays.Mul(diff, arrays.Map(x, sigmoidDerivative)))}
}

// Tanh is the elementwise hyperbolic tangent y = tanh(x). It has no parameters.
type Tanh struct{}

var _ graph.Strategy = Tanh{}

// Implement returns tanh(x).
func (Tanh) Implement(inputs, params []arrays.Array) arrays.Array {
	assertNumInputs("Tanh", inputs, 1)
	assertNumParams("Tanh", params, 0)
	return arrays.Map(inputs[0], math.Tanh)
}

// Update always returns graph.ErrNoUpdate.
func (Tanh) Update([]arrays.Array, arrays.Array, []arrays.Array) ([]arrays.Array, error) {
	return nil, graph.ErrNoUpdate
}

// Request returns x - (y-r)*(1-y²).
func (s Tanh) Request(inputs []arrays.Array, request arrays.Array, params []arrays.Array) []arrays.Array {
	y := s.Implement(inputs, params)
	derivative := arrays.Map(y, func(v float64) float64 { return 1 - v*v })
	return []arrays.Array{arrays.Sub(inputs[0], arrays.Mul(arrays.Sub(y, request), derivative))}
}

// Mul is the elementwise multiplication by a learned factor y = p*x, with the parameter p of the same
// shape as the input x.
type Mul struct {
	graph.Learn
}

var _ graph.Strategy = Mul{}

// Implement returns p*x.
func (s Mul) Implement(inputs, params []arrays.Array) arrays.Array {
	assertNumInputs("Mul", inputs, 1)
	assertNumParams("Mul", params, 1)
	return arrays.Mul(params[0], inputs[0])
}

// Update returns p - eps*(y-r)*x.
func (s Mul) Update(inputs []arrays.Array, request arrays.Array, params []arrays.Array) ([]arrays.Array, error) {
	diff := arrays.Sub(s.Implement(inputs, params), request)
	return []arrays.Array{arrays.Sub(params[0], arrays.Scale(arrays.Mul(diff, inputs[0]), s.Eps))}, nil
}

// Request returns x - (y-r)*p, a corrected value for the input x. Notice it is not the updated
// factor p - eps*(y-r)*x returned by Update.
func (s Mul) Request(inputs []arrays.Array, request arrays.Array, params []arrays.Array) []arrays.Array {
	diff := arrays.Sub(s.Implement(inputs, params), request)
	return []arrays.Array{arrays.Sub(inputs[0], arrays.Mul(diff, params[0]))}
}

// Product is the elementwise product of two inputs y = x0*x1. It has no parameters.
type Product struct{}

var _ graph.Strategy = Product{}

// Implement returns x0*x1.
func (Product) Implement(inputs, params []arrays.Array) arrays.Array {
	assertNumInputs("Product", inputs, 2)
	assertNumParams("Product", params, 0)
	return arrays.Mul(inputs[0], inputs[1])
}

// Update always returns graph.ErrNoUpdate.
func (Product) Update([]arrays.Array, arrays.Array, []arrays.Array) ([]arrays.Array, error) {
	return nil, graph.ErrNoUpdate
}

// Request returns x0 - (y-r)*x1 for the first input, and x1 - (y-r)*x0 for the second.
func (s Product) Request(inputs []arrays.Array, request arrays.Array, params []arrays.Array) []arrays.Array {
	diff := arrays.Sub(s.Implement(inputs, params), request)
	return []arrays.Array{
		arrays.Sub(inputs[0], arrays.Mul(diff, inputs[1])),
		arrays.Sub(inputs[1], arrays.Mul(diff, inputs[0])),
	}
}

// Custom adapts user provided formulas to a graph.Strategy.
//
// ImplementFn and RequestFn are required. If UpdateFn is nil, the strategy has no parameters to update.
type Custom struct {
	ImplementFn func(inputs, params []arrays.Array) arrays.Array
	UpdateFn    func(inputs []arrays.Array, request arrays.Array, params []arrays.Array) ([]arrays.Array, error)
	RequestFn   func(inputs []arrays.Array, request arrays.Array, params []arrays.Array) []arrays.Array
}

var _ graph.Strategy = Custom{}

// Implement calls ImplementFn.
func (s Custom) Implement(inputs, params []arrays.Array) arrays.Array {
	if s.ImplementFn == nil {
		panic(errors.Wrap(graph.ErrContractViolation, "Custom strategy has no ImplementFn"))
	}
	return s.ImplementFn(inputs, params)
}

// Update calls UpdateFn, or returns graph.ErrNoUpdate if it is not set.
func (s Custom) Update(inputs []arrays.Array, request arrays.Array, params []arrays.Array) ([]arrays.Array, error) {
	if s.UpdateFn == nil {
		return nil, graph.ErrNoUpdate
	}
	return s.UpdateFn(inputs, request, params)
}

// Request calls RequestFn.
func (s Custom) Request(inputs []arrays.Array, request arrays.Array, params []arrays.Array) []arrays.Array {
	if s.RequestFn == nil {
		panic(errors.Wrap(graph.ErrContractViolation, "Custom strategy has no RequestFn"))
	}
	return s.RequestFn(inputs, request, params)
}

// MeanSquaredError is the error function 0.5*mean((a-c)^2), for prediction a and target c.
// Its request is the target itself.
type MeanSquaredError struct{}

var _ graph.ErrorFunction = MeanSquaredError{}

// Implement returns the scalar 0.5*mean((prediction-target)^2).
func (MeanSquaredError) Implement(prediction, target arrays.Array) arrays.Array {
	diff := arrays.Sub(prediction, target)
	return arrays.Scalar(0.5 * arrays.Dot(diff, diff) / float64(diff.Size()))
}

// Request returns the target.
func (MeanSquaredError) Request(_, target arrays.Array) arrays.Array {
	return target
}
