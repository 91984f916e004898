// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package functions

import (
	"math"
	"testing"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/nnfunctor/pkg/core/arrays"
	"github.com/gomlx/nnfunctor/pkg/core/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var learn = graph.Learn{Eps: 0.1}

func values(vs ...any) []arrays.Array {
	results := make([]arrays.Array, len(vs))
	for ii, v := range vs {
		results[ii] = arrays.FromValue(v)
	}
	return results
}

func assertArray(t *testing.T, want any, got arrays.Array) {
	t.Helper()
	wantArray := arrays.FromValue(want)
	assert.Truef(t, wantArray.InDelta(got, 1e-9), "want %s, got %s", wantArray, got)
}

func TestAffine(t *testing.T) {
	s := Affine{Learn: learn}
	inputs, params := values(1.0), values(2.0, 0.0)
	assertArray(t, 2.0, s.Implement(inputs, params))

	updated, err := s.Update(inputs, arrays.Scalar(3), params)
	require.NoError(t, err)
	require.Len(t, updated, 2)
	assertArray(t, 2.1, updated[0])
	assertArray(t, 0.1, updated[1])

	requests := s.Request(inputs, arrays.Scalar(3), params)
	require.Len(t, requests, 1)
	assertArray(t, 3.0, requests[0])
}

func TestLinear(t *testing.T) {
	s := Linear{Learn: learn}
	inputs := values([]float64{1, 1})
	params := values([][]float64{{1, 0}, {0, 1}}, []float64{0, 0})
	request := arrays.FromValue([]float64{2, 0})
	assertArray(t, []float64{1, 1}, s.Implement(inputs, params))

	updated, err := s.Update(inputs, request, params)
	require.NoError(t, err)
	assertArray(t, [][]float64{{1.1, 0.1}, {-0.1, 0.9}}, updated[0])
	assertArray(t, []float64{0.1, -0.1}, updated[1])

	requests := s.Request(inputs, request, params)
	assertArray(t, []float64{2, 0}, requests[0])

	// Input dimension doesn't match w.
	err = exceptions.TryCatch[error](func() { s.Implement(values([]float64{1, 2, 3}), params) })
	require.ErrorIs(t, err, arrays.ErrShapeMismatch)
}

func TestSigmoid(t *testing.T) {
	s := Sigmoid{}
	inputs := values([]float64{0, 100})
	got := s.Implement(inputs, nil)
	assert.InDelta(t, 0.5, got.At(0), 1e-9)
	assert.InDelta(t, 1.0, got.At(1), 1e-9)

	_, err := s.Update(inputs, arrays.FromValue([]float64{1, 1}), nil)
	require.ErrorIs(t, err, graph.ErrNoUpdate)

	// x - (σ(x)-r)*σ'(x) = 0 - (0.5-1)*0.25
	requests := s.Request(values(0.0), arrays.Scalar(1), nil)
	assertArray(t, 0.125, requests[0])
}

func TestTanh(t *testing.T) {
	s := Tanh{}
	assertArray(t, []float64{0, math.Tanh(1)}, s.Implement(values([]float64{0, 1}), nil))
	_, err := s.Update(values(0.0), arrays.Scalar(1), nil)
	require.ErrorIs(t, err, graph.ErrNoUpdate)

	// x - (tanh(x)-r)*(1-tanh²(x)) = 0 - (0-1)*1
	assertArray(t, 1.0, s.Request(values(0.0), arrays.Scalar(1), nil)[0])
}

func TestMul(t *testing.T) {
	s := Mul{Learn: learn}
	inputs, params := values(3.0), values(2.0)
	assertArray(t, 6.0, s.Implement(inputs, params))
	updated, err := s.Update(inputs, arrays.Scalar(5), params)
	require.NoError(t, err)
	assertArray(t, 1.7, updated[0])
	assertArray(t, 1.0, s.Request(inputs, arrays.Scalar(5), params)[0])
}

func TestProduct(t *testing.T) {
	s := Product{}
	inputs := values(2.0, 3.0)
	assertArray(t, 6.0, s.Implement(inputs, nil))
	_, err := s.Update(inputs, arrays.Scalar(4), nil)
	require.ErrorIs(t, err, graph.ErrNoUpdate)
	requests := s.Request(inputs, arrays.Scalar(4), nil)
	require.Len(t, requests, 2)
	assertArray(t, -4.0, requests[0])
	assertArray(t, -1.0, requests[1])

	err = exceptions.TryCatch[error](func() { s.Implement(values(1.0), nil) })
	require.ErrorIs(t, err, graph.ErrContractViolation)
}

func TestCustom(t *testing.T) {
	double := Custom{
		ImplementFn: func(inputs, _ []arrays.Array) arrays.Array { return arrays.Scale(inputs[0], 2) },
		RequestFn: func(inputs []arrays.Array, request arrays.Array, _ []arrays.Array) []arrays.Array {
			return []arrays.Array{arrays.Scale(request, 0.5)}
		},
	}
	assertArray(t, 4.0, double.Implement(values(2.0), nil))
	assertArray(t, 1.5, double.Request(values(2.0), arrays.Scalar(3), nil)[0])
	_, err := double.Update(values(2.0), arrays.Scalar(3), nil)
	require.ErrorIs(t, err, graph.ErrNoUpdate)

	err = exceptions.TryCatch[error](func() { Custom{}.Implement(values(1.0), nil) })
	require.ErrorIs(t, err, graph.ErrContractViolation)
}

func TestMeanSquaredError(t *testing.T) {
	fn := MeanSquaredError{}
	prediction := arrays.FromValue([]float64{1, 3})
	target := arrays.FromValue([]float64{1, 1})
	loss := fn.Implement(prediction, target)
	assert.Equal(t, []int{1}, loss.Dims())
	assert.InDelta(t, 1.0, loss.Value(), 1e-9)
	assert.True(t, target.Equal(fn.Request(prediction, target)))
}

func TestRegistry(t *testing.T) {
	assert.Subset(t, Names(), []string{"affine", "linear", "mul", "product", "sigmoid", "tanh"})
	s, err := New("affine", learn)
	require.NoError(t, err)
	assert.Equal(t, Affine{Learn: learn}, s)

	s, err = New("tanh", learn)
	require.NoError(t, err)
	assert.Equal(t, Tanh{}, s)

	_, err = New("relu", learn)
	require.Error(t, err)

	Register("test_double", func(graph.Learn) graph.Strategy { return Custom{} })
	assert.Contains(t, Names(), "test_double")
	require.Panics(t, func() { Register("test_double", func(graph.Learn) graph.Strategy { return Custom{} }) })
	require.Panics(t, func() { Register("test_nil", nil) })
}

func TestNodeAffineScenario(t *testing.T) {
	node := NewAffineNode("affine", learn, arrays.Scalar(2), arrays.Scalar(0))
	errNode := NewMeanSquaredErrorNode("mse")
	g := graph.NewGraph("")
	prediction := node.Call(g, graph.Detached(1.0))
	loss := errNode.Call(g, prediction, graph.Detached(3.0))
	assert.InDelta(t, 0.5, loss.Value().Value(), 1e-9)
	errNode.BackwardChain(g)
	errNode.UpdateChain(g)
	assert.InDelta(t, 2.1, node.Param("w").Value(), 1e-9)
	assert.InDelta(t, 0.1, node.Param("b").Value(), 1e-9)
}

func TestNodeConstructors(t *testing.T) {
	linear := NewLinearNode("linear", learn, arrays.Make(3, 2), arrays.Make(3))
	assert.Equal(t, []string{"w", "b"}, linear.ParamNames())
	err := exceptions.TryCatch[error](func() { NewLinearNode("linear", learn, arrays.Make(3, 2), arrays.Make(2)) })
	require.ErrorIs(t, err, arrays.ErrShapeMismatch)
	err = exceptions.TryCatch[error](func() { NewAffineNode("affine", learn, arrays.Make(3), arrays.Make(2)) })
	require.ErrorIs(t, err, arrays.ErrShapeMismatch)

	assert.Equal(t, []string{"p"}, NewMulNode("mul", learn, arrays.Make(1)).ParamNames())
	assert.Equal(t, 0, NewSigmoidNode("sigmoid").NumParams())
	assert.Equal(t, 0, NewProductNode("product").NumParams())
}

func TestAffineLearnsLine(t *testing.T) {
	// Fit y = 3x + 1.
	node := NewAffineNode("affine", learn, arrays.Scalar(0), arrays.Scalar(0))
	errNode := NewMeanSquaredErrorNode("mse")
	xs := []float64{0, 0.5, 1, 1.5}
	for range 1000 {
		for _, x := range xs {
			g := graph.NewGraph("")
			errNode.Call(g, node.Call(g, graph.Detached(x)), graph.Detached(3*x+1))
			errNode.BackwardChain(g)
			errNode.UpdateChain(g)
			assert.Equal(t, 0, g.NumStates())
		}
	}
	assert.InDelta(t, 3.0, node.Param("w").Value(), 1e-3)
	assert.InDelta(t, 1.0, node.Param("b").Value(), 1e-3)
}

func TestSigmoidChainLearns(t *testing.T) {
	// Linear -> Sigmoid -> Linear, fitting a single example: the loss must go down.
	l1 := NewLinearNode("l1", learn,
		arrays.FromValue([][]float64{{0.1, -0.2}, {0.3, 0.1}}), arrays.FromValue([]float64{0, 0}))
	sig := NewSigmoidNode("sigmoid")
	l2 := NewLinearNode("l2", learn, arrays.FromValue([][]float64{{0.2, -0.1}}), arrays.FromValue([]float64{0}))
	errNode := NewMeanSquaredErrorNode("mse")

	step := func() float64 {
		g := graph.NewGraph("")
		x := graph.Detached([]float64{0.5, 0.1})
		loss := errNode.Call(g, l2.Call(g, sig.Call(g, l1.Call(g, x))), graph.Detached([]float64{0.3}))
		errNode.BackwardChain(g)
		errNode.UpdateChain(g)
		return loss.Value().Value()
	}
	first := step()
	var last float64
	for range 200 {
		last = step()
	}
	assert.Less(t, last, first/10)
}
