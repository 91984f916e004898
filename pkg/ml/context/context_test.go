// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package context

import (
	"testing"

	"github.com/gomlx/nnfunctor/pkg/core/arrays"
	"github.com/gomlx/nnfunctor/pkg/core/graph"
	"github.com/gomlx/nnfunctor/pkg/ml/context/initializers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextScope(t *testing.T) {
	ctx := New()
	assert.Equal(t, RootScope, ctx.Scope())

	ctx2 := ctx.In("mlp").In("layer_1")
	assert.Equal(t, "/mlp/layer_1", ctx2.Scope())
	assert.Equal(t, RootScope, ctx.Scope(), "In must not change the original reference")
	assert.Equal(t, "/mlp/layer_2", ctx.In("mlp").Inf("layer_%d", 2).Scope())
	assert.Equal(t, "/a/b", ctx2.InAbsPath("/a/b").Scope())

	require.Panics(t, func() { ctx.In("") })
	require.Panics(t, func() { ctx.In("a/b") })
	require.Panics(t, func() { ctx.InAbsPath("a") })
	require.Panics(t, func() { ctx.InAbsPath("/a/") })
}

func TestJoinAndSplitScope(t *testing.T) {
	assert.Equal(t, "/linear", JoinScope(RootScope, "linear"))
	assert.Equal(t, "/mlp/linear", JoinScope("/mlp", "linear"))
	assert.Equal(t, "linear", JoinScope("", "linear"))

	for _, name := range []string{"/linear", "/mlp/linear", "linear"} {
		scope, base := SplitScope(name)
		assert.Equal(t, name, JoinScope(scope, base))
	}
	scope, name := SplitScope("/mlp/layer_1/linear")
	assert.Equal(t, "/mlp/layer_1", scope)
	assert.Equal(t, "linear", name)

	assert.Equal(t, "_mlp_linear", EscapeScopeName("/mlp/linear"))
}

func TestParams(t *testing.T) {
	ctx := New()
	ctx.SetParam(ParamLearningRate, 0.5)
	ctx.In("slow").SetParam(ParamLearningRate, 0.01)
	ctx.SetParams(map[string]any{"epochs": 3, ParamAggregation: "mean"})

	assert.Equal(t, 0.5, ctx.LearningRate())
	assert.Equal(t, 0.5, ctx.In("fast").LearningRate())
	assert.Equal(t, 0.01, ctx.In("slow").In("deep").LearningRate())
	assert.Equal(t, graph.Learn{Eps: 0.01}, ctx.In("slow").Learn())
	assert.Equal(t, graph.DefaultLearningRate, New().LearningRate())

	// Conversions.
	assert.Equal(t, 3.0, MustGetParam[float64](ctx, "epochs"))
	assert.Equal(t, 3, GetParamOr(ctx, "epochs", 0))
	assert.Equal(t, "x", GetParamOr(ctx, "missing", "x"))
	require.Panics(t, func() { MustGetParam[int](ctx, "missing") })
	require.Panics(t, func() { MustGetParam[int](ctx, ParamAggregation) })

	// Aggregation.
	assert.Equal(t, graph.AggregateMean, ctx.Aggregation())
	assert.Equal(t, graph.AggregateMean, ctx.NewGraph("").Aggregation())
	assert.Equal(t, graph.AggregateSum, New().Aggregation())
	ctx.In("bad").SetParam(ParamAggregation, "median")
	require.Panics(t, func() { ctx.In("bad").Aggregation() })

	var keys []string
	ctx.EnumerateParams(func(scope, key string, _ any) { keys = append(keys, JoinScope(scope, key)) })
	assert.Equal(t, []string{"/aggregation", "/epochs", "/learning_rate", "/bad/aggregation", "/slow/learning_rate"}, keys)
}

func TestNodes(t *testing.T) {
	ctx := New()
	created := 0
	newAffine := func(scopedName string) *graph.Node {
		created++
		return graph.NewNode(scopedName, stubStrategy{})
	}
	n0 := ctx.In("mlp").NodeOrCreate("linear", newAffine)
	assert.Equal(t, "/mlp/linear", n0.Name())
	assert.Same(t, n0, ctx.In("mlp").NodeOrCreate("linear", newAffine))
	assert.Same(t, n0, ctx.In("mlp").Node("linear"))
	assert.Nil(t, ctx.Node("linear"))
	n1 := ctx.NodeOrCreate("linear", newAffine)
	assert.Equal(t, 2, created)
	assert.Equal(t, 2, ctx.NumNodes())

	var names []string
	ctx.EnumerateNodes(func(scopedName string, _ *graph.Node) { names = append(names, scopedName) })
	assert.Equal(t, []string{"/linear", "/mlp/linear"}, names)
	assert.Equal(t, []*graph.Node{n0}, ctx.In("mlp").NodesInScope())
	assert.Equal(t, []*graph.Node{n1, n0}, ctx.NodesInScope())

	errNode := ctx.ErrorNodeOrCreate("error", func(scopedName string) *graph.ErrorNode {
		return graph.NewErrorNode(scopedName, stubError{})
	})
	assert.Equal(t, "/error", errNode.Name())
	assert.Same(t, errNode, ctx.ErrorNodeOrCreate("error", nil))

	ctx.DeleteNode("linear")
	assert.Nil(t, ctx.Node("linear"))
	require.Panics(t, func() { ctx.NodeOrCreate("other", func(string) *graph.Node { return nil }) })
}

func TestRandom(t *testing.T) {
	ctx := New().WithSeed(7)
	assert.Equal(t, 7, MustGetParam[int](ctx, ParamSeed))
	v0 := ctx.InitialValue(3, 2)
	assert.Equal(t, []int{3, 2}, v0.Dims())

	v1 := New().WithSeed(7).InitialValue(3, 2)
	assert.True(t, v0.Equal(v1), "same seed must generate the same values")

	ctx.SetParam(ParamInitStddev, 0.0)
	assert.True(t, ctx.InitialValue(2).Equal(arrays.Make(2)))

	ctxOne := ctx.WithInitializer(initializers.One)
	assert.Equal(t, []float64{1, 1}, ctxOne.InitialValue(2).Flat())
	assert.Equal(t, []float64{0, 0}, ctx.InitialValue(2).Flat(), "WithInitializer must not change the original reference")
	require.Panics(t, func() { ctx.WithInitializer(nil) })
}

type stubStrategy struct{}

func (stubStrategy) Implement(inputs, _ []arrays.Array) arrays.Array { return inputs[0] }
func (stubStrategy) Update([]arrays.Array, arrays.Array, []arrays.Array) ([]arrays.Array, error) {
	return nil, graph.ErrNoUpdate
}
func (stubStrategy) Request(inputs []arrays.Array, _ arrays.Array, _ []arrays.Array) []arrays.Array {
	return inputs
}

type stubError struct{}

func (stubError) Implement(prediction, _ arrays.Array) arrays.Array { return prediction }
func (stubError) Request(_, target arrays.Array) arrays.Array     { return target }
