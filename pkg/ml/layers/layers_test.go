// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package layers

import (
	"flag"
	"math"
	"testing"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/nnfunctor/pkg/core/arrays"
	"github.com/gomlx/nnfunctor/pkg/core/graph"
	"github.com/gomlx/nnfunctor/pkg/ml/context"
	"github.com/gomlx/nnfunctor/pkg/ml/context/initializers"
	"github.com/gomlx/nnfunctor/pkg/ml/functions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

var (
	flagPlot = flag.Bool("plot", false, "output plot of layer tests.")
)

func plotComputation(title string, start, end float64, fns ...func(x float64) float64) {
	p := plot.New()
	p.Title.Text = title

	p.X.Label.Text = "x"
	p.X.Min = start
	p.X.Max = end

	p.Y.Label.Text = "f(x)"
	p.Y.Min = 0
	p.Y.Max = 1.1

	var plotters []plot.Plotter
	for _, fn := range fns {
		fnPlot := plotter.NewFunction(fn)
		fnPlot.Samples = 1000
		plotters = append(plotters, fnPlot)
	}
	p.Add(plotters...)
	if err := p.Save(12*vg.Inch, 6*vg.Inch, title+".png"); err != nil {
		panic(err)
	}
}

func TestLayersCreateOrReuse(t *testing.T) {
	ctx := context.New().WithSeed(1)
	x := graph.Detached([]float64{0.5, 0.1, -1})

	g := graph.NewGraph("")
	y := Linear(ctx.In("hidden"), g, x, 2)
	assert.Equal(t, []int{2}, y.Shape())
	node := ctx.In("hidden").Node(LinearNodeName)
	require.NotNil(t, node)
	assert.Equal(t, "/hidden/linear", node.Name())
	assert.Equal(t, []int{2, 3}, node.Param("w").Dims())
	assert.Equal(t, []int{2}, node.Param("b").Dims())

	// Same node in another graph.
	Linear(ctx.In("hidden"), graph.NewGraph(""), x, 2)
	assert.Equal(t, 1, ctx.NumNodes())

	// Twice in the same graph.
	require.Panics(t, func() { Linear(ctx.In("hidden"), g, x, 2) })

	// Output dimension changed.
	require.Panics(t, func() { Linear(ctx.In("hidden"), graph.NewGraph(""), x, 4) })

	// Linear requires vectors.
	err := exceptions.TryCatch[error](func() {
		Linear(ctx.In("matrix"), graph.NewGraph(""), graph.Detached([][]float64{{1, 2}}), 2)
	})
	require.ErrorIs(t, err, arrays.ErrShapeMismatch)

	// Other layers.
	g = graph.NewGraph("")
	assert.Equal(t, []int{3}, Affine(ctx, g, x).Shape())
	assert.Equal(t, []int{3}, Mul(ctx, g, x).Shape())
	s := Sigmoid(ctx, g, x)
	assert.Equal(t, []int{3}, Product(ctx, g, s, x).Shape())
	names := []string{}
	ctx.EnumerateNodes(func(scopedName string, _ *graph.Node) { names = append(names, scopedName) })
	assert.Equal(t, []string{"/affine", "/hidden/linear", "/mul", "/product", "/sigmoid"}, names)
}

func TestActivation(t *testing.T) {
	ctx := context.New()
	ctx.In("tanh").SetParam(ParamActivation, "tanh")
	ctx.In("affine").SetParam(ParamActivation, "affine")
	ctx.In("unknown").SetParam(ParamActivation, "relu")
	x := graph.Detached([]float64{0, 1})

	g := graph.NewGraph("")
	y := Activation(ctx, g, x)
	assert.InDelta(t, 0.5, y.Value().At(0), 1e-9)
	assert.IsType(t, functions.Sigmoid{}, ctx.Node(ActivationNodeName).Strategy())

	y = Activation(ctx.In("tanh"), g, x)
	assert.InDelta(t, math.Tanh(1), y.Value().At(1), 1e-9)
	assert.IsType(t, functions.Tanh{}, ctx.In("tanh").Node(ActivationNodeName).Strategy())

	// Strategies with parameters can't be used as activations.
	err := exceptions.TryCatch[error](func() { Activation(ctx.In("affine"), g, x) })
	require.ErrorIs(t, err, graph.ErrContractViolation)

	err = exceptions.TryCatch[error](func() { Activation(ctx.In("unknown"), g, x) })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "relu")
	assert.Nil(t, ctx.In("unknown").Node(ActivationNodeName))
}

func TestLayersLearningRate(t *testing.T) {
	ctx := context.New().WithInitializer(initializers.Zero)
	ctx.SetParam(context.ParamLearningRate, 0.5)
	ctx.In("slow").SetParam(context.ParamLearningRate, 0.01)

	g := graph.NewGraph("")
	x := graph.Detached(1.0)
	Affine(ctx.In("fast"), g, x)
	Affine(ctx.In("slow"), g, x)

	eps := func(scope string) float64 {
		return ctx.In(scope).Node(AffineNodeName).Strategy().(functions.Affine).Eps
	}
	assert.Equal(t, 0.5, eps("fast"))
	assert.Equal(t, 0.01, eps("slow"))
}

func TestMultiLayerPerceptron(t *testing.T) {
	ctx := context.New().WithSeed(42)
	ctx.SetParam(context.ParamLearningRate, 0.2)
	ctx.SetParam(context.ParamInitStddev, 0.5)
	target := func(x float64) float64 { return 1.0 / (1.0 + math.Exp(-(4*x - 1))) }

	model := func(g *graph.Graph, x float64) *graph.Var {
		hidden := Linear(ctx.In("hidden"), g, graph.Detached([]float64{x}), 4)
		hidden = Sigmoid(ctx.In("hidden"), g, hidden)
		return Linear(ctx.In("output"), g, hidden, 1)
	}
	xs := make([]float64, 21)
	for ii := range xs {
		xs[ii] = -1.0 + 0.1*float64(ii)
	}
	meanLoss := func() float64 {
		var total float64
		for _, x := range xs {
			diff := model(graph.NewGraph(""), x).Value().Value() - target(x)
			total += 0.5 * diff * diff
		}
		return total / float64(len(xs))
	}

	initialLoss := meanLoss()
	for range 300 {
		for _, x := range xs {
			g := ctx.NewGraph("")
			MeanSquaredError(ctx, g, model(g, x), graph.Detached(target(x)))
			errNode := ctx.ErrorNodeOrCreate(MeanSquaredErrorNodeName, nil)
			errNode.BackwardChain(g)
			errNode.UpdateChain(g)
			require.Equal(t, 0, g.NumStates())
		}
	}
	finalLoss := meanLoss()
	t.Logf("mean loss: initial=%g, final=%g", initialLoss, finalLoss)
	assert.Less(t, finalLoss, initialLoss/4)

	if *flagPlot {
		learned := func(x float64) float64 { return model(graph.NewGraph(""), x).Value().Value() }
		plotComputation("multi_layer_perceptron", -1, 1, target, learned)
	}
}
