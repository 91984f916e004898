// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"maps"
	"math"
	"slices"

	"github.com/gomlx/nnfunctor/pkg/core/arrays"
	"github.com/gomlx/nnfunctor/pkg/core/graph"
	"github.com/gomlx/nnfunctor/pkg/ml/context"
	"github.com/gomlx/nnfunctor/pkg/ml/layers"
	"github.com/gomlx/nnfunctor/pkg/ml/train"
	"github.com/pkg/errors"
)

// experiment is a toy problem: a model and a generator of its dataset.
type experiment struct {
	name        string
	description string
	model       train.ModelFn

	// build returns a new (finite) dataset with the examples of the experiment.
	build func() *train.InMemoryDataset

	// sample is an input used to create the nodes of the model before training.
	sample []arrays.Array
}

// gridStep is the distance between consecutive points of the toy datasets grids.
const gridStep = 0.1

// grid returns the points in [0, 1) separated by gridStep.
func grid() []float64 {
	n := int(math.Round(1 / gridStep))
	points := make([]float64, n)
	for i := range points {
		points[i] = float64(i) * gridStep
	}
	return points
}

func logistic(x float64) float64 { return 1 / (1 + math.Exp(-x)) }

var experiments = map[string]experiment{
	"neuron": {
		name:        "neuron",
		description: "single neuron (affine and activation) learning sigmoid(4x-2)",
		model: func(ctx *context.Context, g *graph.Graph, inputs []*graph.Var) *graph.Var {
			ctx = ctx.In("neuron")
			return layers.Activation(ctx, g, layers.Affine(ctx, g, inputs[0]))
		},
		build: func() *train.InMemoryDataset {
			ds := train.NewInMemoryDataset("neuron")
			for _, x := range grid() {
				ds.Add(logistic(4*x-2), x)
			}
			return ds
		},
		sample: []arrays.Array{arrays.Scalar(0)},
	},
	"mlp": {
		name:        "mlp",
		description: "two-layer perceptron learning x*y from the vector [x, y]",
		model: func(ctx *context.Context, g *graph.Graph, inputs []*graph.Var) *graph.Var {
			hidden := layers.Linear(ctx.In("hidden"), g, inputs[0], 2)
			hidden = layers.Activation(ctx.In("hidden"), g, hidden)
			return layers.Linear(ctx.In("output"), g, hidden, 1)
		},
		build: func() *train.InMemoryDataset {
			ds := train.NewInMemoryDataset("mlp")
			for _, x := range grid() {
				for _, y := range grid() {
					ds.Add(x*y, []float64{x, y})
				}
			}
			return ds
		},
		sample: []arrays.Array{arrays.FromValue([]float64{0, 0})},
	},
	"product": {
		name:        "product",
		description: "product of two learned factors learning 3*x*y from the scalars x and y",
		model: func(ctx *context.Context, g *graph.Graph, inputs []*graph.Var) *graph.Var {
			x := layers.Mul(ctx.In("x"), g, inputs[0])
			y := layers.Mul(ctx.In("y"), g, inputs[1])
			return layers.Product(ctx.In("product"), g, x, y)
		},
		build: func() *train.InMemoryDataset {
			ds := train.NewInMemoryDataset("product")
			for _, x := range grid() {
				for _, y := range grid() {
					ds.Add(3*x*y, x, y)
				}
			}
			return ds
		},
		sample: []arrays.Array{arrays.Scalar(0), arrays.Scalar(0)},
	},
}

// experimentNames returns the sorted names of the known experiments.
func experimentNames() []string {
	return slices.Sorted(maps.Keys(experiments))
}

func lookupExperiment(name string) (experiment, error) {
	exp, found := experiments[name]
	if !found {
		return experiment{}, errors.Errorf("unknown experiment %q, please use one of %q", name, experimentNames())
	}
	return exp, nil
}
