// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package layers holds helpers that create-or-reuse the nodes of a model in a context.Context, and
// call them in a graph.
//
// Nodes are named by the scope of the context, so each layer must be built in its own scope:
//
//	func ModelGraph(ctx *context.Context, g *graph.Graph, inputs []*graph.Var) *graph.Var {
//		hidden := layers.Sigmoid(ctx.In("hidden"), g, layers.Linear(ctx.In("hidden"), g, inputs[0], 2))
//		return layers.Linear(ctx.In("output"), g, hidden, 1)
//	}
package layers

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/nnfunctor/pkg/core/arrays"
	"github.com/gomlx/nnfunctor/pkg/core/graph"
	"github.com/gomlx/nnfunctor/pkg/ml/context"
	"github.com/gomlx/nnfunctor/pkg/ml/functions"
	"github.com/pkg/errors"
)

// Names of the nodes created by the layer helpers, within the context scope.
const (
	AffineNodeName           = "affine"
	LinearNodeName           = "linear"
	SigmoidNodeName          = "sigmoid"
	MulNodeName              = "mul"
	ProductNodeName          = "product"
	MeanSquaredErrorNodeName = "mse"
	ActivationNodeName       = "activation"
)

const (
	// ParamActivation context hyperparameter defines the name of the strategy used by Activation.
	// It must be a strategy registered in the functions package without parameters, e.g. "sigmoid" or "tanh".
	// The default is "sigmoid".
	ParamActivation = "activation"
)

// callOnce calls node in g, and panics if the node was already called in g: each node created by the
// layer helpers can be used only once per graph. Use different scopes (ctx.In) for different layers.
func callOnce(node *graph.Node, g *graph.Graph, inputs ...*graph.Var) *graph.Var {
	if node.HasState(g) {
		exceptions.Panicf("node %q already called in %s: use a different scope (ctx.In) for each layer", node.Name(), g)
	}
	return node.Call(g, inputs...)
}

// Affine applies the elementwise transformation w*x + b, using the node "affine" in the context scope.
//
// The node is created on the first call, with w and b initialized by the context initializer with the shape
// of x, and the learning rate of the scope (see context.ParamLearningRate).
func Affine(ctx *context.Context, g *graph.Graph, x *graph.Var) *graph.Var {
	node := ctx.NodeOrCreate(AffineNodeName, func(scopedName string) *graph.Node {
		return functions.NewAffineNode(scopedName, ctx.Learn(), ctx.InitialValue(x.Shape()...), ctx.InitialValue(x.Shape()...))
	})
	return callOnce(node, g, x)
}

// Linear applies the fully connected transformation w·x + b, with x a vector, using the node "linear" in the
// context scope. The output has dimension [outputDim].
//
// The node is created on the first call, with w (dimensions [outputDim, len(x)]) and b initialized by the
// context initializer, and the learning rate of the scope (see context.ParamLearningRate).
func Linear(ctx *context.Context, g *graph.Graph, x *graph.Var, outputDim int) *graph.Var {
	if len(x.Shape()) != 1 {
		panic(errors.Wrapf(arrays.ErrShapeMismatch, "layers.Linear: input must be a vector, got dimensions %v", x.Shape()))
	}
	inputDim := x.Shape()[0]
	node := ctx.NodeOrCreate(LinearNodeName, func(scopedName string) *graph.Node {
		return functions.NewLinearNode(scopedName, ctx.Learn(), ctx.InitialValue(outputDim, inputDim), ctx.InitialValue(outputDim))
	})
	if w := node.Param("w"); w.Dims()[0] != outputDim {
		exceptions.Panicf("layers.Linear: node %q has output dimension %d, but %d was requested",
			node.Name(), w.Dims()[0], outputDim)
	}
	return callOnce(node, g, x)
}

// Sigmoid applies the elementwise logistic function, using the node "sigmoid" in the context scope.
func Sigmoid(ctx *context.Context, g *graph.Graph, x *graph.Var) *graph.Var {
	node := ctx.NodeOrCreate(SigmoidNodeName, functions.NewSigmoidNode)
	return callOnce(node, g, x)
}

// Activation applies the elementwise activation configured by ParamActivation, using the node
// "activation" in the context scope.
//
// The strategy is looked up by name in the functions registry when the node is created, so changing
// the parameter later doesn't affect existing nodes.
func Activation(ctx *context.Context, g *graph.Graph, x *graph.Var) *graph.Var {
	node := ctx.NodeOrCreate(ActivationNodeName, func(scopedName string) *graph.Node {
		name := context.GetParamOr(ctx, ParamActivation, SigmoidNodeName)
		strategy, err := functions.New(name, ctx.Learn())
		if err != nil {
			panic(errors.WithMessagef(err, "layers.Activation(%q)", scopedName))
		}
		return graph.NewNode(scopedName, strategy)
	})
	return callOnce(node, g, x)
}

// Mul multiplies x elementwise by a learned factor p, using the node "mul" in the context scope.
//
// The node is created on the first call, with p initialized by the context initializer with the shape of x.
func Mul(ctx *context.Context, g *graph.Graph, x *graph.Var) *graph.Var {
	node := ctx.NodeOrCreate(MulNodeName, func(scopedName string) *graph.Node {
		return functions.NewMulNode(scopedName, ctx.Learn(), ctx.InitialValue(x.Shape()...))
	})
	return callOnce(node, g, x)
}

// Product multiplies x0 and x1 elementwise, using the node "product" in the context scope.
func Product(ctx *context.Context, g *graph.Graph, x0, x1 *graph.Var) *graph.Var {
	node := ctx.NodeOrCreate(ProductNodeName, functions.NewProductNode)
	return callOnce(node, g, x0, x1)
}

// MeanSquaredError compares prediction and target using the error node "mse" in the context scope,
// and returns the loss.
func MeanSquaredError(ctx *context.Context, g *graph.Graph, prediction, target *graph.Var) *graph.Var {
	errNode := ctx.ErrorNodeOrCreate(MeanSquaredErrorNodeName, functions.NewMeanSquaredErrorNode)
	return errNode.Call(g, prediction, target)
}
