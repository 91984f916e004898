// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package train holds tools to help run a training loop: the Trainer runs one training step (forward,
// backward chain and update chain) per example, and the Loop drives it over a Dataset, calling hooks.
package train

import (
	"fmt"
	"io"
	"math"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/nnfunctor/pkg/core/arrays"
	"github.com/gomlx/nnfunctor/pkg/core/graph"
	"github.com/gomlx/nnfunctor/pkg/ml/context"
	"github.com/gomlx/nnfunctor/pkg/ml/layers"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// ModelFn builds the forward pass of a model in g, for the given inputs, and returns the prediction.
//
// The nodes of the model should be created-or-reused in ctx (see package layers), so they are shared
// among the graphs created for each step.
type ModelFn func(ctx *context.Context, g *graph.Graph, inputs []*graph.Var) *graph.Var

// LossFn compares the prediction with the target in g and returns the loss. The loss must be the output
// of a graph.ErrorNode, which is the root of the backward and update chains.
//
// layers.MeanSquaredError is the default.
type LossFn func(ctx *context.Context, g *graph.Graph, prediction, target *graph.Var) *graph.Var

// OnBackwardFn is the type of OnBackward hooks. They are called after the backward chain of a training step,
// when all requests are memoized, and before the update chain changes the parameters.
type OnBackwardFn func(trainer *Trainer, g *graph.Graph) error

// Names of the metrics returned by Trainer.TrainStep, in order.
const (
	LossMetricName              = "loss"
	MovingAverageLossMetricName = "moving_average_loss"
)

// movingAverageMinWeight is the minimum weight of a new loss in the moving average.
const movingAverageMinWeight = 0.01

// Trainer runs the training steps of a model: each step creates a new graph, runs the model forward,
// compares it with the target using the error node, and then runs the backward and update chains.
type Trainer struct {
	ctx     *context.Context
	modelFn ModelFn
	lossFn  LossFn

	globalStep int
	onBackward []*hookWithName[OnBackwardFn]

	// Moving average of the loss.
	lossCount         int
	movingAverageLoss float64
}

// NewTrainer creates a Trainer for the model built by modelFn, with the loss built by lossFn.
// If lossFn is nil, layers.MeanSquaredError is used.
func NewTrainer(ctx *context.Context, modelFn ModelFn, lossFn LossFn) *Trainer {
	if modelFn == nil {
		exceptions.Panicf("train.NewTrainer requires a model function")
	}
	if lossFn == nil {
		lossFn = layers.MeanSquaredError
	}
	return &Trainer{
		ctx:     ctx,
		modelFn: modelFn,
		lossFn:  lossFn,
	}
}

// Context used by the trainer.
func (tr *Trainer) Context() *context.Context { return tr.ctx }

// GlobalStep returns the number of training steps executed so far.
func (tr *Trainer) GlobalStep() int { return tr.globalStep }

// MetricsNames returns the names of the metrics returned by TrainStep.
func (tr *Trainer) MetricsNames() []string {
	return []string{LossMetricName, MovingAverageLossMetricName}
}

// ResetMetrics resets the moving average of the loss.
func (tr *Trainer) ResetMetrics() {
	tr.lossCount = 0
	tr.movingAverageLoss = 0
}

// OnBackward adds a hook called at every training step after the backward chain and before the update
// chain. The name is used for error reporting.
func (tr *Trainer) OnBackward(name string, fn OnBackwardFn) {
	tr.onBackward = append(tr.onBackward, &hookWithName[OnBackwardFn]{name: name, fn: fn})
}

// forward builds the model and the loss in g. The inputs and target are given as detached Vars.
func (tr *Trainer) forward(g *graph.Graph, inputs []arrays.Array, target arrays.Array) (loss *graph.Var, errNode *graph.ErrorNode) {
	if len(inputs) == 0 {
		exceptions.Panicf("%s: no inputs given to the model", g)
	}
	inputVars := make([]*graph.Var, len(inputs))
	for ii, input := range inputs {
		inputVars[ii] = graph.Detached(input)
	}
	prediction := tr.modelFn(tr.ctx, g, inputVars)
	if prediction == nil {
		exceptions.Panicf("%s: model function returned a nil prediction", g)
	}
	loss = tr.lossFn(tr.ctx, g, prediction, graph.Detached(target))
	if loss == nil {
		exceptions.Panicf("%s: loss function returned a nil loss", g)
	}
	errNode, ok := loss.Origin().(*graph.ErrorNode)
	if !ok {
		exceptions.Panicf("%s: loss must be produced by a graph.ErrorNode, got origin %v", g, loss.Origin())
	}
	return loss, errNode
}

// TrainStep runs one training step on the given example, and returns the metrics (see MetricsNames):
// the loss of the example (computed before the update) and its moving average.
//
// Any panic during the step is converted to an error.
func (tr *Trainer) TrainStep(inputs []arrays.Array, target arrays.Array) (metrics []float64, err error) {
	var loss float64
	err = exceptions.TryCatch[error](func() {
		g := tr.ctx.NewGraph(fmt.Sprintf("train_step_%d", tr.globalStep))
		defer g.Finalize()
		lossVar, errNode := tr.forward(g, inputs, target)
		loss = lossVar.Value().Value()
		errNode.BackwardChain(g)
		for _, hook := range tr.onBackward {
			if err := hook.fn(tr, g); err != nil {
				panic(errors.WithMessagef(err, "Trainer.OnBackward(hook %q)", hook.name))
			}
		}
		errNode.UpdateChain(g)
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "Trainer.TrainStep(GlobalStep=%d)", tr.globalStep)
	}
	tr.globalStep++
	tr.lossCount++
	weight := math.Max(1.0/float64(tr.lossCount), movingAverageMinWeight)
	tr.movingAverageLoss += weight * (loss - tr.movingAverageLoss)
	klog.V(1).Infof("train step %d: loss=%g", tr.globalStep, loss)
	return []float64{loss, tr.movingAverageLoss}, nil
}

// Predict runs the model forward on the given inputs and returns the prediction.
// Parameters are not changed.
func (tr *Trainer) Predict(inputs ...arrays.Array) (prediction arrays.Array, err error) {
	err = exceptions.TryCatch[error](func() {
		if len(inputs) == 0 {
			exceptions.Panicf("Trainer.Predict: no inputs given")
		}
		g := tr.ctx.NewGraph("predict")
		defer g.Finalize()
		inputVars := make([]*graph.Var, len(inputs))
		for ii, input := range inputs {
			inputVars[ii] = graph.Detached(input)
		}
		predictionVar := tr.modelFn(tr.ctx, g, inputVars)
		if predictionVar == nil {
			exceptions.Panicf("%s: model function returned a nil prediction", g)
		}
		prediction = predictionVar.Value()
	})
	if err != nil {
		return arrays.Array{}, errors.WithMessage(err, "Trainer.Predict")
	}
	return prediction, nil
}

// Eval returns the mean loss over all examples of the dataset. Parameters are not changed.
//
// The dataset is reset before and after the evaluation, and it must be finite.
func (tr *Trainer) Eval(ds Dataset) (meanLoss float64, err error) {
	ds.Reset()
	defer ds.Reset()
	var count int
	for {
		inputs, target, err := ds.Yield()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, errors.WithMessagef(err, "Trainer.Eval(%q): failed reading from Dataset", ds.Name())
		}
		err = exceptions.TryCatch[error](func() {
			g := tr.ctx.NewGraph(fmt.Sprintf("eval_%s_%d", ds.Name(), count))
			defer g.Finalize()
			loss, _ := tr.forward(g, inputs, target)
			meanLoss += loss.Value().Value()
		})
		if err != nil {
			return 0, errors.WithMessagef(err, "Trainer.Eval(%q): example #%d", ds.Name(), count)
		}
		count++
	}
	if count == 0 {
		return 0, errors.Errorf("Trainer.Eval(%q): dataset is empty", ds.Name())
	}
	return meanLoss / float64(count), nil
}
