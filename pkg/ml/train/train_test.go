// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package train

import (
	"io"
	"math"
	"slices"
	"testing"

	"github.com/gomlx/nnfunctor/pkg/core/arrays"
	"github.com/gomlx/nnfunctor/pkg/core/graph"
	"github.com/gomlx/nnfunctor/pkg/ml/context"
	"github.com/gomlx/nnfunctor/pkg/ml/context/initializers"
	"github.com/gomlx/nnfunctor/pkg/ml/layers"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
)

func affineModel(ctx *context.Context, g *graph.Graph, inputs []*graph.Var) *graph.Var {
	return layers.Affine(ctx, g, inputs[0])
}

func newAffineTrainer() *Trainer {
	ctx := context.New().WithInitializer(initializers.Zero)
	return NewTrainer(ctx, affineModel, nil)
}

func TestInMemoryDataset(t *testing.T) {
	ds := NewInMemoryDataset("toy")
	for ii := range 5 {
		ds.Add(float64(ii), float64(ii), 1.0)
	}
	assert.Equal(t, 5, ds.Len())
	assert.Equal(t, "toy", ds.Name())

	readEpoch := func() (targets []float64) {
		for {
			inputs, target, err := ds.Yield()
			if err == io.EOF {
				return
			}
			require.NoError(t, err)
			require.Len(t, inputs, 2)
			assert.Equal(t, target.Value(), inputs[0].Value())
			targets = append(targets, target.Value())
		}
	}
	assert.Equal(t, []float64{0, 1, 2, 3, 4}, readEpoch())
	assert.Empty(t, readEpoch(), "dataset must stay exhausted until Reset")
	ds.Reset()
	assert.Equal(t, []float64{0, 1, 2, 3, 4}, readEpoch())

	ds.Shuffle(rand.New(rand.NewSource(42)))
	shuffled := readEpoch()
	assert.ElementsMatch(t, []float64{0, 1, 2, 3, 4}, shuffled)

	ds.Reset()
	ds.Infinite(true)
	for range 12 {
		_, _, err := ds.Yield()
		require.NoError(t, err)
	}

	require.Panics(t, func() { ds.Add(1.0, 1.0) })
	require.Panics(t, func() { NewInMemoryDataset("empty").Add(1.0) })

	_, _, err := NewInMemoryDataset("empty").Infinite(true).Yield()
	require.ErrorIs(t, err, io.EOF)
}

func TestShortName(t *testing.T) {
	assert.Equal(t, "tra", ShortName(NewInMemoryDataset("train")))
	assert.Equal(t, "ab", ShortName(NewInMemoryDataset("ab")))
}

func TestTrainStep(t *testing.T) {
	trainer := newAffineTrainer()
	x, target := []arrays.Array{arrays.Scalar(1)}, arrays.Scalar(2)

	var backwardCalls int
	trainer.OnBackward("check", func(tr *Trainer, g *graph.Graph) error {
		backwardCalls++
		node := tr.Context().Node(layers.AffineNodeName)
		require.NotNil(t, node)
		upstream, found := node.UpstreamRequest(g)
		require.True(t, found, "backward chain must have memoized the upstream request")
		assert.Equal(t, 2.0, upstream.Value())
		if backwardCalls == 1 {
			assert.Equal(t, 0.0, node.Param("w").Value(), "parameters must not be updated before the hook")
		}
		return nil
	})

	// Step 1: y=0, loss=0.5*(0-2)^2=2; w=b=0-0.1*(0-2)=0.2.
	metrics, err := trainer.TrainStep(x, target)
	require.NoError(t, err)
	assert.Equal(t, []string{LossMetricName, MovingAverageLossMetricName}, trainer.MetricsNames())
	assert.InDeltaSlice(t, []float64{2, 2}, metrics, 1e-9)
	assert.Equal(t, 1, trainer.GlobalStep())

	// Step 2: y=0.4, loss=0.5*1.6^2=1.28; w=b=0.2-0.1*(0.4-2)=0.36.
	metrics, err = trainer.TrainStep(x, target)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{1.28, 1.64}, metrics, 1e-9)
	assert.Equal(t, 2, backwardCalls)

	node := trainer.Context().Node(layers.AffineNodeName)
	assert.InDelta(t, 0.36, node.Param("w").Value(), 1e-9)
	assert.InDelta(t, 0.36, node.Param("b").Value(), 1e-9)

	prediction, err := trainer.Predict(arrays.Scalar(1))
	require.NoError(t, err)
	assert.InDelta(t, 0.72, prediction.Value(), 1e-9)
	assert.InDelta(t, 0.36, node.Param("w").Value(), 1e-9, "Predict must not change parameters")

	// Eval: losses 0.5*(0.72-2)^2=0.8192 and 0.5*(0.36-1)^2=0.2048.
	ds := NewInMemoryDataset("eval").Add(2.0, 1.0).Add(1.0, 0.0)
	meanLoss, err := trainer.Eval(ds)
	require.NoError(t, err)
	assert.InDelta(t, 0.512, meanLoss, 1e-9)
	assert.Equal(t, 2, trainer.GlobalStep(), "Eval must not count as training")

	_, err = trainer.Eval(NewInMemoryDataset("empty"))
	require.Error(t, err)
}

func TestTrainStepErrors(t *testing.T) {
	t.Run("hook", func(t *testing.T) {
		trainer := newAffineTrainer()
		sentinel := errors.New("stop here")
		trainer.OnBackward("failing", func(*Trainer, *graph.Graph) error { return sentinel })
		_, err := trainer.TrainStep([]arrays.Array{arrays.Scalar(1)}, arrays.Scalar(2))
		require.ErrorIs(t, err, sentinel)
		assert.Contains(t, err.Error(), "failing")
		assert.Equal(t, 0, trainer.GlobalStep())
	})

	t.Run("loss not from error node", func(t *testing.T) {
		ctx := context.New().WithInitializer(initializers.Zero)
		trainer := NewTrainer(ctx, affineModel, func(_ *context.Context, _ *graph.Graph, prediction, _ *graph.Var) *graph.Var {
			return prediction
		})
		_, err := trainer.TrainStep([]arrays.Array{arrays.Scalar(1)}, arrays.Scalar(2))
		require.Error(t, err)
	})

	t.Run("shape mismatch", func(t *testing.T) {
		trainer := newAffineTrainer()
		_, err := trainer.TrainStep([]arrays.Array{arrays.Scalar(1)}, arrays.FromValue([]float64{1, 2}))
		require.ErrorIs(t, err, arrays.ErrShapeMismatch)
	})

	t.Run("no inputs", func(t *testing.T) {
		trainer := newAffineTrainer()
		_, err := trainer.TrainStep(nil, arrays.Scalar(2))
		require.Error(t, err)
		_, err = trainer.Predict()
		require.Error(t, err)
	})

	require.Panics(t, func() { NewTrainer(context.New(), nil, nil) })
}

func TestLoopRunSteps(t *testing.T) {
	trainer := newAffineTrainer()
	loop := NewLoop(trainer)
	ds := NewInMemoryDataset("line").Infinite(true)
	for ii := range 4 {
		x := float64(ii)
		ds.Add(2*x+1, x)
	}

	var order []string
	var starts, ends int
	loop.OnStart("start", 0, func(_ *Loop, _ Dataset) error { starts++; return nil })
	loop.OnStep("second", 10, func(*Loop, []float64) error {
		order = append(order, "second")
		return nil
	})
	loop.OnStep("first", -1, func(*Loop, []float64) error {
		order = append(order, "first")
		return nil
	})
	loop.OnEnd("end", 0, func(_ *Loop, metrics []float64) error {
		ends++
		assert.Len(t, metrics, 2)
		return nil
	})
	var everyTwo []int
	EveryNSteps(loop, 2, "every_two", 0, func(loop *Loop, _ []float64) error {
		everyTwo = append(everyTwo, loop.LoopStep)
		return nil
	})

	metrics, err := loop.RunSteps(ds, 5)
	require.NoError(t, err)
	require.Len(t, metrics, 2)
	assert.Equal(t, 1, starts)
	assert.Equal(t, 1, ends)
	assert.Equal(t, []string{"first", "second", "first", "second"}, order[:4])
	assert.Equal(t, []int{1, 3}, everyTwo)
	assert.Equal(t, 5, loop.LoopStep)
	assert.Equal(t, 5, trainer.GlobalStep())
	assert.Len(t, loop.TrainStepDurations, 5)

	// Picks up where it left off.
	_, err = loop.RunSteps(ds, 3)
	require.NoError(t, err)
	assert.Equal(t, 5, loop.StartStep)
	assert.Equal(t, 8, loop.EndStep)
	assert.Equal(t, 8, trainer.GlobalStep())

	// Finite dataset ends before the requested number of steps.
	_, err = NewLoop(newAffineTrainer()).RunSteps(NewInMemoryDataset("short").Add(1.0, 1.0), 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reached Dataset end")
}

func TestLoopRunEpochs(t *testing.T) {
	trainer := newAffineTrainer()
	loop := NewLoop(trainer)
	ds := NewInMemoryDataset("pair").Add(1.0, 0.0).Add(3.0, 1.0)

	var epochs []int
	loop.OnStep("epochs", 0, func(loop *Loop, _ []float64) error {
		epochs = append(epochs, loop.Epoch)
		return nil
	})
	_, err := loop.RunEpochs(ds, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 1, 1, 2, 2}, epochs)
	assert.Equal(t, 6, loop.LoopStep)
	assert.Equal(t, 6, loop.EndStep)

	_, err = NewLoop(newAffineTrainer()).RunEpochs(NewInMemoryDataset("empty"), 1)
	require.Error(t, err)
}

func TestLoopInterruptsOnNaN(t *testing.T) {
	loop := NewLoop(newAffineTrainer())
	ds := NewInMemoryDataset("nan").Add(math.NaN(), 1.0)
	_, err := loop.RunEpochs(ds, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NaN")
}

func TestNTimesDuringLoop(t *testing.T) {
	loop := NewLoop(newAffineTrainer())
	ds := NewInMemoryDataset("one").Add(1.0, 1.0).Infinite(true)
	var steps []int
	NTimesDuringLoop(loop, 2, "ntimes", 0, func(loop *Loop, _ []float64) error {
		steps = append(steps, loop.LoopStep)
		return nil
	})
	_, err := loop.RunSteps(ds, 10)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 4, 9}, steps)
	assert.True(t, slices.Contains(steps, loop.EndStep-1), "last step must always be included")

	require.Panics(t, func() { EveryNSteps(loop, 0, "invalid", 0, nil) })
}
