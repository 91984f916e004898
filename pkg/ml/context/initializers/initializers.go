// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package initializers include several parameter initializers, to be used with context.
// They implement the Initializer type.
package initializers

import (
	"github.com/gomlx/nnfunctor/pkg/core/arrays"
	"golang.org/x/exp/rand"
)

// Initializer returns the initial value of a parameter with the given dimensions.
// Random initializers draw from rng, which is owned by the context.
type Initializer func(rng *rand.Rand, dims ...int) arrays.Array

// Zero initializes parameters with zero.
func Zero(_ *rand.Rand, dims ...int) arrays.Array {
	return arrays.Make(dims...)
}

// One initializes parameters with one.
func One(_ *rand.Rand, dims ...int) arrays.Array {
	return arrays.Full(1, dims...)
}

// Constant returns an initializer that fills parameters with value.
func Constant(value float64) Initializer {
	return func(_ *rand.Rand, dims ...int) arrays.Array {
		return arrays.Full(value, dims...)
	}
}

// RandomNormalFn returns an initializer that generates random normal values with the given standard deviation
// and mean set to 0.
func RandomNormalFn(stddev float64) Initializer {
	return func(rng *rand.Rand, dims ...int) arrays.Array {
		values := arrays.Make(dims...)
		return arrays.Map(values, func(_ float64) float64 { return rng.NormFloat64() * stddev })
	}
}

// RandomUniformFn return an initializer that generates a random uniform values from [min, max).
func RandomUniformFn(min, max float64) Initializer {
	return func(rng *rand.Rand, dims ...int) arrays.Array {
		values := arrays.Make(dims...)
		return arrays.Map(values, func(_ float64) float64 { return min + rng.Float64()*(max-min) })
	}
}
