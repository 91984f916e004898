// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package context

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/nnfunctor/pkg/core/arrays"
	"github.com/gomlx/nnfunctor/pkg/ml/context/initializers"
	"golang.org/x/exp/rand"
)

// WithSeed resets the random number generator of the context with the given seed, and records it
// as the ParamSeed parameter in the root scope.
//
// The generator is shared by all references of the context, so it returns the context itself.
func (ctx *Context) WithSeed(seed uint64) *Context {
	ctx.data.rng = rand.New(rand.NewSource(seed))
	ctx.data.params.Set(RootScope, ParamSeed, int(seed))
	return ctx
}

// RNG returns the random number generator of the context. It's shared among all references.
func (ctx *Context) RNG() *rand.Rand {
	return ctx.data.rng
}

// WithInitializer returns a new reference to the Context, with the initializer set.
//
// Notice that default initialization is part of the "reference" component of a Context, so this change
// won't affect other context references.
func (ctx *Context) WithInitializer(initializer initializers.Initializer) *Context {
	if initializer == nil {
		exceptions.Panicf("Context.WithInitializer passed a nil initializer")
	}
	ctx2 := ctx.copy()
	ctx2.initializer = initializer
	return ctx2
}

// Initializer returns the initializer of the current reference. If none was set, it returns a random
// normal initializer with the standard deviation set by ParamInitStddev (default 1.0) in the current scope.
func (ctx *Context) Initializer() initializers.Initializer {
	if ctx.initializer != nil {
		return ctx.initializer
	}
	return initializers.RandomNormalFn(GetParamOr(ctx, ParamInitStddev, 1.0))
}

// InitialValue returns a new parameter value with the given dimensions, created by the context initializer.
func (ctx *Context) InitialValue(dims ...int) arrays.Array {
	return ctx.Initializer()(ctx.data.rng, dims...)
}
