// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package functions

import (
	"maps"
	"slices"
	"sync"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/nnfunctor/pkg/core/graph"
	"github.com/pkg/errors"
)

// Factory creates a strategy configured with the given learning configuration.
// Strategies without parameters ignore it.
type Factory func(learn graph.Learn) graph.Strategy

var (
	muRegistry sync.Mutex
	registry   = map[string]Factory{
		"affine":  func(learn graph.Learn) graph.Strategy { return Affine{Learn: learn} },
		"linear":  func(learn graph.Learn) graph.Strategy { return Linear{Learn: learn} },
		"sigmoid": func(graph.Learn) graph.Strategy { return Sigmoid{} },
		"tanh":    func(graph.Learn) graph.Strategy { return Tanh{} },
		"mul":     func(learn graph.Learn) graph.Strategy { return Mul{Learn: learn} },
		"product": func(graph.Learn) graph.Strategy { return Product{} },
	}
)

// Register a strategy factory under the given name. It panics if the name is already registered.
func Register(name string, factory Factory) {
	muRegistry.Lock()
	defer muRegistry.Unlock()
	if factory == nil {
		exceptions.Panicf("functions.Register(%q): nil factory", name)
	}
	if _, found := registry[name]; found {
		exceptions.Panicf("functions.Register(%q): strategy already registered", name)
	}
	registry[name] = factory
}

// New creates the strategy registered under name.
func New(name string, learn graph.Learn) (graph.Strategy, error) {
	muRegistry.Lock()
	factory, found := registry[name]
	muRegistry.Unlock()
	if !found {
		return nil, errors.Errorf("unknown strategy %q, registered strategies are %q", name, Names())
	}
	return factory(learn), nil
}

// Names returns the names of the registered strategies, sorted.
func Names() []string {
	muRegistry.Lock()
	defer muRegistry.Unlock()
	return slices.Sorted(maps.Keys(registry))
}
