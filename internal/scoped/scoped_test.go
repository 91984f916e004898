// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package scoped_test

import (
	"testing"

	"github.com/gomlx/nnfunctor/internal/scoped"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScopedParams(t *testing.T) {
	p := scoped.New("/")
	p.Set("/", "learning_rate", 0.1)
	p.Set("/", "seed", 42)
	p.Set("/mlp", "learning_rate", 0.5)
	p.Set("/mlp/layer_1", "init_stddev", 0.01)

	for _, tc := range []struct {
		scope, key string
		want       any
	}{
		{"/mlp/layer_1", "init_stddev", 0.01},
		{"/mlp/layer_1", "learning_rate", 0.5},
		{"/mlp/layer_1", "seed", 42},
		{"/neuron", "learning_rate", 0.1},
		{"/", "learning_rate", 0.1},
	} {
		value, found := p.Get(tc.scope, tc.key)
		require.Truef(t, found, "%s:%s should be found", tc.scope, tc.key)
		assert.Equalf(t, tc.want, value, "Get(%q, %q)", tc.scope, tc.key)
	}
	_, found := p.Get("/mlp/layer_1", "aggregation")
	assert.False(t, found)
	_, found = p.Get("/", "init_stddev")
	assert.False(t, found)

	type entry struct {
		scope, key string
		value      any
	}
	var got []entry
	p.Enumerate(func(scope, key string, value any) { got = append(got, entry{scope, key, value}) })
	assert.Equal(t, []entry{
		{"/", "learning_rate", 0.1},
		{"/", "seed", 42},
		{"/mlp", "learning_rate", 0.5},
		{"/mlp/layer_1", "init_stddev", 0.01},
	}, got)

	clone := p.Clone()
	p.Delete("/mlp", "learning_rate")
	value, _ := p.Get("/mlp/layer_1", "learning_rate")
	assert.Equal(t, 0.1, value)
	value, _ = clone.Get("/mlp/layer_1", "learning_rate")
	assert.Equal(t, 0.5, value)
}
