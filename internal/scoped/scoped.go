// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package scoped provides a mapping from a string to any data type that is "scoped".
package scoped

import (
	"maps"
	"slices"
	"strings"
)

// Params provides a mapping from string to any data type that is "scoped":
//
//   - For every scope there is a map of string to data.
//   - Accessing a key triggers a search from the current scope up to the root scope, the
//     first result found is returned.
//
// Example: let's say the current Params hold:
//
//	Scope: "/": { "learning_rate": 0.1, "seed": 42 }
//	Scope: "/mlp": { "learning_rate": 0.5 }
//	Scope: "/mlp/layer_1": { "init_stddev": 0.01 }
//
//	Params.Get("/mlp/layer_1", "init_stddev") -> 0.01
//	Params.Get("/mlp/layer_1", "learning_rate") -> 0.5
//	Params.Get("/mlp/layer_1", "seed") -> 42
//	Params.Get("/mlp/layer_1", "aggregation") -> Not found.
//
// The Separator splits the parts of the scope path, and the root scope is the Separator alone.
// Every scope name must start with the Separator.
//
// The Context object uses Params to store the hyperparameters (see Context.GetParam and Context.SetParam).
type Params struct {
	Separator  string
	scopeToMap map[string]map[string]any
}

// New creates an empty Params.
func New(scopeSeparator string) *Params {
	return &Params{
		Separator:  scopeSeparator,
		scopeToMap: make(map[string]map[string]any),
	}
}

// Clone returns a copy of the Params. The values themselves are not deep-copied.
func (p *Params) Clone() *Params {
	newParams := New(p.Separator)
	for scope, dataMap := range p.scopeToMap {
		newParams.scopeToMap[scope] = maps.Clone(dataMap)
	}
	return newParams
}

// Set sets the value for the given key, in the given scope.
func (p *Params) Set(scope, key string, value any) {
	dataMap := p.scopeToMap[scope]
	if dataMap == nil {
		dataMap = make(map[string]any)
		p.scopeToMap[scope] = dataMap
	}
	dataMap[key] = value
}

// Delete removes the key from the given scope only. Values set in parent scopes are not affected.
func (p *Params) Delete(scope, key string) {
	dataMap := p.scopeToMap[scope]
	delete(dataMap, key)
	if len(dataMap) == 0 {
		delete(p.scopeToMap, scope)
	}
}

// parent returns the parent of scope, and false if scope is the root.
func (p *Params) parent(scope string) (string, bool) {
	if scope == p.Separator || scope == "" {
		return "", false
	}
	idx := strings.LastIndex(scope, p.Separator)
	if idx <= 0 {
		return p.Separator, true
	}
	return scope[:idx], true
}

// Get retrieves the value for the given key in the given scope or any parent scope.
// E.g: Get("/a/b", "myKey") will search for "myKey" in scopes "/a/b", "/a" and "/"
// consecutively until "myKey" is found.
//
// It returns the first value found if any, and whether some value was found.
func (p *Params) Get(scope, key string) (value any, found bool) {
	for ok := true; ok; scope, ok = p.parent(scope) {
		if value, found = p.scopeToMap[scope][key]; found {
			return
		}
	}
	return nil, false
}

// Enumerate calls fn for every parameter stored, sorted by scope and then by key.
func (p *Params) Enumerate(fn func(scope, key string, value any)) {
	for _, scope := range slices.Sorted(maps.Keys(p.scopeToMap)) {
		keyValues := p.scopeToMap[scope]
		for _, key := range slices.Sorted(maps.Keys(keyValues)) {
			fn(scope, key, keyValues[key])
		}
	}
}
