// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package context

import (
	"maps"
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/nnfunctor/pkg/core/graph"
)

// Node returns the node with the given name in the current scope, or nil if there is none.
func (ctx *Context) Node(name string) *graph.Node {
	return ctx.data.nodes[JoinScope(ctx.scope, name)]
}

// NodeOrCreate returns the node with the given name in the current scope. If it doesn't exist yet, it
// is created with newFn, which is given the absolute scoped name, and registered in the context.
func (ctx *Context) NodeOrCreate(name string, newFn func(scopedName string) *graph.Node) *graph.Node {
	scopedName := JoinScope(ctx.scope, name)
	if node, found := ctx.data.nodes[scopedName]; found {
		return node
	}
	node := newFn(scopedName)
	if node == nil {
		exceptions.Panicf("Context.NodeOrCreate(%q): creation function returned nil", scopedName)
	}
	ctx.data.nodes[scopedName] = node
	return node
}

// ErrorNodeOrCreate returns the error node with the given name in the current scope. If it doesn't
// exist yet, it is created with newFn, which is given the absolute scoped name.
func (ctx *Context) ErrorNodeOrCreate(name string, newFn func(scopedName string) *graph.ErrorNode) *graph.ErrorNode {
	scopedName := JoinScope(ctx.scope, name)
	if node, found := ctx.data.errorNodes[scopedName]; found {
		return node
	}
	node := newFn(scopedName)
	if node == nil {
		exceptions.Panicf("Context.ErrorNodeOrCreate(%q): creation function returned nil", scopedName)
	}
	ctx.data.errorNodes[scopedName] = node
	return node
}

// NumNodes returns the number of nodes registered in the context, in any scope.
func (ctx *Context) NumNodes() int {
	return len(ctx.data.nodes)
}

// EnumerateNodes calls fn for every node registered in the context, in any scope, sorted by their
// scoped name.
func (ctx *Context) EnumerateNodes(fn func(scopedName string, node *graph.Node)) {
	for _, name := range slices.Sorted(maps.Keys(ctx.data.nodes)) {
		fn(name, ctx.data.nodes[name])
	}
}

// NodesInScope returns the nodes registered in the current scope or in any of its sub-scopes,
// sorted by their scoped name.
func (ctx *Context) NodesInScope() []*graph.Node {
	var nodes []*graph.Node
	prefix := JoinScope(ctx.scope, "")
	ctx.EnumerateNodes(func(scopedName string, node *graph.Node) {
		if len(scopedName) > len(prefix) && scopedName[:len(prefix)] == prefix {
			nodes = append(nodes, node)
		}
	})
	return nodes
}

// DeleteNode removes the node with the given name in the current scope. It's a no-op if it doesn't exist.
func (ctx *Context) DeleteNode(name string) {
	delete(ctx.data.nodes, JoinScope(ctx.scope, name))
}
