// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package graph is the core package of nnfunctor: it records the computation graph of a
// forward pass and traverses it backwards to propagate "requests" and update parameters.
//
// The main elements in the package are:
//
//   - Var: a value container. It is either detached (raw inputs and targets, never part of a
//     traversal), or linked to a Graph, in which case the Graph knows which operator produced it
//     (its origin) and which operators consumed it (its destinations).
//
//   - Strategy: the pluggable formulas of a node: the forward computation (Implement), the
//     parameter update rule (Update) and the back-request for its inputs (Request). Each
//     strategy hand-derives its own rules: there is no automatic differentiation here.
//
//   - Node: owns a Strategy and its named parameters. Node.Call evaluates the strategy and
//     records the edges in the Graph. Node.BackwardChain and Node.UpdateChain traverse the
//     recorded graph towards the inputs.
//
//   - ErrorNode: compares a prediction with a target and roots the backward and update traversals.
//
//   - Graph: the registry of one forward pass. It owns the edges (producer and consumers of each
//     linked Var) and the per-pass state of each operator (cached inputs and output, memoized
//     requests). A new Graph is created for every training step, and Nodes (with their
//     parameters) are reused across graphs.
//
// A training step looks like:
//
//	g := graph.NewGraph("")
//	x := graph.Detached([]float64{0.5, 0.1})
//	y := layer2.Call(g, layer1.Call(g, x))
//	loss := errNode.Call(g, y, graph.Detached(0.3))
//	errNode.BackwardChain(g)  // Memoizes the requests of every node.
//	errNode.UpdateChain(g)    // Updates parameters from the error node towards the inputs, and resets them.
//
// # Error Handling
//
// As in graph building, errors are "thrown" with panic: shape mismatches wrap
// arrays.ErrShapeMismatch, and misuse of the graph (requesting from a node that was not called in
// the graph, passing a Var that is not an input of the node, etc.) wraps ErrContractViolation.
// Use exceptions.TryCatch[error] at the boundaries to convert them back to errors.
//
// Strategies that have no parameters return ErrNoUpdate from Strategy.Update, which is not an
// error: the node simply keeps its (non-existent) parameters.
package graph

import (
	"fmt"
	"slices"
	"sync"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/nnfunctor/pkg/core/arrays"
	"k8s.io/klog/v2"
)

// Graph records the edges and per-operator state of one forward pass.
//
// It is not safe for concurrent use: a training step owns its Graph from the forward pass to the
// end of the update chain.
type Graph struct {
	id   GraphId
	name string

	aggregation Aggregation
	building    bool
	finalized   bool

	// producers maps each linked Var created by an operator to that operator.
	producers map[*Var]Operator

	// consumers maps each linked Var to the edges of the operators that consumed it, in registration order.
	consumers map[*Var][]Edge

	nodeStates  map[*Node]*nodeState
	errorStates map[*ErrorNode]*errorNodeState

	// callCount orders the per-pass states by the time they were created.
	callCount int
}

// GraphId is globally unique.
type GraphId int

var (
	muGraphCount sync.Mutex
	graphCount   GraphId
)

// Edge is a consumer edge: Operator consumed a Var as its input number Position.
type Edge struct {
	Operator Operator
	Position int
}

// Operator is a computation unit that consumes Vars in a Graph: it is implemented by *Node and *ErrorNode.
type Operator interface {
	// Name of the operator, used for logging and error messages.
	Name() string

	requestAt(g *Graph, position int) *Var
	backwardChain(g *Graph)
	updateChain(g *Graph)
}

// NewGraph constructs an empty Graph. If name is empty, one is generated from its GraphId.
//
// The Graph can be further configured (e.g.: with Graph.WithAggregation) until the first Var is
// registered in it.
func NewGraph(name string) *Graph {
	muGraphCount.Lock()
	defer muGraphCount.Unlock()

	if name == "" {
		name = fmt.Sprintf("graph_#%d", graphCount)
	}
	g := &Graph{
		id:          graphCount,
		name:        name,
		aggregation: AggregateSum,
		producers:   make(map[*Var]Operator),
		consumers:   make(map[*Var][]Edge),
		nodeStates:  make(map[*Node]*nodeState),
		errorStates: make(map[*ErrorNode]*errorNodeState),
	}
	graphCount++
	return g
}

// WithAggregation sets how the requests of multiple consumers of the same Var are combined.
// The default is AggregateSum.
//
// It can only be called before any Var is registered in the Graph.
// It returns the graph passed, so configuring methods can be cascaded.
func (g *Graph) WithAggregation(aggregation Aggregation) *Graph {
	g.AssertConfiguring()
	g.aggregation = aggregation
	return g
}

// Name of the Graph.
func (g *Graph) Name() string { return g.name }

// GraphId is a globally unique id of the graph. It's a counter that starts with 0.
func (g *Graph) GraphId() GraphId { return g.id }

// Aggregation policy used to combine the requests of multiple consumers.
func (g *Graph) Aggregation() Aggregation { return g.aggregation }

// String implements fmt.Stringer.
func (g *Graph) String() string {
	return fmt.Sprintf("Graph(%q, #%d)", g.name, g.id)
}

// IsValid returns whether the Graph is usable: not nil and not finalized.
func (g *Graph) IsValid() bool {
	return g != nil && !g.finalized
}

// AssertValid panics if the graph is nil or if it has already been finalized.
func (g *Graph) AssertValid() {
	if g == nil {
		exceptions.Panicf("the Graph is nil")
	}
	if g.finalized {
		exceptions.Panicf("Graph %q has been finalized already", g.name)
	}
}

// AssertConfiguring panics if the graph already started recording a forward pass.
func (g *Graph) AssertConfiguring() {
	g.AssertValid()
	if g.building {
		exceptions.Panicf("Graph %q already started recording, it can not be further configured", g.name)
	}
}

// NumStates returns the number of operators (nodes and error nodes) with a per-pass state in the graph:
// that is, operators that were called and not yet reset.
func (g *Graph) NumStates() int {
	if !g.IsValid() {
		return 0
	}
	return len(g.nodeStates) + len(g.errorStates)
}

// Nodes returns the nodes with a per-pass state in the graph, in the order they were called.
func (g *Graph) Nodes() []*Node {
	g.AssertValid()
	nodes := make([]*Node, 0, len(g.nodeStates))
	for node := range g.nodeStates {
		nodes = append(nodes, node)
	}
	slices.SortFunc(nodes, func(a, b *Node) int {
		return g.nodeStates[a].seq - g.nodeStates[b].seq
	})
	return nodes
}

// Finalize drops all the edges and per-pass states recorded in the Graph.
// The graph is left in an unusable state.
// It is safe to call it more than once.
func (g *Graph) Finalize() {
	if g == nil || g.finalized {
		return
	}
	if klog.V(2).Enabled() && g.NumStates() > 0 {
		klog.Infof("%s finalized with %d operators not reset", g, g.NumStates())
	}
	g.producers = nil
	g.consumers = nil
	g.nodeStates = nil
	g.errorStates = nil
	g.finalized = true
}

// nextSeq returns a new sequence number for a per-pass state.
func (g *Graph) nextSeq() int {
	g.callCount++
	return g.callCount
}

// newOutput creates a Var linked to the graph, produced by op.
func (g *Graph) newOutput(value arrays.Array, op Operator) *Var {
	g.building = true
	v := &Var{value: value, graph: g}
	g.producers[v] = op
	return v
}

// addConsumer records the consumer edge (op, position) for v.
func (g *Graph) addConsumer(v *Var, op Operator, position int) {
	g.building = true
	g.consumers[v] = append(g.consumers[v], Edge{Operator: op, Position: position})
}

// forget removes the edges recorded for op: consumer edges from its inputs, and producer edge of its output.
// Once the producer edge is gone the output has no Origin, so later traversals through other consumers
// of the output stop there.
//
// The consumer edges of the output are owned by the downstream operators, and are removed when they
// are reset.
func (g *Graph) forget(op Operator, inputs []*Var, output *Var) {
	for _, input := range inputs {
		if input.graph != g {
			continue
		}
		edges := slices.DeleteFunc(g.consumers[input], func(e Edge) bool { return e.Operator == op })
		if len(edges) == 0 {
			delete(g.consumers, input)
		} else {
			g.consumers[input] = edges
		}
	}
	if output != nil {
		delete(g.producers, output)
	}
}
