// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"fmt"
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/nnfunctor/pkg/core/arrays"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Node is a computation unit: it holds a Strategy and its named parameters.
//
// A Node is reused across graphs (typically one per training step), and its parameters persist
// across them. The per-pass state (inputs, output and memoized requests) of each call is kept by
// the Graph it was called in.
type Node struct {
	name       string
	strategy   Strategy
	paramNames []string
	params     []arrays.Array
}

// nodeState is the per-pass state of a Node in a Graph.
type nodeState struct {
	seq      int
	inputs   []*Var
	output   *Var
	upstream memo[arrays.Array]
	requests memo[[]*Var]
}

var _ Operator = (*Node)(nil)

// NewNode creates a Node with the given strategy and no parameters.
// Parameters are added with Node.WithParam.
func NewNode(name string, strategy Strategy) *Node {
	if strategy == nil {
		exceptions.Panicf("NewNode(%q): strategy is nil", name)
	}
	return &Node{name: name, strategy: strategy}
}

// WithParam adds a parameter to the node. Parameters are passed to the strategy in the order they
// were added. The value is converted with arrays.FromValue.
//
// It returns the node itself, so calls can be cascaded.
func (n *Node) WithParam(name string, value any) *Node {
	if slices.Contains(n.paramNames, name) {
		exceptions.Panicf("Node(%q).WithParam(%q): parameter already defined", n.name, name)
	}
	n.paramNames = append(n.paramNames, name)
	n.params = append(n.params, arrays.FromValue(value).Clone())
	return n
}

// Name of the node.
func (n *Node) Name() string { return n.name }

// String implements fmt.Stringer.
func (n *Node) String() string {
	return fmt.Sprintf("Node(%q, %T)", n.name, n.strategy)
}

// Strategy used by the node.
func (n *Node) Strategy() Strategy { return n.strategy }

// NumParams returns the number of parameters of the node.
func (n *Node) NumParams() int { return len(n.params) }

// ParamNames returns the names of the parameters, in declaration order.
func (n *Node) ParamNames() []string { return slices.Clone(n.paramNames) }

// Params returns the current parameter values, in declaration order.
// The arrays shouldn't be modified.
func (n *Node) Params() []arrays.Array { return slices.Clone(n.params) }

// Param returns the current value of the named parameter. It panics if there is no such parameter.
func (n *Node) Param(name string) arrays.Array {
	idx := slices.Index(n.paramNames, name)
	if idx < 0 {
		exceptions.Panicf("Node(%q) has no parameter %q, parameters are %q", n.name, name, n.paramNames)
	}
	return n.params[idx]
}

// SetParams replaces the parameter values. The number of values and their shapes must match the
// current parameters.
func (n *Node) SetParams(params []arrays.Array) {
	if len(params) != len(n.params) {
		panic(errors.Wrapf(arrays.ErrShapeMismatch, "Node(%q).SetParams: %d values given, but node has %d parameters",
			n.name, len(params), len(n.params)))
	}
	for ii, p := range params {
		arrays.AssertSameShape(fmt.Sprintf("Node(%q) parameter %q", n.name, n.paramNames[ii]), n.params[ii], p)
	}
	n.params = slices.Clone(params)
}

// SetParam replaces the value of the named parameter, which must keep its shape.
func (n *Node) SetParam(name string, value any) {
	idx := slices.Index(n.paramNames, name)
	if idx < 0 {
		exceptions.Panicf("Node(%q) has no parameter %q, parameters are %q", n.name, name, n.paramNames)
	}
	v := arrays.FromValue(value).Clone()
	arrays.AssertSameShape(fmt.Sprintf("Node(%q).SetParam(%q)", n.name, name), n.params[idx], v)
	n.params[idx] = v
}

// Call evaluates the node on the inputs, and records the pass in g: the node is registered as the
// consumer of each linked input, and the returned output is linked to g with the node as its origin.
//
// Inputs can be detached or linked to g. Calling a node again in the same graph drops the state
// and edges of the previous call.
func (n *Node) Call(g *Graph, inputs ...*Var) *Var {
	g.AssertValid()
	who := fmt.Sprintf("Node(%q).Call", n.name)
	if len(inputs) == 0 {
		exceptions.Panicf("%s requires at least one input", who)
	}
	for ii, input := range inputs {
		input.assertInGraph(g, who, ii)
	}
	if _, found := g.nodeStates[n]; found {
		klog.V(1).Infof("%s: node called again in %s, previous call is dropped", who, g)
		n.Reset(g)
	}
	result := n.strategy.Implement(values(inputs), n.params)
	result.AssertOk()
	for ii, input := range inputs {
		input.RegisterConsumer(n, ii)
	}
	output := g.newOutput(result, n)
	g.nodeStates[n] = &nodeState{
		seq:    g.nextSeq(),
		inputs: slices.Clone(inputs),
		output: output,
	}
	if klog.V(3).Enabled() {
		klog.Infof("%s: %s -> %s", who, values(inputs), result)
	}
	return output
}

// state returns the per-pass state of the node in g, or panics with a contract violation if the
// node was not called in g (or was already reset).
func (n *Node) state(g *Graph, method string) *nodeState {
	g.AssertValid()
	st, found := g.nodeStates[n]
	if !found {
		contractViolationf("Node(%q).%s: node has no state in %s, it must be called first", n.name, method, g)
	}
	return st
}

// HasState returns whether the node was called in g and not reset yet.
func (n *Node) HasState(g *Graph) bool {
	if !g.IsValid() {
		return false
	}
	_, found := g.nodeStates[n]
	return found
}

// Inputs returns the inputs of the node's call in g.
func (n *Node) Inputs(g *Graph) []*Var {
	return slices.Clone(n.state(g, "Inputs").inputs)
}

// Output returns the output of the node's call in g.
func (n *Node) Output(g *Graph) *Var {
	return n.state(g, "Output").output
}

// UpstreamRequest returns the aggregated request for the node's output in g, if it has already
// been computed (by a request, update or backward chain).
func (n *Node) UpstreamRequest(g *Graph) (arrays.Array, bool) {
	return n.state(g, "UpstreamRequest").upstream.peek()
}

// upstream returns the aggregated request of all consumers of the node output. It is memoized.
func (n *Node) upstream(g *Graph, st *nodeState) arrays.Array {
	return st.upstream.get(n.name, "aggregated request", func() arrays.Array {
		edges := g.consumers[st.output]
		if len(edges) == 0 {
			contractViolationf("Node(%q): output has no consumers in %s, there is nothing to aggregate", n.name, g)
		}
		requests := make([]arrays.Array, 0, len(edges)+1)
		requests = append(requests, st.output.value)
		for _, edge := range edges {
			requests = append(requests, edge.Operator.requestAt(g, edge.Position).value)
		}
		arrays.AssertSameShape(fmt.Sprintf("Node(%q) output and requests received", n.name), requests...)
		requests = requests[1:]
		aggregated := g.aggregation.combine(requests)
		klog.V(2).Infof("Node(%q): %s of %d request(s) = %s", n.name, g.aggregation, len(requests), aggregated)
		return aggregated
	})
}

// requests returns the requests for all inputs of the node. They are memoized.
func (n *Node) requests(g *Graph, st *nodeState) []*Var {
	return st.requests.get(n.name, "input requests", func() []*Var {
		up := n.upstream(g, st)
		inputs := values(st.inputs)
		results := n.strategy.Request(inputs, up, n.params)
		if len(results) != len(inputs) {
			panic(errors.Wrapf(arrays.ErrShapeMismatch, "Node(%q): strategy %T returned %d requests for %d inputs",
				n.name, n.strategy, len(results), len(inputs)))
		}
		vars := make([]*Var, len(results))
		for ii, r := range results {
			arrays.AssertSameShape(fmt.Sprintf("Node(%q) input #%d and its request", n.name, ii), inputs[ii], r)
			vars[ii] = &Var{value: r}
		}
		return vars
	})
}

// RequestAt returns the request for the input at the given position. The requests for all inputs
// are computed (from the aggregated requests of the node's consumers) on the first call, and the same
// Var is returned on subsequent calls in the same graph.
func (n *Node) RequestAt(g *Graph, position int) *Var {
	st := n.state(g, "RequestAt")
	if position < 0 || position >= len(st.inputs) {
		contractViolationf("Node(%q).RequestAt(%d): node has %d inputs", n.name, position, len(st.inputs))
	}
	return n.requests(g, st)[position]
}

func (n *Node) requestAt(g *Graph, position int) *Var { return n.RequestAt(g, position) }

// Request returns the request for the given input Var. If the Var was passed in more than one
// position, the request for the first one is returned: use RequestAt to address the others.
func (n *Node) Request(g *Graph, input *Var) *Var {
	st := n.state(g, "Request")
	position := slices.Index(st.inputs, input)
	if position < 0 {
		contractViolationf("Node(%q).Request: %s is not an input of the node in %s", n.name, input, g)
	}
	return n.requests(g, st)[position]
}

// Update applies the strategy update rule to the node's parameters, using the aggregated request
// of its consumers in g.
func (n *Node) Update(g *Graph) {
	n.update(g, n.state(g, "Update"))
}

func (n *Node) update(g *Graph, st *nodeState) {
	up := n.upstream(g, st)
	newParams, err := n.strategy.Update(values(st.inputs), up, n.params)
	if errors.Is(err, ErrNoUpdate) {
		klog.V(2).Infof("Node(%q): no update", n.name)
		return
	}
	if err != nil {
		panic(errors.WithMessagef(err, "Node(%q).Update in %s", n.name, g))
	}
	n.SetParams(newParams)
	if klog.V(2).Enabled() {
		klog.Infof("Node(%q): updated %q to %s", n.name, n.paramNames, n.params)
	}
}

// BackwardChain computes and memoizes the requests of the node and, recursively, of the producers
// of its inputs. It doesn't change any parameter.
func (n *Node) BackwardChain(g *Graph) { n.backwardChain(g) }

func (n *Node) backwardChain(g *Graph) {
	st := n.state(g, "BackwardChain")
	klog.V(2).Infof("%s: backward Node(%q)", g, n.name)
	n.requests(g, st)
	for _, input := range st.inputs {
		if origin := input.Origin(); origin != nil {
			origin.backwardChain(g)
		}
	}
}

// UpdateChain memoizes the node requests, updates its parameters and, recursively, those of the
// producers of its inputs. After the producers are visited the node is reset.
//
// Each node is updated at most once per graph, even if it is reached by more than one path: resetting
// a node removes the producer edge of its output, so other consumers of the output no longer reach it.
func (n *Node) UpdateChain(g *Graph) { n.updateChain(g) }

func (n *Node) updateChain(g *Graph) {
	st := n.state(g, "UpdateChain")
	klog.V(2).Infof("%s: update Node(%q)", g, n.name)

	// Requests must be fixed before the parameters change.
	n.requests(g, st)
	n.update(g, st)
	for _, input := range st.inputs {
		if origin := input.Origin(); origin != nil {
			origin.updateChain(g)
		}
	}
	n.Reset(g)
}

// Reset drops the per-pass state of the node in g, and the edges recorded by its call.
// It's a no-op if the node has no state in g.
func (n *Node) Reset(g *Graph) {
	if !g.IsValid() {
		return
	}
	st, found := g.nodeStates[n]
	if !found {
		return
	}
	g.forget(n, st.inputs, st.output)
	delete(g.nodeStates, n)
}
