// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"fmt"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/nnfunctor/pkg/core/arrays"
	"k8s.io/klog/v2"
)

// ErrorNode compares a prediction with a target using an ErrorFunction, and roots the backward
// and update traversals of a Graph.
//
// Only the prediction is registered as consumed by the ErrorNode: the target is not traversed.
type ErrorNode struct {
	name string
	fn   ErrorFunction
}

type errorNodeState struct {
	seq                      int
	prediction, target, loss *Var
	request                  memo[*Var]
}

var _ Operator = (*ErrorNode)(nil)

// NewErrorNode creates an ErrorNode using the given error function.
func NewErrorNode(name string, fn ErrorFunction) *ErrorNode {
	if fn == nil {
		exceptions.Panicf("NewErrorNode(%q): error function is nil", name)
	}
	return &ErrorNode{name: name, fn: fn}
}

// Name of the error node.
func (e *ErrorNode) Name() string { return e.name }

// String implements fmt.Stringer.
func (e *ErrorNode) String() string {
	return fmt.Sprintf("ErrorNode(%q, %T)", e.name, e.fn)
}

// ErrorFunction used by the error node.
func (e *ErrorNode) ErrorFunction() ErrorFunction { return e.fn }

// Call computes the loss of prediction relative to target, and records the pass in g.
// The returned loss is linked to g, with the error node as its origin.
func (e *ErrorNode) Call(g *Graph, prediction, target *Var) *Var {
	g.AssertValid()
	who := fmt.Sprintf("ErrorNode(%q).Call", e.name)
	prediction.assertInGraph(g, who, 0)
	target.assertInGraph(g, who, 1)
	arrays.AssertSameShape(who+" prediction and target", prediction.value, target.value)
	if _, found := g.errorStates[e]; found {
		klog.V(1).Infof("%s: error node called again in %s, previous call is dropped", who, g)
		e.Reset(g)
	}
	loss := e.fn.Implement(prediction.value, target.value)
	loss.AssertOk()
	prediction.RegisterConsumer(e, 0)
	output := g.newOutput(loss, e)
	g.errorStates[e] = &errorNodeState{
		seq:        g.nextSeq(),
		prediction: prediction,
		target:     target,
		loss:       output,
	}
	klog.V(3).Infof("%s: loss=%s", who, loss)
	return output
}

func (e *ErrorNode) state(g *Graph, method string) *errorNodeState {
	g.AssertValid()
	st, found := g.errorStates[e]
	if !found {
		contractViolationf("ErrorNode(%q).%s: error node has no state in %s, it must be called first", e.name, method, g)
	}
	return st
}

// HasState returns whether the error node was called in g and not reset yet.
func (e *ErrorNode) HasState(g *Graph) bool {
	if !g.IsValid() {
		return false
	}
	_, found := g.errorStates[e]
	return found
}

// Loss returns the loss computed by the error node's call in g.
func (e *ErrorNode) Loss(g *Graph) *Var { return e.state(g, "Loss").loss }

// Prediction returns the prediction given to the error node's call in g.
func (e *ErrorNode) Prediction(g *Graph) *Var { return e.state(g, "Prediction").prediction }

// Target returns the target given to the error node's call in g.
func (e *ErrorNode) Target(g *Graph) *Var { return e.state(g, "Target").target }

func (e *ErrorNode) request(st *errorNodeState) *Var {
	return st.request.get(e.name, "request", func() *Var {
		r := e.fn.Request(st.prediction.value, st.target.value)
		arrays.AssertSameShape(fmt.Sprintf("ErrorNode(%q) prediction and its request", e.name), st.prediction.value, r)
		return &Var{value: r}
	})
}

// Request returns the request for the prediction. It panics with a contract violation if v is not
// the prediction the error node was called with in g.
func (e *ErrorNode) Request(g *Graph, v *Var) *Var {
	st := e.state(g, "Request")
	if v != st.prediction {
		contractViolationf("ErrorNode(%q).Request: %s is not the prediction of the error node in %s", e.name, v, g)
	}
	return e.request(st)
}

func (e *ErrorNode) requestAt(g *Graph, position int) *Var {
	st := e.state(g, "RequestAt")
	if position != 0 {
		contractViolationf("ErrorNode(%q).RequestAt(%d): only the prediction (position 0) is requested", e.name, position)
	}
	return e.request(st)
}

// BackwardChain computes the request for the prediction, and recursively the requests of all
// nodes leading to it.
func (e *ErrorNode) BackwardChain(g *Graph) { e.backwardChain(g) }

func (e *ErrorNode) backwardChain(g *Graph) {
	st := e.state(g, "BackwardChain")
	klog.V(2).Infof("%s: backward ErrorNode(%q)", g, e.name)
	e.request(st)
	if origin := st.prediction.Origin(); origin != nil {
		origin.backwardChain(g)
	}
}

// UpdateChain updates the parameters of all nodes leading to the prediction, and resets them
// along with the error node itself.
func (e *ErrorNode) UpdateChain(g *Graph) { e.updateChain(g) }

func (e *ErrorNode) updateChain(g *Graph) {
	st := e.state(g, "UpdateChain")
	e.request(st)
	if origin := st.prediction.Origin(); origin != nil {
		origin.updateChain(g)
	}
	e.Reset(g)
}

// Reset drops the per-pass state of the error node in g, and its edges.
// It's a no-op if the error node has no state in g.
func (e *ErrorNode) Reset(g *Graph) {
	if !g.IsValid() {
		return
	}
	st, found := g.errorStates[e]
	if !found {
		return
	}
	g.forget(e, []*Var{st.prediction}, st.loss)
	delete(g.errorStates, e)
}
