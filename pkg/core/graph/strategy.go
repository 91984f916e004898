// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"github.com/gomlx/nnfunctor/pkg/core/arrays"
	"github.com/pkg/errors"
)

var (
	// ErrNoUpdate is returned by Strategy.Update when the strategy has no parameters to update.
	// It is not an error: the node keeps its parameters untouched.
	ErrNoUpdate = errors.New("strategy has no update")

	// ErrContractViolation is wrapped by the errors thrown (panic) when the graph is misused:
	// e.g. requesting from a node that was not called in the graph, or for a Var that is not its input.
	ErrContractViolation = errors.New("graph contract violation")
)

// contractViolationf panics with an error wrapping ErrContractViolation.
func contractViolationf(format string, args ...any) {
	panic(errors.Wrapf(ErrContractViolation, format, args...))
}

// Strategy holds the formulas of a Node: its forward computation, its parameter update rule and the
// requests it sends back to its inputs.
//
// The values are passed in the order the Node was called with (inputs) and the order the
// parameters were declared (params). Strategies must not modify any of the arrays given.
//
// The request is the value the node would like its output to have had. Strategies implementing
// gradient descent compute the update and the requests from the error (output - request).
type Strategy interface {
	// Implement computes the node output.
	Implement(inputs, params []arrays.Array) arrays.Array

	// Update returns the new values of the parameters, in the same order and shapes as params, given
	// the aggregated request for the output.
	//
	// Strategies without parameters return ErrNoUpdate.
	Update(inputs []arrays.Array, request arrays.Array, params []arrays.Array) ([]arrays.Array, error)

	// Request returns one request per input, each with the same shape as the corresponding input,
	// given the aggregated request for the output.
	Request(inputs []arrays.Array, request arrays.Array, params []arrays.Array) []arrays.Array
}

// ErrorFunction is the pluggable comparison used by an ErrorNode.
type ErrorFunction interface {
	// Implement returns the loss of prediction relative to target.
	Implement(prediction, target arrays.Array) arrays.Array

	// Request returns the request to send back to the prediction, with the same shape as prediction.
	Request(prediction, target arrays.Array) arrays.Array
}

// Learn is the learning configuration shared by gradient-descent strategies.
type Learn struct {
	// Eps is the learning rate.
	Eps float64
}

// DefaultLearningRate used when none is configured.
const DefaultLearningRate = 0.1

// DefaultLearn returns a Learn configuration with DefaultLearningRate.
func DefaultLearn() Learn { return Learn{Eps: DefaultLearningRate} }
