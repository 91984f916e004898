// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"fmt"
	"strings"

	"github.com/gomlx/nnfunctor/pkg/core/arrays"
	"github.com/pkg/errors"
)

// Aggregation is the policy used to combine the requests sent by the multiple consumers of the
// same Var into the one request its producer acts on.
type Aggregation int

const (
	// AggregateSum adds up the requests of all consumers.
	AggregateSum Aggregation = iota

	// AggregateMean takes the elementwise mean of the requests of all consumers.
	AggregateMean
)

// String implements fmt.Stringer.
func (a Aggregation) String() string {
	switch a {
	case AggregateSum:
		return "sum"
	case AggregateMean:
		return "mean"
	default:
		return fmt.Sprintf("Aggregation(%d)", int(a))
	}
}

// ParseAggregation converts "sum" or "mean" (case-insensitive) to the corresponding Aggregation.
func ParseAggregation(name string) (Aggregation, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sum", "":
		return AggregateSum, nil
	case "mean":
		return AggregateMean, nil
	}
	return AggregateSum, errors.Errorf("unknown aggregation %q, valid values are \"sum\" or \"mean\"", name)
}

// combine the requests, which must all share the same shape.
func (a Aggregation) combine(requests []arrays.Array) arrays.Array {
	if len(requests) == 1 {
		return requests[0]
	}
	switch a {
	case AggregateMean:
		return arrays.MeanOf(requests...)
	default:
		return arrays.Sum(requests...)
	}
}
