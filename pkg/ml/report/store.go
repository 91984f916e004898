// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package report

import (
	"github.com/gomlx/nnfunctor/pkg/core/arrays"
	"github.com/gomlx/nnfunctor/pkg/ml/train"
)

// Store accumulates scalar values, typically the loss of each training step, and summarizes them as the
// single series TargetData named after the store.
type Store struct {
	name    string
	data    []arrays.Array
	counter int
}

var _ Summarizer = (*Store)(nil)

// NewStore returns an empty store with the given series name.
func NewStore(name string) *Store {
	return &Store{name: name}
}

// Name of the series of the store.
func (s *Store) Name() string { return s.name }

// Add a value to the store.
func (s *Store) Add(value float64) {
	s.data = append(s.data, arrays.Scalar(value))
	s.counter++
}

// Counter implements Summarizer: the number of values added.
func (s *Store) Counter() int { return s.counter }

// Summary implements Summarizer. The counter is not reset.
func (s *Store) Summary() Summary {
	summary := Summary{
		Count: s.counter,
		Series: map[Target]map[string]Stats{
			TargetData: {},
		},
	}
	if len(s.data) > 0 {
		summary.Series[TargetData][s.name] = ComputeStats(s.data)
	}
	s.data = s.data[:0]
	return summary
}

// StorePriority is the priority of the loop hook of Store.AttachToLoop: it runs before the reporters
// attached with Attach.
const StorePriority train.Priority = -100

// AttachToLoop adds the first metric (the loss) of every training step to the store.
func (s *Store) AttachToLoop(loop *train.Loop) {
	loop.OnStep("report.Store("+s.name+")", StorePriority, func(_ *train.Loop, metrics []float64) error {
		s.Add(metrics[0])
		return nil
	})
}
