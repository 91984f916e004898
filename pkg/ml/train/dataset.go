// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package train

import (
	"io"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/nnfunctor/pkg/core/arrays"
	"golang.org/x/exp/rand"
)

// Dataset for a train.Trainer provides the data, one example at a time: a slice of arrays for the
// `inputs` of the model and one array for the `target` of the error node.
//
// The Dataset interface allows for extensions/customizations by defining extra optional interfaces that
// a Dataset optionally can implement. See HasShortName.
type Dataset interface {
	// Name identifies the dataset. Used for debugging, pretty-printing and plots.
	Name() string

	// Reset restarts the dataset from the beginning. Can be called after io.EOF is reached,
	// for instance when running another evaluation on a test dataset.
	Reset()

	// Yield one example or an error.
	//
	// The number of `inputs` should not change within a dataset, since they are fed to the same model.
	//
	// If using Loop.RunSteps for training having an infinite dataset stream is ok. But careful
	// not to use Loop.RunEpochs on a dataset configured to loop indefinitely.
	//
	// Optionally, it can return an error. If the error is `io.EOF` the training/evaluation terminates
	// normally, as it indicates end of data for finite datasets -- maybe the end of the epoch.
	//
	// Any other errors should interrupt the training/evaluation and be returned to the user.
	Yield() (inputs []arrays.Array, target arrays.Array, err error)
}

// HasShortName allows a dataset to specify a short name (used when displaying a short version of metric names).
// It defaults to the first 3 letters of the dataset name.
//
// It's optional.
type HasShortName interface {
	// ShortName returns the short name of the dataset.
	ShortName() string
}

// ShortName returns the short name of the dataset, see HasShortName.
func ShortName(ds Dataset) string {
	if named, ok := ds.(HasShortName); ok {
		return named.ShortName()
	}
	name := ds.Name()
	if len(name) > 3 {
		name = name[:3]
	}
	return name
}

// InMemoryDataset holds all examples in memory. It can optionally shuffle the examples at every
// epoch and loop indefinitely.
//
// Build it with NewInMemoryDataset and the cascading methods Add, Shuffle and Infinite.
type InMemoryDataset struct {
	name      string
	numInputs int
	inputs    [][]arrays.Array
	targets   []arrays.Array

	order    []int
	next     int
	rng      *rand.Rand
	infinite bool
}

// Compile-time check that InMemoryDataset implements Dataset.
var _ Dataset = (*InMemoryDataset)(nil)

// NewInMemoryDataset creates an empty dataset. Add examples with InMemoryDataset.Add.
func NewInMemoryDataset(name string) *InMemoryDataset {
	return &InMemoryDataset{name: name, numInputs: -1}
}

// Add an example: the target and the inputs can be anything accepted by arrays.FromValue.
// It returns the dataset itself, so calls can be cascaded.
//
// It panics if the number of inputs differs from the previous examples.
func (ds *InMemoryDataset) Add(target any, inputs ...any) *InMemoryDataset {
	if len(inputs) == 0 {
		exceptions.Panicf("InMemoryDataset(%q).Add: at least one input is required", ds.name)
	}
	if ds.numInputs >= 0 && len(inputs) != ds.numInputs {
		exceptions.Panicf("InMemoryDataset(%q).Add: example #%d has %d inputs, previous examples had %d",
			ds.name, len(ds.targets), len(inputs), ds.numInputs)
	}
	ds.numInputs = len(inputs)
	example := make([]arrays.Array, len(inputs))
	for ii, input := range inputs {
		example[ii] = arrays.FromValue(input)
	}
	ds.inputs = append(ds.inputs, example)
	ds.targets = append(ds.targets, arrays.FromValue(target))
	ds.order = append(ds.order, len(ds.order))
	return ds
}

// Shuffle the examples at every epoch (at every Reset) using the given random number generator.
// The first epoch is shuffled immediately. It returns the dataset itself.
func (ds *InMemoryDataset) Shuffle(rng *rand.Rand) *InMemoryDataset {
	ds.rng = rng
	ds.Reset()
	return ds
}

// Infinite configures the dataset to restart (and reshuffle, if configured) automatically at the
// end of the data, so it never returns io.EOF. It returns the dataset itself.
func (ds *InMemoryDataset) Infinite(infinite bool) *InMemoryDataset {
	ds.infinite = infinite
	return ds
}

// Name implements Dataset.
func (ds *InMemoryDataset) Name() string { return ds.name }

// Len returns the number of examples.
func (ds *InMemoryDataset) Len() int { return len(ds.targets) }

// Reset implements Dataset. It reshuffles the examples, if Shuffle was configured.
func (ds *InMemoryDataset) Reset() {
	ds.next = 0
	if ds.rng != nil {
		ds.rng.Shuffle(len(ds.order), func(i, j int) {
			ds.order[i], ds.order[j] = ds.order[j], ds.order[i]
		})
	}
}

// Yield implements Dataset.
func (ds *InMemoryDataset) Yield() (inputs []arrays.Array, target arrays.Array, err error) {
	if ds.next >= len(ds.order) {
		if !ds.infinite || len(ds.order) == 0 {
			return nil, arrays.Array{}, io.EOF
		}
		ds.Reset()
	}
	idx := ds.order[ds.next]
	ds.next++
	return ds.inputs[idx], ds.targets[idx], nil
}
