// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package report collects the evolution of nodes' parameters and requests during training, summarizes
// them in statistics, and reports them: printed as tables, plotted or exported as CSV.
//
// A Collector snapshots the nodes it watches after the backward chain of each training step, when the
// requests are memoized but the parameters are not yet updated:
//
//	collector := report.NewCollector()
//	collector.AddContextNodes(ctx)
//	collector.AttachToTrainer(trainer)
//	report.Attach(loop, collector, 100, report.NewPrintReporter(os.Stdout))
package report

import (
	"fmt"
	"maps"
	"slices"

	"github.com/gomlx/nnfunctor/pkg/core/arrays"
	"github.com/gomlx/nnfunctor/pkg/core/graph"
	"github.com/gomlx/nnfunctor/pkg/ml/context"
	"github.com/gomlx/nnfunctor/pkg/ml/train"
	"github.com/google/uuid"
	"k8s.io/klog/v2"
)

// Target selects a group of series in a Summary.
type Target int

const (
	// TargetWeight are the series of parameters of the nodes, named "<node>/<param>".
	TargetWeight Target = iota

	// TargetRequest are the series of the aggregated upstream request minus the output of the nodes,
	// named "<node>". It measures how far each node is from what is requested of it.
	TargetRequest

	// TargetData is the series of values added to a Store, named after the store.
	TargetData
)

// String implements fmt.Stringer.
func (t Target) String() string {
	switch t {
	case TargetWeight:
		return "weight"
	case TargetRequest:
		return "request"
	case TargetData:
		return "data"
	default:
		return fmt.Sprintf("Target(%d)", int(t))
	}
}

// Summary of the series collected since the previous summary.
type Summary struct {
	// Count is the total number of collections, including the ones of previous summaries.
	Count int

	// Series stats per target and series name.
	Series map[Target]map[string]Stats
}

// Names of the series of the given target, sorted.
func (s Summary) Names(target Target) []string {
	return slices.Sorted(maps.Keys(s.Series[target]))
}

// Summarizer is anything that accumulates data and can be summarized: Collector and Store.
type Summarizer interface {
	// Counter returns the number of data points added so far.
	Counter() int

	// Summary returns the statistics of the data accumulated since the previous call, and clears it.
	Summary() Summary
}

// Collector watches a set of nodes, and at every Collect snapshots their parameters and the difference
// between their aggregated upstream request and their output.
//
// It never changes the nodes it watches.
type Collector struct {
	tag     string
	names   []string
	nodes   map[string]*graph.Node
	weight  map[string][]arrays.Array
	request map[string][]arrays.Array
	counter int
}

var _ Summarizer = (*Collector)(nil)

// NewCollector returns an empty Collector. Add nodes with AddNode or AddContextNodes.
func NewCollector() *Collector {
	return &Collector{
		tag:     fmt.Sprintf("<Collector id=%s>", uuid.NewString()),
		nodes:   make(map[string]*graph.Node),
		weight:  make(map[string][]arrays.Array),
		request: make(map[string][]arrays.Array),
	}
}

// AddNode adds the node to the watched nodes, and returns the name of its series. If a node with the
// same name was already added, the name gets the first free suffix "_<i>" (i = 0, 1, ...).
func (c *Collector) AddNode(node *graph.Node) string {
	name := node.Name()
	if _, found := c.nodes[name]; found {
		for ii := 0; ; ii++ {
			candidate := fmt.Sprintf("%s_%d", name, ii)
			if _, found := c.nodes[candidate]; !found {
				name = candidate
				break
			}
		}
	}
	c.names = append(c.names, name)
	c.nodes[name] = node
	return name
}

// AddContextNodes adds all nodes of the context in its current scope (and sub-scopes).
func (c *Collector) AddContextNodes(ctx *context.Context) {
	for _, node := range ctx.NodesInScope() {
		c.AddNode(node)
	}
}

// NodeNames returns the series names of the watched nodes, in the order they were added.
func (c *Collector) NodeNames() []string {
	return slices.Clone(c.names)
}

// Collect snapshots the parameters of all watched nodes, and for those whose upstream request is
// memoized in g, the upstream request minus the output.
func (c *Collector) Collect(g *graph.Graph) {
	for _, name := range c.names {
		node := c.nodes[name]
		params := node.Params()
		for ii, paramName := range node.ParamNames() {
			key := name + context.ScopeSeparator + paramName
			c.weight[key] = append(c.weight[key], params[ii])
		}
		if g == nil || !node.HasState(g) {
			continue
		}
		if upstream, found := node.UpstreamRequest(g); found {
			c.request[name] = append(c.request[name], arrays.Sub(upstream, node.Output(g).Value()))
		}
	}
	c.counter++
}

// Counter implements Summarizer: the number of calls to Collect.
func (c *Collector) Counter() int { return c.counter }

// Summary implements Summarizer. The counter is not reset.
func (c *Collector) Summary() Summary {
	s := Summary{
		Count: c.counter,
		Series: map[Target]map[string]Stats{
			TargetWeight:  make(map[string]Stats, len(c.weight)),
			TargetRequest: make(map[string]Stats, len(c.request)),
		},
	}
	for key, snapshots := range c.weight {
		s.Series[TargetWeight][key] = ComputeStats(snapshots)
	}
	for key, snapshots := range c.request {
		s.Series[TargetRequest][key] = ComputeStats(snapshots)
	}
	clear(c.weight)
	clear(c.request)
	return s
}

// AttachToTrainer makes the trainer call Collect at every training step, after the backward chain and
// before the parameters are updated.
func (c *Collector) AttachToTrainer(trainer *train.Trainer) {
	trainer.OnBackward(c.tag, func(_ *train.Trainer, g *graph.Graph) error {
		c.Collect(g)
		return nil
	})
	klog.V(1).Infof("%s attached to trainer, watching %d nodes", c.tag, len(c.names))
}
