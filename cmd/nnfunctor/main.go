// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// nnfunctor trains one of the toy experiments (a single neuron, a two-layer perceptron or a product
// learner) with locally derived update rules, and reports the evolution of the parameters.
//
// Example:
//
//	nnfunctor -experiment=mlp -steps=20000 -set="learning_rate=0.5;output/learning_rate=0.1;activation=tanh" -plot=/tmp/mlp.png
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/gomlx/nnfunctor/pkg/core/graph"
	"github.com/gomlx/nnfunctor/pkg/ml/context"
	"github.com/gomlx/nnfunctor/pkg/ml/layers"
	"github.com/gomlx/nnfunctor/pkg/ml/report"
	"github.com/gomlx/nnfunctor/pkg/ml/train"
	"github.com/gomlx/nnfunctor/ui/commandline"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

var (
	flagExperiment  = flag.String("experiment", "neuron", fmt.Sprintf("Experiment to run, one of %q.", experimentNames()))
	flagEpochs      = flag.Int("epochs", 0, "Number of epochs to train. If > 0 it takes precedence over -steps.")
	flagSteps       = flag.Int("steps", 5000, "Number of training steps (one example per step).")
	flagReportEvery = flag.Int("report_every", 0, "If > 0, print a summary of the parameters and requests every that many steps.")
	flagPlot        = flag.String("plot", "", "If set, path of a PNG file where to plot the history of the parameters.")
	flagCSV         = flag.String("csv", "", "If set, path of a CSV file where to save the summaries of parameters and requests.")
	flagProgress    = flag.Bool("progress", true, "Display a progress bar while training.")
)

// reportInterval used by the plot and CSV reporters when -report_every is not set.
const reportInterval = 100

// createDefaultContext sets the hyperparameters that can be changed with -set.
func createDefaultContext() *context.Context {
	ctx := context.New()
	ctx.SetParams(map[string]any{
		context.ParamLearningRate: 0.1,
		context.ParamAggregation:  graph.AggregateSum.String(),
		context.ParamInitStddev:   1.0,
		context.ParamSeed:         0,
		layers.ParamActivation:    layers.SigmoidNodeName,
	})
	return ctx
}

// config of one run of the driver.
type config struct {
	experiment  string
	settings    string
	epochs      int
	steps       int
	reportEvery int
	plotPath    string
	csvPath     string
	progress    bool
}

func main() {
	klog.InitFlags(nil)
	ctx := createDefaultContext()
	settings := commandline.CreateContextSettingsFlag(ctx, "")
	flag.Parse()

	cfg := config{
		experiment:  *flagExperiment,
		settings:    *settings,
		epochs:      *flagEpochs,
		steps:       *flagSteps,
		reportEvery: *flagReportEvery,
		plotPath:    *flagPlot,
		csvPath:     *flagCSV,
		progress:    *flagProgress,
	}
	must.M(run(ctx, cfg, os.Stdout))
}

// run trains the experiment selected by cfg, printing results to out.
func run(ctx *context.Context, cfg config, out io.Writer) error {
	exp, err := lookupExperiment(cfg.experiment)
	if err != nil {
		return err
	}
	paramsSet, err := commandline.ParseContextSettings(ctx, cfg.settings)
	if err != nil {
		return err
	}
	ctx = ctx.WithSeed(uint64(context.MustGetParam[int](ctx, context.ParamSeed)))
	_, _ = fmt.Fprintf(out, "Experiment %q: %s\n", exp.name, exp.description)
	if len(paramsSet) > 0 {
		_, _ = fmt.Fprintf(out, "Settings:\n%s\n", commandline.SprintModifiedContextSettings(ctx, paramsSet))
	}

	trainer := train.NewTrainer(ctx, exp.model, nil)
	if _, err = trainer.Predict(exp.sample...); err != nil {
		return errors.WithMessagef(err, "failed to create the nodes of experiment %q", exp.name)
	}
	collector := report.NewCollector()
	collector.AddContextNodes(ctx)
	collector.AttachToTrainer(trainer)
	klog.V(1).Infof("collecting nodes %q", collector.NodeNames())

	loop := train.NewLoop(trainer)
	if cfg.progress {
		commandline.AttachProgressBarTo(loop, out)
	}
	if err = attachReporters(loop, collector, cfg, out); err != nil {
		return err
	}

	trainDS := exp.build().Shuffle(ctx.RNG())
	if cfg.epochs > 0 {
		_, err = loop.RunEpochs(trainDS, cfg.epochs)
	} else {
		_, err = loop.RunSteps(trainDS.Infinite(true), cfg.steps)
	}
	if err != nil {
		return errors.WithMessagef(err, "failed to train experiment %q", exp.name)
	}
	_, _ = fmt.Fprintf(out, "\t[Step %d] median train step: %s\n",
		loop.LoopStep, commandline.FormatDuration(loop.MedianTrainStepDuration()))

	if err = commandline.ReportEval(out, trainer, exp.build()); err != nil {
		return err
	}
	printParams(out, ctx)
	return nil
}

// attachReporters attaches to the loop the reporters selected by cfg.
func attachReporters(loop *train.Loop, collector *report.Collector, cfg config, out io.Writer) error {
	interval := cfg.reportEvery
	if interval <= 0 {
		interval = reportInterval
	}
	var reporters []report.Reporter
	if cfg.reportEvery > 0 {
		reporters = append(reporters, report.NewPrintReporter(out))

		losses := report.NewStore(train.LossMetricName)
		losses.AttachToLoop(loop)
		report.Attach(loop, losses, interval, report.NewPrintReporter(out))
	}
	if cfg.plotPath != "" {
		plotter, err := report.NewPlotReporter(cfg.plotPath, report.TargetWeight, report.ModeOrigin)
		if err != nil {
			return err
		}
		reporters = append(reporters, plotter)
	}
	if cfg.csvPath != "" {
		reporters = append(reporters, report.NewCSVReporter(cfg.csvPath, report.TargetWeight, report.TargetRequest))
	}
	if len(reporters) > 0 {
		report.Attach(loop, collector, interval, reporters...)
	}
	return nil
}

// printParams prints the learned parameters of every node in the context.
func printParams(out io.Writer, ctx *context.Context) {
	_, _ = fmt.Fprintln(out, "Learned parameters:")
	ctx.EnumerateNodes(func(scopedName string, node *graph.Node) {
		params := node.Params()
		for ii, name := range node.ParamNames() {
			_, _ = fmt.Fprintf(out, "\t%s: %s\n", context.JoinScope(scopedName, name), params[ii])
		}
	})
}
