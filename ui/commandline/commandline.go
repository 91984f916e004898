// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package commandline contains convenience UI training tools for the command line.
package commandline

import (
	"fmt"
	"io"

	"github.com/gomlx/nnfunctor/pkg/ml/train"
	"github.com/pkg/errors"
)

// ReportEval reports to w the mean loss of evaluating the datasets using trainer.Eval.
func ReportEval(w io.Writer, trainer *train.Trainer, datasets ...train.Dataset) error {
	for _, ds := range datasets {
		meanLoss, err := trainer.Eval(ds)
		if err != nil {
			return err
		}
		if _, err = fmt.Fprintf(w, "Results on %s:\n\tmean %s (%s): %.6g\n",
			ds.Name(), train.LossMetricName, train.ShortName(ds), meanLoss); err != nil {
			return errors.Wrap(err, "ReportEval")
		}
	}
	return nil
}
