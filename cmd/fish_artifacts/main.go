// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// fish_artifacts inspects the artifacts written by fish_train: the model file, the label index and the
// training history.
//
//	fish_artifacts -params -vars ./artifacts
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/janpfeifer/must"
	"github.com/rissingh23/Fish-Species-Detection-CNN/pkg/fish/artifacts"
	"github.com/rissingh23/Fish-Species-Detection-CNN/ui/report"
	"k8s.io/klog/v2"
)

var (
	flagScope = flag.String("scope", "/model", "The scope of the variables listed with -vars. "+
		"Set to empty to include all variables.")
	flagSummary = flag.Bool("summary", true, "Display a summary of the model.")
	flagParams  = flag.Bool("params", false, "Lists the hyperparameters saved with the model.")
	flagVars    = flag.Bool("vars", false, "Lists the variables under -scope.")
	flagHistory = flag.Bool("history", false, "Displays the training history.")
	flagLabels  = flag.Bool("labels", false, "Lists the label index, and checks it matches the model.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	args := flag.Args()
	if len(args) != 1 {
		klog.Errorf("Expected exactly one artifacts directory to read from. See 'fish_artifacts -help'")
		os.Exit(1)
	}
	inspect(artifacts.Paths{Dir: args[0]})
}

func inspect(paths artifacts.Paths) {
	if *flagSummary || *flagParams || *flagVars || *flagLabels {
		model, err := artifacts.LoadModel(paths.Model())
		if err != nil {
			klog.Exitf("Failed to load model: %+v", err)
		}
		if *flagSummary {
			report.ModelSummary(os.Stdout, paths.Model(), model)
		}
		if *flagParams {
			report.Params(os.Stdout, model.Context)
		}
		if *flagVars {
			report.Variables(os.Stdout, model.Context, *flagScope)
		}
		if *flagLabels {
			idx := must.M1(artifacts.LoadLabelIndex(paths.LabelIndex()))
			for ii, name := range idx.Names() {
				fmt.Printf("%3d\t%s\n", ii, name)
			}
			if err := model.Verify(idx); err != nil {
				klog.Exitf("Label index doesn't match the model: %v", err)
			}
			fmt.Printf("Label index hash %s matches the model.\n", idx.Hash())
		}
	}

	if *flagHistory {
		history, err := artifacts.LoadHistory(paths.History())
		if err != nil {
			klog.Exitf("Failed to load history: %+v", err)
		}
		report.History(os.Stdout, history)
	}
}
