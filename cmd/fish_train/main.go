// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// fish_train trains the fish species classifier and writes its artifacts: the label index, the model file
// and the training history.
//
// Hyperparameters are set with -set, e.g.:
//
//	fish_train -dir ~/data/Fish_Dataset/Fish_Dataset -set="num_epochs=10;learning_rate=3e-4"
//
// Use -help to list all hyperparameters and their defaults.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/support/fsutil"
	"github.com/gomlx/gomlx/ui/commandline"
	"github.com/janpfeifer/must"
	"github.com/rissingh23/Fish-Species-Detection-CNN/internal/datasetflags"
	"github.com/rissingh23/Fish-Species-Detection-CNN/pkg/fish/artifacts"
	"github.com/rissingh23/Fish-Species-Detection-CNN/pkg/fish/classifier"
	"github.com/rissingh23/Fish-Species-Detection-CNN/pkg/fish/labels"
	"github.com/rissingh23/Fish-Species-Detection-CNN/pkg/fish/pipeline"
	"github.com/rissingh23/Fish-Species-Detection-CNN/ui/report"
	"k8s.io/klog/v2"

	_ "github.com/gomlx/gomlx/backends/default"
)

var (
	flagArtifacts  = flag.String("artifacts", ".", "Directory where the label index, model and history are written.")
	flagCheckpoint = flag.String("checkpoint", "", "If set, saves a checkpoint to this directory after every epoch.")
	flagScan       = flag.Bool("scan", true, "Decode every image before training, and fail early if any is invalid.")
	flagPlot       = flag.Bool("plot", true, "Plot the training curves to "+artifacts.HistoryPlotFile+".")
	flagVerbosity  = flag.Int("verbosity", 1, "Level of verbosity, the higher the more verbose.")
)

func main() {
	ctx := classifier.CreateDefaultContext()
	settings := commandline.CreateContextSettingsFlag(ctx, "")
	dataFlags := datasetflags.Register(flag.CommandLine)
	klog.InitFlags(nil)
	flag.Parse()
	paramsSet := must.M1(commandline.ParseContextSettings(ctx, *settings))
	if *flagVerbosity >= 1 {
		fmt.Println(commandline.SprintModifiedContextSettings(ctx, paramsSet))
	}

	signalCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	m, s, err := dataFlags.Load(signalCtx)
	if err != nil {
		klog.Exitf("Failed to load dataset: %+v", err)
	}
	if *flagVerbosity >= 1 {
		report.Split(os.Stdout, s)
	}
	if *flagScan {
		if failures := pipeline.Scan(m.Samples, 0, *flagVerbosity >= 1); len(failures) > 0 {
			for _, failure := range failures {
				klog.Error(failure)
			}
			klog.Exitf("%d of %d images failed to decode, remove them and try again", len(failures), m.Len())
		}
	}

	idx := must.M1(labels.FromSamples(s.Train))
	trainCfg, evalCfg := must.M2(classifier.DatasetConfigs(ctx, dataFlags.Split.Seed))
	trainDS := must.M1(pipeline.NewDataset("train", s.Train, idx, trainCfg))
	validationDS := must.M1(pipeline.NewDataset("validation", s.Validation, idx, evalCfg))
	testDS := must.M1(pipeline.NewDataset("test", s.Test, idx, evalCfg))

	backend := backends.MustNew()
	if *flagVerbosity >= 1 {
		fmt.Printf("Backend %q:\t%s\n", backend.Name(), backend.Description())
	}
	opts := classifier.Options{ProgressBar: *flagVerbosity >= 1}
	if *flagCheckpoint != "" {
		opts.CheckpointDir = must.M1(fsutil.ReplaceTildeInDir(*flagCheckpoint))
	}
	result, err := classifier.Train(ctx, backend, trainDS, validationDS, testDS, idx.NumClasses(), opts)
	if err != nil {
		klog.Exitf("Training failed: %+v", err)
	}

	paths := artifacts.Paths{Dir: must.M1(fsutil.ReplaceTildeInDir(*flagArtifacts))}
	must.M(os.MkdirAll(paths.Dir, 0755))
	must.M(artifacts.SaveLabelIndex(paths.LabelIndex(), idx))
	header := artifacts.NewModelHeader(ctx, idx)
	header.TestAccuracy = result.TestAccuracy
	must.M(artifacts.SaveModel(ctx, paths.Model(), header))
	history := result.History()
	must.M(artifacts.SaveHistory(paths.History(), history))
	must.M(artifacts.SaveHistoryCSV(paths.HistoryCSV(), history))
	if *flagPlot {
		must.M(artifacts.PlotHistory(paths.HistoryPlot(), history))
	}
	klog.Infof("Artifacts written to %q", paths.Dir)

	if *flagVerbosity >= 1 {
		report.History(os.Stdout, history)
	}
	fmt.Printf("Test Loss: %.4f, Test Accuracy: %.4f\n", result.TestLoss, result.TestAccuracy)
}
