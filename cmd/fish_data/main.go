// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// fish_data materializes the fish image dataset, builds its manifest and prints the train/validation/test split.
//
// Examples:
//
//	fish_data -zip ~/Downloads/a-large-scale-fish-dataset.zip -subdir Fish_Dataset/Fish_Dataset
//	fish_data -dir ~/data/Fish_Dataset/Fish_Dataset -manifest_csv manifest.csv -split_csv split.csv -scan
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/janpfeifer/must"
	"github.com/rissingh23/Fish-Species-Detection-CNN/internal/datasetflags"
	"github.com/rissingh23/Fish-Species-Detection-CNN/pkg/fish/pipeline"
	"github.com/rissingh23/Fish-Species-Detection-CNN/ui/report"
	"k8s.io/klog/v2"
)

var (
	flagManifestCSV = flag.String("manifest_csv", "", "If set, writes the manifest (path, label) as CSV to this file.")
	flagSplitCSV    = flag.String("split_csv", "", "If set, writes the split membership (subset, path, label) as CSV to this file.")
	flagScan        = flag.Bool("scan", false, "Decode every image and report the ones that fail.")
)

func writeCSV(path string, write func(w io.Writer) error) {
	f := must.M1(os.Create(path))
	must.M(write(f))
	must.M(f.Close())
	klog.Infof("Wrote %q", path)
}

func main() {
	dataFlags := datasetflags.Register(flag.CommandLine)
	klog.InitFlags(nil)
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	m, s, err := dataFlags.Load(ctx)
	if err != nil {
		klog.Exitf("Failed to load dataset: %+v", err)
	}

	report.Manifest(os.Stdout, m)
	if *flagManifestCSV != "" {
		writeCSV(*flagManifestCSV, m.WriteCSV)
	}
	report.Split(os.Stdout, s)
	if *flagSplitCSV != "" {
		writeCSV(*flagSplitCSV, s.WriteCSV)
	}

	if *flagScan {
		failures := pipeline.Scan(m.Samples, 0, true)
		for _, failure := range failures {
			fmt.Println(failure)
		}
		if len(failures) > 0 {
			klog.Exitf("%d of %d images failed to decode", len(failures), m.Len())
		}
		fmt.Printf("All %d images decoded successfully.\n", m.Len())
	}
}
