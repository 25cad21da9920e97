// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// fish_server serves fish species predictions over HTTP.
//
//	fish_server -artifacts ./artifacts -species species_info.json -addr :8000
//
// Upload an image with:
//
//	curl -F "file=@trout.png" http://localhost:8000/predict
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/support/fsutil"
	"github.com/janpfeifer/must"
	"github.com/rissingh23/Fish-Species-Detection-CNN/pkg/fish/artifacts"
	"github.com/rissingh23/Fish-Species-Detection-CNN/pkg/fish/predict"
	"github.com/rissingh23/Fish-Species-Detection-CNN/pkg/fish/server"
	"k8s.io/klog/v2"

	_ "github.com/gomlx/gomlx/backends/default"
)

var (
	flagAddr      = flag.String("addr", ":8000", "Address to listen on.")
	flagArtifacts = flag.String("artifacts", ".", "Directory with the model and label index written by fish_train.")
	flagModel     = flag.String("model", "", "Model file. Defaults to "+artifacts.ModelFile+" in -artifacts.")
	flagIndex     = flag.String("labels", "", "Label index file. Defaults to "+artifacts.LabelIndexFile+" in -artifacts.")
	flagSpecies   = flag.String("species", "", "Optional JSON file mapping species names to their information.")
	flagMetrics   = flag.Bool("metrics", true, "Expose Prometheus metrics on /metrics.")
	flagMaxUpload = flag.Int64("max_upload", server.DefaultMaxUploadBytes, "Largest upload accepted, in bytes.")
	flagDebug     = flag.Bool("debug", false, "Run gin in debug mode.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	if !*flagDebug {
		gin.SetMode(gin.ReleaseMode)
	}

	paths := artifacts.Paths{Dir: must.M1(fsutil.ReplaceTildeInDir(*flagArtifacts))}
	modelPath, indexPath := paths.Model(), paths.LabelIndex()
	if *flagModel != "" {
		modelPath = must.M1(fsutil.ReplaceTildeInDir(*flagModel))
	}
	if *flagIndex != "" {
		indexPath = must.M1(fsutil.ReplaceTildeInDir(*flagIndex))
	}

	// The model is loaded once: any failure here is fatal.
	predictor, err := predict.Load(backends.MustNew(), modelPath, indexPath)
	if err != nil {
		klog.Exitf("Failed to load model: %+v", err)
	}
	info := predictor.Info()
	klog.Infof("Loaded %s", &info)

	var species server.SpeciesInfo
	if *flagSpecies != "" {
		species, err = server.LoadSpeciesInfo(must.M1(fsutil.ReplaceTildeInDir(*flagSpecies)))
		if err != nil {
			klog.Exitf("Failed to load species information: %+v", err)
		}
	}
	svc, err := server.NewServiceContext(predictor, predictor.Index(), species)
	if err != nil {
		klog.Exitf("Failed to create service: %+v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	router := server.NewRouter(svc, server.Options{Metrics: *flagMetrics, MaxUploadBytes: *flagMaxUpload})
	if err := server.ListenAndServe(ctx, *flagAddr, router); err != nil {
		klog.Exitf("%+v", err)
	}
}
