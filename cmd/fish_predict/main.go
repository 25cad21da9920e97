// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// fish_predict uploads images to a running fish_server and prints the predicted species.
//
//	fish_predict -server http://localhost:8000 trout.png sea_bass.png
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rissingh23/Fish-Species-Detection-CNN/pkg/fish/client"
	"k8s.io/klog/v2"
)

var (
	flagServer  = flag.String("server", "http://localhost:8000", "URL of the prediction service.")
	flagTimeout = flag.Duration("timeout", time.Minute, "Timeout of each request.")
	flagJSON    = flag.Bool("json", false, "Print the raw JSON responses.")
	flagHealth  = flag.Bool("health", false, "Only query the health of the service.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	c := client.New(*flagServer).SetTimeout(*flagTimeout)
	ctx := context.Background()

	if *flagHealth {
		health, err := c.Health(ctx)
		if err != nil {
			klog.Exitf("%v", err)
		}
		fmt.Printf("%s: %d classes (label hash %.12s)\n", health.Status, health.NumClasses, health.LabelHash)
		for _, class := range health.Classes {
			fmt.Printf("\t%s\n", class)
		}
		return
	}

	if flag.NArg() == 0 {
		klog.Exitf("No image given. Usage: %s [flags] <image> [<image>...]", os.Args[0])
	}
	var numFailed int
	for _, path := range flag.Args() {
		prediction, err := c.Predict(ctx, path)
		if err != nil {
			klog.Errorf("%s: %v", path, err)
			numFailed++
			continue
		}
		if *flagJSON {
			data, _ := json.Marshal(prediction)
			fmt.Printf("%s\t%s\n", path, data)
			continue
		}
		fmt.Printf("%s:\t%s (%.0f%%)\n", path, prediction.Species, 100*prediction.Confidence)
		for key, value := range prediction.Info {
			fmt.Printf("\t%s: %v\n", key, value)
		}
	}
	if numFailed > 0 {
		klog.Exitf("%d of %d predictions failed", numFailed, flag.NArg())
	}
}
