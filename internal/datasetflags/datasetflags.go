// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package datasetflags defines the command-line flags shared by the tools that read the fish dataset:
// where to materialize it from, how to build its manifest and how to split it.
package datasetflags

import (
	"context"
	"flag"

	"github.com/pkg/errors"
	"github.com/rissingh23/Fish-Species-Detection-CNN/pkg/fish/manifest"
	"github.com/rissingh23/Fish-Species-Detection-CNN/pkg/fish/materialize"
	"github.com/rissingh23/Fish-Species-Detection-CNN/pkg/fish/split"
	"k8s.io/klog/v2"
)

// Flags holds the values of the registered flags.
type Flags struct {
	URL, Checksum, Zip, Dir, Subdir, Dest string
	MaskMarker                            string
	ShowProgress                          bool

	Split split.Config
}

// Register the dataset flags in fs and returns where their values are stored.
func Register(fs *flag.FlagSet) *Flags {
	f := &Flags{Split: split.DefaultConfig}
	fs.StringVar(&f.URL, "url", "", "URL of the dataset zip archive to download, e.g. "+materialize.KaggleURL)
	fs.StringVar(&f.Checksum, "checksum", "", "SHA-256 of the zip archive, optional.")
	fs.StringVar(&f.Zip, "zip", "", "Local zip archive of the dataset.")
	fs.StringVar(&f.Dir, "dir", "", "Already extracted dataset directory, used in place.")
	fs.StringVar(&f.Subdir, "subdir", "", "Dataset root relative to the extracted tree. "+
		"If empty it's located automatically. For the Kaggle archive it's "+materialize.KaggleSubdir)
	fs.StringVar(&f.Dest, "dest", "~/.cache/fish_classifier/data", "Directory where archives are downloaded and extracted.")
	fs.StringVar(&f.MaskMarker, "mask_marker", manifest.DefaultMaskMarker,
		"Directories whose path, relative to the dataset root, contains this marker are skipped.")
	fs.BoolVar(&f.ShowProgress, "progress", true, "Show a progress bar while downloading.")

	fs.Float64Var(&f.Split.TestFraction, "test_fraction", f.Split.TestFraction, "Fraction of the data held out for testing.")
	fs.Float64Var(&f.Split.ValidationFraction, "validation_fraction", f.Split.ValidationFraction,
		"Fraction of the remaining data used for validation.")
	fs.Int64Var(&f.Split.Seed, "seed", f.Split.Seed, "Seed of the split.")
	fs.BoolVar(&f.Split.Stratify, "stratify", f.Split.Stratify, "Split each class separately.")
	return f
}

// Source of the dataset described by the flags.
func (f *Flags) Source() materialize.Source {
	return materialize.Source{
		URL:          f.URL,
		Checksum:     f.Checksum,
		ZipPath:      f.Zip,
		Dir:          f.Dir,
		Subdir:       f.Subdir,
		ShowProgress: f.ShowProgress,
	}
}

// Load materializes the dataset, builds its manifest and splits it.
func (f *Flags) Load(ctx context.Context) (*manifest.Manifest, *split.Split, error) {
	root, err := materialize.Materialize(ctx, f.Source(), f.Dest)
	if err != nil {
		return nil, nil, err
	}
	klog.V(1).Infof("Dataset root: %s", root)
	m, err := manifest.Build(root, manifest.WithMaskMarker(f.MaskMarker))
	if err != nil {
		return nil, nil, err
	}
	s, err := split.Plan(m, f.Split)
	if err != nil {
		return nil, nil, errors.WithMessagef(err, "splitting %d samples of %q", m.Len(), root)
	}
	return m, s, nil
}
