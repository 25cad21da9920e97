// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package split partitions a manifest into disjoint train, validation and test subsets.
//
// The partition is a seeded shuffle followed by positional cuts, so the same manifest and seed always
// yield the same membership. By default it doesn't stratify by class; set Config.Stratify to cut each
// class separately.
package split

import (
	"fmt"
	"io"
	"math"
	"math/rand"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/pkg/errors"
	"github.com/rissingh23/Fish-Species-Detection-CNN/pkg/fish"
	"github.com/rissingh23/Fish-Species-Detection-CNN/pkg/fish/manifest"
)

// Config of the split.
type Config struct {
	// TestFraction of the whole manifest held out for the final test evaluation.
	TestFraction float64

	// ValidationFraction of the remaining (train+validation) samples used for validation after each epoch.
	ValidationFraction float64

	// Seed for the shuffle.
	Seed int64

	// Stratify cuts each class separately, so every class keeps (approximately) the same proportions in
	// each subset.
	Stratify bool
}

// DefaultConfig is an 80/20 train+validation/test split, followed by an 80/20 train/validation split, seed 42.
var DefaultConfig = Config{
	TestFraction:       0.2,
	ValidationFraction: 0.2,
	Seed:               42,
}

// Split holds the three disjoint subsets of a manifest.
type Split struct {
	Config     Config
	Train      []manifest.Sample
	Validation []manifest.Sample
	Test       []manifest.Sample
}

// Len returns the total number of samples in the split.
func (s *Split) Len() int {
	return len(s.Train) + len(s.Validation) + len(s.Test)
}

// String implements fmt.Stringer.
func (s *Split) String() string {
	return fmt.Sprintf("Split(train=%d, validation=%d, test=%d, seed=%d, stratify=%v)",
		len(s.Train), len(s.Validation), len(s.Test), s.Config.Seed, s.Config.Stratify)
}

// DataFrame returns the membership of every sample, with the columns "subset", "path" and "label".
// Rows are ordered train, validation and then test.
func (s *Split) DataFrame() dataframe.DataFrame {
	var subsets, paths, labels []string
	for _, subset := range []struct {
		name    string
		samples []manifest.Sample
	}{{"train", s.Train}, {"validation", s.Validation}, {"test", s.Test}} {
		for _, sample := range subset.samples {
			subsets = append(subsets, subset.name)
			paths = append(paths, sample.Path)
			labels = append(labels, sample.Label)
		}
	}
	return dataframe.New(
		series.New(subsets, series.String, "subset"),
		series.New(paths, series.String, "path"),
		series.New(labels, series.String, "label"),
	)
}

// WriteCSV writes the split membership (see DataFrame) as CSV.
func (s *Split) WriteCSV(w io.Writer) error {
	df := s.DataFrame()
	if df.Err != nil {
		return errors.Wrap(df.Err, "failed to build split dataframe")
	}
	return errors.Wrap(df.WriteCSV(w), "failed to write split CSV")
}

// Plan splits the manifest according to cfg.
//
// It returns a *fish.InsufficientDataError if the fractions are not in (0, 1) or if any of the subsets
// would be empty.
func Plan(m *manifest.Manifest, cfg Config) (*Split, error) {
	if err := checkFraction("test", cfg.TestFraction, m.Len()); err != nil {
		return nil, err
	}
	if err := checkFraction("validation", cfg.ValidationFraction, m.Len()); err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	s := &Split{Config: cfg}
	if !cfg.Stratify {
		trainVal, test := cut(rng, m.Samples, cfg.TestFraction)
		train, validation := cut(rng, trainVal, cfg.ValidationFraction)
		s.Train, s.Validation, s.Test = train, validation, test
	} else {
		// Group by class, in sorted class order, keeping the manifest order within each class.
		byClass := make(map[string][]manifest.Sample)
		for _, sample := range m.Samples {
			byClass[sample.Label] = append(byClass[sample.Label], sample)
		}
		for _, class := range m.Classes() {
			trainVal, test := cut(rng, byClass[class], cfg.TestFraction)
			train, validation := cut(rng, trainVal, cfg.ValidationFraction)
			s.Train = append(s.Train, train...)
			s.Validation = append(s.Validation, validation...)
			s.Test = append(s.Test, test...)
		}
	}

	for _, subset := range []struct {
		name    string
		samples []manifest.Sample
	}{{"train", s.Train}, {"validation", s.Validation}, {"test", s.Test}} {
		if len(subset.samples) == 0 {
			return nil, &fish.InsufficientDataError{Subset: subset.name, NumSamples: m.Len()}
		}
	}
	return s, nil
}

func checkFraction(subset string, fraction float64, numSamples int) error {
	if fraction <= 0 || fraction >= 1 || math.IsNaN(fraction) {
		return &fish.InsufficientDataError{
			Subset:     subset,
			NumSamples: numSamples,
			Reason:     fmt.Sprintf("fraction %g must be in the open interval (0, 1)", fraction),
		}
	}
	return nil
}

// cut shuffles a copy of samples and splits it in two: the first holds floor((1-heldOutFraction)*n)
// samples and the second the rest.
func cut(rng *rand.Rand, samples []manifest.Sample, heldOutFraction float64) (kept, heldOut []manifest.Sample) {
	n := len(samples)
	perm := rng.Perm(n)
	numKept := int(math.Floor(float64(n)*(1-heldOutFraction) + 1e-9))
	kept = make([]manifest.Sample, 0, numKept)
	heldOut = make([]manifest.Sample, 0, n-numKept)
	for ii, idx := range perm {
		if ii < numKept {
			kept = append(kept, samples[idx])
		} else {
			heldOut = append(heldOut, samples[idx])
		}
	}
	return
}
