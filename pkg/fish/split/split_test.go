// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package split

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/rissingh23/Fish-Species-Detection-CNN/pkg/fish"
	"github.com/rissingh23/Fish-Species-Detection-CNN/pkg/fish/manifest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// shrimpAndTrout creates a manifest with 40 shrimp and 60 trout samples.
func shrimpAndTrout() *manifest.Manifest {
	m := &manifest.Manifest{Root: "/data"}
	for ii := range 40 {
		m.Samples = append(m.Samples, manifest.Sample{Path: fmt.Sprintf("/data/shrimp/%03d.png", ii), Label: "shrimp"})
	}
	for ii := range 60 {
		m.Samples = append(m.Samples, manifest.Sample{Path: fmt.Sprintf("/data/trout/%03d.png", ii), Label: "trout"})
	}
	return m
}

func paths(samples []manifest.Sample) []string {
	p := make([]string, len(samples))
	for ii, s := range samples {
		p[ii] = s.Path
	}
	return p
}

func TestPlanSizes(t *testing.T) {
	s, err := Plan(shrimpAndTrout(), DefaultConfig)
	require.NoError(t, err)
	assert.Equal(t, 80, len(s.Train)+len(s.Validation))
	assert.Len(t, s.Test, 20)
	assert.Len(t, s.Train, 64)
	assert.Len(t, s.Validation, 16)
	assert.Equal(t, 100, s.Len())
}

func TestPlanDeterministicAndDisjoint(t *testing.T) {
	for _, stratify := range []bool{false, true} {
		cfg := DefaultConfig
		cfg.Stratify = stratify
		m := shrimpAndTrout()
		s1, err := Plan(m, cfg)
		require.NoError(t, err)
		s2, err := Plan(m, cfg)
		require.NoError(t, err)
		assert.Equal(t, paths(s1.Train), paths(s2.Train))
		assert.Equal(t, paths(s1.Validation), paths(s2.Validation))
		assert.Equal(t, paths(s1.Test), paths(s2.Test))

		seen := make(map[string]string)
		for name, subset := range map[string][]manifest.Sample{"train": s1.Train, "validation": s1.Validation, "test": s1.Test} {
			for _, sample := range subset {
				previous, found := seen[sample.Path]
				require.False(t, found, "sample %q in both %s and %s", sample.Path, previous, name)
				seen[sample.Path] = name
			}
		}
		assert.Len(t, seen, m.Len())

		// A different seed yields a different partition.
		cfg.Seed = 7
		s3, err := Plan(m, cfg)
		require.NoError(t, err)
		assert.NotEqual(t, paths(s1.Test), paths(s3.Test))
	}
}

func TestPlanStratified(t *testing.T) {
	cfg := DefaultConfig
	cfg.Stratify = true
	s, err := Plan(shrimpAndTrout(), cfg)
	require.NoError(t, err)
	testCounts := manifest.ClassCounts(s.Test)
	assert.Equal(t, 8, testCounts["shrimp"])
	assert.Equal(t, 12, testCounts["trout"])
	assert.Equal(t, 100, s.Len())
}

func TestPlanInsufficientData(t *testing.T) {
	m := &manifest.Manifest{Samples: []manifest.Sample{{Path: "a.png", Label: "a"}, {Path: "b.png", Label: "b"}}}
	_, err := Plan(m, DefaultConfig)
	var insufficient *fish.InsufficientDataError
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, "train", insufficient.Subset)

	cfg := DefaultConfig
	cfg.TestFraction = 1.0
	_, err = Plan(shrimpAndTrout(), cfg)
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, "test", insufficient.Subset)
}

func TestWriteCSV(t *testing.T) {
	s, err := Plan(shrimpAndTrout(), DefaultConfig)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, s.WriteCSV(&buf))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, s.Len()+1)
	assert.Equal(t, "subset,path,label", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "train,"))
	assert.True(t, strings.HasPrefix(lines[len(lines)-1], "test,"))
}
