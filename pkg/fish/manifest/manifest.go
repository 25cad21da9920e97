// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package manifest walks a materialized dataset directory and lists its samples: one (path, label) pair
// per image file, where the label is the name of the directory holding the file.
package manifest

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/pkg/errors"
	"github.com/rissingh23/Fish-Species-Detection-CNN/pkg/fish"
	"k8s.io/klog/v2"
)

const (
	// DefaultMaskMarker marks ground-truth (segmentation mask) directories: any directory whose path,
	// relative to the dataset root, contains it is skipped along with everything under it.
	DefaultMaskMarker = "GT"
)

// DefaultExtensions accepted as samples. Matched case-insensitively.
var DefaultExtensions = []string{".png"}

// Sample is one image of the dataset.
type Sample struct {
	Path  string
	Label string
}

// Manifest is the ordered list of samples found under Root.
type Manifest struct {
	Root    string
	Samples []Sample
}

// Option configures Build.
type Option func(*builder)

type builder struct {
	maskMarker string
	extensions []string
}

// WithMaskMarker changes the marker used to recognize ground-truth directories. An empty marker disables exclusion.
func WithMaskMarker(marker string) Option {
	return func(b *builder) { b.maskMarker = marker }
}

// WithExtensions changes the accepted file extensions (e.g. ".png", ".jpg").
func WithExtensions(extensions ...string) Option {
	return func(b *builder) {
		b.extensions = make([]string, len(extensions))
		for ii, ext := range extensions {
			b.extensions[ii] = strings.ToLower(ext)
		}
	}
}

// Build walks root recursively and returns the Manifest of the samples found.
//
// Samples are sorted by path, so the result doesn't depend on the order the filesystem lists entries.
// It returns a *fish.DataLayoutError if root doesn't exist, is not a directory or holds no samples.
func Build(root string, options ...Option) (*Manifest, error) {
	b := &builder{maskMarker: DefaultMaskMarker, extensions: DefaultExtensions}
	for _, opt := range options {
		opt(b)
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, &fish.DataLayoutError{Root: root, Reason: "cannot access dataset root", Err: err}
	}
	if !info.IsDir() {
		return nil, &fish.DataLayoutError{Root: root, Reason: "dataset root is not a directory"}
	}

	m := &Manifest{Root: root}
	var numMaskDirs int
	err = filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			if path != root && b.isMaskDir(root, path) {
				numMaskDirs++
				klog.V(2).Infof("manifest: skipping mask directory %q", path)
				return filepath.SkipDir
			}
			return nil
		}
		if !entry.Type().IsRegular() || !b.accepts(entry.Name()) {
			return nil
		}
		m.Samples = append(m.Samples, Sample{
			Path:  path,
			Label: filepath.Base(filepath.Dir(path)),
		})
		return nil
	})
	if err != nil {
		return nil, &fish.DataLayoutError{Root: root, Reason: "failed walking dataset", Err: err}
	}
	if len(m.Samples) == 0 {
		return nil, &fish.DataLayoutError{Root: root, Reason: "no samples found"}
	}
	sort.Slice(m.Samples, func(i, j int) bool { return m.Samples[i].Path < m.Samples[j].Path })
	klog.V(1).Infof("manifest: %d samples in %d classes under %q (%d mask directories skipped)",
		len(m.Samples), len(m.Classes()), root, numMaskDirs)
	return m, nil
}

// isMaskDir checks for the marker in the path relative to root, so that the location of the dataset itself
// doesn't matter.
func (b *builder) isMaskDir(root, path string) bool {
	if b.maskMarker == "" {
		return false
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}
	return strings.Contains(rel, b.maskMarker)
}

func (b *builder) accepts(name string) bool {
	return slices.Contains(b.extensions, strings.ToLower(filepath.Ext(name)))
}

// Len returns the number of samples.
func (m *Manifest) Len() int { return len(m.Samples) }

// Classes returns the sorted list of distinct labels.
func (m *Manifest) Classes() []string {
	return Classes(m.Samples)
}

// ClassCounts returns the number of samples per label.
func (m *Manifest) ClassCounts() map[string]int {
	return ClassCounts(m.Samples)
}

// Classes returns the sorted distinct labels of samples.
func Classes(samples []Sample) []string {
	seen := make(map[string]bool)
	var classes []string
	for _, s := range samples {
		if !seen[s.Label] {
			seen[s.Label] = true
			classes = append(classes, s.Label)
		}
	}
	sort.Strings(classes)
	return classes
}

// ClassCounts returns the number of samples per label.
func ClassCounts(samples []Sample) map[string]int {
	counts := make(map[string]int)
	for _, s := range samples {
		counts[s.Label]++
	}
	return counts
}

// DataFrame returns the manifest as a dataframe with the columns "path" and "label".
func (m *Manifest) DataFrame() dataframe.DataFrame {
	return SamplesDataFrame(m.Samples)
}

// SamplesDataFrame converts a list of samples to a dataframe with the columns "path" and "label".
func SamplesDataFrame(samples []Sample) dataframe.DataFrame {
	paths := make([]string, len(samples))
	labels := make([]string, len(samples))
	for ii, s := range samples {
		paths[ii] = s.Path
		labels[ii] = s.Label
	}
	return dataframe.New(
		series.New(paths, series.String, "path"),
		series.New(labels, series.String, "label"),
	)
}

// CountsDataFrame returns a dataframe with the columns "label" and "count", sorted by label.
func CountsDataFrame(samples []Sample) dataframe.DataFrame {
	counts := ClassCounts(samples)
	classes := Classes(samples)
	values := make([]int, len(classes))
	for ii, class := range classes {
		values[ii] = counts[class]
	}
	return dataframe.New(
		series.New(classes, series.String, "label"),
		series.New(values, series.Int, "count"),
	)
}

// WriteCSV writes the manifest (columns "path" and "label") as CSV.
func (m *Manifest) WriteCSV(w io.Writer) error {
	df := m.DataFrame()
	if df.Err != nil {
		return errors.Wrap(df.Err, "failed to build manifest dataframe")
	}
	return errors.Wrap(df.WriteCSV(w), "failed to write manifest CSV")
}
