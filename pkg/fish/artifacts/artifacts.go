// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package artifacts reads and writes the outputs of a training run:
//
//   - class_indices.json: the label index (see labels.Index).
//   - fish_classifier.gmlx: the trained model, a single self-contained file with the model header
//     and all its weights.
//   - history.json, history.csv and history.png: the per-epoch training metrics.
//
// Every file is written atomically: readers see either the previous version or the new one.
package artifacts

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/rissingh23/Fish-Species-Detection-CNN/pkg/fish/labels"
)

const (
	// LabelIndexFile is the default file name of the label index.
	LabelIndexFile = "class_indices.json"

	// ModelFile is the default file name of the model.
	ModelFile = "fish_classifier.gmlx"

	// HistoryFile is the default file name of the training history.
	HistoryFile = "history.json"

	// HistoryCSVFile is the default file name of the training history as a table.
	HistoryCSVFile = "history.csv"

	// HistoryPlotFile is the default file name of the training curves.
	HistoryPlotFile = "history.png"

	filePerm = 0644
)

// Paths of the artifacts under one directory.
type Paths struct {
	Dir string
}

// LabelIndex returns the path to the label index file.
func (p Paths) LabelIndex() string { return filepath.Join(p.Dir, LabelIndexFile) }

// Model returns the path to the model file.
func (p Paths) Model() string { return filepath.Join(p.Dir, ModelFile) }

func (p Paths) History() string     { return filepath.Join(p.Dir, HistoryFile) }
func (p Paths) HistoryCSV() string  { return filepath.Join(p.Dir, HistoryCSVFile) }
func (p Paths) HistoryPlot() string { return filepath.Join(p.Dir, HistoryPlotFile) }

// writeAtomic writes to a temporary file in the same directory as dest, and renames it to dest once
// it's completely written and synced.
func writeAtomic(dest string, writeFn func(w io.Writer) error) error {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(err, "failed to create directory %q", dir)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return errors.Wrapf(err, "failed to create temporary file for %q", dest)
	}
	tmpPath := tmp.Name()
	_ = os.Chmod(tmpPath, filePerm)

	bw := bufio.NewWriter(tmp)
	if err := writeFn(bw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := bw.Flush(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return errors.Wrapf(err, "failed to write %q", dest)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return errors.Wrapf(err, "failed to sync %q", dest)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return errors.Wrapf(err, "failed to close %q", dest)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return errors.Wrapf(err, "failed to move %q to %q", tmpPath, dest)
	}
	// Best effort: persist the directory entry.
	_ = syncDir(dir)
	return nil
}

func syncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	return f.Sync()
}

func writeJSON(dest string, value any) error {
	return writeAtomic(dest, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(value); err != nil {
			return errors.Wrapf(err, "failed to encode %q", dest)
		}
		return nil
	})
}

// SaveLabelIndex writes the label index as JSON.
func SaveLabelIndex(path string, idx *labels.Index) error {
	return writeJSON(path, idx)
}

// LoadLabelIndex reads a label index written by SaveLabelIndex. It also accepts a bare {"name": index} mapping.
func LoadLabelIndex(path string) (*labels.Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read label index")
	}
	idx := &labels.Index{}
	if err := json.Unmarshal(data, idx); err != nil {
		return nil, errors.WithMessagef(err, "invalid label index in %q", path)
	}
	return idx, nil
}
