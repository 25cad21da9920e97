// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"sort"

	"github.com/rissingh23/Fish-Species-Detection-CNN/pkg/fish"
	"github.com/schollz/progressbar/v3"
)

// newProgressBar returns nil if not verbose.
func newProgressBar(total int, description string, verbose bool) *progressbar.ProgressBar {
	if !verbose {
		return nil
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionUseANSICodes(true),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("images"),
		progressbar.OptionSetTheme(progressbar.ThemeUnicode),
	)
}

func sortDecodeErrors(errs []*fish.ImageDecodeError) {
	sort.Slice(errs, func(i, j int) bool { return errs[i].Path < errs[j].Path })
}
