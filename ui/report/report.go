// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package report renders terminal tables for the fish classifier tools: dataset manifests, splits,
// training histories and saved models.
package report

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/rissingh23/Fish-Species-Detection-CNN/pkg/fish/artifacts"
	"github.com/rissingh23/Fish-Species-Detection-CNN/pkg/fish/classifier"
	"github.com/rissingh23/Fish-Species-Detection-CNN/pkg/fish/manifest"
	"github.com/rissingh23/Fish-Species-Detection-CNN/pkg/fish/split"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Padding(1, 4, 1, 4)

	headerRowStyle = lipgloss.NewStyle().Reverse(true).
			Padding(0, 2, 0, 2).Align(lipgloss.Center)
	oddRowStyle = lipgloss.NewStyle().Faint(false).
			PaddingLeft(1).PaddingRight(1)
	evenRowStyle = lipgloss.NewStyle().Faint(true).
			PaddingLeft(1).PaddingRight(1)
	redRowStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "9", Dark: "9"}).
			Bold(true).
			PaddingLeft(1).PaddingRight(1)
)

// table is a lipgloss table where some rows can be highlighted in red.
type table struct {
	*lgtable.Table
	count int
	reds  map[int]bool
}

// row appends a row, highlighted if isRed.
func (t *table) row(isRed bool, cells ...string) {
	if isRed {
		t.reds[t.count] = true
	}
	t.Table.Row(cells...)
	t.count++
}

// newTable creates a table with the given column alignments: the last alignment applies to the remaining columns.
func newTable(alignments ...lipgloss.Position) *table {
	t := &table{reds: make(map[int]bool)}
	t.Table = lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		StyleFunc(func(row, col int) (s lipgloss.Style) {
			if row < 0 {
				return headerRowStyle
			}
			switch {
			case t.reds[row]:
				s = redRowStyle
			case row%2 == 0:
				s = oddRowStyle
			default:
				s = evenRowStyle
			}
			alignment := lipgloss.Left
			if col < len(alignments) {
				alignment = alignments[col]
			} else if len(alignments) > 0 {
				alignment = alignments[len(alignments)-1]
			}
			return s.Align(alignment)
		})
	return t
}

func render(w io.Writer, title string, t *table) {
	_, _ = fmt.Fprintln(w, titleStyle.Render(title))
	_, _ = fmt.Fprintln(w, t.Render())
}

func percent(part, total int) string {
	if total == 0 {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", 100*float64(part)/float64(total))
}

// Manifest prints the number of samples per class.
func Manifest(w io.Writer, m *manifest.Manifest) {
	t := newTable(lipgloss.Left, lipgloss.Right)
	t.Headers("Class", "Samples", "Share")
	counts := m.ClassCounts()
	for _, class := range m.Classes() {
		t.row(false, class, humanize.Comma(int64(counts[class])), percent(counts[class], m.Len()))
	}
	t.row(false, "total", humanize.Comma(int64(m.Len())), percent(m.Len(), m.Len()))
	render(w, fmt.Sprintf("Dataset %q", m.Root), t)
}

// Split prints the number of samples per class in each subset. Classes missing from a subset are highlighted.
func Split(w io.Writer, s *split.Split) {
	subsets := [][]manifest.Sample{s.Train, s.Validation, s.Test}
	counts := make([]map[string]int, len(subsets))
	var classes []string
	for ii, samples := range subsets {
		counts[ii] = manifest.ClassCounts(samples)
		classes = append(classes, manifest.Classes(samples)...)
	}
	slices.Sort(classes)
	classes = slices.Compact(classes)

	t := newTable(lipgloss.Left, lipgloss.Right)
	t.Headers("Class", "Train", "Validation", "Test")
	for _, class := range classes {
		missing := false
		cells := []string{class}
		for ii := range subsets {
			n := counts[ii][class]
			missing = missing || n == 0
			cells = append(cells, humanize.Comma(int64(n)))
		}
		t.row(missing, cells...)
	}
	t.row(false, "total", humanize.Comma(int64(len(s.Train))), humanize.Comma(int64(len(s.Validation))),
		humanize.Comma(int64(len(s.Test))))
	render(w, fmt.Sprintf("Split (seed=%d, stratify=%v)", s.Config.Seed, s.Config.Stratify), t)
}

// History prints the per-epoch metrics and the test evaluation. Epochs where the validation accuracy didn't
// improve are highlighted.
func History(w io.Writer, h *classifier.History) {
	t := newTable(lipgloss.Right)
	t.Headers("Epoch", "Loss", "Accuracy", "Val Loss", "Val Accuracy")
	best := -1.0
	for ii := range h.NumEpochs() {
		notImproving := h.ValAccuracy[ii] <= best
		best = max(best, h.ValAccuracy[ii])
		t.row(notImproving, fmt.Sprintf("%d", ii+1),
			fmt.Sprintf("%.4f", h.Loss[ii]), fmt.Sprintf("%.2f%%", 100*h.Accuracy[ii]),
			fmt.Sprintf("%.4f", h.ValLoss[ii]), fmt.Sprintf("%.2f%%", 100*h.ValAccuracy[ii]))
	}
	t.row(false, "test", fmt.Sprintf("%.4f", h.TestLoss), "", "", fmt.Sprintf("%.2f%%", 100*h.TestAccuracy))
	render(w, "Training history", t)
}

// ModelSummary prints the model header and the size of its variables.
func ModelSummary(w io.Writer, path string, model *artifacts.Model) {
	h := model.Header
	t := newTable(lipgloss.Right, lipgloss.Left)
	t.row(false, "file", path)
	t.row(false, "format version", fmt.Sprintf("%d", h.FormatVersion))
	t.row(false, "created", fmt.Sprintf("%s (%s)", h.CreatedAt.Format("2006-01-02 15:04:05 MST"), humanize.Time(h.CreatedAt)))
	t.row(false, "architecture", classifier.Describe(model.Context))
	t.row(false, "image size", fmt.Sprintf("%dx%d", h.ImageSize, h.ImageSize))
	t.row(false, "normalization", h.Normalization)
	t.row(false, "epochs", fmt.Sprintf("%d", h.Epochs))
	t.row(false, "test accuracy", fmt.Sprintf("%.2f%%", 100*h.TestAccuracy))
	t.row(false, "classes", fmt.Sprintf("%d: %s", h.NumClasses, strings.Join(h.ClassNames, ", ")))
	t.row(false, "label hash", h.LabelHash)

	var numVars, totalSize int
	var totalMemory uintptr
	for v := range model.Context.IterVariables() {
		numVars++
		totalSize += v.Shape().Size()
		totalMemory += v.Shape().Memory()
	}
	t.row(false, "# variables", humanize.Comma(int64(numVars)))
	t.row(false, "# parameters", humanize.Comma(int64(totalSize)))
	t.row(false, "# bytes", humanize.Bytes(uint64(totalMemory)))
	render(w, "Model", t)
}

// Params prints the hyperparameters stored in ctx, sorted by scope and name.
func Params(w io.Writer, ctx *context.Context) {
	type param struct{ scope, key, value, valueType string }
	var params []param
	ctx.EnumerateParams(func(scope, key string, value any) {
		params = append(params, param{scope, key, fmt.Sprintf("%v", value), fmt.Sprintf("%T", value)})
	})
	slices.SortFunc(params, func(a, b param) int {
		if c := strings.Compare(a.scope, b.scope); c != 0 {
			return c
		}
		return strings.Compare(a.key, b.key)
	})
	t := newTable(lipgloss.Left)
	t.Headers("Scope", "Name", "Type", "Value")
	for _, p := range params {
		t.row(false, p.scope, p.key, p.valueType, p.value)
	}
	render(w, "Hyperparameters", t)
}

// Variables prints the variables of ctx under scope (all if empty), with their shapes and sizes.
func Variables(w io.Writer, ctx *context.Context, scope string) {
	t := newTable(lipgloss.Left, lipgloss.Left, lipgloss.Left, lipgloss.Right)
	t.Headers("Scope", "Name", "Shape", "Size", "Bytes")
	for v := range ctx.IterVariables() {
		if scope != "" && !strings.HasPrefix(v.Scope(), scope) {
			continue
		}
		shape := v.Shape()
		t.row(false, v.Scope(), v.Name(), shape.String(),
			humanize.Comma(int64(shape.Size())), humanize.Bytes(uint64(shape.Memory())))
	}
	render(w, fmt.Sprintf("Variables in scope %q", scope), t)
}
