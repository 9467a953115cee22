// Package report turns stored snapshots into series and renders them as
// Markdown tables or HTML.
package report

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"filing_screener/pkg/core/calc"
	"filing_screener/pkg/models"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Point is one value of a variable at a reporting date. A nil Value is a gap.
type Point struct {
	Date  string   `json:"date"`
	Value *float64 `json:"value"`
}

// Series is a named sequence of points, oldest first.
type Series struct {
	Name   string  `json:"name"`
	Points []Point `json:"points"`
}

// SeriesOf reads variable from every snapshot, looking in base values first
// and then in computed ratios. Snapshots that lack the variable keep a nil
// point so gaps stay visible.
func SeriesOf(snaps []*models.Snapshot, variable string) Series {
	s := Series{Name: variable, Points: make([]Point, 0, len(snaps))}
	for _, snap := range snaps {
		v, _ := snap.Value(variable)
		s.Points = append(s.Points, Point{Date: snap.Date, Value: v})
	}
	sort.SliceStable(s.Points, func(i, j int) bool { return s.Points[i].Date < s.Points[j].Date })
	return s
}

// Markdown renders the series as one table with a row per date and a column
// per series. Missing values render blank.
func Markdown(title string, series ...Series) string {
	var b strings.Builder
	if title != "" {
		fmt.Fprintf(&b, "## %s\n\n", escape(title))
	}

	dates := unionDates(series)
	b.WriteString("| Date |")
	for _, s := range series {
		fmt.Fprintf(&b, " %s |", escape(s.Name))
	}
	b.WriteString("\n| --- |")
	for range series {
		b.WriteString(" ---: |")
	}
	b.WriteString("\n")

	for _, d := range dates {
		fmt.Fprintf(&b, "| %s |", d)
		for _, s := range series {
			fmt.Fprintf(&b, " %s |", calc.FormatOptional(valueAt(s, d)))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// SnapshotMarkdown renders one snapshot: its base values and ratios as two
// name/value tables, names sorted.
func SnapshotMarkdown(snap *models.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## %s %s\n\n", escape(snap.Ticker), snap.Date)
	if snap.YFValue != nil && snap.YFValueDate != nil {
		fmt.Fprintf(&b, "Price: %.2f (%s)\n\n", *snap.YFValue, *snap.YFValueDate)
	}
	writeValues(&b, "Ratios", snap.Computed)
	writeValues(&b, "Base values", snap.Base)
	return b.String()
}

func writeValues(b *strings.Builder, heading string, values map[string]*float64) {
	if len(values) == 0 {
		return
	}
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintf(b, "### %s\n\n| Name | Value |\n| --- | ---: |\n", heading)
	for _, name := range names {
		fmt.Fprintf(b, "| %s | %s |\n", escape(name), calc.FormatOptional(values[name]))
	}
	b.WriteString("\n")
}

// HTML renders Markdown (GitHub tables enabled) to an HTML fragment.
func HTML(markdown string) (string, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.Table))
	var buf bytes.Buffer
	if err := md.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("render report html: %w", err)
	}
	return buf.String(), nil
}

func unionDates(series []Series) []string {
	seen := make(map[string]bool)
	var dates []string
	for _, s := range series {
		for _, p := range s.Points {
			if !seen[p.Date] {
				seen[p.Date] = true
				dates = append(dates, p.Date)
			}
		}
	}
	sort.Strings(dates)
	return dates
}

func valueAt(s Series, date string) *float64 {
	for _, p := range s.Points {
		if p.Date == date {
			return p.Value
		}
	}
	return nil
}

func escape(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
