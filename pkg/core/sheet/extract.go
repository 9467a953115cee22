package sheet

import (
	"math"
	"strconv"
	"strings"
)

// =============================================================================
// VALUE EXTRACTOR
// =============================================================================

// Extract returns the value of the first populated, numeric column in the row
// labelled label. Filings list the current period before the comparatives, so
// the first populated column is the most relevant one. Missing tables, missing
// rows and empty rows all yield nil.
func Extract(t *Table, label string) *float64 {
	row := t.Row(label)
	if row == nil {
		return nil
	}
	return row.First()
}

// First returns the first non-null, finite cell value of the row.
func (r Row) First() *float64 {
	for _, c := range r.Cells {
		if c.Value == nil {
			continue
		}
		v := *c.Value
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		return &v
	}
	return nil
}

// ParseNumber converts statement text into a number. It accepts surrounding
// whitespace, currency symbols, thousands separators and accounting-style
// negatives "(1,234)". Anything that does not parse returns nil.
func ParseNumber(s string) *float64 {
	s = strings.TrimSpace(s)
	switch s {
	case "", "-", "—", "–", "N/A", "n/a", "NaN", "nan":
		return nil
	}

	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "\u00a0", "")
	s = strings.ReplaceAll(s, "−", "-")

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSuffix(strings.TrimPrefix(s, "("), ")")
	}
	if s == "" {
		return nil
	}

	val, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(val) || math.IsInf(val, 0) {
		return nil
	}
	if negative {
		val = -val
	}
	return &val
}
