package sheet

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// TABLE BUILDER - one constructor for every shape a statement arrives in
// =============================================================================

// Keys inside a dict-of-dicts row that annotate the row instead of holding a period.
const (
	conceptKey  = "concept"
	abstractKey = "abstract"
)

var periodLayouts = []string{"2006-01-02", "2006-01", "Jan. 2, 2006", "Jan 2, 2006", "Jan. 02, 2006", "01/02/2006"}

// New builds a Table named name from any supported source:
//   - *Table or Table (deep copy)
//   - map[string]map[string]any or map[string]map[string]*float64 (row label -> period -> cell)
//   - [][]string (row 0 is the header, column 0 holds the labels)
func New(name string, src any) (*Table, error) {
	var (
		t   *Table
		err error
	)
	switch v := src.(type) {
	case nil:
		t = &Table{}
	case *Table:
		t = v.Clone()
		if t == nil {
			t = &Table{}
		}
	case Table:
		t = v.Clone()
	case map[string]map[string]any:
		t, err = fromDict(v)
	case map[string]map[string]*float64:
		generic := make(map[string]map[string]any, len(v))
		for label, cols := range v {
			row := make(map[string]any, len(cols))
			for col, cell := range cols {
				row[col] = cell
			}
			generic[label] = row
		}
		t, err = fromDict(generic)
	case [][]string:
		t, err = fromGrid(v)
	default:
		return nil, fmt.Errorf("sheet: unsupported table source %T", src)
	}
	if err != nil {
		return nil, err
	}
	if name != "" {
		t.Name = name
	}
	return t, nil
}

// MustNew is New for literals in tests and fixtures.
func MustNew(name string, src any) *Table {
	t, err := New(name, src)
	if err != nil {
		panic(err)
	}
	return t
}

func fromDict(src map[string]map[string]any) (*Table, error) {
	labels := make([]string, 0, len(src))
	colSet := make(map[string]bool)
	for label, cols := range src {
		labels = append(labels, label)
		for col := range cols {
			if col == conceptKey || col == abstractKey {
				continue
			}
			colSet[col] = true
		}
	}
	sort.Strings(labels)
	columns := make([]string, 0, len(colSet))
	for col := range colSet {
		columns = append(columns, col)
	}
	SortPeriods(columns)

	t := &Table{Columns: columns, Rows: make([]Row, 0, len(labels))}
	for _, label := range labels {
		cols := src[label]
		row := Row{Label: label, Cells: make([]Cell, len(columns))}
		if c, ok := cols[conceptKey].(string); ok {
			row.Concept = c
		}
		if a, ok := cols[abstractKey].(bool); ok {
			row.Abstract = a
		}
		for i, col := range columns {
			cell, err := toCell(cols[col])
			if err != nil {
				return nil, fmt.Errorf("sheet: row %q column %q: %w", label, col, err)
			}
			row.Cells[i] = cell
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

func fromGrid(grid [][]string) (*Table, error) {
	if len(grid) == 0 {
		return &Table{}, nil
	}
	header := grid[0]
	if len(header) == 0 {
		return nil, fmt.Errorf("sheet: empty header row")
	}
	conceptCol := -1
	var columns []string
	var valueCols []int
	for i := 1; i < len(header); i++ {
		h := strings.TrimSpace(header[i])
		if strings.EqualFold(h, conceptKey) {
			conceptCol = i
			continue
		}
		columns = append(columns, h)
		valueCols = append(valueCols, i)
	}

	t := &Table{Columns: columns}
	for _, line := range grid[1:] {
		if len(line) == 0 {
			continue
		}
		row := Row{Label: strings.TrimSpace(line[0]), Cells: make([]Cell, len(columns))}
		if conceptCol > 0 && conceptCol < len(line) {
			row.Concept = strings.TrimSpace(line[conceptCol])
		}
		for j, idx := range valueCols {
			if idx < len(line) {
				row.Cells[j] = textCell(line[idx])
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

func toCell(v any) (Cell, error) {
	switch x := v.(type) {
	case nil:
		return Cell{}, nil
	case float64:
		return numCell(x), nil
	case float32:
		return numCell(float64(x)), nil
	case int:
		return numCell(float64(x)), nil
	case int64:
		return numCell(float64(x)), nil
	case *float64:
		if x == nil {
			return Cell{}, nil
		}
		return numCell(*x), nil
	case json.Number:
		f, err := strconv.ParseFloat(x.String(), 64)
		if err != nil {
			return Cell{Raw: x.String()}, nil
		}
		return numCell(f), nil
	case string:
		return textCell(x), nil
	default:
		return Cell{}, fmt.Errorf("unsupported cell type %T", v)
	}
}

func numCell(f float64) Cell {
	return Cell{Value: &f}
}

func textCell(s string) Cell {
	if strings.TrimSpace(s) == "" {
		return Cell{}
	}
	return Cell{Value: ParseNumber(s), Raw: s}
}

// SortPeriods orders period labels most recent first. Labels that parse as
// dates come before the rest; unparseable labels keep lexical order.
func SortPeriods(cols []string) {
	sort.SliceStable(cols, func(i, j int) bool {
		ti, iok := parsePeriod(cols[i])
		tj, jok := parsePeriod(cols[j])
		switch {
		case iok && jok:
			if ti.Equal(tj) {
				return cols[i] < cols[j]
			}
			return ti.After(tj)
		case iok:
			return true
		case jok:
			return false
		default:
			return cols[i] < cols[j]
		}
	})
}

func parsePeriod(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range periodLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
