// Package sheet models the raw statement tables of a filing (balance sheet,
// income statement, cash-flow statement) and extracts single values from them.
package sheet

import (
	"errors"
	"fmt"
	"strings"
)

// Canonical sheet names. They double as the JSON keys of a persisted snapshot.
const (
	BalanceSheet = "balance_sheet"
	Income       = "income"
	CashFlow     = "cashflow"
)

// DefaultOrder is the tie-break priority used when one label appears in more than one sheet.
var DefaultOrder = []string{BalanceSheet, Income, CashFlow}

// ErrUnknownSheet is returned for sheet names outside the three canonical statements.
var ErrUnknownSheet = errors.New("unknown sheet")

var sheetAliases = map[string]string{
	"balance_sheet":       BalanceSheet,
	"balance":             BalanceSheet,
	"income":              Income,
	"income_statement":    Income,
	"cashflow":            CashFlow,
	"cash_flow":           CashFlow,
	"cashflow_statement":  CashFlow,
	"cash_flow_statement": CashFlow,
}

// ParseSheetName maps a user-supplied sheet name onto its canonical form.
func ParseSheetName(name string) (string, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if canonical, ok := sheetAliases[key]; ok {
		return canonical, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSheet, name)
}

// Cell is one (row, period) value. Raw keeps the source text when the cell
// came from a string so it can be written back unchanged.
type Cell struct {
	Value *float64
	Raw   string
}

// Row is a single line item of a statement.
type Row struct {
	Label    string
	Concept  string // taxonomy tag annotation, e.g. "us-gaap_NetIncomeLoss"
	Abstract bool
	Cells    []Cell // aligned with Table.Columns
}

// IsAbstract reports whether the row is a structural heading rather than a fact.
func (r Row) IsAbstract() bool {
	if r.Abstract {
		return true
	}
	if strings.HasSuffix(r.Concept, "Abstract") {
		return true
	}
	return strings.Contains(r.Label, "Abstract")
}

// Table is a sparse statement: rows are line items, columns are reporting periods.
// Row labels are not unique across tables and are not stable across filers.
type Table struct {
	Name    string
	Columns []string
	Rows    []Row
}

// Row returns the first row carrying label. An exact match is preferred;
// otherwise the first row equal after case/whitespace normalization is used.
func (t *Table) Row(label string) *Row {
	if t == nil {
		return nil
	}
	for i := range t.Rows {
		if t.Rows[i].Label == label {
			return &t.Rows[i]
		}
	}
	key := NormalizeLabel(label)
	for i := range t.Rows {
		if NormalizeLabel(t.Rows[i].Label) == key {
			return &t.Rows[i]
		}
	}
	return nil
}

// Len returns the number of rows; nil tables are empty.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Clone returns a deep copy.
func (t *Table) Clone() *Table {
	if t == nil {
		return nil
	}
	out := &Table{
		Name:    t.Name,
		Columns: append([]string(nil), t.Columns...),
		Rows:    make([]Row, len(t.Rows)),
	}
	for i, r := range t.Rows {
		cells := make([]Cell, len(r.Cells))
		for j, c := range r.Cells {
			cells[j] = Cell{Raw: c.Raw}
			if c.Value != nil {
				v := *c.Value
				cells[j].Value = &v
			}
		}
		out.Rows[i] = Row{Label: r.Label, Concept: r.Concept, Abstract: r.Abstract, Cells: cells}
	}
	return out
}

// NormalizeLabel lowercases and trims a label or concept for lookup.
// Inner runs of whitespace collapse to a single space.
func NormalizeLabel(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Statements groups the three tables of one filing.
type Statements struct {
	BalanceSheet *Table
	Income       *Table
	CashFlow     *Table
}

// Sheet returns the table stored under a canonical sheet name.
func (s Statements) Sheet(name string) (*Table, error) {
	canonical, err := ParseSheetName(name)
	if err != nil {
		return nil, err
	}
	switch canonical {
	case BalanceSheet:
		return s.BalanceSheet, nil
	case Income:
		return s.Income, nil
	default:
		return s.CashFlow, nil
	}
}

// Empty reports whether no statement carries any row.
func (s Statements) Empty() bool {
	return s.BalanceSheet.Len() == 0 && s.Income.Len() == 0 && s.CashFlow.Len() == 0
}
