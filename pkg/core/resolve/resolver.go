// Package resolve finds, for each canonical concept, the statement and row
// label that carries it in one filing.
package resolve

import (
	"errors"
	"fmt"
	"strings"

	"filing_screener/pkg/core/sheet"

	"github.com/rs/zerolog/log"
)

// ErrSheetOrder is returned when the sheet priority order is not a permutation
// of the three statements.
var ErrSheetOrder = errors.New("invalid sheet order")

// Location points at the row holding a concept. Labels repeat within a
// statement ("Diluted" for both EPS and share count), so Row is the index
// into the sheet's rows that the value is read from.
type Location struct {
	Sheet string `json:"sheet"`
	Label string `json:"label"`
	Row   int    `json:"row"`
}

// Resolver maps concepts to locations by exact, case-insensitive matching.
// Substring enables the opt-in containment tier for labels the exact pass
// missed; it is off unless explicitly requested.
type Resolver struct {
	order     []string
	catalog   *Catalog
	Substring bool
}

// New validates order (empty means sheet.DefaultOrder) and returns a Resolver.
func New(order []string, catalog *Catalog) (*Resolver, error) {
	normalized, err := ValidateOrder(order)
	if err != nil {
		return nil, err
	}
	return &Resolver{order: normalized, catalog: catalog}, nil
}

// Order returns the sheet priority order in use.
func (r *Resolver) Order() []string {
	return append([]string(nil), r.order...)
}

// ValidateOrder checks that order names each statement exactly once.
func ValidateOrder(order []string) ([]string, error) {
	if len(order) == 0 {
		return append([]string(nil), sheet.DefaultOrder...), nil
	}
	seen := make(map[string]bool, len(order))
	out := make([]string, 0, len(order))
	for _, name := range order {
		canonical, err := sheet.ParseSheetName(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSheetOrder, err)
		}
		if seen[canonical] {
			return nil, fmt.Errorf("%w: %q listed twice", ErrSheetOrder, canonical)
		}
		seen[canonical] = true
		out = append(out, canonical)
	}
	if len(out) != len(sheet.DefaultOrder) {
		return nil, fmt.Errorf("%w: expected %d sheets, got %d", ErrSheetOrder, len(sheet.DefaultOrder), len(out))
	}
	return out, nil
}

type indexedRow struct {
	loc   Location
	label string // normalized
}

// index is the single lookup built per Resolve call.
type index struct {
	keys map[string]Location
	rows []indexedRow
}

func (r *Resolver) buildIndex(st sheet.Statements) index {
	idx := index{keys: make(map[string]Location)}
	for _, name := range r.order {
		tbl, _ := st.Sheet(name)
		if tbl == nil {
			continue
		}
		for i, row := range tbl.Rows {
			if row.IsAbstract() {
				continue
			}
			loc := Location{Sheet: name, Label: row.Label, Row: i}
			label := sheet.NormalizeLabel(row.Label)
			for _, key := range []string{label, sheet.NormalizeLabel(row.Concept)} {
				if key == "" {
					continue
				}
				if _, taken := idx.keys[key]; !taken {
					idx.keys[key] = loc
				}
			}
			idx.rows = append(idx.rows, indexedRow{loc: loc, label: label})
		}
	}
	return idx
}

// Resolve returns a location (or nil) for every requested concept. The
// statements are scanned once regardless of how many concepts are asked for.
// A concept is tried as-is first, then through its catalog aliases; the first
// exact hit wins.
func (r *Resolver) Resolve(concepts []string, st sheet.Statements) map[string]*Location {
	idx := r.buildIndex(st)
	out := make(map[string]*Location, len(concepts))

	for _, concept := range concepts {
		if _, done := out[concept]; done {
			continue
		}
		candidates := append([]string{concept}, r.catalog.Aliases(concept)...)

		var found *Location
		for _, cand := range candidates {
			if loc, ok := idx.keys[sheet.NormalizeLabel(cand)]; ok {
				l := loc
				found = &l
				break
			}
		}
		if found == nil && r.Substring {
			found = idx.containing(candidates)
			if found != nil {
				log.Debug().Str("component", "resolve").Str("concept", concept).
					Str("sheet", found.Sheet).Str("label", found.Label).Msg("substring tier match")
			}
		}
		out[concept] = found
	}
	return out
}

// containing is the substring tier: a row whose label contains a candidate as
// a whole word sequence. The shortest such label wins, then the earliest row.
func (idx index) containing(candidates []string) *Location {
	for _, cand := range candidates {
		needle := " " + sheet.NormalizeLabel(cand) + " "
		if strings.TrimSpace(needle) == "" {
			continue
		}
		var best *indexedRow
		for i := range idx.rows {
			row := &idx.rows[i]
			if !strings.Contains(" "+row.label+" ", needle) {
				continue
			}
			if best == nil || len(row.label) < len(best.label) {
				best = row
			}
		}
		if best != nil {
			loc := best.loc
			return &loc
		}
	}
	return nil
}

// Extract resolves concepts and reads one value per concept. Concepts without
// a location, or whose row holds no number, map to nil.
func (r *Resolver) Extract(concepts []string, st sheet.Statements) (map[string]*float64, map[string]*Location) {
	locs := r.Resolve(concepts, st)
	values := make(map[string]*float64, len(locs))
	for concept, loc := range locs {
		if loc == nil {
			values[concept] = nil
			continue
		}
		tbl, _ := st.Sheet(loc.Sheet)
		values[concept] = valueAt(tbl, loc)
	}
	return values, locs
}

// valueAt reads the row loc was resolved to, falling back to a label lookup
// when the index no longer points at that label.
func valueAt(tbl *sheet.Table, loc *Location) *float64 {
	if tbl == nil {
		return nil
	}
	if loc.Row >= 0 && loc.Row < len(tbl.Rows) && tbl.Rows[loc.Row].Label == loc.Label {
		return tbl.Rows[loc.Row].First()
	}
	return sheet.Extract(tbl, loc.Label)
}
