package sheet

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// MarshalJSON writes the table as the dict-of-dicts document
// {"<label>": {"concept": "...", "<period>": <number|string|null>}} keeping
// row and column order. Rows repeating an earlier label are written as
// repeated keys; UnmarshalJSON reads keys in sequence and keeps every row.
func (t Table) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, r := range t.Rows {
		if i > 0 {
			buf.WriteByte(',')
		}

		if err := writeString(&buf, r.Label); err != nil {
			return nil, err
		}
		buf.WriteString(":{")
		inner := 0
		if r.Concept != "" {
			buf.WriteString(`"concept":`)
			if err := writeString(&buf, r.Concept); err != nil {
				return nil, err
			}
			inner++
		}
		if r.Abstract {
			if inner > 0 {
				buf.WriteByte(',')
			}
			buf.WriteString(`"abstract":true`)
			inner++
		}
		for i, col := range t.Columns {
			if inner > 0 {
				buf.WriteByte(',')
			}
			inner++
			if err := writeString(&buf, col); err != nil {
				return nil, err
			}
			buf.WriteByte(':')
			var c Cell
			if i < len(r.Cells) {
				c = r.Cells[i]
			}
			switch {
			case c.Raw != "":
				if err := writeString(&buf, c.Raw); err != nil {
					return nil, err
				}
			case c.Value != nil:
				buf.WriteString(strconv.FormatFloat(*c.Value, 'f', -1, 64))
			default:
				buf.WriteString("null")
			}
		}
		buf.WriteByte('}')
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads the dict-of-dicts document preserving key order, so the
// column order of the source (most recent period first) survives a round trip.
func (t *Table) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*t = Table{Name: t.Name}
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("sheet: table must be a JSON object, got %v", tok)
	}

	type rawRow struct {
		row   Row
		cells map[string]Cell
	}
	var (
		rows    []rawRow
		columns []string
		colSeen = make(map[string]bool)
	)

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		label, _ := keyTok.(string)
		rr := rawRow{row: Row{Label: label}, cells: make(map[string]Cell)}

		open, err := dec.Token()
		if err != nil {
			return err
		}
		if open == nil {
			rows = append(rows, rr)
			continue
		}
		if d, ok := open.(json.Delim); !ok || d != '{' {
			return fmt.Errorf("sheet: row %q must be an object", label)
		}
		for dec.More() {
			colTok, err := dec.Token()
			if err != nil {
				return err
			}
			col, _ := colTok.(string)
			valTok, err := dec.Token()
			if err != nil {
				return err
			}
			switch col {
			case conceptKey:
				if s, ok := valTok.(string); ok {
					rr.row.Concept = s
				}
				continue
			case abstractKey:
				if b, ok := valTok.(bool); ok {
					rr.row.Abstract = b
				}
				continue
			}
			if d, ok := valTok.(json.Delim); ok {
				return fmt.Errorf("sheet: row %q column %q: nested %v not allowed", label, col, d)
			}
			cell, err := toCell(valTok)
			if err != nil {
				// Booleans and other scalars carry no number; keep the column, drop the value.
				cell = Cell{}
			}
			rr.cells[col] = cell
			if !colSeen[col] {
				colSeen[col] = true
				columns = append(columns, col)
			}
		}
		if _, err := dec.Token(); err != nil {
			return err
		}
		rows = append(rows, rr)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	out := Table{Name: t.Name, Columns: columns, Rows: make([]Row, 0, len(rows))}
	for _, rr := range rows {
		rr.row.Cells = make([]Cell, len(columns))
		for i, col := range columns {
			rr.row.Cells[i] = rr.cells[col]
		}
		out.Rows = append(out.Rows, rr.row)
	}
	*t = out
	return nil
}

func writeString(buf *bytes.Buffer, s string) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	buf.Write(b)
	return nil
}
