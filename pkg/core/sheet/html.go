package sheet

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// defrefPattern pulls the taxonomy tag out of the onclick handler EDGAR puts on
// every line item: top.Show.showAR( this, 'defref_us-gaap_Assets', window ).
var defrefPattern = regexp.MustCompile(`defref_([A-Za-z0-9\-]+_[A-Za-z0-9]+)`)

// FromHTML builds a Table from an EDGAR financial report page (the R2.htm,
// R4.htm ... pages listed in FilingSummary.xml).
//
// Header rows are rows without a td.pl label cell; the period columns are the
// th.th cells of the last header row, which skips the "12 Months Ended"
// grouping row of duration statements. Data rows take their label from td.pl,
// the concept from the defref anchor and one cell per remaining td.
func FromHTML(name string, r io.Reader) (*Table, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("sheet: parse report html: %w", err)
	}

	report := doc.Find("table.report").First()
	if report.Length() == 0 {
		report = doc.Find("table").First()
	}
	if report.Length() == 0 {
		return nil, fmt.Errorf("sheet: no table in report page")
	}

	t := &Table{Name: name}
	report.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		label := tr.Find("td.pl").First()
		if label.Length() == 0 {
			var cols []string
			tr.Find("th.th").Each(func(_ int, th *goquery.Selection) {
				cols = append(cols, cleanText(th.Text()))
			})
			if len(cols) > 0 {
				t.Columns = cols
			}
			return
		}

		row := Row{Label: cleanText(label.Text())}
		if onclick, ok := label.Find("a").Attr("onclick"); ok {
			if m := defrefPattern.FindStringSubmatch(onclick); m != nil {
				row.Concept = m[1]
			}
		}
		if tr.HasClass("rh") {
			row.Abstract = true
		}
		label.NextAll().Filter("td").Each(func(_ int, td *goquery.Selection) {
			row.Cells = append(row.Cells, textCell(cleanText(td.Text())))
		})
		t.Rows = append(t.Rows, row)
	})

	for i := range t.Rows {
		cells := t.Rows[i].Cells
		switch {
		case len(cells) > len(t.Columns):
			t.Rows[i].Cells = cells[:len(t.Columns)]
		case len(cells) < len(t.Columns):
			t.Rows[i].Cells = append(cells, make([]Cell, len(t.Columns)-len(cells))...)
		}
	}
	return t, nil
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
