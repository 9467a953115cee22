// Package period buckets filings into report years.
//
// A filing belongs to the year of the period it reports on. Two calendar
// effects move that year back by one:
//
//   - 52/53-week fiscal years can end in the first days of January; such a
//     period-end (within YearEndGrace days of Jan 1) closes the previous year.
//   - When only the filing date is known, a filing submitted before
//     Jan 1 + Lookahead most likely reports on the previous year's last period.
package period

import (
	"strconv"
	"time"
)

// Window holds the boundary rules.
type Window struct {
	// Lookahead is how long after Jan 1 a filing with an unknown period-end
	// still counts toward the previous year.
	Lookahead time.Duration
	// YearEndGrace is the number of January days a period-end may fall on
	// and still close the previous year.
	YearEndGrace int
}

// DefaultWindow is a 90 day lookahead and a 7 day year-end grace.
var DefaultWindow = Window{Lookahead: 90 * 24 * time.Hour, YearEndGrace: 7}

// Dated is anything with a reporting and a filing date. A zero reporting
// date means unknown.
type Dated interface {
	PeriodEnd() time.Time
	FiledAt() time.Time
}

// ReportYear buckets a filing using DefaultWindow.
func ReportYear(reportDate, filingDate time.Time) int {
	return DefaultWindow.ReportYear(reportDate, filingDate)
}

// ReportYear returns the year the filing reports on.
func (w Window) ReportYear(reportDate, filingDate time.Time) int {
	if !reportDate.IsZero() {
		if reportDate.Month() == time.January && reportDate.Day() <= w.YearEndGrace {
			return reportDate.Year() - 1
		}
		return reportDate.Year()
	}
	if filingDate.IsZero() {
		return 0
	}
	jan1 := time.Date(filingDate.Year(), time.January, 1, 0, 0, 0, 0, filingDate.Location())
	if filingDate.Before(jan1.Add(w.Lookahead)) {
		return filingDate.Year() - 1
	}
	return filingDate.Year()
}

// FilterYear keeps the items whose report year is year, in input order.
func FilterYear[T Dated](items []T, year int, w Window) []T {
	var out []T
	for _, it := range items {
		if w.ReportYear(it.PeriodEnd(), it.FiledAt()) == year {
			out = append(out, it)
		}
	}
	return out
}

// Quarter returns the calendar quarter (1-4) of a period-end, applying the
// same year-end grace, so Jan 2 closes Q4.
func (w Window) Quarter(reportDate time.Time) int {
	if reportDate.IsZero() {
		return 0
	}
	if reportDate.Month() == time.January && reportDate.Day() <= w.YearEndGrace {
		return 4
	}
	return (int(reportDate.Month())-1)/3 + 1
}

// Quarter uses DefaultWindow.
func Quarter(reportDate time.Time) int {
	return DefaultWindow.Quarter(reportDate)
}

// Label renders a period as "2024" for annual forms and "2024Q2" otherwise.
func Label(reportDate time.Time, annual bool) string {
	year := DefaultWindow.ReportYear(reportDate, time.Time{})
	if annual {
		return strconv.Itoa(year)
	}
	return strconv.Itoa(year) + "Q" + strconv.Itoa(Quarter(reportDate))
}
