package period

import (
	"testing"
	"time"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestReportYear(t *testing.T) {
	tests := []struct {
		name   string
		report time.Time
		filed  time.Time
		want   int
	}{
		{"period-end decides", day(2024, 9, 28), day(2024, 11, 1), 2024},
		{"december year-end filed in february", day(2023, 12, 31), day(2024, 2, 2), 2023},
		{"53-week year ending jan 2", day(2022, 1, 2), day(2022, 3, 10), 2021},
		{"jan 8 is a new year", day(2022, 1, 8), day(2022, 3, 10), 2022},
		{"unknown period filed in january", time.Time{}, day(2024, 1, 20), 2023},
		{"unknown period filed on day 89", time.Time{}, day(2024, 3, 30), 2023},
		{"unknown period filed after lookahead", time.Time{}, day(2024, 4, 1), 2024},
		{"nothing known", time.Time{}, time.Time{}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ReportYear(tt.report, tt.filed); got != tt.want {
				t.Errorf("ReportYear(%v, %v) = %d, want %d", tt.report, tt.filed, got, tt.want)
			}
		})
	}
}

type filing struct {
	id     string
	report time.Time
	filed  time.Time
}

func (f filing) PeriodEnd() time.Time { return f.report }
func (f filing) FiledAt() time.Time   { return f.filed }

func TestFilterYear(t *testing.T) {
	filings := []filing{
		{"q4-2023", day(2023, 12, 31), day(2024, 2, 1)},
		{"q1-2024", day(2024, 3, 31), day(2024, 5, 1)},
		{"late", time.Time{}, day(2024, 1, 15)},
		{"q2-2024", day(2024, 6, 30), day(2024, 8, 1)},
	}
	got := FilterYear(filings, 2024, DefaultWindow)
	if len(got) != 2 || got[0].id != "q1-2024" || got[1].id != "q2-2024" {
		t.Errorf("unexpected 2024 filings %+v", got)
	}
	got = FilterYear(filings, 2023, DefaultWindow)
	if len(got) != 2 || got[0].id != "q4-2023" || got[1].id != "late" {
		t.Errorf("unexpected 2023 filings %+v", got)
	}
}

func TestQuarterAndLabel(t *testing.T) {
	if q := Quarter(day(2024, 6, 29)); q != 2 {
		t.Errorf("expected Q2, got %d", q)
	}
	if q := Quarter(day(2022, 1, 1)); q != 4 {
		t.Errorf("expected Q4 for a jan 1 period-end, got %d", q)
	}
	if l := Label(day(2024, 9, 28), true); l != "2024" {
		t.Errorf("unexpected annual label %q", l)
	}
	if l := Label(day(2024, 3, 30), false); l != "2024Q1" {
		t.Errorf("unexpected quarterly label %q", l)
	}
}
