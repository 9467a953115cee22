package ingest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"filing_screener/pkg/core/registry"

	"github.com/google/go-cmp/cmp"
	"github.com/jmhodges/clock"
)

const submissionsJSON = `{
	"cik": "320193",
	"name": "Apple Inc.",
	"tickers": ["AAPL"],
	"filings": {"recent": {
		"accessionNumber": ["0000320193-24-000123", "0000320193-24-000081", "0000320193-24-000099"],
		"filingDate": ["2024-11-01", "2024-08-02", "2024-09-10"],
		"reportDate": ["2024-09-28", "2024-06-29", ""],
		"form": ["10-K", "10-Q", "8-K"],
		"primaryDocument": ["aapl-20240928.htm", "aapl-20240629.htm", "ex99.htm"]
	}}
}`

const filingSummaryXML = `<?xml version="1.0" encoding="utf-8"?>
<FilingSummary>
  <MyReports>
    <Report instance="aapl-20240928.htm">
      <HtmlFileName>R1.htm</HtmlFileName>
      <LongName>0000001 - Document - Cover Page</LongName>
      <ShortName>Cover Page</ShortName>
      <MenuCategory>Cover</MenuCategory>
      <Position>1</Position>
    </Report>
    <Report instance="aapl-20240928.htm">
      <HtmlFileName>R3.htm</HtmlFileName>
      <LongName>0000003 - Statement - CONSOLIDATED STATEMENTS OF COMPREHENSIVE INCOME</LongName>
      <ShortName>CONSOLIDATED STATEMENTS OF COMPREHENSIVE INCOME</ShortName>
      <MenuCategory>Statements</MenuCategory>
      <Position>3</Position>
    </Report>
    <Report instance="aapl-20240928.htm">
      <HtmlFileName>R2.htm</HtmlFileName>
      <LongName>0000002 - Statement - CONSOLIDATED STATEMENTS OF OPERATIONS</LongName>
      <ShortName>CONSOLIDATED STATEMENTS OF OPERATIONS</ShortName>
      <MenuCategory>Statements</MenuCategory>
      <Position>2</Position>
    </Report>
    <Report instance="aapl-20240928.htm">
      <HtmlFileName>R4.htm</HtmlFileName>
      <LongName>0000004 - Statement - CONSOLIDATED BALANCE SHEETS</LongName>
      <ShortName>CONSOLIDATED BALANCE SHEETS</ShortName>
      <MenuCategory>Statements</MenuCategory>
      <Position>4</Position>
    </Report>
    <Report instance="aapl-20240928.htm">
      <HtmlFileName>R5.htm</HtmlFileName>
      <LongName>0000005 - Statement - CONSOLIDATED BALANCE SHEETS (Parenthetical)</LongName>
      <ShortName>CONSOLIDATED BALANCE SHEETS (Parenthetical)</ShortName>
      <MenuCategory>Statements</MenuCategory>
      <Position>5</Position>
    </Report>
  </MyReports>
</FilingSummary>`

const incomeReport = `<html><body>
<table class="report" border="0" cellspacing="2">
<tr><th class="tl" colspan="1" rowspan="2"><div>CONSOLIDATED STATEMENTS OF OPERATIONS - USD ($)<br/> $ in Millions</div></th><th class="th" colspan="2">12 Months Ended</th></tr>
<tr><th class="th"><div>Sep. 28, 2024</div></th><th class="th"><div>Sep. 30, 2023</div></th></tr>
<tr class="re"><td class="pl"><a onclick="top.Show.showAR( this, 'defref_us-gaap_NetIncomeLoss', window );">Net income</a></td><td class="nump">$ 93,736</td><td class="nump">$ 96,995</td></tr>
</table></body></html>`

const balanceReport = `<html><body>
<table class="report" border="0" cellspacing="2">
<tr><th class="tl"><div>CONSOLIDATED BALANCE SHEETS - USD ($)</div></th><th class="th"><div>Sep. 28, 2024</div></th></tr>
<tr class="re"><td class="pl"><a onclick="top.Show.showAR( this, 'defref_us-gaap_StockholdersEquity', window );">Total shareholders' equity</a></td><td class="nump">56,950</td></tr>
</table></body></html>`

func newEDGARServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/submissions/CIK0000320193.json", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "screener test@example.com" {
			t.Errorf("expected SEC user agent, got %q", r.Header.Get("User-Agent"))
		}
		w.Write([]byte(submissionsJSON))
	})
	const filingDir = "/Archives/edgar/data/320193/000032019324000123/"
	mux.HandleFunc(filingDir+"FilingSummary.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(filingSummaryXML))
	})
	mux.HandleFunc(filingDir+"R2.htm", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(incomeReport))
	})
	mux.HandleFunc(filingDir+"R4.htm", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(balanceReport))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestEDGARClient(srv *httptest.Server) *EDGARClient {
	return NewEDGARClient("screener test@example.com",
		WithBaseURLs(srv.URL, srv.URL),
		WithHTTPClient(srv.Client()),
		WithThrottler(NewThrottler(clock.NewFake(), 105*time.Millisecond, 1)),
	)
}

var apple = registry.Company{CIK: "0000320193", Ticker: "AAPL", Title: "Apple Inc."}

func TestEDGARFilings(t *testing.T) {
	srv := newEDGARServer(t)
	client := newTestEDGARClient(srv)

	filings, err := client.Filings(context.Background(), apple, []string{"10-k", "10-Q"})
	if err != nil {
		t.Fatalf("Filings: %v", err)
	}
	want := []Filing{
		{
			AccessionNumber: "0000320193-24-000123",
			FilingDate:      time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC),
			ReportDate:      time.Date(2024, 9, 28, 0, 0, 0, 0, time.UTC),
			FormType:        "10-K",
			PrimaryDocument: "aapl-20240928.htm",
		},
		{
			AccessionNumber: "0000320193-24-000081",
			FilingDate:      time.Date(2024, 8, 2, 0, 0, 0, 0, time.UTC),
			ReportDate:      time.Date(2024, 6, 29, 0, 0, 0, 0, time.UTC),
			FormType:        "10-Q",
			PrimaryDocument: "aapl-20240629.htm",
		},
	}
	if diff := cmp.Diff(want, filings); diff != "" {
		t.Errorf("filings mismatch (-want +got):\n%s", diff)
	}
	if !filings[0].IsAnnual() || filings[1].IsAnnual() {
		t.Error("IsAnnual must hold only for the 10-K")
	}

	all, err := client.Filings(context.Background(), apple, nil)
	if err != nil {
		t.Fatalf("Filings: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected all 3 filings, got %d", len(all))
	}
	if !all[2].ReportDate.IsZero() {
		t.Errorf("missing report date must stay zero, got %v", all[2].ReportDate)
	}
}

func TestEDGARStatementTables(t *testing.T) {
	srv := newEDGARServer(t)
	client := newTestEDGARClient(srv)

	f := Filing{AccessionNumber: "0000320193-24-000123", FormType: "10-K"}
	st, err := client.StatementTables(context.Background(), apple, f)
	if err != nil {
		t.Fatalf("StatementTables: %v", err)
	}
	if st.Income == nil || st.BalanceSheet == nil {
		t.Fatalf("expected income and balance sheet, got %+v", st)
	}
	if st.CashFlow != nil {
		t.Error("a statement missing from the summary must stay nil")
	}
	if diff := cmp.Diff([]string{"Sep. 28, 2024", "Sep. 30, 2023"}, st.Income.Columns); diff != "" {
		t.Errorf("income columns mismatch (-want +got):\n%s", diff)
	}
	if v := st.Income.Rows[0].First(); v == nil || *v != 93736 {
		t.Errorf("expected net income 93736, got %v", v)
	}
	if v := st.BalanceSheet.Rows[0].First(); v == nil || *v != 56950 {
		t.Errorf("expected equity 56950, got %v", v)
	}
}

func TestEDGARNotFound(t *testing.T) {
	srv := newEDGARServer(t)
	client := newTestEDGARClient(srv)

	_, err := client.Filings(context.Background(), registry.Company{CIK: "1", Ticker: "NONE"}, nil)
	var status *StatusError
	if !errors.As(err, &status) || status.Code != http.StatusNotFound {
		t.Errorf("expected a 404 StatusError, got %v", err)
	}
}

func TestClassifyReports(t *testing.T) {
	tests := []struct {
		name    string
		reports []summaryReport
		want    map[string]string
	}{
		{
			name: "comprehensive income is only a fallback",
			reports: []summaryReport{
				{HtmlFileName: "R3.htm", ShortName: "Statements of Comprehensive Income", MenuCategory: "Statements", Position: 3},
				{HtmlFileName: "R4.htm", ShortName: "Statements of Income", MenuCategory: "Statements", Position: 4},
			},
			want: map[string]string{"income": "R4.htm"},
		},
		{
			name: "combined operations and comprehensive income",
			reports: []summaryReport{
				{HtmlFileName: "R2.htm", ShortName: "Statement of Financial Condition", MenuCategory: "Statements", Position: 2},
				{HtmlFileName: "R3.htm", ShortName: "Statements of Operations and Comprehensive Loss", MenuCategory: "Statements", Position: 3},
				{HtmlFileName: "R6.htm", ShortName: "Statements of Cash Flows", MenuCategory: "Statements", Position: 6},
			},
			want: map[string]string{"balance_sheet": "R2.htm", "income": "R3.htm", "cashflow": "R6.htm"},
		},
		{
			name: "only comprehensive income",
			reports: []summaryReport{
				{HtmlFileName: "R3.htm", ShortName: "Statements of Comprehensive Income", MenuCategory: "Statements", Position: 3},
				{HtmlFileName: "R9.htm", ShortName: "Income Taxes", MenuCategory: "Notes", Position: 9},
			},
			want: map[string]string{"income": "R3.htm"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, classifyReports(tt.reports)); diff != "" {
				t.Errorf("classification mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
