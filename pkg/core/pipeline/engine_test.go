package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"filing_screener/pkg/core/calc"
	"filing_screener/pkg/core/ingest"
	"filing_screener/pkg/core/registry"
	"filing_screener/pkg/core/resolve"
	"filing_screener/pkg/core/sheet"
	"filing_screener/pkg/core/store"
	"filing_screener/pkg/core/validate"

	"github.com/google/go-cmp/cmp"
)

// --- Mocks ---

type MockFilingSource struct {
	FilingsFunc func(company registry.Company, forms []string) ([]ingest.Filing, error)
	TablesFunc  func(company registry.Company, f ingest.Filing) (sheet.Statements, error)
}

func (m *MockFilingSource) Filings(ctx context.Context, company registry.Company, forms []string) ([]ingest.Filing, error) {
	if m.FilingsFunc != nil {
		return m.FilingsFunc(company, forms)
	}
	return nil, nil
}

func (m *MockFilingSource) StatementTables(ctx context.Context, company registry.Company, f ingest.Filing) (sheet.Statements, error) {
	if m.TablesFunc != nil {
		return m.TablesFunc(company, f)
	}
	return testStatements(), nil
}

type MockPriceSource struct {
	mu    sync.Mutex
	calls int
	Quote *ingest.Quote
	Err   error
}

func (m *MockPriceSource) PriceNear(ctx context.Context, ticker string, date time.Time) (*ingest.Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.Quote, m.Err
}

// --- Helpers ---

func floatPtr(f float64) *float64 {
	return &f
}

func approx(v *float64, want float64) bool {
	if v == nil {
		return false
	}
	d := *v - want
	return d < 1e-9 && d > -1e-9
}

func testStatements() sheet.Statements {
	return sheet.Statements{
		BalanceSheet: sheet.MustNew(sheet.BalanceSheet, [][]string{
			{"", "concept", "2024-12-31", "2023-12-31"},
			{"Total assets", "us-gaap_Assets", "5,000", "4,000"},
			{"Total stockholders' equity", "us-gaap_StockholdersEquity", "1,000", "900"},
		}),
		Income: sheet.MustNew(sheet.Income, [][]string{
			{"", "concept", "2024-12-31", "2023-12-31"},
			{"Net income", "us-gaap_NetIncomeLoss", "100", "80"},
			{"Diluted (in dollars per share)", "us-gaap_EarningsPerShareDiluted", "2.00", "1.60"},
		}),
	}
}

var acme = registry.Company{CIK: "0000000042", Ticker: "ACME", Title: "Acme Corp"}

func annual(year int) ingest.Filing {
	return ingest.Filing{
		AccessionNumber: fmt.Sprintf("0000000042-%02d-000001", (year+1)%100),
		FilingDate:      time.Date(year+1, 2, 15, 0, 0, 0, 0, time.UTC),
		ReportDate:      time.Date(year, 12, 31, 0, 0, 0, 0, time.UTC),
		FormType:        "10-K",
	}
}

func newTestEngine(t *testing.T, filings ingest.FilingSource, prices ingest.PriceSource) (*Engine, *store.Store) {
	t.Helper()
	repo, err := store.NewFileRepository(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileRepository: %v", err)
	}
	st := store.New(repo)
	resolver, err := resolve.New(nil, resolve.DefaultCatalog())
	if err != nil {
		t.Fatalf("resolve.New: %v", err)
	}
	e, err := NewEngine(filings, prices, st, resolver, []string{calc.RatioROE, calc.RatioEPS, calc.RatioPE})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e, st
}

// --- Tests ---

func TestProcessFilingAndRefreshPrice(t *testing.T) {
	ctx := context.Background()
	prices := &MockPriceSource{Quote: &ingest.Quote{Price: 30, Date: time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)}}
	e, st := newTestEngine(t, &MockFilingSource{}, prices)

	res, err := e.ProcessFiling(ctx, acme, annual(2024))
	if err != nil {
		t.Fatalf("ProcessFiling: %v", err)
	}
	if res.Date != "2024-12-31" || res.Ticker != "ACME" || res.ID == "" {
		t.Errorf("unexpected result key %+v", res)
	}
	if !approx(res.Computed[calc.RatioROE], 10) {
		t.Errorf("expected ROE 10, got %v", res.Computed[calc.RatioROE])
	}
	if !approx(res.Computed[calc.RatioEPS], 2) {
		t.Errorf("expected EPS 2, got %v", res.Computed[calc.RatioEPS])
	}
	if res.Computed[calc.RatioPE] != nil {
		t.Errorf("P/E must be nil before a price is attached, got %v", *res.Computed[calc.RatioPE])
	}
	if loc := res.Locations[calc.NetIncomeLoss]; loc == nil || loc.Sheet != sheet.Income || loc.Label != "Net income" {
		t.Errorf("unexpected net income location %+v", loc)
	}
	for _, m := range res.Missing {
		if m == calc.NetIncomeLoss || m == calc.StockholdersEquity {
			t.Errorf("%s reported missing", m)
		}
	}

	q, err := e.RefreshPrice(ctx, "acme", "2024-12-31")
	if err != nil {
		t.Fatalf("RefreshPrice: %v", err)
	}
	if q == nil || q.Price != 30 {
		t.Fatalf("expected quote 30, got %+v", q)
	}

	key, _ := store.ParseKey("ACME", "2024-12-31")
	snap, err := st.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if snap.YFValue == nil || *snap.YFValue != 30 || snap.YFValueDate == nil || *snap.YFValueDate != "2024-12-31" {
		t.Errorf("price not attached: %v %v", snap.YFValue, snap.YFValueDate)
	}
	if !approx(snap.Computed[calc.RatioPE], 15) {
		t.Errorf("expected P/E 15 after price refresh, got %v", snap.Computed[calc.RatioPE])
	}
	if !approx(snap.Computed[calc.RatioROE], 10) {
		t.Errorf("price refresh must keep other ratios, got ROE %v", snap.Computed[calc.RatioROE])
	}

	// A second resolution of the same filing reuses the stored price.
	res, err = e.ProcessFiling(ctx, acme, annual(2024))
	if err != nil {
		t.Fatalf("ProcessFiling: %v", err)
	}
	if !approx(res.Computed[calc.RatioPE], 15) {
		t.Errorf("expected stored price to feed P/E, got %v", res.Computed[calc.RatioPE])
	}
}

func TestProcessFilingReportsIntegrityWarnings(t *testing.T) {
	ctx := context.Background()
	tables := func(company registry.Company, f ingest.Filing) (sheet.Statements, error) {
		st := testStatements()
		st.BalanceSheet = sheet.MustNew(sheet.BalanceSheet, [][]string{
			{"", "concept", "2024-12-31", "2023-12-31"},
			{"Total assets", "us-gaap_Assets", "5,000", "4,000"},
			{"Total liabilities", "us-gaap_Liabilities", "3,000", "3,100"},
			{"Total stockholders' equity", "us-gaap_StockholdersEquity", "1,000", "900"},
		})
		return st, nil
	}
	e, _ := newTestEngine(t, &MockFilingSource{TablesFunc: tables}, nil)

	res, err := e.ProcessFiling(ctx, acme, annual(2024))
	if err != nil {
		t.Fatalf("ProcessFiling: %v", err)
	}
	if len(res.Warnings) != 1 || res.Warnings[0].Check != validate.CheckBalance {
		t.Fatalf("expected one balance warning, got %v", res.Warnings)
	}
	if res.Warnings[0].Delta != 1000 {
		t.Errorf("expected delta 1000, got %v", res.Warnings[0].Delta)
	}
	if !approx(res.Base[calc.Liabilities], 3000) {
		t.Errorf("liabilities not resolved: %v", res.Base[calc.Liabilities])
	}

	// Balanced tables carry no warnings.
	e, _ = newTestEngine(t, &MockFilingSource{}, nil)
	res, err = e.ProcessFiling(ctx, acme, annual(2024))
	if err != nil {
		t.Fatalf("ProcessFiling: %v", err)
	}
	if len(res.Warnings) != 0 {
		t.Errorf("unexpected warnings %v", res.Warnings)
	}
}

func TestRecomputeGrowsConceptSet(t *testing.T) {
	ctx := context.Background()
	e, st := newTestEngine(t, &MockFilingSource{}, nil)

	if _, err := e.ProcessFiling(ctx, acme, annual(2024)); err != nil {
		t.Fatalf("ProcessFiling: %v", err)
	}
	res, err := e.Recompute(ctx, "ACME", "2024-12-31", []string{calc.Assets, calc.NetIncomeLoss})
	if err != nil {
		t.Fatalf("Recompute: %v", err)
	}
	if !approx(res.Base[calc.Assets], 5000) {
		t.Errorf("expected assets 5000, got %v", res.Base[calc.Assets])
	}

	key, _ := store.ParseKey("ACME", "2024-12-31")
	snap, err := st.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !approx(snap.Base[calc.Assets], 5000) || !approx(snap.Base[calc.NetIncomeLoss], 100) {
		t.Errorf("unexpected stored base %v", snap.Base)
	}

	if _, err := e.Recompute(ctx, "ACME", "2020-12-31", nil); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound for an unknown snapshot, got %v", err)
	}
}

func TestProcessFilingRejects(t *testing.T) {
	ctx := context.Background()

	e, _ := newTestEngine(t, &MockFilingSource{}, nil)
	undated := annual(2024)
	undated.ReportDate = time.Time{}
	if _, err := e.ProcessFiling(ctx, acme, undated); !errors.Is(err, ErrNoReportDate) {
		t.Errorf("expected ErrNoReportDate, got %v", err)
	}

	empty := &MockFilingSource{TablesFunc: func(registry.Company, ingest.Filing) (sheet.Statements, error) {
		return sheet.Statements{}, nil
	}}
	e, _ = newTestEngine(t, empty, nil)
	if _, err := e.ProcessFiling(ctx, acme, annual(2024)); !errors.Is(err, ErrNoStatements) {
		t.Errorf("expected ErrNoStatements, got %v", err)
	}

	failing := &MockFilingSource{TablesFunc: func(registry.Company, ingest.Filing) (sheet.Statements, error) {
		return sheet.Statements{}, errors.New("edgar down")
	}}
	e, _ = newTestEngine(t, failing, nil)
	if _, err := e.ProcessFiling(ctx, acme, annual(2024)); err == nil {
		t.Error("expected fetch error")
	}
}

func TestRefreshPriceEdgeCases(t *testing.T) {
	ctx := context.Background()
	prices := &MockPriceSource{}
	e, st := newTestEngine(t, &MockFilingSource{}, prices)

	if _, err := e.RefreshPrice(ctx, "ACME", "2024-12-31"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound before the snapshot exists, got %v", err)
	}
	if prices.calls != 0 {
		t.Errorf("price source must not be called for a missing snapshot")
	}

	if _, err := e.ProcessFiling(ctx, acme, annual(2024)); err != nil {
		t.Fatalf("ProcessFiling: %v", err)
	}
	key, _ := store.ParseKey("ACME", "2024-12-31")
	if err := st.AttachPrice(ctx, key, floatPtr(12), time.Date(2024, 12, 30, 0, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("AttachPrice: %v", err)
	}

	q, err := e.RefreshPrice(ctx, "ACME", "2024-12-31")
	if err != nil || q != nil {
		t.Fatalf("expected nil quote without error, got %+v, %v", q, err)
	}
	snap, _ := st.Get(ctx, key)
	if snap.YFValue == nil || *snap.YFValue != 12 {
		t.Errorf("a missing quote must keep the stored price, got %v", snap.YFValue)
	}

	prices.Err = errors.New("rate limited")
	if _, err := e.RefreshPrice(ctx, "ACME", "2024-12-31"); err == nil {
		t.Error("expected price source error")
	}
}

func TestRunBatchIsolatesFailures(t *testing.T) {
	ctx := context.Background()
	source := &MockFilingSource{TablesFunc: func(_ registry.Company, f ingest.Filing) (sheet.Statements, error) {
		if f.ReportDate.Year() == 2023 {
			return sheet.Statements{}, errors.New("bad filing")
		}
		return testStatements(), nil
	}}
	e, st := newTestEngine(t, source, nil)
	e.Concurrency = 2

	jobs := []Job{
		{Company: acme, Filing: annual(2022)},
		{Company: acme, Filing: annual(2023)},
		{Company: acme, Filing: annual(2024)},
	}
	results := e.RunBatch(ctx, jobs)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i, r := range results {
		if r.Job.Filing.AccessionNumber != jobs[i].Filing.AccessionNumber {
			t.Errorf("result %d out of order", i)
		}
	}
	if results[0].Err != nil || results[2].Err != nil {
		t.Errorf("healthy jobs failed: %v, %v", results[0].Err, results[2].Err)
	}
	if results[1].Err == nil || results[1].Result != nil {
		t.Errorf("expected job 2 to fail alone, got %+v", results[1])
	}

	history, err := st.History(ctx, "ACME")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	var dates []string
	for _, s := range history {
		dates = append(dates, s.Date)
	}
	if diff := cmp.Diff([]string{"2022-12-31", "2024-12-31"}, dates); diff != "" {
		t.Errorf("history mismatch (-want +got):\n%s", diff)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	for _, r := range e.RunBatch(cancelled, jobs) {
		if !errors.Is(r.Err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", r.Err)
		}
	}
}

func TestJobsFiltersByReportYear(t *testing.T) {
	undated := ingest.Filing{AccessionNumber: "x", FilingDate: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), FormType: "10-K"}
	source := &MockFilingSource{FilingsFunc: func(registry.Company, []string) ([]ingest.Filing, error) {
		return []ingest.Filing{annual(2024), annual(2023), undated}, nil
	}}
	e, _ := newTestEngine(t, source, nil)

	jobs, err := e.Jobs(context.Background(), acme, 2024, []string{"10-K"})
	if err != nil {
		t.Fatalf("Jobs: %v", err)
	}
	var got []string
	for _, j := range jobs {
		got = append(got, j.Filing.AccessionNumber)
	}
	if diff := cmp.Diff([]string{annual(2024).AccessionNumber, "x"}, got); diff != "" {
		t.Errorf("jobs mismatch (-want +got):\n%s", diff)
	}
}

func TestNewEngineRejectsUnknownRatio(t *testing.T) {
	_, err := NewEngine(&MockFilingSource{}, nil, nil, nil, []string{"ROE", "EV/EBITDA"})
	if !errors.Is(err, calc.ErrUnknownRatio) {
		t.Errorf("expected ErrUnknownRatio, got %v", err)
	}
}
