package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"filing_screener/pkg/core/registry"
	"filing_screener/pkg/core/sheet"

	"github.com/jmhodges/clock"
	"github.com/rs/zerolog/log"
)

const (
	// SEC EDGAR API endpoints
	SECSubmissionsBase = "https://data.sec.gov"
	SECArchivesBase    = "https://www.sec.gov"

	// DefaultUserAgent is sent when none is configured. SEC asks for a
	// contact address.
	DefaultUserAgent = "FilingScreener/1.0 (contact@example.com)"
)

// =============================================================================
// SEC EDGAR DATA TYPES
// =============================================================================

// SECCompanyInfo represents the top-level company submission response.
type SECCompanyInfo struct {
	CIK     string     `json:"cik"`
	Name    string     `json:"name"`
	Tickers []string   `json:"tickers"`
	Filings SECFilings `json:"filings"`
}

// SECFilings contains the recent filing list.
type SECFilings struct {
	Recent SECRecentFilings `json:"recent"`
}

// SECRecentFilings holds arrays of filing attributes (parallel arrays).
type SECRecentFilings struct {
	AccessionNumber []string `json:"accessionNumber"` // e.g., "0000320193-24-000123"
	FilingDate      []string `json:"filingDate"`      // e.g., "2024-11-01"
	ReportDate      []string `json:"reportDate"`      // Fiscal period end
	Form            []string `json:"form"`            // "10-K", "10-Q", "8-K"
	PrimaryDocument []string `json:"primaryDocument"` // filename
}

// filingSummary is the report index EDGAR publishes with every XBRL filing.
type filingSummary struct {
	Reports []summaryReport `xml:"MyReports>Report"`
}

type summaryReport struct {
	HtmlFileName string `xml:"HtmlFileName"`
	LongName     string `xml:"LongName"`
	ShortName    string `xml:"ShortName"`
	MenuCategory string `xml:"MenuCategory"`
	Position     int    `xml:"Position"`
}

// =============================================================================
// SEC EDGAR CLIENT
// =============================================================================

// EDGARClient handles SEC EDGAR requests. It implements FilingSource.
type EDGARClient struct {
	httpClient      *http.Client
	userAgent       string
	submissionsBase string
	archivesBase    string
	throttler       *Throttler
}

// EDGAROption customizes an EDGARClient.
type EDGAROption func(*EDGARClient)

// WithBaseURLs points the client at other hosts (tests, mirrors).
func WithBaseURLs(submissions, archives string) EDGAROption {
	return func(c *EDGARClient) {
		c.submissionsBase = strings.TrimRight(submissions, "/")
		c.archivesBase = strings.TrimRight(archives, "/")
	}
}

// WithThrottler replaces the default 10 requests per second limit.
func WithThrottler(t *Throttler) EDGAROption {
	return func(c *EDGARClient) { c.throttler = t }
}

// WithHTTPClient replaces the default client.
func WithHTTPClient(h *http.Client) EDGAROption {
	return func(c *EDGARClient) { c.httpClient = h }
}

// NewEDGARClient creates a new SEC EDGAR client.
func NewEDGARClient(userAgent string, opts ...EDGAROption) *EDGARClient {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	c := &EDGARClient{
		httpClient:      &http.Client{Timeout: 30 * time.Second},
		userAgent:       userAgent,
		submissionsBase: SECSubmissionsBase,
		archivesBase:    SECArchivesBase,
		// 105ms keeps us slightly under 10/sec.
		throttler: NewThrottler(clock.New(), 105*time.Millisecond, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *EDGARClient) fetch(ctx context.Context, url, accept string) ([]byte, error) {
	if _, err := c.throttler.Wait(ctx); err != nil {
		return nil, err
	}
	// SEC requires User-Agent header
	return get(ctx, c.httpClient, url, map[string]string{
		"User-Agent": c.userAgent,
		"Accept":     accept,
	})
}

// FetchCompanyInfo retrieves company submission data from SEC EDGAR. The CIK
// is zero-padded to 10 digits.
func (c *EDGARClient) FetchCompanyInfo(ctx context.Context, cik string) (*SECCompanyInfo, error) {
	padded := registry.PadCIK(cik)
	if padded == "" {
		return nil, fmt.Errorf("empty CIK")
	}
	url := fmt.Sprintf("%s/submissions/CIK%s.json", c.submissionsBase, padded)

	body, err := c.fetch(ctx, url, "application/json")
	if err != nil {
		return nil, fmt.Errorf("SEC submissions request failed: %w", err)
	}

	var info SECCompanyInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("failed to parse SEC response: %w", err)
	}
	return &info, nil
}

// GetFilings extracts the filings of the given form types (nil for all),
// most recent first as EDGAR lists them.
func GetFilings(info *SECCompanyInfo, formTypes []string) []Filing {
	recent := info.Filings.Recent
	filings := make([]Filing, 0)

	formTypeSet := make(map[string]bool)
	for _, ft := range formTypes {
		formTypeSet[strings.ToUpper(ft)] = true
	}

	at := func(a []string, i int) string {
		if i < len(a) {
			return a[i]
		}
		return ""
	}
	for i := range recent.AccessionNumber {
		form := at(recent.Form, i)
		if len(formTypeSet) > 0 && !formTypeSet[strings.ToUpper(form)] {
			continue
		}
		// An empty or malformed date stays zero.
		filingDate, _ := time.Parse("2006-01-02", at(recent.FilingDate, i))
		reportDate, _ := time.Parse("2006-01-02", at(recent.ReportDate, i))

		filings = append(filings, Filing{
			AccessionNumber: recent.AccessionNumber[i],
			FilingDate:      filingDate,
			ReportDate:      reportDate,
			FormType:        form,
			PrimaryDocument: at(recent.PrimaryDocument, i),
		})
	}
	return filings
}

// Filings implements FilingSource.
func (c *EDGARClient) Filings(ctx context.Context, company registry.Company, forms []string) ([]Filing, error) {
	info, err := c.FetchCompanyInfo(ctx, company.CIK)
	if err != nil {
		return nil, err
	}
	return GetFilings(info, forms), nil
}

func (c *EDGARClient) archiveURL(cik string, f Filing, file string) string {
	// Format: {base}/Archives/edgar/data/{cik}/{accession-no-dashes}/{file}
	cikPath := strings.TrimLeft(cik, "0")
	accessionNoDashes := strings.ReplaceAll(f.AccessionNumber, "-", "")
	return fmt.Sprintf("%s/Archives/edgar/data/%s/%s/%s", c.archivesBase, cikPath, accessionNoDashes, file)
}

// StatementTables implements FilingSource: it reads FilingSummary.xml, picks
// the balance sheet, income statement and cash flow reports, and parses each
// R page. A statement the filing does not have is left nil.
func (c *EDGARClient) StatementTables(ctx context.Context, company registry.Company, f Filing) (sheet.Statements, error) {
	var st sheet.Statements

	body, err := c.fetch(ctx, c.archiveURL(company.CIK, f, "FilingSummary.xml"), "application/xml")
	if err != nil {
		return st, fmt.Errorf("filing summary %s: %w", f.AccessionNumber, err)
	}
	var summary filingSummary
	if err := xml.Unmarshal(body, &summary); err != nil {
		return st, fmt.Errorf("failed to parse filing summary %s: %w", f.AccessionNumber, err)
	}

	pages := classifyReports(summary.Reports)
	for _, name := range sheet.DefaultOrder {
		page, ok := pages[name]
		if !ok {
			log.Warn().Str("component", "ingest").Str("ticker", company.Ticker).
				Str("accession", f.AccessionNumber).Str("sheet", name).Msg("statement not found in filing summary")
			continue
		}
		html, err := c.fetch(ctx, c.archiveURL(company.CIK, f, page), "text/html")
		if err != nil {
			return st, fmt.Errorf("%s report %s: %w", name, page, err)
		}
		tbl, err := sheet.FromHTML(name, bytes.NewReader(html))
		if err != nil {
			return st, fmt.Errorf("%s report %s: %w", name, page, err)
		}
		switch name {
		case sheet.BalanceSheet:
			st.BalanceSheet = tbl
		case sheet.Income:
			st.Income = tbl
		case sheet.CashFlow:
			st.CashFlow = tbl
		}
	}
	return st, nil
}

// classifyReports maps each statement to the R page carrying it. Only
// "Statements" reports are considered, parenthetical pages are skipped, and
// the lowest position wins. Comprehensive income is used for the income
// statement only when nothing else matches.
func classifyReports(reports []summaryReport) map[string]string {
	sorted := append([]summaryReport(nil), reports...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Position < sorted[j].Position })

	out := make(map[string]string)
	var comprehensive string
	for _, r := range sorted {
		if !strings.EqualFold(r.MenuCategory, "Statements") && !strings.Contains(r.LongName, "- Statement -") {
			continue
		}
		name := strings.ToUpper(r.ShortName)
		if strings.Contains(name, "PARENTHETICAL") || r.HtmlFileName == "" {
			continue
		}
		switch {
		case containsAny(name, "BALANCE SHEET", "FINANCIAL CONDITION", "FINANCIAL POSITION"):
			setOnce(out, sheet.BalanceSheet, r.HtmlFileName)
		case strings.Contains(name, "CASH FLOW"):
			setOnce(out, sheet.CashFlow, r.HtmlFileName)
		case strings.Contains(name, "COMPREHENSIVE"):
			if containsAny(name, "OPERATIONS AND", "EARNINGS AND", "INCOME AND") {
				setOnce(out, sheet.Income, r.HtmlFileName)
			} else if comprehensive == "" {
				comprehensive = r.HtmlFileName
			}
		case containsAny(name, "OPERATIONS", "INCOME", "EARNINGS"):
			setOnce(out, sheet.Income, r.HtmlFileName)
		}
	}
	if _, ok := out[sheet.Income]; !ok && comprehensive != "" {
		out[sheet.Income] = comprehensive
	}
	return out
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func setOnce(m map[string]string, k, v string) {
	if _, ok := m[k]; !ok {
		m[k] = v
	}
}
