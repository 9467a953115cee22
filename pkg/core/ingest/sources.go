// Package ingest talks to the outside world: SEC EDGAR for filings and
// statement tables, and Yahoo Finance for market prices.
package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"filing_screener/pkg/core/registry"
	"filing_screener/pkg/core/sheet"
)

// Filing is one periodic report (denormalized from the submissions arrays).
type Filing struct {
	AccessionNumber string    `json:"accession_number"`
	FilingDate      time.Time `json:"filing_date"`
	ReportDate      time.Time `json:"report_date"` // period-end; zero when EDGAR omits it
	FormType        string    `json:"form_type"`
	PrimaryDocument string    `json:"primary_document"`
}

// PeriodEnd implements period.Dated.
func (f Filing) PeriodEnd() time.Time { return f.ReportDate }

// FiledAt implements period.Dated.
func (f Filing) FiledAt() time.Time { return f.FilingDate }

// IsAnnual reports whether the form is a 10-K (or amendment).
func (f Filing) IsAnnual() bool {
	return strings.HasPrefix(strings.ToUpper(f.FormType), "10-K")
}

// Quote is a closing price and the trading day it closed on.
type Quote struct {
	Price float64
	Date  time.Time
}

// FilingSource provides filings and their statement tables.
type FilingSource interface {
	Filings(ctx context.Context, company registry.Company, forms []string) ([]Filing, error)
	StatementTables(ctx context.Context, company registry.Company, f Filing) (sheet.Statements, error)
}

// PriceSource provides a closing price near a date; nil when none exists.
type PriceSource interface {
	PriceNear(ctx context.Context, ticker string, date time.Time) (*Quote, error)
}

// StatusError is returned for a non-200 upstream response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.URL, e.Code)
}

func get(ctx context.Context, client *http.Client, url string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{URL: url, Code: resp.StatusCode}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return body, nil
}
