// Package pipeline runs the resolution cycle: statement tables in, base
// values and ratios out, persisted per (ticker, reporting date).
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"filing_screener/pkg/core/calc"
	"filing_screener/pkg/core/ingest"
	"filing_screener/pkg/core/period"
	"filing_screener/pkg/core/registry"
	"filing_screener/pkg/core/resolve"
	"filing_screener/pkg/core/sheet"
	"filing_screener/pkg/core/store"
	"filing_screener/pkg/core/validate"
	"filing_screener/pkg/models"

	"github.com/rs/zerolog/log"
)

var (
	// ErrNoReportDate is returned for filings whose period-end is unknown;
	// they cannot be keyed.
	ErrNoReportDate = errors.New("filing has no report date")
	// ErrNoStatements is returned when a filing yields no statement rows.
	ErrNoStatements = errors.New("no statement tables")
)

// Engine wires the collaborators of one resolution cycle.
type Engine struct {
	filings  ingest.FilingSource
	prices   ingest.PriceSource
	store    *store.Store
	resolver *resolve.Resolver

	ratios   []string
	concepts []string

	// Window buckets filings into report years for Jobs.
	Window period.Window
	// Concurrency bounds RunBatch; values below 1 mean 1.
	Concurrency int
}

// NewEngine validates the ratio list (empty means calc.DefaultRatios) and
// returns an Engine. prices may be nil when no price-dependent work is done.
func NewEngine(filings ingest.FilingSource, prices ingest.PriceSource, st *store.Store, resolver *resolve.Resolver, ratios []string) (*Engine, error) {
	if len(ratios) == 0 {
		ratios = calc.DefaultRatios
	}
	concepts, err := calc.RequiredConcepts(ratios)
	if err != nil {
		return nil, err
	}
	return &Engine{
		filings:     filings,
		prices:      prices,
		store:       st,
		resolver:    resolver,
		ratios:      append([]string(nil), ratios...),
		concepts:    mergeConcepts(concepts, validate.Concepts),
		Window:      period.DefaultWindow,
		Concurrency: 4,
	}, nil
}

// Ratios returns the ratio names the engine computes.
func (e *Engine) Ratios() []string {
	return append([]string(nil), e.ratios...)
}

// Result is the outcome of resolving one filing.
type Result struct {
	Ticker    string                       `json:"ticker"`
	Date      string                       `json:"date"`
	ID        string                       `json:"id"`
	Base      map[string]*float64          `json:"base"`
	Computed  map[string]*float64          `json:"computed"`
	Locations map[string]*resolve.Location `json:"locations,omitempty"`
	// Missing lists the concepts no table row resolved to, sorted.
	Missing []string `json:"missing,omitempty"`
	// Warnings are failed integrity checks over the stored base values.
	Warnings []validate.Finding `json:"warnings,omitempty"`
}

// ProcessFiling fetches the statement tables of f, resolves and extracts the
// concepts the configured ratios and integrity checks need, computes the
// ratios (using any market price already stored for the key) and upserts the
// snapshot.
func (e *Engine) ProcessFiling(ctx context.Context, company registry.Company, f ingest.Filing) (*Result, error) {
	if f.ReportDate.IsZero() {
		return nil, fmt.Errorf("%s %s: %w", company.Ticker, f.AccessionNumber, ErrNoReportDate)
	}
	st, err := e.filings.StatementTables(ctx, company, f)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", company.Ticker, f.AccessionNumber, err)
	}
	if st.Empty() {
		return nil, fmt.Errorf("%s %s: %w", company.Ticker, f.AccessionNumber, ErrNoStatements)
	}

	key := store.NewKey(company.Ticker, f.ReportDate)
	return e.resolveInto(ctx, key, true, st, e.concepts)
}

// Recompute re-resolves a stored snapshot from its own tables. extra adds
// concepts to the resolved set; the set only ever grows, so previously
// stored base values stay in place.
func (e *Engine) Recompute(ctx context.Context, ticker, date string, extra []string) (*Result, error) {
	key, err := store.ParseKey(ticker, date)
	if err != nil {
		return nil, err
	}
	return e.resolveInto(ctx, key, false, sheet.Statements{}, mergeConcepts(e.concepts, extra))
}

// resolveInto runs resolution and ratio computation inside one store update.
// A nil-table st means "use the stored tables".
func (e *Engine) resolveInto(ctx context.Context, key store.Key, create bool, st sheet.Statements, concepts []string) (*Result, error) {
	res := &Result{Ticker: key.Ticker, Date: key.Date}

	snap, err := e.store.Update(ctx, key, create, func(snap *models.Snapshot) error {
		snap.SetStatements(st)
		tables := snap.Statements()
		if tables.Empty() {
			return ErrNoStatements
		}

		base, locs := e.resolver.Extract(concepts, tables)
		for k, v := range base {
			snap.Base[k] = v
		}
		computed, err := calc.Compute(e.ratios, calc.Base(snap.Base), calc.Prices{Market: snap.YFValue})
		if err != nil {
			return err
		}
		for k, v := range computed {
			snap.Computed[k] = v
		}

		res.Base = base
		res.Computed = computed
		res.Warnings = validate.Integrity(calc.Base(snap.Base), validate.DefaultTolerance)
		res.Locations = locs
		for concept, loc := range locs {
			if loc == nil {
				res.Missing = append(res.Missing, concept)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", key, err)
	}
	sort.Strings(res.Missing)
	res.ID = snap.ID

	if len(res.Missing) > 0 {
		log.Info().Str("component", "pipeline").Str("key", key.String()).
			Strs("missing", res.Missing).Msg("concepts not found in statements")
	}
	for _, w := range res.Warnings {
		log.Warn().Str("component", "pipeline").Str("key", key.String()).
			Str("check", w.Check).Msg(w.Message)
	}
	return res, nil
}

// RefreshPrice samples the market price near the snapshot's reporting date,
// attaches it and recomputes the price-dependent ratios. No price in the
// window leaves the stored price alone and returns a nil quote.
func (e *Engine) RefreshPrice(ctx context.Context, ticker, date string) (*ingest.Quote, error) {
	if e.prices == nil {
		return nil, errors.New("no price source configured")
	}
	key, err := store.ParseKey(ticker, date)
	if err != nil {
		return nil, err
	}
	// Fail before calling out when there is nothing to attach to.
	if _, err := e.store.Get(ctx, key); err != nil {
		return nil, fmt.Errorf("refresh price %s: %w", key, err)
	}
	reportDate, _ := time.Parse(models.DateLayout, key.Date)

	q, err := e.prices.PriceNear(ctx, key.Ticker, reportDate)
	if err != nil {
		return nil, fmt.Errorf("refresh price %s: %w", key, err)
	}
	if q == nil {
		log.Warn().Str("component", "pipeline").Str("key", key.String()).Msg("no market price near reporting date")
		return nil, nil
	}

	dependent := calc.PriceDependent(e.ratios)
	_, err = e.store.Update(ctx, key, false, func(snap *models.Snapshot) error {
		price := q.Price
		snap.SetPrice(&price, q.Date)
		computed, err := calc.Compute(dependent, calc.Base(snap.Base), calc.Prices{Market: snap.YFValue})
		if err != nil {
			return err
		}
		for k, v := range computed {
			snap.Computed[k] = v
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("refresh price %s: %w", key, err)
	}
	return q, nil
}

// Jobs lists the filings of company whose report year is year. Filings with
// an unknown period-end are bucketed by filing date.
func (e *Engine) Jobs(ctx context.Context, company registry.Company, year int, forms []string) ([]Job, error) {
	filings, err := e.filings.Filings(ctx, company, forms)
	if err != nil {
		return nil, err
	}
	var jobs []Job
	for _, f := range period.FilterYear(filings, year, e.Window) {
		jobs = append(jobs, Job{Company: company, Filing: f})
	}
	return jobs, nil
}

func mergeConcepts(base, extra []string) []string {
	seen := make(map[string]bool, len(base)+len(extra))
	out := make([]string, 0, len(base)+len(extra))
	for _, list := range [][]string{base, extra} {
		for _, c := range list {
			if c != "" && !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	return out
}
