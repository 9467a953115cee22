// Package registry is the company list the screener works over: ticker, CIK
// and name, loaded from disk at startup and refreshed from SEC on demand.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// ErrUnknownTicker is returned by Lookup for a ticker not in the registry.
var ErrUnknownTicker = errors.New("unknown ticker")

// Company is one registered filer.
type Company struct {
	CIK    string `json:"cik"` // zero-padded to 10 digits
	Ticker string `json:"ticker"`
	Title  string `json:"title"`
}

// PadCIK zero-pads a CIK to the 10 digits EDGAR URLs expect.
func PadCIK(cik string) string {
	cik = strings.TrimLeft(strings.TrimSpace(cik), "0")
	if cik == "" {
		return ""
	}
	return fmt.Sprintf("%010s", cik)
}

// Source produces a fresh company list.
type Source interface {
	Companies(ctx context.Context) ([]Company, error)
}

// Registry holds companies by ticker.
type Registry struct {
	mu        sync.RWMutex
	byTicker  map[string]Company
	sources   []Source
	members   Source
	whitelist map[string]bool
}

// New returns an empty registry refreshed from sources, in order; later
// sources fill in companies the earlier ones did not list.
func New(sources ...Source) *Registry {
	return &Registry{byTicker: make(map[string]Company), sources: sources}
}

// Restrict limits Refresh to the given tickers. An empty list lifts the limit.
func (r *Registry) Restrict(tickers []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(tickers) == 0 {
		r.whitelist = nil
		return
	}
	r.whitelist = make(map[string]bool, len(tickers))
	for _, t := range tickers {
		r.whitelist[normalizeTicker(t)] = true
	}
}

// SetMembers makes src the membership list: each Refresh fetches it once,
// restricts the registry to its tickers and uses its rows for companies the
// other sources do not list. nil removes it.
func (r *Registry) SetMembers(src Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members = src
}

// companyList is a Source over an already fetched list.
type companyList []Company

func (l companyList) Companies(context.Context) ([]Company, error) {
	return l, nil
}

func normalizeTicker(t string) string {
	return strings.ToUpper(strings.TrimSpace(t))
}

// Load replaces the registry contents with the JSON list at path. A missing
// file leaves the registry empty.
func (r *Registry) Load(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read registry %s: %w", path, err)
	}
	var companies []Company
	if err := json.Unmarshal(data, &companies); err != nil {
		return fmt.Errorf("failed to parse registry %s: %w", path, err)
	}
	r.replace(companies)
	return nil
}

// Save writes the registry as a JSON list sorted by ticker.
func (r *Registry) Save(path string) error {
	data, err := json.MarshalIndent(r.Companies(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create registry dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write registry %s: %w", path, err)
	}
	return nil
}

// Refresh rebuilds the registry from its sources. A failing source is
// logged and skipped; Refresh fails only when every source failed.
func (r *Registry) Refresh(ctx context.Context) error {
	r.mu.RLock()
	sources, membersSrc := r.sources, r.members
	r.mu.RUnlock()

	if membersSrc != nil {
		members, err := membersSrc.Companies(ctx)
		if err != nil {
			return fmt.Errorf("index members: %w", err)
		}
		tickers := make([]string, 0, len(members))
		for _, c := range members {
			tickers = append(tickers, c.Ticker)
		}
		r.Restrict(tickers)
		sources = append(append([]Source(nil), sources...), companyList(members))
	}
	if len(sources) == 0 {
		return fmt.Errorf("registry has no sources")
	}
	var merged []Company
	seen := make(map[string]bool)
	var errs []error
	for _, src := range sources {
		companies, err := src.Companies(ctx)
		if err != nil {
			log.Warn().Str("component", "registry").Err(err).Msg("company source failed")
			errs = append(errs, err)
			continue
		}
		for _, c := range companies {
			t := normalizeTicker(c.Ticker)
			if t == "" || seen[t] {
				continue
			}
			seen[t] = true
			merged = append(merged, c)
		}
	}
	if len(errs) == len(sources) {
		return fmt.Errorf("refresh failed: %w", errors.Join(errs...))
	}
	r.replace(merged)
	log.Info().Str("component", "registry").Int("companies", r.Len()).Msg("registry refreshed")
	return nil
}

func (r *Registry) replace(companies []Company) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byTicker = make(map[string]Company, len(companies))
	for _, c := range companies {
		c.Ticker = normalizeTicker(c.Ticker)
		c.CIK = PadCIK(c.CIK)
		if c.Ticker == "" {
			continue
		}
		if r.whitelist != nil && !r.whitelist[c.Ticker] {
			continue
		}
		r.byTicker[c.Ticker] = c
	}
}

// Lookup finds a company by ticker, case-insensitively.
func (r *Registry) Lookup(ticker string) (Company, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byTicker[normalizeTicker(ticker)]
	if !ok {
		return Company{}, fmt.Errorf("%w: %s", ErrUnknownTicker, ticker)
	}
	return c, nil
}

// Companies returns every company sorted by ticker.
func (r *Registry) Companies() []Company {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Company, 0, len(r.byTicker))
	for _, c := range r.byTicker {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out
}

// Len returns the number of companies.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byTicker)
}
