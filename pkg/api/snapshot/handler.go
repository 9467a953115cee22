// Package snapshot provides read-only HTTP handlers over the snapshot store.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"filing_screener/pkg/core/registry"
	"filing_screener/pkg/core/report"
	"filing_screener/pkg/core/store"

	"github.com/rs/zerolog/log"
)

// Handler holds dependencies for snapshot endpoints.
type Handler struct {
	Store    *store.Store
	Registry *registry.Registry
}

// NewHandler creates a new snapshot handler. reg may be nil.
func NewHandler(st *store.Store, reg *registry.Registry) *Handler {
	return &Handler{Store: st, Registry: reg}
}

// Register mounts the endpoints on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/snapshots", h.HandleHistory)
	mux.HandleFunc("/api/snapshot", h.HandleSnapshot)
	mux.HandleFunc("/api/report", h.HandleReport)
	mux.HandleFunc("/api/companies", h.HandleCompanies)
	mux.HandleFunc("/api/tickers", h.HandleTickers)
}

func allowGet(w http.ResponseWriter, r *http.Request) bool {
	// Add CORS headers for local dev
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return false
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Str("component", "api").Err(err).Msg("encode response")
	}
}

func storeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrInvalidKey):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, store.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		log.Error().Str("component", "api").Err(err).Msg("store request failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// HandleHistory handles GET /api/snapshots?ticker=AAPL
// Returns every stored snapshot of the ticker, oldest first.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	ticker := strings.TrimSpace(r.URL.Query().Get("ticker"))
	if ticker == "" {
		http.Error(w, "ticker is required", http.StatusBadRequest)
		return
	}
	snaps, err := h.Store.History(r.Context(), strings.ToUpper(ticker))
	if err != nil {
		storeError(w, err)
		return
	}
	writeJSON(w, snaps)
}

// HandleSnapshot handles GET /api/snapshot?ticker=AAPL&date=2024-09-28
func (h *Handler) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	q := r.URL.Query()
	key, err := store.ParseKey(q.Get("ticker"), q.Get("date"))
	if err != nil {
		storeError(w, err)
		return
	}
	snap, err := h.Store.Get(r.Context(), key)
	if err != nil {
		storeError(w, err)
		return
	}
	writeJSON(w, snap)
}

// HandleReport handles GET /api/report?ticker=AAPL&var=us-gaap_Assets&var=ROE
// Renders the variables over time as HTML; format=md returns the Markdown,
// format=json the raw series.
func (h *Handler) HandleReport(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	q := r.URL.Query()
	ticker := strings.ToUpper(strings.TrimSpace(q.Get("ticker")))
	var vars []string
	for _, v := range q["var"] {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				vars = append(vars, part)
			}
		}
	}
	if ticker == "" || len(vars) == 0 {
		http.Error(w, "ticker and var are required", http.StatusBadRequest)
		return
	}

	snaps, err := h.Store.History(r.Context(), ticker)
	if err != nil {
		storeError(w, err)
		return
	}
	series := make([]report.Series, 0, len(vars))
	for _, v := range vars {
		series = append(series, report.SeriesOf(snaps, v))
	}

	title := ticker
	if h.Registry != nil {
		if c, err := h.Registry.Lookup(ticker); err == nil && c.Title != "" {
			title = fmt.Sprintf("%s (%s)", c.Title, ticker)
		}
	}
	md := report.Markdown(title, series...)

	switch q.Get("format") {
	case "json":
		writeJSON(w, series)
	case "md", "markdown":
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		fmt.Fprint(w, md)
	default:
		html, err := report.HTML(md)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, html)
	}
}

// HandleTickers handles GET /api/tickers
// Lists the tickers that have stored snapshots.
func (h *Handler) HandleTickers(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	tickers, err := h.Store.Tickers(r.Context())
	if err != nil {
		storeError(w, err)
		return
	}
	if tickers == nil {
		tickers = []string{}
	}
	writeJSON(w, tickers)
}

// HandleCompanies handles GET /api/companies
// Lists the registry, or a single company with ?ticker=.
func (h *Handler) HandleCompanies(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	if h.Registry == nil {
		http.Error(w, "registry not configured", http.StatusNotFound)
		return
	}
	if ticker := r.URL.Query().Get("ticker"); ticker != "" {
		c, err := h.Registry.Lookup(ticker)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		writeJSON(w, c)
		return
	}
	writeJSON(w, h.Registry.Companies())
}
