package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"filing_screener/pkg/core/sheet"
	"filing_screener/pkg/core/utils"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// DateLayout is the wire format of reporting and price dates.
const DateLayout = "2006-01-02"

// ErrMalformed marks a stored record that could not be decoded or failed
// validation.
var ErrMalformed = errors.New("malformed snapshot")

// snapshotNamespace seeds the deterministic snapshot ids.
var snapshotNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("filing_screener/snapshot"))

// Snapshot is one persisted filing: the raw statements, the resolved base
// values and the computed ratios for a (ticker, reporting date) pair.
type Snapshot struct {
	ID     string `json:"id,omitempty"`
	Ticker string `json:"ticker" validate:"required"`
	Date   string `json:"date" validate:"required,datetime=2006-01-02"`

	BalanceSheet *sheet.Table `json:"balance_sheet"`
	Income       *sheet.Table `json:"income"`
	CashFlow     *sheet.Table `json:"cashflow"`

	Base     map[string]*float64 `json:"base"`
	Computed map[string]*float64 `json:"computed"`

	// Market price sampled near Date and the day it was sampled.
	YFValue     *float64 `json:"yf_value"`
	YFValueDate *string  `json:"yf_value_date" validate:"omitempty,datetime=2006-01-02"`
}

// SnapshotID derives the stable id of a (ticker, date) key.
func SnapshotID(ticker, date string) string {
	return uuid.NewSHA1(snapshotNamespace, []byte(strings.ToUpper(ticker)+"|"+date)).String()
}

// NewSnapshot returns an empty snapshot for the key.
func NewSnapshot(ticker, date string) *Snapshot {
	return &Snapshot{
		ID:       SnapshotID(ticker, date),
		Ticker:   strings.ToUpper(ticker),
		Date:     date,
		Base:     map[string]*float64{},
		Computed: map[string]*float64{},
	}
}

// Statements returns the three tables as a sheet.Statements.
func (s *Snapshot) Statements() sheet.Statements {
	return sheet.Statements{BalanceSheet: s.BalanceSheet, Income: s.Income, CashFlow: s.CashFlow}
}

// SetStatements replaces the tables that are present in st.
func (s *Snapshot) SetStatements(st sheet.Statements) {
	if st.BalanceSheet != nil {
		s.BalanceSheet = st.BalanceSheet
	}
	if st.Income != nil {
		s.Income = st.Income
	}
	if st.CashFlow != nil {
		s.CashFlow = st.CashFlow
	}
}

// SetPrice records a market price and the day it was sampled. A nil price
// clears both.
func (s *Snapshot) SetPrice(price *float64, sampled time.Time) {
	s.YFValue = price
	if price == nil {
		s.YFValueDate = nil
		return
	}
	d := sampled.Format(DateLayout)
	s.YFValueDate = &d
}

// ReportDate parses Date.
func (s *Snapshot) ReportDate() (time.Time, error) {
	return time.Parse(DateLayout, s.Date)
}

// Value looks name up in base, then in computed.
func (s *Snapshot) Value(name string) (*float64, bool) {
	if v, ok := s.Base[name]; ok {
		return v, true
	}
	v, ok := s.Computed[name]
	return v, ok
}

// DecodeSnapshot is the load boundary for stored records: strict JSON, then
// repaired JSON, then Hjson, then struct validation.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var snap Snapshot
	_, repaired, err := utils.SmartParse(data, &snap)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if repaired {
		log.Warn().Str("component", "models").Str("ticker", snap.Ticker).Str("date", snap.Date).
			Msg("snapshot record needed repair")
	}
	if err := utils.ValidateStruct(&snap); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	for name, tbl := range map[string]*sheet.Table{
		sheet.BalanceSheet: snap.BalanceSheet,
		sheet.Income:       snap.Income,
		sheet.CashFlow:     snap.CashFlow,
	} {
		if tbl != nil {
			tbl.Name = name
		}
	}
	if snap.Base == nil {
		snap.Base = map[string]*float64{}
	}
	if snap.Computed == nil {
		snap.Computed = map[string]*float64{}
	}
	if snap.ID == "" {
		snap.ID = SnapshotID(snap.Ticker, snap.Date)
	}
	return &snap, nil
}
