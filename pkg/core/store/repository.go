// Package store persists filing snapshots keyed by (ticker, reporting date).
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"filing_screener/pkg/models"
)

var (
	// ErrNotFound is returned when no snapshot exists for a key.
	ErrNotFound = errors.New("snapshot not found")
	// ErrMalformed is returned when a stored snapshot cannot be decoded.
	ErrMalformed = models.ErrMalformed
	// ErrInvalidKey is returned for an empty ticker or a bad date.
	ErrInvalidKey = errors.New("invalid snapshot key")
)

// Key identifies a snapshot: the company ticker and the period-end date the
// filing reports on, never the date it was filed.
type Key struct {
	Ticker string
	Date   string
}

// NewKey normalizes the ticker and formats the reporting date.
func NewKey(ticker string, reportDate time.Time) Key {
	return Key{Ticker: strings.ToUpper(strings.TrimSpace(ticker)), Date: reportDate.Format(models.DateLayout)}
}

// ParseKey validates a ticker and a YYYY-MM-DD date.
func ParseKey(ticker, date string) (Key, error) {
	ticker, err := CleanTicker(ticker)
	if err != nil {
		return Key{}, err
	}
	d, err := time.Parse(models.DateLayout, strings.TrimSpace(date))
	if err != nil {
		return Key{}, fmt.Errorf("%w: date %q", ErrInvalidKey, date)
	}
	return Key{Ticker: ticker, Date: d.Format(models.DateLayout)}, nil
}

// CleanTicker upper-cases a ticker and rejects values that are empty or
// could escape a directory.
func CleanTicker(ticker string) (string, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" || strings.ContainsAny(ticker, `/\`) || strings.Contains(ticker, "..") {
		return "", fmt.Errorf("%w: ticker %q", ErrInvalidKey, ticker)
	}
	return ticker, nil
}

func (k Key) String() string {
	return k.Ticker + "/" + k.Date
}

// Repository is the durable backend of the Store. Load returns ErrNotFound
// for a missing key and wraps ErrMalformed for an undecodable record.
type Repository interface {
	Load(ctx context.Context, key Key) (*models.Snapshot, error)
	Save(ctx context.Context, key Key, snap *models.Snapshot) error
	List(ctx context.Context, ticker string) ([]Key, error)
	// Tickers lists every ticker with at least one stored snapshot, sorted.
	Tickers(ctx context.Context) ([]string, error)
}
