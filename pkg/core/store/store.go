package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"filing_screener/pkg/core/sheet"
	"filing_screener/pkg/models"

	"github.com/rs/zerolog/log"
)

// Store is the read-modify-write layer over a Repository. Writes to one key
// are serialized; different keys proceed in parallel.
type Store struct {
	repo Repository

	mu    sync.Mutex
	locks map[Key]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// New wraps repo.
func New(repo Repository) *Store {
	return &Store{repo: repo, locks: make(map[Key]*keyLock)}
}

// Tickers lists the tickers with stored snapshots.
func (s *Store) Tickers(ctx context.Context) ([]string, error) {
	return s.repo.Tickers(ctx)
}

func (s *Store) lock(key Key) func() {
	s.mu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &keyLock{}
		s.locks[key] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}
}

// Update runs fn on the current snapshot for key and saves the result, all
// under the key's lock. When create is true a missing (or unreadable) record
// starts from an empty snapshot; otherwise a missing record is ErrNotFound.
func (s *Store) Update(ctx context.Context, key Key, create bool, fn func(*models.Snapshot) error) (*models.Snapshot, error) {
	unlock := s.lock(key)
	defer unlock()

	snap, err := s.repo.Load(ctx, key)
	switch {
	case err == nil:
	case create && errors.Is(err, ErrNotFound):
		snap = models.NewSnapshot(key.Ticker, key.Date)
	case create && errors.Is(err, ErrMalformed):
		log.Warn().Str("component", "store").Str("key", key.String()).Err(err).
			Msg("replacing unreadable snapshot")
		snap = models.NewSnapshot(key.Ticker, key.Date)
	default:
		return nil, err
	}

	if err := fn(snap); err != nil {
		return nil, err
	}
	snap.ID = models.SnapshotID(key.Ticker, key.Date)
	snap.Ticker = key.Ticker
	snap.Date = key.Date

	if err := s.repo.Save(ctx, key, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// Upsert merges base and computed into the snapshot for key, creating it if
// needed, and returns the snapshot id. Supplied values replace values under
// the same name; names not supplied keep their stored values. Tables are
// replaced only when given. The stored price is left untouched.
func (s *Store) Upsert(ctx context.Context, key Key, base, computed map[string]*float64, st sheet.Statements) (string, error) {
	snap, err := s.Update(ctx, key, true, func(snap *models.Snapshot) error {
		for k, v := range base {
			snap.Base[k] = v
		}
		for k, v := range computed {
			snap.Computed[k] = v
		}
		snap.SetStatements(st)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("upsert %s: %w", key, err)
	}
	return snap.ID, nil
}

// Get returns the snapshot for key, or an error wrapping ErrNotFound.
func (s *Store) Get(ctx context.Context, key Key) (*models.Snapshot, error) {
	return s.repo.Load(ctx, key)
}

// AttachPrice records a market price sampled on sampled for an existing
// snapshot, leaving base and computed as they are.
func (s *Store) AttachPrice(ctx context.Context, key Key, price *float64, sampled time.Time) error {
	_, err := s.Update(ctx, key, false, func(snap *models.Snapshot) error {
		snap.SetPrice(price, sampled)
		return nil
	})
	if err != nil {
		return fmt.Errorf("attach price %s: %w", key, err)
	}
	return nil
}

// History loads every snapshot of ticker, oldest first. Unreadable records
// are logged and skipped.
func (s *Store) History(ctx context.Context, ticker string) ([]*models.Snapshot, error) {
	ticker, err := CleanTicker(ticker)
	if err != nil {
		return nil, err
	}
	keys, err := s.repo.List(ctx, ticker)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Snapshot, 0, len(keys))
	for _, key := range keys {
		snap, err := s.repo.Load(ctx, key)
		if err != nil {
			if errors.Is(err, ErrMalformed) || errors.Is(err, ErrNotFound) {
				log.Warn().Str("component", "store").Str("key", key.String()).Err(err).Msg("skipping snapshot")
				continue
			}
			return nil, err
		}
		out = append(out, snap)
	}
	return out, nil
}
