package store

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
	"time"

	"filing_screener/pkg/models"

	"github.com/rs/zerolog/log"
)

// FileRepository stores one JSON document per snapshot under
// <dir>/<TICKER>/<YYYY-MM-DD>.json.
type FileRepository struct {
	dir string
}

// NewFileRepository creates the root directory if needed.
func NewFileRepository(dir string) (*FileRepository, error) {
	if dir == "" {
		dir = filepath.Join(".cache", "snapshots")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot dir %s: %w", dir, err)
	}
	return &FileRepository{dir: dir}, nil
}

// Dir returns the root directory.
func (r *FileRepository) Dir() string {
	return r.dir
}

func (r *FileRepository) path(key Key) string {
	return filepath.Join(r.dir, key.Ticker, key.Date+".json")
}

// Load reads and decodes the snapshot for key.
func (r *FileRepository) Load(_ context.Context, key Key) (*models.Snapshot, error) {
	data, err := os.ReadFile(r.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot %s: %w", key, err)
	}
	snap, err := models.DecodeSnapshot(data)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", key, err)
	}
	return snap, nil
}

// Save writes the snapshot through a temp file and a rename so readers never
// see a half-written document.
func (r *FileRepository) Save(_ context.Context, key Key, snap *models.Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot %s: %w", key, err)
	}
	data = append(data, '\n')

	path := r.path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create dir for %s: %w", key, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+key.Date+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", key, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write snapshot %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close snapshot %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to save snapshot %s: %w", key, err)
	}
	return nil
}

// List returns the keys stored for ticker, oldest first. Files whose names
// are not dates are skipped.
func (r *FileRepository) List(_ context.Context, ticker string) ([]Key, error) {
	ticker = strings.ToUpper(ticker)
	entries, err := os.ReadDir(filepath.Join(r.dir, ticker))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots for %s: %w", ticker, err)
	}

	var keys []Key
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != ".json" {
			continue
		}
		date := strings.TrimSuffix(name, ".json")
		if _, err := time.Parse(models.DateLayout, date); err != nil {
			log.Debug().Str("component", "store").Str("file", name).Msg("skipping non-snapshot file")
			continue
		}
		keys = append(keys, Key{Ticker: ticker, Date: date})
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Date < keys[j].Date })
	return keys, nil
}

// Tickers lists the ticker directories present.
func (r *FileRepository) Tickers(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshot dir: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}
