package main

import (
	"context"
	"errors"
	"net/http"

	"filing_screener/pkg/core/config"
	"filing_screener/pkg/core/ingest"
	"filing_screener/pkg/core/pipeline"
	"filing_screener/pkg/core/registry"
	"filing_screener/pkg/core/resolve"
	"filing_screener/pkg/core/store"

	"github.com/rs/zerolog/log"
)

// app holds the wired collaborators for one command run.
type app struct {
	cfg      *config.Config
	store    *store.Store
	registry *registry.Registry
	edgar    *ingest.EDGARClient
	engine   *pipeline.Engine
	close    func()
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, close: func() {}}

	var repo store.Repository
	if cfg.Data.DatabaseURL != "" {
		pool, err := store.Connect(ctx, cfg.Data.DatabaseURL)
		if err != nil {
			return nil, err
		}
		pg := store.NewPGRepository(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		a.close = pool.Close
		repo = pg
		log.Debug().Str("component", "cli").Msg("using postgres snapshot store")
	} else {
		fileRepo, err := store.NewFileRepository(cfg.Data.Dir)
		if err != nil {
			return nil, err
		}
		repo = fileRepo
		log.Debug().Str("component", "cli").Str("dir", fileRepo.Dir()).Msg("using file snapshot store")
	}
	a.store = store.New(repo)

	catalog, err := resolve.LoadCatalog(cfg.Data.CatalogPath)
	if err != nil {
		a.close()
		return nil, err
	}
	resolver, err := resolve.New(cfg.Resolve.SheetOrder, catalog)
	if err != nil {
		a.close()
		return nil, err
	}
	resolver.Substring = cfg.Resolve.Substring

	a.edgar = ingest.NewEDGARClient(cfg.Edgar.UserAgent,
		ingest.WithHTTPClient(&http.Client{Timeout: cfg.Edgar.Timeout}))
	a.engine, err = pipeline.NewEngine(a.edgar, ingest.NewYahooPrices(""), a.store, resolver, cfg.Ratios)
	if err != nil {
		a.close()
		return nil, err
	}
	a.engine.Concurrency = cfg.Pipeline.Concurrency
	log.Debug().Str("component", "cli").Strs("sheet_order", resolver.Order()).
		Strs("ratios", a.engine.Ratios()).Int("concurrency", a.engine.Concurrency).Msg("engine ready")

	a.registry = registry.New(registry.SECTickers{UserAgent: cfg.Edgar.UserAgent})
	if cfg.Edgar.IndexURL != "" {
		a.registry.SetMembers(registry.IndexPage{URL: cfg.Edgar.IndexURL, UserAgent: cfg.Edgar.UserAgent})
	}
	if err := a.registry.Load(cfg.Data.RegistryPath); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

// refreshRegistry rebuilds the registry from its sources and saves it. With
// an index page configured the registry is limited to its members.
func (a *app) refreshRegistry(ctx context.Context) error {
	if err := a.registry.Refresh(ctx); err != nil {
		return err
	}
	return a.registry.Save(a.cfg.Data.RegistryPath)
}

// company looks ticker up, refreshing an empty or stale registry once.
func (a *app) company(ctx context.Context, ticker string) (registry.Company, error) {
	c, err := a.registry.Lookup(ticker)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, registry.ErrUnknownTicker) {
		return registry.Company{}, err
	}
	log.Info().Str("component", "cli").Str("ticker", ticker).Msg("ticker not in registry, refreshing")
	if err := a.refreshRegistry(ctx); err != nil {
		return registry.Company{}, err
	}
	return a.registry.Lookup(ticker)
}
