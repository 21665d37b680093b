package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ridgepoint-claims/claimflow/internal/catalog"
	"github.com/ridgepoint-claims/claimflow/internal/ocr"
	"github.com/ridgepoint-claims/claimflow/internal/pipeline"
	"github.com/ridgepoint-claims/claimflow/internal/store"
	anthropicpkg "github.com/ridgepoint-claims/claimflow/pkg/anthropic"
)

// pipelineEnv holds the initialized store, clients, catalog, and pipeline
// needed by the run/batch/serve commands.
type pipelineEnv struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
	AI       anthropicpkg.Client
	OCR      ocr.Extractor
	Catalog  *catalog.Catalog
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite", "":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "claimflow.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func loadCatalog() (*catalog.Catalog, error) {
	if cfg.Catalog.Path != "" {
		return catalog.Load(cfg.Catalog.Path)
	}
	return catalog.Default()
}

// initPipeline sets up the store, clients, and catalog, and builds the
// Pipeline. Callers should defer env.Close().
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	aiClient := anthropicpkg.NewClient(cfg.Anthropic.Key,
		anthropicpkg.WithRateLimit(cfg.Anthropic.RequestsPerSec, cfg.Anthropic.Burst),
	)

	extractor, err := ocr.NewExtractor(cfg.OCR)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	cat, err := loadCatalog()
	if err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "load catalog")
	}

	zap.L().Info("catalog loaded",
		zap.String("price_list", cat.PriceList),
		zap.Int("scopes", len(cat.Scopes)),
	)

	p := pipeline.New(cfg, st, extractor, aiClient, cat)

	return &pipelineEnv{
		Store:    st,
		Pipeline: p,
		AI:       aiClient,
		OCR:      extractor,
		Catalog:  cat,
	}, nil
}
