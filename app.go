package distill

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/brunobiangulo/distill/harvest"
	"github.com/brunobiangulo/distill/llm"
	"github.com/brunobiangulo/distill/objectstore"
	"github.com/brunobiangulo/distill/rag"
	"github.com/brunobiangulo/distill/retrieval"
	"github.com/brunobiangulo/distill/store"
)

// App wires the data plane into one handle: the distillation store, an
// optional embedding engine, the search engine, the RAG facade, the
// harvester's state db/orchestrator/scanner, the storage backend, and the
// ingestion pipeline.
type App struct {
	Config Config

	Store        *store.Store
	Embedder     *llm.Engine
	Search       *retrieval.Engine
	RAG          *rag.Facade
	HarvestState *harvest.StateDB
	Harvest      *harvest.Orchestrator
	Scanner      *harvest.Scanner
	Storage      objectstore.Backend
	Ingest       *Ingester
}

// NewApp resolves paths, ensures the data directory layout exists, and
// opens every component. Embedding probing (llm.NewEngine) runs with the
// given ctx, so callers that want a time-bounded probe should pass a
// context with a deadline.
func NewApp(ctx context.Context, cfg Config) (*App, error) {
	if err := cfg.ensureDataDirs(); err != nil {
		return nil, fmt.Errorf("distill: creating data directories: %w", err)
	}

	dim := cfg.Embedding.Dim
	if dim == 0 {
		dim = 384
	}

	s, err := store.New(cfg.resolveDBPath(), dim)
	if err != nil {
		return nil, fmt.Errorf("distill: opening distillation store: %w", err)
	}

	var embedder *llm.Engine
	if cfg.Embedding.Mode != "none" {
		candidates := embeddingCandidates(cfg.Embedding)
		if len(candidates) > 0 {
			embedder = llm.NewEngine(ctx, candidates...)
		}
	}

	search := retrieval.New(s, embedder, retrieval.RerankConfig{
		WeightSimilarity:  cfg.RerankCfg.WeightSimilarity,
		WeightReliability: cfg.RerankCfg.WeightReliability,
		WeightDomain:      cfg.RerankCfg.WeightDomain,
		WeightSource:      cfg.RerankCfg.WeightSource,
	})
	ragFacade := rag.New(search, s)

	stateDB, err := harvest.OpenState(cfg.resolveHarvestStatePath())
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("distill: opening harvest state: %w", err)
	}
	orch := harvest.NewOrchestrator(stateDB, s, cfg.Harvest.RequestsPerSecond)
	scanner := harvest.NewScanner(s, stateDB)

	storage, err := objectstore.Build(storageSettings(cfg))
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("distill: building storage backend: %w", err)
	}
	ingester := NewIngester(s, embedder, storage, cfg.Chunking, cfg.Executor.ProcessPoolWorkers)

	return &App{
		Config:       cfg,
		Store:        s,
		Embedder:     embedder,
		Search:       search,
		RAG:          ragFacade,
		HarvestState: stateDB,
		Harvest:      orch,
		Scanner:      scanner,
		Storage:      storage,
		Ingest:       ingester,
	}, nil
}

// storageSettings maps the programmatic StorageConfig onto objectstore
// Settings; environment variables fill any field left empty, so env-only
// deployments keep working with a zero StorageConfig.
func storageSettings(cfg Config) objectstore.Settings {
	s := objectstore.SettingsFromEnv()
	sc := cfg.Storage
	if sc.Type != "" {
		s.Type = sc.Type
	}
	if sc.LocalPath != "" {
		s.LocalPath = sc.LocalPath
	}
	if s.Type == "" || s.Type == "local" {
		if s.LocalPath == "" {
			s.LocalPath = filepath.Join(cfg.dataDir(), "objects")
		}
	}
	if sc.S3Bucket != "" {
		s.S3Bucket = sc.S3Bucket
	}
	if sc.S3Region != "" {
		s.S3Region = sc.S3Region
	}
	if sc.S3Endpoint != "" {
		s.S3Endpoint = sc.S3Endpoint
	}
	if sc.GCSBucket != "" {
		s.GCSBucket = sc.GCSBucket
	}
	if sc.AzureContainer != "" {
		s.AzureContainer = sc.AzureContainer
	}
	if sc.DropboxPrefix != "" {
		s.DropboxPrefix = sc.DropboxPrefix
	}
	if sc.Tiered {
		s.Tiered = true
	}
	return s
}

// Close releases the Distillation Store's database handle. The harvest
// state db uses a short-lived connection per call and holds nothing open.
func (a *App) Close() error {
	return a.Store.Close()
}

// embeddingCandidates turns EmbeddingConfig into the ordered provider
// candidate list llm.NewEngine probes, per the Embedding Engine's
// local-then-remote-then-none fallback.
func embeddingCandidates(cfg EmbeddingConfig) []llm.Config {
	var candidates []llm.Config
	switch cfg.Mode {
	case "local":
		candidates = append(candidates, llm.Config{Provider: "ollama", Model: cfg.Model, BaseURL: cfg.BaseURL})
	case "remote":
		candidates = append(candidates, llm.Config{Provider: cfg.Provider, Model: cfg.Model, BaseURL: cfg.BaseURL, APIKey: cfg.APIKey})
	default:
		if cfg.Provider != "" {
			candidates = append(candidates, llm.Config{Provider: cfg.Provider, Model: cfg.Model, BaseURL: cfg.BaseURL, APIKey: cfg.APIKey})
		}
		candidates = append(candidates, llm.Config{Provider: "ollama", Model: cfg.Model, BaseURL: cfg.BaseURL})
	}
	return candidates
}
