package distill

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
)

// DecodeConfig reads a JSON-encoded Config from r into cfg, overlaying
// whatever fields are present onto cfg's existing (typically default)
// values.
func DecodeConfig(r io.Reader, cfg *Config) error {
	return json.NewDecoder(r).Decode(cfg)
}

// ResolveDBPath exposes resolveDBPath to callers outside this package.
func (c *Config) ResolveDBPath() string { return c.resolveDBPath() }

// ResolveHarvestStatePath exposes resolveHarvestStatePath to callers
// outside this package.
func (c *Config) ResolveHarvestStatePath() string { return c.resolveHarvestStatePath() }

// ResolveLogsDir exposes the logs directory of the persisted-state layout.
func (c *Config) ResolveLogsDir() string { return c.logsDir() }

// Config holds all configuration for the distillation engine.
type Config struct {
	// DBPath is the full path to the distilled-knowledge SQLite database.
	// If empty, defaults to <StorageDir>/knowledge_distilled.db.
	DBPath string `json:"db_path"`

	// HarvestStatePath is the full path to the harvest-state SQLite
	// database. If empty, defaults to <StorageDir>/harvest_state.db.
	HarvestStatePath string `json:"harvest_state_path"`

	// DataDir is the base directory for embeddings/, fulltext/ and logs/.
	// Defaults to "./data".
	DataDir string `json:"data_dir"`

	Chunking  ChunkingConfig  `json:"chunking"`
	Embedding EmbeddingConfig `json:"embedding"`
	Compress  CompressConfig  `json:"compress"`
	Storage   StorageConfig   `json:"storage"`
	Harvest   HarvestConfig   `json:"harvest"`
	Executor  ExecutorConfig  `json:"executor"`
	RerankCfg RerankConfig    `json:"rerank"`
}

// ChunkingConfig controls the preprocessor's chunk sizing.
type ChunkingConfig struct {
	MaxTokens     int `json:"max_tokens"`
	OverlapTokens int `json:"overlap_tokens"`
}

// EmbeddingConfig selects and configures the embedding engine.
type EmbeddingConfig struct {
	// Mode is one of "local", "remote", "none". Empty means auto-select:
	// local model if configured, else remote endpoint, else none.
	Mode     string `json:"mode"`
	Provider string `json:"provider"` // e.g. "ollama" when Mode == "remote"
	Model    string `json:"model"`
	BaseURL  string `json:"base_url"`
	APIKey   string `json:"api_key"`
	Dim      int    `json:"dim"`
}

// CompressConfig names the default compression profile and zstd
// dictionary behavior.
type CompressConfig struct {
	Profile          string `json:"profile"` // e.g. "balanced"
	UseDictionary    bool   `json:"use_dictionary"`
	DictionaryMaxLen int    `json:"dictionary_max_len"`
}

// StorageConfig selects the Storage Adapter backend. Fields mirror the
// environment variables named in the external interfaces: VIO83_STORAGE_TYPE
// etc are read by objectstore.FromEnv; this struct is the programmatic
// equivalent for callers that configure in code instead of via env.
type StorageConfig struct {
	Type           string `json:"type"` // "local", "s3", "gcs", "azure", "dropbox"
	LocalPath      string `json:"local_path"`
	S3Bucket       string `json:"s3_bucket"`
	S3Region       string `json:"s3_region"`
	S3Endpoint     string `json:"s3_endpoint"`
	GCSBucket      string `json:"gcs_bucket"`
	AzureContainer string `json:"azure_container"`
	DropboxPrefix  string `json:"dropbox_prefix"`
	Tiered         bool   `json:"tiered"`
}

// HarvestConfig configures the Harvester's polite-pool identification and
// rate limiting.
type HarvestConfig struct {
	Mailto            string  `json:"mailto"`
	UserAgent         string  `json:"user_agent"`
	RequestsPerSecond float64 `json:"requests_per_second"`
}

// ExecutorConfig sizes the process/thread/async pools.
type ExecutorConfig struct {
	ProcessPoolWorkers int `json:"process_pool_workers"` // 0 = auto (physical_cpus-1)
	ThreadPoolWorkers  int `json:"thread_pool_workers"`  // 0 = auto (min(cpus*4, 64))
	AsyncConcurrency   int `json:"async_concurrency"`
}

// RerankConfig holds the hybrid search linear-blend weights.
type RerankConfig struct {
	WeightSimilarity  float64 `json:"weight_similarity"`
	WeightReliability float64 `json:"weight_reliability"`
	WeightDomain      float64 `json:"weight_domain"`
	WeightSource      float64 `json:"weight_source"`
}

// DefaultConfig returns a Config with the engine's standard defaults.
func DefaultConfig() Config {
	return Config{
		DataDir: "./data",
		Chunking: ChunkingConfig{
			MaxTokens:     512,
			OverlapTokens: 64,
		},
		Embedding: EmbeddingConfig{
			Dim: 384,
		},
		Compress: CompressConfig{
			Profile:          "balanced",
			DictionaryMaxLen: 112 * 1024,
		},
		Storage: StorageConfig{
			Type: "local",
		},
		Harvest: HarvestConfig{
			UserAgent:         "distill/1.0",
			RequestsPerSecond: 10,
		},
		Executor: ExecutorConfig{},
		RerankCfg: RerankConfig{
			WeightSimilarity:  0.50,
			WeightReliability: 0.25,
			WeightDomain:      0.15,
			WeightSource:      0.10,
		},
	}
}

// resolveDBPath computes the final distillation-store database path.
func (c *Config) resolveDBPath() string {
	if c.DBPath != "" {
		return c.DBPath
	}
	dir := c.DataDir
	if dir == "" {
		dir = "./data"
	}
	return filepath.Join(dir, "knowledge_distilled.db")
}

// resolveHarvestStatePath computes the final harvest-state database path.
func (c *Config) resolveHarvestStatePath() string {
	if c.HarvestStatePath != "" {
		return c.HarvestStatePath
	}
	dir := c.DataDir
	if dir == "" {
		dir = "./data"
	}
	return filepath.Join(dir, "harvest_state.db")
}

// embeddingsDir, fulltextDir, logsDir mirror the persisted-state layout
// documented in the external interfaces section.
func (c *Config) embeddingsDir() string { return filepath.Join(c.dataDir(), "embeddings") }
func (c *Config) fulltextDir() string   { return filepath.Join(c.dataDir(), "fulltext") }
func (c *Config) logsDir() string       { return filepath.Join(c.dataDir(), "logs") }

func (c *Config) dataDir() string {
	if c.DataDir == "" {
		return "./data"
	}
	return c.DataDir
}

// ensureDataDirs creates the persisted-state directory layout.
func (c *Config) ensureDataDirs() error {
	for _, d := range []string{c.dataDir(), c.embeddingsDir(), c.fulltextDir(), c.logsDir()} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return err
		}
	}
	return nil
}
