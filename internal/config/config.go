package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	APIPort  string
	LogLevel string

	OllamaURL        string
	OllamaGenModel   string
	OllamaEmbedModel string

	QdrantURL        string
	QdrantCollection string
	QdrantVectorSize int

	RerankerURL       string
	RerankerModel     string
	RerankerBatchSize int
	RerankerParallel  int

	Neo4jURI      string
	Neo4jUsername string
	Neo4jPassword string
	Neo4jDatabase string

	QATopK           int
	QARerankTopN     int
	QAMaxGraphHops   int
	QAContextBudget  int
	QAStageTimeoutMS int
	QADryRun         bool

	APIRateLimitRPS       float64
	APIRateLimitBurst     int
	APIMaxConcurrent      int
	APIBackpressureWaitMS int
	APIMaxConnections     int

	BreakerEnabled          bool
	BreakerMinRequests      int
	BreakerFailureRatio     float64
	BreakerOpenTimeoutSec   int
	BreakerHalfOpenMaxCalls int
}

// Load resolves configuration in three layers: built-in defaults, then an
// optional YAML file named by ATLAS_CONFIG_FILE, then environment variables.
// A set environment variable always wins over the file.
func Load() (Config, error) {
	cfg := defaults()

	if path := os.Getenv("ATLAS_CONFIG_FILE"); path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, fmt.Errorf("config file %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		APIPort:  "8080",
		LogLevel: "info",

		OllamaURL:        "http://localhost:11434",
		OllamaGenModel:   "llama3.1:8b",
		OllamaEmbedModel: "mxbai-embed-large",

		QdrantURL:        "http://localhost:6333",
		QdrantCollection: "atlas_chunks",
		QdrantVectorSize: 1024,

		RerankerURL:       "http://localhost:8090",
		RerankerModel:     "jina-reranker-v2-base-multilingual",
		RerankerBatchSize: 16,
		RerankerParallel:  4,

		Neo4jURI:      "bolt://localhost:7687",
		Neo4jUsername: "neo4j",
		Neo4jPassword: "neo4j",
		Neo4jDatabase: "neo4j",

		QATopK:           10,
		QARerankTopN:     5,
		QAMaxGraphHops:   2,
		QAContextBudget:  16384,
		QAStageTimeoutMS: 30000,
		QADryRun:         false,

		APIRateLimitRPS:       50,
		APIRateLimitBurst:     100,
		APIMaxConcurrent:      64,
		APIBackpressureWaitMS: 100,
		APIMaxConnections:     256,

		BreakerEnabled:          true,
		BreakerMinRequests:      10,
		BreakerFailureRatio:     0.6,
		BreakerOpenTimeoutSec:   30,
		BreakerHalfOpenMaxCalls: 2,
	}
}

func applyEnv(cfg *Config) {
	cfg.APIPort = mustEnv("API_PORT", cfg.APIPort)
	cfg.LogLevel = mustEnv("LOG_LEVEL", cfg.LogLevel)

	cfg.OllamaURL = mustEnv("OLLAMA_URL", cfg.OllamaURL)
	cfg.OllamaGenModel = mustEnv("OLLAMA_GEN_MODEL", cfg.OllamaGenModel)
	cfg.OllamaEmbedModel = mustEnv("OLLAMA_EMBED_MODEL", cfg.OllamaEmbedModel)

	cfg.QdrantURL = mustEnv("QDRANT_URL", cfg.QdrantURL)
	cfg.QdrantCollection = mustEnv("QDRANT_COLLECTION", cfg.QdrantCollection)
	cfg.QdrantVectorSize = mustEnvInt("QDRANT_VECTOR_SIZE", cfg.QdrantVectorSize)

	cfg.RerankerURL = mustEnv("RERANKER_URL", cfg.RerankerURL)
	cfg.RerankerModel = mustEnv("RERANKER_MODEL", cfg.RerankerModel)
	cfg.RerankerBatchSize = mustEnvInt("RERANKER_BATCH_SIZE", cfg.RerankerBatchSize)
	cfg.RerankerParallel = mustEnvInt("RERANKER_PARALLEL", cfg.RerankerParallel)

	cfg.Neo4jURI = mustEnv("NEO4J_URI", cfg.Neo4jURI)
	cfg.Neo4jUsername = mustEnv("NEO4J_USERNAME", cfg.Neo4jUsername)
	cfg.Neo4jPassword = mustEnv("NEO4J_PASSWORD", cfg.Neo4jPassword)
	cfg.Neo4jDatabase = mustEnv("NEO4J_DATABASE", cfg.Neo4jDatabase)

	cfg.QATopK = mustEnvInt("QA_TOP_K", cfg.QATopK)
	cfg.QARerankTopN = mustEnvInt("QA_RERANK_TOP_N", cfg.QARerankTopN)
	cfg.QAMaxGraphHops = mustEnvInt("QA_MAX_GRAPH_HOPS", cfg.QAMaxGraphHops)
	cfg.QAContextBudget = mustEnvInt("QA_CONTEXT_BUDGET", cfg.QAContextBudget)
	cfg.QAStageTimeoutMS = mustEnvInt("QA_STAGE_TIMEOUT_MS", cfg.QAStageTimeoutMS)
	cfg.QADryRun = mustEnvBool("QA_DRY_RUN", cfg.QADryRun)

	cfg.APIRateLimitRPS = mustEnvFloat("API_RATE_LIMIT_RPS", cfg.APIRateLimitRPS)
	cfg.APIRateLimitBurst = mustEnvInt("API_RATE_LIMIT_BURST", cfg.APIRateLimitBurst)
	cfg.APIMaxConcurrent = mustEnvInt("API_MAX_CONCURRENT", cfg.APIMaxConcurrent)
	cfg.APIBackpressureWaitMS = mustEnvInt("API_BACKPRESSURE_WAIT_MS", cfg.APIBackpressureWaitMS)
	cfg.APIMaxConnections = mustEnvInt("API_MAX_CONNECTIONS", cfg.APIMaxConnections)

	cfg.BreakerEnabled = mustEnvBool("BREAKER_ENABLED", cfg.BreakerEnabled)
	cfg.BreakerMinRequests = mustEnvInt("BREAKER_MIN_REQUESTS", cfg.BreakerMinRequests)
	cfg.BreakerFailureRatio = mustEnvFloat("BREAKER_FAILURE_RATIO", cfg.BreakerFailureRatio)
	cfg.BreakerOpenTimeoutSec = mustEnvInt("BREAKER_OPEN_TIMEOUT_SECONDS", cfg.BreakerOpenTimeoutSec)
	cfg.BreakerHalfOpenMaxCalls = mustEnvInt("BREAKER_HALF_OPEN_MAX_CALLS", cfg.BreakerHalfOpenMaxCalls)
}

type fileConfig struct {
	APIPort  *string `yaml:"api_port"`
	LogLevel *string `yaml:"log_level"`

	OllamaURL        *string `yaml:"ollama_url"`
	OllamaGenModel   *string `yaml:"ollama_gen_model"`
	OllamaEmbedModel *string `yaml:"ollama_embed_model"`

	QdrantURL        *string `yaml:"qdrant_url"`
	QdrantCollection *string `yaml:"qdrant_collection"`
	QdrantVectorSize *int    `yaml:"qdrant_vector_size"`

	RerankerURL       *string `yaml:"reranker_url"`
	RerankerModel     *string `yaml:"reranker_model"`
	RerankerBatchSize *int    `yaml:"reranker_batch_size"`
	RerankerParallel  *int    `yaml:"reranker_parallel"`

	Neo4jURI      *string `yaml:"neo4j_uri"`
	Neo4jUsername *string `yaml:"neo4j_username"`
	Neo4jPassword *string `yaml:"neo4j_password"`
	Neo4jDatabase *string `yaml:"neo4j_database"`

	QATopK           *int  `yaml:"qa_top_k"`
	QARerankTopN     *int  `yaml:"qa_rerank_top_n"`
	QAMaxGraphHops   *int  `yaml:"qa_max_graph_hops"`
	QAContextBudget  *int  `yaml:"qa_context_budget"`
	QAStageTimeoutMS *int  `yaml:"qa_stage_timeout_ms"`
	QADryRun         *bool `yaml:"qa_dry_run"`

	APIRateLimitRPS       *float64 `yaml:"api_rate_limit_rps"`
	APIRateLimitBurst     *int     `yaml:"api_rate_limit_burst"`
	APIMaxConcurrent      *int     `yaml:"api_max_concurrent"`
	APIBackpressureWaitMS *int     `yaml:"api_backpressure_wait_ms"`
	APIMaxConnections     *int     `yaml:"api_max_connections"`

	BreakerEnabled          *bool    `yaml:"breaker_enabled"`
	BreakerMinRequests      *int     `yaml:"breaker_min_requests"`
	BreakerFailureRatio     *float64 `yaml:"breaker_failure_ratio"`
	BreakerOpenTimeoutSec   *int     `yaml:"breaker_open_timeout_seconds"`
	BreakerHalfOpenMaxCalls *int     `yaml:"breaker_half_open_max_calls"`
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var file fileConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return err
	}

	setString(&cfg.APIPort, file.APIPort)
	setString(&cfg.LogLevel, file.LogLevel)

	setString(&cfg.OllamaURL, file.OllamaURL)
	setString(&cfg.OllamaGenModel, file.OllamaGenModel)
	setString(&cfg.OllamaEmbedModel, file.OllamaEmbedModel)

	setString(&cfg.QdrantURL, file.QdrantURL)
	setString(&cfg.QdrantCollection, file.QdrantCollection)
	setInt(&cfg.QdrantVectorSize, file.QdrantVectorSize)

	setString(&cfg.RerankerURL, file.RerankerURL)
	setString(&cfg.RerankerModel, file.RerankerModel)
	setInt(&cfg.RerankerBatchSize, file.RerankerBatchSize)
	setInt(&cfg.RerankerParallel, file.RerankerParallel)

	setString(&cfg.Neo4jURI, file.Neo4jURI)
	setString(&cfg.Neo4jUsername, file.Neo4jUsername)
	setString(&cfg.Neo4jPassword, file.Neo4jPassword)
	setString(&cfg.Neo4jDatabase, file.Neo4jDatabase)

	setInt(&cfg.QATopK, file.QATopK)
	setInt(&cfg.QARerankTopN, file.QARerankTopN)
	setInt(&cfg.QAMaxGraphHops, file.QAMaxGraphHops)
	setInt(&cfg.QAContextBudget, file.QAContextBudget)
	setInt(&cfg.QAStageTimeoutMS, file.QAStageTimeoutMS)
	setBool(&cfg.QADryRun, file.QADryRun)

	setFloat(&cfg.APIRateLimitRPS, file.APIRateLimitRPS)
	setInt(&cfg.APIRateLimitBurst, file.APIRateLimitBurst)
	setInt(&cfg.APIMaxConcurrent, file.APIMaxConcurrent)
	setInt(&cfg.APIBackpressureWaitMS, file.APIBackpressureWaitMS)
	setInt(&cfg.APIMaxConnections, file.APIMaxConnections)

	setBool(&cfg.BreakerEnabled, file.BreakerEnabled)
	setInt(&cfg.BreakerMinRequests, file.BreakerMinRequests)
	setFloat(&cfg.BreakerFailureRatio, file.BreakerFailureRatio)
	setInt(&cfg.BreakerOpenTimeoutSec, file.BreakerOpenTimeoutSec)
	setInt(&cfg.BreakerHalfOpenMaxCalls, file.BreakerHalfOpenMaxCalls)

	return nil
}

func (c Config) validate() error {
	if c.OllamaURL == "" || c.QdrantURL == "" || c.RerankerURL == "" || c.Neo4jURI == "" {
		return fmt.Errorf("config: all upstream endpoints must be set")
	}
	if c.QdrantVectorSize <= 0 {
		return fmt.Errorf("config: qdrant vector size must be positive, got %d", c.QdrantVectorSize)
	}
	if c.QATopK <= 0 || c.QARerankTopN <= 0 {
		return fmt.Errorf("config: qa top_k and rerank_top_n must be positive")
	}
	if c.QAContextBudget <= 0 {
		return fmt.Errorf("config: qa context budget must be positive, got %d", c.QAContextBudget)
	}
	if c.BreakerFailureRatio <= 0 || c.BreakerFailureRatio > 1 {
		return fmt.Errorf("config: breaker failure ratio must be in (0, 1], got %v", c.BreakerFailureRatio)
	}
	return nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setFloat(dst *float64, src *float64) {
	if src != nil {
		*dst = *src
	}
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}

func mustEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func mustEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func mustEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}
