package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the shopsearch API configuration.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Database   DatabaseConfig   `yaml:"database"`
	LLM        LLMConfig        `yaml:"llm"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Sparse     SparseConfig     `yaml:"sparse"`
	Evaluation EvaluationConfig `yaml:"evaluation"`
	Index      IndexConfig      `yaml:"index"`
	Auth       AuthConfig       `yaml:"auth"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds vector store connection settings.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// LLMConfig holds the OpenAI-compatible provider settings.
type LLMConfig struct {
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	EmbeddingModel string `yaml:"embedding_model"`
	ChatModel      string `yaml:"chat_model"`
	Dimensions     int    `yaml:"dimensions"`
	User           string `yaml:"user"`
}

// RetrievalConfig holds fusion and reranking parameters.
type RetrievalConfig struct {
	// Alpha weights dense vs sparse RRF contributions, in [0, 1].
	Alpha float64 `yaml:"alpha"`
	// RRFK is the reciprocal rank fusion constant.
	RRFK int `yaml:"rrf_k"`
	// ChannelLimit is how many hits each channel query requests.
	ChannelLimit int `yaml:"channel_limit"`
	// FusionLimit caps each variant's fused list.
	FusionLimit int `yaml:"fusion_limit"`
	// RerankLimit caps the final reranked output.
	RerankLimit int `yaml:"rerank_limit"`
	// Reranker selects the implementation: bm25 (default) or llm.
	Reranker string `yaml:"reranker"`
}

// SparseConfig holds sparse vocabulary settings.
type SparseConfig struct {
	// MaxVocabSize caps the vocabulary by document-frequency rank. Unset
	// defaults to 10000; a negative value disables the cap.
	MaxVocabSize      int `yaml:"max_vocab_size"`
	RebuildSampleSize int `yaml:"rebuild_sample_size"`
	RebuildPageSize   int `yaml:"rebuild_page_size"`
}

// EvaluationConfig holds retrieval-quality evaluation settings.
type EvaluationConfig struct {
	RelevanceThreshold float64 `yaml:"relevance_threshold"`
	KValues            []int   `yaml:"k_values"`
}

// IndexConfig holds HNSW index settings.
type IndexConfig struct {
	HNSWM           int `yaml:"hnsw_m"`
	HNSWEFConstruct int `yaml:"hnsw_ef_construction"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.LLM.Dimensions <= 0 {
		c.LLM.Dimensions = 1536
	}
	if c.Retrieval.Alpha == 0 {
		c.Retrieval.Alpha = 0.7
	}
	if c.Retrieval.RRFK <= 0 {
		c.Retrieval.RRFK = 60
	}
	if c.Retrieval.FusionLimit <= 0 {
		c.Retrieval.FusionLimit = 30
	}
	if c.Retrieval.ChannelLimit <= 0 {
		c.Retrieval.ChannelLimit = 2 * c.Retrieval.FusionLimit
	}
	if c.Retrieval.RerankLimit <= 0 {
		c.Retrieval.RerankLimit = 10
	}
	if c.Retrieval.Reranker == "" {
		c.Retrieval.Reranker = "bm25"
	}
	if c.Sparse.MaxVocabSize == 0 {
		c.Sparse.MaxVocabSize = 10000
	}
	if c.Sparse.RebuildSampleSize <= 0 {
		c.Sparse.RebuildSampleSize = 1000
	}
	if c.Sparse.RebuildPageSize <= 0 {
		c.Sparse.RebuildPageSize = 100
	}
	if c.Evaluation.RelevanceThreshold <= 0 {
		c.Evaluation.RelevanceThreshold = 0.5
	}
	if len(c.Evaluation.KValues) == 0 {
		c.Evaluation.KValues = []int{5, 10, 15}
	}
	if c.Index.HNSWM <= 0 {
		c.Index.HNSWM = 32
	}
	if c.Index.HNSWEFConstruct <= 0 {
		c.Index.HNSWEFConstruct = 400
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	if c.Retrieval.Alpha < 0 || c.Retrieval.Alpha > 1 {
		return fmt.Errorf("retrieval.alpha must be in [0, 1], got %g", c.Retrieval.Alpha)
	}
	switch c.Retrieval.Reranker {
	case "bm25", "llm":
		// ok
	default:
		return fmt.Errorf("retrieval.reranker must be \"bm25\" or \"llm\", got %q", c.Retrieval.Reranker)
	}
	for _, k := range c.Evaluation.KValues {
		switch k {
		case 5, 10, 15:
			// ok
		default:
			return fmt.Errorf("evaluation.k_values must be drawn from [5 10 15], got %d", k)
		}
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
