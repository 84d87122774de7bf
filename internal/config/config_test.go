package config

import "testing"

func validConfig() Config {
	cfg := Config{
		HTTP:     HTTPConfig{Port: 8080},
		Database: DatabaseConfig{Addrs: []string{"localhost:6379"}},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := validConfig()
	cfg.HTTP.Port = 0

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid port")
	}
}

func TestValidate_MissingAddrs(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Addrs = nil

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing database addrs")
	}
}

func TestValidate_AlphaOutOfRange(t *testing.T) {
	for _, alpha := range []float64{-0.1, 1.5} {
		cfg := validConfig()
		cfg.Retrieval.Alpha = alpha

		if err := cfg.Validate(); err == nil {
			t.Errorf("expected error for alpha=%v", alpha)
		}
	}
}

func TestValidate_ValidAlphaBounds(t *testing.T) {
	// 0 is replaced by the default before validation; 1 must pass as-is.
	cfg := validConfig()
	cfg.Retrieval.Alpha = 1.0

	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error for alpha=1: %v", err)
	}
}

func TestValidate_InvalidReranker(t *testing.T) {
	cfg := validConfig()
	cfg.Retrieval.Reranker = "cross-encoder"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for unknown reranker")
	}

	expected := `retrieval.reranker must be "bm25" or "llm", got "cross-encoder"`
	if err.Error() != expected {
		t.Errorf("unexpected error message:\ngot:  %q\nwant: %q", err.Error(), expected)
	}
}

func TestValidate_ValidRerankers(t *testing.T) {
	for _, kind := range []string{"bm25", "llm"} {
		t.Run("reranker="+kind, func(t *testing.T) {
			cfg := validConfig()
			cfg.Retrieval.Reranker = kind

			if err := cfg.Validate(); err != nil {
				t.Fatalf("unexpected error for reranker %q: %v", kind, err)
			}
		})
	}
}

func TestValidate_NonPositiveKValues(t *testing.T) {
	cfg := validConfig()
	cfg.Evaluation.KValues = []int{5, 0}

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-positive k value")
	}
}

func TestValidate_UnsupportedKValue(t *testing.T) {
	// The metrics report carries fixed per-K fields; any other cutoff would
	// be computed and then silently dropped, so reject it up front.
	cfg := validConfig()
	cfg.Evaluation.KValues = []int{5, 3}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for unsupported k value")
	}

	expected := "evaluation.k_values must be drawn from [5 10 15], got 3"
	if err.Error() != expected {
		t.Errorf("unexpected error message:\ngot:  %q\nwant: %q", err.Error(), expected)
	}
}

func TestApplyDefaults_NegativeVocabSizeUncapped(t *testing.T) {
	cfg := Config{}
	cfg.Sparse.MaxVocabSize = -1
	cfg.ApplyDefaults()

	if cfg.Sparse.MaxVocabSize != -1 {
		t.Errorf("expected negative vocab size preserved (uncapped), got %d", cfg.Sparse.MaxVocabSize)
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 10 {
		t.Errorf("expected ReadTimeoutSec=10, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.HTTP.WriteTimeoutSec != 30 {
		t.Errorf("expected WriteTimeoutSec=30, got %d", cfg.HTTP.WriteTimeoutSec)
	}
	if cfg.Retrieval.Alpha != 0.7 {
		t.Errorf("expected Alpha=0.7, got %v", cfg.Retrieval.Alpha)
	}
	if cfg.Retrieval.RRFK != 60 {
		t.Errorf("expected RRFK=60, got %d", cfg.Retrieval.RRFK)
	}
	if cfg.Retrieval.FusionLimit != 30 {
		t.Errorf("expected FusionLimit=30, got %d", cfg.Retrieval.FusionLimit)
	}
	if cfg.Retrieval.ChannelLimit != 60 {
		t.Errorf("expected ChannelLimit=2*FusionLimit=60, got %d", cfg.Retrieval.ChannelLimit)
	}
	if cfg.Retrieval.RerankLimit != 10 {
		t.Errorf("expected RerankLimit=10, got %d", cfg.Retrieval.RerankLimit)
	}
	if cfg.Retrieval.Reranker != "bm25" {
		t.Errorf("expected Reranker=bm25, got %q", cfg.Retrieval.Reranker)
	}
	if cfg.Sparse.MaxVocabSize != 10000 {
		t.Errorf("expected MaxVocabSize=10000, got %d", cfg.Sparse.MaxVocabSize)
	}
	if cfg.Sparse.RebuildSampleSize != 1000 {
		t.Errorf("expected RebuildSampleSize=1000, got %d", cfg.Sparse.RebuildSampleSize)
	}
	if cfg.Evaluation.RelevanceThreshold != 0.5 {
		t.Errorf("expected RelevanceThreshold=0.5, got %v", cfg.Evaluation.RelevanceThreshold)
	}
	if len(cfg.Evaluation.KValues) != 3 || cfg.Evaluation.KValues[0] != 5 {
		t.Errorf("expected KValues=[5 10 15], got %v", cfg.Evaluation.KValues)
	}
	if cfg.Index.HNSWM != 32 {
		t.Errorf("expected HNSWM=32, got %d", cfg.Index.HNSWM)
	}
	if cfg.Index.HNSWEFConstruct != 400 {
		t.Errorf("expected HNSWEFConstruct=400, got %d", cfg.Index.HNSWEFConstruct)
	}
	if cfg.LLM.Dimensions != 1536 {
		t.Errorf("expected Dimensions=1536, got %d", cfg.LLM.Dimensions)
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("SHOPSEARCH_TEST_KEY", "sekret")

	in := []byte("api_key: \"${SHOPSEARCH_TEST_KEY}\"\nbase_url: \"${SHOPSEARCH_TEST_URL:-https://fallback}\"\n")
	out := string(expandEnvVars(in))

	want := "api_key: \"sekret\"\nbase_url: \"https://fallback\"\n"
	if out != want {
		t.Errorf("expandEnvVars:\ngot:  %q\nwant: %q", out, want)
	}
}
