package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/iWorld-y/risk_radar/internal/fault"
)

func TestLoadConfig_MergesFileOverDefaults(t *testing.T) {
	t.Setenv(serpAPIKeyEnv, "serp-from-env")
	t.Setenv(openAIKeyEnv, "sk-env")
	t.Setenv(databaseDSNEnv, "")

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
entities:
  - name: Tesla Inc
    search_term: Tesla stock
keywords: [recall]
extract:
  workers: 8
  task_timeout: 5s
vectordb:
  driver: memory
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	wantEntities := []EntityConfig{{Name: "Tesla Inc", SearchTerm: "Tesla stock"}}
	if diff := cmp.Diff(wantEntities, cfg.Entities); diff != "" {
		t.Errorf("Entities mismatch (-want +got):\n%s", diff)
	}
	if cfg.Extract.Workers != 8 || cfg.Extract.TaskTimeout != 5*time.Second {
		t.Errorf("Extract = %+v", cfg.Extract)
	}
	// 未覆盖的字段保留默认值
	if cfg.RAG.MaxArticles != 15 || cfg.RAG.Timeout != 90*time.Second {
		t.Errorf("RAG = %+v", cfg.RAG)
	}
	if cfg.Extract.MinContentLength != 200 {
		t.Errorf("MinContentLength = %d, want 200", cfg.Extract.MinContentLength)
	}
	if cfg.Search.SerpAPI.APIKey != "serp-from-env" {
		t.Errorf("SerpAPI.APIKey = %q", cfg.Search.SerpAPI.APIKey)
	}
	if cfg.LLM.APIKey != "sk-env" || cfg.Embedding.APIKey != "sk-env" {
		t.Errorf("openai key not applied: llm=%q embedding=%q", cfg.LLM.APIKey, cfg.Embedding.APIKey)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("LoadConfig() error = nil, want error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		ok     bool
	}{
		{"valid", func(c *Config) {}, true},
		{"missing serpapi key", func(c *Config) { c.Search.SerpAPI.APIKey = "" }, false},
		{"tavily without key", func(c *Config) { c.Search.Provider = "tavily" }, false},
		{"gnews needs no key", func(c *Config) { c.Search.Provider = "gnews"; c.Search.SerpAPI.APIKey = "" }, true},
		{"no entities", func(c *Config) { c.Entities = nil }, false},
		{"unknown method", func(c *Config) { c.Sentiment.Method = "magic" }, false},
		{"missing embedding key", func(c *Config) { c.Embedding.APIKey = "" }, false},
		{"hashing embedder", func(c *Config) { c.Embedding.APIKey = ""; c.Embedding.Provider = "hashing" }, true},
		{"unknown driver", func(c *Config) { c.VectorDB.Driver = "pinecone" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			c.Search.SerpAPI.APIKey = "k"
			c.Embedding.APIKey = "k"
			tt.mutate(c)
			err := c.Validate()
			if tt.ok && err != nil {
				t.Errorf("Validate() error = %v", err)
			}
			if !tt.ok {
				if err == nil {
					t.Fatal("Validate() error = nil, want fatal")
				}
				if !fault.IsFatal(err) {
					t.Errorf("Validate() error = %v, want fatal", err)
				}
			}
		})
	}
}
