package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/iWorld-y/risk_radar/internal/fault"
)

const (
	configPathEnv  = "RISK_RADAR_CONFIG"
	serpAPIKeyEnv  = "SERPAPI_KEY"
	tavilyKeyEnv   = "TAVILY_API_KEY"
	openAIKeyEnv   = "OPENAI_API_KEY"
	databaseDSNEnv = "DATABASE_DSN"
)

// Config 项目配置结构体
type Config struct {
	Entities    []EntityConfig    `yaml:"entities"`
	Keywords    []string          `yaml:"keywords"`
	Search      SearchConfig      `yaml:"search"`
	Extract     ExtractConfig     `yaml:"extract"`
	LLM         LLMConfig         `yaml:"llm"`
	Sentiment   SentimentConfig   `yaml:"sentiment"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	RAG         RAGConfig         `yaml:"rag"`
	VectorDB    VectorDBConfig    `yaml:"vectordb"`
	Pipeline    PipelineConfig    `yaml:"pipeline"`
	Report      ReportConfig      `yaml:"report"`
	Server      ServerConfig      `yaml:"server"`
	Log         LogConfig         `yaml:"log"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
}

// EntityConfig 被监控的实体，SearchTerm 为空时使用 Name
type EntityConfig struct {
	Name       string `yaml:"name"`
	SearchTerm string `yaml:"search_term"`
}

// Term 实际用于检索的关键词
func (e EntityConfig) Term() string {
	if e.SearchTerm != "" {
		return e.SearchTerm
	}
	return e.Name
}

// SearchConfig 搜索相关配置
type SearchConfig struct {
	Provider   string        `yaml:"provider"`
	MaxResults int           `yaml:"max_results"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	Backoff    time.Duration `yaml:"backoff"`
	SerpAPI    SerpAPIConfig `yaml:"serpapi"`
	Tavily     TavilyConfig  `yaml:"tavily"`
	SearXNG    SearXNGConfig `yaml:"searxng"`
	GNews      GNewsConfig   `yaml:"gnews"`
}

// SerpAPIConfig SerpAPI Google News 配置
type SerpAPIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// TavilyConfig Tavily 配置
type TavilyConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// SearXNGConfig SearXNG 配置
type SearXNGConfig struct {
	BaseURL string `yaml:"base_url"`
}

// GNewsConfig Google News RSS 配置
type GNewsConfig struct {
	BaseURL  string `yaml:"base_url"`
	Language string `yaml:"language"`
	Region   string `yaml:"region"`
}

// ExtractConfig 正文抽取配置
type ExtractConfig struct {
	Workers          int           `yaml:"workers"`
	TaskTimeout      time.Duration `yaml:"task_timeout"`
	PoolTimeout      time.Duration `yaml:"pool_timeout"`
	MinContentLength int           `yaml:"min_content_length"`
	MaxRetries       int           `yaml:"max_retries"`
	Backoff          time.Duration `yaml:"backoff"`
	UserAgent        string        `yaml:"user_agent"`
	Blocklist        []string      `yaml:"blocklist"`
}

// LLMConfig LLM 相关配置
type LLMConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
}

// SentimentConfig 情感打分配置，Method 取值 lexicon / llm / dual
type SentimentConfig struct {
	Method   string        `yaml:"method"`
	MaxChars int           `yaml:"max_chars"`
	Timeout  time.Duration `yaml:"timeout"`
}

// EmbeddingConfig 向量化服务配置，Provider 取值 openai / hashing
type EmbeddingConfig struct {
	Provider   string        `yaml:"provider"`
	BaseURL    string        `yaml:"base_url"`
	APIKey     string        `yaml:"api_key"`
	Model      string        `yaml:"model"`
	Dimensions int           `yaml:"dimensions"`
	MaxChars   int           `yaml:"max_chars"`
	Delay      time.Duration `yaml:"delay"`
	Timeout    time.Duration `yaml:"timeout"`
}

// RAGConfig 检索增强问答配置
type RAGConfig struct {
	TopK            int           `yaml:"top_k"`
	MaxArticles     int           `yaml:"max_articles"`
	MaxContextChars int           `yaml:"max_context_chars"`
	Timeout         time.Duration `yaml:"timeout"`
}

// VectorDBConfig 向量库配置，Driver 取值 memory / sqlite / postgres
type VectorDBConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
	Table  string `yaml:"table"`
}

// PipelineConfig 流水线运行参数
type PipelineConfig struct {
	RunTimeout         time.Duration `yaml:"run_timeout"`
	ScoringConcurrency int           `yaml:"scoring_concurrency"`
	StorageConcurrency int           `yaml:"storage_concurrency"`
	BatchSize          int           `yaml:"batch_size"`
	Overwrite          bool          `yaml:"overwrite"`
}

// ReportConfig 运行摘要输出配置
type ReportConfig struct {
	OutputDir string `yaml:"output_dir"`
}

// ServerConfig 常驻服务配置
type ServerConfig struct {
	HTTPAddr string        `yaml:"http_addr"`
	GRPCAddr string        `yaml:"grpc_addr"`
	Interval time.Duration `yaml:"interval"`
}

// LogConfig 日志相关配置
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// ConcurrencyConfig 外部调用的并发控制配置
type ConcurrencyConfig struct {
	QPS int `yaml:"qps"`
	RPM int `yaml:"rpm"`
}

// Default 返回带默认值的配置
func Default() *Config {
	return &Config{
		Entities: []EntityConfig{
			{Name: "Apple Inc"},
			{Name: "Microsoft Corporation"},
			{Name: "Goldman Sachs"},
			{Name: "JPMorgan Chase"},
			{Name: "Bank of America"},
		},
		Keywords: []string{"risk", "financial", "market", "crisis", "volatility"},
		Search: SearchConfig{
			Provider:   "serpapi",
			MaxResults: 5,
			Timeout:    30 * time.Second,
			MaxRetries: 3,
			Backoff:    time.Second,
			SerpAPI:    SerpAPIConfig{BaseURL: "https://serpapi.com/search"},
			Tavily:     TavilyConfig{BaseURL: "https://api.tavily.com/search"},
			SearXNG:    SearXNGConfig{BaseURL: "http://localhost:8888"},
			GNews:      GNewsConfig{BaseURL: "https://news.google.com/rss/search", Language: "en-US", Region: "US"},
		},
		Extract: ExtractConfig{
			Workers:          4,
			TaskTimeout:      30 * time.Second,
			PoolTimeout:      2 * time.Minute,
			MinContentLength: 200,
			MaxRetries:       2,
			Backoff:          time.Second,
			UserAgent:        "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			Blocklist: []string{
				"wsj.com", "bloomberg.com", "ft.com", "barrons.com",
				"seekingalpha.com", "economist.com", "nytimes.com",
			},
		},
		LLM: LLMConfig{BaseURL: "https://api.openai.com/v1", Model: "gpt-4o-mini"},
		Sentiment: SentimentConfig{
			Method:   "dual",
			MaxChars: 4000,
			Timeout:  30 * time.Second,
		},
		Embedding: EmbeddingConfig{
			Provider:   "openai",
			BaseURL:    "https://api.openai.com/v1",
			Model:      "text-embedding-3-small",
			Dimensions: 1536,
			MaxChars:   8000,
			Delay:      100 * time.Millisecond,
			Timeout:    30 * time.Second,
		},
		RAG:      RAGConfig{TopK: 10, MaxArticles: 15, MaxContextChars: 40000, Timeout: 90 * time.Second},
		VectorDB: VectorDBConfig{Driver: "sqlite", DSN: "data/risk_radar.db", Table: "news_vectors"},
		Pipeline: PipelineConfig{
			RunTimeout:         15 * time.Minute,
			ScoringConcurrency: 4,
			StorageConcurrency: 4,
			BatchSize:          32,
		},
		Report:      ReportConfig{OutputDir: "output"},
		Server:      ServerConfig{HTTPAddr: ":8000", GRPCAddr: ":9000", Interval: 6 * time.Hour},
		Log:         LogConfig{Level: "info"},
		Concurrency: ConcurrencyConfig{QPS: 2, RPM: 60},
	}
}

// LoadConfig 从指定路径加载配置；路径为空时读取 RISK_RADAR_CONFIG，均为空则只用默认值
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		// 未出现在文件中的字段保留默认值
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(serpAPIKeyEnv); v != "" {
		c.Search.SerpAPI.APIKey = v
	}
	if v := os.Getenv(tavilyKeyEnv); v != "" {
		c.Search.Tavily.APIKey = v
	}
	if v := os.Getenv(openAIKeyEnv); v != "" {
		if c.LLM.APIKey == "" {
			c.LLM.APIKey = v
		}
		if c.Embedding.APIKey == "" {
			c.Embedding.APIKey = v
		}
	}
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.VectorDB.DSN = v
	}
}

// Validate 校验运行所需的配置，缺失凭证属于部署缺陷，返回致命错误
func (c *Config) Validate() error {
	if len(c.Entities) == 0 {
		return fault.Fatal(fault.ReasonMissingConfig, "no entities configured")
	}
	for i, e := range c.Entities {
		if strings.TrimSpace(e.Term()) == "" {
			return fault.Fatal(fault.ReasonMissingConfig, "entity #%d has no name", i)
		}
	}

	switch strings.ToLower(c.Search.Provider) {
	case "serpapi":
		if c.Search.SerpAPI.APIKey == "" {
			return fault.Fatal(fault.ReasonMissingConfig, "serpapi api key is required (set %s)", serpAPIKeyEnv)
		}
	case "tavily":
		if c.Search.Tavily.APIKey == "" {
			return fault.Fatal(fault.ReasonMissingConfig, "tavily api key is required (set %s)", tavilyKeyEnv)
		}
	case "searxng":
		if c.Search.SearXNG.BaseURL == "" {
			return fault.Fatal(fault.ReasonMissingConfig, "searxng base_url is required")
		}
	case "gnews":
	default:
		return fault.Fatal(fault.ReasonMissingConfig, "unsupported search provider: %s", c.Search.Provider)
	}

	switch strings.ToLower(c.Sentiment.Method) {
	case "lexicon", "llm", "dual":
	default:
		return fault.Fatal(fault.ReasonMissingConfig, "unsupported sentiment method: %s", c.Sentiment.Method)
	}

	switch strings.ToLower(c.VectorDB.Driver) {
	case "memory":
	case "sqlite", "postgres":
		if c.VectorDB.DSN == "" {
			return fault.Fatal(fault.ReasonMissingConfig, "vectordb dsn is required for driver %s", c.VectorDB.Driver)
		}
	default:
		return fault.Fatal(fault.ReasonMissingConfig, "unsupported vectordb driver: %s", c.VectorDB.Driver)
	}

	switch strings.ToLower(c.Embedding.Provider) {
	case "openai":
		if c.Embedding.APIKey == "" {
			return fault.Fatal(fault.ReasonMissingConfig, "embedding api key is required (set %s)", openAIKeyEnv)
		}
	case "hashing":
	default:
		return fault.Fatal(fault.ReasonMissingConfig, "unsupported embedding provider: %s", c.Embedding.Provider)
	}
	if c.Embedding.Dimensions <= 0 {
		return fault.Fatal(fault.ReasonMissingConfig, "embedding dimensions must be positive")
	}
	return nil
}
