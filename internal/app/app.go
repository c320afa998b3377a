// Package app 根据配置组装各组件
package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/model"
	"golang.org/x/time/rate"

	"github.com/iWorld-y/risk_radar/internal/config"
	"github.com/iWorld-y/risk_radar/internal/embed"
	"github.com/iWorld-y/risk_radar/internal/engine"
	"github.com/iWorld-y/risk_radar/internal/extract"
	"github.com/iWorld-y/risk_radar/internal/fault"
	"github.com/iWorld-y/risk_radar/internal/logger"
	"github.com/iWorld-y/risk_radar/internal/metrics"
	dm "github.com/iWorld-y/risk_radar/internal/model"
	"github.com/iWorld-y/risk_radar/internal/rag"
	"github.com/iWorld-y/risk_radar/internal/report"
	"github.com/iWorld-y/risk_radar/internal/retry"
	"github.com/iWorld-y/risk_radar/internal/risk"
	"github.com/iWorld-y/risk_radar/internal/search"
	"github.com/iWorld-y/risk_radar/internal/search/factory"
	"github.com/iWorld-y/risk_radar/internal/sentiment"
	"github.com/iWorld-y/risk_radar/internal/store"
	"github.com/iWorld-y/risk_radar/internal/vectordb"
	"github.com/iWorld-y/risk_radar/internal/vectordb/postgres"
	"github.com/iWorld-y/risk_radar/internal/vectordb/sqlite"
)

// App 组装完成的应用
type App struct {
	Config  *config.Config
	Engine  *engine.Engine
	Store   *store.Store
	Metrics *metrics.Collector
	Latest  *report.Latest
	Sink    report.Sink

	backend vectordb.Backend
}

// New 校验配置并组装完整流水线
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := metrics.New()

	st, backend, err := newStore(ctx, cfg, m)
	if err != nil {
		return nil, err
	}

	searcher, err := factory.NewSearcher(&cfg.Search)
	if err != nil {
		backend.Close()
		return nil, fmt.Errorf("搜索客户端初始化失败: %w", err)
	}
	searchClient := search.NewClient(searcher, retry.Policy{
		MaxAttempts: cfg.Search.MaxRetries,
		Backoff:     retry.Exponential(cfg.Search.Backoff, 30*time.Second),
	}, search.WithTimeout(cfg.Search.Timeout), search.WithMetrics(m))

	parser := extract.NewHTTPParser(&http.Client{Timeout: cfg.Extract.TaskTimeout}, cfg.Extract.UserAgent)
	extractor := extract.NewExtractor(parser,
		extract.WithBlocklist(extract.NewBlocklist(cfg.Extract.Blocklist)),
		extract.WithMinContent(cfg.Extract.MinContentLength),
		extract.WithRetry(retry.Policy{
			MaxAttempts: 1 + cfg.Extract.MaxRetries,
			Backoff:     retry.Fixed(cfg.Extract.Backoff),
		}),
	)
	pool := extract.NewPool(extractor, extract.PoolConfig{
		Workers:     cfg.Extract.Workers,
		TaskTimeout: cfg.Extract.TaskTimeout,
		PoolTimeout: cfg.Extract.PoolTimeout,
	}, m)

	scorer, err := newSentiment(ctx, cfg)
	if err != nil {
		backend.Close()
		return nil, err
	}

	queries := make([]dm.Query, len(cfg.Entities))
	for i, e := range cfg.Entities {
		queries[i] = dm.Query{EntityID: e.Name, SearchTerm: e.Term()}
	}
	eng, err := engine.NewEngine(engine.Deps{
		Search:    searchClient,
		Pool:      pool,
		Sentiment: scorer,
		Risk:      risk.NewScorer(nil),
		Store:     st,
		Metrics:   m,
	}, engine.Options{
		Entities:           queries,
		Keywords:           cfg.Keywords,
		MaxResults:         cfg.Search.MaxResults,
		ScoringConcurrency: cfg.Pipeline.ScoringConcurrency,
		BatchSize:          cfg.Pipeline.BatchSize,
		Overwrite:          cfg.Pipeline.Overwrite,
		RunTimeout:         cfg.Pipeline.RunTimeout,
	})
	if err != nil {
		backend.Close()
		return nil, err
	}

	latest := &report.Latest{}
	sinks := report.Multi{latest}
	if cfg.Report.OutputDir != "" {
		sinks = append(sinks, report.NewFileSink(cfg.Report.OutputDir))
	}

	return &App{
		Config:  cfg,
		Engine:  eng,
		Store:   st,
		Metrics: m,
		Latest:  latest,
		Sink:    sinks,
		backend: backend,
	}, nil
}

// OpenStore 只组装向量库与向量化客户端，供检索与统计使用
func OpenStore(ctx context.Context, cfg *config.Config) (*store.Store, func() error, error) {
	st, backend, err := newStore(ctx, cfg, nil)
	if err != nil {
		return nil, nil, err
	}
	return st, backend.Close, nil
}

// Close 释放底层连接
func (a *App) Close() error {
	if a.backend == nil {
		return nil
	}
	return a.backend.Close()
}

func newStore(ctx context.Context, cfg *config.Config, m *metrics.Collector) (*store.Store, vectordb.Backend, error) {
	backend, err := NewBackend(ctx, cfg.VectorDB)
	if err != nil {
		return nil, nil, err
	}
	embedder, err := NewEmbedder(ctx, cfg.Embedding)
	if err != nil {
		backend.Close()
		return nil, nil, err
	}
	st := store.New(backend, embedder,
		store.WithConcurrency(cfg.Pipeline.StorageConcurrency),
		store.WithEmbedDelay(cfg.Embedding.Delay),
		store.WithMetrics(m),
	)
	return st, backend, nil
}

// NewBackend 按驱动创建向量库
func NewBackend(ctx context.Context, cfg config.VectorDBConfig) (vectordb.Backend, error) {
	switch strings.ToLower(cfg.Driver) {
	case "memory":
		return vectordb.NewMemory(), nil
	case "sqlite":
		b, err := sqlite.New(ctx, cfg.DSN, cfg.Table)
		if err != nil {
			return nil, fmt.Errorf("向量库初始化失败: %w", err)
		}
		return b, nil
	case "postgres":
		b, err := postgres.New(ctx, cfg.DSN, cfg.Table)
		if err != nil {
			return nil, fmt.Errorf("向量库初始化失败: %w", err)
		}
		return b, nil
	default:
		return nil, fault.Fatal(fault.ReasonMissingConfig, "unsupported vectordb driver: %s", cfg.Driver)
	}
}

// NewEmbedder 按 provider 创建向量化客户端
func NewEmbedder(ctx context.Context, cfg config.EmbeddingConfig) (embedding.Embedder, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		e, err := embed.NewOpenAI(ctx, embed.OpenAIConfig{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			BaseURL:    cfg.BaseURL,
			Dimensions: cfg.Dimensions,
			MaxChars:   cfg.MaxChars,
			HTTPClient: &http.Client{Timeout: cfg.Timeout},
		})
		if err != nil {
			return nil, fmt.Errorf("向量化客户端初始化失败: %w", err)
		}
		return e, nil
	case "hashing":
		return embed.NewHashing(cfg.Dimensions, cfg.MaxChars), nil
	default:
		return nil, fault.Fatal(fault.ReasonMissingConfig, "unsupported embedding provider: %s", cfg.Provider)
	}
}

func newSentiment(ctx context.Context, cfg *config.Config) (sentiment.Scorer, error) {
	method := strings.ToLower(cfg.Sentiment.Method)
	if method == "" || method == "lexicon" {
		return sentiment.NewLexicon(), nil
	}

	cm, err := NewChatModel(ctx, cfg.LLM)
	if err != nil {
		return nil, err
	}
	llm := sentiment.NewLLM(cm,
		sentiment.WithLimiter(newLLMLimiter(cfg.Concurrency)),
		sentiment.WithMaxChars(cfg.Sentiment.MaxChars),
		sentiment.WithCallTimeout(cfg.Sentiment.Timeout),
	)
	return sentiment.New(method, llm)
}

// NewAgent 创建检索增强问答 Agent，未配置 LLM 时回答降级为文章列表
func NewAgent(ctx context.Context, cfg *config.Config, retriever rag.Retriever) (*rag.Agent, error) {
	cm, err := NewChatModel(ctx, cfg.LLM)
	if err != nil {
		return nil, err
	}
	return rag.New(retriever, cm,
		rag.WithTopK(cfg.RAG.TopK),
		rag.WithMaxArticles(cfg.RAG.MaxArticles),
		rag.WithMaxContextChars(cfg.RAG.MaxContextChars),
		rag.WithTimeout(cfg.RAG.Timeout),
		rag.WithLimiter(newLLMLimiter(cfg.Concurrency)),
	), nil
}

// newLLMLimiter 按 RPM 限速、QPS 作突发；RPM 未配置时不限速
func newLLMLimiter(cfg config.ConcurrencyConfig) *rate.Limiter {
	limit := rate.Inf
	if cfg.RPM > 0 {
		limit = rate.Limit(float64(cfg.RPM) / 60.0)
	}
	return rate.NewLimiter(limit, max(1, cfg.QPS))
}

// NewChatModel 创建 LLM；未配置 api key 时返回 nil，打分会降级为词典
func NewChatModel(ctx context.Context, cfg config.LLMConfig) (model.BaseChatModel, error) {
	if cfg.APIKey == "" {
		logger.Log.Warn("未配置 LLM api key，情感打分使用词典降级，问答只返回文章列表")
		return nil, nil
	}
	cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("LLM 初始化失败: %w", err)
	}
	return cm, nil
}
