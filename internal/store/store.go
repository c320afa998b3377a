// Package store 去重与向量入库：按 URL 计算内容寻址 id，已存在的文章不再向量化与写入
package store

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/iWorld-y/risk_radar/internal/embed"
	"github.com/iWorld-y/risk_radar/internal/fault"
	"github.com/iWorld-y/risk_radar/internal/logger"
	"github.com/iWorld-y/risk_radar/internal/metrics"
	"github.com/iWorld-y/risk_radar/internal/model"
	"github.com/iWorld-y/risk_radar/internal/vectordb"
)

const previewChars = 500

// ID 文章的去重 id：md5(url)
func ID(url string) string {
	sum := md5.Sum([]byte(url))
	return hex.EncodeToString(sum[:])
}

// LegacyID 旧版 id：md5(url + title)，仅用于存在性检查
func LegacyID(url, title string) string {
	sum := md5.Sum([]byte(url + title))
	return hex.EncodeToString(sum[:])
}

// Result 一批入库的计数，Success + Error + Duplicate == Total
type Result struct {
	Success   int `json:"success"`
	Error     int `json:"error"`
	Duplicate int `json:"duplicate"`
	Total     int `json:"total"`
}

// Store 去重器与向量库
type Store struct {
	backend     vectordb.Backend
	embedder    embedding.Embedder
	concurrency int
	limiter     *rate.Limiter
	metrics     *metrics.Collector
}

// Option Store 选项
type Option func(*Store)

// WithConcurrency 同时进行的向量化+写入数量
func WithConcurrency(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithEmbedDelay 两次向量化调用之间的最小间隔
func WithEmbedDelay(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.limiter = rate.NewLimiter(rate.Every(d), 1)
		}
	}
}

// WithMetrics 注入指标收集器
func WithMetrics(m *metrics.Collector) Option {
	return func(s *Store) { s.metrics = m }
}

// New 创建 Store
func New(backend vectordb.Backend, embedder embedding.Embedder, opts ...Option) *Store {
	s := &Store{backend: backend, embedder: embedder, concurrency: 4}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type outcome int

const (
	stored outcome = iota
	failed
	duplicate
)

// StoreBatch 批量入库。
// 单篇失败只计入 Error，不影响其他文章；非空批次全部失败时返回存储子系统错误。
// 存在性检查与写入不是原子的，并发运行争抢同一 URL 时允许重复写同一 id。
func (s *Store) StoreBatch(ctx context.Context, items []model.Scored, overwrite bool) (Result, error) {
	res := Result{Total: len(items)}
	if len(items) == 0 {
		return res, nil
	}
	log := logger.Component("store")

	var (
		mu   sync.Mutex
		seen sync.Map
	)
	record := func(o outcome) {
		mu.Lock()
		defer mu.Unlock()
		switch o {
		case stored:
			res.Success++
		case failed:
			res.Error++
		case duplicate:
			res.Duplicate++
		}
	}

	g := new(errgroup.Group)
	g.SetLimit(s.concurrency)
	for _, item := range items {
		g.Go(func() error {
			id := ID(item.Article.URL)
			if _, loaded := seen.LoadOrStore(id, struct{}{}); loaded {
				record(duplicate)
				return nil
			}
			o, err := s.storeOne(ctx, id, item, overwrite)
			if err != nil {
				log.Warnf("文章入库失败 %s: %v", item.Article.URL, err)
			}
			record(o)
			return nil
		})
	}
	g.Wait()

	s.metrics.Stored(res.Success, res.Error, res.Duplicate)
	log.Infof("批量入库完成: 成功 %d, 失败 %d, 重复 %d, 共 %d", res.Success, res.Error, res.Duplicate, res.Total)

	if res.Success == 0 && res.Error > 0 {
		return res, fault.Permanent(fault.ReasonStorageFailure, "all %d writes in batch failed", res.Error)
	}
	return res, nil
}

func (s *Store) storeOne(ctx context.Context, id string, item model.Scored, overwrite bool) (outcome, error) {
	if !overwrite {
		exists, err := s.exists(ctx, id, item.Article)
		if err != nil {
			// 检查失败时照常写入，最坏情况是同一 id 被覆盖一次
			logger.Component("store").Warnf("存在性检查失败 %s: %v", id, err)
		}
		if exists {
			return duplicate, nil
		}
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return failed, err
		}
	}
	vec, err := embed.Embed(ctx, s.embedder, item.Article.FullText())
	if err != nil {
		return failed, fmt.Errorf("embed: %w", err)
	}
	rec := vectordb.Record{ID: id, Vector: vec, Metadata: Metadata(item)}
	if err := s.backend.Upsert(ctx, rec); err != nil {
		return failed, fmt.Errorf("upsert: %w", err)
	}
	return stored, nil
}

func (s *Store) exists(ctx context.Context, id string, a model.Article) (bool, error) {
	ok, err := s.backend.Exists(ctx, id)
	if err != nil || ok {
		return ok, err
	}
	return s.backend.Exists(ctx, LegacyID(a.URL, a.Title))
}

// Metadata 写入向量库的元数据，只含字符串与数值以便各后端原样往返
func Metadata(item model.Scored) map[string]any {
	a, an := item.Article, item.Analysis
	meta := map[string]any{
		"url":                a.URL,
		"title":              a.Title,
		"source":             a.Source,
		"entity":             a.Entity,
		"text_preview":       embed.Truncate(a.Text, previewChars),
		"sentiment_score":    an.Sentiment.Score,
		"sentiment_category": string(an.Sentiment.Category),
		"sentiment_method":   an.Sentiment.Method,
		"risk_score":         an.RiskScore,
		"risk_indicators":    strings.Join(an.RiskIndicators, "; "),
		"stored_at":          time.Now().UTC().Format(time.RFC3339),
	}
	if !a.PublishedAt.IsZero() {
		meta["published_at"] = a.PublishedAt.UTC().Format(time.RFC3339)
	}
	if len(a.Authors) > 0 {
		meta["authors"] = strings.Join(a.Authors, ", ")
	}
	if len(a.Keywords) > 0 {
		meta["keywords"] = strings.Join(a.Keywords, ", ")
	}
	return meta
}

// Search 语义检索
func (s *Store) Search(ctx context.Context, text string, topK int, filter map[string]string) ([]vectordb.Match, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fault.Permanent(fault.ReasonBadRequest, "empty search text")
	}
	if topK <= 0 {
		topK = 5
	}
	if err := vectordb.ValidateFilter(filter); err != nil {
		return nil, err
	}
	vec, err := embed.Embed(ctx, s.embedder, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return s.backend.Query(ctx, vec, topK, filter)
}

// Entities 库中出现过的实体
func (s *Store) Entities(ctx context.Context) ([]string, error) {
	return s.backend.Distinct(ctx, "entity")
}

// Dates 库中文章的发布日期（YYYY-MM-DD），新的在前
func (s *Store) Dates(ctx context.Context) ([]string, error) {
	raw, err := s.backend.Distinct(ctx, vectordb.FilterPublishedAt)
	if err != nil {
		return nil, err
	}
	days := make([]string, 0, len(raw))
	for _, v := range raw {
		if d, ok := vectordb.Day(v); ok {
			days = append(days, d)
		}
	}
	days = vectordb.SortedValues(days)
	slices.Reverse(days)
	return days, nil
}

// Stats 向量库统计
func (s *Store) Stats(ctx context.Context) (vectordb.Stats, error) {
	return s.backend.Stats(ctx)
}
