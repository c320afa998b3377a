package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/sirupsen/logrus"

	"github.com/iWorld-y/risk_radar/internal/fault"
	"github.com/iWorld-y/risk_radar/internal/logger"
	"github.com/iWorld-y/risk_radar/internal/metrics"
	"github.com/iWorld-y/risk_radar/internal/model"
	"github.com/iWorld-y/risk_radar/internal/retry"
)

// Client 在具体 Searcher 之上叠加重试、单次超时与结果规整
type Client struct {
	searcher Searcher
	policy   retry.Policy
	timeout  time.Duration
	metrics  *metrics.Collector
}

// Option 客户端选项
type Option func(*Client)

// WithTimeout 单次调用超时
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithMetrics 注入指标收集器
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient 创建搜索客户端
func NewClient(s Searcher, policy retry.Policy, opts ...Option) *Client {
	c := &Client{searcher: s, policy: policy}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Search 为一个实体执行检索。
//
// 致命错误（鉴权失败、缺少凭证）原样返回，调用方应终止运行；
// 重试耗尽或永久错误返回空结果与非致命错误，调用方只计数。
func (c *Client) Search(ctx context.Context, q model.Query, maxResults int) ([]model.SearchResult, error) {
	log := logger.Log.WithFields(logrus.Fields{"component": "search", "entity": q.EntityID})

	policy := c.policy
	policy.OnRetry = func(attempt int, err error) {
		log.Warnf("搜索失败，第 %d 次重试: %v", attempt, err)
	}

	var resp *Response
	err := policy.Do(ctx, func(ctx context.Context) error {
		callCtx := ctx
		if c.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, c.timeout)
			defer cancel()
		}
		r, err := c.searcher.Search(callCtx, &Request{Query: q.SearchTerm, Topic: "news", MaxResults: maxResults})
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				return fault.Transient(fault.ReasonTimeout, "search %q timed out", q.SearchTerm)
			}
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		switch {
		case fault.IsFatal(err):
			c.metrics.SearchDone("fatal")
			log.Errorf("搜索鉴权失败: %v", err)
			return nil, err
		case fault.IsPermanent(err):
			c.metrics.SearchDone("permanent")
		default:
			c.metrics.SearchDone("exhausted")
		}
		log.Warnf("搜索放弃，结果为空: %v", err)
		return nil, fmt.Errorf("search %q: %w", q.SearchTerm, err)
	}
	c.metrics.SearchDone("ok")

	out := make([]model.SearchResult, 0, len(resp.Results))
	seen := make(map[string]bool, len(resp.Results))
	for _, r := range resp.Results {
		u := strings.TrimSpace(r.URL)
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, model.SearchResult{
			URL:         u,
			Title:       r.Title,
			Source:      r.Source,
			Snippet:     r.Content,
			PublishedAt: ParseDate(r.PublishedDate),
		})
		if maxResults > 0 && len(out) >= maxResults {
			break
		}
	}
	log.Infof("搜索完成，获得 %d 条结果", len(out))
	return out, nil
}

// serpapi 的日期格式，例如 "01/02/2025, 08:00 AM, +0000 UTC"
const serpDateLayout = "01/02/2006, 03:04 PM, -0700 MST"

// ParseDate 尽力解析各搜索源的日期字符串，失败返回零值
func ParseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(serpDateLayout, s); err == nil {
		return t.UTC()
	}
	if t, err := dateparse.ParseAny(s); err == nil {
		return t.UTC()
	}
	return time.Time{}
}
