// Package extract 负责把搜索结果中的 URL 抓取并解析为文章，
// 包括域名黑名单、最短正文阈值、瞬时失败重试以及有界并发的抽取池。
package extract

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iWorld-y/risk_radar/internal/fault"
	"github.com/iWorld-y/risk_radar/internal/logger"
	"github.com/iWorld-y/risk_radar/internal/model"
	"github.com/iWorld-y/risk_radar/internal/retry"
)

// Reason 抽取失败原因
type Reason string

const (
	ReasonBlocked             Reason = "blocked"
	ReasonInsufficientContent Reason = "insufficient_content"
	ReasonFetch               Reason = "fetch"
	ReasonTimeout             Reason = "timeout"
	ReasonInvalidURL          Reason = "invalid_url"
)

// Failure 单个 URL 的抽取失败
type Failure struct {
	URL    string
	Reason Reason
	Err    error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("extract %s: %s", f.URL, f.Reason)
	}
	return fmt.Sprintf("extract %s: %s: %v", f.URL, f.Reason, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// AsFailure 取出错误中的 *Failure
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	ok := errors.As(err, &f)
	return f, ok
}

// Parsed 解析器输出的原始文章数据
type Parsed struct {
	Title       string
	Text        string
	SiteName    string
	PublishedAt time.Time
	Authors     []string
	Keywords    []string
}

// Parser 抓取并解析一个 URL
type Parser interface {
	Parse(ctx context.Context, rawURL string) (*Parsed, error)
}

// Blocklist 已知会拒绝自动抓取的域名集合，构造后只读，可并发访问
type Blocklist struct {
	hosts map[string]struct{}
}

// NewBlocklist 创建黑名单
func NewBlocklist(hosts []string) *Blocklist {
	b := &Blocklist{hosts: make(map[string]struct{}, len(hosts))}
	for _, h := range hosts {
		h = strings.ToLower(strings.TrimSpace(h))
		h = strings.TrimPrefix(h, "www.")
		if h != "" {
			b.hosts[h] = struct{}{}
		}
	}
	return b
}

// Blocked 主机名或其任一上级域名在黑名单中即命中
func (b *Blocklist) Blocked(host string) bool {
	if b == nil || len(b.hosts) == 0 {
		return false
	}
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	for host != "" {
		if _, ok := b.hosts[host]; ok {
			return true
		}
		i := strings.IndexByte(host, '.')
		if i < 0 {
			break
		}
		host = host[i+1:]
	}
	return false
}

// Extractor 单篇文章抽取器
type Extractor struct {
	parser     Parser
	blocklist  *Blocklist
	minContent int
	policy     retry.Policy
	now        func() time.Time
}

// Option 抽取器选项
type Option func(*Extractor)

// WithBlocklist 设置域名黑名单
func WithBlocklist(b *Blocklist) Option { return func(e *Extractor) { e.blocklist = b } }

// WithMinContent 设置最短正文长度（字符数）
func WithMinContent(n int) Option { return func(e *Extractor) { e.minContent = n } }

// WithRetry 设置抓取重试策略
func WithRetry(p retry.Policy) Option { return func(e *Extractor) { e.policy = p } }

// NewExtractor 创建抽取器
func NewExtractor(p Parser, opts ...Option) *Extractor {
	e := &Extractor{
		parser:     p,
		minContent: 200,
		policy:     retry.None(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract 抽取单个 URL
func (e *Extractor) Extract(ctx context.Context, rawURL string) (*model.Article, error) {
	return e.ExtractResult(ctx, model.SearchResult{URL: rawURL})
}

// ExtractResult 抽取一条搜索结果，失败时返回 *Failure。
// 黑名单命中直接失败，不会发起任何抓取。
func (e *Extractor) ExtractResult(ctx context.Context, sr model.SearchResult) (*model.Article, error) {
	log := logger.Log.WithFields(logrus.Fields{"component": "extract", "url": sr.URL})

	u, err := url.Parse(sr.URL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, newFailure(sr.URL, ReasonInvalidURL, err)
	}
	if e.blocklist.Blocked(u.Hostname()) {
		log.Debug("域名在黑名单中，跳过")
		return nil, newFailure(sr.URL, ReasonBlocked, nil)
	}

	policy := e.policy
	policy.OnRetry = func(attempt int, err error) {
		log.Warnf("抓取失败，第 %d 次重试: %v", attempt, err)
	}

	var parsed *Parsed
	err = policy.Do(ctx, func(ctx context.Context) error {
		p, err := e.parser.Parse(ctx, sr.URL)
		if err != nil {
			return err
		}
		parsed = p
		return nil
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, newFailure(sr.URL, ReasonTimeout, err)
		}
		return nil, newFailure(sr.URL, ReasonFetch, err)
	}

	text := strings.TrimSpace(parsed.Text)
	if len([]rune(text)) < e.minContent {
		return nil, newFailure(sr.URL, ReasonInsufficientContent,
			fault.Permanent("INSUFFICIENT_CONTENT", "text length %d below %d", len([]rune(text)), e.minContent))
	}

	a := &model.Article{
		URL:         sr.URL,
		Title:       firstNonEmpty(parsed.Title, sr.Title),
		Text:        text,
		Source:      firstNonEmpty(sr.Source, parsed.SiteName, strings.TrimPrefix(u.Hostname(), "www.")),
		PublishedAt: parsed.PublishedAt,
		Authors:     parsed.Authors,
		Keywords:    parsed.Keywords,
		ExtractedAt: e.now().UTC(),
	}
	if a.PublishedAt.IsZero() {
		a.PublishedAt = sr.PublishedAt
	}
	log.Debugf("抽取成功，正文 %d 字符", len(text))
	return a, nil
}

func newFailure(rawURL string, reason Reason, err error) *Failure {
	return &Failure{URL: rawURL, Reason: reason, Err: err}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
