package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/iWorld-y/risk_radar/internal/fault"
)

const maxBodyBytes = 5 << 20

// HTTPParser 通过 HTTP 抓取页面，用 readability 提取正文、goquery 读取 meta 信息
type HTTPParser struct {
	client    *http.Client
	userAgent string
}

// NewHTTPParser 创建解析器，hc 为空时使用默认客户端
func NewHTTPParser(hc *http.Client, userAgent string) *HTTPParser {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPParser{client: hc, userAgent: userAgent}
}

var _ Parser = (*HTTPParser)(nil)

// Parse 抓取并解析页面
func (p *HTTPParser) Parse(ctx context.Context, rawURL string) (*Parsed, error) {
	pageURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fault.Permanent("INVALID_URL", "parse url: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request failed: %w", err)
	}
	if p.userAgent != "" {
		req.Header.Set("User-Agent", p.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	res, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer res.Body.Close()

	if err := statusError(res.StatusCode, rawURL); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body failed: %w", err)
	}

	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err != nil {
		return nil, fault.Permanent("UNPARSEABLE", "readability: %v", err)
	}

	parsed := &Parsed{
		Title:    strings.TrimSpace(article.Title),
		Text:     strings.TrimSpace(article.TextContent),
		SiteName: strings.TrimSpace(article.SiteName),
	}
	if article.Byline != "" {
		parsed.Authors = splitList(article.Byline)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err == nil {
		readMeta(doc, parsed)
	}
	return parsed, nil
}

// statusError 抓取页面时的状态码归类：站点拒绝访问属于永久失败，而非凭证问题
func statusError(status int, rawURL string) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusTooManyRequests:
		return fault.RateLimited(fault.ReasonRateLimited, "fetch %s: status %d", rawURL, status)
	case status >= 500:
		return fault.Transient(fault.ReasonUpstream, "fetch %s: status %d", rawURL, status)
	default:
		return fault.Permanent("FETCH_REJECTED", "fetch %s: status %d", rawURL, status)
	}
}

func readMeta(doc *goquery.Document, parsed *Parsed) {
	meta := func(selectors ...string) string {
		for _, sel := range selectors {
			if v, ok := doc.Find(sel).First().Attr("content"); ok && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v)
			}
		}
		return ""
	}

	if parsed.Title == "" {
		parsed.Title = meta(`meta[property="og:title"]`)
		if parsed.Title == "" {
			parsed.Title = strings.TrimSpace(doc.Find("title").First().Text())
		}
	}
	if parsed.SiteName == "" {
		parsed.SiteName = meta(`meta[property="og:site_name"]`)
	}

	if ts := meta(`meta[property="article:published_time"]`, `meta[name="pubdate"]`,
		`meta[name="publish-date"]`, `meta[itemprop="datePublished"]`); ts != "" {
		for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05Z0700", "2006-01-02"} {
			if t, err := time.Parse(layout, ts); err == nil {
				parsed.PublishedAt = t.UTC()
				break
			}
		}
	}

	if len(parsed.Authors) == 0 {
		doc.Find(`meta[name="author"], meta[property="article:author"]`).Each(func(_ int, s *goquery.Selection) {
			if v, ok := s.Attr("content"); ok {
				parsed.Authors = append(parsed.Authors, splitList(v)...)
			}
		})
		parsed.Authors = dedupStrings(parsed.Authors)
	}

	if kw := meta(`meta[name="news_keywords"]`, `meta[name="keywords"]`); kw != "" {
		parsed.Keywords = dedupStrings(splitList(kw))
	}
}

func splitList(s string) []string {
	s = strings.TrimPrefix(strings.TrimSpace(s), "By ")
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' || r == '|' })
	var out []string
	for _, f := range fields {
		for _, part := range strings.Split(f, " and ") {
			if v := strings.TrimSpace(part); v != "" {
				out = append(out, v)
			}
		}
	}
	return out
}

func dedupStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		k := strings.ToLower(s)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, s)
	}
	return out
}
