// Package gnews 通过 Google News RSS 检索新闻，无需 API Key
package gnews

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/iWorld-y/risk_radar/internal/fault"
	"github.com/iWorld-y/risk_radar/internal/search"
)

// DefaultBaseURL Google News RSS 搜索地址
const DefaultBaseURL = "https://news.google.com/rss/search"

// Client Google News RSS 客户端
type Client struct {
	baseURL  string
	language string
	region   string
	client   *http.Client
}

// NewClient 创建 RSS 客户端
func NewClient(baseURL, language, region string, hc *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if language == "" {
		language = "en-US"
	}
	if region == "" {
		region = "US"
	}
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{baseURL: baseURL, language: language, region: region, client: hc}
}

var _ search.Searcher = (*Client)(nil)

// Search implements search.Searcher
func (c *Client) Search(ctx context.Context, req *search.Request) (*search.Response, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fault.Fatal(fault.ReasonMissingConfig, "gnews: invalid base URL: %v", err)
	}
	lang := c.language
	if i := strings.Index(lang, "-"); i > 0 {
		lang = lang[:i]
	}
	q := u.Query()
	q.Set("q", req.Query)
	q.Set("hl", c.language)
	q.Set("gl", c.region)
	q.Set("ceid", c.region+":"+lang)
	u.RawQuery = q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request failed: %w", err)
	}
	res, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(res.Body)
		return nil, fault.FromStatus(res.StatusCode, "gnews", string(body))
	}

	feed, err := gofeed.NewParser().Parse(res.Body)
	if err != nil {
		return nil, fault.Permanent(fault.ReasonMalformed, "gnews: parse feed failed: %v", err)
	}

	results := make([]search.Result, 0, len(feed.Items))
	for _, item := range feed.Items {
		title, source := splitSource(item.Title)
		var published string
		if item.PublishedParsed != nil {
			published = item.PublishedParsed.UTC().Format(time.RFC3339)
		}
		results = append(results, search.Result{
			Title:         title,
			URL:           item.Link,
			Source:        source,
			Content:       item.Description,
			PublishedDate: published,
		})
		if req.MaxResults > 0 && len(results) >= req.MaxResults {
			break
		}
	}
	return &search.Response{Results: results}, nil
}

// splitSource Google News 标题形如 "Headline - Source"
func splitSource(title string) (string, string) {
	i := strings.LastIndex(title, " - ")
	if i <= 0 {
		return title, ""
	}
	return strings.TrimSpace(title[:i]), strings.TrimSpace(title[i+3:])
}
