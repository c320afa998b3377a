// Package serpapi 通过 SerpAPI 的 google_news 引擎检索新闻
package serpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/iWorld-y/risk_radar/internal/fault"
	"github.com/iWorld-y/risk_radar/internal/search"
)

// DefaultBaseURL SerpAPI 接口地址
const DefaultBaseURL = "https://serpapi.com/search"

// Client SerpAPI 客户端
type Client struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewClient 创建 SerpAPI 客户端
func NewClient(apiKey, baseURL string, hc *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{apiKey: apiKey, baseURL: baseURL, client: hc}
}

var _ search.Searcher = (*Client)(nil)

type newsResponse struct {
	Error       string       `json:"error"`
	NewsResults []newsResult `json:"news_results"`
}

type newsResult struct {
	Link    string `json:"link"`
	Title   string `json:"title"`
	Date    string `json:"date"`
	Snippet string `json:"snippet"`
	Source  struct {
		Name string `json:"name"`
	} `json:"source"`
	// 聚合类条目把真实文章放在 stories 中
	Stories []newsResult `json:"stories"`
}

// Search implements search.Searcher
func (c *Client) Search(ctx context.Context, req *search.Request) (*search.Response, error) {
	if c.apiKey == "" {
		return nil, fault.Fatal(fault.ReasonMissingConfig, "serpapi api key is missing")
	}

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fault.Fatal(fault.ReasonMissingConfig, "serpapi: invalid base URL: %v", err)
	}
	q := u.Query()
	q.Set("q", req.Query)
	q.Set("api_key", c.apiKey)
	q.Set("engine", "google_news")
	if req.MaxResults > 0 {
		q.Set("num", strconv.Itoa(req.MaxResults))
	}
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

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read body failed: %w", err)
	}
	if res.StatusCode != http.StatusOK {
		return nil, fault.FromStatus(res.StatusCode, "serpapi", string(body))
	}

	var nr newsResponse
	if err := json.Unmarshal(body, &nr); err != nil {
		return nil, fault.Permanent(fault.ReasonMalformed, "serpapi: unmarshal response failed: %v", err)
	}
	if nr.Error != "" && len(nr.NewsResults) == 0 {
		// 无结果时 serpapi 也会在 error 字段说明，按空结果处理
		return &search.Response{}, nil
	}

	var results []search.Result
	var add func(items []newsResult)
	add = func(items []newsResult) {
		for _, r := range items {
			if r.Link == "" {
				add(r.Stories)
				continue
			}
			results = append(results, search.Result{
				Title:         r.Title,
				URL:           r.Link,
				Source:        r.Source.Name,
				Content:       r.Snippet,
				PublishedDate: r.Date,
			})
		}
	}
	add(nr.NewsResults)
	return &search.Response{Results: results}, nil
}
