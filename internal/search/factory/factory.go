package factory

import (
	"net/http"
	"strings"

	"github.com/iWorld-y/risk_radar/internal/config"
	"github.com/iWorld-y/risk_radar/internal/fault"
	"github.com/iWorld-y/risk_radar/internal/search"
	"github.com/iWorld-y/risk_radar/internal/search/gnews"
	"github.com/iWorld-y/risk_radar/internal/search/searxng"
	"github.com/iWorld-y/risk_radar/internal/search/serpapi"
	"github.com/iWorld-y/risk_radar/internal/search/tavily"
)

// NewSearcher 根据配置创建搜索实例，缺少凭证时返回致命错误
func NewSearcher(cfg *config.SearchConfig) (search.Searcher, error) {
	hc := &http.Client{Timeout: cfg.Timeout}

	switch strings.ToLower(cfg.Provider) {
	case "serpapi":
		if cfg.SerpAPI.APIKey == "" {
			return nil, fault.Fatal(fault.ReasonMissingConfig, "serpapi api key is missing")
		}
		return serpapi.NewClient(cfg.SerpAPI.APIKey, cfg.SerpAPI.BaseURL, hc), nil

	case "tavily":
		if cfg.Tavily.APIKey == "" {
			return nil, fault.Fatal(fault.ReasonMissingConfig, "tavily api key is missing")
		}
		return tavily.NewClient(cfg.Tavily.APIKey, cfg.Tavily.BaseURL, hc), nil

	case "searxng":
		if cfg.SearXNG.BaseURL == "" {
			return nil, fault.Fatal(fault.ReasonMissingConfig, "searxng base url is missing")
		}
		return searxng.NewClient(cfg.SearXNG.BaseURL, hc), nil

	case "gnews":
		return gnews.NewClient(cfg.GNews.BaseURL, cfg.GNews.Language, cfg.GNews.Region, hc), nil

	default:
		return nil, fault.Fatal(fault.ReasonMissingConfig, "unknown search provider: %s", cfg.Provider)
	}
}
