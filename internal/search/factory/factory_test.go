package factory

import (
	"testing"

	"github.com/iWorld-y/risk_radar/internal/config"
	"github.com/iWorld-y/risk_radar/internal/fault"
	"github.com/iWorld-y/risk_radar/internal/search/gnews"
	"github.com/iWorld-y/risk_radar/internal/search/searxng"
	"github.com/iWorld-y/risk_radar/internal/search/serpapi"
	"github.com/iWorld-y/risk_radar/internal/search/tavily"
)

func TestNewSearcher(t *testing.T) {
	base := config.Default().Search

	t.Run("serpapi", func(t *testing.T) {
		c := base
		c.SerpAPI.APIKey = "k"
		s, err := NewSearcher(&c)
		if err != nil {
			t.Fatalf("NewSearcher() error = %v", err)
		}
		if _, ok := s.(*serpapi.Client); !ok {
			t.Errorf("got %T, want *serpapi.Client", s)
		}
	})

	t.Run("tavily", func(t *testing.T) {
		c := base
		c.Provider = "tavily"
		c.Tavily.APIKey = "k"
		s, err := NewSearcher(&c)
		if err != nil {
			t.Fatalf("NewSearcher() error = %v", err)
		}
		if _, ok := s.(*tavily.Client); !ok {
			t.Errorf("got %T, want *tavily.Client", s)
		}
	})

	t.Run("searxng", func(t *testing.T) {
		c := base
		c.Provider = "SearXNG"
		s, err := NewSearcher(&c)
		if err != nil {
			t.Fatalf("NewSearcher() error = %v", err)
		}
		if _, ok := s.(*searxng.Client); !ok {
			t.Errorf("got %T, want *searxng.Client", s)
		}
	})

	t.Run("gnews", func(t *testing.T) {
		c := base
		c.Provider = "gnews"
		s, err := NewSearcher(&c)
		if err != nil {
			t.Fatalf("NewSearcher() error = %v", err)
		}
		if _, ok := s.(*gnews.Client); !ok {
			t.Errorf("got %T, want *gnews.Client", s)
		}
	})

	for _, provider := range []string{"serpapi", "tavily", "bing"} {
		t.Run("fatal "+provider, func(t *testing.T) {
			c := base
			c.Provider = provider
			if _, err := NewSearcher(&c); !fault.IsFatal(err) {
				t.Errorf("NewSearcher() error = %v, want fatal", err)
			}
		})
	}
}
