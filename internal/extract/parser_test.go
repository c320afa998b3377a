package extract

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/iWorld-y/risk_radar/internal/fault"
)

func articleHTML() string {
	var paras strings.Builder
	for i := 0; i < 8; i++ {
		fmt.Fprintf(&paras, "<p>Paragraph %d. Apple reported strong quarterly earnings as services revenue kept growing, "+
			"while analysts warned about regulatory pressure in several markets and supply chain disruption.</p>\n", i)
	}
	return `<!DOCTYPE html><html><head>
<title>Apple earnings beat expectations</title>
<meta property="og:site_name" content="Example News">
<meta property="article:published_time" content="2025-01-02T08:30:00Z">
<meta name="author" content="Jane Doe">
<meta name="news_keywords" content="Apple, earnings, apple, services">
</head><body>
<nav><a href="/">Home</a></nav>
<article><h1>Apple earnings beat expectations</h1>` + paras.String() + `</article>
<footer>Copyright</footer>
</body></html>`
}

func TestHTTPParser_Parse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "test-agent" {
			t.Errorf("User-Agent = %q", r.Header.Get("User-Agent"))
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(articleHTML()))
	}))
	defer srv.Close()

	p := NewHTTPParser(srv.Client(), "test-agent")
	got, err := p.Parse(context.Background(), srv.URL+"/article")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if !strings.Contains(got.Title, "Apple earnings") {
		t.Errorf("Title = %q", got.Title)
	}
	if !strings.Contains(got.Text, "services revenue kept growing") {
		t.Errorf("Text missing article body: %q", got.Text)
	}
	if !got.PublishedAt.Equal(time.Date(2025, 1, 2, 8, 30, 0, 0, time.UTC)) {
		t.Errorf("PublishedAt = %v", got.PublishedAt)
	}
	if len(got.Authors) == 0 || got.Authors[0] != "Jane Doe" {
		t.Errorf("Authors = %v", got.Authors)
	}
	if len(got.Keywords) != 3 {
		t.Errorf("Keywords = %v, want 3 distinct", got.Keywords)
	}
}

func TestHTTPParser_StatusClassification(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{http.StatusForbidden, false},
		{http.StatusNotFound, false},
		{http.StatusTooManyRequests, true},
		{http.StatusBadGateway, true},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))
		_, err := NewHTTPParser(srv.Client(), "").Parse(context.Background(), srv.URL)
		srv.Close()
		if err == nil {
			t.Fatalf("status %d: Parse() error = nil", tt.status)
		}
		if fault.IsFatal(err) {
			t.Errorf("status %d: site rejection reported as fatal", tt.status)
		}
		if fault.IsRetryable(err) != tt.retryable {
			t.Errorf("status %d: retryable = %v, want %v", tt.status, fault.IsRetryable(err), tt.retryable)
		}
	}
}

func TestSplitList(t *testing.T) {
	got := splitList("By Jane Doe and John Roe, Ann Poe")
	want := []string{"Jane Doe", "John Roe", "Ann Poe"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("splitList() = %v, want %v", got, want)
	}
}
