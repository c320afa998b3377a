package extract

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/iWorld-y/risk_radar/internal/metrics"
	"github.com/iWorld-y/risk_radar/internal/model"
)

func results(urls ...string) []model.SearchResult {
	out := make([]model.SearchResult, 0, len(urls))
	for _, u := range urls {
		out = append(out, model.SearchResult{URL: u})
	}
	return out
}

func TestPool_ScalesWithWorkers(t *testing.T) {
	const (
		k       = 8
		workers = 4
		latency = 50 * time.Millisecond
	)
	p := newMockParser()
	var urls []string
	for i := 0; i < k; i++ {
		u := fmt.Sprintf("https://site%d.example/a", i)
		urls = append(urls, u)
		p.pages[u] = &Parsed{Title: "T", Text: longText}
		p.delay[u] = latency
	}
	pool := NewPool(NewExtractor(p), PoolConfig{Workers: workers, TaskTimeout: time.Second, PoolTimeout: 5 * time.Second}, metrics.New())

	start := time.Now()
	res := pool.Run(context.Background(), results(urls...))
	elapsed := time.Since(start)

	if len(res.Articles) != k || len(res.Failures) != 0 {
		t.Fatalf("articles = %d failures = %d", len(res.Articles), len(res.Failures))
	}
	// ceil(8/4) * 50ms = 100ms，顺序执行需要 400ms
	if elapsed >= 300*time.Millisecond {
		t.Errorf("elapsed = %v, want close to %v", elapsed, 2*latency)
	}
}

func TestPool_HungTaskDoesNotDelaySiblings(t *testing.T) {
	p := newMockParser()
	p.ignore = true
	hung := "https://hung.example/a"
	p.pages[hung] = &Parsed{Text: longText}
	p.delay[hung] = 2 * time.Second
	for i := 0; i < 3; i++ {
		u := fmt.Sprintf("https://ok%d.example/a", i)
		p.pages[u] = &Parsed{Text: longText}
		p.delay[u] = 20 * time.Millisecond
	}
	pool := NewPool(NewExtractor(p), PoolConfig{Workers: 2, TaskTimeout: 100 * time.Millisecond, PoolTimeout: time.Second}, nil)

	start := time.Now()
	res := pool.Run(context.Background(), results(hung, "https://ok0.example/a", "https://ok1.example/a", "https://ok2.example/a"))
	elapsed := time.Since(start)

	if len(res.Articles) != 3 {
		t.Errorf("articles = %d, want 3", len(res.Articles))
	}
	if len(res.Failures) != 1 || res.Failures[0].Reason != ReasonTimeout || res.Failures[0].URL != hung {
		t.Errorf("failures = %+v, want one timeout for hung url", res.Failures)
	}
	if elapsed > 500*time.Millisecond {
		t.Errorf("elapsed = %v, hung task blocked the pool", elapsed)
	}
}

func TestPool_PoolDeadlineStopsWaiting(t *testing.T) {
	p := newMockParser()
	p.ignore = true
	var urls []string
	for i := 0; i < 4; i++ {
		u := fmt.Sprintf("https://slow%d.example/a", i)
		urls = append(urls, u)
		p.pages[u] = &Parsed{Text: longText}
		p.delay[u] = time.Second
	}
	pool := NewPool(NewExtractor(p), PoolConfig{Workers: 1, TaskTimeout: 10 * time.Second, PoolTimeout: 80 * time.Millisecond}, nil)

	start := time.Now()
	res := pool.Run(context.Background(), results(urls...))
	if time.Since(start) > 500*time.Millisecond {
		t.Errorf("pool deadline not enforced, took %v", time.Since(start))
	}
	if len(res.Articles) != 0 || len(res.Failures) != 4 {
		t.Errorf("articles = %d failures = %d, want 0/4", len(res.Articles), len(res.Failures))
	}
	for _, f := range res.Failures {
		if f.Reason != ReasonTimeout {
			t.Errorf("failure reason = %s, want timeout", f.Reason)
		}
	}
}

func TestPool_IsolatesFailuresAndDedups(t *testing.T) {
	p := newMockParser()
	p.pages["https://good.example/a"] = &Parsed{Title: "Good", Text: longText}
	p.pages["https://short.example/a"] = &Parsed{Title: "Short", Text: "tiny"}
	e := NewExtractor(p, WithBlocklist(NewBlocklist([]string{"wsj.com"})))
	pool := NewPool(e, PoolConfig{Workers: 2, TaskTimeout: time.Second}, nil)

	res := pool.Run(context.Background(), results(
		"https://good.example/a", "https://good.example/a",
		"https://www.wsj.com/x", "https://short.example/a", "",
	))

	if len(res.Articles) != 1 || res.Articles[0].Title != "Good" {
		t.Errorf("articles = %+v", res.Articles)
	}
	reasons := map[Reason]int{}
	for _, f := range res.Failures {
		reasons[f.Reason]++
	}
	if reasons[ReasonBlocked] != 1 || reasons[ReasonInsufficientContent] != 1 || len(res.Failures) != 2 {
		t.Errorf("failures = %+v", res.Failures)
	}
	if p.callCount("https://good.example/a") != 1 {
		t.Errorf("duplicate url extracted %d times", p.callCount("https://good.example/a"))
	}
	if p.callCount("https://www.wsj.com/x") != 0 {
		t.Error("blocked url was fetched")
	}
}

func TestPool_Empty(t *testing.T) {
	res := NewPool(NewExtractor(newMockParser()), PoolConfig{}, nil).Run(context.Background(), nil)
	if len(res.Articles) != 0 || len(res.Failures) != 0 {
		t.Errorf("Run(nil) = %+v", res)
	}
}
