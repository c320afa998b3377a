package extract

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/iWorld-y/risk_radar/internal/logger"
	"github.com/iWorld-y/risk_radar/internal/metrics"
	"github.com/iWorld-y/risk_radar/internal/model"
)

// ArticleExtractor 抽取池所需的单条抽取能力
type ArticleExtractor interface {
	ExtractResult(ctx context.Context, sr model.SearchResult) (*model.Article, error)
}

// PoolConfig 抽取池参数
type PoolConfig struct {
	Workers     int
	TaskTimeout time.Duration
	PoolTimeout time.Duration
}

// Pool 有界并发的抽取池。
//
// 每个任务有独立截止时间，超时的任务被放弃，其 goroutine 在后台跑完后结果被丢弃，
// 不占用工作槽位；池级截止时间到达后不再等待剩余任务。
type Pool struct {
	extractor ArticleExtractor
	cfg       PoolConfig
	metrics   *metrics.Collector
}

// PoolResult 一次抽取的结果
type PoolResult struct {
	Articles []model.Article
	Failures []Failure
}

type outcome struct {
	url     string
	article *model.Article
	failure *Failure
}

// NewPool 创建抽取池
func NewPool(e ArticleExtractor, cfg PoolConfig, m *metrics.Collector) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	return &Pool{extractor: e, cfg: cfg, metrics: m}
}

// Run 并发抽取一次查询返回的全部 URL，同一 URL 只抽取一次
func (p *Pool) Run(ctx context.Context, results []model.SearchResult) PoolResult {
	var out PoolResult

	tasks := make([]model.SearchResult, 0, len(results))
	seen := make(map[string]bool, len(results))
	for _, sr := range results {
		if sr.URL == "" || seen[sr.URL] {
			continue
		}
		seen[sr.URL] = true
		tasks = append(tasks, sr)
	}
	if len(tasks) == 0 {
		return out
	}

	poolCtx := ctx
	if p.cfg.PoolTimeout > 0 {
		var cancel context.CancelFunc
		poolCtx, cancel = context.WithTimeout(ctx, p.cfg.PoolTimeout)
		defer cancel()
	}

	sem := semaphore.NewWeighted(int64(p.cfg.Workers))
	// 缓冲区容纳全部结果，放弃等待后迟到的发送也不会阻塞
	outcomes := make(chan outcome, len(tasks))
	for _, sr := range tasks {
		go func(sr model.SearchResult) {
			if err := sem.Acquire(poolCtx, 1); err != nil {
				return
			}
			defer sem.Release(1)
			outcomes <- p.runTask(poolCtx, sr)
		}(sr)
	}

	pending := make(map[string]bool, len(tasks))
	for _, sr := range tasks {
		pending[sr.URL] = true
	}

collect:
	for len(pending) > 0 {
		select {
		case o := <-outcomes:
			delete(pending, o.url)
			if o.failure != nil {
				out.Failures = append(out.Failures, *o.failure)
				p.metrics.ExtractionDone(string(o.failure.Reason))
				continue
			}
			out.Articles = append(out.Articles, *o.article)
			p.metrics.ExtractionDone("ok")
		case <-poolCtx.Done():
			break collect
		}
	}

	if len(pending) > 0 {
		logger.Log.WithField("component", "extract").
			Warnf("抽取池截止时间已到，放弃 %d 个未完成任务", len(pending))
		for _, sr := range tasks {
			if pending[sr.URL] {
				out.Failures = append(out.Failures, Failure{URL: sr.URL, Reason: ReasonTimeout, Err: poolCtx.Err()})
				p.metrics.ExtractionDone(string(ReasonTimeout))
			}
		}
	}
	return out
}

// runTask 在单任务截止时间内等待抽取结果，超时即返回，不等待底层调用退出
func (p *Pool) runTask(ctx context.Context, sr model.SearchResult) outcome {
	taskCtx := ctx
	cancel := func() {}
	if p.cfg.TaskTimeout > 0 {
		taskCtx, cancel = context.WithTimeout(ctx, p.cfg.TaskTimeout)
	}
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		a, err := p.extractor.ExtractResult(taskCtx, sr)
		if err != nil {
			f, ok := AsFailure(err)
			if !ok {
				f = &Failure{URL: sr.URL, Reason: ReasonFetch, Err: err}
			}
			done <- outcome{url: sr.URL, failure: f}
			return
		}
		if a == nil {
			done <- outcome{url: sr.URL, failure: &Failure{URL: sr.URL, Reason: ReasonFetch}}
			return
		}
		done <- outcome{url: sr.URL, article: a}
	}()

	select {
	case o := <-done:
		return o
	case <-taskCtx.Done():
		return outcome{url: sr.URL, failure: &Failure{URL: sr.URL, Reason: ReasonTimeout, Err: taskCtx.Err()}}
	}
}
