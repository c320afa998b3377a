// Package engine 流水线编排：采集 → 过滤 → 打分 → 入库 → 汇总
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/iWorld-y/risk_radar/internal/extract"
	"github.com/iWorld-y/risk_radar/internal/fault"
	"github.com/iWorld-y/risk_radar/internal/logger"
	"github.com/iWorld-y/risk_radar/internal/metrics"
	"github.com/iWorld-y/risk_radar/internal/model"
	"github.com/iWorld-y/risk_radar/internal/risk"
	"github.com/iWorld-y/risk_radar/internal/sentiment"
	"github.com/iWorld-y/risk_radar/internal/store"
)

// SearchClient 单实体检索
type SearchClient interface {
	Search(ctx context.Context, q model.Query, maxResults int) ([]model.SearchResult, error)
}

// ExtractionPool 一次查询结果的并发抽取
type ExtractionPool interface {
	Run(ctx context.Context, results []model.SearchResult) extract.PoolResult
}

// BatchStore 去重入库
type BatchStore interface {
	StoreBatch(ctx context.Context, items []model.Scored, overwrite bool) (store.Result, error)
}

// Options 引擎参数
type Options struct {
	Entities           []model.Query
	Keywords           []string
	MaxResults         int
	ScoringConcurrency int
	BatchSize          int
	Overwrite          bool
	RunTimeout         time.Duration
}

// Deps 引擎依赖的组件，Store 为空时跳过入库
type Deps struct {
	Search    SearchClient
	Pool      ExtractionPool
	Sentiment sentiment.Scorer
	Risk      *risk.Scorer
	Store     BatchStore
	Metrics   *metrics.Collector
}

// Engine 核心处理引擎，无跨运行的可变状态，可并行执行多次运行
type Engine struct {
	deps Deps
	opts Options
}

// NewEngine 创建引擎实例
func NewEngine(deps Deps, opts Options) (*Engine, error) {
	if deps.Search == nil || deps.Pool == nil {
		return nil, fmt.Errorf("search client and extraction pool are required")
	}
	if deps.Sentiment == nil {
		deps.Sentiment = sentiment.NewLexicon()
	}
	if deps.Risk == nil {
		deps.Risk = risk.NewScorer(nil)
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = 5
	}
	if opts.ScoringConcurrency <= 0 {
		opts.ScoringConcurrency = 4
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 32
	}
	return &Engine{deps: deps, opts: opts}, nil
}

// RunOptions 运行选项
type RunOptions struct {
	ProgressCallback func(status string, progress int)
}

type run struct {
	*Engine
	summary  *RunSummary
	progress func(status string, progress int)
}

func (r *run) enter(s State, progress int) {
	r.summary.FinalState = s
	logger.Log.Infof("运行 [%s] 进入阶段 %s", r.summary.RunID, s)
	r.progress(string(s), progress)
}

// Run 执行一次完整运行。
// 只有致命的配置类错误会中止运行并返回 error，其余失败都折算为汇总中的计数。
// 无论成功与否都返回汇总。
func (e *Engine) Run(ctx context.Context, opts RunOptions) (*RunSummary, error) {
	started := time.Now()
	entities := make([]string, len(e.opts.Entities))
	for i, q := range e.opts.Entities {
		entities[i] = q.EntityID
	}
	r := &run{
		Engine:   e,
		summary:  newSummary(uuid.NewString(), entities, started),
		progress: opts.ProgressCallback,
	}
	if r.progress == nil {
		r.progress = func(string, int) {}
	}

	if e.opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.RunTimeout)
		defer cancel()
	}

	logger.Log.Infof("开始运行 [%s]，共 %d 个实体", r.summary.RunID, len(entities))
	err := r.execute(ctx)

	s := r.summary
	s.FinishedAt = time.Now()
	result := "completed"
	if err != nil {
		s.Aborted = true
		s.Cause = err.Error()
		result = "aborted"
		logger.Log.Errorf("运行 [%s] 中止于 %s: %v", s.RunID, s.FinalState, err)
	} else {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			s.warn("run deadline exceeded, results are partial")
		}
		logger.Log.Infof("运行 [%s] 完成: 采集 %d, 入库 %d, 重复 %d, 错误 %d, 平均风险 %.2f",
			s.RunID, s.ArticlesCollected, s.ArticlesStored, s.Duplicates, s.Errors, s.AvgRiskScore)
	}
	e.deps.Metrics.RunFinished(result, s.FinishedAt.Sub(started))
	r.progress("completed", 100)
	return s, err
}

func (r *run) execute(ctx context.Context) error {
	stageStart := time.Now()
	r.enter(StateCollecting, 0)
	articles, err := r.collect(ctx)
	r.deps.Metrics.ObserveStage(string(StateCollecting), time.Since(stageStart))
	if err != nil {
		return err
	}

	stageStart = time.Now()
	r.enter(StateFiltering, 60)
	if len(articles) == 0 {
		r.deps.Metrics.ObserveStage(string(StateFiltering), time.Since(stageStart))
		r.summary.warn("zero articles collected")
		logger.Log.Warnf("运行 [%s] 未采集到任何文章", r.summary.RunID)
		return nil
	}
	articles = r.filter(articles)
	r.deps.Metrics.ObserveStage(string(StateFiltering), time.Since(stageStart))
	if len(articles) == 0 {
		r.summary.warn("no articles matched the configured keywords")
		return nil
	}

	stageStart = time.Now()
	r.enter(StateScoring, 70)
	scored := r.score(ctx, articles)
	r.deps.Metrics.ObserveStage(string(StateScoring), time.Since(stageStart))

	stageStart = time.Now()
	r.enter(StateStoring, 85)
	r.persist(ctx, scored)
	r.deps.Metrics.ObserveStage(string(StateStoring), time.Since(stageStart))

	r.enter(StateSummarizing, 95)
	r.summary.addScored(scored)
	return nil
}

// collect 所有实体并发检索与抽取，全部结束后按实体顺序做跨实体 URL 去重
func (r *run) collect(ctx context.Context) ([]model.Article, error) {
	perEntity := make([][]model.Article, len(r.opts.Entities))
	var (
		mu   sync.Mutex
		done int
	)

	g, gctx := errgroup.WithContext(ctx)
	for i, q := range r.opts.Entities {
		g.Go(func() error {
			results, err := r.deps.Search.Search(gctx, q, r.opts.MaxResults)
			if fault.IsFatal(err) {
				return fmt.Errorf("search %s: %w", q.EntityID, err)
			}

			var pr extract.PoolResult
			if len(results) > 0 {
				pr = r.deps.Pool.Run(gctx, results)
			}
			for j := range pr.Articles {
				pr.Articles[j].Entity = q.EntityID
			}
			perEntity[i] = pr.Articles

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				r.summary.SearchFailures++
				logger.Log.Warnf("实体 [%s] 检索失败: %v", q.EntityID, err)
			}
			for _, f := range pr.Failures {
				r.summary.ExtractionFailuresByReason[string(f.Reason)]++
				if f.Reason == extract.ReasonBlocked {
					r.summary.Errors++
				} else {
					r.summary.ExtractionFailures++
				}
			}
			done++
			logger.Log.Infof("实体 [%s] 采集完成: 结果 %d, 文章 %d, 失败 %d", q.EntityID, len(results), len(pr.Articles), len(pr.Failures))
			r.progress(fmt.Sprintf("collected entity: %s", q.EntityID), 10+done*50/len(r.opts.Entities))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var out []model.Article
	for _, list := range perEntity {
		for _, a := range list {
			if _, ok := seen[a.URL]; ok {
				r.summary.InRunDuplicates++
				continue
			}
			seen[a.URL] = struct{}{}
			out = append(out, a)
		}
	}
	r.summary.ArticlesCollected = len(out)
	return out, nil
}

// filter 关键词过滤，大小写不敏感的子串匹配；未配置关键词时全部保留
func (r *run) filter(articles []model.Article) []model.Article {
	if len(r.opts.Keywords) == 0 {
		return articles
	}
	keywords := make([]string, 0, len(r.opts.Keywords))
	for _, k := range r.opts.Keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			keywords = append(keywords, k)
		}
	}
	if len(keywords) == 0 {
		return articles
	}

	out := articles[:0:0]
	for _, a := range articles {
		text := strings.ToLower(a.FullText())
		for _, k := range keywords {
			if strings.Contains(text, k) {
				out = append(out, a)
				break
			}
		}
	}
	r.summary.FilteredOut = len(articles) - len(out)
	logger.Log.Infof("关键词过滤: 保留 %d, 过滤 %d", len(out), r.summary.FilteredOut)
	return out
}

// score 每篇文章只打分一次。文章之间按 ScoringConcurrency 并发，
// 单篇内情感与风险在同一 goroutine 中先后执行，风险打分只占 CPU
func (r *run) score(ctx context.Context, articles []model.Article) []model.Scored {
	out := make([]model.Scored, len(articles))
	g := new(errgroup.Group)
	g.SetLimit(r.opts.ScoringConcurrency)
	for i, a := range articles {
		g.Go(func() error {
			text := a.FullText()
			sr := r.deps.Sentiment.Score(ctx, text)
			ra := r.deps.Risk.Score(a.Title, a.Text)
			out[i] = model.Scored{
				Article: a,
				Analysis: model.Analysis{
					Sentiment:      sr.Sentiment,
					Secondary:      sr.Secondary,
					RiskScore:      ra.Score,
					RiskCategories: ra.Categories,
					RiskIndicators: ra.Indicators,
					Correlation:    risk.Correlate(ra.Score, sr.Score),
				},
			}
			r.deps.Metrics.Scored(sr.Method, sr.Fallback)
			return nil
		})
	}
	g.Wait()
	return out
}

// persist 分批入库，单批失败只记录告警
func (r *run) persist(ctx context.Context, scored []model.Scored) {
	if r.deps.Store == nil {
		r.summary.warn("no vector store configured, storage skipped")
		return
	}
	for start := 0; start < len(scored); start += r.opts.BatchSize {
		end := min(start+r.opts.BatchSize, len(scored))
		res, err := r.deps.Store.StoreBatch(ctx, scored[start:end], r.opts.Overwrite)
		r.summary.ArticlesStored += res.Success
		r.summary.Duplicates += res.Duplicate
		r.summary.Errors += res.Error
		if err != nil {
			r.summary.warn(fmt.Sprintf("storage failure in batch %d: %v", start/r.opts.BatchSize, err))
			logger.Log.Errorf("第 %d 批入库失败: %v", start/r.opts.BatchSize, err)
		}
	}
}
