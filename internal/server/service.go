// Package server 常驻服务：定时触发运行，并通过 kratos HTTP/gRPC 暴露结果、检索与指标
package server

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"

	"github.com/iWorld-y/risk_radar/internal/engine"
	"github.com/iWorld-y/risk_radar/internal/rag"
	"github.com/iWorld-y/risk_radar/internal/report"
	"github.com/iWorld-y/risk_radar/internal/vectordb"
)

// Runner 执行一次运行
type Runner interface {
	Run(ctx context.Context, opts engine.RunOptions) (*engine.RunSummary, error)
}

// Retriever 向量检索与库内容列举
type Retriever interface {
	Search(ctx context.Context, text string, topK int, filter map[string]string) ([]vectordb.Match, error)
	Stats(ctx context.Context) (vectordb.Stats, error)
	Entities(ctx context.Context) ([]string, error)
	Dates(ctx context.Context) ([]string, error)
}

// Chatter 检索增强问答
type Chatter interface {
	Chat(ctx context.Context, req rag.Request) (*rag.Answer, error)
}

// ErrRunInProgress 已有运行在进行
var ErrRunInProgress = errors.Conflict("RUN_IN_PROGRESS", "a run is already in progress")

// Service 运行触发与查询的业务层，同一时刻最多一次运行
type Service struct {
	runner    Runner
	sink      report.Sink
	latest    *report.Latest
	retriever Retriever
	chatter   Chatter
	timeout   time.Duration
	running   atomic.Bool
	log       *log.Helper
}

// NewService 创建服务；sink 中应包含 latest 以便 HTTP 读取最近一次结果，runTimeout 大于零时限制单次运行时长
func NewService(runner Runner, sink report.Sink, latest *report.Latest, retriever Retriever, chatter Chatter, runTimeout time.Duration, logger log.Logger) *Service {
	return &Service{
		runner:    runner,
		sink:      sink,
		latest:    latest,
		retriever: retriever,
		chatter:   chatter,
		timeout:   runTimeout,
		log:       log.NewHelper(log.With(logger, "module", "server/service")),
	}
}

// Trigger 同步执行一次运行并投递汇总；已有运行时返回 ErrRunInProgress
func (s *Service) Trigger(ctx context.Context) (*engine.RunSummary, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer s.running.Store(false)
	return s.run(ctx)
}

// TriggerAsync 后台执行一次运行，立即返回
func (s *Service) TriggerAsync() error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrRunInProgress
	}
	go func() {
		defer s.running.Store(false)
		s.run(context.Background())
	}()
	return nil
}

// Running 是否有运行在进行
func (s *Service) Running() bool {
	return s.running.Load()
}

func (s *Service) run(ctx context.Context) (*engine.RunSummary, error) {
	runCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	summary, err := s.runner.Run(runCtx, engine.RunOptions{
		ProgressCallback: func(status string, progress int) {
			s.log.Debugf("run progress: %s (%d%%)", status, progress)
		},
	})
	if err != nil {
		s.log.Errorf("run aborted: %v", err)
	}
	if summary != nil && s.sink != nil {
		if perr := s.sink.Publish(ctx, summary); perr != nil {
			s.log.Errorf("publish summary: %v", perr)
		}
	}
	return summary, err
}

// Latest 最近一次运行汇总
func (s *Service) Latest() (*engine.RunSummary, error) {
	if s.latest == nil {
		return nil, errors.NotFound("NO_RUN", "no run has completed yet")
	}
	summary := s.latest.Get()
	if summary == nil {
		return nil, errors.NotFound("NO_RUN", "no run has completed yet")
	}
	return summary, nil
}

// Search 语义检索
func (s *Service) Search(ctx context.Context, q string, topK int, filter map[string]string) ([]vectordb.Match, error) {
	if s.retriever == nil {
		return nil, errors.ServiceUnavailable("NO_STORE", "vector store is not configured")
	}
	return s.retriever.Search(ctx, q, topK, filter)
}

// Stats 向量库统计
func (s *Service) Stats(ctx context.Context) (vectordb.Stats, error) {
	if s.retriever == nil {
		return vectordb.Stats{}, errors.ServiceUnavailable("NO_STORE", "vector store is not configured")
	}
	return s.retriever.Stats(ctx)
}

// Entities 库中出现过的实体
func (s *Service) Entities(ctx context.Context) ([]string, error) {
	if s.retriever == nil {
		return nil, errors.ServiceUnavailable("NO_STORE", "vector store is not configured")
	}
	return s.retriever.Entities(ctx)
}

// Dates 库中文章的发布日期，新的在前
func (s *Service) Dates(ctx context.Context) ([]string, error) {
	if s.retriever == nil {
		return nil, errors.ServiceUnavailable("NO_STORE", "vector store is not configured")
	}
	return s.retriever.Dates(ctx)
}

// Chat 检索增强问答
func (s *Service) Chat(ctx context.Context, req rag.Request) (*rag.Answer, error) {
	if s.chatter == nil {
		return nil, errors.ServiceUnavailable("NO_AGENT", "chat agent is not configured")
	}
	return s.chatter.Chat(ctx, req)
}
