package server

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/transport"
)

// Scheduler 按固定间隔触发运行，实现 kratos transport.Server 以便随 App 启停。
// 上一次运行未结束时本次触发被跳过。
type Scheduler struct {
	svc      *Service
	interval time.Duration
	runNow   bool
	stop     chan struct{}
	done     chan struct{}
	log      *log.Helper
}

var _ transport.Server = (*Scheduler)(nil)

// NewScheduler 创建定时器；runNow 为真时启动后立即运行一次
func NewScheduler(svc *Service, interval time.Duration, runNow bool, logger log.Logger) *Scheduler {
	return &Scheduler{
		svc:      svc,
		interval: interval,
		runNow:   runNow,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		log:      log.NewHelper(log.With(logger, "module", "server/scheduler")),
	}
}

// Start 阻塞直到 Stop 或 ctx 结束
func (s *Scheduler) Start(ctx context.Context) error {
	defer close(s.done)
	if s.interval <= 0 {
		s.log.Info("scheduler disabled (interval <= 0)")
		select {
		case <-ctx.Done():
		case <-s.stop:
		}
		return nil
	}

	s.log.Infof("scheduler started, interval %s", s.interval)
	if s.runNow {
		s.fire(ctx)
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.stop:
			return nil
		case <-ticker.C:
			s.fire(ctx)
		}
	}
}

func (s *Scheduler) fire(ctx context.Context) {
	summary, err := s.svc.Trigger(ctx)
	switch {
	case stderrors.Is(err, ErrRunInProgress):
		s.log.Warn("previous run still in progress, skipping this tick")
	case err != nil:
		s.log.Errorf("scheduled run failed: %v", err)
	default:
		s.log.Infof("scheduled run %s finished: %d stored", summary.RunID, summary.ArticlesStored)
	}
}

// Stop 通知循环退出并等待
func (s *Scheduler) Stop(ctx context.Context) error {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
	select {
	case <-s.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}
