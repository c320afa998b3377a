// Package report 运行汇总的投递目标：JSON 文件、内存中的最近一次结果，以及组合投递
package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/iWorld-y/risk_radar/internal/engine"
	"github.com/iWorld-y/risk_radar/internal/logger"
)

// Sink 接收一次运行的汇总
type Sink interface {
	Publish(ctx context.Context, s *engine.RunSummary) error
}

// FileSink 把汇总写成带时间戳的 JSON 文件
type FileSink struct {
	dir string
}

// NewFileSink 创建文件投递
func NewFileSink(dir string) *FileSink {
	return &FileSink{dir: dir}
}

// Filename 汇总对应的文件名：risk_run_YYYYMMDD_HHMMSS_<run id 前 8 位>.json
func Filename(s *engine.RunSummary) string {
	id := s.RunID
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("risk_run_%s_%s.json", s.StartedAt.Format("20060102_150405"), id)
}

func (f *FileSink) Publish(_ context.Context, s *engine.RunSummary) error {
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	path := filepath.Join(f.dir, Filename(s))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename summary: %w", err)
	}
	logger.Log.Infof("运行汇总已保存到 %s", path)
	return nil
}

// Latest 在内存中保留最近一次运行的汇总
type Latest struct {
	mu      sync.RWMutex
	summary *engine.RunSummary
}

func (l *Latest) Publish(_ context.Context, s *engine.RunSummary) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.summary = s
	return nil
}

// Get 返回最近一次汇总，尚无运行时为 nil
func (l *Latest) Get() *engine.RunSummary {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.summary
}

// Multi 依次投递到全部 Sink，某个失败不影响其余
type Multi []Sink

func (m Multi) Publish(ctx context.Context, s *engine.RunSummary) error {
	var errs []error
	for _, sink := range m {
		if err := sink.Publish(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
