package main

import (
	"os"

	"github.com/go-kratos/kratos/v2/log"

	"github.com/iWorld-y/risk_radar/internal/engine"
	"github.com/iWorld-y/risk_radar/internal/logger"
)

// engineProgress 把阶段进度写入全局日志
func engineProgress() engine.RunOptions {
	return engine.RunOptions{
		ProgressCallback: func(status string, progress int) {
			logger.Log.Infof("[%3d%%] %s", progress, status)
		},
	}
}

// summaryView 打印用的摘要副本，默认省略文章明细
func summaryView(s *engine.RunSummary, withArticles bool) engine.RunSummary {
	view := *s
	if !withArticles {
		view.Articles = nil
	}
	return view
}

// kratosLogger 常驻服务使用的 kratos 日志
func kratosLogger() log.Logger {
	id, _ := os.Hostname()
	return log.With(log.NewStdLogger(os.Stdout),
		"ts", log.DefaultTimestamp,
		"caller", log.DefaultCaller,
		"service.id", id,
		"service.name", Name,
		"service.version", Version,
	)
}
