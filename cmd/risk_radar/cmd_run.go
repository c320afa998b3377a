package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/iWorld-y/risk_radar/internal/app"
	"github.com/iWorld-y/risk_radar/internal/logger"
)

var runFlags struct {
	articles bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pipeline once and print the run summary",
	RunE:  runOnce,
}

func init() {
	runCmd.Flags().BoolVar(&runFlags.articles, "articles", false, "Include scored articles in the printed summary")
}

func runOnce(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	logger.Log.Infof("启动风险雷达，监控 %d 个实体", len(cfg.Entities))
	summary, err := a.Engine.Run(ctx, engineProgress())
	if summary != nil {
		if perr := a.Sink.Publish(ctx, summary); perr != nil {
			logger.Log.Errorf("运行摘要输出失败: %v", perr)
		}
		data, _ := json.MarshalIndent(summaryView(summary, runFlags.articles), "", "  ")
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
	}
	return err
}
