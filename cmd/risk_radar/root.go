// risk_radar 采集实体新闻，完成情感与风险打分后写入向量库。
//
// Usage:
//
//	risk_radar run    [--config=<path>]
//	risk_radar serve  [--config=<path>] [--run-now]
//	risk_radar search [--config=<path>] --top-k=5 [--entity=<name>] <query>
//	risk_radar stats  [--config=<path>]
//	risk_radar chat   [--config=<path>] [--entity=<name>] [--date=<filter>] <question>
//	risk_radar entities | dates
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/iWorld-y/risk_radar/internal/config"
	"github.com/iWorld-y/risk_radar/internal/logger"
)

// go build -ldflags "-X main.Version=x.y.z"
var (
	// Name 服务名称
	Name = "risk_radar"
	// Version 版本号
	Version = "dev"
)

var rootFlags struct {
	config string
}

var rootCmd = &cobra.Command{
	Use:   "risk_radar",
	Short: "News risk monitoring pipeline",
	Long:  "risk_radar collects news for configured entities, scores sentiment and risk,\nand stores deduplicated articles in a vector store for similarity search and chat.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&rootFlags.config, "config", "c", "configs/config.yaml", "config path (env RISK_RADAR_CONFIG)")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(entitiesCmd)
	rootCmd.AddCommand(datesCmd)
	rootCmd.Version = Version
}

// loadConfig 加载配置并初始化全局日志
func loadConfig() (*config.Config, error) {
	path := rootFlags.config
	if _, err := os.Stat(path); err != nil && !rootCmdChanged("config") {
		// 默认路径不存在时退回环境变量与默认值
		path = ""
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("无法加载配置文件: %w", err)
	}
	if err := logger.InitLogger(cfg.Log.Level, cfg.Log.File); err != nil {
		return nil, fmt.Errorf("无法初始化日志: %w", err)
	}
	return cfg, nil
}

func rootCmdChanged(name string) bool {
	f := rootCmd.PersistentFlags().Lookup(name)
	return f != nil && f.Changed
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
