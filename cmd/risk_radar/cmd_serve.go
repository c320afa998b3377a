package main

import (
	"context"

	"github.com/go-kratos/kratos/v2"
	"github.com/spf13/cobra"

	"github.com/iWorld-y/risk_radar/internal/app"
	"github.com/iWorld-y/risk_radar/internal/server"
)

var serveFlags struct {
	runNow bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the pipeline on a schedule and expose HTTP and gRPC endpoints",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveFlags.runNow, "run-now", false, "Trigger one run immediately on startup")
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	agent, err := app.NewAgent(ctx, cfg, a.Store)
	if err != nil {
		return err
	}

	logger := kratosLogger()
	svc := server.NewService(a.Engine, a.Sink, a.Latest, a.Store, agent, cfg.Pipeline.RunTimeout, logger)
	hs := server.NewHTTPServer(cfg.Server.HTTPAddr, 0, svc, a.Metrics, logger)
	gs := server.NewGRPCServer(cfg.Server.GRPCAddr, logger)
	scheduler := server.NewScheduler(svc, cfg.Server.Interval, serveFlags.runNow, logger)

	k := kratos.New(
		kratos.Name(Name),
		kratos.Version(Version),
		kratos.Logger(logger),
		kratos.Server(hs, gs, scheduler),
	)
	return k.Run()
}
