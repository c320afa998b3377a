package server

import (
	nethttp "net/http"
	"strconv"
	"time"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	"github.com/go-kratos/kratos/v2/transport/http"

	"github.com/iWorld-y/risk_radar/internal/metrics"
	"github.com/iWorld-y/risk_radar/internal/rag"
	"github.com/iWorld-y/risk_radar/internal/vectordb"
)

// NewHTTPServer 注册运行、检索、问答、统计与指标路由
func NewHTTPServer(addr string, timeout time.Duration, s *Service, m *metrics.Collector, logger log.Logger) *http.Server {
	var opts = []http.ServerOption{
		http.Middleware(
			recovery.Recovery(),
		),
	}
	if addr != "" {
		opts = append(opts, http.Address(addr))
	}
	if timeout > 0 {
		opts = append(opts, http.Timeout(timeout))
	}

	srv := http.NewServer(opts...)
	RegisterRoutes(srv, s)
	srv.Handle("/metrics", m.Handler())
	return srv
}

// RegisterRoutes 注册业务路由
func RegisterRoutes(srv *http.Server, s *Service) {
	r := srv.Route("/")

	r.GET("/v1/runs/latest", func(ctx http.Context) error {
		summary, err := s.Latest()
		if err != nil {
			return err
		}
		return ctx.JSON(nethttp.StatusOK, summary)
	})

	r.POST("/v1/runs", func(ctx http.Context) error {
		if err := s.TriggerAsync(); err != nil {
			return err
		}
		return ctx.JSON(nethttp.StatusAccepted, map[string]string{"status": "started"})
	})

	r.GET("/v1/search", func(ctx http.Context) error {
		q := ctx.Query()
		text := q.Get("q")
		if text == "" {
			return errors.BadRequest("BAD_REQUEST", "query parameter q is required")
		}
		topK := 5
		if v := q.Get("top_k"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				return errors.BadRequest("BAD_REQUEST", "top_k must be a positive integer")
			}
			topK = n
		}
		filter := map[string]string{}
		for _, key := range []string{"entity", "source", vectordb.FilterPublishedAt} {
			if v := q.Get(key); v != "" {
				filter[key] = v
			}
		}
		matches, err := s.Search(ctx, text, topK, filter)
		if err != nil {
			return err
		}
		return ctx.JSON(nethttp.StatusOK, map[string]any{"matches": matches})
	})

	r.POST("/v1/chat", func(ctx http.Context) error {
		var req rag.Request
		if err := ctx.Bind(&req); err != nil {
			return errors.BadRequest("BAD_REQUEST", "invalid chat request body")
		}
		if req.Question == "" {
			return errors.BadRequest("BAD_REQUEST", "question is required")
		}
		if req.TopK < 0 {
			return errors.BadRequest("BAD_REQUEST", "top_k must not be negative")
		}
		ans, err := s.Chat(ctx, req)
		if err != nil {
			return err
		}
		return ctx.JSON(nethttp.StatusOK, ans)
	})

	r.GET("/v1/entities", func(ctx http.Context) error {
		entities, err := s.Entities(ctx)
		if err != nil {
			return err
		}
		return ctx.JSON(nethttp.StatusOK, map[string]any{"entities": entities})
	})

	r.GET("/v1/dates", func(ctx http.Context) error {
		dates, err := s.Dates(ctx)
		if err != nil {
			return err
		}
		return ctx.JSON(nethttp.StatusOK, map[string]any{"dates": dates})
	})

	r.GET("/v1/stats", func(ctx http.Context) error {
		stats, err := s.Stats(ctx)
		if err != nil {
			return err
		}
		return ctx.JSON(nethttp.StatusOK, map[string]any{
			"vector_store": stats,
			"running":      s.Running(),
		})
	})
}
