package server

import (
	"context"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	kgrpc "github.com/go-kratos/kratos/v2/transport/grpc"
	"google.golang.org/grpc"
)

// NewGRPCServer gRPC 服务，只对外提供标准健康检查（由 kratos 默认注册）
func NewGRPCServer(addr string, logger log.Logger) *kgrpc.Server {
	opts := []kgrpc.ServerOption{
		kgrpc.Middleware(recovery.Recovery()),
		kgrpc.UnaryInterceptor(accessLog(logger)),
	}
	if addr != "" {
		opts = append(opts, kgrpc.Address(addr))
	}
	return kgrpc.NewServer(opts...)
}

// accessLog 记录每次一元调用的方法与耗时
func accessLog(logger log.Logger) grpc.UnaryServerInterceptor {
	h := log.NewHelper(log.With(logger, "module", "server/grpc"))
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if err != nil {
			h.Warnf("%s failed in %s: %v", info.FullMethod, time.Since(start), err)
		} else {
			h.Debugf("%s ok in %s", info.FullMethod, time.Since(start))
		}
		return resp, err
	}
}
