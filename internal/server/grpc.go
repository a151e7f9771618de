package server

import (
	"movieratings/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/logging"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	kgrpc "github.com/go-kratos/kratos/v2/transport/grpc"
	"google.golang.org/grpc/reflection"
)

// NewGRPCServer new a gRPC server. It serves the standard grpc.health.v1
// service, which kratos registers and flips to SERVING on start.
func NewGRPCServer(c *conf.Server, logger log.Logger) *kgrpc.Server {
	var opts = []kgrpc.ServerOption{
		kgrpc.Middleware(
			recovery.Recovery(),
			logging.Server(logger),
		),
	}
	if c.GRPC != nil {
		if c.GRPC.Network != "" {
			opts = append(opts, kgrpc.Network(c.GRPC.Network))
		}
		if c.GRPC.Addr != "" {
			opts = append(opts, kgrpc.Address(c.GRPC.Addr))
		}
		if c.GRPC.Timeout != 0 {
			opts = append(opts, kgrpc.Timeout(c.GRPC.Timeout.AsDuration()))
		}
	}
	srv := kgrpc.NewServer(opts...)
	reflection.Register(srv)
	return srv
}
