package transport

import (
	"context"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// HealthServer publishes the pool's liveness over the standard gRPC health service.
type HealthServer struct {
	hs       *health.Server
	srv      *grpc.Server
	live     func() bool
	interval time.Duration
	log      *slog.Logger
}

func NewHealthServer(live func() bool, logger *slog.Logger) *HealthServer {
	if logger == nil {
		logger = slog.Default()
	}
	hs := health.NewServer()
	srv := grpc.NewServer()
	grpc_health_v1.RegisterHealthServer(srv, hs)
	hs.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	return &HealthServer{hs: hs, srv: srv, live: live, interval: time.Second, log: logger}
}

// Refresh copies the current liveness into the served status.
func (h *HealthServer) Refresh() grpc_health_v1.HealthCheckResponse_ServingStatus {
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if h.live() {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	h.hs.SetServingStatus("", status)
	return status
}

// Serve listens on lis until ctx is done.
func (h *HealthServer) Serve(ctx context.Context, lis net.Listener) error {
	go func() {
		t := time.NewTicker(h.interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				h.hs.Shutdown()
				h.srv.GracefulStop()
				return
			case <-t.C:
				h.Refresh()
			}
		}
	}()
	h.log.Info("health.listening", "addr", lis.Addr().String())
	return h.srv.Serve(lis)
}
