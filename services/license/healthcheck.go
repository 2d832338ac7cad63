package license

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/health/grpc_health_v1"
)

const healthPingTimeout = 2 * time.Second

// HealthServer reports SERVING while the license store answers a ping.
type HealthServer struct {
	grpc_health_v1.UnimplementedHealthServer
	svc *Service
}

func NewHealthServer(svc *Service) *HealthServer {
	return &HealthServer{svc: svc}
}

func (h *HealthServer) Check(ctx context.Context, _ *grpc_health_v1.HealthCheckRequest) (*grpc_health_v1.HealthCheckResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, healthPingTimeout)
	defer cancel()

	if err := h.svc.Ping(ctx); err != nil {
		loggerFromContext(ctx).Warn("health check failed, store unreachable", zap.Error(err))
		return &grpc_health_v1.HealthCheckResponse{
			Status: grpc_health_v1.HealthCheckResponse_NOT_SERVING,
		}, nil
	}

	return &grpc_health_v1.HealthCheckResponse{
		Status: grpc_health_v1.HealthCheckResponse_SERVING,
	}, nil
}
