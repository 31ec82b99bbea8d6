package control

import (
	"context"

	"github.com/traaittPlatform/traaittplatformd-ha/pkg/errors"
	"github.com/traaittPlatform/traaittplatformd-ha/pkg/logging"

	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ClientGateway queries a running supervisor's health endpoint.
type ClientGateway struct {
	grpcClient healthpb.HealthClient
	logger     logging.Logger
}

func NewGRPCClientGateway(grpcClientConnection grpc.ClientConnInterface, logger logging.Logger) *ClientGateway {
	return &ClientGateway{
		grpcClient: healthpb.NewHealthClient(grpcClientConnection),
		logger:     logger,
	}
}

// Serving reports whether the supervised node is healthy.
func (gw *ClientGateway) Serving(ctx context.Context) (bool, error) {
	response, err := gw.grpcClient.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		gw.logger.Errorf("Health client gateway: %v", err)
		return false, errors.NewNetworkError("health check request failed", err)
	}
	gw.logger.Debugf("Health client gateway done, status: %s", response.GetStatus())
	return response.GetStatus() == healthpb.HealthCheckResponse_SERVING, nil
}
