package control

import (
	"context"

	"github.com/traaittPlatform/traaittplatformd-ha/pkg/domain"
	"github.com/traaittPlatform/traaittplatformd-ha/pkg/logging"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// ServiceName is the health service name answered besides the empty one.
const ServiceName = "traaittplatformd"

// RegisterGRPCServerHandler serves the standard gRPC health protocol from the
// supervisor status.
func RegisterGRPCServerHandler(grpcServerRegistrar grpc.ServiceRegistrar, handler domain.Contract, logger logging.Logger) {
	healthpb.RegisterHealthServer(grpcServerRegistrar, &grpcServerHandler{
		handler: handler,
		logger:  logger,
	})
}

type grpcServerHandler struct {
	healthpb.UnimplementedHealthServer
	handler domain.Contract
	logger  logging.Logger
}

func (h *grpcServerHandler) Check(ctx context.Context, request *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	if request.GetService() != "" && request.GetService() != ServiceName {
		return nil, status.Errorf(codes.NotFound, "unknown service %q", request.GetService())
	}

	st, err := h.handler.Status(ctx)
	if err != nil {
		h.logger.Errorf("Health server handler: %v", err)
		return nil, status.Error(codes.Internal, err.Error())
	}

	serving := healthpb.HealthCheckResponse_NOT_SERVING
	if st.Healthy() {
		serving = healthpb.HealthCheckResponse_SERVING
	}
	h.logger.Debugf("Health server handler done, state: %s, serving: %s", st.State, serving)
	return &healthpb.HealthCheckResponse{Status: serving}, nil
}
