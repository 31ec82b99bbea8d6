package control

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/traaittPlatform/traaittplatformd-ha/pkg/domain"
	"github.com/traaittPlatform/traaittplatformd-ha/pkg/errors"
	"github.com/traaittPlatform/traaittplatformd-ha/pkg/logging"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Server is the gRPC control endpoint.
type Server struct {
	grpcServer *grpc.Server
	logger     logging.Logger
}

func NewServer(contract domain.Contract, logger logging.Logger) *Server {
	grpcServer := grpc.NewServer()
	RegisterGRPCServerHandler(grpcServer, contract, logger)
	return &Server{
		grpcServer: grpcServer,
		logger:     logger,
	}
}

// Listen binds host:port and serves in the background.
func (s *Server) Listen(host string, port int) (net.Addr, error) {
	address := fmt.Sprintf("%s:%d", host, port)
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, errors.NewNetworkError("failed to listen", err).WithContext("address", address)
	}
	go s.Serve(listener)
	return listener.Addr(), nil
}

// Serve blocks serving listener.
func (s *Server) Serve(listener net.Listener) error {
	s.logger.Infof("Control server listening, address: %s", listener.Addr())
	if err := s.grpcServer.Serve(listener); err != nil {
		s.logger.Errorf("Control server stopped: %v", err)
		return err
	}
	return nil
}

func (s *Server) Stop() {
	s.grpcServer.GracefulStop()
	s.logger.Infof("Control server stopped")
}

// Dial connects a ClientGateway to a control endpoint.
func Dial(ctx context.Context, address string, timeout time.Duration, logger logging.Logger) (*ClientGateway, func() error, error) {
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := grpc.DialContext(dialCtx, address,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock())
	if err != nil {
		return nil, nil, errors.NewNetworkError("failed to connect to control endpoint", err).WithContext("address", address)
	}
	return NewGRPCClientGateway(conn, logger), conn.Close, nil
}
