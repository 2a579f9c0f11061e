package server

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// HealthServiceName is the gRPC health service name of the forecast API.
const HealthServiceName = "kubilitics.forecast.v1.Analytics"

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// GRPCServer serves the standard gRPC health protocol. Its status follows the
// record store: SERVING while Ping succeeds, NOT_SERVING otherwise.
type GRPCServer struct {
	server       *grpc.Server
	healthServer *health.Server
	pinger       Pinger
	port         int
	interval     time.Duration
	logger       *zap.Logger
}

// NewGRPCServer creates the health server. pinger may be nil.
func NewGRPCServer(port int, pinger Pinger, logger *zap.Logger) *GRPCServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := grpc.NewServer(
		grpc.MaxRecvMsgSize(1024*1024),
		grpc.ConnectionTimeout(30*time.Second),
	)
	hs := health.NewServer()
	grpc_health_v1.RegisterHealthServer(s, hs)
	reflection.Register(s)

	hs.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	hs.SetServingStatus(HealthServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	return &GRPCServer{
		server:       s,
		healthServer: hs,
		pinger:       pinger,
		port:         port,
		interval:     15 * time.Second,
		logger:       logger,
	}
}

// Check refreshes the serving status from the pinger.
func (s *GRPCServer) Check(ctx context.Context) {
	if s.pinger == nil {
		return
	}
	status := grpc_health_v1.HealthCheckResponse_SERVING
	if err := s.pinger.Ping(ctx); err != nil {
		status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
		s.logger.Warn("health check failed", zap.Error(err))
	}
	s.healthServer.SetServingStatus(HealthServiceName, status)
}

// Serve listens on the configured port and blocks until ctx is done.
func (s *GRPCServer) Serve(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.ServeListener(ctx, lis)
}

// ServeListener serves on lis until ctx is done, then stops gracefully.
func (s *GRPCServer) ServeListener(ctx context.Context, lis net.Listener) error {
	s.logger.Info("grpc health server listening", zap.String("address", lis.Addr().String()))

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			s.Check(ctx)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() { errCh <- s.server.Serve(lis) }()

	select {
	case err := <-errCh:
		if err != nil && err != grpc.ErrServerStopped {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	case <-ctx.Done():
		s.Stop()
		return nil
	}
}

// Stop marks the service NOT_SERVING and drains connections, forcing after five seconds.
func (s *GRPCServer) Stop() {
	s.healthServer.Shutdown()

	stopped := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
		s.logger.Info("grpc server stopped gracefully")
	case <-time.After(5 * time.Second):
		s.logger.Warn("grpc server forced to stop after timeout")
		s.server.Stop()
	}
}
