package api

import (
	"context"
	"fmt"
	"net"
	"time"

	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/volcanowatch/volcano-risk/internal/config"
)

// ServiceName is the health-check service name reported alongside the overall status.
const ServiceName = "volcano.risk.v1.RiskService"

// HealthServer serves grpc.health.v1 for orchestrator liveness and readiness checks.
type HealthServer struct {
	grpcServer *grpc.Server
	status     *health.Server
	listener   net.Listener
	drain      time.Duration
}

// NewHealthServer binds the configured gRPC address and reports SERVING until told otherwise.
func NewHealthServer(cfg config.ServerConfig) (*HealthServer, error) {
	lis, err := net.Listen("tcp", cfg.GRPCAddress)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.GRPCAddress, err)
	}

	grpc_prometheus.EnableHandlingTimeHistogram()
	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(grpc_prometheus.UnaryServerInterceptor),
		grpc.ChainStreamInterceptor(grpc_prometheus.StreamServerInterceptor),
	)
	status := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, status)
	grpc_prometheus.Register(grpcServer)
	reflection.Register(grpcServer)

	s := &HealthServer{grpcServer: grpcServer, status: status, listener: lis, drain: cfg.GracefulTimeout}
	s.SetServing(true)
	return s, nil
}

// SetServing flips the reported status of both the overall and the named service.
func (s *HealthServer) SetServing(serving bool) {
	st := healthpb.HealthCheckResponse_SERVING
	if !serving {
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.status.SetServingStatus("", st)
	s.status.SetServingStatus(ServiceName, st)
}

// Addr is the bound listen address.
func (s *HealthServer) Addr() string {
	return s.listener.Addr().String()
}

// Serve blocks until ctx ends, then drains open streams for at most the configured
// graceful timeout before closing them. It returns nil after a ctx-initiated stop.
func (s *HealthServer) Serve(ctx context.Context) error {
	served := make(chan error, 1)
	go func() { served <- s.grpcServer.Serve(s.listener) }()

	select {
	case err := <-served:
		return err
	case <-ctx.Done():
	}

	s.status.Shutdown()
	drained := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(s.drain):
		s.grpcServer.Stop()
	}
	return <-served
}
