// Package grpcapi exposes the standard gRPC health service so orchestrators
// can probe the gate backend without going through the HTTP surface.
package grpcapi

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the service name reported next to the overall ("") status.
const ServiceName = "smartgate.v1.Access"

// Probe reports whether a backing dependency is usable.
type Probe func(ctx context.Context) error

type Dependencies struct {
	Logger *slog.Logger
	Addr   string

	// Probe is polled every Interval; a failing probe flips both statuses
	// to NOT_SERVING until it passes again. Nil means always serving.
	Probe    Probe
	Interval time.Duration
}

type Server struct {
	grpc   *grpc.Server
	health *health.Server
	logger *slog.Logger
	d      Dependencies
	stop   chan struct{}
}

func NewServer(d Dependencies) *Server {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Interval <= 0 {
		d.Interval = 10 * time.Second
	}
	s := &Server{
		grpc:   grpc.NewServer(),
		health: health.NewServer(),
		logger: d.Logger,
		d:      d,
		stop:   make(chan struct{}),
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.setStatus(healthpb.HealthCheckResponse_SERVING)
	return s
}

func (s *Server) setStatus(st healthpb.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

// Check runs the probe once and publishes the result.
func (s *Server) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	st := healthpb.HealthCheckResponse_SERVING
	if s.d.Probe != nil {
		if err := s.d.Probe(ctx); err != nil {
			s.logger.Warn("health probe failed", "err", err)
			st = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	s.setStatus(st)
	return st
}

func (s *Server) watch() {
	t := time.NewTicker(s.d.Interval)
	defer t.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.d.Interval)
			s.Check(ctx)
			cancel()
		}
	}
}

// Serve blocks serving on lis until Shutdown.
func (s *Server) Serve(lis net.Listener) error {
	go s.watch()
	s.logger.Info("grpc health listening", "addr", lis.Addr().String())
	if err := s.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// Start listens on the configured address and serves.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.d.Addr)
	if err != nil {
		return err
	}
	return s.Serve(lis)
}

// Shutdown marks every service NOT_SERVING, then drains in-flight RPCs until
// ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.health.Shutdown()
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}

	stopped := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		s.grpc.Stop()
		return ctx.Err()
	}
}
