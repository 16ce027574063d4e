package grpcapi_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"github.com/smartgate/server/internal/grpcapi"
)

func startServer(t *testing.T, probe grpcapi.Probe) (*grpcapi.Server, healthpb.HealthClient) {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpcapi.NewServer(grpcapi.Dependencies{
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Probe:    probe,
		Interval: time.Hour,
	})
	go func() { _ = srv.Serve(lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.Close()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return srv, healthpb.NewHealthClient(conn)
}

func status(t *testing.T, c healthpb.HealthClient, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := c.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestHealth_ServingByDefault(t *testing.T) {
	_, c := startServer(t, nil)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status(t, c, ""))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status(t, c, grpcapi.ServiceName))
}

func TestHealth_ProbeFlipsStatus(t *testing.T) {
	var broken atomic.Bool
	srv, c := startServer(t, func(context.Context) error {
		if broken.Load() {
			return errors.New("store unreachable")
		}
		return nil
	})

	broken.Store(true)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, srv.Check(context.Background()))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status(t, c, grpcapi.ServiceName))

	broken.Store(false)
	srv.Check(context.Background())
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status(t, c, ""))
}

func TestHealth_ShutdownStopsServing(t *testing.T) {
	srv, c := startServer(t, nil)
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, status(t, c, ""))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
	require.NoError(t, srv.Shutdown(ctx), "second shutdown is a no-op")
}
