package server

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
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/knoguchi/insight/internal/health"
)

func startGRPC(t *testing.T, probe *health.Probe) healthpb.HealthClient {
	t.Helper()

	srv := NewGRPCServer(GRPCServerConfig{
		Logger:        slog.New(slog.NewJSONHandler(io.Discard, nil)),
		Probe:         probe,
		ProbeInterval: 10 * time.Millisecond,
	})
	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return healthpb.NewHealthClient(conn)
}

func servingStatus(t *testing.T, client healthpb.HealthClient) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestGRPCHealth_NoProbe(t *testing.T) {
	client := startGRPC(t, nil)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, servingStatus(t, client))
}

func TestGRPCHealth_FollowsProbe(t *testing.T) {
	var down atomic.Bool
	down.Store(true)
	probe := health.NewProbe(map[string]health.Checker{
		"database": health.CheckFunc(func(context.Context) error {
			if down.Load() {
				return errors.New("connection refused")
			}
			return nil
		}),
	}, slog.New(slog.NewJSONHandler(io.Discard, nil)))

	client := startGRPC(t, probe)
	assert.Eventually(t, func() bool {
		return servingStatus(t, client) == healthpb.HealthCheckResponse_NOT_SERVING
	}, time.Second, 10*time.Millisecond)

	down.Store(false)
	assert.Eventually(t, func() bool {
		return servingStatus(t, client) == healthpb.HealthCheckResponse_SERVING
	}, time.Second, 10*time.Millisecond)
}

func TestRecoveryUnaryInterceptor(t *testing.T) {
	interceptor := recoveryUnaryInterceptor(slog.New(slog.NewJSONHandler(io.Discard, nil)))

	_, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/test/Panic"},
		func(ctx context.Context, req any) (any, error) {
			panic("boom")
		})

	assert.Equal(t, codes.Internal, status.Code(err))
}

func TestStatusCode(t *testing.T) {
	assert.Equal(t, codes.OK, statusCode(nil))
	assert.Equal(t, codes.NotFound, statusCode(status.Error(codes.NotFound, "x")))
	assert.Equal(t, codes.Unknown, statusCode(errors.New("plain")))
}
