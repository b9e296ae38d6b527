package server

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/AnotherFoxGuy/sogeBot/internal/core/api"
	"github.com/AnotherFoxGuy/sogeBot/internal/core/auth"
	"github.com/AnotherFoxGuy/sogeBot/internal/core/config"
)

// unimplementedAdmin satisfies api.AdminServer; the auth interceptor
// rejects calls before any method runs.
type unimplementedAdmin struct{ api.AdminServer }

func TestGRPCServer(t *testing.T) {
	if _, err := NewGRPCServer(config.ServerConfig{}, nil, &auth.Authenticator{}, nil); err == nil {
		t.Fatal("NewGRPCServer(nil service) error = nil, want error")
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv, err := NewGRPCServer(config.ServerConfig{Host: "127.0.0.1"}, unimplementedAdmin{}, auth.NewAuthenticator(nil, nil), logger)
	if err != nil {
		t.Fatalf("NewGRPCServer() error = %v, want nil", err)
	}

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go func() { _ = srv.Serve(lis) }()

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("grpc.NewClient() error = %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := grpc_health_v1.NewHealthClient(conn).Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: api.ServiceName})
	if err != nil {
		t.Fatalf("health Check() error = %v, want nil", err)
	}
	if resp.Status != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Errorf("health status = %v, want SERVING", resp.Status)
	}

	err = api.NewAdminClient(conn).Call(ctx, "ListRules", nil, &structpb.Struct{})
	if status.Code(err) != codes.Unauthenticated {
		t.Errorf("ListRules without key: code = %v, want Unauthenticated", status.Code(err))
	}

	if err := srv.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown() error = %v, want nil", err)
	}
}
