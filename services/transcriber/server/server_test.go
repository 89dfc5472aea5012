package server

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	config "github.com/xilidan/transcriber/config/transcriber"
	"github.com/xilidan/transcriber/pkg/logger"
	"github.com/xilidan/transcriber/services/transcriber/storage"
)

func newTestServer(t *testing.T, watch bool) *Server {
	t.Helper()

	stg, err := storage.Open(context.Background(), storage.DriverSQLite, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("storage.Open() error = %v", err)
	}
	t.Cleanup(func() { stg.Close() })

	cfg := &config.Config{
		Port:         0,
		WatchJobs:    watch,
		PollInterval: 10 * time.Millisecond,
		WatchTimeout: time.Second,
	}
	cfg.Database.Driver = storage.DriverSQLite
	cfg.Soniox.APIKey = "test"
	cfg.Soniox.BaseURL = "http://127.0.0.1:1"

	srv, err := New(cfg, stg, logger.Discard())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return srv
}

func TestNew_Monitor(t *testing.T) {
	if srv := newTestServer(t, false); srv.monitor != nil {
		t.Error("monitor created with job watching disabled")
	}
	if srv := newTestServer(t, true); srv.monitor == nil {
		t.Error("monitor missing with job watching enabled")
	}
}

func TestStart_StopsOnCancel(t *testing.T) {
	srv := newTestServer(t, true)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return after cancellation")
	}
}

func TestReportHealth(t *testing.T) {
	srv := newTestServer(t, false)
	hs := health.NewServer()

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		srv.reportHealth(ctx, hs)
		close(stopped)
	}()

	check := func() healthpb.HealthCheckResponse_ServingStatus {
		resp, err := hs.Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
		if err != nil {
			return healthpb.HealthCheckResponse_UNKNOWN
		}
		return resp.GetStatus()
	}

	deadline := time.Now().Add(2 * time.Second)
	for check() != healthpb.HealthCheckResponse_SERVING {
		if time.Now().After(deadline) {
			t.Fatalf("status = %v, want SERVING", check())
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	<-stopped

	if got := check(); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("status after shutdown = %v, want NOT_SERVING", got)
	}
}
