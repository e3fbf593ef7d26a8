package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"batch-collector/internal/domain/entity"
	"batch-collector/internal/resilience/circuitbreaker"
	"batch-collector/internal/resilience/ratecontrol"
	"batch-collector/internal/usecase/schedule"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func get(t *testing.T, h http.Handler, path string) (int, []byte) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec.Code, rec.Body.Bytes()
}

func TestHealthServer_Liveness(t *testing.T) {
	server := NewHealthServer(":0", discardLogger())

	code, body := get(t, server.Handler(), "/health")
	if code != http.StatusOK {
		t.Errorf("expected status 200, got %d", code)
	}
	var response healthResponse
	if err := json.Unmarshal(body, &response); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if response.Status != "ok" {
		t.Errorf("expected status 'ok', got '%s'", response.Status)
	}
}

func TestHealthServer_Readiness_Transition(t *testing.T) {
	server := NewHealthServer(":0", discardLogger())
	h := server.Handler()

	if code, _ := get(t, h, "/health/ready"); code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 before ready, got %d", code)
	}
	server.SetReady(true)
	if code, _ := get(t, h, "/health/ready"); code != http.StatusOK {
		t.Errorf("expected 200 when ready, got %d", code)
	}
	server.SetReady(false)
	if code, _ := get(t, h, "/health/ready"); code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 after unready, got %d", code)
	}
}

func TestHealthServer_Upstreams(t *testing.T) {
	breakers := circuitbreaker.NewRegistry(map[string]circuitbreaker.Config{
		"krx": {FailureThreshold: 2, SuccessThreshold: 1, Timeout: time.Hour},
	})
	rates := ratecontrol.NewRegistry(discardLogger(), nil)
	breakers.Get("dart")
	rates.Get("dart")

	server := NewHealthServer(":0", discardLogger(), WithUpstreams(breakers, rates))
	h := server.Handler()

	code, body := get(t, h, "/health/upstreams")
	if code != http.StatusOK {
		t.Fatalf("expected 200 with closed circuits, got %d", code)
	}
	var resp upstreamsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp.Status != "ok" || len(resp.Circuits) != 1 || len(resp.Rates) != 1 {
		t.Errorf("unexpected response: %+v", resp)
	}

	krx := breakers.Get("krx")
	for i := 0; i < 2; i++ {
		_ = krx.Run(func() error { return errors.New("status 503") })
	}

	code, body = get(t, h, "/health/upstreams")
	if code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 with an open circuit, got %d", code)
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp.Status != "degraded" {
		t.Errorf("expected degraded, got %s", resp.Status)
	}
	if len(resp.Circuits) != 2 || resp.Circuits[1].Name != "krx" || resp.Circuits[1].State != "open" {
		t.Errorf("unexpected circuits: %+v", resp.Circuits)
	}
}

func TestHealthServer_Upstreams_NoRegistries(t *testing.T) {
	code, body := get(t, NewHealthServer(":0", discardLogger()).Handler(), "/health/upstreams")
	if code != http.StatusOK {
		t.Errorf("expected 200, got %d", code)
	}
	var resp upstreamsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp.Circuits == nil || resp.Rates == nil {
		t.Error("expected empty arrays, not null")
	}
}

func TestHealthServer_Jobs(t *testing.T) {
	status := schedule.Status{
		Initialized: true,
		Running:     1,
		Jobs: []schedule.JobStatus{
			{ID: "morning", Kind: entity.JobKindDaily, Schedule: "0 6 * * *", Scheduled: true, Running: true},
		},
	}
	server := NewHealthServer(":0", discardLogger(), WithJobStatus(func() schedule.Status { return status }))

	code, body := get(t, server.Handler(), "/health/jobs")
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	var got schedule.Status
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if !got.Initialized || got.Running != 1 || len(got.Jobs) != 1 || got.Jobs[0].ID != "morning" {
		t.Errorf("unexpected status: %+v", got)
	}
}

func TestHealthServer_RejectsPost(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHealthServer(":0", discardLogger()).Handler().
		ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/health", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}

func TestHealthServer_GracefulShutdown(t *testing.T) {
	server := NewHealthServer("localhost:19095", discardLogger())

	ctx, cancel := context.WithCancel(context.Background())

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Start(ctx)
	}()

	time.Sleep(100 * time.Millisecond)

	resp, err := http.Get("http://localhost:19095/health")
	if err != nil {
		t.Fatalf("server not running: %v", err)
	}
	if err := resp.Body.Close(); err != nil {
		t.Errorf("failed to close response body: %v", err)
	}

	cancel()

	select {
	case err := <-errChan:
		if !errors.Is(err, http.ErrServerClosed) {
			t.Errorf("expected http.ErrServerClosed, got %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("shutdown timeout")
	}

	if _, err := http.Get("http://localhost:19095/health"); err == nil {
		t.Error("expected connection error after shutdown, but got success")
	}
}

func TestNewHealthServer(t *testing.T) {
	server := NewHealthServer(":9091", discardLogger())

	if server.addr != ":9091" {
		t.Errorf("expected addr ':9091', got '%s'", server.addr)
	}
	if server.isReady.Load() {
		t.Error("expected isReady to be false initially")
	}
}
