package influxdb_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/lightbridge/internal/infrastructure/config"
	"github.com/nerrad567/lightbridge/internal/infrastructure/influxdb"
)

// fakeInflux answers the ping and write endpoints of the v2 API.
type fakeInflux struct {
	*httptest.Server
	mu      sync.Mutex
	writes  []string
	healthy bool
}

func newFakeInflux(t *testing.T) *fakeInflux {
	t.Helper()
	f := &fakeInflux{healthy: true}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ping":
			f.mu.Lock()
			healthy := f.healthy
			f.mu.Unlock()
			if !healthy {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		case "/api/v2/write":
			body, _ := io.ReadAll(r.Body)
			f.mu.Lock()
			f.writes = append(f.writes, string(body))
			f.mu.Unlock()
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeInflux) lines() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return strings.Join(f.writes, "\n")
}

func (f *fakeInflux) setHealthy(ok bool) {
	f.mu.Lock()
	f.healthy = ok
	f.mu.Unlock()
}

func testConfig(url string) config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           url,
		Token:         "lightbridge-test-token",
		Org:           "home",
		Bucket:        "lighting",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

func connect(t *testing.T, f *fakeInflux) *influxdb.Client {
	t.Helper()
	client, err := influxdb.Connect(context.Background(), testConfig(f.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

// =============================================================================
// Connection Tests
// =============================================================================

func TestConnect(t *testing.T) {
	client := connect(t, newFakeInflux(t))

	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect()")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:8086")
	cfg.Enabled = false

	_, err := influxdb.Connect(context.Background(), cfg)
	if !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	f := newFakeInflux(t)
	url := f.URL
	f.Close()

	_, err := influxdb.Connect(context.Background(), testConfig(url))
	if !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnect_DefaultBatchSettings(t *testing.T) {
	f := newFakeInflux(t)
	cfg := testConfig(f.URL)
	cfg.BatchSize = -5
	cfg.FlushInterval = 0

	client, err := influxdb.Connect(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if !client.IsConnected() {
		t.Error("IsConnected() = false with default batch settings")
	}
}

// =============================================================================
// Health Check Tests
// =============================================================================

func TestHealthCheck_Unhealthy(t *testing.T) {
	f := newFakeInflux(t)
	client := connect(t, f)

	f.setHealthy(false)
	if err := client.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() should fail when the server is unhealthy")
	}
}

func TestHealthCheck_Cancelled(t *testing.T) {
	client := connect(t, newFakeInflux(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := client.HealthCheck(ctx); err == nil {
		t.Error("HealthCheck() should return error for cancelled context")
	}
}

func TestHealthCheck_AfterClose(t *testing.T) {
	client := connect(t, newFakeInflux(t))
	client.Close()

	if err := client.HealthCheck(context.Background()); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

// =============================================================================
// Write Tests
// =============================================================================

func TestWriteLightState(t *testing.T) {
	f := newFakeInflux(t)
	client := connect(t, f)

	client.WriteLightState("entrance", "on", "command")
	client.WriteLightState("dining_main", "off", "status")
	client.Flush()

	deadline := time.Now().Add(3 * time.Second)
	for !strings.Contains(f.lines(), "dining_main") && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}

	got := f.lines()
	wants := []string{
		`light_state,device=entrance,source=command state="on",value=1i`,
		`light_state,device=dining_main,source=status state="off",value=0i`,
	}
	for _, want := range wants {
		if !strings.Contains(got, want) {
			t.Errorf("write body missing %q\ngot:\n%s", want, got)
		}
	}
}

func TestWriteAfterCloseIsNoop(t *testing.T) {
	f := newFakeInflux(t)
	client := connect(t, f)
	client.Close()

	client.WriteLightState("entrance", "on", "command")
	client.Flush()

	if got := f.lines(); got != "" {
		t.Errorf("write after Close reached server: %q", got)
	}
}

func TestClose_Nil(t *testing.T) {
	var client *influxdb.Client
	if err := client.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v", err)
	}
}

func TestClose_Twice(t *testing.T) {
	client := connect(t, newFakeInflux(t))

	if err := client.Close(); err != nil {
		t.Errorf("first Close() error = %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}
