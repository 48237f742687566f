package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sua-org/cam-scout/internal/analysisjob"
	"github.com/sua-org/cam-scout/internal/analysislock"
	"github.com/sua-org/cam-scout/internal/config"
	"github.com/sua-org/cam-scout/internal/core"
	"github.com/sua-org/cam-scout/internal/discovery"
	"github.com/sua-org/cam-scout/internal/supervisor"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type fixedScanner struct{ hosts []string }

func (f fixedScanner) Prefixes(_ context.Context, explicit string) []string {
	if explicit == "" {
		return []string{"10.1.1"}
	}
	return []string{explicit}
}

func (f fixedScanner) ScanAll(context.Context, []string) ([]string, error) { return f.hosts, nil }

type probeMap map[string]core.CameraDescriptor

func (p probeMap) Probe(_ context.Context, host string) (core.CameraDescriptor, error) {
	if d, ok := p[host]; ok {
		return d, nil
	}
	return core.CameraDescriptor{}, core.ErrNotACamera
}

type fakeLadder struct{ last core.CameraDescriptor }

func (f *fakeLadder) Capture(_ context.Context, d core.CameraDescriptor) core.CaptureResult {
	f.last = d
	if d.Username == "bad" {
		return core.CaptureResult{ErrorKind: core.KindCaptureExhausted, Error: core.ErrCaptureExhausted.Error()}
	}
	return core.CaptureResult{Succeeded: true, MethodUsed: "generic_cgi", Image: []byte("jpeg!"), ContentType: "image/jpeg"}
}

type jobFunc func(ctx context.Context, req analysisjob.Request) (*analysisjob.Result, error)

func (f jobFunc) Run(ctx context.Context, req analysisjob.Request) (*analysisjob.Result, error) {
	return f(ctx, req)
}

type testEnv struct {
	srv    *Server
	ladder *fakeLadder
	locks  *analysislock.Manager
}

var camera = core.CameraDescriptor{Address: "10.1.1.20", Port: 8080, Manufacturer: "Dahua", Model: "IPC-HFW"}

func newEnv(t *testing.T, jobs supervisor.JobRunner) *testEnv {
	t.Helper()
	probes := probeMap{camera.Address: camera}
	d := discovery.NewDiscoverer(fixedScanner{hosts: []string{camera.Address, "10.1.1.21"}}, probes, 4, time.Second)
	locks := analysislock.New(analysislock.DefaultConfig())
	t.Cleanup(locks.Close)
	ladder := &fakeLadder{}
	sup, err := supervisor.New(supervisor.Options{
		Discovery: discovery.NewService(d, time.Minute),
		Ladder:    ladder,
		Locks:     locks,
		Jobs:      jobs,
	})
	if err != nil {
		t.Fatal(err)
	}
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("camscout_up 1\n"))
	})
	return &testEnv{srv: New(config.Default(), sup, probes, metrics, "test"), ladder: ladder, locks: locks}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)

	var out map[string]interface{}
	if rec.Body.Len() > 0 && rec.Header().Get("Content-Type") != "text/plain" {
		_ = json.Unmarshal(rec.Body.Bytes(), &out)
	}
	return rec, out
}

func TestHealthAndCorrelationID(t *testing.T) {
	e := newEnv(t, nil)
	rec, body := e.do(t, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK || body["status"] != "healthy" {
		t.Fatalf("health = %d %v", rec.Code, body)
	}
	if rec.Header().Get(CorrelationHeader) == "" {
		t.Fatal("missing correlation id header")
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(CorrelationHeader, "given-id")
	rec = httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	if got := rec.Header().Get(CorrelationHeader); got != "given-id" {
		t.Fatalf("correlation id = %q, want given-id", got)
	}
}

func TestMetricsRoute(t *testing.T) {
	e := newEnv(t, nil)
	rec, _ := e.do(t, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK || !bytes.Contains(rec.Body.Bytes(), []byte("camscout_up")) {
		t.Fatalf("metrics = %d %q", rec.Code, rec.Body.String())
	}
}

func TestDiscoverFlow(t *testing.T) {
	e := newEnv(t, nil)

	rec, _ := e.do(t, http.MethodGet, "/api/cameras/discover/results", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("results before discover = %d, want 404", rec.Code)
	}

	rec, body := e.do(t, http.MethodPost, "/api/cameras/discover", map[string]interface{}{"network": "10.1.1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("discover = %d %v", rec.Code, body)
	}
	data := body["data"].(map[string]interface{})
	if data["totalFound"].(float64) != 1 || body["fromCache"] != false {
		t.Fatalf("discover body = %v", body)
	}

	rec, body = e.do(t, http.MethodPost, "/api/cameras/discover", map[string]interface{}{"network": "10.1.1"})
	if rec.Code != http.StatusOK || body["fromCache"] != true {
		t.Fatalf("second discover = %d %v, want cached", rec.Code, body)
	}

	rec, body = e.do(t, http.MethodGet, "/api/cameras/discover/status", nil)
	st := body["data"].(map[string]interface{})
	if rec.Code != http.StatusOK || st["total_found"].(float64) != 1 || st["running"] != false {
		t.Fatalf("status = %d %v", rec.Code, body)
	}

	rec, _ = e.do(t, http.MethodGet, "/api/cameras/discover/results", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("results = %d", rec.Code)
	}
}

func TestDiscoverEmptyBodyAndInvalidNetwork(t *testing.T) {
	e := newEnv(t, nil)
	rec, _ := e.do(t, http.MethodPost, "/api/cameras/discover", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("empty body discover = %d, want 200", rec.Code)
	}
	rec, _ = e.do(t, http.MethodPost, "/api/cameras/discover", map[string]interface{}{"network": "10.1"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid network = %d, want 400", rec.Code)
	}
}

func TestProbe(t *testing.T) {
	e := newEnv(t, nil)
	rec, body := e.do(t, http.MethodPost, "/api/cameras/probe", map[string]string{"ip": camera.Address})
	if rec.Code != http.StatusOK || body["data"].(map[string]interface{})["manufacturer"] != "Dahua" {
		t.Fatalf("probe = %d %v", rec.Code, body)
	}
	rec, _ = e.do(t, http.MethodPost, "/api/cameras/probe", map[string]string{"ip": "10.1.1.99"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("probe non-camera = %d, want 404", rec.Code)
	}
	rec, _ = e.do(t, http.MethodPost, "/api/cameras/probe", map[string]string{"ip": "not-an-ip"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("probe invalid ip = %d, want 400", rec.Code)
	}
}

func TestCaptureUsesDiscoveredDescriptor(t *testing.T) {
	e := newEnv(t, nil)
	if rec, _ := e.do(t, http.MethodPost, "/api/cameras/discover", nil); rec.Code != http.StatusOK {
		t.Fatal("discover failed")
	}

	rec, body := e.do(t, http.MethodPost, "/api/cameras/capture", map[string]string{
		"ip": camera.Address, "username": "admin", "password": "pw",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("capture = %d %v", rec.Code, body)
	}
	if e.ladder.last.Port != 8080 || e.ladder.last.Manufacturer != "Dahua" || e.ladder.last.Username != "admin" {
		t.Fatalf("descriptor = %+v", e.ladder.last)
	}
	data := body["data"].(map[string]interface{})
	img, err := base64.StdEncoding.DecodeString(data["image_base64"].(string))
	if err != nil || string(img) != "jpeg!" {
		t.Fatalf("image = %q err=%v", img, err)
	}
	if data["method_used"] != "generic_cgi" {
		t.Fatalf("method_used = %v", data["method_used"])
	}
}

func TestCaptureFailure(t *testing.T) {
	e := newEnv(t, nil)
	rec, body := e.do(t, http.MethodPost, "/api/cameras/capture", map[string]string{"ip": "10.1.1.50", "username": "bad"})
	if rec.Code != http.StatusBadRequest || body["code"] != string(core.KindCaptureExhausted) {
		t.Fatalf("capture failure = %d %v", rec.Code, body)
	}
	if e.ladder.last.Port != 80 || e.ladder.last.Manufacturer != core.UnknownManufacturer {
		t.Fatalf("fallback descriptor = %+v", e.ladder.last)
	}
}

func TestAnalyzeHoldsLock(t *testing.T) {
	var sawActive int
	var e *testEnv
	e = newEnv(t, jobFunc(func(_ context.Context, req analysisjob.Request) (*analysisjob.Result, error) {
		sawActive = e.locks.Stats().ActiveCount
		if req.CorrelationID == "" {
			t.Error("job called without correlation id")
		}
		return &analysisjob.Result{StatusCode: 200, Body: map[string]interface{}{"faces": 3.0}}, nil
	}))

	rec, body := e.do(t, http.MethodPost, "/api/lessons/55/analyze", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("analyze = %d %v", rec.Code, body)
	}
	if sawActive != 1 {
		t.Fatalf("active locks during job = %d, want 1", sawActive)
	}

	// cooldown
	rec, body = e.do(t, http.MethodPost, "/api/lessons/55/analyze", nil)
	if rec.Code != http.StatusTooManyRequests || body["code"] != string(core.KindAnalysisTooFrequent) {
		t.Fatalf("second analyze = %d %v", rec.Code, body)
	}

	rec, body = e.do(t, http.MethodGet, "/api/analysis/stats", nil)
	stats := body["data"].(map[string]interface{})
	if rec.Code != http.StatusOK || stats["recently_completed_count"].(float64) != 1 {
		t.Fatalf("stats = %d %v", rec.Code, body)
	}

	rec, body = e.do(t, http.MethodDelete, "/api/analysis/locks/55", nil)
	if rec.Code != http.StatusOK || body["data"].(map[string]interface{})["removed"].(float64) != 1 {
		t.Fatalf("cleanup = %d %v", rec.Code, body)
	}
	if rec, _ = e.do(t, http.MethodPost, "/api/lessons/55/analyze", nil); rec.Code != http.StatusOK {
		t.Fatalf("analyze after cleanup = %d, want 200", rec.Code)
	}
}

func TestAnalyzeNotConfigured(t *testing.T) {
	e := newEnv(t, nil)
	rec, _ := e.do(t, http.MethodPost, "/api/lessons/1/analyze", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("analyze without job = %d, want 503", rec.Code)
	}
	if e.locks.Stats().ActiveCount != 0 {
		t.Fatal("lock leaked after failed analyze")
	}
}
