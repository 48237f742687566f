package discovery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"net/url"
	"os"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sua-org/cam-scout/internal/classifier"
	"github.com/sua-org/cam-scout/internal/config"
	"github.com/sua-org/cam-scout/internal/core"
	"github.com/sua-org/cam-scout/internal/emulator"
	"github.com/sua-org/cam-scout/internal/scanner"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type fakeClassifier struct {
	cams  map[string]core.CameraDescriptor
	block chan struct{}
	calls int32
}

func (f *fakeClassifier) Probe(ctx context.Context, host string) (core.CameraDescriptor, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return core.CameraDescriptor{}, ctx.Err()
		}
	}
	if d, ok := f.cams[host]; ok {
		return d, nil
	}
	return core.CameraDescriptor{}, fmt.Errorf("%w: %s", core.ErrNotACamera, host)
}

func liveScanner(live ...string) *scanner.Scanner {
	set := make(map[string]bool)
	for _, a := range live {
		set[a] = true
	}
	return scanner.NewWithProber(scanner.ProberFunc(func(_ context.Context, addr string) bool {
		return set[addr]
	}), 32, "10.9.8")
}

func TestDiscoverEmulatorOnLoopback(t *testing.T) {
	srv := httptest.NewServer(emulator.New(emulator.DefaultConfig()).Handler())
	defer srv.Close()
	u, _ := url.Parse(srv.URL)
	port, _ := strconv.Atoi(u.Port())

	sc := scanner.New(config.ScanConfig{ProbePorts: []int{port}, ProbeTimeout: 300 * time.Millisecond, MaxConcurrency: 64})
	cl := classifier.New(config.ClassifyConfig{
		Ports:        []int{port},
		HTTPTimeout:  time.Second,
		ONVIFTimeout: time.Second,
		Username:     "admin",
		Password:     "admin123",
	}, nil)

	cams, err := NewDiscoverer(sc, cl, 8, 10*time.Second).Discover(context.Background(), "127.0.0")
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(cams) != 1 {
		t.Fatalf("found %d cameras, want 1: %+v", len(cams), cams)
	}
	c := cams[0]
	if c.Address != "127.0.0.1" || c.Port != port {
		t.Errorf("camera at %s:%d, want 127.0.0.1:%d", c.Address, c.Port, port)
	}
	if c.Manufacturer != "DevTesting" || c.Model != "SIMULATOR IPC-SIM 3MP" {
		t.Errorf("identity = %q / %q", c.Manufacturer, c.Model)
	}
	if !c.ONVIFSupported || !c.AuthRequired || c.Confidence != core.ConfidenceMedium {
		t.Errorf("descriptor = %+v", c)
	}
}

func TestDiscoverKeepsOnlyCamerasSorted(t *testing.T) {
	fc := &fakeClassifier{cams: map[string]core.CameraDescriptor{
		"10.9.8.200": {Address: "10.9.8.200", Port: 80},
		"10.9.8.7":   {Address: "10.9.8.7", Port: 8080},
	}}
	d := NewDiscoverer(liveScanner("10.9.8.7", "10.9.8.30", "10.9.8.200"), fc, 4, 0)

	p, err := d.Run(context.Background(), "10.9.8")
	if err != nil {
		t.Fatal(err)
	}
	if p.Hosts != 3 || fc.calls != 3 {
		t.Fatalf("hosts = %d, probes = %d; want 3, 3", p.Hosts, fc.calls)
	}
	if len(p.Cameras) != 2 || p.Cameras[0].Address != "10.9.8.7" || p.Cameras[1].Address != "10.9.8.200" {
		t.Fatalf("cameras = %+v", p.Cameras)
	}
	if len(p.Subnets) != 1 || p.Subnets[0] != "10.9.8" {
		t.Fatalf("subnets = %v", p.Subnets)
	}
}

func TestDiscoverInvalidSubnet(t *testing.T) {
	d := NewDiscoverer(liveScanner(), &fakeClassifier{}, 4, 0)
	if _, err := d.Discover(context.Background(), "10.9"); !errors.Is(err, core.ErrInvalidSubnet) {
		t.Fatalf("err = %v, want ErrInvalidSubnet", err)
	}
}

func TestBuildReport(t *testing.T) {
	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	r := BuildReport([]core.CameraDescriptor{{
		Address:         "192.168.1.20",
		Port:            80,
		Manufacturer:    "IMOU",
		Model:           "IMOU Camera",
		FirmwareVersion: "2.840",
		ProtocolType:    core.ProtocolONVIF,
		ONVIFSupported:  true,
		Confidence:      core.ConfidenceHigh,
	}}, []string{"192.168.1"}, ts, 1500*time.Millisecond)

	var buf bytes.Buffer
	if err := WriteJSON(&buf, r); err != nil {
		t.Fatal(err)
	}
	var got map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got["totalFound"] != float64(1) || got["elapsedMs"] != float64(1500) {
		t.Fatalf("report header = %v", got)
	}
	cam := got["cameras"].([]interface{})[0].(map[string]interface{})
	want := map[string]interface{}{
		"ip":                 "192.168.1.20",
		"type":               "onvif",
		"onvifSupport":       true,
		"authRequired":       false,
		"firmware":           "2.840",
		"suggested_name":     "IMOU IMOU Camera (192.168.1.20)",
		"suggested_username": "admin",
		"confidence":         "high",
	}
	for k, v := range want {
		if cam[k] != v {
			t.Errorf("camera[%s] = %v, want %v", k, cam[k], v)
		}
	}
}

func TestServiceCachesReport(t *testing.T) {
	fc := &fakeClassifier{cams: map[string]core.CameraDescriptor{"10.9.8.7": {Address: "10.9.8.7"}}}
	svc := NewService(NewDiscoverer(liveScanner("10.9.8.7"), fc, 4, 0), time.Minute)
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	if _, err := svc.Results(); !errors.Is(err, ErrNoResults) {
		t.Fatalf("Results before any run: err = %v", err)
	}

	var completed int
	svc.OnComplete(func(p Pass) { completed += len(p.Cameras) })

	r, cached, err := svc.Run(context.Background(), "10.9.8", false)
	if err != nil || cached || r.TotalFound != 1 {
		t.Fatalf("first run: total=%d cached=%v err=%v", r.TotalFound, cached, err)
	}
	if _, cached, _ = svc.Run(context.Background(), "10.9.8", false); !cached {
		t.Fatal("second run inside TTL was not served from cache")
	}
	if fc.calls != 1 {
		t.Fatalf("probes = %d, want 1", fc.calls)
	}
	if _, cached, _ = svc.Run(context.Background(), "10.9.8", true); cached {
		t.Fatal("forced run served from cache")
	}

	now = now.Add(2 * time.Minute)
	if _, cached, _ = svc.Run(context.Background(), "10.9.8", false); cached {
		t.Fatal("run after TTL served from cache")
	}
	if completed != 3 {
		t.Fatalf("OnComplete saw %d cameras, want 3 (one per fresh pass)", completed)
	}

	st := svc.Status()
	if st.Running || st.LastRun == nil || st.TotalFound != 1 || !st.Cached {
		t.Fatalf("status = %+v", st)
	}
	if d, ok := svc.Lookup("10.9.8.7"); !ok || d.Address != "10.9.8.7" {
		t.Fatal("Lookup did not find the discovered camera")
	}
}

func TestServiceRejectsConcurrentRun(t *testing.T) {
	fc := &fakeClassifier{
		cams:  map[string]core.CameraDescriptor{"10.9.8.7": {Address: "10.9.8.7"}},
		block: make(chan struct{}),
	}
	svc := NewService(NewDiscoverer(liveScanner("10.9.8.7"), fc, 4, 0), time.Minute)

	done := make(chan error, 1)
	go func() {
		_, _, err := svc.Run(context.Background(), "10.9.8", true)
		done <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for atomic.LoadInt32(&fc.calls) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("first run never reached the classifier")
		}
		time.Sleep(time.Millisecond)
	}
	if !svc.Status().Running {
		t.Fatal("status does not report the running pass")
	}
	if _, _, err := svc.Run(context.Background(), "10.9.8", true); !errors.Is(err, ErrDiscoveryRunning) {
		t.Fatalf("concurrent run: err = %v, want ErrDiscoveryRunning", err)
	}

	close(fc.block)
	if err := <-done; err != nil {
		t.Fatalf("first run: %v", err)
	}
}

func TestServiceDiscardsCancelledPass(t *testing.T) {
	fc := &fakeClassifier{
		cams:  map[string]core.CameraDescriptor{"10.9.8.7": {Address: "10.9.8.7"}},
		block: make(chan struct{}),
	}
	svc := NewService(NewDiscoverer(liveScanner("10.9.8.7", "10.9.8.9"), fc, 4, 0), time.Minute)
	var completed int32
	svc.OnComplete(func(Pass) { atomic.AddInt32(&completed, 1) })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, _, err := svc.Run(ctx, "10.9.8", false)
		done <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for atomic.LoadInt32(&fc.calls) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("run never reached the classifier")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled run: err = %v, want context.Canceled", err)
	}
	if _, err := svc.Results(); !errors.Is(err, ErrNoResults) {
		t.Fatalf("Results after cancelled run: err = %v, want ErrNoResults", err)
	}
	if n := atomic.LoadInt32(&completed); n != 0 {
		t.Fatalf("OnComplete ran %d times for a cancelled pass", n)
	}

	close(fc.block)
	r, cached, err := svc.Run(context.Background(), "10.9.8", false)
	if err != nil || cached || r.TotalFound != 1 {
		t.Fatalf("next run: total=%d cached=%v err=%v", r.TotalFound, cached, err)
	}
}
