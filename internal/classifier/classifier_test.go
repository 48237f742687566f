package classifier

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sua-org/cam-scout/internal/config"
	"github.com/sua-org/cam-scout/internal/core"
	"github.com/sua-org/cam-scout/internal/emulator"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func portOf(t *testing.T, rawURL string) int {
	t.Helper()
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatal(err)
	}
	p, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatal(err)
	}
	return p
}

// closedPort devolve uma porta local em que ninguém escuta.
func closedPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

func newClassifier(ports []int, user, pass string) *Classifier {
	return New(config.ClassifyConfig{
		Ports:        ports,
		HTTPTimeout:  time.Second,
		ONVIFTimeout: time.Second,
		Username:     user,
		Password:     pass,
	}, nil)
}

func TestProbeEmulatorWithSiteCredentials(t *testing.T) {
	srv := httptest.NewServer(emulator.New(emulator.DefaultConfig()).Handler())
	defer srv.Close()
	port := portOf(t, srv.URL)

	c := newClassifier([]int{closedPort(t), port}, "admin", "admin123")
	d, err := c.Probe(context.Background(), "127.0.0.1")
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if d.Port != port {
		t.Errorf("Port = %d, want %d", d.Port, port)
	}
	if d.Manufacturer != "DevTesting" || d.Model != "SIMULATOR IPC-SIM 3MP" {
		t.Errorf("identity = %q / %q", d.Manufacturer, d.Model)
	}
	if d.FirmwareVersion != "1.0.0" {
		t.Errorf("firmware = %q", d.FirmwareVersion)
	}
	if !d.ONVIFSupported || d.ProtocolType != core.ProtocolONVIF {
		t.Errorf("onvif = %v, type = %q", d.ONVIFSupported, d.ProtocolType)
	}
	if !d.AuthRequired || d.Confidence != core.ConfidenceMedium {
		t.Errorf("auth_required = %v, confidence = %q", d.AuthRequired, d.Confidence)
	}
	if d.HasCredentials() {
		t.Error("descriptor must not carry the site credentials")
	}
}

func TestProbeEmulatorWithoutCredentials(t *testing.T) {
	srv := httptest.NewServer(emulator.New(emulator.DefaultConfig()).Handler())
	defer srv.Close()

	d, err := newClassifier([]int{portOf(t, srv.URL)}, "", "").Probe(context.Background(), "127.0.0.1")
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	// Só o header Server é visível atrás do 401.
	if d.Manufacturer != "DevTesting" || d.Model != "Camera Simulator" {
		t.Errorf("identity = %q / %q", d.Manufacturer, d.Model)
	}
	if !d.AuthRequired || d.ONVIFSupported || d.ProtocolType != core.ProtocolHTTP {
		t.Errorf("descriptor = %+v", d)
	}
}

func TestProbeAuthGatedUnknownDevice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("WWW-Authenticate", `Basic realm="cam"`)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	d, err := newClassifier([]int{portOf(t, srv.URL)}, "", "").Probe(context.Background(), "127.0.0.1")
	if err != nil {
		t.Fatalf("401-only host rejected: %v", err)
	}
	if d.Manufacturer != core.UnknownManufacturer || d.Model != "IP Camera (Auth Required)" {
		t.Errorf("identity = %q / %q", d.Manufacturer, d.Model)
	}
	if !d.AuthRequired || d.Confidence != core.ConfidenceMedium {
		t.Errorf("descriptor = %+v", d)
	}
}

func TestProbeOpenDeviceWithServerFingerprint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", "Hikvision-Webs")
		if r.URL.Path == "/ISAPI/System/deviceInfo" {
			w.Header().Set("Content-Type", "application/xml")
			_, _ = w.Write([]byte(`<DeviceInfo><model>DS-2CD2143G0-I</model><firmwareVersion>V5.6.3</firmwareVersion></DeviceInfo>`))
			return
		}
		if r.URL.Path == "/" {
			_, _ = w.Write([]byte("<html></html>"))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	d, err := newClassifier([]int{portOf(t, srv.URL)}, "", "").Probe(context.Background(), "127.0.0.1")
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if d.Manufacturer != "Hikvision" || d.Model != "DS-2CD2143G0-I" || d.FirmwareVersion != "V5.6.3" {
		t.Errorf("descriptor = %+v", d)
	}
	if d.AuthRequired || d.Confidence != core.ConfidenceHigh {
		t.Errorf("auth_required = %v, confidence = %q", d.AuthRequired, d.Confidence)
	}
}

func TestProbeNoHTTPIsNotACamera(t *testing.T) {
	_, err := newClassifier([]int{closedPort(t)}, "", "").Probe(context.Background(), "127.0.0.1")
	if !errors.Is(err, core.ErrNotACamera) {
		t.Fatalf("err = %v, want ErrNotACamera", err)
	}
}

func TestSilentHostIsUnreachable(t *testing.T) {
	// 192.0.2.0/24 (TEST-NET-1) nunca responde
	c := New(config.ClassifyConfig{Ports: []int{80, 8080}, HTTPTimeout: 200 * time.Millisecond}, nil)
	_, err := c.Probe(context.Background(), "192.0.2.1")
	if !errors.Is(err, core.ErrHostUnreachable) {
		t.Fatalf("err = %v, want ErrHostUnreachable", err)
	}
	if errors.Is(err, core.ErrNotACamera) {
		t.Fatalf("err = %v matches both sentinels", err)
	}
}

func TestFingerprint(t *testing.T) {
	cases := []struct {
		server string
		want   string
		ok     bool
	}{
		{"IMOU-Webs/2.0", "IMOU", true},
		{"DNVRS-Webs", "", false},
		{"App-webs/ Hikvision", "Hikvision", true},
		{"IPCam-Simulator/1.0", "DevTesting", true},
		{"", "", false},
	}
	for _, tc := range cases {
		r, ok := Fingerprint(tc.server, DefaultRules)
		if ok != tc.ok || r.Manufacturer != tc.want {
			t.Errorf("Fingerprint(%q) = %q,%v; want %q,%v", tc.server, r.Manufacturer, ok, tc.want, tc.ok)
		}
	}
}

func TestParseDeviceInfo(t *testing.T) {
	cases := []struct {
		name string
		body string
		want DeviceInfo
		err  bool
	}{
		{
			name: "json",
			body: `{"manufacturer":"DevTesting","model":"SIM","firmware":"1.0.0"}`,
			want: DeviceInfo{Manufacturer: "DevTesting", Model: "SIM", Firmware: "1.0.0"},
		},
		{
			name: "json nested",
			body: `{"DeviceInfo":{"model":"X1","firmwareVersion":"2.1"}}`,
			want: DeviceInfo{Model: "X1", Firmware: "2.1"},
		},
		{
			name: "xml",
			body: `<DeviceInfo><deviceName>Cam</deviceName><firmwareVersion>V1</firmwareVersion></DeviceInfo>`,
			want: DeviceInfo{Model: "Cam", Firmware: "V1"},
		},
		{
			name: "key value",
			body: "DeviceName=IPC-K42\r\nSoftwareVersion=2.840\r\n",
			want: DeviceInfo{Model: "IPC-K42", Firmware: "2.840"},
		},
		{name: "empty", body: "  ", err: true},
		{name: "html", body: "<html><body>login</body></html>", err: true},
		{name: "json without fields", body: `{"status":"ok"}`, err: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseDeviceInfo([]byte(tc.body))
			if tc.err {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tc.want {
				t.Fatalf("got %+v, want %+v", got, tc.want)
			}
		})
	}
}
