// internal/classifier/classifier.go
package classifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptrace"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/sua-org/cam-scout/internal/camhttp"
	"github.com/sua-org/cam-scout/internal/config"
	"github.com/sua-org/cam-scout/internal/core"
	"github.com/sua-org/cam-scout/internal/onvif"
)

const (
	defaultModel      = "IP Camera"
	authRequiredModel = "IP Camera (Auth Required)"
	maxProbeBody      = 64 << 10
)

// Classifier decide se um host vivo é câmera e qual protocolo ela fala.
type Classifier struct {
	http          *camhttp.Client
	onvif         *onvif.Client
	ports         []int
	rules         []Rule
	infoEndpoints []string
	httpTimeout   time.Duration
	onvifTimeout  time.Duration
	creds         *camhttp.Credentials
	now           func() time.Time
	log           *slog.Logger
}

func New(cfg config.ClassifyConfig, client *camhttp.Client) *Classifier {
	if client == nil {
		client = camhttp.NewClient()
	}
	c := &Classifier{
		http:          client,
		onvif:         onvif.NewClient(client),
		ports:         cfg.Ports,
		rules:         DefaultRules,
		infoEndpoints: DefaultInfoEndpoints,
		httpTimeout:   cfg.HTTPTimeout,
		onvifTimeout:  cfg.ONVIFTimeout,
		now:           time.Now,
		log:           slog.With("component", "classifier"),
	}
	if cfg.Username != "" {
		c.creds = &camhttp.Credentials{Username: cfg.Username, Password: cfg.Password}
	}
	if c.httpTimeout <= 0 {
		c.httpTimeout = 3 * time.Second
	}
	if c.onvifTimeout <= 0 {
		c.onvifTimeout = 2 * time.Second
	}
	return c
}

// Probe tenta as portas em ordem; a primeira que devolve qualquer resposta HTTP
// (inclusive 401) é usada. Sem resposta HTTP: core.ErrNotACamera se alguma porta
// completou ou recusou o TCP, core.ErrHostUnreachable se nenhuma respondeu.
func (c *Classifier) Probe(ctx context.Context, host string) (core.CameraDescriptor, error) {
	var reached atomic.Bool
	traced := httptrace.WithClientTrace(ctx, &httptrace.ClientTrace{
		ConnectDone: func(_, _ string, err error) {
			if err == nil || errors.Is(err, syscall.ECONNREFUSED) {
				reached.Store(true)
			}
		},
	})

	for _, port := range c.ports {
		if ctx.Err() != nil {
			break
		}
		useTLS := camhttp.IsTLSPort(port)
		status, header, body, err := c.fetch(traced, camhttp.URL(host, port, useTLS, "/"), nil)
		if err != nil {
			c.log.Debug("port did not answer HTTP", "host", host, "port", port, "error", err)
			continue
		}
		d := c.classify(ctx, host, port, useTLS, status, header, body)
		c.log.Info("camera classified",
			"host", host,
			"port", port,
			"manufacturer", d.Manufacturer,
			"model", d.Model,
			"onvif", d.ONVIFSupported,
			"auth_required", d.AuthRequired,
		)
		return d, nil
	}
	if !reached.Load() && ctx.Err() == nil {
		return core.CameraDescriptor{}, fmt.Errorf("%w: %s", core.ErrHostUnreachable, host)
	}
	return core.CameraDescriptor{}, fmt.Errorf("%w: %s", core.ErrNotACamera, host)
}

func (c *Classifier) classify(ctx context.Context, host string, port int, useTLS bool,
	status int, header http.Header, body []byte) core.CameraDescriptor {

	d := core.CameraDescriptor{
		Address:      host,
		Port:         port,
		UseTLS:       useTLS,
		Manufacturer: core.UnknownManufacturer,
		Model:        defaultModel,
		ProtocolType: core.ProtocolHTTP,
		DiscoveredAt: c.now().UTC(),
	}

	// creds só é usado depois que a câmera aceitou a credencial do site.
	var creds *camhttp.Credentials
	readable := true
	if status == http.StatusUnauthorized {
		d.AuthRequired = true
		readable = false
		if c.creds != nil {
			st, h, b, err := c.fetch(ctx, camhttp.URL(host, port, useTLS, "/"), c.creds)
			if err == nil && st != http.StatusUnauthorized {
				header, body, readable, creds = h, b, true, c.creds
			}
		}
	}

	if rule, ok := Fingerprint(header.Get("Server"), c.rules); ok {
		d.Manufacturer, d.Model = rule.Manufacturer, rule.Model
	}
	if readable {
		if info, err := ParseDeviceInfo(body); err == nil {
			applyInfo(&d, info)
		}
	}

	onvifCreds := creds
	if onvifCreds == nil && d.AuthRequired {
		onvifCreds = c.creds
	}
	c.probeONVIF(ctx, &d, onvifCreds)

	if readable {
		c.queryDeviceInfo(ctx, &d, creds)
	}

	if d.AuthRequired && d.Manufacturer == core.UnknownManufacturer && d.Model == defaultModel {
		d.Model = authRequiredModel
	}
	d.Confidence = core.ConfidenceHigh
	if d.AuthRequired || d.Manufacturer == core.UnknownManufacturer {
		d.Confidence = core.ConfidenceMedium
	}
	return d
}

// probeONVIF é best-effort: qualquer falha só deixa ONVIFSupported=false.
func (c *Classifier) probeONVIF(ctx context.Context, d *core.CameraDescriptor, creds *camhttp.Credentials) {
	endpoint := camhttp.URL(d.Address, d.Port, d.UseTLS, onvif.DeviceServicePath)

	octx, cancel := context.WithTimeout(ctx, c.onvifTimeout)
	body, status, err := c.onvif.Call(octx, endpoint, onvif.ActionGetCapabilities, onvif.GetCapabilitiesRequest(), creds)
	cancel()
	if err != nil || status != http.StatusOK {
		return
	}
	d.ONVIFSupported = true
	d.ProtocolType = core.ProtocolONVIF
	if _, err := onvif.ParseCapabilities(body); err != nil {
		c.log.Debug("GetCapabilities answered 200 with unexpected body", "host", d.Address, "error", err)
	}

	octx, cancel = context.WithTimeout(ctx, c.onvifTimeout)
	body, status, err = c.onvif.Call(octx, endpoint, onvif.ActionGetDeviceInformation, onvif.GetDeviceInformationRequest(), creds)
	cancel()
	if err != nil || status != http.StatusOK {
		return
	}
	if info, err := onvif.ParseDeviceInformation(body); err == nil {
		applyInfo(d, DeviceInfo{Manufacturer: info.Manufacturer, Model: info.Model, Firmware: info.FirmwareVersion})
	}
}

// queryDeviceInfo consulta os endpoints de device info; o primeiro que parseia vence.
func (c *Classifier) queryDeviceInfo(ctx context.Context, d *core.CameraDescriptor, creds *camhttp.Credentials) {
	for _, path := range c.infoEndpoints {
		if ctx.Err() != nil {
			return
		}
		status, _, body, err := c.fetch(ctx, camhttp.URL(d.Address, d.Port, d.UseTLS, path), creds)
		if err != nil || status != http.StatusOK {
			continue
		}
		info, err := ParseDeviceInfo(body)
		if err != nil {
			continue
		}
		applyInfo(d, info)
		return
	}
}

func (c *Classifier) fetch(ctx context.Context, rawURL string, creds *camhttp.Credentials) (int, http.Header, []byte, error) {
	fctx, cancel := context.WithTimeout(ctx, c.httpTimeout)
	defer cancel()

	resp, err := c.http.Get(fctx, rawURL, creds)
	if err != nil {
		return 0, nil, nil, err
	}
	body, err := camhttp.ReadBody(resp, maxProbeBody)
	if err != nil {
		// Resposta HTTP chegou; corpo truncado não invalida o probe.
		body = nil
	}
	return resp.StatusCode, resp.Header, body, nil
}

func applyInfo(d *core.CameraDescriptor, info DeviceInfo) {
	if info.Manufacturer != "" {
		d.Manufacturer = info.Manufacturer
	}
	if info.Model != "" {
		d.Model = info.Model
	}
	if info.Firmware != "" {
		d.FirmwareVersion = info.Firmware
	}
}
