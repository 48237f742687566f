// internal/capture/ladder.go
package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/sua-org/cam-scout/internal/camhttp"
	"github.com/sua-org/cam-scout/internal/config"
	"github.com/sua-org/cam-scout/internal/core"
	"github.com/sua-org/cam-scout/internal/onvif"
)

// Strategy é um degrau da escada. Todas compartilham a mesma assinatura.
type Strategy struct {
	Name string
	Run  func(ctx context.Context, d core.CameraDescriptor) (*Frame, error)
}

// Frame é o payload de imagem devolvido por uma estratégia.
type Frame struct {
	Data        []byte
	ContentType string
	URL         string
	StatusCode  int
}

// Ladder tenta as estratégias em ordem estrita e para na primeira que entrega imagem.
type Ladder struct {
	http     *camhttp.Client
	onvif    *onvif.Client
	timeout  time.Duration
	maxBytes int64
	now      func() time.Time
	log      *slog.Logger
}

func New(cfg config.CaptureConfig, client *camhttp.Client) *Ladder {
	if client == nil {
		client = camhttp.NewClient()
	}
	l := &Ladder{
		http:     client,
		onvif:    onvif.NewClient(client),
		timeout:  cfg.StrategyTimeout,
		maxBytes: cfg.MaxImageBytes,
		now:      time.Now,
		log:      slog.With("component", "capture"),
	}
	if l.timeout <= 0 {
		l.timeout = 5 * time.Second
	}
	if l.maxBytes <= 0 {
		l.maxBytes = 10 << 20
	}
	return l
}

// Strategies monta a escada para o descritor: preferido, fabricante, genéricos, ONVIF.
func (l *Ladder) Strategies(d core.CameraDescriptor) []Strategy {
	var (
		out  []Strategy
		seen = make(map[string]bool)
	)
	addPath := func(p SnapshotPath) {
		if p.Path == "" || seen[p.Path] {
			return
		}
		seen[p.Path] = true
		out = append(out, Strategy{Name: p.Name, Run: l.httpSnapshot(p.Path)})
	}

	if d.PreferredPath != "" {
		addPath(SnapshotPath{Name: "preferred", Path: d.PreferredPath})
	}
	for _, p := range VendorPaths(d.Manufacturer) {
		addPath(p)
	}
	for _, p := range GenericPaths {
		addPath(p)
	}
	if d.ONVIFSupported || d.ProtocolType == core.ProtocolONVIF {
		out = append(out, Strategy{Name: "onvif_snapshot", Run: l.onvifSnapshot})
	}
	return out
}

// Capture percorre a escada. Nunca devolve erro fora do resultado.
func (l *Ladder) Capture(ctx context.Context, d core.CameraDescriptor) core.CaptureResult {
	return l.Run(ctx, d, l.Strategies(d))
}

// Run executa uma escada explícita.
func (l *Ladder) Run(ctx context.Context, d core.CameraDescriptor, strategies []Strategy) core.CaptureResult {
	start := l.now()
	res := core.CaptureResult{}

	var (
		lastErr    error
		lastMethod string
	)
	for _, s := range strategies {
		if ctx.Err() != nil {
			lastErr, lastMethod = keepMeaningful(lastErr, lastMethod, ctx.Err(), s.Name)
			break
		}

		t0 := l.now()
		sctx, cancel := context.WithTimeout(ctx, l.timeout)
		frame, err := l.runGuarded(sctx, s, d)
		cancel()

		attempt := core.CaptureAttempt{Method: s.Name, ElapsedMs: l.now().Sub(t0).Milliseconds()}
		if frame != nil {
			attempt.URL, attempt.StatusCode = frame.URL, frame.StatusCode
		}
		if err == nil {
			res.Attempts = append(res.Attempts, attempt)
			l.fillSuccess(&res, s.Name, frame)
			res.ElapsedMs = l.now().Sub(start).Milliseconds()
			l.log.Info("capture succeeded",
				"host", d.Address,
				"method", s.Name,
				"bytes", res.FileSizeBytes,
				"elapsed_ms", res.ElapsedMs,
			)
			return res
		}

		attempt.Error = err.Error()
		res.Attempts = append(res.Attempts, attempt)
		lastErr, lastMethod = keepMeaningful(lastErr, lastMethod, err, s.Name)
		l.log.Debug("capture strategy failed", "host", d.Address, "method", s.Name, "error", err)
	}

	if lastErr == nil {
		lastErr = errors.New("no capture strategy applicable")
	}
	res.Err = fmt.Errorf("%w: %s: %w", core.ErrCaptureExhausted, lastMethod, lastErr)
	res.Error = res.Err.Error()
	res.ErrorKind = core.KindCaptureExhausted
	res.ElapsedMs = l.now().Sub(start).Milliseconds()
	l.log.Warn("capture exhausted", "host", d.Address, "attempts", len(res.Attempts), "last_error", lastErr)
	return res
}

// keepMeaningful troca o último erro, exceto quando o novo é só timeout e já
// temos um erro com diagnóstico melhor.
func keepMeaningful(cur error, curMethod string, next error, nextMethod string) (error, string) {
	if cur != nil && core.IsTimeout(next) && !core.IsTimeout(cur) {
		return cur, curMethod
	}
	return next, nextMethod
}

func (l *Ladder) runGuarded(ctx context.Context, s Strategy, d core.CameraDescriptor) (frame *Frame, err error) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("panic in capture strategy", "method", s.Name, "panic", r, "stack", string(debug.Stack()))
			frame, err = nil, fmt.Errorf("%w: panic in %s", core.ErrCaptureStrategyFailed, s.Name)
		}
	}()
	return s.Run(ctx, d)
}

func (l *Ladder) fillSuccess(res *core.CaptureResult, method string, f *Frame) {
	res.Succeeded = true
	res.MethodUsed = method
	res.Image = f.Data
	res.ContentType = f.ContentType
	if res.ContentType == "" {
		res.ContentType = "image/jpeg"
	}
	res.FileSizeBytes = len(f.Data)
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(f.Data)); err == nil {
		res.Resolution = fmt.Sprintf("%dx%d", cfg.Width, cfg.Height)
	}
}
