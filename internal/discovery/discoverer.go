// internal/discovery/discoverer.go
package discovery

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sua-org/cam-scout/internal/core"
)

// HostScanner é a parte do scanner que o discovery usa.
type HostScanner interface {
	Prefixes(ctx context.Context, explicit string) []string
	ScanAll(ctx context.Context, prefixes []string) ([]string, error)
}

// HostClassifier é a parte do classifier que o discovery usa.
type HostClassifier interface {
	Probe(ctx context.Context, host string) (core.CameraDescriptor, error)
}

// Pass é o resultado bruto de uma passada de discovery.
type Pass struct {
	Cameras   []core.CameraDescriptor
	Subnets   []string
	Hosts     int
	StartedAt time.Time
	Elapsed   time.Duration
}

// Report converte a passada no formato exportado.
func (p Pass) Report() core.DiscoveryReport {
	return BuildReport(p.Cameras, p.Subnets, p.StartedAt, p.Elapsed)
}

// Discoverer junta scanner e classifier: varre, classifica em paralelo limitado
// e devolve só os positivos, ordenados por endereço.
type Discoverer struct {
	scanner      HostScanner
	classifier   HostClassifier
	maxInFlight  int
	scanDeadline time.Duration
	now          func() time.Time
	log          *slog.Logger
}

func NewDiscoverer(s HostScanner, c HostClassifier, maxInFlight int, scanDeadline time.Duration) *Discoverer {
	if maxInFlight <= 0 {
		maxInFlight = 16
	}
	return &Discoverer{
		scanner:      s,
		classifier:   c,
		maxInFlight:  maxInFlight,
		scanDeadline: scanDeadline,
		now:          time.Now,
		log:          slog.With("component", "discovery"),
	}
}

// Discover devolve as câmeras encontradas na subnet (ou nas subnets locais, se vazia).
func (d *Discoverer) Discover(ctx context.Context, subnet string) ([]core.CameraDescriptor, error) {
	p, err := d.Run(ctx, subnet)
	if err != nil {
		return nil, err
	}
	return p.Cameras, nil
}

func (d *Discoverer) Run(ctx context.Context, subnet string) (Pass, error) {
	start := d.now()
	pass := Pass{StartedAt: start.UTC(), Subnets: d.scanner.Prefixes(ctx, subnet)}

	scanCtx, cancel := ctx, context.CancelFunc(func() {})
	if d.scanDeadline > 0 {
		scanCtx, cancel = context.WithTimeout(ctx, d.scanDeadline)
	}
	hosts, err := d.scanner.ScanAll(scanCtx, pass.Subnets)
	cancel()
	if err != nil {
		return Pass{}, err
	}
	pass.Hosts = len(hosts)
	d.log.Info("scan phase done", "subnets", pass.Subnets, "alive", len(hosts))

	var (
		mu   sync.Mutex
		cams []core.CameraDescriptor
	)
	var g errgroup.Group
	g.SetLimit(d.maxInFlight)
	for _, host := range hosts {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			desc, err := d.classifier.Probe(ctx, host)
			if err != nil {
				if !errors.Is(err, core.ErrNotACamera) && !errors.Is(err, core.ErrHostUnreachable) {
					d.log.Debug("classify failed", "host", host, "error", err)
				}
				return nil
			}
			mu.Lock()
			cams = append(cams, desc)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	sortByAddress(cams)
	pass.Cameras = cams
	pass.Elapsed = d.now().Sub(start)
	d.log.Info("discovery finished",
		"subnets", pass.Subnets,
		"hosts", pass.Hosts,
		"cameras", len(cams),
		"elapsed_ms", pass.Elapsed.Milliseconds(),
	)
	return pass, nil
}

func sortByAddress(cams []core.CameraDescriptor) {
	sort.Slice(cams, func(i, j int) bool {
		a, b := net.ParseIP(cams[i].Address).To4(), net.ParseIP(cams[j].Address).To4()
		if a == nil || b == nil {
			return cams[i].Address < cams[j].Address
		}
		for k := 0; k < 4; k++ {
			if a[k] != b[k] {
				return a[k] < b[k]
			}
		}
		return cams[i].Port < cams[j].Port
	})
}
