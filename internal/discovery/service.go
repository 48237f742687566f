// internal/discovery/service.go
package discovery

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sua-org/cam-scout/internal/core"
)

var (
	ErrDiscoveryRunning = errors.New("discovery already in progress")
	ErrNoResults        = errors.New("no discovery results available")
)

// Status é o que a rota de status devolve.
type Status struct {
	Running    bool       `json:"running"`
	LastRun    *time.Time `json:"last_run,omitempty"`
	Cached     bool       `json:"cached"`
	TotalFound int        `json:"total_found"`
}

// Service serializa passadas de discovery e guarda o último relatório por um TTL.
type Service struct {
	disc *Discoverer
	ttl  time.Duration
	now  func() time.Time
	log  *slog.Logger

	mu         sync.Mutex
	running    bool
	lastRun    time.Time
	lastSubnet string
	report     *core.DiscoveryReport
	cameras    []core.CameraDescriptor
	onComplete []func(Pass)
}

func NewService(d *Discoverer, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Service{
		disc: d,
		ttl:  ttl,
		now:  time.Now,
		log:  slog.With("component", "discovery"),
	}
}

// OnComplete registra um callback chamado depois de cada passada nova (não de cache).
func (s *Service) OnComplete(fn func(Pass)) {
	s.mu.Lock()
	s.onComplete = append(s.onComplete, fn)
	s.mu.Unlock()
}

// Run executa (ou reaproveita do cache) uma passada. cached=true quando nada foi varrido.
func (s *Service) Run(ctx context.Context, subnet string, force bool) (report core.DiscoveryReport, cached bool, err error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return core.DiscoveryReport{}, false, ErrDiscoveryRunning
	}
	if !force && s.freshLocked(subnet) {
		r := *s.report
		s.mu.Unlock()
		s.log.Debug("serving cached discovery report", "subnet", subnet, "total", r.TotalFound)
		return r, true, nil
	}
	s.running = true
	s.mu.Unlock()

	pass, err := s.disc.Run(ctx, subnet)

	s.mu.Lock()
	s.running = false
	if err != nil {
		s.mu.Unlock()
		return core.DiscoveryReport{}, false, err
	}
	if ctx.Err() != nil {
		// quem pediu desistiu no meio; passada parcial não vira cache
		s.mu.Unlock()
		s.log.Warn("discovery pass cancelled, result discarded", "subnet", subnet, "error", ctx.Err())
		return core.DiscoveryReport{}, false, ctx.Err()
	}
	r := pass.Report()
	s.report = &r
	s.cameras = pass.Cameras
	s.lastRun = s.now()
	s.lastSubnet = subnet
	hooks := append([]func(Pass){}, s.onComplete...)
	s.mu.Unlock()

	for _, fn := range hooks {
		fn(pass)
	}
	return r, false, nil
}

func (s *Service) freshLocked(subnet string) bool {
	return s.report != nil && subnet == s.lastSubnet && s.now().Sub(s.lastRun) < s.ttl
}

func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{Running: s.running}
	if s.report != nil {
		t := s.lastRun.UTC()
		st.LastRun = &t
		st.TotalFound = s.report.TotalFound
		st.Cached = s.now().Sub(s.lastRun) < s.ttl
	}
	return st
}

// Results devolve o último relatório, mesmo que já fora do TTL.
func (s *Service) Results() (core.DiscoveryReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.report == nil {
		return core.DiscoveryReport{}, ErrNoResults
	}
	return *s.report, nil
}

// Lookup procura um descritor da última passada pelo IP.
func (s *Service) Lookup(ip string) (core.CameraDescriptor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.cameras {
		if c.Address == ip {
			return c, true
		}
	}
	return core.CameraDescriptor{}, false
}
