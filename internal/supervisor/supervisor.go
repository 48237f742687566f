// internal/supervisor/supervisor.go
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/sua-org/cam-scout/internal/analysisjob"
	"github.com/sua-org/cam-scout/internal/analysislock"
	"github.com/sua-org/cam-scout/internal/core"
	"github.com/sua-org/cam-scout/internal/discovery"
	"github.com/sua-org/cam-scout/internal/metrics"
	"github.com/sua-org/cam-scout/internal/model"
	"github.com/sua-org/cam-scout/internal/mqttclient"
	"github.com/sua-org/cam-scout/internal/storage"
)

// Publisher é o pedaço do cliente MQTT que o supervisor usa.
type Publisher interface {
	PublishJSON(sub string, retained bool, v interface{}) error
}

// EventLog grava CameraLog (Mongo em produção).
type EventLog interface {
	Create(ctx context.Context, entry *model.CameraLog) error
}

// Capturer roda a escada de captura para um descritor.
type Capturer interface {
	Capture(ctx context.Context, d core.CameraDescriptor) core.CaptureResult
}

// JobRunner dispara o job externo de análise.
type JobRunner interface {
	Run(ctx context.Context, req analysisjob.Request) (*analysisjob.Result, error)
}

// Options agrupa as dependências. MQTT, Store, Logs, Jobs e Metrics podem ser nil.
type Options struct {
	Discovery *discovery.Service
	Ladder    Capturer
	Locks     *analysislock.Manager
	Jobs      JobRunner
	Metrics   *metrics.Metrics

	MQTT  Publisher
	Store storage.SnapshotStore
	Logs  EventLog

	// Schedule em sintaxe cron de 5 campos; vazio desliga a redescoberta agendada.
	Schedule       string
	Subnet         string
	StatusInterval time.Duration
}

type Supervisor struct {
	opts Options
	log  *slog.Logger
	now  func() time.Time

	cron *cron.Cron
	proc *process.Process

	mu      sync.Mutex
	started bool
}

func New(opts Options) (*Supervisor, error) {
	if opts.Discovery == nil || opts.Ladder == nil || opts.Locks == nil {
		return nil, errors.New("supervisor: discovery, ladder and locks are required")
	}

	s := &Supervisor{
		opts: opts,
		log:  slog.With("component", "supervisor"),
		now:  time.Now,
	}

	if opts.Schedule != "" {
		parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
		if _, err := parser.Parse(opts.Schedule); err != nil {
			return nil, fmt.Errorf("invalid discovery schedule %q: %w", opts.Schedule, err)
		}
		s.cron = cron.New(cron.WithParser(parser))
	}

	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		s.proc = p
	} else {
		s.log.Warn("process metrics unavailable", "error", err)
	}

	opts.Discovery.OnComplete(s.onDiscovery)
	opts.Locks.SetEventHook(s.onLockEvent)
	return s, nil
}

// Discover roda (ou reaproveita) uma passada e registra a métrica da execução.
func (s *Supervisor) Discover(ctx context.Context, subnet string, force bool) (core.DiscoveryReport, bool, error) {
	report, cached, err := s.opts.Discovery.Run(ctx, subnet, force)
	if err != nil && !errors.Is(err, discovery.ErrDiscoveryRunning) && s.opts.Metrics != nil {
		s.opts.Metrics.ObserveDiscovery(0, 0, err)
	}
	return report, cached, err
}

// Analyze chama o job externo. O lock da aula já deve estar com quem chama.
func (s *Supervisor) Analyze(ctx context.Context, lessonID, correlationID string) (*analysisjob.Result, error) {
	if s.opts.Jobs == nil {
		return nil, analysisjob.ErrNotConfigured
	}
	return s.opts.Jobs.Run(ctx, analysisjob.Request{LessonID: lessonID, CorrelationID: correlationID})
}

func (s *Supervisor) Discovery() *discovery.Service { return s.opts.Discovery }

func (s *Supervisor) Locks() *analysislock.Manager { return s.opts.Locks }

// Run liga o cron e o loop de status e bloqueia até ctx terminar.
func (s *Supervisor) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("supervisor already running")
	}
	s.started = true
	s.mu.Unlock()

	if s.cron != nil {
		if _, err := s.cron.AddFunc(s.opts.Schedule, func() { s.scheduledDiscovery(ctx) }); err != nil {
			return fmt.Errorf("schedule discovery: %w", err)
		}
		s.cron.Start()
		s.log.Info("scheduled rediscovery enabled", "schedule", s.opts.Schedule, "subnet", s.opts.Subnet)
	}

	var wg sync.WaitGroup
	if s.opts.MQTT != nil && s.opts.StatusInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.runStatusLoop(ctx)
		}()
	}

	<-ctx.Done()

	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	wg.Wait()
	s.opts.Locks.Close()
	s.log.Info("supervisor stopped")
	return nil
}

func (s *Supervisor) scheduledDiscovery(ctx context.Context) {
	report, _, err := s.Discover(ctx, s.opts.Subnet, true)
	switch {
	case errors.Is(err, discovery.ErrDiscoveryRunning):
		s.log.Info("scheduled discovery skipped, pass already running")
	case err != nil:
		s.log.Error("scheduled discovery failed", "error", err)
	default:
		s.log.Info("scheduled discovery finished", "total_found", report.TotalFound, "elapsed_ms", report.ElapsedMs)
	}
}

// onDiscovery roda depois de cada passada nova: métricas, CameraLog e MQTT.
func (s *Supervisor) onDiscovery(p discovery.Pass) {
	if s.opts.Metrics != nil {
		s.opts.Metrics.ObserveDiscovery(len(p.Cameras), p.Elapsed, nil)
	}

	if s.opts.Logs != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		for _, c := range p.Cameras {
			entry := &model.CameraLog{
				Event:          model.EventDiscovery,
				IP:             c.Address,
				Port:           c.Port,
				ResponseTimeMs: p.Elapsed.Milliseconds(),
				Metadata: map[string]interface{}{
					"manufacturer": c.Manufacturer,
					"model":        c.Model,
					"confidence":   string(c.Confidence),
					"onvif":        c.ONVIFSupported,
				},
				CreatedAt: s.now().UTC(),
			}
			if err := s.opts.Logs.Create(ctx, entry); err != nil {
				s.log.Warn("failed to record discovery event", "ip", c.Address, "error", err)
			}
		}
		cancel()
	}

	if s.opts.MQTT != nil {
		if err := s.opts.MQTT.PublishJSON(mqttclient.TopicDiscovery, true, p.Report()); err != nil {
			s.log.Warn("failed to publish discovery report", "error", err)
		}
	}
}

func (s *Supervisor) onLockEvent(ev analysislock.Event) {
	if s.opts.Metrics != nil {
		s.opts.Metrics.ObserveLockEvent(ev)
	}
	if s.opts.MQTT != nil {
		if err := s.opts.MQTT.PublishJSON(mqttclient.TopicLocks, false, ev); err != nil {
			s.log.Warn("failed to publish lock event", "type", ev.Type, "error", err)
		}
	}
}
