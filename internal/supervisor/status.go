// internal/supervisor/status.go
package supervisor

import (
	"context"
	"os"
	"time"

	"github.com/sua-org/cam-scout/internal/analysislock"
	"github.com/sua-org/cam-scout/internal/discovery"
	"github.com/sua-org/cam-scout/internal/mqttclient"
)

// StatusPayload é publicado em <base>/status a cada StatusInterval.
type StatusPayload struct {
	Service        string            `json:"service"`
	Status         string            `json:"status"`
	Hostname       string            `json:"hostname"`
	Timestamp      time.Time         `json:"timestamp"`
	CPUPercent     float64           `json:"cpu_percent"`
	MemoryPercent  float64           `json:"memory_percent"`
	MemoryRSSBytes uint64            `json:"memory_rss_bytes"`
	Discovery      discovery.Status  `json:"discovery"`
	Locks          lockStatusSummary `json:"locks"`
}

type lockStatusSummary struct {
	Active    int      `json:"active"`
	Recent    int      `json:"recently_completed"`
	LessonIDs []string `json:"active_lessons,omitempty"`
}

func (s *Supervisor) runStatusLoop(ctx context.Context) {
	hostname, _ := os.Hostname()
	ticker := time.NewTicker(s.opts.StatusInterval)
	defer ticker.Stop()

	s.log.Info("status loop started", "interval", s.opts.StatusInterval)

	for {
		select {
		case <-ctx.Done():
			s.log.Info("status loop stopped")
			return
		case t := <-ticker.C:
			s.publishStatus(s.buildStatus(hostname, t))
		}
	}
}

func (s *Supervisor) buildStatus(hostname string, now time.Time) StatusPayload {
	p := StatusPayload{
		Service:   "cam-scout",
		Status:    "online",
		Hostname:  hostname,
		Timestamp: now.UTC(),
		Discovery: s.opts.Discovery.Status(),
		Locks:     summarizeLocks(s.opts.Locks.Stats()),
	}

	if s.proc != nil {
		if cpu, err := s.proc.CPUPercent(); err == nil {
			p.CPUPercent = cpu
		}
		if memInfo, err := s.proc.MemoryInfo(); err == nil {
			p.MemoryRSSBytes = memInfo.RSS
		}
		if memP, err := s.proc.MemoryPercent(); err == nil {
			p.MemoryPercent = float64(memP)
		}
	}
	return p
}

func (s *Supervisor) publishStatus(p StatusPayload) {
	if err := s.opts.MQTT.PublishJSON(mqttclient.TopicStatus, true, p); err != nil {
		s.log.Warn("failed to publish status", "error", err)
	}
}

func summarizeLocks(st analysislock.Snapshot) lockStatusSummary {
	out := lockStatusSummary{Active: st.ActiveCount, Recent: st.RecentCount}
	for _, a := range st.Active {
		out.LessonIDs = append(out.LessonIDs, a.LessonID)
	}
	return out
}
