// internal/metrics/metrics.go
package metrics

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sua-org/cam-scout/internal/analysislock"
	"github.com/sua-org/cam-scout/internal/core"
)

const namespace = "camscout"

// Metrics agrupa os coletores do cam-scout num registry próprio.
type Metrics struct {
	registry *prometheus.Registry

	discoveryRuns     *prometheus.CounterVec
	discoveryDuration prometheus.Histogram
	camerasFound      prometheus.Gauge
	captures          *prometheus.CounterVec
	captureDuration   *prometheus.HistogramVec
	lockEvents        *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		discoveryRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discovery_runs_total",
			Help:      "Discovery passes grouped by result.",
		}, []string{"result"}),
		discoveryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "discovery_duration_seconds",
			Help:      "Wall time of a discovery pass.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
		}),
		camerasFound: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cameras_discovered",
			Help:      "Cameras found by the last discovery pass.",
		}),
		captures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "captures_total",
			Help:      "Capture ladder invocations grouped by method and result.",
		}, []string{"method", "result"}),
		captureDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "capture_duration_seconds",
			Help:      "Wall time of a capture ladder invocation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"result"}),
		lockEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_lock_events_total",
			Help:      "Analysis lock state transitions grouped by type and code.",
		}, []string{"type", "code"}),
	}
	m.registry.MustRegister(
		m.discoveryRuns,
		m.discoveryDuration,
		m.camerasFound,
		m.captures,
		m.captureDuration,
		m.lockEvents,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Register adiciona um coletor extra (ex.: LockCollector).
func (m *Metrics) Register(c prometheus.Collector) error {
	return m.registry.Register(c)
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog: slog.NewLogLogger(slog.Default().Handler(), slog.LevelError),
	})
}

func (m *Metrics) ObserveDiscovery(found int, elapsed time.Duration, err error) {
	if err != nil {
		m.discoveryRuns.WithLabelValues("error").Inc()
		return
	}
	m.discoveryRuns.WithLabelValues("ok").Inc()
	m.discoveryDuration.Observe(elapsed.Seconds())
	m.camerasFound.Set(float64(found))
}

func (m *Metrics) ObserveCapture(res core.CaptureResult) {
	result, method := "success", res.MethodUsed
	if !res.Succeeded {
		result, method = "failure", "none"
	}
	m.captures.WithLabelValues(method, result).Inc()
	m.captureDuration.WithLabelValues(result).Observe(float64(res.ElapsedMs) / 1000)
}

func (m *Metrics) ObserveLockEvent(ev analysislock.Event) {
	m.lockEvents.WithLabelValues(string(ev.Type), string(ev.Code)).Inc()
}

var (
	locksActiveDesc = prometheus.NewDesc(
		namespace+"_analysis_locks_active", "Lessons with an analysis in progress.", nil, nil,
	)
	locksRecentDesc = prometheus.NewDesc(
		namespace+"_analysis_locks_recently_completed", "Lessons inside the completed-analysis retention window.", nil, nil,
	)
	lockHeldDesc = prometheus.NewDesc(
		namespace+"_analysis_lock_held_seconds", "How long the active analysis has held its lock.", []string{"lesson_id"}, nil,
	)
)

// LockCollector lê o snapshot do lock manager a cada scrape.
type LockCollector struct {
	Stats func() analysislock.Snapshot
}

func (c *LockCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- locksActiveDesc
	ch <- locksRecentDesc
	ch <- lockHeldDesc
}

func (c *LockCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.Stats()
	ch <- prometheus.MustNewConstMetric(locksActiveDesc, prometheus.GaugeValue, float64(s.ActiveCount))
	ch <- prometheus.MustNewConstMetric(locksRecentDesc, prometheus.GaugeValue, float64(s.RecentCount))
	for _, a := range s.Active {
		ch <- prometheus.MustNewConstMetric(lockHeldDesc, prometheus.GaugeValue, float64(a.HeldMs)/1000, a.LessonID)
	}
}
