// internal/analysislock/manager.go
package analysislock

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/sua-org/cam-scout/internal/core"
)

var ErrClosed = errors.New("analysis lock manager closed")

type Config struct {
	Watchdog  time.Duration
	Cooldown  time.Duration
	Retention time.Duration
}

func DefaultConfig() Config {
	return Config{
		Watchdog:  120 * time.Second,
		Cooldown:  30 * time.Second,
		Retention: 300 * time.Second,
	}
}

// Rejection é devolvido por Acquire quando a análise não pode começar agora.
// errors.Is casa com core.ErrAnalysisInProgress ou core.ErrAnalysisTooFrequent.
type Rejection struct {
	Code     core.ErrorKind
	LessonID string
	Wait     time.Duration
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s: lesson %s (retry in %s)", r.Unwrap(), r.LessonID, r.Wait.Round(time.Millisecond))
}

func (r *Rejection) Unwrap() error {
	if r.Code == core.KindAnalysisTooFrequent {
		return core.ErrAnalysisTooFrequent
	}
	return core.ErrAnalysisInProgress
}

type EventType string

const (
	EventAcquired      EventType = "acquired"
	EventReleased      EventType = "released"
	EventRejected      EventType = "rejected"
	EventWatchdog      EventType = EventType(core.KindWatchdogCleanup)
	EventPurged        EventType = "purged"
	EventForcedCleanup EventType = "force_cleanup"
)

// Event é entregue ao hook fora da seção crítica.
type Event struct {
	Type     EventType      `json:"type"`
	LessonID string         `json:"lesson_id"`
	Key      string         `json:"key"`
	Code     core.ErrorKind `json:"code,omitempty"`
	Held     time.Duration  `json:"held_ns,omitempty"`
	At       time.Time      `json:"at"`
}

type activeEntry struct {
	gen        uint64
	acquiredAt time.Time
	timer      *time.Timer
}

type recentEntry struct {
	completedAt time.Time
	timer       *time.Timer
}

// Manager garante no máximo uma análise ativa por aula.
// active: aulas em análise (com watchdog). recent: aulas concluídas (cooldown + retenção).
type Manager struct {
	cfg Config
	now func() time.Time
	log *slog.Logger

	mu     sync.Mutex
	active map[string]*activeEntry
	recent map[string]*recentEntry
	gen    uint64
	closed bool
	hook   func(Event)
}

func New(cfg Config) *Manager {
	def := DefaultConfig()
	if cfg.Watchdog <= 0 {
		cfg.Watchdog = def.Watchdog
	}
	if cfg.Cooldown < 0 {
		cfg.Cooldown = 0
	}
	if cfg.Retention <= 0 {
		cfg.Retention = def.Retention
	}
	if cfg.Retention < cfg.Cooldown {
		cfg.Retention = cfg.Cooldown
	}
	return &Manager{
		cfg:    cfg,
		now:    time.Now,
		log:    slog.With("component", "analysislock"),
		active: make(map[string]*activeEntry),
		recent: make(map[string]*recentEntry),
	}
}

func (m *Manager) Config() Config { return m.cfg }

// SetEventHook troca o hook de eventos. nil desliga.
func (m *Manager) SetEventHook(fn func(Event)) {
	m.mu.Lock()
	m.hook = fn
	m.mu.Unlock()
}

// Key é a chave usada em logs e estatísticas.
func Key(lessonID string) string {
	return "lesson_" + lessonID + "_analysis"
}

// Lease representa uma aquisição. Release é idempotente e só libera a própria geração.
type Lease struct {
	m          *Manager
	gen        uint64
	LessonID   string
	AcquiredAt time.Time
	once       sync.Once
	released   bool
}

func (l *Lease) Release() bool {
	l.once.Do(func() {
		l.released = l.m.release(l.LessonID, l.gen)
	})
	return l.released
}

func (m *Manager) Acquire(lessonID string) (*Lease, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	now := m.now()

	if a, ok := m.active[lessonID]; ok {
		rej := &Rejection{
			Code:     core.KindAnalysisInProgress,
			LessonID: lessonID,
			Wait:     clampWait(m.cfg.Watchdog - now.Sub(a.acquiredAt)),
		}
		hook := m.hook
		m.mu.Unlock()
		m.emit(hook, Event{Type: EventRejected, LessonID: lessonID, Code: rej.Code, At: now})
		return nil, rej
	}
	if r, ok := m.recent[lessonID]; ok {
		if elapsed := now.Sub(r.completedAt); elapsed < m.cfg.Cooldown {
			rej := &Rejection{
				Code:     core.KindAnalysisTooFrequent,
				LessonID: lessonID,
				Wait:     clampWait(m.cfg.Cooldown - elapsed),
			}
			hook := m.hook
			m.mu.Unlock()
			m.emit(hook, Event{Type: EventRejected, LessonID: lessonID, Code: rej.Code, At: now})
			return nil, rej
		}
	}

	m.gen++
	e := &activeEntry{gen: m.gen, acquiredAt: now}
	e.timer = time.AfterFunc(m.cfg.Watchdog, func() { m.expire(lessonID, e) })
	m.active[lessonID] = e
	hook := m.hook
	m.mu.Unlock()

	m.log.Info("analysis lock acquired", "key", Key(lessonID))
	m.emit(hook, Event{Type: EventAcquired, LessonID: lessonID, At: now})
	return &Lease{m: m, gen: e.gen, LessonID: lessonID, AcquiredAt: now}, nil
}

// Release libera a análise ativa da aula, qualquer que seja a geração.
func (m *Manager) Release(lessonID string) bool {
	return m.release(lessonID, 0)
}

// release com gen=0 ignora a geração.
func (m *Manager) release(lessonID string, gen uint64) bool {
	m.mu.Lock()
	a, ok := m.active[lessonID]
	if !ok || (gen != 0 && a.gen != gen) {
		m.mu.Unlock()
		if ok {
			m.log.Debug("stale analysis lock release ignored", "key", Key(lessonID), "gen", gen)
		}
		return false
	}
	a.timer.Stop()
	delete(m.active, lessonID)

	now := m.now()
	if old, ok := m.recent[lessonID]; ok {
		old.timer.Stop()
	}
	r := &recentEntry{completedAt: now}
	r.timer = time.AfterFunc(m.cfg.Retention, func() { m.purge(lessonID, r) })
	m.recent[lessonID] = r
	hook := m.hook
	m.mu.Unlock()

	held := now.Sub(a.acquiredAt)
	m.log.Info("analysis lock released", "key", Key(lessonID), "held_ms", held.Milliseconds())
	m.emit(hook, Event{Type: EventReleased, LessonID: lessonID, Held: held, At: now})
	return true
}

// expire é o watchdog: análise travada é removida à força.
func (m *Manager) expire(lessonID string, e *activeEntry) {
	m.mu.Lock()
	if m.active[lessonID] != e {
		m.mu.Unlock()
		return
	}
	delete(m.active, lessonID)
	now := m.now()
	hook := m.hook
	m.mu.Unlock()

	held := now.Sub(e.acquiredAt)
	m.log.Warn("watchdog forced analysis lock cleanup",
		"key", Key(lessonID),
		"held_ms", held.Milliseconds(),
		"error", core.ErrWatchdogCleanup,
	)
	m.emit(hook, Event{Type: EventWatchdog, LessonID: lessonID, Code: core.KindWatchdogCleanup, Held: held, At: now})
}

func (m *Manager) purge(lessonID string, r *recentEntry) {
	m.mu.Lock()
	if m.recent[lessonID] != r {
		m.mu.Unlock()
		return
	}
	delete(m.recent, lessonID)
	hook := m.hook
	m.mu.Unlock()

	m.log.Debug("completed analysis purged", "key", Key(lessonID))
	m.emit(hook, Event{Type: EventPurged, LessonID: lessonID, At: m.now()})
}

// ForceCleanup remove as entradas (ativas e recentes) da aula; lessonID vazio limpa tudo.
// Devolve quantas entradas foram removidas.
func (m *Manager) ForceCleanup(lessonID string) int {
	m.mu.Lock()
	var cleaned []string
	n := 0
	for id, a := range m.active {
		if lessonID != "" && id != lessonID {
			continue
		}
		a.timer.Stop()
		delete(m.active, id)
		cleaned = append(cleaned, id)
		n++
	}
	for id, r := range m.recent {
		if lessonID != "" && id != lessonID {
			continue
		}
		r.timer.Stop()
		delete(m.recent, id)
		n++
	}
	now := m.now()
	hook := m.hook
	m.mu.Unlock()

	if n > 0 {
		m.log.Warn("analysis locks force-cleaned", "lesson_id", lessonID, "removed", n)
	}
	for _, id := range cleaned {
		m.emit(hook, Event{Type: EventForcedCleanup, LessonID: id, At: now})
	}
	return n
}

// Close para todos os timers. Acquire depois de Close devolve ErrClosed.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, a := range m.active {
		a.timer.Stop()
		delete(m.active, id)
	}
	for id, r := range m.recent {
		r.timer.Stop()
		delete(m.recent, id)
	}
	m.closed = true
}

type ActiveLock struct {
	Key          string    `json:"key"`
	LessonID     string    `json:"lesson_id"`
	AcquiredAt   time.Time `json:"acquired_at"`
	HeldMs       int64     `json:"held_ms"`
	WatchdogInMs int64     `json:"watchdog_in_ms"`
}

type CompletedLock struct {
	Key         string    `json:"key"`
	LessonID    string    `json:"lesson_id"`
	CompletedAt time.Time `json:"completed_at"`
	SinceMs     int64     `json:"time_since_ms"`
	CooldownMs  int64     `json:"cooldown_remaining_ms"`
}

// Snapshot é a visão das estatísticas num instante.
type Snapshot struct {
	ActiveCount int             `json:"active_count"`
	RecentCount int             `json:"recently_completed_count"`
	Active      []ActiveLock    `json:"active"`
	Recent      []CompletedLock `json:"recently_completed"`
	WatchdogMs  int64           `json:"watchdog_timeout_ms"`
	CooldownMs  int64           `json:"cooldown_ms"`
	RetentionMs int64           `json:"retention_ms"`
}

func (m *Manager) Stats() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()

	s := Snapshot{
		ActiveCount: len(m.active),
		RecentCount: len(m.recent),
		Active:      make([]ActiveLock, 0, len(m.active)),
		Recent:      make([]CompletedLock, 0, len(m.recent)),
		WatchdogMs:  m.cfg.Watchdog.Milliseconds(),
		CooldownMs:  m.cfg.Cooldown.Milliseconds(),
		RetentionMs: m.cfg.Retention.Milliseconds(),
	}
	for id, a := range m.active {
		held := now.Sub(a.acquiredAt)
		s.Active = append(s.Active, ActiveLock{
			Key:          Key(id),
			LessonID:     id,
			AcquiredAt:   a.acquiredAt,
			HeldMs:       held.Milliseconds(),
			WatchdogInMs: clampWait(m.cfg.Watchdog - held).Milliseconds(),
		})
	}
	for id, r := range m.recent {
		s.Recent = append(s.Recent, CompletedLock{
			Key:         Key(id),
			LessonID:    id,
			CompletedAt: r.completedAt,
			SinceMs:     now.Sub(r.completedAt).Milliseconds(),
			CooldownMs:  clampWait(m.cfg.Cooldown - now.Sub(r.completedAt)).Milliseconds(),
		})
	}
	sort.Slice(s.Active, func(i, j int) bool { return s.Active[i].Key < s.Active[j].Key })
	sort.Slice(s.Recent, func(i, j int) bool { return s.Recent[i].Key < s.Recent[j].Key })
	return s
}

func (m *Manager) emit(hook func(Event), ev Event) {
	if hook == nil {
		return
	}
	ev.Key = Key(ev.LessonID)
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("analysis lock event hook panicked", "event", ev.Type, "panic", r)
		}
	}()
	hook(ev)
}

func clampWait(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
