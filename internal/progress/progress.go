package progress

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// Tracker tracks progress of one stage of work, e.g. the registry lookups.
type Tracker interface {
	SetStage(stage string)
	SetProgress(current, total int64)
	SetCounter(name string, value int64)
	LogWarning(msg string)
	Done()
}

// Manager creates trackers.
type Manager interface {
	NewTracker(name string, total int) Tracker
	Wait()
}

// MPBManager implements Manager using the mpb multi-progress-bar library.
type MPBManager struct {
	container *mpb.Progress
}

// NewMPBManager creates a new mpb-based progress manager.
func NewMPBManager() *MPBManager {
	p := mpb.New(mpb.WithWidth(60))
	return &MPBManager{container: p}
}

// NewTracker adds a bar counting up to total.
func (m *MPBManager) NewTracker(name string, total int) Tracker {
	t := &mpbTracker{}
	t.stage.Store("")
	t.bar = m.container.AddBar(int64(total),
		mpb.PrependDecorators(
			decor.Name(name+" ", decor.WCSyncSpaceR),
			decor.CountersNoUnit("%d / %d", decor.WCSyncSpace),
		),
		mpb.AppendDecorators(
			decor.Percentage(decor.WCSyncSpace),
			decor.Any(func(s decor.Statistics) string {
				return " " + t.stage.Load().(string) + t.counters()
			}),
		),
	)
	return t
}

// Wait waits for all progress bars to finish.
func (m *MPBManager) Wait() {
	m.container.Wait()
}

type mpbTracker struct {
	bar   *mpb.Bar
	stage atomic.Value

	mu     sync.Mutex
	names  []string
	values map[string]int64
}

func (t *mpbTracker) SetStage(stage string) {
	t.stage.Store(stage)
}

func (t *mpbTracker) SetProgress(current, total int64) {
	if total > 0 {
		t.bar.SetTotal(total, false)
	}
	t.bar.SetCurrent(current)
}

func (t *mpbTracker) SetCounter(name string, value int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.values == nil {
		t.values = map[string]int64{}
	}
	if _, ok := t.values[name]; !ok {
		t.names = append(t.names, name)
	}
	t.values[name] = value
}

func (t *mpbTracker) counters() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := ""
	for _, n := range t.names {
		s += fmt.Sprintf("  %s: %d", n, t.values[n])
	}
	return s
}

func (t *mpbTracker) LogWarning(msg string) {
	t.stage.Store("WARN: " + msg)
}

func (t *mpbTracker) Done() {
	t.bar.SetTotal(-1, true) // complete at the current count
}

// NoopManager records progress without printing anything. Tests read its
// fields after a run.
type NoopManager struct {
	Current  int64
	Total    int64
	Warnings int64

	mu       sync.Mutex
	counters map[string]int64
	stages   []string
	done     bool
}

func (m *NoopManager) NewTracker(name string, total int) Tracker {
	atomic.StoreInt64(&m.Total, int64(total))
	return &noopTracker{mgr: m}
}

func (m *NoopManager) Wait() {}

// Counter returns the last value reported for name.
func (m *NoopManager) Counter(name string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[name]
}

// Stages returns every stage reported so far, in order.
func (m *NoopManager) Stages() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.stages...)
}

// Finished reports whether Done was called on a tracker.
func (m *NoopManager) Finished() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.done
}

type noopTracker struct {
	mgr *NoopManager
}

func (t *noopTracker) SetStage(stage string) {
	t.mgr.mu.Lock()
	t.mgr.stages = append(t.mgr.stages, stage)
	t.mgr.mu.Unlock()
}

func (t *noopTracker) SetProgress(current, total int64) {
	atomic.StoreInt64(&t.mgr.Current, current)
	atomic.StoreInt64(&t.mgr.Total, total)
}

func (t *noopTracker) SetCounter(name string, value int64) {
	t.mgr.mu.Lock()
	defer t.mgr.mu.Unlock()
	if t.mgr.counters == nil {
		t.mgr.counters = map[string]int64{}
	}
	t.mgr.counters[name] = value
}

func (t *noopTracker) LogWarning(msg string) {
	atomic.AddInt64(&t.mgr.Warnings, 1)
}

func (t *noopTracker) Done() {
	t.mgr.mu.Lock()
	t.mgr.done = true
	t.mgr.mu.Unlock()
}
