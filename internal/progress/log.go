package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// LogManager implements Manager with line-based output for non-TTY
// environments (CI, cron, redirected stderr). Every progress update prints
// one "Fetching record i of n (p%)" line; counters are reported once, on the
// "Finished" line.
type LogManager struct {
	mu  sync.Mutex
	out io.Writer
}

// NewLogManager creates a log-based progress manager writing to stderr.
func NewLogManager() *LogManager {
	return &LogManager{out: os.Stderr}
}

// NewLogManagerTo creates a log-based progress manager writing to w.
func NewLogManagerTo(w io.Writer) *LogManager {
	return &LogManager{out: w}
}

func (m *LogManager) NewTracker(name string, total int) Tracker {
	return &logTracker{
		mgr:   m,
		name:  name,
		total: int64(total),
		start: time.Now(),
	}
}

func (m *LogManager) Wait() {}

func (m *LogManager) printf(format string, args ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ts := time.Now().Format("15:04:05")
	fmt.Fprintf(m.out, "%s "+format+"\n", append([]any{ts}, args...)...)
}

type logTracker struct {
	mgr   *LogManager
	name  string
	total int64
	start time.Time

	// Counters are only printed with the final line.
	names  []string
	values map[string]int64
}

func (t *logTracker) SetStage(stage string) {
	t.mgr.printf("[%s] %s", t.name, stage)
}

func (t *logTracker) SetProgress(current, total int64) {
	if total > 0 {
		t.total = total
	}
	if t.total <= 0 {
		t.mgr.printf("[%s] Fetching record %d", t.name, current)
		return
	}
	pct := float64(current) / float64(t.total) * 100
	t.mgr.printf("[%s] Fetching record %d of %d (%.0f%%)", t.name, current, t.total, pct)
}

func (t *logTracker) SetCounter(name string, value int64) {
	if t.values == nil {
		t.values = map[string]int64{}
	}
	if _, ok := t.values[name]; !ok {
		t.names = append(t.names, name)
	}
	t.values[name] = value
}

func (t *logTracker) LogWarning(msg string) {
	t.mgr.printf("[%s] WARN: %s", t.name, msg)
}

func (t *logTracker) Done() {
	elapsed := time.Since(t.start).Truncate(time.Millisecond)
	counters := ""
	for _, n := range t.names {
		counters += fmt.Sprintf(", %s: %d", n, t.values[n])
	}
	t.mgr.printf("[%s] Finished in %s%s", t.name, elapsed, counters)
}
