// Package watch analyzes trip exports as they are dropped into a folder.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"obd-diagnostics/internal/parser"
)

const reportSuffix = ".report.json"

// Monitor watches one directory and hands each new or changed export to a
// handler exactly once per content.
type Monitor struct {
	watchDir string
	watcher  *fsnotify.Watcher
	debounce time.Duration
	logger   *zap.Logger

	mu     sync.Mutex
	seen   map[string]string
	timers map[string]*time.Timer
	ready  chan string

	// pending counts debounce callbacks that have not returned yet
	pending   sync.WaitGroup
	done      chan struct{}
	closeOnce sync.Once
}

func NewMonitor(dir string, debounce time.Duration, logger *zap.Logger) (*Monitor, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Monitor{
		watchDir: dir,
		watcher:  watcher,
		debounce: debounce,
		logger:   logger,
		seen:     make(map[string]string),
		timers:   make(map[string]*time.Timer),
		ready:    make(chan string, 16),
		done:     make(chan struct{}),
	}, nil
}

// Eligible reports whether a file looks like a trip export
func Eligible(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || strings.HasPrefix(base, "~$") {
		return false
	}
	if strings.HasSuffix(strings.ToLower(base), reportSuffix) {
		return false
	}
	switch strings.ToLower(filepath.Ext(base)) {
	case ".csv", ".txt", ".tsv", ".xlsx", ".xlsm", ".json":
		return true
	}
	return false
}

// ReportPath returns where the report for an export is written
func ReportPath(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + reportSuffix
}

// Watch blocks until ctx is done or the watcher fails. Handlers run one at
// a time on the calling goroutine.
func (m *Monitor) Watch(ctx context.Context, handler func(path string) error) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-m.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 || !Eligible(event.Name) {
				continue
			}
			m.schedule(event.Name)
		case path := <-m.ready:
			m.process(path, handler)
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return nil
			}
			return err
		}
	}
}

// schedule coalesces bursts of write events into one run per file
func (m *Monitor) schedule(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	select {
	case <-m.done:
		return
	default:
	}
	if t, ok := m.timers[path]; ok && t.Stop() {
		t.Reset(m.debounce)
		return
	}

	var t *time.Timer
	m.pending.Add(1)
	t = time.AfterFunc(m.debounce, func() {
		defer m.pending.Done()
		m.mu.Lock()
		if m.timers[path] == t {
			delete(m.timers, path)
		}
		m.mu.Unlock()
		select {
		case m.ready <- path:
		case <-m.done:
		}
	})
	m.timers[path] = t
}

func (m *Monitor) process(path string, handler func(string) error) {
	data, err := os.ReadFile(path)
	if err != nil {
		m.logger.Warn("export unreadable", zap.String("path", path), zap.Error(err))
		return
	}
	if len(data) == 0 {
		return
	}
	fp := parser.Fingerprint(data)

	m.mu.Lock()
	if m.seen[path] == fp {
		m.mu.Unlock()
		return
	}
	m.seen[path] = fp
	m.mu.Unlock()

	if err := handler(path); err != nil {
		m.logger.Error("analysis failed", zap.String("path", path), zap.Error(err))
	}
}

// Close stops the watcher. Pending debounce callbacks are released and
// waited for, so nothing outlives the Monitor.
func (m *Monitor) Close() error {
	var err error
	m.closeOnce.Do(func() {
		m.mu.Lock()
		close(m.done)
		for path, t := range m.timers {
			if t.Stop() {
				m.pending.Done()
			}
			delete(m.timers, path)
		}
		m.mu.Unlock()
		m.pending.Wait()
		err = m.watcher.Close()
	})
	return err
}
