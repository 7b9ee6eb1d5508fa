package services

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// LogLevel classifies an activity log entry.
type LogLevel string

const (
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// LogEntry is one timestamped line in a collector's activity log.
type LogEntry struct {
	Collector string    `json:"collector"`
	Level     LogLevel  `json:"level"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// ActivityLog keeps a bounded per-collector history (oldest discarded
// first) and broadcasts every entry to live subscribers. Append returns
// nothing and swallows internal delivery problems: a slow or gone
// subscriber must never affect the caller.
type ActivityLog struct {
	mu          sync.Mutex
	history     map[string][]LogEntry
	cap         int
	subscribers map[int]chan LogEntry
	nextSubID   int
	logger      *zap.Logger
}

// NewActivityLog creates a log keeping at most historyCap entries per
// collector.
func NewActivityLog(historyCap int, logger *zap.Logger) *ActivityLog {
	if historyCap <= 0 {
		historyCap = 100
	}
	return &ActivityLog{
		history:     make(map[string][]LogEntry),
		cap:         historyCap,
		subscribers: make(map[int]chan LogEntry),
		logger:      logger,
	}
}

// Append records and broadcasts one entry. It never fails.
func (a *ActivityLog) Append(collector string, level LogLevel, message string) {
	entry := LogEntry{
		Collector: collector,
		Level:     level,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}

	// Write-through to the structured logger so operators see activity in
	// the process logs as well.
	if a.logger != nil {
		fields := []zap.Field{zap.String("collector", collector)}
		switch level {
		case LogError:
			a.logger.Error(message, fields...)
		case LogWarn:
			a.logger.Warn(message, fields...)
		default:
			a.logger.Info(message, fields...)
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	ring := append(a.history[collector], entry)
	if len(ring) > a.cap {
		ring = ring[len(ring)-a.cap:]
	}
	a.history[collector] = ring

	// Non-blocking fan-out; a full subscriber channel drops the entry.
	for _, ch := range a.subscribers {
		select {
		case ch <- entry:
		default:
		}
	}
}

// Query returns up to limit entries, newest first. An empty collector
// merges all collectors.
func (a *ActivityLog) Query(collector string, limit int) []LogEntry {
	a.mu.Lock()
	defer a.mu.Unlock()

	var merged []LogEntry
	if collector != "" {
		merged = append(merged, a.history[collector]...)
	} else {
		for _, ring := range a.history {
			merged = append(merged, ring...)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Timestamp.After(merged[j].Timestamp)
	})

	if limit > 0 && len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}

// Clear discards the history for one collector, or for all collectors
// when name is empty.
func (a *ActivityLog) Clear(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if name == "" {
		a.history = make(map[string][]LogEntry)
		return
	}
	delete(a.history, name)
}

// Subscribe registers a live listener. The returned cancel function must
// be called to release it; pending entries are dropped on cancel.
func (a *ActivityLog) Subscribe() (<-chan LogEntry, func()) {
	a.mu.Lock()
	defer a.mu.Unlock()

	id := a.nextSubID
	a.nextSubID++
	ch := make(chan LogEntry, 64)
	a.subscribers[id] = ch

	cancel := func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		if existing, ok := a.subscribers[id]; ok {
			delete(a.subscribers, id)
			close(existing)
		}
	}
	return ch, cancel
}
