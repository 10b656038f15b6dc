package alerting

import (
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/lox/tripweather/internal/jsonfile"
)

const DefaultThrottleWindow = 6 * time.Hour

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

type ThrottleOption func(*Throttle)

func WithClock(c Clock) ThrottleOption {
	return func(t *Throttle) {
		t.clock = c
	}
}

// Throttle enforces a minimum interval between alerts for the same trip.
// State is persisted as {tripId: timestamp} and rewritten atomically on
// every change. An empty path keeps state in memory only.
type Throttle struct {
	mu     sync.Mutex
	path   string
	window time.Duration
	last   map[string]time.Time
	clock  Clock
	logger *slog.Logger
}

// NewThrottle loads any existing state from path. A missing or unreadable
// file starts empty.
func NewThrottle(path string, window time.Duration, logger *slog.Logger, opts ...ThrottleOption) *Throttle {
	if window <= 0 {
		window = DefaultThrottleWindow
	}
	t := &Throttle{
		path:   path,
		window: window,
		last:   make(map[string]time.Time),
		clock:  realClock{},
		logger: logger.With("component", "throttle"),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.load()
	return t
}

func (t *Throttle) load() {
	if t.path == "" {
		return
	}
	var state map[string]time.Time
	if err := jsonfile.Read(t.path, &state); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			t.logger.Warn("throttle: failed to load state, starting empty", "path", t.path, "error", err)
		}
		return
	}
	for id, ts := range state {
		t.last[id] = ts
	}
	t.logger.Debug("throttle: loaded state", "trips", len(state))
}

func (t *Throttle) Window() time.Duration {
	return t.window
}

func (t *Throttle) IsThrottled(tripID string) bool {
	_, ok := t.TimeUntilNextAlert(tripID)
	return ok
}

// TimeUntilNextAlert returns the remaining wait, or false when the trip may
// alert now.
func (t *Throttle) TimeUntilNextAlert(tripID string) (time.Duration, bool) {
	t.mu.Lock()
	last, ok := t.last[tripID]
	t.mu.Unlock()
	if !ok {
		return 0, false
	}
	remaining := t.window - t.clock.Now().Sub(last)
	if remaining <= 0 {
		return 0, false
	}
	return remaining, true
}

// LastAlert returns when the trip last alerted.
func (t *Throttle) LastAlert(tripID string) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	last, ok := t.last[tripID]
	return last, ok
}

// RecordAlert marks a successful dispatch for the trip.
func (t *Throttle) RecordAlert(tripID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last[tripID] = t.clock.Now().UTC()
	t.persistLocked()
}

// Clear removes the trip's entry regardless of elapsed time.
func (t *Throttle) Clear(tripID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.last[tripID]; !ok {
		return
	}
	delete(t.last, tripID)
	t.persistLocked()
}

// persistLocked writes the state file. Failures are logged and swallowed;
// the in-memory state stays authoritative.
func (t *Throttle) persistLocked() {
	if t.path == "" {
		return
	}
	if err := jsonfile.Write(t.path, t.last); err != nil {
		t.logger.Error("throttle: failed to persist state", "path", t.path, "error", err)
	}
}
