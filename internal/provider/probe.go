package provider

import (
	"errors"
	"log/slog"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/lox/tripweather/internal/jsonfile"
	"github.com/lox/tripweather/internal/models"
)

const probeDateLayout = "2006-01-02"

type ModelAvailability struct {
	Available   []models.Field `json:"available"`
	Unavailable []models.Field `json:"unavailable"`
}

// Probe records which fields each model actually returned on ProbeDate.
type Probe struct {
	ProbeDate string                       `json:"probeDate"`
	Models    map[string]ModelAvailability `json:"models"`
}

// IsFresh reports whether the probe was taken on the current UTC day.
func (p *Probe) IsFresh(now time.Time) bool {
	return p != nil && p.ProbeDate == now.UTC().Format(probeDateLayout)
}

// Supports reports whether model returned every one of fields.
func (p *Probe) Supports(model string, fields []models.Field) bool {
	avail, ok := p.Models[model]
	if !ok {
		return false
	}
	for _, f := range fields {
		if !slices.Contains(avail.Available, f) {
			return false
		}
	}
	return true
}

// ProbeStore holds the probe file. Stale or missing probes read as nil.
type ProbeStore struct {
	path   string
	mu     sync.Mutex
	cached *Probe
	now    func() time.Time
	logger *slog.Logger
}

func NewProbeStore(path string, logger *slog.Logger) *ProbeStore {
	return &ProbeStore{
		path:   path,
		now:    time.Now,
		logger: logger.With("component", "probe"),
	}
}

// Current returns today's probe, reloading the file when the cached copy
// has gone stale.
func (s *ProbeStore) Current() *Probe {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.cached.IsFresh(now) {
		return s.cached
	}
	if s.path == "" {
		return nil
	}

	var p Probe
	if err := jsonfile.Read(s.path, &p); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("probe: failed to load probe file", "path", s.path, "error", err)
		}
		return nil
	}
	if !p.IsFresh(now) {
		s.logger.Debug("probe: probe file is stale", "probe_date", p.ProbeDate)
		return nil
	}
	s.cached = &p
	return s.cached
}

// Save stamps the probe with today's date and writes it atomically.
func (s *ProbeStore) Save(p *Probe) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p.ProbeDate = s.now().UTC().Format(probeDateLayout)
	if s.path != "" {
		if err := jsonfile.Write(s.path, p); err != nil {
			return err
		}
	}
	s.cached = p
	return nil
}
