package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lox/tripweather/internal/models"
)

// Dispatcher delivers an alert to one channel.
type Dispatcher interface {
	Name() string
	Dispatch(ctx context.Context, alert models.Alert) error
}

// LogDispatcher writes alerts to the structured log.
type LogDispatcher struct {
	logger *slog.Logger
}

func NewLogDispatcher(logger *slog.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger.With("component", "notify")}
}

func (d *LogDispatcher) Name() string {
	return "log"
}

func (d *LogDispatcher) Dispatch(ctx context.Context, alert models.Alert) error {
	d.logger.Info("notify: forecast changed",
		"trip", alert.TripID,
		"trip_name", alert.TripName,
		"severity", alert.Severity.String(),
		"changes", len(alert.Changes))
	for _, c := range alert.Changes {
		d.logger.Info("notify: change",
			"trip", alert.TripID,
			"segment", c.SegmentID,
			"metric", string(c.Metric),
			"old", c.Old,
			"new", c.New,
			"direction", string(c.Direction),
			"severity", c.Severity.String())
	}
	return nil
}

// Fanout dispatches to every channel and succeeds if at least one did.
type Fanout []Dispatcher

func (f Fanout) Name() string {
	return "fanout"
}

func (f Fanout) Dispatch(ctx context.Context, alert models.Alert) error {
	if len(f) == 0 {
		return errors.New("notify: no dispatchers configured")
	}
	var errs []error
	for _, d := range f {
		if err := d.Dispatch(ctx, alert); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", d.Name(), err))
		}
	}
	if len(errs) == len(f) {
		return errors.Join(errs...)
	}
	return nil
}
