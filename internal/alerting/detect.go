package alerting

import (
	"math"

	"github.com/lox/tripweather/internal/models"
)

// Classify maps |delta|/threshold to a severity.
func Classify(ratio float64) models.Severity {
	switch {
	case ratio >= 2.0:
		return models.SeverityMajor
	case ratio >= 1.5:
		return models.SeverityModerate
	}
	return models.SeverityMinor
}

type Detector struct {
	thresholds Thresholds
}

func NewDetector(t Thresholds) *Detector {
	return &Detector{thresholds: t}
}

// DetectChanges reports every thresholded metric whose value moved by more
// than its threshold. Metrics missing from either summary are skipped.
// Results are ordered by metric name.
func (d *Detector) DetectChanges(old, fresh models.SegmentSummary) []models.Change {
	var changes []models.Change
	for _, m := range d.thresholds.Metrics() {
		threshold := d.thresholds[m]
		if threshold <= 0 {
			continue
		}
		ov, ok := old.Get(m)
		if !ok {
			continue
		}
		nv, ok := fresh.Get(m)
		if !ok {
			continue
		}
		delta := nv - ov
		if math.Abs(delta) <= threshold {
			continue
		}
		dir := models.DirectionDecrease
		if delta > 0 {
			dir = models.DirectionIncrease
		}
		changes = append(changes, models.Change{
			Metric:    m,
			Old:       ov,
			New:       nv,
			Delta:     delta,
			Threshold: threshold,
			Severity:  Classify(math.Abs(delta) / threshold),
			Direction: dir,
		})
	}
	return changes
}

// Significant keeps the changes that may trigger a notification.
func Significant(changes []models.Change) []models.Change {
	var out []models.Change
	for _, c := range changes {
		if c.Severity >= models.SeverityModerate {
			out = append(out, c)
		}
	}
	return out
}

// MaxSeverity returns the highest severity in changes, or 0 when empty.
func MaxSeverity(changes []models.Change) models.Severity {
	var highest models.Severity
	for _, c := range changes {
		if c.Severity > highest {
			highest = c.Severity
		}
	}
	return highest
}
