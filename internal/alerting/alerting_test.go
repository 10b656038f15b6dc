package alerting

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/tripweather/internal/jsonfile"
	"github.com/lox/tripweather/internal/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func summary(vals map[models.Metric]float64) models.SegmentSummary {
	s := models.NewSegmentSummary()
	for m, v := range vals {
		s.Set(m, models.VerbMax, &v)
	}
	return s
}

func TestDetectChangesSeverity(t *testing.T) {
	tests := []struct {
		name      string
		old, new  float64
		threshold float64
		delta     float64
		severity  models.Severity
		direction models.Direction
	}{
		{"minor", 18, 24, 5, 6, models.SeverityMinor, models.DirectionIncrease},
		{"moderate", 15, 45, 20, 30, models.SeverityModerate, models.DirectionIncrease},
		{"major", 5, 30, 10, 25, models.SeverityMajor, models.DirectionIncrease},
		{"decrease", 10, -2, 5, -12, models.SeverityMajor, models.DirectionDecrease},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDetector(Thresholds{models.MetricTempMax: tt.threshold})
			changes := d.DetectChanges(
				summary(map[models.Metric]float64{models.MetricTempMax: tt.old}),
				summary(map[models.Metric]float64{models.MetricTempMax: tt.new}),
			)
			require.Len(t, changes, 1)
			c := changes[0]
			assert.Equal(t, models.MetricTempMax, c.Metric)
			assert.Equal(t, tt.delta, c.Delta)
			assert.Equal(t, tt.threshold, c.Threshold)
			assert.Equal(t, tt.severity, c.Severity)
			assert.Equal(t, tt.direction, c.Direction)
		})
	}
}

func TestDetectChangesWithinThreshold(t *testing.T) {
	d := NewDetector(DefaultThresholds())
	old := summary(map[models.Metric]float64{
		models.MetricTempMin:   -3,
		models.MetricWindMax:   40,
		models.MetricPrecipSum: 2,
	})
	fresh := summary(map[models.Metric]float64{
		models.MetricTempMin:   2, // exactly the threshold
		models.MetricWindMax:   25,
		models.MetricPrecipSum: 11,
	})
	assert.Empty(t, d.DetectChanges(old, fresh))
}

func TestDetectChangesSkipsMissingAndUnthresholded(t *testing.T) {
	d := NewDetector(Thresholds{models.MetricTempMin: 5, models.MetricUVMax: 3})
	old := summary(map[models.Metric]float64{models.MetricTempMin: 0, models.MetricDewPointAvg: 0})
	fresh := summary(map[models.Metric]float64{models.MetricUVMax: 9, models.MetricDewPointAvg: 50})
	assert.Empty(t, d.DetectChanges(old, fresh))
}

func TestDetectChangesSortedByMetric(t *testing.T) {
	d := NewDetector(DefaultThresholds())
	old := summary(map[models.Metric]float64{
		models.MetricWindMax:    10,
		models.MetricTempMin:    0,
		models.MetricThunderMax: 0,
		models.MetricCAPEMax:    0,
	})
	fresh := summary(map[models.Metric]float64{
		models.MetricWindMax:    60,
		models.MetricTempMin:    -20,
		models.MetricThunderMax: 2,
		models.MetricCAPEMax:    2000,
	})
	changes := d.DetectChanges(old, fresh)
	var got []models.Metric
	for _, c := range changes {
		got = append(got, c.Metric)
	}
	assert.Equal(t, []models.Metric{
		models.MetricCAPEMax,
		models.MetricTempMin,
		models.MetricThunderMax,
		models.MetricWindMax,
	}, got)
}

func TestClassifyBoundaries(t *testing.T) {
	assert.Equal(t, models.SeverityMinor, Classify(1.0001))
	assert.Equal(t, models.SeverityMinor, Classify(1.4999))
	assert.Equal(t, models.SeverityModerate, Classify(1.5))
	assert.Equal(t, models.SeverityModerate, Classify(1.9999))
	assert.Equal(t, models.SeverityMajor, Classify(2.0))
	assert.Equal(t, models.SeverityMajor, Classify(10))
}

func TestSignificant(t *testing.T) {
	changes := []models.Change{
		{Metric: models.MetricTempMin, Severity: models.SeverityMinor},
		{Metric: models.MetricWindMax, Severity: models.SeverityModerate},
		{Metric: models.MetricPrecipSum, Severity: models.SeverityMajor},
	}
	sig := Significant(changes)
	require.Len(t, sig, 2)
	assert.Equal(t, models.MetricWindMax, sig[0].Metric)
	assert.Equal(t, models.MetricPrecipSum, sig[1].Metric)
	assert.Equal(t, models.SeverityMajor, MaxSeverity(changes))
	assert.Empty(t, Significant(changes[:1]))
}

func TestThresholdsFor(t *testing.T) {
	t.Run("catalog", func(t *testing.T) {
		th, err := ThresholdsFor(models.AlertConfig{})
		require.NoError(t, err)
		assert.Equal(t, DefaultThresholds(), th)
		_, ok := th[models.MetricDewPointAvg]
		assert.False(t, ok)
	})

	t.Run("group overrides", func(t *testing.T) {
		th, err := ThresholdsFor(models.AlertConfig{
			TempThreshold: models.Float(3),
			WindThreshold: models.Float(15),
		})
		require.NoError(t, err)
		assert.Equal(t, 3.0, th[models.MetricTempMin])
		assert.Equal(t, 3.0, th[models.MetricWindChillMin])
		assert.Equal(t, 15.0, th[models.MetricGustMax])
		assert.Equal(t, 10.0, th[models.MetricPrecipSum])
	})

	t.Run("per metric keeps enabled subset", func(t *testing.T) {
		th, err := ThresholdsFor(models.AlertConfig{
			TempThreshold: models.Float(3),
			Metrics: map[models.Metric]models.MetricAlert{
				models.MetricTempMin:     {Enabled: true, Threshold: 2},
				models.MetricWindMax:     {Enabled: true},
				models.MetricPrecipSum:   {Enabled: false, Threshold: 1},
				models.MetricDewPointAvg: {Enabled: true},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, Thresholds{models.MetricTempMin: 2, models.MetricWindMax: 20}, th)
	})

	t.Run("rejects non-positive", func(t *testing.T) {
		_, err := ThresholdsFor(models.AlertConfig{WindThreshold: models.Float(0)})
		assert.Error(t, err)
		_, err = ThresholdsFor(models.AlertConfig{Metrics: map[models.Metric]models.MetricAlert{
			models.MetricTempMin: {Enabled: true, Threshold: -1},
		}})
		assert.Error(t, err)
	})
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestThrottleWindow(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	th := NewThrottle("", time.Hour, discardLogger(), WithClock(clock))

	assert.False(t, th.IsThrottled("trip-1"))
	_, ok := th.TimeUntilNextAlert("trip-1")
	assert.False(t, ok)

	th.RecordAlert("trip-1")
	assert.True(t, th.IsThrottled("trip-1"))
	assert.False(t, th.IsThrottled("trip-2"))

	clock.Advance(20 * time.Minute)
	remaining, ok := th.TimeUntilNextAlert("trip-1")
	require.True(t, ok)
	assert.Equal(t, 40*time.Minute, remaining)

	clock.Advance(40 * time.Minute)
	assert.False(t, th.IsThrottled("trip-1"))
}

func TestThrottleClearIsImmediate(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	th := NewThrottle("", DefaultThrottleWindow, discardLogger(), WithClock(clock))

	th.RecordAlert("trip-1")
	clock.Advance(3 * time.Second)
	require.True(t, th.IsThrottled("trip-1"))

	th.Clear("trip-1")
	assert.False(t, th.IsThrottled("trip-1"))
	_, ok := th.LastAlert("trip-1")
	assert.False(t, ok)
}

func TestThrottlePersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "throttle.json")
	clock := &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}

	th := NewThrottle(path, time.Hour, discardLogger(), WithClock(clock))
	th.RecordAlert("trip-1")
	th.RecordAlert("trip-2")
	th.Clear("trip-2")

	var onDisk map[string]time.Time
	require.NoError(t, jsonfile.Read(path, &onDisk))
	require.Len(t, onDisk, 1)
	assert.True(t, onDisk["trip-1"].Equal(clock.now))

	reloaded := NewThrottle(path, time.Hour, discardLogger(), WithClock(clock))
	assert.True(t, reloaded.IsThrottled("trip-1"))
	assert.False(t, reloaded.IsThrottled("trip-2"))
}

func TestThrottleCorruptStateStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "throttle.json")
	require.NoError(t, os.WriteFile(path, []byte("{{{"), 0o644))

	th := NewThrottle(path, time.Hour, discardLogger())
	assert.False(t, th.IsThrottled("trip-1"))

	th.RecordAlert("trip-1")
	assert.True(t, th.IsThrottled("trip-1"))
}

func TestThrottleWriteFailureIsSwallowed(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	// The parent "directory" is a regular file, so every write fails.
	th := NewThrottle(filepath.Join(blocker, "throttle.json"), time.Hour, discardLogger())
	th.RecordAlert("trip-1")
	assert.True(t, th.IsThrottled("trip-1"))
}
