package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/tripweather/internal/models"
)

func entry(model string) Entry {
	return Entry{Timeseries: &models.Timeseries{Meta: models.Meta{Model: model}}}
}

func TestKeyDistinguishesTimeWindows(t *testing.T) {
	start := time.Date(2025, 2, 1, 6, 0, 0, 0, time.UTC)
	a := Key("seg-1", start, start.Add(4*time.Hour), 47.2692, 11.4041)
	b := Key("seg-1", start, start.Add(5*time.Hour), 47.2692, 11.4041)
	c := Key("seg-1", start.Add(time.Hour), start.Add(4*time.Hour), 47.2692, 11.4041)

	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, b, c)
}

func TestKeyRoundsCoordinates(t *testing.T) {
	start := time.Date(2025, 2, 1, 6, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	assert.Equal(t,
		Key("s", start, end, 47.26920001, 11.40409999),
		Key("s", start, end, 47.2692, 11.4041))
	assert.NotEqual(t,
		Key("s", start, end, 47.2692, 11.4041),
		Key("s", start, end, 47.2693, 11.4041))
	assert.Equal(t,
		Key("s", start, end, -0.00001, 0),
		Key("s", start, end, 0, 0))
}

func TestKeyNormalizesTimezone(t *testing.T) {
	start := time.Date(2025, 2, 1, 6, 0, 0, 0, time.UTC)
	zone := time.FixedZone("CET", 3600)
	assert.Equal(t,
		Key("s", start, start.Add(time.Hour), 1, 2),
		Key("s", start.In(zone), start.Add(time.Hour).In(zone), 1, 2))
}

func TestGetAfterPut(t *testing.T) {
	c := New(10, time.Minute)

	_, ok := c.Get("k")
	assert.False(t, ok)

	c.Put("k", entry("icon_d2"))
	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "icon_d2", got.Timeseries.Meta.Model)
	assert.False(t, got.InsertedAt.IsZero())

	c.Put("k", entry("icon_eu"))
	got, ok = c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "icon_eu", got.Timeseries.Meta.Model)
}

func TestEntriesExpire(t *testing.T) {
	c := New(10, 50*time.Millisecond)
	c.Put("k", entry("icon_d2"))

	_, ok := c.Get("k")
	require.True(t, ok)

	time.Sleep(120 * time.Millisecond)
	_, ok = c.Get("k")
	assert.False(t, ok)
}

func TestEntryExpiresAtExactlyTTL(t *testing.T) {
	inserted := time.Date(2025, 2, 1, 6, 0, 0, 0, time.UTC)
	clock := inserted
	c := New(10, time.Hour)
	c.now = func() time.Time { return clock }

	c.Put("k", entry("icon_d2"))

	clock = inserted.Add(time.Hour - time.Nanosecond)
	_, ok := c.Get("k")
	assert.True(t, ok, "hit just before ttl")

	clock = inserted.Add(time.Hour)
	_, ok = c.Get("k")
	assert.False(t, ok, "miss at exactly ttl")
	assert.Zero(t, c.Stats().TotalEntries)
}

func TestEvictsLeastRecentlyAccessed(t *testing.T) {
	c := New(3, time.Minute)
	c.Put("a", entry("a"))
	c.Put("b", entry("b"))
	c.Put("c", entry("c"))

	// Touch the oldest insert so it is no longer the next victim.
	_, ok := c.Get("a")
	require.True(t, ok)

	c.Put("d", entry("d"))

	_, ok = c.Get("b")
	assert.False(t, ok, "b was least recently accessed")
	for _, k := range []string{"a", "c", "d"} {
		_, ok := c.Get(k)
		assert.True(t, ok, "%s should survive", k)
	}
	assert.Equal(t, 3, c.Stats().TotalEntries)
}

func TestClearAndStats(t *testing.T) {
	c := New(5, 90*time.Second)
	c.Put("a", entry("a"))
	c.Put("b", entry("b"))

	assert.Equal(t, Stats{TotalEntries: 2, MaxEntries: 5, TTLSeconds: 90}, c.Stats())

	c.Clear()
	assert.Equal(t, 0, c.Stats().TotalEntries)
	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestDefaults(t *testing.T) {
	c := New(0, 0)
	assert.Equal(t, Stats{MaxEntries: DefaultMaxEntries, TTLSeconds: int(DefaultTTL / time.Second)}, c.Stats())
}

func TestConcurrentAccess(t *testing.T) {
	c := New(50, time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				k := fmt.Sprintf("k%d", (i*j)%80)
				c.Put(k, entry(k))
				c.Get(k)
				if j%50 == 0 {
					c.Stats()
				}
			}
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Stats().TotalEntries, 50)
}
