package main

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/tripweather/internal/models"
)

func TestParseStart(t *testing.T) {
	now := time.Date(2025, 2, 1, 6, 42, 10, 0, time.UTC)

	got, err := parseStart("", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 2, 1, 6, 0, 0, 0, time.UTC), got)

	got, err = parseStart("2025-02-03T05:00:00Z", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 2, 3, 5, 0, 0, 0, time.UTC), got)

	for _, raw := range []string{"2025-02-03T06:00:00+01:00", "monday"} {
		_, err := parseStart(raw, now)
		var verr *models.ValidationError
		require.True(t, errors.As(err, &verr), raw)
		assert.Equal(t, "start", verr.Field)
	}
}
