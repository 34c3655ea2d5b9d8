package store

import (
	"io/fs"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidID(t *testing.T) {
	assert.True(t, validID("1b4e28ba-2fa1-11d2-883f-0016d3cca427"))
	assert.False(t, validID(""))
	assert.False(t, validID("drv-1"))
}

func TestNullIfEmpty(t *testing.T) {
	assert.Nil(t, nullIfEmpty(""))
	assert.Equal(t, "dock 4", nullIfEmpty("dock 4"))
}

func TestMigrationsEmbedded(t *testing.T) {
	names, err := fs.Glob(migrations, "migrations/*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, names)
	body, err := migrations.ReadFile(names[0])
	require.NoError(t, err)
	for _, col := range []string{"appointment_time", "departure_time", "stop_type", "final_detention_minutes", "final_detention_cost", "is_read"} {
		assert.True(t, strings.Contains(string(body), col), "migration missing column %s", col)
	}
	require.Len(t, names, 2)
	body, err = migrations.ReadFile(names[1])
	require.NoError(t, err)
	for _, col := range []string{"warning_sent_at", "critical_sent_at", "last_reminder_at"} {
		assert.True(t, strings.Contains(string(body), col), "migration missing column %s", col)
		assert.True(t, strings.Contains(locationCols, col), "location query missing column %s", col)
	}
}

func TestStoredTimeTruncatesToMicroseconds(t *testing.T) {
	in := time.Date(2024, 3, 4, 9, 0, 0, 123456789, time.FixedZone("CST", -6*3600))
	got := storedTime(in)
	assert.Equal(t, time.UTC, got.Location())
	assert.Equal(t, 123456000, got.Nanosecond())
	assert.True(t, got.Equal(storedTime(got)))
}
