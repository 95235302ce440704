package redis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "biz:stock:12", StockKey(12))
	assert.Equal(t, "biz:stock:applied:7", EntryAppliedKey(7))
	assert.Equal(t, "biz:lock:product:3", ProductLockKey(3))
	assert.NotEqual(t, StockKey(1), EntryAppliedKey(1))
}

func TestParseSyncState(t *testing.T) {
	ranAt := time.Date(2025, 5, 1, 8, 30, 0, 0, time.UTC)
	st := parseSyncState(map[string]string{
		"ran_at":    ranAt.Format(time.RFC3339Nano),
		"scanned":   "12",
		"corrected": "2",
		"trigger":   "scheduled",
	})
	assert.True(t, ranAt.Equal(st.RanAt))
	assert.Equal(t, 12, st.Scanned)
	assert.Equal(t, 2, st.Corrected)
	assert.Equal(t, "scheduled", st.Trigger)

	empty := parseSyncState(map[string]string{"scanned": "x"})
	assert.Zero(t, empty.Scanned)
	assert.True(t, empty.RanAt.IsZero())
}
