package liveness

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRefreshAndSnapshot(t *testing.T) {
	tr := NewTracker()
	now := time.Now()

	tr.Refresh("p-1", now)
	tr.Refresh("p-2", now)

	assert.True(t, tr.Contains("p-1"))
	assert.False(t, tr.Contains("p-9"))

	snap := tr.Snapshot()
	assert.Len(t, snap, 2)
	assert.Equal(t, now.Add(LeaseTTL).UnixMilli(), snap["p-1"])
}

func TestSweepExpiresOnlyOverdueLeases(t *testing.T) {
	tr := NewTracker()
	now := time.Now()

	tr.Refresh("old", now.Add(-2*LeaseTTL))
	tr.Refresh("fresh", now)

	gone := tr.Sweep(now.UnixMilli())
	assert.Equal(t, []string{"old"}, gone)
	assert.False(t, tr.Contains("old"))
	assert.True(t, tr.Contains("fresh"))
}

func TestSweepReturnsSortedDepartures(t *testing.T) {
	tr := NewTracker()
	stale := time.Now().Add(-2 * LeaseTTL)
	tr.Refresh("zulu", stale)
	tr.Refresh("alpha", stale)
	tr.Refresh("mike", stale)

	gone := tr.Sweep(time.Now().UnixMilli())
	assert.Equal(t, []string{"alpha", "mike", "zulu"}, gone)
}

func TestRefreshRenewsLease(t *testing.T) {
	tr := NewTracker()
	now := time.Now()

	tr.Refresh("p-1", now.Add(-2*LeaseTTL))
	tr.Refresh("p-1", now)

	gone := tr.Sweep(now.UnixMilli())
	assert.Empty(t, gone)
	assert.True(t, tr.Contains("p-1"))
}

func TestLeaseExpiresJustPastTTL(t *testing.T) {
	tr := NewTracker()
	now := time.Now()
	tr.Refresh("p-1", now)

	// One millisecond before expiry the lease holds.
	assert.Empty(t, tr.Sweep(now.Add(LeaseTTL).UnixMilli()-1))
	// At expiry it is gone.
	assert.Equal(t, []string{"p-1"}, tr.Sweep(now.Add(LeaseTTL).UnixMilli()))
}
