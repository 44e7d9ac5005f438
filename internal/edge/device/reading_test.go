package device

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gidence/scm/internal/envelope"
)

func TestReadingSeedsConfiguredCameras(t *testing.T) {
	r := NewReading([]string{"a", "b"})
	snap := r.Snapshot()
	require.Len(t, snap, 2)
	assert.Nil(t, snap["a"].Evidence)
	assert.Positive(t, snap["a"].Updated)
}

func TestReadingUpdateAndLatest(t *testing.T) {
	r := NewReading([]string{"a"})

	_, ok := r.Latest("a")
	assert.False(t, ok)

	env := &envelope.Envelope{ID: "e-1", CameraID: "a", Timestamp: 1}
	r.Update(env)

	got, ok := r.Latest("a")
	require.True(t, ok)
	assert.Equal(t, "e-1", got.ID)

	// Unknown cameras get an entry on the fly.
	r.Update(&envelope.Envelope{ID: "e-2", CameraID: "ghost", Timestamp: 2})
	_, ok = r.Latest("ghost")
	assert.True(t, ok)
}

func TestReadingEntrySerializesAsTuple(t *testing.T) {
	entry := ReadingEntry{Updated: 1234, FPS: 2.5}
	out, err := json.Marshal(entry)
	require.NoError(t, err)
	assert.JSONEq(t, `[null, 1234, 2.5]`, string(out))
}
