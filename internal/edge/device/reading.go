package device

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gidence/scm/internal/envelope"
)

// Reading is the volatile per-camera snapshot: the latest envelope, the time
// of the last update, and a rough frame rate. It is never persisted.
type Reading struct {
	mu     sync.RWMutex
	camera map[string]*readingEntry
}

type readingEntry struct {
	evidence *envelope.Envelope
	updated  int64
	fps      float64
}

// ReadingEntry is one camera's snapshot tuple. It serializes as a
// three-element array: [evidence, last_update_ms, fps].
type ReadingEntry struct {
	Evidence *envelope.Envelope
	Updated  int64
	FPS      float64
}

func (e ReadingEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]any{e.Evidence, e.Updated, e.FPS})
}

// NewReading seeds an empty snapshot for the given camera ids.
func NewReading(cameraIDs []string) *Reading {
	now := time.Now().UnixMilli()
	r := &Reading{camera: make(map[string]*readingEntry)}
	for _, id := range cameraIDs {
		r.camera[id] = &readingEntry{updated: now}
	}
	return r
}

// Update records env as the latest evidence for its camera.
func (r *Reading) Update(env *envelope.Envelope) {
	now := time.Now().UnixMilli()
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.camera[env.CameraID]
	if !ok {
		entry = &readingEntry{updated: now}
		r.camera[env.CameraID] = entry
	}
	if delta := now - entry.updated; delta > 0 {
		entry.fps = 1000 / float64(delta)
	}
	entry.evidence = env
	entry.updated = now
}

// Snapshot returns a copy of every camera's tuple.
func (r *Reading) Snapshot() map[string]ReadingEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]ReadingEntry, len(r.camera))
	for id, e := range r.camera {
		out[id] = ReadingEntry{Evidence: e.evidence, Updated: e.updated, FPS: e.fps}
	}
	return out
}

// Latest returns the newest envelope for one camera, if any.
func (r *Reading) Latest(cameraID string) (*envelope.Envelope, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.camera[cameraID]
	if !ok || e.evidence == nil {
		return nil, false
	}
	return e.evidence, true
}
