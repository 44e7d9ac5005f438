package dedup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gidence/scm/internal/edge/receiver"
	"github.com/gidence/scm/internal/envelope"
)

func newWorker(t *testing.T) (*Worker, string, string) {
	t.Helper()
	evidenceDir := t.TempDir()
	frameDir := t.TempDir()
	return New(&receiver.Queue{}, evidenceDir, frameDir), evidenceDir, frameDir
}

func dropFrame(t *testing.T, frameDir, cameraID string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(frameDir, cameraID+".jpg"), []byte("jpegbytes"), 0o644))
}

func violating(id, camera, person string, ts int64) *envelope.Envelope {
	return &envelope.Envelope{
		ID:        id,
		CameraID:  camera,
		FrameID:   "f",
		Timestamp: ts,
		Person: []envelope.Person{{
			ID:        person,
			Violation: []envelope.Violation{envelope.MissingHardhat},
		}},
	}
}

func pairExists(t *testing.T, dir, id string) bool {
	t.Helper()
	_, jsonErr := os.Stat(filepath.Join(dir, id+".json"))
	_, jpgErr := os.Stat(filepath.Join(dir, id+".jpg"))
	if jsonErr == nil != (jpgErr == nil) {
		t.Fatalf("evidence pair %s is split: json=%v jpg=%v", id, jsonErr, jpgErr)
	}
	return jsonErr == nil
}

func TestProcessWritesPairForNewViolation(t *testing.T) {
	w, evidenceDir, frameDir := newWorker(t)
	dropFrame(t, frameDir, "cam")

	w.Process(violating("e-1", "cam", "p-1", 1_000_000))
	assert.True(t, pairExists(t, evidenceDir, "e-1"))
}

func TestWindowSuppressesRepeat(t *testing.T) {
	w, evidenceDir, frameDir := newWorker(t)
	dropFrame(t, frameDir, "cam")

	base := int64(1_000_000)
	w.Process(violating("e-1", "cam", "p-1", base))
	// 599 999 ms later: still inside the window.
	w.Process(violating("e-2", "cam", "p-1", base+599_999))
	// 600 001 ms later: past the window.
	w.Process(violating("e-3", "cam", "p-1", base+600_001))

	assert.True(t, pairExists(t, evidenceDir, "e-1"))
	assert.False(t, pairExists(t, evidenceDir, "e-2"))
	assert.True(t, pairExists(t, evidenceDir, "e-3"))
}

func TestWindowKeysOnCameraAndPerson(t *testing.T) {
	w, evidenceDir, frameDir := newWorker(t)
	dropFrame(t, frameDir, "cam-a")
	dropFrame(t, frameDir, "cam-b")

	base := int64(1_000_000)
	w.Process(violating("e-1", "cam-a", "p-1", base))
	// Same person on another camera is a distinct key.
	w.Process(violating("e-2", "cam-b", "p-1", base+1))
	// Another person on the first camera is a distinct key too.
	w.Process(violating("e-3", "cam-a", "p-2", base+2))

	assert.True(t, pairExists(t, evidenceDir, "e-1"))
	assert.True(t, pairExists(t, evidenceDir, "e-2"))
	assert.True(t, pairExists(t, evidenceDir, "e-3"))
}

func TestNoViolationNoEvidence(t *testing.T) {
	w, evidenceDir, frameDir := newWorker(t)
	dropFrame(t, frameDir, "cam")

	w.Process(&envelope.Envelope{
		ID: "e-1", CameraID: "cam", Timestamp: 1,
		Person: []envelope.Person{{ID: "p-1"}},
	})
	assert.False(t, pairExists(t, evidenceDir, "e-1"))
}

func TestMissingFrameDropsSilently(t *testing.T) {
	w, evidenceDir, _ := newWorker(t)

	w.Process(violating("e-1", "cam", "p-1", 1_000_000))
	assert.False(t, pairExists(t, evidenceDir, "e-1"))
}

func TestEmptyPersonListIsNoop(t *testing.T) {
	w, evidenceDir, frameDir := newWorker(t)
	dropFrame(t, frameDir, "cam")

	w.Process(&envelope.Envelope{ID: "e-1", CameraID: "cam", Timestamp: 1})
	assert.False(t, pairExists(t, evidenceDir, "e-1"))
}
