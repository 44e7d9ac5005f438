// Package dedup filters repeated violations per (camera, person) within a
// sliding window and persists the survivors as durable evidence pairs.
package dedup

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/gidence/scm/internal/edge/receiver"
	"github.com/gidence/scm/internal/envelope"
	"github.com/gidence/scm/internal/metrics"
)

const (
	// Window is the suppression interval for one (camera, person) key.
	Window = 600_000 // ms

	idlePause = 100 * time.Millisecond
)

// Worker drains the receiver queue, applies the dedup window, and writes
// evidence pairs into EvidenceDir. Frames are read from FrameDir, where the
// inference engine drops the latest JPEG per camera.
type Worker struct {
	queue       *receiver.Queue
	evidenceDir string
	frameDir    string
	window      int64
	seen        map[string]*envelope.Envelope
	logger      *log.Logger
}

// New builds a worker with the standard window.
func New(queue *receiver.Queue, evidenceDir, frameDir string) *Worker {
	return &Worker{
		queue:       queue,
		evidenceDir: evidenceDir,
		frameDir:    frameDir,
		window:      Window,
		seen:        make(map[string]*envelope.Envelope),
		logger:      log.New(log.Writer(), "[DEDUP] ", log.LstdFlags),
	}
}

// Run consumes the queue until ctx is cancelled. The loop pauses only when
// the queue is empty.
func (w *Worker) Run(ctx context.Context) {
	for {
		env := w.queue.TryPop()
		if env == nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(idlePause):
			}
			continue
		}
		w.Process(env)
	}
}

// Process applies the window policy to one envelope. When at least one person
// contributes a new violation, the frame image and the envelope JSON are
// written as ./evidence/<id>.{jpg,json}. A missing frame drops the envelope
// silently; the window entries already made stand.
func (w *Worker) Process(env *envelope.Envelope) {
	newViolation := false
	for _, person := range env.Person {
		key := env.CameraID + "-" + person.ID

		if prev, ok := w.seen[key]; ok && env.Timestamp-prev.Timestamp < w.window {
			continue
		}
		if len(person.Violation) > 0 {
			newViolation = true
			w.seen[key] = env
		}
	}
	if !newViolation {
		return
	}

	image, err := os.ReadFile(filepath.Join(w.frameDir, env.CameraID+".jpg"))
	if err != nil {
		return
	}

	data, err := json.Marshal(env)
	if err != nil {
		w.logger.Printf("encode %s: %v", env.ID, err)
		return
	}

	if err := os.MkdirAll(w.evidenceDir, 0o755); err != nil {
		w.logger.Printf("create %s: %v", w.evidenceDir, err)
		return
	}
	// The image goes first so a scanned .json always has its sibling.
	if err := os.WriteFile(filepath.Join(w.evidenceDir, env.ID+".jpg"), image, 0o644); err != nil {
		w.logger.Printf("write %s.jpg: %v", env.ID, err)
		return
	}
	if err := os.WriteFile(filepath.Join(w.evidenceDir, env.ID+".json"), data, 0o644); err != nil {
		w.logger.Printf("write %s.json: %v", env.ID, err)
		return
	}
	metrics.EvidenceWritten.Inc()
}
