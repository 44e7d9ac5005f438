package api

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/gidence/scm/internal/envelope"
	"github.com/gidence/scm/internal/metrics"
	"github.com/gidence/scm/internal/server/hub"
	"github.com/gidence/scm/internal/server/store"
)

const maxEvidenceUpload = 16 << 20

// handleEvidenceIntake accepts one multipart upload from an edge shipper:
// part "data" carries the envelope JSON, part "image" the frame. The image
// lands on disk before the record is persisted; a persist failure deletes it
// again so disk and database never disagree.
func (s *Server) handleEvidenceIntake(w http.ResponseWriter, r *http.Request) {
	processorID := mux.Vars(r)["processor_id"]
	ctx := r.Context()

	proc, err := s.store.ProcessorByID(ctx, processorID)
	if err != nil {
		respondError(w, err)
		return
	}

	if err := r.ParseMultipartForm(maxEvidenceUpload); err != nil {
		respondCode(w, http.StatusBadRequest, "MISSING_DATA")
		return
	}

	data := r.FormValue("data")
	if data == "" {
		respondCode(w, http.StatusBadRequest, "MISSING_DATA")
		return
	}
	var env envelope.Envelope
	if err := json.Unmarshal([]byte(data), &env); err != nil {
		respondCode(w, http.StatusBadRequest, "MISSING_DATA")
		return
	}

	image, _, err := r.FormFile("image")
	if err != nil {
		respondCode(w, http.StatusBadRequest, "MISSING_IMAGE")
		return
	}
	defer image.Close()

	// Envelope ids are minted at the edge; keep them so shipper retries
	// collapse onto the same record. Mint one only for legacy senders.
	if env.ID == "" {
		env.ID = uuid.NewString()
	}

	record := store.Evidence{
		ID:          env.ID,
		ClusterID:   proc.ClusterID,
		ProcessorID: proc.ID,
		CameraID:    env.CameraID,
		FrameID:     env.FrameID,
		Timestamp:   env.Timestamp,
		Person:      env.Person,
	}

	imagePath := filepath.Join(s.evidenceDir, record.ID+".jpg")
	record.Path = s.baseURL + "/evidence/" + record.ID + ".jpg"

	if err := s.writeImage(imagePath, image); err != nil {
		s.logger.Printf("image write failed: %v", err)
		respondError(w, store.ErrSavingFailed)
		return
	}

	saved, inserted, err := s.store.InsertEvidence(ctx, record)
	if err != nil {
		os.Remove(imagePath)
		respondError(w, err)
		return
	}
	if inserted {
		metrics.EvidenceIngested.Inc()
		s.queue.Push(*saved)
		s.hub.Broadcast(hub.EvidenceMessage(s.store.View(ctx, *saved)))
	}
	respondJSON(w, http.StatusOK, saved)
}

func (s *Server) writeImage(path string, src io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	dst, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(path)
		return err
	}
	return dst.Close()
}

func (s *Server) handleListEvidences(w http.ResponseWriter, r *http.Request) {
	scope, ok := s.clusterScope(r)
	if !ok {
		respondError(w, store.ErrInvalidToken)
		return
	}

	q := store.EvidenceQuery{
		ProcessorID: r.URL.Query().Get("processor_id"),
		CameraID:    r.URL.Query().Get("camera_id"),
	}
	if v := r.URL.Query().Get("cluster_id"); v != "" {
		if !inScope(scope, v) {
			respondError(w, store.ErrNotFound)
			return
		}
		q.ClusterID = []string{v}
	} else if scope != nil {
		q.ClusterID = scope
	}
	if v, err := strconv.ParseInt(r.URL.Query().Get("date_minimum"), 10, 64); err == nil {
		q.Since = v
	}
	if v, err := strconv.ParseInt(r.URL.Query().Get("date_maximum"), 10, 64); err == nil {
		q.Until = v
	}
	if v, err := strconv.ParseInt(r.URL.Query().Get("limit"), 10, 64); err == nil {
		q.Limit = v
	}
	if v, err := strconv.ParseInt(r.URL.Query().Get("skip"), 10, 64); err == nil {
		q.Skip = v
	}

	records, err := s.store.Evidences(r.Context(), q)
	if err != nil {
		respondError(w, err)
		return
	}
	views := make([]store.EvidenceView, 0, len(records))
	for _, e := range records {
		views = append(views, s.store.View(r.Context(), e))
	}
	respondJSON(w, http.StatusOK, views)
}

func (s *Server) handleGetEvidence(w http.ResponseWriter, r *http.Request) {
	scope, ok := s.clusterScope(r)
	if !ok {
		respondError(w, store.ErrInvalidToken)
		return
	}
	e, err := s.store.EvidenceByID(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondError(w, err)
		return
	}
	if !inScope(scope, e.ClusterID) {
		respondError(w, store.ErrNotFound)
		return
	}
	respondJSON(w, http.StatusOK, s.store.View(r.Context(), *e))
}

type evidenceEdit struct {
	Resolved bool `json:"resolved"`
}

func (s *Server) handleResolveEvidence(w http.ResponseWriter, r *http.Request) {
	scope, ok := s.clusterScope(r)
	if !ok {
		respondError(w, store.ErrInvalidToken)
		return
	}
	id := mux.Vars(r)["id"]
	existing, err := s.store.EvidenceByID(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	if !inScope(scope, existing.ClusterID) {
		respondError(w, store.ErrNotFound)
		return
	}
	var edit evidenceEdit
	if err := json.NewDecoder(r.Body).Decode(&edit); err != nil {
		respondError(w, store.ErrInvalidID)
		return
	}
	updated, err := s.store.UpdateEvidenceResolved(r.Context(), id, edit.Resolved)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, updated)
}
