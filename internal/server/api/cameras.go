package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/gidence/scm/internal/server/store"
)

// Camera rows are owned by the sync protocol; the operator API only reads
// them.

func (s *Server) handleGetCamera(w http.ResponseWriter, r *http.Request) {
	scope, ok := s.clusterScope(r)
	if !ok {
		respondError(w, store.ErrInvalidToken)
		return
	}
	camera, err := s.store.CameraByID(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondError(w, err)
		return
	}
	if !inScope(scope, camera.ClusterID) {
		respondError(w, store.ErrNotFound)
		return
	}
	respondJSON(w, http.StatusOK, camera)
}

func (s *Server) handleListCameras(w http.ResponseWriter, r *http.Request) {
	scope, ok := s.clusterScope(r)
	if !ok {
		respondError(w, store.ErrInvalidToken)
		return
	}
	q := store.CameraQuery{
		ClusterID:   r.URL.Query().Get("cluster_id"),
		ProcessorID: r.URL.Query().Get("processor_id"),
	}
	if q.ClusterID != "" && !inScope(scope, q.ClusterID) {
		respondError(w, store.ErrNotFound)
		return
	}
	cameras, err := s.store.Cameras(r.Context(), q)
	if err != nil {
		respondError(w, err)
		return
	}
	if q.ClusterID == "" && scope != nil {
		filtered := cameras[:0]
		for _, c := range cameras {
			if inScope(scope, c.ClusterID) {
				filtered = append(filtered, c)
			}
		}
		cameras = filtered
	}
	if cameras == nil {
		cameras = []store.Camera{}
	}
	respondJSON(w, http.StatusOK, cameras)
}
