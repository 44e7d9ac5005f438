package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/gidence/scm/internal/fleet"
	"github.com/gidence/scm/internal/server/hub"
	"github.com/gidence/scm/internal/server/store"
)

// syncPayload is the edge's beat: the full descriptor and camera roster.
type syncPayload struct {
	Processor fleet.Processor `json:"processor"`
	Camera    []fleet.Camera  `json:"camera"`
}

// syncView is the authoritative answer on an accepted or stale sync.
type syncView struct {
	Processor store.Processor `json:"processor"`
	Uniform   []store.Uniform `json:"uniform"`
}

// handleSync is the server half of the reconciliation. The server stays
// authoritative for the cluster assignment and its uniforms; the edge is
// authoritative for its descriptor and camera inventory, but only at a
// strictly newer version.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	clusterID := mux.Vars(r)["cluster_id"]
	ctx := r.Context()

	var payload syncPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Processor.ID == "" {
		respondError(w, store.ErrInvalidID)
		return
	}

	stored, err := s.store.ProcessorByID(ctx, payload.Processor.ID)
	if errors.Is(err, store.ErrNotFound) {
		// Unknown processor adopts the path cluster, which must exist.
		if _, err := s.store.ClusterByID(ctx, clusterID); err != nil {
			respondError(w, err)
			return
		}
		stored, err = s.store.InsertProcessor(ctx, clusterID, payload.Processor)
		if err != nil {
			respondError(w, err)
			return
		}
		if err := s.store.ReplaceProcessorCameras(ctx, stored, payload.Camera); err != nil {
			respondError(w, err)
			return
		}
		s.finishSync(w, r, stored, true)
		return
	}
	if err != nil {
		respondError(w, err)
		return
	}

	switch {
	case payload.Processor.Version == stored.Version:
		wasLive := s.tracker.Contains(stored.ID)
		s.tracker.Refresh(stored.ID, time.Now())
		// A swept processor coming back is a presence change too.
		if !wasLive {
			s.hub.Broadcast(hub.ProcessorMessage(s.tracker.Snapshot()))
		}
		w.WriteHeader(http.StatusNoContent)
	case payload.Processor.Version > stored.Version:
		stored, err = s.store.UpdateProcessor(ctx, payload.Processor)
		if err != nil {
			respondError(w, err)
			return
		}
		if err := s.store.ReplaceProcessorCameras(ctx, stored, payload.Camera); err != nil {
			respondError(w, err)
			return
		}
		s.finishSync(w, r, stored, true)
	default:
		// Stale edge; answer with the stored truth, no mutation.
		s.finishSync(w, r, stored, false)
	}
}

// finishSync refreshes the lease, broadcasts presence when the map changed,
// and returns the authoritative view with the cluster's uniform set.
func (s *Server) finishSync(w http.ResponseWriter, r *http.Request, p *store.Processor, mutated bool) {
	wasLive := s.tracker.Contains(p.ID)
	s.tracker.Refresh(p.ID, time.Now())
	if mutated || !wasLive {
		s.hub.Broadcast(hub.ProcessorMessage(s.tracker.Snapshot()))
	}

	var uniforms []store.Uniform
	if cluster, err := s.store.ClusterByID(r.Context(), p.ClusterID); err == nil {
		uniforms, _ = s.store.Uniforms(r.Context(), cluster.UniformID)
	}
	if uniforms == nil {
		uniforms = []store.Uniform{}
	}
	respondJSON(w, http.StatusOK, syncView{Processor: *p, Uniform: uniforms})
}

// operator edit: re-assign the processor's cluster.
type processorEdit struct {
	ClusterID string `json:"cluster_id"`
}

func (s *Server) handleListProcessors(w http.ResponseWriter, r *http.Request) {
	scope, ok := s.clusterScope(r)
	if !ok {
		respondError(w, store.ErrInvalidToken)
		return
	}
	clusterID := r.URL.Query().Get("cluster_id")
	if clusterID != "" && !inScope(scope, clusterID) {
		respondError(w, store.ErrNotFound)
		return
	}
	procs, err := s.store.Processors(r.Context(), clusterID)
	if err != nil {
		respondError(w, err)
		return
	}
	if clusterID == "" && scope != nil {
		filtered := procs[:0]
		for _, p := range procs {
			if inScope(scope, p.ClusterID) {
				filtered = append(filtered, p)
			}
		}
		procs = filtered
	}
	if procs == nil {
		procs = []store.Processor{}
	}
	respondJSON(w, http.StatusOK, procs)
}

func (s *Server) handleGetProcessor(w http.ResponseWriter, r *http.Request) {
	scope, ok := s.clusterScope(r)
	if !ok {
		respondError(w, store.ErrInvalidToken)
		return
	}
	p, err := s.store.ProcessorByID(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondError(w, err)
		return
	}
	if !inScope(scope, p.ClusterID) {
		respondError(w, store.ErrNotFound)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (s *Server) handleUpdateProcessor(w http.ResponseWriter, r *http.Request) {
	if requireAdmin(w, r) == nil {
		return
	}
	var edit processorEdit
	if err := json.NewDecoder(r.Body).Decode(&edit); err != nil || edit.ClusterID == "" {
		respondError(w, store.ErrInvalidID)
		return
	}
	p, err := s.store.AssignProcessor(r.Context(), mux.Vars(r)["id"], edit.ClusterID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeleteProcessor(w http.ResponseWriter, r *http.Request) {
	if requireAdmin(w, r) == nil {
		return
	}
	if err := s.store.DeleteProcessor(r.Context(), mux.Vars(r)["id"]); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
