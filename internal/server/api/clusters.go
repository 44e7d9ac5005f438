package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/gidence/scm/internal/server/store"
)

type clusterBody struct {
	Name      string   `json:"name"`
	UniformID []string `json:"uniform_id"`
}

func (s *Server) handleCreateCluster(w http.ResponseWriter, r *http.Request) {
	if requireAdmin(w, r) == nil {
		return
	}
	var body clusterBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Name == "" {
		respondError(w, store.ErrInvalidID)
		return
	}
	cluster, err := s.store.InsertCluster(r.Context(), store.Cluster{
		Name:      body.Name,
		UniformID: body.UniformID,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, cluster)
}

func (s *Server) handleUpdateCluster(w http.ResponseWriter, r *http.Request) {
	if requireAdmin(w, r) == nil {
		return
	}
	var body clusterBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Name == "" {
		respondError(w, store.ErrInvalidID)
		return
	}
	cluster, err := s.store.UpdateCluster(r.Context(), store.Cluster{
		ID:        mux.Vars(r)["id"],
		Name:      body.Name,
		UniformID: body.UniformID,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, cluster)
}

func (s *Server) handleDeleteCluster(w http.ResponseWriter, r *http.Request) {
	if requireAdmin(w, r) == nil {
		return
	}
	if err := s.store.DeleteCluster(r.Context(), mux.Vars(r)["id"]); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetCluster(w http.ResponseWriter, r *http.Request) {
	scope, ok := s.clusterScope(r)
	if !ok {
		respondError(w, store.ErrInvalidToken)
		return
	}
	id := mux.Vars(r)["id"]
	if !inScope(scope, id) {
		respondError(w, store.ErrNotFound)
		return
	}
	cluster, err := s.store.ClusterByID(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, cluster)
}

func (s *Server) handleListClusters(w http.ResponseWriter, r *http.Request) {
	scope, ok := s.clusterScope(r)
	if !ok {
		respondError(w, store.ErrInvalidToken)
		return
	}
	clusters, err := s.store.Clusters(r.Context(), scope)
	if err != nil {
		respondError(w, err)
		return
	}
	if clusters == nil {
		clusters = []store.Cluster{}
	}
	respondJSON(w, http.StatusOK, clusters)
}
