package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/gidence/scm/internal/envelope"
	"github.com/gidence/scm/internal/server/store"
)

type uniformBody struct {
	Name      string                    `json:"name"`
	Attribute []envelope.EquipmentLabel `json:"attribute"`
}

func (b uniformBody) valid() bool {
	if b.Name == "" {
		return false
	}
	for _, a := range b.Attribute {
		if !a.Valid() {
			return false
		}
	}
	return true
}

func (s *Server) handleCreateUniform(w http.ResponseWriter, r *http.Request) {
	if requireAdmin(w, r) == nil {
		return
	}
	var body uniformBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || !body.valid() {
		respondError(w, store.ErrInvalidID)
		return
	}
	uniform, err := s.store.InsertUniform(r.Context(), store.Uniform{
		Name:      body.Name,
		Attribute: body.Attribute,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, uniform)
}

func (s *Server) handleUpdateUniform(w http.ResponseWriter, r *http.Request) {
	if requireAdmin(w, r) == nil {
		return
	}
	var body uniformBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || !body.valid() {
		respondError(w, store.ErrInvalidID)
		return
	}
	uniform, err := s.store.UpdateUniform(r.Context(), store.Uniform{
		ID:        mux.Vars(r)["id"],
		Name:      body.Name,
		Attribute: body.Attribute,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, uniform)
}

func (s *Server) handleDeleteUniform(w http.ResponseWriter, r *http.Request) {
	if requireAdmin(w, r) == nil {
		return
	}
	if err := s.store.DeleteUniform(r.Context(), mux.Vars(r)["id"]); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetUniform(w http.ResponseWriter, r *http.Request) {
	uniform, err := s.store.UniformByID(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, uniform)
}

func (s *Server) handleListUniforms(w http.ResponseWriter, r *http.Request) {
	uniforms, err := s.store.Uniforms(r.Context(), nil)
	if err != nil {
		respondError(w, err)
		return
	}
	if uniforms == nil {
		uniforms = []store.Uniform{}
	}
	respondJSON(w, http.StatusOK, uniforms)
}
