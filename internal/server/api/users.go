package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/gidence/scm/internal/server/store"
)

type credentials struct {
	Number   string `json:"number"`
	Password string `json:"password"`
}

type session struct {
	Access  string     `json:"atk"`
	Refresh string     `json:"rtk"`
	User    store.User `json:"user"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		respondError(w, store.ErrInvalidCombination)
		return
	}
	user, err := s.store.Authenticate(r.Context(), creds.Number, creds.Password)
	if err != nil {
		respondError(w, store.ErrInvalidCombination)
		return
	}
	pair, err := s.keys.IssuePair(user, s.baseURL, time.Now())
	if err != nil {
		s.logger.Printf("token issue failed: %v", err)
		respondError(w, store.ErrInvalidCombination)
		return
	}
	respondJSON(w, http.StatusOK, session{Access: pair.Access, Refresh: pair.Refresh, User: *user})
}

type refreshRequest struct {
	Refresh string `json:"rtk"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, store.ErrInvalidToken)
		return
	}
	id, err := s.keys.VerifyRefresh(req.Refresh)
	if err != nil {
		respondError(w, store.ErrInvalidToken)
		return
	}
	user, err := s.store.UserByID(r.Context(), id.UserID)
	if err != nil {
		respondError(w, store.ErrInvalidToken)
		return
	}
	pair, err := s.keys.IssuePair(user, s.baseURL, time.Now())
	if err != nil {
		respondError(w, store.ErrInvalidToken)
		return
	}
	respondJSON(w, http.StatusOK, session{Access: pair.Access, Refresh: pair.Refresh, User: *user})
}

type userBody struct {
	ClusterID []string   `json:"cluster_id"`
	Number    string     `json:"number"`
	Name      string     `json:"name"`
	Password  string     `json:"password"`
	Role      store.Role `json:"role"`
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	if requireAdmin(w, r) == nil {
		return
	}
	var body userBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Number == "" || body.Password == "" || !body.Role.Valid() {
		respondError(w, store.ErrInvalidID)
		return
	}
	user, err := s.store.InsertUser(r.Context(), store.User{
		ClusterID: body.ClusterID,
		Number:    body.Number,
		Name:      body.Name,
		Password:  body.Password,
		Role:      body.Role,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	if requireAdmin(w, r) == nil {
		return
	}
	id := mux.Vars(r)["id"]
	existing, err := s.store.UserByID(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	var body userBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || !body.Role.Valid() {
		respondError(w, store.ErrInvalidID)
		return
	}
	existing.ClusterID = body.ClusterID
	existing.Number = body.Number
	existing.Name = body.Name
	existing.Role = body.Role
	updated, err := s.store.UpdateUser(r.Context(), *existing, body.Password)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	if requireAdmin(w, r) == nil {
		return
	}
	if err := s.store.DeleteUser(r.Context(), mux.Vars(r)["id"]); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	if id == nil {
		respondError(w, store.ErrInvalidToken)
		return
	}
	target := mux.Vars(r)["id"]
	// Operators can always read their own account.
	if id.Role != store.RoleSuperAdmin && id.UserID != target {
		respondError(w, store.ErrNotFound)
		return
	}
	user, err := s.store.UserByID(r.Context(), target)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	if requireAdmin(w, r) == nil {
		return
	}
	q := store.UserQuery{
		ClusterID: r.URL.Query().Get("cluster_id"),
		Text:      r.URL.Query().Get("text"),
	}
	if v, err := strconv.ParseInt(r.URL.Query().Get("limit"), 10, 64); err == nil {
		q.Limit = v
	}
	if v, err := strconv.ParseInt(r.URL.Query().Get("skip"), 10, 64); err == nil {
		q.Skip = v
	}
	users, err := s.store.Users(r.Context(), q)
	if err != nil {
		respondError(w, err)
		return
	}
	if users == nil {
		users = []store.User{}
	}
	respondJSON(w, http.StatusOK, users)
}
