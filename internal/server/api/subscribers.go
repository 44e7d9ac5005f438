package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/gidence/scm/internal/server/store"
)

type subscriberBody struct {
	Kind store.SubscriberKind `json:"kind"`
}

// handleCreateSubscriber registers a push token for the calling user.
// Re-posting an existing token moves it, which doubles as the refresh path
// when a device changes hands.
func (s *Server) handleCreateSubscriber(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	if id == nil {
		respondError(w, store.ErrInvalidToken)
		return
	}
	var body subscriberBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Kind.Apple == "" {
		respondError(w, store.ErrInvalidID)
		return
	}
	sub, err := s.store.InsertSubscriber(r.Context(), store.Subscriber{
		UserID: id.UserID,
		Kind:   body.Kind,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sub)
}

func (s *Server) handleDeleteSubscriber(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	if id == nil {
		respondError(w, store.ErrInvalidToken)
		return
	}
	target := mux.Vars(r)["id"]
	subs, err := s.store.SubscribersByUser(r.Context(), id.UserID)
	if err != nil {
		respondError(w, err)
		return
	}
	owned := id.Role == store.RoleSuperAdmin
	for _, sub := range subs {
		if sub.ID == target {
			owned = true
			break
		}
	}
	if !owned {
		respondError(w, store.ErrNotFound)
		return
	}
	if err := s.store.DeleteSubscriber(r.Context(), target); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListSubscribers(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	if id == nil {
		respondError(w, store.ErrInvalidToken)
		return
	}
	subs, err := s.store.SubscribersByUser(r.Context(), id.UserID)
	if err != nil {
		respondError(w, err)
		return
	}
	if subs == nil {
		subs = []store.Subscriber{}
	}
	respondJSON(w, http.StatusOK, subs)
}
