package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gidence/scm/internal/server/auth"
	"github.com/gidence/scm/internal/server/store"
)

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, err error) {
	http.Error(w, store.Body(err), store.HTTPStatus(err))
}

func respondCode(w http.ResponseWriter, status int, code string) {
	http.Error(w, code, status)
}

// bearer extracts and verifies the access token, attaching the identity to
// the request context.
func (s *Server) bearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if raw == "" || raw == r.Header.Get("Authorization") {
			respondError(w, store.ErrInvalidToken)
			return
		}
		id, err := s.keys.VerifyAccess(raw)
		if err != nil {
			respondError(w, store.ErrInvalidToken)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
	})
}

// identity recovers the principal the bearer middleware attached.
func identity(r *http.Request) *auth.Identity {
	id, _ := auth.FromContext(r.Context())
	return id
}

// requireAdmin gates an operation to super-admins.
func requireAdmin(w http.ResponseWriter, r *http.Request) *auth.Identity {
	id := identity(r)
	if id == nil || id.Role != store.RoleSuperAdmin {
		respondError(w, store.ErrInvalidToken)
		return nil
	}
	return id
}

// clusterScope resolves the cluster filter a principal may see: super-admins
// see everything, everyone else their assigned clusters.
func (s *Server) clusterScope(r *http.Request) ([]string, bool) {
	id := identity(r)
	if id == nil {
		return nil, false
	}
	if id.Role == store.RoleSuperAdmin {
		return nil, true
	}
	user, err := s.store.UserByID(r.Context(), id.UserID)
	if err != nil {
		return nil, false
	}
	if user.ClusterID == nil {
		return []string{}, true
	}
	return user.ClusterID, true
}

// inScope reports whether a cluster id is visible under the scope returned
// by clusterScope; a nil scope means unrestricted.
func inScope(scope []string, clusterID string) bool {
	if scope == nil {
		return true
	}
	for _, id := range scope {
		if id == clusterID {
			return true
		}
	}
	return false
}
