// Package auth issues and verifies the RS256 token pair gating the server
// API: a short-lived access token for requests and a long-lived refresh token
// for re-issuing the pair.
package auth

import (
	"context"
	"crypto/rsa"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/gidence/scm/internal/server/store"
)

const (
	// AccessTTL bounds how long a stolen access token stays useful.
	AccessTTL = 1800 * time.Second
	// RefreshTTL is the operator re-login horizon.
	RefreshTTL = 259200 * time.Second
)

// Identity is the authenticated principal attached to a request.
type Identity struct {
	UserID string
	Role   store.Role
}

// Keys holds the two RSA pairs. Access and refresh tokens are signed with
// separate keys so a leaked refresh verifier cannot validate access tokens.
type Keys struct {
	accessPrivate  *rsa.PrivateKey
	accessPublic   *rsa.PublicKey
	refreshPrivate *rsa.PrivateKey
	refreshPublic  *rsa.PublicKey
}

// LoadKeys reads the four PEM files from dir: private_access.key,
// public_access.pem, private_refresh.key, public_refresh.pem.
func LoadKeys(dir string) (*Keys, error) {
	readPrivate := func(name string) (*rsa.PrivateKey, error) {
		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("auth: read %s: %w", name, err)
		}
		key, err := jwt.ParseRSAPrivateKeyFromPEM(raw)
		if err != nil {
			return nil, fmt.Errorf("auth: parse %s: %w", name, err)
		}
		return key, nil
	}
	readPublic := func(name string) (*rsa.PublicKey, error) {
		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("auth: read %s: %w", name, err)
		}
		key, err := jwt.ParseRSAPublicKeyFromPEM(raw)
		if err != nil {
			return nil, fmt.Errorf("auth: parse %s: %w", name, err)
		}
		return key, nil
	}

	k := &Keys{}
	var err error
	if k.accessPrivate, err = readPrivate("private_access.key"); err != nil {
		return nil, err
	}
	if k.accessPublic, err = readPublic("public_access.pem"); err != nil {
		return nil, err
	}
	if k.refreshPrivate, err = readPrivate("private_refresh.key"); err != nil {
		return nil, err
	}
	if k.refreshPublic, err = readPublic("public_refresh.pem"); err != nil {
		return nil, err
	}
	return k, nil
}

type claims struct {
	Role store.Role `json:"role"`
	jwt.RegisteredClaims
}

// Pair is one issued token pair.
type Pair struct {
	Access  string `json:"atk"`
	Refresh string `json:"rtk"`
}

// IssuePair signs a fresh access/refresh pair for the user.
func (k *Keys) IssuePair(user *store.User, audience string, now time.Time) (*Pair, error) {
	sign := func(key *rsa.PrivateKey, ttl time.Duration) (string, error) {
		c := claims{
			Role: user.Role,
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   user.ID,
				Audience:  jwt.ClaimStrings{audience},
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			},
		}
		return jwt.NewWithClaims(jwt.SigningMethodRS256, c).SignedString(key)
	}

	access, err := sign(k.accessPrivate, AccessTTL)
	if err != nil {
		return nil, fmt.Errorf("auth: sign access: %w", err)
	}
	refresh, err := sign(k.refreshPrivate, RefreshTTL)
	if err != nil {
		return nil, fmt.Errorf("auth: sign refresh: %w", err)
	}
	return &Pair{Access: access, Refresh: refresh}, nil
}

func verify(token string, key *rsa.PublicKey) (*Identity, error) {
	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (any, error) {
		return key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))
	if err != nil || !parsed.Valid {
		return nil, store.ErrInvalidToken
	}
	return &Identity{UserID: c.Subject, Role: c.Role}, nil
}

// VerifyAccess validates an access token and extracts its identity.
func (k *Keys) VerifyAccess(token string) (*Identity, error) {
	return verify(token, k.accessPublic)
}

// VerifyRefresh validates a refresh token and extracts its identity.
func (k *Keys) VerifyRefresh(token string) (*Identity, error) {
	return verify(token, k.refreshPublic)
}

type contextKey struct{}

// WithIdentity attaches the identity to the request context.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext recovers the identity attached by the bearer middleware.
func FromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(*Identity)
	return id, ok
}
