// Package auth validates bearer credentials against the session store.
package auth

import (
	"context"
	"time"

	"github.com/switchboardhq/switchboard/internal/cherr"
	"github.com/switchboardhq/switchboard/internal/store"
)

// DefaultTokenTTL is how long minted tokens live unless overridden.
const DefaultTokenTTL = 30 * 24 * time.Hour

// Authenticator resolves bearer tokens to user ids.
type Authenticator struct {
	store *store.Store
}

// New creates an authenticator backed by the given store.
func New(st *store.Store) *Authenticator {
	return &Authenticator{store: st}
}

// Authenticate resolves a bearer token to a user id. A missing, unknown, or
// expired token is Unauthorized; the caller must refuse the connection before
// it enters the open state.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", cherr.New(cherr.Unauthorized, "missing token")
	}

	sess, err := a.store.SessionByToken(ctx, token)
	if err != nil {
		if cherr.KindOf(err) == cherr.NotFound {
			return "", cherr.New(cherr.Unauthorized, "invalid token")
		}
		return "", err
	}

	if time.Now().UTC().After(sess.ExpiresAt) {
		return "", cherr.New(cherr.Unauthorized, "token expired")
	}

	return sess.UserID, nil
}

// MintToken creates a session for userID and returns the bearer token.
// ttl <= 0 uses DefaultTokenTTL.
func (a *Authenticator) MintToken(ctx context.Context, userID string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	if _, err := a.store.UserByID(ctx, userID); err != nil {
		return "", err
	}
	sess, err := a.store.CreateSession(ctx, userID, ttl)
	if err != nil {
		return "", err
	}
	return sess.Token, nil
}
