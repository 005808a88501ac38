package auth

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/switchboardhq/switchboard/internal/cherr"
	"github.com/switchboardhq/switchboard/internal/store"
)

func newTestAuth(t *testing.T) (*Authenticator, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "auth.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return New(st), st
}

func TestMintAndAuthenticate(t *testing.T) {
	a, st := newTestAuth(t)
	ctx := context.Background()

	u, _ := st.CreateUser(ctx, "alice@example.com", "Alice")
	token, err := a.MintToken(ctx, u.ID, time.Hour)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	userID, err := a.Authenticate(ctx, token)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if userID != u.ID {
		t.Errorf("user id = %q, want %q", userID, u.ID)
	}
}

func TestAuthenticateRejectsMissingToken(t *testing.T) {
	a, _ := newTestAuth(t)
	_, err := a.Authenticate(context.Background(), "")
	if cherr.KindOf(err) != cherr.Unauthorized {
		t.Errorf("err = %v, want Unauthorized", err)
	}
}

func TestAuthenticateRejectsUnknownToken(t *testing.T) {
	a, _ := newTestAuth(t)
	_, err := a.Authenticate(context.Background(), "no-such-token")
	if cherr.KindOf(err) != cherr.Unauthorized {
		t.Errorf("err = %v, want Unauthorized", err)
	}
}

func TestAuthenticateRejectsExpiredToken(t *testing.T) {
	a, st := newTestAuth(t)
	ctx := context.Background()

	u, _ := st.CreateUser(ctx, "alice@example.com", "Alice")
	token, err := a.MintToken(ctx, u.ID, -time.Minute)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	_, err = a.Authenticate(ctx, token)
	if cherr.KindOf(err) != cherr.Unauthorized {
		t.Errorf("err = %v, want Unauthorized", err)
	}
}

func TestMintRequiresExistingUser(t *testing.T) {
	a, _ := newTestAuth(t)
	_, err := a.MintToken(context.Background(), "ghost", time.Hour)
	if err == nil {
		t.Fatal("expected error minting for unknown user")
	}
}
