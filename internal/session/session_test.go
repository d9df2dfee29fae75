package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/clipverse/backend/internal/apperr"
	"github.com/clipverse/backend/internal/models"
)

type authStub struct {
	loginErr   error
	refreshErr error
	logoutErr  error
	refreshes  int
	expiresAt  time.Time
}

func (a *authStub) Login(_ context.Context, email, password string) (models.SessionTokens, error) {
	if a.loginErr != nil {
		return models.SessionTokens{}, a.loginErr
	}
	return models.SessionTokens{UserID: "u1", AccessToken: "access-0", RefreshToken: "refresh-0", AccessExpiresAt: a.expiresAt}, nil
}

func (a *authStub) Refresh(_ context.Context, token string) (models.SessionTokens, error) {
	if a.refreshErr != nil {
		return models.SessionTokens{}, a.refreshErr
	}
	a.refreshes++
	return models.SessionTokens{UserID: "u1", AccessToken: "access-1", RefreshToken: "refresh-1", AccessExpiresAt: a.expiresAt.Add(time.Hour)}, nil
}

func (a *authStub) Logout(context.Context, string) error { return a.logoutErr }

func TestSignInNotifiesSubscribers(t *testing.T) {
	ctx := context.Background()
	sc := New(&authStub{})

	var got []EventKind
	unsubscribe := sc.Subscribe(func(ev Event) { got = append(got, ev.Kind) })

	require.NoError(t, sc.SignIn(ctx, "a@example.com", "pw"))
	require.Equal(t, "u1", sc.ViewerID())

	unsubscribe()
	unsubscribe()
	require.NoError(t, sc.SignOut(ctx))

	require.Equal(t, []EventKind{SignedIn}, got)
	_, ok := sc.Current()
	require.False(t, ok)
}

func TestSignInFailureLeavesSignedOut(t *testing.T) {
	sc := New(&authStub{loginErr: apperr.E(apperr.KindAuthRequired, "invalid credentials", nil)})
	require.ErrorIs(t, sc.SignIn(context.Background(), "a@example.com", "bad"), apperr.ErrAuthRequired)
	require.Empty(t, sc.ViewerID())
}

func TestSignOutClearsEvenWhenRevokeFails(t *testing.T) {
	ctx := context.Background()
	sc := New(&authStub{logoutErr: errors.New("offline")})
	require.NoError(t, sc.SignIn(ctx, "a@example.com", "pw"))

	var kinds []EventKind
	sc.Subscribe(func(ev Event) { kinds = append(kinds, ev.Kind) })

	require.Error(t, sc.SignOut(ctx))
	require.Empty(t, sc.ViewerID())
	require.Equal(t, []EventKind{SignedOut}, kinds)
}

func TestTokenRefreshesNearExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	auth := &authStub{expiresAt: now.Add(10 * time.Second)}
	sc := New(auth)
	sc.now = func() time.Time { return now }

	token, err := sc.Token(ctx)
	require.NoError(t, err)
	require.Empty(t, token)

	require.NoError(t, sc.SignIn(ctx, "a@example.com", "pw"))

	var kinds []EventKind
	sc.Subscribe(func(ev Event) { kinds = append(kinds, ev.Kind) })

	token, err = sc.Token(ctx)
	require.NoError(t, err)
	require.Equal(t, "access-1", token)
	require.Equal(t, 1, auth.refreshes)
	require.Equal(t, []EventKind{Refreshed}, kinds)

	token, err = sc.Token(ctx)
	require.NoError(t, err)
	require.Equal(t, "access-1", token)
	require.Equal(t, 1, auth.refreshes)
}

func TestRejectedRefreshSignsOut(t *testing.T) {
	ctx := context.Background()
	auth := &authStub{}
	sc := New(auth)
	require.ErrorIs(t, sc.Refresh(ctx), apperr.ErrAuthRequired)

	require.NoError(t, sc.SignIn(ctx, "a@example.com", "pw"))

	auth.refreshErr = apperr.E(apperr.KindTransient, "server busy", nil)
	require.Error(t, sc.Refresh(ctx))
	require.Equal(t, "u1", sc.ViewerID())

	auth.refreshErr = apperr.E(apperr.KindAuthRequired, "session expired", nil)
	require.Error(t, sc.Refresh(ctx))
	require.Empty(t, sc.ViewerID())
}
