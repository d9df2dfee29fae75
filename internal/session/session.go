// Package session holds the signed-in state of a client and notifies
// listeners when it changes.
package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/clipverse/backend/internal/apperr"
	"github.com/clipverse/backend/internal/models"
)

// RefreshSkew is how long before expiry Token refreshes the access token.
const RefreshSkew = 30 * time.Second

// Authenticator talks to the auth endpoints.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (models.SessionTokens, error)
	Refresh(ctx context.Context, refreshToken string) (models.SessionTokens, error)
	Logout(ctx context.Context, refreshToken string) error
}

// EventKind says what changed.
type EventKind int

const (
	SignedIn EventKind = iota + 1
	SignedOut
	Refreshed
)

func (k EventKind) String() string {
	switch k {
	case SignedIn:
		return "signed_in"
	case SignedOut:
		return "signed_out"
	case Refreshed:
		return "refreshed"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is delivered to subscribers. Session is the zero value on SignedOut.
type Event struct {
	Kind    EventKind
	Session models.SessionTokens
}

// Context is the session shared by everything a client does. It is passed
// explicitly rather than held in a global.
type Context struct {
	auth Authenticator
	now  func() time.Time

	mu        sync.Mutex
	current   *models.SessionTokens
	listeners map[int]func(Event)
	nextID    int
}

// New returns a signed-out Context.
func New(auth Authenticator) *Context {
	return &Context{auth: auth, now: time.Now, listeners: make(map[int]func(Event))}
}

// Current returns the active session, if any.
func (c *Context) Current() (models.SessionTokens, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return models.SessionTokens{}, false
	}
	return *c.current, true
}

// ViewerID returns the signed-in user id or "".
func (c *Context) ViewerID() string {
	s, ok := c.Current()
	if !ok {
		return ""
	}
	return s.UserID
}

// SignIn exchanges credentials for a session.
func (c *Context) SignIn(ctx context.Context, email, password string) error {
	tokens, err := c.auth.Login(ctx, email, password)
	if err != nil {
		return err
	}
	c.set(&tokens, SignedIn)
	return nil
}

// SignOut revokes the refresh token and clears local state. Local state is
// cleared even when the revoke fails; that error is still returned.
func (c *Context) SignOut(ctx context.Context) error {
	s, ok := c.Current()
	if !ok {
		return nil
	}
	err := c.auth.Logout(ctx, s.RefreshToken)
	c.set(nil, SignedOut)
	return err
}

// Refresh rotates the session tokens. A rejected refresh token signs the
// client out.
func (c *Context) Refresh(ctx context.Context) error {
	s, ok := c.Current()
	if !ok {
		return apperr.E(apperr.KindAuthRequired, "Sign in to continue", nil)
	}
	tokens, err := c.auth.Refresh(ctx, s.RefreshToken)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindAuthRequired {
			c.set(nil, SignedOut)
		}
		return err
	}
	c.set(&tokens, Refreshed)
	return nil
}

// Token returns a usable access token, refreshing it first when it is about
// to expire. It returns "" and no error for a signed-out client.
func (c *Context) Token(ctx context.Context) (string, error) {
	s, ok := c.Current()
	if !ok {
		return "", nil
	}
	if !s.AccessExpiresAt.IsZero() && c.now().Add(RefreshSkew).After(s.AccessExpiresAt) {
		if err := c.Refresh(ctx); err != nil {
			return "", err
		}
		s, _ = c.Current()
	}
	return s.AccessToken, nil
}

// Subscribe registers fn for session changes. Listeners run synchronously in
// subscription order. The returned func unsubscribes and is idempotent.
func (c *Context) Subscribe(fn func(Event)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.listeners, id)
			c.mu.Unlock()
		})
	}
}

func (c *Context) set(tokens *models.SessionTokens, kind EventKind) {
	c.mu.Lock()
	c.current = tokens
	ids := make([]int, 0, len(c.listeners))
	for id := range c.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(Event), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, c.listeners[id])
	}
	c.mu.Unlock()

	ev := Event{Kind: kind}
	if tokens != nil {
		ev.Session = *tokens
	}
	for _, fn := range fns {
		fn(ev)
	}
}
