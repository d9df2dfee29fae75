package thumbnail

import (
	"context"
	"errors"
	"io"
	"sync"
)

var (
	// ErrSuperseded is returned to a Select whose result lost to a newer selection.
	ErrSuperseded = errors.New("thumbnail selection superseded")
	// ErrSessionClosed is returned after Close.
	ErrSessionClosed = errors.New("thumbnail session closed")
)

// CropFunc produces a thumbnail from raw image bytes.
type CropFunc func(r io.Reader) (Result, error)

// Session holds the current thumbnail of one upload or edit flow. Only the most
// recent selection may become current; older selections still running when a
// newer one starts are discarded when they finish.
type Session struct {
	crop CropFunc

	// saving serializes Commit saves; it is taken before mu, never after.
	saving sync.Mutex

	mu      sync.Mutex
	gen     uint64
	current *Result
	closed  bool
}

// NewSession returns a Session using DecodeAndCrop.
func NewSession() *Session {
	return &Session{crop: DecodeAndCrop}
}

// NewSessionWithCrop returns a Session using a custom crop function.
func NewSessionWithCrop(crop CropFunc) *Session {
	if crop == nil {
		crop = DecodeAndCrop
	}
	return &Session{crop: crop}
}

// Select crops the image read from r and makes it current. On failure the
// previous result is left in place.
func (s *Session) Select(ctx context.Context, r io.Reader) (Result, error) {
	return s.Commit(ctx, r, nil)
}

// Commit crops the image read from r and, while the selection is still the
// newest, runs save before making the result current. Saves are serialized
// per session, so a selection that passed the check finishes saving before
// any later one starts; a selection overtaken before its check is never
// saved. A failed save leaves the previous result in place.
func (s *Session) Commit(ctx context.Context, r io.Reader, save func(context.Context, Result) error) (Result, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Result{}, ErrSessionClosed
	}
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	result, err := s.crop(r)
	if err != nil {
		return Result{}, err
	}

	s.saving.Lock()
	defer s.saving.Unlock()

	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return Result{}, ErrSessionClosed
	case gen != s.gen:
		s.mu.Unlock()
		return Result{}, ErrSuperseded
	case ctx.Err() != nil:
		s.mu.Unlock()
		return Result{}, ctx.Err()
	}
	s.mu.Unlock()

	if save != nil {
		if err := save(ctx, result); err != nil {
			return Result{}, err
		}
	}

	s.mu.Lock()
	if !s.closed {
		s.current = &result
	}
	s.mu.Unlock()
	return result, nil
}

// Current returns the latest successful crop.
func (s *Session) Current() (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return Result{}, false
	}
	return *s.current, true
}

// Close releases the current result; pending selections are discarded.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.current = nil
	s.mu.Unlock()
}

// Registry hands out one Session per key, so concurrent edits of the same
// video thumbnail resolve last-write-wins.
type Registry struct {
	crop CropFunc

	mu       sync.Mutex
	sessions map[string]*registryEntry
}

type registryEntry struct {
	session *Session
	refs    int
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{crop: DecodeAndCrop, sessions: make(map[string]*registryEntry)}
}

// Acquire returns the session for key and a release func. The session is
// closed once every holder has released it.
func (r *Registry) Acquire(key string) (*Session, func()) {
	r.mu.Lock()
	entry, ok := r.sessions[key]
	if !ok {
		entry = &registryEntry{session: NewSessionWithCrop(r.crop)}
		r.sessions[key] = entry
	}
	entry.refs++
	r.mu.Unlock()

	var once sync.Once
	release := func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			entry.refs--
			if entry.refs == 0 {
				entry.session.Close()
				delete(r.sessions, key)
			}
		})
	}
	return entry.session, release
}
