package engagement

import (
	"context"
	"sync"

	"github.com/clipverse/backend/internal/apperr"
)

// LikeState is what a viewer sees for a video's like button.
type LikeState struct {
	Liked bool
	Count int64
}

// LikeRemote performs the like writes against the backend.
type LikeRemote interface {
	Like(ctx context.Context, videoID string) error
	Unlike(ctx context.Context, videoID string) error
}

// LikeToggler flips a like optimistically and rolls back when the write fails.
type LikeToggler struct {
	videoID string
	remote  LikeRemote
	tracker *Tracker[LikeState]

	mu       sync.Mutex
	inFlight bool
}

// NewLikeToggler tracks the like button of videoID starting from initial.
func NewLikeToggler(videoID string, initial LikeState, remote LikeRemote) *LikeToggler {
	return &LikeToggler{videoID: videoID, remote: remote, tracker: NewTracker(initial)}
}

// State returns the displayed like state.
func (l *LikeToggler) State() LikeState { return l.tracker.State() }

// Toggle likes or unlikes the video on behalf of viewerID. A toggle while
// another is in flight is ignored and reports false.
func (l *LikeToggler) Toggle(ctx context.Context, viewerID string) (bool, error) {
	if viewerID == "" {
		return false, apperr.E(apperr.KindAuthRequired, "Sign in to like videos", nil)
	}
	if !l.begin() {
		return false, nil
	}
	defer l.end()

	m := l.tracker.Apply(func(s LikeState) LikeState {
		if s.Liked {
			return LikeState{Liked: false, Count: max(s.Count-1, 0)}
		}
		return LikeState{Liked: true, Count: s.Count + 1}
	})

	var err error
	if m.Snapshot().Liked {
		err = l.remote.Unlike(ctx, l.videoID)
	} else {
		err = l.remote.Like(ctx, l.videoID)
	}
	if err != nil {
		m.Rollback()
		return false, err
	}
	m.Confirm()
	return true, nil
}

func (l *LikeToggler) begin() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.inFlight {
		return false
	}
	l.inFlight = true
	return true
}

func (l *LikeToggler) end() {
	l.mu.Lock()
	l.inFlight = false
	l.mu.Unlock()
}

// SubscriptionState is what a viewer sees for a creator's subscribe button.
type SubscriptionState struct {
	Subscribed  bool
	Subscribers int64
}

// SubscriptionRemote performs the subscription writes against the backend.
type SubscriptionRemote interface {
	Subscribe(ctx context.Context, creatorID string) error
	Unsubscribe(ctx context.Context, creatorID string) error
}

// SubscriptionToggler flips a subscription optimistically.
type SubscriptionToggler struct {
	creatorID string
	remote    SubscriptionRemote
	tracker   *Tracker[SubscriptionState]

	mu       sync.Mutex
	inFlight bool
}

// NewSubscriptionToggler tracks the subscribe button of creatorID.
func NewSubscriptionToggler(creatorID string, initial SubscriptionState, remote SubscriptionRemote) *SubscriptionToggler {
	return &SubscriptionToggler{creatorID: creatorID, remote: remote, tracker: NewTracker(initial)}
}

// State returns the displayed subscription state.
func (s *SubscriptionToggler) State() SubscriptionState { return s.tracker.State() }

// Toggle subscribes or unsubscribes viewerID. Subscribing to oneself is
// forbidden and leaves the state untouched.
func (s *SubscriptionToggler) Toggle(ctx context.Context, viewerID string) (bool, error) {
	if viewerID == "" {
		return false, apperr.E(apperr.KindAuthRequired, "Sign in to subscribe", nil)
	}
	if viewerID == s.creatorID {
		return false, ErrSelfSubscription
	}

	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return false, nil
	}
	s.inFlight = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.inFlight = false
		s.mu.Unlock()
	}()

	m := s.tracker.Apply(func(st SubscriptionState) SubscriptionState {
		if st.Subscribed {
			return SubscriptionState{Subscribed: false, Subscribers: max(st.Subscribers-1, 0)}
		}
		return SubscriptionState{Subscribed: true, Subscribers: st.Subscribers + 1}
	})

	var err error
	if m.Snapshot().Subscribed {
		err = s.remote.Unsubscribe(ctx, s.creatorID)
	} else {
		err = s.remote.Subscribe(ctx, s.creatorID)
	}
	if err != nil {
		m.Rollback()
		return false, err
	}
	m.Confirm()
	return true, nil
}
