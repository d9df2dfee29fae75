package engagement

import (
	"context"
	"fmt"

	"github.com/clipverse/backend/internal/apperr"
)

// ErrSelfSubscription is returned when a creator subscribes to themselves.
var ErrSelfSubscription = apperr.E(apperr.KindForbidden, "You cannot subscribe to yourself", nil)

// LikeStore persists likes. Like and Unlike are idempotent.
type LikeStore interface {
	Like(ctx context.Context, viewerID, videoID string) error
	Unlike(ctx context.Context, viewerID, videoID string) error
}

// SubscriptionStore persists subscriptions. Subscribe and Unsubscribe are idempotent.
type SubscriptionStore interface {
	Subscribe(ctx context.Context, subscriberID, creatorID string) error
	Unsubscribe(ctx context.Context, subscriberID, creatorID string) error
}

// Service applies the engagement rules server-side.
type Service struct {
	likes LikeStore
	subs  SubscriptionStore
}

// NewService wires the engagement service.
func NewService(likes LikeStore, subs SubscriptionStore) *Service {
	return &Service{likes: likes, subs: subs}
}

// Like records viewerID's like on videoID.
func (s *Service) Like(ctx context.Context, viewerID, videoID string) error {
	if viewerID == "" {
		return apperr.E(apperr.KindAuthRequired, "Sign in to like videos", nil)
	}
	if err := s.likes.Like(ctx, viewerID, videoID); err != nil {
		return fmt.Errorf("like video: %w", err)
	}
	return nil
}

// Unlike removes viewerID's like on videoID.
func (s *Service) Unlike(ctx context.Context, viewerID, videoID string) error {
	if viewerID == "" {
		return apperr.E(apperr.KindAuthRequired, "Sign in to like videos", nil)
	}
	if err := s.likes.Unlike(ctx, viewerID, videoID); err != nil {
		return fmt.Errorf("unlike video: %w", err)
	}
	return nil
}

// Subscribe subscribes viewerID to creatorID.
func (s *Service) Subscribe(ctx context.Context, viewerID, creatorID string) error {
	if err := checkSubscriber(viewerID, creatorID); err != nil {
		return err
	}
	if err := s.subs.Subscribe(ctx, viewerID, creatorID); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	return nil
}

// Unsubscribe removes viewerID's subscription to creatorID.
func (s *Service) Unsubscribe(ctx context.Context, viewerID, creatorID string) error {
	if err := checkSubscriber(viewerID, creatorID); err != nil {
		return err
	}
	if err := s.subs.Unsubscribe(ctx, viewerID, creatorID); err != nil {
		return fmt.Errorf("unsubscribe: %w", err)
	}
	return nil
}

func checkSubscriber(viewerID, creatorID string) error {
	switch {
	case viewerID == "":
		return apperr.E(apperr.KindAuthRequired, "Sign in to subscribe", nil)
	case viewerID == creatorID:
		return ErrSelfSubscription
	case creatorID == "":
		return apperr.E(apperr.KindInvalid, "creator id is required", nil)
	}
	return nil
}
