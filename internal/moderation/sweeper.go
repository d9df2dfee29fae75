// Package moderation lifts expired suspensions and records admin actions.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clipverse/backend/internal/apperr"
	"github.com/clipverse/backend/internal/events"
	"github.com/clipverse/backend/internal/logging"
	"github.com/clipverse/backend/internal/metrics"
	"github.com/clipverse/backend/internal/models"
)

// DefaultBatchSize bounds how many suspensions one query returns.
const DefaultBatchSize = 100

// Store persists suspensions. Apply and Lift run in one transaction each:
// they update the target's suspended flag, the suspensions row and append the
// audit action together.
type Store interface {
	ExpiredSuspensions(ctx context.Context, now time.Time, limit int) ([]models.Suspension, error)
	ApplySuspension(ctx context.Context, s models.Suspension, action models.ModerationAction) error
	LiftSuspension(ctx context.Context, kind, targetID string, action models.ModerationAction) error
	RoleOf(ctx context.Context, userID string) (string, error)
}

// ExpiredEvent is published for every lifted suspension.
type ExpiredEvent struct {
	TargetKind string    `json:"targetKind"`
	TargetID   string    `json:"targetId"`
	EndedAt    time.Time `json:"endedAt"`
}

// SuspendedEvent is published when an admin suspends a target.
type SuspendedEvent struct {
	TargetKind string    `json:"targetKind"`
	TargetID   string    `json:"targetId"`
	Until      time.Time `json:"until"`
	ActorID    string    `json:"actorId"`
}

// Result counts the targets reinstated by one sweep.
type Result struct {
	Users  int `json:"users"`
	Videos int `json:"videos"`
}

// Total is the number of lifted suspensions.
func (r Result) Total() int { return r.Users + r.Videos }

// Sweeper lifts suspensions whose end time has passed.
type Sweeper struct {
	store     Store
	publisher events.Publisher
	metrics   *metrics.Metrics
	batchSize int
	now       func() time.Time
}

// Option customises a Sweeper.
type Option func(*Sweeper)

// WithMetrics counts lifted suspensions and published events.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Sweeper) { s.metrics = m }
}

// WithBatchSize overrides DefaultBatchSize.
func WithBatchSize(n int) Option {
	return func(s *Sweeper) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// NewSweeper wires a sweeper. A nil publisher disables events.
func NewSweeper(store Store, publisher events.Publisher, opts ...Option) *Sweeper {
	if publisher == nil {
		publisher = events.Noop{}
	}
	s := &Sweeper{store: store, publisher: publisher, batchSize: DefaultBatchSize, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sweep lifts every suspension that ended at or before now. A failure on one
// target does not stop the others; all failures are returned joined.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) (Result, error) {
	ctx, span := logging.StartSpan(ctx, "moderation.sweep")
	logger := logging.FromContext(ctx)

	var (
		res  Result
		errs []error
	)
	for {
		batch, err := s.store.ExpiredSuspensions(ctx, now, s.batchSize)
		if err != nil {
			errs = append(errs, fmt.Errorf("list expired suspensions: %w", err))
			break
		}

		failed := 0
		for _, sus := range batch {
			if err := s.lift(ctx, sus); err != nil {
				failed++
				logger.Error("lift suspension failed",
					slog.String("target", sus.TargetKind),
					slog.String("targetId", sus.TargetID),
					slog.Any("error", err),
				)
				errs = append(errs, err)
				continue
			}
			switch sus.TargetKind {
			case models.TargetUser:
				res.Users++
			case models.TargetVideo:
				res.Videos++
			}
		}

		// Failed rows stay expired; stop instead of re-reading them forever.
		if len(batch) < s.batchSize || failed > 0 {
			break
		}
	}

	err := errors.Join(errs...)
	span.EndErr(err)
	logger.Info("suspension sweep finished", slog.Int("users", res.Users), slog.Int("videos", res.Videos))
	return res, err
}

func (s *Sweeper) lift(ctx context.Context, sus models.Suspension) error {
	action := models.ModerationAction{
		ID:         uuid.NewString(),
		ActorID:    models.SystemActor,
		TargetKind: sus.TargetKind,
		TargetID:   sus.TargetID,
		Action:     models.ActionExpire,
		Reason:     "suspension period ended",
		CreatedAt:  s.now().UTC(),
	}
	if err := s.store.LiftSuspension(ctx, sus.TargetKind, sus.TargetID, action); err != nil {
		return fmt.Errorf("lift %s %s: %w", sus.TargetKind, sus.TargetID, err)
	}
	if s.metrics != nil {
		s.metrics.SuspensionsSwept.WithLabelValues(sus.TargetKind).Inc()
	}
	s.publish(ctx, events.SubjectSuspensionExpired, ExpiredEvent{
		TargetKind: sus.TargetKind,
		TargetID:   sus.TargetID,
		EndedAt:    sus.EndsAt,
	})
	return nil
}

// Run sweeps once immediately and then every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return apperr.E(apperr.KindInvalid, "sweep interval must be positive", nil)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.Sweep(ctx, s.now()); err != nil && ctx.Err() == nil {
			logging.FromContext(ctx).Warn("scheduled sweep incomplete", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Suspend places a suspension on a user or video until the given time.
func (s *Sweeper) Suspend(ctx context.Context, adminID, kind, targetID string, until time.Time, reason string) error {
	if err := s.requireAdmin(ctx, adminID); err != nil {
		return err
	}
	kind, err := normaliseKind(kind)
	if err != nil {
		return err
	}
	if strings.TrimSpace(targetID) == "" {
		return apperr.E(apperr.KindInvalid, "target id is required", nil)
	}
	now := s.now().UTC()
	if !until.After(now) {
		return apperr.E(apperr.KindInvalid, "suspension must end in the future", nil)
	}
	if kind == models.TargetUser && targetID == adminID {
		return apperr.E(apperr.KindForbidden, "You cannot suspend yourself", nil)
	}

	action := models.ModerationAction{
		ID:         uuid.NewString(),
		ActorID:    adminID,
		TargetKind: kind,
		TargetID:   targetID,
		Action:     models.ActionSuspend,
		Reason:     strings.TrimSpace(reason),
		CreatedAt:  now,
	}
	sus := models.Suspension{TargetKind: kind, TargetID: targetID, EndsAt: until.UTC()}
	if err := s.store.ApplySuspension(ctx, sus, action); err != nil {
		return fmt.Errorf("apply suspension: %w", err)
	}

	s.publish(ctx, events.SubjectSuspended, SuspendedEvent{
		TargetKind: kind,
		TargetID:   targetID,
		Until:      sus.EndsAt,
		ActorID:    adminID,
	})
	return nil
}

// Unsuspend lifts a suspension before it expires.
func (s *Sweeper) Unsuspend(ctx context.Context, adminID, kind, targetID, reason string) error {
	if err := s.requireAdmin(ctx, adminID); err != nil {
		return err
	}
	kind, err := normaliseKind(kind)
	if err != nil {
		return err
	}

	action := models.ModerationAction{
		ID:         uuid.NewString(),
		ActorID:    adminID,
		TargetKind: kind,
		TargetID:   targetID,
		Action:     models.ActionUnsuspend,
		Reason:     strings.TrimSpace(reason),
		CreatedAt:  s.now().UTC(),
	}
	if err := s.store.LiftSuspension(ctx, kind, targetID, action); err != nil {
		return fmt.Errorf("lift suspension: %w", err)
	}
	return nil
}

func (s *Sweeper) requireAdmin(ctx context.Context, userID string) error {
	if userID == "" {
		return apperr.E(apperr.KindAuthRequired, "Sign in as an administrator", nil)
	}
	role, err := s.store.RoleOf(ctx, userID)
	if err != nil {
		return fmt.Errorf("resolve role: %w", err)
	}
	if role != models.RoleAdmin {
		return apperr.E(apperr.KindForbidden, "Administrator access required", nil)
	}
	return nil
}

func (s *Sweeper) publish(ctx context.Context, subject string, payload any) {
	err := s.publisher.Publish(ctx, subject, payload)
	if s.metrics != nil {
		s.metrics.EventPublishTotal.WithLabelValues(subject, metrics.Outcome(err)).Inc()
	}
	if err != nil {
		logging.FromContext(ctx).Warn("publish event failed", slog.String("subject", subject), slog.Any("error", err))
	}
}

func normaliseKind(kind string) (string, error) {
	switch k := strings.ToLower(strings.TrimSpace(kind)); k {
	case models.TargetUser, models.TargetVideo:
		return k, nil
	default:
		return "", apperr.E(apperr.KindInvalid, fmt.Sprintf("unknown suspension target %q", kind), nil)
	}
}
