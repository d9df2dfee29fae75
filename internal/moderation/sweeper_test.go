package moderation

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/clipverse/backend/internal/apperr"
	"github.com/clipverse/backend/internal/metrics"
	"github.com/clipverse/backend/internal/models"
)

type memoryStore struct {
	mu          sync.Mutex
	suspensions map[string]models.Suspension
	suspended   map[string]bool
	actions     []models.ModerationAction
	roles       map[string]string
	failLift    map[string]bool
	listCalls   int
}

func newMemoryStore(sus ...models.Suspension) *memoryStore {
	s := &memoryStore{
		suspensions: map[string]models.Suspension{},
		suspended:   map[string]bool{},
		roles:       map[string]string{"admin": models.RoleAdmin},
		failLift:    map[string]bool{},
	}
	for _, x := range sus {
		s.suspensions[key(x.TargetKind, x.TargetID)] = x
		s.suspended[key(x.TargetKind, x.TargetID)] = true
	}
	return s
}

func key(kind, id string) string { return kind + "/" + id }

func (s *memoryStore) ExpiredSuspensions(_ context.Context, now time.Time, limit int) ([]models.Suspension, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	var out []models.Suspension
	for _, x := range s.suspensions {
		if !x.EndsAt.After(now) {
			out = append(out, x)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TargetID < out[j].TargetID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memoryStore) ApplySuspension(_ context.Context, x models.Suspension, action models.ModerationAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suspensions[key(x.TargetKind, x.TargetID)] = x
	s.suspended[key(x.TargetKind, x.TargetID)] = true
	s.actions = append(s.actions, action)
	return nil
}

func (s *memoryStore) LiftSuspension(_ context.Context, kind, id string, action models.ModerationAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(kind, id)
	if s.failLift[k] {
		return errors.New("deadlock detected")
	}
	if _, ok := s.suspensions[k]; !ok {
		return apperr.E(apperr.KindNotFound, "suspension not found", nil)
	}
	delete(s.suspensions, k)
	s.suspended[k] = false
	s.actions = append(s.actions, action)
	return nil
}

func (s *memoryStore) RoleOf(_ context.Context, userID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roles[userID], nil
}

type recordingPublisher struct {
	mu       sync.Mutex
	subjects []string
	payloads []any
}

func (p *recordingPublisher) Publish(_ context.Context, subject string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	p.payloads = append(p.payloads, payload)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func TestSweepLiftsOnlyExpired(t *testing.T) {
	store := newMemoryStore(
		models.Suspension{TargetKind: models.TargetUser, TargetID: "u1", EndsAt: now.Add(-time.Hour)},
		models.Suspension{TargetKind: models.TargetVideo, TargetID: "v1", EndsAt: now},
		models.Suspension{TargetKind: models.TargetUser, TargetID: "u2", EndsAt: now.Add(time.Hour)},
	)
	pub := &recordingPublisher{}
	sweeper := NewSweeper(store, pub, WithMetrics(metrics.New()))

	res, err := sweeper.Sweep(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, Result{Users: 1, Videos: 1}, res)
	require.Equal(t, 2, res.Total())

	require.False(t, store.suspended[key(models.TargetUser, "u1")])
	require.False(t, store.suspended[key(models.TargetVideo, "v1")])
	require.True(t, store.suspended[key(models.TargetUser, "u2")])

	require.Len(t, store.actions, 2)
	for _, a := range store.actions {
		require.Equal(t, models.SystemActor, a.ActorID)
		require.Equal(t, models.ActionExpire, a.Action)
	}

	require.Len(t, pub.subjects, 2)
	ev, ok := pub.payloads[0].(ExpiredEvent)
	require.True(t, ok)
	require.Equal(t, "u1", ev.TargetID)
}

func TestSweepPagesThroughBatches(t *testing.T) {
	var sus []models.Suspension
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		sus = append(sus, models.Suspension{TargetKind: models.TargetVideo, TargetID: id, EndsAt: now.Add(-time.Minute)})
	}
	store := newMemoryStore(sus...)
	sweeper := NewSweeper(store, nil, WithBatchSize(2))

	res, err := sweeper.Sweep(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, 5, res.Videos)
	require.Equal(t, 3, store.listCalls)
}

func TestSweepContinuesPastFailures(t *testing.T) {
	store := newMemoryStore(
		models.Suspension{TargetKind: models.TargetUser, TargetID: "bad", EndsAt: now.Add(-time.Hour)},
		models.Suspension{TargetKind: models.TargetUser, TargetID: "good", EndsAt: now.Add(-time.Hour)},
	)
	store.failLift[key(models.TargetUser, "bad")] = true
	sweeper := NewSweeper(store, nil, WithBatchSize(2))

	res, err := sweeper.Sweep(context.Background(), now)
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "deadlock"))
	require.Equal(t, 1, res.Users)
	require.Equal(t, 1, store.listCalls)
	require.True(t, store.suspended[key(models.TargetUser, "bad")])
}

func TestRunSweepsUntilCancelled(t *testing.T) {
	store := newMemoryStore(models.Suspension{TargetKind: models.TargetUser, TargetID: "u1", EndsAt: now.Add(-time.Hour)})
	sweeper := NewSweeper(store, nil)
	sweeper.now = func() time.Time { return now }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sweeper.Run(ctx, 5*time.Millisecond) }()

	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return store.listCalls >= 2
	}, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	store.mu.Lock()
	defer store.mu.Unlock()
	require.False(t, store.suspended[key(models.TargetUser, "u1")])

	require.ErrorIs(t, NewSweeper(store, nil).Run(context.Background(), 0), apperr.ErrInvalid)
}

func TestSuspendRequiresAdmin(t *testing.T) {
	store := newMemoryStore()
	store.roles["member"] = models.RoleUser
	pub := &recordingPublisher{}
	sweeper := NewSweeper(store, pub)
	sweeper.now = func() time.Time { return now }
	ctx := context.Background()
	until := now.Add(24 * time.Hour)

	require.ErrorIs(t, sweeper.Suspend(ctx, "", models.TargetUser, "u1", until, "spam"), apperr.ErrAuthRequired)
	require.ErrorIs(t, sweeper.Suspend(ctx, "member", models.TargetUser, "u1", until, "spam"), apperr.ErrForbidden)
	require.ErrorIs(t, sweeper.Suspend(ctx, "admin", "channel", "u1", until, "spam"), apperr.ErrInvalid)
	require.ErrorIs(t, sweeper.Suspend(ctx, "admin", models.TargetUser, "u1", now, "spam"), apperr.ErrInvalid)
	require.ErrorIs(t, sweeper.Suspend(ctx, "admin", models.TargetUser, "admin", until, "oops"), apperr.ErrForbidden)

	require.NoError(t, sweeper.Suspend(ctx, "admin", "USER", "u1", until, " spam "))
	require.True(t, store.suspended[key(models.TargetUser, "u1")])
	require.Equal(t, "spam", store.actions[0].Reason)
	require.Equal(t, []string{"moderation.suspension.created"}, pub.subjects)

	require.NoError(t, sweeper.Unsuspend(ctx, "admin", models.TargetUser, "u1", "appeal"))
	require.False(t, store.suspended[key(models.TargetUser, "u1")])
	require.Equal(t, models.ActionUnsuspend, store.actions[1].Action)

	require.ErrorIs(t, sweeper.Unsuspend(ctx, "admin", models.TargetUser, "u1", ""), apperr.ErrNotFound)
}
