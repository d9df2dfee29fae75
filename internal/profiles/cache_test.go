package profiles

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/clipverse/backend/internal/models"
)

type stubLookup struct {
	creators map[string]models.Creator
	err      error
	requests [][]string
}

func (s *stubLookup) Profiles(_ context.Context, ids []string) (map[string]models.Creator, error) {
	s.requests = append(s.requests, append([]string(nil), ids...))
	if s.err != nil {
		return nil, s.err
	}
	out := make(map[string]models.Creator)
	for _, id := range ids {
		if c, ok := s.creators[id]; ok {
			out[id] = c
		}
	}
	return out, nil
}

func TestCachingLookupOnlyFetchesMisses(t *testing.T) {
	base := &stubLookup{creators: map[string]models.Creator{
		"a": {ID: "a", DisplayName: "Ann"},
		"b": {ID: "b", DisplayName: "Bo"},
	}}
	cache := NewCachingLookup(base, time.Minute)
	ctx := context.Background()

	got, err := cache.Profiles(ctx, []string{"a"})
	if err != nil {
		t.Fatalf("profiles: %v", err)
	}
	if got["a"].DisplayName != "Ann" {
		t.Fatalf("unexpected creator: %+v", got)
	}

	got, err = cache.Profiles(ctx, []string{"a", "b", "a", "missing"})
	if err != nil {
		t.Fatalf("profiles: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected two resolved creators got %+v", got)
	}
	if len(base.requests) != 2 {
		t.Fatalf("expected two base calls got %d", len(base.requests))
	}
	second := base.requests[1]
	sort.Strings(second)
	if len(second) != 2 || second[0] != "b" || second[1] != "missing" {
		t.Fatalf("expected only misses forwarded got %v", second)
	}

	if _, err := cache.Profiles(ctx, []string{"a", "b"}); err != nil {
		t.Fatalf("profiles: %v", err)
	}
	if len(base.requests) != 2 {
		t.Fatalf("expected cached result got %d calls", len(base.requests))
	}
}

func TestCachingLookupExpiryAndInvalidate(t *testing.T) {
	base := &stubLookup{creators: map[string]models.Creator{"a": {ID: "a"}}}
	cache := NewCachingLookup(base, time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	ctx := context.Background()
	if _, err := cache.Profiles(ctx, []string{"a"}); err != nil {
		t.Fatalf("profiles: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := cache.Profiles(ctx, []string{"a"}); err != nil {
		t.Fatalf("profiles: %v", err)
	}
	if len(base.requests) != 2 {
		t.Fatalf("expected cache miss after expiry got %d calls", len(base.requests))
	}

	cache.Invalidate("a")
	if _, err := cache.Profiles(ctx, []string{"a"}); err != nil {
		t.Fatalf("profiles: %v", err)
	}
	if len(base.requests) != 3 {
		t.Fatalf("expected refetch after invalidate got %d calls", len(base.requests))
	}
}

func TestCachingLookupErrors(t *testing.T) {
	cache := NewCachingLookup(nil, time.Minute)
	if _, err := cache.Profiles(context.Background(), []string{"a"}); !errors.Is(err, ErrLookupUnavailable) {
		t.Fatalf("expected lookup unavailable got %v", err)
	}

	boom := errors.New("boom")
	cache = NewCachingLookup(&stubLookup{err: boom}, 0)
	if cache.ttl <= 0 {
		t.Fatalf("expected ttl to default positive got %v", cache.ttl)
	}
	if _, err := cache.Profiles(context.Background(), []string{"a"}); !errors.Is(err, boom) {
		t.Fatalf("expected base error got %v", err)
	}
}
