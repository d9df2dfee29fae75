package feed

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/clipverse/backend/internal/apperr"
	"github.com/clipverse/backend/internal/models"
	"github.com/clipverse/backend/internal/notify"
)

type sourceStub struct {
	mu      sync.Mutex
	total   *int
	failOn  map[int]error
	calls   []Query
	block   chan struct{}
	started chan struct{}
}

func (s *sourceStub) FetchPage(ctx context.Context, q Query) (Page, error) {
	s.mu.Lock()
	s.calls = append(s.calls, q)
	err := s.failOn[q.Page]
	block, started := s.block, s.started
	s.mu.Unlock()

	if started != nil {
		select {
		case started <- struct{}{}:
		default:
		}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return Page{}, ctx.Err()
		}
	}
	if err != nil {
		return Page{}, err
	}

	n := q.Limit()
	if s.total != nil {
		remaining := *s.total - q.Offset()
		if remaining < n {
			n = max(remaining, 0)
		}
	}
	items := make([]models.VideoSummary, 0, n)
	for i := 0; i < n; i++ {
		idx := q.Offset() + i
		items = append(items, models.VideoSummary{
			ID:      fmt.Sprintf("%s-%03d", q.Variant, idx),
			Creator: models.Creator{ID: fmt.Sprintf("creator-%d", idx%3)},
		})
	}
	return Page{Items: items, Total: s.total}, nil
}

func (s *sourceStub) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type profilesStub struct {
	creators map[string]models.Creator
	err      error
}

func (p profilesStub) Profiles(_ context.Context, ids []string) (map[string]models.Creator, error) {
	if p.err != nil {
		return nil, p.err
	}
	out := make(map[string]models.Creator)
	for _, id := range ids {
		if c, ok := p.creators[id]; ok {
			out[id] = c
		}
	}
	return out, nil
}

type subscriptionsStub struct {
	creators []string
	err      error
}

func (s subscriptionsStub) SubscribedCreators(context.Context, string) ([]string, error) {
	return s.creators, s.err
}

func intPtr(v int) *int { return &v }

func ids(items []models.VideoSummary) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.ID
	}
	return out
}

func TestPaginatorAppendsPagesInServerOrder(t *testing.T) {
	src := &sourceStub{total: intPtr(100)}
	p := New(Explore, Options{Source: src})

	ctx := context.Background()
	for page, appendItems := range []bool{false, true, true} {
		applied, err := p.LoadPage(ctx, page+1, appendItems)
		require.NoError(t, err)
		require.True(t, applied)
	}

	state := p.Snapshot()
	require.Len(t, state.Items, 36)
	for i, item := range state.Items {
		require.Equal(t, fmt.Sprintf("explore-%03d", i), item.ID)
	}
	require.Equal(t, 3, state.Page)
	require.True(t, state.HasMore)
	require.Equal(t, PhaseReady, state.Phase)
}

func TestPaginatorReplaceDropsPreviousItems(t *testing.T) {
	src := &sourceStub{total: intPtr(100)}
	p := New(Explore, Options{Source: src})

	_, err := p.LoadPage(context.Background(), 2, false)
	require.NoError(t, err)
	_, err = p.LoadPage(context.Background(), 1, false)
	require.NoError(t, err)

	state := p.Snapshot()
	require.Len(t, state.Items, 12)
	require.Equal(t, "explore-000", state.Items[0].ID)
}

func TestPaginatorHasMoreTracksTotal(t *testing.T) {
	src := &sourceStub{total: intPtr(30)}
	p := New(Trending, Options{Source: src})
	ctx := context.Background()

	_, err := p.Load(ctx)
	require.NoError(t, err)
	_, err = p.LoadMore(ctx)
	require.NoError(t, err)

	state := p.Snapshot()
	require.Len(t, state.Items, 24)
	require.True(t, state.HasMore)

	_, err = p.LoadMore(ctx)
	require.NoError(t, err)
	state = p.Snapshot()
	require.Len(t, state.Items, 30)
	require.False(t, state.HasMore)

	applied, err := p.LoadMore(ctx)
	require.NoError(t, err)
	require.False(t, applied)
	require.Equal(t, 3, src.callCount(), "LoadMore without more pages must not fetch")

	for _, q := range src.calls {
		require.Equal(t, Trending, q.Variant)
		require.Equal(t, PageSize, q.Limit())
	}
}

func TestPaginatorWithoutTotalHasNoMore(t *testing.T) {
	p := New(Explore, Options{Source: &sourceStub{}})
	_, err := p.Load(context.Background())
	require.NoError(t, err)
	require.False(t, p.Snapshot().HasMore)
}

func TestPaginatorFailurePreservesState(t *testing.T) {
	boom := errors.New("connection reset by peer")
	src := &sourceStub{total: intPtr(30), failOn: map[int]error{2: boom}}
	rec := &notify.Recorder{}
	p := New(Explore, Options{Source: src, Notifier: rec})
	ctx := context.Background()

	_, err := p.LoadPage(ctx, 1, false)
	require.NoError(t, err)
	before := p.Snapshot()
	require.True(t, before.HasMore)

	applied, err := p.LoadPage(ctx, 2, true)
	require.False(t, applied)
	require.ErrorIs(t, err, boom)
	require.ErrorIs(t, err, apperr.ErrTransient)

	after := p.Snapshot()
	require.Equal(t, ids(before.Items), ids(after.Items))
	require.Len(t, after.Items, 12)
	require.Equal(t, before.HasMore, after.HasMore)
	require.Equal(t, 1, after.Page)
	require.Equal(t, PhaseReady, after.Phase)

	notes := rec.All()
	require.Len(t, notes, 1)
	require.Equal(t, apperr.KindTransient, notes[0].Kind)

	// The viewer may retry.
	src.mu.Lock()
	delete(src.failOn, 2)
	src.mu.Unlock()
	applied, err = p.LoadMore(ctx)
	require.NoError(t, err)
	require.True(t, applied)
	require.Len(t, p.Snapshot().Items, 24)
}

func TestPaginatorIgnoresReentrantLoads(t *testing.T) {
	src := &sourceStub{total: intPtr(100)}
	p := New(Explore, Options{Source: src})
	ctx := context.Background()
	_, err := p.Load(ctx)
	require.NoError(t, err)

	src.mu.Lock()
	src.block = make(chan struct{})
	src.started = make(chan struct{}, 1)
	src.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		_, err := p.LoadMore(ctx)
		done <- err
	}()
	<-src.started

	state := p.Snapshot()
	require.True(t, state.IsLoadingMore)
	require.Equal(t, PhaseLoadingMore, state.Phase)

	applied, err := p.LoadMore(ctx)
	require.NoError(t, err)
	require.False(t, applied)
	applied, err = p.LoadPage(ctx, 5, true)
	require.NoError(t, err)
	require.False(t, applied)

	close(src.block)
	require.NoError(t, <-done)
	require.Equal(t, 2, src.callCount())
	require.Len(t, p.Snapshot().Items, 24)
}

func TestPaginatorConcurrentLoadMoreAppendsOnce(t *testing.T) {
	src := &sourceStub{total: intPtr(100)}
	p := New(Explore, Options{Source: src})
	ctx := context.Background()
	_, err := p.Load(ctx)
	require.NoError(t, err)

	// The second caller runs to completion after the first has claimed
	// page 2 but before it fetches.
	var second struct {
		applied bool
		err     error
	}
	var once sync.Once
	p.afterClaim = func() {
		once.Do(func() {
			second.applied, second.err = p.LoadMore(ctx)
		})
	}

	applied, err := p.LoadMore(ctx)
	require.NoError(t, err)
	require.True(t, applied)
	require.NoError(t, second.err)
	require.False(t, second.applied)

	state := p.Snapshot()
	require.Equal(t, 2, state.Page)
	require.Len(t, state.Items, 24)
	seen := make(map[string]bool, len(state.Items))
	for _, item := range state.Items {
		require.False(t, seen[item.ID], "duplicate item %s", item.ID)
		seen[item.ID] = true
	}
	require.Equal(t, 2, src.callCount())
}

func TestPaginatorDiscardsResultsAfterClose(t *testing.T) {
	src := &sourceStub{total: intPtr(100), block: make(chan struct{}), started: make(chan struct{}, 1)}
	p := New(Explore, Options{Source: src})

	done := make(chan error, 1)
	go func() {
		_, err := p.Load(context.Background())
		done <- err
	}()
	<-src.started
	p.Close()
	close(src.block)

	require.ErrorIs(t, <-done, ErrClosed)
	require.Empty(t, p.Snapshot().Items)

	_, err := p.Load(context.Background())
	require.ErrorIs(t, err, ErrClosed)
}

func TestPaginatorTimeoutIsTransientFailure(t *testing.T) {
	src := &sourceStub{total: intPtr(100), block: make(chan struct{})}
	defer close(src.block)
	p := New(Explore, Options{Source: src, Timeout: 20 * time.Millisecond, Notifier: &notify.Recorder{}})

	_, err := p.Load(context.Background())
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.ErrorIs(t, err, apperr.ErrTransient)
	require.Equal(t, PhaseReady, p.Snapshot().Phase)
}

func TestSubscriptionsWithoutSubscriptionsSkipsFetch(t *testing.T) {
	src := &sourceStub{total: intPtr(100)}
	p := New(Subscriptions, Options{Source: src, Subscriptions: subscriptionsStub{}, ViewerID: "viewer"})

	applied, err := p.Load(context.Background())
	require.NoError(t, err)
	require.True(t, applied)
	require.Zero(t, src.callCount())

	state := p.Snapshot()
	require.Empty(t, state.Items)
	require.False(t, state.HasMore)
}

func TestSubscriptionsFiltersByCreators(t *testing.T) {
	src := &sourceStub{total: intPtr(5)}
	p := New(Subscriptions, Options{
		Source:        src,
		Subscriptions: subscriptionsStub{creators: []string{"creator-1", "creator-2"}},
		ViewerID:      "viewer",
	})

	_, err := p.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"creator-1", "creator-2"}, src.calls[0].CreatorIDs)
	require.Len(t, p.Snapshot().Items, 5)
}

func TestSubscriptionsRequireViewer(t *testing.T) {
	rec := &notify.Recorder{}
	p := New(Subscriptions, Options{Source: &sourceStub{}, Subscriptions: subscriptionsStub{}, Notifier: rec})

	_, err := p.Load(context.Background())
	require.ErrorIs(t, err, apperr.ErrAuthRequired)
	require.True(t, rec.All()[0].LoginShortcut)
}

func TestPaginatorEnrichmentFallsBackPerItem(t *testing.T) {
	src := &sourceStub{total: intPtr(3)}
	profiles := profilesStub{creators: map[string]models.Creator{
		"creator-0": {ID: "creator-0", DisplayName: "Ada", SubscriberCount: 42},
		"creator-2": {ID: "creator-2", DisplayName: "Grace", SubscriberCount: 7},
	}}
	p := New(Explore, Options{Source: src, Profiles: profiles})

	_, err := p.Load(context.Background())
	require.NoError(t, err)

	items := p.Snapshot().Items
	require.Len(t, items, 3)
	require.Equal(t, "Ada", items[0].Creator.DisplayName)
	require.Equal(t, models.UnknownCreatorName, items[1].Creator.DisplayName)
	require.Equal(t, "creator-1", items[1].Creator.ID)
	require.Zero(t, items[1].Creator.SubscriberCount)
	require.Equal(t, "Grace", items[2].Creator.DisplayName)
}

func TestPaginatorEnrichmentFailureDoesNotAbortPage(t *testing.T) {
	src := &sourceStub{total: intPtr(12)}
	p := New(Explore, Options{Source: src, Profiles: profilesStub{err: errors.New("profiles down")}})

	applied, err := p.Load(context.Background())
	require.NoError(t, err)
	require.True(t, applied)
	for _, item := range p.Snapshot().Items {
		require.Equal(t, models.UnknownCreatorName, item.Creator.DisplayName)
	}
}

func TestFeedsFailIndependently(t *testing.T) {
	trendingErr := errors.New("trending down")
	sources := map[Variant]*sourceStub{
		Explore:  {total: intPtr(40)},
		Trending: {total: intPtr(40), failOn: map[int]error{1: trendingErr}},
	}
	src := variantSource(sources)
	feeds := NewFeeds(Options{Source: src, Subscriptions: subscriptionsStub{}, ViewerID: "viewer", Notifier: &notify.Recorder{}})
	defer feeds.Close()

	errs := feeds.LoadAll(context.Background())
	require.Len(t, errs, 1)
	require.ErrorIs(t, errs[Trending], trendingErr)

	explore := feeds.Get(Explore).Snapshot()
	require.Len(t, explore.Items, 12)
	require.True(t, explore.HasMore)

	trending := feeds.Get(Trending).Snapshot()
	require.Empty(t, trending.Items)
	require.False(t, trending.HasMore)

	// A later trending failure leaves explore untouched and vice versa.
	_, err := feeds.Get(Explore).LoadMore(context.Background())
	require.NoError(t, err)
	require.Len(t, feeds.Get(Explore).Snapshot().Items, 24)
	require.Empty(t, feeds.Get(Trending).Snapshot().Items)
	require.Nil(t, feeds.Get(Variant("unknown")))
}

type variantSource map[Variant]*sourceStub

func (v variantSource) FetchPage(ctx context.Context, q Query) (Page, error) {
	src, ok := v[q.Variant]
	if !ok {
		return Page{}, errors.New("no source")
	}
	return src.FetchPage(ctx, q)
}

func TestQueryOffsetSaturates(t *testing.T) {
	require.Equal(t, 0, Query{Page: 0}.Offset())
	require.Equal(t, 24, Query{Page: 3}.Offset())
	require.Equal(t, math.MaxInt, Query{Page: 999999999999999999, PageSize: 12}.Offset())

	require.NoError(t, Query{Page: MaxOffset/PageSize + 1}.Validate())
	err := Query{Page: 999999999999999999}.Validate()
	require.ErrorIs(t, err, apperr.ErrInvalid)
}

func TestParseVariant(t *testing.T) {
	for _, v := range Variants {
		got, err := ParseVariant(string(v))
		require.NoError(t, err)
		require.Equal(t, v, got)
	}
	_, err := ParseVariant("popular")
	require.ErrorIs(t, err, apperr.ErrInvalid)
	require.Equal(t, OrderMostViewed, Trending.Order())
	require.Equal(t, OrderNewest, Subscriptions.Order())
}

func TestPerItemLookupSettlesAll(t *testing.T) {
	lookup := PerItemLookup{
		Concurrency: 2,
		Lookup: func(ctx context.Context, id string) (models.Creator, error) {
			if id == "missing" {
				return models.Creator{}, errors.New("not found")
			}
			return models.Creator{ID: id, DisplayName: "name-" + id}, nil
		},
	}

	got, err := lookup.Profiles(context.Background(), []string{"a", "missing", "b", "c"})
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, "name-b", got["b"].DisplayName)
	_, ok := got["missing"]
	require.False(t, ok)
}
