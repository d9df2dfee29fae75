package comments

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/clipverse/backend/internal/apperr"
	"github.com/clipverse/backend/internal/models"
)

type memoryStore struct {
	mu       sync.Mutex
	comments map[string]models.Comment
	pinErr   error
}

func newMemoryStore(comments ...models.Comment) *memoryStore {
	s := &memoryStore{comments: make(map[string]models.Comment)}
	for _, c := range comments {
		s.comments[c.ID] = c
	}
	return s
}

func (s *memoryStore) ListByVideo(_ context.Context, videoID string) ([]models.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Comment
	for _, c := range s.comments {
		if c.VideoID == videoID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *memoryStore) Get(_ context.Context, id string) (models.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.comments[id]
	if !ok {
		return models.Comment{}, apperr.E(apperr.KindNotFound, "comment not found", nil)
	}
	return c, nil
}

func (s *memoryStore) Create(_ context.Context, c models.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.comments[c.ID] = c
	return nil
}

func (s *memoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.comments, id)
	return nil
}

func (s *memoryStore) SetPinned(_ context.Context, videoID, commentID string, pinned bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pinErr != nil {
		return s.pinErr
	}
	if pinned {
		for id, c := range s.comments {
			if c.VideoID == videoID && c.IsPinned {
				c.IsPinned = false
				s.comments[id] = c
			}
		}
	}
	c := s.comments[commentID]
	c.IsPinned = pinned
	s.comments[commentID] = c
	return nil
}

func (s *memoryStore) pinnedOn(videoID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, c := range s.comments {
		if c.VideoID == videoID && c.IsPinned {
			ids = append(ids, id)
		}
	}
	return ids
}

type videoOwners map[string]string

func (v videoOwners) OwnerOf(_ context.Context, videoID string) (string, error) {
	owner, ok := v[videoID]
	if !ok {
		return "", apperr.E(apperr.KindNotFound, "video not found", nil)
	}
	return owner, nil
}

type roleMap map[string]string

func (r roleMap) RoleOf(_ context.Context, userID string) (string, error) {
	return r[userID], nil
}

type authorStub struct {
	creators map[string]models.Creator
	err      error
}

func (a authorStub) Profiles(context.Context, []string) (map[string]models.Creator, error) {
	return a.creators, a.err
}

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestSortPinnedFirstThenNewest(t *testing.T) {
	list := []models.Comment{
		{ID: "t2", CreatedAt: base.Add(2 * time.Minute)},
		{ID: "t1", CreatedAt: base.Add(time.Minute), IsPinned: true},
		{ID: "t3", CreatedAt: base.Add(3 * time.Minute)},
	}
	Sort(list)

	got := []string{list[0].ID, list[1].ID, list[2].ID}
	require.Equal(t, []string{"t1", "t3", "t2"}, got)

	pinned, ok := Pinned(list)
	require.True(t, ok)
	require.Equal(t, "t1", pinned.ID)
}

func TestTogglePinReplacesExistingPin(t *testing.T) {
	store := newMemoryStore(
		models.Comment{ID: "a", VideoID: "v1", IsPinned: true, CreatedAt: base},
		models.Comment{ID: "b", VideoID: "v1", CreatedAt: base.Add(time.Minute)},
		models.Comment{ID: "c", VideoID: "v2", IsPinned: true, CreatedAt: base},
	)
	svc := NewService(store, videoOwners{"v1": "creator", "v2": "other"}, nil, nil)

	res := svc.TogglePinStatus(context.Background(), "creator", "b", "v1", false)
	require.True(t, res.Success)
	require.NoError(t, res.Err)

	require.Equal(t, []string{"b"}, store.pinnedOn("v1"))
	require.Equal(t, []string{"c"}, store.pinnedOn("v2"))

	a, err := store.Get(context.Background(), "a")
	require.NoError(t, err)
	require.False(t, a.IsPinned)
}

func TestTogglePinUnpins(t *testing.T) {
	store := newMemoryStore(models.Comment{ID: "a", VideoID: "v1", IsPinned: true})
	svc := NewService(store, videoOwners{"v1": "creator"}, nil, nil)

	res := svc.TogglePinStatus(context.Background(), "creator", "a", "v1", true)
	require.True(t, res.Success)
	require.Empty(t, store.pinnedOn("v1"))
}

func TestTogglePinAuthorization(t *testing.T) {
	store := newMemoryStore(models.Comment{ID: "a", VideoID: "v1"})
	svc := NewService(store, videoOwners{"v1": "creator"}, nil, nil)
	ctx := context.Background()

	res := svc.TogglePinStatus(ctx, "", "a", "v1", false)
	require.False(t, res.Success)
	require.ErrorIs(t, res.Err, apperr.ErrAuthRequired)

	res = svc.TogglePinStatus(ctx, "someone", "a", "v1", false)
	require.False(t, res.Success)
	require.ErrorIs(t, res.Err, apperr.ErrForbidden)

	res = svc.TogglePinStatus(ctx, "creator", "a", "missing", false)
	require.ErrorIs(t, res.Err, apperr.ErrNotFound)

	require.Empty(t, store.pinnedOn("v1"))
}

func TestTogglePinRejectsCommentFromOtherVideo(t *testing.T) {
	store := newMemoryStore(models.Comment{ID: "a", VideoID: "v2"})
	svc := NewService(store, videoOwners{"v1": "creator", "v2": "creator"}, nil, nil)

	res := svc.TogglePinStatus(context.Background(), "creator", "a", "v1", false)
	require.ErrorIs(t, res.Err, apperr.ErrNotFound)
	require.Empty(t, store.pinnedOn("v2"))
}

func TestTogglePinStoreFailure(t *testing.T) {
	store := newMemoryStore(models.Comment{ID: "a", VideoID: "v1"})
	store.pinErr = errors.New("connection reset")
	svc := NewService(store, videoOwners{"v1": "creator"}, nil, nil)

	res := svc.TogglePinStatus(context.Background(), "creator", "a", "v1", false)
	require.False(t, res.Success)
	require.ErrorContains(t, res.Err, "connection reset")
}

func TestCreateValidates(t *testing.T) {
	store := newMemoryStore()
	svc := NewService(store, videoOwners{"v1": "creator"}, nil, nil)
	svc.now = func() time.Time { return base }
	ctx := context.Background()

	_, err := svc.Create(ctx, "", "v1", "hi")
	require.ErrorIs(t, err, apperr.ErrAuthRequired)

	_, err = svc.Create(ctx, "u1", "v1", "   ")
	require.ErrorIs(t, err, apperr.ErrInvalid)

	_, err = svc.Create(ctx, "u1", "v1", strings.Repeat("x", MaxContentLength+1))
	require.ErrorIs(t, err, apperr.ErrInvalid)

	_, err = svc.Create(ctx, "u1", "nope", "hi")
	require.ErrorIs(t, err, apperr.ErrNotFound)

	c, err := svc.Create(ctx, "u1", "v1", "  nice video  ")
	require.NoError(t, err)
	require.Equal(t, "nice video", c.Content)
	require.Equal(t, base, c.CreatedAt)
	require.False(t, c.IsPinned)
	require.NotEmpty(t, c.ID)
}

func TestListSortsAndAttachesAuthors(t *testing.T) {
	store := newMemoryStore(
		models.Comment{ID: "old", VideoID: "v1", AuthorID: "u1", CreatedAt: base},
		models.Comment{ID: "new", VideoID: "v1", AuthorID: "u2", CreatedAt: base.Add(time.Hour)},
		models.Comment{ID: "pin", VideoID: "v1", AuthorID: "u1", CreatedAt: base.Add(-time.Hour), IsPinned: true},
	)
	authors := authorStub{creators: map[string]models.Creator{"u1": {ID: "u1", DisplayName: "Ann"}}}
	svc := NewService(store, videoOwners{"v1": "creator"}, nil, authors)

	list, err := svc.List(context.Background(), "v1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	require.Equal(t, "pin", list[0].ID)
	require.Equal(t, "new", list[1].ID)
	require.Equal(t, "old", list[2].ID)
	require.Equal(t, "Ann", list[0].Author.DisplayName)
	require.Equal(t, models.UnknownCreatorName, list[1].Author.DisplayName)
}

func TestDeletePermissions(t *testing.T) {
	store := newMemoryStore(
		models.Comment{ID: "a", VideoID: "v1", AuthorID: "author"},
		models.Comment{ID: "b", VideoID: "v1", AuthorID: "author"},
		models.Comment{ID: "c", VideoID: "v1", AuthorID: "author"},
	)
	svc := NewService(store, videoOwners{"v1": "creator"}, roleMap{"boss": models.RoleAdmin}, nil)
	ctx := context.Background()

	require.ErrorIs(t, svc.Delete(ctx, "stranger", "v1", "a"), apperr.ErrForbidden)
	require.NoError(t, svc.Delete(ctx, "author", "v1", "a"))
	require.NoError(t, svc.Delete(ctx, "creator", "v1", "b"))
	require.NoError(t, svc.Delete(ctx, "boss", "v1", "c"))

	list, err := store.ListByVideo(ctx, "v1")
	require.NoError(t, err)
	require.Empty(t, list)
}
