package feed

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/clipverse/backend/internal/logging"
	"github.com/clipverse/backend/internal/models"
)

// Enrich attaches creator data to every item. A failed or partial lookup
// falls back to the unknown-creator placeholder for the affected items only.
func Enrich(ctx context.Context, lookup ProfileLookup, items []models.VideoSummary) {
	if len(items) == 0 {
		return
	}

	var resolved map[string]models.Creator
	if lookup != nil {
		ids := distinctCreatorIDs(items)
		m, err := lookup.Profiles(ctx, ids)
		if err != nil {
			logging.FromContext(ctx).Warn("creator enrichment failed", "creators", len(ids), "error", err)
		} else {
			resolved = m
		}
	}

	for i := range items {
		id := items[i].Creator.ID
		if c, ok := resolved[id]; ok {
			items[i].Creator = c
			continue
		}
		items[i].Creator = models.UnknownCreator(id)
	}
}

func distinctCreatorIDs(items []models.VideoSummary) []string {
	seen := make(map[string]struct{}, len(items))
	ids := make([]string, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.Creator.ID]; ok {
			continue
		}
		seen[item.Creator.ID] = struct{}{}
		ids = append(ids, item.Creator.ID)
	}
	return ids
}

// ProfileFunc resolves a single creator.
type ProfileFunc func(ctx context.Context, id string) (models.Creator, error)

// PerItemLookup adapts a single-profile lookup into a ProfileLookup by issuing
// one concurrent lookup per id. It returns once every lookup has settled;
// failed lookups are simply missing from the result.
type PerItemLookup struct {
	Lookup      ProfileFunc
	Concurrency int
}

// Profiles implements ProfileLookup.
func (l PerItemLookup) Profiles(ctx context.Context, ids []string) (map[string]models.Creator, error) {
	out := make(map[string]models.Creator, len(ids))
	if l.Lookup == nil {
		return out, nil
	}

	var (
		g  errgroup.Group
		mu sync.Mutex
	)
	if l.Concurrency > 0 {
		g.SetLimit(l.Concurrency)
	}

	for _, id := range ids {
		g.Go(func() error {
			creator, err := l.Lookup(ctx, id)
			if err != nil {
				logging.FromContext(ctx).Debug("creator lookup failed", "creatorId", id, "error", err)
				return nil
			}
			mu.Lock()
			out[id] = creator
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return out, nil
}
