// Package feed pages filtered, sorted video collections into a stable list.
package feed

import (
	"context"
	"fmt"
	"math"

	"github.com/clipverse/backend/internal/apperr"
	"github.com/clipverse/backend/internal/models"
)

// PageSize is the number of videos per feed page.
const PageSize = 12

// Variant identifies one of the independently paginated feeds.
type Variant string

const (
	Explore       Variant = "explore"
	Trending      Variant = "trending"
	Subscriptions Variant = "subscriptions"
)

// Variants lists every feed variant.
var Variants = []Variant{Explore, Trending, Subscriptions}

// Order is the server-side sort applied to a variant.
type Order string

const (
	OrderNewest     Order = "newest"
	OrderMostViewed Order = "most_viewed"
)

// ParseVariant validates a variant name.
func ParseVariant(s string) (Variant, error) {
	switch v := Variant(s); v {
	case Explore, Trending, Subscriptions:
		return v, nil
	default:
		return "", apperr.E(apperr.KindInvalid, fmt.Sprintf("unknown feed %q", s), nil)
	}
}

// Order returns the sort order for the variant.
func (v Variant) Order() Order {
	if v == Trending {
		return OrderMostViewed
	}
	return OrderNewest
}

// Query selects one page of a feed. Every variant is restricted to public,
// unsuspended videos; CreatorIDs further restricts the subscriptions feed.
type Query struct {
	Variant    Variant
	Page       int
	PageSize   int
	CreatorIDs []string
}

// MaxOffset is the deepest row a feed page may start at.
const MaxOffset = 1_000_000

// Offset is the number of rows preceding the page. It saturates at
// math.MaxInt instead of overflowing.
func (q Query) Offset() int {
	if q.Page < 1 {
		return 0
	}
	limit := q.Limit()
	if q.Page-1 > math.MaxInt/limit {
		return math.MaxInt
	}
	return (q.Page - 1) * limit
}

// Validate rejects pages starting beyond MaxOffset.
func (q Query) Validate() error {
	if q.Offset() > MaxOffset {
		return apperr.E(apperr.KindInvalid, fmt.Sprintf("page is too deep, feeds end after %d videos", MaxOffset), nil)
	}
	return nil
}

// Limit is the page size, defaulting to PageSize.
func (q Query) Limit() int {
	if q.PageSize <= 0 {
		return PageSize
	}
	return q.PageSize
}

// Page is one page of results together with the exact total row count, when
// the backend reports it.
type Page struct {
	Items []models.VideoSummary `json:"items"`
	Total *int                  `json:"total"`
}

// Source fetches pages of videos.
type Source interface {
	FetchPage(ctx context.Context, q Query) (Page, error)
}

// SubscriptionSource lists the creators a viewer subscribes to.
type SubscriptionSource interface {
	SubscribedCreators(ctx context.Context, viewerID string) ([]string, error)
}

// ProfileLookup resolves creator display data for a batch of ids. Ids absent
// from the returned map are treated as unresolved.
type ProfileLookup interface {
	Profiles(ctx context.Context, ids []string) (map[string]models.Creator, error)
}
