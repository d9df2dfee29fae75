package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/clipverse/backend/internal/apperr"
	"github.com/clipverse/backend/internal/logging"
	"github.com/clipverse/backend/internal/models"
	"github.com/clipverse/backend/internal/notify"
)

// DefaultTimeout bounds a single page load including enrichment.
const DefaultTimeout = 10 * time.Second

// ErrClosed is returned for loads started or resolved after Close.
var ErrClosed = errors.New("feed closed")

// Phase is the loading state of a Paginator.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLoadingInitial
	PhaseLoadingMore
	PhaseReady
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseLoadingInitial:
		return "loading_initial"
	case PhaseLoadingMore:
		return "loading_more"
	case PhaseReady:
		return "ready"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// State is a snapshot of a Paginator for presentation.
type State struct {
	Variant          Variant
	Items            []models.VideoSummary
	Page             int
	HasMore          bool
	Phase            Phase
	IsLoadingInitial bool
	IsLoadingMore    bool
}

// Options configures a Paginator.
type Options struct {
	Source        Source
	Subscriptions SubscriptionSource
	Profiles      ProfileLookup
	Notifier      notify.Notifier
	// ViewerID is required by the subscriptions variant.
	ViewerID string
	PageSize int
	Timeout  time.Duration
}

// Paginator accumulates the pages of one feed variant. Items keep the order
// the server returned them in; pages are appended without re-sorting or
// de-duplication.
type Paginator struct {
	variant Variant
	opts    Options

	mu       sync.Mutex
	items    []models.VideoSummary
	page     int
	hasMore  bool
	phase    Phase
	inFlight bool
	closed   bool

	// afterClaim, when set, runs between LoadMore claiming the next page and
	// fetching it. Tests use it to interleave callers.
	afterClaim func()
}

// New returns an idle Paginator for variant.
func New(variant Variant, opts Options) *Paginator {
	if opts.PageSize <= 0 {
		opts.PageSize = PageSize
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Log{}
	}
	return &Paginator{variant: variant, opts: opts, phase: PhaseIdle}
}

// Variant returns the feed variant served by p.
func (p *Paginator) Variant() Variant { return p.variant }

// Load fetches the first page, replacing any items.
func (p *Paginator) Load(ctx context.Context) (bool, error) {
	return p.LoadPage(ctx, 1, false)
}

// LoadMore fetches the page after the current one. It is a no-op when there
// is nothing more to load or a load is already in flight.
func (p *Paginator) LoadMore(ctx context.Context) (bool, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return false, ErrClosed
	}
	if !p.hasMore || p.inFlight {
		p.mu.Unlock()
		return false, nil
	}
	next := p.page + 1
	p.beginLocked(true)
	hook := p.afterClaim
	p.mu.Unlock()

	if hook != nil {
		hook()
	}
	return p.run(ctx, next, true)
}

// LoadPage fetches page (1-based). With appendItems the page is added after
// the existing items, otherwise it replaces them. It reports whether the
// page was applied; a call made while another load is in flight is a no-op.
// On failure the previous items and hasMore are kept and the viewer is
// notified.
func (p *Paginator) LoadPage(ctx context.Context, page int, appendItems bool) (bool, error) {
	if page < 1 {
		return false, apperr.E(apperr.KindInvalid, "page must be at least 1", nil)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return false, ErrClosed
	}
	if p.inFlight {
		p.mu.Unlock()
		return false, nil
	}
	p.beginLocked(appendItems)
	p.mu.Unlock()

	return p.run(ctx, page, appendItems)
}

// beginLocked claims the paginator for one load. p.mu must be held, so the
// claim and the checks before it are a single step.
func (p *Paginator) beginLocked(appendItems bool) {
	p.inFlight = true
	if appendItems {
		p.phase = PhaseLoadingMore
	} else {
		p.phase = PhaseLoadingInitial
	}
}

// run performs a load claimed by beginLocked.
func (p *Paginator) run(ctx context.Context, page int, appendItems bool) (bool, error) {
	ctx, span := logging.StartSpan(ctx, "feed.load")
	defer span.End()
	logger := logging.FromContext(ctx).With(slog.String("variant", string(p.variant)), slog.Int("page", page))

	fetchCtx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	items, total, err := p.fetch(fetchCtx, page)

	p.mu.Lock()
	p.inFlight = false
	if p.closed {
		p.mu.Unlock()
		logger.Debug("discarding feed result after close")
		return false, ErrClosed
	}
	if err != nil {
		p.phase = PhaseReady
		p.mu.Unlock()

		err = classify(err)
		logger.Warn("feed load failed", "error", err)
		p.opts.Notifier.Notify(ctx, notify.FromError("Could not load videos", err))
		return false, err
	}

	if appendItems {
		p.items = append(p.items, items...)
	} else {
		p.items = items
	}
	p.page = page
	p.hasMore = total != nil && len(p.items) < *total
	p.phase = PhaseReady
	count := len(p.items)
	hasMore := p.hasMore
	p.mu.Unlock()

	logger.Debug("feed page applied", "items", count, "hasMore", hasMore)
	return true, nil
}

func (p *Paginator) fetch(ctx context.Context, page int) ([]models.VideoSummary, *int, error) {
	if p.opts.Source == nil {
		return nil, nil, apperr.E(apperr.KindTransient, "feed source unavailable", nil)
	}

	q := Query{Variant: p.variant, Page: page, PageSize: p.opts.PageSize}

	if p.variant == Subscriptions {
		if p.opts.ViewerID == "" {
			return nil, nil, apperr.E(apperr.KindAuthRequired, "Sign in to see your subscriptions", nil)
		}
		if p.opts.Subscriptions == nil {
			return nil, nil, apperr.E(apperr.KindTransient, "subscription source unavailable", nil)
		}
		creators, err := p.opts.Subscriptions.SubscribedCreators(ctx, p.opts.ViewerID)
		if err != nil {
			return nil, nil, fmt.Errorf("list subscriptions: %w", err)
		}
		if len(creators) == 0 {
			zero := 0
			return []models.VideoSummary{}, &zero, nil
		}
		q.CreatorIDs = creators
	}

	result, err := p.opts.Source.FetchPage(ctx, q)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch page: %w", err)
	}

	items := append([]models.VideoSummary(nil), result.Items...)
	Enrich(ctx, p.opts.Profiles, items)

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	return items, result.Total, nil
}

func classify(err error) error {
	if apperr.KindOf(err) != apperr.KindUnknown {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.E(apperr.KindTransient, "The request timed out, please try again.", err)
	}
	return apperr.E(apperr.KindTransient, "Could not reach the server, please try again.", err)
}

// Snapshot returns a copy of the current state.
func (p *Paginator) Snapshot() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return State{
		Variant:          p.variant,
		Items:            append([]models.VideoSummary(nil), p.items...),
		Page:             p.page,
		HasMore:          p.hasMore,
		Phase:            p.phase,
		IsLoadingInitial: p.phase == PhaseLoadingInitial,
		IsLoadingMore:    p.phase == PhaseLoadingMore,
	}
}

// Close detaches the paginator; results still in flight are discarded.
func (p *Paginator) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}
