package feed

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Feeds holds one independent Paginator per variant.
type Feeds struct {
	paginators map[Variant]*Paginator
}

// NewFeeds builds paginators for every variant sharing opts.
func NewFeeds(opts Options) *Feeds {
	f := &Feeds{paginators: make(map[Variant]*Paginator, len(Variants))}
	for _, v := range Variants {
		f.paginators[v] = New(v, opts)
	}
	return f
}

// Get returns the paginator for v, or nil for an unknown variant.
func (f *Feeds) Get(v Variant) *Paginator {
	return f.paginators[v]
}

// LoadAll loads the first page of every variant concurrently. A failure in
// one variant does not affect the others; errors are returned per variant.
func (f *Feeds) LoadAll(ctx context.Context) map[Variant]error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs = make(map[Variant]error)
	)
	for v, p := range f.paginators {
		g.Go(func() error {
			if _, err := p.Load(ctx); err != nil {
				mu.Lock()
				errs[v] = err
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

// Close closes every paginator.
func (f *Feeds) Close() {
	for _, p := range f.paginators {
		p.Close()
	}
}
