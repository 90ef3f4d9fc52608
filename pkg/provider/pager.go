package provider

import (
	"context"
	"sync"

	"github.com/go-modpackinstaller/pkg/model"
)

// PageFunc fetches one page. total is the provider's hit count, or -1 when unknown.
type PageFunc func(ctx context.Context, offset, limit int) (items []*model.ModDetail, total int, err error)

// Pager is the pagination bookkeeping shared by every backend. At most one
// search runs at a time, and a failed fetch leaves the state untouched.
type Pager struct {
	searchMu sync.Mutex // held for a whole search
	pageSize int
	maxIndex int // provider cap on offset+limit, 0 for none

	mu              sync.RWMutex
	started         bool
	filters         model.Filters
	offset          int
	reachedLastPage bool
}

// NewPager creates a pager with a fixed page size
func NewPager(pageSize, maxIndex int) *Pager {
	if pageSize <= 0 {
		pageSize = 20
	}
	return &Pager{pageSize: pageSize, maxIndex: maxIndex}
}

// Next returns previous plus the next page for filters. When the filters
// differ from the last successful search, previous is discarded and the
// search restarts at offset 0.
func (p *Pager) Next(ctx context.Context, filters model.Filters, previous []*model.ModDetail, fetch PageFunc) ([]*model.ModDetail, error) {
	p.searchMu.Lock()
	defer p.searchMu.Unlock()

	p.mu.RLock()
	offset := p.offset
	fresh := !p.started || p.filters != filters
	reached := p.reachedLastPage
	p.mu.RUnlock()

	if fresh {
		offset = 0
		previous = nil
	} else if reached {
		return previous, nil
	}

	limit := p.pageSize
	if p.maxIndex > 0 && offset+limit > p.maxIndex {
		limit = p.maxIndex - offset
	}

	items, total, err := fetch(ctx, offset, limit)
	if err != nil {
		return nil, err
	}

	next := offset + len(items)
	last := len(items) < limit || (total >= 0 && next >= total) || (p.maxIndex > 0 && next >= p.maxIndex)

	p.mu.Lock()
	p.started = true
	p.filters = filters
	p.offset = next
	p.reachedLastPage = last
	p.mu.Unlock()

	out := make([]*model.ModDetail, 0, len(previous)+len(items))
	out = append(out, previous...)
	return append(out, items...), nil
}

// ReachedLastPage reports whether the last search exhausted the results
func (p *Pager) ReachedLastPage() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.reachedLastPage
}

// LastSearchTerm returns the query text of the last successful search
func (p *Pager) LastSearchTerm() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.filters.Query
}

// Offset returns the offset the next page starts at
func (p *Pager) Offset() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.offset
}
