package engine

import (
	"sort"
	"sync"

	"github.com/marketforge/mmaker/internal/domain"
)

// Registry holds the live market maker for every known market. Makers are
// added at boot and when markets are created; they are never removed, a
// resolved market's maker stays registered to serve reads.
type Registry struct {
	mu     sync.RWMutex
	makers map[string]*MarketMaker
}

func NewRegistry() *Registry {
	return &Registry{makers: make(map[string]*MarketMaker)}
}

// Add registers a maker under its market ID.
func (r *Registry) Add(mm *MarketMaker) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := mm.Market().ID
	if _, ok := r.makers[id]; ok {
		return domain.ErrAlreadyExists
	}
	r.makers[id] = mm
	return nil
}

// Get returns the maker for marketID.
func (r *Registry) Get(marketID string) (*MarketMaker, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	mm, ok := r.makers[marketID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return mm, nil
}

// MarketIDs returns the registered market IDs in sorted order.
func (r *Registry) MarketIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.makers))
	for id := range r.makers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
