package obligation

import (
	"sort"
	"sync"
)

// Registry indexes loaded obligations by id and by domain.
// It performs no I/O beyond what LoadDir/LoadFiles did and is safe for
// concurrent readers.
type Registry struct {
	mu       sync.RWMutex
	byID     map[string]*Obligation
	byDomain map[string][]string // domain -> obligation ids
	sources  map[string]string   // obligation id -> source path
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:     make(map[string]*Obligation),
		byDomain: make(map[string][]string),
		sources:  make(map[string]string),
	}
}

func (r *Registry) add(ob *Obligation, source string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, exists := r.sources[ob.ID]; exists {
		return &DuplicateIDError{ID: ob.ID, Sources: [2]string{prev, source}}
	}
	r.byID[ob.ID] = ob
	r.byDomain[ob.Domain] = append(r.byDomain[ob.Domain], ob.ID)
	r.sources[ob.ID] = source
	return nil
}

// Lookup returns the obligation with the given id.
func (r *Registry) Lookup(id string) (*Obligation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ob, ok := r.byID[id]
	if !ok {
		return nil, &NotFoundError{ID: id}
	}
	return ob, nil
}

// List returns obligations ordered by id ascending. A non-empty domain
// restricts the result to that domain.
func (r *Registry) List(domain string) []*Obligation {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []string
	if domain != "" {
		ids = append(ids, r.byDomain[domain]...)
	} else {
		for id := range r.byID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	out := make([]*Obligation, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.byID[id])
	}
	return out
}

// Domains returns the distinct domains present, sorted.
func (r *Registry) Domains() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	domains := make([]string, 0, len(r.byDomain))
	for d := range r.byDomain {
		domains = append(domains, d)
	}
	sort.Strings(domains)
	return domains
}

// Count returns the number of registered obligations.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// Has reports whether an obligation id is registered.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byID[id]
	return ok
}
