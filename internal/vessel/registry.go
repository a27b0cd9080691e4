package vessel

import (
	"context"
	"sort"
	"strings"
	"sync"

	"aisquery/internal/domain"
)

// Registry is the vessel directory. Lookups that find nothing return
// domain.ErrVesselNotFound.
type Registry interface {
	LookupByMMSI(ctx context.Context, mmsi string) (domain.Vessel, error)
	LookupByIMO(ctx context.Context, imo string) (domain.Vessel, error)
	LookupByCallSign(ctx context.Context, callSign string) (domain.Vessel, error)
	SearchByName(ctx context.Context, text string) ([]domain.NameMatch, error)
	// ListAll returns the fleet ordered by MMSI. Stores that hold positions
	// drop vessels with no report matching c; others may return a superset,
	// so callers still filter reports themselves.
	ListAll(ctx context.Context, c domain.ListConstraints) ([]domain.Vessel, error)
}

// MemoryRegistry is a Registry over a fixed vessel list.
type MemoryRegistry struct {
	mu      sync.RWMutex
	vessels map[string]domain.Vessel
}

func NewMemoryRegistry(vessels ...domain.Vessel) *MemoryRegistry {
	r := &MemoryRegistry{vessels: make(map[string]domain.Vessel, len(vessels))}
	for _, v := range vessels {
		r.Put(v)
	}
	return r
}

func (r *MemoryRegistry) Put(v domain.Vessel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vessels[v.VesselID] = v
}

func (r *MemoryRegistry) find(match func(domain.Vessel) bool) (domain.Vessel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, v := range r.vessels {
		if match(v) {
			return v, nil
		}
	}
	return domain.Vessel{}, domain.ErrVesselNotFound
}

func (r *MemoryRegistry) LookupByMMSI(_ context.Context, mmsi string) (domain.Vessel, error) {
	return r.find(func(v domain.Vessel) bool { return v.MMSI == mmsi })
}

func (r *MemoryRegistry) LookupByIMO(_ context.Context, imo string) (domain.Vessel, error) {
	return r.find(func(v domain.Vessel) bool { return v.IMO != "" && v.IMO == imo })
}

func (r *MemoryRegistry) LookupByCallSign(_ context.Context, callSign string) (domain.Vessel, error) {
	return r.find(func(v domain.Vessel) bool { return v.CallSign != "" && strings.EqualFold(v.CallSign, callSign) })
}

func (r *MemoryRegistry) SearchByName(ctx context.Context, text string) ([]domain.NameMatch, error) {
	all, err := r.ListAll(ctx, domain.ListConstraints{})
	if err != nil {
		return nil, err
	}
	return RankNames(text, all), nil
}

// ListAll returns every vessel ordered by MMSI. The registry holds no
// positions, so c is not applied.
func (r *MemoryRegistry) ListAll(_ context.Context, _ domain.ListConstraints) ([]domain.Vessel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Vessel, 0, len(r.vessels))
	for _, v := range r.vessels {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MMSI < out[j].MMSI })
	return out, nil
}
