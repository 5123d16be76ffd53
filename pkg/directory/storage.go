package directory

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/jeremyhahn/go-identity/pkg/cache"
)

// StorageConfig configures a Storage.
type StorageConfig[E Entity] struct {
	Store cache.Store

	// Key is the shared-store key, e.g. "keycloak.roles".
	Key string

	// Fetch loads the complete collection from the provider.
	Fetch cache.Generator[[]E]

	// Normalize orders and enriches records after a fetch or a cache
	// decode. It is optional.
	Normalize func([]E) []E

	TTL     time.Duration
	Metrics *cache.Metrics
	Logger  *zerolog.Logger
}

// Storage resolves one collection through the two-tier cache and answers
// lookups by scanning it.
type Storage[E Entity] struct {
	resolver  *cache.Resolver[List[E]]
	normalize func([]E) []E

	// scanned observes every scan position; tests use it to bound work.
	scanned func(position int)
}

// NewStorage creates a Storage.
func NewStorage[E Entity](cfg StorageConfig[E]) *Storage[E] {
	s := &Storage[E]{normalize: cfg.Normalize}
	if s.normalize == nil {
		s.normalize = func(items []E) []E { return items }
	}

	codec := cache.Codec[List[E]]{
		Encode: func(l List[E]) (string, error) {
			b, err := json.Marshal(l)
			return string(b), err
		},
		Decode: func(raw string) (List[E], error) {
			var items []E
			if err := json.Unmarshal([]byte(raw), &items); err != nil {
				return List[E]{}, err
			}
			return NewList(s.normalize(items)...), nil
		},
	}

	s.resolver = cache.NewResolver(cache.ResolverConfig[List[E]]{
		Store: cfg.Store,
		Key:   cfg.Key,
		Generate: func(ctx context.Context) (List[E], error) {
			items, err := cfg.Fetch(ctx)
			if err != nil {
				return List[E]{}, err
			}
			return NewList(s.normalize(items)...), nil
		},
		Codec:   &codec,
		TTL:     cfg.TTL,
		Metrics: cfg.Metrics,
		Logger:  cfg.Logger,
	})
	return s
}

// Key returns the shared-store key.
func (s *Storage[E]) Key() string {
	return s.resolver.Key()
}

// GetAll returns the complete collection. Provider failures propagate.
func (s *Storage[E]) GetAll(ctx context.Context) (List[E], error) {
	return s.resolver.Resolve(ctx)
}

// GetAllInRefList returns the entities matching any of refs, in
// collection order. Duplicate references are counted once, and the scan
// stops as soon as every reference has been matched.
func (s *Storage[E]) GetAllInRefList(ctx context.Context, refs []Reference) (List[E], error) {
	unique := dedupeReferences(refs)
	if len(unique) == 0 {
		return NewList[E](), nil
	}

	all, err := s.GetAll(ctx)
	if err != nil {
		return List[E]{}, err
	}

	required := len(unique)
	matched := make([]bool, len(unique))
	var out []E
	for i, item := range all.items {
		if s.scanned != nil {
			s.scanned(i)
		}

		hits := 0
		for j, ref := range unique {
			if !matched[j] && item.Matches(ref) {
				matched[j] = true
				hits++
			}
		}
		if hits == 0 {
			continue
		}

		out = append(out, item)
		required -= hits
		if required == 0 {
			break
		}
	}
	return NewList(out...), nil
}

// GetOne returns the first entity matching ref.
func (s *Storage[E]) GetOne(ctx context.Context, ref Reference) (E, bool, error) {
	list, err := s.GetAllInRefList(ctx, []Reference{ref})
	if err != nil {
		var zero E
		return zero, false, err
	}
	e, ok := list.First()
	return e, ok, nil
}

// FlushResolved drops the collection from both cache tiers.
func (s *Storage[E]) FlushResolved(ctx context.Context) error {
	return s.resolver.Flush(ctx)
}

func dedupeReferences(refs []Reference) []Reference {
	seen := make(map[Reference]struct{}, len(refs))
	out := make([]Reference, 0, len(refs))
	for _, ref := range refs {
		if ref == (Reference{}) {
			continue
		}
		if _, dup := seen[ref]; dup {
			continue
		}
		seen[ref] = struct{}{}
		out = append(out, ref)
	}
	return out
}
