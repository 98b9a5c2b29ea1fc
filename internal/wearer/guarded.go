package wearer

import (
	"context"
	"errors"

	"github.com/MrWong99/gagspeak/internal/resilience"
)

// GuardedStore passes every call to another [Store] through a circuit
// breaker. While the breaker is open calls fail at once with an error
// wrapping [resilience.ErrOpen].
type GuardedStore struct {
	next    Store
	breaker *resilience.Breaker
}

var _ Store = (*GuardedStore)(nil)

// NewGuardedStore wraps next. Unless cfg sets IsFailure, invalid loadouts
// and cancelled contexts do not count as store failures.
func NewGuardedStore(next Store, cfg resilience.Config, opts ...resilience.Option) *GuardedStore {
	if cfg.IsFailure == nil {
		cfg.IsFailure = isStoreFailure
	}
	return &GuardedStore{next: next, breaker: resilience.New(cfg, opts...)}
}

func isStoreFailure(err error) bool {
	return err != nil &&
		!errors.Is(err, ErrInvalidLoadout) &&
		!errors.Is(err, context.Canceled)
}

// State reports the breaker state.
func (s *GuardedStore) State() resilience.State { return s.breaker.State() }

func (s *GuardedStore) Get(ctx context.Context, id string) (*Loadout, error) {
	var l *Loadout
	err := s.breaker.Do(ctx, func(ctx context.Context) error {
		var err error
		l, err = s.next.Get(ctx, id)
		return err
	})
	return l, err
}

func (s *GuardedStore) Put(ctx context.Context, l *Loadout) error {
	return s.breaker.Do(ctx, func(ctx context.Context) error {
		return s.next.Put(ctx, l)
	})
}

func (s *GuardedStore) Delete(ctx context.Context, id string) error {
	return s.breaker.Do(ctx, func(ctx context.Context) error {
		return s.next.Delete(ctx, id)
	})
}

func (s *GuardedStore) List(ctx context.Context) ([]Loadout, error) {
	var out []Loadout
	err := s.breaker.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = s.next.List(ctx)
		return err
	})
	return out, err
}
