package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/josephblackelite/spur-protocol/pkg/contracts"
)

// Chain consults registries in order. The first registry that knows an id
// wins; any error other than ErrAdapterNotFound stops the search.
type Chain []Lookup

func (c Chain) Get(ctx context.Context, adapterID string) (contracts.AdapterContract, error) {
	for _, l := range c {
		a, err := l.Get(ctx, adapterID)
		if err == nil {
			return a, nil
		}
		if !errors.Is(err, ErrAdapterNotFound) {
			return contracts.AdapterContract{}, err
		}
	}
	return contracts.AdapterContract{}, fmt.Errorf("%w: %s", ErrAdapterNotFound, adapterID)
}

// List merges every registry. An id listed by several registries is
// reported once, from the earliest.
func (c Chain) List(ctx context.Context) ([]contracts.AdapterContract, error) {
	seen := make(map[string]bool)
	out := []contracts.AdapterContract{}
	for _, l := range c {
		adapters, err := l.List(ctx)
		if err != nil {
			return nil, err
		}
		for _, a := range adapters {
			if seen[a.AdapterID] {
				continue
			}
			seen[a.AdapterID] = true
			out = append(out, a)
		}
	}
	sortByID(out)
	return out, nil
}
