package storage

import (
	"fmt"

	"github.com/ahrav/netscout/internal/domain/lookup"
)

var _ lookup.StoreResolver = (*Resolver)(nil)

// Resolver maps storage-type tags to the concrete result stores registered
// for them and exposes a default store for new writes. Resolution fails fast
// for unregistered types: silently falling back to another backend would
// break the contract that a ResultLocation is meaningful only together with
// the store type it names.
type Resolver struct {
	stores       map[lookup.StorageType]lookup.ResultStore
	defaultStore lookup.ResultStore
}

// NewResolver builds a resolver over the given stores. The store whose
// StorageType matches defaultType becomes the default for new writes.
func NewResolver(defaultType lookup.StorageType, stores ...lookup.ResultStore) (*Resolver, error) {
	if len(stores) == 0 {
		return nil, fmt.Errorf("resolver needs at least one store")
	}

	m := make(map[lookup.StorageType]lookup.ResultStore, len(stores))
	for _, store := range stores {
		if _, dup := m[store.StorageType()]; dup {
			return nil, fmt.Errorf("duplicate store registration for storage type %s", store.StorageType())
		}
		m[store.StorageType()] = store
	}

	def, ok := m[defaultType]
	if !ok {
		return nil, fmt.Errorf("default storage type %s has no registered store", defaultType)
	}

	return &Resolver{stores: m, defaultStore: def}, nil
}

// Resolve returns the store registered for the storage type.
func (r *Resolver) Resolve(storageType lookup.StorageType) (lookup.ResultStore, error) {
	store, ok := r.stores[storageType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", lookup.ErrStoreNotRegistered, storageType)
	}
	return store, nil
}

// Default returns the store new results are written to.
func (r *Resolver) Default() lookup.ResultStore { return r.defaultStore }
