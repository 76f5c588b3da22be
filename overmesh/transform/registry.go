package transform

import (
	"fmt"
	"sync"
)

// Factory constructs a transform instance from a pre-shared secret. Keyless
// transforms ignore the secret.
type Factory func(secret []byte) (Transform, error)

var (
	regMu  sync.RWMutex
	byID   = map[ID]Factory{}
	byName = map[string]ID{}
)

// Register makes a transform constructible through New. It is intended to be
// called from the init function of the package implementing the transform.
// Registering the same ID twice panics, as does a nil factory.
func Register(id ID, name string, factory Factory) {
	regMu.Lock()
	defer regMu.Unlock()
	if factory == nil {
		panic("transform: Register with nil factory")
	}
	if _, dup := byID[id]; dup {
		panic(fmt.Sprintf("transform: Register called twice for ID %d", id))
	}
	byID[id] = factory
	byName[name] = id
}

// New constructs the transform registered under id with the given secret.
func New(id ID, secret []byte) (Transform, error) {
	regMu.RLock()
	factory, ok := byID[id]
	regMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrUnknownTransform, id)
	}
	return factory(secret)
}

// Lookup resolves a configuration name ("aes", "cc20", ...) to a transform ID.
func Lookup(name string) (ID, bool) {
	regMu.RLock()
	defer regMu.RUnlock()
	id, ok := byName[name]
	return id, ok
}
