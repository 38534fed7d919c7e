// Package secretstore provides the client contract to the external secret
// repository. It is a thin boundary: caching, coalescing, and rotation
// policy live in the secrets package, not here.
package secretstore

import "context"

// Store is the contract to an external secret repository.
type Store interface {
	// Get fetches the named secret. When decrypt is true the store
	// returns the plaintext of an encrypted secret; otherwise the raw
	// stored form.
	Get(ctx context.Context, name string, decrypt bool) (string, error)

	// Put writes a secret value as an encrypted entry, overwriting any
	// existing value when overwrite is set.
	Put(ctx context.Context, name, value string, overwrite bool) error
}
