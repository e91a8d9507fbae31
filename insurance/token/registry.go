package token

import (
	"fmt"
	"sync"

	"github.com/warp/pool-engine/insurance"
)

// =============================================================================
// REGISTRY - Token handle resolution
// =============================================================================

// Registry maps token handles (the opaque string stored on a policy)
// to live FungibleToken implementations. Implements
// insurance.TokenResolver.
type Registry struct {
	mu     sync.RWMutex
	tokens map[string]insurance.FungibleToken
}

func NewRegistry() *Registry {
	return &Registry{tokens: make(map[string]insurance.FungibleToken)}
}

// Register binds a handle to a token. Re-registering a handle replaces
// the previous binding.
func (r *Registry) Register(handle string, tok insurance.FungibleToken) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[handle] = tok
}

// Resolve returns the token for handle, or insurance.ErrUnknownToken.
func (r *Registry) Resolve(handle string) (insurance.FungibleToken, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tok, ok := r.tokens[handle]
	if !ok {
		return nil, fmt.Errorf("%w: %q", insurance.ErrUnknownToken, handle)
	}
	return tok, nil
}

// Handles returns all registered handles. Order is not defined.
func (r *Registry) Handles() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handles := make([]string, 0, len(r.tokens))
	for h := range r.tokens {
		handles = append(handles, h)
	}
	return handles
}
