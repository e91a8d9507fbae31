// Package store provides Store implementations.
package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/warp/pool-engine/insurance"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu       sync.RWMutex
	policies []*insurance.Policy
	premiums map[insurance.PolicyID][]insurance.PremiumPayment
}

func NewMemory() *Memory {
	return &Memory{
		premiums: make(map[insurance.PolicyID][]insurance.PremiumPayment),
	}
}

// CreatePolicy assigns the next dense id (slice index) and stores a copy.
func (m *Memory) CreatePolicy(_ context.Context, p *insurance.Policy) (insurance.PolicyID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := insurance.PolicyID(len(m.policies))
	cp := p.Clone()
	cp.ID = id
	m.policies = append(m.policies, cp)
	p.ID = id
	return id, nil
}

func (m *Memory) GetPolicy(_ context.Context, id insurance.PolicyID) (*insurance.Policy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if id < 0 || int(id) >= len(m.policies) {
		return nil, fmt.Errorf("%w: id %d", insurance.ErrPolicyNotFound, id)
	}
	return m.policies[id].Clone(), nil
}

// SavePolicy overwrites an existing record with a copy of p.
func (m *Memory) SavePolicy(_ context.Context, p *insurance.Policy) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p.ID < 0 || int(p.ID) >= len(m.policies) {
		return fmt.Errorf("%w: id %d", insurance.ErrPolicyNotFound, p.ID)
	}
	m.policies[p.ID] = p.Clone()
	return nil
}

func (m *Memory) ListPolicies(_ context.Context) ([]*insurance.Policy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*insurance.Policy, len(m.policies))
	for i, p := range m.policies {
		result[i] = p.Clone()
	}
	return result, nil
}

// RecordPremium appends a payment record. Append-only.
func (m *Memory) RecordPremium(_ context.Context, payment insurance.PremiumPayment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.premiums[payment.PolicyID] = append(m.premiums[payment.PolicyID], payment)
	return nil
}

func (m *Memory) Premiums(_ context.Context, id insurance.PolicyID) ([]insurance.PremiumPayment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]insurance.PremiumPayment, len(m.premiums[id]))
	copy(result, m.premiums[id])
	return result, nil
}
