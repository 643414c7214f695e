// Package ledger persists the set of deals already notified outward. The
// webhook handler and the pending sweep can race on the same deal; claiming
// through the ledger before any work starts is what keeps Slack from seeing
// the same deal twice.
package ledger

import (
	"context"
	"sync"
)

// Ledger tracks per-deal processing claims. TryClaim must be called before
// any outward-facing work; Release undoes a claim after a failure so the
// sweep can retry, and MarkDone makes the claim permanent.
type Ledger interface {
	// TryClaim atomically claims a deal. Returns false when the deal is
	// already claimed or done.
	TryClaim(ctx context.Context, dealID string) (bool, error)
	// Release drops an unfinished claim.
	Release(ctx context.Context, dealID string) error
	// MarkDone records the deal as fully processed. Idempotent.
	MarkDone(ctx context.Context, dealID string) error
	// Done reports whether the deal has been fully processed.
	Done(ctx context.Context, dealID string) (bool, error)
	Close() error
}

const (
	stateClaimed = "claimed"
	stateDone    = "done"
)

// Memory is an in-process Ledger. State is lost on restart, so it only suits
// tests and one-shot CLI runs.
type Memory struct {
	mu     sync.Mutex
	states map[string]string
}

// NewMemory creates an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{states: make(map[string]string)}
}

func (m *Memory) TryClaim(_ context.Context, dealID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.states[dealID]; taken {
		return false, nil
	}
	m.states[dealID] = stateClaimed
	return true, nil
}

func (m *Memory) Release(_ context.Context, dealID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.states[dealID] == stateClaimed {
		delete(m.states, dealID)
	}
	return nil
}

func (m *Memory) MarkDone(_ context.Context, dealID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[dealID] = stateDone
	return nil
}

func (m *Memory) Done(_ context.Context, dealID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[dealID] == stateDone, nil
}

func (m *Memory) Close() error { return nil }
