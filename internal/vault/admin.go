package vault

import (
	"context"
	"sync"
)

// AdminSink receives administrative notifications.
type AdminSink interface {
	OwnerChanged(ctx context.Context, oldOwner, newOwner string)
	OracleUpdated(ctx context.Context, address string)
}

// AdminRegistry holds the owner identity and the oracle address. Both
// administrative operations require the caller to be the current owner.
type AdminRegistry struct {
	mu            sync.RWMutex
	owner         string
	oracleAddress string
	events        AdminSink
}

// NewAdminRegistry creates a registry with the initial owner and oracle
// address.
func NewAdminRegistry(owner, oracleAddress string, events AdminSink) *AdminRegistry {
	return &AdminRegistry{
		owner:         owner,
		oracleAddress: oracleAddress,
		events:        events,
	}
}

// Owner returns the current owner.
func (r *AdminRegistry) Owner() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.owner
}

// OracleAddress returns the configured oracle address.
func (r *AdminRegistry) OracleAddress() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.oracleAddress
}

// ChangeOwner reassigns ownership. Fails with NotAuthorizedError unless
// caller is the current owner; subsequent authorization checks use the new
// owner.
func (r *AdminRegistry) ChangeOwner(ctx context.Context, caller, newOwner string) error {
	r.mu.Lock()
	if caller != r.owner {
		r.mu.Unlock()
		return &NotAuthorizedError{Caller: caller}
	}
	old := r.owner
	r.owner = newOwner
	r.mu.Unlock()

	if r.events != nil {
		r.events.OwnerChanged(ctx, old, newOwner)
	}
	return nil
}

// UpdateOracleAddress repoints the price oracle. Owner only.
func (r *AdminRegistry) UpdateOracleAddress(ctx context.Context, caller, address string) error {
	r.mu.Lock()
	if caller != r.owner {
		r.mu.Unlock()
		return &NotAuthorizedError{Caller: caller}
	}
	r.oracleAddress = address
	r.mu.Unlock()

	if r.events != nil {
		r.events.OracleUpdated(ctx, address)
	}
	return nil
}
