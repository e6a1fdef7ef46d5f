package task

import "context"

// ledgerRef is a resolve-or-fetch-once accessor for one ledger. The
// first successful Get caches the row for the lifetime of one unit of
// work; callers that mutate the ledger refresh the cache with set.
// A missing row surfaces as the store's explicit not-found error
// rather than a nil cache entry.
type ledgerRef struct {
	store         LedgerStore
	correlationID string
	cached        *Ledger
}

func newLedgerRef(store LedgerStore, correlationID string) *ledgerRef {
	return &ledgerRef{store: store, correlationID: correlationID}
}

// Get returns the cached ledger, fetching it on first use.
func (r *ledgerRef) Get(ctx context.Context) (*Ledger, error) {
	if r.cached != nil {
		return r.cached, nil
	}
	ledger, err := r.store.GetLedger(ctx, r.correlationID)
	if err != nil {
		return nil, err
	}
	r.cached = ledger
	return ledger, nil
}

// set replaces the cached snapshot after a mutation returned a newer one.
func (r *ledgerRef) set(ledger *Ledger) {
	if ledger != nil {
		r.cached = ledger
	}
}
