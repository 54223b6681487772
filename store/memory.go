package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	x402 "github.com/Scottcjn/openclaw-x402"
)

// sweepInterval is how many writes pass between full expiry sweeps.
const sweepInterval = 4096

// MemoryStore is an in-process replay guard. Suitable for single-instance
// deployments; a multi-replica Gate needs the Redis-backed store so the
// check-and-set happens in shared storage.
type MemoryStore struct {
	mu        sync.Mutex
	records   map[string]RedemptionRecord
	retention time.Duration
	writes    int

	// now is the clock source, overridable in tests.
	now func() time.Time
}

var _ x402.ReplayStore = (*MemoryStore)(nil)

// NewMemoryStore creates an in-memory replay guard. Entries are evicted once
// they are older than retention; the window must exceed any realistic chain
// reorganization horizon plus the client retry window.
func NewMemoryStore(retention time.Duration) *MemoryStore {
	return &MemoryStore{
		records:   make(map[string]RedemptionRecord),
		retention: retention,
		now:       time.Now,
	}
}

// TryRedeem atomically consumes a transaction reference. The check and the
// insert happen under one lock, so concurrent calls for the same reference
// observe a single winner.
func (s *MemoryStore) TryRedeem(_ context.Context, transaction, resource string) (bool, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if record, ok := s.records[transaction]; ok && !s.expired(record, now) {
		return false, nil
	}

	s.records[transaction] = RedemptionRecord{
		ID:          uuid.New(),
		Transaction: transaction,
		Resource:    resource,
		RedeemedAt:  now,
	}

	s.writes++
	if s.writes >= sweepInterval {
		s.writes = 0
		s.sweepLocked(now)
	}
	return true, nil
}

// IsRedeemed reports whether a reference is currently recorded as consumed.
func (s *MemoryStore) IsRedeemed(_ context.Context, transaction string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[transaction]
	return ok && !s.expired(record, s.now()), nil
}

// Get returns the redemption record for a reference, if present and live.
// Diagnostic helper for audits and tests.
func (s *MemoryStore) Get(transaction string) (RedemptionRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[transaction]
	if !ok || s.expired(record, s.now()) {
		return RedemptionRecord{}, false
	}
	return record, true
}

// Purge removes all entries older than the retention window and returns the
// number removed.
func (s *MemoryStore) Purge() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked(s.now())
}

// Len returns the number of live entries.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	n := 0
	for _, record := range s.records {
		if !s.expired(record, now) {
			n++
		}
	}
	return n
}

func (s *MemoryStore) expired(record RedemptionRecord, now time.Time) bool {
	return s.retention > 0 && now.Sub(record.RedeemedAt) > s.retention
}

func (s *MemoryStore) sweepLocked(now time.Time) int {
	removed := 0
	for transaction, record := range s.records {
		if s.expired(record, now) {
			delete(s.records, transaction)
			removed++
		}
	}
	return removed
}
