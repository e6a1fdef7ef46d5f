package task

import (
	"context"
	"sync"
	"time"

	"github.com/oroshi/backoffice/internal/store"
)

// MemoryLedgerStore is an in-memory LedgerStore used in tests and local
// wiring. It reproduces the transition guards of the SQL implementation.
type MemoryLedgerStore struct {
	mu      sync.Mutex
	ledgers map[string]*Ledger
}

// NewMemoryLedgerStore creates an empty MemoryLedgerStore.
func NewMemoryLedgerStore() *MemoryLedgerStore {
	return &MemoryLedgerStore{ledgers: make(map[string]*Ledger)}
}

func (s *MemoryLedgerStore) CreateLedger(ctx context.Context, ledger *Ledger) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.ledgers[ledger.CorrelationID]; exists {
		return store.ErrLedgerExists
	}
	cp := *ledger
	s.ledgers[ledger.CorrelationID] = &cp
	return nil
}

func (s *MemoryLedgerStore) GetLedger(ctx context.Context, correlationID string) (*Ledger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(correlationID)
}

func (s *MemoryLedgerStore) MarkProcessing(ctx context.Context, correlationID string, startedAt time.Time) (*Ledger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ledger, ok := s.ledgers[correlationID]
	if !ok {
		return nil, store.ErrLedgerNotFound
	}
	if ledger.Status == LedgerStatusQueued {
		ledger.Status = LedgerStatusProcessing
		ledger.StartedAt = &startedAt
	}
	return s.snapshot(correlationID)
}

func (s *MemoryLedgerStore) IncrementProcessed(ctx context.Context, correlationID string) (*Ledger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ledger, ok := s.ledgers[correlationID]
	if !ok {
		return nil, store.ErrLedgerNotFound
	}
	if ledger.ProcessedChunks < ledger.TotalChunks {
		ledger.ProcessedChunks++
	}
	return s.snapshot(correlationID)
}

func (s *MemoryLedgerStore) MarkFinished(ctx context.Context, correlationID string, finishedAt time.Time) (*Ledger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ledger, ok := s.ledgers[correlationID]
	if !ok {
		return nil, store.ErrLedgerNotFound
	}
	if ledger.Status == LedgerStatusProcessing {
		ledger.Status = LedgerStatusFinished
		ledger.FinishedAt = &finishedAt
	}
	return s.snapshot(correlationID)
}

func (s *MemoryLedgerStore) IncrementErrorCount(ctx context.Context, correlationID string) (*Ledger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ledger, ok := s.ledgers[correlationID]
	if !ok {
		return nil, store.ErrLedgerNotFound
	}
	ledger.ErrorCount++
	return s.snapshot(correlationID)
}

func (s *MemoryLedgerStore) MarkErrored(ctx context.Context, correlationID string, erroredAt time.Time, description string) (*Ledger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ledger, ok := s.ledgers[correlationID]
	if !ok {
		return nil, store.ErrLedgerNotFound
	}
	if ledger.Status != LedgerStatusFinished && ledger.Status != LedgerStatusErrored {
		ledger.Status = LedgerStatusErrored
		ledger.ErroredAt = &erroredAt
		ledger.StatusDescription = description
	}
	return s.snapshot(correlationID)
}

// snapshot returns a copy so callers never share the stored struct.
// Callers must hold s.mu.
func (s *MemoryLedgerStore) snapshot(correlationID string) (*Ledger, error) {
	ledger, ok := s.ledgers[correlationID]
	if !ok {
		return nil, store.ErrLedgerNotFound
	}
	cp := *ledger
	return &cp, nil
}

// MemoryItemStore is an in-memory ItemStore used in tests and local wiring.
type MemoryItemStore struct {
	mu      sync.Mutex
	records map[string]map[int]ItemRecord
}

// NewMemoryItemStore creates an empty MemoryItemStore.
func NewMemoryItemStore() *MemoryItemStore {
	return &MemoryItemStore{records: make(map[string]map[int]ItemRecord)}
}

func (s *MemoryItemStore) ListChunkItems(ctx context.Context, correlationID string, chunkID int) ([]ItemRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ItemRecord
	for _, record := range s.records[correlationID] {
		if record.ChunkID == chunkID {
			out = append(out, record)
		}
	}
	return out, nil
}

func (s *MemoryItemStore) UpsertItem(ctx context.Context, record *ItemRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bySeq, ok := s.records[record.CorrelationID]
	if !ok {
		bySeq = make(map[int]ItemRecord)
		s.records[record.CorrelationID] = bySeq
	}
	bySeq[record.Seq] = *record
	return nil
}

func (s *MemoryItemStore) DeleteLedgerItems(ctx context.Context, correlationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, correlationID)
	return nil
}

// Record returns the stored record for one item, if any.
func (s *MemoryItemStore) Record(correlationID string, seq int) (ItemRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[correlationID][seq]
	return record, ok
}

// Count returns the number of records held for a ledger.
func (s *MemoryItemStore) Count(correlationID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records[correlationID])
}
