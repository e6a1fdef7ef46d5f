package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/oroshi/backoffice/internal/platform/logger"
	"github.com/oroshi/backoffice/internal/store"
	"github.com/oroshi/backoffice/internal/task"
)

// ItemStore implements task.ItemStore on PostgreSQL. Item records are the
// short-lived per-item audit trail; they exist only while the parent
// ledger is in flight and are purged in bulk when it finishes.
type ItemStore struct {
	db store.DBTX
}

// NewItemStore creates an ItemStore backed by the given connection or
// transaction.
func NewItemStore(db store.DBTX) *ItemStore {
	return &ItemStore{db: db}
}

// ListChunkItems loads the recorded outcomes for one chunk.
func (s *ItemStore) ListChunkItems(ctx context.Context, correlationID string, chunkID int) ([]task.ItemRecord, error) {
	log := logger.FromContext(ctx)

	query := `
		SELECT correlation_id, seq, chunk_id, status, process_time_ns, status_description
		FROM task_items
		WHERE correlation_id = $1 AND chunk_id = $2
		ORDER BY seq ASC
	`

	rows, err := s.db.QueryContext(ctx, query, correlationID, chunkID)
	if err != nil {
		log.Error("failed to query task items",
			"correlation_id", correlationID,
			"chunk_id", chunkID,
			"error", err)
		return nil, MapError(fmt.Errorf("failed to query task items: %w", err))
	}
	defer func() { _ = rows.Close() }()

	var records []task.ItemRecord
	for rows.Next() {
		var (
			record            task.ItemRecord
			processTimeNS     int64
			statusDescription sql.NullString
		)
		if err := rows.Scan(
			&record.CorrelationID,
			&record.Seq,
			&record.ChunkID,
			&record.Status,
			&processTimeNS,
			&statusDescription,
		); err != nil {
			return nil, MapError(fmt.Errorf("failed to scan task item row: %w", err))
		}
		record.ProcessTime = time.Duration(processTimeNS)
		record.StatusDescription = statusDescription.String
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(fmt.Errorf("error iterating task item rows: %w", err))
	}

	return records, nil
}

// UpsertItem records the outcome of one item attempt. A retry of a
// previously errored item overwrites its record in place.
func (s *ItemStore) UpsertItem(ctx context.Context, record *task.ItemRecord) error {
	log := logger.FromContext(ctx)

	query := `
		INSERT INTO task_items (correlation_id, seq, chunk_id, status, process_time_ns, status_description, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (correlation_id, seq) DO UPDATE
		SET chunk_id = EXCLUDED.chunk_id,
			status = EXCLUDED.status,
			process_time_ns = EXCLUDED.process_time_ns,
			status_description = EXCLUDED.status_description,
			updated_at = EXCLUDED.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		record.CorrelationID,
		record.Seq,
		record.ChunkID,
		record.Status,
		int64(record.ProcessTime),
		record.StatusDescription,
		time.Now().UTC(),
	)
	if err != nil {
		log.Error("failed to upsert task item",
			"correlation_id", record.CorrelationID,
			"seq", record.Seq,
			"error", err)
		return MapError(fmt.Errorf("failed to upsert task item: %w", err))
	}

	return nil
}

// DeleteLedgerItems purges all item records of a finished ledger.
// Deleting zero rows is fine; single-attempt batches may never have
// written any.
func (s *ItemStore) DeleteLedgerItems(ctx context.Context, correlationID string) error {
	log := logger.FromContext(ctx)

	query := `DELETE FROM task_items WHERE correlation_id = $1`

	if _, err := s.db.ExecContext(ctx, query, correlationID); err != nil {
		log.Error("failed to delete task items",
			"correlation_id", correlationID,
			"error", err)
		return MapError(fmt.Errorf("failed to delete task items: %w", err))
	}

	return nil
}
