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

// ledgerColumns is the column list shared by every ledger query so the
// single scan helper stays in sync with all of them.
const ledgerColumns = `correlation_id, worker, kind, fingerprint, chunk_size,
	total_chunks, processed_chunks, error_count, status, description,
	status_description, metadata, corporation_id, store_id,
	started_at, finished_at, errored_at, created_at, updated_at`

// LedgerStore implements task.LedgerStore on PostgreSQL. All status
// transitions are guarded inside single UPDATE statements so concurrent
// consumers cannot regress a ledger or double-apply a transition; each
// mutator returns the post-statement row.
type LedgerStore struct {
	db store.DBTX
}

// NewLedgerStore creates a LedgerStore backed by the given connection
// or transaction.
func NewLedgerStore(db store.DBTX) *LedgerStore {
	return &LedgerStore{db: db}
}

// CreateLedger inserts the queued ledger row for a freshly published batch.
func (s *LedgerStore) CreateLedger(ctx context.Context, ledger *task.Ledger) error {
	log := logger.FromContext(ctx)

	query := `
		INSERT INTO task_ledgers (` + ledgerColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`

	_, err := s.db.ExecContext(ctx, query,
		ledger.CorrelationID,
		ledger.Worker,
		ledger.Kind,
		ledger.Fingerprint,
		ledger.ChunkSize,
		ledger.TotalChunks,
		ledger.ProcessedChunks,
		ledger.ErrorCount,
		ledger.Status,
		ledger.Description,
		ledger.StatusDescription,
		nullableJSON(ledger.Metadata),
		nullableInt64(ledger.CorporationID),
		nullableInt64(ledger.StoreID),
		nullableTime(ledger.StartedAt),
		nullableTime(ledger.FinishedAt),
		nullableTime(ledger.ErroredAt),
		ledger.CreatedAt,
		ledger.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return fmt.Errorf("%w: %v", store.ErrLedgerExists, err)
		}
		log.Error("failed to insert task ledger",
			"correlation_id", ledger.CorrelationID,
			"error", err)
		return MapError(fmt.Errorf("failed to insert task ledger: %w", err))
	}

	return nil
}

// GetLedger loads one ledger by correlation id.
func (s *LedgerStore) GetLedger(ctx context.Context, correlationID string) (*task.Ledger, error) {
	query := `SELECT ` + ledgerColumns + ` FROM task_ledgers WHERE correlation_id = $1`

	ledger, err := scanLedger(s.db.QueryRowContext(ctx, query, correlationID))
	if err != nil {
		if IsNotFoundError(err) {
			return nil, store.ErrLedgerNotFound
		}
		return nil, MapError(fmt.Errorf("failed to get task ledger: %w", err))
	}
	return ledger, nil
}

// MarkProcessing moves a queued ledger to processing and stamps its start
// time. Non-queued ledgers are left untouched; either way the current row
// is returned.
func (s *LedgerStore) MarkProcessing(ctx context.Context, correlationID string, startedAt time.Time) (*task.Ledger, error) {
	query := `
		UPDATE task_ledgers
		SET status = CASE WHEN status = 'queued' THEN 'processing' ELSE status END,
			started_at = CASE WHEN status = 'queued' THEN $2 ELSE started_at END,
			updated_at = $3
		WHERE correlation_id = $1
		RETURNING ` + ledgerColumns

	return s.mutate(ctx, "mark processing", query, correlationID, startedAt, time.Now().UTC())
}

// IncrementProcessed bumps the processed chunk counter, capped at the
// chunk total so duplicate deliveries cannot overrun it.
func (s *LedgerStore) IncrementProcessed(ctx context.Context, correlationID string) (*task.Ledger, error) {
	query := `
		UPDATE task_ledgers
		SET processed_chunks = LEAST(processed_chunks + 1, total_chunks),
			updated_at = $2
		WHERE correlation_id = $1
		RETURNING ` + ledgerColumns

	return s.mutate(ctx, "increment processed count", query, correlationID, time.Now().UTC())
}

// MarkFinished moves a processing ledger to finished. The guard keeps an
// already finished or errored ledger as it is.
func (s *LedgerStore) MarkFinished(ctx context.Context, correlationID string, finishedAt time.Time) (*task.Ledger, error) {
	query := `
		UPDATE task_ledgers
		SET status = CASE WHEN status = 'processing' THEN 'finished' ELSE status END,
			finished_at = CASE WHEN status = 'processing' THEN $2 ELSE finished_at END,
			updated_at = $3
		WHERE correlation_id = $1
		RETURNING ` + ledgerColumns

	return s.mutate(ctx, "mark finished", query, correlationID, finishedAt, time.Now().UTC())
}

// IncrementErrorCount bumps the failure counter.
func (s *LedgerStore) IncrementErrorCount(ctx context.Context, correlationID string) (*task.Ledger, error) {
	query := `
		UPDATE task_ledgers
		SET error_count = error_count + 1,
			updated_at = $2
		WHERE correlation_id = $1
		RETURNING ` + ledgerColumns

	return s.mutate(ctx, "increment error count", query, correlationID, time.Now().UTC())
}

// MarkErrored moves a ledger to its terminal errored state unless it has
// already finished or errored.
func (s *LedgerStore) MarkErrored(ctx context.Context, correlationID string, erroredAt time.Time, description string) (*task.Ledger, error) {
	query := `
		UPDATE task_ledgers
		SET status = CASE WHEN status NOT IN ('finished', 'errored') THEN 'errored' ELSE status END,
			errored_at = CASE WHEN status NOT IN ('finished', 'errored') THEN $2 ELSE errored_at END,
			status_description = CASE WHEN status NOT IN ('finished', 'errored') THEN $3 ELSE status_description END,
			updated_at = $4
		WHERE correlation_id = $1
		RETURNING ` + ledgerColumns

	return s.mutate(ctx, "mark errored", query, correlationID, erroredAt, description, time.Now().UTC())
}

// ListRecent returns the most recently updated ledgers, newest first,
// for the read API. Hidden batches carry no scope but are listed all
// the same.
func (s *LedgerStore) ListRecent(ctx context.Context, limit int) ([]*task.Ledger, error) {
	log := logger.FromContext(ctx)

	query := `
		SELECT ` + ledgerColumns + `
		FROM task_ledgers
		ORDER BY updated_at DESC
		LIMIT $1
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		log.Error("failed to list task ledgers", "error", err)
		return nil, MapError(fmt.Errorf("failed to list task ledgers: %w", err))
	}
	defer func() { _ = rows.Close() }()

	var ledgers []*task.Ledger
	for rows.Next() {
		ledger, err := scanLedger(rows)
		if err != nil {
			return nil, MapError(fmt.Errorf("failed to scan task ledger row: %w", err))
		}
		ledgers = append(ledgers, ledger)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(fmt.Errorf("error iterating task ledger rows: %w", err))
	}

	return ledgers, nil
}

// mutate runs one guarded UPDATE ... RETURNING and scans the resulting row.
func (s *LedgerStore) mutate(ctx context.Context, op, query string, args ...interface{}) (*task.Ledger, error) {
	log := logger.FromContext(ctx)

	ledger, err := scanLedger(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if IsNotFoundError(err) {
			return nil, store.ErrLedgerNotFound
		}
		log.Error("ledger update failed", "operation", op, "error", err)
		return nil, MapError(fmt.Errorf("failed to %s: %w", op, err))
	}
	return ledger, nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for the shared scan helper.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanLedger(row rowScanner) (*task.Ledger, error) {
	var (
		ledger            task.Ledger
		description       sql.NullString
		statusDescription sql.NullString
		metadata          []byte
		corporationID     sql.NullInt64
		storeID           sql.NullInt64
		startedAt         sql.NullTime
		finishedAt        sql.NullTime
		erroredAt         sql.NullTime
	)

	err := row.Scan(
		&ledger.CorrelationID,
		&ledger.Worker,
		&ledger.Kind,
		&ledger.Fingerprint,
		&ledger.ChunkSize,
		&ledger.TotalChunks,
		&ledger.ProcessedChunks,
		&ledger.ErrorCount,
		&ledger.Status,
		&description,
		&statusDescription,
		&metadata,
		&corporationID,
		&storeID,
		&startedAt,
		&finishedAt,
		&erroredAt,
		&ledger.CreatedAt,
		&ledger.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	ledger.Description = description.String
	ledger.StatusDescription = statusDescription.String
	if len(metadata) > 0 {
		ledger.Metadata = metadata
	}
	if corporationID.Valid {
		ledger.CorporationID = &corporationID.Int64
	}
	if storeID.Valid {
		ledger.StoreID = &storeID.Int64
	}
	if startedAt.Valid {
		ledger.StartedAt = &startedAt.Time
	}
	if finishedAt.Valid {
		ledger.FinishedAt = &finishedAt.Time
	}
	if erroredAt.Valid {
		ledger.ErroredAt = &erroredAt.Time
	}

	return &ledger, nil
}

func nullableInt64(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullableTime(v *time.Time) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullableJSON(v []byte) interface{} {
	if len(v) == 0 {
		return nil
	}
	return v
}
