package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oroshi/backoffice/internal/task"
)

func TestItemStore_ListChunkItems(t *testing.T) {
	db, mock := newMockDB(t)
	itemStore := NewItemStore(db)

	rows := sqlmock.NewRows([]string{
		"correlation_id", "seq", "chunk_id", "status", "process_time_ns", "status_description",
	}).
		AddRow("batch-1", 101, 2, "finished", int64(25*time.Millisecond), "").
		AddRow("batch-1", 102, 2, "errored", int64(time.Second), "price service unavailable")

	mock.ExpectQuery("SELECT (.+) FROM task_items").
		WithArgs("batch-1", 2).
		WillReturnRows(rows)

	records, err := itemStore.ListChunkItems(context.Background(), "batch-1", 2)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, 101, records[0].Seq)
	assert.Equal(t, task.ItemStatusFinished, records[0].Status)
	assert.Equal(t, 25*time.Millisecond, records[0].ProcessTime)

	assert.Equal(t, task.ItemStatusErrored, records[1].Status)
	assert.Equal(t, "price service unavailable", records[1].StatusDescription)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestItemStore_ListChunkItems_Empty(t *testing.T) {
	db, mock := newMockDB(t)
	itemStore := NewItemStore(db)

	mock.ExpectQuery("SELECT (.+) FROM task_items").
		WithArgs("batch-1", 1).
		WillReturnRows(sqlmock.NewRows([]string{
			"correlation_id", "seq", "chunk_id", "status", "process_time_ns", "status_description",
		}))

	records, err := itemStore.ListChunkItems(context.Background(), "batch-1", 1)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestItemStore_UpsertItem(t *testing.T) {
	db, mock := newMockDB(t)
	itemStore := NewItemStore(db)

	mock.ExpectExec("INSERT INTO task_items").
		WithArgs("batch-1", 101, 2, "finished", int64(30*time.Millisecond), "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := itemStore.UpsertItem(context.Background(), &task.ItemRecord{
		CorrelationID: "batch-1",
		Seq:           101,
		ChunkID:       2,
		Status:        task.ItemStatusFinished,
		ProcessTime:   30 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestItemStore_UpsertItem_DatabaseError(t *testing.T) {
	db, mock := newMockDB(t)
	itemStore := NewItemStore(db)

	mock.ExpectExec("INSERT INTO task_items").
		WillReturnError(errors.New("connection reset"))

	err := itemStore.UpsertItem(context.Background(), &task.ItemRecord{
		CorrelationID: "batch-1",
		Seq:           1,
		ChunkID:       1,
		Status:        task.ItemStatusErrored,
	})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestItemStore_DeleteLedgerItems(t *testing.T) {
	db, mock := newMockDB(t)
	itemStore := NewItemStore(db)

	mock.ExpectExec("DELETE FROM task_items").
		WithArgs("batch-1").
		WillReturnResult(sqlmock.NewResult(0, 250))

	require.NoError(t, itemStore.DeleteLedgerItems(context.Background(), "batch-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
