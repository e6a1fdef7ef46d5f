package task

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oroshi/backoffice/internal/store"
)

// chunkEnvelope builds an envelope with n items whose payloads are
// their sequence numbers.
func chunkEnvelope(correlationID string, chunkID, firstSeq, n int) *Envelope {
	items := make([]Item, n)
	for i := range items {
		items[i] = Item{
			Seq:     firstSeq + i,
			Payload: json.RawMessage(fmt.Sprintf(`{"n":%d}`, firstSeq+i)),
		}
	}
	return &Envelope{
		Worker:        "item",
		Kind:          "update-item",
		CorrelationID: correlationID,
		ChunkID:       chunkID,
		Items:         items,
	}
}

// seqRecordingHandler records the sequence numbers it was invoked for
// and fails on the ones listed in failOn.
func seqRecordingHandler(invoked *[]int, failOn map[int]error) Handler {
	return func(ctx context.Context, tx *sql.Tx, scope Scope, payload json.RawMessage) error {
		var body struct {
			N int `json:"n"`
		}
		if err := json.Unmarshal(payload, &body); err != nil {
			return err
		}
		*invoked = append(*invoked, body.N)
		if err, ok := failOn[body.N]; ok {
			return err
		}
		return nil
	}
}

func newProcessor(items ItemStore) *Processor {
	return NewProcessor(items, nopTransactor{}, setupTestLogger())
}

func TestProcessChunk_AllItemsSucceed(t *testing.T) {
	items := NewMemoryItemStore()
	processor := newProcessor(items)
	env := chunkEnvelope("batch-1", 1, 1, 5)

	var invoked []int
	err := processor.ProcessChunk(context.Background(), env, seqRecordingHandler(&invoked, nil))

	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, invoked)
	for seq := 1; seq <= 5; seq++ {
		record, ok := items.Record("batch-1", seq)
		require.True(t, ok, "seq %d should be recorded", seq)
		assert.Equal(t, ItemStatusFinished, record.Status)
		assert.Equal(t, 1, record.ChunkID)
	}
}

func TestProcessChunk_FailureAbortsRemainingItems(t *testing.T) {
	items := NewMemoryItemStore()
	processor := newProcessor(items)
	env := chunkEnvelope("batch-1", 1, 1, 5)
	cause := errors.New("price service unavailable")

	var invoked []int
	err := processor.ProcessChunk(context.Background(), env,
		seqRecordingHandler(&invoked, map[int]error{3: cause}))

	var itemErr *ItemError
	require.ErrorAs(t, err, &itemErr)
	assert.Equal(t, 3, itemErr.Seq)
	assert.ErrorIs(t, err, cause)

	// Items 1-2 finished, 3 errored with the cause, 4-5 never attempted.
	assert.Equal(t, []int{1, 2, 3}, invoked)
	for seq := 1; seq <= 2; seq++ {
		record, ok := items.Record("batch-1", seq)
		require.True(t, ok)
		assert.Equal(t, ItemStatusFinished, record.Status)
	}
	record, ok := items.Record("batch-1", 3)
	require.True(t, ok)
	assert.Equal(t, ItemStatusErrored, record.Status)
	assert.Contains(t, record.StatusDescription, "price service unavailable")
	for seq := 4; seq <= 5; seq++ {
		_, ok := items.Record("batch-1", seq)
		assert.False(t, ok, "seq %d should not be attempted", seq)
	}
}

func TestProcessChunk_RedeliverySkipsFinishedAndRetriesFailed(t *testing.T) {
	items := NewMemoryItemStore()
	processor := newProcessor(items)
	env := chunkEnvelope("batch-1", 1, 1, 5)

	// First delivery: item 3 fails.
	var first []int
	err := processor.ProcessChunk(context.Background(), env,
		seqRecordingHandler(&first, map[int]error{3: errors.New("transient")}))
	require.Error(t, err)

	// Redelivery: 1-2 skipped, 3 retried and succeeds, 4-5 run.
	var second []int
	err = processor.ProcessChunk(context.Background(), env, seqRecordingHandler(&second, nil))
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4, 5}, second)

	for seq := 1; seq <= 5; seq++ {
		record, ok := items.Record("batch-1", seq)
		require.True(t, ok)
		assert.Equal(t, ItemStatusFinished, record.Status, "seq %d", seq)
	}
}

func TestProcessChunk_PrefinishedItemsAreUntouched(t *testing.T) {
	items := NewMemoryItemStore()
	for seq := 1; seq <= 2; seq++ {
		require.NoError(t, items.UpsertItem(context.Background(), &ItemRecord{
			CorrelationID: "batch-1", Seq: seq, ChunkID: 1, Status: ItemStatusFinished,
		}))
	}
	processor := newProcessor(items)
	env := chunkEnvelope("batch-1", 1, 1, 4)

	var invoked []int
	err := processor.ProcessChunk(context.Background(), env, seqRecordingHandler(&invoked, nil))

	require.NoError(t, err)
	assert.Equal(t, []int{3, 4}, invoked, "handler runs only for items k+1..end")
}

func TestProcessChunk_SystemInternalKeepsNoRecords(t *testing.T) {
	items := NewMemoryItemStore()
	processor := newProcessor(items)
	env := chunkEnvelope("sys-batch", 1, 1, 10)
	env.SystemInternal = true

	var invoked []int
	err := processor.ProcessChunk(context.Background(), env,
		seqRecordingHandler(&invoked, map[int]error{5: errors.New("boom")}))

	require.Error(t, err)
	// Failure on item 5 still aborts the rest, but leaves no records.
	assert.Equal(t, []int{1, 2, 3, 4, 5}, invoked)
	assert.Zero(t, items.Count("sys-batch"))
}

func TestProcessChunk_TransactionRollsBackFailedItem(t *testing.T) {
	items := NewMemoryItemStore()

	var inTxCalls, rollbacks int
	tx := &countingTransactor{calls: &inTxCalls, rollbacks: &rollbacks}
	processor := NewProcessor(items, tx, setupTestLogger())
	env := chunkEnvelope("batch-1", 1, 1, 3)

	var invoked []int
	err := processor.ProcessChunk(context.Background(), env,
		seqRecordingHandler(&invoked, map[int]error{2: errors.New("constraint violation")}))

	require.Error(t, err)
	assert.Equal(t, 2, inTxCalls, "one transaction per attempted item")
	assert.Equal(t, 1, rollbacks, "only the failed item rolls back")
}

// countingTransactor counts invocations and simulated rollbacks.
type countingTransactor struct {
	calls     *int
	rollbacks *int
}

func (c *countingTransactor) InTx(ctx context.Context, fn store.TxFn) error {
	*c.calls++
	if err := fn(ctx, nil); err != nil {
		*c.rollbacks++
		return err
	}
	return nil
}
