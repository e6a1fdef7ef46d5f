package task

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type consumerFixture struct {
	consumer *Consumer
	registry *Registry
	queue    *MemoryQueue
	ledgers  *MemoryLedgerStore
	items    *MemoryItemStore
	progress *progressRecorder
	slept    *atomic.Int64
}

func newConsumerFixture(t *testing.T) *consumerFixture {
	t.Helper()
	f := &consumerFixture{
		registry: NewRegistry(),
		queue:    NewMemoryQueue(),
		ledgers:  NewMemoryLedgerStore(),
		items:    NewMemoryItemStore(),
		progress: &progressRecorder{},
		slept:    &atomic.Int64{},
	}
	logger := setupTestLogger()
	processor := NewProcessor(f.items, nopTransactor{}, logger)
	f.consumer = NewConsumer("item", testCatalog(t), f.registry, f.queue,
		f.ledgers, f.items, processor, f.progress, logger)
	// Count cooldown sleeps instead of actually sleeping.
	f.consumer.sleep = func(ctx context.Context, d time.Duration) {
		if d > 0 {
			f.slept.Add(1)
		}
	}
	return f
}

// publishBatch seeds a ledger and its chunks through a real Publisher
// sharing the fixture's stores and queue.
func (f *consumerFixture) publishBatch(t *testing.T, req PublishRequest) string {
	t.Helper()
	publisher := NewPublisher(testCatalog(t), f.ledgers, f.queue, NewMemoryScheduler(), f.progress, setupTestLogger())
	handles, err := publisher.Publish(context.Background(), req)
	require.NoError(t, err)
	require.NotEmpty(t, handles)
	return f.queue.Published[len(f.queue.Published)-1].Envelope.CorrelationID
}

// drainOne receives and handles exactly one delivery.
func (f *consumerFixture) drainOne(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	delivery, err := f.queue.Receive(ctx)
	require.NoError(t, err)
	require.NotNil(t, delivery)
	f.consumer.handleDelivery(context.Background(), delivery)
}

func succeedingHandler() Handler {
	return func(ctx context.Context, tx *sql.Tx, scope Scope, payload json.RawMessage) error {
		return nil
	}
}

func failingHandler(err error) Handler {
	return func(ctx context.Context, tx *sql.Tx, scope Scope, payload json.RawMessage) error {
		return err
	}
}

func TestConsumer_SuccessfulChunkLifecycle(t *testing.T) {
	f := newConsumerFixture(t)
	require.NoError(t, f.registry.Register("update-item", succeedingHandler()))

	correlationID := f.publishBatch(t, PublishRequest{
		Worker: "item", Kind: "update-item", Payloads: payloads(250),
	})
	require.Equal(t, 3, f.queue.Pending())

	// First chunk: queued -> processing, processed=1.
	f.drainOne(t)
	ledger, err := f.ledgers.GetLedger(context.Background(), correlationID)
	require.NoError(t, err)
	assert.Equal(t, LedgerStatusProcessing, ledger.Status)
	assert.Equal(t, 1, ledger.ProcessedChunks)
	assert.NotNil(t, ledger.StartedAt)
	require.Len(t, f.queue.Acked, 1)

	// Remaining chunks: ledger finishes, item records purged.
	f.drainOne(t)
	f.drainOne(t)
	ledger, err = f.ledgers.GetLedger(context.Background(), correlationID)
	require.NoError(t, err)
	assert.Equal(t, LedgerStatusFinished, ledger.Status)
	assert.Equal(t, 3, ledger.ProcessedChunks)
	assert.NotNil(t, ledger.FinishedAt)
	assert.Zero(t, f.items.Count(correlationID), "item audit trail purged on finish")
	assert.Len(t, f.queue.Acked, 3)
	assert.Empty(t, f.queue.Dead)

	// Progress events: creation, processing, and one per chunk completion.
	assert.GreaterOrEqual(t, f.progress.count(), 4)
	final, err := ledgerFromEvent(f.progress.last())
	require.NoError(t, err)
	assert.Equal(t, LedgerStatusFinished, final.Status)
}

func TestConsumer_FailedChunkLeavesMessageAndCountsError(t *testing.T) {
	f := newConsumerFixture(t)
	require.NoError(t, f.registry.Register("update-item", failingHandler(errors.New("boom"))))

	correlationID := f.publishBatch(t, PublishRequest{
		Worker: "item", Kind: "update-item", Payloads: payloads(5),
	})

	f.drainOne(t)

	ledger, err := f.ledgers.GetLedger(context.Background(), correlationID)
	require.NoError(t, err)
	assert.Equal(t, 1, ledger.ErrorCount)
	assert.Equal(t, 0, ledger.ProcessedChunks, "processed count unchanged on failure")
	assert.Equal(t, LedgerStatusProcessing, ledger.Status, "below threshold the ledger stays processing")
	assert.Empty(t, f.queue.Acked, "failed chunk is not deleted")
	assert.Equal(t, 1, f.queue.Pending(), "message released for redelivery")
}

func TestConsumer_RedeliveryResumesFromFailedItem(t *testing.T) {
	f := newConsumerFixture(t)

	var attempts atomic.Int64
	handler := func(ctx context.Context, tx *sql.Tx, scope Scope, payload json.RawMessage) error {
		var body struct {
			N int `json:"n"`
		}
		if err := json.Unmarshal(payload, &body); err != nil {
			return err
		}
		// Item 3 fails on the first delivery only.
		if body.N == 3 && attempts.Add(1) == 1 {
			return errors.New("transient failure")
		}
		return nil
	}
	require.NoError(t, f.registry.Register("update-item", handler))

	correlationID := f.publishBatch(t, PublishRequest{
		Worker: "item", Kind: "update-item", Payloads: payloads(5),
	})

	// First delivery fails at item 3.
	f.drainOne(t)
	ledger, err := f.ledgers.GetLedger(context.Background(), correlationID)
	require.NoError(t, err)
	assert.Equal(t, 1, ledger.ErrorCount)

	// Redelivery succeeds and completes the single-chunk batch.
	f.drainOne(t)
	ledger, err = f.ledgers.GetLedger(context.Background(), correlationID)
	require.NoError(t, err)
	assert.Equal(t, LedgerStatusFinished, ledger.Status)
	assert.Equal(t, 1, ledger.ProcessedChunks)
}

func TestConsumer_ErrorThresholdMarksLedgerErroredAndDeadLetters(t *testing.T) {
	f := newConsumerFixture(t)
	require.NoError(t, f.registry.Register("update-item", failingHandler(errors.New("permanent"))))

	correlationID := f.publishBatch(t, PublishRequest{
		Worker: "item", Kind: "update-item", Payloads: payloads(5),
	})

	// Failures 1-3 keep the ledger processing; the 4th crosses the
	// threshold.
	for i := 0; i < ErrorThreshold; i++ {
		f.drainOne(t)
		ledger, err := f.ledgers.GetLedger(context.Background(), correlationID)
		require.NoError(t, err)
		assert.Equal(t, i+1, ledger.ErrorCount)
		assert.Equal(t, LedgerStatusProcessing, ledger.Status)
	}

	f.drainOne(t)
	ledger, err := f.ledgers.GetLedger(context.Background(), correlationID)
	require.NoError(t, err)
	assert.Equal(t, ErrorThreshold+1, ledger.ErrorCount)
	assert.Equal(t, LedgerStatusErrored, ledger.Status)
	assert.NotNil(t, ledger.ErroredAt)
	assert.Contains(t, ledger.StatusDescription, "permanent")
	require.Len(t, f.queue.Dead, 1, "terminal failure parks the message")
	assert.Zero(t, f.queue.Pending())

	final, eventErr := ledgerFromEvent(f.progress.last())
	require.NoError(t, eventErr)
	assert.Equal(t, LedgerStatusErrored, final.Status)
}

func TestConsumer_ChunkForErroredLedgerIsDeadLettered(t *testing.T) {
	f := newConsumerFixture(t)
	invoked := false
	require.NoError(t, f.registry.Register("update-item",
		func(ctx context.Context, tx *sql.Tx, scope Scope, payload json.RawMessage) error {
			invoked = true
			return nil
		}))

	correlationID := f.publishBatch(t, PublishRequest{
		Worker: "item", Kind: "update-item", Payloads: payloads(5),
	})
	_, err := f.ledgers.MarkProcessing(context.Background(), correlationID, time.Now())
	require.NoError(t, err)
	_, err = f.ledgers.MarkErrored(context.Background(), correlationID, time.Now(), "operator gave up")
	require.NoError(t, err)

	f.drainOne(t)

	assert.False(t, invoked, "handler must not run for a dead batch")
	assert.Len(t, f.queue.Dead, 1)
}

func TestConsumer_NoHandlerIsFatalPerMessage(t *testing.T) {
	f := newConsumerFixture(t)
	// Nothing registered for update-item.

	correlationID := f.publishBatch(t, PublishRequest{
		Worker: "item", Kind: "update-item", Payloads: payloads(2),
	})

	f.drainOne(t)

	ledger, err := f.ledgers.GetLedger(context.Background(), correlationID)
	require.NoError(t, err)
	assert.Equal(t, LedgerStatusQueued, ledger.Status, "no bookkeeping for an unroutable message")
	assert.Equal(t, 0, ledger.ErrorCount)
	assert.Empty(t, f.queue.Acked, "message is not deleted")
	assert.Equal(t, 1, f.queue.Pending())
}

func TestConsumer_SystemInternalFailureSkipsBookkeeping(t *testing.T) {
	f := newConsumerFixture(t)
	require.NoError(t, f.registry.Register("update-item", failingHandler(errors.New("boom"))))

	publisher := NewPublisher(testCatalog(t), f.ledgers, f.queue, NewMemoryScheduler(), f.progress, setupTestLogger())
	_, err := publisher.Publish(context.Background(), PublishRequest{
		Worker: "item", Kind: "update-item", Payloads: payloads(3), SystemInternal: true,
	})
	require.NoError(t, err)

	f.drainOne(t)

	assert.Zero(t, f.progress.count())
	assert.Equal(t, 1, f.queue.Pending(), "still released for redelivery")
}

func TestConsumer_CooldownAppliesAfterEveryIteration(t *testing.T) {
	f := newConsumerFixture(t)
	require.NoError(t, f.registry.Register("update-item", succeedingHandler()))

	f.publishBatch(t, PublishRequest{
		Worker: "item", Kind: "update-item", Payloads: payloads(5),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = f.consumer.Run(ctx)
	}()

	require.Eventually(t, func() bool { return len(f.queue.Acked) == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	assert.GreaterOrEqual(t, f.slept.Load(), int64(1), "cooldown sleep after the iteration")
}

func TestConsumer_RunStopsOnContextCancel(t *testing.T) {
	f := newConsumerFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.consumer.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err, "clean shutdown returns nil")
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop after cancellation")
	}
}

func TestConsumer_ProcessedNeverExceedsTotal(t *testing.T) {
	f := newConsumerFixture(t)
	require.NoError(t, f.registry.Register("update-item", succeedingHandler()))

	correlationID := f.publishBatch(t, PublishRequest{
		Worker: "item", Kind: "update-item", Payloads: payloads(5),
	})

	f.drainOne(t)

	// Simulate a duplicate redelivery of the already-completed chunk.
	env := f.queue.Published[0].Envelope
	_, err := f.queue.Publish(context.Background(), env.CorrelationID, env)
	require.NoError(t, err)
	f.drainOne(t)

	ledger, err := f.ledgers.GetLedger(context.Background(), correlationID)
	require.NoError(t, err)
	assert.LessOrEqual(t, ledger.ProcessedChunks, ledger.TotalChunks)
}
