package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oroshi/backoffice/internal/store"
	"github.com/oroshi/backoffice/internal/task"
)

type fakeLedgerReader struct {
	ledgers map[string]*task.Ledger
	listErr error
}

func (f *fakeLedgerReader) GetLedger(ctx context.Context, correlationID string) (*task.Ledger, error) {
	ledger, ok := f.ledgers[correlationID]
	if !ok {
		return nil, store.ErrLedgerNotFound
	}
	return ledger, nil
}

func (f *fakeLedgerReader) ListRecent(ctx context.Context, limit int) ([]*task.Ledger, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []*task.Ledger
	for _, ledger := range f.ledgers {
		out = append(out, ledger)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func testServer(reader LedgerReader) *httptest.Server {
	return httptest.NewServer(NewRouter(NewTaskHandler(reader)))
}

func sampleLedger(correlationID string) *task.Ledger {
	now := time.Now().UTC()
	return &task.Ledger{
		CorrelationID: correlationID,
		Worker:        "item",
		Kind:          "update-item",
		ChunkSize:     100,
		TotalChunks:   3,
		Status:        task.LedgerStatusProcessing,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestGetTask(t *testing.T) {
	server := testServer(&fakeLedgerReader{
		ledgers: map[string]*task.Ledger{"batch-1": sampleLedger("batch-1")},
	})
	defer server.Close()

	resp, err := http.Get(server.URL + "/tasks/batch-1")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var ledger task.Ledger
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ledger))
	assert.Equal(t, "batch-1", ledger.CorrelationID)
	assert.Equal(t, task.LedgerStatusProcessing, ledger.Status)
}

func TestGetTask_NotFound(t *testing.T) {
	server := testServer(&fakeLedgerReader{ledgers: map[string]*task.Ledger{}})
	defer server.Close()

	resp, err := http.Get(server.URL + "/tasks/missing")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	var body ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "Task not found", body.Error)
	assert.NotEmpty(t, body.TraceID)
}

func TestListTasks(t *testing.T) {
	server := testServer(&fakeLedgerReader{
		ledgers: map[string]*task.Ledger{
			"batch-1": sampleLedger("batch-1"),
			"batch-2": sampleLedger("batch-2"),
		},
	})
	defer server.Close()

	resp, err := http.Get(server.URL + "/tasks")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var ledgers []*task.Ledger
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ledgers))
	assert.Len(t, ledgers, 2)
}

func TestListTasks_InvalidLimit(t *testing.T) {
	server := testServer(&fakeLedgerReader{ledgers: map[string]*task.Ledger{}})
	defer server.Close()

	for _, limit := range []string{"abc", "0", "-3"} {
		resp, err := http.Get(server.URL + "/tasks?limit=" + limit)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "limit=%s", limit)
		_ = resp.Body.Close()
	}
}

func TestListTasks_EmptyIsJSONArray(t *testing.T) {
	server := testServer(&fakeLedgerReader{ledgers: map[string]*task.Ledger{}})
	defer server.Close()

	resp, err := http.Get(server.URL + "/tasks")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var ledgers []*task.Ledger
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ledgers))
	assert.NotNil(t, ledgers)
	assert.Empty(t, ledgers)
}

func TestHealthz(t *testing.T) {
	server := testServer(&fakeLedgerReader{ledgers: map[string]*task.Ledger{}})
	defer server.Close()

	resp, err := http.Get(server.URL + "/healthz")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
