package task

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelope_EncodeDecode(t *testing.T) {
	storeID := int64(4)
	original := &Envelope{
		Worker:        "item",
		Kind:          "update-item",
		CorrelationID: "batch-1",
		ChunkID:       2,
		Items: []Item{
			{Seq: 101, Payload: json.RawMessage(`{"item_id":7}`)},
			{Seq: 102, Payload: json.RawMessage(`{"item_id":8}`)},
		},
		Scope:          Scope{StoreID: &storeID},
		SystemInternal: true,
	}

	data, err := original.Encode()
	require.NoError(t, err)

	decoded, err := DecodeEnvelope(data)
	require.NoError(t, err)
	assert.Equal(t, original.Worker, decoded.Worker)
	assert.Equal(t, original.Kind, decoded.Kind)
	assert.Equal(t, original.CorrelationID, decoded.CorrelationID)
	assert.Equal(t, original.ChunkID, decoded.ChunkID)
	assert.True(t, decoded.SystemInternal)
	require.Len(t, decoded.Items, 2)
	assert.Equal(t, 101, decoded.Items[0].Seq)
	assert.JSONEq(t, `{"item_id":7}`, string(decoded.Items[0].Payload))
	require.NotNil(t, decoded.Scope.StoreID)
	assert.Equal(t, int64(4), *decoded.Scope.StoreID)
}

func TestDecodeEnvelope_RejectsInvalidMessages(t *testing.T) {
	testCases := []struct {
		name string
		data string
	}{
		{name: "not json", data: `{broken`},
		{name: "missing worker", data: `{"kind":"update-item","chunk_id":1,"items":[{"seq":1,"payload":{}}]}`},
		{name: "missing kind", data: `{"worker":"item","chunk_id":1,"items":[{"seq":1,"payload":{}}]}`},
		{name: "zero chunk id", data: `{"worker":"item","kind":"update-item","chunk_id":0,"items":[{"seq":1,"payload":{}}]}`},
		{name: "no items", data: `{"worker":"item","kind":"update-item","chunk_id":1,"items":[]}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeEnvelope([]byte(tc.data))
			assert.Error(t, err)
		})
	}
}
