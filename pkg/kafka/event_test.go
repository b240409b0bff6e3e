package kafka

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvent_Fields(t *testing.T) {
	type reservationData struct {
		ReservationID string `json:"reservation_id"`
		Qty           int    `json:"qty"`
	}

	data := reservationData{ReservationID: "res-123", Qty: 3}
	event, err := NewEvent("reservations.reservation-created", "res-123", "reservation", "reservation-service", data)
	require.NoError(t, err)

	assert.NotEmpty(t, event.EventID, "EventID should be a non-empty UUID")
	assert.Equal(t, "reservations.reservation-created", event.EventType)
	assert.Equal(t, "res-123", event.AggregateID)
	assert.Equal(t, "reservation", event.AggregateType)
	assert.Equal(t, "reservation-service", event.Source)
	assert.Equal(t, 1, event.Version)
	assert.InDelta(t, time.Now().UnixMilli(), event.TimestampMs, 2000)
	assert.NotNil(t, event.Metadata)

	var got reservationData
	require.NoError(t, json.Unmarshal(event.Data, &got))
	assert.Equal(t, data, got)
}

func TestNewEvent_UnserializableData(t *testing.T) {
	// Channels are not serializable to JSON.
	_, err := NewEvent("reservations.reservation-created", "res-1", "reservation", "reservation-service", make(chan int))
	require.Error(t, err)
}

func TestEvent_MarshalRoundTrip(t *testing.T) {
	original, err := NewEvent("reservations.stock-adjusted", "itm-1", "item", "reservation-service", map[string]int{"delta": -2})
	require.NoError(t, err)
	original.WithCorrelationID("req-abc").WithMetadata("actor", "ops")

	raw, err := original.Marshal()
	require.NoError(t, err)

	restored, err := UnmarshalEvent(raw)
	require.NoError(t, err)
	assert.Equal(t, original.EventID, restored.EventID)
	assert.Equal(t, original.EventType, restored.EventType)
	assert.Equal(t, original.AggregateID, restored.AggregateID)
	assert.Equal(t, original.TimestampMs, restored.TimestampMs)
	assert.Equal(t, original.CorrelationID, restored.CorrelationID)
	assert.Equal(t, original.Metadata, restored.Metadata)
	assert.JSONEq(t, string(original.Data), string(restored.Data))
}

func TestEvent_WithCorrelationID_Chains(t *testing.T) {
	event, err := NewEvent("reservations.item-created", "itm-9", "item", "reservation-service", nil)
	require.NoError(t, err)

	result := event.WithCorrelationID("req-xyz")
	assert.Same(t, event, result)
	assert.Equal(t, "req-xyz", event.CorrelationID)
}

func TestEvent_WithMetadata_NilMap(t *testing.T) {
	event := &Event{EventID: "e-1", Metadata: nil}
	event.WithMetadata("key", "value")
	require.NotNil(t, event.Metadata)
	assert.Equal(t, "value", event.Metadata["key"])
}

func TestEvent_UnmarshalData(t *testing.T) {
	type stockPayload struct {
		ItemID string `json:"item_id"`
		Delta  int    `json:"delta"`
	}

	payload := stockPayload{ItemID: "itm-4", Delta: 25}
	event, err := NewEvent("reservations.stock-adjusted", "itm-4", "item", "reservation-service", payload)
	require.NoError(t, err)

	var target stockPayload
	require.NoError(t, event.UnmarshalData(&target))
	assert.Equal(t, payload, target)
}

func TestUnmarshalEvent_InvalidJSON(t *testing.T) {
	_, err := UnmarshalEvent([]byte(`{broken`))
	require.Error(t, err)

	_, err = UnmarshalEvent(nil)
	require.Error(t, err)
}

func TestUnmarshalEvent_MissingEnvelopeFields(t *testing.T) {
	_, err := UnmarshalEvent([]byte(`{"data":{"reservationId":"res-1"}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing event_id or event_type")
}
