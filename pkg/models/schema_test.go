package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateMessageEnvelope(t *testing.T) {
	valid := func() *MessageEnvelope {
		return &MessageEnvelope{
			ID:        "msg-1",
			Source:    "telegram",
			Timestamp: time.Now().UTC(),
			Payload:   map[string]interface{}{"text": "привет"},
		}
	}

	require.NoError(t, ValidateMessageEnvelope(valid()))

	err := ValidateMessageEnvelope(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "envelope")

	msg := valid()
	msg.ID = ""
	err = ValidateMessageEnvelope(msg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "id")

	msg = valid()
	msg.Source = ""
	assert.Error(t, ValidateMessageEnvelope(msg))

	msg = valid()
	msg.Timestamp = time.Time{}
	assert.Error(t, ValidateMessageEnvelope(msg))

	msg = valid()
	msg.Payload = nil
	assert.Error(t, ValidateMessageEnvelope(msg))
}

func TestGetPayloadString(t *testing.T) {
	msg := &MessageEnvelope{
		Payload: map[string]interface{}{
			"text":    "АЗС 123",
			"chat_id": float64(42),
		},
	}

	assert.Equal(t, "АЗС 123", msg.GetPayloadString("text"))
	assert.Equal(t, "", msg.GetPayloadString("missing"))
	assert.Equal(t, "", msg.GetPayloadString("chat_id"))
}

func TestGetPayloadInt64(t *testing.T) {
	msg := &MessageEnvelope{
		Payload: map[string]interface{}{
			"from_json": float64(1234567),
			"from_int":  int(55),
			"typed":     int64(-9000),
			"text":      "not a number",
		},
	}

	v, ok := msg.GetPayloadInt64("from_json")
	require.True(t, ok)
	assert.Equal(t, int64(1234567), v)

	v, ok = msg.GetPayloadInt64("from_int")
	require.True(t, ok)
	assert.Equal(t, int64(55), v)

	v, ok = msg.GetPayloadInt64("typed")
	require.True(t, ok)
	assert.Equal(t, int64(-9000), v)

	_, ok = msg.GetPayloadInt64("text")
	assert.False(t, ok)

	_, ok = msg.GetPayloadInt64("missing")
	assert.False(t, ok)
}

func TestSetPayloadFieldInitializesMap(t *testing.T) {
	msg := &MessageEnvelope{}
	msg.SetPayloadField("chat_id", int64(7))

	v, ok := msg.GetPayloadInt64("chat_id")
	require.True(t, ok)
	assert.Equal(t, int64(7), v)
}

func TestBuilderDefaults(t *testing.T) {
	msg := NewMessageEnvelopeBuilder().
		WithID("msg-2").
		WithSource("telegram").
		WithPayload(map[string]interface{}{"text": "ок"}).
		Build()

	require.NoError(t, ValidateMessageEnvelope(msg))
	assert.False(t, msg.Timestamp.IsZero())
}
