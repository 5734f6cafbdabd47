package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeCarriesTypeAndTime(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ev := New(SessionStarted, at, map[string]interface{}{"display_id": "S0001"})

	raw, err := json.Marshal(ToEnvelope(ev))
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(raw, &env))

	back := env.Event()
	assert.Equal(t, SessionStarted, back.EventType())
	assert.True(t, at.Equal(back.Timestamp()))
	assert.Equal(t, "S0001", back.Payload()["display_id"])
}

func TestNewNeverHasNilPayload(t *testing.T) {
	assert.NotNil(t, New(SessionEnded, time.Now(), nil).Payload())
}
