package eventbus_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davinciframework/davinci-go/eventbus"
)

func TestNewEvent(t *testing.T) {
	event := eventbus.New("user_created", map[string]any{"user_id": "u1"})

	assert.NotEmpty(t, event.EventID)
	assert.Equal(t, "user_created", event.EventType)
	assert.False(t, event.Created.IsZero())
	assert.Empty(t, event.PreviousEventID)
}

func TestEventJSONRoundTrip(t *testing.T) {
	event := eventbus.New("user_created", map[string]any{"user_id": "u1"})

	raw, err := event.ToJSON()
	require.NoError(t, err)

	decoded, err := eventbus.ParseEvent(raw)
	require.NoError(t, err)
	assert.Equal(t, event.EventID, decoded.EventID)
	assert.Equal(t, event.EventType, decoded.EventType)
	assert.Equal(t, map[string]any{"user_id": "u1"}, decoded.Body)
}

func TestEventJSONKeys(t *testing.T) {
	event := eventbus.New("user_created", nil)

	raw, err := event.ToJSON()
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	assert.Contains(t, fields, "event_id")
	assert.Contains(t, fields, "event_type")
	assert.Contains(t, fields, "body")
	assert.Contains(t, fields, "created")
	assert.NotContains(t, fields, "previous_event_id")
}

func TestEventChaining(t *testing.T) {
	first := eventbus.New("user_created", nil)
	second := first.Next("welcome_email_requested", map[string]any{"user_id": "u1"})

	assert.Equal(t, first.EventID, second.PreviousEventID)
	assert.NotEqual(t, first.EventID, second.EventID)
	assert.Equal(t, "welcome_email_requested", second.EventType)
}

func TestParseEventRejectsMissingType(t *testing.T) {
	_, err := eventbus.ParseEvent([]byte(`{"event_id": "abc"}`))
	require.Error(t, err)

	_, err = eventbus.ParseEvent([]byte(`not json`))
	require.Error(t, err)
}
