package pipeline

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dayuer/castbot/internal/bus"
)

const castCreated = `{
  "created_at": 1700000000,
  "type": "cast.created",
  "data": {
    "object": "cast",
    "hash": "0xfeed",
    "parent_hash": "0xparent",
    "text": "@castbot hello there",
    "author": {"object": "user", "fid": 77, "username": "alice", "display_name": "Alice"},
    "mentioned_profiles": [{"fid": 4242, "username": "castbot"}],
    "channel": {"id": "dev"}
  }
}`

func TestParseEvent(t *testing.T) {
	ev, err := ParseEvent([]byte(castCreated))
	require.NoError(t, err)

	assert.Equal(t, bus.EventCastCreated, ev.Type)
	assert.Equal(t, "0xfeed", ev.CastHash)
	assert.Equal(t, "0xparent", ev.ParentHash)
	assert.Equal(t, "@castbot hello there", ev.Text)
	assert.Equal(t, "alice", ev.AuthorHandle)
	assert.Equal(t, uint64(77), ev.AuthorFID)
	assert.Equal(t, []string{"castbot"}, ev.MentionedHandles)
	assert.Equal(t, []uint64{4242}, ev.MentionedFIDs)
	assert.Equal(t, "dev", ev.ChannelID)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), ev.CreatedAt)
}

func TestParseEvent_ShapeErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty", ``},
		{"array", `[{"type":"cast.created"}]`},
		{"null", `null`},
		{"string", `"cast.created"`},
		{"broken json", `{"type":`},
		{"missing type", `{"data":{"hash":"0x1"}}`},
		{"unknown type", `{"type":"follow.created","data":{"hash":"0x1"}}`},
		{"missing data", `{"type":"cast.created"}`},
		{"null data", `{"type":"cast.created","data":null}`},
		{"data not object", `{"type":"cast.created","data":"0x1"}`},
		{"missing hash", `{"type":"cast.created","data":{"text":"hi"}}`},
		{"blank hash", `{"type":"cast.created","data":{"hash":"  "}}`},
		{"wrong field type", `{"type":"cast.created","data":{"hash":"0x1","author":{"fid":"x"}}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseEvent([]byte(tt.body))
			var ve *ValidationError
			require.True(t, errors.As(err, &ve), "got %v", err)
			assert.NotEmpty(t, ve.Reason)
		})
	}
}

func TestDedupKey(t *testing.T) {
	ev := InboundEvent{Type: bus.EventCastCreated, CastHash: "0xabc", AuthorFID: 9}
	assert.Equal(t, "0xabc", DedupKey(ev, KeyHash))
	assert.Equal(t, "cast.created:0xabc:9", DedupKey(ev, KeyComposite))
}

func TestState(t *testing.T) {
	assert.Equal(t, "ACKNOWLEDGED", StateAcknowledged.String())
	assert.Equal(t, "IGNORED_COOLDOWN", StateIgnoredCooldown.String())
	assert.Equal(t, "UNKNOWN", State(99).String())

	for _, s := range []State{StateDone, StateFailed, StateRejectedAuth, StateRejectedShape,
		StateRejectedDuplicate, StateRejectedRate, StateIgnoredNotMentioned, StateIgnoredCooldown} {
		assert.True(t, s.Terminal(), s.String())
	}
	for _, s := range []State{StateReceived, StateAuthenticated, StateShapeValid,
		StateAdmitted, StateAcknowledged, StateDispatched} {
		assert.False(t, s.Terminal(), s.String())
	}

	text, err := StateRejectedRate.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "REJECTED_RATE", string(text))
}
