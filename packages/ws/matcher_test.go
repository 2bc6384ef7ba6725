package ws

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func textMessage(s string) Message {
	return Message{Kind: KindText, Payload: []byte(s)}
}

func TestMatchJSON(t *testing.T) {
	msg := textMessage(`{"type":"ack","id":7,"ok":true,"data":{"items":[1,2]},"none":null}`)

	tests := []struct {
		name  string
		path  string
		want  any
		match bool
	}{
		{"string", "type", "ack", true},
		{"string mismatch", "type", "nack", false},
		{"int", "id", 7, true},
		{"float", "id", 7.0, true},
		{"bool", "ok", true, true},
		{"nested", "data.items.1", 2, true},
		{"null", "none", nil, true},
		{"missing", "nope", "x", false},
		{"type mismatch", "id", "7", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.match, MatchJSON(tt.path, tt.want)(msg))
		})
	}
}

func TestMatchJSON_InvalidPayload(t *testing.T) {
	assert.False(t, MatchJSON("type", "ack")(textMessage("not json")))
	assert.False(t, MatchJSONExists("type")(textMessage("not json")))
	assert.True(t, MatchJSONExists("type")(textMessage(`{"type":1}`)))
}

func TestMatchText(t *testing.T) {
	assert.True(t, MatchText("ell")(textMessage("hello")))
	assert.False(t, MatchText("bye")(textMessage("hello")))
	assert.False(t, MatchText("hb")(Message{Kind: KindPing, Payload: []byte("hb")}))
}

func TestMatchAll(t *testing.T) {
	m := MatchAll(MatchKind(KindText), MatchText("a"))
	assert.True(t, m(textMessage("abc")))
	assert.False(t, m(Message{Kind: KindBinary, Payload: []byte("abc")}))
	assert.True(t, MatchAll()(textMessage("")))
	assert.True(t, MatchAny()(Message{}))
}
