package proto

import (
	"encoding/json"
	"testing"
)

func TestRoomDataAcceptsStringAndObject(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"bare string", `"general"`, "general"},
		{"object", `{"room":"random"}`, "random"},
		{"padded string", `  "lobby"`, "lobby"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d RoomData
			if err := json.Unmarshal([]byte(tt.raw), &d); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if d.Room != tt.want {
				t.Fatalf("got %q, want %q", d.Room, tt.want)
			}
		})
	}
}

func TestDecodeData(t *testing.T) {
	var in Inbound
	if err := json.Unmarshal([]byte(`{"type":"typing","data":{"room":"general","isTyping":false}}`), &in); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}

	var data TypingData
	if err := DecodeData(&in, &data); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if data.Room != "general" || data.IsTyping == nil || *data.IsTyping {
		t.Fatalf("unexpected typing data: %+v", data)
	}

	if err := DecodeData(&Inbound{Type: "join_room"}, &RoomData{}); err == nil {
		t.Fatalf("expected error for missing data")
	}
}
