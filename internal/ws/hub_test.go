package ws

import (
	"testing"

	"github.com/globalchat/internal/model"
)

func TestValidatePublish(t *testing.T) {
	ok := model.Record{SenderID: "u1", SenderName: "alice", Type: "text", Message: "hi"}
	if reason := validate(ok); reason != "" {
		t.Fatalf("valid text rejected: %s", reason)
	}

	cases := []struct {
		name string
		rec  model.Record
	}{
		{"no sender", model.Record{Type: "text", Message: "hi"}},
		{"blank name", model.Record{SenderID: "u1", SenderName: "  ", Type: "text", Message: "hi"}},
		{"empty text", model.Record{SenderID: "u1", SenderName: "alice", Type: "text", Message: "   "}},
		{"image without url", model.Record{SenderID: "u1", SenderName: "alice", Type: "image"}},
		{"audio without url", model.Record{SenderID: "u1", SenderName: "alice", Type: "audio"}},
		{"unknown type", model.Record{SenderID: "u1", SenderName: "alice", Type: "sticker", Message: "x"}},
	}
	for _, c := range cases {
		if reason := validate(c.rec); reason == "" {
			t.Fatalf("%s: must be rejected", c.name)
		}
	}

	audio := model.Record{SenderID: "u1", SenderName: "alice", Type: "audio", FileURL: "/api/audio/v.ogg"}
	if reason := validate(audio); reason != "" {
		t.Fatalf("valid audio rejected: %s", reason)
	}
}
