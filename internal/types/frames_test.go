package types

import (
	"encoding/json"
	"testing"
)

func TestClientFrameModelsAcceptsList(t *testing.T) {
	var f ClientFrame
	data := []byte(`{"type":"message","chat_id":"c1","content":"hi","models":["a","b"]}`)
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(f.Models) != 2 || f.Models[0] != "a" || f.Models[1] != "b" {
		t.Errorf("models = %v", f.Models)
	}
}

func TestClientFrameModelsAcceptsSingleString(t *testing.T) {
	var f ClientFrame
	data := []byte(`{"type":"message","chat_id":"c1","content":"hi","models":"a"}`)
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(f.Models) != 1 || f.Models[0] != "a" {
		t.Errorf("models = %v", f.Models)
	}
}

func TestClientFrameModelsRejectsOtherShapes(t *testing.T) {
	var f ClientFrame
	if err := json.Unmarshal([]byte(`{"type":"message","models":42}`), &f); err == nil {
		t.Error("numeric models accepted")
	}
	if err := json.Unmarshal([]byte(`{"type":"message","models":{"a":1}}`), &f); err == nil {
		t.Error("object models accepted")
	}
}

func TestMessageFrameOmitsEmptyModel(t *testing.T) {
	data, err := json.Marshal(MessageFrame{
		Type:      ServerMessage,
		ChatID:    "c1",
		MessageID: "m1",
		UserID:    "u1",
		Content:   "hi",
		Timestamp: "2026-01-01T00:00:00Z",
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]any
	_ = json.Unmarshal(data, &raw)
	if _, present := raw["model"]; present {
		t.Error("empty model field serialized")
	}
}

func TestFrameConstructorsSetType(t *testing.T) {
	if got := Hello("1.0", "u1").Type; got != ServerHello {
		t.Errorf("hello type = %q", got)
	}
	if got := Subscribed("c1").Type; got != ServerSubscribed {
		t.Errorf("subscribed type = %q", got)
	}
	if got := Unsubscribed("c1").Type; got != ServerUnsubscribed {
		t.Errorf("unsubscribed type = %q", got)
	}
	if got := Typing("c1", "u1", true).Type; got != ServerTyping {
		t.Errorf("typing type = %q", got)
	}
	if got := Error("boom").Type; got != ServerError {
		t.Errorf("error type = %q", got)
	}
}
