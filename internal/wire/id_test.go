package wire

import (
	"encoding/json"
	"testing"
)

func TestIDFromString(t *testing.T) {
	var id ID
	if err := json.Unmarshal([]byte(`"abc123"`), &id); err != nil {
		t.Fatal(err)
	}
	if id != "abc123" {
		t.Errorf("id = %q, want abc123", id)
	}
}

func TestIDFromObject(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want ID
	}{
		{"underscore", `{"_id": "u1"}`, "u1"},
		{"plain", `{"id": "u2"}`, "u2"},
		{"underscore wins", `{"_id": "u1", "id": "u2"}`, "u1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var id ID
			if err := json.Unmarshal([]byte(tt.in), &id); err != nil {
				t.Fatal(err)
			}
			if id != tt.want {
				t.Errorf("id = %q, want %q", id, tt.want)
			}
		})
	}
}

func TestIDRejectsGarbage(t *testing.T) {
	var id ID
	if err := json.Unmarshal([]byte(`42`), &id); err == nil {
		t.Error("expected error for numeric id")
	}
	if err := json.Unmarshal([]byte(`{}`), &id); err == nil {
		t.Error("expected error for empty object")
	}
}

func TestIDMarshalsAsString(t *testing.T) {
	out, err := json.Marshal(ID("m1"))
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != `"m1"` {
		t.Errorf("marshal = %s, want \"m1\"", out)
	}
}

// TestMessageDecodeMixedIDShapes covers the backend's inconsistent
// identifier emission within one payload.
func TestMessageDecodeMixedIDShapes(t *testing.T) {
	raw := `{
		"id": "m1",
		"conversationId": {"_id": "c1"},
		"senderId": {"id": "u1"},
		"receiverId": "u2",
		"body": "hello",
		"kind": "text",
		"createdAt": 1700000000000
	}`
	var m Message
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		t.Fatal(err)
	}
	if m.ID != "m1" || m.ConversationID != "c1" || m.SenderID != "u1" || m.ReceiverID != "u2" {
		t.Errorf("ids = %q %q %q %q", m.ID, m.ConversationID, m.SenderID, m.ReceiverID)
	}
	if m.CreatedAt != 1700000000000 {
		t.Errorf("createdAt = %d", m.CreatedAt)
	}
}

func TestNormalizeKind(t *testing.T) {
	if got := NormalizeKind("image"); got != KindImage {
		t.Errorf("NormalizeKind(image) = %q", got)
	}
	if got := NormalizeKind("sticker"); got != KindText {
		t.Errorf("NormalizeKind(sticker) = %q, want text", got)
	}
	if got := NormalizeKind(""); got != KindText {
		t.Errorf("NormalizeKind(\"\") = %q, want text", got)
	}
}
