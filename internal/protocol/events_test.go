package protocol

import (
	"strings"
	"testing"
)

func TestParseEvent_KnownKind(t *testing.T) {
	data := []byte(`{"type":"response.output_text.delta","sequence_number":7,"item_id":"item_1","delta":"hi"}`)

	ev, err := ParseEvent(data)
	if err != nil {
		t.Fatalf("ParseEvent() error = %v", err)
	}
	if ev.Kind != EventOutputTextDelta {
		t.Errorf("Kind = %v, want %v", ev.Kind, EventOutputTextDelta)
	}
	if ev.SequenceNumber != 7 {
		t.Errorf("SequenceNumber = %d, want 7", ev.SequenceNumber)
	}
	if ev.ItemID != "item_1" || ev.Delta != "hi" {
		t.Errorf("ItemID/Delta = %q/%q, want item_1/hi", ev.ItemID, ev.Delta)
	}
}

func TestParseEvent_UnknownKind(t *testing.T) {
	data := []byte(`{"type":"response.audio.delta","sequence_number":3}`)

	ev, err := ParseEvent(data)
	if err != nil {
		t.Fatalf("ParseEvent() error = %v", err)
	}
	if ev.Kind != EventUnknown {
		t.Errorf("Kind = %v, want %v", ev.Kind, EventUnknown)
	}
	if ev.Type != "response.audio.delta" {
		t.Errorf("Type = %q, want wire value preserved", ev.Type)
	}
}

func TestParseEvent_MissingFields(t *testing.T) {
	cases := []struct {
		name string
		data string
	}{
		{"no type", `{"sequence_number":0}`},
		{"no sequence_number", `{"type":"response.created"}`},
		{"not json", `{oops`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseEvent([]byte(tc.data)); err == nil {
				t.Errorf("ParseEvent(%q) error = nil, want error", tc.data)
			}
		})
	}
}

func TestParseEvent_ZeroSequenceNumberAccepted(t *testing.T) {
	ev, err := ParseEvent([]byte(`{"type":"response.created","sequence_number":0}`))
	if err != nil {
		t.Fatalf("ParseEvent() error = %v", err)
	}
	if ev.SequenceNumber != 0 {
		t.Errorf("SequenceNumber = %d, want 0", ev.SequenceNumber)
	}
}

func TestStreamEvent_ForItemID(t *testing.T) {
	withField := StreamEvent{ItemID: "item_a"}
	if got := withField.ForItemID(); got != "item_a" {
		t.Errorf("ForItemID() = %q, want item_a", got)
	}

	withPayload := StreamEvent{Item: &OutputItem{ID: "item_b"}}
	if got := withPayload.ForItemID(); got != "item_b" {
		t.Errorf("ForItemID() = %q, want item_b", got)
	}

	neither := StreamEvent{}
	if got := neither.ForItemID(); got != "" {
		t.Errorf("ForItemID() = %q, want empty", got)
	}
}

func TestViolation_String(t *testing.T) {
	v := Violationf(ViolationOrphanedDelta, "delta for %s", "item_x").
		WithContext("sequence_number", 4).
		WithContext("item_id", "item_x")

	got := v.String()
	if !strings.HasPrefix(got, "[orphaned-delta] delta for item_x") {
		t.Errorf("String() = %q, want code and message prefix", got)
	}
	// Context keys render sorted so output is deterministic.
	if !strings.HasSuffix(got, "(item_id=item_x sequence_number=4)") {
		t.Errorf("String() = %q, want sorted context suffix", got)
	}
}

func TestInput_StringOrItems(t *testing.T) {
	var fromString Input
	if err := fromString.UnmarshalJSON([]byte(`"hello"`)); err != nil {
		t.Fatalf("UnmarshalJSON(string) error = %v", err)
	}
	if fromString.Text != "hello" {
		t.Errorf("Text = %q, want hello", fromString.Text)
	}

	var fromItems Input
	itemsJSON := `[{"type":"message","role":"user","content":[{"type":"input_text","text":"hi"}]}]`
	if err := fromItems.UnmarshalJSON([]byte(itemsJSON)); err != nil {
		t.Fatalf("UnmarshalJSON(items) error = %v", err)
	}
	if len(fromItems.Items) != 1 || fromItems.Items[0].Role != "user" {
		t.Errorf("Items = %+v, want one user message", fromItems.Items)
	}
}
