package protocol

import (
	"encoding/json"
	"fmt"
)

// EventKind identifies a streaming event type. The vocabulary is closed;
// types outside it decode as EventUnknown with the raw payload preserved.
type EventKind string

const (
	// Response lifecycle
	EventResponseCreated    EventKind = "response.created"
	EventResponseInProgress EventKind = "response.in_progress"
	EventResponseCompleted  EventKind = "response.completed"
	EventResponseFailed     EventKind = "response.failed"
	EventResponseIncomplete EventKind = "response.incomplete"

	// Item lifecycle
	EventOutputItemAdded EventKind = "response.output_item.added"
	EventOutputItemDone  EventKind = "response.output_item.done"

	// Content parts
	EventContentPartAdded EventKind = "response.content_part.added"
	EventContentPartDone  EventKind = "response.content_part.done"

	// Text content
	EventOutputTextDelta EventKind = "response.output_text.delta"
	EventOutputTextDone  EventKind = "response.output_text.done"

	// Tool call arguments
	EventFunctionCallArgumentsDelta EventKind = "response.function_call_arguments.delta"
	EventFunctionCallArgumentsDone  EventKind = "response.function_call_arguments.done"

	// EventUnknown carries any event type outside the vocabulary above.
	EventUnknown EventKind = "unknown"
)

var knownKinds = map[EventKind]bool{
	EventResponseCreated:            true,
	EventResponseInProgress:         true,
	EventResponseCompleted:          true,
	EventResponseFailed:             true,
	EventResponseIncomplete:         true,
	EventOutputItemAdded:            true,
	EventOutputItemDone:             true,
	EventContentPartAdded:           true,
	EventContentPartDone:            true,
	EventOutputTextDelta:            true,
	EventOutputTextDone:             true,
	EventFunctionCallArgumentsDelta: true,
	EventFunctionCallArgumentsDone:  true,
}

// StreamEvent is one decoded semantic event from a response stream.
// Kind selects which of the payload fields are meaningful; Raw always
// holds the original JSON payload.
type StreamEvent struct {
	Kind EventKind

	// Type is the literal wire value of the "type" field. For known
	// kinds it equals string(Kind); for EventUnknown it preserves
	// whatever the server sent.
	Type string

	// SequenceNumber is monotonic per stream, starting at 0.
	SequenceNumber int

	// Response is present on response lifecycle events.
	Response *Response

	// Item is present on output_item.added/done.
	Item *OutputItem

	// Part is present on content_part.added/done.
	Part *ContentPart

	// ItemID references the item for item-scoped events.
	ItemID string

	// OutputIndex is the item's slot in the output array.
	OutputIndex int

	// ContentIndex is the part's slot within the item's content.
	ContentIndex int

	// Delta holds incremental text or argument fragments.
	Delta string

	// Text holds the full text on output_text.done.
	Text string

	// Arguments holds the full arguments on function_call_arguments.done.
	Arguments string

	// Raw is the undecoded event payload.
	Raw json.RawMessage
}

// eventEnvelope mirrors the common wire shape of every streaming event.
type eventEnvelope struct {
	Type           string       `json:"type"`
	SequenceNumber *int         `json:"sequence_number"`
	Response       *Response    `json:"response,omitempty"`
	Item           *OutputItem  `json:"item,omitempty"`
	Part           *ContentPart `json:"part,omitempty"`
	ItemID         string       `json:"item_id,omitempty"`
	OutputIndex    int          `json:"output_index,omitempty"`
	ContentIndex   int          `json:"content_index,omitempty"`
	Delta          string       `json:"delta,omitempty"`
	Text           string       `json:"text,omitempty"`
	Arguments      string       `json:"arguments,omitempty"`
}

// ParseEvent decodes one event payload. The type field and a numeric
// sequence_number are required; everything else depends on the kind.
func ParseEvent(data []byte) (StreamEvent, error) {
	var env eventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return StreamEvent{}, fmt.Errorf("malformed event payload: %w", err)
	}
	if env.Type == "" {
		return StreamEvent{}, fmt.Errorf("event payload missing type field")
	}
	if env.SequenceNumber == nil {
		return StreamEvent{}, fmt.Errorf("event %q missing sequence_number", env.Type)
	}

	ev := StreamEvent{
		Kind:           EventKind(env.Type),
		Type:           env.Type,
		SequenceNumber: *env.SequenceNumber,
		Response:       env.Response,
		Item:           env.Item,
		Part:           env.Part,
		ItemID:         env.ItemID,
		OutputIndex:    env.OutputIndex,
		ContentIndex:   env.ContentIndex,
		Delta:          env.Delta,
		Text:           env.Text,
		Arguments:      env.Arguments,
		Raw:            append(json.RawMessage(nil), data...),
	}
	if !knownKinds[ev.Kind] {
		ev.Kind = EventUnknown
	}
	return ev, nil
}

// Terminal reports whether the event ends the response lifecycle.
func (e StreamEvent) Terminal() bool {
	switch e.Kind {
	case EventResponseCompleted, EventResponseFailed, EventResponseIncomplete:
		return true
	}
	return false
}

// ForItemID returns the id of the item the event refers to. For
// output_item events the id rides inside the item payload; for content
// and argument events it is the top-level item_id field.
func (e StreamEvent) ForItemID() string {
	if e.ItemID != "" {
		return e.ItemID
	}
	if e.Item != nil {
		return e.Item.ID
	}
	return ""
}

// ItemScoped reports whether the event references a single item by id.
func (e StreamEvent) ItemScoped() bool {
	switch e.Kind {
	case EventContentPartAdded, EventContentPartDone,
		EventOutputTextDelta, EventOutputTextDone,
		EventFunctionCallArgumentsDelta, EventFunctionCallArgumentsDone:
		return true
	case EventOutputItemAdded, EventOutputItemDone:
		return true
	}
	return false
}
