// Package tracker reconstructs response and item lifecycles from a
// captured event sequence and reports every point where the sequence
// breaks the protocol's invariants. It is pure: the same sequence always
// yields the same outcome.
package tracker

import (
	"sort"

	"github.com/vinhnx/openresponses/internal/protocol"
)

// ItemState is the lifecycle state of one output item.
type ItemState string

const (
	ItemPending    ItemState = "pending"
	ItemInProgress ItemState = "in_progress"
	ItemCompleted  ItemState = "completed"
	ItemFailed     ItemState = "failed"
)

// Terminal reports whether the state is final.
func (s ItemState) Terminal() bool {
	return s == ItemCompleted || s == ItemFailed
}

// ResponseState is the lifecycle state of the response itself.
type ResponseState string

const (
	ResponseUnknown    ResponseState = "unknown"
	ResponseCreated    ResponseState = "created"
	ResponseInProgress ResponseState = "in_progress"
	ResponseCompleted  ResponseState = "completed"
	ResponseFailed     ResponseState = "failed"
	ResponseIncomplete ResponseState = "incomplete"
)

// Terminal reports whether the state is final.
func (s ResponseState) Terminal() bool {
	switch s {
	case ResponseCompleted, ResponseFailed, ResponseIncomplete:
		return true
	}
	return false
}

// Item is the reconstructed record for one output item id.
type Item struct {
	ID          string
	Type        string
	State       ItemState
	OutputIndex int

	// Text accumulates output_text deltas for message items.
	Text string

	// Arguments accumulates function_call_arguments deltas.
	Arguments string

	// ArgumentsDone is set by function_call_arguments.done.
	ArgumentsDone bool

	// Final is the item payload from output_item.done, when seen.
	Final *protocol.OutputItem
}

// Outcome is the result of tracking one event sequence.
type Outcome struct {
	Response ResponseState

	// FinalResponse is the response payload carried by the terminal
	// lifecycle event, when one was seen.
	FinalResponse *protocol.Response

	// Items maps item id to its reconstructed record.
	Items map[string]*Item

	Violations []protocol.Violation
}

// AllItemsTerminal reports whether every tracked item reached a terminal
// state.
func (o *Outcome) AllItemsTerminal() bool {
	for _, it := range o.Items {
		if !it.State.Terminal() {
			return false
		}
	}
	return true
}

// Track replays events against fresh response and item state machines.
// Violations never stop tracking: the goal is to collect every piece of
// non-compliance evidence in one pass.
func Track(events []protocol.StreamEvent, profile Profile) *Outcome {
	t := &runState{
		profile:  profile,
		outcome:  &Outcome{Response: ResponseUnknown, Items: make(map[string]*Item)},
		reported: make(map[string]bool),
	}

	ordered := t.order(events)
	for _, ev := range ordered {
		t.apply(ev)
	}
	t.finish()
	return t.outcome
}

type runState struct {
	profile  Profile
	outcome  *Outcome
	reported map[string]bool // item ids already reported as open
}

func (t *runState) violate(v protocol.Violation) {
	t.outcome.Violations = append(t.outcome.Violations, v)
}

// order verifies sequence numbering and returns events in monotonic
// order. Duplicate numbers are a hard violation since ordering cannot be
// trusted; unique out-of-order numbers are re-sorted so downstream logic
// always sees monotonic order, with the reordering itself recorded.
func (t *runState) order(events []protocol.StreamEvent) []protocol.StreamEvent {
	if len(events) == 0 {
		return nil
	}

	seen := make(map[int]bool, len(events))
	sorted := true
	for i, ev := range events {
		if seen[ev.SequenceNumber] {
			t.violate(protocol.Violationf(protocol.ViolationDuplicateSequence,
				"sequence_number %d appears more than once", ev.SequenceNumber).
				WithContext("type", ev.Type))
		}
		seen[ev.SequenceNumber] = true
		if i > 0 && ev.SequenceNumber < events[i-1].SequenceNumber {
			sorted = false
		}
	}

	ordered := events
	if !sorted {
		t.violate(protocol.Violationf(protocol.ViolationNonMonotonicSeq,
			"events arrived out of sequence_number order"))
		ordered = make([]protocol.StreamEvent, len(events))
		copy(ordered, events)
		sort.SliceStable(ordered, func(i, j int) bool {
			return ordered[i].SequenceNumber < ordered[j].SequenceNumber
		})
	}

	if ordered[0].SequenceNumber != 0 {
		t.violate(protocol.Violationf(protocol.ViolationSequenceStart,
			"first sequence_number is %d, want 0", ordered[0].SequenceNumber))
	}
	if !t.profile.AllowSequenceGaps {
		for i := 1; i < len(ordered); i++ {
			prev, cur := ordered[i-1].SequenceNumber, ordered[i].SequenceNumber
			if cur != prev && cur != prev+1 {
				t.violate(protocol.Violationf(protocol.ViolationSequenceGap,
					"sequence_number jumps from %d to %d", prev, cur))
			}
		}
	}

	return ordered
}

func (t *runState) apply(ev protocol.StreamEvent) {
	out := t.outcome

	if out.Response.Terminal() && ev.Kind != protocol.EventUnknown {
		t.violate(protocol.Violationf(protocol.ViolationEventAfterTerminal,
			"event %s after response reached %s", ev.Type, out.Response).
			WithContext("sequence_number", ev.SequenceNumber))
		return
	}

	switch ev.Kind {
	case protocol.EventResponseCreated:
		if out.Response != ResponseUnknown {
			t.violate(protocol.Violationf(protocol.ViolationDuplicateCreated,
				"response.created seen twice"))
			return
		}
		out.Response = ResponseCreated

	case protocol.EventResponseInProgress:
		if out.Response == ResponseUnknown {
			t.missingCreated(ev)
		}
		out.Response = ResponseInProgress

	case protocol.EventResponseCompleted, protocol.EventResponseFailed, protocol.EventResponseIncomplete:
		t.applyResponseTerminal(ev)

	case protocol.EventOutputItemAdded:
		t.applyItemAdded(ev)

	case protocol.EventOutputItemDone:
		t.applyItemDone(ev)

	case protocol.EventContentPartAdded, protocol.EventContentPartDone,
		protocol.EventOutputTextDelta, protocol.EventOutputTextDone,
		protocol.EventFunctionCallArgumentsDelta, protocol.EventFunctionCallArgumentsDone:
		t.applyItemDelta(ev)

	case protocol.EventUnknown:
		// Forward compatibility: unknown event types consume a
		// sequence number but do not advance any state machine.
	}
}

func (t *runState) missingCreated(ev protocol.StreamEvent) {
	if t.reported["@created"] {
		return
	}
	t.reported["@created"] = true
	t.violate(protocol.Violationf(protocol.ViolationMissingCreated,
		"%s seen before response.created", ev.Type))
}

func (t *runState) applyResponseTerminal(ev protocol.StreamEvent) {
	out := t.outcome
	if out.Response == ResponseUnknown {
		t.missingCreated(ev)
	}

	switch ev.Kind {
	case protocol.EventResponseCompleted:
		out.Response = ResponseCompleted
	case protocol.EventResponseFailed:
		out.Response = ResponseFailed
	case protocol.EventResponseIncomplete:
		out.Response = ResponseIncomplete
	}
	out.FinalResponse = ev.Response

	// A completed response requires every tracked item to be terminal.
	if ev.Kind == protocol.EventResponseCompleted {
		for _, id := range t.sortedItemIDs() {
			it := out.Items[id]
			if !it.State.Terminal() {
				t.reported[id] = true
				t.violate(protocol.Violationf(protocol.ViolationIncompleteItems,
					"response.completed while item %s is still %s", id, it.State).
					WithContext("item_id", id))
			}
		}
	}
}

func (t *runState) applyItemAdded(ev protocol.StreamEvent) {
	out := t.outcome
	if out.Response == ResponseUnknown {
		t.missingCreated(ev)
	}

	id := ev.ForItemID()
	if id == "" {
		t.violate(protocol.Violationf(protocol.ViolationMalformedEvent,
			"output_item.added without an item id").
			WithContext("sequence_number", ev.SequenceNumber))
		return
	}
	if _, ok := out.Items[id]; ok {
		t.violate(protocol.Violationf(protocol.ViolationDuplicateItem,
			"item %s added twice", id).WithContext("item_id", id))
		return
	}

	it := &Item{ID: id, State: ItemInProgress, OutputIndex: ev.OutputIndex}
	if ev.Item != nil {
		it.Type = ev.Item.Type
		// A pending sub-phase is only honored when the event says so
		// explicitly; otherwise added means the item is being produced.
		if ev.Item.Status == "pending" {
			it.State = ItemPending
		}
	}
	out.Items[id] = it
}

func (t *runState) applyItemDelta(ev protocol.StreamEvent) {
	id := ev.ForItemID()
	it, ok := t.outcome.Items[id]
	if !ok {
		t.violate(protocol.Violationf(protocol.ViolationOrphanedDelta,
			"%s references item %q that was never added", ev.Type, id).
			WithContext("sequence_number", ev.SequenceNumber))
		return
	}
	if it.State.Terminal() {
		t.violate(protocol.Violationf(protocol.ViolationDeltaAfterTerminal,
			"%s for item %s after it reached %s", ev.Type, id, it.State).
			WithContext("item_id", id))
		return
	}
	if it.State == ItemPending {
		it.State = ItemInProgress
	}

	switch ev.Kind {
	case protocol.EventOutputTextDelta:
		it.Text += ev.Delta
	case protocol.EventOutputTextDone:
		if ev.Text != "" {
			it.Text = ev.Text
		}
	case protocol.EventFunctionCallArgumentsDelta:
		it.Arguments += ev.Delta
	case protocol.EventFunctionCallArgumentsDone:
		if ev.Arguments != "" {
			it.Arguments = ev.Arguments
		}
		it.ArgumentsDone = true
	}
}

func (t *runState) applyItemDone(ev protocol.StreamEvent) {
	id := ev.ForItemID()
	it, ok := t.outcome.Items[id]
	if !ok {
		t.violate(protocol.Violationf(protocol.ViolationOrphanedDelta,
			"output_item.done references item %q that was never added", id).
			WithContext("sequence_number", ev.SequenceNumber))
		return
	}
	if it.State.Terminal() {
		t.violate(protocol.Violationf(protocol.ViolationDuplicateTerminal,
			"second terminal transition for item %s", id).
			WithContext("item_id", id))
		return
	}

	if t.profile.RequireArgumentsDoneBeforeItemDone &&
		(it.Type == "function_call" || (ev.Item != nil && ev.Item.Type == "function_call")) &&
		!it.ArgumentsDone {
		t.violate(protocol.Violationf(protocol.ViolationArgsNotDone,
			"function_call item %s done before function_call_arguments.done", id).
			WithContext("item_id", id))
	}

	it.State = ItemCompleted
	if ev.Item != nil {
		it.Final = ev.Item
		if it.Type == "" {
			it.Type = ev.Item.Type
		}
		switch ev.Item.Status {
		case "failed", "incomplete":
			it.State = ItemFailed
		}
		if ev.Item.Arguments != "" {
			it.Arguments = ev.Item.Arguments
		}
	}
}

// finish runs the end-of-stream checks: every added item must have
// reached a terminal state by the time the stream ends.
func (t *runState) finish() {
	for _, id := range t.sortedItemIDs() {
		it := t.outcome.Items[id]
		if !it.State.Terminal() && !t.reported[id] {
			t.violate(protocol.Violationf(protocol.ViolationDanglingItem,
				"item %s never reached a terminal state", id).
				WithContext("item_id", id).
				WithContext("state", string(it.State)))
		}
	}
}

func (t *runState) sortedItemIDs() []string {
	ids := make([]string, 0, len(t.outcome.Items))
	for id := range t.outcome.Items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
