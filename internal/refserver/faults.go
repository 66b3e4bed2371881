package refserver

// Faults selects deliberate protocol violations for the streaming path.
// The zero value is fully compliant behavior. Each knob maps to one
// tracker violation so the engine can be exercised end-to-end against
// known-bad servers.
type Faults struct {
	// DropItemAdded skips output_item.added, orphaning every delta.
	DropItemAdded bool

	// DuplicateItemDone sends output_item.done twice for each item.
	DuplicateItemDone bool

	// ResetSequence restarts sequence numbering mid-stream.
	ResetSequence bool

	// SkipCompleted ends the stream without a terminal response event,
	// leaving items dangling from the tracker's point of view.
	SkipCompleted bool

	// EmitUnknownEvent inserts an event type outside the vocabulary.
	// This is legal provider extension, not a violation.
	EmitUnknownEvent bool

	// DeltaAfterDone sends one more text delta after the item's
	// terminal transition.
	DeltaAfterDone bool

	// MalformedEvent emits a frame whose payload is not valid JSON.
	MalformedEvent bool

	// OmitUsage drops usage from final responses.
	OmitUsage bool
}

// Any reports whether at least one fault is enabled.
func (f Faults) Any() bool {
	return f != Faults{}
}
