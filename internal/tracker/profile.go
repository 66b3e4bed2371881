package tracker

// Profile carries the tunable protocol rules. The authoritative event
// vocabulary and ordering rules belong to the protocol's own schema and
// providers may extend them, so the strict knobs live here rather than
// being hard-coded into the state machines.
type Profile struct {
	// AllowSequenceGaps accepts non-contiguous sequence numbers as
	// long as they stay strictly increasing.
	AllowSequenceGaps bool

	// RequireArgumentsDoneBeforeItemDone enforces that a function_call
	// item's arguments are finalized before the item itself completes.
	RequireArgumentsDoneBeforeItemDone bool
}

// DefaultProfile matches the current protocol schema: contiguous
// sequence numbers and argument completion before item completion.
func DefaultProfile() Profile {
	return Profile{
		AllowSequenceGaps:                  false,
		RequireArgumentsDoneBeforeItemDone: true,
	}
}
