package protocol

import (
	"fmt"
	"sort"
	"strings"
)

// Violation codes. Parser-level and tracker-level codes share one
// namespace so results can report them uniformly.
const (
	ViolationMalformedEvent     = "malformed-event"
	ViolationStreamRead         = "stream-read-error"
	ViolationOrphanedDelta      = "orphaned-delta"
	ViolationDeltaAfterTerminal = "delta-after-terminal"
	ViolationDuplicateTerminal  = "duplicate-terminal"
	ViolationDanglingItem       = "dangling-item"
	ViolationDuplicateSequence  = "duplicate-sequence"
	ViolationNonMonotonicSeq    = "non-monotonic-sequence"
	ViolationSequenceStart      = "sequence-start"
	ViolationSequenceGap        = "sequence-gap"
	ViolationMissingCreated     = "missing-created"
	ViolationDuplicateCreated   = "duplicate-created"
	ViolationDuplicateItem      = "duplicate-item-added"
	ViolationIncompleteItems    = "completed-with-open-items"
	ViolationEventAfterTerminal = "event-after-terminal"
	ViolationArgsNotDone        = "arguments-not-done"
	ViolationAssertion          = "assertion"
)

// Violation records one detected deviation from the protocol's invariants
// or from a template's expectation.
type Violation struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Context map[string]any `json:"context,omitempty"`
}

// Violationf builds a Violation with a formatted message.
func Violationf(code, format string, args ...any) Violation {
	return Violation{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithContext returns a copy of the violation with one context key set.
func (v Violation) WithContext(key string, value any) Violation {
	ctx := make(map[string]any, len(v.Context)+1)
	for k, val := range v.Context {
		ctx[k] = val
	}
	ctx[key] = value
	v.Context = ctx
	return v
}

// String renders the violation for inclusion in a result's error list.
func (v Violation) String() string {
	if len(v.Context) == 0 {
		return fmt.Sprintf("[%s] %s", v.Code, v.Message)
	}
	keys := make([]string, 0, len(v.Context))
	for k := range v.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v.Context[k]))
	}
	return fmt.Sprintf("[%s] %s (%s)", v.Code, v.Message, strings.Join(parts, " "))
}
