// Package stream decodes a raw SSE response body into the ordered
// sequence of semantic events defined by the protocol. It knows the SSE
// framing and the event envelope, nothing about pass/fail policy.
package stream

import (
	"bufio"
	"io"
	"strings"

	"github.com/vinhnx/openresponses/internal/protocol"
)

const (
	initialBufSize = 64 * 1024
	maxFrameSize   = 1024 * 1024
)

// Decode drains the body and returns every decoded event in arrival
// order. A malformed frame or a read error ends the sequence early and
// is reported as a single terminal violation; events decoded before the
// failure are still returned so partial evidence is preserved.
func Decode(body io.Reader) ([]protocol.StreamEvent, *protocol.Violation) {
	scanner := bufio.NewScanner(body)
	buf := make([]byte, 0, initialBufSize)
	scanner.Buffer(buf, maxFrameSize)

	var events []protocol.StreamEvent
	var currentEvent string
	var currentData strings.Builder

	dispatch := func() *protocol.Violation {
		defer func() {
			currentEvent = ""
			currentData.Reset()
		}()

		if currentData.Len() == 0 {
			return nil
		}
		data := currentData.String()
		if data == "[DONE]" {
			// Sentinel used by the sibling chat protocol; tolerated
			// here rather than treated as framing garbage.
			return nil
		}

		ev, err := protocol.ParseEvent([]byte(data))
		if err != nil {
			v := protocol.Violationf(protocol.ViolationMalformedEvent, "%v", err).
				WithContext("data", truncate(data, 200))
			return &v
		}
		// The event: field and the payload type must agree when both
		// are present. A mismatch means the framing cannot be trusted.
		if currentEvent != "" && currentEvent != ev.Type {
			v := protocol.Violationf(protocol.ViolationMalformedEvent,
				"SSE event name %q does not match payload type %q", currentEvent, ev.Type)
			return &v
		}
		events = append(events, ev)
		return nil
	}

	for scanner.Scan() {
		line := scanner.Text()

		// Blank line ends the frame
		if line == "" {
			if v := dispatch(); v != nil {
				return events, v
			}
			continue
		}

		if strings.HasPrefix(line, "event:") {
			currentEvent = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			continue
		}

		if strings.HasPrefix(line, "data:") {
			currentData.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
			continue
		}

		// Comment lines and unknown fields are ignored per SSE
		if strings.HasPrefix(line, ":") {
			continue
		}
	}

	if err := scanner.Err(); err != nil {
		v := protocol.Violationf(protocol.ViolationStreamRead, "stream read error: %v", err)
		return events, &v
	}

	// Flush a final frame missing its trailing blank line
	if v := dispatch(); v != nil {
		return events, v
	}

	return events, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
