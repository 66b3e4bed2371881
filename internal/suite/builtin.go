package suite

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/vinhnx/openresponses/internal/config"
	"github.com/vinhnx/openresponses/internal/protocol"
	"github.com/vinhnx/openresponses/internal/tracker"
	"github.com/vinhnx/openresponses/internal/transport"
)

// weatherTool is the function definition used by the tool-call templates.
var weatherTool = protocol.Tool{
	Type:        "function",
	Name:        "get_weather",
	Description: "Get the current weather for a location.",
	Parameters: json.RawMessage(`{
		"type": "object",
		"properties": {
			"location": {"type": "string", "description": "City name"}
		},
		"required": ["location"]
	}`),
}

// builtins is the registry, in registration order. IDs are stable:
// external callers filter and report by them.
var builtins = []Template{
	{
		ID:   "basic",
		Name: "Non-streaming round trip",
		Build: func(cfg config.TestConfig) transport.RequestSpec {
			return buildSpec(cfg, protocol.Request{
				Model: cfg.Model,
				Input: protocol.Input{Text: "Reply with exactly the word: pong"},
			})
		},
		Evaluate: evaluateBasic,
	},
	{
		ID:   "stream",
		Name: "Streaming round trip (semantic events)",
		Build: func(cfg config.TestConfig) transport.RequestSpec {
			return buildSpec(cfg, protocol.Request{
				Model:  cfg.Model,
				Input:  protocol.Input{Text: "Count from one to five, as words."},
				Stream: true,
			})
		},
		Evaluate: evaluateStream,
	},
	{
		ID:   "tool-call",
		Name: "Tool call emission over stream",
		Build: func(cfg config.TestConfig) transport.RequestSpec {
			return buildSpec(cfg, protocol.Request{
				Model:      cfg.Model,
				Input:      protocol.Input{Text: "What is the weather in Paris right now?"},
				Tools:      []protocol.Tool{weatherTool},
				ToolChoice: "required",
				Stream:     true,
			})
		},
		Evaluate: evaluateToolCall,
	},
	{
		ID:   "tool-turn",
		Name: "Tool result continuation",
		Build: func(cfg config.TestConfig) transport.RequestSpec {
			return buildSpec(cfg, protocol.Request{
				Model: cfg.Model,
				Tools: []protocol.Tool{weatherTool},
				Input: protocol.Input{Items: []protocol.InputItem{
					{
						Type: "message",
						Role: "user",
						Content: []protocol.ContentPart{
							{Type: "input_text", Text: "What is the weather in Paris right now?"},
						},
					},
					{
						Type:      "function_call",
						CallID:    "call_compliance_0001",
						Name:      "get_weather",
						Arguments: `{"location":"Paris"}`,
					},
					{
						Type:   "function_call_output",
						CallID: "call_compliance_0001",
						Output: `{"temperature_c": 18, "conditions": "partly cloudy"}`,
					},
				}},
			})
		},
		Evaluate: evaluateToolTurn,
	},
	{
		ID:   "auth-shape",
		Name: "Authentication rejection shape",
		Build: func(cfg config.TestConfig) transport.RequestSpec {
			body, _ := json.Marshal(protocol.Request{
				Model: cfg.Model,
				Input: protocol.Input{Text: "ping"},
			})
			h := http.Header{}
			credential := "sk-compliance-invalid-credential"
			if cfg.BearerPrefix {
				credential = "Bearer " + credential
			}
			h.Set(cfg.AuthHeader, credential)
			return transport.RequestSpec{
				Method: http.MethodPost,
				URL:    responsesURL(cfg),
				Header: h,
				Body:   body,
			}
		},
		Evaluate:            evaluateAuthShape,
		AllowTransportError: true,
	},
	{
		ID:   "usage",
		Name: "Usage accounting",
		Build: func(cfg config.TestConfig) transport.RequestSpec {
			return buildSpec(cfg, protocol.Request{
				Model: cfg.Model,
				Input: protocol.Input{Text: "Reply with exactly the word: pong"},
			})
		},
		Evaluate: evaluateUsage,
	},
	{
		ID:   "error-shape",
		Name: "Error body shape for an unknown model",
		Build: func(cfg config.TestConfig) transport.RequestSpec {
			return buildSpec(cfg, protocol.Request{
				Model: "compliance-nonexistent-model",
				Input: protocol.Input{Text: "ping"},
			})
		},
		Evaluate:            evaluateErrorShape,
		AllowTransportError: true,
	},
	{
		ID:   "stream-final",
		Name: "Final response consistency over stream",
		Build: func(cfg config.TestConfig) transport.RequestSpec {
			return buildSpec(cfg, protocol.Request{
				Model:  cfg.Model,
				Input:  protocol.Input{Text: "Name three primary colors."},
				Stream: true,
			})
		},
		Evaluate: evaluateStreamFinal,
	},
}

// parseResponse decodes the final body, reporting shape problems as
// assertion violations.
func parseResponse(ev *Evaluation) (*protocol.Response, []protocol.Violation) {
	var resp protocol.Response
	if err := json.Unmarshal(ev.Exchange.Body, &resp); err != nil {
		return nil, []protocol.Violation{fail("final body is not a response object: %v", err)}
	}
	var violations []protocol.Violation
	if resp.Object != "response" {
		violations = append(violations, fail("object = %q, want %q", resp.Object, "response"))
	}
	if resp.ID == "" {
		violations = append(violations, fail("response id is empty"))
	}
	return &resp, violations
}

func evaluateBasic(ev *Evaluation) []protocol.Violation {
	resp, violations := parseResponse(ev)
	if resp == nil {
		return violations
	}
	if resp.Status != protocol.StatusCompleted {
		violations = append(violations, fail("status = %q, want %q", resp.Status, protocol.StatusCompleted))
	}
	if resp.Model == "" {
		violations = append(violations, fail("model is empty"))
	}
	if len(resp.Output) == 0 {
		violations = append(violations, fail("output is empty"))
		return violations
	}
	text := outputText(resp.Output)
	if text == "" {
		violations = append(violations, fail("no message item with output_text content"))
	}
	return violations
}

// evaluateStream asserts on the reconstructed lifecycle only. Raw text
// deltas are never matched against expected prose: the protocol's design
// goal is predictable client behavior through semantic events.
func evaluateStream(ev *Evaluation) []protocol.Violation {
	var violations []protocol.Violation
	out := ev.Outcome
	if out == nil {
		return []protocol.Violation{fail("no tracked outcome for streaming exchange")}
	}
	if len(ev.Exchange.Events) == 0 {
		return append(violations, fail("stream produced no events"))
	}
	if first := ev.Exchange.Events[0]; first.Kind != protocol.EventResponseCreated {
		violations = append(violations, fail("first event = %s, want response.created", first.Type))
	}
	if out.Response != tracker.ResponseCompleted {
		violations = append(violations, fail("response state = %s, want completed", out.Response))
	}
	if len(out.Items) == 0 {
		violations = append(violations, fail("no output items were streamed"))
	}
	if !out.AllItemsTerminal() {
		violations = append(violations, fail("not all items reached a terminal state"))
	}
	hasText := false
	for _, it := range out.Items {
		if it.Text != "" {
			hasText = true
		}
	}
	if !hasText {
		violations = append(violations, fail("no item accumulated output text"))
	}
	return violations
}

func evaluateToolCall(ev *Evaluation) []protocol.Violation {
	var violations []protocol.Violation
	out := ev.Outcome
	if out == nil {
		return []protocol.Violation{fail("no tracked outcome for streaming exchange")}
	}
	if !out.Response.Terminal() {
		violations = append(violations, fail("response never reached a terminal state"))
	}

	call := findItem(out, "function_call")
	if call == nil {
		return append(violations, fail("no function_call item in stream"))
	}
	if !call.State.Terminal() {
		violations = append(violations, fail("function_call item %s is not terminal", call.ID))
	}
	if !call.ArgumentsDone {
		violations = append(violations, fail("function_call_arguments.done never arrived for item %s", call.ID))
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
		return append(violations, fail("arguments are not valid JSON: %v", err))
	}
	if _, ok := args["location"]; !ok {
		violations = append(violations, fail("arguments missing required %q parameter", "location"))
	}
	if call.Final != nil && call.Final.Name != "get_weather" {
		violations = append(violations, fail("called %q, want %q", call.Final.Name, "get_weather"))
	}
	return violations
}

func evaluateToolTurn(ev *Evaluation) []protocol.Violation {
	resp, violations := parseResponse(ev)
	if resp == nil {
		return violations
	}
	if resp.Status != protocol.StatusCompleted {
		violations = append(violations, fail("status = %q, want %q", resp.Status, protocol.StatusCompleted))
	}
	if outputText(resp.Output) == "" {
		violations = append(violations, fail("model did not continue with a message after the tool result"))
	}
	return violations
}

func evaluateAuthShape(ev *Evaluation) []protocol.Violation {
	status := ev.Exchange.StatusCode
	if ev.Exchange.Err == nil {
		return []protocol.Violation{fail("invalid credential was accepted (status %d)", status)}
	}
	var violations []protocol.Violation
	if status != http.StatusUnauthorized && status != http.StatusForbidden {
		violations = append(violations, fail("status = %d, want 401 or 403", status))
	}
	violations = append(violations, errorBodyShape(ev.Exchange.Body)...)
	return violations
}

func evaluateUsage(ev *Evaluation) []protocol.Violation {
	resp, violations := parseResponse(ev)
	if resp == nil {
		return violations
	}
	u := resp.Usage
	if u == nil {
		return append(violations, fail("usage is missing"))
	}
	if u.InputTokens <= 0 || u.OutputTokens <= 0 {
		violations = append(violations, fail("usage token counts are not positive: input=%d output=%d",
			u.InputTokens, u.OutputTokens))
	}
	if u.TotalTokens != u.InputTokens+u.OutputTokens {
		violations = append(violations, fail("total_tokens = %d, want input+output = %d",
			u.TotalTokens, u.InputTokens+u.OutputTokens))
	}
	return violations
}

func evaluateErrorShape(ev *Evaluation) []protocol.Violation {
	status := ev.Exchange.StatusCode
	if ev.Exchange.Err == nil {
		return []protocol.Violation{fail("unknown model was accepted (status %d)", status)}
	}
	var violations []protocol.Violation
	if status < 400 || status > 404 {
		violations = append(violations, fail("status = %d, want a 4xx client error", status))
	}
	violations = append(violations, errorBodyShape(ev.Exchange.Body)...)
	return violations
}

func evaluateStreamFinal(ev *Evaluation) []protocol.Violation {
	var violations []protocol.Violation
	out := ev.Outcome
	if out == nil {
		return []protocol.Violation{fail("no tracked outcome for streaming exchange")}
	}
	final := out.FinalResponse
	if final == nil {
		return append(violations, fail("terminal event carried no response payload"))
	}
	if final.Status != protocol.StatusCompleted {
		violations = append(violations, fail("final status = %q, want %q", final.Status, protocol.StatusCompleted))
	}
	if len(final.Output) != len(out.Items) {
		violations = append(violations, fail("final output has %d items, stream produced %d",
			len(final.Output), len(out.Items)))
	}
	for _, item := range final.Output {
		tracked, ok := out.Items[item.ID]
		if !ok {
			violations = append(violations, fail("final output item %s never appeared in the stream", item.ID))
			continue
		}
		if item.Status != "" && item.Status != string(tracked.State) {
			violations = append(violations, fail("item %s final status %q disagrees with streamed state %q",
				item.ID, item.Status, tracked.State))
		}
	}
	if final.Usage == nil {
		violations = append(violations, fail("final response is missing usage"))
	}
	return violations
}

// outputText concatenates output_text parts across message items.
func outputText(items []protocol.OutputItem) string {
	var sb strings.Builder
	for _, item := range items {
		if item.Type != "message" {
			continue
		}
		for _, part := range item.Content {
			if part.Type == "output_text" {
				sb.WriteString(part.Text)
			}
		}
	}
	return sb.String()
}

// findItem returns the first tracked item of the given type, scanning in
// output-index order for determinism.
func findItem(out *tracker.Outcome, itemType string) *tracker.Item {
	var found *tracker.Item
	for _, it := range out.Items {
		if it.Type != itemType && (it.Final == nil || it.Final.Type != itemType) {
			continue
		}
		if found == nil || it.OutputIndex < found.OutputIndex {
			found = it
		}
	}
	return found
}

// errorBodyShape checks the top-level error body contract.
func errorBodyShape(body []byte) []protocol.Violation {
	var apiErr protocol.APIError
	if err := json.Unmarshal(body, &apiErr); err != nil {
		return []protocol.Violation{fail("error body is not valid JSON: %v", err)}
	}
	if apiErr.Error.Message == "" {
		return []protocol.Violation{fail("error body has no error.message")}
	}
	return nil
}
