// Package protocol defines the wire types of the Responses protocol: the
// request and response bodies exchanged over HTTP and the streaming event
// vocabulary delivered over SSE.
package protocol

import "encoding/json"

// Request represents a request to the Responses endpoint.
type Request struct {
	// Model to use for the response
	Model string `json:"model"`

	// Input can be a string or an array of input items
	Input Input `json:"input"`

	// Instructions to guide the model
	Instructions string `json:"instructions,omitempty"`

	// Tools available for the model to use
	Tools []Tool `json:"tools,omitempty"`

	// ToolChoice controls how the model uses tools:
	// "auto", "none", "required", or {"type": "function", "name": "..."}
	ToolChoice any `json:"tool_choice,omitempty"`

	// MaxOutputTokens limits the response length
	MaxOutputTokens int `json:"max_output_tokens,omitempty"`

	// Temperature controls randomness
	Temperature *float32 `json:"temperature,omitempty"`

	// Stream enables SSE streaming
	Stream bool `json:"stream,omitempty"`

	// PreviousResponseID continues a conversation
	PreviousResponseID string `json:"previous_response_id,omitempty"`

	// Store controls whether the server retains the response
	Store *bool `json:"store,omitempty"`

	// Metadata for the response
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Input is either simple text or an array of input items.
type Input struct {
	Text  string      // Simple text input
	Items []InputItem // Array of input items
}

// MarshalJSON implements json.Marshaler.
func (in Input) MarshalJSON() ([]byte, error) {
	if in.Items == nil {
		return json.Marshal(in.Text)
	}
	return json.Marshal(in.Items)
}

// UnmarshalJSON implements json.Unmarshaler.
func (in *Input) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		in.Text = str
		in.Items = nil
		return nil
	}

	var items []InputItem
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	in.Items = items
	in.Text = ""
	return nil
}

// InputItem represents a single input item.
type InputItem struct {
	Type string `json:"type"` // "message", "function_call_output", "item_reference"

	// For message type
	Role    string        `json:"role,omitempty"`
	Content []ContentPart `json:"content,omitempty"`

	// For function_call type (replayed prior turns)
	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`

	// For function_call_output type
	Output string `json:"output,omitempty"`

	// For item_reference type
	ID string `json:"id,omitempty"`
}

// ContentPart represents a content part in input or output.
type ContentPart struct {
	Type string `json:"type"` // "input_text", "output_text", "refusal"

	Text string `json:"text,omitempty"`

	Annotations []Annotation `json:"annotations,omitempty"`
}

// Annotation represents an annotation on output content.
type Annotation struct {
	Type       string `json:"type"`
	Text       string `json:"text,omitempty"`
	StartIndex int    `json:"start_index,omitempty"`
	EndIndex   int    `json:"end_index,omitempty"`
	URL        string `json:"url,omitempty"`
	Title      string `json:"title,omitempty"`
}

// Tool represents a tool definition.
type Tool struct {
	Type string `json:"type"` // "function"

	// Flattened function fields, per the Responses tool shape
	Name        string          `json:"name,omitempty"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
	Strict      *bool           `json:"strict,omitempty"`
}

// Response statuses.
const (
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusIncomplete = "incomplete"
	StatusCancelled  = "cancelled"
)

// Response represents a final response body.
type Response struct {
	ID        string `json:"id"`
	Object    string `json:"object"` // "response"
	CreatedAt int64  `json:"created_at"`

	// Status of the response: in_progress, completed, failed,
	// incomplete, cancelled
	Status string `json:"status"`

	Model string `json:"model"`

	// Output items produced by the model
	Output []OutputItem `json:"output"`

	Usage *Usage `json:"usage,omitempty"`

	// Error information if status is "failed"
	Error *ResponseError `json:"error,omitempty"`

	// IncompleteDetails explains an "incomplete" status
	IncompleteDetails *IncompleteDetails `json:"incomplete_details,omitempty"`

	Metadata map[string]string `json:"metadata,omitempty"`

	PreviousResponseID string `json:"previous_response_id,omitempty"`
}

// OutputItem represents one item in a response's output array.
type OutputItem struct {
	Type string `json:"type"` // "message", "function_call", "function_call_output", "reasoning"

	ID string `json:"id,omitempty"`

	// Item-level status: in_progress, completed, incomplete
	Status string `json:"status,omitempty"`

	// For message type
	Role    string        `json:"role,omitempty"`
	Content []ContentPart `json:"content,omitempty"`

	// For function_call type
	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`

	// For function_call_output type
	Output string `json:"output,omitempty"`
}

// Usage represents token accounting for a response.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`

	InputTokensDetails  *TokenDetails `json:"input_tokens_details,omitempty"`
	OutputTokensDetails *TokenDetails `json:"output_tokens_details,omitempty"`
}

// TokenDetails provides detailed token counts.
type TokenDetails struct {
	CachedTokens    int `json:"cached_tokens,omitempty"`
	ReasoningTokens int `json:"reasoning_tokens,omitempty"`
}

// ResponseError represents an error attached to a failed response.
type ResponseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// IncompleteDetails explains why a response stopped early.
type IncompleteDetails struct {
	Reason string `json:"reason"` // "max_output_tokens", "content_filter"
}

// APIError is the top-level error body returned for non-2xx statuses.
type APIError struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
		Param   string `json:"param,omitempty"`
	} `json:"error"`
}
