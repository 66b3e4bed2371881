// Package refserver is a reference implementation of the Responses
// protocol. It serves deterministic, scripted completions with a fully
// compliant event stream, plus fault-injection knobs that reproduce the
// violations the engine is built to catch. It backs the harness's own
// end-to-end tests and runs standalone as a local target.
package refserver

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/vinhnx/openresponses/internal/protocol"
)

// Option configures the server.
type Option func(*Server)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithAPIKey requires the given key as a bearer credential on every
// request. Without it the server accepts anonymous requests.
func WithAPIKey(key string) Option {
	return func(s *Server) {
		s.apiKey = key
	}
}

// WithFaults enables deliberate protocol violations on streaming
// responses.
func WithFaults(f Faults) Option {
	return func(s *Server) {
		s.faults = f
	}
}

// Server implements the protocol endpoint.
type Server struct {
	logger  *slog.Logger
	apiKey  string
	faults  Faults
	counter tokenCounter
}

// New creates a Server.
func New(opts ...Option) *Server {
	s := &Server{logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router returns the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Post("/v1/responses", s.handleCreateResponse)
	return r
}

func (s *Server) handleCreateResponse(w http.ResponseWriter, r *http.Request) {
	if s.apiKey != "" {
		auth := r.Header.Get("Authorization")
		if auth != "Bearer "+s.apiKey {
			s.writeError(w, http.StatusUnauthorized, "invalid_request_error", "invalid_api_key",
				"Incorrect API key provided.")
			return
		}
	}

	var req protocol.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request_error", "invalid_json",
			"Invalid request body: "+err.Error())
		return
	}
	if req.Model == "" {
		s.writeError(w, http.StatusBadRequest, "invalid_request_error", "missing_model",
			"model is required")
		return
	}
	if strings.HasPrefix(req.Model, "compliance-nonexistent") {
		s.writeError(w, http.StatusNotFound, "invalid_request_error", "model_not_found",
			fmt.Sprintf("The model %q does not exist or you do not have access to it.", req.Model))
		return
	}

	s.logger.Info("responses request",
		slog.String("model", req.Model),
		slog.Bool("stream", req.Stream),
	)

	plan := s.plan(&req)

	if req.Stream {
		s.streamResponse(w, &req, plan)
		return
	}

	resp := s.buildResponse(&req, plan)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// generation is the scripted output for one request.
type generation struct {
	toolCall bool
	name     string
	callID   string
	args     string
	text     string
}

// plan decides what the scripted model says. Deterministic on purpose:
// compliance runs must be reproducible.
func (s *Server) plan(req *protocol.Request) generation {
	hasToolOutput := false
	inputText := req.Input.Text
	for _, item := range req.Input.Items {
		if item.Type == "function_call_output" {
			hasToolOutput = true
		}
		for _, part := range item.Content {
			inputText += " " + part.Text
		}
	}

	wantsTool := len(req.Tools) > 0 && !hasToolOutput
	if choice, ok := req.ToolChoice.(string); ok && choice == "none" {
		wantsTool = false
	}
	if wantsTool {
		return generation{
			toolCall: true,
			name:     req.Tools[0].Name,
			callID:   "call_" + uuid.New().String(),
			args:     `{"location":"Paris"}`,
		}
	}

	lower := strings.ToLower(inputText)
	switch {
	case hasToolOutput:
		return generation{text: "It is currently 18°C and partly cloudy in Paris."}
	case strings.Contains(lower, "pong"):
		return generation{text: "pong"}
	case strings.Contains(lower, "colors"):
		return generation{text: "Red, yellow, and blue."}
	default:
		return generation{text: "One, two, three, four, five."}
	}
}

// buildResponse assembles the final response body.
func (s *Server) buildResponse(req *protocol.Request, plan generation) *protocol.Response {
	resp := &protocol.Response{
		ID:        "resp_" + uuid.New().String(),
		Object:    "response",
		CreatedAt: time.Now().Unix(),
		Status:    protocol.StatusCompleted,
		Model:     req.Model,
		Metadata:  req.Metadata,
	}

	var outputTokens int
	if plan.toolCall {
		resp.Output = []protocol.OutputItem{{
			Type:      "function_call",
			ID:        "item_" + uuid.New().String(),
			Status:    "completed",
			CallID:    plan.callID,
			Name:      plan.name,
			Arguments: plan.args,
		}}
		outputTokens = s.counter.count(plan.name) + s.counter.count(plan.args)
	} else {
		resp.Output = []protocol.OutputItem{{
			Type:   "message",
			ID:     "item_" + uuid.New().String(),
			Status: "completed",
			Role:   "assistant",
			Content: []protocol.ContentPart{
				{Type: "output_text", Text: plan.text},
			},
		}}
		outputTokens = s.counter.count(plan.text)
	}

	if !s.faults.OmitUsage {
		input := s.counter.countRequest(req)
		resp.Usage = &protocol.Usage{
			InputTokens:  input,
			OutputTokens: outputTokens,
			TotalTokens:  input + outputTokens,
		}
	}
	return resp
}

// emitter writes SSE frames with protocol sequence numbering.
type emitter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	seq     int
}

// send writes one event frame. fields must not contain "type" or
// "sequence_number"; those are owned here.
func (e *emitter) send(eventType string, fields map[string]any) {
	payload := make(map[string]any, len(fields)+2)
	for k, v := range fields {
		payload[k] = v
	}
	payload["type"] = eventType
	payload["sequence_number"] = e.seq
	e.seq++

	data, _ := json.Marshal(payload)
	fmt.Fprintf(e.w, "event: %s\ndata: %s\n\n", eventType, data)
	e.flusher.Flush()
}

func (s *Server) streamResponse(w http.ResponseWriter, req *protocol.Request, plan generation) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "server_error", "streaming_unsupported",
			"Streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	e := &emitter{w: w, flusher: flusher}

	resp := s.buildResponse(req, plan)
	itemID := resp.Output[0].ID

	inProgress := *resp
	inProgress.Status = protocol.StatusInProgress
	inProgress.Output = nil
	inProgress.Usage = nil

	e.send("response.created", map[string]any{"response": &inProgress})
	e.send("response.in_progress", map[string]any{"response": &inProgress})

	if s.faults.EmitUnknownEvent {
		e.send("response.experimental.heartbeat", map[string]any{"response_id": resp.ID})
	}

	item := resp.Output[0]
	addedItem := item
	addedItem.Status = "in_progress"
	if plan.toolCall {
		addedItem.Arguments = ""
	} else {
		addedItem.Content = []protocol.ContentPart{}
	}
	if !s.faults.DropItemAdded {
		e.send("response.output_item.added", map[string]any{
			"output_index": 0,
			"item":         &addedItem,
		})
	}

	if s.faults.ResetSequence {
		e.seq = 0
	}

	if plan.toolCall {
		s.streamToolCall(e, itemID, plan)
	} else {
		s.streamMessage(e, itemID, plan)
	}

	e.send("response.output_item.done", map[string]any{
		"output_index": 0,
		"item":         &item,
	})
	if s.faults.DuplicateItemDone {
		e.send("response.output_item.done", map[string]any{
			"output_index": 0,
			"item":         &item,
		})
	}
	if s.faults.DeltaAfterDone {
		e.send("response.output_text.delta", map[string]any{
			"item_id":       itemID,
			"output_index":  0,
			"content_index": 0,
			"delta":         " trailing",
		})
	}

	if s.faults.MalformedEvent {
		fmt.Fprint(w, "event: response.completed\ndata: {not json\n\n")
		flusher.Flush()
		return
	}
	if s.faults.SkipCompleted {
		return
	}

	e.send("response.completed", map[string]any{"response": resp})
}

func (s *Server) streamMessage(e *emitter, itemID string, plan generation) {
	e.send("response.content_part.added", map[string]any{
		"item_id":       itemID,
		"output_index":  0,
		"content_index": 0,
		"part":          &protocol.ContentPart{Type: "output_text", Text: ""},
	})

	for _, chunk := range chunks(plan.text, 8) {
		e.send("response.output_text.delta", map[string]any{
			"item_id":       itemID,
			"output_index":  0,
			"content_index": 0,
			"delta":         chunk,
		})
	}

	e.send("response.output_text.done", map[string]any{
		"item_id":       itemID,
		"output_index":  0,
		"content_index": 0,
		"text":          plan.text,
	})
	e.send("response.content_part.done", map[string]any{
		"item_id":       itemID,
		"output_index":  0,
		"content_index": 0,
		"part":          &protocol.ContentPart{Type: "output_text", Text: plan.text},
	})
}

func (s *Server) streamToolCall(e *emitter, itemID string, plan generation) {
	for _, chunk := range chunks(plan.args, 8) {
		e.send("response.function_call_arguments.delta", map[string]any{
			"item_id":      itemID,
			"output_index": 0,
			"delta":        chunk,
		})
	}
	e.send("response.function_call_arguments.done", map[string]any{
		"item_id":      itemID,
		"output_index": 0,
		"arguments":    plan.args,
	})
}

func (s *Server) writeError(w http.ResponseWriter, status int, errType, code, message string) {
	var body protocol.APIError
	body.Error.Type = errType
	body.Error.Code = code
	body.Error.Message = message

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// chunks splits s into rune-safe pieces of roughly n bytes.
func chunks(s string, n int) []string {
	var out []string
	current := ""
	for _, r := range s {
		current += string(r)
		if len(current) >= n {
			out = append(out, current)
			current = ""
		}
	}
	if current != "" {
		out = append(out, current)
	}
	return out
}
