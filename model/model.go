// Package model defines the provider neutral interface the director engine
// uses to drive generation, together with the normalized request/response
// structures shared by the Anthropic and OpenAI adapters.
package model

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hupe1980/teamsim/core"
)

// ToolDefinition declaratively exposes a callable function to the model.
type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes an individual function (tool) exposed to the model.
// Parameters is a JSON Schema object (draft agnostic, minimal subset expected).
type FunctionDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"` // JSON Schema
}

// Request captures the normalized model input produced by the director engine.
type Request struct {
	Instructions string           `json:"instructions"` // Instructions for the model
	Contents     []core.Content   `json:"contents"`     // Higher-level content converted to provider messages
	Tools        []ToolDefinition `json:"tools,omitempty"`
	Stream       bool             `json:"stream,omitempty"`
}

// Response is a (partial or final) chunk emitted by a model.
type Response struct {
	ID           string       `json:"id"`
	Partial      bool         `json:"partial"` // Indicates if this is a partial response
	Content      core.Content `json:"content"`
	FinishReason string       `json:"finish_reason"` // "stop", "length", "tool_calls", etc.
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "mock", etc.
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the minimal interface required by the director engine to drive generation.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// MockTurn scripts a single model turn for the MockModel. When ToolCalls is
// non-empty the turn requests those tool invocations; otherwise Text is
// emitted as the final assistant message.
type MockTurn struct {
	Text      string
	ToolCalls []core.FunctionCall
}

// MockModel is a lightweight in-memory Model useful for tests. Turns are
// consumed in registration order, one per Generate call.
type MockModel struct {
	info  Info
	turns []MockTurn
	calls int
	// Requests records every request seen, for assertions.
	Requests []Request
}

// NewMockModel constructs a MockModel with tool support enabled.
func NewMockModel(name string) *MockModel {
	return &MockModel{
		info: Info{Name: name, Provider: "mock", SupportsTools: true},
	}
}

// AddTurn appends a scripted turn.
func (m *MockModel) AddTurn(turn MockTurn) { m.turns = append(m.turns, turn) }

// AddTextTurn appends a scripted final text turn.
func (m *MockModel) AddTextTurn(text string) { m.AddTurn(MockTurn{Text: text}) }

// AddToolCallTurn appends a scripted turn requesting a single tool invocation.
func (m *MockModel) AddToolCallTurn(name, args string) {
	m.AddTurn(MockTurn{ToolCalls: []core.FunctionCall{{ID: core.NewID(), Name: name, Arguments: args}}})
}

// Generate implements Model; emits the next scripted turn as a single final response.
func (m *MockModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 1)
	errCh := make(chan error, 1)

	m.Requests = append(m.Requests, req)

	go func() {
		defer close(respCh)
		defer close(errCh)

		if m.calls >= len(m.turns) {
			errCh <- fmt.Errorf("mock model: no scripted turn for call %d", m.calls+1)
			return
		}
		turn := m.turns[m.calls]
		m.calls++

		var parts []core.Part
		if turn.Text != "" {
			parts = append(parts, core.TextPart{Text: turn.Text})
		}
		for _, fc := range turn.ToolCalls {
			parts = append(parts, core.FunctionCallPart{FunctionCall: fc})
		}

		finish := "stop"
		if len(turn.ToolCalls) > 0 {
			finish = "tool_calls"
		}

		select {
		case respCh <- Response{
			ID:           core.NewID(),
			Content:      core.Content{Role: "assistant", Parts: parts},
			FinishReason: finish,
		}:
		case <-ctx.Done():
			errCh <- ctx.Err()
		}
	}()

	return respCh, errCh
}

// Info returns metadata describing the mock.
func (m *MockModel) Info() Info { return m.info }

// ParseArguments decodes a JSON argument payload into a generic map. An empty
// payload yields an empty map rather than an error.
func ParseArguments(raw string) (map[string]any, error) {
	if raw == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("invalid tool arguments: %w", err)
	}
	return args, nil
}
