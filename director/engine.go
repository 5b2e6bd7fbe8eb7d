// Package director implements the tool-calling execution engine for the
// simulation director: it sends the simulation instruction to an LLM-backed
// director agent, lets it invoke participant tools, and corrects a known
// agent-handoff mis-routing artifact by re-issuing the query.
package director

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/teamsim/core"
	"github.com/hupe1980/teamsim/logging"
	"github.com/hupe1980/teamsim/model"
	"github.com/hupe1980/teamsim/tool"
)

// DefaultName is the director agent's author name used to tag response segments.
const DefaultName = "SimulationDirectorAgent"

const instructionTemplate = `You are the brain of the world's best organizational consulting AI and act as the %[1]s.
Your mission is to run the simulation environment supplied by the user: make the named participant agents talk to each other, analyze that dialogue, identify root causes invisible to humans, design and evaluate a multi-agent simulation that verifies the remedy, and finally present a concrete improvement plan to the user.

## Hard constraints
- The only characters allowed in the simulated dialogue are the participant agents named by the user. Never introduce any other agent.
- Emit the intermediate dialogue of the simulation as it progresses, not only the final report.
- The final output must be a single, immediately actionable recommendation the user can execute right away, never generic team-wide advice.

## Simulation instruction
%[2]s`

// Segment is one authored piece of the director's response stream.
type Segment struct {
	Author string
	Text   string
}

// JoinSegments renders segments into the single text blob persisted as the
// simulation result.
func JoinSegments(segments []Segment) string {
	var b strings.Builder
	for _, s := range segments {
		fmt.Fprintf(&b, "[%s]\n\n%s\n", s.Author, s.Text)
	}
	return b.String()
}

// Options configures the director engine.
type Options struct {
	// Name is the director agent's author name.
	Name string

	// OutputLanguage is embedded into the fixed system-level language directive.
	OutputLanguage string

	// MaxModelCalls bounds model invocations per run (0 = default bound).
	MaxModelCalls int

	Logger logging.Logger
}

// Engine runs the director's tool-calling loop. It holds no state beyond one
// run's lifetime and is safe for concurrent use.
type Engine struct {
	model model.Model
	opts  Options
}

// New creates a director engine backed by the given model.
func New(m model.Model, optFns ...func(o *Options)) *Engine {
	opts := Options{
		Name:           DefaultName,
		OutputLanguage: "Japanese",
		MaxModelCalls:  32,
		Logger:         logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxModelCalls <= 0 {
		opts.MaxModelCalls = 32
	}
	return &Engine{model: m, opts: opts}
}

// Run executes a single conversational turn of the director with the given
// participant tools and returns the ordered, author-tagged response segments.
//
// If the first pass emits a hand-off marker as plain text instead of
// performing the hand-off, a second independent pass is forced with a
// synthetic transfer instruction and its result replaces the first pass's
// output entirely.
func (e *Engine) Run(ctx context.Context, instruction string, tools []tool.Tool) ([]Segment, error) {
	sys := e.renderInstructions(instruction)

	segments, target, err := e.runOnce(ctx, sys, instruction, tools)
	if err != nil {
		return nil, err
	}

	if target != "" {
		e.opts.Logger.Info("hand-off marker detected, forcing transfer", "agent", target)
		segments, _, err = e.runOnce(ctx, sys, fmt.Sprintf("Please transfer to %s", target), tools)
		if err != nil {
			return nil, err
		}
	}

	return segments, nil
}

// renderInstructions combines the fixed output-language directive with the
// instruction template embedding the caller-supplied instruction.
func (e *Engine) renderInstructions(instruction string) string {
	directive := fmt.Sprintf("You must respond in %[1]s. All output must be written in %[1]s.", e.opts.OutputLanguage)
	return directive + "\n\n" + fmt.Sprintf(instructionTemplate, e.opts.Name, instruction)
}

// runOnce drives one complete tool-calling loop for a single user message.
// It returns the collected segments plus the first hand-off target found in
// the text stream (the marker's containing fragment is suppressed).
func (e *Engine) runOnce(ctx context.Context, sys, userMessage string, tools []tool.Tool) ([]Segment, string, error) {
	defs, index := buildToolIndex(tools)

	contents := []core.Content{core.NewUserContent(userMessage)}

	var segments []Segment
	var target string
	calls := 0

	for {
		calls++
		if calls > e.opts.MaxModelCalls {
			return nil, "", fmt.Errorf("director exceeded max model calls (%d)", e.opts.MaxModelCalls)
		}

		respCh, errCh := e.model.Generate(ctx, model.Request{
			Instructions: sys,
			Contents:     contents,
			Tools:        defs,
		})

		var final *model.Response
		for resp := range respCh {
			if resp.Partial {
				// Partial fragments are re-delivered in the final response;
				// only the final carries the canonical text.
				continue
			}
			r := resp
			final = &r
			for _, p := range resp.Content.Parts {
				tp, ok := p.(core.TextPart)
				if !ok || tp.Text == "" {
					continue
				}
				if name, found := ScanTransferMarker(tp.Text); found && target == "" {
					target = name
					continue
				}
				segments = append(segments, Segment{Author: e.opts.Name, Text: tp.Text})
			}
		}
		if err := <-errCh; err != nil {
			return nil, "", fmt.Errorf("director model call failed: %w", err)
		}
		if final == nil {
			return nil, "", fmt.Errorf("director model produced no response")
		}

		functionCalls := final.Content.FunctionCalls()
		if len(functionCalls) == 0 {
			return segments, target, nil
		}

		contents = append(contents, final.Content)

		var responseParts []core.Part
		for _, fc := range functionCalls {
			t, ok := index[fc.Name]
			if !ok {
				return nil, "", fmt.Errorf("director requested unknown tool %q", fc.Name)
			}
			args, err := model.ParseArguments(fc.Arguments)
			if err != nil {
				return nil, "", fmt.Errorf("tool %q: %w", fc.Name, err)
			}

			e.opts.Logger.Debug("director tool call", "tool", fc.Name)

			result, err := t.Call(ctx, args)
			if err != nil {
				// Participant failures fail the whole run; retries happen only
				// inside the remote client's session creation.
				return nil, "", fmt.Errorf("participant tool %q failed: %w", fc.Name, err)
			}

			responseParts = append(responseParts, core.FunctionResponsePart{
				FunctionResponse: core.FunctionResponse{ID: fc.ID, Name: fc.Name, Response: result},
			})
		}
		contents = append(contents, core.Content{Role: "tool", Parts: responseParts})
	}
}

func buildToolIndex(tools []tool.Tool) ([]model.ToolDefinition, map[string]tool.Tool) {
	defs := make([]model.ToolDefinition, 0, len(tools))
	index := make(map[string]tool.Tool, len(tools))
	for _, t := range tools {
		defs = append(defs, model.ToolDefinition{
			Type: "function",
			Function: model.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
		index[t.Name()] = t
	}
	return defs, index
}
