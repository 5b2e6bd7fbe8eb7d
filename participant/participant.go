// Package participant turns a resolved remote agent into a named tool the
// director can invoke. Each adapter is bound to exactly one participant for
// exactly one simulation run; adapters are never reused across runs so fresh
// session identifiers avoid state leakage between runs.
package participant

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/teamsim/tool"
)

// maxRawUserIDLen is the longest user identifier passed through unreduced.
const maxRawUserIDLen = 10

// Invoker invokes a remote participant agent with a single question and
// returns its textual answer. Satisfied by *remote.Client.
type Invoker interface {
	Invoke(ctx context.Context, agentID, userID, query string) (string, error)
}

// Ref identifies one participant for one simulation run: the resolved remote
// agent, the (already normalized) platform user identity and the display name
// used in the simulated dialogue.
type Ref struct {
	AgentID     string
	UserID      string
	DisplayName string
}

// NewRef builds a Ref, normalizing the user identifier for the remote platform
// and deriving a display name from the agent id when none is given.
func NewRef(agentID, userID, displayName string) Ref {
	if displayName == "" {
		short := agentID
		if len(short) > 8 {
			short = short[:8]
		}
		displayName = "Agent_" + short
	}
	if userID == "" {
		userID = agentID
	}
	return Ref{
		AgentID:     agentID,
		UserID:      NormalizeUserID(userID),
		DisplayName: displayName,
	}
}

// NormalizeUserID canonicalizes a user identifier to satisfy the remote
// platform's identifier constraints. Identifiers longer than a short threshold
// are reduced to a prefixed alphanumeric form. The mapping is deterministic.
func NormalizeUserID(userID string) string {
	if len(userID) <= maxRawUserIDLen {
		return "u" + userID
	}
	var b strings.Builder
	for _, r := range userID {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			if b.Len() == 8 {
				break
			}
		}
	}
	return "u" + b.String()
}

// NewTool wraps a participant reference as a callable tool. The tool takes a
// single "query" argument and returns the participant's textual answer.
func NewTool(ref Ref, inv Invoker) tool.Tool {
	return tool.NewFunctionTool(
		toolName(ref.DisplayName),
		fmt.Sprintf("Get an answer to a question from %s", ref.DisplayName),
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string", "description": "question"},
			},
			"required": []string{"query"},
		},
		func(ctx context.Context, args map[string]any) (any, error) {
			query, ok := args["query"].(string)
			if !ok {
				return nil, fmt.Errorf("field 'query' must be a string")
			}
			return inv.Invoke(ctx, ref.AgentID, ref.UserID, query)
		},
	)
}

// toolName derives a snake_case tool identifier from a display name.
func toolName(displayName string) string {
	name := strings.ToLower(displayName)
	name = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, name)
	return "ask_" + name
}
