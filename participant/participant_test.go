package participant

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeUserID(t *testing.T) {
	tests := []struct {
		name   string
		userID string
		want   string
	}{
		{name: "short id is prefixed unchanged", userID: "alice", want: "ualice"},
		{name: "ten characters passes through", userID: "0123456789", want: "u0123456789"},
		{name: "long id reduced to first eight alphanumerics", userID: "user-12345-abcdef", want: "uuser1234"},
		{name: "separators are skipped", userID: "a-b_c.d!e@f#g$h%i", want: "uabcdefgh"},
		{name: "empty id", userID: "", want: "u"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeUserID(tt.userID))
		})
	}
}

func TestNormalizeUserIDDeterministic(t *testing.T) {
	id := "some-very-long-user-identifier"
	first := NormalizeUserID(id)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, NormalizeUserID(id))
	}
}

func TestNewRef(t *testing.T) {
	ref := NewRef("agent-123456789", "some-very-long-user-identifier", "")
	assert.Equal(t, "agent-123456789", ref.AgentID)
	assert.Equal(t, "Agent_agent-12", ref.DisplayName)
	assert.Equal(t, "usomevery", ref.UserID)

	named := NewRef("agent-1", "alice", "Participant_1")
	assert.Equal(t, "Participant_1", named.DisplayName)
	assert.Equal(t, "ualice", named.UserID)

	// Empty user identity falls back to the agent id before normalization.
	fallback := NewRef("agent-1", "", "Participant_2")
	assert.Equal(t, "uagent-1", fallback.UserID)
}

type recordingInvoker struct {
	agentID string
	userID  string
	query   string
	answer  string
	err     error
}

func (r *recordingInvoker) Invoke(_ context.Context, agentID, userID, query string) (string, error) {
	r.agentID = agentID
	r.userID = userID
	r.query = query
	return r.answer, r.err
}

func TestNewTool(t *testing.T) {
	inv := &recordingInvoker{answer: "the sprint is behind"}
	ref := NewRef("agent-1", "alice", "Participant_1")

	tl := NewTool(ref, inv)
	assert.Equal(t, "ask_participant_1", tl.Name())
	assert.Contains(t, tl.Description(), "Participant_1")

	result, err := tl.Call(context.Background(), map[string]any{"query": "How is the sprint?"})
	require.NoError(t, err)
	assert.Equal(t, "the sprint is behind", result)
	assert.Equal(t, "agent-1", inv.agentID)
	assert.Equal(t, "ualice", inv.userID)
	assert.Equal(t, "How is the sprint?", inv.query)
}

func TestNewToolMissingQuery(t *testing.T) {
	tl := NewTool(NewRef("agent-1", "alice", "Participant_1"), &recordingInvoker{})

	_, err := tl.Call(context.Background(), map[string]any{})
	require.Error(t, err)
}
