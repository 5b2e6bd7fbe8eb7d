package simulation

import (
	"context"
	"sync"
)

// StaticDirectory is an in-memory UserDirectory backed by a fixed user-to-agent
// mapping. Suitable for tests and single-tenant deployments.
type StaticDirectory struct {
	mu     sync.RWMutex
	agents map[string]string
}

// NewStaticDirectory creates a directory from an initial mapping. A nil map is
// allowed; users without an entry have no agent.
func NewStaticDirectory(agents map[string]string) *StaticDirectory {
	d := &StaticDirectory{agents: make(map[string]string, len(agents))}
	for userID, agentID := range agents {
		d.agents[userID] = agentID
	}
	return d
}

// SetAgent adds or replaces the agent mapping for a user.
func (d *StaticDirectory) SetAgent(userID, agentID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.agents[userID] = agentID
}

func (d *StaticDirectory) ResolveAgentID(_ context.Context, userID string) (string, bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	agentID, ok := d.agents[userID]
	return agentID, ok, nil
}

// ValidateParticipants accepts any set of non-empty user identifiers. Users
// without an agent mapping are still valid; execution falls back to the user
// id as the agent id.
func (d *StaticDirectory) ValidateParticipants(_ context.Context, userIDs []string) (bool, error) {
	for _, id := range userIDs {
		if id == "" {
			return false, nil
		}
	}
	return true, nil
}
