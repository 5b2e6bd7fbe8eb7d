// Package remote implements the client for invoking a single remote
// participant agent: it creates a session scoped to an (agent, user) pair,
// streams a query, collects the textual response and tears the session down.
package remote

import "context"

// Session is a stateful conversation context on the remote agent platform,
// created per participant per run and deleted after use.
type Session struct {
	ID      string
	AgentID string
	UserID  string
}

// StreamEvent is one partial response event produced by a streamed query.
// Text may be empty for control events.
type StreamEvent struct {
	Author string
	Text   string
}

// Platform abstracts the remote agent platform. Implementations wrap the
// vendor SDK; tests use an in-process fake.
type Platform interface {
	// CreateSession opens a new session for the given agent scoped to userID.
	CreateSession(ctx context.Context, agentID, userID string) (*Session, error)

	// StreamQuery sends text into the session and returns the ordered event
	// stream plus a terminal error channel (buffered size 1, closed after the
	// stream completes).
	StreamQuery(ctx context.Context, sess *Session, text string) (<-chan StreamEvent, <-chan error)

	// DeleteSession tears down a session. Must be safe to call exactly once
	// per created session.
	DeleteSession(ctx context.Context, sess *Session) error
}
