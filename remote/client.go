package remote

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/teamsim/logging"
)

// SessionCreationError reports that all session creation attempts (including
// the fallback identity) were exhausted. It aborts only the participant call
// it occurred in, not the whole run.
type SessionCreationError struct {
	AgentID  string
	Attempts int
	Err      error // first underlying error
}

func (e *SessionCreationError) Error() string {
	return fmt.Sprintf("session creation failed for agent %s after %d attempts: %v", e.AgentID, e.Attempts, e.Err)
}

// Unwrap returns the first underlying error.
func (e *SessionCreationError) Unwrap() error { return e.Err }

// Options configures the remote agent client.
type Options struct {
	// SessionRetries is the number of session creation attempts before the
	// fallback identity is tried.
	SessionRetries int

	// RetryDelay is the fixed delay between session creation attempts.
	RetryDelay time.Duration

	// PacingDelay is the fixed delay applied before each query to respect the
	// platform rate limit. Pacing is per call, not globally serialized.
	PacingDelay time.Duration

	// FallbackUserID is the degraded identity used for the final session
	// creation attempt once the regular attempts are exhausted.
	FallbackUserID string

	Logger logging.Logger
}

// Client invokes remote participant agents one query at a time. It is
// stateless between calls and safe for concurrent use.
type Client struct {
	platform Platform
	opts     Options
}

// NewClient creates a remote agent client with production defaults: 3 session
// creation attempts 10s apart, 6s pacing before each query.
func NewClient(platform Platform, optFns ...func(o *Options)) *Client {
	opts := Options{
		SessionRetries: 3,
		RetryDelay:     10 * time.Second,
		PacingDelay:    6 * time.Second,
		FallbackUserID: "default_user",
		Logger:         logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Client{platform: platform, opts: opts}
}

// Invoke creates a session for (agentID, userID), streams the query and
// returns the concatenated textual response. The session is torn down on
// every exit path.
func (c *Client) Invoke(ctx context.Context, agentID, userID, query string) (string, error) {
	sess, err := c.createSession(ctx, agentID, userID)
	if err != nil {
		return "", err
	}

	defer func() {
		if derr := c.platform.DeleteSession(context.WithoutCancel(ctx), sess); derr != nil {
			c.opts.Logger.Warn("session teardown failed", "agent_id", agentID, "session_id", sess.ID, "error", derr)
		}
	}()

	// Pace before sending to respect the platform rate limit.
	if err := sleepCtx(ctx, c.opts.PacingDelay); err != nil {
		return "", err
	}

	events, errCh := c.platform.StreamQuery(ctx, sess, query)

	var fragments []string
	for ev := range events {
		if ev.Text != "" {
			fragments = append(fragments, ev.Text)
		}
	}
	if err := <-errCh; err != nil {
		return "", fmt.Errorf("stream query failed for agent %s: %w", agentID, err)
	}

	return strings.Join(fragments, "\n"), nil
}

// createSession retries session creation with a fixed delay, then makes one
// final attempt with the fallback identity before giving up.
func (c *Client) createSession(ctx context.Context, agentID, userID string) (*Session, error) {
	var firstErr error

	for attempt := 1; attempt <= c.opts.SessionRetries; attempt++ {
		sess, err := c.platform.CreateSession(ctx, agentID, userID)
		if err == nil {
			return sess, nil
		}
		if firstErr == nil {
			firstErr = err
		}
		if attempt < c.opts.SessionRetries {
			c.opts.Logger.Warn("session creation failed, retrying",
				"agent_id", agentID, "attempt", attempt, "max_attempts", c.opts.SessionRetries, "error", err)
			if serr := sleepCtx(ctx, c.opts.RetryDelay); serr != nil {
				return nil, serr
			}
			continue
		}
		c.opts.Logger.Error("session creation failed, trying fallback identity",
			"agent_id", agentID, "attempts", c.opts.SessionRetries, "error", err)
	}

	sess, err := c.platform.CreateSession(ctx, agentID, c.opts.FallbackUserID)
	if err == nil {
		return sess, nil
	}
	c.opts.Logger.Error("session creation failed even with fallback identity", "agent_id", agentID, "error", err)

	return nil, &SessionCreationError{AgentID: agentID, Attempts: c.opts.SessionRetries + 1, Err: firstErr}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
