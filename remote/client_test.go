package remote

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePlatform tracks open sessions so tests can prove teardown happens on
// every exit path.
type fakePlatform struct {
	mu             sync.Mutex
	createFailures int
	createCalls    int
	createdUserIDs []string
	open           map[string]bool
	events         []StreamEvent
	streamErr      error
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{open: make(map[string]bool)}
}

func (p *fakePlatform) CreateSession(_ context.Context, agentID, userID string) (*Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.createCalls++
	p.createdUserIDs = append(p.createdUserIDs, userID)
	if p.createCalls <= p.createFailures {
		return nil, fmt.Errorf("quota exceeded (call %d)", p.createCalls)
	}
	sess := &Session{ID: fmt.Sprintf("sess-%d", p.createCalls), AgentID: agentID, UserID: userID}
	p.open[sess.ID] = true
	return sess, nil
}

func (p *fakePlatform) StreamQuery(_ context.Context, sess *Session, text string) (<-chan StreamEvent, <-chan error) {
	events := make(chan StreamEvent, len(p.events))
	errCh := make(chan error, 1)
	for _, ev := range p.events {
		events <- ev
	}
	close(events)
	errCh <- p.streamErr
	close(errCh)
	return events, errCh
}

func (p *fakePlatform) DeleteSession(_ context.Context, sess *Session) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.open[sess.ID] {
		return fmt.Errorf("session %s not open", sess.ID)
	}
	delete(p.open, sess.ID)
	return nil
}

func (p *fakePlatform) openSessions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.open)
}

func noDelays(o *Options) {
	o.RetryDelay = 0
	o.PacingDelay = 0
}

func TestClientInvoke(t *testing.T) {
	platform := newFakePlatform()
	platform.events = []StreamEvent{
		{Author: "agent-1", Text: "first fragment"},
		{Author: "agent-1", Text: ""},
		{Author: "agent-1", Text: "second fragment"},
	}
	client := NewClient(platform, noDelays)

	got, err := client.Invoke(context.Background(), "agent-1", "ualice", "hello")
	require.NoError(t, err)
	assert.Equal(t, "first fragment\nsecond fragment", got)
	assert.Equal(t, 0, platform.openSessions())
	assert.Equal(t, []string{"ualice"}, platform.createdUserIDs)
}

func TestClientInvokeRetriesThenSucceeds(t *testing.T) {
	platform := newFakePlatform()
	platform.createFailures = 2
	platform.events = []StreamEvent{{Author: "agent-1", Text: "answer"}}
	client := NewClient(platform, noDelays)

	got, err := client.Invoke(context.Background(), "agent-1", "ualice", "hello")
	require.NoError(t, err)
	assert.Equal(t, "answer", got)
	assert.Equal(t, 3, platform.createCalls)
	assert.Equal(t, []string{"ualice", "ualice", "ualice"}, platform.createdUserIDs)
	assert.Equal(t, 0, platform.openSessions())
}

func TestClientInvokeFallbackIdentity(t *testing.T) {
	platform := newFakePlatform()
	platform.createFailures = 3
	platform.events = []StreamEvent{{Author: "agent-1", Text: "degraded answer"}}
	client := NewClient(platform, noDelays)

	got, err := client.Invoke(context.Background(), "agent-1", "ualice", "hello")
	require.NoError(t, err)
	assert.Equal(t, "degraded answer", got)
	require.Equal(t, 4, platform.createCalls)
	assert.Equal(t, "default_user", platform.createdUserIDs[3])
	assert.Equal(t, 0, platform.openSessions())
}

func TestClientInvokeSessionCreationExhausted(t *testing.T) {
	platform := newFakePlatform()
	platform.createFailures = 4
	client := NewClient(platform, noDelays)

	_, err := client.Invoke(context.Background(), "agent-1", "ualice", "hello")
	require.Error(t, err)

	var scErr *SessionCreationError
	require.ErrorAs(t, err, &scErr)
	assert.Equal(t, "agent-1", scErr.AgentID)
	assert.Equal(t, 4, scErr.Attempts)
	assert.EqualError(t, scErr.Unwrap(), "quota exceeded (call 1)")
	assert.Equal(t, 0, platform.openSessions())
}

func TestClientInvokeStreamErrorTearsDownSession(t *testing.T) {
	platform := newFakePlatform()
	platform.events = []StreamEvent{{Author: "agent-1", Text: "partial"}}
	platform.streamErr = errors.New("stream reset")
	client := NewClient(platform, noDelays)

	_, err := client.Invoke(context.Background(), "agent-1", "ualice", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stream reset")
	assert.Equal(t, 0, platform.openSessions())
}

func TestClientInvokeContextCancelledDuringPacing(t *testing.T) {
	platform := newFakePlatform()
	client := NewClient(platform, func(o *Options) {
		o.RetryDelay = 0
		o.PacingDelay = 30 * time.Second // long enough that cancellation wins
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Invoke(ctx, "agent-1", "ualice", "hello")
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, platform.openSessions())
}
