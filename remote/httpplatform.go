package remote

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// HTTPPlatformOptions configures the HTTP platform client.
type HTTPPlatformOptions struct {
	// APIKey is sent as a bearer token when non-empty.
	APIKey string

	// HTTPClient is the underlying client. Streaming responses can be long
	// lived, so the default carries no overall timeout; cancellation comes
	// from the request context.
	HTTPClient *http.Client
}

// HTTPPlatform talks to the remote agent platform over its REST API:
// session creation and deletion are plain JSON calls, queries stream
// newline-delimited JSON events.
type HTTPPlatform struct {
	baseURL string
	opts    HTTPPlatformOptions
}

var _ Platform = (*HTTPPlatform)(nil)

// NewHTTPPlatform creates a platform client for the given base URL, e.g.
// "https://agents.example.com/v1".
func NewHTTPPlatform(baseURL string, optFns ...func(o *HTTPPlatformOptions)) *HTTPPlatform {
	opts := HTTPPlatformOptions{
		HTTPClient: &http.Client{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &HTTPPlatform{baseURL: baseURL, opts: opts}
}

type createSessionRequest struct {
	UserID string `json:"user_id"`
}

type createSessionResponse struct {
	ID string `json:"id"`
}

// CreateSession opens a new session for the given agent scoped to userID.
func (p *HTTPPlatform) CreateSession(ctx context.Context, agentID, userID string) (*Session, error) {
	u := fmt.Sprintf("%s/agents/%s/sessions", p.baseURL, url.PathEscape(agentID))

	var out createSessionResponse
	if err := p.doJSON(ctx, http.MethodPost, u, createSessionRequest{UserID: userID}, &out); err != nil {
		return nil, fmt.Errorf("create session for agent %s: %w", agentID, err)
	}
	if out.ID == "" {
		return nil, fmt.Errorf("create session for agent %s: empty session id", agentID)
	}

	return &Session{ID: out.ID, AgentID: agentID, UserID: userID}, nil
}

type streamQueryRequest struct {
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

type streamQueryEvent struct {
	Author string `json:"author"`
	Text   string `json:"text"`
}

// StreamQuery sends text into the session and decodes the newline-delimited
// JSON event stream. The error channel carries at most one terminal error and
// is closed after the event channel.
func (p *HTTPPlatform) StreamQuery(ctx context.Context, sess *Session, text string) (<-chan StreamEvent, <-chan error) {
	events := make(chan StreamEvent)
	errCh := make(chan error, 1)

	go func() {
		defer close(events)
		defer close(errCh)

		u := fmt.Sprintf("%s/agents/%s/sessions/%s:streamQuery",
			p.baseURL, url.PathEscape(sess.AgentID), url.PathEscape(sess.ID))

		body, err := json.Marshal(streamQueryRequest{UserID: sess.UserID, Message: text})
		if err != nil {
			errCh <- err
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
		if err != nil {
			errCh <- err
			return
		}
		p.setHeaders(req)

		resp, err := p.opts.HTTPClient.Do(req)
		if err != nil {
			errCh <- err
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			errCh <- p.statusError(resp)
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			var ev streamQueryEvent
			if err := json.Unmarshal(line, &ev); err != nil {
				errCh <- fmt.Errorf("decode stream event: %w", err)
				return
			}
			select {
			case events <- StreamEvent{Author: ev.Author, Text: ev.Text}:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
		}
		if err := scanner.Err(); err != nil {
			errCh <- err
		}
	}()

	return events, errCh
}

// DeleteSession tears down a session.
func (p *HTTPPlatform) DeleteSession(ctx context.Context, sess *Session) error {
	u := fmt.Sprintf("%s/agents/%s/sessions/%s",
		p.baseURL, url.PathEscape(sess.AgentID), url.PathEscape(sess.ID))
	if err := p.doJSON(ctx, http.MethodDelete, u, nil, nil); err != nil {
		return fmt.Errorf("delete session %s: %w", sess.ID, err)
	}
	return nil
}

func (p *HTTPPlatform) doJSON(ctx context.Context, method, u string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	p.setHeaders(req)

	resp, err := p.opts.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return p.statusError(resp)
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (p *HTTPPlatform) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if p.opts.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.opts.APIKey)
	}
}

func (p *HTTPPlatform) statusError(resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("platform returned %s: %s", resp.Status, bytes.TrimSpace(snippet))
}

// WithHTTPTimeout returns an option setting a plain client with the given
// timeout for deployments that never stream long responses.
func WithHTTPTimeout(d time.Duration) func(o *HTTPPlatformOptions) {
	return func(o *HTTPPlatformOptions) {
		o.HTTPClient = &http.Client{Timeout: d}
	}
}
