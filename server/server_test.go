package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/teamsim/director"
	"github.com/hupe1980/teamsim/notify"
	"github.com/hupe1980/teamsim/simulation"
	"github.com/hupe1980/teamsim/tool"
)

type staticVerifier struct {
	tokens map[string]string
}

func (v staticVerifier) Verify(token string) (string, error) {
	userID, ok := v.tokens[token]
	if !ok {
		return "", fmt.Errorf("unknown token")
	}
	return userID, nil
}

type stubRunner struct{}

func (stubRunner) Run(context.Context, string, []tool.Tool) ([]director.Segment, error) {
	return []director.Segment{{Author: "SimulationDirectorAgent", Text: "done"}}, nil
}

type stubInvoker struct{}

func (stubInvoker) Invoke(context.Context, string, string, string) (string, error) {
	return "", nil
}

type testEnv struct {
	server *httptest.Server
	store  *simulation.MemoryStore
	svc    *simulation.Service
	hub    *notify.Hub
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := simulation.NewMemoryStore()
	hub := notify.NewHub()
	dir := simulation.NewStaticDirectory(map[string]string{"alice": "agent-alice"})
	svc := simulation.NewService(store, dir, stubRunner{}, stubInvoker{})

	verifier := staticVerifier{tokens: map[string]string{
		"token-alice": "alice",
		"token-bob":   "bob",
	}}

	srv := New(svc, hub, verifier, func(o *Options) {
		o.KeepaliveInterval = 20 * time.Millisecond
	})

	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	return &testEnv{server: ts, store: store, svc: svc, hub: hub}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeSimulation(t *testing.T, resp *http.Response) simulation.Simulation {
	t.Helper()
	defer resp.Body.Close()
	var sim simulation.Simulation
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sim))
	return sim
}

func TestServerAuth(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/simulations", "", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/simulations", "bogus", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Query-parameter fallback for clients that cannot set headers.
	resp, err := http.Get(env.server.URL + "/simulations?token=token-alice")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServerCreateAndGet(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/simulations", "token-alice", createRequest{
		Name:               "Planning",
		Instruction:        "Discuss",
		ParticipantUserIDs: []string{"alice"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeSimulation(t, resp)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "alice", created.CreatedBy)

	env.svc.Shutdown()

	resp = env.do(t, http.MethodGet, "/simulations/"+created.ID, "token-alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decodeSimulation(t, resp)
	assert.Equal(t, simulation.StatusCompleted, got.Status)

	// Another user cannot read the record.
	resp = env.do(t, http.MethodGet, "/simulations/"+created.ID, "token-bob", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/simulations/missing", "token-alice", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServerCreateValidation(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/simulations", "token-alice", createRequest{Name: "Empty"})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	req, err := http.NewRequest(http.MethodPost, env.server.URL+"/simulations", strings.NewReader("{not json"))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer token-alice")
	raw, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	raw.Body.Close()
	assert.Equal(t, http.StatusBadRequest, raw.StatusCode)
}

func TestServerList(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	base := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, env.store.Create(ctx, &simulation.Simulation{
			ID:        fmt.Sprintf("sim-%d", i),
			Status:    simulation.StatusCompleted,
			CreatedBy: "alice",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	resp := env.do(t, http.MethodGet, "/simulations?limit=2&offset=1", "token-alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	defer resp.Body.Close()

	var list listResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	assert.Equal(t, 3, list.Total)
	require.Len(t, list.Items, 2)
	assert.Equal(t, "sim-1", list.Items[0].ID)
	assert.Equal(t, "sim-0", list.Items[1].ID)
}

func TestServerDeleteAndRerun(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.store.Create(ctx, &simulation.Simulation{
		ID: "sim-done", Status: simulation.StatusFailed, CreatedBy: "alice", CreatedAt: time.Now().UTC(),
		ParticipantUserIDs: []string{"alice"},
	}))
	require.NoError(t, env.store.Create(ctx, &simulation.Simulation{
		ID: "sim-busy", Status: simulation.StatusRunning, CreatedBy: "alice", CreatedAt: time.Now().UTC(),
	}))

	resp := env.do(t, http.MethodDelete, "/simulations/sim-busy", "token-alice", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = env.do(t, http.MethodDelete, "/simulations/sim-done", "token-bob", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/simulations/sim-done/rerun", "token-alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rerun := decodeSimulation(t, resp)
	assert.Equal(t, "sim-done", rerun.ID)

	env.svc.Shutdown()

	resp = env.do(t, http.MethodDelete, "/simulations/sim-done", "token-alice", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestServerSSE(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.server.URL + "/events?token=token-alice")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	waitForSubscriber(t, env.hub, "alice")
	env.hub.Publish("alice", notify.Event{
		Type:         notify.EventSimulationCompleted,
		SimulationID: "sim-1",
	})

	reader := bufio.NewReader(resp.Body)
	deadline := time.Now().Add(2 * time.Second)
	for {
		require.True(t, time.Now().Before(deadline), "no data frame before deadline")
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, ": keepalive") {
			continue
		}
		if strings.HasPrefix(line, "data: ") {
			var ev notify.Event
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
			assert.Equal(t, "sim-1", ev.SimulationID)
			return
		}
	}
}

func TestServerWebSocket(t *testing.T) {
	env := newTestEnv(t)

	wsURL := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws?token=token-alice"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	waitForSubscriber(t, env.hub, "alice")
	env.hub.Publish("alice", notify.Event{
		Type:         notify.EventSimulationFailed,
		SimulationID: "sim-2",
		Error:        "boom",
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev notify.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, notify.EventSimulationFailed, ev.Type)
	assert.Equal(t, "sim-2", ev.SimulationID)
}

func waitForSubscriber(t *testing.T, hub *notify.Hub, userID string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.SubscriberCount(userID) == 0 {
		require.True(t, time.Now().Before(deadline), "subscriber never registered")
		time.Sleep(5 * time.Millisecond)
	}
}

func TestJWTVerifier(t *testing.T) {
	secret := []byte("test-secret")
	verifier := NewJWTVerifier(secret)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "alice",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(secret)
	require.NoError(t, err)

	userID, err := verifier.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", userID)

	t.Run("wrong secret", func(t *testing.T) {
		bad, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "alice"}).
			SignedString([]byte("other-secret"))
		require.NoError(t, err)
		_, err = verifier.Verify(bad)
		assert.Error(t, err)
	})

	t.Run("missing subject", func(t *testing.T) {
		anon, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{}).SignedString(secret)
		require.NoError(t, err)
		_, err = verifier.Verify(anon)
		assert.Error(t, err)
	})

	t.Run("expired", func(t *testing.T) {
		old, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub": "alice",
			"exp": time.Now().Add(-time.Hour).Unix(),
		}).SignedString(secret)
		require.NoError(t, err)
		_, err = verifier.Verify(old)
		assert.Error(t, err)
	})
}
