package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/DannyMichaels/code-dojo-app/internal/auth"
	"github.com/DannyMichaels/code-dojo-app/internal/belt"
	"github.com/DannyMichaels/code-dojo-app/internal/dojo"
	"github.com/DannyMichaels/code-dojo-app/internal/logging"
	"github.com/DannyMichaels/code-dojo-app/internal/orchestrator"
	"github.com/DannyMichaels/code-dojo-app/internal/provider"
	"github.com/DannyMichaels/code-dojo-app/internal/sessionlock"
	"github.com/DannyMichaels/code-dojo-app/internal/storage"
	"github.com/DannyMichaels/code-dojo-app/internal/tools"
	"github.com/DannyMichaels/code-dojo-app/pkg/models"
)

type testEnv struct {
	srv      *httptest.Server
	svc      *dojo.Service
	reasoner *provider.ScriptedReasoner
}

func newTestEnv(t *testing.T, cfg Config, opts []Option, rounds ...provider.ScriptedRound) *testEnv {
	t.Helper()
	store := storage.NewMemory()
	executor, err := tools.NewExecutor(nil, nil)
	require.NoError(t, err)
	reasoner := provider.NewScriptedReasoner(rounds...)
	orch, err := orchestrator.New(store, sessionlock.NewMemoryLocker(0), reasoner, executor, orchestrator.Config{})
	require.NoError(t, err)
	svc := dojo.New(store, nil, dojo.WithOrchestrator(orch))

	server, err := NewServer(svc, cfg, opts...)
	require.NoError(t, err)
	srv := httptest.NewServer(server.SetupRoutes())
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, svc: svc, reasoner: reasoner}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers ...string) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, r)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := e.srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (e *testEnv) enroll(t *testing.T, user, skill string) dojo.Enrollment {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/api/v1/skills", EnrollRequest{SkillName: skill}, auth.UserIDHeader, user)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[dojo.Enrollment](t, resp)
}

// sseEvents reads a text/event-stream body to the end.
func sseEvents(t *testing.T, resp *http.Response) []orchestrator.Event {
	t.Helper()
	var events []orchestrator.Event
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev orchestrator.Event
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		events = append(events, ev)
	}
	require.NoError(t, scanner.Err())
	return events
}

func TestSkillAndSessionRoutes(t *testing.T) {
	env := newTestEnv(t, Config{}, nil)
	e := env.enroll(t, "user-1", "Go")
	assert.Equal(t, "user-1", e.Skill.UserID)
	assert.Equal(t, models.SessionTypeOnboarding, e.Session.Type)

	resp := env.do(t, http.MethodPost, "/api/v1/skills", EnrollRequest{SkillName: "Go"}, auth.UserIDHeader, "user-1")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp = env.do(t, http.MethodPost, "/api/v1/skills", EnrollRequest{SkillName: "  "})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	list := decode[struct {
		Count int `json:"count"`
	}](t, env.do(t, http.MethodGet, "/api/v1/skills", nil, auth.UserIDHeader, "user-1"))
	assert.Equal(t, 1, list.Count)
	other := decode[struct {
		Count int `json:"count"`
	}](t, env.do(t, http.MethodGet, "/api/v1/skills", nil))
	assert.Zero(t, other.Count, "default user sees nothing")

	skillPath := "/api/v1/skills/" + e.Skill.ID
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, skillPath, nil).StatusCode)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/v1/skills/missing", nil).StatusCode)

	sessions := decode[struct {
		Sessions []dojo.SessionSummary `json:"sessions"`
	}](t, env.do(t, http.MethodGet, skillPath+"/sessions", nil))
	require.Len(t, sessions.Sessions, 1)

	resp = env.do(t, http.MethodPost, skillPath+"/sessions", CreateSessionRequest{Type: models.SessionTypeKata})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	kata := decode[models.Session](t, resp)
	assert.Equal(t, models.SessionTypeKata, kata.Type)

	assert.Equal(t, http.StatusUnprocessableEntity,
		env.do(t, http.MethodPost, skillPath+"/sessions", CreateSessionRequest{Type: models.SessionTypeAssessment}).StatusCode)
	assert.Equal(t, http.StatusBadRequest,
		env.do(t, http.MethodPost, skillPath+"/sessions", CreateSessionRequest{Type: "sparring"}).StatusCode)

	resp = env.do(t, http.MethodDelete, "/api/v1/sessions/"+kata.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.SessionStatusAbandoned, decode[models.Session](t, resp).Status)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodDelete, "/api/v1/sessions/"+kata.ID, nil).StatusCode)

	session := decode[models.Session](t, env.do(t, http.MethodGet, "/api/v1/sessions/"+e.Session.ID, nil))
	assert.Equal(t, e.Session.ID, session.ID)
}

func TestProgressRoutes(t *testing.T) {
	env := newTestEnv(t, Config{}, nil)
	e := env.enroll(t, "user-1", "Rust")
	skillPath := "/api/v1/skills/" + e.Skill.ID

	info := decode[dojo.BeltInfo](t, env.do(t, http.MethodGet, skillPath+"/belt-info", nil))
	assert.Equal(t, models.BeltWhite, info.CurrentBelt)
	assert.False(t, info.Eligible)
	assert.Len(t, info.BeltOrder, len(models.BeltOrder))

	assert.Equal(t, http.StatusUnprocessableEntity, env.do(t, http.MethodPost, skillPath+"/promote", nil).StatusCode)

	progress := decode[dojo.Progress](t, env.do(t, http.MethodGet, skillPath+"/progress", nil))
	assert.Equal(t, 1, progress.SessionCount)
	require.Len(t, progress.BeltHistory, 1)

	history := decode[struct {
		Count int `json:"count"`
	}](t, env.do(t, http.MethodGet, skillPath+"/belt-history", nil))
	assert.Equal(t, 1, history.Count)

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, skillPath+"/focus?limit=3", nil).StatusCode)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodDelete, skillPath+"/reinforcement/closures", nil).StatusCode)

	dash := decode[dojo.Dashboard](t, env.do(t, http.MethodGet, "/api/v1/progress", nil, auth.UserIDHeader, "user-1"))
	assert.Equal(t, 1, dash.TotalSkills)

	stats := decode[dojo.BeltStats](t, env.do(t, http.MethodGet, "/api/v1/belt-stats/Rust", nil))
	assert.Equal(t, 1, stats.TotalStudents)
	assert.Zero(t, stats.RecentPromotions)

	table := decode[map[models.Belt]belt.Requirement](t, env.do(t, http.MethodGet, "/api/v1/belt-requirements", nil))
	assert.Equal(t, belt.DefaultRequirement(0), table[models.BeltWhite])
	assert.NotContains(t, table, models.BeltBlack)

	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, skillPath, nil).StatusCode)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, skillPath+"/progress", nil).StatusCode)
}

func TestSendMessage_StreamsEvents(t *testing.T) {
	env := newTestEnv(t, Config{}, nil,
		provider.ScriptedRound{Events: []provider.ReasoningEvent{
			provider.Text("Welcome. "),
			provider.Call("c1", tools.SetTrainingContext, map[string]any{"context": "web services"}),
		}},
		provider.ScriptedRound{Events: []provider.ReasoningEvent{provider.Text("First question?")}},
	)
	e := env.enroll(t, "user-1", "Go")

	resp := env.do(t, http.MethodPost, "/api/v1/sessions/"+e.Session.ID+"/messages", SendMessageRequest{Content: "hello"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := sseEvents(t, resp)
	require.NotEmpty(t, events)
	var kinds []orchestrator.EventType
	for _, ev := range events {
		kinds = append(kinds, ev.Type)
	}
	assert.Equal(t, []orchestrator.EventType{
		orchestrator.EventText, orchestrator.EventToolUse, orchestrator.EventText, orchestrator.EventDone,
	}, kinds)
	assert.Equal(t, orchestrator.ReasonFinal, events[len(events)-1].Reason)

	session, err := env.svc.GetSession(t.Context(), e.Session.ID)
	require.NoError(t, err)
	require.Len(t, session.Messages, 2)
	assert.Equal(t, "Welcome. First question?", session.Messages[1].Content)
}

func TestSendMessage_Rejections(t *testing.T) {
	env := newTestEnv(t, Config{}, nil)
	e := env.enroll(t, "user-1", "Go")
	path := "/api/v1/sessions/" + e.Session.ID + "/messages"

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, path, SendMessageRequest{}).StatusCode)
	assert.Equal(t, http.StatusBadRequest,
		env.do(t, http.MethodPost, path, SendMessageRequest{Content: strings.Repeat("x", orchestrator.MaxContentLength+1)}).StatusCode)
	assert.Equal(t, http.StatusNotFound,
		env.do(t, http.MethodPost, "/api/v1/sessions/nope/messages", SendMessageRequest{Content: "hi"}).StatusCode)

	resp := env.do(t, http.MethodPost, path, "not an object")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodDelete, "/api/v1/sessions/"+e.Session.ID, nil).StatusCode)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, path, SendMessageRequest{Content: "hi"}).StatusCode)
	assert.Zero(t, len(env.reasoner.Requests()), "no turn reached the reasoner")
}

func TestSendMessage_ConcurrentTurnConflicts(t *testing.T) {
	gate := make(chan struct{})
	env := newTestEnv(t, Config{}, nil, provider.ScriptedRound{
		Gate:   gate,
		Events: []provider.ReasoningEvent{provider.Text("done")},
	})
	e := env.enroll(t, "user-1", "Go")
	path := "/api/v1/sessions/" + e.Session.ID + "/messages"

	first := env.do(t, http.MethodPost, path, SendMessageRequest{Content: "one"})
	require.Equal(t, http.StatusOK, first.StatusCode)
	require.Eventually(t, func() bool { return len(env.reasoner.Requests()) == 1 }, 5*time.Second, 5*time.Millisecond)

	second := env.do(t, http.MethodPost, path, SendMessageRequest{Content: "two"})
	assert.Equal(t, http.StatusConflict, second.StatusCode)

	close(gate)
	events := sseEvents(t, first)
	require.NotEmpty(t, events)
	assert.Equal(t, orchestrator.EventDone, events[len(events)-1].Type)

	session, err := env.svc.GetSession(t.Context(), e.Session.ID)
	require.NoError(t, err)
	assert.Len(t, session.Messages, 2, "the rejected turn left no trace")
}

func TestSessionSocket(t *testing.T) {
	env := newTestEnv(t, Config{AllowedOrigins: []string{"https://dojo.example"}}, nil,
		provider.ScriptedRound{Events: []provider.ReasoningEvent{provider.Text("hi there")}})
	e := env.enroll(t, "user-1", "Go")
	url := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/api/v1/sessions/" + e.Session.ID + "/ws"

	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	require.NoError(t, conn.WriteJSON(SendMessageRequest{Content: "hello"}))
	var events []orchestrator.Event
	for {
		var ev orchestrator.Event
		require.NoError(t, conn.ReadJSON(&ev))
		events = append(events, ev)
		if ev.Terminal() {
			break
		}
	}
	assert.Equal(t, orchestrator.EventText, events[0].Type)
	assert.Equal(t, "hi there", events[0].Content)
	assert.Equal(t, orchestrator.EventDone, events[len(events)-1].Type)

	require.NoError(t, conn.WriteJSON(SendMessageRequest{Content: ""}))
	var rejected socketError
	require.NoError(t, conn.ReadJSON(&rejected))
	assert.Equal(t, orchestrator.EventError, rejected.Type)
	assert.Equal(t, http.StatusBadRequest, rejected.Status)

	_, resp, err = websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(strings.Replace(url, e.Session.ID, "missing", 1), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAuthMiddleware(t *testing.T) {
	const key = "integration-key-0123"
	hash, err := auth.HashAPIKey(key)
	require.NoError(t, err)
	authenticator, err := auth.NewAuthenticator(auth.Config{JWTSecret: "secret", APIKeyHashes: []string{hash}}, nil)
	require.NoError(t, err)
	env := newTestEnv(t, Config{EnableAuth: true}, []Option{WithAuthenticator(authenticator)})

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/v1/health", nil).StatusCode)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/metrics", nil).StatusCode)

	resp := env.do(t, http.MethodGet, "/api/v1/skills", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("WWW-Authenticate"))
	assert.Equal(t, http.StatusUnauthorized,
		env.do(t, http.MethodGet, "/api/v1/skills", nil, "Authorization", "Bearer forged").StatusCode)

	token, _, err := authenticator.IssueToken("user-tok")
	require.NoError(t, err)
	resp = env.do(t, http.MethodPost, "/api/v1/skills", EnrollRequest{SkillName: "Go"},
		"Authorization", "Bearer "+token, auth.UserIDHeader, "someone-else")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "user-tok", decode[dojo.Enrollment](t, resp).Skill.UserID, "token subject wins over the header")

	resp = env.do(t, http.MethodGet, "/api/v1/skills", nil, auth.APIKeyHeader, key, auth.UserIDHeader, "user-tok")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, decode[struct {
		Count int `json:"count"`
	}](t, resp).Count)
}

func TestNewServer_RequiresAuthenticator(t *testing.T) {
	svc := dojo.New(storage.NewMemory(), nil)
	_, err := NewServer(svc, Config{EnableAuth: true})
	assert.Error(t, err)
	_, err = NewServer(nil, Config{})
	assert.Error(t, err)
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t, Config{AllowedOrigins: []string{"https://dojo.example"}}, nil)

	resp := env.do(t, http.MethodOptions, "/api/v1/skills", nil, "Origin", "https://dojo.example")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "https://dojo.example", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Headers"), "Authorization")

	resp = env.do(t, http.MethodGet, "/api/v1/health", nil, "Origin", "https://evil.example")
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestMetricsAndLogs(t *testing.T) {
	buf := logging.NewBuffer(50, zapcore.DebugLevel)
	env := newTestEnv(t, Config{}, []Option{WithLogger(zap.New(buf)), WithLogBuffer(buf)})
	env.enroll(t, "user-1", "Go")

	resp := env.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `dojo_http_requests_total{method="POST",path="POST /api/v1/skills",status="201"}`)

	logs := decode[struct {
		Logs  []logging.LogEntry `json:"logs"`
		Count int                `json:"count"`
	}](t, env.do(t, http.MethodGet, "/api/v1/logs?source=api&limit=10", nil))
	assert.NotZero(t, logs.Count)
	for _, entry := range logs.Logs {
		assert.True(t, strings.HasPrefix(entry.Source, "api"))
	}
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/v1/logs?since=yesterday", nil).StatusCode)

	bare := newTestEnv(t, Config{}, nil)
	assert.Equal(t, http.StatusServiceUnavailable, bare.do(t, http.MethodGet, "/api/v1/logs", nil).StatusCode)
}

func TestHealthCheck(t *testing.T) {
	healthy := newTestEnv(t, Config{}, []Option{WithHealthCheck(func(context.Context) error { return nil })})
	assert.Equal(t, http.StatusOK, healthy.do(t, http.MethodGet, "/api/v1/health", nil).StatusCode)

	down := newTestEnv(t, Config{}, []Option{WithHealthCheck(func(context.Context) error { return errors.New("database down") })})
	resp := down.do(t, http.MethodGet, "/api/v1/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "unavailable", decode[map[string]string](t, resp)["status"])
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{orchestrator.ErrTurnInProgress, http.StatusConflict},
		{fmt.Errorf("enroll: %w", dojo.ErrAlreadyEnrolled), http.StatusConflict},
		{fmt.Errorf("skill x: %w", storage.ErrNotFound), http.StatusNotFound},
		{orchestrator.ErrSessionNotFound, http.StatusNotFound},
		{orchestrator.ErrSessionNotActive, http.StatusBadRequest},
		{models.ErrSessionTerminal, http.StatusBadRequest},
		{orchestrator.ErrEmptyContent, http.StatusBadRequest},
		{dojo.ErrInvalidSessionType, http.StatusBadRequest},
		{belt.ErrTopRank, http.StatusUnprocessableEntity},
		{&belt.NotEligibleError{}, http.StatusUnprocessableEntity},
		{dojo.ErrAssessmentUnavailable, http.StatusUnprocessableEntity},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), "%v", tt.err)
	}
}
