// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/mindmap-editor/internal/agent"
	"github.com/jeranaias/mindmap-editor/internal/cloud"
	"github.com/jeranaias/mindmap-editor/internal/docstore"
	"github.com/jeranaias/mindmap-editor/internal/hub"
	"github.com/jeranaias/mindmap-editor/internal/locale"
)

// =============================================================================
// FIXTURES
// =============================================================================

type fakeProvider struct {
	configured bool
	reply      string
}

func (p *fakeProvider) Name() string       { return "fake" }
func (p *fakeProvider) IsConfigured() bool { return p.configured }

func (p *fakeProvider) StreamChat(_ context.Context, _ cloud.ChatRequest, onDelta cloud.DeltaFunc) (*cloud.ChatMessage, error) {
	if err := onDelta(p.reply); err != nil {
		return nil, err
	}
	return &cloud.ChatMessage{Role: cloud.RoleAssistant, Content: p.reply}, nil
}

// recorder is a hub subscriber that keeps every event it is sent.
type recorder struct {
	events []hub.Event
}

func (r *recorder) ID() string { return "recorder" }

func (r *recorder) Send(_ context.Context, ev hub.Event) error {
	r.events = append(r.events, ev)
	return nil
}

type fixture struct {
	srv     *Server
	handler http.Handler
	hub     *hub.Hub
	store   *docstore.Store
	sub     *recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/mm/01_intro/01_basics", 0o755))
	require.NoError(t, afero.WriteFile(fs, "/mm/01_intro/content.md", []byte("# Intro\n- point"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/mm/01_intro/01_basics/content.md", []byte("Basics"), 0o644))
	require.NoError(t, fs.MkdirAll("/locales", 0o755))
	require.NoError(t, afero.WriteFile(fs, "/locales/en.json", []byte(`{"save":"Save"}`), 0o644))

	h := hub.New(nil)
	store := docstore.New("/mm").WithFs(fs).WithNotifier(h).WithTitle("Course")
	sub := &recorder{}
	h.Subscribe(sub)

	srv := NewServer(store, h).
		WithLocales(locale.New("/locales").WithFs(fs)).
		WithAgent(agent.New(&fakeProvider{configured: true, reply: "Done editing"}, nil, agent.Options{Model: "m"}))
	return &fixture{srv: srv, handler: srv.Handler(), hub: h, store: store, sub: sub}
}

func (f *fixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

// =============================================================================
// DOCUMENT TESTS
// =============================================================================

func TestListFiles(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/files", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Files []docstore.File `json:"files"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []docstore.File{
		{Path: "01_intro/01_basics/content.md", Name: "content.md", Module: "01_intro"},
		{Path: "01_intro/content.md", Name: "content.md", Module: "01_intro"},
	}, body.Files)
}

func TestReadFile(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/files/01_intro/content.md", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "01_intro/content.md", body["path"])
	assert.Equal(t, "# Intro\n- point", body["content"])

	rec = f.do(t, http.MethodGet, "/api/files/01_intro/missing.md", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "File not found: 01_intro/missing.md", decode(t, rec)["detail"])

	rec = f.do(t, http.MethodGet, "/api/files/01_intro", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReadFile_Traversal(t *testing.T) {
	f := newFixture(t)
	for _, p := range []string{"../etc/passwd", "01_intro/../../secret", "/etc/passwd"} {
		req := httptest.NewRequest(http.MethodGet, "/api/files/x", nil)
		req.SetPathValue("path", p)
		rec := httptest.NewRecorder()
		f.srv.handleReadFile(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code, p)
		assert.Equal(t, "Access denied", decode(t, rec)["detail"], p)
	}
}

func TestWriteFile(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPut, "/api/files/01_intro/content.md",
		`{"path":"ignored/elsewhere.md","content":"# Intro\n- rewritten"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, map[string]any{"status": "ok", "path": "01_intro/content.md"}, decode(t, rec))

	got, err := f.store.Read("01_intro/content.md")
	require.NoError(t, err)
	assert.Equal(t, "# Intro\n- rewritten", got)

	require.Len(t, f.sub.events, 1)
	assert.Equal(t, hub.TypeFileUpdated, f.sub.events[0].Type)
	assert.Equal(t, "01_intro/content.md", f.sub.events[0].Path)
}

func TestWriteFile_Errors(t *testing.T) {
	f := newFixture(t)
	huge := strings.Repeat("x", docstore.MaxDocumentSize+1)

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{"bad json", "01_intro/content.md", `{`, http.StatusBadRequest},
		{"missing content", "01_intro/content.md", `{"path":"01_intro/content.md"}`, http.StatusBadRequest},
		{"too large", "01_intro/content.md", `{"content":"` + huge + `"}`, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPut, "/api/files/"+tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
	assert.Empty(t, f.sub.events)
}

func TestWriteFile_SizeBoundary(t *testing.T) {
	f := newFixture(t)
	exact := strings.Repeat("x", docstore.MaxDocumentSize)

	rec := f.do(t, http.MethodPut, "/api/files/01_intro/content.md", `{"content":"`+exact+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPut, "/api/files/01_intro/content.md", `{"content":"`+exact+`x"}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Contains(t, strings.ToLower(decode(t, rec)["detail"].(string)), "too large")

	got, err := f.store.Read("01_intro/content.md")
	require.NoError(t, err)
	assert.Len(t, got, docstore.MaxDocumentSize)
}

func TestWriteFile_EscapedMaximumDocument(t *testing.T) {
	f := newFixture(t)
	content := strings.Repeat("\x01", docstore.MaxDocumentSize)
	body, err := json.Marshal(map[string]string{"content": content})
	require.NoError(t, err)
	require.Greater(t, len(body), 5*docstore.MaxDocumentSize)

	rec := f.do(t, http.MethodPut, "/api/files/01_intro/content.md", string(body))
	require.Equal(t, http.StatusOK, rec.Code)

	got, err := f.store.Read("01_intro/content.md")
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestTree(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/tree", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var tree docstore.Tree
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tree))
	assert.Equal(t, "Course", tree.Title)
	require.Len(t, tree.Modules, 1)
	assert.Equal(t, "01_intro", tree.Modules[0].Name)
}

// =============================================================================
// SETTINGS TESTS
// =============================================================================

func TestConfig(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/config", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, string(defaultPublicConfig), rec.Body.String())

	f.srv.WithPublicConfig(json.RawMessage(`{"theme":"dark"}`))
	rec = f.do(t, http.MethodGet, "/api/config", "")
	assert.JSONEq(t, `{"theme":"dark"}`, rec.Body.String())
}

func TestLocale(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/locales/de", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"save":"Save"}`, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/locales/english", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid locale format", decode(t, rec)["detail"])
}

// =============================================================================
// ASSISTANT TESTS
// =============================================================================

func TestAgentStatus(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/agent/status", "")
	assert.Equal(t, map[string]any{"available": true, "message": "Agent ready"}, decode(t, rec))

	f.srv.WithAgent(nil)
	rec = f.do(t, http.MethodGet, "/api/agent/status", "")
	assert.Equal(t, map[string]any{"available": false, "message": "Claude Agent SDK not available"}, decode(t, rec))
}

func TestAgentChat_Streams(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/agent/chat", `{"message":"tidy the intro"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	var payloads []string
	scanner := bufio.NewScanner(rec.Body)
	for scanner.Scan() {
		if data, ok := strings.CutPrefix(scanner.Text(), "data: "); ok {
			payloads = append(payloads, data)
		}
	}
	require.Len(t, payloads, 3)
	assert.JSONEq(t, `{"type":"text","content":"Done editing"}`, payloads[0])
	assert.JSONEq(t, `{"type":"result","content":"Done editing"}`, payloads[1])
	assert.JSONEq(t, `{"done":true}`, payloads[2])
	assert.Contains(t, rec.Body.String(), "id: ")
}

func TestAgentChat_Rejects(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/agent/chat", `{"message":"   "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Message cannot be empty", decode(t, rec)["detail"])

	rec = f.do(t, http.MethodPost, "/api/agent/chat", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.srv.WithAgent(agent.New(&fakeProvider{}, nil, agent.Options{}))
	rec = f.do(t, http.MethodPost, "/api/agent/chat", `{"message":"hi"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, decode(t, rec)["detail"], "Agent not available")
}

func TestAgentChat_RateLimited(t *testing.T) {
	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	now := start
	fs := afero.NewMemMapFs()
	h := hub.New(nil)
	srv := NewServer(docstore.New("/mm").WithFs(fs), h).
		WithRateLimiter(NewRateLimiter(10, time.Minute).WithClock(func() time.Time { return now }))
	handler := srv.Handler()

	chat := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/agent/chat", strings.NewReader(`{"message":""}`))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	// Ten requests at the start of the window, two more half a minute later.
	codes := map[int]int{}
	for range 10 {
		codes[chat().Code]++
	}
	now = start.Add(30 * time.Second)
	rec := chat()
	codes[rec.Code]++
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))
	now = start.Add(31 * time.Second)
	rec = chat()
	codes[rec.Code]++
	assert.Equal(t, "29", rec.Header().Get("Retry-After"))

	assert.Equal(t, 10, codes[http.StatusBadRequest])
	assert.Equal(t, 2, codes[http.StatusTooManyRequests])

	// The window slides: once the first burst expires, requests pass again.
	now = start.Add(time.Minute + time.Second)
	assert.Equal(t, http.StatusBadRequest, chat().Code)

	// Other endpoints are not limited.
	for range 12 {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/agent/status", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestRateLimiter_SlidingWindow(t *testing.T) {
	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	now := start
	rl := NewRateLimiter(3, time.Minute).WithClock(func() time.Time { return now })

	for i := range 3 {
		now = start.Add(time.Duration(i*20) * time.Second)
		ok, remaining, _ := rl.Allow("a")
		require.True(t, ok)
		assert.Equal(t, 2-i, remaining)
	}

	now = start.Add(50 * time.Second)
	ok, _, retry := rl.Allow("a")
	assert.False(t, ok)
	assert.Equal(t, 10*time.Second, retry)

	// Other clients have their own window.
	ok, _, _ = rl.Allow("b")
	assert.True(t, ok)

	// The request at t=0 expires; the one at t=20s still counts.
	now = start.Add(61 * time.Second)
	ok, _, _ = rl.Allow("a")
	assert.True(t, ok)
	ok, _, _ = rl.Allow("a")
	assert.False(t, ok)
}

// =============================================================================
// FRONTEND TESTS
// =============================================================================

func TestIndexAndStatic(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>mindmap</html>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.js"), []byte("console.log(1)"), 0o644))

	h := hub.New(nil)
	srv := NewServer(docstore.New("/mm").WithFs(afero.NewMemMapFs()), h).WithStaticDir(dir)
	handler := srv.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "mindmap")

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/static/app.js", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "console.log(1)", rec.Body.String())
}

func TestIndex_NoStaticDir(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	body := decode(t, f.do(t, http.MethodGet, "/health", ""))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, Version, body["version"])
	assert.EqualValues(t, 1, body["subscribers"])
	assert.Equal(t, "fake", body["agent"])
}

// =============================================================================
// CORS TESTS
// =============================================================================

func TestCORS(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/files", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "PUT")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodGet, "/api/files", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

// =============================================================================
// LIFECYCLE TESTS
// =============================================================================

func TestShutdown_NotStarted(t *testing.T) {
	f := newFixture(t)
	assert.NoError(t, f.srv.Shutdown(context.Background()))
}
