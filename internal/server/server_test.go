package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/cofounder-match/internal/auth"
	"github.com/sakif/cofounder-match/internal/config"
)

const testSecret = "server-test-secret-0123456789"

func newTestServer(t *testing.T) (*httptest.Server, *auth.TokenService) {
	t.Helper()
	cfg := config.Config{
		Port:                 0,
		DBPath:               ":memory:",
		JWTSecret:            testSecret,
		StatsRefreshInterval: time.Minute,
		CORSAllowedOrigins:   []string{"https://app.example"},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s, err := New(cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	tokens, err := auth.NewTokenService(testSecret)
	require.NoError(t, err)
	return ts, tokens
}

func call(t *testing.T, ts *httptest.Server, method, path, token string, body any) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, ts.URL+path, rd)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestNew_RejectsShortSecret(t *testing.T) {
	_, err := New(config.Config{DBPath: ":memory:", JWTSecret: "short"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, err)
}

func TestServer_PublicRoutes(t *testing.T) {
	ts, _ := newTestServer(t)

	for _, path := range []string{"/healthz", "/api/statistics", "/api/matches/featured"} {
		resp := call(t, ts, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}

func TestServer_ProtectedRoutesNeedToken(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := call(t, ts, http.MethodGet, "/api/matches", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = call(t, ts, http.MethodGet, "/api/conversations", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServer_EndToEnd(t *testing.T) {
	ts, tokens := newTestServer(t)
	alice, err := tokens.Issue("alice", time.Hour)
	require.NoError(t, err)
	bob, err := tokens.Issue("bob", time.Hour)
	require.NoError(t, err)

	resp := call(t, ts, http.MethodPost, "/api/matches", alice,
		map[string]any{"userA": "alice", "userB": "bob", "compatibilityScore": 82})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var m struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&m))

	resp = call(t, ts, http.MethodPost, "/api/matches/"+m.ID+"/status", bob, map[string]string{"status": "accepted"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var decision struct {
		Conversation struct {
			ID string `json:"id"`
		} `json:"conversation"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decision))
	require.NotEmpty(t, decision.Conversation.ID)

	resp = call(t, ts, http.MethodPost, "/api/conversations/"+decision.Conversation.ID+"/messages", alice,
		map[string]string{"content": "Hi Bob!"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = call(t, ts, http.MethodGet, "/api/conversations/unread", bob, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var unread map[string]int64
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&unread))
	assert.Equal(t, int64(1), unread["unread"])

	// Both callers were recorded as members by the activity middleware.
	resp = call(t, ts, http.MethodGet, "/api/statistics", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var stats struct {
		TotalUsers        int64 `json:"totalUsers"`
		SuccessfulMatches int64 `json:"successfulMatches"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, int64(2), stats.TotalUsers)
	assert.Equal(t, int64(1), stats.SuccessfulMatches)

	resp = call(t, ts, http.MethodPost, "/api/reports", bob,
		map[string]string{"reported": "mallory", "reason": "spam", "description": "crypto pitch in every message"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = call(t, ts, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "cofounder_matches_created_total 1")
	assert.Contains(t, string(body), "cofounder_messages_sent_total 1")
	assert.Contains(t, string(body), `cofounder_reports_filed_total{reason="spam"} 1`)
}

func TestServer_CORS(t *testing.T) {
	ts, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/matches", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "https://app.example", resp.Header.Get("Access-Control-Allow-Origin"))
}
