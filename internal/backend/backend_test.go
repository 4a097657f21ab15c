package backend_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vcanalyst/internal/backend"
	"vcanalyst/internal/card"
	"vcanalyst/internal/research"
	"vcanalyst/internal/transport"
)

const testKey = "secret"

func newBackend(t *testing.T, wrap func(http.Handler) http.Handler) *httptest.Server {
	t.Helper()
	var h http.Handler = backend.New(backend.Options{APIKey: testKey})
	if wrap != nil {
		h = wrap(h)
	}
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

// withoutSockets makes the streaming endpoints unreachable so the client
// has to use its HTTP fallback.
func withoutSockets(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/ws/") {
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func newClient(srv *httptest.Server, key string) *transport.Client {
	return transport.New(transport.Options{
		BaseURL:       srv.URL,
		APIKey:        key,
		FallbackAfter: 2 * time.Second,
		HTTPTimeout:   5 * time.Second,
	})
}

func waitCall(t *testing.T, call *transport.Call) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	select {
	case <-call.Done():
	case <-ctx.Done():
		t.Fatal("call did not settle")
	}
}

type researchResult struct {
	mu       sync.Mutex
	progress []float64
	record   *research.Record
	err      error
}

func (r *researchResult) callbacks() transport.ResearchCallbacks {
	return transport.ResearchCallbacks{
		OnProgress: func(_ string, pct float64) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.progress = append(r.progress, pct)
		},
		OnResult: func(rec research.Record) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.record = &rec
		},
		OnError: func(err error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.err = err
		},
	}
}

func TestHealthCheck(t *testing.T) {
	srv := newBackend(t, nil)
	h, err := newClient(srv, "").HealthCheck(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", h.Status)
}

func TestStartupBasicsRequiresKey(t *testing.T) {
	srv := newBackend(t, nil)

	rec, err := newClient(srv, testKey).StartupBasics(context.Background(), "Acme")
	require.NoError(t, err)
	assert.Equal(t, "Acme", rec.CompanyName)
	assert.Equal(t, "Logistics Software", rec.Industry)
	assert.Nil(t, rec.Funding)

	_, err = newClient(srv, "wrong").StartupBasics(context.Background(), "Acme")
	var httpErr *transport.HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusUnauthorized, httpErr.Status)
	assert.Contains(t, err.Error(), "invalid API key")
}

func TestResearchOverSocket(t *testing.T) {
	srv := newBackend(t, nil)
	var got researchResult

	call, err := newClient(srv, testKey).StartResearch(context.Background(), "Acme Robotics", got.callbacks())
	require.NoError(t, err)
	waitCall(t, call)

	require.NoError(t, got.err)
	require.NotNil(t, got.record)
	assert.Equal(t, "Acme Robotics", got.record.CompanyName)
	assert.Equal(t, []float64{10, 30, 55, 75, 90}, got.progress)
	require.NotNil(t, got.record.Funding)
	assert.Len(t, got.record.Funding.Rounds, 2)
	assert.Equal(t, transport.ModeSocketActive, call.Channel())
	assert.Equal(t, transport.ModeSettled, call.Mode())
}

func TestResearchRejectsBadCredential(t *testing.T) {
	srv := newBackend(t, nil)
	var got researchResult

	call, err := newClient(srv, "wrong").StartResearch(context.Background(), "Acme", got.callbacks())
	require.NoError(t, err)
	waitCall(t, call)

	assert.Nil(t, got.record)
	var backendErr *transport.BackendError
	require.True(t, errors.As(got.err, &backendErr))
	assert.Equal(t, "invalid API key", backendErr.Message)
}

func TestResearchFallsBackToHTTP(t *testing.T) {
	srv := newBackend(t, withoutSockets)
	var got researchResult

	call, err := newClient(srv, testKey).StartResearch(context.Background(), "Acme", got.callbacks())
	require.NoError(t, err)
	waitCall(t, call)

	require.NoError(t, got.err)
	require.NotNil(t, got.record)
	assert.Equal(t, "Acme", got.record.CompanyName)
	assert.Empty(t, got.progress)
	assert.Equal(t, transport.ModeFallbackActive, call.Channel())
}

type chatResult struct {
	mu        sync.Mutex
	fragments []string
	cards     []card.Card
	final     string
	err       error
}

func (r *chatResult) callbacks() transport.ChatCallbacks {
	return transport.ChatCallbacks{
		OnContent: func(fragment string) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.fragments = append(r.fragments, fragment)
		},
		OnToolEvent: func(c card.Card) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.cards = append(r.cards, c)
		},
		OnFinal: func(text string) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.final = text
		},
		OnError: func(err error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.err = err
		},
	}
}

func chatRecord() research.Record {
	return research.Record{
		CompanyName: "Acme",
		Industry:    "Robotics",
		Funding:     &research.Funding{Legacy: true, Total: "$12M"},
	}
}

func TestChatOverSocket(t *testing.T) {
	srv := newBackend(t, nil)
	var got chatResult
	history := []transport.HistoryEntry{{Role: transport.RoleUser, Content: "hi"}}

	call, err := newClient(srv, testKey).SendChatTurn(context.Background(), "Who funds them?", history, chatRecord(), got.callbacks())
	require.NoError(t, err)
	waitCall(t, call)

	require.NoError(t, got.err)
	assert.Greater(t, len(got.fragments), 1)
	assert.Equal(t, got.final, strings.Join(got.fragments, ""))
	assert.Contains(t, got.final, "Robotics")
	assert.Contains(t, got.final, "$12M")
	require.Len(t, got.cards, 1)
	assert.Equal(t, "text-analyst-notes", got.cards[0].ID)
	assert.Equal(t, transport.ModeSocketActive, call.Channel())
}

func TestChatFallsBackToHTTP(t *testing.T) {
	srv := newBackend(t, withoutSockets)
	var got chatResult

	call, err := newClient(srv, testKey).SendChatTurn(context.Background(), "Summary?", nil, chatRecord(), got.callbacks())
	require.NoError(t, err)
	waitCall(t, call)

	require.NoError(t, got.err)
	assert.Empty(t, got.fragments)
	assert.Contains(t, got.final, "Acme")
	require.Len(t, got.cards, 1)
	assert.Equal(t, card.TypeText, got.cards[0].Type)
	assert.Equal(t, transport.ModeFallbackActive, call.Channel())
}

func TestResearchSocketAcceptsSnakeCaseHandshake(t *testing.T) {
	srv := newBackend(t, nil)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/research"

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]string{
		"api_key":      testKey,
		"company_name": "Globex",
	}))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var last transport.Frame
	for {
		var f transport.Frame
		require.NoError(t, conn.ReadJSON(&f))
		last = f
		if f.Type != transport.FrameProgress {
			break
		}
	}
	require.Equal(t, transport.FrameResult, last.Type)
	rec, err := research.Decode(last.Data)
	require.NoError(t, err)
	assert.Equal(t, "Globex", rec.CompanyName)
}

func TestChatRejectsEmptyMessageOverHTTP(t *testing.T) {
	srv := newBackend(t, nil)
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/chat", strings.NewReader(`{"message":"  "}`))
	require.NoError(t, err)
	req.Header.Set("X-API-Key", testKey)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	srv := newBackend(t, backend.CORS)
	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/research", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Headers"), "X-API-Key")
}
