package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vcanalyst/internal/card"
	"vcanalyst/internal/research"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// recorder collects every callback in arrival order.
type recorder struct {
	mu     sync.Mutex
	events []string
	recs   []research.Record
	cards  []card.Card
	errs   []error
	finals []string
}

func (r *recorder) add(ev string) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) research() ResearchCallbacks {
	return ResearchCallbacks{
		OnProgress: func(msg string, pct float64) { r.add(fmt.Sprintf("progress:%s:%.0f", msg, pct)) },
		OnResult: func(rec research.Record) {
			r.mu.Lock()
			r.recs = append(r.recs, rec)
			r.mu.Unlock()
			r.add("result:" + rec.CompanyName)
		},
		OnError: func(err error) {
			r.mu.Lock()
			r.errs = append(r.errs, err)
			r.mu.Unlock()
			r.add("error")
		},
	}
}

func (r *recorder) chat() ChatCallbacks {
	return ChatCallbacks{
		OnContent: func(s string) { r.add("content:" + s) },
		OnToolEvent: func(c card.Card) {
			r.mu.Lock()
			r.cards = append(r.cards, c)
			r.mu.Unlock()
			r.add("card:" + c.ID)
		},
		OnFinal: func(text string) {
			r.mu.Lock()
			r.finals = append(r.finals, text)
			r.mu.Unlock()
			r.add("final:" + text)
		},
		OnError: func(err error) {
			r.mu.Lock()
			r.errs = append(r.errs, err)
			r.mu.Unlock()
			r.add("error")
		},
	}
}

func (r *recorder) snapshot() ([]string, []error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...), append([]error(nil), r.errs...)
}

// scriptedSocket upgrades, hands the decoded hello to check, then writes
// frames in order.
func scriptedSocket(t *testing.T, check func(hello map[string]any), frames ...any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		var hello map[string]any
		if err := conn.ReadJSON(&hello); err != nil {
			t.Errorf("read hello: %v", err)
			return
		}
		if check != nil {
			check(hello)
		}
		for _, f := range frames {
			if raw, ok := f.(string); ok {
				_ = conn.WriteMessage(websocket.TextMessage, []byte(raw))
				continue
			}
			if err := conn.WriteJSON(f); err != nil {
				return
			}
		}
		// hold the socket open until the client closes it
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}
}

func waitDone(t *testing.T, c *Call) {
	t.Helper()
	select {
	case <-c.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("call did not settle")
	}
}

func newTestClient(srv *httptest.Server, fallback time.Duration) *Client {
	return New(Options{BaseURL: srv.URL, APIKey: "secret", FallbackAfter: fallback, HTTPTimeout: 5 * time.Second})
}

func TestResearchStreamDeliversProgressThenResult(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/research", scriptedSocket(t, func(hello map[string]any) {
		assert.Equal(t, "secret", hello["credential"])
		assert.Equal(t, "Acme", hello["companyName"])
	},
		Frame{Type: FrameProgress, Message: "searching", Percentage: 10},
		Frame{Type: "heartbeat"},
		Frame{Type: FrameProgress, Message: "analyzing", Percentage: 60},
		Frame{Type: FrameResult, Data: json.RawMessage(`{"company_name":"Acme","industry":"Robotics"}`)},
		Frame{Type: FrameProgress, Message: "late", Percentage: 99},
	))
	mux.HandleFunc("/research", func(w http.ResponseWriter, r *http.Request) {
		t.Error("fallback must not be used")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	rec := &recorder{}
	call, err := newTestClient(srv, 5*time.Second).StartResearch(context.Background(), "  Acme ", rec.research())
	require.NoError(t, err)
	waitDone(t, call)

	events, errs := rec.snapshot()
	assert.Equal(t, []string{"progress:searching:10", "progress:analyzing:60", "result:Acme"}, events)
	assert.Empty(t, errs)
	assert.Equal(t, "Robotics", rec.recs[0].Industry)
	assert.Equal(t, ModeSettled, call.Mode())
	assert.Equal(t, ModeSocketActive, call.Channel())
	assert.NoError(t, call.Err())
}

func TestResearchEmptyNameIsRejected(t *testing.T) {
	rec := &recorder{}
	call, err := New(Options{}).StartResearch(context.Background(), "   ", rec.research())
	assert.ErrorIs(t, err, ErrEmptyInput)
	assert.Nil(t, call)
	events, _ := rec.snapshot()
	assert.Empty(t, events)
}

func TestResearchBackendErrorIsVerbatim(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/research", scriptedSocket(t, nil, Frame{Type: FrameError, Message: "rate limited"}))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	rec := &recorder{}
	call, err := newTestClient(srv, 5*time.Second).StartResearch(context.Background(), "Acme", rec.research())
	require.NoError(t, err)
	waitDone(t, call)

	_, errs := rec.snapshot()
	require.Len(t, errs, 1)
	var be *BackendError
	require.ErrorAs(t, errs[0], &be)
	assert.Equal(t, "rate limited", errs[0].Error())
	assert.Equal(t, ModeFailed, call.Mode())
	assert.Equal(t, errs[0], call.Err())
}

func TestResearchMalformedFrameIsProtocolError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/research", scriptedSocket(t, nil, "{not json"))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	rec := &recorder{}
	call, err := newTestClient(srv, 5*time.Second).StartResearch(context.Background(), "Acme", rec.research())
	require.NoError(t, err)
	waitDone(t, call)

	_, errs := rec.snapshot()
	require.Len(t, errs, 1)
	var pe *ProtocolError
	require.ErrorAs(t, errs[0], &pe)
	assert.Contains(t, errs[0].Error(), "failed to parse server message")
}

func TestResearchCloseWithoutResult(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/research", func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var hello map[string]any
		_ = conn.ReadJSON(&hello)
		_ = conn.WriteJSON(Frame{Type: FrameProgress, Message: "starting", Percentage: 5})
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	rec := &recorder{}
	call, err := newTestClient(srv, 5*time.Second).StartResearch(context.Background(), "Acme", rec.research())
	require.NoError(t, err)
	waitDone(t, call)

	events, errs := rec.snapshot()
	assert.Equal(t, []string{"progress:starting:5", "error"}, events)
	var te *TransportError
	require.ErrorAs(t, errs[0], &te)
	assert.Contains(t, errs[0].Error(), "connection closed before result")
}

func TestResearchFallsBackWhenStreamIsSlow(t *testing.T) {
	release := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/research", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
			return
		}
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteJSON(Frame{Type: FrameResult, Data: json.RawMessage(`{"company_name":"Late"}`)})
	})
	mux.HandleFunc("/research", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("X-API-Key"))
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Acme", body["companyName"])
		assert.Equal(t, "Acme", body["company_name"])
		_, _ = w.Write([]byte(`{"company_name":"Acme","industry":"Fallback"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	defer close(release)

	rec := &recorder{}
	call, err := newTestClient(srv, 50*time.Millisecond).StartResearch(context.Background(), "Acme", rec.research())
	require.NoError(t, err)
	waitDone(t, call)

	time.Sleep(100 * time.Millisecond)
	events, errs := rec.snapshot()
	assert.Equal(t, []string{"result:Acme"}, events)
	assert.Empty(t, errs)
	assert.Equal(t, "Fallback", rec.recs[0].Industry)
	assert.Equal(t, ModeFallbackActive, call.Channel())
	assert.Equal(t, ModeSettled, call.Mode())
}

func TestSocketOpeningAfterFallbackIsDiscarded(t *testing.T) {
	fallbackHit := make(chan struct{})
	lateClosed := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/research", func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteJSON(Frame{Type: FrameResult, Data: json.RawMessage(`{"company_name":"Late"}`)})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				close(lateClosed)
				return
			}
		}
	})
	mux.HandleFunc("/research", func(w http.ResponseWriter, r *http.Request) {
		close(fallbackHit)
		_, _ = w.Write([]byte(`{"company_name":"Acme","industry":"Fallback"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cl := newTestClient(srv, 20*time.Millisecond)
	// the dial only completes once the fallback request has gone out, and
	// ignores the cancellation that comes with it
	cl.dial = func(_ context.Context, url string, h http.Header) (*websocket.Conn, *http.Response, error) {
		<-fallbackHit
		return websocket.DefaultDialer.Dial(url, h)
	}

	rec := &recorder{}
	call, err := cl.StartResearch(context.Background(), "Acme", rec.research())
	require.NoError(t, err)
	waitDone(t, call)

	select {
	case <-lateClosed:
	case <-time.After(5 * time.Second):
		t.Fatal("late socket was not closed")
	}
	events, errs := rec.snapshot()
	assert.Equal(t, []string{"result:Acme"}, events)
	assert.Empty(t, errs)
	assert.Equal(t, ModeFallbackActive, call.Channel())
	assert.Equal(t, ModeSettled, call.Mode())
}

func TestResearchResultWithMistypedFieldsStillSettles(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/research", scriptedSocket(t, nil,
		Frame{Type: FrameResult, Data: json.RawMessage(`{"company_name":"Acme","company_description":"Rockets",` +
			`"tam":{"size":"$2B","cagr":12.5},` +
			`"funding":{"total":"$10M","rounds":[{"date":"2020","amount":5000000,"type":"Seed"}]}}`)},
	))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	rec := &recorder{}
	call, err := newTestClient(srv, 5*time.Second).StartResearch(context.Background(), "Acme", rec.research())
	require.NoError(t, err)
	waitDone(t, call)

	events, errs := rec.snapshot()
	assert.Equal(t, []string{"result:Acme"}, events)
	assert.Empty(t, errs)
	got := rec.recs[0]
	assert.Equal(t, "Rockets", got.CompanyDescription)
	require.NotNil(t, got.TAM)
	assert.Equal(t, "12.5", got.TAM.CAGR)
	require.NotNil(t, got.Funding)
	require.Len(t, got.Funding.Rounds, 1)
	assert.Equal(t, "5000000", got.Funding.Rounds[0].Amount)
}

func TestDialFailureFallsBackImmediately(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/research", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	rec := &recorder{}
	start := time.Now()
	call, err := newTestClient(srv, 10*time.Second).StartResearch(context.Background(), "Acme", rec.research())
	require.NoError(t, err)
	waitDone(t, call)
	assert.Less(t, time.Since(start), 5*time.Second)

	_, errs := rec.snapshot()
	require.Len(t, errs, 1)
	var he *HTTPError
	require.ErrorAs(t, errs[0], &he)
	assert.Equal(t, http.StatusInternalServerError, he.Status)
	assert.Equal(t, "API error (500): boom", errs[0].Error())
}

func TestCancelSettlesOnce(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/research", scriptedSocket(t, nil, Frame{Type: FrameProgress, Message: "working", Percentage: 1}))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	rec := &recorder{}
	progressed := make(chan struct{})
	cb := rec.research()
	inner := cb.OnProgress
	cb.OnProgress = func(msg string, pct float64) {
		inner(msg, pct)
		close(progressed)
	}
	call, err := newTestClient(srv, 5*time.Second).StartResearch(context.Background(), "Acme", cb)
	require.NoError(t, err)

	<-progressed
	call.Cancel()
	call.Cancel()
	waitDone(t, call)

	time.Sleep(50 * time.Millisecond)
	events, errs := rec.snapshot()
	assert.Equal(t, []string{"progress:working:1", "error"}, events)
	assert.ErrorIs(t, errs[0], context.Canceled)
	assert.Equal(t, ModeFailed, call.Mode())
}

func TestContextCancellationSettlesCall(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/research", scriptedSocket(t, nil))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	rec := &recorder{}
	call, err := newTestClient(srv, 5*time.Second).StartResearch(ctx, "Acme", rec.research())
	require.NoError(t, err)
	waitDone(t, call)

	_, errs := rec.snapshot()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], context.DeadlineExceeded)
}

func TestChatStreamOrdersEventsBeforeFinal(t *testing.T) {
	stat := json.RawMessage(`{"title":"ARR","type":"stat","data":{"value":"$3M"}}`)
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/chat", scriptedSocket(t, func(hello map[string]any) {
		assert.Equal(t, "How big?", hello["message"])
		assert.Equal(t, "secret", hello["credential"])
		history, _ := hello["history"].([]any)
		assert.Len(t, history, 1)
		data, _ := hello["research_data"].(map[string]any)
		assert.Equal(t, "Acme", data["company_name"])
	},
		Frame{Type: FrameContent, Content: "Hel"},
		Frame{Type: FrameToolCall, Tool: "web_search", Arguments: &ToolArguments{}},
		Frame{Type: FrameContent, Content: "lo"},
		Frame{Type: FrameToolCall, Tool: ToolAddDashboardCard, Arguments: &ToolArguments{Card: stat}},
		Frame{Type: FrameFinal, Content: "Hello"},
	))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	rec := &recorder{}
	history := []HistoryEntry{{Role: RoleUser, Content: "hi"}}
	call, err := newTestClient(srv, 5*time.Second).SendChatTurn(context.Background(), "How big?", history, research.Stub("Acme"), rec.chat())
	require.NoError(t, err)
	waitDone(t, call)

	events, errs := rec.snapshot()
	assert.Empty(t, errs)
	assert.Equal(t, []string{"content:Hel", "content:lo", "card:stat-arr", "final:Hello"}, events)
}

func TestChatInvalidCardOnStreamFails(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/chat", scriptedSocket(t, nil,
		Frame{Type: FrameToolCall, Tool: ToolAddDashboardCard, Arguments: &ToolArguments{Card: json.RawMessage(`{"title":"X","type":"map","data":{}}`)}},
	))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	rec := &recorder{}
	call, err := newTestClient(srv, 5*time.Second).SendChatTurn(context.Background(), "q", nil, research.Stub("Acme"), rec.chat())
	require.NoError(t, err)
	waitDone(t, call)

	_, errs := rec.snapshot()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], card.ErrInvalidCard)
}

func TestChatFallbackReplaysToolCalls(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/chat", func(w http.ResponseWriter, r *http.Request) {
		var req ChatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "q", req.Message)
		assert.NotNil(t, req.History)
		_, _ = w.Write([]byte(`{"response":"done","tool_calls":[
			{"tool":"add_dashboard_card","arguments":{"card":{"title":"Bad","type":"stat","data":{}}}},
			{"tool":"add_dashboard_card","arguments":{"card":{"title":"Team","type":"people","data":[{"name":"Jo Lee","role":"CEO","avatar":"JL"}]}}}
		]}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	rec := &recorder{}
	call, err := newTestClient(srv, 5*time.Second).SendChatTurn(context.Background(), "q", nil, research.Stub("Acme"), rec.chat())
	require.NoError(t, err)
	waitDone(t, call)

	events, errs := rec.snapshot()
	assert.Empty(t, errs)
	assert.Equal(t, []string{"card:people-team", "final:done"}, events)
	assert.Equal(t, ModeFallbackActive, call.Channel())
}

func TestChatRejectsEmptyInput(t *testing.T) {
	cl := New(Options{})
	_, err := cl.SendChatTurn(context.Background(), " ", nil, research.Stub("Acme"), ChatCallbacks{})
	assert.ErrorIs(t, err, ErrEmptyInput)
	_, err = cl.SendChatTurn(context.Background(), "hello", nil, research.Record{}, ChatCallbacks{})
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestHealthCheckAndBasics(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.HandleFunc("/getData", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"detail":"invalid api key"}`))
			return
		}
		var req BasicsRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		_, _ = w.Write([]byte(`{"company_name":"` + req.CompanyName + `","company_description":"Makes widgets"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cl := newTestClient(srv, time.Second)
	h, err := cl.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", h.Status)

	rec, err := cl.StartupBasics(context.Background(), "Acme")
	require.NoError(t, err)
	assert.Equal(t, "Makes widgets", rec.CompanyDescription)

	_, err = New(Options{BaseURL: srv.URL}).StartupBasics(context.Background(), "Acme")
	var he *HTTPError
	require.True(t, errors.As(err, &he))
	assert.Equal(t, http.StatusUnauthorized, he.Status)
	assert.Contains(t, err.Error(), "invalid api key")
}

func TestWebsocketURL(t *testing.T) {
	assert.Equal(t, "ws://localhost:8000", websocketURL("http://localhost:8000"))
	assert.Equal(t, "wss://api.example.com", websocketURL("https://api.example.com"))
}
