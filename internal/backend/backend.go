// Package backend is a development research backend speaking the same
// wire protocol the transport client expects: streaming WebSocket
// endpoints plus their single-shot HTTP equivalents.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"vcanalyst/internal/card"
	"vcanalyst/internal/research"
	"vcanalyst/internal/transport"
	"vcanalyst/internal/util/jsonutil"
)

const apiKeyHeader = "X-API-Key"

var errInvalidCredential = errors.New("invalid API key")

// Researcher produces a research record, reporting progress along the way.
type Researcher interface {
	Research(ctx context.Context, company string, progress func(message string, percentage float64)) (research.Record, error)
	Basics(ctx context.Context, company string) (research.Record, error)
}

// Turn is one chat message with the context the client sent alongside it.
type Turn struct {
	Message string
	History []transport.HistoryEntry
	Record  research.Record
}

type Reply struct {
	Text  string
	Cards []card.Card
}

type Responder interface {
	Respond(ctx context.Context, turn Turn) (Reply, error)
}

type Options struct {
	// APIKey, when set, must match the X-API-Key header or the handshake
	// credential.
	APIKey     string
	Researcher Researcher
	Responder  Responder
	// StepDelay paces streamed frames.
	StepDelay time.Duration
}

type Handler struct {
	apiKey     string
	researcher Researcher
	responder  Responder
	stepDelay  time.Duration
	mux        *http.ServeMux
}

func New(opts Options) *Handler {
	h := &Handler{
		apiKey:     strings.TrimSpace(opts.APIKey),
		researcher: opts.Researcher,
		responder:  opts.Responder,
		stepDelay:  opts.StepDelay,
		mux:        http.NewServeMux(),
	}
	if h.researcher == nil {
		h.researcher = CannedResearcher{}
	}
	if h.responder == nil {
		h.responder = CannedResponder{}
	}

	h.mux.HandleFunc("GET /{$}", h.handleHealth)
	h.mux.HandleFunc("POST /getData", h.requireKey(h.handleBasics))
	h.mux.HandleFunc("POST /research", h.requireKey(h.handleResearch))
	h.mux.HandleFunc("POST /chat", h.requireKey(h.handleChat))
	h.mux.HandleFunc("GET /ws/research", h.handleResearchWS)
	h.mux.HandleFunc("GET /ws/chat", h.handleChatWS)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) authorized(key string) bool {
	return h.apiKey == "" || strings.TrimSpace(key) == h.apiKey
}

func (h *Handler) requireKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !h.authorized(r.Header.Get(apiKeyHeader)) {
			writeError(w, http.StatusUnauthorized, errInvalidCredential.Error())
			return
		}
		next(w, r)
	}
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, transport.Health{Status: "ok"})
}

type companyBody struct {
	CompanyName string `json:"companyName"`
	Snake       string `json:"company_name"`
}

func (b companyBody) name() string {
	return firstNonEmpty(b.CompanyName, b.Snake)
}

func (h *Handler) handleBasics(w http.ResponseWriter, r *http.Request) {
	var body companyBody
	if !decodeBody(w, r, &body) {
		return
	}
	name := body.name()
	if name == "" {
		writeError(w, http.StatusBadRequest, "company_name is required")
		return
	}
	rec, err := h.researcher.Basics(r.Context(), name)
	if err != nil {
		log.Printf("backend: basics %q failed: %v", name, err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) handleResearch(w http.ResponseWriter, r *http.Request) {
	var body companyBody
	if !decodeBody(w, r, &body) {
		return
	}
	name := body.name()
	if name == "" {
		writeError(w, http.StatusBadRequest, "companyName is required")
		return
	}
	rec, err := h.researcher.Research(r.Context(), name, func(string, float64) {})
	if err != nil {
		log.Printf("backend: research %q failed: %v", name, err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var body transport.ChatRequest
	if !decodeBody(w, r, &body) {
		return
	}
	if strings.TrimSpace(body.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	reply, err := h.responder.Respond(r.Context(), Turn{
		Message: body.Message,
		History: body.History,
		Record:  body.ResearchData,
	})
	if err != nil {
		log.Printf("backend: chat failed: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := transport.ChatResponse{Response: reply.Text}
	for _, c := range reply.Cards {
		raw, err := json.Marshal(c)
		if err != nil {
			log.Printf("backend: chat: dropping card %q: %v", c.Title, err)
			continue
		}
		out.ToolCalls = append(out.ToolCalls, transport.ToolCall{
			Tool:      transport.ToolAddDashboardCard,
			Arguments: transport.ToolArguments{Card: raw},
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// pause waits StepDelay between streamed frames. It reports false once ctx
// is done.
func (h *Handler) pause(ctx context.Context) bool {
	if h.stepDelay <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(h.stepDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := jsonutil.MarshalNoEscape(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
