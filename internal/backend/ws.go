package backend

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"vcanalyst/internal/research"
	"vcanalyst/internal/transport"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingEvery  = (wsPongWait * 9) / 10
	wsSendBuffer = 32
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// researchHandshake accepts both spellings clients use for the key and
// the company.
type researchHandshake struct {
	Credential  string `json:"credential"`
	APIKey      string `json:"api_key"`
	CompanyName string `json:"companyName"`
	Snake       string `json:"company_name"`
}

type chatHandshake struct {
	Credential   string                   `json:"credential"`
	APIKey       string                   `json:"api_key"`
	Message      string                   `json:"message"`
	History      []transport.HistoryEntry `json:"history"`
	ResearchData research.Record          `json:"research_data"`
}

// wsStream owns one upgraded connection: a single writer goroutine fed by
// out, and a reader that only services control frames after the handshake.
type wsStream struct {
	conn       *websocket.Conn
	ctx        context.Context
	cancel     context.CancelFunc
	out        chan transport.Frame
	writerDone chan struct{}
}

func openStream(w http.ResponseWriter, r *http.Request) (*wsStream, bool) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, false
	}
	ctx, cancel := context.WithCancel(r.Context())
	if err := conn.SetReadDeadline(time.Now().Add(wsPongWait)); err != nil {
		log.Printf("backend: ws set read deadline failed: %v", err)
		cancel()
		_ = conn.Close()
		return nil, false
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	s := &wsStream{
		conn:       conn,
		ctx:        ctx,
		cancel:     cancel,
		out:        make(chan transport.Frame, wsSendBuffer),
		writerDone: make(chan struct{}),
	}
	go s.writeLoop()
	return s, true
}

func (s *wsStream) writeLoop() {
	defer close(s.writerDone)
	ticker := time.NewTicker(wsPingEvery)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case f, ok := <-s.out:
			if err := s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
				s.cancel()
				return
			}
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := s.conn.WriteJSON(f); err != nil {
				s.cancel()
				return
			}
		case <-ticker.C:
			if err := s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
				s.cancel()
				return
			}
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.cancel()
				return
			}
		}
	}
}

// readHandshake reads the client's first message, then keeps draining the
// connection so pongs and close frames are processed.
func (s *wsStream) readHandshake(v any) error {
	if err := s.conn.ReadJSON(v); err != nil {
		return err
	}
	go func() {
		for {
			if _, _, err := s.conn.NextReader(); err != nil {
				s.cancel()
				return
			}
		}
	}()
	return nil
}

func (s *wsStream) send(f transport.Frame) bool {
	select {
	case <-s.ctx.Done():
		return false
	case s.out <- f:
		return true
	}
}

func (s *wsStream) sendError(message string) {
	s.send(transport.Frame{Type: transport.FrameError, Message: message})
}

// finish flushes queued frames, says goodbye and closes the connection.
func (s *wsStream) finish() {
	close(s.out)
	<-s.writerDone
	s.cancel()
	_ = s.conn.Close()
}

func (h *Handler) handleResearchWS(w http.ResponseWriter, r *http.Request) {
	s, ok := openStream(w, r)
	if !ok {
		return
	}
	defer s.finish()

	var hello researchHandshake
	if err := s.readHandshake(&hello); err != nil {
		log.Printf("backend: research ws handshake failed: %v", err)
		return
	}
	if !h.authorized(firstNonEmpty(hello.Credential, hello.APIKey)) {
		s.sendError(errInvalidCredential.Error())
		return
	}
	name := firstNonEmpty(hello.CompanyName, hello.Snake)
	if name == "" {
		s.sendError("companyName is required")
		return
	}

	rec, err := h.researcher.Research(s.ctx, name, func(message string, percentage float64) {
		if s.send(transport.Frame{Type: transport.FrameProgress, Message: message, Percentage: percentage}) {
			h.pause(s.ctx)
		}
	})
	if err != nil {
		log.Printf("backend: research %q failed: %v", name, err)
		s.sendError(err.Error())
		return
	}
	data, err := json.Marshal(rec)
	if err != nil {
		s.sendError(err.Error())
		return
	}
	s.send(transport.Frame{Type: transport.FrameResult, Data: data})
}

func (h *Handler) handleChatWS(w http.ResponseWriter, r *http.Request) {
	s, ok := openStream(w, r)
	if !ok {
		return
	}
	defer s.finish()

	var hello chatHandshake
	if err := s.readHandshake(&hello); err != nil {
		log.Printf("backend: chat ws handshake failed: %v", err)
		return
	}
	if !h.authorized(firstNonEmpty(hello.Credential, hello.APIKey)) {
		s.sendError(errInvalidCredential.Error())
		return
	}
	if strings.TrimSpace(hello.Message) == "" {
		s.sendError("message is required")
		return
	}

	reply, err := h.responder.Respond(s.ctx, Turn{
		Message: hello.Message,
		History: hello.History,
		Record:  hello.ResearchData,
	})
	if err != nil {
		log.Printf("backend: chat failed: %v", err)
		s.sendError(err.Error())
		return
	}

	for _, fragment := range fragments(reply.Text) {
		if !s.send(transport.Frame{Type: transport.FrameContent, Content: fragment}) || !h.pause(s.ctx) {
			return
		}
	}
	for _, c := range reply.Cards {
		raw, err := json.Marshal(c)
		if err != nil {
			log.Printf("backend: chat: dropping card %q: %v", c.Title, err)
			continue
		}
		if !s.send(transport.Frame{
			Type:      transport.FrameToolCall,
			Tool:      transport.ToolAddDashboardCard,
			Arguments: &transport.ToolArguments{Card: raw},
		}) {
			return
		}
	}
	s.send(transport.Frame{Type: transport.FrameFinal, Content: reply.Text})
}

// fragments splits text into word-sized pieces that concatenate back to
// the original.
func fragments(text string) []string {
	var out []string
	start := 0
	for i := 1; i < len(text); i++ {
		if text[i] == ' ' {
			out = append(out, text[start:i])
			start = i
		}
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}
