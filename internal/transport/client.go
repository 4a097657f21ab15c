// Package transport talks to the research backend: a streaming WebSocket
// channel first, and a single-shot HTTP request when the stream does not
// come up in time.
package transport

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gorilla/websocket"

	"vcanalyst/internal/card"
	"vcanalyst/internal/research"
	"vcanalyst/internal/util/jsonutil"
)

const (
	DefaultBaseURL       = "http://localhost:8000"
	DefaultFallbackAfter = 5000 * time.Millisecond
	DefaultReadWait      = 60 * time.Second
	DefaultHTTPTimeout   = 2 * time.Minute

	apiKeyHeader = "X-API-Key"
)

type Options struct {
	BaseURL       string
	APIKey        string
	FallbackAfter time.Duration
	ReadWait      time.Duration
	HTTPTimeout   time.Duration
}

type Client struct {
	baseURL       string
	wsURL         string
	apiKey        string
	fallbackAfter time.Duration
	readWait      time.Duration
	http          *resty.Client
	dial          dialFunc
}

type dialFunc func(ctx context.Context, url string, h http.Header) (*websocket.Conn, *http.Response, error)

func New(opts Options) *Client {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	fallbackAfter := opts.FallbackAfter
	if fallbackAfter <= 0 {
		fallbackAfter = DefaultFallbackAfter
	}
	readWait := opts.ReadWait
	if readWait == 0 {
		readWait = DefaultReadWait
	}
	httpTimeout := opts.HTTPTimeout
	if httpTimeout <= 0 {
		httpTimeout = DefaultHTTPTimeout
	}

	rc := resty.New().
		SetBaseURL(base).
		SetTimeout(httpTimeout).
		SetHeader("Accept", "application/json")
	if key := strings.TrimSpace(opts.APIKey); key != "" {
		rc.SetHeader(apiKeyHeader, key)
	}

	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 45 * time.Second,
	}
	return &Client{
		baseURL:       base,
		wsURL:         websocketURL(base),
		apiKey:        strings.TrimSpace(opts.APIKey),
		fallbackAfter: fallbackAfter,
		readWait:      readWait,
		http:          rc,
		dial:          dialer.DialContext,
	}
}

// websocketURL swaps the http scheme prefix for ws (https becomes wss).
func websocketURL(base string) string {
	if strings.HasPrefix(base, "http") {
		return "ws" + strings.TrimPrefix(base, "http")
	}
	return base
}

func (cl *Client) BaseURL() string { return cl.baseURL }

func (cl *Client) header() http.Header {
	h := http.Header{}
	if cl.apiKey != "" {
		h.Set(apiKeyHeader, cl.apiKey)
	}
	return h
}

type ResearchCallbacks struct {
	OnProgress func(message string, percentage float64)
	OnResult   func(rec research.Record)
	OnError    func(err error)
}

// StartResearch requests research on companyName. Exactly one of OnResult
// and OnError fires, after any number of OnProgress calls.
func (cl *Client) StartResearch(ctx context.Context, companyName string, cb ResearchCallbacks) (*Call, error) {
	name := strings.TrimSpace(companyName)
	if name == "" {
		return nil, ErrEmptyInput
	}
	onResult := func(rec research.Record) func() {
		return func() {
			if cb.OnResult != nil {
				cb.OnResult(rec)
			}
		}
	}

	op := operation{
		name:  "research " + name,
		path:  "/ws/research",
		hello: ResearchHello{Credential: cl.apiKey, CompanyName: name},
		onFrame: func(c *Call, f Frame) (bool, error) {
			switch f.Type {
			case FrameProgress:
				if cb.OnProgress != nil {
					c.emit(func() { cb.OnProgress(f.Message, f.Percentage) })
				}
				return false, nil
			case FrameResult:
				rec, err := decodeRecord(f.Data, name)
				if err != nil {
					return true, &ProtocolError{Err: err}
				}
				c.succeed(onResult(rec))
				return true, nil
			case FrameError:
				c.fail(&BackendError{Message: f.Message})
				return true, nil
			default:
				return false, nil
			}
		},
		fallback: func(ctx context.Context, c *Call) error {
			resp, err := cl.http.R().
				SetContext(ctx).
				SetBody(ResearchRequest{CompanyName: name, CompanyNameSnake: name}).
				Post("/research")
			if err != nil {
				return &TransportError{Op: opHTTP, Err: err}
			}
			if !resp.IsSuccess() {
				return &HTTPError{Status: resp.StatusCode(), Body: resp.String()}
			}
			rec, err := decodeRecord(resp.Body(), name)
			if err != nil {
				return &ProtocolError{Err: err}
			}
			c.succeed(onResult(rec))
			return nil
		},
		onError: func(err error) {
			if cb.OnError != nil {
				cb.OnError(err)
			}
		},
	}
	return cl.start(ctx, op), nil
}

type ChatCallbacks struct {
	OnContent   func(fragment string)
	OnToolEvent func(c card.Card)
	OnFinal     func(text string)
	OnError     func(err error)
}

// SendChatTurn sends one chat message with its history and research
// context. Exactly one of OnFinal and OnError fires, after every OnContent
// and OnToolEvent.
func (cl *Client) SendChatTurn(ctx context.Context, message string, history []HistoryEntry, rec research.Record, cb ChatCallbacks) (*Call, error) {
	msg := strings.TrimSpace(message)
	if msg == "" || strings.TrimSpace(rec.CompanyName) == "" {
		return nil, ErrEmptyInput
	}
	hist := make([]HistoryEntry, 0, len(history))
	hist = append(hist, history...)

	onFinal := func(text string) func() {
		return func() {
			if cb.OnFinal != nil {
				cb.OnFinal(text)
			}
		}
	}
	onTool := func(c *Call, cd card.Card) {
		if cb.OnToolEvent != nil {
			c.emit(func() { cb.OnToolEvent(cd) })
		}
	}

	op := operation{
		name:  "chat " + rec.CompanyName,
		path:  "/ws/chat",
		hello: ChatHello{Credential: cl.apiKey, Message: msg, History: hist, ResearchData: rec},
		onFrame: func(c *Call, f Frame) (bool, error) {
			switch f.Type {
			case FrameContent:
				if cb.OnContent != nil {
					c.emit(func() { cb.OnContent(f.Content) })
				}
				return false, nil
			case FrameToolCall:
				if f.Tool != ToolAddDashboardCard {
					return false, nil
				}
				if f.Arguments == nil {
					return true, &ProtocolError{Err: fmt.Errorf("tool call %q has no arguments", f.Tool)}
				}
				cd, err := card.Decode(f.Arguments.Card)
				if err != nil {
					return true, &ProtocolError{Err: err}
				}
				onTool(c, cd)
				return false, nil
			case FrameFinal:
				c.succeed(onFinal(f.Content))
				return true, nil
			case FrameError:
				c.fail(&BackendError{Message: f.Message})
				return true, nil
			default:
				return false, nil
			}
		},
		fallback: func(ctx context.Context, c *Call) error {
			resp, err := cl.http.R().
				SetContext(ctx).
				SetBody(ChatRequest{Message: msg, History: hist, ResearchData: rec}).
				Post("/chat")
			if err != nil {
				return &TransportError{Op: opHTTP, Err: err}
			}
			if !resp.IsSuccess() {
				return &HTTPError{Status: resp.StatusCode(), Body: resp.String()}
			}
			var out ChatResponse
			if err := jsonutil.UnmarshalFlex(resp.Body(), &out); err != nil {
				return &ProtocolError{Err: err}
			}
			for i, tc := range out.ToolCalls {
				if tc.Tool != ToolAddDashboardCard {
					continue
				}
				cd, err := card.Decode(tc.Arguments.Card)
				if err != nil {
					log.Printf("transport: chat fallback: skipping tool call %d: %v", i, err)
					continue
				}
				onTool(c, cd)
			}
			c.succeed(onFinal(out.Response))
			return nil
		},
		onError: func(err error) {
			if cb.OnError != nil {
				cb.OnError(err)
			}
		},
	}
	return cl.start(ctx, op), nil
}

// HealthCheck calls GET /.
func (cl *Client) HealthCheck(ctx context.Context) (Health, error) {
	resp, err := cl.http.R().SetContext(ctx).Get("/")
	if err != nil {
		return Health{}, &TransportError{Op: opHTTP, Err: err}
	}
	if !resp.IsSuccess() {
		return Health{}, &HTTPError{Status: resp.StatusCode(), Body: resp.String()}
	}
	var h Health
	if err := jsonutil.UnmarshalFlex(resp.Body(), &h); err != nil {
		return Health{}, &ProtocolError{Err: err}
	}
	return h, nil
}

// StartupBasics fetches the short description the backend can produce
// without a full research run.
func (cl *Client) StartupBasics(ctx context.Context, companyName string) (research.Record, error) {
	name := strings.TrimSpace(companyName)
	if name == "" {
		return research.Record{}, ErrEmptyInput
	}
	resp, err := cl.http.R().
		SetContext(ctx).
		SetBody(BasicsRequest{CompanyName: name}).
		Post("/getData")
	if err != nil {
		return research.Record{}, &TransportError{Op: opHTTP, Err: err}
	}
	if !resp.IsSuccess() {
		return research.Record{}, &HTTPError{Status: resp.StatusCode(), Body: resp.String()}
	}
	rec, err := decodeRecord(resp.Body(), name)
	if err != nil {
		return research.Record{}, &ProtocolError{Err: err}
	}
	return rec, nil
}

// decodeRecord tolerates a double-encoded body and fills in the requested
// company name when the backend leaves it out.
func decodeRecord(raw []byte, companyName string) (research.Record, error) {
	var rec research.Record
	if err := jsonutil.UnmarshalFlex(raw, &rec); err != nil {
		return research.Record{}, err
	}
	if strings.TrimSpace(rec.CompanyName) == "" {
		rec.CompanyName = companyName
	}
	return rec, nil
}
