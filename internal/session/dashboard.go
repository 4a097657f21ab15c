// Package session owns the state of one analyst dashboard: the current
// research session, its cards, the chat transcript, and the live stream.
//
// Each research session has a generation number. Every transport callback
// carries the generation (and for chat, the turn sequence) it was started
// with, and is dropped if a newer session or turn has begun since.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"vcanalyst/internal/aggregate"
	"vcanalyst/internal/card"
	"vcanalyst/internal/research"
	"vcanalyst/internal/transport"
)

var ErrNoSession = errors.New("session: no research session started")

const chatApology = "Sorry, I encountered an error while processing your request."

// Transport is the part of *transport.Client the dashboard drives.
type Transport interface {
	StartResearch(ctx context.Context, companyName string, cb transport.ResearchCallbacks) (*transport.Call, error)
	SendChatTurn(ctx context.Context, message string, history []transport.HistoryEntry, rec research.Record, cb transport.ChatCallbacks) (*transport.Call, error)
}

type Operation string

const (
	OpResearch Operation = "research"
	OpChat     Operation = "chat"
)

// StreamState describes the request currently in flight (or the last one).
type StreamState struct {
	Operation Operation      `json:"operation"`
	Mode      transport.Mode `json:"mode"`
	Progress  float64        `json:"progress,omitempty"`
	Partial   string         `json:"partial,omitempty"`
	Emitted   []string       `json:"emitted,omitempty"`
}

// View is a consistent copy of the dashboard state.
type View struct {
	Generation uint64           `json:"generation"`
	Company    string           `json:"company"`
	Record     *research.Record `json:"record,omitempty"`
	Cards      []card.Card      `json:"cards"`
	Transcript []Message        `json:"transcript"`
	Stream     StreamState      `json:"stream"`
}

type Dashboard struct {
	client Transport

	mu        sync.Mutex
	gen       uint64
	chatSeq   uint64
	company   string
	record    *research.Record
	registry  *aggregate.Registry
	messages  []Message
	stream    StreamState
	emitted   map[string]struct{}
	active    *transport.Call
	turn      *transport.Call
	pending   string
	subs      map[int]func(View)
	nextSubID int
}

func New(client Transport) *Dashboard {
	return &Dashboard{
		client:   client,
		registry: aggregate.NewRegistry(),
		emitted:  make(map[string]struct{}),
		subs:     make(map[int]func(View)),
	}
}

// Research starts a new research session for company. Any session in
// flight is cancelled and its late callbacks are ignored.
func (d *Dashboard) Research(ctx context.Context, company string) (*transport.Call, error) {
	name := strings.TrimSpace(company)
	if name == "" {
		return nil, transport.ErrEmptyInput
	}

	d.mu.Lock()
	d.gen++
	d.chatSeq++
	gen := d.gen
	prevResearch, prevChat := d.active, d.turn
	d.active, d.turn = nil, nil
	d.company = name
	d.record = nil
	d.registry.Reset()
	d.emitted = make(map[string]struct{})
	d.stream = StreamState{Operation: OpResearch, Mode: transport.ModePending}
	d.dropTransientLocked()
	d.appendLocked(RoleUser, name)
	loadingID := d.appendLocked(RoleAgent, fmt.Sprintf("Researching %s", name),
		WithStatus("Starting research", IconLoading), AsTransient())
	d.mu.Unlock()

	cancelCall(prevResearch)
	cancelCall(prevChat)
	d.notify()

	call, err := d.client.StartResearch(ctx, name, transport.ResearchCallbacks{
		OnProgress: func(msg string, pct float64) {
			d.apply(gen, 0, func() {
				if d.stream.Operation == OpResearch {
					d.stream.Mode = transport.ModeSocketActive
					d.stream.Progress = pct
				}
				d.setStatusLocked(loadingID, progressText(msg, pct))
			})
		},
		OnResult: func(rec research.Record) {
			d.apply(gen, 0, func() {
				r := rec
				d.record = &r
				added := aggregate.IngestRecord(d.registry, rec)
				if d.stream.Operation == OpResearch {
					d.stream.Mode = transport.ModeSettled
					d.stream.Progress = 100
				}
				d.removeLocked(loadingID)
				d.appendLocked(RoleAgent, fmt.Sprintf("Research on %s is ready: %d cards.", name, added),
					WithStatus("Research complete", IconSuccess))
			})
		},
		OnError: func(err error) {
			d.apply(gen, 0, func() {
				if d.stream.Operation == OpResearch {
					d.stream.Mode = transport.ModeFailed
				}
				d.removeLocked(loadingID)
				d.appendLocked(RoleAgent, errorText(err, "Research failed"),
					WithStatus("Research failed", IconError))
			})
		},
	})
	if err != nil {
		d.apply(gen, 0, func() {
			d.stream.Mode = transport.ModeFailed
			d.removeLocked(loadingID)
		})
		return nil, err
	}

	d.mu.Lock()
	if d.gen == gen {
		d.active = call
	}
	d.mu.Unlock()
	return call, nil
}

// Chat sends one chat turn in the current session. Cards the agent adds
// are ingested into the same registry as the research cards.
func (d *Dashboard) Chat(ctx context.Context, text string) (*transport.Call, error) {
	text = strings.TrimSpace(text)

	d.mu.Lock()
	if d.company == "" {
		d.mu.Unlock()
		return nil, ErrNoSession
	}
	if text == "" {
		d.mu.Unlock()
		return nil, transport.ErrEmptyInput
	}
	gen := d.gen
	d.chatSeq++
	seq := d.chatSeq
	prev := d.turn
	d.turn = nil

	history := d.historyLocked()
	rec := research.Stub(d.company)
	if d.record != nil {
		rec = *d.record
	}
	if d.pending != "" {
		d.removeLocked(d.pending)
	}
	d.appendLocked(RoleUser, text)
	pendingID := d.appendLocked(RoleAgent, "Thinking…", WithStatus("Thinking", IconLoading), AsTransient())
	d.pending = pendingID
	d.stream = StreamState{Operation: OpChat, Mode: transport.ModePending, Emitted: d.stream.Emitted}
	d.mu.Unlock()

	cancelCall(prev)
	d.notify()

	call, err := d.client.SendChatTurn(ctx, text, history, rec, transport.ChatCallbacks{
		OnContent: func(fragment string) {
			d.apply(gen, seq, func() {
				d.stream.Mode = transport.ModeSocketActive
				d.stream.Partial += fragment
				if partial := strings.TrimSpace(d.stream.Partial); partial != "" {
					d.setContentLocked(pendingID, partial)
				}
			})
		},
		OnToolEvent: func(c card.Card) {
			d.apply(gen, seq, func() {
				id, _ := d.registry.Ingest(c)
				if _, seen := d.emitted[id]; !seen {
					d.emitted[id] = struct{}{}
					d.stream.Emitted = append(d.stream.Emitted, id)
				}
			})
		},
		OnFinal: func(final string) {
			d.apply(gen, seq, func() {
				d.stream.Mode = transport.ModeSettled
				d.removeLocked(pendingID)
				reply := strings.TrimSpace(final)
				if reply == "" {
					reply = strings.TrimSpace(d.stream.Partial)
				}
				if reply != "" {
					d.appendLocked(RoleAgent, reply)
				}
			})
		},
		OnError: func(err error) {
			d.apply(gen, seq, func() {
				d.stream.Mode = transport.ModeFailed
				d.removeLocked(pendingID)
				d.appendLocked(RoleAgent, chatApology, WithStatus(errorText(err, "Chat failed"), IconError))
			})
		},
	})
	if err != nil {
		d.apply(gen, seq, func() {
			d.stream.Mode = transport.ModeFailed
			d.removeLocked(pendingID)
		})
		return nil, err
	}

	d.mu.Lock()
	if d.gen == gen && d.chatSeq == seq {
		d.turn = call
	}
	d.mu.Unlock()
	return call, nil
}

// Snapshot returns a copy of the current state.
func (d *Dashboard) Snapshot() View {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.viewLocked()
}

// Subscribe registers fn to receive a View after every change. The
// returned function removes the subscription.
func (d *Dashboard) Subscribe(fn func(View)) func() {
	if fn == nil {
		return func() {}
	}
	d.mu.Lock()
	id := d.nextSubID
	d.nextSubID++
	d.subs[id] = fn
	d.mu.Unlock()
	return func() {
		d.mu.Lock()
		delete(d.subs, id)
		d.mu.Unlock()
	}
}

func (d *Dashboard) apply(gen, seq uint64, fn func()) {
	d.mu.Lock()
	if d.gen != gen || (seq != 0 && d.chatSeq != seq) {
		d.mu.Unlock()
		return
	}
	fn()
	d.mu.Unlock()
	d.notify()
}

func (d *Dashboard) notify() {
	d.mu.Lock()
	if len(d.subs) == 0 {
		d.mu.Unlock()
		return
	}
	v := d.viewLocked()
	subs := make([]func(View), 0, len(d.subs))
	for _, fn := range d.subs {
		subs = append(subs, fn)
	}
	d.mu.Unlock()
	for _, fn := range subs {
		fn(v)
	}
}

func (d *Dashboard) viewLocked() View {
	v := View{
		Generation: d.gen,
		Company:    d.company,
		Cards:      d.registry.Cards(),
		Transcript: make([]Message, len(d.messages)),
		Stream:     d.stream,
	}
	v.Stream.Emitted = append([]string(nil), d.stream.Emitted...)
	if d.record != nil {
		r := *d.record
		v.Record = &r
	}
	for i, m := range d.messages {
		v.Transcript[i] = cloneMessage(m)
	}
	return v
}

// historyLocked maps settled transcript messages onto chat history roles.
func (d *Dashboard) historyLocked() []transport.HistoryEntry {
	out := make([]transport.HistoryEntry, 0, len(d.messages))
	for _, m := range d.messages {
		if m.Transient {
			continue
		}
		text := m.Content.Text()
		if text == "" {
			continue
		}
		role := transport.RoleUser
		if m.Role == RoleAgent {
			role = transport.RoleAssistant
		}
		out = append(out, transport.HistoryEntry{Role: role, Content: text})
	}
	return out
}

func (d *Dashboard) appendLocked(role Role, text string, opts ...MessageOption) string {
	m, err := NewMessage(role, text, opts...)
	if err != nil {
		return ""
	}
	d.messages = append(d.messages, m)
	return m.ID
}

func (d *Dashboard) removeLocked(id string) {
	for i, m := range d.messages {
		if m.ID == id {
			d.messages = append(d.messages[:i], d.messages[i+1:]...)
			return
		}
	}
}

// dropTransientLocked clears placeholders left by superseded requests.
func (d *Dashboard) dropTransientLocked() {
	kept := d.messages[:0]
	for _, m := range d.messages {
		if !m.Transient {
			kept = append(kept, m)
		}
	}
	d.messages = kept
	d.pending = ""
}

func (d *Dashboard) setStatusLocked(id, text string) {
	for i := range d.messages {
		if d.messages[i].ID == id && d.messages[i].Status != nil {
			d.messages[i].Status.Text = text
			return
		}
	}
}

func (d *Dashboard) setContentLocked(id, text string) {
	for i := range d.messages {
		if d.messages[i].ID == id {
			d.messages[i].Content = Content{{Text: text}}
			return
		}
	}
}

func cancelCall(c *transport.Call) {
	if c != nil {
		c.Cancel()
	}
}

func progressText(msg string, pct float64) string {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		msg = "Researching"
	}
	return fmt.Sprintf("%s (%.0f%%)", msg, pct)
}

func errorText(err error, fallback string) string {
	if err == nil {
		return fallback
	}
	if s := strings.TrimSpace(err.Error()); s != "" {
		return s
	}
	return fallback
}
