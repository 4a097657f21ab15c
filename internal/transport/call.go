package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteWait = 10 * time.Second
)

// Mode is the transport state of a Call.
type Mode int

const (
	ModePending Mode = iota
	ModeSocketActive
	ModeFallbackActive
	ModeSettled
	ModeFailed
)

func (m Mode) String() string {
	switch m {
	case ModePending:
		return "pending"
	case ModeSocketActive:
		return "socket-active"
	case ModeFallbackActive:
		return "fallback-active"
	case ModeSettled:
		return "settled"
	case ModeFailed:
		return "failed"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

func (m Mode) terminal() bool { return m == ModeSettled || m == ModeFailed }

// operation describes one request kind: where to stream, what to say first,
// how to react to frames, and how to do the same job in one HTTP round trip.
type operation struct {
	name     string
	path     string
	hello    any
	onFrame  func(c *Call, f Frame) (done bool, err error)
	fallback func(ctx context.Context, c *Call) error
	onError  func(error)
}

// Call is one in-flight request. It settles exactly once; after that no
// callback fires. Callbacks of one call never run concurrently.
type Call struct {
	client *Client
	op     operation
	ctx    context.Context

	mu         sync.Mutex
	mode       Mode
	channel    Mode
	err        error
	conn       *websocket.Conn
	timer      *time.Timer
	stopWatch  func() bool
	cancel     context.CancelFunc
	cancelDial context.CancelFunc

	deliverMu sync.Mutex
	done      chan struct{}
}

func (cl *Client) start(parent context.Context, op operation) *Call {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	dialCtx, cancelDial := context.WithCancel(ctx)
	c := &Call{
		client:     cl,
		op:         op,
		ctx:        ctx,
		cancel:     cancel,
		cancelDial: cancelDial,
		done:       make(chan struct{}),
	}

	c.mu.Lock()
	after := cl.fallbackAfter
	c.timer = time.AfterFunc(after, func() {
		c.startFallback(fmt.Sprintf("stream not active after %s", after))
	})
	c.stopWatch = context.AfterFunc(parent, func() {
		c.abort(parent.Err())
	})
	c.mu.Unlock()

	go c.runSocket(dialCtx)
	return c
}

// Done is closed once the terminal callback has returned.
func (c *Call) Done() <-chan struct{} { return c.done }

func (c *Call) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Channel reports which channel carried the call: ModeSocketActive,
// ModeFallbackActive, or ModePending if neither became active.
func (c *Call) Channel() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channel
}

// Err is nil until the call fails.
func (c *Call) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Cancel settles the call with context.Canceled unless it already settled.
// It is safe to call from inside a callback.
func (c *Call) Cancel() {
	c.abort(context.Canceled)
}

// Wait blocks until the call settles or ctx ends.
func (c *Call) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return c.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Call) runSocket(ctx context.Context) {
	url := c.client.wsURL + c.op.path
	conn, resp, err := c.client.dial(ctx, url, c.client.header())
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		c.startFallback(fmt.Sprintf("dial failed: %v", err))
		return
	}
	if !c.activate(conn) {
		_ = conn.Close()
		return
	}

	if err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
		c.fail(&TransportError{Op: opWebSocket, Err: err})
		return
	}
	if err := conn.WriteJSON(c.op.hello); err != nil {
		c.fail(&TransportError{Op: opWebSocket, Err: err})
		return
	}
	c.readLoop(conn)
}

func (c *Call) readLoop(conn *websocket.Conn) {
	wait := c.client.readWait
	extend := func() error {
		if wait <= 0 {
			return nil
		}
		return conn.SetReadDeadline(time.Now().Add(wait))
	}
	if err := extend(); err != nil {
		c.fail(&TransportError{Op: opWebSocket, Err: err})
		return
	}
	conn.SetPingHandler(func(appData string) error {
		_ = extend()
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(wsWriteWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				err = errClosedEarly
			}
			c.fail(&TransportError{Op: opWebSocket, Err: err})
			return
		}
		_ = extend()

		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.fail(&ProtocolError{Err: err})
			return
		}
		done, err := c.op.onFrame(c, f)
		if err != nil {
			c.fail(err)
			return
		}
		if done {
			return
		}
	}
}

func (c *Call) activate(conn *websocket.Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode != ModePending {
		return false
	}
	c.mode = ModeSocketActive
	c.channel = ModeSocketActive
	c.conn = conn
	c.timer.Stop()
	return true
}

// startFallback moves a pending call onto the HTTP channel. Anything the
// socket produces afterwards is discarded.
func (c *Call) startFallback(reason string) {
	c.mu.Lock()
	if c.mode != ModePending {
		c.mu.Unlock()
		return
	}
	c.mode = ModeFallbackActive
	c.channel = ModeFallbackActive
	c.timer.Stop()
	c.cancelDial()
	c.mu.Unlock()

	log.Printf("transport: %s: %s, switching to http fallback", c.op.name, reason)
	if err := c.op.fallback(c.ctx, c); err != nil {
		c.fail(err)
	}
}

// emit delivers a non-terminal event.
func (c *Call) emit(fn func()) {
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()
	c.mu.Lock()
	settled := c.mode.terminal()
	c.mu.Unlock()
	if settled || fn == nil {
		return
	}
	fn()
}

// succeed settles the call and runs the terminal success callback.
func (c *Call) succeed(fn func()) bool {
	if !c.finish(nil) {
		return false
	}
	c.deliver(fn)
	return true
}

func (c *Call) fail(err error) bool {
	if !c.finish(err) {
		return false
	}
	c.deliver(func() { c.op.onError(err) })
	return true
}

// abort settles from outside the call's own goroutines; delivery happens
// asynchronously so Cancel may be used from within a callback.
func (c *Call) abort(err error) {
	if err == nil {
		err = context.Canceled
	}
	if !c.finish(err) {
		return
	}
	go c.deliver(func() { c.op.onError(err) })
}

func (c *Call) deliver(fn func()) {
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()
	defer close(c.done)
	if fn != nil {
		fn()
	}
}

// finish records the terminal state and releases every resource. It
// reports false when the call had already settled.
func (c *Call) finish(err error) bool {
	c.mu.Lock()
	if c.mode.terminal() {
		c.mu.Unlock()
		return false
	}
	if err != nil {
		c.mode = ModeFailed
	} else {
		c.mode = ModeSettled
	}
	c.err = err
	conn := c.conn
	c.conn = nil
	c.timer.Stop()
	stop := c.stopWatch
	c.mu.Unlock()

	if stop != nil {
		stop()
	}
	c.cancel()
	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(wsWriteWait))
		_ = conn.Close()
	}
	return true
}
