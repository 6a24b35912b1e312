// Package transport is the client side of the server's Socket.IO channel.
// It keeps one websocket open, reconnecting with backoff, and hands decoded
// server events to a single consumer.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"nhooyr.io/websocket"
)

// ErrNotConnected is returned by Emit while the namespace is not connected.
var ErrNotConnected = errors.New("transport: not connected")

// ConnectError is the server's refusal of the namespace connect.
type ConnectError struct {
	Namespace string
	Message   string
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("transport: connect %s refused: %s", e.Namespace, e.Message)
}

// State is the connection lifecycle state.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

const (
	// DefaultNamespace is the namespace the agent joins.
	DefaultNamespace = "/agent"

	writeTimeout      = 5 * time.Second
	disconnectTimeout = time.Second
	handoffTimeout    = 100 * time.Millisecond
	inboundBuffer     = 32
)

// Config holds configuration for the Client.
type Config struct {
	URL               string
	Namespace         string
	ConnectTimeout    time.Duration
	HeartbeatInterval time.Duration
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
}

func (c *Config) applyDefaults() {
	if c.Namespace == "" {
		c.Namespace = DefaultNamespace
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 5 * time.Second
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 5 * time.Second
	}
}

// Client is a reconnecting Socket.IO client bound to one namespace.
type Client struct {
	cfg      Config
	endpoint string

	state   atomic.Int32
	inbound chan Message

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewClient validates the server URL and creates a disconnected client.
func NewClient(cfg Config) (*Client, error) {
	cfg.applyDefaults()
	endpoint, err := endpointURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	return &Client{
		cfg:      cfg,
		endpoint: endpoint,
		inbound:  make(chan Message, inboundBuffer),
	}, nil
}

// State returns the current connection state.
func (c *Client) State() State {
	return State(c.state.Load())
}

// Connected reports whether events can currently be emitted.
func (c *Client) Connected() bool {
	return c.State() == Connected
}

// Messages returns the channel of decoded server events.
func (c *Client) Messages() <-chan Message {
	return c.inbound
}

func (c *Client) setState(s State) {
	if State(c.state.Swap(int32(s))) != s {
		slog.Debug("connection state", "state", s)
	}
}

// Emit sends one event. It makes a single write attempt; nothing is queued
// or retried.
func (c *Client) Emit(ctx context.Context, event string, payload any) error {
	if !c.Connected() {
		return ErrNotConnected
	}
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	frame, err := encodeEvent(c.cfg.Namespace, event, payload)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, frame); err != nil {
		return fmt.Errorf("emit %s: %w", event, err)
	}
	return nil
}

// Run keeps the connection alive until ctx is done. The first connect
// attempt is bounded by ConnectTimeout; after that the client reconnects
// forever with exponential backoff. Run only returns when ctx is done.
func (c *Client) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.heartbeat(ctx)
	}()
	defer wg.Wait()

	b := newBackOff(c.cfg)

	slog.Info("connecting to server", "url", c.cfg.URL, "namespace", c.cfg.Namespace)
	for attempt := 1; ; attempt++ {
		connected, err := c.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if connected {
			b.Reset()
			attempt = 0
		}

		wait := b.NextBackOff()
		if connected {
			slog.Warn("server connection lost", "error", err, "retry_in", wait.Round(time.Millisecond))
		} else {
			slog.Warn("connect to server", "error", err, "attempt", attempt, "retry_in", wait.Round(time.Millisecond))
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

// newBackOff doubles the wait from InitialBackoff up to MaxBackoff, without
// jitter, so retries stay inside the configured bounds.
func newBackOff(cfg Config) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.InitialBackoff
	b.MaxInterval = cfg.MaxBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.Reset()
	return b
}

// session dials, joins the namespace and reads until the connection drops.
// connected reports whether the namespace was joined.
func (c *Client) session(ctx context.Context) (connected bool, err error) {
	c.setState(Connecting)
	defer c.setState(Disconnected)

	conn, hs, err := c.dial(ctx)
	if err != nil {
		return false, err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.setState(Connected)
	slog.Info("connected to server", "url", c.cfg.URL, "sid", hs.SID)

	readErr := make(chan error, 1)
	go func() {
		readErr <- c.readLoop(conn, hs.readDeadline())
	}()

	select {
	case <-ctx.Done():
		c.detach()
		c.disconnect(conn)
		<-readErr
		slog.Info("disconnected from server")
		return true, ctx.Err()
	case err := <-readErr:
		c.detach()
		conn.CloseNow()
		slog.Info("disconnected from server")
		return true, err
	}
}

func (c *Client) detach() {
	c.setState(Disconnected)
	c.mu.Lock()
	c.conn = nil
	c.mu.Unlock()
}

// dial opens the websocket, completes the Engine.IO handshake and joins the
// namespace, all within ConnectTimeout.
func (c *Client) dial(ctx context.Context) (*websocket.Conn, handshake, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, c.endpoint, nil)
	if err != nil {
		return nil, handshake{}, fmt.Errorf("websocket dial: %w", err)
	}

	hs, err := c.join(ctx, conn)
	if err != nil {
		conn.CloseNow()
		return nil, handshake{}, err
	}
	return conn, hs, nil
}

func (c *Client) join(ctx context.Context, conn *websocket.Conn) (handshake, error) {
	var hs handshake

	_, data, err := conn.Read(ctx)
	if err != nil {
		return hs, fmt.Errorf("read open packet: %w", err)
	}
	typ, body, err := splitFrame(data)
	if err != nil || typ != engineOpen {
		return hs, fmt.Errorf("%w: expected open packet, got %q", errMalformedPacket, data)
	}
	if err := json.Unmarshal(body, &hs); err != nil {
		return hs, fmt.Errorf("decode handshake: %w", err)
	}
	conn.SetReadLimit(hs.readLimit())

	if err := conn.Write(ctx, websocket.MessageText, encodeConnect(c.cfg.Namespace)); err != nil {
		return hs, fmt.Errorf("send namespace connect: %w", err)
	}

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return hs, fmt.Errorf("await namespace connect: %w", err)
		}
		typ, body, err := splitFrame(data)
		if err != nil {
			continue
		}
		switch typ {
		case enginePing:
			if err := conn.Write(ctx, websocket.MessageText, []byte{enginePong}); err != nil {
				return hs, fmt.Errorf("send pong: %w", err)
			}
		case engineClose:
			return hs, errors.New("transport: server closed during connect")
		case engineMessage:
			p, err := decodePacket(body)
			if err != nil || p.Namespace != c.cfg.Namespace {
				continue
			}
			switch p.Type {
			case packetConnect:
				return hs, nil
			case packetConnectError:
				err := &ConnectError{Namespace: p.Namespace, Message: connectErrorMessage(p.Data)}
				slog.Error("namespace connect refused", "namespace", p.Namespace, "reason", err.Message)
				return hs, err
			}
		}
	}
}

// readLoop answers server pings and hands events to the consumer. It never
// blocks on the consumer for longer than handoffTimeout.
func (c *Client) readLoop(conn *websocket.Conn, deadline time.Duration) error {
	for {
		ctx := context.Background()
		cancel := func() {}
		if deadline > 0 {
			ctx, cancel = context.WithTimeout(ctx, deadline)
		}
		_, data, err := conn.Read(ctx)
		cancel()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		typ, body, err := splitFrame(data)
		if err != nil {
			continue
		}

		switch typ {
		case enginePing:
			wctx, wcancel := context.WithTimeout(context.Background(), writeTimeout)
			err := conn.Write(wctx, websocket.MessageText, []byte{enginePong})
			wcancel()
			if err != nil {
				return fmt.Errorf("send pong: %w", err)
			}
		case engineClose:
			return errors.New("transport: server closed connection")
		case engineNoop:
		case engineMessage:
			if err := c.handlePacket(body); err != nil {
				return err
			}
		default:
			slog.Debug("ignore engine packet", "type", string(typ))
		}
	}
}

func (c *Client) handlePacket(body []byte) error {
	p, err := decodePacket(body)
	if err != nil {
		slog.Warn("decode packet", "error", err)
		return nil
	}
	if p.Namespace != c.cfg.Namespace {
		return nil
	}

	switch p.Type {
	case packetDisconnect:
		return errors.New("transport: server disconnected namespace")
	case packetEvent:
		name, arg, err := decodeEvent(p.Data)
		if err != nil {
			slog.Warn("decode event", "error", err)
			return nil
		}
		msg, err := decodeMessage(name, arg)
		if err != nil {
			var unknown *UnknownEventError
			if errors.As(err, &unknown) {
				slog.Debug("ignore event", "event", name)
			} else {
				slog.Warn("decode event", "event", name, "error", err)
			}
			return nil
		}
		c.deliver(name, msg)
	case packetBinaryEvent:
		slog.Debug("ignore binary event")
	}
	return nil
}

func (c *Client) deliver(name string, msg Message) {
	select {
	case c.inbound <- msg:
	case <-time.After(handoffTimeout):
		slog.Warn("inbound channel full, dropping event", "event", name)
	}
}

// disconnect leaves the namespace and closes the websocket.
func (c *Client) disconnect(conn *websocket.Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, encodeDisconnect(c.cfg.Namespace)); err != nil {
		slog.Debug("send namespace disconnect", "error", err)
	}
	if err := conn.Close(websocket.StatusNormalClosure, "client disconnect"); err != nil {
		slog.Debug("close websocket", "error", err)
	}
}

// heartbeat emits ping while connected. Ticks while disconnected are
// skipped, not queued.
func (c *Client) heartbeat(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !c.Connected() {
				continue
			}
			if err := c.Emit(ctx, EventPing, nil); err != nil {
				slog.Debug("send heartbeat", "error", err)
			}
		}
	}
}
