package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/gorilla/websocket"

	"github.com/fundiapp/go-fundi-client/core"
)

const (
	defaultMaxReconnectAttempts = 5
	defaultReconnectDelay       = 3 * time.Second
	defaultHandshakeTimeout     = 10 * time.Second
)

// Client-to-server events.
const (
	EventJoinBooking  = "join_booking"
	EventLeaveBooking = "leave_booking"
	EventSendMessage  = "send_message"
)

// Server-to-client events.
const (
	EventBookingUpdate        = "booking_update"
	EventNewMessage           = "new_message"
	EventProviderNotification = "provider_notification"
	EventCustomerNotification = "customer_notification"
)

// Local lifecycle events, never sent on the wire. Reconnected fires after an
// automatic reconnect; room membership does not survive the transport drop,
// so the feature owning a room must reissue JoinRoom on this event.
// Disconnected fires when the reconnect budget is exhausted; only an
// explicit Connect revives the session after that.
const (
	EventConnected    = "connected"
	EventReconnected  = "reconnected"
	EventDisconnected = "disconnected"
)

// Conn is the transport surface the client uses; *websocket.Conn satisfies
// it via the gorillaConn wrapper.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteJSON(v any) error
	Close() error
}

// Dialer opens one transport connection. The credential is attached here,
// at handshake time only; a token rotation while connected does not
// re-authenticate the open session.
type Dialer func(ctx context.Context, url string, header http.Header) (Conn, error)

type gorillaConn struct {
	conn *websocket.Conn
}

func (g gorillaConn) ReadMessage() (int, []byte, error) {
	return g.conn.ReadMessage()
}

func (g gorillaConn) WriteJSON(v any) error {
	return g.conn.WriteJSON(v)
}

func (g gorillaConn) Close() error {
	return g.conn.Close()
}

func defaultDialer(ctx context.Context, url string, header http.Header) (Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: defaultHandshakeTimeout}
	conn, res, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if res != nil {
			res.Body.Close()
		}
		return nil, err
	}
	return gorillaConn{conn: conn}, nil
}

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type Handler func(event string, data json.RawMessage)

// TokenFunc returns the opaque credential for the connection handshake.
type TokenFunc func(ctx context.Context) (string, error)

// Client maintains one duplex connection to the realtime gateway with
// bounded, serialized reconnection. Sends while disconnected are dropped,
// not queued; durable replay belongs to the offline queue and covers REST
// mutations only.
type Client struct {
	url         string
	dialer      Dialer
	token       TokenFunc
	maxAttempts int
	delay       time.Duration
	logger      core.Logger
	metrics     core.MetricsRecorder

	mu           sync.Mutex
	conn         Conn
	connected    bool
	dialing      bool
	reconnecting bool
	closed       bool
	rooms        map[string]struct{}
	handlers     map[string][]Handler
	readerDone   chan struct{}

	writeMu sync.Mutex
	wait    func(ctx context.Context, delay time.Duration) error
}

type Option func(*Client)

func WithDialer(dialer Dialer) Option {
	return func(c *Client) {
		c.dialer = dialer
	}
}

func WithLogger(logger core.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithMetricsRecorder(recorder core.MetricsRecorder) Option {
	return func(c *Client) {
		c.metrics = recorder
	}
}

func New(cfg core.Config, token TokenFunc, opts ...Option) (*Client, error) {
	url := strings.TrimSpace(cfg.Realtime.URL)
	if url == "" {
		return nil, fmt.Errorf("realtime: url is required")
	}
	if token == nil {
		return nil, fmt.Errorf("realtime: token func is required")
	}
	maxAttempts := cfg.Realtime.MaxReconnectAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxReconnectAttempts
	}
	delay := defaultReconnectDelay
	if cfg.Realtime.ReconnectDelayMS > 0 {
		delay = time.Duration(cfg.Realtime.ReconnectDelayMS) * time.Millisecond
	}
	c := &Client{
		url:         url,
		dialer:      defaultDialer,
		token:       token,
		maxAttempts: maxAttempts,
		delay:       delay,
		metrics:     core.NopMetricsRecorder{},
		rooms:       map[string]struct{}{},
		handlers:    map[string][]Handler{},
		wait:        core.WaitWithContext,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(c)
	}
	c.logger = glog.Ensure(c.logger)
	return c, nil
}

// On registers a handler for a server or lifecycle event.
func (c *Client) On(event string, handler Handler) {
	if c == nil || handler == nil {
		return
	}
	event = strings.TrimSpace(event)
	if event == "" {
		return
	}
	c.mu.Lock()
	c.handlers[event] = append(c.handlers[event], handler)
	c.mu.Unlock()
}

// Connect opens the transport. It is idempotent: if a connection is already
// established the existing session is kept and no second transport is
// opened.
func (c *Client) Connect(ctx context.Context) error {
	if c == nil || c.dialer == nil {
		return core.NewError("realtime: client is not configured", core.CategoryInternal, core.ClientErrorInternal)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	if c.dialing || c.reconnecting {
		c.mu.Unlock()
		return core.NewError("realtime: connect already in progress", core.CategoryOperation, core.ClientErrorInternal)
	}
	c.dialing = true
	c.closed = false
	c.mu.Unlock()

	conn, err := c.dial(ctx)

	c.mu.Lock()
	c.dialing = false
	if err != nil {
		c.mu.Unlock()
		return err
	}
	// a Disconnect issued while the dial was in flight wins; the fresh
	// transport must not revive the session
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return core.NewError("realtime: disconnected while connecting", core.CategoryOperation, core.ClientErrorInternal)
	}
	c.adopt(conn)
	c.mu.Unlock()

	c.metrics.IncCounter(ctx, "realtime.connect.total", 1, nil)
	c.logger.Info("realtime connected")
	c.emit(EventConnected, nil)
	return nil
}

// adopt installs a live conn; caller holds c.mu.
func (c *Client) adopt(conn Conn) {
	c.conn = conn
	c.connected = true
	done := make(chan struct{})
	c.readerDone = done
	go c.readLoop(conn, done)
}

func (c *Client) dial(ctx context.Context) (Conn, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, core.WrapError(err, core.CategoryInternal, "realtime: read credential", core.ClientErrorInternal)
	}
	header := http.Header{}
	if strings.TrimSpace(token) != "" {
		header.Set("Authorization", "Bearer "+strings.TrimSpace(token))
	}
	conn, dialErr := c.dialer(ctx, c.url, header)
	if dialErr != nil {
		return nil, core.NormalizeTransportError(dialErr, "realtime: dial")
	}
	return conn, nil
}

// Disconnect tears the session down. Automatic reconnection stops and
// tracked room state is discarded.
func (c *Client) Disconnect() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	c.closed = true
	conn := c.conn
	done := c.readerDone
	c.conn = nil
	c.connected = false
	c.readerDone = nil
	c.rooms = map[string]struct{}{}
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	if done != nil {
		<-done
	}
	c.logger.Info("realtime disconnected")
	return nil
}

// Connected reports whether a transport is currently established.
func (c *Client) Connected() bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Rooms lists the rooms joined on the current transport.
func (c *Client) Rooms() []string {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.rooms))
	for room := range c.rooms {
		out = append(out, room)
	}
	return out
}

// JoinRoom subscribes to a booking's event stream. Dropped with an error
// when disconnected.
func (c *Client) JoinRoom(bookingID string) error {
	bookingID = strings.TrimSpace(bookingID)
	if bookingID == "" {
		return core.NewError("realtime: booking id is required", core.CategoryBadInput, core.ClientErrorBadInput)
	}
	if err := c.Send(EventJoinBooking, map[string]any{"bookingId": bookingID}); err != nil {
		return err
	}
	c.mu.Lock()
	c.rooms[bookingID] = struct{}{}
	c.mu.Unlock()
	return nil
}

func (c *Client) LeaveRoom(bookingID string) error {
	bookingID = strings.TrimSpace(bookingID)
	if bookingID == "" {
		return core.NewError("realtime: booking id is required", core.CategoryBadInput, core.ClientErrorBadInput)
	}
	if err := c.Send(EventLeaveBooking, map[string]any{"bookingId": bookingID}); err != nil {
		return err
	}
	c.mu.Lock()
	delete(c.rooms, bookingID)
	c.mu.Unlock()
	return nil
}

// Send writes one event. Sends while disconnected are dropped with a
// connectivity error, never queued.
func (c *Client) Send(event string, payload any) error {
	if c == nil {
		return core.NewError("realtime: client is not configured", core.CategoryInternal, core.ClientErrorInternal)
	}
	event = strings.TrimSpace(event)
	if event == "" {
		return core.NewError("realtime: event name is required", core.CategoryBadInput, core.ClientErrorBadInput)
	}

	c.mu.Lock()
	conn := c.conn
	connected := c.connected
	c.mu.Unlock()
	if !connected || conn == nil {
		return core.NewError("realtime: not connected, event dropped", core.CategoryExternal, core.ClientErrorConnectivity)
	}

	var data json.RawMessage
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return core.WrapError(err, core.CategoryBadInput, "realtime: encode event payload", core.ClientErrorBadInput)
		}
		data = encoded
	}

	c.writeMu.Lock()
	err := conn.WriteJSON(envelope{Event: event, Data: data})
	c.writeMu.Unlock()
	if err != nil {
		return core.NormalizeTransportError(err, "realtime: write event")
	}
	return nil
}

func (c *Client) readLoop(conn Conn, done chan struct{}) {
	defer close(done)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var incoming envelope
		if unmarshalErr := json.Unmarshal(message, &incoming); unmarshalErr != nil {
			c.logger.Error("discarded malformed realtime frame", "error", unmarshalErr.Error())
			continue
		}
		if strings.TrimSpace(incoming.Event) == "" {
			continue
		}
		c.emit(incoming.Event, incoming.Data)
	}

	c.mu.Lock()
	explicit := c.closed
	if c.conn == conn {
		c.conn = nil
		c.connected = false
		c.rooms = map[string]struct{}{}
	}
	c.mu.Unlock()

	if explicit {
		return
	}
	c.logger.Info("realtime transport dropped, reconnecting")
	go c.reconnect()
}

// reconnect retries the dial a fixed number of times with a fixed delay.
// Attempts are serialized; exhausting them leaves the session in a terminal
// disconnected state that only an explicit Connect escapes.
func (c *Client) reconnect() {
	c.mu.Lock()
	if c.reconnecting || c.closed || c.connected {
		c.mu.Unlock()
		return
	}
	c.reconnecting = true
	c.mu.Unlock()

	ctx := context.Background()
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := c.wait(ctx, c.delay); err != nil {
			break
		}
		c.mu.Lock()
		if c.closed {
			c.reconnecting = false
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()

		conn, err := c.dial(ctx)
		if err != nil {
			c.logger.Error("reconnect attempt failed", "attempt", attempt, "error", err.Error())
			c.metrics.IncCounter(ctx, "realtime.reconnect.total", 1, map[string]string{"status": "failure"})
			continue
		}

		c.mu.Lock()
		if c.closed {
			c.reconnecting = false
			c.mu.Unlock()
			_ = conn.Close()
			return
		}
		c.reconnecting = false
		c.adopt(conn)
		c.mu.Unlock()

		c.metrics.IncCounter(ctx, "realtime.reconnect.total", 1, map[string]string{"status": "success"})
		c.logger.Info("realtime reconnected", "attempt", attempt)
		// rooms are intentionally not rejoined here: the transport layer
		// does not know which features still care about which rooms
		c.emit(EventReconnected, nil)
		return
	}

	c.mu.Lock()
	c.reconnecting = false
	c.mu.Unlock()
	c.logger.Error("reconnect attempts exhausted", "attempts", c.maxAttempts)
	c.emit(EventDisconnected, nil)
}

func (c *Client) emit(event string, data json.RawMessage) {
	c.mu.Lock()
	handlers := make([]Handler, len(c.handlers[event]))
	copy(handlers, c.handlers[event])
	c.mu.Unlock()

	for _, handler := range handlers {
		handler(event, data)
	}
}
