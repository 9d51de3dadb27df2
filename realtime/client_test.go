package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/fundiapp/go-fundi-client/core"
)

type fakeConn struct {
	mu     sync.Mutex
	frames chan []byte
	writes []envelope
	closed bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{frames: make(chan []byte, 16)}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	frame, ok := <-c.frames
	if !ok {
		return 0, nil, errors.New("use of closed connection")
	}
	return 1, frame, nil
}

func (c *fakeConn) WriteJSON(v any) error {
	env, ok := v.(envelope)
	if !ok {
		return fmt.Errorf("unexpected write type %T", v)
	}
	c.mu.Lock()
	c.writes = append(c.writes, env)
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.frames)
	}
	return nil
}

// drop simulates the transport failing out from under the client.
func (c *fakeConn) drop() {
	_ = c.Close()
}

func (c *fakeConn) push(t *testing.T, event string, data string) {
	t.Helper()
	frame := fmt.Sprintf(`{"event":%q`, event)
	if data != "" {
		frame += `,"data":` + data
	}
	frame += `}`
	c.frames <- []byte(frame)
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) written() []envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]envelope(nil), c.writes...)
}

type scriptedDialer struct {
	mu       sync.Mutex
	attempts int
	failures int
	conns    []*fakeConn
	headers  []http.Header
}

func (d *scriptedDialer) dial(_ context.Context, _ string, header http.Header) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attempts++
	d.headers = append(d.headers, header)
	if d.failures > 0 {
		d.failures--
		return nil, errors.New("dial tcp: connection refused")
	}
	conn := newFakeConn()
	d.conns = append(d.conns, conn)
	return conn, nil
}

func (d *scriptedDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attempts
}

func (d *scriptedDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[i]
}

func staticToken(token string) TokenFunc {
	return func(context.Context) (string, error) {
		return token, nil
	}
}

func realtimeConfig(attempts int) core.Config {
	cfg := core.DefaultConfig()
	cfg.Realtime.URL = "wss://realtime.fundi.test/socket"
	cfg.Realtime.MaxReconnectAttempts = attempts
	cfg.Realtime.ReconnectDelayMS = 1
	return cfg
}

func newTestClient(t *testing.T, dialer *scriptedDialer, attempts int) *Client {
	t.Helper()
	c, err := New(realtimeConfig(attempts), staticToken("token-1"), WithDialer(dialer.dial))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	c.wait = func(context.Context, time.Duration) error { return nil }
	return c
}

func awaitEvent(t *testing.T, c *Client, event string) <-chan struct{} {
	t.Helper()
	fired := make(chan struct{}, 4)
	c.On(event, func(string, json.RawMessage) {
		fired <- struct{}{}
	})
	return fired
}

func waitFor(t *testing.T, fired <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestConnect_AttachesBearerAtHandshake(t *testing.T) {
	dialer := &scriptedDialer{}
	c := newTestClient(t, dialer, 3)
	defer c.Disconnect()

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if got := dialer.headers[0].Get("Authorization"); got != "Bearer token-1" {
		t.Fatalf("expected bearer header at handshake, got %q", got)
	}
	if !c.Connected() {
		t.Fatalf("expected connected state")
	}
}

func TestConnect_IsIdempotent(t *testing.T) {
	dialer := &scriptedDialer{}
	c := newTestClient(t, dialer, 3)
	defer c.Disconnect()

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("first connect: %v", err)
	}
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("second connect: %v", err)
	}
	if dialer.dialCount() != 1 {
		t.Fatalf("expected a single transport, got %d dials", dialer.dialCount())
	}
}

func TestSend_DropsWhenDisconnected(t *testing.T) {
	dialer := &scriptedDialer{}
	c := newTestClient(t, dialer, 3)

	err := c.Send(EventSendMessage, map[string]any{"text": "hello"})
	if !core.IsConnectivityError(err) {
		t.Fatalf("expected connectivity drop, got %v", err)
	}
	if dialer.dialCount() != 0 {
		t.Fatalf("send must not dial, got %d dials", dialer.dialCount())
	}
}

func TestJoinLeaveRoom_TracksMembership(t *testing.T) {
	dialer := &scriptedDialer{}
	c := newTestClient(t, dialer, 3)
	defer c.Disconnect()
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	if err := c.JoinRoom("bk_1"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if rooms := c.Rooms(); len(rooms) != 1 || rooms[0] != "bk_1" {
		t.Fatalf("expected tracked room, got %v", rooms)
	}

	writes := dialer.conn(0).written()
	if len(writes) != 1 || writes[0].Event != EventJoinBooking {
		t.Fatalf("expected join event on the wire, got %+v", writes)
	}

	if err := c.LeaveRoom("bk_1"); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if rooms := c.Rooms(); len(rooms) != 0 {
		t.Fatalf("expected no rooms after leave, got %v", rooms)
	}
}

func TestReadLoop_DispatchesServerEvents(t *testing.T) {
	dialer := &scriptedDialer{}
	c := newTestClient(t, dialer, 3)
	defer c.Disconnect()

	received := make(chan json.RawMessage, 1)
	c.On(EventBookingUpdate, func(_ string, data json.RawMessage) {
		received <- data
	})

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	dialer.conn(0).push(t, EventBookingUpdate, `{"bookingId":"bk_1","status":"confirmed"}`)

	select {
	case data := <-received:
		var payload struct {
			BookingID string `json:"bookingId"`
			Status    string `json:"status"`
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		if payload.BookingID != "bk_1" || payload.Status != "confirmed" {
			t.Fatalf("unexpected payload %+v", payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for booking update")
	}
}

func TestReadLoop_SkipsMalformedFrames(t *testing.T) {
	dialer := &scriptedDialer{}
	c := newTestClient(t, dialer, 3)
	defer c.Disconnect()

	received := make(chan struct{}, 1)
	c.On(EventNewMessage, func(string, json.RawMessage) {
		received <- struct{}{}
	})

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	dialer.conn(0).frames <- []byte(`not json`)
	dialer.conn(0).push(t, EventNewMessage, `{"text":"hi"}`)

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected dispatch to continue past malformed frame")
	}
}

func TestReconnect_RestoresTransportWithoutRejoiningRooms(t *testing.T) {
	dialer := &scriptedDialer{}
	c := newTestClient(t, dialer, 3)
	defer c.Disconnect()

	reconnected := awaitEvent(t, c, EventReconnected)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := c.JoinRoom("bk_1"); err != nil {
		t.Fatalf("join: %v", err)
	}

	dialer.conn(0).drop()
	waitFor(t, reconnected, "reconnect")

	if !c.Connected() {
		t.Fatalf("expected connected state after reconnect")
	}
	if dialer.dialCount() != 2 {
		t.Fatalf("expected one reconnect dial, got %d total", dialer.dialCount())
	}
	// membership does not survive the drop and is not replayed by the client
	if rooms := c.Rooms(); len(rooms) != 0 {
		t.Fatalf("expected no tracked rooms after reconnect, got %v", rooms)
	}
	if writes := dialer.conn(1).written(); len(writes) != 0 {
		t.Fatalf("expected no automatic rejoin frames, got %+v", writes)
	}
}

func TestReconnect_RetriesThenSucceeds(t *testing.T) {
	dialer := &scriptedDialer{}
	c := newTestClient(t, dialer, 5)
	defer c.Disconnect()

	reconnected := awaitEvent(t, c, EventReconnected)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	dialer.mu.Lock()
	dialer.failures = 2
	dialer.mu.Unlock()
	dialer.conn(0).drop()
	waitFor(t, reconnected, "reconnect after failures")

	// initial dial + 2 failed attempts + 1 success
	if dialer.dialCount() != 4 {
		t.Fatalf("expected 4 dials, got %d", dialer.dialCount())
	}
}

func TestReconnect_ExhaustionIsTerminalUntilExplicitConnect(t *testing.T) {
	dialer := &scriptedDialer{}
	c := newTestClient(t, dialer, 2)
	defer c.Disconnect()

	disconnected := awaitEvent(t, c, EventDisconnected)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	dialer.mu.Lock()
	dialer.failures = 10
	dialer.mu.Unlock()
	dialer.conn(0).drop()
	waitFor(t, disconnected, "reconnect exhaustion")

	if c.Connected() {
		t.Fatalf("expected terminal disconnected state")
	}
	// initial dial + exactly maxAttempts reconnect dials
	if dialer.dialCount() != 3 {
		t.Fatalf("expected bounded reconnect attempts, got %d dials", dialer.dialCount())
	}

	dialer.mu.Lock()
	dialer.failures = 0
	dialer.mu.Unlock()
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("explicit reconnect: %v", err)
	}
	if !c.Connected() {
		t.Fatalf("expected explicit connect to revive the session")
	}
}

// gatedDialer blocks dials from gateFrom (1-based) onward until released,
// so a Disconnect can be interleaved with an in-flight dial.
type gatedDialer struct {
	mu       sync.Mutex
	inner    *scriptedDialer
	gateFrom int
	count    int
	started  chan struct{}
	release  chan struct{}
}

func newGatedDialer(inner *scriptedDialer, gateFrom int) *gatedDialer {
	return &gatedDialer{
		inner:    inner,
		gateFrom: gateFrom,
		started:  make(chan struct{}, 4),
		release:  make(chan struct{}),
	}
}

func (d *gatedDialer) dial(ctx context.Context, url string, header http.Header) (Conn, error) {
	d.mu.Lock()
	d.count++
	gated := d.count >= d.gateFrom
	d.mu.Unlock()
	if gated {
		d.started <- struct{}{}
		<-d.release
	}
	return d.inner.dial(ctx, url, header)
}

func TestDisconnect_DuringDialWinsOverConnect(t *testing.T) {
	inner := &scriptedDialer{}
	gated := newGatedDialer(inner, 1)
	c, err := New(realtimeConfig(3), staticToken("token-1"), WithDialer(gated.dial))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	c.wait = func(context.Context, time.Duration) error { return nil }

	connectErr := make(chan error, 1)
	go func() {
		connectErr <- c.Connect(context.Background())
	}()

	select {
	case <-gated.started:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for dial to start")
	}
	if err := c.Disconnect(); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	close(gated.release)

	select {
	case err := <-connectErr:
		if err == nil {
			t.Fatalf("expected connect to fail after explicit disconnect")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for connect to return")
	}
	if c.Connected() {
		t.Fatalf("session outlived explicit disconnect")
	}
	if !inner.conn(0).isClosed() {
		t.Fatalf("expected the late transport to be closed, not adopted")
	}
}

func TestDisconnect_DuringReconnectDialStaysDown(t *testing.T) {
	inner := &scriptedDialer{}
	gated := newGatedDialer(inner, 2) // first dial passes, reconnect dial blocks
	c, err := New(realtimeConfig(3), staticToken("token-1"), WithDialer(gated.dial))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	c.wait = func(context.Context, time.Duration) error { return nil }

	reconnected := awaitEvent(t, c, EventReconnected)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	inner.conn(0).drop()
	select {
	case <-gated.started:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for reconnect dial to start")
	}
	if err := c.Disconnect(); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	close(gated.release)

	deadline := time.Now().Add(2 * time.Second)
	for inner.dialCount() < 2 || !inner.conn(1).isClosed() {
		if time.Now().After(deadline) {
			t.Fatalf("expected the reconnect transport to be closed, not adopted")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if c.Connected() {
		t.Fatalf("session outlived explicit disconnect")
	}
	select {
	case <-reconnected:
		t.Fatalf("reconnected event must not fire after explicit disconnect")
	default:
	}
}

func TestDisconnect_StopsReconnection(t *testing.T) {
	dialer := &scriptedDialer{}
	c := newTestClient(t, dialer, 3)

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := c.JoinRoom("bk_1"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := c.Disconnect(); err != nil {
		t.Fatalf("disconnect: %v", err)
	}

	if c.Connected() {
		t.Fatalf("expected disconnected state")
	}
	if rooms := c.Rooms(); len(rooms) != 0 {
		t.Fatalf("expected rooms discarded, got %v", rooms)
	}

	// give any stray reconnect goroutine a moment to run
	time.Sleep(50 * time.Millisecond)
	if dialer.dialCount() != 1 {
		t.Fatalf("explicit disconnect must not reconnect, got %d dials", dialer.dialCount())
	}
}
