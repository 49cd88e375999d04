package gateway_test

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ferretbot/ferretbot/internal/bus"
	"github.com/ferretbot/ferretbot/internal/gateway"
	"github.com/ferretbot/ferretbot/internal/ipc"
)

type recorder struct {
	mu     sync.Mutex
	events []bus.Event
}

func (r *recorder) handle(_ context.Context, ev *bus.Event) error {
	r.mu.Lock()
	r.events = append(r.events, *ev)
	r.mu.Unlock()
	return nil
}

func (r *recorder) byType(eventType string) []bus.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []bus.Event
	for _, ev := range r.events {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

type fixture struct {
	t    *testing.T
	bus  *bus.Bus
	gw   *gateway.Gateway
	rec  *recorder
	addr string
}

func startGateway(t *testing.T, cfg gateway.Config) *fixture {
	t.Helper()
	quiet := log.New(io.Discard)

	b := bus.New(bus.WithLogger(quiet))
	rec := &recorder{}
	b.Subscribe(bus.Wildcard, rec.handle)

	g := gateway.New(b, cfg, gateway.WithLogger(quiet))
	g.Attach()
	require.NoError(t, g.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	busDone := make(chan struct{})
	serveDone := make(chan struct{})
	go func() {
		defer close(busDone)
		_ = b.Run(ctx)
	}()
	go func() {
		defer close(serveDone)
		_ = g.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-serveDone
		<-busDone
	})

	return &fixture{t: t, bus: b, gw: g, rec: rec, addr: g.Addr().String()}
}

// rawClient speaks the wire protocol directly, one line at a time.
type rawClient struct {
	t  *testing.T
	nc net.Conn
	sc *bufio.Scanner
}

func dialRaw(t *testing.T, network, addr string) *rawClient {
	t.Helper()
	nc, err := net.DialTimeout(network, addr, 2*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { nc.Close() })
	sc := bufio.NewScanner(nc)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	return &rawClient{t: t, nc: nc, sc: sc}
}

func (c *rawClient) readEvent() bus.Event {
	c.t.Helper()
	require.NoError(c.t, c.nc.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.True(c.t, c.sc.Scan(), "expected a wire event, got: %v", c.sc.Err())
	var ev bus.Event
	require.NoError(c.t, json.Unmarshal(c.sc.Bytes(), &ev))
	return ev
}

func (c *rawClient) writeLine(line string) {
	c.t.Helper()
	_, err := c.nc.Write([]byte(line + "\n"))
	require.NoError(c.t, err)
}

func (c *rawClient) hello() bus.Event {
	c.t.Helper()
	ev := c.readEvent()
	require.Equal(c.t, bus.EventSystemHello, ev.Type)
	return ev
}

func TestHelloGreeting(t *testing.T) {
	t.Parallel()
	f := startGateway(t, gateway.Config{Host: "127.0.0.1"})

	client := dialRaw(t, "tcp", f.addr)
	hello := client.hello()
	assert.NotEmpty(t, hello.ClientID)
	assert.Equal(t, "client:"+hello.ClientID[:8], hello.SessionID)
	assert.NotZero(t, hello.Timestamp)
}

func TestInboundCommandsAreStamped(t *testing.T) {
	t.Parallel()
	f := startGateway(t, gateway.Config{Host: "127.0.0.1"})

	client := dialRaw(t, "tcp", f.addr)
	hello := client.hello()

	// The claimed identity on the wire must lose to the connection's.
	client.writeLine(`{"type":"user:input","content":{"text":"hi"},"clientId":"spoofed","sessionId":"fake"}`)

	echo := client.readEvent()
	assert.Equal(t, bus.EventUserInput, echo.Type)
	assert.Equal(t, hello.ClientID, echo.ClientID)
	assert.Equal(t, hello.SessionID, echo.SessionID)
	assert.Equal(t, "hi", echo.Content["text"])

	seen := f.rec.byType(bus.EventUserInput)
	require.Len(t, seen, 1)
	assert.Equal(t, hello.ClientID, seen[0].ClientID)
	assert.Equal(t, hello.SessionID, seen[0].SessionID)
}

func TestInvalidLinesAreDiscarded(t *testing.T) {
	t.Parallel()
	f := startGateway(t, gateway.Config{Host: "127.0.0.1"})

	client := dialRaw(t, "tcp", f.addr)
	client.hello()

	client.writeLine(`this is not json`)
	client.writeLine(`{"content":{"text":"typeless"}}`)
	client.writeLine(`{"type":"evil:cmd","content":{}}`)
	client.writeLine(`{"type":"user:input","content":{"text":"after the noise"}}`)

	// Per-connection lines are handled in order, so the echo proves the
	// earlier garbage was already dealt with.
	echo := client.readEvent()
	assert.Equal(t, bus.EventUserInput, echo.Type)
	assert.Equal(t, "after the noise", echo.Content["text"])

	assert.Len(t, f.rec.byType(bus.EventUserInput), 1)
	assert.Empty(t, f.rec.byType("evil:cmd"))
}

func TestOversizedLineDropsConnection(t *testing.T) {
	t.Parallel()
	f := startGateway(t, gateway.Config{Host: "127.0.0.1"})

	client := dialRaw(t, "tcp", f.addr)
	client.hello()

	// The write may fail partway once the gateway gives up on the line,
	// so its error is not checked.
	oversized := `{"type":"user:input","content":{"text":"` + strings.Repeat("x", 2<<20) + `"}}` + "\n"
	_, _ = client.nc.Write([]byte(oversized))

	// The scanner gives up on the over-limit line and the gateway closes
	// the connection rather than resynchronizing mid-stream.
	require.NoError(t, client.nc.SetReadDeadline(time.Now().Add(2*time.Second)))
	for client.sc.Scan() {
	}
	assert.Empty(t, f.rec.byType(bus.EventUserInput))
}

func TestBroadcastReachesAllClients(t *testing.T) {
	t.Parallel()
	f := startGateway(t, gateway.Config{Host: "127.0.0.1"})

	a := dialRaw(t, "tcp", f.addr)
	a.hello()
	b := dialRaw(t, "tcp", f.addr)
	b.hello()

	require.NoError(t, f.bus.Emit(context.Background(), bus.Event{
		Type:    bus.EventAgentResponse,
		Content: map[string]any{"text": "for everyone"},
	}))

	for _, client := range []*rawClient{a, b} {
		ev := client.readEvent()
		assert.Equal(t, bus.EventAgentResponse, ev.Type)
		assert.Equal(t, "for everyone", ev.Content["text"])
	}
}

func TestTargetedEventReachesOnlyItsClient(t *testing.T) {
	t.Parallel()
	f := startGateway(t, gateway.Config{Host: "127.0.0.1"})

	a := dialRaw(t, "tcp", f.addr)
	helloA := a.hello()
	b := dialRaw(t, "tcp", f.addr)
	b.hello()

	require.NoError(t, f.bus.Emit(context.Background(), bus.Event{
		Type:     bus.EventAgentStatus,
		ClientID: helloA.ClientID,
		Content:  map[string]any{"note": "just for a"},
	}))
	require.NoError(t, f.bus.Emit(context.Background(), bus.Event{
		Type:    bus.EventAgentResponse,
		Content: map[string]any{"text": "for everyone"},
	}))

	first := a.readEvent()
	assert.Equal(t, bus.EventAgentStatus, first.Type)
	second := a.readEvent()
	assert.Equal(t, bus.EventAgentResponse, second.Type)

	// B's first event after the targeted emit is the broadcast; the
	// targeted one never reached it.
	only := b.readEvent()
	assert.Equal(t, bus.EventAgentResponse, only.Type)
}

func TestClientCommandRoundTrip(t *testing.T) {
	t.Parallel()
	f := startGateway(t, gateway.Config{Host: "127.0.0.1"})

	// Stand in for the engine: answer list commands in its reply dialect.
	f.bus.Subscribe(bus.EventRunList, func(_ context.Context, ev *bus.Event) error {
		return f.bus.EmitAsync(bus.Event{
			Type:      bus.EventAgentStatus,
			ClientID:  ev.ClientID,
			SessionID: ev.SessionID,
			Content: map[string]any{
				"kind":      bus.ContentKindCommandResult,
				"command":   ev.Type,
				"requestId": ev.Content["requestId"],
				"ok":        true,
				"message":   "0 runs",
				"data":      map[string]any{"runs": []any{}},
			},
		})
	})

	host, portStr, err := net.SplitHostPort(f.addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	client, err := ipc.Dial(ctx, ipc.Config{Host: host, Port: port})
	require.NoError(t, err)
	defer client.Close()

	assert.NotEmpty(t, client.ClientID())
	assert.Equal(t, "client:"+client.ClientID()[:8], client.SessionID())

	require.NoError(t, client.Send(ipc.RunList("req-1")))
	res, err := client.WaitForResult(ctx, "req-1")
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, bus.EventRunList, res.Command)
	assert.Equal(t, "0 runs", res.Message)
	assert.Contains(t, res.Data, "runs")
}

func TestUnixSocketReplacesStaleFile(t *testing.T) {
	t.Parallel()
	quiet := log.New(io.Discard)
	socket := filepath.Join(t.TempDir(), "ferretbot.sock")
	require.NoError(t, os.WriteFile(socket, []byte("stale"), 0o600))

	b := bus.New(bus.WithLogger(quiet))
	g := gateway.New(b, gateway.Config{Socket: socket}, gateway.WithLogger(quiet))
	g.Attach()
	require.NoError(t, g.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	busDone := make(chan struct{})
	serveDone := make(chan struct{})
	go func() {
		defer close(busDone)
		_ = b.Run(ctx)
	}()
	go func() {
		defer close(serveDone)
		_ = g.Serve(ctx)
	}()

	dialCtx, dialCancel := context.WithTimeout(ctx, 2*time.Second)
	defer dialCancel()
	client, err := ipc.Dial(dialCtx, ipc.Config{Socket: socket})
	require.NoError(t, err)
	assert.NotEmpty(t, client.SessionID())
	client.Close()

	cancel()
	<-serveDone
	<-busDone

	// Serve cleans up its socket file on the way out.
	_, statErr := os.Stat(socket)
	assert.True(t, os.IsNotExist(statErr))
}

func TestDialRejectsNonDaemonPeer(t *testing.T) {
	t.Parallel()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		nc, acceptErr := ln.Accept()
		if acceptErr != nil {
			return
		}
		_, _ = nc.Write([]byte(`{"type":"something:else"}` + "\n"))
		nc.Close()
	}()

	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = ipc.Dial(ctx, ipc.Config{Host: host, Port: port})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "greeting")
}
