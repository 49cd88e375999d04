// Package ipc implements the client side of the daemon's line-delimited
// JSON protocol: dial the socket, read the system:hello greeting, then
// exchange events. The CLI and TUI both sit on top of this client.
package ipc

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/ferretbot/ferretbot/internal/bus"
)

// maxLineBytes matches the gateway's line cap.
const maxLineBytes = 1 << 20

// helloTimeout bounds the wait for the greeting on a fresh connection.
const helloTimeout = 5 * time.Second

// eventBuffer is how many inbound events queue before the reader blocks
// on a slow consumer.
const eventBuffer = 64

// Config selects the daemon endpoint. A non-empty Socket wins over
// Host/Port.
type Config struct {
	Socket string
	Host   string
	Port   int
}

func (c Config) network() (string, string) {
	if c.Socket != "" {
		return "unix", c.Socket
	}
	return "tcp", net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Client is one connection to a running daemon.
type Client struct {
	nc     net.Conn
	events chan bus.Event

	done      chan struct{}
	closeOnce sync.Once

	wmu sync.Mutex

	clientID  string
	sessionID string
}

// Dial connects to the daemon and completes the hello handshake. The
// returned client owns the connection; Close it when done.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	network, addr := cfg.network()
	var d net.Dialer
	nc, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}

	scanner := bufio.NewScanner(nc)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	hello, err := readHello(ctx, nc, scanner)
	if err != nil {
		nc.Close()
		return nil, err
	}

	c := &Client{
		nc:        nc,
		events:    make(chan bus.Event, eventBuffer),
		done:      make(chan struct{}),
		clientID:  hello.ClientID,
		sessionID: hello.SessionID,
	}
	go c.readLoop(scanner)
	return c, nil
}

// readHello waits for the greeting line. Anything else first means the
// far end is not a daemon speaking this protocol.
func readHello(ctx context.Context, nc net.Conn, scanner *bufio.Scanner) (*bus.Event, error) {
	deadline := time.Now().Add(helloTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := nc.SetReadDeadline(deadline); err != nil {
		return nil, err
	}
	defer nc.SetReadDeadline(time.Time{})

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var ev bus.Event
		if err := json.Unmarshal(line, &ev); err != nil {
			return nil, fmt.Errorf("malformed greeting: %w", err)
		}
		if ev.Type != bus.EventSystemHello {
			return nil, fmt.Errorf("expected %s greeting, got %q", bus.EventSystemHello, ev.Type)
		}
		if ev.ClientID == "" {
			return nil, errors.New("greeting carries no client id")
		}
		return &ev, nil
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading greeting: %w", err)
	}
	return nil, errors.New("connection closed before greeting")
}

// readLoop feeds inbound events to the Events channel until the
// connection ends, then closes the channel. Malformed lines are skipped.
func (c *Client) readLoop(scanner *bufio.Scanner) {
	defer close(c.events)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var ev bus.Event
		if err := json.Unmarshal(line, &ev); err != nil {
			continue
		}
		if ev.Type == "" {
			continue
		}
		select {
		case c.events <- ev:
		case <-c.done:
			return
		}
	}
}

// ClientID returns the identity the daemon assigned this connection.
func (c *Client) ClientID() string { return c.clientID }

// SessionID returns the session the daemon derived for this connection.
func (c *Client) SessionID() string { return c.sessionID }

// Events returns the inbound event stream. The channel closes when the
// connection does.
func (c *Client) Events() <-chan bus.Event { return c.events }

// Send writes one event to the daemon.
func (c *Client) Send(ev bus.Event) error {
	data, err := json.Marshal(&ev)
	if err != nil {
		return err
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_, err = c.nc.Write(append(data, '\n'))
	return err
}

// Close tears down the connection. Safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.nc.Close()
	})
	return err
}

// CommandResult is the parsed reply to a workflow command.
type CommandResult struct {
	Command   string
	RequestID string
	OK        bool
	Code      string
	Message   string
	Data      map[string]any
}

// WaitForResult consumes events until the reply correlated by requestID
// arrives. Unrelated events are discarded, so callers that also want the
// display stream should drain Events themselves and use
// ParseCommandResult instead.
func (c *Client) WaitForResult(ctx context.Context, requestID string) (*CommandResult, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case ev, ok := <-c.events:
			if !ok {
				return nil, errors.New("connection closed")
			}
			res := ParseCommandResult(&ev)
			if res == nil || res.RequestID != requestID {
				continue
			}
			return res, nil
		}
	}
}

// ParseCommandResult extracts a command reply from an agent:status
// event. Returns nil for any other event.
func ParseCommandResult(ev *bus.Event) *CommandResult {
	if ev.Type != bus.EventAgentStatus {
		return nil
	}
	kind, _ := ev.Content["kind"].(string)
	if kind != bus.ContentKindCommandResult {
		return nil
	}
	res := &CommandResult{}
	res.Command, _ = ev.Content["command"].(string)
	res.RequestID, _ = ev.Content["requestId"].(string)
	res.OK, _ = ev.Content["ok"].(bool)
	res.Code, _ = ev.Content["code"].(string)
	res.Message, _ = ev.Content["message"].(string)
	if data, ok := ev.Content["data"].(map[string]any); ok {
		res.Data = data
	}
	return res
}
