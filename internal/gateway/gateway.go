// Package gateway serves line-delimited JSON clients over a unix socket
// or TCP and bridges them to the event bus. Each connection is greeted
// with a system:hello carrying its assigned clientId; recognized inbound
// commands are stamped with the connection's identity and emitted on the
// bus, and bus events addressed to the connection (or broadcast) are
// written back out.
package gateway

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/ferretbot/ferretbot/internal/bus"
	"github.com/ferretbot/ferretbot/internal/logging"
)

// maxLineBytes is the longest accepted wire line (1MB). Tool transcripts
// inside step completion payloads can be large.
const maxLineBytes = 1 << 20

// writeTimeout bounds how long one stalled client can hold the outbound
// fan-out before being dropped.
const writeTimeout = 5 * time.Second

// inboundCommands is the set of event types clients may submit. Anything
// else on the wire is discarded.
var inboundCommands = map[string]bool{
	bus.EventUserInput: true,
	bus.EventRunStart:  true,
	bus.EventRunCancel: true,
	bus.EventRunList:   true,
	bus.EventRunResume: true,
}

// Config selects the listening endpoint. A non-empty Socket wins over
// Host/Port.
type Config struct {
	Socket string
	Host   string
	Port   int
}

// Gateway accepts client connections and shuttles events between them
// and the bus.
type Gateway struct {
	log *log.Logger
	bus *bus.Bus
	cfg Config

	mu    sync.Mutex
	ln    net.Listener
	conns map[string]*conn

	wg sync.WaitGroup
}

// conn is one client connection. Writes from the fan-out and direct
// sends share the write lock.
type conn struct {
	id      string
	session string
	nc      net.Conn

	wmu sync.Mutex
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithLogger overrides the default component logger.
func WithLogger(logger *log.Logger) Option {
	return func(g *Gateway) { g.log = logger }
}

// New creates a Gateway. Call Attach to register the outbound fan-out,
// Listen to bind, then Serve to accept clients.
func New(b *bus.Bus, cfg Config, opts ...Option) *Gateway {
	g := &Gateway{
		log:   logging.New("gateway"),
		bus:   b,
		cfg:   cfg,
		conns: make(map[string]*conn),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Attach registers the wildcard bus subscription that fans events out to
// connected clients.
func (g *Gateway) Attach() {
	g.bus.Subscribe(bus.Wildcard, g.broadcast)
}

// Listen binds the configured endpoint. A stale socket file left behind
// by a previous process is removed before binding, so a crashed daemon
// does not wedge the next one.
func (g *Gateway) Listen() error {
	var (
		ln  net.Listener
		err error
	)
	if g.cfg.Socket != "" {
		if dir := filepath.Dir(g.cfg.Socket); dir != "." {
			if mkErr := os.MkdirAll(dir, 0o755); mkErr != nil {
				return fmt.Errorf("creating socket dir %s: %w", dir, mkErr)
			}
		}
		if rmErr := os.Remove(g.cfg.Socket); rmErr != nil && !os.IsNotExist(rmErr) {
			return fmt.Errorf("removing stale socket %s: %w", g.cfg.Socket, rmErr)
		}
		ln, err = net.Listen("unix", g.cfg.Socket)
	} else {
		ln, err = net.Listen("tcp", net.JoinHostPort(g.cfg.Host, strconv.Itoa(g.cfg.Port)))
	}
	if err != nil {
		return err
	}

	g.mu.Lock()
	g.ln = ln
	g.mu.Unlock()
	g.log.Info("gateway listening", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (g *Gateway) Addr() net.Addr {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ln == nil {
		return nil
	}
	return g.ln.Addr()
}

// Serve runs the accept loop until ctx is cancelled, then closes every
// connection and waits for their readers to finish. Listen must have
// succeeded first.
func (g *Gateway) Serve(ctx context.Context) error {
	g.mu.Lock()
	ln := g.ln
	g.mu.Unlock()
	if ln == nil {
		return errors.New("gateway: Listen before Serve")
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
		}
		ln.Close()
	}()

	var serveErr error
	for {
		nc, err := ln.Accept()
		if err != nil {
			if ctx.Err() == nil {
				serveErr = err
			}
			break
		}
		g.wg.Add(1)
		go func() {
			defer g.wg.Done()
			g.handleConn(ctx, nc)
		}()
	}

	g.closeAll()
	g.wg.Wait()
	if g.cfg.Socket != "" {
		_ = os.Remove(g.cfg.Socket)
	}
	return serveErr
}

// handleConn greets one client and pumps its inbound lines onto the bus
// until the connection ends.
func (g *Gateway) handleConn(ctx context.Context, nc net.Conn) {
	c := &conn{
		id: uuid.NewString(),
		nc: nc,
	}
	c.session = "client:" + c.id[:8]

	g.mu.Lock()
	g.conns[c.id] = c
	g.mu.Unlock()
	defer func() {
		g.mu.Lock()
		delete(g.conns, c.id)
		g.mu.Unlock()
		nc.Close()
		g.log.Info("client disconnected", "client", c.id)
	}()

	g.log.Info("client connected", "client", c.id, "session", c.session)
	hello := &bus.Event{
		Type:      bus.EventSystemHello,
		Channel:   bus.DefaultChannel,
		SessionID: c.session,
		ClientID:  c.id,
		Timestamp: time.Now().UnixMilli(),
	}
	if err := c.send(hello); err != nil {
		g.log.Warn("greeting failed", "client", c.id, "err", err)
		return
	}

	scanner := bufio.NewScanner(nc)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var ev bus.Event
		if err := json.Unmarshal(line, &ev); err != nil {
			g.log.Debug("discarding unparseable line", "client", c.id, "err", err)
			continue
		}
		if ev.Type == "" {
			g.log.Debug("discarding line without type", "client", c.id)
			continue
		}
		if !inboundCommands[ev.Type] {
			g.log.Debug("discarding unrecognized command", "client", c.id, "type", ev.Type)
			continue
		}

		// The connection, not the client, is the authority on identity.
		ev.ClientID = c.id
		ev.SessionID = c.session
		if err := g.bus.Emit(ctx, ev); err != nil {
			g.log.Warn("inbound event dropped", "client", c.id, "type", ev.Type, "err", err)
			return
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		g.log.Debug("connection read ended", "client", c.id, "err", err)
	}
}

// broadcast forwards one bus event to the connections it addresses: the
// matching client when ClientID is set, every client when it is empty.
func (g *Gateway) broadcast(_ context.Context, ev *bus.Event) error {
	g.mu.Lock()
	targets := make([]*conn, 0, len(g.conns))
	if ev.ClientID == "" {
		for _, c := range g.conns {
			targets = append(targets, c)
		}
	} else if c, ok := g.conns[ev.ClientID]; ok {
		targets = append(targets, c)
	}
	g.mu.Unlock()
	if len(targets) == 0 {
		return nil
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshaling %s event: %w", ev.Type, err)
	}
	line := append(data, '\n')
	for _, c := range targets {
		if err := c.writeLine(line); err != nil {
			g.drop(c, err)
		}
	}
	return nil
}

// drop removes a connection whose write failed. Closing the socket makes
// its read loop finish the rest of the teardown.
func (g *Gateway) drop(c *conn, err error) {
	g.mu.Lock()
	delete(g.conns, c.id)
	g.mu.Unlock()
	c.nc.Close()
	g.log.Warn("dropping unresponsive client", "client", c.id, "err", err)
}

func (g *Gateway) closeAll() {
	g.mu.Lock()
	conns := make([]*conn, 0, len(g.conns))
	for _, c := range g.conns {
		conns = append(conns, c)
	}
	g.mu.Unlock()
	for _, c := range conns {
		c.nc.Close()
	}
}

func (c *conn) send(ev *bus.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return c.writeLine(append(data, '\n'))
}

// writeLine writes one framed line under the write lock. The deadline
// bounds how long a dead peer can block the caller.
func (c *conn) writeLine(data []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := c.nc.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	_, err := c.nc.Write(data)
	return err
}
