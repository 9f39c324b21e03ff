package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/skyhil/hilbridge/pkg/streaming"
)

const (
	queueSize        = 4096
	ackQueueSize     = 16
	maxReconnect     = 10
	maxBackoff       = 30 * time.Second
	writeWait        = 10 * time.Second
	ackTimeout       = 10 * time.Second
	handshakeTimeout = 5 * time.Second
	pongWait         = 30 * time.Second
	pingPeriod       = pongWait * 2 / 3
	dropLogEvery     = 1000
)

// connection owns one review-server socket. Every message goes through a
// single ordered queue drained by one writer, so end_run always follows the
// samples of its run. Samples are dropped when the queue is full; run
// boundaries wait for room instead.
type connection struct {
	queue chan []byte
	acks  chan streaming.AckMessage
	done  chan struct{}

	mu       sync.Mutex
	conn     *ws.Conn
	gen      uint64 // bumped whenever conn is replaced or lost
	closed   bool
	startRun []byte   // replayed after a reconnect
	held     [][]byte // written before the queue by the next writer

	wsURL  string
	secret string
	dialer *ws.Dialer

	dropped atomic.Uint64
	logger  *slog.Logger
}

func newConnection(logger *slog.Logger) *connection {
	return &connection{
		queue:  make(chan []byte, queueSize),
		acks:   make(chan streaming.AckMessage, ackQueueSize),
		done:   make(chan struct{}),
		dialer: &ws.Dialer{HandshakeTimeout: handshakeTimeout},
		logger: logger,
	}
}

func (c *connection) dial(rawURL, secret string) error {
	c.wsURL, c.secret = rawURL, secret

	conn, err := c.dialOnce()
	if err != nil {
		return err
	}
	c.attach(conn)
	return nil
}

// dialOnce opens the socket, passing the secret as a query parameter.
func (c *connection) dialOnce() (*ws.Conn, error) {
	u, err := url.Parse(c.wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid review server URL: %w", err)
	}
	q := u.Query()
	q.Set("secret", c.secret)
	u.RawQuery = q.Encode()

	conn, _, err := c.dialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("review server dial failed: %w", err)
	}
	return conn, nil
}

// attach makes conn current and starts its loops.
func (c *connection) attach(conn *ws.Conn) {
	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.conn = conn
	c.mu.Unlock()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go c.writeLoop(conn, gen)
	go c.readLoop(conn, gen)
}

func (c *connection) writeLoop(conn *ws.Conn, gen uint64) {
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	// write sends data, or keeps it for the next writer when this socket
	// is gone.
	write := func(data []byte) bool {
		if !c.current(gen) {
			c.holdBack(data)
			return false
		}
		if err := writeNow(conn, data); err != nil {
			c.holdBack(data)
			c.lost(gen, err)
			return false
		}
		return true
	}

	// flushHeld writes everything an earlier writer could not.
	flushHeld := func() bool {
		for data := c.takeHeld(); data != nil; data = c.takeHeld() {
			if !write(data) {
				return false
			}
		}
		return true
	}

	for {
		if !flushHeld() {
			return
		}
		select {
		case <-c.done:
			return
		case <-ping.C:
			if err := conn.WriteControl(ws.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.lost(gen, fmt.Errorf("ping: %w", err))
				return
			}
		case data := <-c.queue:
			if !flushHeld() {
				c.holdBackAfter(data)
				return
			}
			if !write(data) {
				return
			}
		}
	}
}

func (c *connection) readLoop(conn *ws.Conn, gen uint64) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			c.lost(gen, err)
			return
		}

		var ack streaming.AckMessage
		if err := json.Unmarshal(message, &ack); err != nil || ack.Type != streaming.TypeAck {
			c.logger.Debug("Ignoring review server message", "raw", string(message))
			continue
		}
		select {
		case c.acks <- ack:
		default:
			c.logger.Debug("Ack queue full, dropping", "for", ack.For)
		}
	}
}

func (c *connection) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gen == c.gen && !c.closed
}

// holdBack keeps a message whose write did not happen so the next writer
// sends it before anything else in the queue.
func (c *connection) holdBack(data []byte) {
	c.mu.Lock()
	c.held = append([][]byte{data}, c.held...)
	c.mu.Unlock()
}

// holdBackAfter keeps data behind the messages already held.
func (c *connection) holdBackAfter(data []byte) {
	c.mu.Lock()
	c.held = append(c.held, data)
	c.mu.Unlock()
}

func (c *connection) takeHeld() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.held) == 0 {
		return nil
	}
	data := c.held[0]
	c.held = c.held[1:]
	return data
}

// lost tears down the socket of generation gen and starts one reconnect.
// Calls for an older generation, or after close, do nothing.
func (c *connection) lost(gen uint64, err error) {
	c.mu.Lock()
	if gen != c.gen || c.closed {
		c.mu.Unlock()
		return
	}
	c.gen++
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	c.logger.Warn("Review server connection lost", "error", err)
	if conn != nil {
		_ = conn.Close()
	}
	go c.reconnect()
}

// reconnect redials with exponential backoff, replays the start_run of the
// run in progress and resumes draining the queue.
func (c *connection) reconnect() {
	backoff := time.Second
	for attempt := 1; attempt <= maxReconnect; attempt++ {
		select {
		case <-c.done:
			return
		case <-time.After(backoff):
		}

		conn, err := c.dialOnce()
		if err != nil {
			c.logger.Warn("Reconnect dial failed", "attempt", attempt, "error", err)
			backoff = min(backoff*2, maxBackoff)
			continue
		}

		c.mu.Lock()
		startRun := c.startRun
		c.mu.Unlock()

		// The server ties samples to the last start_run it saw on this socket.
		if startRun != nil {
			if err := writeNow(conn, startRun); err != nil {
				c.logger.Warn("Failed to replay start_run after reconnect", "error", err)
				_ = conn.Close()
				continue
			}
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			_ = conn.Close()
			return
		}
		c.mu.Unlock()

		c.attach(conn)
		c.logger.Info("Review server reconnected", "attempt", attempt)
		return
	}
	c.logger.Error("Giving up on review server", "attempts", maxReconnect)
}

func writeNow(conn *ws.Conn, data []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(ws.TextMessage, data)
}

// send queues a sample without blocking; it is dropped when the queue is full.
func (c *connection) send(data []byte) {
	select {
	case c.queue <- data:
	default:
		c.countDrop()
	}
}

func (c *connection) countDrop() {
	if n := c.dropped.Add(1); n == 1 || n%dropLogEvery == 0 {
		c.logger.Warn("Review server queue full, dropping samples", "dropped", n)
	}
}

// sendControl queues a run boundary, waiting up to timeout for room.
func (c *connection) sendControl(data []byte, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case c.queue <- data:
		return nil
	case <-timer.C:
		return fmt.Errorf("review server queue full for %s", timeout)
	case <-c.done:
		return fmt.Errorf("review server connection closed")
	}
}

// sendAndWait queues a run boundary and waits for the server's ack of it.
func (c *connection) sendAndWait(data []byte, ackFor string, timeout time.Duration) error {
	// acks left over from an earlier timed-out wait
	for drained := false; !drained; {
		select {
		case <-c.acks:
		default:
			drained = true
		}
	}

	deadline := time.Now().Add(timeout)
	if err := c.sendControl(data, timeout); err != nil {
		return fmt.Errorf("%s not sent: %w", ackFor, err)
	}

	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()
	for {
		select {
		case ack := <-c.acks:
			if ack.For == ackFor {
				return nil
			}
		case <-timer.C:
			return fmt.Errorf("timeout waiting for ack of %q", ackFor)
		case <-c.done:
			return fmt.Errorf("connection closed while waiting for ack of %q", ackFor)
		}
	}
}

// close sends a close frame and stops every loop. Idempotent.
func (c *connection) close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.gen++
	close(c.done)
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	_ = conn.WriteControl(ws.CloseMessage,
		ws.FormatCloseMessage(ws.CloseNormalClosure, "run recorder closing"),
		time.Now().Add(writeWait))
	return conn.Close()
}

// setStartRun remembers the start_run message for replay; nil clears it.
func (c *connection) setStartRun(data []byte) {
	c.mu.Lock()
	c.startRun = data
	c.mu.Unlock()
}
