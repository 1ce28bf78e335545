package stream

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tharindu1527/sample-doc-ai/internal/protocol"
	"github.com/Tharindu1527/sample-doc-ai/pkg/logging"
)

// ErrNotConnected is returned by Send when the connection is not open.
var ErrNotConnected = errors.New("voice stream not connected")

// Status is the connection state. Exactly one value holds at a time.
type Status int32

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("status(%d)", int32(s))
	}
}

// Events are the client's upward callbacks. All are optional.
type Events struct {
	// OnResponse receives every decoded inbound message, regardless of
	// connection state changes that may follow.
	OnResponse func(*protocol.Response)
	// OnProtocolError reports an inbound message that failed to decode.
	// Non-fatal; the connection stays up.
	OnProtocolError func(error)
	// OnStatusChange fires on every transition, with the causing error for
	// transitions into StatusError. Notifications are delivered one at a
	// time, in transition order.
	OnStatusChange func(Status, error)
}

type statusNotice struct {
	status Status
	cause  error
}

// Config for the streaming client.
type Config struct {
	// URL of the voice endpoint, ws:// or wss://.
	URL string
	// HandshakeTimeout defaults to 10s.
	HandshakeTimeout time.Duration
	// ResetDelay is the fixed pause before Reset re-dials. Defaults to 1s.
	ResetDelay time.Duration
}

// Client owns the single persistent websocket connection for a voice session.
// Connection failures are reported, never silently retried; Reset is the one
// explicit recovery path.
type Client struct {
	cfg Config
	ev  Events
	log *logging.Logger

	mu         sync.Mutex
	conn       *websocket.Conn
	status     Status
	resetTimer *time.Timer
	closed     bool
	notifyCh   chan statusNotice
}

// NewClient constructs a disconnected client.
func NewClient(cfg Config, ev Events, log *logging.Logger) *Client {
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.ResetDelay == 0 {
		cfg.ResetDelay = time.Second
	}
	if log == nil {
		log = logging.Default()
	}
	c := &Client{cfg: cfg, ev: ev, log: log.WithComponent("stream"), status: StatusDisconnected}
	if ev.OnStatusChange != nil {
		// One dispatcher keeps a fast transition sequence, like
		// error -> disconnected -> connecting -> connected on a reset, from
		// being observed out of order. Closed by Close.
		c.notifyCh = make(chan statusNotice, 32)
		go func() {
			for n := range c.notifyCh {
				ev.OnStatusChange(n.status, n.cause)
			}
		}()
	}
	return c
}

// Status returns the current connection state.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Connect opens the transport. Idempotent: a no-op while connecting or
// connected, so a second call never creates a second socket.
func (c *Client) Connect() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("voice stream closed")
	}
	if c.status == StatusConnecting || c.status == StatusConnected {
		c.mu.Unlock()
		return nil
	}
	c.setStatusLocked(StatusConnecting, nil)
	c.mu.Unlock()

	dialer := &websocket.Dialer{HandshakeTimeout: c.cfg.HandshakeTimeout}
	conn, resp, err := dialer.Dial(c.cfg.URL, nil)
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("dial %s (status %d): %w", c.cfg.URL, resp.StatusCode, err)
		} else {
			err = fmt.Errorf("dial %s: %w", c.cfg.URL, err)
		}
		c.mu.Lock()
		c.setStatusLocked(StatusError, err)
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return fmt.Errorf("voice stream closed")
	}
	c.conn = conn
	c.setStatusLocked(StatusConnected, nil)
	c.mu.Unlock()

	go c.readLoop(conn)
	c.log.Info("connected", "url", c.cfg.URL)
	return nil
}

// Send transmits one request. Valid only while connected; otherwise it is a
// reported failure, not a silent drop.
func (c *Client) Send(req protocol.Request) error {
	data, err := protocol.EncodeRequest(req)
	if err != nil {
		return err
	}
	c.mu.Lock()
	if c.status != StatusConnected || c.conn == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	conn := c.conn
	err = conn.WriteMessage(websocket.TextMessage, data)
	if err != nil {
		c.dropLocked(conn)
		c.setStatusLocked(StatusError, err)
		c.mu.Unlock()
		return fmt.Errorf("send %s: %w", req.Type, err)
	}
	c.mu.Unlock()
	return nil
}

// Reset closes any live socket, clears the error, and re-dials after the
// fixed delay. This is the only recovery path from StatusError.
func (c *Client) Reset() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.conn != nil {
		c.dropLocked(c.conn)
	}
	c.setStatusLocked(StatusDisconnected, nil)
	if c.resetTimer != nil {
		c.resetTimer.Stop()
	}
	c.resetTimer = time.AfterFunc(c.cfg.ResetDelay, func() {
		if err := c.Connect(); err != nil {
			c.log.Warn("reconnect failed", "error", err)
		}
	})
	c.mu.Unlock()
	c.log.Info("connection reset", "delay", c.cfg.ResetDelay)
}

// Close tears the client down for good.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.resetTimer != nil {
		c.resetTimer.Stop()
		c.resetTimer = nil
	}
	if c.conn != nil {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		c.dropLocked(c.conn)
	}
	c.setStatusLocked(StatusDisconnected, nil)
	c.closed = true
	if c.notifyCh != nil {
		close(c.notifyCh)
	}
	c.mu.Unlock()
}

// dropLocked detaches and closes conn if it is still the live one.
func (c *Client) dropLocked(conn *websocket.Conn) {
	if c.conn == conn {
		c.conn = nil
	}
	_ = conn.Close()
}

func (c *Client) setStatusLocked(st Status, cause error) {
	if c.status == st {
		return
	}
	c.status = st
	if c.notifyCh != nil && !c.closed {
		c.notifyCh <- statusNotice{status: st, cause: cause}
	}
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			if c.conn != conn {
				// Deliberately dropped by Reset/Close; state already set.
				c.mu.Unlock()
				return
			}
			c.conn = nil
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.setStatusLocked(StatusDisconnected, nil)
			} else {
				c.setStatusLocked(StatusError, err)
			}
			c.mu.Unlock()
			_ = conn.Close()
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		resp, derr := protocol.DecodeResponse(data)
		if derr != nil {
			c.log.Warn("undecodable message", "error", derr)
			if c.ev.OnProtocolError != nil {
				c.ev.OnProtocolError(derr)
			}
			continue
		}
		if c.ev.OnResponse != nil {
			c.ev.OnResponse(resp)
		}
	}
}
