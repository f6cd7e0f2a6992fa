// Package notifier implements the listener's client for the notifier
// service: a single persistent TCP connection speaking a line-oriented,
// message-id-multiplexed protocol.
//
// The client is not safe for concurrent use by design: the dispatcher
// drives one transaction at a time, so only one request is ever
// outstanding.
package notifier

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/dirlistener/dirlistener/internal/logger"
	"github.com/google/uuid"
)

// Config configures a Client.
type Config struct {
	// Address is host:port of the notifier's TCP socket.
	Address string

	// MaxRetries bounds reconnect attempts; 0 means unlimited.
	MaxRetries int

	// DialTimeout bounds each individual connection attempt.
	DialTimeout time.Duration

	// ReadTimeout bounds each reply read when the request's context
	// carries no deadline.
	ReadTimeout time.Duration
}

// Client is the notifier protocol client. Exactly one connection is
// maintained at a time; reconnects use exponential backoff and transparently
// reissue any in-flight GET_ID request for the same target id.
type Client struct {
	cfg Config

	// connID uniquely tags each TCP connection's lifetime for log
	// correlation, independent of the per-request msgID counter which
	// resets on reconnect.
	connID string

	mu      sync.Mutex
	conn    net.Conn
	reader  *bufio.Reader
	nextMsg uint64
	version ProtocolVersion

	// pending is the single outstanding GET_ID request, if any. On
	// reconnect it is transparently reissued for the same target id.
	pending *request
}

// New creates a Client. Connect must be called before any request.
func New(cfg Config) *Client {
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 5 * time.Minute
	}
	return &Client{cfg: cfg}
}

// Connect dials the notifier, retrying with exponential backoff
// until it succeeds, the retry budget is exhausted, or ctx is canceled.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

func (c *Client) connectLocked(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}

	attempt := 0
	for {
		attempt++

		dialer := net.Dialer{Timeout: c.cfg.DialTimeout}
		conn, err := dialer.DialContext(ctx, "tcp", c.cfg.Address)
		if err == nil {
			c.conn = conn
			c.reader = bufio.NewReader(conn)
			c.nextMsg = 0
			c.connID = uuid.NewString()
			logger.Info("notifier: connected", logger.Address(c.cfg.Address), "conn_id", c.connID, logger.Attempt(attempt))

			if c.pending != nil {
				if werr := c.writeLocked(*c.pending); werr != nil {
					return fmt.Errorf("notifier: reissue pending request after reconnect: %w", werr)
				}
				logger.Info("notifier: reissued pending request after reconnect", "msg_id", c.pending.msgID, "arg", c.pending.arg)
			}
			return nil
		}

		logger.Warn("notifier: connect attempt failed", logger.Address(c.cfg.Address), logger.Attempt(attempt), logger.Err(err))

		if c.cfg.MaxRetries > 0 && attempt >= c.cfg.MaxRetries {
			return fmt.Errorf("%w: %d attempts against %s", ErrReconnectLimitExceeded, attempt, c.cfg.Address)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoffDelay(attempt)):
		}
	}
}

// reconnectLocked closes the current connection (if any) and dials again,
// reissuing the pending request. Called on any I/O error or protocol
// desync.
func (c *Client) reconnectLocked(ctx context.Context) error {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
		c.reader = nil
	}
	return c.connectLocked(ctx)
}

func (c *Client) writeLocked(r request) error {
	if c.conn == nil {
		return ErrNotConnected
	}
	_, err := c.conn.Write([]byte(r.encode()))
	return err
}

// allocMsgID returns the next monotonic message id for the current
// connection. IDs are recycled (reset to 0) only on reconnect.
func (c *Client) allocMsgID() uint64 {
	id := c.nextMsg
	c.nextMsg++
	return id
}

// call issues a request and synchronously reads its reply, retrying the
// whole exchange across one reconnect if the connection drops or a
// mismatched/malformed reply is observed.
func (c *Client) call(ctx context.Context, command, arg string) (reply, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if c.conn == nil {
			if err := c.connectLocked(ctx); err != nil {
				return reply{}, err
			}
		}

		r := request{msgID: c.allocMsgID(), command: command, arg: arg}
		if err := c.writeLocked(r); err != nil {
			lastErr = err
			if rerr := c.reconnectLocked(ctx); rerr != nil {
				return reply{}, rerr
			}
			continue
		}

		rep, err := c.readMatchingLocked(ctx, r.msgID)
		if err == nil {
			return rep, nil
		}
		lastErr = err
		if rerr := c.reconnectLocked(ctx); rerr != nil {
			return reply{}, rerr
		}
	}
	return reply{}, fmt.Errorf("notifier: call %s failed after retry: %w", command, lastErr)
}

// readMatchingLocked reads lines until one matches wantMsgID, discarding
// unmatched replies with a warning.
func (c *Client) readMatchingLocked(ctx context.Context, wantMsgID uint64) (reply, error) {
	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetReadDeadline(deadline)
	} else {
		c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	}
	defer c.conn.SetReadDeadline(time.Time{})

	for {
		line, err := c.reader.ReadString('\n')
		if err != nil {
			return reply{}, fmt.Errorf("%w: read: %v", ErrProtocol, err)
		}

		rep, perr := parseReply(line)
		if perr != nil {
			return reply{}, perr
		}
		if rep.msgID != wantMsgID {
			logger.Warn("notifier: dropping reply for unexpected msg id", "want", wantMsgID, "got", rep.msgID)
			continue
		}
		return rep, nil
	}
}

// GetNextID asks the notifier what transaction follows afterID. The
// request is remembered as pending until a reply is obtained, so a
// mid-flight reconnect reissues it unchanged.
func (c *Client) GetNextID(ctx context.Context, afterID uint64) (NextIDResult, error) {
	c.mu.Lock()
	c.pending = &request{command: cmdGetID, arg: fmt.Sprintf("%d", afterID)}
	c.mu.Unlock()

	rep, err := c.call(ctx, cmdGetID, fmt.Sprintf("%d", afterID))
	if err != nil {
		return NextIDResult{}, err
	}

	result, version, err := decodeNextID(rep.payload)
	if err != nil {
		return NextIDResult{}, err
	}

	c.mu.Lock()
	if c.version == ProtocolUnknown {
		c.version = version
		logger.Info("notifier: detected protocol version", "version", protocolVersionName(version))
	}
	c.pending = nil
	c.mu.Unlock()

	return result, nil
}

// Alive issues the idle keepalive. Called when the pipeline
// has been idle >= the configured threshold (default 300s).
func (c *Client) Alive(ctx context.Context) error {
	rep, err := c.call(ctx, cmdAlive, "")
	if err != nil {
		return err
	}
	if len(rep.payload) == 0 {
		return fmt.Errorf("%w: empty ALIVE reply", ErrProtocol)
	}
	switch rep.payload[0] {
	case replyAliveOK:
		return nil
	case replyAliveFail:
		return fmt.Errorf("%w: notifier reported ALIVE failure", ErrNotConnected)
	default:
		return fmt.Errorf("%w: unexpected ALIVE reply %q", ErrProtocol, rep.payload[0])
	}
}

// GetSchemaID returns the notifier's current authoritative schema
// generation.
func (c *Client) GetSchemaID(ctx context.Context) (uint64, error) {
	rep, err := c.call(ctx, cmdGetSchemaID, "")
	if err != nil {
		return 0, err
	}
	if len(rep.payload) == 0 {
		return 0, fmt.Errorf("%w: empty GET_SCHEMA_ID reply", ErrProtocol)
	}
	var id uint64
	if _, serr := fmt.Sscanf(rep.payload[0], "%d", &id); serr != nil {
		return 0, fmt.Errorf("%w: malformed schema id %q: %v", ErrProtocol, rep.payload[0], serr)
	}
	return id, nil
}

// Version returns the protocol version detected from the first GET_ID
// reply, or ProtocolUnknown if no reply has been observed yet.
func (c *Client) Version() ProtocolVersion {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.reader = nil
	return err
}

func protocolVersionName(v ProtocolVersion) string {
	switch v {
	case ProtocolLegacy:
		return "legacy"
	case ProtocolModern:
		return "modern"
	default:
		return "unknown"
	}
}
