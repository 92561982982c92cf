package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"bubbles.ai/internal/protocol"
)

// Sink receives decoded ledger frames. Both methods may block; the client
// applies backpressure to the feed rather than dropping confirmed history.
type Sink interface {
	ConfirmedInput(ctx context.Context, in protocol.Input) error
	LedgerTime(ctx context.Context, ts int64) error
}

// Client follows an indexer's websocket feed and reconnects with
// exponential backoff. After a reconnect it asks for frames after the last
// ledger time it saw via the "from" query parameter.
type Client struct {
	URL  string
	Sink Sink
	Val  *protocol.Validator
	Log  *log.Logger

	MinBackoff time.Duration
	MaxBackoff time.Duration
	// From resumes the feed after this ledger time on the first dial.
	From int64

	lastTs int64
}

func (c *Client) logf(format string, args ...any) {
	if c.Log != nil {
		c.Log.Printf(format, args...)
	}
}

// Run blocks until ctx is done.
func (c *Client) Run(ctx context.Context) error {
	minB, maxB := c.MinBackoff, c.MaxBackoff
	if minB <= 0 {
		minB = 250 * time.Millisecond
	}
	if maxB < minB {
		maxB = 30 * time.Second
	}
	backoff := minB
	if c.lastTs < c.From {
		c.lastTs = c.From
	}
	for {
		start := time.Now()
		err := c.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if time.Since(start) > maxB {
			backoff = minB
		}
		c.logf("[ledger] feed dropped: %v; reconnecting in %s", err, backoff)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxB {
			backoff = maxB
		}
	}
}

func (c *Client) dialURL() (string, error) {
	u, err := url.Parse(c.URL)
	if err != nil {
		return "", err
	}
	if c.lastTs > 0 {
		q := u.Query()
		q.Set("from", strconv.FormatInt(c.lastTs, 10))
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (c *Client) session(ctx context.Context) error {
	target, err := c.dialURL()
	if err != nil {
		return err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	c.logf("[ledger] connected %s", target)

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(90 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if err := c.Handle(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logf("[ledger] bad frame: %v", err)
		}
	}
}

// Handle validates and dispatches one raw feed frame.
func (c *Client) Handle(ctx context.Context, msg []byte) error {
	if c.Val != nil {
		if err := c.Val.Validate(protocol.SchemaLedgerFrame, msg); err != nil {
			return fmt.Errorf("schema: %w", err)
		}
	}
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return err
	}
	switch base.Type {
	case protocol.TypeLedgerInput:
		var m protocol.LedgerInputMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return err
		}
		return c.confirm(ctx, m.Input)
	case protocol.TypeLedgerNotice:
		var m protocol.LedgerNoticeMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return err
		}
		in, err := protocol.NoticeInput(m)
		if err != nil {
			return fmt.Errorf("notice: %w", err)
		}
		return c.confirm(ctx, in)
	case protocol.TypeLedgerBlock:
		var m protocol.LedgerBlockMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return err
		}
		if m.Timestamp > c.lastTs {
			c.lastTs = m.Timestamp
		}
		return c.Sink.LedgerTime(ctx, m.Timestamp)
	}
	return fmt.Errorf("unexpected frame type %q", base.Type)
}

func (c *Client) confirm(ctx context.Context, in protocol.Input) error {
	in.Prediction = false
	if err := in.Check(); err != nil {
		return err
	}
	// Keys must match the checksummed form predictions carry.
	actor, err := protocol.NormalizeAddress(in.Actor)
	if err != nil {
		return err
	}
	in.Actor = actor
	return c.Sink.ConfirmedInput(ctx, in)
}
