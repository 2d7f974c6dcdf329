package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tolelom/battlechain/rpc"
)

// ErrStop may be returned by a subscription callback to end the
// subscription without error.
var ErrStop = errors.New("stop subscription")

const (
	minRedial = 100 * time.Millisecond
	maxRedial = 5 * time.Second
)

// streamURL derives the websocket endpoint from the RPC URL.
func (c *Client) streamURL(gameID, from uint64) (string, error) {
	u, err := url.Parse(c.url)
	if err != nil {
		return "", fmt.Errorf("parse rpc url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported rpc scheme %q", u.Scheme)
	}
	u.Path = "/ws"
	q := url.Values{}
	q.Set("game_id", strconv.FormatUint(gameID, 10))
	q.Set("from", strconv.FormatUint(from, 10))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Subscribe delivers game gameID's log to fn starting at position from, then
// every event appended to it, until ctx is done or fn returns an error.
// Dropped connections are redialled and resume after the last delivered
// entry, so fn sees each position exactly once and in order.
func (c *Client) Subscribe(ctx context.Context, gameID, from uint64, fn func(rpc.StreamMessage) error) error {
	next := from
	backoff := minRedial
	for {
		delivered, err := c.stream(ctx, gameID, next, func(msg rpc.StreamMessage) error {
			if err := fn(msg); err != nil {
				return err
			}
			next = msg.Seq + 1
			return nil
		})
		if errors.Is(err, ErrStop) {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var cbErr callbackError
		if errors.As(err, &cbErr) {
			return cbErr.err
		}
		if delivered {
			backoff = minRedial
		}
		c.log.Debug("stream interrupted, redialling", "game", gameID, "next", next, "err", err, "in", backoff)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxRedial)
	}
}

type callbackError struct{ err error }

func (e callbackError) Error() string { return e.err.Error() }
func (e callbackError) Unwrap() error { return e.err }

// stream runs one connection. It reports whether any message was delivered.
func (c *Client) stream(ctx context.Context, gameID, from uint64, fn func(rpc.StreamMessage) error) (bool, error) {
	target, err := c.streamURL(gameID, from)
	if err != nil {
		return false, callbackError{err}
	}
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, target, header)
	if err != nil {
		if resp != nil && resp.StatusCode >= 400 && resp.StatusCode < 500 {
			// The request itself is wrong; redialling cannot help.
			return false, callbackError{fmt.Errorf("dial stream: http %d", resp.StatusCode)}
		}
		return false, fmt.Errorf("dial stream: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	delivered := false
	for {
		var msg rpc.StreamMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return delivered, err
		}
		if msg.Seq < from {
			continue
		}
		if err := fn(msg); err != nil {
			if errors.Is(err, ErrStop) {
				return delivered, err
			}
			return delivered, callbackError{err}
		}
		from = msg.Seq + 1
		delivered = true
	}
}
