// Package client talks to a node over JSON-RPC and follows game logs over
// the websocket stream.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tolelom/battlechain/core"
	"github.com/tolelom/battlechain/events"
	"github.com/tolelom/battlechain/game"
	"github.com/tolelom/battlechain/rpc"
)

// ErrNotFound is returned when the node has no such block, game or receipt.
var ErrNotFound = errors.New("not found")

// Client is a JSON-RPC client for a single node. It is safe for concurrent use.
type Client struct {
	url          string
	token        string
	http         *http.Client
	pollInterval time.Duration
	log          *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithToken sends token as a bearer credential on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithPollInterval sets how often WaitReceipt polls. Default 200ms.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) { c.pollInterval = d }
}

// New returns a client for the node whose RPC endpoint is url
// (e.g. "http://localhost:8545/").
func New(url string, opts ...Option) *Client {
	c := &Client{
		url:          url,
		http:         &http.Client{Timeout: 15 * time.Second},
		pollInterval: 200 * time.Millisecond,
		log:          slog.Default().With("component", "client"),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Call invokes method with params and decodes the result into out, which may
// be nil. JSON-RPC errors are returned as *rpc.Error; CodeNotFound also
// matches ErrNotFound.
func (c *Client) Call(ctx context.Context, method string, params, out any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}
	body, err := json.Marshal(rpc.Request{JSONRPC: "2.0", ID: uuid.NewString(), Method: method, Params: raw})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s: http %d: %s", method, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *rpc.Error      `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("%s: decode response: %w", method, err)
	}
	if envelope.Error != nil {
		if envelope.Error.Code == rpc.CodeNotFound {
			return fmt.Errorf("%s: %w: %s", method, ErrNotFound, envelope.Error.Message)
		}
		return fmt.Errorf("%s: %w", method, envelope.Error)
	}
	if out == nil || len(envelope.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return fmt.Errorf("%s: decode result: %w", method, err)
	}
	return nil
}

func (c *Client) BlockHeight(ctx context.Context) (int64, error) {
	var h int64
	err := c.Call(ctx, "getBlockHeight", nil, &h)
	return h, err
}

// Block returns the block at height, or the tip when height is negative.
func (c *Client) Block(ctx context.Context, height int64) (*core.Block, error) {
	params := map[string]any{}
	if height >= 0 {
		params["height"] = height
	}
	var b core.Block
	if err := c.Call(ctx, "getBlock", params, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (c *Client) Balance(ctx context.Context, addr string) (*rpc.BalanceResult, error) {
	var res rpc.BalanceResult
	if err := c.Call(ctx, "getBalance", map[string]string{"address": addr}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) Game(ctx context.Context, id uint64) (*game.Game, error) {
	var g game.Game
	if err := c.Call(ctx, "getGame", map[string]uint64{"game_id": id}, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// GameEvents returns game id's log starting at position from.
func (c *Client) GameEvents(ctx context.Context, id, from uint64) ([]events.Event, error) {
	var res rpc.GameEventsResult
	if err := c.Call(ctx, "getGameEvents", map[string]uint64{"game_id": id, "from": from}, &res); err != nil {
		return nil, err
	}
	return res.Events, nil
}

// OpenGames lists joinable games, leaving out those created by exclude.
func (c *Client) OpenGames(ctx context.Context, exclude string) ([]events.GameCreated, error) {
	var out []events.GameCreated
	err := c.Call(ctx, "getOpenGames", map[string]string{"exclude": exclude}, &out)
	return out, err
}

func (c *Client) GamesByPlayer(ctx context.Context, addr string) ([]uint64, error) {
	var ids []uint64
	err := c.Call(ctx, "getGamesByPlayer", map[string]string{"address": addr}, &ids)
	return ids, err
}

// Receipt returns the receipt of txID, or ErrNotFound while it is pending.
func (c *Client) Receipt(ctx context.Context, txID string) (*core.Receipt, error) {
	var r core.Receipt
	if err := c.Call(ctx, "getReceipt", map[string]string{"tx_id": txID}, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (c *Client) Params(ctx context.Context) (*core.Params, error) {
	var p core.Params
	if err := c.Call(ctx, "getParams", nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) MempoolSize(ctx context.Context) (int, error) {
	var n int
	err := c.Call(ctx, "getMempoolSize", nil, &n)
	return n, err
}

// SendTx submits a signed transaction and returns the ID the node assigned.
func (c *Client) SendTx(ctx context.Context, tx *core.Transaction) (string, error) {
	var res rpc.SendTxResult
	if err := c.Call(ctx, "sendTx", tx, &res); err != nil {
		return "", err
	}
	return res.TxID, nil
}

// WaitReceipt polls until txID is included or dropped, or ctx is done.
func (c *Client) WaitReceipt(ctx context.Context, txID string) (*core.Receipt, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		r, err := c.Receipt(ctx, txID)
		if err == nil {
			return r, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("wait receipt %s: %w", txID, ctx.Err())
		case <-ticker.C:
		}
	}
}

// SubmitAndWait sends tx and waits for its receipt. A receipt with a failed
// status is returned as an error carrying the node's reason.
func (c *Client) SubmitAndWait(ctx context.Context, tx *core.Transaction) (*core.Receipt, error) {
	id, err := c.SendTx(ctx, tx)
	if err != nil {
		return nil, err
	}
	r, err := c.WaitReceipt(ctx, id)
	if err != nil {
		return nil, err
	}
	if !r.OK() {
		return r, &TxError{TxID: id, Type: tx.Type, Reason: r.Reason}
	}
	return r, nil
}

// TxError reports a transaction the node executed and rejected.
type TxError struct {
	TxID   string
	Type   core.TxType
	Reason string
}

func (e *TxError) Error() string {
	return fmt.Sprintf("%s %s failed: %s", e.Type, e.TxID, e.Reason)
}

// Unwrap exposes the game sentinel named by Reason, if any, so callers can
// use errors.Is(err, game.ErrOutOfTurn) and friends.
func (e *TxError) Unwrap() error { return game.ErrorFromReason(e.Reason) }
