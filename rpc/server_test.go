package rpc_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tolelom/battlechain/events"
	"github.com/tolelom/battlechain/rpc"
)

const token = "s3cret"

func startServer(t *testing.T, e *env) *rpc.Server {
	t.Helper()
	srv := rpc.NewServer("127.0.0.1:0", e.handler, token)
	require.NoError(t, srv.Start())
	t.Cleanup(func() { _ = srv.Stop() })
	return srv
}

func post(t *testing.T, srv *rpc.Server, auth string, body string) rpc.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, fmt.Sprintf("http://%s/", srv.Addr()), bytes.NewBufferString(body))
	require.NoError(t, err)
	if auth != "" {
		req.Header.Set("Authorization", "Bearer "+auth)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out rpc.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestServerAuth(t *testing.T) {
	srv := startServer(t, newEnv(t))
	body := `{"jsonrpc":"2.0","id":"a","method":"getBlockHeight"}`

	resp := post(t, srv, "", body)
	require.NotNil(t, resp.Error)
	assert.Equal(t, rpc.CodeUnauthorized, resp.Error.Code)

	resp = post(t, srv, token, body)
	require.Nil(t, resp.Error)
	assert.Equal(t, "a", resp.ID)
	assert.EqualValues(t, 0, resp.Result)
}

func TestServerRejectsMalformedRequests(t *testing.T) {
	srv := startServer(t, newEnv(t))

	resp := post(t, srv, token, `{not json`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, rpc.CodeParseError, resp.Error.Code)

	resp = post(t, srv, token, `{"jsonrpc":"1.0","id":1,"method":"getBlockHeight"}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, rpc.CodeInvalidRequest, resp.Error.Code)

	get, err := http.Get(fmt.Sprintf("http://%s/", srv.Addr()))
	require.NoError(t, err)
	get.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, get.StatusCode)
}

func dialStream(t *testing.T, srv *rpc.Server, query string) *websocket.Conn {
	t.Helper()
	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	conn, _, err := websocket.DefaultDialer.Dial(fmt.Sprintf("ws://%s/ws?%s", srv.Addr(), query), h)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) rpc.StreamMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg rpc.StreamMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestStreamBacklogThenLive(t *testing.T) {
	e := newEnv(t)
	srv := startServer(t, e)

	e.emitter.Emit(events.New(events.EventGameCreated, 7, events.GameCreated{GameID: 7, Challenger: "a", BetAmount: 1}))
	e.emitter.Emit(events.New(events.EventGameJoined, 7, events.GameJoined{GameID: 7, Challenger: "a", Opponent: "b"}))
	e.emitter.Emit(events.New(events.EventGameCreated, 8, events.GameCreated{GameID: 8, Challenger: "c"}))

	conn := dialStream(t, srv, "game_id=7&from=1")
	msg := readMessage(t, conn)
	assert.EqualValues(t, 1, msg.Seq)
	assert.Equal(t, events.EventGameJoined, msg.Event.Type)

	// The handler registers its watcher before sending the backlog, so an
	// event emitted after the first frame arrives is always delivered.
	e.emitter.Emit(events.New(events.EventTorpedoLaunched, 7, events.TorpedoLaunched{GameID: 7, Attacker: "a", Row: 3, Col: 4}))
	msg = readMessage(t, conn)
	assert.EqualValues(t, 2, msg.Seq)
	assert.Equal(t, events.EventTorpedoLaunched, msg.Event.Type)

	var p events.TorpedoLaunched
	require.NoError(t, msg.Event.Decode(&p))
	assert.Equal(t, 3, p.Row)
}

func TestStreamRequiresAuthAndGameID(t *testing.T) {
	srv := startServer(t, newEnv(t))

	_, resp, err := websocket.DefaultDialer.Dial(fmt.Sprintf("ws://%s/ws?game_id=1", srv.Addr()), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	_, resp, err = websocket.DefaultDialer.Dial(fmt.Sprintf("ws://%s/ws", srv.Addr()), h)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
