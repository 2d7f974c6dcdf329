package rpc

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tolelom/battlechain/indexer"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// streamer serves GET /ws?game_id=N&from=K: the game's log from position K
// followed by every event appended to it while the connection is open.
type streamer struct {
	indexer  *indexer.Indexer
	upgrader websocket.Upgrader
	log      *slog.Logger
}

func newStreamer(idx *indexer.Indexer) *streamer {
	return &streamer{
		indexer: idx,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: slog.Default().With("component", "rpc.stream"),
	}
}

func (s *streamer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	gameID, err := strconv.ParseUint(q.Get("game_id"), 10, 64)
	if err != nil || gameID == 0 {
		http.Error(w, "game_id is required", http.StatusBadRequest)
		return
	}
	var from uint64
	if v := q.Get("from"); v != "" {
		if from, err = strconv.ParseUint(v, 10, 64); err != nil {
			http.Error(w, "from must be a non-negative integer", http.StatusBadRequest)
			return
		}
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("upgrade failed", "err", err)
		return
	}
	defer ws.Close()

	// Watch before reading the backlog so nothing falls in between.
	live, cancel := s.indexer.Watch(gameID)
	defer cancel()

	backlog, err := s.indexer.GameEvents(gameID)
	if err != nil {
		s.log.Error("read game log", "game", gameID, "err", err)
		return
	}
	next := from
	for seq := from; seq < uint64(len(backlog)); seq++ {
		if err := s.write(ws, StreamMessage{Seq: seq, Event: backlog[seq]}); err != nil {
			return
		}
		next = seq + 1
	}

	closed := make(chan struct{})
	go s.drain(ws, closed)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-closed:
			return
		case e, ok := <-live:
			if !ok {
				_ = ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "fell behind"),
					time.Now().Add(writeWait))
				return
			}
			if e.Seq < next {
				continue
			}
			if err := s.write(ws, StreamMessage{Seq: e.Seq, Event: e.Event}); err != nil {
				return
			}
			next = e.Seq + 1
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (s *streamer) write(ws *websocket.Conn, msg StreamMessage) error {
	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := ws.WriteJSON(msg); err != nil {
		s.log.Debug("write failed", "err", err)
		return err
	}
	return nil
}

// drain reads until the peer goes away. Clients never send data frames.
func (s *streamer) drain(ws *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug("stream closed", "err", err)
			}
			return
		}
	}
}
