package events

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// EventType labels what happened.
type EventType string

const (
	EventBlockCommit   EventType = "block_commit"
	EventTxExecuted    EventType = "tx_executed"
	EventTxFailed      EventType = "tx_failed"
	EventTokenTransfer EventType = "token_transfer"

	EventGameCreated     EventType = "GameCreated"
	EventGameJoined      EventType = "GameJoined"
	EventTorpedoLaunched EventType = "TorpedoLaunched"
	EventTorpedoResult   EventType = "TorpedoResult"
	EventGameFinished    EventType = "GameFinished"
	EventGamePaid        EventType = "GamePaid"
	EventBoardRevealed   EventType = "BoardRevealed"
)

// GameTypes lists the event types that belong to a game's log, in no
// particular order.
var GameTypes = []EventType{
	EventGameCreated,
	EventGameJoined,
	EventTorpedoLaunched,
	EventTorpedoResult,
	EventGameFinished,
	EventGamePaid,
	EventBoardRevealed,
}

// IsGameEvent reports whether typ belongs to a game's log.
func IsGameEvent(typ EventType) bool {
	for _, t := range GameTypes {
		if t == typ {
			return true
		}
	}
	return false
}

// Event carries a typed payload emitted after a state change.
type Event struct {
	Type        EventType       `json:"type"`
	TxID        string          `json:"tx_id,omitempty"`
	BlockHeight int64           `json:"block_height"`
	GameID      uint64          `json:"game_id,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
}

// New builds an event whose Data is the JSON encoding of payload.
// Data is left empty if marshalling fails (which cannot happen for the
// payload types in this package).
func New(typ EventType, gameID uint64, payload any) Event {
	ev := Event{Type: typ, GameID: gameID}
	if payload != nil {
		if data, err := json.Marshal(payload); err == nil {
			ev.Data = data
		}
	}
	return ev
}

// Decode unmarshals Data into v.
func (ev Event) Decode(v any) error {
	return json.Unmarshal(ev.Data, v)
}

// Handler is a callback invoked for matching events.
type Handler func(Event)

// Emitter is a simple pub/sub broker. Subscribe before Emit.
type Emitter struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	all      []Handler
}

// NewEmitter creates an Emitter with no subscribers.
func NewEmitter() *Emitter {
	return &Emitter{handlers: make(map[EventType][]Handler)}
}

// Subscribe registers h to be called whenever typ is emitted.
func (e *Emitter) Subscribe(typ EventType, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[typ] = append(e.handlers[typ], h)
}

// SubscribeAll registers h for every event type. Wildcard handlers run after
// the type-specific ones.
func (e *Emitter) SubscribeAll(h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.all = append(e.all, h)
}

// Emit delivers ev to all subscribers for ev.Type synchronously.
// Each handler is guarded by panic recovery so a misbehaving subscriber
// cannot crash the node or halt block production.
func (e *Emitter) Emit(ev Event) {
	e.mu.RLock()
	handlers := make([]Handler, 0, len(e.handlers[ev.Type])+len(e.all))
	handlers = append(handlers, e.handlers[ev.Type]...)
	handlers = append(handlers, e.all...)
	e.mu.RUnlock()
	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("event handler panicked", "component", "events", "type", ev.Type, "panic", r)
				}
			}()
			h(ev)
		}()
	}
}
